// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/guestseat/internal/model"
)

var (
	// ErrSeatConflict は要求された席の一部が他のユーザーに割り当て済みであることを示す。
	// 具体的な席IDは SeatIDsError で取得できる。
	ErrSeatConflict = errors.New("seat held by another user")

	// ErrSeatBusy は行ロックの取得がタイムアウトまたはデッドロックで失敗したことを示す。
	// 一時的な競合であり、呼び出し元の再試行で解消しうる。
	ErrSeatBusy = errors.New("seat rows are locked by another transaction")

	// ErrSeatNotFound は存在しない席IDが指定されたことを示す。
	ErrSeatNotFound = errors.New("seat not found")

	// ErrOwnerNotFound は割り当て先のユーザーが存在しないことを示す。
	ErrOwnerNotFound = errors.New("seat owner does not exist")

	// ErrDuplicatePhone は電話番号のUNIQUE制約違反を示す。
	ErrDuplicatePhone = errors.New("phone already registered")
)

// SeatIDsError はエラーの原因となった席IDを保持する。
// errors.Is で ErrSeatConflict / ErrSeatNotFound と照合できる。
type SeatIDsError struct {
	Kind    error
	SeatIDs []int64
}

// Error はerrorインターフェースを実装する。
func (e *SeatIDsError) Error() string {
	return e.Kind.Error()
}

// Unwrap は原因のセンチネルエラーを返す。
func (e *SeatIDsError) Unwrap() error {
	return e.Kind
}

// SeatRepository は席データの永続化インターフェース。
type SeatRepository interface {
	// ListAll は全席をID順で返す。
	ListAll(ctx context.Context) ([]*model.Seat, error)

	// ListByOwner は指定ユーザーに割り当て済みの席をID順で返す。
	ListByOwner(ctx context.Context, userID int64) ([]*model.Seat, error)

	// Assign はユーザーの席を要求された集合に置き換える。
	// 競合チェック、既存席の解放、新しい席の確保を単一トランザクションで行う。
	// 他ユーザーの席を含む場合は ErrSeatConflict、存在しない席を含む場合は ErrSeatNotFound、
	// ロック待ちが lockTimeout を超えた場合は ErrSeatBusy を返し、何も変更しない。
	Assign(ctx context.Context, userID int64, seatIDs []int64, lockTimeout time.Duration) (*model.SeatAssignment, error)

	// CreateTable はエリア内の最大テーブル番号+1で新しいテーブルを作成し、その番号を返す。
	// 同一エリアへの同時作成はエリア単位のアドバイザリロックで直列化される。
	CreateTable(ctx context.Context, area string, capacity int) (int, error)
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByPhone はphoneまたはphone2が一致するユーザーを取得する。見つからない場合はnilを返す。
	FindByPhone(ctx context.Context, phone string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDを設定する。
	// 電話番号が重複する場合は ErrDuplicatePhone を返す。
	Create(ctx context.Context, user *model.User) error

	// Update は指定フィールドのみを更新し、更新後のユーザーを返す。
	// 見つからない場合はnilを返す。
	Update(ctx context.Context, id int64, patch *model.UserPatch) (*model.User, error)

	// Search は名前または電話番号の部分一致でユーザーを検索する。
	// queryが空の場合は全件を返す。
	Search(ctx context.Context, query string) ([]*model.User, error)

	// DistinctAreas はユーザーに設定されている空でないエリア名を重複なしで昇順に返す。
	DistinctAreas(ctx context.Context) ([]string, error)
}
