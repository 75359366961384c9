package model

// DefaultTableCapacity はテーブル作成時に容量が省略された場合の席数。
const DefaultTableCapacity = 12

// MaxTableCapacity は1テーブルあたりに作成できる席数の上限。
const MaxTableCapacity = 100

// Seat はイベント会場の1席を表す。
// Colはエリア内のテーブル番号、Rowはテーブル内の席番号を兼ねる。
// Status == SeatStatusTaken のとき、かつそのときに限りOwnerIDが設定される。
type Seat struct {
	ID      int64
	Row     int
	Col     int
	Area    *string
	Status  SeatStatus
	OwnerID *int64
}

// SeatStatus は席の占有状態を表す。
type SeatStatus string

const (
	// SeatStatusFree は空席。
	SeatStatusFree SeatStatus = "free"
	// SeatStatusTaken は誰かに割り当て済みの席。
	SeatStatusTaken SeatStatus = "taken"
)

// IsHeldByOther は席がuserID以外のユーザーに割り当て済みかどうかを返す。
func (s *Seat) IsHeldByOther(userID int64) bool {
	return s.OwnerID != nil && *s.OwnerID != userID
}

// SeatAssignment は割り当て処理の結果を表す。
// Releasedは今回の処理で解放された席のうち、再取得されなかった席のID。
type SeatAssignment struct {
	UserID   int64
	Claimed  []int64
	Released []int64
}
