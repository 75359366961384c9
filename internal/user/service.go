// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/guestseat/internal/model"
	"github.com/hitoshi/guestseat/internal/repository"
)

// SeatAssigner は席割り当てのインターフェース。
type SeatAssigner interface {
	AssignSeats(ctx context.Context, seatIDs []int64, userID int64) error
}

// CreateInput はユーザー新規登録の入力。
type CreateInput struct {
	Name     string
	Phone    string
	Phone2   *string
	UserType string
}

// UpdateInput はユーザー更新の入力。
// HasSeatIDs がtrueの場合、フィールド更新の後に SeatIDs で席を置き換える。
type UpdateInput struct {
	Patch      model.UserPatch
	SeatIDs    []int64
	HasSeatIDs bool
}

// Service はユーザー管理のサービス層。
// 電話番号ログイン、検索、登録、部分更新、出欠回答を提供する。
type Service struct {
	userRepo repository.UserRepository
	seats    SeatAssigner
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, seats SeatAssigner) *Service {
	return &Service{
		userRepo: userRepo,
		seats:    seats,
	}
}

// Login は電話番号（phone または phone2）でユーザーを検索し、存在しなければ新規作成する。
// 新規作成時のユーザー区分は model.DefaultUserType。
func (s *Service) Login(ctx context.Context, name, phone string) (*model.User, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, model.NewInvalidRequestError("phone を指定してください")
	}

	user, err := s.userRepo.FindByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user != nil {
		return user, nil
	}

	user = &model.User{
		Name:     name,
		Phone:    phone,
		UserType: model.DefaultUserType,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicatePhone) {
			// 同時ログインで先に作成された場合
			existing, findErr := s.userRepo.FindByPhone(ctx, phone)
			if findErr != nil {
				return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", findErr)
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを自動登録しました",
		slog.Int64("user_id", user.ID),
	)
	return user, nil
}

// Get は指定IDのユーザーを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// List は全ユーザー、またはqに部分一致するユーザーを返す。
func (s *Service) List(ctx context.Context, q string) ([]*model.User, error) {
	users, err := s.userRepo.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Create はユーザーを新規登録する。電話番号が登録済みの場合は DUPLICATE_PHONE を返す。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.User, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Phone == "" {
		return nil, model.NewInvalidRequestError("phone を指定してください")
	}

	existing, err := s.userRepo.FindByPhone(ctx, in.Phone)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicatePhoneError()
	}

	userType := in.UserType
	if userType == "" {
		userType = model.DefaultUserType
	}
	user := &model.User{
		Name:     strings.TrimSpace(in.Name),
		Phone:    in.Phone,
		Phone2:   in.Phone2,
		UserType: userType,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicatePhone) {
			return nil, model.NewDuplicatePhoneError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	return user, nil
}

// Update はユーザーのフィールドを部分更新し、必要に応じて席を置き換える。
// 席の割り当てはフィールド更新とは別のトランザクションで行う。
// 席の競合で失敗した場合、フィールド更新は確定したまま SEAT_CONFLICT を返す。
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*model.User, error) {
	user, err := s.userRepo.Update(ctx, id, &in.Patch)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicatePhone) {
			return nil, model.NewDuplicatePhoneError()
		}
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if in.HasSeatIDs {
		if s.seats == nil {
			return nil, errors.New("席割り当てが構成されていません")
		}
		if err := s.seats.AssignSeats(ctx, in.SeatIDs, id); err != nil {
			return nil, err
		}
	}

	return user, nil
}

// SetComing は出欠回答を更新する。
func (s *Service) SetComing(ctx context.Context, id int64, coming bool) error {
	attendance := model.AttendanceFromBool(coming)
	user, err := s.userRepo.Update(ctx, id, &model.UserPatch{IsComing: &attendance})
	if err != nil {
		return fmt.Errorf("出欠の更新に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	return nil
}

// Areas はユーザーに設定されているエリア名を重複なしで昇順に返す。
func (s *Service) Areas(ctx context.Context) ([]string, error) {
	areas, err := s.userRepo.DistinctAreas(ctx)
	if err != nil {
		return nil, fmt.Errorf("エリア一覧の取得に失敗しました: %w", err)
	}
	return areas, nil
}
