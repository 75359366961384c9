// Package seat は席割り当てとテーブル作成のドメインロジックを提供する。
package seat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hitoshi/guestseat/internal/event"
	"github.com/hitoshi/guestseat/internal/metrics"
	"github.com/hitoshi/guestseat/internal/model"
	"github.com/hitoshi/guestseat/internal/repository"
)

// DefaultLockTimeout は席の行ロック待ちの既定上限。
const DefaultLockTimeout = 5 * time.Second

// publishTimeout はイベント発行に使う独立したタイムアウト。
const publishTimeout = 5 * time.Second

// Config は席サービスの設定。
type Config struct {
	LockTimeout     time.Duration
	DefaultCapacity int
}

// Service は席割り当てのサービス層。
// 競合チェック付きの解放・確保とテーブル作成を提供する。
type Service struct {
	repo      repository.SeatRepository
	publisher event.Publisher
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	cfg       Config
}

// NewService はServiceの新しいインスタンスを生成する。
// publisher, collector, logger はnilの場合に無効な実装で置き換える。
func NewService(
	repo repository.SeatRepository,
	publisher event.Publisher,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.DefaultCapacity <= 0 || cfg.DefaultCapacity > model.MaxTableCapacity {
		cfg.DefaultCapacity = model.DefaultTableCapacity
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		metrics:   collector,
		logger:    logger,
		cfg:       cfg,
	}
}

// ListSeats は全席を返す。
func (s *Service) ListSeats(ctx context.Context) ([]*model.Seat, error) {
	seats, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("席一覧の取得に失敗しました: %w", err)
	}
	return seats, nil
}

// ListSeatsByUser は指定ユーザーが保持している席を返す。
func (s *Service) ListSeatsByUser(ctx context.Context, userID int64) ([]*model.Seat, error) {
	seats, err := s.repo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの席一覧の取得に失敗しました: %w", err)
	}
	return seats, nil
}

// AssignSeats はユーザーの席を seatIDs に置き換える。
// いずれかの席が他のユーザーに割り当て済みの場合は SEAT_CONFLICT を返し、何も変更しない。
// seatIDs が空の場合はユーザーの席をすべて解放する。
func (s *Service) AssignSeats(ctx context.Context, seatIDs []int64, userID int64) error {
	_, err := s.Assign(ctx, seatIDs, userID)
	return err
}

// Assign は AssignSeats と同じ処理を行い、確保・解放された席IDを返す。
func (s *Service) Assign(ctx context.Context, seatIDs []int64, userID int64) (*model.SeatAssignment, error) {
	if userID <= 0 {
		return nil, model.NewInvalidRequestError("user_id は正の整数で指定してください")
	}
	ids, err := normalizeSeatIDs(seatIDs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.repo.Assign(ctx, userID, ids, s.cfg.LockTimeout)
	s.metrics.RecordAssignLatency(time.Since(start))
	if err != nil {
		return nil, s.translateAssignError(userID, ids, err)
	}
	s.metrics.RecordSeatAssignment(metrics.AssignResultSuccess)

	s.logger.Info("seats assigned",
		slog.Int64("user_id", userID),
		slog.Any("claimed", result.Claimed),
		slog.Any("released", result.Released),
	)

	// コミット済みの状態に対する通知。失敗しても割り当て結果は変わらない。
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishSeatsAssigned(pubCtx, event.SeatsAssigned{
		UserID:          userID,
		SeatIDs:         result.Claimed,
		ReleasedSeatIDs: result.Released,
		AssignedAt:      time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to publish seats.assigned",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return result, nil
}

// translateAssignError はリポジトリのエラーをAPIErrorへ変換し、結果をメトリクスへ記録する。
func (s *Service) translateAssignError(userID int64, ids []int64, err error) error {
	var idsErr *repository.SeatIDsError
	switch {
	case errors.Is(err, repository.ErrSeatConflict):
		s.metrics.RecordSeatAssignment(metrics.AssignResultConflict)
		conflicted := ids
		if errors.As(err, &idsErr) {
			conflicted = idsErr.SeatIDs
		}
		s.logger.Info("seat assignment conflict",
			slog.Int64("user_id", userID),
			slog.Any("seat_ids", conflicted),
		)
		return model.NewSeatConflictError(conflicted)
	case errors.Is(err, repository.ErrSeatNotFound):
		s.metrics.RecordSeatAssignment(metrics.AssignResultNotFound)
		missing := ids
		if errors.As(err, &idsErr) {
			missing = idsErr.SeatIDs
		}
		return model.NewSeatNotFoundError(missing)
	case errors.Is(err, repository.ErrOwnerNotFound):
		s.metrics.RecordSeatAssignment(metrics.AssignResultNotFound)
		return model.NewUserNotFoundError()
	case errors.Is(err, repository.ErrSeatBusy):
		s.metrics.RecordSeatAssignment(metrics.AssignResultBusy)
		s.logger.Warn("seat lock timeout",
			slog.Int64("user_id", userID),
			slog.Any("seat_ids", ids),
		)
		return model.NewSeatBusyError()
	default:
		s.metrics.RecordSeatAssignment(metrics.AssignResultError)
		return fmt.Errorf("席の割り当てに失敗しました: %w", err)
	}
}

// CreateTable はエリアに新しいテーブルを作成し、そのテーブル番号を返す。
// capacity が0の場合は既定の席数を使う。
func (s *Service) CreateTable(ctx context.Context, area string, capacity int) (int, error) {
	if area == "" {
		return 0, model.NewInvalidRequestError("area を指定してください")
	}
	if capacity == 0 {
		capacity = s.cfg.DefaultCapacity
	}
	if capacity < 1 || capacity > model.MaxTableCapacity {
		return 0, model.NewInvalidRequestError(
			fmt.Sprintf("capacity は1から%dの範囲で指定してください", model.MaxTableCapacity),
		)
	}

	col, err := s.repo.CreateTable(ctx, area, capacity)
	if err != nil {
		return 0, fmt.Errorf("テーブルの作成に失敗しました: %w", err)
	}
	s.metrics.RecordTableCreated(capacity)

	s.logger.Info("table created",
		slog.String("area", area),
		slog.Int("table", col),
		slog.Int("capacity", capacity),
	)
	return col, nil
}

// normalizeSeatIDs は重複を除いて昇順に並べる。正でないIDはエラーとする。
func normalizeSeatIDs(seatIDs []int64) ([]int64, error) {
	seen := make(map[int64]struct{}, len(seatIDs))
	ids := make([]int64, 0, len(seatIDs))
	for _, id := range seatIDs {
		if id <= 0 {
			return nil, model.NewInvalidRequestError(fmt.Sprintf("不正な席IDです: %d", id))
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
