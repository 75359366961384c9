package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/guestseat/internal/model"
)

// PostgreSQLのSQLSTATE
const (
	pqCodeLockNotAvailable    = "55P03"
	pqCodeDeadlockDetected    = "40P01"
	pqCodeForeignKeyViolation = "23503"
)

// PostgresSeatRepo はPostgreSQLを使用した席リポジトリ。
type PostgresSeatRepo struct {
	db *sql.DB
}

// NewPostgresSeatRepo はPostgresSeatRepoを生成する。
func NewPostgresSeatRepo(db *sql.DB) *PostgresSeatRepo {
	return &PostgresSeatRepo{db: db}
}

const seatColumns = `id, "row", col, area, status, owner_id`

// ListAll は全席をID順で返す。
func (r *PostgresSeatRepo) ListAll(ctx context.Context) ([]*model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+seatColumns+` FROM seats ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list seats: %w", err)
	}
	defer rows.Close()

	return scanSeats(rows)
}

// ListByOwner は指定ユーザーに割り当て済みの席をID順で返す。
func (r *PostgresSeatRepo) ListByOwner(ctx context.Context, userID int64) ([]*model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE owner_id = $1 ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list seats by owner: %w", err)
	}
	defer rows.Close()

	return scanSeats(rows)
}

// Assign はユーザーの席を要求された集合に置き換える。
//
// まずユーザー行をロックして同一ユーザーの呼び出しを直列化し、次に要求された席とユーザーが現在保持している席をID順に FOR UPDATE でロックしてから
// 競合を判定するため、同じ席を狙う2つのトランザクションが両方とも判定を通過することはない。
// ID順のロック取得により、重なり合う席集合を要求する呼び出し同士のデッドロックも避ける。
func (r *PostgresSeatRepo) Assign(ctx context.Context, userID int64, seatIDs []int64, lockTimeout time.Duration) (*model.SeatAssignment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if lockTimeout > 0 {
		if _, err := tx.ExecContext(ctx, lockTimeoutSQL(lockTimeout)); err != nil {
			return nil, fmt.Errorf("failed to set lock_timeout: %w", err)
		}
	}

	// 0. 同一ユーザーの割り当てを直列化する。
	// 席行のロックだけでは、同じユーザーが互いに素な席集合を同時に要求した場合に両方がコミットされる。
	var lockedUser int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = $1 FOR NO KEY UPDATE`,
		userID,
	).Scan(&lockedUser)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOwnerNotFound
	}
	if err != nil {
		return nil, classifyLockError("failed to lock owner", err)
	}

	// 1. 対象行のロックと現在の所有者の取得
	rows, err := tx.QueryContext(ctx,
		`SELECT id, owner_id FROM seats
		 WHERE id = ANY($1) OR owner_id = $2
		 ORDER BY id
		 FOR UPDATE`,
		pq.Array(seatIDs), userID,
	)
	if err != nil {
		return nil, classifyLockError("failed to lock seats", err)
	}

	locked := make(map[int64]*model.Seat)
	for rows.Next() {
		var id int64
		var owner sql.NullInt64
		if err := rows.Scan(&id, &owner); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seat := &model.Seat{ID: id}
		if owner.Valid {
			seat.OwnerID = &owner.Int64
		}
		locked[id] = seat
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, classifyLockError("failed to iterate locked seats", err)
	}
	rows.Close()

	// 2. 競合判定（失敗時は何も変更せずにロールバック）
	requested := make(map[int64]struct{}, len(seatIDs))
	var missing, conflicts []int64
	for _, id := range seatIDs {
		requested[id] = struct{}{}
		seat, ok := locked[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if seat.IsHeldByOther(userID) {
			conflicts = append(conflicts, id)
		}
	}
	if len(missing) > 0 {
		return nil, &SeatIDsError{Kind: ErrSeatNotFound, SeatIDs: missing}
	}
	if len(conflicts) > 0 {
		return nil, &SeatIDsError{Kind: ErrSeatConflict, SeatIDs: conflicts}
	}

	var released []int64
	for id, seat := range locked {
		if seat.OwnerID != nil && !seat.IsHeldByOther(userID) {
			if _, keep := requested[id]; !keep {
				released = append(released, id)
			}
		}
	}
	sort.Slice(released, func(i, j int) bool { return released[i] < released[j] })

	// 3. 既存の席をすべて解放
	if _, err := tx.ExecContext(ctx,
		`UPDATE seats SET status = $2, owner_id = NULL WHERE owner_id = $1`,
		userID, string(model.SeatStatusFree),
	); err != nil {
		return nil, classifyLockError("failed to release seats", err)
	}

	// 4. 要求された席を確保
	if len(seatIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE seats SET status = $3, owner_id = $1 WHERE id = ANY($2)`,
			userID, pq.Array(seatIDs), string(model.SeatStatusTaken),
		); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == pqCodeForeignKeyViolation {
				return nil, ErrOwnerNotFound
			}
			return nil, classifyLockError("failed to claim seats", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classifyLockError("failed to commit transaction", err)
	}

	claimed := append([]int64(nil), seatIDs...)
	return &model.SeatAssignment{
		UserID:   userID,
		Claimed:  claimed,
		Released: released,
	}, nil
}

// CreateTable はエリア内の最大テーブル番号+1で新しいテーブルを作成し、その番号を返す。
// 行番号は1からcapacityまで。全席を空席として作成する。
func (r *PostgresSeatRepo) CreateTable(ctx context.Context, area string, capacity int) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 同一エリアへの同時作成で番号が衝突しないよう、エリア単位で直列化する
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		area,
	); err != nil {
		return 0, fmt.Errorf("failed to acquire area lock: %w", err)
	}

	var maxCol int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(col), 0) FROM seats WHERE area = $1`,
		area,
	).Scan(&maxCol); err != nil {
		return 0, fmt.Errorf("failed to get max table index: %w", err)
	}
	newCol := maxCol + 1

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO seats ("row", col, area, status, owner_id)
		 SELECT g, $1, $2, $3, NULL FROM generate_series(1, $4::int) AS g`,
		newCol, area, string(model.SeatStatusFree), capacity,
	); err != nil {
		return 0, fmt.Errorf("failed to insert seats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return newCol, nil
}

// scanSeats は席の行セットをスライスに変換する。
func scanSeats(rows *sql.Rows) ([]*model.Seat, error) {
	seats := make([]*model.Seat, 0)
	for rows.Next() {
		seat := &model.Seat{}
		var area sql.NullString
		var owner sql.NullInt64
		var status string
		if err := rows.Scan(&seat.ID, &seat.Row, &seat.Col, &area, &status, &owner); err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seat.Status = model.SeatStatus(status)
		if area.Valid {
			seat.Area = &area.String
		}
		if owner.Valid {
			seat.OwnerID = &owner.Int64
		}
		seats = append(seats, seat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seats: %w", err)
	}
	return seats, nil
}

// classifyLockError はロック待ちタイムアウトとデッドロックを ErrSeatBusy に変換する。
// それ以外のエラーはそのままラップする。
func classifyLockError(msg string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqCodeLockNotAvailable, pqCodeDeadlockDetected:
			return fmt.Errorf("%s: %w", msg, ErrSeatBusy)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// compile-time interface check
var _ SeatRepository = (*PostgresSeatRepo)(nil)

// lockTimeoutSQL は SET LOCAL lock_timeout 文を返す。
// SET LOCAL はプレースホルダを受け付けないため整数のミリ秒値を埋め込む。
// '0ms' は無制限を意味するので1ms未満は1msに切り上げる。
func lockTimeoutSQL(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, ms)
}
