package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/guestseat/internal/model"
)

const pqCodeUniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, name, phone, phone2, user_type, reserve_count, num_guests, is_coming,
	area, vegan, kids, meat, gluten_free, transport_from, transport_seats`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(s rowScanner) (*model.User, error) {
	user := &model.User{}
	var phone2, isComing, area, transportFrom sql.NullString
	err := s.Scan(
		&user.ID, &user.Name, &user.Phone, &phone2, &user.UserType,
		&user.ReserveCount, &user.NumGuests, &isComing, &area,
		&user.Vegan, &user.Kids, &user.Meat, &user.GlutenFree,
		&transportFrom, &user.TransportSeats,
	)
	if err != nil {
		return nil, err
	}
	if phone2.Valid {
		user.Phone2 = &phone2.String
	}
	if isComing.Valid {
		a := model.Attendance(isComing.String)
		user.IsComing = &a
	}
	if area.Valid {
		user.Area = &area.String
	}
	if transportFrom.Valid {
		user.TransportFrom = &transportFrom.String
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByPhone はphoneまたはphone2が一致するユーザーを取得する。見つからない場合はnilを返す。
// phoneでの一致をphone2での一致より優先する。
func (r *PostgresUserRepo) FindByPhone(ctx context.Context, phone string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE phone = $1 OR phone2 = $1
		 ORDER BY (phone = $1) DESC, id ASC
		 LIMIT 1`,
		phone,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by phone: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成し、採番されたIDを設定する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	var isComing *string
	if user.IsComing != nil {
		s := string(*user.IsComing)
		isComing = &s
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (name, phone, phone2, user_type, reserve_count, num_guests, is_coming,
		                    area, vegan, kids, meat, gluten_free, transport_from, transport_seats)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id`,
		user.Name, user.Phone, user.Phone2, user.UserType, user.ReserveCount, user.NumGuests, isComing,
		user.Area, user.Vegan, user.Kids, user.Meat, user.GlutenFree, user.TransportFrom, user.TransportSeats,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update は指定フィールドのみを更新し、更新後のユーザーを返す。見つからない場合はnilを返す。
// パッチが空の場合は現在の値をそのまま返す。
func (r *PostgresUserRepo) Update(ctx context.Context, id int64, patch *model.UserPatch) (*model.User, error) {
	if patch == nil || patch.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	sets, args := buildUserSetClause(patch)
	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE users SET %s, updated_at = now() WHERE id = $%d RETURNING `+userColumns,
		strings.Join(sets, ", "), len(args),
	)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicatePhone
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// buildUserSetClause はパッチの非nilフィールドから SET 句とパラメータを組み立てる。
// カラム名は固定のホワイトリストからのみ生成する。
func buildUserSetClause(patch *model.UserPatch) ([]string, []interface{}) {
	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Phone != nil {
		add("phone", *patch.Phone)
	}
	if patch.Phone2 != nil {
		add("phone2", *patch.Phone2)
	}
	if patch.UserType != nil {
		add("user_type", *patch.UserType)
	}
	if patch.ReserveCount != nil {
		add("reserve_count", *patch.ReserveCount)
	}
	if patch.NumGuests != nil {
		add("num_guests", *patch.NumGuests)
	}
	if patch.IsComing != nil {
		add("is_coming", string(*patch.IsComing))
	}
	if patch.Area != nil {
		add("area", *patch.Area)
	}
	if patch.Vegan != nil {
		add("vegan", *patch.Vegan)
	}
	if patch.Kids != nil {
		add("kids", *patch.Kids)
	}
	if patch.Meat != nil {
		add("meat", *patch.Meat)
	}
	if patch.GlutenFree != nil {
		add("gluten_free", *patch.GlutenFree)
	}
	if patch.TransportFrom != nil {
		add("transport_from", *patch.TransportFrom)
	}
	if patch.TransportSeats != nil {
		add("transport_seats", *patch.TransportSeats)
	}
	return sets, args
}

// Search は名前または電話番号の部分一致（大文字小文字を区別しない）でユーザーを検索する。
// queryが空の場合は全件をID順で返す。
func (r *PostgresUserRepo) Search(ctx context.Context, query string) ([]*model.User, error) {
	query = strings.TrimSpace(query)

	var rows *sql.Rows
	var err error
	if query == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+userColumns+` FROM users ORDER BY id ASC`,
		)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+userColumns+` FROM users
			 WHERE name ILIKE $1 ESCAPE '\' OR phone ILIKE $1 ESCAPE '\' OR phone2 ILIKE $1 ESCAPE '\'
			 ORDER BY id ASC`,
			"%"+escapeLike(query)+"%",
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// DistinctAreas はユーザーに設定されている空でないエリア名を重複なしで昇順に返す。
func (r *PostgresUserRepo) DistinctAreas(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT TRIM(area) AS a FROM users
		 WHERE area IS NOT NULL AND TRIM(area) <> ''
		 ORDER BY a ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list areas: %w", err)
	}
	defer rows.Close()

	areas := make([]string, 0)
	for rows.Next() {
		var area string
		if err := rows.Scan(&area); err != nil {
			return nil, fmt.Errorf("failed to scan area: %w", err)
		}
		areas = append(areas, area)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate areas: %w", err)
	}
	return areas, nil
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqCodeUniqueViolation
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
