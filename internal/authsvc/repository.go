// Package authsvc は認証サービスのドメインロジックを提供する。
// ログインアカウントの管理、従業員ライフサイクルイベントの処理、
// ログイン認証とトークン発行を担う。
package authsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/konecta/erp/internal/model"
)

// UserRepository はログインアカウントの永続化を抽象化する。
// 各Findは該当なしの場合 (nil, nil) を返す。
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.IdentityUser, error)
	FindByID(ctx context.Context, id string) (*model.IdentityUser, error)
	FindByEmployeeID(ctx context.Context, employeeID string) (*model.IdentityUser, error)
	Create(ctx context.Context, user *model.IdentityUser) error
	Update(ctx context.Context, user *model.IdentityUser) error
	Delete(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// PostgresUserRepository はUserRepositoryのPostgreSQL実装。
type PostgresUserRepository struct {
	db *sql.DB
}

var _ UserRepository = (*PostgresUserRepository)(nil)

// NewPostgresUserRepository はPostgresUserRepositoryを生成する。
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, email, username, full_name, employee_id, password_hash,
	email_confirmed, lockout_enabled, lockout_end, last_login_at, created_at, updated_at`

func scanUser(row *sql.Row) (*model.IdentityUser, error) {
	var u model.IdentityUser
	var employeeID sql.NullString
	var lockoutEnd, lastLoginAt sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &employeeID, &u.PasswordHash,
		&u.EmailConfirmed, &u.LockoutEnabled, &lockoutEnd, &lastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	u.EmployeeID = employeeID.String
	if lockoutEnd.Valid {
		u.LockoutEnd = &lockoutEnd.Time
	}
	if lastLoginAt.Valid {
		u.LastLoginAt = &lastLoginAt.Time
	}
	return &u, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。大文字小文字は区別しない。
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*model.IdentityUser, error) {
	query := `SELECT ` + userColumns + ` FROM identity_users WHERE lower(email) = lower($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// FindByID はIDでユーザーを検索する。
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (*model.IdentityUser, error) {
	query := `SELECT ` + userColumns + ` FROM identity_users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// FindByEmployeeID は紐付く従業員IDでユーザーを検索する。
func (r *PostgresUserRepository) FindByEmployeeID(ctx context.Context, employeeID string) (*model.IdentityUser, error) {
	query := `SELECT ` + userColumns + ` FROM identity_users WHERE employee_id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, employeeID))
}

// Create はユーザーを登録する。
func (r *PostgresUserRepository) Create(ctx context.Context, user *model.IdentityUser) error {
	query := `
		INSERT INTO identity_users (id, email, username, full_name, employee_id, password_hash,
			email_confirmed, lockout_enabled, lockout_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $10)`
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Username, user.FullName, user.EmployeeID, user.PasswordHash,
		user.EmailConfirmed, user.LockoutEnabled, user.LockoutEnd, now)
	if err != nil {
		return fmt.Errorf("ユーザーの登録に失敗しました: %w", err)
	}
	return nil
}

// Update はユーザーの状態を更新する。
func (r *PostgresUserRepository) Update(ctx context.Context, user *model.IdentityUser) error {
	query := `
		UPDATE identity_users
		SET email = $2, username = $3, full_name = $4, employee_id = NULLIF($5, ''),
			password_hash = $6, email_confirmed = $7, lockout_enabled = $8, lockout_end = $9,
			updated_at = $10
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Username, user.FullName, user.EmployeeID, user.PasswordHash,
		user.EmailConfirmed, user.LockoutEnabled, user.LockoutEnd, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ユーザー %s が見つかりません", user.ID)
	}
	return nil
}

// Delete はユーザーを物理削除する。退職承認時に呼ばれる。
func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM identity_users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	return nil
}

// UpdateLastLogin は最終ログイン時刻を記録する。
func (r *PostgresUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identity_users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("最終ログイン時刻の更新に失敗しました: %w", err)
	}
	return nil
}
