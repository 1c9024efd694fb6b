// Package usermgmt はユーザー管理サービスのドメインロジックを提供する。
// 認証サービスのイベントからディレクトリを同期し、認可プロフィールAPIの
// バックエンドとなる。
package usermgmt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/konecta/erp/internal/model"
)

// ErrDirectoryUserNotFound は更新対象のディレクトリ行が存在しないことを示す。
var ErrDirectoryUserNotFound = errors.New("ディレクトリユーザーが存在しません")

// DirectoryUserRepository はディレクトリ行の永続化を抽象化する。
type DirectoryUserRepository interface {
	// FindByExternalUserID は外部ユーザーID（認証サービスのユーザーID）で検索する。
	// 論理削除済みの行も返す。該当なしは (nil, nil)。
	FindByExternalUserID(ctx context.Context, externalUserID string) (*model.DirectoryUser, error)
	// Upsert は外部ユーザーIDをキーに登録または更新する。
	Upsert(ctx context.Context, user *model.DirectoryUser) error
	// 以下の更新系は対象行が存在しない場合ErrDirectoryUserNotFoundを返す。
	SetInactive(ctx context.Context, externalUserID string, at time.Time) error
	SoftDelete(ctx context.Context, externalUserID, resignationRequestID string, at time.Time) error
	Terminate(ctx context.Context, externalUserID, reason string, at time.Time) error
}

// PostgresDirectoryUserRepository はDirectoryUserRepositoryのPostgreSQL実装。
type PostgresDirectoryUserRepository struct {
	db *sql.DB
}

var _ DirectoryUserRepository = (*PostgresDirectoryUserRepository)(nil)

// NewPostgresDirectoryUserRepository はPostgresDirectoryUserRepositoryを生成する。
func NewPostgresDirectoryUserRepository(db *sql.DB) *PostgresDirectoryUserRepository {
	return &PostgresDirectoryUserRepository{db: db}
}

// FindByExternalUserID は外部ユーザーIDでディレクトリ行を検索する。
func (r *PostgresDirectoryUserRepository) FindByExternalUserID(ctx context.Context, externalUserID string) (*model.DirectoryUser, error) {
	query := `
		SELECT id, external_user_id, email, full_name, primary_role, status, is_locked,
			is_deleted, deleted_at, resignation_request_id, termination_reason, created_at, updated_at
		FROM directory_users WHERE external_user_id = $1`
	var u model.DirectoryUser
	var deletedAt sql.NullTime
	var resignationID, terminationReason sql.NullString
	err := r.db.QueryRowContext(ctx, query, externalUserID).Scan(
		&u.ID, &u.ExternalUserID, &u.Email, &u.FullName, &u.PrimaryRole, &u.Status, &u.IsLocked,
		&u.IsDeleted, &deletedAt, &resignationID, &terminationReason, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ディレクトリユーザーの取得に失敗しました: %w", err)
	}
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	u.ResignationRequestID = resignationID.String
	u.TerminationReason = terminationReason.String
	return &u, nil
}

// Upsert は外部ユーザーIDをキーに登録または更新する。
// 再プロビジョニング時は削除フラグとロックを解除し、アクティブ状態に戻す。
func (r *PostgresDirectoryUserRepository) Upsert(ctx context.Context, user *model.DirectoryUser) error {
	query := `
		INSERT INTO directory_users (id, external_user_id, email, full_name, primary_role, status,
			is_locked, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, false, $7, $7)
		ON CONFLICT (external_user_id) DO UPDATE
		SET email = EXCLUDED.email, full_name = EXCLUDED.full_name,
			primary_role = EXCLUDED.primary_role, status = EXCLUDED.status,
			is_locked = false, is_deleted = false, deleted_at = NULL,
			resignation_request_id = NULL, termination_reason = NULL,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.ExternalUserID, user.Email, user.FullName, user.PrimaryRole,
		user.Status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ディレクトリユーザーの登録に失敗しました: %w", err)
	}
	return nil
}

// SetInactive はユーザーを非アクティブかつロック状態にする。
func (r *PostgresDirectoryUserRepository) SetInactive(ctx context.Context, externalUserID string, at time.Time) error {
	query := `
		UPDATE directory_users SET status = $2, is_locked = true, updated_at = $3
		WHERE external_user_id = $1`
	res, err := r.db.ExecContext(ctx, query, externalUserID, model.DirectoryStatusInactive, at)
	if err != nil {
		return fmt.Errorf("ディレクトリユーザーの無効化に失敗しました: %w", err)
	}
	return checkAffected(res)
}

// SoftDelete はユーザーを論理削除する。
func (r *PostgresDirectoryUserRepository) SoftDelete(ctx context.Context, externalUserID, resignationRequestID string, at time.Time) error {
	query := `
		UPDATE directory_users
		SET is_deleted = true, deleted_at = $3, status = $4,
			resignation_request_id = NULLIF($2, ''), updated_at = $3
		WHERE external_user_id = $1`
	res, err := r.db.ExecContext(ctx, query, externalUserID, resignationRequestID, at, model.DirectoryStatusInactive)
	if err != nil {
		return fmt.Errorf("ディレクトリユーザーの論理削除に失敗しました: %w", err)
	}
	return checkAffected(res)
}

// Terminate はユーザーを解雇状態（ロックつき）にし、理由を記録する。
func (r *PostgresDirectoryUserRepository) Terminate(ctx context.Context, externalUserID, reason string, at time.Time) error {
	query := `
		UPDATE directory_users
		SET status = $3, is_locked = true, termination_reason = NULLIF($2, ''), updated_at = $4
		WHERE external_user_id = $1`
	res, err := r.db.ExecContext(ctx, query, externalUserID, reason, model.DirectoryStatusTerminated, at)
	if err != nil {
		return fmt.Errorf("ディレクトリユーザーの解雇処理に失敗しました: %w", err)
	}
	return checkAffected(res)
}

// checkAffected は更新行数が0のときErrDirectoryUserNotFoundを返す。
func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return ErrDirectoryUserNotFound
	}
	return nil
}
