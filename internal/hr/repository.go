// Package hr はHRサービスのドメインロジックを提供する。
// 従業員レコードの管理、ライフサイクルイベントの発行、
// アカウントプロビジョニング完了イベントの処理を担う。
package hr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/konecta/erp/internal/model"
)

// EmployeeRepository は従業員レコードの永続化を抽象化する。
// 各Findは該当なしの場合 (nil, nil) を返す。
type EmployeeRepository interface {
	Create(ctx context.Context, employee *model.Employee) error
	FindByID(ctx context.Context, id string) (*model.Employee, error)
	FindByWorkEmail(ctx context.Context, email string) (*model.Employee, error)
	// LinkIdentity は従業員にログインアカウントIDを紐付ける。
	// 未設定の場合のみ更新し、設定済み（同一値含む）の場合は何もしない（冪等）。
	LinkIdentity(ctx context.Context, employeeID, identityUserID string) error
	UpdateStatus(ctx context.Context, employeeID string, status model.EmployeeStatus) error
}

// PostgresEmployeeRepository はEmployeeRepositoryのPostgreSQL実装。
type PostgresEmployeeRepository struct {
	db *sql.DB
}

var _ EmployeeRepository = (*PostgresEmployeeRepository)(nil)

// NewPostgresEmployeeRepository はPostgresEmployeeRepositoryを生成する。
func NewPostgresEmployeeRepository(db *sql.DB) *PostgresEmployeeRepository {
	return &PostgresEmployeeRepository{db: db}
}

const employeeColumns = `id, full_name, work_email, personal_email, phone_number, position,
	department_id, department_name, salary, hire_date, identity_user_id, status, created_at, updated_at`

func scanEmployee(row *sql.Row) (*model.Employee, error) {
	var e model.Employee
	var identityUserID sql.NullString
	err := row.Scan(&e.ID, &e.FullName, &e.WorkEmail, &e.PersonalEmail, &e.PhoneNumber, &e.Position,
		&e.DepartmentID, &e.DepartmentName, &e.Salary, &e.HireDate, &identityUserID, &e.Status,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("従業員の取得に失敗しました: %w", err)
	}
	e.IdentityUserID = identityUserID.String
	return &e, nil
}

// Create は従業員を登録する。
func (r *PostgresEmployeeRepository) Create(ctx context.Context, employee *model.Employee) error {
	query := `
		INSERT INTO employees (id, full_name, work_email, personal_email, phone_number, position,
			department_id, department_name, salary, hire_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		employee.ID, employee.FullName, employee.WorkEmail, employee.PersonalEmail,
		employee.PhoneNumber, employee.Position, employee.DepartmentID, employee.DepartmentName,
		employee.Salary, employee.HireDate, employee.Status, now)
	if err != nil {
		return fmt.Errorf("従業員の登録に失敗しました: %w", err)
	}
	return nil
}

// FindByID はIDで従業員を検索する。
func (r *PostgresEmployeeRepository) FindByID(ctx context.Context, id string) (*model.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`
	return scanEmployee(r.db.QueryRowContext(ctx, query, id))
}

// FindByWorkEmail は勤務先メールアドレスで従業員を検索する。大文字小文字は区別しない。
func (r *PostgresEmployeeRepository) FindByWorkEmail(ctx context.Context, email string) (*model.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE lower(work_email) = lower($1)`
	return scanEmployee(r.db.QueryRowContext(ctx, query, email))
}

// LinkIdentity はidentity_user_idが未設定の場合のみ紐付けを設定する。
func (r *PostgresEmployeeRepository) LinkIdentity(ctx context.Context, employeeID, identityUserID string) error {
	query := `
		UPDATE employees SET identity_user_id = $2, updated_at = $3
		WHERE id = $1 AND identity_user_id IS NULL`
	_, err := r.db.ExecContext(ctx, query, employeeID, identityUserID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ログインアカウントの紐付けに失敗しました: %w", err)
	}
	return nil
}

// UpdateStatus は従業員の在籍状態を更新する。
func (r *PostgresEmployeeRepository) UpdateStatus(ctx context.Context, employeeID string, status model.EmployeeStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE employees SET status = $2, updated_at = $3 WHERE id = $1`,
		employeeID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("在籍状態の更新に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("従業員 %s が見つかりません", employeeID)
	}
	return nil
}
