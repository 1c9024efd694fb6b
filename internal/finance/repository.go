// Package finance は財務サービスのドメインロジックを提供する。
// 報酬アカウントの初期化と賞与・控除の積算をイベント駆動で行う。
package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/konecta/erp/internal/model"
)

// CompensationRepository は報酬アカウントの永続化を抽象化する。
type CompensationRepository interface {
	// FindByEmployeeID は従業員IDで報酬アカウントを検索する。該当なしは (nil, nil)。
	FindByEmployeeID(ctx context.Context, employeeID string) (*model.CompensationAccount, error)
	// Upsert は従業員IDをキーに登録または更新する。積算済みの賞与・控除は保持する。
	Upsert(ctx context.Context, account *model.CompensationAccount) error
	// AddAdjustment は明細を記録し、該当アカウントの積算額を加算する。
	AddAdjustment(ctx context.Context, adjustment *model.CompensationAdjustment) error
}

// PostgresCompensationRepository はCompensationRepositoryのPostgreSQL実装。
type PostgresCompensationRepository struct {
	db *sql.DB
}

var _ CompensationRepository = (*PostgresCompensationRepository)(nil)

// NewPostgresCompensationRepository はPostgresCompensationRepositoryを生成する。
func NewPostgresCompensationRepository(db *sql.DB) *PostgresCompensationRepository {
	return &PostgresCompensationRepository{db: db}
}

// FindByEmployeeID は従業員IDで報酬アカウントを検索する。
func (r *PostgresCompensationRepository) FindByEmployeeID(ctx context.Context, employeeID string) (*model.CompensationAccount, error) {
	query := `
		SELECT employee_id, full_name, work_email, phone_number, position, department_id,
			department_name, base_salary, currency, effective_from, total_bonuses,
			total_deductions, created_at, updated_at
		FROM compensation_accounts WHERE employee_id = $1`
	var a model.CompensationAccount
	err := r.db.QueryRowContext(ctx, query, employeeID).Scan(
		&a.EmployeeID, &a.FullName, &a.WorkEmail, &a.PhoneNumber, &a.Position, &a.DepartmentID,
		&a.DepartmentName, &a.BaseSalary, &a.Currency, &a.EffectiveFrom, &a.TotalBonuses,
		&a.TotalDeductions, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("報酬アカウントの取得に失敗しました: %w", err)
	}
	return &a, nil
}

// Upsert は従業員IDをキーに報酬アカウントを登録または更新する。
func (r *PostgresCompensationRepository) Upsert(ctx context.Context, account *model.CompensationAccount) error {
	query := `
		INSERT INTO compensation_accounts (employee_id, full_name, work_email, phone_number,
			position, department_id, department_name, base_salary, currency, effective_from,
			total_bonuses, total_deductions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, 0, $11, $11)
		ON CONFLICT (employee_id) DO UPDATE
		SET full_name = EXCLUDED.full_name, work_email = EXCLUDED.work_email,
			phone_number = EXCLUDED.phone_number, position = EXCLUDED.position,
			department_id = EXCLUDED.department_id, department_name = EXCLUDED.department_name,
			base_salary = EXCLUDED.base_salary, currency = EXCLUDED.currency,
			effective_from = EXCLUDED.effective_from, updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		account.EmployeeID, account.FullName, account.WorkEmail, account.PhoneNumber,
		account.Position, account.DepartmentID, account.DepartmentName, account.BaseSalary,
		account.Currency, account.EffectiveFrom, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("報酬アカウントの登録に失敗しました: %w", err)
	}
	return nil
}

// AddAdjustment は明細行を記録し、積算額を更新する。同一トランザクションで行う。
func (r *PostgresCompensationRepository) AddAdjustment(ctx context.Context, adjustment *model.CompensationAdjustment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO compensation_adjustments (id, employee_id, kind, type, amount, applied_on,
			period, reference, issued_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10)`
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, insert,
		adjustment.ID, adjustment.EmployeeID, adjustment.Kind, adjustment.Type,
		adjustment.Amount, adjustment.AppliedOn, adjustment.Period, adjustment.Reference,
		adjustment.IssuedBy, now)
	if err != nil {
		return fmt.Errorf("明細の記録に失敗しました: %w", err)
	}

	column := "total_bonuses"
	if adjustment.Kind == "deduction" {
		column = "total_deductions"
	}
	update := fmt.Sprintf(
		`UPDATE compensation_accounts SET %s = %s + $2, updated_at = $3 WHERE employee_id = $1`,
		column, column)
	result, err := tx.ExecContext(ctx, update, adjustment.EmployeeID, adjustment.Amount, now)
	if err != nil {
		return fmt.Errorf("積算額の更新に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("報酬アカウント %s が見つかりません", adjustment.EmployeeID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}
