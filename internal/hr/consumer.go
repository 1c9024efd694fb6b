package hr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/konecta/erp/internal/eventbus"
	"github.com/konecta/erp/internal/events"
)

// UserProvisionedConsumer は認証サービスのUserProvisionedEventを処理し、
// 従業員へのログインアカウント紐付けと報酬アカウントの初期化指示を行う。
type UserProvisionedConsumer struct {
	employees EmployeeRepository
	publisher eventbus.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewUserProvisionedConsumer はUserProvisionedConsumerを生成する。
func NewUserProvisionedConsumer(employees EmployeeRepository, publisher eventbus.Publisher, logger *slog.Logger) *UserProvisionedConsumer {
	return &UserProvisionedConsumer{
		employees: employees,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Register は処理対象のルーティングキーをディスパッチャへ登録する。
func (c *UserProvisionedConsumer) Register(d *eventbus.Dispatcher) {
	d.Register(events.UserProvisionedKey, c.HandleUserProvisioned)
}

// HandleUserProvisioned はアカウント作成完了イベントを処理する。
// 従業員にログインアカウントIDを紐付け（最初の1回のみ）、
// EmployeeCompensationProvisionedEventを発行して財務サービスへつなぐ。
// 対象従業員が存在しない場合は警告ログを出して破棄する。
func (c *UserProvisionedConsumer) HandleUserProvisioned(ctx context.Context, body []byte) error {
	var ev events.UserProvisionedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("UserProvisionedEventのパースに失敗しました: %w", err)
	}
	if ev.EmployeeID == "" || ev.UserID == "" {
		return fmt.Errorf("UserProvisionedEventに必須フィールドがありません: employeeId=%q userId=%q", ev.EmployeeID, ev.UserID)
	}

	employee, err := c.employees.FindByID(ctx, ev.EmployeeID)
	if err != nil {
		return err
	}
	if employee == nil {
		c.logger.Warn("プロビジョニング完了イベントの対象従業員が見つかりません。破棄します",
			slog.String("employee_id", ev.EmployeeID),
			slog.String("user_id", ev.UserID))
		return nil
	}

	if employee.IdentityUserID == "" {
		if err := c.employees.LinkIdentity(ctx, ev.EmployeeID, ev.UserID); err != nil {
			return err
		}
		c.logger.Info("ログインアカウントを従業員に紐付けました",
			slog.String("employee_id", ev.EmployeeID),
			slog.String("user_id", ev.UserID))
		// 発行するイベントに最新の紐付けを反映する。
		employee, err = c.employees.FindByID(ctx, ev.EmployeeID)
		if err != nil {
			return err
		}
		if employee == nil {
			return fmt.Errorf("紐付け直後に従業員 %s を再取得できません", ev.EmployeeID)
		}
	} else {
		c.logger.Info("ログインアカウントは紐付け済みです",
			slog.String("employee_id", ev.EmployeeID),
			slog.String("user_id", employee.IdentityUserID))
	}

	return c.publisher.Publish(ctx, events.CompensationProvisionedKey, events.EmployeeCompensationProvisionedEvent{
		EmployeeID:     employee.ID,
		FullName:       employee.FullName,
		WorkEmail:      employee.WorkEmail,
		PhoneNumber:    employee.PhoneNumber,
		Position:       employee.Position,
		DepartmentID:   employee.DepartmentID,
		DepartmentName: employee.DepartmentName,
		BaseSalary:     employee.Salary,
		Currency:       "USD",
		EffectiveFrom:  c.now().UTC(),
	})
}
