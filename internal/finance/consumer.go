package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/konecta/erp/internal/eventbus"
	"github.com/konecta/erp/internal/events"
	"github.com/konecta/erp/internal/model"
)

// CompensationEventsConsumer はHRサービスの報酬イベントを処理する。
type CompensationEventsConsumer struct {
	accounts CompensationRepository
	logger   *slog.Logger
}

// NewCompensationEventsConsumer はCompensationEventsConsumerを生成する。
func NewCompensationEventsConsumer(accounts CompensationRepository, logger *slog.Logger) *CompensationEventsConsumer {
	return &CompensationEventsConsumer{accounts: accounts, logger: logger}
}

// Register は処理対象のルーティングキーをディスパッチャへ登録する。
func (c *CompensationEventsConsumer) Register(d *eventbus.Dispatcher) {
	d.Register(events.CompensationProvisionedKey, c.HandleProvisioned)
	d.Register(events.CompensationBonusesKey, c.HandleBonuses)
	d.Register(events.CompensationDeductionsKey, c.HandleDeductions)
}

// HandleProvisioned は報酬アカウントを従業員IDキーでUPSERTする。再配送は冪等。
func (c *CompensationEventsConsumer) HandleProvisioned(ctx context.Context, body []byte) error {
	var ev events.EmployeeCompensationProvisionedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("EmployeeCompensationProvisionedEventのパースに失敗しました: %w", err)
	}
	if ev.EmployeeID == "" {
		return fmt.Errorf("EmployeeCompensationProvisionedEventにemployeeIdがありません")
	}

	currency := ev.Currency
	if currency == "" {
		currency = "USD"
	}
	effectiveFrom := ev.EffectiveFrom
	if effectiveFrom.IsZero() {
		effectiveFrom = time.Now().UTC()
	}

	account := &model.CompensationAccount{
		EmployeeID:     ev.EmployeeID,
		FullName:       ev.FullName,
		WorkEmail:      ev.WorkEmail,
		PhoneNumber:    ev.PhoneNumber,
		Position:       ev.Position,
		DepartmentID:   ev.DepartmentID,
		DepartmentName: ev.DepartmentName,
		BaseSalary:     ev.BaseSalary,
		Currency:       currency,
		EffectiveFrom:  effectiveFrom,
	}
	if err := c.accounts.Upsert(ctx, account); err != nil {
		return err
	}
	c.logger.Info("報酬アカウントを初期化しました",
		slog.String("employee_id", ev.EmployeeID),
		slog.String("currency", currency))
	return nil
}

// HandleBonuses は賞与イベントの明細を積算する。
// 報酬アカウント未作成の従業員宛ては警告ログを出して破棄する。
func (c *CompensationEventsConsumer) HandleBonuses(ctx context.Context, body []byte) error {
	var ev events.EmployeeCompensationBonusesIssuedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("EmployeeCompensationBonusesIssuedEventのパースに失敗しました: %w", err)
	}
	return c.applyAdjustments(ctx, ev.EmployeeID, "bonus", ev.Bonuses, ev.IssuedBy)
}

// HandleDeductions は控除イベントの明細を積算する。
func (c *CompensationEventsConsumer) HandleDeductions(ctx context.Context, body []byte) error {
	var ev events.EmployeeCompensationDeductionsIssuedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("EmployeeCompensationDeductionsIssuedEventのパースに失敗しました: %w", err)
	}
	return c.applyAdjustments(ctx, ev.EmployeeID, "deduction", ev.Deductions, ev.IssuedBy)
}

func (c *CompensationEventsConsumer) applyAdjustments(ctx context.Context, employeeID, kind string, items []events.CompensationAdjustmentItem, issuedBy string) error {
	if employeeID == "" {
		return fmt.Errorf("%sイベントにemployeeIdがありません", kind)
	}

	account, err := c.accounts.FindByEmployeeID(ctx, employeeID)
	if err != nil {
		return err
	}
	if account == nil {
		c.logger.Warn("報酬アカウント未作成の従業員宛てのイベントを破棄します",
			slog.String("employee_id", employeeID),
			slog.String("kind", kind))
		return nil
	}

	for _, item := range items {
		adjustment := &model.CompensationAdjustment{
			ID:         uuid.NewString(),
			EmployeeID: employeeID,
			Kind:       kind,
			Type:       item.Type,
			Amount:     item.Amount,
			AppliedOn:  item.AppliedOn,
			Period:     item.Period,
			Reference:  item.Reference,
			IssuedBy:   issuedBy,
		}
		if err := c.accounts.AddAdjustment(ctx, adjustment); err != nil {
			return err
		}
	}

	c.logger.Info("報酬の調整を積算しました",
		slog.String("employee_id", employeeID),
		slog.String("kind", kind),
		slog.Int("items", len(items)))
	return nil
}
