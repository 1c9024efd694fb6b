package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/konecta/erp/internal/events"
	"github.com/konecta/erp/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// mockCompensationRepository はCompensationRepositoryのインメモリ実装。
type mockCompensationRepository struct {
	mu          sync.Mutex
	accounts    map[string]*model.CompensationAccount
	adjustments []*model.CompensationAdjustment
}

func newMockCompensationRepository() *mockCompensationRepository {
	return &mockCompensationRepository{accounts: make(map[string]*model.CompensationAccount)}
}

func (m *mockCompensationRepository) FindByEmployeeID(ctx context.Context, employeeID string) (*model.CompensationAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[employeeID]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (m *mockCompensationRepository) Upsert(ctx context.Context, account *model.CompensationAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.accounts[account.EmployeeID]; ok {
		bonuses, deductions := existing.TotalBonuses, existing.TotalDeductions
		copied := *account
		copied.TotalBonuses, copied.TotalDeductions = bonuses, deductions
		m.accounts[account.EmployeeID] = &copied
		return nil
	}
	copied := *account
	m.accounts[account.EmployeeID] = &copied
	return nil
}

func (m *mockCompensationRepository) AddAdjustment(ctx context.Context, adjustment *model.CompensationAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[adjustment.EmployeeID]
	if !ok {
		return fmt.Errorf("報酬アカウント %s が見つかりません", adjustment.EmployeeID)
	}
	if adjustment.Kind == "deduction" {
		account.TotalDeductions += adjustment.Amount
	} else {
		account.TotalBonuses += adjustment.Amount
	}
	copied := *adjustment
	m.adjustments = append(m.adjustments, &copied)
	return nil
}

func provisionedBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(events.EmployeeCompensationProvisionedEvent{
		EmployeeID:     "emp-1",
		FullName:       "山田 太郎",
		WorkEmail:      "taro.yamada@example.com",
		Position:       "エンジニア",
		DepartmentID:   "dep-1",
		DepartmentName: "開発部",
		BaseSalary:     650000,
		Currency:       "USD",
		EffectiveFrom:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("イベントのシリアライズに失敗: %v", err)
	}
	return body
}

func TestHandleProvisioned_UpsertIsIdempotent(t *testing.T) {
	repo := newMockCompensationRepository()
	consumer := NewCompensationEventsConsumer(repo, testLogger())

	body := provisionedBody(t)
	for i := 0; i < 3; i++ {
		if err := consumer.HandleProvisioned(context.Background(), body); err != nil {
			t.Fatalf("%d 回目の配送がエラーを返した: %v", i+1, err)
		}
	}

	account, _ := repo.FindByEmployeeID(context.Background(), "emp-1")
	if account == nil {
		t.Fatal("報酬アカウントが作成されていない")
	}
	if account.BaseSalary != 650000 || account.Currency != "USD" {
		t.Errorf("アカウントが不正: %+v", account)
	}
	if len(repo.accounts) != 1 {
		t.Errorf("再配送でアカウントが重複した: %d 件", len(repo.accounts))
	}
}

func TestHandleProvisioned_DefaultsCurrencyAndEffectiveFrom(t *testing.T) {
	repo := newMockCompensationRepository()
	consumer := NewCompensationEventsConsumer(repo, testLogger())

	body, _ := json.Marshal(events.EmployeeCompensationProvisionedEvent{
		EmployeeID: "emp-1",
		BaseSalary: 500000,
	})
	if err := consumer.HandleProvisioned(context.Background(), body); err != nil {
		t.Fatalf("HandleProvisionedがエラーを返した: %v", err)
	}

	account, _ := repo.FindByEmployeeID(context.Background(), "emp-1")
	if account.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", account.Currency)
	}
	if account.EffectiveFrom.IsZero() {
		t.Error("EffectiveFromが補完されていない")
	}
}

func TestHandleBonusesAndDeductions_Accumulate(t *testing.T) {
	repo := newMockCompensationRepository()
	consumer := NewCompensationEventsConsumer(repo, testLogger())
	ctx := context.Background()

	if err := consumer.HandleProvisioned(ctx, provisionedBody(t)); err != nil {
		t.Fatalf("準備に失敗: %v", err)
	}

	bonuses, _ := json.Marshal(events.EmployeeCompensationBonusesIssuedEvent{
		EmployeeID: "emp-1",
		Bonuses: []events.CompensationAdjustmentItem{
			{Type: "業績賞与", Amount: 100000, AppliedOn: time.Now().UTC(), Period: "2026H1"},
			{Type: "特別賞与", Amount: 50000, AppliedOn: time.Now().UTC()},
		},
		IssuedAt: time.Now().UTC(),
		IssuedBy: "finance-manager",
	})
	if err := consumer.HandleBonuses(ctx, bonuses); err != nil {
		t.Fatalf("HandleBonusesがエラーを返した: %v", err)
	}

	deductions, _ := json.Marshal(events.EmployeeCompensationDeductionsIssuedEvent{
		EmployeeID: "emp-1",
		Deductions: []events.CompensationAdjustmentItem{
			{Type: "社会保険", Amount: 30000, AppliedOn: time.Now().UTC()},
		},
		IssuedAt: time.Now().UTC(),
	})
	if err := consumer.HandleDeductions(ctx, deductions); err != nil {
		t.Fatalf("HandleDeductionsがエラーを返した: %v", err)
	}

	account, _ := repo.FindByEmployeeID(ctx, "emp-1")
	if account.TotalBonuses != 150000 {
		t.Errorf("TotalBonuses = %f, want 150000", account.TotalBonuses)
	}
	if account.TotalDeductions != 30000 {
		t.Errorf("TotalDeductions = %f, want 30000", account.TotalDeductions)
	}
	if len(repo.adjustments) != 3 {
		t.Errorf("明細数 = %d, want 3", len(repo.adjustments))
	}
}

func TestHandleBonuses_MissingAccountIsDiscarded(t *testing.T) {
	repo := newMockCompensationRepository()
	consumer := NewCompensationEventsConsumer(repo, testLogger())

	bonuses, _ := json.Marshal(events.EmployeeCompensationBonusesIssuedEvent{
		EmployeeID: "ghost",
		Bonuses:    []events.CompensationAdjustmentItem{{Type: "賞与", Amount: 100000}},
	})
	if err := consumer.HandleBonuses(context.Background(), bonuses); err != nil {
		t.Errorf("アカウント未作成でエラーが返った（破棄すべき）: %v", err)
	}
	if len(repo.adjustments) != 0 {
		t.Errorf("アカウント未作成で明細が記録された: %d 件", len(repo.adjustments))
	}
}
