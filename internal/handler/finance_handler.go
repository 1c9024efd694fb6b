package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/konecta/erp/internal/authz"
	"github.com/konecta/erp/internal/metrics"
	"github.com/konecta/erp/internal/middleware"
	"github.com/konecta/erp/internal/model"
)

// CompensationReader は財務ハンドラーが必要とするリポジトリインターフェース。
type CompensationReader interface {
	FindByEmployeeID(ctx context.Context, employeeID string) (*model.CompensationAccount, error)
}

// FinanceHandler は財務サービスのHTTPハンドラー。
type FinanceHandler struct {
	accounts CompensationReader
}

// NewFinanceHandler はFinanceHandlerを生成する。
func NewFinanceHandler(accounts CompensationReader) *FinanceHandler {
	return &FinanceHandler{accounts: accounts}
}

// compensationResponse は報酬アカウントAPIのレスポンスボディ。
type compensationResponse struct {
	EmployeeID      string    `json:"employeeId"`
	FullName        string    `json:"fullName"`
	Position        string    `json:"position"`
	DepartmentName  string    `json:"departmentName"`
	BaseSalary      float64   `json:"baseSalary"`
	Currency        string    `json:"currency"`
	EffectiveFrom   time.Time `json:"effectiveFrom"`
	TotalBonuses    float64   `json:"totalBonuses"`
	TotalDeductions float64   `json:"totalDeductions"`
}

// Compensation は従業員の報酬アカウントを返す。
// GET /api/compensation/{employeeID}
func (h *FinanceHandler) Compensation(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")

	account, err := h.accounts.FindByEmployeeID(r.Context(), employeeID)
	if err != nil {
		writeInternalServerError(w)
		return
	}
	if account == nil {
		handleServiceError(w, model.NewCompensationNotFoundError(employeeID))
		return
	}

	writeJSONResponse(w, http.StatusOK, compensationResponse{
		EmployeeID:      account.EmployeeID,
		FullName:        account.FullName,
		Position:        account.Position,
		DepartmentName:  account.DepartmentName,
		BaseSalary:      account.BaseSalary,
		Currency:        account.Currency,
		EffectiveFrom:   account.EffectiveFrom,
		TotalBonuses:    account.TotalBonuses,
		TotalDeductions: account.TotalDeductions,
	})
}

// FinanceRouterDeps は財務サービスのルーター構成に必要な依存をまとめる。
type FinanceRouterDeps struct {
	Accounts  CompensationReader
	Validator middleware.TokenValidator
	Collector *metrics.Collector
	Logger    *slog.Logger
}

// NewFinanceRouter は財務サービスの全ルーティングを構成したハンドラーを返す。
func NewFinanceRouter(deps *FinanceRouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	h := NewFinanceHandler(deps.Accounts)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.Validator, deps.Logger))
		r.With(middleware.RequirePermission(authz.FinanceCompensationRead)).
			Get("/compensation/{employeeID}", h.Compensation)
	})
	r.Get("/health", healthHandler())
	r.Method(http.MethodGet, "/metrics", deps.Collector.Handler())

	return r
}
