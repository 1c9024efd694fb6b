package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/konecta/erp/internal/authz"
	"github.com/konecta/erp/internal/hr"
	"github.com/konecta/erp/internal/metrics"
	"github.com/konecta/erp/internal/middleware"
	"github.com/konecta/erp/internal/model"
)

// LifecycleServiceInterface はHRハンドラーが必要とするサービスインターフェース。
type LifecycleServiceInterface interface {
	Hire(ctx context.Context, req hr.HireRequest) (*model.Employee, error)
	Terminate(ctx context.Context, employeeID, reason string, eligibleForRehire bool) error
	ApproveResignation(ctx context.Context, resignationID, employeeID, reason string, effectiveDate time.Time) error
	MarkExited(ctx context.Context, employeeID, reason, exitStatus string, exitDate time.Time) error
}

// HRHandler はHRサービスのHTTPハンドラー。
type HRHandler struct {
	lifecycle LifecycleServiceInterface
}

// NewHRHandler はHRHandlerを生成する。
func NewHRHandler(lifecycle LifecycleServiceInterface) *HRHandler {
	return &HRHandler{lifecycle: lifecycle}
}

// employeeResponse は従業員APIのレスポンスボディ。
type employeeResponse struct {
	ID             string    `json:"id"`
	FullName       string    `json:"fullName"`
	WorkEmail      string    `json:"workEmail"`
	Position       string    `json:"position"`
	DepartmentID   string    `json:"departmentId"`
	DepartmentName string    `json:"departmentName"`
	HireDate       time.Time `json:"hireDate"`
	Status         string    `json:"status"`
}

// Hire は従業員を登録する。
// POST /api/employees
func (h *HRHandler) Hire(w http.ResponseWriter, r *http.Request) {
	var req hr.HireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	employee, err := h.lifecycle.Hire(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, employeeResponse{
		ID:             employee.ID,
		FullName:       employee.FullName,
		WorkEmail:      employee.WorkEmail,
		Position:       employee.Position,
		DepartmentID:   employee.DepartmentID,
		DepartmentName: employee.DepartmentName,
		HireDate:       employee.HireDate,
		Status:         string(employee.Status),
	})
}

// terminateRequest は解雇APIのリクエストボディ。
type terminateRequest struct {
	Reason            string `json:"reason"`
	EligibleForRehire bool   `json:"eligibleForRehire"`
}

// Terminate は従業員を解雇する。
// POST /api/employees/{employeeID}/terminate
func (h *HRHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")

	var req terminateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディが不正です"))
		return
	}
	if req.Reason == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("解雇理由は必須です"))
		return
	}

	if err := h.lifecycle.Terminate(r.Context(), employeeID, req.Reason, req.EligibleForRehire); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// approveResignationRequest は退職承認APIのリクエストボディ。
type approveResignationRequest struct {
	EmployeeID    string    `json:"employeeId"`
	Reason        string    `json:"reason"`
	EffectiveDate time.Time `json:"effectiveDate"`
}

// ApproveResignation は退職申請を承認する。
// POST /api/resignations/{resignationID}/approve
func (h *HRHandler) ApproveResignation(w http.ResponseWriter, r *http.Request) {
	resignationID := chi.URLParam(r, "resignationID")

	var req approveResignationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディが不正です"))
		return
	}
	if req.EmployeeID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("employeeIdは必須です"))
		return
	}
	if req.EffectiveDate.IsZero() {
		req.EffectiveDate = time.Now().UTC()
	}

	if err := h.lifecycle.ApproveResignation(r.Context(), resignationID, req.EmployeeID, req.Reason, req.EffectiveDate); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// markExitedRequest は在籍終了APIのリクエストボディ。
type markExitedRequest struct {
	Reason     string    `json:"reason"`
	ExitStatus string    `json:"exitStatus"`
	ExitDate   time.Time `json:"exitDate"`
}

// MarkExited は在籍終了を記録する。
// POST /api/employees/{employeeID}/exit
func (h *HRHandler) MarkExited(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")

	var req markExitedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディが不正です"))
		return
	}
	if req.ExitDate.IsZero() {
		req.ExitDate = time.Now().UTC()
	}
	if req.ExitStatus == "" {
		req.ExitStatus = "exited"
	}

	if err := h.lifecycle.MarkExited(r.Context(), employeeID, req.Reason, req.ExitStatus, req.ExitDate); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HRRouterDeps はHRサービスのルーター構成に必要な依存をまとめる。
type HRRouterDeps struct {
	Lifecycle LifecycleServiceInterface
	Validator middleware.TokenValidator
	Collector *metrics.Collector
	Logger    *slog.Logger
}

// NewHRRouter はHRサービスの全ルーティングを構成したハンドラーを返す。
// 業務APIはBearer認証と権限チェックで保護する。
func NewHRRouter(deps *HRRouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	h := NewHRHandler(deps.Lifecycle)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.Validator, deps.Logger))

		r.Route("/employees", func(r chi.Router) {
			r.With(middleware.RequirePermission(authz.HREmployeesManage)).Post("/", h.Hire)
			r.With(middleware.RequirePermission(authz.HREmployeesManage)).Post("/{employeeID}/terminate", h.Terminate)
			r.With(middleware.RequirePermission(authz.HREmployeesManage)).Post("/{employeeID}/exit", h.MarkExited)
		})
		r.Route("/resignations", func(r chi.Router) {
			r.With(middleware.RequirePermission(authz.HRResignationsManage)).Post("/{resignationID}/approve", h.ApproveResignation)
		})
	})
	r.Get("/health", healthHandler())
	r.Method(http.MethodGet, "/metrics", deps.Collector.Handler())

	return r
}
