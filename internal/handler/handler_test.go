package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/konecta/erp/internal/authsvc"
	"github.com/konecta/erp/internal/hr"
	"github.com/konecta/erp/internal/keys"
	"github.com/konecta/erp/internal/metrics"
	"github.com/konecta/erp/internal/middleware"
	"github.com/konecta/erp/internal/model"
	"github.com/konecta/erp/internal/token"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// --- 認証サービス ---

type stubLoginService struct {
	result *authsvc.LoginResult
	err    error
}

func (s stubLoginService) Login(ctx context.Context, email, password string) (*authsvc.LoginResult, error) {
	return s.result, s.err
}

type stubJWKS struct{}

func (stubJWKS) JWKSDoc() keys.JWKSDocument {
	return keys.JWKSDocument{Keys: []keys.JWK{{Kty: "RSA", Kid: "k1", Use: "sig", Alg: "RS256", N: "abc", E: "AQAB"}}}
}

func newAuthRouter(login LoginServiceInterface) (http.Handler, *middleware.LoginRateLimiter) {
	rl := middleware.NewLoginRateLimiter(100)
	return NewAuthRouter(&AuthRouterDeps{
		Login:       login,
		JWKS:        stubJWKS{},
		RateLimiter: rl,
		Collector:   metrics.NewCollector(),
		Logger:      testLogger(),
	}), rl
}

func TestAuthRouter_LoginSuccess(t *testing.T) {
	router, rl := newAuthRouter(stubLoginService{result: &authsvc.LoginResult{
		AccessToken: "signed-token",
		ExpiresAt:   time.Now().Add(time.Hour),
		FullName:    "山田 太郎",
		Email:       "taro.yamada@example.com",
		Roles:       []string{"Employee"},
	}})
	defer rl.Stop()

	body := strings.NewReader(`{"email":"taro.yamada@example.com","password":"secret"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Result().StatusCode, w.Body.String())
	}
	var resp map[string]any
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["accessToken"] != "signed-token" || resp["tokenType"] != "Bearer" {
		t.Errorf("レスポンスが不正: %v", resp)
	}
}

func TestAuthRouter_LoginFailures(t *testing.T) {
	tests := []struct {
		name       string
		service    LoginServiceInterface
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "資格情報が不正",
			service:    stubLoginService{err: model.NewInvalidCredentialsError()},
			body:       `{"email":"a@example.com","password":"wrong"}`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   model.ErrCodeInvalidCredentials,
		},
		{
			name:       "アカウントロック中",
			service:    stubLoginService{err: model.NewAccountLockedError()},
			body:       `{"email":"a@example.com","password":"secret"}`,
			wantStatus: http.StatusLocked,
			wantCode:   model.ErrCodeAccountLocked,
		},
		{
			name:       "ボディが不正",
			service:    stubLoginService{},
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeValidationFailed,
		},
		{
			name:       "必須フィールド欠落",
			service:    stubLoginService{},
			body:       `{"email":"a@example.com"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeValidationFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, rl := newAuthRouter(tt.service)
			defer rl.Stop()

			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
			var resp ErrorResponseBody
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestAuthRouter_JWKS(t *testing.T) {
	router, rl := newAuthRouter(stubLoginService{})
	defer rl.Stop()

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Result().StatusCode)
	}
	var doc keys.JWKSDocument
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatalf("JWKSのパースに失敗: %v", err)
	}
	if len(doc.Keys) != 1 || doc.Keys[0].Kid != "k1" {
		t.Errorf("JWKSが不正: %+v", doc)
	}
}

// --- ユーザー管理サービス ---

type stubProfileService struct {
	profile *model.AuthorizationProfile
}

func (s stubProfileService) Authorizations(ctx context.Context, externalUserID string) (*model.AuthorizationProfile, error) {
	return s.profile, nil
}

func TestUserMgmtRouter_Authorizations(t *testing.T) {
	router := NewUserMgmtRouter(&UserMgmtRouterDeps{
		Profiles: stubProfileService{profile: &model.AuthorizationProfile{
			Roles:       []string{"HrAdmin"},
			Permissions: []string{"hr.employees.manage"},
		}},
		ServiceToken: "shared-secret",
		Collector:    metrics.NewCollector(),
		Logger:       testLogger(),
	})

	t.Run("正しいサービストークン", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/user-1/authorizations", nil)
		req.Header.Set(middleware.ServiceTokenHeader, "shared-secret")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Result().StatusCode)
		}
		var resp authorizationsResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if len(resp.Roles) != 1 || resp.Roles[0] != "HrAdmin" {
			t.Errorf("レスポンスが不正: %+v", resp)
		}
	})

	t.Run("トークンなしは401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/user-1/authorizations", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Result().StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Result().StatusCode)
		}
	})
}

func TestUserMgmtRouter_ProfileNotFound(t *testing.T) {
	router := NewUserMgmtRouter(&UserMgmtRouterDeps{
		Profiles:     stubProfileService{},
		ServiceToken: "shared-secret",
		Collector:    metrics.NewCollector(),
		Logger:       testLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/users/ghost/authorizations", nil)
	req.Header.Set(middleware.ServiceTokenHeader, "shared-secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Result().StatusCode)
	}
}

// --- HRサービス ---

// stubValidator はBearerトークン"valid-token"に対して固定の主体を返す。
type stubValidator struct {
	principal *token.Principal
}

func (s stubValidator) Validate(tokenString string) *token.Principal {
	if tokenString == "valid-token" {
		return s.principal
	}
	return nil
}

type stubLifecycleService struct {
	hireResult *model.Employee
	hireErr    error
}

func (s stubLifecycleService) Hire(ctx context.Context, req hr.HireRequest) (*model.Employee, error) {
	return s.hireResult, s.hireErr
}
func (s stubLifecycleService) Terminate(ctx context.Context, employeeID, reason string, eligibleForRehire bool) error {
	return nil
}
func (s stubLifecycleService) ApproveResignation(ctx context.Context, resignationID, employeeID, reason string, effectiveDate time.Time) error {
	return nil
}
func (s stubLifecycleService) MarkExited(ctx context.Context, employeeID, reason, exitStatus string, exitDate time.Time) error {
	return nil
}

func newHRRouter(lifecycle LifecycleServiceInterface, permissions []string) http.Handler {
	return NewHRRouter(&HRRouterDeps{
		Lifecycle: lifecycle,
		Validator: stubValidator{principal: &token.Principal{
			UserID:      "user-1",
			Permissions: permissions,
		}},
		Collector: metrics.NewCollector(),
		Logger:    testLogger(),
	})
}

func TestHRRouter_HireRequiresPermission(t *testing.T) {
	employee := &model.Employee{
		ID:        "emp-1",
		FullName:  "山田 太郎",
		WorkEmail: "taro.yamada@example.com",
		Status:    model.EmployeeStatusActive,
	}

	t.Run("権限ありは201", func(t *testing.T) {
		router := newHRRouter(stubLifecycleService{hireResult: employee}, []string{"hr.employees.manage"})
		body := strings.NewReader(`{"fullName":"山田 太郎","workEmail":"taro.yamada@example.com","hireDate":"2026-04-01T00:00:00Z"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/employees/", body)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Result().StatusCode != http.StatusCreated {
			t.Errorf("status = %d, want 201: %s", w.Result().StatusCode, w.Body.String())
		}
	})

	t.Run("権限なしは403", func(t *testing.T) {
		router := newHRRouter(stubLifecycleService{hireResult: employee}, []string{"hr.employees.read"})
		req := httptest.NewRequest(http.MethodPost, "/api/employees/", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Result().StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want 403", w.Result().StatusCode)
		}
	})

	t.Run("トークンなしは401", func(t *testing.T) {
		router := newHRRouter(stubLifecycleService{hireResult: employee}, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/employees/", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Result().StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Result().StatusCode)
		}
	})
}

func TestHRRouter_DuplicateEmailConflict(t *testing.T) {
	router := newHRRouter(stubLifecycleService{
		hireErr: model.NewDuplicateWorkEmailError("taro.yamada@example.com"),
	}, []string{"hr.employees.manage"})

	body := strings.NewReader(`{"fullName":"山田 太郎","workEmail":"taro.yamada@example.com","hireDate":"2026-04-01T00:00:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/employees/", body)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Result().StatusCode)
	}
}

// --- 財務サービス ---

type stubCompensationReader struct {
	account *model.CompensationAccount
}

func (s stubCompensationReader) FindByEmployeeID(ctx context.Context, employeeID string) (*model.CompensationAccount, error) {
	return s.account, nil
}

func TestFinanceRouter_Compensation(t *testing.T) {
	newRouter := func(account *model.CompensationAccount) http.Handler {
		return NewFinanceRouter(&FinanceRouterDeps{
			Accounts: stubCompensationReader{account: account},
			Validator: stubValidator{principal: &token.Principal{
				UserID:      "user-1",
				Permissions: []string{"finance.compensation.read"},
			}},
			Collector: metrics.NewCollector(),
			Logger:    testLogger(),
		})
	}

	t.Run("存在するアカウント", func(t *testing.T) {
		router := newRouter(&model.CompensationAccount{
			EmployeeID: "emp-1",
			BaseSalary: 650000,
			Currency:   "USD",
		})
		req := httptest.NewRequest(http.MethodGet, "/api/compensation/emp-1", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Result().StatusCode)
		}
		var resp compensationResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.BaseSalary != 650000 || resp.Currency != "USD" {
			t.Errorf("レスポンスが不正: %+v", resp)
		}
	})

	t.Run("未作成は404", func(t *testing.T) {
		router := newRouter(nil)
		req := httptest.NewRequest(http.MethodGet, "/api/compensation/ghost", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Result().StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Result().StatusCode)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	router, rl := newAuthRouter(stubLoginService{})
	defer rl.Stop()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Result().StatusCode)
	}
}
