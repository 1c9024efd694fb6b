package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/konecta/erp/internal/authsvc"
	"github.com/konecta/erp/internal/keys"
	"github.com/konecta/erp/internal/metrics"
	"github.com/konecta/erp/internal/middleware"
	"github.com/konecta/erp/internal/model"
)

// LoginServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type LoginServiceInterface interface {
	Login(ctx context.Context, email, password string) (*authsvc.LoginResult, error)
}

// JWKSProvider は公開鍵セットのドキュメントを提供する。
type JWKSProvider interface {
	JWKSDoc() keys.JWKSDocument
}

// AuthHandler は認証サービスのHTTPハンドラー。
type AuthHandler struct {
	login LoginServiceInterface
	jwks  JWKSProvider
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(login LoginServiceInterface, jwks JWKSProvider) *AuthHandler {
	return &AuthHandler{login: login, jwks: jwks}
}

// loginRequest はログインAPIのリクエストボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse はログインAPIのレスポンスボディ。
type loginResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
	FullName    string    `json:"fullName"`
	Email       string    `json:"email"`
	Roles       []string  `json:"roles"`
}

// Login は資格情報を検証してアクセストークンを発行する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディが不正です"))
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("メールアドレスとパスワードは必須です"))
		return
	}

	result, err := h.login.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, loginResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   result.ExpiresAt,
		FullName:    result.FullName,
		Email:       result.Email,
		Roles:       result.Roles,
	})
}

// JWKS は検証用公開鍵セットを配布する。
// GET /.well-known/jwks.json
func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, h.jwks.JWKSDoc())
}

// AuthRouterDeps は認証サービスのルーター構成に必要な依存をまとめる。
type AuthRouterDeps struct {
	Login       LoginServiceInterface
	JWKS        JWKSProvider
	RateLimiter *middleware.LoginRateLimiter
	Collector   *metrics.Collector
	Logger      *slog.Logger
}

// NewAuthRouter は認証サービスの全ルーティングを構成したハンドラーを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware →（ログインのみ）RateLimiter
func NewAuthRouter(deps *AuthRouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	h := NewAuthHandler(deps.Login, deps.JWKS)

	r.Route("/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.Middleware(deps.Logger)).Post("/login", h.Login)
	})
	r.Get("/.well-known/jwks.json", h.JWKS)
	r.Get("/health", healthHandler())
	r.Method(http.MethodGet, "/metrics", deps.Collector.Handler())

	return r
}
