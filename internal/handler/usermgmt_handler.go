package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/konecta/erp/internal/metrics"
	"github.com/konecta/erp/internal/middleware"
	"github.com/konecta/erp/internal/model"
)

// ProfileServiceInterface はユーザー管理ハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// Authorizations は指定ユーザーの認可プロフィールを返す。未登録・削除済みは (nil, nil)。
	Authorizations(ctx context.Context, externalUserID string) (*model.AuthorizationProfile, error)
}

// UserMgmtHandler はユーザー管理サービスのHTTPハンドラー。
type UserMgmtHandler struct {
	profiles ProfileServiceInterface
}

// NewUserMgmtHandler はUserMgmtHandlerを生成する。
func NewUserMgmtHandler(profiles ProfileServiceInterface) *UserMgmtHandler {
	return &UserMgmtHandler{profiles: profiles}
}

// authorizationsResponse は認可プロフィールAPIのレスポンスボディ。
type authorizationsResponse struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Authorizations は指定ユーザーの認可プロフィールを返す。
// GET /users/{userID}/authorizations
func (h *UserMgmtHandler) Authorizations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	profile, err := h.profiles.Authorizations(r.Context(), userID)
	if err != nil {
		writeInternalServerError(w)
		return
	}
	if profile == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "PROFILE_NOT_FOUND",
			Message:  "指定されたユーザーの認可プロフィールが見つかりません。",
			Category: "validation",
			Action:   "ユーザーIDを確認してください。",
		})
		return
	}

	writeJSONResponse(w, http.StatusOK, authorizationsResponse{
		Roles:       profile.Roles,
		Permissions: profile.Permissions,
	})
}

// UserMgmtRouterDeps はユーザー管理サービスのルーター構成に必要な依存をまとめる。
type UserMgmtRouterDeps struct {
	Profiles     ProfileServiceInterface
	ServiceToken string
	Collector    *metrics.Collector
	Logger       *slog.Logger
}

// NewUserMgmtRouter はユーザー管理サービスの全ルーティングを構成したハンドラーを返す。
// 認可プロフィールAPIはサービス間トークンで保護する。
func NewUserMgmtRouter(deps *UserMgmtRouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	h := NewUserMgmtHandler(deps.Profiles)

	r.Route("/users", func(r chi.Router) {
		r.Use(middleware.NewServiceTokenMiddleware(deps.ServiceToken, deps.Logger))
		r.Get("/{userID}/authorizations", h.Authorizations)
	})
	r.Get("/health", healthHandler())
	r.Method(http.MethodGet, "/metrics", deps.Collector.Handler())

	return r
}
