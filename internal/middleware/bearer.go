package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/konecta/erp/internal/token"
)

type contextKey string

const principalContextKey contextKey = "principal"

// ErrNoPrincipal はコンテキストに認証主体がない場合に返される。
var ErrNoPrincipal = errors.New("コンテキストに認証主体がありません")

// TokenValidator はBearerトークンを検証する。失敗時はnilを返す。
type TokenValidator interface {
	Validate(tokenString string) *token.Principal
}

// PrincipalFromContext はコンテキストから認証主体を取り出す。
func PrincipalFromContext(ctx context.Context) (*token.Principal, error) {
	p, ok := ctx.Value(principalContextKey).(*token.Principal)
	if !ok || p == nil {
		return nil, ErrNoPrincipal
	}
	return p, nil
}

// ContextWithPrincipal は認証主体をコンテキストに格納する。テスト用。
func ContextWithPrincipal(ctx context.Context, p *token.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// NewBearerAuthMiddleware はAuthorizationヘッダのBearerトークンを検証し、
// 認証主体をコンテキストに格納するミドルウェアを返す。
// ヘッダなし・形式不正・検証失敗はすべて401を返す。
func NewBearerAuthMiddleware(validator TokenValidator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				writeUnauthorized(w, "認証トークンがありません。")
				return
			}

			principal := validator.Validate(strings.TrimSpace(header[len(prefix):]))
			if principal == nil {
				logger.Warn("無効なBearerトークンを受信しました",
					slog.String("path", r.URL.Path))
				writeUnauthorized(w, "認証トークンが無効です。")
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission は認証済み主体が指定権限を持つことを要求するミドルウェアを返す。
// NewBearerAuthMiddlewareの後段に配置する。
func RequirePermission(permission string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := PrincipalFromContext(r.Context())
			if err != nil {
				writeUnauthorized(w, "認証トークンがありません。")
				return
			}
			if !principal.HasPermission(permission) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]string{
					"code":     "FORBIDDEN",
					"message":  "この操作を行う権限がありません。",
					"category": "auth",
					"action":   "システム管理者に権限の付与を依頼してください。",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
