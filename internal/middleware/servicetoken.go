// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ServiceTokenHeader はサービス間認証の共有シークレットを運ぶヘッダ名。
const ServiceTokenHeader = "X-Service-Token"

// NewServiceTokenMiddleware はサービス間エンドポイントを共有シークレットで保護する
// ミドルウェアを返す。比較はダイジェスト化したうえで定数時間で行い、
// タイミング攻撃によるシークレットの推測を防ぐ。
func NewServiceTokenMiddleware(expectedToken string, logger *slog.Logger) func(next http.Handler) http.Handler {
	expectedDigest := sha256.Sum256([]byte(expectedToken))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(ServiceTokenHeader)
			presentedDigest := sha256.Sum256([]byte(presented))

			if subtle.ConstantTimeCompare(expectedDigest[:], presentedDigest[:]) != 1 {
				logger.Warn("サービス間トークンの検証に失敗しました",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr))
				writeUnauthorized(w, "サービス間認証に失敗しました。")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"code":     "UNAUTHORIZED",
		"message":  message,
		"category": "auth",
		"action":   "認証情報を確認してください。",
	})
}
