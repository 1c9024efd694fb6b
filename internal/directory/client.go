// Package directory はユーザー管理サービスの認可プロフィールAPIクライアントを提供する。
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/konecta/erp/internal/model"
)

// ServiceTokenHeader はサービス間認証に使う共有シークレットのヘッダ名。
const ServiceTokenHeader = "X-Service-Token"

// Client はユーザー管理サービスから認可プロフィールを取得するHTTPクライアント。
type Client struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(baseURL, serviceToken string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// authorizationsResponse は認可プロフィールAPIのレスポンスボディ。
type authorizationsResponse struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// FetchProfile は指定ユーザーの認可プロフィールを取得する。
// 404（プロフィールなし）は (nil, nil) を返す。接続失敗やその他のHTTPエラーでも
// エラーは返さず警告ログのみを出す。ログインは縮退モードで継続し、呼び出し元が
// ローカルのロール情報にフォールバックする。
func (c *Client) FetchProfile(ctx context.Context, userID string) (*model.AuthorizationProfile, error) {
	url := fmt.Sprintf("%s/users/%s/authorizations", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set(ServiceTokenHeader, c.serviceToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("認可プロフィールの取得に失敗しました。ローカル情報で継続します",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return nil, nil
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		var body authorizationsResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			c.logger.Warn("認可プロフィールのパースに失敗しました。ローカル情報で継続します",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
			return nil, nil
		}
		return &model.AuthorizationProfile{
			Roles:       body.Roles,
			Permissions: body.Permissions,
		}, nil
	case resp.StatusCode == http.StatusNotFound:
		// プロフィール未登録。呼び出し元はロールのみで発行する。
		return nil, nil
	default:
		c.logger.Warn("認可プロフィールAPIが異常ステータスを返しました。ローカル情報で継続します",
			slog.String("user_id", userID),
			slog.Int("status", resp.StatusCode))
		return nil, nil
	}
}
