package usermgmt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/konecta/erp/internal/eventbus"
	"github.com/konecta/erp/internal/events"
	"github.com/konecta/erp/internal/model"
)

// AuthEventsConsumer は認証サービスのアカウントライフサイクルイベントを処理し、
// ディレクトリを同期する。
type AuthEventsConsumer struct {
	users     DirectoryUserRepository
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuthEventsConsumer はAuthEventsConsumerを生成する。
// イベント由来の表示名はStrictPolicyでサニタイズしてから保存する。
func NewAuthEventsConsumer(users DirectoryUserRepository, logger *slog.Logger) *AuthEventsConsumer {
	return &AuthEventsConsumer{
		users:     users,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
		now:       time.Now,
	}
}

// Register は処理対象のルーティングキーをディスパッチャへ登録する。
func (c *AuthEventsConsumer) Register(d *eventbus.Dispatcher) {
	d.Register(events.UserProvisionedKey, c.HandleUserProvisioned)
	d.Register(events.UserDeactivatedKey, c.HandleUserDeactivated)
	d.Register(events.UserResignedKey, c.HandleUserResigned)
	d.Register(events.UserTerminatedKey, c.HandleUserTerminated)
}

// HandleUserProvisioned はアカウント作成イベントでディレクトリ行をUPSERTする。
// 同一外部ユーザーIDの再配送は同じ行を上書きするだけで重複しない。
func (c *AuthEventsConsumer) HandleUserProvisioned(ctx context.Context, body []byte) error {
	var ev events.UserProvisionedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("UserProvisionedEventのパースに失敗しました: %w", err)
	}
	if ev.UserID == "" {
		return fmt.Errorf("UserProvisionedEventにuserIdがありません")
	}

	primaryRole := "Employee"
	if len(ev.Roles) > 0 && strings.TrimSpace(ev.Roles[0]) != "" {
		primaryRole = strings.TrimSpace(ev.Roles[0])
	}

	user := &model.DirectoryUser{
		ID:             uuid.NewString(),
		ExternalUserID: ev.UserID,
		Email:          ev.Email,
		FullName:       strings.TrimSpace(c.sanitizer.Sanitize(ev.FullName)),
		PrimaryRole:    primaryRole,
		Status:         model.DirectoryStatusActive,
	}
	if err := c.users.Upsert(ctx, user); err != nil {
		return err
	}
	c.logger.Info("ディレクトリユーザーを登録しました",
		slog.String("external_user_id", ev.UserID),
		slog.String("primary_role", primaryRole))
	return nil
}

// HandleUserDeactivated はアカウント無効化イベントで行を非アクティブ・ロック状態にする。
// 対象行が存在しない場合は警告ログを出して破棄する。
func (c *AuthEventsConsumer) HandleUserDeactivated(ctx context.Context, body []byte) error {
	var ev events.UserDeactivatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("UserDeactivatedEventのパースに失敗しました: %w", err)
	}
	if err := c.users.SetInactive(ctx, ev.UserID, c.now().UTC()); err != nil {
		if errors.Is(err, ErrDirectoryUserNotFound) {
			c.logger.Warn("無効化対象のディレクトリユーザーが見つかりません。イベントを破棄します",
				slog.String("external_user_id", ev.UserID))
			return nil
		}
		return err
	}
	c.logger.Info("ディレクトリユーザーを無効化しました",
		slog.String("external_user_id", ev.UserID))
	return nil
}

// HandleUserResigned は退職イベントで行を論理削除する。
// 対象行が存在しない場合は警告ログを出して破棄する。
func (c *AuthEventsConsumer) HandleUserResigned(ctx context.Context, body []byte) error {
	var ev events.UserResignedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("UserResignedEventのパースに失敗しました: %w", err)
	}
	if err := c.users.SoftDelete(ctx, ev.UserID, ev.ResignationRequestID, c.now().UTC()); err != nil {
		if errors.Is(err, ErrDirectoryUserNotFound) {
			c.logger.Warn("論理削除対象のディレクトリユーザーが見つかりません。イベントを破棄します",
				slog.String("external_user_id", ev.UserID))
			return nil
		}
		return err
	}
	c.logger.Info("ディレクトリユーザーを論理削除しました",
		slog.String("external_user_id", ev.UserID),
		slog.String("resignation_request_id", ev.ResignationRequestID))
	return nil
}

// HandleUserTerminated は解雇イベントで行を解雇状態（ロックつき）にする。
// 対象行が存在しない場合は警告ログを出して破棄する。
func (c *AuthEventsConsumer) HandleUserTerminated(ctx context.Context, body []byte) error {
	var ev events.UserTerminatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("UserTerminatedEventのパースに失敗しました: %w", err)
	}
	if err := c.users.Terminate(ctx, ev.UserID, ev.Reason, c.now().UTC()); err != nil {
		if errors.Is(err, ErrDirectoryUserNotFound) {
			c.logger.Warn("解雇処理対象のディレクトリユーザーが見つかりません。イベントを破棄します",
				slog.String("external_user_id", ev.UserID))
			return nil
		}
		return err
	}
	c.logger.Info("ディレクトリユーザーを解雇状態にしました",
		slog.String("external_user_id", ev.UserID))
	return nil
}
