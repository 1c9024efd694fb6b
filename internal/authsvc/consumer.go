package authsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/konecta/erp/internal/eventbus"
	"github.com/konecta/erp/internal/events"
	"github.com/konecta/erp/internal/model"
)

// ロック時に設定する実質無期限のロックアウト終了時刻。
var farFutureLockout = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// EmployeeEventsConsumer はHRサービスが発行する従業員ライフサイクルイベントを処理し、
// ログインアカウントのプロビジョニング・ロック・削除を行う。
type EmployeeEventsConsumer struct {
	users     UserRepository
	publisher eventbus.Publisher
	email     EmailSender
	logger    *slog.Logger
	now       func() time.Time
}

// NewEmployeeEventsConsumer はEmployeeEventsConsumerを生成する。
func NewEmployeeEventsConsumer(users UserRepository, publisher eventbus.Publisher, email EmailSender, logger *slog.Logger) *EmployeeEventsConsumer {
	return &EmployeeEventsConsumer{
		users:     users,
		publisher: publisher,
		email:     email,
		logger:    logger,
		now:       time.Now,
	}
}

// Register は処理対象のルーティングキーをディスパッチャへ登録する。
func (c *EmployeeEventsConsumer) Register(d *eventbus.Dispatcher) {
	d.Register(events.EmployeeCreatedKey, c.HandleEmployeeCreated)
	d.Register(events.EmployeeExitedKey, c.HandleEmployeeExited)
	d.Register(events.EmployeeResignationApprovedKey, c.HandleResignationApproved)
	d.Register(events.EmployeeTerminatedKey, c.HandleEmployeeTerminated)
}

// HandleEmployeeCreated は新規雇用イベントからログインアカウントを作成する。
// 同一従業員への再配送は何もせず成功扱いにする（冪等）。作成に成功した場合のみ
// UserProvisionedEventを発行する。ウェルカムメールの送信失敗は処理を失敗させない。
func (c *EmployeeEventsConsumer) HandleEmployeeCreated(ctx context.Context, body []byte) error {
	var ev events.EmployeeCreatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("EmployeeCreatedEventのパースに失敗しました: %w", err)
	}
	if ev.EmployeeID == "" || ev.WorkEmail == "" {
		return fmt.Errorf("EmployeeCreatedEventに必須フィールドがありません: employeeId=%q workEmail=%q", ev.EmployeeID, ev.WorkEmail)
	}

	// 冪等性チェック。従業員ID・メールのどちらで既存でも再作成しない。
	existing, err := c.users.FindByEmployeeID(ctx, ev.EmployeeID)
	if err != nil {
		return err
	}
	if existing == nil {
		existing, err = c.users.FindByEmail(ctx, ev.WorkEmail)
		if err != nil {
			return err
		}
	}
	if existing != nil {
		c.logger.Info("アカウントは既にプロビジョニング済みです。イベントを破棄します",
			slog.String("employee_id", ev.EmployeeID),
			slog.String("user_id", existing.ID))
		return nil
	}

	tempPassword, err := GeneratePassword()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := c.now().UTC()
	user := &model.IdentityUser{
		ID:             uuid.NewString(),
		Email:          ev.WorkEmail,
		Username:       ev.WorkEmail,
		FullName:       ev.FullName,
		EmployeeID:     ev.EmployeeID,
		PasswordHash:   string(hash),
		EmailConfirmed: true,
		LockoutEnabled: true,
	}
	if err := c.users.Create(ctx, user); err != nil {
		return err
	}

	c.logger.Info("ログインアカウントをプロビジョニングしました",
		slog.String("employee_id", ev.EmployeeID),
		slog.String("user_id", user.ID))

	// 初期パスワードの案内は個人メール優先。未登録なら業務メールへ送る。
	welcomeTo := ev.PersonalEmail
	if welcomeTo == "" {
		welcomeTo = ev.WorkEmail
	}
	if err := c.email.SendWelcome(ctx, welcomeTo, ev.FullName, tempPassword); err != nil {
		c.logger.Warn("ウェルカムメールの送信に失敗しました。処理は継続します",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()))
	}

	return c.publisher.Publish(ctx, events.UserProvisionedKey, events.UserProvisionedEvent{
		UserID:           user.ID,
		EmployeeID:       ev.EmployeeID,
		Email:            ev.WorkEmail,
		FullName:         ev.FullName,
		Roles:            []string{"Employee"},
		ProvisionedAtUTC: now,
	})
}

// HandleEmployeeExited は在籍終了イベントでアカウントをロックし、UserDeactivatedEventを発行する。
// 対象アカウントが存在しない場合は警告ログを出して破棄する。
func (c *EmployeeEventsConsumer) HandleEmployeeExited(ctx context.Context, body []byte) error {
	var ev events.EmployeeExitedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("EmployeeExitedEventのパースに失敗しました: %w", err)
	}

	user, err := c.resolveUser(ctx, ev.UserID, ev.EmployeeID)
	if err != nil {
		return err
	}
	if user == nil {
		c.logger.Warn("在籍終了イベントの対象アカウントが見つかりません。破棄します",
			slog.String("employee_id", ev.EmployeeID))
		return nil
	}

	if err := c.lockUser(ctx, user); err != nil {
		return err
	}
	c.logger.Info("在籍終了によりアカウントをロックしました",
		slog.String("user_id", user.ID),
		slog.String("employee_id", ev.EmployeeID))

	return c.publisher.Publish(ctx, events.UserDeactivatedKey, events.UserDeactivatedEvent{
		UserID:           user.ID,
		EmployeeID:       ev.EmployeeID,
		DeactivatedAtUTC: c.now().UTC(),
		Reason:           ev.Reason,
	})
}

// HandleResignationApproved は退職承認イベントでアカウントを削除し、UserResignedEventを発行する。
func (c *EmployeeEventsConsumer) HandleResignationApproved(ctx context.Context, body []byte) error {
	var ev events.EmployeeResignationApprovedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("EmployeeResignationApprovedEventのパースに失敗しました: %w", err)
	}

	user, err := c.resolveUser(ctx, ev.UserID, ev.EmployeeID)
	if err != nil {
		return err
	}
	if user == nil {
		c.logger.Warn("退職承認イベントの対象アカウントが見つかりません。破棄します",
			slog.String("employee_id", ev.EmployeeID))
		return nil
	}

	if err := c.users.Delete(ctx, user.ID); err != nil {
		return err
	}
	c.logger.Info("退職承認によりアカウントを削除しました",
		slog.String("user_id", user.ID),
		slog.String("employee_id", ev.EmployeeID))

	return c.publisher.Publish(ctx, events.UserResignedKey, events.UserResignedEvent{
		UserID:               user.ID,
		EmployeeID:           ev.EmployeeID,
		ResignationRequestID: ev.ResignationID,
		ResignedAtUTC:        c.now().UTC(),
	})
}

// HandleEmployeeTerminated は解雇イベントでアカウントをロックし、UserTerminatedEventを発行する。
// 解雇は監査対象のためアカウントは削除せずロックで保全する。
func (c *EmployeeEventsConsumer) HandleEmployeeTerminated(ctx context.Context, body []byte) error {
	var ev events.EmployeeTerminatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("EmployeeTerminatedEventのパースに失敗しました: %w", err)
	}

	user, err := c.resolveUser(ctx, ev.UserID, ev.EmployeeID)
	if err != nil {
		return err
	}
	if user == nil {
		c.logger.Warn("解雇イベントの対象アカウントが見つかりません。破棄します",
			slog.String("employee_id", ev.EmployeeID))
		return nil
	}

	if err := c.lockUser(ctx, user); err != nil {
		return err
	}
	c.logger.Info("解雇によりアカウントをロックしました",
		slog.String("user_id", user.ID),
		slog.String("employee_id", ev.EmployeeID))

	return c.publisher.Publish(ctx, events.UserTerminatedKey, events.UserTerminatedEvent{
		UserID:          user.ID,
		EmployeeID:      ev.EmployeeID,
		TerminatedAtUTC: c.now().UTC(),
		Reason:          ev.Reason,
	})
}

// resolveUser はイベント中のユーザーID、なければ従業員IDでアカウントを解決する。
func (c *EmployeeEventsConsumer) resolveUser(ctx context.Context, userID, employeeID string) (*model.IdentityUser, error) {
	if userID != "" {
		user, err := c.users.FindByID(ctx, userID)
		if err != nil || user != nil {
			return user, err
		}
	}
	if employeeID == "" {
		return nil, nil
	}
	return c.users.FindByEmployeeID(ctx, employeeID)
}

func (c *EmployeeEventsConsumer) lockUser(ctx context.Context, user *model.IdentityUser) error {
	end := farFutureLockout
	user.LockoutEnabled = true
	user.LockoutEnd = &end
	user.EmailConfirmed = false
	return c.users.Update(ctx, user)
}
