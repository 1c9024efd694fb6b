package authsvc

import (
	"context"
	"log/slog"
)

// EmailSender は初期パスワード通知メールの送信を抽象化する。
// 送信失敗はアカウントプロビジョニングを失敗させない。
type EmailSender interface {
	SendWelcome(ctx context.Context, to, fullName, tempPassword string) error
}

// LogEmailSender は実際には送信せず、送信内容（パスワードを除く）をログに出す実装。
// メール基盤が未接続の環境向け。
type LogEmailSender struct {
	logger *slog.Logger
}

var _ EmailSender = (*LogEmailSender)(nil)

// NewLogEmailSender はLogEmailSenderを生成する。
func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

// SendWelcome は送信内容をログに記録する。初期パスワードはログに出さない。
func (s *LogEmailSender) SendWelcome(ctx context.Context, to, fullName, tempPassword string) error {
	s.logger.Info("ウェルカムメールを送信しました",
		slog.String("to", to),
		slog.String("full_name", fullName))
	return nil
}
