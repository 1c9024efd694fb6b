package authsvc

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/konecta/erp/internal/authz"
	"github.com/konecta/erp/internal/metrics"
	"github.com/konecta/erp/internal/model"
	"github.com/konecta/erp/internal/token"
)

// ProfileFetcher はユーザー管理サービスから認可プロフィールを取得する。
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, userID string) (*model.AuthorizationProfile, error)
}

// TokenIssuer はアクセストークンを発行する。
type TokenIssuer interface {
	Issue(user model.IdentityUser, roles, permissions []string) (*token.IssuedToken, error)
}

// LoginResult はログイン成功時の応答を表す。
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	FullName    string
	Email       string
	Roles       []string
}

// LoginService は資格情報の検証とアクセストークンの発行を行う。
type LoginService struct {
	users     UserRepository
	profiles  ProfileFetcher
	issuer    TokenIssuer
	collector *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// NewLoginService はLoginServiceを生成する。
func NewLoginService(users UserRepository, profiles ProfileFetcher, issuer TokenIssuer, collector *metrics.Collector, logger *slog.Logger) *LoginService {
	return &LoginService{
		users:     users,
		profiles:  profiles,
		issuer:    issuer,
		collector: collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Login は資格情報を検証してアクセストークンを発行する。
// ユーザー不在とパスワード不一致は同一のエラーを返す（存在有無を漏らさない）。
// 認可プロフィールの取得に失敗した場合はデフォルトロールのみで縮退発行する。
func (s *LoginService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	now := s.now().UTC()
	if user.IsLockedOut(now) {
		s.logger.Warn("ロック中のアカウントへのログイン試行",
			slog.String("user_id", user.ID))
		return nil, model.NewAccountLockedError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	roles := []string{"Employee"}
	var permissions []string
	profile, err := s.profiles.FetchProfile(ctx, user.ID)
	if err == nil && profile != nil {
		if len(profile.Roles) > 0 {
			roles = profile.Roles
		}
		permissions = profile.Permissions
	}
	if len(permissions) == 0 {
		// プロフィール未取得時はロールのデフォルト権限セットへフォールバックする。
		permissions = authz.PermissionsForRoles(roles)
	}

	issued, err := s.issuer.Issue(*user, roles, permissions)
	if err != nil {
		return nil, err
	}
	s.collector.TokenIssued()

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("最終ログイン時刻の記録に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()))
	}

	s.logger.Info("ログインに成功しました",
		slog.String("user_id", user.ID),
		slog.String("key_id", issued.KeyID))

	return &LoginResult{
		AccessToken: issued.Token,
		ExpiresAt:   issued.ExpiresAt,
		FullName:    user.FullName,
		Email:       user.Email,
		Roles:       roles,
	}, nil
}
