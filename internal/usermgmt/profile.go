package usermgmt

import (
	"context"
	"log/slog"

	"github.com/konecta/erp/internal/authz"
	"github.com/konecta/erp/internal/model"
)

// ProfileService は認可プロフィールAPIのバックエンド。
// ディレクトリ行の主ロールから権限カタログを解決する。
type ProfileService struct {
	users  DirectoryUserRepository
	logger *slog.Logger
}

// NewProfileService はProfileServiceを生成する。
func NewProfileService(users DirectoryUserRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{users: users, logger: logger}
}

// Authorizations は指定ユーザーの認可プロフィールを返す。
// ユーザーが存在しない、または論理削除済みの場合は (nil, nil) を返す。
func (s *ProfileService) Authorizations(ctx context.Context, externalUserID string) (*model.AuthorizationProfile, error) {
	user, err := s.users.FindByExternalUserID(ctx, externalUserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.IsDeleted {
		return nil, nil
	}

	return &model.AuthorizationProfile{
		Roles:       []string{user.PrimaryRole},
		Permissions: authz.PermissionsForRole(user.PrimaryRole),
	}, nil
}
