package authsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/konecta/erp/internal/metrics"
	"github.com/konecta/erp/internal/model"
	"github.com/konecta/erp/internal/token"
)

type stubProfiles struct {
	profile *model.AuthorizationProfile
	err     error
}

func (s stubProfiles) FetchProfile(ctx context.Context, userID string) (*model.AuthorizationProfile, error) {
	return s.profile, s.err
}

type stubIssuer struct {
	lastRoles       []string
	lastPermissions []string
	err             error
}

func (s *stubIssuer) Issue(user model.IdentityUser, roles, permissions []string) (*token.IssuedToken, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastRoles = roles
	s.lastPermissions = permissions
	return &token.IssuedToken{Token: "signed-token", ExpiresAt: time.Now().Add(time.Hour), KeyID: "k1"}, nil
}

func loginFixture(t *testing.T, password string) (*mockUserRepository, *model.IdentityUser) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("ハッシュ生成に失敗: %v", err)
	}
	repo := newMockUserRepository()
	user := &model.IdentityUser{
		ID:             "user-1",
		Email:          "taro.yamada@example.com",
		FullName:       "山田 太郎",
		EmployeeID:     "emp-1",
		PasswordHash:   string(hash),
		LockoutEnabled: true,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("ユーザー準備に失敗: %v", err)
	}
	return repo, user
}

func TestLogin_SuccessUsesDirectoryProfile(t *testing.T) {
	repo, _ := loginFixture(t, "correct-horse")
	issuer := &stubIssuer{}
	svc := NewLoginService(repo, stubProfiles{profile: &model.AuthorizationProfile{
		Roles:       []string{"HrAdmin"},
		Permissions: []string{"hr.employees.manage"},
	}}, issuer, metrics.NewCollector(), testLogger())

	result, err := svc.Login(context.Background(), "taro.yamada@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Loginがエラーを返した: %v", err)
	}
	if result.AccessToken != "signed-token" {
		t.Errorf("AccessToken = %q", result.AccessToken)
	}
	if len(issuer.lastRoles) != 1 || issuer.lastRoles[0] != "HrAdmin" {
		t.Errorf("プロフィールのロールが使われていない: %v", issuer.lastRoles)
	}
	if len(issuer.lastPermissions) != 1 || issuer.lastPermissions[0] != "hr.employees.manage" {
		t.Errorf("プロフィールの権限が使われていない: %v", issuer.lastPermissions)
	}

	user, _ := repo.FindByID(context.Background(), "user-1")
	if user.LastLoginAt == nil {
		t.Error("最終ログイン時刻が記録されていない")
	}
}

func TestLogin_DegradedProfileFallsBackToDefaults(t *testing.T) {
	repo, _ := loginFixture(t, "correct-horse")
	issuer := &stubIssuer{}
	// プロフィール取得は縮退（nil, nil）。デフォルトロールの権限にフォールバックする。
	svc := NewLoginService(repo, stubProfiles{}, issuer, metrics.NewCollector(), testLogger())

	result, err := svc.Login(context.Background(), "taro.yamada@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("縮退時もログインは成功するはず: %v", err)
	}
	if len(result.Roles) != 1 || result.Roles[0] != "Employee" {
		t.Errorf("デフォルトロール = %v, want [Employee]", result.Roles)
	}
	if len(issuer.lastPermissions) == 0 {
		t.Error("Employeeロールのデフォルト権限が付与されていない")
	}
}

func TestLogin_WrongPasswordAndUnknownUserAreIndistinguishable(t *testing.T) {
	repo, _ := loginFixture(t, "correct-horse")
	svc := NewLoginService(repo, stubProfiles{}, &stubIssuer{}, metrics.NewCollector(), testLogger())

	_, errWrong := svc.Login(context.Background(), "taro.yamada@example.com", "wrong")
	_, errUnknown := svc.Login(context.Background(), "nobody@example.com", "wrong")

	var apiErrWrong, apiErrUnknown *model.APIError
	if !errors.As(errWrong, &apiErrWrong) || !errors.As(errUnknown, &apiErrUnknown) {
		t.Fatalf("APIErrorが期待される: %v / %v", errWrong, errUnknown)
	}
	if apiErrWrong.Code != model.ErrCodeInvalidCredentials || apiErrWrong.Code != apiErrUnknown.Code {
		t.Errorf("資格情報エラーは区別不能であるべき: %s / %s", apiErrWrong.Code, apiErrUnknown.Code)
	}
}

func TestLogin_LockedAccountIsRejected(t *testing.T) {
	repo, user := loginFixture(t, "correct-horse")
	end := time.Now().Add(time.Hour)
	user.LockoutEnd = &end
	if err := repo.Update(context.Background(), user); err != nil {
		t.Fatalf("ロック状態の設定に失敗: %v", err)
	}

	svc := NewLoginService(repo, stubProfiles{}, &stubIssuer{}, metrics.NewCollector(), testLogger())
	_, err := svc.Login(context.Background(), "taro.yamada@example.com", "correct-horse")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAccountLocked {
		t.Errorf("ロック中エラーが期待される: %v", err)
	}
}

func TestLogin_ExpiredLockoutAllowsLogin(t *testing.T) {
	repo, user := loginFixture(t, "correct-horse")
	end := time.Now().Add(-time.Hour)
	user.LockoutEnd = &end
	if err := repo.Update(context.Background(), user); err != nil {
		t.Fatalf("ロック状態の設定に失敗: %v", err)
	}

	svc := NewLoginService(repo, stubProfiles{}, &stubIssuer{}, metrics.NewCollector(), testLogger())
	if _, err := svc.Login(context.Background(), "taro.yamada@example.com", "correct-horse"); err != nil {
		t.Errorf("期限切れロックはログイン可能であるべき: %v", err)
	}
}
