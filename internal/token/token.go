// Package token はJWTアクセストークンの発行と検証を提供する。
package token

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/konecta/erp/internal/keys"
	"github.com/konecta/erp/internal/model"
)

// Claims はアクセストークンのペイロードを表す。
type Claims struct {
	jwt.RegisteredClaims
	Email             string   `json:"email"`
	FullName          string   `json:"full_name"`
	PreferredUsername string   `json:"preferred_username"`
	EmployeeID        string   `json:"employee_id,omitempty"`
	Roles             []string `json:"roles"`
	Permissions       []string `json:"permission"`
}

// Principal は検証済みトークンから復元した認証主体を表す。
type Principal struct {
	UserID      string
	Email       string
	FullName    string
	EmployeeID  string
	Roles       []string
	Permissions []string
}

// HasRole は指定ロールを保持するかを大文字小文字を区別せず判定する。
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// HasPermission は指定権限を保持するかを大文字小文字を区別せず判定する。
func (p *Principal) HasPermission(perm string) bool {
	for _, c := range p.Permissions {
		if strings.EqualFold(c, perm) {
			return true
		}
	}
	return false
}

// IssuedToken は発行結果を表す。
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
	KeyID     string
}

// Config はトークン発行・検証の設定。
type Config struct {
	Issuer   string
	Audience string
	Lifetime time.Duration
}

// Service はJWTの発行と検証を行う。
type Service struct {
	store  *keys.Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(store *keys.Store, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Issue はユーザーのアクセストークンを現行署名鍵で発行する。
// ロールと権限はトリムのうえ大文字小文字を区別せず重複排除する（初出の表記を残す）。
func (s *Service) Issue(user model.IdentityUser, roles, permissions []string) (*IssuedToken, error) {
	key := s.store.CurrentSigningKey()
	if key == nil || key.Private == nil {
		return nil, fmt.Errorf("署名可能な現行鍵がありません")
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.cfg.Lifetime)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:             user.Email,
		FullName:          user.FullName,
		PreferredUsername: user.Email,
		EmployeeID:        user.EmployeeID,
		Roles:             dedupeFold(roles),
		Permissions:       dedupeFold(permissions),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = key.ID

	signed, err := tok.SignedString(key.Private)
	if err != nil {
		return nil, fmt.Errorf("トークンの署名に失敗しました: %w", err)
	}

	return &IssuedToken{Token: signed, ExpiresAt: expiresAt, KeyID: key.ID}, nil
}

// Validate はトークンを検証し、成功時にPrincipalを返す。
// 署名不正・期限切れ・発行者/受信者不一致などすべての失敗でnilを返す。
// 時刻の猶予（clock skew）は設けない。
func (s *Service) Validate(tokenString string) *Principal {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	claims := &Claims{}
	tok, err := parser.ParseWithClaims(tokenString, claims, s.keyfunc)
	if err != nil || !tok.Valid {
		s.logger.Warn("トークン検証に失敗しました", slog.String("error", errString(err)))
		return nil
	}

	return &Principal{
		UserID:      claims.Subject,
		Email:       claims.Email,
		FullName:    claims.FullName,
		EmployeeID:  claims.EmployeeID,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}
}

// keyfunc はkidヘッダから検証鍵を解決する。kidが未知の場合は保持する全鍵を
// 候補として返し、ライブラリ側の署名照合に委ねる。
func (s *Service) keyfunc(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	candidates := s.store.ValidationKeys(kid)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("検証鍵がありません")
	}
	if len(candidates) == 1 {
		return candidates[0].Public, nil
	}
	set := jwt.VerificationKeySet{Keys: make([]jwt.VerificationKey, 0, len(candidates))}
	for _, k := range candidates {
		set.Keys = append(set.Keys, k.Public)
	}
	return set, nil
}

// dedupeFold はトリムのうえ大文字小文字を区別せず重複を除去する。
// 初出の表記を保持する。
func dedupeFold(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return "トークンが無効です"
	}
	return err.Error()
}
