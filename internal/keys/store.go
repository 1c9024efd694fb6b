// Package keys はトークン署名鍵のライフサイクルを管理する。
// 鍵セットはイミュータブルなスナップショットとして保持し、設定リロード時に
// 全体を再構築してアトミックに差し替える。読み手は呼び出し時点の参照を
// 取得するため、新旧どちらかの完全なセットのみを観測する。
package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// KeyConfig は設定ファイル上の署名鍵1件を表す。
type KeyConfig struct {
	ID            string `json:"id"`
	IsCurrent     bool   `json:"isCurrent"`
	PublicKeyPEM  string `json:"publicKeyPem"`
	PrivateKeyPEM string `json:"privateKeyPem"`
}

// SigningKey は読み込み済みの署名鍵を表す。
// Privateは現行鍵（署名に使用する鍵）の場合のみ設定される。
type SigningKey struct {
	ID        string
	Public    *rsa.PublicKey
	Private   *rsa.PrivateKey
	IsCurrent bool
}

// snapshot はある時点の完全な鍵セットを表すイミュータブルな値。
type snapshot struct {
	current *SigningKey
	byID    map[string]*SigningKey
	ordered []*SigningKey
	jwks    JWKSDocument
}

// Store は署名鍵セットを保持し、現行署名鍵・検証鍵セット・JWKSドキュメントを公開する。
// Reloadは排他制御し、読み手はロックなしでスナップショット参照を取得する。
type Store struct {
	mu   sync.Mutex // Reloadの直列化用。読み取りはsnapのアトミックロードのみ。
	snap atomic.Pointer[snapshot]
}

// NewStore は設定からStoreを構築する。
// 鍵リストが空、idまたは鍵素材の欠落、現行鍵に秘密鍵がない場合はエラーを返す。
// これらは起動時の致命的エラーであり、呼び出し元はプロセスを起動してはならない。
func NewStore(cfgs []KeyConfig) (*Store, error) {
	snap, err := buildSnapshot(cfgs)
	if err != nil {
		return nil, err
	}
	s := &Store{}
	s.snap.Store(snap)
	return s, nil
}

// Reload は設定から鍵セット全体を再構築し、アトミックに差し替える。
// 構築に失敗した場合は旧セットを維持したままエラーを返す。
func (s *Store) Reload(cfgs []KeyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := buildSnapshot(cfgs)
	if err != nil {
		return err
	}
	s.snap.Store(snap)
	return nil
}

// CurrentSigningKey は現行の署名鍵（秘密鍵つき）を返す。
func (s *Store) CurrentSigningKey() *SigningKey {
	return s.snap.Load().current
}

// ValidationKeys は検証鍵を解決する。
// kidが既知の場合は該当鍵1件を返す。未知または空の場合は、鍵配布の伝搬遅延に
// 耐えるための意図的に寛容なフォールバックとして全鍵を返し、最終判定は
// 呼び出し元の署名検証に委ねる。
func (s *Store) ValidationKeys(kid string) []*SigningKey {
	snap := s.snap.Load()
	if kid != "" {
		if key, ok := snap.byID[kid]; ok {
			return []*SigningKey{key}
		}
	}
	out := make([]*SigningKey, len(snap.ordered))
	copy(out, snap.ordered)
	return out
}

// JWKSDoc は公開可能なJWKSドキュメントを返す。秘密鍵素材は含まれない。
func (s *Store) JWKSDoc() JWKSDocument {
	return s.snap.Load().jwks
}

// buildSnapshot は設定リストから完全な鍵セットを構築する。
func buildSnapshot(cfgs []KeyConfig) (*snapshot, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("署名鍵が1件も設定されていません")
	}

	currentIdx := 0
	for i, cfg := range cfgs {
		if cfg.IsCurrent {
			currentIdx = i
			break
		}
	}

	snap := &snapshot{
		byID: make(map[string]*SigningKey, len(cfgs)),
	}

	for i, cfg := range cfgs {
		if cfg.ID == "" {
			return nil, fmt.Errorf("署名鍵設定 %d 件目: idが空です", i+1)
		}
		if cfg.PublicKeyPEM == "" && cfg.PrivateKeyPEM == "" {
			return nil, fmt.Errorf("署名鍵 %s: PEM形式の鍵素材が1つも指定されていません", cfg.ID)
		}
		if _, ok := snap.byID[cfg.ID]; ok {
			return nil, fmt.Errorf("署名鍵 %s: idが重複しています", cfg.ID)
		}

		key := &SigningKey{ID: cfg.ID, IsCurrent: i == currentIdx}

		if cfg.PrivateKeyPEM != "" {
			priv, err := parsePrivateKeyPEM(cfg.PrivateKeyPEM)
			if err != nil {
				return nil, fmt.Errorf("署名鍵 %s: 秘密鍵のパースに失敗しました: %w", cfg.ID, err)
			}
			// 秘密鍵は現行鍵にのみ保持する。検証専用エントリに秘密素材を残さない。
			if key.IsCurrent {
				key.Private = priv
			}
			key.Public = &priv.PublicKey
		}

		if cfg.PublicKeyPEM != "" {
			pub, err := parsePublicKeyPEM(cfg.PublicKeyPEM)
			if err != nil {
				return nil, fmt.Errorf("署名鍵 %s: 公開鍵のパースに失敗しました: %w", cfg.ID, err)
			}
			key.Public = pub
		}

		if key.IsCurrent && key.Private == nil {
			return nil, fmt.Errorf("現行署名鍵 %s に秘密鍵がありません。署名できない認証サービスは起動できません", cfg.ID)
		}

		snap.byID[key.ID] = key
		snap.ordered = append(snap.ordered, key)
		if key.IsCurrent {
			snap.current = key
		}
	}

	snap.jwks = buildJWKS(snap.ordered)
	return snap, nil
}

// LoadConfigFile はJSONの鍵設定ファイルを読み込む。
// フォーマット: [{"id": "...", "isCurrent": true, "privateKeyPem": "...", "publicKeyPem": "..."}]
func LoadConfigFile(path string) ([]KeyConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("鍵設定ファイルのパスが指定されていません")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("鍵設定ファイルの読み込みに失敗しました: %w", err)
	}
	var cfgs []KeyConfig
	if err := json.Unmarshal(data, &cfgs); err != nil {
		return nil, fmt.Errorf("鍵設定ファイルのパースに失敗しました: %w", err)
	}
	return cfgs, nil
}

// parsePrivateKeyPEM はPKCS#1またはPKCS#8形式のRSA秘密鍵PEMをパースする。
func parsePrivateKeyPEM(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("PEMブロックが見つかりません")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("RSA以外の秘密鍵はサポートしていません")
	}
	return key, nil
}

// parsePublicKeyPEM はPKIXまたはPKCS#1形式のRSA公開鍵PEMをパースする。
func parsePublicKeyPEM(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("PEMブロックが見つかりません")
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("RSA以外の公開鍵はサポートしていません")
	}
	return key, nil
}
