package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"sync"
	"testing"
)

func generateKeyPEM(t *testing.T) (privPEM, pubPEM string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("鍵生成に失敗: %v", err)
	}
	privPEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	}))
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("公開鍵のエンコードに失敗: %v", err)
	}
	pubPEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	}))
	return privPEM, pubPEM
}

func TestNewStore_CurrentKeySelected(t *testing.T) {
	priv1, pub1 := generateKeyPEM(t)
	_, pub2 := generateKeyPEM(t)

	store, err := NewStore([]KeyConfig{
		{ID: "key-2024", PublicKeyPEM: pub2},
		{ID: "key-2025", IsCurrent: true, PrivateKeyPEM: priv1, PublicKeyPEM: pub1},
	})
	if err != nil {
		t.Fatalf("NewStoreがエラーを返した: %v", err)
	}

	current := store.CurrentSigningKey()
	if current.ID != "key-2025" {
		t.Errorf("現行鍵ID = %s, want key-2025", current.ID)
	}
	if current.Private == nil {
		t.Error("現行鍵に秘密鍵が設定されていない")
	}
}

func TestNewStore_FirstKeyDefaultCurrent(t *testing.T) {
	priv, _ := generateKeyPEM(t)

	store, err := NewStore([]KeyConfig{
		{ID: "only-key", PrivateKeyPEM: priv},
	})
	if err != nil {
		t.Fatalf("NewStoreがエラーを返した: %v", err)
	}
	if got := store.CurrentSigningKey().ID; got != "only-key" {
		t.Errorf("現行鍵ID = %s, want only-key", got)
	}
}

func TestNewStore_FatalConfigurations(t *testing.T) {
	priv, pub := generateKeyPEM(t)

	tests := []struct {
		name string
		cfgs []KeyConfig
	}{
		{name: "鍵リストが空", cfgs: nil},
		{name: "idが空", cfgs: []KeyConfig{{PrivateKeyPEM: priv}}},
		{name: "鍵素材なし", cfgs: []KeyConfig{{ID: "k1"}}},
		{name: "現行鍵に秘密鍵がない", cfgs: []KeyConfig{{ID: "k1", IsCurrent: true, PublicKeyPEM: pub}}},
		{
			name: "idが重複",
			cfgs: []KeyConfig{
				{ID: "k1", IsCurrent: true, PrivateKeyPEM: priv},
				{ID: "k1", PublicKeyPEM: pub},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStore(tt.cfgs); err == nil {
				t.Error("エラーが期待されるがnilが返った")
			}
		})
	}
}

func TestValidationKeys_KidFallback(t *testing.T) {
	priv1, _ := generateKeyPEM(t)
	_, pub2 := generateKeyPEM(t)

	store, err := NewStore([]KeyConfig{
		{ID: "k1", IsCurrent: true, PrivateKeyPEM: priv1},
		{ID: "k2", PublicKeyPEM: pub2},
	})
	if err != nil {
		t.Fatalf("NewStoreがエラーを返した: %v", err)
	}

	if got := store.ValidationKeys("k2"); len(got) != 1 || got[0].ID != "k2" {
		t.Errorf("既知kidで %d 件返った, want k2のみ1件", len(got))
	}
	if got := store.ValidationKeys("unknown"); len(got) != 2 {
		t.Errorf("未知kidで %d 件返った, want 全2件", len(got))
	}
	if got := store.ValidationKeys(""); len(got) != 2 {
		t.Errorf("空kidで %d 件返った, want 全2件", len(got))
	}
}

func TestReload_KeepsOldSetOnError(t *testing.T) {
	priv, _ := generateKeyPEM(t)

	store, err := NewStore([]KeyConfig{{ID: "k1", IsCurrent: true, PrivateKeyPEM: priv}})
	if err != nil {
		t.Fatalf("NewStoreがエラーを返した: %v", err)
	}

	if err := store.Reload(nil); err == nil {
		t.Fatal("不正な設定のReloadでエラーが期待される")
	}
	if got := store.CurrentSigningKey().ID; got != "k1" {
		t.Errorf("Reload失敗後の現行鍵 = %s, want k1(旧セット維持)", got)
	}
}

func TestReload_AtomicSwap(t *testing.T) {
	privA, _ := generateKeyPEM(t)
	privB, _ := generateKeyPEM(t)

	store, err := NewStore([]KeyConfig{{ID: "set-a", IsCurrent: true, PrivateKeyPEM: privA}})
	if err != nil {
		t.Fatalf("NewStoreがエラーを返した: %v", err)
	}

	// 読み手はリロード中でも常に完全な鍵セットを観測する。
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				current := store.CurrentSigningKey()
				if current == nil || current.Private == nil {
					t.Error("不完全な鍵セットを観測した")
					return
				}
				doc := store.JWKSDoc()
				if len(doc.Keys) == 0 {
					t.Error("空のJWKSを観測した")
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		id, priv := "set-a", privA
		if i%2 == 1 {
			id, priv = "set-b", privB
		}
		if err := store.Reload([]KeyConfig{{ID: id, IsCurrent: true, PrivateKeyPEM: priv}}); err != nil {
			t.Fatalf("Reloadに失敗: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestJWKSDoc_NoPrivateMaterial(t *testing.T) {
	priv, _ := generateKeyPEM(t)

	store, err := NewStore([]KeyConfig{{ID: "k1", IsCurrent: true, PrivateKeyPEM: priv}})
	if err != nil {
		t.Fatalf("NewStoreがエラーを返した: %v", err)
	}

	doc := store.JWKSDoc()
	if len(doc.Keys) != 1 {
		t.Fatalf("JWKS鍵数 = %d, want 1", len(doc.Keys))
	}
	jwk := doc.Keys[0]
	if jwk.Kty != "RSA" || jwk.Use != "sig" || jwk.Alg != "RS256" || jwk.Kid != "k1" {
		t.Errorf("JWKメタデータが不正: %+v", jwk)
	}
	if jwk.N == "" || jwk.E == "" {
		t.Error("公開鍵パラメータが空")
	}
	if strings.Contains(jwk.N, "=") || strings.Contains(jwk.E, "=") {
		t.Error("n/eはパディングなしbase64urlであるべき")
	}
}
