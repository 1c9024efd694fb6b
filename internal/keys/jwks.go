package keys

import (
	"encoding/base64"
	"math/big"
)

// JWK はRFC 7517のJSON Web Key（RSA公開鍵分のみ）を表す。
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSDocument は /.well-known/jwks.json で配布するドキュメント。
type JWKSDocument struct {
	Keys []JWK `json:"keys"`
}

// buildJWKS は鍵セットの全公開鍵からJWKSドキュメントを構築する。
func buildJWKS(ks []*SigningKey) JWKSDocument {
	doc := JWKSDocument{Keys: make([]JWK, 0, len(ks))}
	for _, k := range ks {
		if k.Public == nil {
			continue
		}
		doc.Keys = append(doc.Keys, JWK{
			Kty: "RSA",
			Kid: k.ID,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(k.Public.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.Public.E)).Bytes()),
		})
	}
	return doc
}
