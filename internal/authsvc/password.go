package authsvc

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// 紛らわしい文字（I, l, O, 0, 1 など）を除いた初期パスワード用の文字集合。
const (
	passwordUppercase = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordLowercase = "abcdefghijkmnopqrstuvwxyz"
	passwordDigits    = "23456789"
	passwordSymbols   = "!@$?_-"
	passwordLength    = 12
)

// GeneratePassword は初期パスワードを生成する。
// 大文字・小文字・数字・記号を各1文字以上含み、暗号学的乱数で生成・シャッフルする。
func GeneratePassword() (string, error) {
	categories := []string{passwordUppercase, passwordLowercase, passwordDigits, passwordSymbols}
	all := passwordUppercase + passwordLowercase + passwordDigits + passwordSymbols

	chars := make([]byte, 0, passwordLength)
	for _, category := range categories {
		c, err := randomChar(category)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < passwordLength {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Fisher-Yatesシャッフル。カテゴリ保証文字の位置を先頭に固定しない。
	for i := len(chars) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		chars[i], chars[j] = chars[j], chars[i]
	}
	return string(chars), nil
}

func randomChar(set string) (byte, error) {
	i, err := randomIndex(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("乱数の生成に失敗しました: %w", err)
	}
	return int(v.Int64()), nil
}
