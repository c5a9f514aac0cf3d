package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var codeSpan = big.NewInt(900000)

// VerifyCode returns a random six digit code in [100000, 999999].
func VerifyCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("generate verify code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
