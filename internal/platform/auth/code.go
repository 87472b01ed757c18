package auth

import (
	"crypto/rand"
	"math/big"

	"github.com/diagnosis/dutchville-accounts/internal/domain"
)

// CodeAlphabet is the 62-symbol alphabet verification codes are drawn from.
const CodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var alphabetSize = big.NewInt(int64(len(CodeAlphabet)))

// GenerateVerificationCode returns a fresh 6 character code. Each symbol is
// an independent uniform draw from crypto/rand.
func GenerateVerificationCode() string {
	b := make([]byte, domain.VerificationCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic("auth: read random: " + err.Error())
		}
		b[i] = CodeAlphabet[n.Int64()]
	}
	return string(b)
}
