package auth

import (
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
)

var ErrEmptyPassword = errors.New("password must not be empty")

// PasswordHasher turns a submitted password into the stored secret.
type PasswordHasher struct {
	params *argon2id.Params
}

func NewPasswordHasher(params *argon2id.Params) *PasswordHasher {
	if params == nil {
		params = argon2id.DefaultParams
	}
	return &PasswordHasher{params: params}
}

// Prepare returns an argon2id PHC string. The salt is random, so two calls
// with the same input produce different outputs.
func (h *PasswordHasher) Prepare(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	hash, err := argon2id.CreateHash(plain, h.params)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (h *PasswordHasher) Verify(plain, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(plain, hash)
}
