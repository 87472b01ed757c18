package domain

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	VerificationCodeLength = 6
	MaxAge                 = 150
)

// Account is a persisted, initially unverified registration.
type Account struct {
	ID               int64     `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Fullname         string    `json:"fullname"`
	Discord          string    `json:"discord"`
	Age              int       `json:"age"`
	VerificationCode *string   `json:"-"`
	IsVerified       bool      `json:"is_verified"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewAccount is the write model handed to the repository. PasswordHash must
// already be the output of the credential preparer.
type NewAccount struct {
	Email            string
	PasswordHash     string
	Fullname         string
	Discord          string
	Age              int
	VerificationCode string
}

type RegistrationRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Fullname string `json:"fullname"`
	Discord  string `json:"discord"`
	Age      int    `json:"age"`
}

// Normalize trims user input; the email is lowercased so the unique
// constraint sees one spelling per mailbox.
func (r *RegistrationRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Fullname = strings.TrimSpace(r.Fullname)
	r.Discord = strings.TrimSpace(r.Discord)
}

func (r *RegistrationRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.EmailFormat),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.Fullname, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Discord, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Age, validation.Min(0), validation.Max(MaxAge)),
	)
}
