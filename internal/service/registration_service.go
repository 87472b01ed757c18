package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/dutchville-accounts/internal/domain"
	"github.com/diagnosis/dutchville-accounts/internal/platform/auth"
	"github.com/diagnosis/dutchville-accounts/internal/platform/mailer"
	"github.com/diagnosis/dutchville-accounts/internal/repo/postgres"
	"github.com/diagnosis/dutchville-accounts/pkg/events"
	"github.com/diagnosis/dutchville-accounts/pkg/logger"
	"github.com/diagnosis/dutchville-accounts/pkg/metrics"
)

// State is a step of a single registration attempt.
type State string

const (
	StateInvalid            State = "invalid"
	StateReceived           State = "received"
	StatePrepared           State = "prepared"
	StatePersisted          State = "persisted"
	StateNotified           State = "notified"
	StateComplete           State = "complete"
	StateDuplicateRejected  State = "duplicate_rejected"
	StatePersistenceFailed  State = "persistence_failed"
	StateNotificationFailed State = "notification_failed"
)

var (
	ErrInvalidInput = errors.New("invalid registration data")
	ErrEmailExists  = errors.New("email already exists")
	ErrPersistence  = errors.New("account could not be stored")
	ErrNotification = errors.New("verification email not sent")
)

const defaultSendTimeout = 15 * time.Second

type AccountCreator interface {
	Create(ctx context.Context, a domain.NewAccount) (int64, error)
}

type CredentialPreparer interface {
	Prepare(plain string) (string, error)
}

// Result describes where an attempt stopped. AccountID is set once the
// account has been persisted, even when the email later fails.
type Result struct {
	AccountID int64
	State     State
}

type RegistrationService struct {
	accounts    AccountCreator
	hasher      CredentialPreparer
	dispatcher  mailer.Dispatcher
	events      events.Publisher
	subject     string
	metrics     *metrics.Metrics
	newCode     func() string
	sendTimeout time.Duration
}

type Option func(*RegistrationService)

func WithEvents(p events.Publisher, subject string) Option {
	return func(s *RegistrationService) {
		s.events = p
		s.subject = subject
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *RegistrationService) { s.metrics = m }
}

func WithSendTimeout(d time.Duration) Option {
	return func(s *RegistrationService) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

func WithCodeGenerator(gen func() string) Option {
	return func(s *RegistrationService) { s.newCode = gen }
}

func NewRegistrationService(accounts AccountCreator, hasher CredentialPreparer, dispatcher mailer.Dispatcher, opts ...Option) *RegistrationService {
	s := &RegistrationService{
		accounts:    accounts,
		hasher:      hasher,
		dispatcher:  dispatcher,
		events:      events.NopPublisher{},
		subject:     events.AccountRegistered,
		newCode:     auth.GenerateVerificationCode,
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register runs one attempt to completion. The email is sent only after the
// insert has committed; a failed send leaves the account stored and unverified.
func (s *RegistrationService) Register(ctx context.Context, req domain.RegistrationRequest) (Result, error) {
	req.Normalize()
	res := Result{State: StateInvalid}

	if err := req.Validate(); err != nil {
		s.finish(res.State)
		return res, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	res.State = StateReceived
	redacted := logger.RedactEmail(req.Email)

	hash, err := s.hasher.Prepare(req.Password)
	if err != nil {
		logger.ErrorContext(ctx, "prepare credentials failed", "email", redacted, "error", err)
		res.State = StatePersistenceFailed
		s.finish(res.State)
		return res, fmt.Errorf("%w: prepare credentials: %w", ErrPersistence, err)
	}
	code := s.newCode()
	res.State = StatePrepared

	id, err := s.accounts.Create(ctx, domain.NewAccount{
		Email:            req.Email,
		PasswordHash:     hash,
		Fullname:         req.Fullname,
		Discord:          req.Discord,
		Age:              req.Age,
		VerificationCode: code,
	})
	switch {
	case errors.Is(err, postgres.ErrDuplicateEmail):
		logger.InfoContext(ctx, "registration rejected: email exists", "email", redacted)
		res.State = StateDuplicateRejected
		s.finish(res.State)
		return res, ErrEmailExists
	case err != nil:
		logger.ErrorContext(ctx, "account insert failed", "email", redacted, "error", err)
		res.State = StatePersistenceFailed
		s.finish(res.State)
		return res, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	res.AccountID = id
	res.State = StatePersisted

	// The row is committed; a client hang-up must not abort the send.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sendTimeout)
	defer cancel()

	if err := s.dispatcher.SendVerification(sendCtx, req.Email, req.Fullname, code); err != nil {
		logger.ErrorContext(ctx, "verification email failed",
			"account_id", id,
			"email", redacted,
			"error", err,
		)
		res.State = StateNotificationFailed
		s.publish(ctx, id, false)
		s.finish(res.State)
		return res, fmt.Errorf("%w: %w", ErrNotification, err)
	}
	res.State = StateNotified

	s.publish(ctx, id, true)
	res.State = StateComplete
	s.finish(res.State)
	logger.InfoContext(ctx, "account registered", "account_id", id, "email", redacted)
	return res, nil
}

// publish is best-effort; the response never depends on it.
func (s *RegistrationService) publish(ctx context.Context, id int64, notified bool) {
	err := s.events.Publish(ctx, s.subject, events.AccountRegisteredEvent{
		AccountID:    id,
		Notified:     notified,
		RegisteredAt: time.Now().UTC(),
	})
	if err != nil {
		logger.WarnContext(ctx, "publish account event failed", "account_id", id, "error", err)
	}
}

func (s *RegistrationService) finish(state State) {
	s.metrics.Registration(string(state))
}
