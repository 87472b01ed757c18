package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/dutchville-accounts/internal/domain"
	"github.com/diagnosis/dutchville-accounts/internal/http/response"
	"github.com/diagnosis/dutchville-accounts/internal/service"
	"github.com/diagnosis/dutchville-accounts/pkg/logger"
	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const maxBodyBytes = 1 << 20

type Registrar interface {
	Register(ctx context.Context, req domain.RegistrationRequest) (service.Result, error)
}

type RegisterHandler struct {
	Svc       Registrar
	RateLimit func(http.Handler) http.Handler
}

func NewRegisterHandler(svc Registrar, rateLimit func(http.Handler) http.Handler) *RegisterHandler {
	return &RegisterHandler{Svc: svc, RateLimit: rateLimit}
}

func (h *RegisterHandler) Routes() chi.Router {
	r := chi.NewRouter()
	if h.RateLimit != nil {
		r.With(h.RateLimit).Post("/register", h.register)
	} else {
		r.Post("/register", h.register)
	}
	return r
}

func (h *RegisterHandler) register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var in domain.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.PayloadTooLarge(w, response.MsgBodyTooLarge)
			return
		}
		logger.DebugContext(r.Context(), "register: bad json", "error", err)
		response.BadRequest(w, response.MsgInvalidInput, nil)
		return
	}

	_, err := h.Svc.Register(r.Context(), in)
	switch {
	case err == nil:
		response.Created(w, response.MsgRegistered)
	case errors.Is(err, service.ErrInvalidInput):
		response.BadRequest(w, response.MsgInvalidInput, fieldErrors(err))
	case errors.Is(err, service.ErrEmailExists):
		response.Conflict(w, response.MsgEmailExists)
	case errors.Is(err, service.ErrPersistence):
		response.InternalError(w, response.MsgDatabaseError)
	case errors.Is(err, service.ErrNotification):
		response.BadGateway(w, response.MsgEmailSendFailed)
	default:
		logger.ErrorContext(r.Context(), "register: unexpected error", "error", err)
		response.InternalError(w, response.MsgInternalError)
	}
}

func fieldErrors(err error) map[string]string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for field, e := range verrs {
		out[field] = e.Error()
	}
	return out
}
