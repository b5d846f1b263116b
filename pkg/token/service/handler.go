package service

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/starkbridge/middleware/pkg/app/errors"
	apphttp "github.com/starkbridge/middleware/pkg/app/http"
	"github.com/starkbridge/middleware/pkg/token"
)

// Handler exposes the token catalog over HTTP.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a token HTTP handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the token endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", apphttp.HandleError(h.listTokens))
	r.Get("/{address}", apphttp.HandleError(h.getToken))
}

func (h *Handler) listTokens(w http.ResponseWriter, r *http.Request) error {
	tokens, err := h.svc.ListTokens(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) getToken(w http.ResponseWriter, r *http.Request) error {
	address := chi.URLParam(r, "address")

	tok, err := h.svc.GetToken(r.Context(), address)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return apperrors.ResourceNotFoundError(err, "token not found")
		}
		return err
	}
	return writeJSON(w, http.StatusOK, tok)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
