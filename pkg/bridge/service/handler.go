package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/starkbridge/middleware/pkg/app/errors"
	apphttp "github.com/starkbridge/middleware/pkg/app/http"
	"github.com/starkbridge/middleware/pkg/auth"
	"github.com/starkbridge/middleware/pkg/bridge"
)

const (
	maxRequestBody = 1 << 20 // 1MB

	// dispatchTimeout bounds the asynchronous dispatch kicked off after a
	// transaction is created.
	dispatchTimeout = 5 * time.Minute
)

// Handler exposes the bridge lifecycle over HTTP.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// NewHandler creates a bridge HTTP handler.
func NewHandler(svc Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the authenticated and public bridge endpoints.
func (h *Handler) Routes(r chi.Router, issuer *auth.Issuer) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(issuer))
		r.Post("/transactions", apphttp.HandleError(h.createTransaction))
		r.Get("/transactions", apphttp.HandleError(h.listTransactions))
		r.Get("/transactions/{id}", apphttp.HandleError(h.getTransaction))
		r.Post("/transactions/{id}/process", apphttp.HandleError(h.processTransaction))
	})
	r.Post("/estimate", apphttp.HandleError(h.estimate))
	r.Get("/stats", apphttp.HandleError(h.stats))
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) error {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return apperrors.UnAuthorizedError(nil, "missing authentication")
	}

	var req bridge.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	tx, err := h.svc.CreateTransaction(r.Context(), userID, &req)
	if err != nil {
		return err
	}

	// Dispatch runs detached from the request so the client gets the pending
	// transaction back immediately.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := h.svc.ProcessTransaction(ctx, tx.ID); err != nil {
			h.logger.Error("background dispatch failed",
				zap.String("id", tx.ID), zap.Error(err))
		}
	}()

	return writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) error {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return apperrors.UnAuthorizedError(nil, "missing authentication")
	}

	tx, err := h.svc.GetTransaction(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, tx)
}

// processTransaction re-triggers dispatch for a stuck pending transaction.
// Dispatch is gated on the pending state, so repeated calls are harmless.
func (h *Handler) processTransaction(w http.ResponseWriter, r *http.Request) error {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return apperrors.UnAuthorizedError(nil, "missing authentication")
	}

	id := chi.URLParam(r, "id")
	// Ownership check before touching the lifecycle.
	if _, err := h.svc.GetTransaction(r.Context(), userID, id); err != nil {
		return err
	}
	if err := h.svc.ProcessTransaction(r.Context(), id); err != nil {
		return err
	}

	tx, err := h.svc.GetTransaction(r.Context(), userID, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) error {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return apperrors.UnAuthorizedError(nil, "missing authentication")
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", defaultPageLimit)

	result, err := h.svc.ListTransactions(r.Context(), userID, page, limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, result)
}

func (h *Handler) estimate(w http.ResponseWriter, r *http.Request) error {
	var req bridge.EstimateRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	est, err := h.svc.EstimateBridge(r.Context(), &req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, est)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, stats)
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
