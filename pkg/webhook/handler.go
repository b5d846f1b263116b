package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/starkbridge/middleware/pkg/app/errors"
	apphttp "github.com/starkbridge/middleware/pkg/app/http"
)

const maxWebhookBody = 1 << 20 // 1MB

// Handler exposes the webhook ingestion endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a webhook HTTP handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the webhook endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/evm", apphttp.HandleError(h.evm))
	r.Post("/starknet", apphttp.HandleError(h.starknet))
	r.Post("/price", apphttp.HandleError(h.price))
}

func (h *Handler) evm(w http.ResponseWriter, r *http.Request) error {
	var event EVMEvent
	if err := decode(r, &event); err != nil {
		return err
	}
	if err := h.svc.HandleEVM(r.Context(), &event); err != nil {
		return apperrors.BadRequestError(err, "failed to process EVM event")
	}
	return accepted(w)
}

func (h *Handler) starknet(w http.ResponseWriter, r *http.Request) error {
	var event StarkNetEvent
	if err := decode(r, &event); err != nil {
		return err
	}
	if err := h.svc.HandleStarkNet(r.Context(), &event); err != nil {
		return apperrors.BadRequestError(err, "failed to process StarkNet event")
	}
	return accepted(w)
}

func (h *Handler) price(w http.ResponseWriter, r *http.Request) error {
	var event PriceEvent
	if err := decode(r, &event); err != nil {
		return err
	}
	if err := h.svc.HandlePrice(r.Context(), &event); err != nil {
		return apperrors.BadRequestError(err, "failed to process price event")
	}
	return accepted(w)
}

func decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

func accepted(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
