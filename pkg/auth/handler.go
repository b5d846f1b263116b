package auth

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/starkbridge/middleware/pkg/app/errors"
)

const maxLoginBody = 1 << 20 // 1MB

// LoginRequest is a wallet login request. The client signs an arbitrary
// message with personal_sign and trades the signature for a session token.
type LoginRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

// Handler exposes the wallet login endpoint.
type Handler struct {
	issuer *Issuer
	logger *zap.Logger
}

// NewHandler creates a login handler.
func NewHandler(issuer *Issuer, logger *zap.Logger) *Handler {
	return &Handler{issuer: issuer, logger: logger}
}

// Login verifies an EIP-191 signature and issues a session token for the
// recovered address.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBody))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	var req LoginRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if req.Message == "" || req.Signature == "" {
		return apperrors.BadRequestError(nil, "message and signature are required")
	}

	recovered, err := VerifyEIP191Signature(req.Message, req.Signature)
	if err != nil {
		return apperrors.UnAuthorizedError(err, "signature verification failed")
	}

	address := NormalizeAddress(recovered.Hex())
	token, err := h.issuer.IssueToken(address)
	if err != nil {
		return apperrors.GeneralError(err)
	}

	h.logger.Info("wallet login", zap.String("address", address))

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(&LoginResponse{
		Token:   token,
		Address: address,
	})
}
