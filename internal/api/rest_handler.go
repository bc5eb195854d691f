package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/processor"
	"bankcore/internal/repository"
	"bankcore/pkg/crypto"
	"bankcore/pkg/metrics"
	"bankcore/pkg/validator"
)

type APIHandler struct {
	orchestrator   *processor.TransactionOrchestrator
	accounts       *processor.AccountService
	validator      *validator.TransactionValidator
	metrics        *metrics.Collector
	signer         *crypto.Signer
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(
	orchestrator *processor.TransactionOrchestrator,
	accounts *processor.AccountService,
	collector *metrics.Collector,
	signer *crypto.Signer,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		orchestrator:   orchestrator,
		accounts:       accounts,
		validator:      validator.NewTransactionValidator(),
		metrics:        collector,
		signer:         signer,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

type OpenAccountRequest struct {
	CustomerID string             `json:"customer_id"`
	Type       domain.AccountType `json:"type"`
	Currency   string             `json:"currency"`
}

type UpdateAccountStatusRequest struct {
	Status    domain.AccountStatus `json:"status"`
	Reason    string               `json:"reason,omitempty"`
	ChangedBy string               `json:"changed_by,omitempty"`
}

type MoveMoneyRequest struct {
	FromAccountID string            `json:"from_account_id,omitempty"`
	ToAccountID   string            `json:"to_account_id,omitempty"`
	AccountID     string            `json:"account_id,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type PlaceHoldRequest struct {
	AccountID     string          `json:"account_id"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	HoldType      domain.HoldType `json:"hold_type"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *APIHandler) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if req.CustomerID == "" {
		h.sendError(w, "customer_id is required", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	account, err := h.accounts.Open(ctx, req.CustomerID, req.Type, req.Currency)
	if err != nil {
		h.sendError(w, "Failed to open account", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}

	h.sendJSON(w, account, http.StatusCreated)
}

func (h *APIHandler) UpdateAccountStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	accountID := r.PathValue("id")
	var req UpdateAccountStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if err := h.accounts.UpdateStatus(ctx, accountID, req.Status, req.Reason, req.ChangedBy); err != nil {
		h.sendProcessorError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	summary, err := h.orchestrator.GetBalance(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.sendError(w, "Account not found", http.StatusNotFound, "NOT_FOUND")
			return
		}
		h.sendProcessorError(w, err)
		return
	}

	h.sendJSON(w, summary, http.StatusOK)

	if h.metrics != nil {
		h.metrics.SetAccountBalance(summary.AccountID, summary.Currency, summary.Balance)
	}
}

func (h *APIHandler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, "deposit", func(ctx context.Context, req MoveMoneyRequest, key string) (*processor.TransactionResult, error) {
		return h.orchestrator.Deposit(ctx, processor.DepositRequest{
			AccountID:      firstNonEmpty(req.AccountID, req.ToAccountID),
			Amount:         req.Amount,
			Currency:       req.Currency,
			IdempotencyKey: key,
			Description:    req.Description,
			Metadata:       req.Metadata,
		})
	})
}

func (h *APIHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, "withdrawal", func(ctx context.Context, req MoveMoneyRequest, key string) (*processor.TransactionResult, error) {
		return h.orchestrator.Withdraw(ctx, processor.WithdrawRequest{
			AccountID:      firstNonEmpty(req.AccountID, req.FromAccountID),
			Amount:         req.Amount,
			Currency:       req.Currency,
			IdempotencyKey: key,
			Description:    req.Description,
			Metadata:       req.Metadata,
		})
	})
}

func (h *APIHandler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, "transfer", func(ctx context.Context, req MoveMoneyRequest, key string) (*processor.TransactionResult, error) {
		return h.orchestrator.Transfer(ctx, processor.TransferRequest{
			FromAccountID:  req.FromAccountID,
			ToAccountID:    req.ToAccountID,
			Amount:         req.Amount,
			Currency:       req.Currency,
			IdempotencyKey: key,
			Description:    req.Description,
			Metadata:       req.Metadata,
		})
	})
}

func (h *APIHandler) moveMoney(
	w http.ResponseWriter,
	r *http.Request,
	txType string,
	run func(ctx context.Context, req MoveMoneyRequest, key string) (*processor.TransactionResult, error),
) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req MoveMoneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if err := h.validator.ValidateAmount(req.Amount, req.Currency); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	result, err := run(ctx, req, key)

	if h.metrics != nil {
		reason := ""
		if result != nil {
			reason = result.FailureReason
		} else if err != nil {
			reason = processor.FailureReason(err)
		}
		h.metrics.RecordTransaction(txType, time.Since(startTime), reason)
		if result != nil && result.Duplicate {
			h.metrics.IdempotentReplay()
		}
	}

	if err != nil {
		h.sendProcessorError(w, err)
		return
	}

	if h.signer != nil && result.Status == domain.StatusCompleted {
		w.Header().Set("X-Transaction-Signature",
			h.signer.SignTransaction(result.TransactionID, req.Amount, req.Currency, startTime.Unix()))
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	h.sendJSON(w, result, status)
}

func (h *APIHandler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	tx, err := h.orchestrator.GetTransaction(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.sendError(w, "Transaction not found", http.StatusNotFound, "NOT_FOUND")
			return
		}
		h.sendError(w, "Failed to get transaction", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}

	h.sendJSON(w, tx, http.StatusOK)
}

func (h *APIHandler) PlaceHoldHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req PlaceHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	hold, err := h.orchestrator.PlaceHold(ctx, req.AccountID, req.TransactionID, req.Amount, req.HoldType)
	if err != nil {
		h.sendProcessorError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.HoldPlaced(string(hold.Type))
	}
	h.sendJSON(w, hold, http.StatusCreated)
}

func (h *APIHandler) ReleaseHoldHandler(w http.ResponseWriter, r *http.Request) {
	h.settleHold(w, r, h.orchestrator.ReleaseHold)
}

func (h *APIHandler) CaptureHoldHandler(w http.ResponseWriter, r *http.Request) {
	h.settleHold(w, r, h.orchestrator.CaptureHold)
}

func (h *APIHandler) settleHold(w http.ResponseWriter, r *http.Request, settle func(ctx context.Context, holdID string) error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	holdID := r.PathValue("id")
	if err := settle(ctx, holdID); err != nil {
		h.sendProcessorError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	h.sendJSON(w, response, http.StatusOK)
}

// sendProcessorError maps the orchestrator's error taxonomy onto HTTP codes.
func (h *APIHandler) sendProcessorError(w http.ResponseWriter, err error) {
	code := processor.FailureReason(err)
	switch {
	case errors.Is(err, processor.ErrValidation):
		h.sendError(w, err.Error(), http.StatusBadRequest, code)
	case errors.Is(err, processor.ErrAccountNotActive),
		errors.Is(err, processor.ErrInsufficientFunds),
		errors.Is(err, processor.ErrLimitExceeded),
		errors.Is(err, processor.ErrFraudBlocked):
		h.sendError(w, err.Error(), http.StatusUnprocessableEntity, code)
	case errors.Is(err, processor.ErrVelocityBlocked):
		h.sendError(w, err.Error(), http.StatusTooManyRequests, code)
	case errors.Is(err, processor.ErrIdempotencyConflict):
		h.sendError(w, err.Error(), http.StatusConflict, "IDEMPOTENCY_CONFLICT")
	case errors.Is(err, processor.ErrBusy):
		h.sendError(w, err.Error(), http.StatusConflict, code)
	default:
		h.sendError(w, "Internal error", http.StatusInternalServerError, "SERVER_ERROR")
	}
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/accounts", h.OpenAccountHandler)
	mux.HandleFunc("PUT /api/v1/accounts/{id}/status", h.UpdateAccountStatusHandler)
	mux.HandleFunc("GET /api/v1/accounts/{id}/balance", h.GetBalanceHandler)
	mux.HandleFunc("POST /api/v1/transactions/deposit", h.DepositHandler)
	mux.HandleFunc("POST /api/v1/transactions/withdraw", h.WithdrawHandler)
	mux.HandleFunc("POST /api/v1/transactions/transfer", h.TransferHandler)
	mux.HandleFunc("GET /api/v1/transactions/{id}", h.GetTransactionHandler)
	mux.HandleFunc("POST /api/v1/holds", h.PlaceHoldHandler)
	mux.HandleFunc("POST /api/v1/holds/{id}/release", h.ReleaseHoldHandler)
	mux.HandleFunc("POST /api/v1/holds/{id}/capture", h.CaptureHoldHandler)
	mux.HandleFunc("GET /api/health", h.HealthCheckHandler)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
