package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/wallet-engine/internal/security"
	"github.com/example/wallet-engine/internal/wallet"
	"github.com/example/wallet-engine/pkg/audit"
)

// IdempotencyKeyHeader carries the client's deduplication token for credit
// and debit requests. Absent header means no deduplication.
const IdempotencyKeyHeader = "Idempotency-Key"

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type handlers struct {
	svc     *wallet.Service
	auditor *audit.ChainLogger
}

type createWalletRequest struct {
	Email string `json:"email"`
}

func (h *handlers) createWallet(w http.ResponseWriter, r *http.Request) {
	var req createWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	account, err := h.svc.CreateAccount(r.Context(), req.Email)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, account)
}

func (h *handlers) getWallet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "validation_error")
		return
	}

	account, err := h.svc.GetAccount(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, account)
}

func (h *handlers) getWalletByEmail(w http.ResponseWriter, r *http.Request) {
	account, err := h.svc.GetAccountByEmail(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, account)
}

type transactionRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (h *handlers) credit(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, h.svc.Credit)
}

func (h *handlers) debit(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, h.svc.Debit)
}

func (h *handlers) post(w http.ResponseWriter, r *http.Request, apply func(context.Context, wallet.TransactionRequest) (*wallet.Transaction, error)) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	txn, err := apply(r.Context(), wallet.TransactionRequest{
		Email:          req.Email,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	if h.auditor != nil {
		h.auditor.Movement(txn.AccountID.String(), string(txn.Type), txn.Reference, txn.Amount, txn.BalanceAfter)
	}
	writeJSON(w, r, http.StatusOK, txn)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (h *handlers) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "validation_error")
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	account, err := h.svc.SetStatus(r.Context(), id, wallet.Status(req.Status))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, account)
}

func (h *handlers) getTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.svc.GetTransaction(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, txn)
}

func (h *handlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "validation_error")
		return
	}

	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	txns, err := h.svc.ListTransactions(r.Context(), id, limit, offset)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if txns == nil {
		txns = []*wallet.Transaction{}
	}
	writeJSON(w, r, http.StatusOK, txns)
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

func healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
