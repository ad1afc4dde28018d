package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/wallet-engine/internal/security"
	"github.com/example/wallet-engine/internal/wallet"
	"github.com/example/wallet-engine/pkg/audit"
)

// Dependencies carries everything the router needs. RateLimiter, IPAllowlist
// and Auditor are optional; leaving them nil disables the feature.
type Dependencies struct {
	Logger       *slog.Logger
	Service      *wallet.Service
	Auditor      *audit.ChainLogger
	RateLimiter  *security.RedisTokenBucket
	IPAllowlist  []*net.IPNet
	MaxBodyBytes int64
}

// NewRouter assembles the HTTP surface: security middleware first, then
// schema validation per write route, then the handlers.
func NewRouter(deps Dependencies) (http.Handler, error) {
	createValidator, err := security.NewJSONSchemaValidator(createWalletSchema)
	if err != nil {
		return nil, fmt.Errorf("compile create wallet schema: %w", err)
	}
	txnValidator, err := security.NewJSONSchemaValidator(transactionSchema)
	if err != nil {
		return nil, fmt.Errorf("compile transaction schema: %w", err)
	}
	statusValidator, err := security.NewJSONSchemaValidator(statusSchema)
	if err != nil {
		return nil, fmt.Errorf("compile status schema: %w", err)
	}

	h := &handlers{svc: deps.Service, auditor: deps.Auditor}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	if deps.Logger != nil {
		r.Use(RequestLogger(deps.Logger))
	}
	if len(deps.IPAllowlist) > 0 {
		r.Use(security.IPAllowlist(deps.IPAllowlist))
	}
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, clientKey))
	}
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	r.Get("/healthz", healthz)

	r.Route("/v1", func(r chi.Router) {
		r.With(createValidator.Middleware).Post("/wallets", h.createWallet)
		r.Get("/wallets/{id}", h.getWallet)
		r.Get("/wallets/email/{email}", h.getWalletByEmail)
		r.With(txnValidator.Middleware).Post("/wallets/credit", h.credit)
		r.With(txnValidator.Middleware).Post("/wallets/debit", h.debit)
		r.With(statusValidator.Middleware).Patch("/wallets/{id}/status", h.setStatus)
		r.Get("/wallets/{id}/transactions", h.listTransactions)
		r.Get("/transactions/{reference}", h.getTransaction)
	})

	return r, nil
}

// clientKey buckets rate limiting by the peer address, ignoring the port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
