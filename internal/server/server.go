package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paygate/internal/config"
	"paygate/internal/gateway"
	"paygate/internal/store"
)

// recentLimit is the row count served by GET /transactions; the dashboard
// renders exactly this many.
const recentLimit = 10

type Server struct {
	cfg           *config.AppConfig
	store         store.Store
	verifier      gateway.PaymentVerifier
	dispatcher    *gateway.Dispatcher
	httpServer    *http.Server
	metrics       *metricsRegistry
	validate      *validator.Validate
	log           *zap.Logger
	storeHealthFn func(context.Context) error
	chainHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, st store.Store, verifier gateway.PaymentVerifier, dispatcher *gateway.Dispatcher, log *zap.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		store:      st,
		verifier:   verifier,
		dispatcher: dispatcher,
		metrics:    newMetricsRegistry(),
		validate:   validator.New(),
		log:        log,
	}

	if checker, ok := st.(interface{ Ping(context.Context) error }); ok {
		s.storeHealthFn = checker.Ping
	}
	if checker, ok := verifier.(interface{ Ping(context.Context) error }); ok {
		s.chainHealthFn = checker.Ping
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/services", s.handleServices)
	mux.HandleFunc("/transactions", s.handleTransactions)
	mux.HandleFunc("/proxy-request", s.handleProxyRequest)
	mux.HandleFunc("/verify-payment", s.handleVerifyPayment)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.handler())

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info("API listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type registerRequest struct {
	Name          string `json:"name" validate:"required"`
	WalletAddress string `json:"wallet_address" validate:"required"`
	EndpointURL   string `json:"endpoint_url" validate:"required,url"`
	Price         string `json:"price" validate:"required"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload registerRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.metrics.incRegistration("invalid")
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if err := s.validate.Struct(&payload); err != nil {
		s.metrics.incRegistration("invalid")
		writeError(w, http.StatusBadRequest, "missing required fields: name, wallet_address, endpoint_url, price")
		return
	}
	if !common.IsHexAddress(payload.WalletAddress) {
		s.metrics.incRegistration("invalid")
		writeError(w, http.StatusBadRequest, "wallet_address is not a valid address")
		return
	}
	if price, err := decimal.NewFromString(payload.Price); err != nil || !price.IsPositive() {
		s.metrics.incRegistration("invalid")
		writeError(w, http.StatusBadRequest, "price must be a positive decimal string")
		return
	}

	svc, err := s.store.CreateService(r.Context(), payload.Name, payload.WalletAddress, payload.EndpointURL, payload.Price)
	if err != nil {
		s.metrics.incRegistration("failed")
		s.log.Error("service registration failed", zap.String("name", payload.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to register service")
		return
	}

	s.metrics.incRegistration("created")
	writeJSON(w, http.StatusCreated, svc)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	services, err := s.store.ListServices(r.Context())
	if err != nil {
		s.log.Error("service listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list services")
		return
	}
	if services == nil {
		services = []store.Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	attempts, err := s.store.RecentAttempts(r.Context(), recentLimit)
	if err != nil {
		s.log.Error("attempt listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if attempts == nil {
		attempts = []store.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

type proxyRequest struct {
	ServiceID int64           `json:"service_id" validate:"required"`
	TxHash    string          `json:"tx_hash" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

func (s *Server) handleProxyRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.metrics.incProxy("invalid")
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if err := s.validate.Struct(&payload); err != nil || string(payload.Payload) == "null" {
		s.metrics.incProxy("invalid")
		writeError(w, http.StatusBadRequest, "missing required fields: service_id, tx_hash, payload")
		return
	}

	start := time.Now()
	result, err := s.dispatcher.Handle(r.Context(), payload.ServiceID, payload.TxHash, payload.Payload)
	s.metrics.observeProxy(time.Since(start))

	if err != nil {
		if errors.Is(err, gateway.ErrServiceNotFound) {
			s.metrics.incProxy("not_found")
			writeError(w, http.StatusNotFound, "service not found")
			return
		}
		s.metrics.incProxy("error")
		s.log.Error("proxy request failed",
			zap.Int64("service_id", payload.ServiceID),
			zap.String("tx_hash", payload.TxHash),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.metrics.incProxy(result.Status)

	if result.Rejected {
		s.metrics.incVerification("rejected")
		writeError(w, http.StatusPaymentRequired, "payment required: verification failed")
		return
	}
	s.metrics.incVerification("accepted")

	if result.Status == store.StatusFailedProxy {
		if result.UpstreamStatus > 0 {
			// The endpoint answered with an error; pass it through verbatim.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(result.UpstreamStatus)
			_, _ = w.Write(result.UpstreamBody)
			return
		}
		writeError(w, http.StatusBadGateway, "bad gateway: failed to reach service endpoint")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.UpstreamBody)
}

type verifyPaymentRequest struct {
	TxHash    string `json:"txHash" validate:"required"`
	Recipient string `json:"recipient" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
}

// handleVerifyPayment is a debug surface for poking the verifier directly.
func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if err := s.validate.Struct(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "missing required fields: txHash, recipient, amount")
		return
	}

	ok, _ := s.verifier.Verify(r.Context(), payload.TxHash, payload.Recipient, payload.Amount)
	if ok {
		s.metrics.incVerification("accepted")
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "payment verified"})
		return
	}
	s.metrics.incVerification("rejected")
	writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "payment invalid"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	chainInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.chainHealthFn != nil {
		start := time.Now()
		chainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.chainHealthFn(chainCtx); err != nil {
			chainInfo.Connected = false
			chainInfo.Error = err.Error()
			overallHealthy = false
		} else {
			chainInfo.Connected = true
			chainInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		chainInfo.Connected = true
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.storeHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.storeHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, struct {
		Status   string `json:"status"`
		Chain    any    `json:"chain"`
		Database any    `json:"database"`
	}{
		Status:   status,
		Chain:    chainInfo,
		Database: dbInfo,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		next.ServeHTTP(w, r)
	})
}
