package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"magnate/internal/config"
	"magnate/internal/econ"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type Server struct {
	cfg  config.ServiceConfig
	log  *slog.Logger
	econ *econ.Service
	mux  *chi.Mux
}

func New(cfg config.ServiceConfig, logger *slog.Logger, econSvc *econ.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		econ: econSvc,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/companies", s.handleCreateCompany)
		r.Get("/companies", s.handleListCompanies)
		r.Get("/companies/{id}", s.handleCompanyDetail)
		r.Get("/companies/{id}/prices", s.handleCompanyPrices)

		r.Post("/products", s.handleCreateProduct)
		r.Get("/products", s.handleListProducts)

		r.Post("/stocks/{company_id}/buy", s.handleBuy)
		r.Post("/stocks/{company_id}/sell", s.handleSell)

		r.Post("/transfers", s.handleTransfer)

		r.Get("/accounts/{id}/balance", s.handleAccountBalance)
		r.Get("/accounts/{id}/ledger", s.handleAccountLedger)

		r.Post("/waves/run", s.handleRunWave)
	})
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name                  string  `json:"name"`
		InitialDepositCredits float64 `json:"initial_deposit_credits"`
		TotalShares           int64   `json:"total_shares"`
		SharePriceCredits     float64 `json:"share_price_credits"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.econ.CreateCompany(r.Context(), econ.CreateCompanyInput{
		Name:                 in.Name,
		InitialDepositMicros: econ.CreditsToMicros(in.InitialDepositCredits),
		TotalShares:          in.TotalShares,
		SharePriceMicros:     econ.CreditsToMicros(in.SharePriceCredits),
		IdempotencyKey:       idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	out, err := s.econ.ListCompanies(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": out})
}

func (s *Server) handleCompanyDetail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	out, err := s.econ.CompanyDetail(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompanyPrices(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.econ.PriceHistory(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": out})
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CompanyID    string  `json:"company_id"`
		Name         string  `json:"name"`
		PriceCredits float64 `json:"price_credits"`
		Quality      *int32  `json:"quality"`
		StockUnits   *int64  `json:"stock_units"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	companyID, err := uuid.Parse(in.CompanyID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	out, err := s.econ.CreateProduct(r.Context(), econ.CreateProductInput{
		CompanyID:      companyID,
		Name:           in.Name,
		PriceMicros:    econ.CreditsToMicros(in.PriceCredits),
		Quality:        in.Quality,
		StockUnits:     in.StockUnits,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	var companyID *uuid.UUID
	if raw := strings.TrimSpace(r.URL.Query().Get("company_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid company id")
			return
		}
		companyID = &id
	}
	out, err := s.econ.ListProducts(r.Context(), companyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": out})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, true)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, false)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, buy bool) {
	companyID, err := uuid.Parse(chi.URLParam(r, "company_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var in struct {
		AccountID string `json:"account_id"`
		Shares    int64  `json:"shares"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	accountID, err := uuid.Parse(in.AccountID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	input := econ.TradeInput{
		CompanyID:      companyID,
		AccountID:      accountID,
		Shares:         in.Shares,
		IdempotencyKey: idempotencyKey(r),
	}
	var result econ.TradeResult
	if buy {
		result, err = s.econ.Buy(r.Context(), input)
	} else {
		result, err = s.econ.Sell(r.Context(), input)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FromAccountID string  `json:"from_account_id"`
		ToAccountID   string  `json:"to_account_id"`
		AmountCredits float64 `json:"amount_credits"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fromID, err := uuid.Parse(in.FromAccountID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from account id")
		return
	}
	toID, err := uuid.Parse(in.ToAccountID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to account id")
		return
	}
	out, err := s.econ.Transfer(r.Context(), econ.TransferInput{
		FromAccountID:  fromID,
		ToAccountID:    toID,
		AmountMicros:   econ.CreditsToMicros(in.AmountCredits),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	out, err := s.econ.AccountBalance(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAccountLedger(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.econ.LedgerEntries(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (s *Server) handleRunWave(w http.ResponseWriter, r *http.Request) {
	out, err := s.econ.RunPurchaseWave(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, econ.ErrInvalidQuantity),
		errors.Is(err, econ.ErrInsufficientFunds),
		errors.Is(err, econ.ErrInsufficientShares):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, econ.ErrCompanyNotPublic):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, econ.ErrCompanyNotFound),
		errors.Is(err, econ.ErrAccountNotFound),
		errors.Is(err, econ.ErrProductNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, econ.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, econ.ErrDuplicateIdempotency), errors.Is(err, econ.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}
