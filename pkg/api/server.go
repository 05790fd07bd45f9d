package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/ledgerdex/pkg/dex/engine"
	"github.com/uhyunpark/ledgerdex/pkg/dex/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/events"
)

const defaultTradesLimit = 100

type Options struct {
	CORSOrigins []string
	Logger      *zap.Logger
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

// Server handles REST API and WebSocket connections
type Server struct {
	ex     *engine.Exchange
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
	opts   Options
}

func NewServer(ex *engine.Exchange, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	log := opts.Logger.Sugar().Named("api")
	s := &Server{
		ex:     ex,
		router: mux.NewRouter(),
		hub:    NewHub(log.Named("ws")),
		log:    log,
		opts:   opts,
	}
	s.setupRoutes()
	return s
}

// Hub returns the WebSocket hub so it can be registered as an event publisher.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Asset endpoints
	api.HandleFunc("/assets", s.handleListAssets).Methods("GET")
	api.HandleFunc("/assets", s.handleRegisterAsset).Methods("POST")

	// Ledger endpoints
	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/accounts/{address}/balances/{ticker}", s.handleGetBalance).Methods("GET")

	// Order submission
	api.HandleFunc("/orders/limit", s.handleLimitOrder).Methods("POST")
	api.HandleFunc("/orders/market", s.handleMarketOrder).Methods("POST")

	// Market data
	api.HandleFunc("/books/{ticker}/{side}", s.handleGetBook).Methods("GET")
	api.HandleFunc("/trades/{ticker}", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/state", s.handleGetState).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("server_starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Infow("server_stopping", "addr", addr)
		return srv.Shutdown(shutdownCtx)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	q := s.ex.Quote()
	resp := AssetsResponse{
		Quote:  events.Asset{Ticker: q.Ticker, Address: q.Address.Hex()},
		Assets: []events.Asset{},
	}
	for _, a := range s.ex.Assets() {
		resp.Assets = append(resp.Assets, events.Asset{Ticker: a.Ticker, Address: a.Address.Hex()})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req RegisterAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	ref, err := parseAddress("address", req.Address)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	if err := s.ex.RegisterAsset(caller, req.Ticker, ref); err != nil {
		s.respondEngineError(w, "register_asset", err)
		return
	}
	respondJSON(w, http.StatusCreated, events.Asset{Ticker: req.Ticker, Address: ref.Hex()})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, "deposit", s.ex.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, "withdraw", s.ex.Withdraw)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, op string,
	apply func(common.Address, string, *uint256.Int) error) {
	var req TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	err = apply(account, req.Ticker, amount)
	warning, applied := s.appliedWarning(op, err)
	if !applied {
		s.respondEngineError(w, op, err)
		return
	}
	respondJSON(w, http.StatusOK, BalanceResponse{
		Address: account.Hex(),
		Ticker:  req.Ticker,
		Balance: s.ex.Balance(account, req.Ticker).Dec(),
		Warning: warning,
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addr, err := parseAddress("address", vars["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}
	ticker := vars["ticker"]
	respondJSON(w, http.StatusOK, BalanceResponse{
		Address: addr.Hex(),
		Ticker:  ticker,
		Balance: s.ex.Balance(addr, ticker).Dec(),
	})
}

func (s *Server) handleLimitOrder(w http.ResponseWriter, r *http.Request) {
	var req LimitOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	trader, err := parseAddress("trader", req.Trader)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	id, err := s.ex.CreateLimitOrder(trader, req.Ticker, amount, price, side)
	warning, applied := s.appliedWarning("limit_order", err)
	if !applied {
		s.respondEngineError(w, "limit_order", err)
		return
	}
	respondJSON(w, http.StatusCreated, LimitOrderResponse{OrderID: id, Warning: warning})
}

func (s *Server) handleMarketOrder(w http.ResponseWriter, r *http.Request) {
	var req MarketOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	trader, err := parseAddress("trader", req.Trader)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	res, err := s.ex.CreateMarketOrder(trader, req.Ticker, amount, side)
	warning, applied := s.appliedWarning("market_order", err)
	if !applied {
		s.respondEngineError(w, "market_order", err)
		return
	}
	resp := MarketOrderResponse{
		Ticker:    res.Ticker,
		Side:      res.Side.String(),
		Requested: res.Requested.Dec(),
		Filled:    res.Filled.Dec(),
		Unfilled:  res.Unfilled().Dec(),
		Fills:     make([]events.Trade, 0, len(res.Fills)),
		Halted:    res.Halted,
		Skipped:   res.Skipped,
		Warning:   warning,
	}
	for i := range res.Fills {
		resp.Fills = append(resp.Fills, engine.TradeView(&res.Fills[i]))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ticker := vars["ticker"]
	side, err := orderbook.ParseSide(vars["side"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}

	depth, err := s.ex.Depth(ticker, side)
	if err != nil {
		s.respondEngineError(w, "get_book", err)
		return
	}

	resp := BookResponse{
		Ticker: ticker,
		Side:   side.String(),
		Orders: make([]events.Order, len(depth.Orders)),
		Levels: make([]PriceLevel, len(depth.Levels)),
	}
	for i := range depth.Orders {
		resp.Orders[i] = engine.OrderView(&depth.Orders[i])
	}
	for i, l := range depth.Levels {
		resp.Levels[i] = PriceLevel{Price: l.Price.Dec(), Size: l.Qty.Dec()}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	limit := defaultTradesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = n
	}

	trades, err := s.ex.Trades(ticker, limit)
	if err != nil {
		s.respondEngineError(w, "get_trades", err)
		return
	}
	resp := make([]events.Trade, len(trades))
	for i := range trades {
		resp[i] = engine.TradeView(&trades[i])
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st := s.ex.Stats()
	respondJSON(w, http.StatusOK, StateResponse{
		Hash:          s.ex.StateHash().Hex(),
		Assets:        st.Assets,
		RestingOrders: st.RestingOrders,
		NextOrderID:   st.NextOrderID,
		NextTradeID:   st.NextTradeID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadyRegistered), errors.Is(err, engine.ErrReservedTicker):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrInsufficientTokenBalance),
		errors.Is(err, engine.ErrInsufficientQuoteBalance),
		errors.Is(err, engine.ErrBalanceOverflow),
		errors.Is(err, engine.ErrNotionalOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidPrice),
		errors.Is(err, engine.ErrInvalidSide),
		errors.Is(err, engine.ErrInvalidTicker),
		errors.Is(err, engine.ErrCannotTradeQuoteAsset):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrCustody):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// appliedWarning reports whether an operation took effect. A journal failure happens
// after the in-memory apply, so the result still stands and err becomes a warning.
func (s *Server) appliedWarning(op string, err error) (string, bool) {
	switch {
	case err == nil:
		return "", true
	case errors.Is(err, engine.ErrJournal):
		s.log.Errorw("applied_but_not_persisted", "op", op, "err", err)
		return err.Error(), true
	default:
		return "", false
	}
}

func (s *Server) respondEngineError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Errorw("request_failed", "op", op, "err", err)
	}
	respondError(w, status, http.StatusText(status), err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%s: want a non-negative decimal integer, got %q", field, s)
	}
	return v, nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
