package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"mintgate/internal/chain"
	"mintgate/internal/config"
	"mintgate/internal/history"
	"mintgate/internal/mintflow"
	"mintgate/internal/reqsign"
	"mintgate/internal/session"
	"mintgate/internal/walleterr"
)

// Server exposes the session manager and the mint workflow over JSON HTTP.
type Server struct {
	cfg      *config.AppConfig
	sessions *session.Manager
	burnNFT  chain.BurnMintCaller
	freeNFT  chain.NFTCaller
	hair     chain.TokenCaller
	max      chain.TokenCaller
	store    history.Store
	metrics  *metricsRegistry

	httpServer  *http.Server
	rpcHealthFn func(context.Context) error
	dbHealthFn  func(context.Context) error

	mu       sync.Mutex
	workflow *mintflow.Workflow
	owned    []chain.OwnedToken
}

type Deps struct {
	Sessions *session.Manager
	BurnNFT  chain.BurnMintCaller
	FreeNFT  chain.NFTCaller
	Hair     chain.TokenCaller
	Max      chain.TokenCaller
	Store    history.Store
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: deps.Sessions,
		burnNFT:  deps.BurnNFT,
		freeNFT:  deps.FreeNFT,
		hair:     deps.Hair,
		max:      deps.Max,
		store:    deps.Store,
		metrics:  newMetricsRegistry(),
	}

	if checker, ok := deps.Store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}

	guard := reqsign.NewGuard(cfg.Service.APISecret, cfg.Service.APIClockSkew)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/session", s.handleSession)
	mux.Handle("/api/v1/session/connect", guard.Wrap(http.HandlerFunc(s.handleConnect)))
	mux.Handle("/api/v1/session/disconnect", guard.Wrap(http.HandlerFunc(s.handleDisconnect)))
	mux.Handle("/api/v1/session/network/switch", guard.Wrap(http.HandlerFunc(s.handleSwitchNetwork)))
	mux.Handle("/api/v1/mint/begin", guard.Wrap(http.HandlerFunc(s.handleMintBegin)))
	mux.HandleFunc("/api/v1/mint/steps", s.handleMintSteps)
	mux.Handle("/api/v1/mint/approve", guard.Wrap(http.HandlerFunc(s.handleMintApprove)))
	mux.Handle("/api/v1/mint", guard.Wrap(http.HandlerFunc(s.handleMint)))
	mux.Handle("/api/v1/free-mint", guard.Wrap(http.HandlerFunc(s.handleFreeMint)))
	mux.HandleFunc("/api/v1/tokens", s.handleTokens)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.Handle("/api/v1/metrics", s.metrics.handler())

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// SetRPCHealth wires the node reachability probe into /health.
func (s *Server) SetRPCHealth(fn func(context.Context) error) {
	s.rpcHealthFn = fn
}

func (s *Server) Start() error {
	log.Printf("API listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type sessionResponse struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	ChainID   uint64 `json:"chainId,omitempty"`
	OnTarget  bool   `json:"onTargetNetwork"`
}

func (s *Server) sessionView() sessionResponse {
	st := s.sessions.State()
	resp := sessionResponse{Connected: st.Connected, OnTarget: s.sessions.OnTarget()}
	if st.Connected {
		resp.Address = st.Address.Hex()
		resp.ChainID = st.ChainID
	}
	return resp
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView())
}

type connectRequest struct {
	Method string `json:"method"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload connectRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	if payload.Method == "" {
		payload.Method = string(session.MethodExtension)
	}

	_, err := s.sessions.Connect(r.Context(), session.Method(payload.Method))
	if err != nil {
		s.metrics.incConnect("failed")
		writeError(w, err)
		return
	}
	s.metrics.incConnect("connected")
	writeJSON(w, http.StatusOK, s.sessionView())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.sessions.Disconnect()
	s.dropWorkflow()
	writeJSON(w, http.StatusOK, s.sessionView())
}

func (s *Server) handleSwitchNetwork(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.sessions.SwitchNetwork(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView())
}

type stepsResponse struct {
	Steps        []mintflow.Step             `json:"steps"`
	Requirements []mintflow.TokenRequirement `json:"requirements,omitempty"`
	TxHash       string                      `json:"txHash,omitempty"`
	Tokens       []chain.OwnedToken          `json:"tokens,omitempty"`
}

// handleMintBegin starts a fresh burn-mint run bound to the current session
// address. Step state never survives across runs.
func (s *Server) handleMintBegin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.sessions.State()
	if !st.Connected {
		writeError(w, walleterr.New(walleterr.KindProviderUnavailable, "no wallet connected"))
		return
	}
	if !s.sessions.OnTarget() {
		writeError(w, walleterr.New(walleterr.KindNetworkMismatch,
			"connected to chain %d, expected %d", st.ChainID, s.cfg.Network.ChainID))
		return
	}

	wf := mintflow.NewWorkflow(s.burnNFT, s.hair, s.max, st.Address)
	wf.OnMinted(s.refreshOwned)

	s.mu.Lock()
	s.workflow = wf
	s.mu.Unlock()

	steps, err := wf.Begin(r.Context())
	s.observeSteps(steps)
	if err != nil {
		s.metrics.incStep("balance-check", "error")
		writeError(w, err)
		return
	}
	s.metrics.incStep("balance-check", "complete")

	hreq, mreq := wf.Requirements()
	writeJSON(w, http.StatusOK, stepsResponse{
		Steps:        steps,
		Requirements: []mintflow.TokenRequirement{hreq, mreq},
	})
}

func (s *Server) handleMintSteps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	wf := s.currentWorkflow()
	if wf == nil {
		http.Error(w, "no mint run in progress", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, stepsResponse{Steps: wf.Steps()})
}

type approveRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleMintApprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	wf := s.currentWorkflow()
	if wf == nil {
		http.Error(w, "no mint run in progress", http.StatusNotFound)
		return
	}

	var payload approveRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}

	var (
		steps  []mintflow.Step
		txHash string
		err    error
	)
	switch payload.Token {
	case "HAIR":
		steps, txHash, err = wf.ApproveHair(r.Context())
	case "MAX":
		steps, txHash, err = wf.ApproveMax(r.Context())
	default:
		http.Error(w, "token must be HAIR or MAX", http.StatusBadRequest)
		return
	}

	s.observeSteps(steps)
	if err != nil {
		s.metrics.incStep("approve-"+payload.Token, "error")
		s.metrics.incTx("approve", "failed")
		writeError(w, err)
		return
	}
	s.metrics.incStep("approve-"+payload.Token, "complete")
	s.metrics.incTx("approve", "confirmed")
	s.record(r.Context(), "approve", txHash, payload.Token+" approval confirmed")

	writeJSON(w, http.StatusOK, stepsResponse{Steps: steps, TxHash: txHash})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	wf := s.currentWorkflow()
	if wf == nil {
		http.Error(w, "no mint run in progress", http.StatusNotFound)
		return
	}

	steps, txHash, err := wf.Mint(r.Context())
	s.observeSteps(steps)
	if err != nil {
		s.metrics.incStep("mint", "error")
		s.metrics.incTx("mint", "failed")
		writeError(w, err)
		return
	}
	s.metrics.incStep("mint", "complete")
	s.metrics.incTx("mint", "confirmed")
	s.record(r.Context(), "mint", txHash, "burn-mint confirmed")

	writeJSON(w, http.StatusOK, stepsResponse{Steps: steps, TxHash: txHash, Tokens: s.ownedSnapshot()})
}

func (s *Server) handleFreeMint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.sessions.State()
	if !st.Connected {
		writeError(w, walleterr.New(walleterr.KindProviderUnavailable, "no wallet connected"))
		return
	}
	if !s.sessions.OnTarget() {
		writeError(w, walleterr.New(walleterr.KindNetworkMismatch,
			"connected to chain %d, expected %d", st.ChainID, s.cfg.Network.ChainID))
		return
	}

	// The free-mint path goes through the shared confirmation helper, which
	// carries a fixed timeout; the burn-mint workflow above deliberately
	// does not.
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Service.ConfirmTimeout)
	defer cancel()

	fm := mintflow.NewFreeMint(s.freeNFT, st.Address)
	txHash, err := fm.Mint(ctx)
	if err != nil {
		s.metrics.incTx("free-mint", "failed")
		writeError(w, err)
		return
	}
	s.metrics.incTx("free-mint", "confirmed")
	s.record(r.Context(), "free-mint", txHash, "free mint confirmed")

	writeJSON(w, http.StatusOK, map[string]string{"txHash": txHash})
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.sessions.State()
	if !st.Connected {
		writeError(w, walleterr.New(walleterr.KindProviderUnavailable, "no wallet connected"))
		return
	}

	var nft chain.NFTCaller = s.burnNFT
	if r.URL.Query().Get("collection") == "free" {
		nft = s.freeNFT
	}

	tokens, err := chain.OwnedTokens(r.Context(), nft, st.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	entries, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, "history read failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Connected = true
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status   string `json:"status"`
		RPC      any    `json:"rpc"`
		Database any    `json:"database"`
		Session  any    `json:"session"`
	}{
		Status:   status,
		RPC:      rpcInfo,
		Database: dbInfo,
		Session:  s.sessionView(),
	}

	w.Header().Set("Content-Type", "application/json")
	if !overallHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) currentWorkflow() *mintflow.Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workflow
}

func (s *Server) dropWorkflow() {
	s.mu.Lock()
	s.workflow = nil
	s.mu.Unlock()
	s.metrics.setActiveStep(-1)
}

// refreshOwned re-reads the owned-token list after a successful mint. The
// snapshot rides along on the mint response.
func (s *Server) refreshOwned(ctx context.Context) {
	st := s.sessions.State()
	if !st.Connected {
		return
	}
	tokens, err := chain.OwnedTokens(ctx, s.burnNFT, st.Address)
	if err != nil {
		log.Printf("owned-token refresh failed: %v", err)
		return
	}
	s.mu.Lock()
	s.owned = tokens
	s.mu.Unlock()
}

func (s *Server) ownedSnapshot() []chain.OwnedToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chain.OwnedToken, len(s.owned))
	copy(out, s.owned)
	return out
}

func (s *Server) observeSteps(steps []mintflow.Step) {
	active := -1
	for _, step := range steps {
		if step.Status == mintflow.StatusActive {
			active = step.Ordinal
			break
		}
	}
	s.metrics.setActiveStep(active)
}

func (s *Server) record(ctx context.Context, kind, txHash, detail string) {
	st := s.sessions.State()
	entry := history.Entry{
		Kind:      kind,
		TxHash:    txHash,
		Address:   st.Address.Hex(),
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Append(ctx, entry); err != nil {
		log.Printf("history append failed: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := walleterr.KindOf(err)
	status := statusForKind(kind)
	switch {
	case errors.Is(err, session.ErrNotImplemented):
		status, kind = http.StatusNotImplemented, "not-implemented"
	case errors.Is(err, mintflow.ErrActionInFlight), errors.Is(err, mintflow.ErrStepNotActive):
		status, kind = http.StatusConflict, "workflow-order"
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: string(kind)})
}

func statusForKind(kind walleterr.Kind) int {
	switch kind {
	case walleterr.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case walleterr.KindUserRejected:
		return http.StatusConflict
	case walleterr.KindNetworkMismatch:
		return http.StatusPreconditionFailed
	case walleterr.KindInsufficientBalance, walleterr.KindInsufficientAllow:
		return http.StatusUnprocessableEntity
	case walleterr.KindPrecondition:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		next.ServeHTTP(w, r)
	})
}
