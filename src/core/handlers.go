package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// StartServer starts the HTTP server for API endpoints
func (node *RaidenNode) StartServer(port string) error {
	handler := node.Router()
	logger.Info("Starting raiden node server", "port", port, "address", node.Address)
	return http.ListenAndServe(":"+port, handler)
}

// Router assembles the API routes and middleware chain
func (node *RaidenNode) Router() http.Handler {
	router := mux.NewRouter()

	// Public endpoints
	router.HandleFunc("/api/health", node.HealthCheckHandler).Methods("GET")
	router.HandleFunc("/api/v1/routes", node.GetRoutesHandler).Methods("POST")
	router.HandleFunc("/api/v1/routes/resolve", node.ResolveRoutesHandler).Methods("POST")
	router.HandleFunc("/api/v1/feedback/{token}", node.RouteFeedbackHandler).Methods("PUT")

	// State-update endpoints (the on-chain event pipeline feeds these)
	admin := router.PathPrefix("/api/v1").Subrouter()
	admin.Use(NodeAuthMiddleware(node.Config.NodeAuthSecret, node.Config.RequireNodeAuth))
	admin.HandleFunc("/tokennetworks", node.RegisterTokenNetworkHandler).Methods("POST")
	admin.HandleFunc("/tokennetworks", node.GetTokenNetworksHandler).Methods("GET")
	admin.HandleFunc("/channels", node.RegisterChannelHandler).Methods("POST")
	admin.HandleFunc("/channels/status", node.UpdateChannelStatusHandler).Methods("PATCH")
	admin.HandleFunc("/channels/balances", node.UpdateChannelBalancesHandler).Methods("PATCH")
	admin.HandleFunc("/blocks", node.AdvanceBlockHandler).Methods("POST")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	limiter := NewIPRateLimiter(node.Config.RateLimitPerMinute)
	var handler http.Handler = router
	handler = MetricsMiddleware(handler)
	handler = BodySizeLimitMiddleware(node.Config.MaxBodySizeBytes)(handler)
	handler = RateLimitMiddleware(limiter)(handler)
	handler = RequestIDMiddleware(handler)
	return otelhttp.NewHandler(handler, "raiden-api")
}

// HealthCheckHandler handles health check requests
func (node *RaidenNode) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	node.ChainStateMutex.RLock()
	blockNumber := node.ChainState.BlockNumber
	tokenNetworks := len(node.ChainState.TokenNetworks)
	node.ChainStateMutex.RUnlock()

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ok",
		"address":        node.Address,
		"block_number":   blockNumber,
		"token_networks": tokenNetworks,
		"pfs_configured": node.PFSConfig != nil,
	})
}

// routesRequest is the body of a route selection request. The payer is
// always this node.
type routesRequest struct {
	TokenNetworkAddress string `json:"token_network_address"`
	To                  string `json:"to"`
	Amount              uint64 `json:"amount"`
	PreviousAddress     string `json:"previous_address,omitempty"`
}

// GetRoutesHandler runs route selection for a transfer
func (node *RaidenNode) GetRoutesHandler(w http.ResponseWriter, r *http.Request) {
	var req routesRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}

	tokenNetworkAddress, ok := CanonicalAddress(req.TokenNetworkAddress)
	if !ok {
		http.Error(w, "Invalid token network address", http.StatusBadRequest)
		return
	}
	toAddress, ok := CanonicalAddress(req.To)
	if !ok {
		http.Error(w, "Invalid target address", http.StatusBadRequest)
		return
	}
	if !ValidateAmount(req.Amount) {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}

	var previousAddress Address
	if req.PreviousAddress != "" {
		previousAddress, ok = CanonicalAddress(req.PreviousAddress)
		if !ok {
			http.Error(w, "Invalid previous address", http.StatusBadRequest)
			return
		}
	}

	errMsg, routes, feedbackToken, err := node.FindRoutes(r.Context(), tokenNetworkAddress, toAddress, req.Amount, previousAddress)
	if err != nil {
		if errors.Is(err, ErrUnknownTokenNetwork) {
			http.Error(w, "Unknown token network", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"routes": routes,
	}
	if errMsg != "" {
		response["error"] = errMsg
	}
	if feedbackToken != nil {
		response["feedback_token"] = feedbackToken.String()
	}
	json.NewEncoder(w).Encode(response)
}

// resolveRoutesRequest is the body of a peer-metadata resolution request
type resolveRoutesRequest struct {
	TokenNetworkAddress string          `json:"token_network_address"`
	Routes              []RouteMetadata `json:"routes"`
}

// ResolveRoutesHandler re-validates peer-supplied route metadata for a
// mediated transfer; no network call is involved
func (node *RaidenNode) ResolveRoutesHandler(w http.ResponseWriter, r *http.Request) {
	var req resolveRoutesRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}

	tokenNetworkAddress, ok := CanonicalAddress(req.TokenNetworkAddress)
	if !ok {
		http.Error(w, "Invalid token network address", http.StatusBadRequest)
		return
	}
	if len(req.Routes) > MaxRoutesPerRequest {
		http.Error(w, "Too many routes", http.StatusBadRequest)
		return
	}
	for _, metadata := range req.Routes {
		if !ValidateRouteMetadata(metadata) {
			http.Error(w, "Invalid route metadata", http.StatusBadRequest)
			return
		}
	}

	snapshot := node.SnapshotChainState()
	if GetTokenNetworkByAddress(snapshot, tokenNetworkAddress) == nil {
		http.Error(w, "Unknown token network", http.StatusNotFound)
		return
	}

	routes := ResolveRoutes(req.Routes, tokenNetworkAddress, snapshot)
	routesResolvedTotal.Add(float64(len(routes)))

	json.NewEncoder(w).Encode(map[string]interface{}{
		"routes": routes,
	})
}

// routeFeedbackRequest is the body of a route outcome report
type routeFeedbackRequest struct {
	Route      []Address `json:"route"`
	Successful bool      `json:"successful"`
}

// RouteFeedbackHandler queues a route outcome report for the PFS
func (node *RaidenNode) RouteFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(mux.Vars(r)["token"])
	if err != nil {
		http.Error(w, "Invalid feedback token", http.StatusBadRequest)
		return
	}

	var req routeFeedbackRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}
	if len(req.Route) < 2 || len(req.Route) > MaxRouteLength {
		http.Error(w, "Invalid route", http.StatusBadRequest)
		return
	}

	if err := node.ReportRouteResult(token, req.Route, req.Successful); err != nil {
		if errors.Is(err, ErrUnknownFeedbackToken) {
			http.Error(w, "Unknown feedback token", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "queued",
	})
}

// RegisterTokenNetworkHandler registers a token network
func (node *RaidenNode) RegisterTokenNetworkHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}

	address, ok := CanonicalAddress(req.Address)
	if !ok {
		http.Error(w, "Invalid token network address", http.StatusBadRequest)
		return
	}

	if err := node.RegisterTokenNetwork(address); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "success",
		"address": address,
	})
}

// GetTokenNetworksHandler lists known token networks
func (node *RaidenNode) GetTokenNetworksHandler(w http.ResponseWriter, r *http.Request) {
	node.ChainStateMutex.RLock()
	defer node.ChainStateMutex.RUnlock()

	type tokenNetworkInfo struct {
		Address  Address `json:"address"`
		Channels int     `json:"channels"`
	}
	networks := make([]tokenNetworkInfo, 0, len(node.ChainState.TokenNetworks))
	for _, tokenNetwork := range node.ChainState.TokenNetworks {
		networks = append(networks, tokenNetworkInfo{
			Address:  tokenNetwork.Address,
			Channels: len(tokenNetwork.Channels),
		})
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"token_networks": networks,
	})
}

// registerChannelRequest is the body of a channel-opened event
type registerChannelRequest struct {
	TokenNetworkAddress string      `json:"token_network_address"`
	ChannelID           ChannelID   `json:"channel_id"`
	PartnerAddress      string      `json:"partner_address"`
	TotalDeposit        uint64      `json:"total_deposit"`
	OwnBalance          uint64      `json:"own_balance"`
	PartnerBalance      uint64      `json:"partner_balance"`
	FeeSchedule         FeeSchedule `json:"fee_schedule"`
	OpenedBlock         BlockNumber `json:"opened_block"`
}

// RegisterChannelHandler applies a channel-opened event
func (node *RaidenNode) RegisterChannelHandler(w http.ResponseWriter, r *http.Request) {
	var req registerChannelRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}

	tokenNetworkAddress, ok := CanonicalAddress(req.TokenNetworkAddress)
	if !ok {
		http.Error(w, "Invalid token network address", http.StatusBadRequest)
		return
	}
	partnerAddress, ok := CanonicalAddress(req.PartnerAddress)
	if !ok {
		http.Error(w, "Invalid partner address", http.StatusBadRequest)
		return
	}

	err := node.RegisterChannel(ChannelState{
		ID:             req.ChannelID,
		TokenNetwork:   tokenNetworkAddress,
		PartnerAddress: partnerAddress,
		Status:         ChannelStatusOpened,
		TotalDeposit:   req.TotalDeposit,
		OwnBalance:     req.OwnBalance,
		PartnerBalance: req.PartnerBalance,
		FeeSchedule:    req.FeeSchedule,
		OpenedBlock:    req.OpenedBlock,
	})
	if err != nil {
		if errors.Is(err, ErrUnknownTokenNetwork) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "success",
		"channel_id": req.ChannelID,
	})
}

// UpdateChannelStatusHandler applies a channel lifecycle transition
func (node *RaidenNode) UpdateChannelStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenNetworkAddress string        `json:"token_network_address"`
		ChannelID           ChannelID     `json:"channel_id"`
		Status              ChannelStatus `json:"status"`
	}
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}

	tokenNetworkAddress, ok := CanonicalAddress(req.TokenNetworkAddress)
	if !ok {
		http.Error(w, "Invalid token network address", http.StatusBadRequest)
		return
	}

	if err := node.UpdateChannelStatus(tokenNetworkAddress, req.ChannelID, req.Status); err != nil {
		if errors.Is(err, ErrUnknownTokenNetwork) || errors.Is(err, ErrUnknownChannel) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "success",
	})
}

// UpdateChannelBalancesHandler applies an off-chain balance update
func (node *RaidenNode) UpdateChannelBalancesHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenNetworkAddress string    `json:"token_network_address"`
		ChannelID           ChannelID `json:"channel_id"`
		OwnBalance          uint64    `json:"own_balance"`
		PartnerBalance      uint64    `json:"partner_balance"`
		OwnLocked           uint64    `json:"own_locked"`
		PartnerLocked       uint64    `json:"partner_locked"`
	}
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}

	tokenNetworkAddress, ok := CanonicalAddress(req.TokenNetworkAddress)
	if !ok {
		http.Error(w, "Invalid token network address", http.StatusBadRequest)
		return
	}

	err := node.UpdateChannelBalances(tokenNetworkAddress, req.ChannelID,
		req.OwnBalance, req.PartnerBalance, req.OwnLocked, req.PartnerLocked)
	if err != nil {
		if errors.Is(err, ErrUnknownTokenNetwork) || errors.Is(err, ErrUnknownChannel) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "success",
	})
}

// AdvanceBlockHandler moves the chain head forward
func (node *RaidenNode) AdvanceBlockHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BlockNumber BlockNumber `json:"block_number"`
	}
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}

	if err := node.AdvanceBlock(req.BlockNumber); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "success",
		"block_number": req.BlockNumber,
	})
}
