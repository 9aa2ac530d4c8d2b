package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Package-level logger
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// initLogger initializes the structured logger based on the log level
func initLogger(logLevel string) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger = slog.New(handler)
}

// Package-level errors for state updates
var (
	ErrUnknownTokenNetwork   = errors.New("unknown token network")
	ErrUnknownChannel        = errors.New("unknown channel")
	ErrChannelExists         = errors.New("channel already registered")
	ErrInvalidTransition     = errors.New("invalid channel status transition")
	ErrBlockNotMonotonic     = errors.New("block number must not decrease")
	ErrBalancesExceedDeposit = errors.New("balances exceed channel deposit")
)

// RaidenNode is the payment-channel node. It owns the chain state, the
// path-finding client and the feedback store; the HTTP API and the
// background loops all hang off it.
type RaidenNode struct {
	Address    Address
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey

	// ChainState is guarded by ChainStateMutex. Routing never reads it
	// directly; it works on deep-copied snapshots so no lock is held across
	// the path-finding network call.
	ChainState      *ChainState
	ChainStateMutex sync.RWMutex

	PFSConfig     *PFSConfig
	OneToNAddress Address
	PathFinder    PathFinder
	Feedback      *FeedbackStore

	Config *Config
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	initLogger(cfg.LogLevel)

	node, err := NewRaidenNode(cfg)
	if err != nil {
		logger.Error("Failed to initialize raiden node", "error", err)
		os.Exit(1)
	}

	if err := node.LoadChainState(cfg.DataDir); err != nil {
		logger.Error("Failed to load chain state snapshot", "error", err)
		os.Exit(1)
	}
	if err := node.LoadPendingFeedback(cfg.DataDir); err != nil {
		logger.Error("Failed to load pending feedback", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Deliver queued route feedback in the background
	go func() {
		ticker := time.NewTicker(cfg.FeedbackFlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				node.Feedback.Flush(ctx, node.PathFinder)
			}
		}
	}()

	// Periodic chain-state snapshots
	go func() {
		ticker := time.NewTicker(cfg.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := node.SaveChainState(cfg.DataDir); err != nil {
					logger.Error("Failed to snapshot chain state", "error", err)
				}
			}
		}
	}()

	// Save state on shutdown signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("Shutting down, saving state")
		cancel()
		if err := node.SaveChainState(cfg.DataDir); err != nil {
			logger.Error("Failed to save chain state", "error", err)
		}
		if err := node.SavePendingFeedback(cfg.DataDir); err != nil {
			logger.Error("Failed to save pending feedback", "error", err)
		}
		os.Exit(0)
	}()

	if err := node.StartServer(cfg.Port); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// NewRaidenNode initializes a new node from configuration: key pair,
// address, empty chain state and the path-finding client.
func NewRaidenNode(cfg *Config) (*RaidenNode, error) {
	privateKey, err := GenerateNodeKey()
	if err != nil {
		return nil, err
	}

	address := AddressFromPublicKey(&privateKey.PublicKey)

	node := &RaidenNode{
		Address:    address,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		ChainState: &ChainState{
			ChainID:       cfg.ChainID,
			OurAddress:    address,
			TokenNetworks: make(map[Address]*TokenNetworkState),
		},
		Feedback: NewFeedbackStore(),
		Config:   cfg,
	}

	node.PFSConfig = cfg.PFS()
	if node.PFSConfig != nil {
		node.PathFinder = NewHTTPPathFinder(*node.PFSConfig, privateKey, cfg.HTTPClientTimeout)
		node.OneToNAddress = NormalizeAddress(Address(cfg.OneToNAddress))
	} else {
		node.PathFinder = NewNoOpPathFinder()
	}

	logger.Info("Initialized raiden node",
		"address", address,
		"chainId", cfg.ChainID,
		"pfsConfigured", node.PFSConfig != nil)
	return node, nil
}

// SnapshotChainState deep-copies the chain state under the read lock.
// Every routing call works on such an independent, consistent snapshot;
// concurrent state updates never become visible mid-call.
func (node *RaidenNode) SnapshotChainState() *ChainState {
	node.ChainStateMutex.RLock()
	defer node.ChainStateMutex.RUnlock()

	snapshot := &ChainState{
		BlockNumber:   node.ChainState.BlockNumber,
		ChainID:       node.ChainState.ChainID,
		OurAddress:    node.ChainState.OurAddress,
		TokenNetworks: make(map[Address]*TokenNetworkState, len(node.ChainState.TokenNetworks)),
	}

	for addr, tokenNetwork := range node.ChainState.TokenNetworks {
		tnCopy := &TokenNetworkState{
			Address:         tokenNetwork.Address,
			PartnerChannels: make(map[Address][]ChannelID, len(tokenNetwork.PartnerChannels)),
			Channels:        make(map[ChannelID]*ChannelState, len(tokenNetwork.Channels)),
		}
		for partner, ids := range tokenNetwork.PartnerChannels {
			idsCopy := make([]ChannelID, len(ids))
			copy(idsCopy, ids)
			tnCopy.PartnerChannels[partner] = idsCopy
		}
		for id, channelState := range tokenNetwork.Channels {
			chCopy := *channelState
			tnCopy.Channels[id] = &chCopy
		}
		snapshot.TokenNetworks[addr] = tnCopy
	}

	return snapshot
}

// FindRoutes is the node-level entry point for route selection: it takes a
// consistent snapshot, runs the orchestrator and remembers the feedback
// token of a successful PFS query for later outcome reporting.
func (node *RaidenNode) FindRoutes(
	ctx context.Context,
	tokenNetworkAddress Address,
	toAddress Address,
	amount uint64,
	previousAddress Address,
) (string, []RouteState, *uuid.UUID, error) {
	snapshot := node.SnapshotChainState()

	if GetTokenNetworkByAddress(snapshot, tokenNetworkAddress) == nil {
		return "", nil, nil, ErrUnknownTokenNetwork
	}

	errMsg, routes, feedbackToken := GetBestRoutes(
		ctx,
		snapshot,
		tokenNetworkAddress,
		node.OneToNAddress,
		snapshot.OurAddress,
		toAddress,
		amount,
		previousAddress,
		node.PFSConfig,
		node.PathFinder,
	)

	if feedbackToken != nil {
		node.Feedback.RememberQuery(*feedbackToken, tokenNetworkAddress)
	}

	return errMsg, routes, feedbackToken, nil
}

// RegisterTokenNetwork makes a token network known to the node. Registering
// the same address twice is a no-op.
func (node *RaidenNode) RegisterTokenNetwork(address Address) error {
	if !IsValidAddress(address) {
		return fmt.Errorf("invalid token network address: %s", address)
	}

	node.ChainStateMutex.Lock()
	defer node.ChainStateMutex.Unlock()

	if _, exists := node.ChainState.TokenNetworks[address]; exists {
		return nil
	}

	node.ChainState.TokenNetworks[address] = &TokenNetworkState{
		Address:         address,
		PartnerChannels: make(map[Address][]ChannelID),
		Channels:        make(map[ChannelID]*ChannelState),
	}

	logger.Info("Registered token network", "tokenNetwork", address)
	return nil
}

// RegisterChannel applies a channel-opened event: the channel becomes
// visible under both the identifier index and the partner index.
func (node *RaidenNode) RegisterChannel(channelState ChannelState) error {
	if !IsValidAddress(channelState.PartnerAddress) {
		return fmt.Errorf("invalid partner address: %s", channelState.PartnerAddress)
	}
	if channelState.OwnBalance+channelState.PartnerBalance > channelState.TotalDeposit {
		return ErrBalancesExceedDeposit
	}

	node.ChainStateMutex.Lock()
	defer node.ChainStateMutex.Unlock()

	tokenNetwork, exists := node.ChainState.TokenNetworks[channelState.TokenNetwork]
	if !exists {
		return ErrUnknownTokenNetwork
	}
	if _, exists := tokenNetwork.Channels[channelState.ID]; exists {
		return ErrChannelExists
	}

	if channelState.Status == "" {
		channelState.Status = ChannelStatusOpened
	}
	channelState.OwnAddress = node.ChainState.OurAddress

	tokenNetwork.Channels[channelState.ID] = &channelState
	tokenNetwork.PartnerChannels[channelState.PartnerAddress] = append(
		tokenNetwork.PartnerChannels[channelState.PartnerAddress],
		channelState.ID,
	)

	channelsGauge.WithLabelValues(string(tokenNetwork.Address)).Set(float64(len(tokenNetwork.Channels)))
	logger.Info("Registered channel",
		"tokenNetwork", channelState.TokenNetwork,
		"channelId", channelState.ID,
		"partner", channelState.PartnerAddress,
		"openedBlock", channelState.OpenedBlock)
	return nil
}

// UpdateChannelStatus moves a channel forward through its lifecycle.
// Backward transitions are rejected; channels are never reopened.
func (node *RaidenNode) UpdateChannelStatus(tokenNetworkAddress Address, channelID ChannelID, status ChannelStatus) error {
	if _, known := channelStatusRank[status]; !known {
		return fmt.Errorf("unknown channel status: %s", status)
	}

	node.ChainStateMutex.Lock()
	defer node.ChainStateMutex.Unlock()

	tokenNetwork, exists := node.ChainState.TokenNetworks[tokenNetworkAddress]
	if !exists {
		return ErrUnknownTokenNetwork
	}
	channelState, exists := tokenNetwork.Channels[channelID]
	if !exists {
		return ErrUnknownChannel
	}

	if !canTransitionChannelStatus(channelState.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, channelState.Status, status)
	}

	channelState.Status = status
	logger.Info("Channel status changed",
		"tokenNetwork", tokenNetworkAddress,
		"channelId", channelID,
		"status", status)
	return nil
}

// UpdateChannelBalances applies an off-chain balance update to a channel.
func (node *RaidenNode) UpdateChannelBalances(
	tokenNetworkAddress Address,
	channelID ChannelID,
	ownBalance, partnerBalance, ownLocked, partnerLocked uint64,
) error {
	node.ChainStateMutex.Lock()
	defer node.ChainStateMutex.Unlock()

	tokenNetwork, exists := node.ChainState.TokenNetworks[tokenNetworkAddress]
	if !exists {
		return ErrUnknownTokenNetwork
	}
	channelState, exists := tokenNetwork.Channels[channelID]
	if !exists {
		return ErrUnknownChannel
	}

	if ownBalance+partnerBalance > channelState.TotalDeposit {
		return ErrBalancesExceedDeposit
	}

	channelState.OwnBalance = ownBalance
	channelState.PartnerBalance = partnerBalance
	channelState.OwnLocked = ownLocked
	channelState.PartnerLocked = partnerLocked
	return nil
}

// AdvanceBlock moves the node's view of the chain head forward. The block
// number is monotonically non-decreasing.
func (node *RaidenNode) AdvanceBlock(blockNumber BlockNumber) error {
	node.ChainStateMutex.Lock()
	defer node.ChainStateMutex.Unlock()

	if blockNumber < node.ChainState.BlockNumber {
		return ErrBlockNotMonotonic
	}
	node.ChainState.BlockNumber = blockNumber
	return nil
}

// ReportRouteResult queues a route outcome report for the path-finding
// service; delivery happens in the background flush loop.
func (node *RaidenNode) ReportRouteResult(token uuid.UUID, route []Address, successful bool) error {
	return node.Feedback.QueueReport(token, route, successful)
}
