package main

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Fixed user-facing messages for the three distinguishable no-route cases.
const (
	MsgPFSUnusable = "Pathfinding Service could not be used."
	MsgPFSNoRoutes = "PFS could not find any routes"
)

// GetBestRoutes produces the ordered, fee-annotated routes for a transfer,
// or a message the caller can act on. Priority order: a usable direct
// channel wins outright, then the path-finding service, then failure.
//
// The returned message is "" on success; the feedback token is non-nil only
// for routes obtained from the path-finding service. The caller guarantees
// tokenNetworkAddress refers to a validated, existing token network.
func GetBestRoutes(
	ctx context.Context,
	chainState *ChainState,
	tokenNetworkAddress Address,
	oneToNAddress Address,
	fromAddress Address,
	toAddress Address,
	amount uint64,
	previousAddress Address,
	pfsConfig *PFSConfig,
	pathFinder PathFinder,
) (string, []RouteState, *uuid.UUID) {
	tokenNetwork := GetTokenNetworkByAddress(chainState, tokenNetworkAddress)
	if tokenNetwork == nil {
		panic("the token network must be validated and exist")
	}

	// Always use a direct channel if available: capacity is guaranteed,
	// there are no mediation fees and the transfer is faster.
	for _, channelID := range tokenNetwork.PartnerChannels[toAddress] {
		channelState, exists := tokenNetwork.Channels[channelID]
		if !exists {
			continue
		}

		if IsChannelUsableForNewTransfer(channelState, amount, nil) == ChannelUsabilityUsable {
			directRoute := RouteState{
				Route:        []Address{fromAddress, toAddress},
				EstimatedFee: 0,
			}
			routingRequestsTotal.WithLabelValues("direct").Inc()
			return "", []RouteState{directRoute}, nil
		}
	}

	latestChannelOpenedAt := LatestChannelOpenedAt(tokenNetwork)

	if pfsConfig != nil && oneToNAddress != "" && pathFinder != nil {
		errMsg, routes, feedbackToken := getBestRoutesPFS(
			ctx,
			chainState,
			tokenNetworkAddress,
			oneToNAddress,
			fromAddress,
			toAddress,
			amount,
			previousAddress,
			pfsConfig,
			pathFinder,
			latestChannelOpenedAt,
		)

		if errMsg == "" {
			// The service may legitimately answer with an empty route list;
			// that is distinct from a failed request.
			if len(routes) == 0 {
				routingRequestsTotal.WithLabelValues("pfs_empty").Inc()
				return MsgPFSNoRoutes, nil, nil
			}

			logger.Info("Received route(s) from PFS",
				"routes", len(routes),
				"feedbackToken", feedbackToken)
			routingRequestsTotal.WithLabelValues("pfs").Inc()
			return "", routes, feedbackToken
		}

		logger.Warn("Request to Pathfinding Service was not successful. No routes to the target were found.",
			"pfsMessage", errMsg)
		routingRequestsTotal.WithLabelValues("pfs_failed").Inc()
		return errMsg, nil, nil
	}

	logger.Warn("Pathfinding Service could not be used.")
	routingRequestsTotal.WithLabelValues("unavailable").Inc()
	return MsgPFSUnusable, nil, nil
}

// getBestRoutesPFS queries the path-finding service and filters its answer
// against local channel state.
func getBestRoutesPFS(
	ctx context.Context,
	chainState *ChainState,
	tokenNetworkAddress Address,
	oneToNAddress Address,
	fromAddress Address,
	toAddress Address,
	amount uint64,
	previousAddress Address,
	pfsConfig *PFSConfig,
	pathFinder PathFinder,
	pfsWaitForBlock BlockNumber,
) (string, []RouteState, *uuid.UUID) {
	candidates, feedbackToken, err := pathFinder.QueryPaths(ctx, PathRequest{
		TokenNetwork:  tokenNetworkAddress,
		OneToNAddress: oneToNAddress,
		ChainID:       chainState.ChainID,
		From:          fromAddress,
		To:            toAddress,
		Value:         amount,
		MaxPaths:      pfsConfig.MaxPaths,
		WaitForBlock:  pfsWaitForBlock,
	})
	if err != nil {
		var failure *ServiceRequestFailed
		if errors.As(err, &failure) {
			logger.Warn("An error with the path request occurred",
				"message", failure.Message,
				"detail", failure.Detail)
			return "PFS: " + failure.Message, nil, nil
		}
		logger.Warn("An error with the path request occurred", "error", err)
		return "PFS: " + err.Error(), nil, nil
	}

	routes := resolveCandidates(candidates, chainState, tokenNetworkAddress, previousAddress, true)
	return "", routes, feedbackToken
}

// ResolveRoutes re-validates peer-supplied route metadata against local
// channel state. Mediators call this for the continuation of a transfer;
// there is no previous-hop exclusion and fees are attributed as zero, since
// the mediator's own fee policy is applied separately upstream.
func ResolveRoutes(routes []RouteMetadata, tokenNetworkAddress Address, chainState *ChainState) []RouteState {
	candidates := make([]PathCandidate, 0, len(routes))
	for _, metadata := range routes {
		candidates = append(candidates, PathCandidate{Path: metadata.Route})
	}
	return resolveCandidates(candidates, chainState, tokenNetworkAddress, "", false)
}

// resolveCandidates filters raw path candidates for local feasibility.
// Candidates are evaluated in the order received and never reordered: the
// path-finding service is trusted for ranking, this layer only filters.
// previousAddress, when set, drops candidates whose next hop would bounce
// the transfer straight back. feeFromCandidate selects whether the
// candidate's estimated fee is kept (PFS source) or zeroed (peer metadata).
func resolveCandidates(
	candidates []PathCandidate,
	chainState *ChainState,
	tokenNetworkAddress Address,
	previousAddress Address,
	feeFromCandidate bool,
) []RouteState {
	resolved := make([]RouteState, 0, len(candidates))
	for _, candidate := range candidates {
		if len(candidate.Path) < 2 {
			continue
		}

		// The first entry is this node itself; the second is the hop the
		// transfer would actually leave over.
		partnerAddress := candidate.Path[1]

		// don't route back
		if previousAddress != "" && partnerAddress == previousAddress {
			continue
		}

		channelState := GetChannelStateByTokenNetworkAndPartner(chainState, tokenNetworkAddress, partnerAddress)
		if channelState == nil {
			continue
		}

		if channelState.Status != ChannelStatusOpened {
			logger.Info("Channel is not opened, ignoring",
				"partnerAddress", partnerAddress,
				"channelId", channelState.ID,
				"status", channelState.Status)
			continue
		}

		var estimatedFee int64
		if feeFromCandidate {
			estimatedFee = candidate.EstimatedFee
		}

		resolved = append(resolved, RouteState{
			Route:        candidate.Path,
			EstimatedFee: estimatedFee,
		})
	}
	return resolved
}
