package main

// Chain-state read views. These are pure functions over a consistent
// ChainState snapshot; callers obtain the snapshot from the node (which
// deep-copies under its lock), so no locking happens here.

// GetTokenNetworkByAddress returns the token network registered under the
// given address, or nil if the node does not know it.
func GetTokenNetworkByAddress(chainState *ChainState, tokenNetworkAddress Address) *TokenNetworkState {
	if chainState == nil {
		return nil
	}
	return chainState.TokenNetworks[tokenNetworkAddress]
}

// GetChannelStateByTokenNetworkAndPartner returns the channel this node has
// with the given partner in the given token network, or nil if none exists.
// When the partner has several channels, an opened one is preferred; the
// first known channel is returned otherwise.
func GetChannelStateByTokenNetworkAndPartner(chainState *ChainState, tokenNetworkAddress, partnerAddress Address) *ChannelState {
	tokenNetwork := GetTokenNetworkByAddress(chainState, tokenNetworkAddress)
	if tokenNetwork == nil {
		return nil
	}

	var first *ChannelState
	for _, channelID := range tokenNetwork.PartnerChannels[partnerAddress] {
		channelState, exists := tokenNetwork.Channels[channelID]
		if !exists {
			continue
		}
		if channelState.Status == ChannelStatusOpened {
			return channelState
		}
		if first == nil {
			first = channelState
		}
	}
	return first
}

// LatestChannelOpenedAt returns the highest block number at which any
// channel of the token network finished opening. It bounds the staleness of
// path-finding answers: the service must not respond from state older than
// this block, so a just-opened channel is never invisible to it.
func LatestChannelOpenedAt(tokenNetwork *TokenNetworkState) BlockNumber {
	var latest BlockNumber
	for _, channelState := range tokenNetwork.Channels {
		if channelState.OpenedBlock > latest {
			latest = channelState.OpenedBlock
		}
	}
	return latest
}
