package main

// ChannelUsability is the outcome of the channel usability predicate.
type ChannelUsability string

const (
	ChannelUsabilityUsable                      ChannelUsability = "USABLE"
	ChannelUsabilityNotOpened                   ChannelUsability = "NOT_OPENED"
	ChannelUsabilityInsufficientOwnCapacity     ChannelUsability = "INSUFFICIENT_OWN_CAPACITY"
	ChannelUsabilityInsufficientPartnerCapacity ChannelUsability = "INSUFFICIENT_PARTNER_CAPACITY"
	ChannelUsabilityIsExcludedChannel           ChannelUsability = "IS_EXCLUDED_CHANNEL"
)

// IsChannelUsableForNewTransfer decides whether a channel can carry a new
// transfer of the given amount right now. excludedID, when non-nil, forbids
// a specific channel; mediators use it so a transfer is never bounced
// straight back over the channel it arrived on.
func IsChannelUsableForNewTransfer(ch *ChannelState, amount uint64, excludedID *ChannelID) ChannelUsability {
	if excludedID != nil && ch.ID == *excludedID {
		return ChannelUsabilityIsExcludedChannel
	}

	if ch.Status != ChannelStatusOpened {
		return ChannelUsabilityNotOpened
	}

	if ch.OwnDistributable() < amount {
		return ChannelUsabilityInsufficientOwnCapacity
	}

	// The partner side must have room to receive: its balance plus pending
	// locks plus the incoming amount may not exceed the channel's on-chain
	// capacity, otherwise the resulting balance proof could not be settled.
	if ch.PartnerBalance+ch.PartnerLocked+amount > ch.TotalDeposit {
		return ChannelUsabilityInsufficientPartnerCapacity
	}

	return ChannelUsabilityUsable
}

// canTransitionChannelStatus reports whether a channel may move from one
// status to another. Transitions are forward-only; a channel is never
// reopened.
func canTransitionChannelStatus(from, to ChannelStatus) bool {
	fromRank, ok := channelStatusRank[from]
	if !ok {
		return false
	}
	toRank, ok := channelStatusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}
