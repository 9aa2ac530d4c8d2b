package main

// Address is a canonical (lowercase, 0x-prefixed) 20-byte account address.
type Address string

// ChannelID identifies one payment channel within a token network.
type ChannelID uint64

// BlockNumber is a chain block height.
type BlockNumber uint64

// ChannelStatus is the lifecycle state of a payment channel. Channels only
// move forward through this sequence and are never reopened; a new channel
// gets a new identifier instead.
type ChannelStatus string

const (
	ChannelStatusOpened   ChannelStatus = "opened"
	ChannelStatusClosing  ChannelStatus = "closing"
	ChannelStatusClosed   ChannelStatus = "closed"
	ChannelStatusSettled  ChannelStatus = "settled"
	ChannelStatusUnusable ChannelStatus = "unusable"
)

// channelStatusRank orders statuses for the forward-only transition check.
var channelStatusRank = map[ChannelStatus]int{
	ChannelStatusOpened:   0,
	ChannelStatusClosing:  1,
	ChannelStatusClosed:   2,
	ChannelStatusSettled:  3,
	ChannelStatusUnusable: 4,
}

// FeeSchedule is the fee policy an intermediary advertises for a channel.
// Routing only carries it; fee computation happens elsewhere.
type FeeSchedule struct {
	Flat            int64 `json:"flat"`
	ProportionalPPM int64 `json:"proportionalPpm"`
}

// ChannelState is the node's view of one payment channel.
type ChannelState struct {
	ID             ChannelID     `json:"id"`
	TokenNetwork   Address       `json:"tokenNetwork"`
	OwnAddress     Address       `json:"ownAddress"`
	PartnerAddress Address       `json:"partnerAddress"`
	Status         ChannelStatus `json:"status"`

	// TotalDeposit is the combined on-chain deposit of both sides; the sum
	// of both balances never exceeds it.
	TotalDeposit   uint64 `json:"totalDeposit"`
	OwnBalance     uint64 `json:"ownBalance"`
	PartnerBalance uint64 `json:"partnerBalance"`
	OwnLocked      uint64 `json:"ownLocked"`
	PartnerLocked  uint64 `json:"partnerLocked"`

	FeeSchedule FeeSchedule `json:"feeSchedule"`

	// OpenedBlock is the block at which the opening transaction finalized.
	OpenedBlock BlockNumber `json:"openedBlock"`
}

// OwnDistributable returns the amount this node can still send over the
// channel: its balance minus what is already locked in pending transfers.
func (ch *ChannelState) OwnDistributable() uint64 {
	if ch.OwnLocked >= ch.OwnBalance {
		return 0
	}
	return ch.OwnBalance - ch.OwnLocked
}

// TokenNetworkState holds all known channels of one token network.
// Invariant: every channel ID referenced by PartnerChannels exists in
// Channels.
type TokenNetworkState struct {
	Address Address `json:"address"`

	// PartnerChannels maps a partner address to the IDs of all channels with
	// that partner (a partner may have more than one).
	PartnerChannels map[Address][]ChannelID `json:"partnerChannels"`

	Channels map[ChannelID]*ChannelState `json:"channels"`
}

// ChainState is the node's snapshot of everything it believes about the
// chain and its own channels. It is mutated only through the node's
// state-update entry points; routing reads deep-copied snapshots.
type ChainState struct {
	BlockNumber   BlockNumber                    `json:"blockNumber"`
	ChainID       uint64                         `json:"chainId"`
	OurAddress    Address                        `json:"ourAddress"`
	TokenNetworks map[Address]*TokenNetworkState `json:"tokenNetworks"`
}

// RouteState is a validated candidate route: the full ordered address
// sequence from payer to payee (length >= 2) plus the estimated total fee
// for traversing it. Produced only by route resolution; treated as
// immutable afterwards.
type RouteState struct {
	Route        []Address `json:"route"`
	EstimatedFee int64     `json:"estimated_fee"`
}

// RouteMetadata is a peer-supplied route proposal. It is untrusted input
// and must be re-validated against local channel state before use.
type RouteMetadata struct {
	Route []Address `json:"route"`
}

// PFSConfig configures access to the external path-finding service.
// Immutable for the lifetime of a routing operation.
type PFSConfig struct {
	// URL is the service endpoint, without trailing slash.
	URL string `json:"url"`
	// Address is the service's own account, paid through the one-to-N hub.
	Address Address `json:"address"`
	// MaxFee caps what this node is willing to pay the service per query.
	MaxFee uint64 `json:"maxFee"`
	// MaxPaths is the number of candidate paths requested per query.
	MaxPaths int `json:"maxPaths"`
}
