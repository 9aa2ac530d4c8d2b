package main

import "testing"

func TestGetTokenNetworkByAddress(t *testing.T) {
	chainState := testChainState()

	if tn := GetTokenNetworkByAddress(chainState, testTokenNetwork); tn == nil {
		t.Error("Expected registered token network")
	}
	if tn := GetTokenNetworkByAddress(chainState, testAddr(0xff)); tn != nil {
		t.Error("Expected nil for unknown token network")
	}
	if tn := GetTokenNetworkByAddress(nil, testTokenNetwork); tn != nil {
		t.Error("Expected nil for nil chain state")
	}
}

func TestGetChannelStateByTokenNetworkAndPartner(t *testing.T) {
	t.Run("returns nil without a channel", func(t *testing.T) {
		chainState := testChainState()
		ch := GetChannelStateByTokenNetworkAndPartner(chainState, testTokenNetwork, testPayee)
		if ch != nil {
			t.Errorf("Expected nil, got %+v", ch)
		}
	})

	t.Run("returns the partner's channel", func(t *testing.T) {
		chainState := testChainState(openedChannel(1, testPayee, 1000, 10))
		ch := GetChannelStateByTokenNetworkAndPartner(chainState, testTokenNetwork, testPayee)
		if ch == nil || ch.ID != 1 {
			t.Errorf("Expected channel 1, got %+v", ch)
		}
	})

	t.Run("prefers an opened channel", func(t *testing.T) {
		settled := openedChannel(1, testPayee, 1000, 10)
		settled.Status = ChannelStatusSettled
		replacement := openedChannel(2, testPayee, 1000, 20)
		chainState := testChainState(settled, replacement)

		ch := GetChannelStateByTokenNetworkAndPartner(chainState, testTokenNetwork, testPayee)
		if ch == nil || ch.ID != 2 {
			t.Errorf("Expected the opened channel 2, got %+v", ch)
		}
	})

	t.Run("falls back to a non-opened channel", func(t *testing.T) {
		closing := openedChannel(1, testPayee, 1000, 10)
		closing.Status = ChannelStatusClosing
		chainState := testChainState(closing)

		ch := GetChannelStateByTokenNetworkAndPartner(chainState, testTokenNetwork, testPayee)
		if ch == nil || ch.ID != 1 {
			t.Errorf("Expected channel 1, got %+v", ch)
		}
	})

	t.Run("unknown token network", func(t *testing.T) {
		chainState := testChainState(openedChannel(1, testPayee, 1000, 10))
		ch := GetChannelStateByTokenNetworkAndPartner(chainState, testAddr(0xff), testPayee)
		if ch != nil {
			t.Errorf("Expected nil, got %+v", ch)
		}
	})
}

func TestLatestChannelOpenedAt(t *testing.T) {
	chainState := testChainState(
		openedChannel(1, testPayee, 1000, 42),
		openedChannel(2, testMediator, 1000, 99),
		openedChannel(3, testPrevious, 1000, 7),
	)
	tokenNetwork := GetTokenNetworkByAddress(chainState, testTokenNetwork)

	if got := LatestChannelOpenedAt(tokenNetwork); got != 99 {
		t.Errorf("Expected 99, got %d", got)
	}

	empty := &TokenNetworkState{
		Address:         testTokenNetwork,
		PartnerChannels: map[Address][]ChannelID{},
		Channels:        map[ChannelID]*ChannelState{},
	}
	if got := LatestChannelOpenedAt(empty); got != 0 {
		t.Errorf("Expected 0 for empty token network, got %d", got)
	}
}
