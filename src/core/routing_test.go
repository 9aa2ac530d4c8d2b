package main

import (
	"context"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

// fakePathFinder is a scripted PathFinder for routing tests.
type fakePathFinder struct {
	candidates []PathCandidate
	token      *uuid.UUID
	err        error

	queries   []PathRequest
	reports   []PendingFeedback
	reportErr error
}

func (f *fakePathFinder) QueryPaths(ctx context.Context, req PathRequest) ([]PathCandidate, *uuid.UUID, error) {
	f.queries = append(f.queries, req)
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.candidates, f.token, nil
}

func (f *fakePathFinder) ReportRouteResult(ctx context.Context, tokenNetwork Address, token uuid.UUID, route []Address, successful bool) error {
	f.reports = append(f.reports, PendingFeedback{
		Token:        token,
		TokenNetwork: tokenNetwork,
		Route:        route,
		Successful:   successful,
	})
	return f.reportErr
}

func (f *fakePathFinder) IsConfigured() bool { return true }

// testChainState builds a chain state with one token network and the given
// channels, keyed under both indexes.
func testChainState(channels ...*ChannelState) *ChainState {
	tokenNetwork := &TokenNetworkState{
		Address:         testTokenNetwork,
		PartnerChannels: make(map[Address][]ChannelID),
		Channels:        make(map[ChannelID]*ChannelState),
	}
	for _, ch := range channels {
		tokenNetwork.Channels[ch.ID] = ch
		tokenNetwork.PartnerChannels[ch.PartnerAddress] = append(
			tokenNetwork.PartnerChannels[ch.PartnerAddress], ch.ID)
	}
	return &ChainState{
		BlockNumber:   100,
		ChainID:       1,
		OurAddress:    testPayer,
		TokenNetworks: map[Address]*TokenNetworkState{testTokenNetwork: tokenNetwork},
	}
}

func openedChannel(id ChannelID, partner Address, ownBalance uint64, openedBlock BlockNumber) *ChannelState {
	return &ChannelState{
		ID:             id,
		TokenNetwork:   testTokenNetwork,
		OwnAddress:     testPayer,
		PartnerAddress: partner,
		Status:         ChannelStatusOpened,
		TotalDeposit:   ownBalance * 4,
		OwnBalance:     ownBalance,
		PartnerBalance: ownBalance,
		OpenedBlock:    openedBlock,
	}
}

var testPFSConfig = &PFSConfig{
	URL:      "http://pfs.test",
	Address:  testAddr(0xcc),
	MaxFee:   50,
	MaxPaths: 3,
}

// Scenario: direct usable channel wins regardless of PFS configuration.
func TestGetBestRoutesDirectChannel(t *testing.T) {
	chainState := testChainState(openedChannel(1, testPayee, 1000, 10))
	finder := &fakePathFinder{
		candidates: []PathCandidate{{Path: []Address{testPayer, testMediator, testPayee}, EstimatedFee: 5}},
	}

	errMsg, routes, feedbackToken := GetBestRoutes(
		context.Background(), chainState, testTokenNetwork, testOneToN,
		testPayer, testPayee, 100, "", testPFSConfig, finder)

	if errMsg != "" {
		t.Fatalf("Expected no error message, got %q", errMsg)
	}
	if feedbackToken != nil {
		t.Error("Direct route must not carry a feedback token")
	}
	expected := []RouteState{{Route: []Address{testPayer, testPayee}, EstimatedFee: 0}}
	if !reflect.DeepEqual(routes, expected) {
		t.Errorf("Expected %v, got %v", expected, routes)
	}
	if len(finder.queries) != 0 {
		t.Error("Direct route must not query the PFS")
	}
}

// Scenario: PFS returns a mediated path with its estimated fee.
func TestGetBestRoutesPFSPath(t *testing.T) {
	chainState := testChainState(openedChannel(1, testMediator, 1000, 42))
	token := uuid.New()
	finder := &fakePathFinder{
		candidates: []PathCandidate{{Path: []Address{testPayer, testMediator, testPayee}, EstimatedFee: 5}},
		token:      &token,
	}

	errMsg, routes, feedbackToken := GetBestRoutes(
		context.Background(), chainState, testTokenNetwork, testOneToN,
		testPayer, testPayee, 100, "", testPFSConfig, finder)

	if errMsg != "" {
		t.Fatalf("Expected no error message, got %q", errMsg)
	}
	expected := []RouteState{{Route: []Address{testPayer, testMediator, testPayee}, EstimatedFee: 5}}
	if !reflect.DeepEqual(routes, expected) {
		t.Errorf("Expected %v, got %v", expected, routes)
	}
	if feedbackToken == nil || *feedbackToken != token {
		t.Errorf("Expected feedback token %v, got %v", token, feedbackToken)
	}
}

// The query carries the latest channel-opened block as staleness bound.
func TestGetBestRoutesStalenessBound(t *testing.T) {
	chainState := testChainState(
		openedChannel(1, testMediator, 1000, 42),
		openedChannel(2, testPrevious, 1000, 77),
	)
	finder := &fakePathFinder{}

	GetBestRoutes(
		context.Background(), chainState, testTokenNetwork, testOneToN,
		testPayer, testPayee, 100, "", testPFSConfig, finder)

	if len(finder.queries) != 1 {
		t.Fatalf("Expected one PFS query, got %d", len(finder.queries))
	}
	query := finder.queries[0]
	if query.WaitForBlock != 77 {
		t.Errorf("Expected wait-for-block 77, got %d", query.WaitForBlock)
	}
	if query.From != testPayer || query.To != testPayee || query.Value != 100 {
		t.Errorf("Query carries wrong intent: %+v", query)
	}
	if query.ChainID != 1 || query.OneToNAddress != testOneToN || query.MaxPaths != 3 {
		t.Errorf("Query carries wrong config: %+v", query)
	}
}

// Scenario: service call fails with message "timeout".
func TestGetBestRoutesPFSFailure(t *testing.T) {
	chainState := testChainState(openedChannel(1, testMediator, 1000, 10))
	finder := &fakePathFinder{err: &ServiceRequestFailed{Message: "timeout"}}

	errMsg, routes, feedbackToken := GetBestRoutes(
		context.Background(), chainState, testTokenNetwork, testOneToN,
		testPayer, testPayee, 100, "", testPFSConfig, finder)

	if errMsg != "PFS: timeout" {
		t.Errorf("Expected %q, got %q", "PFS: timeout", errMsg)
	}
	if len(routes) != 0 || feedbackToken != nil {
		t.Errorf("Expected empty result, got routes=%v token=%v", routes, feedbackToken)
	}
}

// Scenario: service succeeds with zero paths.
func TestGetBestRoutesPFSNoRoutes(t *testing.T) {
	chainState := testChainState(openedChannel(1, testMediator, 1000, 10))
	token := uuid.New()
	finder := &fakePathFinder{token: &token}

	errMsg, routes, feedbackToken := GetBestRoutes(
		context.Background(), chainState, testTokenNetwork, testOneToN,
		testPayer, testPayee, 100, "", testPFSConfig, finder)

	if errMsg != MsgPFSNoRoutes {
		t.Errorf("Expected %q, got %q", MsgPFSNoRoutes, errMsg)
	}
	if len(routes) != 0 || feedbackToken != nil {
		t.Errorf("Expected empty result without token, got routes=%v token=%v", routes, feedbackToken)
	}
}

// Scenario: no direct channel and no PFS configuration.
func TestGetBestRoutesNoPFSConfigured(t *testing.T) {
	chainState := testChainState(openedChannel(1, testMediator, 1000, 10))

	errMsg, routes, feedbackToken := GetBestRoutes(
		context.Background(), chainState, testTokenNetwork, "",
		testPayer, testPayee, 100, "", nil, nil)

	if errMsg != MsgPFSUnusable {
		t.Errorf("Expected %q, got %q", MsgPFSUnusable, errMsg)
	}
	if len(routes) != 0 || feedbackToken != nil {
		t.Errorf("Expected empty result, got routes=%v token=%v", routes, feedbackToken)
	}
}

// A missing one-to-N hub address also makes the PFS unusable.
func TestGetBestRoutesNoOneToNAddress(t *testing.T) {
	chainState := testChainState(openedChannel(1, testMediator, 1000, 10))
	finder := &fakePathFinder{}

	errMsg, _, _ := GetBestRoutes(
		context.Background(), chainState, testTokenNetwork, "",
		testPayer, testPayee, 100, "", testPFSConfig, finder)

	if errMsg != MsgPFSUnusable {
		t.Errorf("Expected %q, got %q", MsgPFSUnusable, errMsg)
	}
	if len(finder.queries) != 0 {
		t.Error("PFS must not be queried without a one-to-N address")
	}
}

// An unusable direct channel falls through to the PFS.
func TestGetBestRoutesDirectChannelNotUsable(t *testing.T) {
	direct := openedChannel(1, testPayee, 1000, 10)
	direct.OwnLocked = 950 // distributable 50 < amount 100
	chainState := testChainState(direct, openedChannel(2, testMediator, 1000, 11))

	token := uuid.New()
	finder := &fakePathFinder{
		candidates: []PathCandidate{{Path: []Address{testPayer, testMediator, testPayee}, EstimatedFee: 7}},
		token:      &token,
	}

	errMsg, routes, _ := GetBestRoutes(
		context.Background(), chainState, testTokenNetwork, testOneToN,
		testPayer, testPayee, 100, "", testPFSConfig, finder)

	if errMsg != "" {
		t.Fatalf("Expected fallback to PFS, got error %q", errMsg)
	}
	if len(routes) != 1 || routes[0].Route[1] != testMediator {
		t.Errorf("Expected mediated route, got %v", routes)
	}
}

// No-backtrack: a candidate whose next hop equals the previous hop is
// dropped.
func TestGetBestRoutesNoBacktrack(t *testing.T) {
	chainState := testChainState(
		openedChannel(1, testPrevious, 1000, 10),
		openedChannel(2, testMediator, 1000, 11),
	)
	token := uuid.New()
	finder := &fakePathFinder{
		candidates: []PathCandidate{
			{Path: []Address{testPayer, testPrevious, testPayee}, EstimatedFee: 1},
			{Path: []Address{testPayer, testMediator, testPayee}, EstimatedFee: 9},
		},
		token: &token,
	}

	errMsg, routes, _ := GetBestRoutes(
		context.Background(), chainState, testTokenNetwork, testOneToN,
		testPayer, testPayee, 100, testPrevious, testPFSConfig, finder)

	if errMsg != "" {
		t.Fatalf("Expected routes, got error %q", errMsg)
	}
	if len(routes) != 1 || routes[0].Route[1] != testMediator {
		t.Errorf("Backtracking candidate not excluded: %v", routes)
	}
}

// A candidate whose next hop has no open channel is dropped.
func TestGetBestRoutesChannelNotOpened(t *testing.T) {
	closing := openedChannel(1, testMediator, 1000, 10)
	closing.Status = ChannelStatusClosing
	chainState := testChainState(closing)

	token := uuid.New()
	finder := &fakePathFinder{
		candidates: []PathCandidate{{Path: []Address{testPayer, testMediator, testPayee}, EstimatedFee: 5}},
		token:      &token,
	}

	errMsg, routes, feedbackToken := GetBestRoutes(
		context.Background(), chainState, testTokenNetwork, testOneToN,
		testPayer, testPayee, 100, "", testPFSConfig, finder)

	// Everything filtered out counts as the service finding nothing.
	if errMsg != MsgPFSNoRoutes {
		t.Errorf("Expected %q, got %q", MsgPFSNoRoutes, errMsg)
	}
	if len(routes) != 0 || feedbackToken != nil {
		t.Errorf("Expected empty result, got routes=%v token=%v", routes, feedbackToken)
	}
}

// A candidate through an unknown partner is dropped.
func TestGetBestRoutesUnknownNextHop(t *testing.T) {
	chainState := testChainState(openedChannel(1, testMediator, 1000, 10))

	token := uuid.New()
	finder := &fakePathFinder{
		candidates: []PathCandidate{
			{Path: []Address{testPayer, testAddr(0xee), testPayee}, EstimatedFee: 3},
			{Path: []Address{testPayer, testMediator, testPayee}, EstimatedFee: 5},
		},
		token: &token,
	}

	errMsg, routes, _ := GetBestRoutes(
		context.Background(), chainState, testTokenNetwork, testOneToN,
		testPayer, testPayee, 100, "", testPFSConfig, finder)

	if errMsg != "" {
		t.Fatalf("Expected routes, got error %q", errMsg)
	}
	if len(routes) != 1 || routes[0].Route[1] != testMediator {
		t.Errorf("Candidate with unknown next hop not excluded: %v", routes)
	}
}

// Candidates keep the order the service returned them in.
func TestGetBestRoutesKeepsCandidateOrder(t *testing.T) {
	chainState := testChainState(
		openedChannel(1, testMediator, 1000, 10),
		openedChannel(2, testPrevious, 1000, 11),
	)
	token := uuid.New()
	finder := &fakePathFinder{
		candidates: []PathCandidate{
			{Path: []Address{testPayer, testPrevious, testPayee}, EstimatedFee: 9},
			{Path: []Address{testPayer, testMediator, testPayee}, EstimatedFee: 2},
		},
		token: &token,
	}

	_, routes, _ := GetBestRoutes(
		context.Background(), chainState, testTokenNetwork, testOneToN,
		testPayer, testPayee, 100, "", testPFSConfig, finder)

	if len(routes) != 2 {
		t.Fatalf("Expected 2 routes, got %d", len(routes))
	}
	if routes[0].EstimatedFee != 9 || routes[1].EstimatedFee != 2 {
		t.Errorf("Routes were reordered: %v", routes)
	}
}

func TestGetBestRoutesUnknownTokenNetworkPanics(t *testing.T) {
	chainState := testChainState()

	defer func() {
		if recover() == nil {
			t.Error("Expected panic for unvalidated token network")
		}
	}()
	GetBestRoutes(context.Background(), chainState, testAddr(0xff), "",
		testPayer, testPayee, 100, "", nil, nil)
}

func TestResolveRoutes(t *testing.T) {
	closing := openedChannel(2, testPrevious, 1000, 11)
	closing.Status = ChannelStatusClosing
	chainState := testChainState(openedChannel(1, testMediator, 1000, 10), closing)

	metadata := []RouteMetadata{
		{Route: []Address{testPayer, testMediator, testPayee}},
		{Route: []Address{testPayer}},                         // too short
		{Route: []Address{testPayer, testAddr(0xee)}},         // no channel
		{Route: []Address{testPayer, testPrevious, testPayee}}, // channel not opened
	}

	routes := ResolveRoutes(metadata, testTokenNetwork, chainState)

	if len(routes) != 1 {
		t.Fatalf("Expected 1 resolved route, got %d: %v", len(routes), routes)
	}
	if routes[0].EstimatedFee != 0 {
		t.Errorf("Peer-supplied routes must resolve with zero fee, got %d", routes[0].EstimatedFee)
	}
	if !reflect.DeepEqual(routes[0].Route, []Address{testPayer, testMediator, testPayee}) {
		t.Errorf("Route sequence altered: %v", routes[0].Route)
	}
}

func TestResolveRoutesIdempotent(t *testing.T) {
	chainState := testChainState(
		openedChannel(1, testMediator, 1000, 10),
		openedChannel(2, testPrevious, 1000, 11),
	)
	metadata := []RouteMetadata{
		{Route: []Address{testPayer, testMediator, testPayee}},
		{Route: []Address{testPayer, testPrevious, testPayee}},
	}

	first := ResolveRoutes(metadata, testTokenNetwork, chainState)
	second := ResolveRoutes(metadata, testTokenNetwork, chainState)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("ResolveRoutes is not idempotent: %v vs %v", first, second)
	}
}

// Peer metadata has no previous-hop constraint: a route back over the hop
// the transfer arrived from is still resolvable.
func TestResolveRoutesNoBacktrackExemption(t *testing.T) {
	chainState := testChainState(openedChannel(1, testPrevious, 1000, 10))
	metadata := []RouteMetadata{
		{Route: []Address{testPayer, testPrevious, testPayee}},
	}

	routes := ResolveRoutes(metadata, testTokenNetwork, chainState)
	if len(routes) != 1 {
		t.Errorf("Peer metadata must not be subject to the no-backtrack rule, got %v", routes)
	}
}
