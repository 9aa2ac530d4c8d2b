package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Package-level errors for feedback handling
var (
	ErrUnknownFeedbackToken = errors.New("unknown feedback token")
)

const (
	// maxFeedbackAttempts bounds redelivery of a single report before it is
	// dropped.
	maxFeedbackAttempts = 5
	// maxRememberedQueries bounds how many outstanding PFS queries the node
	// keeps feedback state for; the oldest are evicted first.
	maxRememberedQueries = 1024
)

// PendingFeedback is one route outcome report waiting for delivery to the
// path-finding service.
type PendingFeedback struct {
	Token        uuid.UUID `json:"token"`
	TokenNetwork Address   `json:"tokenNetwork"`
	Route        []Address `json:"route"`
	Successful   bool      `json:"successful"`
	QueuedAt     time.Time `json:"queuedAt"`
	Attempts     int       `json:"attempts"`
}

// FeedbackStore remembers which feedback token belongs to which PFS query
// and queues outcome reports until they reach the service.
type FeedbackStore struct {
	mu sync.Mutex

	// tokenNetworks maps a feedback token to the token network its query
	// was issued for.
	tokenNetworks map[uuid.UUID]Address
	// tokenOrder tracks insertion order for eviction.
	tokenOrder []uuid.UUID

	pending []PendingFeedback
}

// NewFeedbackStore creates an empty feedback store.
func NewFeedbackStore() *FeedbackStore {
	return &FeedbackStore{
		tokenNetworks: make(map[uuid.UUID]Address),
	}
}

// RememberQuery records the feedback token of a successful PFS query so a
// later outcome report can be attributed to it.
func (fs *FeedbackStore) RememberQuery(token uuid.UUID, tokenNetwork Address) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.tokenNetworks[token]; exists {
		return
	}

	if len(fs.tokenOrder) >= maxRememberedQueries {
		oldest := fs.tokenOrder[0]
		fs.tokenOrder = fs.tokenOrder[1:]
		delete(fs.tokenNetworks, oldest)
	}

	fs.tokenNetworks[token] = tokenNetwork
	fs.tokenOrder = append(fs.tokenOrder, token)
}

// QueueReport queues a route outcome for delivery. The token must belong to
// a remembered query.
func (fs *FeedbackStore) QueueReport(token uuid.UUID, route []Address, successful bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	tokenNetwork, exists := fs.tokenNetworks[token]
	if !exists {
		return ErrUnknownFeedbackToken
	}

	fs.pending = append(fs.pending, PendingFeedback{
		Token:        token,
		TokenNetwork: tokenNetwork,
		Route:        route,
		Successful:   successful,
		QueuedAt:     time.Now(),
	})
	pendingFeedbackGauge.Set(float64(len(fs.pending)))
	return nil
}

// Flush attempts to deliver every queued report. Failed deliveries are
// requeued until maxFeedbackAttempts, then dropped with a log line.
func (fs *FeedbackStore) Flush(ctx context.Context, pathFinder PathFinder) {
	fs.mu.Lock()
	batch := fs.pending
	fs.pending = nil
	fs.mu.Unlock()

	var retry []PendingFeedback
	for _, report := range batch {
		err := pathFinder.ReportRouteResult(ctx, report.TokenNetwork, report.Token, report.Route, report.Successful)
		if err == nil {
			logger.Debug("Delivered route feedback to PFS",
				"token", report.Token,
				"successful", report.Successful)
			continue
		}

		report.Attempts++
		if report.Attempts >= maxFeedbackAttempts {
			logger.Warn("Dropping route feedback after repeated delivery failures",
				"token", report.Token,
				"attempts", report.Attempts,
				"error", err)
			continue
		}
		retry = append(retry, report)
	}

	if len(retry) > 0 {
		fs.mu.Lock()
		fs.pending = append(retry, fs.pending...)
		fs.mu.Unlock()
	}

	fs.mu.Lock()
	pendingFeedbackGauge.Set(float64(len(fs.pending)))
	fs.mu.Unlock()
}

// Pending returns a copy of the queued reports, for persistence.
func (fs *FeedbackStore) Pending() []PendingFeedback {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	out := make([]PendingFeedback, len(fs.pending))
	copy(out, fs.pending)
	return out
}

// Restore re-queues reports loaded from disk and re-registers their tokens.
func (fs *FeedbackStore) Restore(reports []PendingFeedback) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, report := range reports {
		if _, exists := fs.tokenNetworks[report.Token]; !exists {
			fs.tokenNetworks[report.Token] = report.TokenNetwork
			fs.tokenOrder = append(fs.tokenOrder, report.Token)
		}
		fs.pending = append(fs.pending, report)
	}
	pendingFeedbackGauge.Set(float64(len(fs.pending)))
}
