package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Package-level errors for path-finding operations
var (
	ErrPFSNotConfigured = errors.New("pathfinding service not configured")
)

// Request/response headers for signed PFS queries
const (
	PFSRequesterHeader = "X-Requester-Address"
	PFSSignatureHeader = "X-Signature"
)

// ServiceRequestFailed is the only error that crosses the path-finding
// boundary during normal operation. Transport failures, service-reported
// errors and malformed responses are all converted into it, carrying a
// human-readable message plus structured detail for logging.
type ServiceRequestFailed struct {
	Message string
	Detail  map[string]any
}

func (e *ServiceRequestFailed) Error() string {
	return e.Message
}

// PathRequest is the full routing intent sent to the path-finding service.
type PathRequest struct {
	TokenNetwork  Address
	OneToNAddress Address
	ChainID       uint64
	From          Address
	To            Address
	Value         uint64
	MaxPaths      int

	// WaitForBlock tells the service not to answer from state older than
	// this block, so a channel the node just saw open is never invisible
	// to it.
	WaitForBlock BlockNumber
}

// PathCandidate is one raw path suggested by the path-finding service,
// not yet validated against local channel state.
type PathCandidate struct {
	Path         []Address
	EstimatedFee int64
}

// PathFinder is the query interface to the external path-finding service.
type PathFinder interface {
	// QueryPaths returns raw candidate paths with estimated fees and the
	// feedback token correlating this query with later outcome reports.
	// A successful query may return zero candidates; that is not an error.
	QueryPaths(ctx context.Context, req PathRequest) ([]PathCandidate, *uuid.UUID, error)
	// ReportRouteResult tells the service whether a suggested route worked.
	ReportRouteResult(ctx context.Context, tokenNetwork Address, token uuid.UUID, route []Address, successful bool) error
	// IsConfigured reports whether the service can be reached at all.
	IsConfigured() bool
}

// HTTPPathFinder implements PathFinder against the PFS HTTP API.
type HTTPPathFinder struct {
	config     PFSConfig
	privateKey *ecdsa.PrivateKey
	ownAddress Address
	httpClient *http.Client
}

// NewHTTPPathFinder creates a path-finding client. Requests are signed with
// the node's key and instrumented with otelhttp.
func NewHTTPPathFinder(config PFSConfig, privateKey *ecdsa.PrivateKey, timeout time.Duration) *HTTPPathFinder {
	config.URL = strings.TrimSuffix(config.URL, "/")
	if config.MaxPaths <= 0 {
		config.MaxPaths = DefaultPFSMaxPaths
	}

	return &HTTPPathFinder{
		config:     config,
		privateKey: privateKey,
		ownAddress: AddressFromPublicKey(&privateKey.PublicKey),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// pfsPathsRequest is the wire form of a paths query.
type pfsPathsRequest struct {
	From            Address `json:"from"`
	To              Address `json:"to"`
	Value           uint64  `json:"value"`
	MaxPaths        int     `json:"max_paths"`
	ChainID         uint64  `json:"chain_id"`
	OneToNAddress   Address `json:"one_to_n_address"`
	MaxFee          uint64  `json:"max_fee"`
	PFSWaitForBlock uint64  `json:"pfs_wait_for_block"`
}

// pfsPathsResponse is the wire form of a successful paths answer.
type pfsPathsResponse struct {
	Result []struct {
		Path         []string `json:"path"`
		EstimatedFee int64    `json:"estimated_fee"`
	} `json:"result"`
	FeedbackToken string `json:"feedback_token"`
}

// pfsErrorResponse is the wire form of a service-reported error.
type pfsErrorResponse struct {
	Errors    string `json:"errors"`
	ErrorCode int    `json:"error_code"`
}

// QueryPaths issues the signed paths query. The request runs in its own
// goroutine joined through a result channel, so a caller whose context
// expires is released immediately while other node work keeps running.
func (pf *HTTPPathFinder) QueryPaths(ctx context.Context, req PathRequest) ([]PathCandidate, *uuid.UUID, error) {
	if !pf.IsConfigured() {
		return nil, nil, ErrPFSNotConfigured
	}

	type queryResult struct {
		candidates []PathCandidate
		token      *uuid.UUID
		err        error
	}

	resultCh := make(chan queryResult, 1)
	go func() {
		candidates, token, err := pf.doQuery(ctx, req)
		resultCh <- queryResult{candidates: candidates, token: token, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.candidates, res.token, res.err
	case <-ctx.Done():
		return nil, nil, &ServiceRequestFailed{
			Message: ctx.Err().Error(),
			Detail:  map[string]any{"pfsUrl": pf.config.URL},
		}
	}
}

func (pf *HTTPPathFinder) doQuery(ctx context.Context, req PathRequest) ([]PathCandidate, *uuid.UUID, error) {
	body, err := json.Marshal(pfsPathsRequest{
		From:            req.From,
		To:              req.To,
		Value:           req.Value,
		MaxPaths:        req.MaxPaths,
		ChainID:         req.ChainID,
		OneToNAddress:   req.OneToNAddress,
		MaxFee:          pf.config.MaxFee,
		PFSWaitForBlock: uint64(req.WaitForBlock),
	})
	if err != nil {
		return nil, nil, &ServiceRequestFailed{Message: fmt.Sprintf("failed to encode request: %v", err)}
	}

	reqURL := fmt.Sprintf("%s/api/v1/%s/paths", pf.config.URL, req.TokenNetwork)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, &ServiceRequestFailed{Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if err := pf.signRequest(httpReq, body); err != nil {
		return nil, nil, &ServiceRequestFailed{Message: fmt.Sprintf("failed to sign request: %v", err)}
	}

	start := time.Now()
	resp, err := pf.httpClient.Do(httpReq)
	if err != nil {
		pfsRequestsTotal.WithLabelValues("paths", "transport_error").Inc()
		return nil, nil, &ServiceRequestFailed{
			Message: err.Error(),
			Detail:  map[string]any{"pfsUrl": pf.config.URL},
		}
	}
	defer resp.Body.Close()
	pfsRequestDuration.WithLabelValues("paths").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		pfsRequestsTotal.WithLabelValues("paths", "service_error").Inc()
		return nil, nil, decodeServiceError(resp)
	}

	var pathsResp pfsPathsResponse
	if err := json.NewDecoder(resp.Body).Decode(&pathsResp); err != nil {
		pfsRequestsTotal.WithLabelValues("paths", "malformed").Inc()
		return nil, nil, &ServiceRequestFailed{
			Message: fmt.Sprintf("malformed response: %v", err),
			Detail:  map[string]any{"pfsUrl": pf.config.URL},
		}
	}

	candidates := make([]PathCandidate, 0, len(pathsResp.Result))
	for i, raw := range pathsResp.Result {
		if len(raw.Path) < 2 {
			pfsRequestsTotal.WithLabelValues("paths", "malformed").Inc()
			return nil, nil, &ServiceRequestFailed{
				Message: "malformed response: path with fewer than 2 hops",
				Detail:  map[string]any{"pathIndex": i},
			}
		}
		path := make([]Address, 0, len(raw.Path))
		for _, rawAddr := range raw.Path {
			addr, ok := CanonicalAddress(rawAddr)
			if !ok {
				pfsRequestsTotal.WithLabelValues("paths", "malformed").Inc()
				return nil, nil, &ServiceRequestFailed{
					Message: "malformed response: invalid address in path",
					Detail:  map[string]any{"pathIndex": i, "address": rawAddr},
				}
			}
			path = append(path, addr)
		}
		candidates = append(candidates, PathCandidate{Path: path, EstimatedFee: raw.EstimatedFee})
	}

	var feedbackToken *uuid.UUID
	if pathsResp.FeedbackToken != "" {
		token, err := uuid.Parse(pathsResp.FeedbackToken)
		if err != nil {
			pfsRequestsTotal.WithLabelValues("paths", "malformed").Inc()
			return nil, nil, &ServiceRequestFailed{
				Message: fmt.Sprintf("malformed response: invalid feedback token: %v", err),
			}
		}
		feedbackToken = &token
	}

	pfsRequestsTotal.WithLabelValues("paths", "success").Inc()
	return candidates, feedbackToken, nil
}

// pfsFeedbackRequest is the wire form of a route outcome report.
type pfsFeedbackRequest struct {
	Token      string    `json:"token"`
	Path       []Address `json:"path"`
	Successful bool      `json:"success"`
}

// ReportRouteResult reports whether a route suggested under the given
// feedback token succeeded.
func (pf *HTTPPathFinder) ReportRouteResult(ctx context.Context, tokenNetwork Address, token uuid.UUID, route []Address, successful bool) error {
	if !pf.IsConfigured() {
		return ErrPFSNotConfigured
	}

	body, err := json.Marshal(pfsFeedbackRequest{
		Token:      token.String(),
		Path:       route,
		Successful: successful,
	})
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}

	reqURL := fmt.Sprintf("%s/api/v1/%s/feedback", pf.config.URL, tokenNetwork)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create feedback request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if err := pf.signRequest(httpReq, body); err != nil {
		return fmt.Errorf("failed to sign feedback request: %w", err)
	}

	resp, err := pf.httpClient.Do(httpReq)
	if err != nil {
		pfsRequestsTotal.WithLabelValues("feedback", "transport_error").Inc()
		return fmt.Errorf("feedback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		pfsRequestsTotal.WithLabelValues("feedback", "service_error").Inc()
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("feedback rejected: status %d: %s", resp.StatusCode, string(respBody))
	}

	pfsRequestsTotal.WithLabelValues("feedback", "success").Inc()
	return nil
}

// IsConfigured reports whether the client has an endpoint and a key.
func (pf *HTTPPathFinder) IsConfigured() bool {
	return pf.config.URL != "" && pf.privateKey != nil
}

// signRequest attaches the requester address and an ECDSA signature over
// the request body.
func (pf *HTTPPathFinder) signRequest(req *http.Request, body []byte) error {
	signature, err := SignData(pf.privateKey, body)
	if err != nil {
		return err
	}
	req.Header.Set(PFSRequesterHeader, string(pf.ownAddress))
	req.Header.Set(PFSSignatureHeader, hex.EncodeToString(signature))
	return nil
}

// decodeServiceError converts a non-200 PFS answer into a
// ServiceRequestFailed with the service's own message when one is present.
func decodeServiceError(resp *http.Response) *ServiceRequestFailed {
	respBody, _ := io.ReadAll(resp.Body)

	var errResp pfsErrorResponse
	if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Errors != "" {
		return &ServiceRequestFailed{
			Message: errResp.Errors,
			Detail: map[string]any{
				"errorCode":  errResp.ErrorCode,
				"statusCode": resp.StatusCode,
			},
		}
	}

	return &ServiceRequestFailed{
		Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		Detail:  map[string]any{"body": string(respBody)},
	}
}

// NoOpPathFinder implements PathFinder for nodes without a configured
// path-finding service.
type NoOpPathFinder struct{}

// NewNoOpPathFinder creates a no-op path-finding client.
func NewNoOpPathFinder() *NoOpPathFinder {
	return &NoOpPathFinder{}
}

// QueryPaths returns an error indicating the service is not configured.
func (pf *NoOpPathFinder) QueryPaths(ctx context.Context, req PathRequest) ([]PathCandidate, *uuid.UUID, error) {
	return nil, nil, ErrPFSNotConfigured
}

// ReportRouteResult returns an error indicating the service is not configured.
func (pf *NoOpPathFinder) ReportRouteResult(ctx context.Context, tokenNetwork Address, token uuid.UUID, route []Address, successful bool) error {
	return ErrPFSNotConfigured
}

// IsConfigured always returns false for the no-op client.
func (pf *NoOpPathFinder) IsConfigured() bool {
	return false
}
