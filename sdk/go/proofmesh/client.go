// Package proofmesh is a Go client for the ProofMesh REST API.
package proofmesh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"ProofMesh/internal/proofs"
	mysqlstore "ProofMesh/internal/storage/mysql"
	"ProofMesh/internal/task"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Wire types shared with the server.
type (
	Input              = proofs.ProvenanceInput
	Receipt            = proofs.ProofReceipt
	VerificationResult = proofs.VerificationResult
	Lineage            = mysqlstore.LineageResult
	Job                = task.Job
	JobStats           = task.JobStats
)

// Health is the /healthz payload.
type Health struct {
	Status    string `json:"status"`
	Signer    string `json:"signer"`
	PublicKey string `json:"publicKey,omitempty"`
	Version   string `json:"version"`
	Time      string `json:"time"`
}

// ListOptions filters ListProofs.
type ListOptions struct {
	Limit     int
	Generator string
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("proofmesh api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("proofmesh api error (%d): %s", e.StatusCode, e.Message)
}

// IsValidationError reports whether err is the server's 400 response for a
// blank content hash or generator.
func IsValidationError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == string(proofs.CodeValidationFailed)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client wraps the HTTP interactions with the ProofMesh REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient instantiates a client. When httpClient is nil a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// GenerateProof issues a receipt synchronously.
func (c *Client) GenerateProof(ctx context.Context, in Input) (*Receipt, error) {
	var receipt Receipt
	if err := c.send(ctx, http.MethodPost, "/api/v1/proofs", nil, in, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// GetProof fetches a stored receipt.
func (c *Client) GetProof(ctx context.Context, proofID string) (*Receipt, error) {
	var receipt Receipt
	if err := c.send(ctx, http.MethodGet, "/api/v1/proofs/"+url.PathEscape(proofID), nil, nil, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// ListProofs returns stored receipts, newest first.
func (c *Client) ListProofs(ctx context.Context, opts ListOptions) ([]Receipt, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Generator != "" {
		q.Set("generator", opts.Generator)
	}
	var out struct {
		Receipts []Receipt `json:"receipts"`
	}
	if err := c.send(ctx, http.MethodGet, "/api/v1/proofs", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Receipts, nil
}

// Lineage walks parent links starting at proofID. depth <= 0 uses the server default.
func (c *Client) Lineage(ctx context.Context, proofID string, depth int) (*Lineage, error) {
	q := url.Values{}
	if depth > 0 {
		q.Set("depth", strconv.Itoa(depth))
	}
	var out Lineage
	if err := c.send(ctx, http.MethodGet, "/api/v1/proofs/"+url.PathEscape(proofID)+"/lineage", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyProof checks a stored receipt against the original input.
func (c *Client) VerifyProof(ctx context.Context, proofID string, in Input) (VerificationResult, error) {
	var out VerificationResult
	err := c.send(ctx, http.MethodPost, "/api/v1/proofs/"+url.PathEscape(proofID)+"/verify", nil, in, &out)
	return out, err
}

// VerifyReceipt checks a receipt the caller holds, without a server-side lookup.
func (c *Client) VerifyReceipt(ctx context.Context, receipt *Receipt, in Input) (VerificationResult, error) {
	var out VerificationResult
	body := struct {
		Receipt *Receipt `json:"receipt"`
		Input   Input    `json:"input"`
	}{receipt, in}
	err := c.send(ctx, http.MethodPost, "/api/v1/verify", nil, body, &out)
	return out, err
}

// SubmitJob queues an asynchronous issuance. jobID may be empty; a repeated
// jobID returns the existing job.
func (c *Client) SubmitJob(ctx context.Context, jobID string, in Input) (*Job, error) {
	var job Job
	req := task.SubmitRequest{ID: jobID, Input: in}
	if err := c.send(ctx, http.MethodPost, "/api/v1/jobs", nil, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.send(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(jobID), nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// JobStats returns aggregate job counts.
func (c *Client) JobStats(ctx context.Context) (JobStats, error) {
	var stats JobStats
	err := c.send(ctx, http.MethodGet, "/api/v1/jobs/stats", nil, nil, &stats)
	return stats, err
}

// WaitForJob polls until the job succeeds or fails terminally, or ctx ends.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Health fetches /healthz.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.send(ctx, http.MethodGet, "/healthz", nil, nil, &h)
	return h, err
}

func (c *Client) send(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	u := c.baseURL.ResolveReference(&url.URL{Path: path.Join(c.baseURL.Path, endpoint)})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
