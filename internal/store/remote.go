package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/relaycli/relay/internal/model"
)

// RemoteStore implements Store by forwarding requests over HTTP to a
// relay serve instance.
type RemoteStore struct {
	baseURL string
	client  *http.Client
}

// NewRemote creates a RemoteStore pointing at the given base URL
// (e.g., "http://localhost:7420").
func NewRemote(baseURL string) *RemoteStore {
	return &RemoteStore{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (r *RemoteStore) GetCapability(ctx context.Context, tool string) (*model.CapabilityRecord, error) {
	var rec model.CapabilityRecord
	found, err := r.getJSONMaybe(ctx, "/api/v1/capabilities/"+url.PathEscape(tool), nil, &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

func (r *RemoteStore) PutCapability(ctx context.Context, rec model.CapabilityRecord) error {
	return r.putJSON(ctx, "/api/v1/capabilities/"+url.PathEscape(rec.Tool), rec)
}

func (r *RemoteStore) ListCapabilities(ctx context.Context) ([]model.CapabilityRecord, error) {
	var recs []model.CapabilityRecord
	if err := r.getJSON(ctx, "/api/v1/capabilities", nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *RemoteStore) GetFailure(ctx context.Context, tool string) (*model.FailureRecord, error) {
	var rec model.FailureRecord
	found, err := r.getJSONMaybe(ctx, "/api/v1/failures/"+url.PathEscape(tool), nil, &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

func (r *RemoteStore) PutFailure(ctx context.Context, rec model.FailureRecord) error {
	return r.putJSON(ctx, "/api/v1/failures/"+url.PathEscape(rec.Tool), rec)
}

func (r *RemoteStore) RecordAttempt(ctx context.Context, a model.Attempt) error {
	return r.postJSON(ctx, "/api/v1/attempts", a)
}

func (r *RemoteStore) ListAttempts(ctx context.Context, opts AttemptOpts) ([]model.Attempt, error) {
	q := url.Values{}
	if !opts.Since.IsZero() {
		q.Set("since", opts.Since.UTC().Format(time.RFC3339))
	}
	if opts.Tool != "" {
		q.Set("tool", opts.Tool)
	}
	if opts.FailOnly {
		q.Set("failed", "true")
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	var attempts []model.Attempt
	if err := r.getJSON(ctx, "/api/v1/attempts", q, &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *RemoteStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := r.getJSON(ctx, "/api/v1/stats", nil, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// Close is a no-op for the remote store.
func (r *RemoteStore) Close() error { return nil }

func (r *RemoteStore) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	found, err := r.getJSONMaybe(ctx, path, q, out)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("remote get %s: not found", path)
	}
	return nil
}

// getJSONMaybe performs a GET and decodes the body into out. A 404 returns
// (false, nil).
func (r *RemoteStore) getJSONMaybe(ctx context.Context, path string, q url.Values, out any) (bool, error) {
	u := r.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("remote get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, remoteError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return true, nil
}

func (r *RemoteStore) putJSON(ctx context.Context, path string, body any) error {
	return r.sendJSON(ctx, http.MethodPut, path, body)
}

func (r *RemoteStore) postJSON(ctx context.Context, path string, body any) error {
	return r.sendJSON(ctx, http.MethodPost, path, body)
}

func (r *RemoteStore) sendJSON(ctx context.Context, method, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return remoteError(resp)
	}
	return nil
}

// remoteError extracts an error message from a non-2xx response.
func remoteError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("remote store: %s (status %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("remote store: unexpected status %d", resp.StatusCode)
}
