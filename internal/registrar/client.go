// Package registrar talks to the DNS registrar that hosts the base domain.
// Records are addressed by (type, name) relative to the base domain and
// every write is an upsert.
package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/tenant-domains/internal/config"
	"github.com/ignite/tenant-domains/internal/domain"
	"github.com/ignite/tenant-domains/internal/pkg/httpretry"
	"github.com/ignite/tenant-domains/internal/pkg/logger"
)

// Client is the REST registrar API client.
// Auth uses an API-key pair in the Authorization header.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new registrar API client
func NewClient(cfg config.RegistrarConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, cfg.MaxRetries),
	}
}

// IsConfigured returns true if both halves of the API-key pair are set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

func (c *Client) recordsPath(baseDomain string) string {
	return "/v1/domains/" + url.PathEscape(baseDomain) + "/records"
}

func (c *Client) recordPath(baseDomain string, t domain.RecordType, name string) string {
	return c.recordsPath(baseDomain) + "/" + url.PathEscape(string(t)) + "/" + url.PathEscape(name)
}

// doRequest sends a JSON request and returns the status code and body.
// Transport failures come back as transient ProviderErrors; status handling
// is left to the caller because 404 means different things per endpoint.
func (c *Client) doRequest(ctx context.Context, op, method, path string, body interface{}) (int, []byte, error) {
	if !c.IsConfigured() {
		return 0, nil, &domain.ProviderError{
			Provider: providerName,
			Op:       op,
			Kind:     domain.KindConfig,
			Err:      fmt.Errorf("registrar API key and secret are required"),
		}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("sso-key %s:%s", c.apiKey, c.apiSecret))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &domain.ProviderError{Provider: providerName, Op: op, Kind: domain.KindTransient, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &domain.ProviderError{Provider: providerName, Op: op, Kind: domain.KindTransient, Err: fmt.Errorf("reading response: %w", err)}
	}
	return resp.StatusCode, respBody, nil
}

func statusError(op string, status int, body []byte) error {
	return &domain.ProviderError{
		Provider:   providerName,
		Op:         op,
		Kind:       domain.ClassifyStatus(status),
		StatusCode: status,
		Body:       strings.TrimSpace(string(body)),
	}
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

// getRecords returns the live records at (type, name). A missing name is an
// empty slice.
func (c *Client) getRecords(ctx context.Context, baseDomain string, t domain.RecordType, name string) ([]apiRecord, error) {
	const op = "get records"
	status, body, err := c.doRequest(ctx, op, http.MethodGet, c.recordPath(baseDomain, t, name), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if !isSuccess(status) {
		return nil, statusError(op, status, body)
	}

	var records []apiRecord
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("parsing records response: %w", err)
	}
	return records, nil
}

// UpsertRecords writes records so that exactly one record exists per
// (type, name). Keys that are new go out in a single batched PATCH; keys
// whose live value differs are replaced in place; identical keys are left
// alone. Calling it twice with the same records is a no-op the second time.
func (c *Client) UpsertRecords(ctx context.Context, baseDomain string, records []domain.DNSRecord) error {
	const op = "upsert records"
	if len(records) == 0 {
		return nil
	}

	var appendBatch []apiRecord
	for _, rec := range records {
		existing, err := c.getRecords(ctx, baseDomain, rec.Type, rec.Name)
		if err != nil {
			return err
		}
		switch {
		case len(existing) == 0:
			appendBatch = append(appendBatch, toAPIRecord(rec))
		case len(existing) == 1 && sameRecord(existing[0], rec):
			logger.Debug("registrar: record already current", "type", rec.Type, "name", rec.Name)
		default:
			if err := c.replaceRecord(ctx, baseDomain, rec); err != nil {
				return err
			}
		}
	}

	if len(appendBatch) == 0 {
		return nil
	}

	status, body, err := c.doRequest(ctx, op, http.MethodPatch, c.recordsPath(baseDomain), appendBatch)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return statusError(op, status, body)
	}
	logger.Info("registrar: records upserted", "domain", baseDomain, "count", len(appendBatch))
	return nil
}

// replaceRecord overwrites every record at (type, name) with rec.
func (c *Client) replaceRecord(ctx context.Context, baseDomain string, rec domain.DNSRecord) error {
	const op = "replace record"
	payload := []apiRecord{{Data: rec.Value, TTL: rec.TTL, Priority: rec.Priority}}
	status, body, err := c.doRequest(ctx, op, http.MethodPut, c.recordPath(baseDomain, rec.Type, rec.Name), payload)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return statusError(op, status, body)
	}
	logger.Info("registrar: record replaced", "domain", baseDomain, "type", rec.Type, "name", rec.Name)
	return nil
}

// DeleteRecord removes all records at (type, name). A record that is
// already gone reports DeleteNotFound with a nil error.
func (c *Client) DeleteRecord(ctx context.Context, baseDomain string, t domain.RecordType, name string) (domain.DeleteOutcome, error) {
	const op = "delete record"
	status, body, err := c.doRequest(ctx, op, http.MethodDelete, c.recordPath(baseDomain, t, name), nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return domain.DeleteNotFound, nil
	}
	if !isSuccess(status) {
		return "", statusError(op, status, body)
	}
	return domain.DeleteDeleted, nil
}
