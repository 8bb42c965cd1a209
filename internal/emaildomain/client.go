// Package emaildomain is a client for the email-delivery provider's domains
// API: sending-domain creation, DNS requirement lookup, verification and
// deletion.
package emaildomain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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

// Client is the email provider domains API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new email provider client
func NewClient(cfg config.EmailProviderConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, cfg.MaxRetries),
	}
}

// IsConfigured returns true if the API key is set
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// doRequest makes an HTTP request with Bearer auth and returns the status
// code and body. Non-2xx statuses are returned to the caller, not wrapped.
func (c *Client) doRequest(ctx context.Context, op, method, path string, body interface{}) (int, []byte, error) {
	if !c.IsConfigured() {
		return 0, nil, &domain.ProviderError{
			Provider: providerName,
			Op:       op,
			Kind:     domain.KindConfig,
			Err:      errors.New("email provider API key is required"),
		}
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

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

// isAlreadyExists reports whether a create failure means the name is taken.
// Providers disagree on the status code, so the body is checked too.
func isAlreadyExists(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	if status < 400 || status >= 500 {
		return false
	}
	msg := strings.ToLower(string(body))
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "already been registered") ||
		strings.Contains(msg, "registered already")
}

// CreateDomain creates a sending domain. A domain that already exists is
// returned with status Unknown and AlreadyExisted set; its id is resolved
// from the domain list. A failed lookup still counts as success, with an
// empty id.
func (c *Client) CreateDomain(ctx context.Context, name, region string) (*domain.SendingDomain, error) {
	const op = "create domain"
	status, body, err := c.doRequest(ctx, op, http.MethodPost, "/domains", createDomainRequest{Name: name, Region: region})
	if err != nil {
		return nil, err
	}

	if isAlreadyExists(status, body) {
		logger.Info("email provider: domain already exists", "domain", name)
		sd := &domain.SendingDomain{Name: name, Status: domain.DomainUnknown, Region: region, AlreadyExisted: true}
		existing, err := c.findDomain(ctx, name)
		if err != nil {
			logger.Warn("email provider: could not resolve existing domain id", "domain", name, "error", err)
			return sd, nil
		}
		if existing != nil {
			sd.ID = existing.ID
			if existing.Region != "" {
				sd.Region = existing.Region
			}
		}
		return sd, nil
	}
	if !isSuccess(status) {
		return nil, statusError(op, status, body)
	}

	var created apiDomain
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("parsing create domain response: %w", err)
	}
	if created.Name == "" {
		created.Name = name
	}
	logger.Info("email provider: domain created", "domain", created.Name, "id", created.ID, "status", created.Status)
	return created.toSendingDomain(), nil
}

// GetDomainDetail returns the DNS requirements the provider computed for the
// domain. None computed yet is an empty slice.
func (c *Client) GetDomainDetail(ctx context.Context, id string) ([]domain.DKIMRequirement, error) {
	const op = "get domain"
	status, body, err := c.doRequest(ctx, op, http.MethodGet, "/domains/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, statusError(op, status, body)
	}

	var detail apiDomain
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("parsing domain detail: %w", err)
	}

	reqs := make([]domain.DKIMRequirement, 0, len(detail.Records))
	for _, r := range detail.Records {
		reqs = append(reqs, r.toRequirement())
	}
	return reqs, nil
}

// TriggerVerification asks the provider to re-check the domain's DNS.
// The returned status is whatever the provider reports right away.
func (c *Client) TriggerVerification(ctx context.Context, id string) (domain.DomainStatus, error) {
	const op = "verify domain"
	status, body, err := c.doRequest(ctx, op, http.MethodPost, "/domains/"+url.PathEscape(id)+"/verify", nil)
	if err != nil {
		return domain.DomainUnknown, err
	}
	if !isSuccess(status) {
		return domain.DomainUnknown, statusError(op, status, body)
	}

	var resp verifyResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return domain.DomainUnknown, fmt.Errorf("parsing verify response: %w", err)
		}
	}
	return domain.ParseDomainStatus(resp.Status), nil
}

// ListDomains returns every sending domain on the account
func (c *Client) ListDomains(ctx context.Context) ([]domain.SendingDomain, error) {
	const op = "list domains"
	status, body, err := c.doRequest(ctx, op, http.MethodGet, "/domains", nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, statusError(op, status, body)
	}

	var resp listDomainsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing domain list: %w", err)
	}

	domains := make([]domain.SendingDomain, 0, len(resp.Data))
	for _, d := range resp.Data {
		domains = append(domains, *d.toSendingDomain())
	}
	return domains, nil
}

// findDomain resolves a name to its domain, or nil when absent
func (c *Client) findDomain(ctx context.Context, name string) (*domain.SendingDomain, error) {
	domains, err := c.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	for i := range domains {
		if strings.EqualFold(domains[i].Name, name) {
			return &domains[i], nil
		}
	}
	return nil, nil
}

// DeleteDomain deletes a sending domain by name. The provider only deletes
// by id, so the name is resolved through the domain list first.
func (c *Client) DeleteDomain(ctx context.Context, name string) (domain.DeleteOutcome, error) {
	const op = "delete domain"
	existing, err := c.findDomain(ctx, name)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return domain.DeleteNotFound, nil
	}

	status, body, err := c.doRequest(ctx, op, http.MethodDelete, "/domains/"+url.PathEscape(existing.ID), nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return domain.DeleteNotFound, nil
	}
	if !isSuccess(status) {
		return "", statusError(op, status, body)
	}
	logger.Info("email provider: domain deleted", "domain", name, "id", existing.ID)
	return domain.DeleteDeleted, nil
}
