package emaildomain

import (
	"strings"

	"github.com/ignite/tenant-domains/internal/domain"
)

const providerName = "email_provider"

// createDomainRequest is the body of POST /domains
type createDomainRequest struct {
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

// apiDomain is the provider's domain object as returned by create, get and list
type apiDomain struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Status    string      `json:"status"`
	Region    string      `json:"region"`
	CreatedAt string      `json:"created_at,omitempty"`
	Records   []apiRecord `json:"records,omitempty"`
}

// apiRecord is one DNS requirement inside a domain detail response
type apiRecord struct {
	Record   string `json:"record"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	TTL      string `json:"ttl,omitempty"`
	Status   string `json:"status,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// listDomainsResponse is the body of GET /domains
type listDomainsResponse struct {
	Data []apiDomain `json:"data"`
}

// verifyResponse is the body of POST /domains/{id}/verify
type verifyResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (d apiDomain) toSendingDomain() *domain.SendingDomain {
	return &domain.SendingDomain{
		ID:     d.ID,
		Name:   d.Name,
		Status: domain.ParseDomainStatus(d.Status),
		Region: d.Region,
	}
}

func (r apiRecord) toRequirement() domain.DKIMRequirement {
	return domain.DKIMRequirement{
		Record:   r.Record,
		Name:     r.Name,
		Type:     domain.RecordType(strings.ToUpper(r.Type)),
		Value:    r.Value,
		Priority: r.Priority,
	}
}
