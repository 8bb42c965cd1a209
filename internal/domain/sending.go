package domain

import "strings"

// DomainStatus is the provider-side verification state of a sending domain.
type DomainStatus string

const (
	DomainPending  DomainStatus = "pending"
	DomainVerified DomainStatus = "verified"
	DomainFailed   DomainStatus = "failed"
	DomainUnknown  DomainStatus = "unknown"
)

// ParseDomainStatus maps a provider status string onto DomainStatus.
// Providers use several spellings for in-flight states.
func ParseDomainStatus(s string) DomainStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verified", "success":
		return DomainVerified
	case "pending", "not_started", "temporary_failure":
		return DomainPending
	case "failed", "failure":
		return DomainFailed
	default:
		return DomainUnknown
	}
}

// SendingDomain is the email provider's view of a tenant sending subdomain.
type SendingDomain struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Status DomainStatus `json:"status"`
	Region string       `json:"region,omitempty"`

	// AlreadyExisted is set when the create call hit a pre-existing domain.
	AlreadyExisted bool `json:"already_existed,omitempty"`
}

// DKIMRequirement is a DNS record the email provider computed for a domain.
// Name is fully qualified as returned by the provider.
type DKIMRequirement struct {
	Record   string     `json:"record"`
	Name     string     `json:"name"`
	Type     RecordType `json:"type"`
	Value    string     `json:"value"`
	Priority int        `json:"priority,omitempty"`
}

// IsDKIM reports whether the requirement is a DKIM TXT record.
func (r DKIMRequirement) IsDKIM() bool {
	return strings.EqualFold(string(r.Type), string(RecordTXT)) && strings.Contains(strings.ToLower(r.Name), "domainkey")
}
