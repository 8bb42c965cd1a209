package registrar

import "github.com/ignite/tenant-domains/internal/domain"

// providerName labels errors from the REST registrar.
const providerName = "registrar"

// apiRecord is the registrar's wire shape for a DNS record.
type apiRecord struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Data     string `json:"data"`
	TTL      int    `json:"ttl,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

func toAPIRecord(r domain.DNSRecord) apiRecord {
	return apiRecord{
		Type:     string(r.Type),
		Name:     r.Name,
		Data:     r.Value,
		TTL:      r.TTL,
		Priority: r.Priority,
	}
}

// sameRecord reports whether an existing record already carries the desired
// value, so the upsert can leave it alone.
func sameRecord(existing apiRecord, want domain.DNSRecord) bool {
	return existing.Data == want.Value &&
		(want.TTL == 0 || existing.TTL == want.TTL) &&
		existing.Priority == want.Priority
}
