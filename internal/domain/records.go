package domain

import "strings"

// RecordType is a DNS record type managed by the provisioner.
type RecordType string

const (
	RecordTXT   RecordType = "TXT"
	RecordMX    RecordType = "MX"
	RecordCNAME RecordType = "CNAME"
)

// DNSRecord is a single registrar record. Name is relative to the base domain
// (e.g. "send.acme" under "example.com").
type DNSRecord struct {
	Type     RecordType `json:"type"`
	Name     string     `json:"name"`
	Value    string     `json:"data"`
	Priority int        `json:"priority,omitempty"`
	TTL      int        `json:"ttl"`
}

// RecordKey identifies a record for upsert purposes. At most one live record
// exists per key.
type RecordKey struct {
	Type RecordType
	Name string
}

// Key returns the identity key of the record.
func (r DNSRecord) Key() RecordKey {
	return RecordKey{Type: r.Type, Name: strings.ToLower(r.Name)}
}

// DeleteOutcome reports what an idempotent delete found.
type DeleteOutcome string

const (
	DeleteDeleted  DeleteOutcome = "deleted"
	DeleteNotFound DeleteOutcome = "not_found"
)
