package provisioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToRegistrarRelativeName(t *testing.T) {
	tests := []struct {
		name string
		fqdn string
		base string
		want string
	}{
		{"dkim record", "resend._domainkey.acme.example.com", "example.com", "resend._domainkey.acme"},
		{"trailing dot", "resend._domainkey.acme.example.com.", "example.com", "resend._domainkey.acme"},
		{"base with trailing dot", "send.acme.example.com", "example.com.", "send.acme"},
		{"case insensitive", "Resend._DomainKey.Acme.Example.COM", "example.com", "Resend._DomainKey.Acme"},
		{"apex", "example.com", "example.com", "@"},
		{"other zone unchanged", "resend._domainkey.acme.other.org", "example.com", "resend._domainkey.acme.other.org"},
		{"suffix without dot boundary", "acme.notexample.com", "example.com", "acme.notexample.com"},
		{"already relative", "send.acme", "example.com", "send.acme"},
		{"empty base", "send.acme.example.com", "", "send.acme.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToRegistrarRelativeName(tt.fqdn, tt.base))
		})
	}
}

func TestRecordBuilders(t *testing.T) {
	opts := Options{BaseDomain: "example.com"}.withDefaults()

	spf := spfRecord("acme", opts)
	assert.Equal(t, "send.acme", spf.Name)
	assert.Equal(t, "v=spf1 include:amazonses.com ~all", spf.Value)
	assert.Equal(t, 600, spf.TTL)

	mx := mxRecord("acme", opts)
	assert.Equal(t, "send.acme", mx.Name)
	assert.Equal(t, "feedback-smtp.us-east-1.amazonses.com", mx.Value)
	assert.Equal(t, 10, mx.Priority)

	assert.Equal(t, "resend._domainkey.acme", dkimName(opts.DKIMSelector, "acme"))
	assert.Equal(t, "acme.example.com", SendingDomainName("acme", "example.com."))
}
