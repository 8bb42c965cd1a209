package provisioning

import (
	"fmt"
	"strings"

	"github.com/ignite/tenant-domains/internal/domain"
)

// ToRegistrarRelativeName converts a fully qualified name returned by the
// email provider into a name relative to baseDomain, as the registrar
// expects. The apex becomes "@". Names outside baseDomain are returned
// without a trailing dot but otherwise unchanged.
func ToRegistrarRelativeName(fqdn, baseDomain string) string {
	name := strings.TrimSuffix(strings.TrimSpace(fqdn), ".")
	base := strings.TrimSuffix(strings.TrimSpace(baseDomain), ".")
	if base == "" {
		return name
	}

	lname, lbase := strings.ToLower(name), strings.ToLower(base)
	if lname == lbase {
		return "@"
	}
	if strings.HasSuffix(lname, "."+lbase) {
		return name[:len(name)-len(base)-1]
	}
	return name
}

// SendingDomainName is the provider-side domain for a handle.
func SendingDomainName(handle, baseDomain string) string {
	return handle + "." + strings.TrimSuffix(baseDomain, ".")
}

// sendName is the registrar-relative name carrying SPF and MX.
func sendName(handle string) string {
	return "send." + handle
}

// dkimName is the registrar-relative name the DKIM record lands on.
func dkimName(selector, handle string) string {
	return selector + "._domainkey." + handle
}

func spfRecord(handle string, opts Options) domain.DNSRecord {
	return domain.DNSRecord{
		Type:  domain.RecordTXT,
		Name:  sendName(handle),
		Value: fmt.Sprintf("v=spf1 include:%s ~all", opts.SPFInclude),
		TTL:   opts.RecordTTL,
	}
}

func mxRecord(handle string, opts Options) domain.DNSRecord {
	return domain.DNSRecord{
		Type:     domain.RecordMX,
		Name:     sendName(handle),
		Value:    fmt.Sprintf(opts.MXHostTemplate, opts.Region),
		Priority: 10,
		TTL:      opts.RecordTTL,
	}
}

func dkimRecord(req domain.DKIMRequirement, opts Options) domain.DNSRecord {
	return domain.DNSRecord{
		Type:  domain.RecordTXT,
		Name:  ToRegistrarRelativeName(req.Name, opts.BaseDomain),
		Value: req.Value,
		TTL:   opts.RecordTTL,
	}
}
