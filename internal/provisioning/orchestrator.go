// Package provisioning sequences the registrar and email provider calls that
// set up and tear down a tenant's sending subdomain. Runs are stateless:
// every decision comes from live provider responses, and every step is
// recorded in the returned result instead of aborting the run.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/tenant-domains/internal/config"
	"github.com/ignite/tenant-domains/internal/domain"
	"github.com/ignite/tenant-domains/internal/handle"
	"github.com/ignite/tenant-domains/internal/pkg/logger"
)

// DNSRecordClient upserts and deletes registrar records by (type, name).
type DNSRecordClient interface {
	UpsertRecords(ctx context.Context, baseDomain string, records []domain.DNSRecord) error
	DeleteRecord(ctx context.Context, baseDomain string, t domain.RecordType, name string) (domain.DeleteOutcome, error)
}

// EmailDomainClient manages sending domains at the email provider.
type EmailDomainClient interface {
	CreateDomain(ctx context.Context, name, region string) (*domain.SendingDomain, error)
	GetDomainDetail(ctx context.Context, id string) ([]domain.DKIMRequirement, error)
	TriggerVerification(ctx context.Context, id string) (domain.DomainStatus, error)
	DeleteDomain(ctx context.Context, name string) (domain.DeleteOutcome, error)
}

// Options configures an Orchestrator. Zero fields take defaults.
type Options struct {
	BaseDomain       string
	Region           string
	PropagationDelay time.Duration
	DKIMSelector     string
	SPFInclude       string
	MXHostTemplate   string // %s is replaced by Region
	RecordTTL        int
}

const (
	defaultRegion           = "us-east-1"
	defaultPropagationDelay = 2 * time.Second
	defaultDKIMSelector     = "resend"
	defaultSPFInclude       = "amazonses.com"
	defaultMXHostTemplate   = "feedback-smtp.%s.amazonses.com"
	defaultRecordTTL        = 600
)

func (o Options) withDefaults() Options {
	if o.Region == "" {
		o.Region = defaultRegion
	}
	if o.PropagationDelay <= 0 {
		o.PropagationDelay = defaultPropagationDelay
	}
	if o.DKIMSelector == "" {
		o.DKIMSelector = defaultDKIMSelector
	}
	if o.SPFInclude == "" {
		o.SPFInclude = defaultSPFInclude
	}
	if o.MXHostTemplate == "" {
		o.MXHostTemplate = defaultMXHostTemplate
	}
	if o.RecordTTL <= 0 {
		o.RecordTTL = defaultRecordTTL
	}
	return o
}

// OptionsFromConfig builds Options from the provisioning config section.
func OptionsFromConfig(cfg config.ProvisioningConfig) Options {
	return Options{
		BaseDomain:       cfg.BaseDomain,
		Region:           cfg.Region,
		PropagationDelay: cfg.PropagationDelay(),
		DKIMSelector:     cfg.DKIMSelector,
		SPFInclude:       cfg.SPFInclude,
		MXHostTemplate:   cfg.MXHostTemplate,
		RecordTTL:        cfg.RecordTTL,
	}
}

// Orchestrator runs provisioning and deprovisioning for tenant handles.
// It holds no per-run state and is safe for concurrent use across handles;
// callers serialize runs for the same handle.
type Orchestrator struct {
	dns   DNSRecordClient
	email EmailDomainClient
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates an Orchestrator over the two provider clients.
func New(dns DNSRecordClient, email EmailDomainClient, opts Options) *Orchestrator {
	return &Orchestrator{
		dns:   dns,
		email: email,
		opts:  opts.withDefaults(),
		sleep: sleepContext,
		now:   time.Now,
	}
}

// Options returns the effective options, defaults applied.
func (o *Orchestrator) Options() Options { return o.opts }

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// gate tracks whether a provider client is still usable in a run. A
// configuration error on the client's first call disables it.
type gate struct {
	name     string
	mu       sync.Mutex
	called   bool
	disabled bool
}

func (g *gate) observe(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.called && domain.IsConfigError(err) {
		g.disabled = true
	}
	g.called = true
}

func (g *gate) usable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.disabled
}

func (g *gate) skipReason() string {
	return g.name + " configuration error"
}

// Provision creates the sending domain for raw's handle and publishes its
// SPF, MX and DKIM records, then asks the provider to verify. It never
// returns an error: each step's outcome is in the result.
func (o *Orchestrator) Provision(ctx context.Context, raw string) *ProvisioningResult {
	h := handle.Normalize(raw)
	res := &ProvisioningResult{Handle: h, StartedAt: o.now()}
	defer func() { res.FinishedAt = o.now() }()

	if h == "" {
		res.Steps = append(res.Steps, failed(StepValidate, fmt.Errorf("handle %q normalizes to an empty label", raw)))
		logger.Warn("provisioning: invalid handle", "raw", raw)
		return res
	}

	emailGate := &gate{name: "email provider"}
	dnsGate := &gate{name: "registrar"}
	res.Domain = SendingDomainName(h, o.opts.BaseDomain)

	// Create the sending domain
	var domainID string
	sd, err := o.email.CreateDomain(ctx, res.Domain, o.opts.Region)
	emailGate.observe(err)
	if err != nil {
		res.Steps = append(res.Steps, failed(StepCreateDomain, err))
	} else {
		domainID = sd.ID
		res.DomainID = sd.ID
		detail := map[string]interface{}{"id": sd.ID, "status": sd.Status}
		if sd.AlreadyExisted {
			detail["already_exists"] = true
		}
		res.Steps = append(res.Steps, succeeded(StepCreateDomain, detail))
	}
	logger.Debug("provisioning: create domain", "handle", h, "domain", res.Domain, "id", domainID, "error", err)

	// SPF and MX go out in one batch and share its error
	spf, mx := spfRecord(h, o.opts), mxRecord(h, o.opts)
	err = o.dns.UpsertRecords(ctx, o.opts.BaseDomain, []domain.DNSRecord{spf, mx})
	dnsGate.observe(err)
	if err != nil {
		res.Steps = append(res.Steps, failed(StepAddSPF, err), failed(StepAddMX, err))
	} else {
		res.Steps = append(res.Steps,
			succeeded(StepAddSPF, map[string]string{"name": spf.Name, "value": spf.Value}),
			succeeded(StepAddMX, map[string]string{"name": mx.Name, "value": mx.Value}),
		)
	}
	logger.Debug("provisioning: spf/mx upsert", "handle", h, "name", spf.Name, "error", err)

	res.Steps = append(res.Steps, o.addDKIM(ctx, h, domainID, emailGate, dnsGate))
	res.Steps = append(res.Steps, o.triggerVerification(ctx, h, domainID, emailGate))

	res.OverallSuccess = stepSucceeded(res.Steps, StepCreateDomain) &&
		stepSucceeded(res.Steps, StepAddSPF) &&
		stepSucceeded(res.Steps, StepAddMX)

	if res.OverallSuccess {
		logger.Info("provisioning: complete", "handle", h, "domain", res.Domain, "failed_steps", len(res.Failed()))
	} else {
		logger.Warn("provisioning: incomplete", "handle", h, "domain", res.Domain, "failed_steps", describe(res.Failed()))
	}
	return res
}

func (o *Orchestrator) addDKIM(ctx context.Context, h, domainID string, emailGate, dnsGate *gate) StepOutcome {
	if !emailGate.usable() {
		return skipped(StepAddDKIM, emailGate.skipReason())
	}
	if domainID == "" {
		return skipped(StepAddDKIM, "no domain id")
	}

	reqs, err := o.email.GetDomainDetail(ctx, domainID)
	emailGate.observe(err)
	if err != nil {
		return failed(StepAddDKIM, fmt.Errorf("fetching domain detail: %w", err))
	}

	var dkim *domain.DKIMRequirement
	for i := range reqs {
		if reqs[i].IsDKIM() {
			dkim = &reqs[i]
			break
		}
	}
	if dkim == nil {
		logger.Debug("provisioning: no DKIM requirement yet", "handle", h, "id", domainID)
		return skipped(StepAddDKIM, "no DKIM requirement from provider yet")
	}

	if !dnsGate.usable() {
		return skipped(StepAddDKIM, dnsGate.skipReason())
	}
	rec := dkimRecord(*dkim, o.opts)
	err = o.dns.UpsertRecords(ctx, o.opts.BaseDomain, []domain.DNSRecord{rec})
	dnsGate.observe(err)
	logger.Debug("provisioning: dkim upsert", "handle", h, "name", rec.Name, "error", err)
	if err != nil {
		return failed(StepAddDKIM, err)
	}
	return succeeded(StepAddDKIM, map[string]string{"name": rec.Name})
}

func (o *Orchestrator) triggerVerification(ctx context.Context, h, domainID string, emailGate *gate) StepOutcome {
	if !emailGate.usable() {
		return skipped(StepTriggerVerification, emailGate.skipReason())
	}
	if domainID == "" {
		return skipped(StepTriggerVerification, "no domain id")
	}

	if err := o.sleep(ctx, o.opts.PropagationDelay); err != nil {
		return failed(StepTriggerVerification, fmt.Errorf("waiting for propagation: %w", err))
	}

	status, err := o.email.TriggerVerification(ctx, domainID)
	emailGate.observe(err)
	logger.Debug("provisioning: verification triggered", "handle", h, "id", domainID, "status", status, "error", err)
	if err != nil {
		return failed(StepTriggerVerification, err)
	}
	// Not yet verified is expected; DNS propagates asynchronously.
	return succeeded(StepTriggerVerification, map[string]interface{}{"status": status})
}

// Deprovision removes the handle's DNS records and sending domain. Missing
// resources count as success, so it is safe to run repeatedly or for a
// handle that was never provisioned.
func (o *Orchestrator) Deprovision(ctx context.Context, raw string) *DeprovisioningResult {
	h := handle.Normalize(raw)
	res := &DeprovisioningResult{Handle: h, StartedAt: o.now()}
	defer func() { res.FinishedAt = o.now() }()

	if h == "" {
		res.Steps = append(res.Steps, failed(StepValidate, fmt.Errorf("handle %q normalizes to an empty label", raw)))
		logger.Warn("deprovisioning: invalid handle", "raw", raw)
		return res
	}
	res.Domain = SendingDomainName(h, o.opts.BaseDomain)

	deletes := []struct {
		step Step
		t    domain.RecordType
		name string
	}{
		{StepDeleteSPF, domain.RecordTXT, sendName(h)},
		{StepDeleteMX, domain.RecordMX, sendName(h)},
		{StepDeleteDKIM, domain.RecordTXT, dkimName(o.opts.DKIMSelector, h)},
	}

	// The record deletes are independent; each reports its own outcome.
	outcomes := make([]StepOutcome, len(deletes))
	var g errgroup.Group
	for i, d := range deletes {
		g.Go(func() error {
			outcome, err := o.dns.DeleteRecord(ctx, o.opts.BaseDomain, d.t, d.name)
			outcomes[i] = deleteOutcome(d.step, outcome, err)
			logger.Debug("deprovisioning: record delete", "handle", h, "type", d.t, "name", d.name, "outcome", outcome, "error", err)
			return nil
		})
	}
	_ = g.Wait()
	res.Steps = append(res.Steps, outcomes...)

	outcome, err := o.email.DeleteDomain(ctx, res.Domain)
	res.Steps = append(res.Steps, deleteOutcome(StepDeleteDomain, outcome, err))

	if failedSteps := res.Failed(); len(failedSteps) > 0 {
		logger.Warn("deprovisioning: finished with failures", "handle", h, "domain", res.Domain, "failed_steps", describe(failedSteps))
	} else {
		logger.Info("deprovisioning: complete", "handle", h, "domain", res.Domain)
	}
	return res
}

func deleteOutcome(step Step, outcome domain.DeleteOutcome, err error) StepOutcome {
	if err != nil {
		return failed(step, err)
	}
	if outcome == domain.DeleteNotFound {
		return succeeded(step, "not found")
	}
	return succeeded(step, "deleted")
}

func stepSucceeded(steps []StepOutcome, step Step) bool {
	s, ok := findOutcome(steps, step)
	return ok && s.Success
}

// describe renders failed outcomes for a single log field.
func describe(steps []StepOutcome) string {
	var errs []error
	for _, s := range steps {
		errs = append(errs, fmt.Errorf("%s: %s", s.Step, s.Error))
	}
	if len(errs) == 0 {
		return ""
	}
	return errors.Join(errs...).Error()
}
