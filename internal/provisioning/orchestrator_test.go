package provisioning

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/tenant-domains/internal/config"
	"github.com/ignite/tenant-domains/internal/domain"
)

const testBaseDomain = "example.com"

func newTestOrchestrator(dns *fakeDNS, email *fakeEmail) (*Orchestrator, *[]time.Duration) {
	o := New(dns, email, Options{BaseDomain: testBaseDomain})
	var waits []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return o, &waits
}

func stepNames(steps []StepOutcome) []Step {
	names := make([]Step, 0, len(steps))
	for _, s := range steps {
		names = append(names, s.Step)
	}
	return names
}

func requireOutcome(t *testing.T, steps []StepOutcome, step Step) StepOutcome {
	t.Helper()
	s, ok := findOutcome(steps, step)
	require.True(t, ok, "missing outcome for %s", step)
	return s
}

func TestProvisionHappyPath(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	o, waits := newTestOrchestrator(dns, email)

	res := o.Provision(context.Background(), "Acme Co.")

	assert.True(t, res.OverallSuccess)
	assert.Equal(t, "acme-co", res.Handle)
	assert.Equal(t, "acme-co.example.com", res.Domain)
	assert.Equal(t, "dom_1", res.DomainID)
	assert.Equal(t, []Step{StepCreateDomain, StepAddSPF, StepAddMX, StepAddDKIM, StepTriggerVerification}, stepNames(res.Steps))
	assert.Empty(t, res.Failed())

	spf := dns.records[domain.RecordKey{Type: domain.RecordTXT, Name: "send.acme-co"}]
	assert.Equal(t, "v=spf1 include:amazonses.com ~all", spf.Value)
	mx := dns.records[domain.RecordKey{Type: domain.RecordMX, Name: "send.acme-co"}]
	assert.Equal(t, "feedback-smtp.us-east-1.amazonses.com", mx.Value)
	assert.Equal(t, 10, mx.Priority)
	dkim := dns.records[domain.RecordKey{Type: domain.RecordTXT, Name: "resend._domainkey.acme-co"}]
	assert.Equal(t, "p=MIGfMA0GCS", dkim.Value)

	require.Len(t, dns.upserts, 2)
	assert.Len(t, dns.upserts[0], 2, "spf and mx share one batch")

	assert.Equal(t, []time.Duration{2 * time.Second}, *waits)
	assert.Equal(t, []string{"create", "detail", "verify"}, email.calls)
}

func TestProvisionIsIdempotent(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	o, _ := newTestOrchestrator(dns, email)
	ctx := context.Background()

	first := o.Provision(ctx, "acme")
	second := o.Provision(ctx, "acme")

	assert.True(t, first.OverallSuccess)
	assert.True(t, second.OverallSuccess)

	create := requireOutcome(t, second.Steps, StepCreateDomain)
	assert.True(t, create.Success)
	detail, ok := create.Detail.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, detail["already_exists"])

	assert.Len(t, dns.records, 3, "no duplicate records after a re-run")
	assert.Len(t, email.domains, 1)
}

func TestProvisionEmptyHandle(t *testing.T) {
	for _, raw := range []string{"", "   ", "!!!"} {
		t.Run(raw, func(t *testing.T) {
			dns, email := newFakeDNS(), newFakeEmail()
			o, _ := newTestOrchestrator(dns, email)

			res := o.Provision(context.Background(), raw)

			assert.False(t, res.OverallSuccess)
			require.Len(t, res.Steps, 1)
			assert.Equal(t, StepValidate, res.Steps[0].Step)
			assert.False(t, res.Steps[0].Success)
			assert.NotEmpty(t, res.Steps[0].Error)
			assert.Zero(t, dns.calls())
			assert.Zero(t, email.callCount())
		})
	}
}

func TestProvisionRegistrarFailure(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	dns.upsertErr = transientErr("registrar")
	o, _ := newTestOrchestrator(dns, email)

	res := o.Provision(context.Background(), "acme")

	assert.False(t, res.OverallSuccess)
	assert.True(t, requireOutcome(t, res.Steps, StepCreateDomain).Success)
	spf := requireOutcome(t, res.Steps, StepAddSPF)
	assert.False(t, spf.Success)
	assert.Contains(t, spf.Error, "status 503")
	assert.False(t, requireOutcome(t, res.Steps, StepAddMX).Success)
	assert.Len(t, res.Steps, 5, "no steps silently dropped")

	// A transient failure does not disable the registrar
	assert.Len(t, dns.upserts, 2)
	assert.True(t, requireOutcome(t, res.Steps, StepTriggerVerification).Success)
}

func TestProvisionSkipsDKIMWhenNotReady(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	email.noDKIM = true
	o, _ := newTestOrchestrator(dns, email)

	res := o.Provision(context.Background(), "acme")

	assert.True(t, res.OverallSuccess)
	dkim := requireOutcome(t, res.Steps, StepAddDKIM)
	assert.False(t, dkim.Success)
	assert.True(t, dkim.Skipped)
	assert.True(t, IsSkip(dkim.Error))
	assert.Len(t, dns.upserts, 1, "no DKIM upsert")
	assert.True(t, requireOutcome(t, res.Steps, StepTriggerVerification).Success)
}

func TestProvisionCreateDomainFailure(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	email.createErr = &domain.ProviderError{Provider: "email_provider", Op: "create domain", Kind: domain.KindValidation, StatusCode: 422, Body: "invalid region"}
	o, waits := newTestOrchestrator(dns, email)

	res := o.Provision(context.Background(), "acme")

	assert.False(t, res.OverallSuccess)
	assert.False(t, requireOutcome(t, res.Steps, StepCreateDomain).Success)
	assert.True(t, requireOutcome(t, res.Steps, StepAddSPF).Success, "dns records are still added")
	assert.True(t, requireOutcome(t, res.Steps, StepAddMX).Success)

	for _, step := range []Step{StepAddDKIM, StepTriggerVerification} {
		s := requireOutcome(t, res.Steps, step)
		assert.True(t, s.Skipped)
		assert.Equal(t, "skipped: no domain id", s.Error)
	}
	assert.Empty(t, *waits)
	assert.Equal(t, []string{"create"}, email.calls)
}

func TestProvisionEmailConfigErrorStopsEmailSteps(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	email.createErr = configErr("email_provider")
	o, _ := newTestOrchestrator(dns, email)

	res := o.Provision(context.Background(), "acme")

	assert.False(t, res.OverallSuccess)
	assert.Equal(t, []string{"create"}, email.calls)
	for _, step := range []Step{StepAddDKIM, StepTriggerVerification} {
		assert.Equal(t, "skipped: email provider configuration error", requireOutcome(t, res.Steps, step).Error)
	}
	// The registrar is unaffected
	assert.True(t, requireOutcome(t, res.Steps, StepAddSPF).Success)
	assert.True(t, requireOutcome(t, res.Steps, StepAddMX).Success)
}

func TestProvisionRegistrarConfigErrorStopsDNSSteps(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	dns.upsertErr = configErr("registrar")
	o, _ := newTestOrchestrator(dns, email)

	res := o.Provision(context.Background(), "acme")

	assert.False(t, res.OverallSuccess)
	assert.Len(t, dns.upserts, 1, "no calls after the first config error")
	dkim := requireOutcome(t, res.Steps, StepAddDKIM)
	assert.True(t, dkim.Skipped)
	assert.Equal(t, "skipped: registrar configuration error", dkim.Error)
	// The email provider is unaffected
	assert.True(t, requireOutcome(t, res.Steps, StepCreateDomain).Success)
	assert.True(t, requireOutcome(t, res.Steps, StepTriggerVerification).Success)
}

func TestProvisionDetailFailureIsRecorded(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	email.detailErr = transientErr("email_provider")
	o, _ := newTestOrchestrator(dns, email)

	res := o.Provision(context.Background(), "acme")

	assert.True(t, res.OverallSuccess, "dkim does not gate success")
	dkim := requireOutcome(t, res.Steps, StepAddDKIM)
	assert.False(t, dkim.Success)
	assert.False(t, dkim.Skipped)
	assert.Contains(t, dkim.Error, "fetching domain detail")
}

func TestProvisionVerificationFailureDoesNotGate(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	email.verifyErr = transientErr("email_provider")
	o, _ := newTestOrchestrator(dns, email)

	res := o.Provision(context.Background(), "acme")

	assert.True(t, res.OverallSuccess)
	assert.False(t, requireOutcome(t, res.Steps, StepTriggerVerification).Success)
	require.Len(t, res.Failed(), 1)
	assert.Equal(t, StepTriggerVerification, res.Failed()[0].Step)
}

func TestProvisionPropagationWaitCancelled(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	o := New(dns, email, Options{BaseDomain: testBaseDomain, PropagationDelay: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res := o.Provision(ctx, "acme")

	assert.Less(t, time.Since(start), 5*time.Second)
	verify := requireOutcome(t, res.Steps, StepTriggerVerification)
	assert.False(t, verify.Success)
	assert.Contains(t, verify.Error, "context canceled")
	assert.NotContains(t, email.calls, "verify")
}

func TestDeprovisionNeverProvisioned(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	o, _ := newTestOrchestrator(dns, email)

	res := o.Deprovision(context.Background(), "never-provisioned")

	assert.Equal(t, []Step{StepDeleteSPF, StepDeleteMX, StepDeleteDKIM, StepDeleteDomain}, stepNames(res.Steps))
	for _, s := range res.Steps {
		assert.True(t, s.Success, "%s should succeed", s.Step)
		assert.Equal(t, "not found", s.Detail)
	}
	assert.Empty(t, res.Failed())
}

func TestDeprovisionDeletesConcurrently(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	dns.deleteGroup = newBarrier(3)
	o, _ := newTestOrchestrator(dns, email)

	res := o.Deprovision(context.Background(), "beta")

	assert.False(t, dns.deleteGroup.timedOut, "record deletes should be in flight together")
	require.Len(t, res.Steps, 4)
	for _, s := range res.Steps[:3] {
		assert.True(t, s.Success)
		assert.Equal(t, "not found", s.Detail)
	}
	assert.ElementsMatch(t, []domain.RecordKey{
		{Type: domain.RecordTXT, Name: "send.beta"},
		{Type: domain.RecordMX, Name: "send.beta"},
		{Type: domain.RecordTXT, Name: "resend._domainkey.beta"},
	}, dns.deletes)
}

func TestDeprovisionPartialFailure(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	o, _ := newTestOrchestrator(dns, email)
	ctx := context.Background()

	require.True(t, o.Provision(ctx, "acme").OverallSuccess)
	dns.deleteErrs[domain.RecordKey{Type: domain.RecordMX, Name: "send.acme"}] = transientErr("registrar")

	res := o.Deprovision(ctx, "acme")

	failedSteps := res.Failed()
	require.Len(t, failedSteps, 1)
	assert.Equal(t, StepDeleteMX, failedSteps[0].Step)
	assert.Equal(t, "deleted", requireOutcome(t, res.Steps, StepDeleteSPF).Detail)
	assert.Equal(t, "deleted", requireOutcome(t, res.Steps, StepDeleteDomain).Detail, "domain delete runs after a record failure")
}

func TestDeprovisionEmptyHandle(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	o, _ := newTestOrchestrator(dns, email)

	res := o.Deprovision(context.Background(), "  ")

	require.Len(t, res.Steps, 1)
	assert.Equal(t, StepValidate, res.Steps[0].Step)
	assert.Zero(t, dns.calls())
	assert.Zero(t, email.callCount())
}

func TestProvisionDeprovisionRoundTrip(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	o, _ := newTestOrchestrator(dns, email)
	ctx := context.Background()

	assert.True(t, o.Provision(ctx, "gamma").OverallSuccess)

	de := o.Deprovision(ctx, "gamma")
	assert.Empty(t, de.Failed())
	for _, s := range de.Steps {
		assert.Equal(t, "deleted", s.Detail, "%s", s.Step)
	}
	assert.Empty(t, dns.records)
	assert.Empty(t, email.domains)

	again := o.Provision(ctx, "gamma")
	assert.True(t, again.OverallSuccess)
	create := requireOutcome(t, again.Steps, StepCreateDomain)
	detail := create.Detail.(map[string]interface{})
	assert.NotContains(t, detail, "already_exists", "a fresh domain is created")
}

func TestResultJSON(t *testing.T) {
	dns, email := newFakeDNS(), newFakeEmail()
	email.noDKIM = true
	o, _ := newTestOrchestrator(dns, email)

	res := o.Provision(context.Background(), "acme")
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, true, decoded["overall_success"])
	steps := decoded["steps"].([]interface{})
	require.Len(t, steps, 5)
	dkim := steps[3].(map[string]interface{})
	assert.Equal(t, "add_dkim", dkim["step"])
	assert.Equal(t, false, dkim["success"])
	assert.Equal(t, true, dkim["skipped"])
	assert.True(t, strings.HasPrefix(dkim["error"].(string), "skipped: "))
}

func TestOptionsDefaults(t *testing.T) {
	o := New(newFakeDNS(), newFakeEmail(), Options{BaseDomain: testBaseDomain})
	opts := o.Options()
	assert.Equal(t, "us-east-1", opts.Region)
	assert.Equal(t, 2*time.Second, opts.PropagationDelay)
	assert.Equal(t, "resend", opts.DKIMSelector)
	assert.Equal(t, 600, opts.RecordTTL)

	fromCfg := OptionsFromConfig(config.ProvisioningConfig{
		BaseDomain:              "mail.example.com",
		Region:                  "eu-west-1",
		PropagationDelaySeconds: 3,
		MXHostTemplate:          "feedback-smtp.%s.amazonses.com",
	})
	assert.Equal(t, "mail.example.com", fromCfg.BaseDomain)
	assert.Equal(t, 3*time.Second, fromCfg.PropagationDelay)
	assert.Equal(t, "feedback-smtp.eu-west-1.amazonses.com", mxRecord("x", fromCfg.withDefaults()).Value)
}
