package provisioning

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ignite/tenant-domains/internal/domain"
)

// fakeDNS is an in-memory registrar keyed by (type, name).
type fakeDNS struct {
	mu          sync.Mutex
	records     map[domain.RecordKey]domain.DNSRecord
	upserts     [][]domain.DNSRecord
	deletes     []domain.RecordKey
	upsertErr   error
	deleteErrs  map[domain.RecordKey]error
	deleteGroup *barrier
}

func newFakeDNS() *fakeDNS {
	return &fakeDNS{
		records:    map[domain.RecordKey]domain.DNSRecord{},
		deleteErrs: map[domain.RecordKey]error{},
	}
}

func (f *fakeDNS) UpsertRecords(_ context.Context, _ string, records []domain.DNSRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, records)
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, r := range records {
		f.records[r.Key()] = r
	}
	return nil
}

func (f *fakeDNS) DeleteRecord(_ context.Context, _ string, t domain.RecordType, name string) (domain.DeleteOutcome, error) {
	key := domain.RecordKey{Type: t, Name: strings.ToLower(name)}
	if f.deleteGroup != nil {
		f.deleteGroup.arrive()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	if err := f.deleteErrs[key]; err != nil {
		return "", err
	}
	if _, ok := f.records[key]; !ok {
		return domain.DeleteNotFound, nil
	}
	delete(f.records, key)
	return domain.DeleteDeleted, nil
}

func (f *fakeDNS) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts) + len(f.deletes)
}

// barrier blocks each arriving goroutine until n have arrived, or until a
// timeout elapses. Sequential callers time out and are flagged.
type barrier struct {
	mu       sync.Mutex
	n        int
	arrived  int
	release  chan struct{}
	timedOut bool
}

func newBarrier(n int) *barrier {
	return &barrier{n: n, release: make(chan struct{})}
}

func (b *barrier) arrive() {
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.n {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-time.After(2 * time.Second):
		b.mu.Lock()
		b.timedOut = true
		b.mu.Unlock()
	}
}

// fakeEmail is an in-memory email provider.
type fakeEmail struct {
	mu        sync.Mutex
	domains   map[string]*domain.SendingDomain // name -> domain
	nextID    int
	noDKIM    bool
	createErr error
	detailErr error
	verifyErr error
	deleteErr error
	calls     []string
}

func newFakeEmail() *fakeEmail {
	return &fakeEmail{domains: map[string]*domain.SendingDomain{}}
}

func (f *fakeEmail) CreateDomain(_ context.Context, name, region string) (*domain.SendingDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		return nil, f.createErr
	}
	if d, ok := f.domains[name]; ok {
		return &domain.SendingDomain{ID: d.ID, Name: name, Status: domain.DomainUnknown, Region: region, AlreadyExisted: true}, nil
	}
	f.nextID++
	d := &domain.SendingDomain{ID: fmt.Sprintf("dom_%d", f.nextID), Name: name, Status: domain.DomainPending, Region: region}
	f.domains[name] = d
	return d, nil
}

func (f *fakeEmail) byID(id string) *domain.SendingDomain {
	for _, d := range f.domains {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (f *fakeEmail) GetDomainDetail(_ context.Context, id string) ([]domain.DKIMRequirement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "detail")
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	d := f.byID(id)
	if d == nil {
		return nil, &domain.ProviderError{Provider: "email_provider", Op: "get domain", Kind: domain.KindValidation, StatusCode: 404}
	}
	reqs := []domain.DKIMRequirement{
		{Record: "SPF", Name: "send." + d.Name, Type: domain.RecordTXT, Value: "v=spf1 include:amazonses.com ~all"},
	}
	if !f.noDKIM {
		reqs = append(reqs, domain.DKIMRequirement{Record: "DKIM", Name: "resend._domainkey." + d.Name, Type: domain.RecordTXT, Value: "p=MIGfMA0GCS"})
	}
	return reqs, nil
}

func (f *fakeEmail) TriggerVerification(_ context.Context, id string) (domain.DomainStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "verify")
	if f.verifyErr != nil {
		return domain.DomainUnknown, f.verifyErr
	}
	return domain.DomainPending, nil
}

func (f *fakeEmail) DeleteDomain(_ context.Context, name string) (domain.DeleteOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete")
	if f.deleteErr != nil {
		return "", f.deleteErr
	}
	if _, ok := f.domains[name]; !ok {
		return domain.DeleteNotFound, nil
	}
	delete(f.domains, name)
	return domain.DeleteDeleted, nil
}

func (f *fakeEmail) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func configErr(provider string) error {
	return &domain.ProviderError{Provider: provider, Op: "call", Kind: domain.KindConfig, StatusCode: 401}
}

func transientErr(provider string) error {
	return &domain.ProviderError{Provider: provider, Op: "call", Kind: domain.KindTransient, StatusCode: 503}
}
