package verify

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadvalidator/leadvalidator/config"
	"github.com/leadvalidator/leadvalidator/internal/data"
	"github.com/leadvalidator/leadvalidator/internal/domain/model"
)

type fakeResolver struct {
	hosts map[string][]string
	err   error
}

func (f *fakeResolver) LookupMX(_ context.Context, domain string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	hosts, ok := f.hosts[domain]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: domain, IsNotFound: true}
	}
	return hosts, nil
}

type fakeProber struct {
	mu      sync.Mutex
	probes  []string
	verdict func(to string) RcptResult
}

func (f *fakeProber) Probe(_ context.Context, _, to string) RcptResult {
	f.mu.Lock()
	f.probes = append(f.probes, to)
	f.mu.Unlock()
	return f.verdict(to)
}

func (f *fakeProber) probed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probes...)
}

func testScoring() config.ScoringConfig {
	return config.ScoringConfig{
		FreeProvider: 5,
		CatchAll:     15,
		RoleBased:    25,
		Unreachable:  25,
		Unverifiable: 40,
	}
}

func newTestPipeline(t *testing.T, resolver MXResolver, prober SMTPProber) *Pipeline {
	t.Helper()
	p, err := NewPipeline(PipelineOptions{
		Config: config.VerifierConfig{
			NetworkTimeout:    time.Second,
			CatchAllTTL:       time.Hour,
			SMTPMaxConcurrent: 4,
			SMTPRetries:       0,
			SMTPRetryBackoff:  time.Millisecond,
		},
		Scoring:  testScoring(),
		Lists:    config.DefaultLists(),
		Cache:    data.NewMemoryDomainCache(nil),
		Resolver: resolver,
		Prober:   prober,
		Logger:   slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	return p
}

func TestPipelineStaticChecks(t *testing.T) {
	// Static verdicts never reach the resolver or prober.
	pipeline := newTestPipeline(t,
		&fakeResolver{},
		&fakeProber{verdict: func(string) RcptResult { return RcptAccepted }},
	)
	ctx := context.Background()

	tests := []struct {
		name   string
		email  string
		status model.VerifyStatus
		reason string
	}{
		{"empty", "", model.StatusInvalid, model.ReasonEmptyEmail},
		{"bad syntax", "bad-email", model.StatusInvalid, model.ReasonBadSyntax},
		{"missing domain dot", "user@localhost", model.StatusInvalid, model.ReasonBadSyntax},
		{"disposable", "user@mailinator.com", model.StatusInvalid, model.ReasonDisposableDomain},
		{"role based", "info@corp.example.com", model.StatusInvalid, model.ReasonRoleBased},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := pipeline.Verify(ctx, tt.email)
			assert.Equal(t, tt.status, outcome.Status)
			assert.Equal(t, tt.reason, outcome.Reason)
			assert.Equal(t, 0, outcome.Score)
		})
	}
}

func TestPipelineDeliverableMailbox(t *testing.T) {
	prober := &fakeProber{verdict: func(to string) RcptResult {
		if to == "alice@corp.example.com" {
			return RcptAccepted
		}
		// The random catch-all probe gets bounced.
		return RcptRejected
	}}
	pipeline := newTestPipeline(t,
		&fakeResolver{hosts: map[string][]string{"corp.example.com": {"mx1.corp.example.com"}}},
		prober,
	)

	outcome := pipeline.Verify(context.Background(), "alice@corp.example.com")
	assert.Equal(t, model.StatusValid, outcome.Status)
	assert.Equal(t, model.ReasonSMTPOK, outcome.Reason)
	assert.Equal(t, 100, outcome.Score)
	assert.Empty(t, outcome.RiskFactors)
}

func TestPipelineFreeProviderPenalty(t *testing.T) {
	prober := &fakeProber{verdict: func(to string) RcptResult {
		if to == "alice@gmail.com" {
			return RcptAccepted
		}
		return RcptRejected
	}}
	pipeline := newTestPipeline(t,
		&fakeResolver{hosts: map[string][]string{"gmail.com": {"mx.gmail.com"}}},
		prober,
	)

	outcome := pipeline.Verify(context.Background(), "alice@gmail.com")
	assert.Equal(t, model.StatusValid, outcome.Status)
	assert.Equal(t, 95, outcome.Score)
	assert.Contains(t, outcome.RiskFactors, model.RiskFreeProvider)
}

func TestPipelineMailboxRejected(t *testing.T) {
	pipeline := newTestPipeline(t,
		&fakeResolver{hosts: map[string][]string{"corp.example.com": {"mx1.corp.example.com"}}},
		&fakeProber{verdict: func(string) RcptResult { return RcptRejected }},
	)

	outcome := pipeline.Verify(context.Background(), "ghost@corp.example.com")
	assert.Equal(t, model.StatusInvalid, outcome.Status)
	assert.Equal(t, model.ReasonSMTPReject, outcome.Reason)
	assert.Equal(t, 0, outcome.Score)
	assert.Contains(t, outcome.RiskFactors, model.RiskMailboxNotFound)
}

func TestPipelineCatchAllDomain(t *testing.T) {
	prober := &fakeProber{verdict: func(string) RcptResult { return RcptAccepted }}
	pipeline := newTestPipeline(t,
		&fakeResolver{hosts: map[string][]string{"acceptall.example.com": {"mx.acceptall.example.com"}}},
		prober,
	)
	ctx := context.Background()

	outcome := pipeline.Verify(ctx, "alice@acceptall.example.com")
	assert.Equal(t, model.StatusRisky, outcome.Status)
	assert.Equal(t, model.ReasonCatchAll, outcome.Reason)
	assert.Equal(t, 85, outcome.Score)
	assert.Contains(t, outcome.RiskFactors, model.RiskCatchAllDomain)

	// Second address on the same domain reuses the cached verdict: exactly
	// one random probe across both verifications, and the real mailboxes are
	// never probed at all.
	outcome = pipeline.Verify(ctx, "bob@acceptall.example.com")
	assert.Equal(t, model.ReasonCatchAll, outcome.Reason)

	probes := prober.probed()
	assert.Len(t, probes, 1)
	for _, to := range probes {
		assert.True(t, strings.HasPrefix(to, "nx-"), "unexpected mailbox probe %q", to)
	}
}

func TestPipelineCachedCatchAllVerdictShortCircuits(t *testing.T) {
	cache := data.NewMemoryDomainCache(nil)
	require.NoError(t, cache.Put(context.Background(), "catchall.example.com", true, time.Hour))

	// The prober would reject everything; a correct pipeline never asks it.
	prober := &fakeProber{verdict: func(string) RcptResult { return RcptRejected }}
	p, err := NewPipeline(PipelineOptions{
		Config: config.VerifierConfig{
			NetworkTimeout:    time.Second,
			CatchAllTTL:       time.Hour,
			SMTPMaxConcurrent: 4,
			SMTPRetries:       0,
			SMTPRetryBackoff:  time.Millisecond,
		},
		Scoring:  testScoring(),
		Lists:    config.DefaultLists(),
		Cache:    cache,
		Resolver: &fakeResolver{hosts: map[string][]string{"catchall.example.com": {"mx.catchall.example.com"}}},
		Prober:   prober,
		Logger:   slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	outcome := p.Verify(context.Background(), "alice@catchall.example.com")
	assert.Equal(t, model.StatusRisky, outcome.Status)
	assert.Equal(t, model.ReasonCatchAll, outcome.Reason)
	assert.Equal(t, 85, outcome.Score)
	assert.Empty(t, prober.probed(), "cached verdict must settle the address without probing")
}

func TestPipelineNoMXRecords(t *testing.T) {
	pipeline := newTestPipeline(t,
		&fakeResolver{hosts: map[string][]string{}},
		&fakeProber{verdict: func(string) RcptResult { return RcptAccepted }},
	)

	outcome := pipeline.Verify(context.Background(), "alice@nomail.example.com")
	assert.Equal(t, model.StatusInvalid, outcome.Status)
	assert.Equal(t, model.ReasonNoMX, outcome.Reason)
	assert.Equal(t, 0, outcome.Score)
	assert.Contains(t, outcome.RiskFactors, model.RiskNoMailServer)
}

func TestPipelineDNSTimeout(t *testing.T) {
	pipeline := newTestPipeline(t,
		&fakeResolver{err: &net.DNSError{Err: "i/o timeout", IsTimeout: true}},
		&fakeProber{verdict: func(string) RcptResult { return RcptAccepted }},
	)

	outcome := pipeline.Verify(context.Background(), "alice@slow.example.com")
	assert.Equal(t, model.StatusRisky, outcome.Status)
	assert.Equal(t, model.ReasonDNSTimeout, outcome.Reason)
	assert.Equal(t, 60, outcome.Score)
	assert.Contains(t, outcome.RiskFactors, model.RiskUnverifiable)
}

func TestPipelineUnreachableHost(t *testing.T) {
	pipeline := newTestPipeline(t,
		&fakeResolver{hosts: map[string][]string{"down.example.com": {"mx.down.example.com"}}},
		&fakeProber{verdict: func(string) RcptResult { return RcptUnreachable }},
	)

	outcome := pipeline.Verify(context.Background(), "alice@down.example.com")
	assert.Equal(t, model.StatusRisky, outcome.Status)
	assert.Equal(t, model.ReasonSMTPTimeout, outcome.Reason)
	assert.Equal(t, 75, outcome.Score)
	assert.Contains(t, outcome.RiskFactors, model.RiskSMTPUnreachable)
}

func TestPipelineTempFailAfterRetries(t *testing.T) {
	prober := &fakeProber{verdict: func(string) RcptResult { return RcptTempFail }}
	p, err := NewPipeline(PipelineOptions{
		Config: config.VerifierConfig{
			NetworkTimeout:    time.Second,
			CatchAllTTL:       time.Hour,
			SMTPMaxConcurrent: 4,
			SMTPRetries:       2,
			SMTPRetryBackoff:  time.Millisecond,
		},
		Scoring:  testScoring(),
		Lists:    config.DefaultLists(),
		Cache:    data.NewMemoryDomainCache(nil),
		Resolver: &fakeResolver{hosts: map[string][]string{"busy.example.com": {"mx.busy.example.com"}}},
		Prober:   prober,
		Logger:   slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	outcome := p.Verify(context.Background(), "alice@busy.example.com")
	assert.Equal(t, model.StatusRisky, outcome.Status)
	assert.Equal(t, model.ReasonSMTPSoftFail, outcome.Reason)
	assert.Equal(t, 75, outcome.Score)

	mailboxProbes := 0
	for _, to := range prober.probed() {
		if to == "alice@busy.example.com" {
			mailboxProbes++
		}
	}
	assert.Equal(t, 3, mailboxProbes, "initial attempt plus two retries")
}

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		email  string
		local  string
		domain string
		ok     bool
	}{
		{"alice@example.com", "alice", "example.com", true},
		{"Alice.Smith+tag@Sub.Example.COM", "alice.smith+tag", "sub.example.com", true},
		{"bad-email", "", "", false},
		{"@example.com", "", "", false},
		{"alice@", "", "", false},
		{"alice@nodot", "", "", false},
		{"a b@example.com", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			local, domain, ok := splitAddress(tt.email)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.local, local)
				assert.Equal(t, tt.domain, domain)
			}
		})
	}
}
