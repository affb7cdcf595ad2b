package verify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/leadvalidator/leadvalidator/config"
	"github.com/leadvalidator/leadvalidator/internal/core"
	"github.com/leadvalidator/leadvalidator/internal/domain/model"
)

// maxHostsPerProbe bounds how many MX hosts we try before declaring the
// domain unreachable.
const maxHostsPerProbe = 3

// PipelineOptions contains configuration for creating a verification Pipeline.
type PipelineOptions struct {
	Config   config.VerifierConfig
	Scoring  config.ScoringConfig
	Lists    config.Lists
	Cache    core.DomainCache // Required: catch-all verdict cache
	Resolver MXResolver       // Required: MX resolution
	Prober   SMTPProber       // Required: SMTP mailbox probing
	Logger   *slog.Logger     // Optional: structured logger
}

// Pipeline is the production Verifier: static list checks, MX resolution,
// then a gated SMTP probe with catch-all detection.
type Pipeline struct {
	cfg      config.VerifierConfig
	score    scorer
	lists    config.Lists
	cache    core.DomainCache
	resolver MXResolver
	prober   SMTPProber
	gate     *probeGate
	inflight singleflight.Group
	logger   *slog.Logger
}

// NewPipeline creates a verification pipeline from the given options.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("domain cache is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("MX resolver is required")
	}
	if opts.Prober == nil {
		return nil, fmt.Errorf("SMTP prober is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cfg:      opts.Config,
		score:    scorer{cfg: opts.Scoring},
		lists:    opts.Lists,
		cache:    opts.Cache,
		resolver: opts.Resolver,
		prober:   opts.Prober,
		gate:     newProbeGate(opts.Config.SMTPMaxConcurrent),
		logger:   logger.With("component", "verify_pipeline"),
	}, nil
}

var _ Verifier = (*Pipeline)(nil)

// Verify runs the full pipeline for one address. Static checks short-circuit
// before any network traffic.
func (p *Pipeline) Verify(ctx context.Context, email string) Outcome {
	outcome, domain, done := p.staticChecks(email)
	if done {
		return outcome
	}

	hosts, outcome, done := p.resolveMX(ctx, domain)
	if done {
		return outcome
	}

	return p.probeAndScore(ctx, email, domain, hosts)
}

// staticChecks applies the offline checks. done=true means the outcome is
// final and no network work is needed.
func (p *Pipeline) staticChecks(email string) (outcome Outcome, domain string, done bool) {
	if email == "" {
		return Outcome{
			Status:      model.StatusInvalid,
			Reason:      model.ReasonEmptyEmail,
			Score:       0,
			RiskFactors: []string{model.RiskInvalidSyntax},
		}, "", true
	}

	local, domain, ok := splitAddress(email)
	if !ok {
		return Outcome{
			Status:      model.StatusInvalid,
			Reason:      model.ReasonBadSyntax,
			Score:       0,
			RiskFactors: []string{model.RiskInvalidSyntax},
		}, "", true
	}

	if p.lists.DisposableDomains[domain] {
		return Outcome{
			Status:      model.StatusInvalid,
			Reason:      model.ReasonDisposableDomain,
			Score:       0,
			RiskFactors: []string{model.RiskDisposableProvider},
		}, domain, true
	}

	if p.lists.RoleLocalParts[local] {
		return Outcome{
			Status:      model.StatusInvalid,
			Reason:      model.ReasonRoleBased,
			Score:       0,
			RiskFactors: []string{model.RiskRoleBased},
		}, domain, true
	}

	return Outcome{}, domain, false
}

func (p *Pipeline) resolveMX(ctx context.Context, domain string) (hosts []string, outcome Outcome, done bool) {
	lookupCtx, cancel := context.WithTimeout(ctx, p.cfg.NetworkTimeout)
	defer cancel()

	hosts, err := p.resolver.LookupMX(lookupCtx, domain)
	if err != nil {
		if isDNSTimeout(err) {
			return nil, Outcome{
				Status:      model.StatusRisky,
				Reason:      model.ReasonDNSTimeout,
				Score:       p.score.unverifiable(),
				RiskFactors: []string{model.RiskUnverifiable},
			}, true
		}
		// NXDOMAIN or an authoritative empty answer.
		return nil, Outcome{
			Status:      model.StatusInvalid,
			Reason:      model.ReasonNoMX,
			Score:       0,
			RiskFactors: []string{model.RiskNoMailServer},
		}, true
	}
	if len(hosts) == 0 {
		return nil, Outcome{
			Status:      model.StatusInvalid,
			Reason:      model.ReasonNoMX,
			Score:       0,
			RiskFactors: []string{model.RiskNoMailServer},
		}, true
	}
	return hosts, Outcome{}, false
}

func (p *Pipeline) probeAndScore(ctx context.Context, email, domain string, hosts []string) Outcome {
	free := p.lists.FreeProviders[domain]

	// A catch-all domain accepts every recipient, so probing the actual
	// mailbox proves nothing. The check runs first: a cached verdict settles
	// the whole address without any network traffic.
	if p.isCatchAllDomain(ctx, domain, hosts) {
		factors := []string{model.RiskCatchAllDomain}
		if free {
			factors = append(factors, model.RiskFreeProvider)
		}
		return Outcome{
			Status:      model.StatusRisky,
			Reason:      model.ReasonCatchAll,
			Score:       p.score.catchAll(free),
			RiskFactors: factors,
		}
	}

	result, err := p.probeMailbox(ctx, domain, hosts, email)
	if err != nil {
		// Context canceled mid-probe: score as unreachable, the job is
		// winding down anyway.
		result = RcptUnreachable
	}

	switch result {
	case RcptAccepted:
		var factors []string
		if free {
			factors = []string{model.RiskFreeProvider}
		}
		return Outcome{
			Status:      model.StatusValid,
			Reason:      model.ReasonSMTPOK,
			Score:       p.score.deliverable(free),
			RiskFactors: factors,
		}

	case RcptRejected:
		return Outcome{
			Status:      model.StatusInvalid,
			Reason:      model.ReasonSMTPReject,
			Score:       0,
			RiskFactors: []string{model.RiskMailboxNotFound},
		}

	case RcptTempFail:
		return Outcome{
			Status:      model.StatusRisky,
			Reason:      model.ReasonSMTPSoftFail,
			Score:       p.score.unreachable(),
			RiskFactors: []string{model.RiskTemporarySMTP},
		}

	default:
		return Outcome{
			Status:      model.StatusRisky,
			Reason:      model.ReasonSMTPTimeout,
			Score:       p.score.unreachable(),
			RiskFactors: []string{model.RiskSMTPUnreachable},
		}
	}
}

// probeMailbox runs a gated RCPT probe with bounded retries on soft
// failures. Hosts are tried in MX preference order until one gives a
// definite verdict.
func (p *Pipeline) probeMailbox(ctx context.Context, domain string, hosts []string, addr string) (RcptResult, error) {
	release, err := p.gate.acquire(ctx, domain)
	if err != nil {
		return RcptUnreachable, err
	}
	defer release()

	if len(hosts) > maxHostsPerProbe {
		hosts = hosts[:maxHostsPerProbe]
	}

	result := RcptUnreachable
	for attempt := 0; attempt <= p.cfg.SMTPRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(p.cfg.SMTPRetryBackoff):
			}
		}

		result = p.probeHosts(ctx, hosts, addr)
		if result == RcptAccepted || result == RcptRejected {
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (p *Pipeline) probeHosts(ctx context.Context, hosts []string, addr string) RcptResult {
	sawTempFail := false
	for _, host := range hosts {
		probeCtx, cancel := context.WithTimeout(ctx, p.cfg.NetworkTimeout)
		result := p.prober.Probe(probeCtx, host, addr)
		cancel()

		switch result {
		case RcptAccepted, RcptRejected:
			return result
		case RcptTempFail:
			sawTempFail = true
		case RcptUnreachable:
			// Try the next exchanger.
		}
	}
	if sawTempFail {
		return RcptTempFail
	}
	return RcptUnreachable
}

// isCatchAllDomain reports whether the domain accepts any recipient. The
// verdict is cached, and concurrent probes for one domain collapse into a
// single RCPT against a random mailbox.
func (p *Pipeline) isCatchAllDomain(ctx context.Context, domain string, hosts []string) bool {
	if verdict, found, err := p.cache.Get(ctx, domain); err == nil && found {
		return verdict
	} else if err != nil {
		p.logger.WarnContext(ctx, "catch-all cache read failed", "domain", domain, "error", err)
	}

	verdict, err, _ := p.inflight.Do(domain, func() (any, error) {
		probe := randomLocalPart() + "@" + domain
		result, err := p.probeMailbox(ctx, domain, hosts, probe)
		if err != nil {
			return false, err
		}
		// Only a definite answer is worth caching.
		switch result {
		case RcptAccepted:
			isCatchAll := true
			p.storeVerdict(ctx, domain, isCatchAll)
			return isCatchAll, nil
		case RcptRejected:
			isCatchAll := false
			p.storeVerdict(ctx, domain, isCatchAll)
			return isCatchAll, nil
		default:
			return false, nil
		}
	})
	if err != nil {
		return false
	}
	return verdict.(bool)
}

func (p *Pipeline) storeVerdict(ctx context.Context, domain string, isCatchAll bool) {
	if err := p.cache.Put(ctx, domain, isCatchAll, p.cfg.CatchAllTTL); err != nil {
		p.logger.WarnContext(ctx, "catch-all cache write failed", "domain", domain, "error", err)
	}
}

// randomLocalPart returns an address local part that no real mailbox is
// likely to use.
func randomLocalPart() string {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "nonexistent-mailbox-probe"
	}
	return "nx-" + hex.EncodeToString(buf)
}
