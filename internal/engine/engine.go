package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/938134/check-hosts/internal/model"
)

// Observer receives probe and selection events. Methods are called from
// worker goroutines.
type Observer interface {
	ProbeStarted(c model.Candidate)
	ProbeFinished(r model.ProbeResult)
	Selected(f model.Family, o model.Outcome)
}

// CandidateSource supplies the candidate addresses of a domain.
type CandidateSource interface {
	Lookup(ctx context.Context, domain string, family model.Family) ([]model.Candidate, error)
}

// Callbacks are invoked by Run from worker goroutines. Either may be nil.
type Callbacks struct {
	OnResult   func(model.DomainResult)
	OnProgress func(done, total int)
}

// Selector picks the fastest candidate using its Prober.
type Selector struct {
	prober   Prober
	observer Observer
	log      zerolog.Logger
}

// NewSelector returns a Selector that logs nowhere and reports to no observer.
func NewSelector(p Prober) *Selector {
	return &Selector{prober: p, log: zerolog.Nop()}
}

func (s *Selector) LogTo(log zerolog.Logger) *Selector {
	s.log = log
	return s
}

func (s *Selector) ObserveWith(o Observer) *Selector {
	s.observer = o
	return s
}

// Select probes candidates with the prober matching cfg.Transport.
func Select(ctx context.Context, candidates []model.Candidate, cfg Config) (model.Outcome, error) {
	return NewSelector(ProberFor(cfg)).Select(ctx, candidates, cfg)
}

// Select probes every candidate, at most cfg.MaxConcurrency at a time, and
// returns the fastest reachable one. Network failures never surface as
// errors; the only error is ErrInvalidConfiguration.
func (s *Selector) Select(ctx context.Context, candidates []model.Candidate, cfg Config) (model.Outcome, error) {
	if err := cfg.validate(); err != nil {
		return model.Outcome{}, err
	}
	if len(candidates) == 0 {
		return model.NoReachableCandidate(0), nil
	}

	results := make([]model.ProbeResult, len(candidates))
	workCh := make(chan int)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for i := range workCh {
			results[i] = s.probe(ctx, candidates[i], cfg)
		}
	}

	for n := min(cfg.MaxConcurrency, len(candidates)); n > 0; n-- {
		wg.Add(1)
		go worker()
	}
	for i := range candidates {
		workCh <- i
	}
	close(workCh)
	wg.Wait()

	return rank(results), nil
}

func (s *Selector) probe(ctx context.Context, c model.Candidate, cfg Config) model.ProbeResult {
	if s.observer != nil {
		s.observer.ProbeStarted(c)
	}
	r := s.prober.Probe(ctx, c, cfg)
	if s.observer != nil {
		s.observer.ProbeFinished(r)
	}
	if r.Reachable {
		s.log.Debug().Str("ip", string(c)).Str("scheme", r.Scheme).Dur("latency", r.Latency).Msg("probe ok")
	} else {
		s.log.Debug().Str("ip", string(c)).Str("error", r.LastError).Msg("probe failed")
	}
	return r
}

// rank keeps reachable results in input order, then sorts them stably so
// equal latencies resolve to the earlier candidate.
func rank(results []model.ProbeResult) model.Outcome {
	reachable := lo.Filter(results, func(r model.ProbeResult, _ int) bool { return r.Reachable })
	if len(reachable) == 0 {
		return model.NoReachableCandidate(len(results))
	}
	sort.SliceStable(reachable, func(i, j int) bool { return reachable[i].Latency < reachable[j].Latency })
	return model.Outcome{
		Found:   true,
		Winner:  reachable[0].Candidate,
		Latency: reachable[0].Latency,
		Ranking: reachable,
		Probed:  len(results),
	}
}

// Run selects the fastest IPv4 and IPv6 candidate of every domain. A domain
// whose candidates cannot be looked up is reported through its DomainResult
// and never stops the batch. Results are returned in domain order.
func (s *Selector) Run(ctx context.Context, domains []string, cfg RunConfig, src CandidateSource, cb Callbacks) ([]model.DomainResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(domains) == 0 {
		return nil, errors.New("empty domain list")
	}

	total := len(domains)
	var done int64
	if cb.OnProgress != nil {
		cb.OnProgress(0, total)
	}

	results := make([]model.DomainResult, total)
	var g errgroup.Group
	g.SetLimit(cfg.DomainConcurrency)

	for i, d := range domains {
		if ctx.Err() != nil {
			break
		}
		i, d := i, d
		g.Go(func() error {
			res := s.RunOneDomain(ctx, d, cfg, src)
			results[i] = res
			if cb.OnResult != nil {
				cb.OnResult(res)
			}
			n := int(atomic.AddInt64(&done, 1))
			if cb.OnProgress != nil {
				cb.OnProgress(n, total)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// RunOneDomain looks up and selects candidates for a single domain. It does
// not validate cfg; callers must pass a config that Run would accept.
func (s *Selector) RunOneDomain(ctx context.Context, domain string, cfg RunConfig, src CandidateSource) model.DomainResult {
	res := model.DomainResult{Domain: domain}
	log := s.log.With().Str("domain", domain).Logger()

	var errs error
	for _, f := range families(cfg) {
		candidates, err := src.Lookup(ctx, domain, f)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s lookup: %w", f, err))
			log.Warn().Err(err).Stringer("family", f).Msg("candidate lookup failed")
			continue
		}
		log.Debug().Stringer("family", f).Int("candidates", len(candidates)).Msg("candidates")

		out, err := s.Select(ctx, candidates, cfg.Probe)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if s.observer != nil {
			s.observer.Selected(f, out)
		}
		logOutcome(log, f, out)

		if f == model.IPv6 {
			res.IPv6 = out
		} else {
			res.IPv4 = out
		}
	}
	res.Err = errs
	return res
}

func families(cfg RunConfig) []model.Family {
	var out []model.Family
	if cfg.IPv4 {
		out = append(out, model.IPv4)
	}
	if cfg.IPv6 {
		out = append(out, model.IPv6)
	}
	return out
}

func logOutcome(log zerolog.Logger, f model.Family, out model.Outcome) {
	if !out.Found {
		log.Info().Stringer("family", f).Int("probed", out.Probed).Msg("no reachable candidate")
		return
	}
	if e := log.Debug(); e.Enabled() {
		arr := zerolog.Arr()
		for _, r := range out.Ranking {
			arr.Str(fmt.Sprintf("%s %.2fms", r.Candidate, float64(r.Latency.Microseconds())/1000))
		}
		e.Stringer("family", f).Array("ranking", arr).Msg("latency ranking")
	}
	log.Info().Stringer("family", f).Str("ip", string(out.Winner)).Dur("latency", out.Latency).Msg("fastest")
}
