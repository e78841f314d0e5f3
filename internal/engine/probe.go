package engine

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/938134/check-hosts/internal/model"
)

// Prober measures one candidate. Implementations never return errors: every
// failure is folded into an unreachable result.
type Prober interface {
	Probe(ctx context.Context, c model.Candidate, cfg Config) model.ProbeResult
}

// ProberFor returns the prober matching cfg.Transport.
func ProberFor(cfg Config) Prober {
	if cfg.Transport == TransportTCP {
		return NewTCPProber()
	}
	return NewHTTPProber()
}

// HTTPProber times a GET request up to the response headers. Any status code
// counts as reachable.
type HTTPProber struct {
	client *http.Client
	now    func() time.Time
}

func NewHTTPProber() *HTTPProber {
	tr := &http.Transport{
		DialContext:       (&net.Dialer{}).DialContext,
		DisableKeepAlives: true,
	}
	return newHTTPProber(&http.Client{
		Transport: tr,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, time.Now)
}

func newHTTPProber(client *http.Client, now func() time.Time) *HTTPProber {
	return &HTTPProber{client: client, now: now}
}

func (p *HTTPProber) Probe(ctx context.Context, c model.Candidate, cfg Config) model.ProbeResult {
	plain := "http://" + c.HostPort(cfg.ProbePort) + "/"
	if !c.IsIPv6() {
		d, err := p.get(ctx, plain, cfg.ProbeTimeout)
		if err != nil {
			return model.Unreachable(c, err)
		}
		return model.Reachable(c, d, "http")
	}

	d, err := p.get(ctx, "https://"+c.URLHost()+"/", cfg.ProbeTimeout)
	if err == nil {
		return model.Reachable(c, d, "https")
	}
	if !cfg.IPv6SchemeFallback {
		return model.Unreachable(c, err)
	}
	d, err = p.get(ctx, plain, cfg.ProbeTimeout)
	if err != nil {
		return model.Unreachable(c, err)
	}
	return model.Reachable(c, d, "http")
}

func (p *HTTPProber) get(ctx context.Context, url string, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	start := p.now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	elapsed := p.now().Sub(start)
	_ = resp.Body.Close()
	return elapsed, nil
}

// TCPProber times connection establishment only.
type TCPProber struct{}

func NewTCPProber() TCPProber { return TCPProber{} }

func (TCPProber) Probe(ctx context.Context, c model.Candidate, cfg Config) model.ProbeResult {
	d, err := tcpPing(ctx, c, cfg.ProbePort, cfg.ProbeTimeout)
	if err != nil {
		return model.Unreachable(c, err)
	}
	return model.Reachable(c, d, "tcp")
}

func tcpPing(ctx context.Context, c model.Candidate, port int, timeout time.Duration) (time.Duration, error) {
	dialer := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", c.HostPort(port))
	if err != nil {
		return 0, err
	}
	_ = conn.Close()
	return time.Since(start), nil
}
