// Package resolve supplies candidate addresses for domains.
package resolve

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/miekg/dns"
	"github.com/rs/zerolog"

	"github.com/938134/check-hosts/internal/model"
)

const (
	DefaultTimeout    = 10 * time.Second
	defaultResolvConf = "/etc/resolv.conf"
)

var fallbackServers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// DNSSource asks every upstream server for A or AAAA records and merges the
// answers in discovery order.
type DNSSource struct {
	servers []string
	client  *dns.Client
	log     zerolog.Logger
}

func NewDNSSource(servers []string, timeout time.Duration) *DNSSource {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var norm []string
	for _, s := range servers {
		if addr := normalizeDNSServer(s); addr != "" {
			norm = append(norm, addr)
		}
	}
	if len(norm) == 0 {
		norm = SystemServers(defaultResolvConf)
	}
	return &DNSSource{
		servers: norm,
		client:  &dns.Client{Net: "udp", Timeout: timeout},
		log:     zerolog.Nop(),
	}
}

func (s *DNSSource) LogTo(log zerolog.Logger) *DNSSource {
	s.log = log
	return s
}

func (s *DNSSource) Servers() []string { return append([]string(nil), s.servers...) }

func (s *DNSSource) Lookup(ctx context.Context, domain string, family model.Family) ([]model.Candidate, error) {
	qtype := dns.TypeA
	if family == model.IPv6 {
		qtype = dns.TypeAAAA
	}

	var (
		out      []model.Candidate
		seen     = map[netip.Addr]bool{}
		errs     error
		answered bool
	)
	for _, server := range s.servers {
		addrs, err := s.query(ctx, server, domain, qtype)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", server, err))
			continue
		}
		answered = true
		for _, a := range addrs {
			if !seen[a] {
				seen[a] = true
				out = append(out, model.Candidate(a.String()))
			}
		}
		s.log.Debug().Str("server", server).Str("domain", domain).Str("type", dns.TypeToString[qtype]).Int("answers", len(addrs)).Msg("dns answer")
	}
	if !answered {
		return nil, errs
	}
	return out, nil
}

func (s *DNSSource) query(ctx context.Context, server, domain string, qtype uint16) ([]netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), qtype)
	m.RecursionDesired = true

	r, _, err := s.client.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, err
	}
	if r.Truncated {
		tcp := &dns.Client{Net: "tcp", Timeout: s.client.Timeout}
		if r, _, err = tcp.ExchangeContext(ctx, m, server); err != nil {
			return nil, err
		}
	}
	switch r.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
	default:
		return nil, fmt.Errorf("rcode %s", dns.RcodeToString[r.Rcode])
	}

	var out []netip.Addr
	for _, rr := range r.Answer {
		var ip net.IP
		switch v := rr.(type) {
		case *dns.A:
			ip = v.A
		case *dns.AAAA:
			ip = v.AAAA
		default:
			continue
		}
		if a, ok := netip.AddrFromSlice(ip); ok {
			a = a.Unmap()
			if a.IsValid() && !a.IsUnspecified() && a.Is6() == (qtype == dns.TypeAAAA) {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

// SystemServers reads nameservers from a resolv.conf file, falling back to
// public resolvers when it is missing or empty.
func SystemServers(path string) []string {
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil || len(cfg.Servers) == 0 {
		return append([]string(nil), fallbackServers...)
	}
	out := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		out = append(out, net.JoinHostPort(s, cfg.Port))
	}
	return out
}

func normalizeDNSServer(server string) string {
	server = strings.TrimSpace(server)
	if server == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	if ip, err := netip.ParseAddr(strings.Trim(server, "[]")); err == nil {
		return net.JoinHostPort(ip.String(), "53")
	}
	return net.JoinHostPort(server, "53")
}
