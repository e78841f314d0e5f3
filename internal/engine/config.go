package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfiguration is returned, wrapped, for out-of-range Config values.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Transport selects how a candidate is probed.
type Transport string

const (
	TransportHTTP Transport = "http"
	TransportTCP  Transport = "tcp"
)

// Config controls a single Select call.
type Config struct {
	// MaxConcurrency bounds the number of probes in flight.
	MaxConcurrency int
	// ProbeTimeout is the deadline of one probe attempt. The IPv6 scheme
	// fallback gets its own deadline.
	ProbeTimeout time.Duration
	ProbePort    int
	// IPv6SchemeFallback retries a failed https probe of an IPv6 candidate
	// once over plain http on ProbePort.
	IPv6SchemeFallback bool
	Transport          Transport
}

const (
	DefaultMaxConcurrency = 5
	DefaultProbeTimeout   = 2 * time.Second
	DefaultProbePort      = 80
)

// DefaultConfig returns 5 workers, a 2s per-attempt timeout, port 80, the
// IPv6 https to http fallback enabled and the HTTP transport.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:     DefaultMaxConcurrency,
		ProbeTimeout:       DefaultProbeTimeout,
		ProbePort:          DefaultProbePort,
		IPv6SchemeFallback: true,
		Transport:          TransportHTTP,
	}
}

func (c Config) validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: max concurrency %d", ErrInvalidConfiguration, c.MaxConcurrency)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("%w: probe timeout %s", ErrInvalidConfiguration, c.ProbeTimeout)
	}
	if c.ProbePort <= 0 || c.ProbePort > 65535 {
		return fmt.Errorf("%w: probe port %d", ErrInvalidConfiguration, c.ProbePort)
	}
	switch c.Transport {
	case "", TransportHTTP, TransportTCP:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfiguration, c.Transport)
	}
	return nil
}

// RunConfig controls a batch over many domains.
type RunConfig struct {
	Probe             Config
	DomainConcurrency int
	IPv4              bool
	IPv6              bool
}

const DefaultDomainConcurrency = 5

func DefaultRunConfig() RunConfig {
	return RunConfig{
		Probe:             DefaultConfig(),
		DomainConcurrency: DefaultDomainConcurrency,
		IPv4:              true,
		IPv6:              true,
	}
}

func (c RunConfig) validate() error {
	if err := c.Probe.validate(); err != nil {
		return err
	}
	if c.DomainConcurrency <= 0 {
		return fmt.Errorf("%w: domain concurrency %d", ErrInvalidConfiguration, c.DomainConcurrency)
	}
	if !c.IPv4 && !c.IPv6 {
		return fmt.Errorf("%w: select ipv4 and/or ipv6", ErrInvalidConfiguration)
	}
	return nil
}
