package model

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// Candidate is an address literal eligible to represent a domain.
type Candidate string

// IsIPv6 reports whether c is an IPv6 literal. Only IPv6 literals contain a colon.
func (c Candidate) IsIPv6() bool { return strings.Contains(string(c), ":") }

// URLHost returns c as it must appear in a URL authority.
func (c Candidate) URLHost() string {
	if c.IsIPv6() {
		return "[" + string(c) + "]"
	}
	return string(c)
}

// HostPort returns the dial address for c on port.
func (c Candidate) HostPort(port int) string {
	return net.JoinHostPort(string(c), strconv.Itoa(port))
}

func (c Candidate) Family() Family {
	if c.IsIPv6() {
		return IPv6
	}
	return IPv4
}

type Family int

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	if f == IPv6 {
		return "IPv6"
	}
	return "IPv4"
}

// ProbeResult is the outcome of one probe attempt. Latency is meaningful only
// when Reachable is set.
type ProbeResult struct {
	Candidate Candidate
	Reachable bool
	Latency   time.Duration
	Scheme    string
	LastError string
}

func Reachable(c Candidate, latency time.Duration, scheme string) ProbeResult {
	return ProbeResult{Candidate: c, Reachable: true, Latency: latency, Scheme: scheme}
}

func Unreachable(c Candidate, err error) ProbeResult {
	r := ProbeResult{Candidate: c}
	if err != nil {
		r.LastError = err.Error()
	}
	return r
}

// Outcome is the result of selecting among probed candidates. When Found is
// false there is no winner and Winner/Latency are zero.
type Outcome struct {
	Found   bool
	Winner  Candidate
	Latency time.Duration

	// Ranking lists the reachable candidates, fastest first. Diagnostic only.
	Ranking []ProbeResult
	Probed  int
}

func NoReachableCandidate(probed int) Outcome {
	return Outcome{Probed: probed}
}

type DomainResult struct {
	Domain string
	IPv4   Outcome
	IPv6   Outcome
	Err    error
}

func (r DomainResult) Outcome(f Family) Outcome {
	if f == IPv6 {
		return r.IPv6
	}
	return r.IPv4
}
