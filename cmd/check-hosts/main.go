package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/938134/check-hosts/internal/domain"
	"github.com/938134/check-hosts/internal/engine"
	"github.com/938134/check-hosts/internal/hostsfile"
	"github.com/938134/check-hosts/internal/metrics"
	"github.com/938134/check-hosts/internal/model"
	"github.com/938134/check-hosts/internal/resolve"
)

type options struct {
	domainsFile    string
	candidatesFile string
	dnsServers     string
	dnsTimeout     time.Duration
	run            engine.RunConfig
	transport      string
	outFile        string
	applyPath      string
	restorePath    string
	metricsFile    string
	logLevel       string
}

func parseFlags(args []string) (options, error) {
	def := engine.DefaultRunConfig()
	var o options

	fs := flag.NewFlagSet("check-hosts", flag.ContinueOnError)
	fs.StringVar(&o.domainsFile, "domains", "domains.txt", "file with domains to check")
	fs.StringVar(&o.candidatesFile, "candidates", "", "hosts-format file of candidate addresses (skips DNS)")
	fs.StringVar(&o.dnsServers, "dns", "", "comma-separated upstream DNS servers (default: resolv.conf)")
	fs.DurationVar(&o.dnsTimeout, "dns-timeout", resolve.DefaultTimeout, "DNS query timeout")
	fs.IntVar(&o.run.Probe.MaxConcurrency, "concurrency", def.Probe.MaxConcurrency, "probes in flight per selection")
	fs.DurationVar(&o.run.Probe.ProbeTimeout, "timeout", def.Probe.ProbeTimeout, "per-probe timeout")
	fs.IntVar(&o.run.Probe.ProbePort, "port", def.Probe.ProbePort, "probe port")
	fs.BoolVar(&o.run.Probe.IPv6SchemeFallback, "ipv6-fallback", def.Probe.IPv6SchemeFallback, "retry failed https IPv6 probes over http")
	fs.StringVar(&o.transport, "transport", string(def.Probe.Transport), "probe transport: http or tcp")
	fs.IntVar(&o.run.DomainConcurrency, "domain-concurrency", def.DomainConcurrency, "domains processed at once")
	fs.BoolVar(&o.run.IPv4, "ipv4", def.IPv4, "select IPv4 addresses")
	fs.BoolVar(&o.run.IPv6, "ipv6", def.IPv6, "select IPv6 addresses")
	fs.StringVar(&o.outFile, "out", "hosts", "generated hosts file")
	fs.StringVar(&o.applyPath, "apply", "", "also write winners into this hosts file as a managed block")
	fs.StringVar(&o.restorePath, "restore", "", "restore this backup into the -apply hosts file and exit")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.run.Probe.Transport = engine.Transport(o.transport)
	return o, nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(lvl).
		With().Timestamp().Logger(), nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func candidateSource(o options, log zerolog.Logger) (engine.CandidateSource, error) {
	if o.candidatesFile != "" {
		src, err := resolve.ReadStaticFile(o.candidatesFile)
		if err != nil {
			return nil, fmt.Errorf("read candidates: %w", err)
		}
		log.Info().Str("file", o.candidatesFile).Int("domains", src.Domains()).Msg("using static candidates")
		return src, nil
	}
	src := resolve.NewDNSSource(splitList(o.dnsServers), o.dnsTimeout).LogTo(log)
	log.Info().Strs("servers", src.Servers()).Msg("using dns candidates")
	return src, nil
}

func run(ctx context.Context, o options, log zerolog.Logger) error {
	if o.restorePath != "" {
		target := o.applyPath
		if target == "" {
			target = hostsfile.DefaultHostsPath()
		}
		if err := hostsfile.RestoreBackup(o.restorePath, target); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		log.Info().Str("backup", o.restorePath).Str("hosts", target).Msg("restored")
		return nil
	}

	domains, err := domain.ReadDomainsFromFile(o.domainsFile)
	if err != nil {
		return err
	}
	src, err := candidateSource(o, log)
	if err != nil {
		return err
	}

	collector := metrics.New()
	sel := engine.NewSelector(engine.ProberFor(o.run.Probe)).LogTo(log).ObserveWith(collector)

	log.Info().Int("domains", len(domains)).Str("transport", o.transport).Msg("checking fastest addresses")
	results, err := sel.Run(ctx, domains, o.run, src, engine.Callbacks{
		OnResult: func(r model.DomainResult) {
			if r.Err != nil {
				log.Warn().Str("domain", r.Domain).Err(r.Err).Msg("domain incomplete")
			}
		},
		OnProgress: func(done, total int) {
			log.Debug().Int("done", done).Int("total", total).Msg("progress")
		},
	})
	if err != nil {
		return err
	}

	v4 := hostsfile.EntriesFromResults(results, model.IPv4)
	v6 := hostsfile.EntriesFromResults(results, model.IPv6)
	changed, err := hostsfile.WriteIfChanged(o.outFile, hostsfile.Render(v4, v6, time.Now()))
	if err != nil {
		return fmt.Errorf("write hosts: %w", err)
	}
	if changed {
		log.Info().Str("file", o.outFile).Int("ipv4", len(v4)).Int("ipv6", len(v6)).Msg("hosts updated")
	} else {
		log.Info().Str("file", o.outFile).Msg("hosts unchanged")
	}

	if o.applyPath != "" {
		backup, _, err := hostsfile.WriteWithBackup(o.applyPath, append(v4, v6...))
		if err != nil {
			return fmt.Errorf("apply hosts: %w", err)
		}
		log.Info().Str("hosts", o.applyPath).Str("backup", backup).Msg("managed block applied")
	}

	if o.metricsFile != "" {
		if err := collector.WriteTextfile(o.metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	log, err := newLogger(o.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, log); err != nil {
		log.Error().Err(err).Msg("check-hosts failed")
		stop()
		os.Exit(1)
	}
}
