package network

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/slok/ralph/internal/log"
	"github.com/slok/ralph/internal/model"
)

// Dialer knows how to open network connections.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ProberConfig is the configuration for the connectivity prober.
type ProberConfig struct {
	// Hosts are `host:port` addresses probed in order.
	Hosts   []string
	Timeout time.Duration
	// OfflineFile forces the prober to report unreachable while it exists.
	OfflineFile string
	// OfflineEnv forces the prober to report unreachable when set to a true value.
	OfflineEnv string
	Dialer     Dialer
	LookupEnv  func(string) (string, bool)
	Logger     log.Logger
}

func (c *ProberConfig) defaults() error {
	if len(c.Hosts) == 0 {
		return fmt.Errorf("at least one host is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	if c.LookupEnv == nil {
		c.LookupEnv = os.LookupEnv
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "network.Prober"})
	return nil
}

// Prober checks internet connectivity by opening TCP connections to well known hosts.
type Prober struct {
	hosts       []string
	timeout     time.Duration
	offlineFile string
	offlineEnv  string
	dialer      Dialer
	lookupEnv   func(string) (string, bool)
	logger      log.Logger
}

// NewProber returns a new connectivity prober.
func NewProber(cfg ProberConfig) (*Prober, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Prober{
		hosts:       cfg.Hosts,
		timeout:     cfg.Timeout,
		offlineFile: cfg.OfflineFile,
		offlineEnv:  cfg.OfflineEnv,
		dialer:      cfg.Dialer,
		lookupEnv:   cfg.LookupEnv,
		logger:      cfg.Logger,
	}, nil
}

// IsReachable returns true as soon as one of the hosts accepts a connection.
func (p *Prober) IsReachable(ctx context.Context) bool {
	if p.ForcedOffline() {
		p.logger.Debugf("Connectivity forced offline")
		return false
	}

	for _, host := range p.hosts {
		if err := p.probe(ctx, host); err == nil {
			return true
		}
	}

	return false
}

// Check probes every host and returns a result per host plus the override status.
func (p *Prober) Check(ctx context.Context) []model.CheckResult {
	results := []model.CheckResult{}

	if p.ForcedOffline() {
		results = append(results, model.CheckResult{
			ID:      "force_offline",
			Message: "Connectivity is forced offline, remove the override to probe hosts",
			Status:  model.CheckStatusError,
		})
		return results
	}

	for _, host := range p.hosts {
		start := time.Now()
		err := p.probe(ctx, host)
		if err != nil {
			results = append(results, model.CheckResult{
				ID:      host,
				Message: fmt.Sprintf("unreachable: %s", err),
				Status:  model.CheckStatusError,
			})
			continue
		}
		results = append(results, model.CheckResult{
			ID:      host,
			Message: fmt.Sprintf("reachable in %s", time.Since(start).Round(time.Millisecond)),
			Status:  model.CheckStatusOK,
		})
	}

	return results
}

// ForcedOffline returns true when the deterministic offline override is active.
func (p *Prober) ForcedOffline() bool {
	if p.offlineEnv != "" {
		if v, ok := p.lookupEnv(p.offlineEnv); ok && isTrue(v) {
			return true
		}
	}

	if p.offlineFile != "" {
		if _, err := os.Stat(p.offlineFile); err == nil {
			return true
		}
	}

	return false
}

func (p *Prober) probe(ctx context.Context, host string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		p.logger.Debugf("Probe to %s failed: %s", host, err)
		return err
	}
	_ = conn.Close()

	return nil
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// SetForcedOffline creates or removes the offline override file.
func SetForcedOffline(path string, offline bool) error {
	if !offline {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("could not remove offline override: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(path, []byte("offline\n"), 0o644); err != nil {
		return fmt.Errorf("could not write offline override: %w", err)
	}
	return nil
}
