// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package remote

import (
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/sentinel/internal/logging"
)

// FirewallConfig configures the iptables shim.
type FirewallConfig struct {
	// Binary is the iptables binary; ip6tables is derived for IPv6.
	Binary  string        `koanf:"binary"`
	Chain   string        `koanf:"chain"`
	DryRun  bool          `koanf:"dry_run"`
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultFirewallConfig returns a dry-run configuration.
func DefaultFirewallConfig() FirewallConfig {
	return FirewallConfig{Binary: "iptables", Chain: "INPUT", DryRun: true, Timeout: 5 * time.Second}
}

var commentSafe = regexp.MustCompile(`[^a-zA-Z0-9_.:-]`)

// runner executes a command. Replaced in tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

var _ Firewall = (*ExecFirewall)(nil)

// ExecFirewall inserts DROP rules with iptables/ip6tables.
type ExecFirewall struct {
	cfg FirewallConfig
	run runner
}

// NewExecFirewall creates the shim.
func NewExecFirewall(cfg FirewallConfig) *ExecFirewall {
	d := DefaultFirewallConfig()
	if cfg.Binary == "" {
		cfg.Binary = d.Binary
	}
	if cfg.Chain == "" {
		cfg.Chain = d.Chain
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	return &ExecFirewall{cfg: cfg, run: execRunner}
}

func (f *ExecFirewall) binaryFor(addr netip.Addr) string {
	if addr.Is6() && !addr.Is4In6() {
		return strings.Replace(f.cfg.Binary, "iptables", "ip6tables", 1)
	}
	return f.cfg.Binary
}

// BanIP implements Firewall.
func (f *ExecFirewall) BanIP(ctx context.Context, ip, reason string) error {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	args := []string{
		"-I", f.cfg.Chain,
		"-s", addr.String(),
		"-j", "DROP",
		"-m", "comment", "--comment", "sentinel:" + commentSafe.ReplaceAllString(reason, "_"),
	}
	return f.exec(ctx, f.binaryFor(addr), args)
}

// UnbanIP implements Firewall.
func (f *ExecFirewall) UnbanIP(ctx context.Context, ip string) error {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	return f.exec(ctx, f.binaryFor(addr), []string{"-D", f.cfg.Chain, "-s", addr.String(), "-j", "DROP"})
}

func (f *ExecFirewall) exec(ctx context.Context, bin string, args []string) error {
	if f.cfg.DryRun {
		logging.Ctx(ctx).Info().Str("cmd", bin).Strs("args", args).Msg("Firewall dry run")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	if _, err := f.run(ctx, bin, args...); err != nil {
		return fmt.Errorf("firewall command failed: %w", err)
	}
	return nil
}

var _ Firewall = (*MemoryFirewall)(nil)

// MemoryFirewall records bans in memory.
type MemoryFirewall struct {
	mu     sync.Mutex
	banned map[string]string
	Err    error
}

// NewMemoryFirewall creates an empty MemoryFirewall.
func NewMemoryFirewall() *MemoryFirewall {
	return &MemoryFirewall{banned: make(map[string]string)}
}

// BanIP implements Firewall.
func (f *MemoryFirewall) BanIP(_ context.Context, ip, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if _, err := netip.ParseAddr(ip); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	f.banned[ip] = reason
	return nil
}

// UnbanIP implements Firewall.
func (f *MemoryFirewall) UnbanIP(_ context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.banned, ip)
	return nil
}

// Banned returns every banned address, sorted.
func (f *MemoryFirewall) Banned() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.banned))
	for ip := range f.banned {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}
