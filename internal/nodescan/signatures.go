// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package nodescan

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/logging"
)

//go:embed signatures.yaml
var embeddedSignatures []byte

// Confidence of a secret match.
type Confidence string

// Confidence levels.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// UnmarshalYAML rejects unknown confidence values.
func (c *Confidence) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch v := Confidence(s); v {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		*c = v
		return nil
	default:
		return fmt.Errorf("invalid confidence %q", s)
	}
}

// Signature is one pattern of the pack.
type Signature struct {
	ID          string             `yaml:"id"`
	Description string             `yaml:"description"`
	Regex       string             `yaml:"regex"`
	Confidence  Confidence         `yaml:"confidence"`
	Severity    eventlog.RiskLevel `yaml:"severity"`

	re *regexp.Regexp
}

// Pack is a compiled signature pack.
type Pack struct {
	Secrets        []Signature `yaml:"secrets"`
	Escape         []Signature `yaml:"escape"`
	Dangerous      []Signature `yaml:"dangerous"`
	InstallScripts []Signature `yaml:"install_scripts"`
}

// ParsePack decodes and compiles a YAML signature pack.
func ParsePack(data []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signature pack: %w", err)
	}
	for _, group := range []struct {
		name string
		sigs []Signature
	}{
		{"secrets", p.Secrets},
		{"escape", p.Escape},
		{"dangerous", p.Dangerous},
		{"install_scripts", p.InstallScripts},
	} {
		for i := range group.sigs {
			sig := &group.sigs[i]
			re, err := regexp.Compile(sig.Regex)
			if err != nil {
				return nil, fmt.Errorf("%s/%s: failed to compile regex: %w", group.name, sig.ID, err)
			}
			sig.re = re
			if group.name == "secrets" {
				sig.Severity = secretSeverity(sig.Confidence)
			} else if !sig.Severity.Valid() {
				return nil, fmt.Errorf("%s/%s: invalid severity %q", group.name, sig.ID, sig.Severity)
			}
		}
	}
	return &p, nil
}

func secretSeverity(c Confidence) eventlog.RiskLevel {
	switch c {
	case ConfidenceHigh:
		return eventlog.RiskHigh
	case ConfidenceMedium:
		return eventlog.RiskMedium
	default:
		return eventlog.RiskLow
	}
}

var (
	defaultPackOnce sync.Once
	defaultPack     *Pack
)

// DefaultPack returns the embedded pack. The embedded file is covered by
// tests, so a parse failure here is a build defect.
func DefaultPack() *Pack {
	defaultPackOnce.Do(func() {
		p, err := ParsePack(embeddedSignatures)
		if err != nil {
			logging.Fatal().Err(err).Msg("Embedded signature pack is invalid")
		}
		defaultPack = p
	})
	return defaultPack
}

// Finding kinds.
const (
	KindSecret     = "secret"
	KindEscape     = "escape"
	KindDangerous  = "dangerous"
	KindDependency = "dependency"
)

// Finding is one signature hit. Match is always masked.
type Finding struct {
	Kind        string             `json:"kind"`
	ID          string             `json:"id"`
	Description string             `json:"description"`
	Severity    eventlog.RiskLevel `json:"severity"`
	Confidence  Confidence         `json:"confidence,omitempty"`
	Match       string             `json:"match"`
	File        string             `json:"file,omitempty"`
	Line        int                `json:"line,omitempty"`
}

// match runs sigs over text line by line.
func match(kind string, sigs []Signature, text string) []Finding {
	var out []Finding
	for lineNum, line := range strings.Split(text, "\n") {
		for i := range sigs {
			sig := &sigs[i]
			hit := sig.re.FindString(line)
			if hit == "" {
				continue
			}
			out = append(out, Finding{
				Kind:        kind,
				ID:          sig.ID,
				Description: sig.Description,
				Severity:    sig.Severity,
				Confidence:  sig.Confidence,
				Match:       maskFor(kind, hit),
				Line:        lineNum + 1,
			})
		}
	}
	return out
}

// maskFor masks secrets; other kinds are code, kept short for logs.
func maskFor(kind, hit string) string {
	hit = strings.TrimSpace(hit)
	if kind == KindSecret {
		return logging.MaskSecret(hit)
	}
	if len(hit) > 80 {
		return hit[:80] + "..."
	}
	return hit
}

// SecretScanner finds credentials in text.
type SecretScanner struct {
	pack *Pack
	// MaxBytes bounds the scanned prefix. Zero means unbounded.
	MaxBytes int
}

// NewSecretScanner creates a scanner over pack (nil for the embedded pack).
func NewSecretScanner(pack *Pack, maxBytes int) *SecretScanner {
	if pack == nil {
		pack = DefaultPack()
	}
	return &SecretScanner{pack: pack, MaxBytes: maxBytes}
}

// Scan returns secret findings with masked matches.
func (s *SecretScanner) Scan(text string) []Finding {
	return match(KindSecret, s.pack.Secrets, bound(text, s.MaxBytes))
}

// Redact replaces every high-confidence secret in text with a marker.
func (s *SecretScanner) Redact(text string) (string, int) {
	var n int
	for i := range s.pack.Secrets {
		sig := &s.pack.Secrets[i]
		if sig.Confidence != ConfidenceHigh {
			continue
		}
		text = sig.re.ReplaceAllStringFunc(text, func(string) string {
			n++
			return "[REDACTED:" + sig.ID + "]"
		})
	}
	return text, n
}

// EscapeScanner finds container escape and host probing attempts.
type EscapeScanner struct {
	pack     *Pack
	MaxBytes int
}

// NewEscapeScanner creates a scanner over pack (nil for the embedded pack).
func NewEscapeScanner(pack *Pack, maxBytes int) *EscapeScanner {
	if pack == nil {
		pack = DefaultPack()
	}
	return &EscapeScanner{pack: pack, MaxBytes: maxBytes}
}

// Scan returns escape probe findings.
func (s *EscapeScanner) Scan(text string) []Finding {
	return match(KindEscape, s.pack.Escape, bound(text, s.MaxBytes))
}

func bound(text string, n int) string {
	if n > 0 && len(text) > n {
		return text[:n]
	}
	return text
}

// MaxSeverity returns the highest severity among findings, info when empty.
func MaxSeverity(findings []Finding) eventlog.RiskLevel {
	sev := eventlog.RiskInfo
	for _, f := range findings {
		sev = eventlog.MaxRisk(sev, f.Severity)
	}
	return sev
}

func ids(findings []Finding) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range findings {
		if !seen[f.ID] {
			seen[f.ID] = true
			out = append(out, f.ID)
		}
	}
	return out
}
