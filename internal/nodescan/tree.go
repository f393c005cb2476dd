// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package nodescan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sentinel/internal/eventlog"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/settings"
)

// ErrRootNotDirectory is returned when the scan root is not a directory.
var ErrRootNotDirectory = errors.New("nodescan: scan root is not a directory")

// errFileLimit stops the walk once the file limit is reached.
var errFileLimit = errors.New("file limit reached")

// Options tune a tree scan.
type Options struct {
	// SkipNPM disables package.json install script inspection.
	SkipNPM bool
}

// Report summarizes a tree scan.
type Report struct {
	ServerID      int64              `json:"server_id"`
	Root          string             `json:"root"`
	ScannedFiles  int                `json:"scanned_files"`
	SkippedFiles  int                `json:"skipped_files"`
	Truncated     bool               `json:"truncated"`
	WarningsCount int                `json:"warnings_count"`
	Severity      eventlog.RiskLevel `json:"severity"`
	BlockDeploy   bool               `json:"block_deploy"`
	Findings      []Finding          `json:"findings"`
}

var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
}

var scriptExts = map[string]bool{
	".js":  true,
	".mjs": true,
	".cjs": true,
	".ts":  true,
	".lua": true,
	".py":  true,
	".sh":  true,
}

var installHooks = []string{"preinstall", "install", "postinstall", "prepare"}

// ScanTree walks root and reports dangerous code, secrets and risky
// install scripts.
func (in *Inspector) ScanTree(ctx context.Context, serverID int64, root string, opts Options) (*Report, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, root)
	}

	maxFiles := in.settings.Int(ctx, settings.NodeScanMaxFiles)
	maxBytes := int64(in.settings.Int(ctx, settings.NodeScanMaxFileBytes))
	secrets := NewSecretScanner(in.pack, 0)

	rep := &Report{ServerID: serverID, Root: root, Findings: []Finding{}}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Ctx(ctx).Debug().Err(err).Str("path", path).Msg("Skipping unreadable path")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if rep.ScannedFiles >= maxFiles {
			rep.Truncated = true
			return errFileLimit
		}

		content, ok := readText(path, maxBytes)
		if !ok {
			rep.SkippedFiles++
			return nil
		}
		rep.ScannedFiles++

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		found := secrets.Scan(content)
		if scriptExts[strings.ToLower(filepath.Ext(path))] {
			found = append(found, match(KindDangerous, in.pack.Dangerous, content)...)
		}
		if !opts.SkipNPM && d.Name() == "package.json" {
			found = append(found, in.installScripts(content)...)
		}
		for i := range found {
			found[i].File = rel
		}
		rep.Findings = append(rep.Findings, found...)
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errFileLimit) {
		return nil, fmt.Errorf("walk %s: %w", root, walkErr)
	}

	rep.WarningsCount = len(rep.Findings)
	rep.Severity = MaxSeverity(rep.Findings)
	rep.BlockDeploy = in.settings.Bool(ctx, settings.NodeDeployGateEnabled) &&
		(rep.Severity == eventlog.RiskCritical ||
			(rep.Severity == eventlog.RiskHigh && in.settings.Bool(ctx, settings.NodeDeployBlockOnHigh)))
	countFindings(rep.Findings)

	return rep, in.recordScan(ctx, rep)
}

// installScripts inspects the lifecycle scripts of a package.json.
func (in *Inspector) installScripts(content string) []Finding {
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal([]byte(content), &pkg); err != nil {
		return nil
	}
	var out []Finding
	for _, hook := range installHooks {
		script, ok := pkg.Scripts[hook]
		if !ok {
			continue
		}
		for _, f := range match(KindDependency, in.pack.InstallScripts, script) {
			f.Description = hook + ": " + f.Description
			f.Line = 0
			out = append(out, f)
		}
	}
	return out
}

// readText returns the file content when it is small enough and not binary.
func readText(path string, maxBytes int64) (string, bool) {
	f, err := os.Open(path) //nolint:gosec // path comes from walking the server root
	if err != nil {
		return "", false
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil || st.Size() > maxBytes {
		return "", false
	}
	data, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return "", false
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return "", false
	}
	return string(data), true
}

func (in *Inspector) recordScan(ctx context.Context, rep *Report) error {
	byKind := make(map[string][]Finding)
	for _, f := range rep.Findings {
		byKind[f.Kind] = append(byKind[f.Kind], f)
	}

	var errs []error
	record := func(eventType string, risk eventlog.RiskLevel, meta map[string]any) {
		_, err := in.events.Record(ctx, eventType, eventlog.Payload{
			ServerID:  eventlog.Int64(rep.ServerID),
			RiskLevel: risk,
			Meta:      meta,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if hits := filterConfidence(byKind[KindSecret], ConfidenceHigh); len(hits) > 0 {
		record(eventlog.TypeNodeSecretDetected, eventlog.RiskHigh, map[string]any{
			"channel":    "deploy_scan",
			"signatures": ids(hits),
			"files":      files(hits),
		})
	}
	if hits := byKind[KindDangerous]; len(hits) > 0 {
		record(eventlog.TypeNodeDangerousPattern, MaxSeverity(hits), map[string]any{
			"signatures": ids(hits),
			"files":      files(hits),
			"count":      len(hits),
		})
	}
	if hits := byKind[KindDependency]; len(hits) > 0 {
		record(eventlog.TypeNodeDependencyRisk, MaxSeverity(hits), map[string]any{
			"signatures": ids(hits),
			"count":      len(hits),
		})
	}
	record(eventlog.TypeNodeScanCompleted, rep.Severity, map[string]any{
		"scanned_files":  rep.ScannedFiles,
		"skipped_files":  rep.SkippedFiles,
		"truncated":      rep.Truncated,
		"warnings_count": rep.WarningsCount,
		"severity":       string(rep.Severity),
		"block_deploy":   rep.BlockDeploy,
	})

	logging.Ctx(ctx).Info().
		Int64("server_id", rep.ServerID).
		Int("scanned_files", rep.ScannedFiles).
		Int("warnings", rep.WarningsCount).
		Str("severity", string(rep.Severity)).
		Bool("block_deploy", rep.BlockDeploy).
		Msg("Node scan completed")
	return errors.Join(errs...)
}

func files(findings []Finding) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range findings {
		if f.File != "" && !seen[f.File] {
			seen[f.File] = true
			out = append(out, f.File)
		}
	}
	return out
}
