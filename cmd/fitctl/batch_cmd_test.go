package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"example.com/fitfaker/internal/batch"
	"example.com/fitfaker/internal/common"
	"example.com/fitfaker/internal/fit/fittest"
	"example.com/fitfaker/internal/manifest"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	_, root := newApp(&out, &out)
	err := root.Run(context.Background(), append([]string{"fitctl"}, args...))
	return out.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}

func TestBatchCmdGeneratesOutputs(t *testing.T) {
	common.SetLogOutput(&bytes.Buffer{})
	defer common.SetLogOutput(os.Stderr)

	root := t.TempDir()
	inputDir := filepath.Join(root, "rides")
	nested := filepath.Join(inputDir, "2024")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inputDir, "alpha.fit"), fittest.ZwiftRide().Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile alpha: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "beta.fit"), fittest.RichActivity().Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile beta: %v", err)
	}
	reportDir := filepath.Join(root, "report")
	auditPath := filepath.Join(root, "audit.jsonl")

	out, err := runApp(t, "batch", "--recursive", "--workers", "2",
		"--report-dir", reportDir, "--audit-log", auditPath, inputDir)
	if err != nil {
		t.Fatalf("batch: %v\n%s", err, out)
	}
	if !strings.Contains(out, "found 2, skipped 0, converted 2, failed 0") {
		t.Fatalf("unexpected summary line:\n%s", out)
	}
	for _, p := range []string{
		filepath.Join(inputDir, "alpha_modified.fit"),
		filepath.Join(nested, "beta_modified.fit"),
		filepath.Join(reportDir, "summary.json"),
		filepath.Join(reportDir, "report.pdf"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(reportDir, "summary.json"))
	if err != nil {
		t.Fatalf("ReadFile summary: %v", err)
	}
	var sum batch.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		t.Fatalf("Unmarshal summary: %v", err)
	}
	if sum.Succeeded != 2 || sum.Target != "garmin Edge 830" {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	m, err := manifest.Load(filepath.Join(reportDir, "manifest.json"))
	if err != nil {
		t.Fatalf("Load manifest: %v", err)
	}
	if m.RunID != sum.RunID || len(m.Items) != 3 {
		t.Fatalf("unexpected manifest: %+v", m)
	}

	entries, err := common.ReadAuditLog(auditPath)
	if err != nil {
		t.Fatalf("ReadAuditLog: %v", err)
	}
	// alpha: 2+3 fields; beta: file_id 2, two device_info 3 each
	if len(entries) != 13 {
		t.Fatalf("audit entries = %d, want 13", len(entries))
	}

	// a second run only sees converted files
	out, err = runApp(t, "batch", "--recursive", inputDir)
	if err != nil {
		t.Fatalf("second batch: %v\n%s", err, out)
	}
	if !strings.Contains(out, "found 4, skipped 2, converted 2") {
		t.Fatalf("unexpected second summary:\n%s", out)
	}
}

func TestBatchCmdExitCodes(t *testing.T) {
	common.SetLogOutput(&bytes.Buffer{})
	defer common.SetLogOutput(os.Stderr)

	empty := t.TempDir()
	if _, err := runApp(t, "batch", empty); exitCode(err) != 2 {
		t.Fatalf("empty dir: exit %d (%v), want 2", exitCode(err), err)
	}

	broken := t.TempDir()
	if err := os.WriteFile(filepath.Join(broken, "x.fit"), []byte("garbage data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := runApp(t, "batch", broken); exitCode(err) != 1 {
		t.Fatalf("all failed: exit %d (%v), want 1", exitCode(err), err)
	}

	if _, err := runApp(t, "batch", "--manufacturer", "garmin", "--product", "1", broken); exitCode(err) != 2 {
		t.Fatalf("unknown product: exit %d (%v), want 2", exitCode(err), err)
	}
}

func TestConvertAndVerifyCmd(t *testing.T) {
	common.SetLogOutput(&bytes.Buffer{})
	defer common.SetLogOutput(os.Stderr)

	dir := t.TempDir()
	in := filepath.Join(dir, "ride.fit")
	if err := os.WriteFile(in, fittest.ZwiftRide().Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	out, err := runApp(t, "convert", "--verify", in)
	if err != nil {
		t.Fatalf("convert: %v\n%s", err, out)
	}
	if !strings.Contains(out, "identity:  2 (2 modified, 5 fields)") || !strings.Contains(out, "verified:  ok") {
		t.Fatalf("unexpected convert output:\n%s", out)
	}

	converted := filepath.Join(dir, "ride_modified.fit")
	if out, err := runApp(t, "verify", in, converted); err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if _, err := runApp(t, "verify", in, in); exitCode(err) != 1 {
		t.Fatalf("verify of unconverted file: exit %d, want 1", exitCode(err))
	}

	out, err = runApp(t, "inspect", "--identity", converted)
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, out)
	}
	if !strings.Contains(out, "device_info") || strings.Contains(out, "record") {
		t.Fatalf("unexpected inspect output:\n%s", out)
	}
	if !strings.Contains(out, `"Edge 830"`) {
		t.Fatalf("inspect output lacks product name:\n%s", out)
	}
}

func TestConfigAndDevicesCmd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "fitctl.yaml")
	cfg := "target:\n  manufacturer: garmin\n  product: 3843\nproducts:\n  - manufacturer: wahoo_fitness\n    product: 31\n    name: ELEMNT BOLT\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	out, err := runApp(t, "--config", cfgPath, "devices")
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if !strings.Contains(out, "ELEMNT BOLT") {
		t.Fatalf("configured product missing:\n%s", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "(default)") && !strings.Contains(line, "Edge 1040") {
			t.Fatalf("wrong default marked: %s", line)
		}
	}

	if _, err := runApp(t, "--config", filepath.Join(dir, "missing.yaml"), "devices"); exitCode(err) != 2 {
		t.Fatalf("missing config: exit %d, want 2", exitCode(err))
	}
}
