package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"example.com/fitfaker/internal/batch"
	"example.com/fitfaker/internal/common"
	"example.com/fitfaker/internal/manifest"
	"example.com/fitfaker/internal/report"
)

func (a *app) batchCmd() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "rewrite every FIT file in a directory",
		ArgsUsage: "<dir|file>",
		Flags: append(targetFlags(),
			&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "descend into subdirectories"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"j"}, Usage: "concurrent conversions"},
			&cli.StringFlag{Name: "suffix", Usage: "inserted before the output extension"},
			&cli.StringFlag{Name: "out-dir", Usage: "write outputs below this directory"},
			&cli.BoolFlag{Name: "no-clobber", Usage: "fail files whose output already exists"},
			&cli.StringFlag{Name: "audit-log", Usage: "append changed identity fields to this JSONL file"},
			&cli.StringFlag{Name: "report-dir", Usage: "write summary.json, manifest.json and report.pdf here"},
			&cli.StringFlag{Name: "lang", Usage: "PDF report language (en, tr)"},
			&cli.BoolFlag{Name: "progress", Usage: "print progress to stderr"},
		),
		Action: a.runBatch,
	}
}

func (a *app) runBatch(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return cli.Exit("usage: fitctl batch <dir|file>", 2)
	}
	opts := batch.Options{
		Workers:   a.cfg.Workers,
		Suffix:    a.cfg.Suffix,
		OutDir:    a.cfg.OutDir,
		NoClobber: a.cfg.NoClobber || cmd.Bool("no-clobber"),
		RunID:     batch.NewRunID(),
	}
	if n := cmd.Int("workers"); n > 0 {
		opts.Workers = n
	}
	if s := cmd.String("suffix"); s != "" {
		opts.Suffix = s
	}
	if d := cmd.String("out-dir"); d != "" {
		opts.OutDir = d
	}
	reportDir := cmd.String("report-dir")
	if reportDir == "" {
		reportDir = a.cfg.ReportDir
	}
	langFlag := cmd.String("lang")
	if langFlag == "" {
		langFlag = a.cfg.Lang
	}
	lang, err := report.ParseLanguage(langFlag)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	audit := a.auditLog(cmd, opts.RunID)
	metrics := common.NewMetrics()
	conv, err := a.newConverter(cmd, audit, metrics)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	d, err := batch.Discover(cmd.Args().First(), opts.Suffix, a.cfg.Recursive || cmd.Bool("recursive"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("discover: %v", err), 2)
	}
	common.Logf("batch %s: %d files to convert, %d already converted, target %s", opts.RunID, len(d.Files), len(d.Skipped), conv.Device())

	metrics.Start()
	stopProgress := func() {}
	if cmd.Bool("progress") {
		stopProgress = common.StartProgressPrinter(a.errOut, metrics, 500*time.Millisecond)
	}
	sum := batch.Execute(ctx, conv, d, opts)
	stopProgress()
	metrics.Stop()
	sum.Target = conv.Device().String()

	snap := metrics.Snapshot()
	fmt.Fprintf(a.out, "found %d, skipped %d, converted %d, failed %d", sum.Found, sum.Skipped, sum.Succeeded, sum.Failed)
	if sum.Canceled > 0 {
		fmt.Fprintf(a.out, ", canceled %d", sum.Canceled)
	}
	if sum.Recovered > 0 {
		fmt.Fprintf(a.out, ", recovered %d", sum.Recovered)
	}
	fmt.Fprintf(a.out, " (%d messages, %s in %s)\n", snap.Messages, common.FormatBytes(snap.Bytes), snap.Duration.Round(time.Millisecond))
	for _, r := range sum.Results {
		if !r.OK() {
			fmt.Fprintf(a.out, "  FAILED %s: %s\n", r.Input, r.Error)
		}
	}

	if reportDir != "" {
		if err := writeReports(reportDir, sum, audit, lang); err != nil {
			return cli.Exit(fmt.Sprintf("report: %v", err), 1)
		}
		fmt.Fprintf(a.out, "reports written to %s\n", reportDir)
	}

	if code := batch.ExitCode(sum); code != 0 {
		if sum.Found == 0 {
			return cli.Exit("no FIT files found", code)
		}
		return cli.Exit("no file converted", code)
	}
	return nil
}

// writeReports stores the summary, a manifest over every produced file, and a
// PDF carrying the manifest hash.
func writeReports(dir string, sum batch.Summary, audit *common.AuditLog, lang report.Language) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := report.SaveSummaryJSON(sum, filepath.Join(dir, "summary.json")); err != nil {
		return err
	}
	var outputs []string
	for _, r := range sum.Results {
		if r.OK() {
			outputs = append(outputs, r.Output)
		}
	}
	if audit != nil {
		if _, err := os.Stat(audit.Path()); err == nil {
			outputs = append(outputs, audit.Path())
		}
	}
	m, err := manifest.Build(sum.RunID, outputs)
	if err != nil {
		return err
	}
	if err := manifest.Save(m, filepath.Join(dir, "manifest.json")); err != nil {
		return err
	}
	return report.SaveSummaryPDF(sum, report.PDFOptions{Lang: lang, ManifestHash: manifest.Hash(m)}, filepath.Join(dir, "report.pdf"))
}
