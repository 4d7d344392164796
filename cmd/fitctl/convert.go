package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"example.com/fitfaker/internal/batch"
	"example.com/fitfaker/internal/common"
	"example.com/fitfaker/internal/convert"
	"example.com/fitfaker/internal/verify"
)

func (a *app) newConverter(cmd *cli.Command, audit *common.AuditLog, metrics *common.Metrics) (*convert.Converter, error) {
	target, catalog, err := a.target(cmd)
	if err != nil {
		return nil, err
	}
	return convert.New(convert.Options{
		Target:    target,
		Catalog:   catalog,
		Audit:     audit,
		Metrics:   metrics,
		GzipLevel: a.cfg.GzipLevel,
	})
}

func (a *app) auditLog(cmd *cli.Command, runID string) *common.AuditLog {
	path := cmd.String("audit-log")
	if path == "" {
		path = a.cfg.AuditLog
	}
	if path == "" {
		return nil
	}
	return common.NewAuditLog(path, runID)
}

func (a *app) convertCmd() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "rewrite one FIT file",
		ArgsUsage: "<input.fit> [output.fit]",
		Flags: append(targetFlags(),
			&cli.StringFlag{Name: "suffix", Usage: "output suffix when no output path is given"},
			&cli.StringFlag{Name: "audit-log", Usage: "append changed identity fields to this JSONL file"},
			&cli.BoolFlag{Name: "verify", Usage: "check the output against the input after writing"},
			&cli.BoolFlag{Name: "json", Usage: "print the result as JSON"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() < 1 || cmd.NArg() > 2 {
				return cli.Exit("usage: fitctl convert <input.fit> [output.fit]", 2)
			}
			in := cmd.Args().Get(0)
			out := cmd.Args().Get(1)
			if out == "" {
				suffix := cmd.String("suffix")
				if suffix == "" {
					suffix = a.cfg.Suffix
				}
				out = batch.OutputPath(in, suffix)
			}

			conv, err := a.newConverter(cmd, a.auditLog(cmd, batch.NewRunID()), nil)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			res, err := conv.Convert(ctx, in, out)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if cmd.Bool("json") {
				b, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, string(b))
			} else {
				fmt.Fprintf(a.out, "%s -> %s\n", res.Input, res.Output)
				fmt.Fprintf(a.out, "  target:    %s\n", conv.Device())
				fmt.Fprintf(a.out, "  messages:  %d\n", res.MessagesProcessed)
				fmt.Fprintf(a.out, "  identity:  %d (%d modified, %d fields)\n", res.IdentityMessages, res.IdentityModified, res.FieldsChanged)
				if res.Recovered {
					fmt.Fprintln(a.out, "  recovered: declared data size was wrong")
				}
			}
			if cmd.Bool("verify") {
				rep, err := verify.Compare(in, out, conv.Device())
				if err != nil {
					return cli.Exit(fmt.Sprintf("verify: %v", err), 1)
				}
				if !rep.OK() {
					return cli.Exit(fmt.Sprintf("verify: %d problems: %v", len(rep.Problems), rep.Problems), 1)
				}
				fmt.Fprintln(a.out, "  verified:  ok")
			}
			return nil
		},
	}
}
