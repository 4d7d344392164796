package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"example.com/fitfaker/internal/rewrite"
	"example.com/fitfaker/internal/verify"
)

func (a *app) verifyCmd() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "check a converted file against its source",
		ArgsUsage: "<input.fit> <output.fit>",
		Flags: append(targetFlags(),
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return cli.Exit("usage: fitctl verify <input.fit> <output.fit>", 2)
			}
			target, catalog, err := a.target(cmd)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			device, err := rewrite.Resolve(target, catalog)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			rep, err := verify.Compare(cmd.Args().Get(0), cmd.Args().Get(1), device)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if cmd.Bool("json") {
				b, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, string(b))
			} else {
				fmt.Fprintf(a.out, "%s: %d messages, %d identity, CRC 0x%04X\n", rep.Output, rep.OutputMessages, rep.Identity, rep.CRC)
				for _, p := range rep.Problems {
					fmt.Fprintf(a.out, "  %s\n", p)
				}
			}
			if !rep.OK() {
				return cli.Exit(fmt.Sprintf("verify: %d problems", len(rep.Problems)), 1)
			}
			fmt.Fprintln(a.out, "ok")
			return nil
		},
	}
}
