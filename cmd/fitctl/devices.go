package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"example.com/fitfaker/internal/fit"
)

func (a *app) devicesCmd() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "list the target devices with a known product name",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			catalog := a.cfg.Catalog()
			def := a.cfg.ToTarget()
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MANUFACTURER\tCODE\tPRODUCT\tNAME\t")
			for _, k := range catalog.Keys() {
				mark := ""
				if k.Manufacturer == def.Manufacturer && k.Product == def.Product {
					mark = "(default)"
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", fit.ManufacturerName(k.Manufacturer), k.Manufacturer, k.Product, catalog[k], mark)
			}
			return tw.Flush()
		},
	}
}
