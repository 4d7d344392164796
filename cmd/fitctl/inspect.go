package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"example.com/fitfaker/internal/fit"
)

func (a *app) inspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "dump the messages of a FIT file",
		ArgsUsage: "<file.fit>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "resync", Usage: "ignore declared data sizes"},
			&cli.BoolFlag{Name: "identity", Usage: "only show file_id and device_info messages"},
			&cli.BoolFlag{Name: "no-expand", Usage: "hide synthesized timestamp and component fields"},
			&cli.IntFlag{Name: "limit", Usage: "stop after this many messages"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return cli.Exit("usage: fitctl inspect <file.fit>", 2)
			}
			path := cmd.Args().First()
			integrity, err := fit.CheckFile(path)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			for i, h := range integrity.Segments {
				fmt.Fprintf(a.out, "segment %d: header %d bytes, protocol 0x%02X, profile %d, data %d bytes, header CRC 0x%04X\n",
					i, h.Size, h.ProtocolVersion, h.ProfileVersion, h.DataSize, h.CRC)
			}
			if !integrity.Consistent {
				fmt.Fprintln(a.out, "declared data sizes do not tile the file; decode with --resync")
			}

			r, err := fit.Open(path, fit.Options{Resync: cmd.Bool("resync"), NoExpand: cmd.Bool("no-expand")})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer r.Close()
			limit := cmd.Int("limit")
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			shown := 0
			for n := 0; limit <= 0 || shown < limit; n++ {
				m, err := r.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					tw.Flush()
					if errors.Is(err, fit.ErrRecoverableFraming) {
						return cli.Exit(fmt.Sprintf("%v (retry with --resync)", err), 1)
					}
					return cli.Exit(err.Error(), 1)
				}
				if cmd.Bool("identity") && !fit.IsIdentity(m) {
					continue
				}
				shown++
				fmt.Fprintf(tw, "#%d\t@%d\t%s\tlocal %d%s\n", n, m.Offset, m.Kind.Name(), m.LocalType, recordFlags(m))
				for i := range m.Fields {
					f := &m.Fields[i]
					mark := ""
					if f.Expanded {
						mark = " (expanded)"
					}
					fmt.Fprintf(tw, "\t\t%s\t%s%s\n", fit.FieldName(m.Kind, f.Num), m.FormatValue(f), mark)
				}
				for _, f := range m.DevFields {
					fmt.Fprintf(tw, "\t\tdev_%d_%d\t% X\n", f.DevIndex, f.Num, f.Data)
				}
			}
			tw.Flush()
			idx := r.Index()
			fmt.Fprintf(a.out, "%d messages, %d definitions, %d segments\n", len(idx.Messages), idx.Definitions, len(idx.Segments))
			return nil
		},
	}
}

func recordFlags(m *fit.Message) string {
	var flags []string
	if m.Arch == fit.ArchBigEndian {
		flags = append(flags, "big-endian")
	}
	if m.Compressed {
		flags = append(flags, fmt.Sprintf("compressed +%ds", m.TimeOffset))
	}
	if len(flags) == 0 {
		return ""
	}
	return ", " + strings.Join(flags, ", ")
}
