package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"example.com/fitfaker/internal/common"
	"example.com/fitfaker/internal/config"
	"example.com/fitfaker/internal/fit"
	"example.com/fitfaker/internal/rewrite"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// app carries the state shared by every subcommand once the root Before hook
// has loaded the configuration.
type app struct {
	out       io.Writer
	errOut    io.Writer
	cfg       config.Config
	logCloser io.Closer
}

func newApp(out, errOut io.Writer) (*app, *cli.Command) {
	a := &app{out: out, errOut: errOut, cfg: config.Default()}
	root := &cli.Command{
		Name:      "fitctl",
		Usage:     "rewrite the recording device identity of FIT activity files",
		Version:   fmt.Sprintf("%s (built %s)", version, buildDate),
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to fitctl.yaml"},
			&cli.StringFlag{Name: "log-file", Usage: "mirror the log to a rotating file"},
			&cli.BoolFlag{Name: "verbose", Usage: "log per-file details"},
		},
		Before: a.setup,
		After: func(ctx context.Context, cmd *cli.Command) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
		// exit codes are mapped in main so tests can drive the app
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands: []*cli.Command{
			a.convertCmd(),
			a.batchCmd(),
			a.verifyCmd(),
			a.inspectCmd(),
			a.devicesCmd(),
		},
	}
	return a, root
}

func (a *app) setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return ctx, cli.Exit(fmt.Sprintf("config: %v", err), 2)
		}
		a.cfg = cfg
	}
	if file := cmd.String("log-file"); file != "" {
		a.cfg.Logs.File = file
	}
	common.SetVerbose(cmd.Bool("verbose"))
	closer, err := common.SetupLogging(a.cfg.Logs)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("logging: %v", err), 2)
	}
	a.logCloser = closer
	return ctx, nil
}

// targetFlags override the configured target device.
func targetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "manufacturer", Usage: "target manufacturer name or code"},
		&cli.IntFlag{Name: "product", Usage: "target product code"},
	}
}

func (a *app) target(cmd *cli.Command) (rewrite.Target, fit.ProductTable, error) {
	target := a.cfg.ToTarget()
	if s := strings.TrimSpace(cmd.String("manufacturer")); s != "" {
		code, err := parseManufacturer(s)
		if err != nil {
			return target, nil, err
		}
		target.Manufacturer = code
	}
	if p := cmd.Int("product"); p != 0 {
		if p < 0 || p > 0xFFFE {
			return target, nil, fmt.Errorf("product %d out of range", p)
		}
		target.Product = uint16(p)
	}
	return target, a.cfg.Catalog(), nil
}

func parseManufacturer(s string) (uint16, error) {
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		return uint16(n), nil
	}
	code, ok := fit.LookupManufacturer(s)
	if !ok {
		return 0, fmt.Errorf("unknown manufacturer %q", s)
	}
	return code, nil
}

func main() {
	_, root := newApp(os.Stdout, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.Run(ctx, os.Args)
	stop()
	if err == nil {
		return
	}
	code := 1
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		code = ec.ExitCode()
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}
