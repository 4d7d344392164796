// Package convert drives a single file through decode, identity rewrite and
// re-encode.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"example.com/fitfaker/internal/common"
	"example.com/fitfaker/internal/fit"
	"example.com/fitfaker/internal/rewrite"
)

// outputMode is applied to converted files before they are renamed into place.
const outputMode = 0o644

// Options configures a Converter.
type Options struct {
	Target  rewrite.Target
	Catalog fit.ProductCatalog
	// Audit receives one entry per changed identity field.
	Audit   *common.AuditLog
	Metrics *common.Metrics
	// BlockSize is the read buffer used for uncompressed inputs.
	BlockSize int
	// GzipLevel applies to outputs ending in .gz.
	GzipLevel int
}

// Result summarizes one successful conversion.
type Result struct {
	Input             string        `json:"input"`
	Output            string        `json:"output"`
	MessagesProcessed int           `json:"messagesProcessed"`
	IdentityMessages  int           `json:"identityMessages"`
	IdentityModified  int           `json:"identityModified"`
	FieldsChanged     int           `json:"fieldsChanged"`
	ExpandedStripped  int           `json:"expandedStripped"`
	Definitions       int           `json:"definitions"`
	Recovered         bool          `json:"recovered"`
	BytesIn           int64         `json:"bytesIn"`
	BytesOut          int64         `json:"bytesOut"`
	Duration          time.Duration `json:"duration"`
}

// Converter rewrites FIT files to a fixed target device. A Converter holds no
// per-file state; one instance may serve many goroutines.
type Converter struct {
	rw   *rewrite.Rewriter
	opts Options
}

// New resolves the target and returns a Converter. It fails with
// rewrite.ErrUnknownProduct when the target has no product name.
func New(opts Options) (*Converter, error) {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = fit.DefaultProducts
	}
	rw, err := rewrite.NewRewriter(opts.Target, catalog)
	if err != nil {
		return nil, err
	}
	if opts.GzipLevel == 0 {
		opts.GzipLevel = gzip.DefaultCompression
	}
	return &Converter{rw: rw, opts: opts}, nil
}

// Device returns the resolved target device.
func (c *Converter) Device() rewrite.Device {
	return c.rw.Device()
}

// Convert reads the FIT file at in and writes the rewritten file to out. out
// is only created or replaced when the conversion succeeds.
func (c *Converter) Convert(ctx context.Context, in, out string) (res Result, err error) {
	start := time.Now()
	res = Result{Input: in, Output: out}
	if c.opts.Metrics != nil {
		defer func() { c.opts.Metrics.AddFile(err != nil) }()
	}

	src, size, closeSrc, err := openInput(in)
	if err != nil {
		return res, err
	}
	defer closeSrc()
	res.BytesIn = size
	if c.opts.Metrics != nil {
		c.opts.Metrics.AddTotalBytes(size)
	}

	if same, err := samePath(in, out); err == nil && same {
		return res, &Error{Kind: KindOutputWrite, Path: out, Err: errors.New("output would overwrite input")}
	}

	if _, err := fit.CheckIntegrity(src, size); err != nil {
		return res, &Error{Kind: KindIntegrity, Path: in, Err: err}
	}

	// each pass counts into its own metrics; a pass that is retried is dropped
	pass := c.passMetrics()
	run, err := c.attempt(ctx, src, size, in, out, false, pass)
	if errors.Is(err, fit.ErrRecoverableFraming) {
		common.Logf("%s: %v; retrying with resync", in, err)
		res.Recovered = true
		pass = c.passMetrics()
		run, err = c.attempt(ctx, src, size, in, out, true, pass)
		if errors.Is(err, fit.ErrRecoverableFraming) {
			err = fmt.Errorf("%w: %v", fit.ErrMalformed, err)
		}
	}
	if pass != nil {
		c.opts.Metrics.Merge(pass)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return res, &Error{Kind: KindCanceled, Path: in, Err: err}
		}
		kind := classify(err)
		path := in
		if kind == KindOutputWrite {
			path = out
		}
		return res, &Error{Kind: kind, Path: path, Err: err}
	}

	res.MessagesProcessed = run.messages
	res.IdentityMessages = run.identity
	res.IdentityModified = run.modified
	res.FieldsChanged = len(run.audit)
	res.ExpandedStripped = run.stripped
	res.Definitions = run.definitions
	res.BytesOut = run.bytesOut
	res.Duration = time.Since(start)

	if c.opts.Audit != nil && len(run.audit) > 0 {
		if err := c.opts.Audit.Append(run.audit...); err != nil {
			common.Logf("audit log %s: %v", c.opts.Audit.Path(), err)
		}
	}
	common.Debugf("%s -> %s: %d messages, %d identity (%d modified), %d expanded fields stripped",
		in, out, res.MessagesProcessed, res.IdentityMessages, res.IdentityModified, res.ExpandedStripped)
	return res, nil
}

func (c *Converter) passMetrics() *common.Metrics {
	if c.opts.Metrics == nil {
		return nil
	}
	return common.NewMetrics()
}

type attemptResult struct {
	messages    int
	identity    int
	modified    int
	stripped    int
	definitions int
	bytesOut    int64
	audit       []common.AuditEntry
}

// attempt runs one full decode/rewrite/encode pass into a temporary file
// next to out and renames it into place on success. Cancellation is only
// observed before the pass starts; a started file runs to completion.
func (c *Converter) attempt(ctx context.Context, src io.ReaderAt, size int64, in, out string, resync bool, metrics *common.Metrics) (attemptResult, error) {
	var run attemptResult
	if err := ctx.Err(); err != nil {
		return run, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".fitfaker-*.tmp")
	if err != nil {
		return run, fmt.Errorf("%w: %v", fit.ErrOutputWrite, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	r := fit.NewReader(src, size, fit.Options{Resync: resync, BlockSize: c.opts.BlockSize, Metrics: metrics})
	defer r.Close()
	w, err := fit.NewWriter(tmp, fit.WriterOptions{})
	if err != nil {
		return run, err
	}

	for {
		m, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return run, err
		}
		run.stripped += rewrite.StripExpanded(m)
		outcome := c.rw.Rewrite(m)
		if outcome.Identity {
			run.identity++
		}
		if outcome.Modified() {
			run.modified++
			for _, ch := range outcome.Changes {
				run.audit = append(run.audit, common.AuditEntry{
					Path:         in,
					MessageIndex: run.messages,
					Offset:       m.Offset,
					Message:      m.Kind.Name(),
					Field:        ch.Field,
					Before:       ch.Before,
					After:        ch.After,
				})
			}
		}
		if err := w.Write(m); err != nil {
			return run, err
		}
		run.messages++
	}
	if err := w.Close(); err != nil {
		return run, err
	}
	run.definitions = w.Definitions()
	run.bytesOut = w.Size()

	final := tmpPath
	if isGzipPath(out) {
		gzPath, n, err := c.compress(tmp, out)
		if err != nil {
			return run, fmt.Errorf("%w: %v", fit.ErrOutputWrite, err)
		}
		defer os.Remove(gzPath)
		final = gzPath
		run.bytesOut = n
	}
	if err := tmp.Close(); err != nil {
		return run, fmt.Errorf("%w: %v", fit.ErrOutputWrite, err)
	}
	if err := os.Chmod(final, outputMode); err != nil {
		return run, fmt.Errorf("%w: %v", fit.ErrOutputWrite, err)
	}
	if err := os.Rename(final, out); err != nil {
		return run, fmt.Errorf("%w: %v", fit.ErrOutputWrite, err)
	}
	committed = true
	if final != tmpPath {
		os.Remove(tmpPath)
	}
	return run, nil
}

func (c *Converter) compress(src *os.File, out string) (string, int64, error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", 0, err
	}
	dst, err := os.CreateTemp(filepath.Dir(out), ".fitfaker-*.gz.tmp")
	if err != nil {
		return "", 0, err
	}
	fail := func(err error) (string, int64, error) {
		dst.Close()
		os.Remove(dst.Name())
		return "", 0, err
	}
	zw, err := gzip.NewWriterLevel(dst, c.opts.GzipLevel)
	if err != nil {
		return fail(err)
	}
	zw.Name = strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))
	if _, err := io.Copy(zw, src); err != nil {
		return fail(err)
	}
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	info, err := dst.Stat()
	if err != nil {
		return fail(err)
	}
	if err := dst.Close(); err != nil {
		return fail(err)
	}
	return dst.Name(), info.Size(), nil
}

// openInput returns a random-access view of the decoded input. Gzip inputs
// are inflated into memory.
func openInput(path string) (io.ReaderAt, int64, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil, &Error{Kind: KindInputNotFound, Path: path, Err: err}
		}
		return nil, 0, nil, &Error{Kind: KindInputUnreadable, Path: path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, &Error{Kind: KindInputUnreadable, Path: path, Err: err}
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, nil, &Error{Kind: KindInputUnreadable, Path: path, Err: errors.New("is a directory")}
	}

	magic := make([]byte, 2)
	if n, _ := f.ReadAt(magic, 0); n < 2 || magic[0] != 0x1f || magic[1] != 0x8b {
		return f, info.Size(), func() { f.Close() }, nil
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, 0, nil, &Error{Kind: KindInputUnreadable, Path: path, Err: err}
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, 0, nil, &Error{Kind: KindInputUnreadable, Path: path, Err: fmt.Errorf("gunzip: %w", err)}
	}
	return bytes.NewReader(data), int64(len(data)), func() {}, nil
}

func isGzipPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gz")
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}
