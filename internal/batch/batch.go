// Package batch discovers FIT files and converts them independently across a
// bounded pool of workers.
package batch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/fitfaker/internal/common"
	"example.com/fitfaker/internal/convert"
)

// DefaultSuffix is inserted before the extension of every output file.
const DefaultSuffix = "_modified"

const gzipFITExt = ".fit.gz"

// Converter converts one file. *convert.Converter satisfies it.
type Converter interface {
	Convert(ctx context.Context, in, out string) (convert.Result, error)
}

// splitExt splits path into stem and extension, treating .fit.gz as one
// extension.
func splitExt(path string) (string, string) {
	if len(path) >= len(gzipFITExt) && strings.EqualFold(path[len(path)-len(gzipFITExt):], gzipFITExt) {
		return path[:len(path)-len(gzipFITExt)], path[len(path)-len(gzipFITExt):]
	}
	ext := filepath.Ext(path)
	if strings.ContainsRune(ext, filepath.Separator) {
		ext = ""
	}
	return path[:len(path)-len(ext)], ext
}

// OutputPath inserts suffix before the extension of input, or appends it
// when input has no extension.
func OutputPath(input, suffix string) string {
	stem, ext := splitExt(input)
	return stem + suffix + ext
}

// IsFIT reports whether path names a FIT file, optionally gzip-compressed.
func IsFIT(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".fit") || strings.HasSuffix(lower, gzipFITExt)
}

// IsConverted reports whether path already carries suffix.
func IsConverted(path, suffix string) bool {
	if suffix == "" {
		return false
	}
	stem, _ := splitExt(filepath.Base(path))
	return strings.HasSuffix(stem, suffix)
}

// Discovery is the result of scanning for inputs.
type Discovery struct {
	Root    string
	Files   []string
	Skipped []string
}

// Discover finds FIT files under root. root may also name a single file.
// Files already carrying suffix are skipped and logged.
func Discover(root, suffix string, recursive bool) (Discovery, error) {
	d := Discovery{Root: root}
	info, err := os.Stat(root)
	if err != nil {
		return d, err
	}
	consider := func(path string) {
		if !IsFIT(path) {
			return
		}
		if IsConverted(path, suffix) {
			common.Logf("skipping %s: already converted", path)
			d.Skipped = append(d.Skipped, path)
			return
		}
		d.Files = append(d.Files, path)
	}
	if !info.IsDir() {
		d.Root = filepath.Dir(root)
		consider(root)
		return d, nil
	}
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != root && (!recursive || strings.HasPrefix(entry.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.Type().IsRegular() {
			consider(path)
		}
		return nil
	})
	sort.Strings(d.Files)
	sort.Strings(d.Skipped)
	return d, err
}

// Options configures Run.
type Options struct {
	Workers int
	Suffix  string
	// OutDir mirrors the input tree below Root into a separate directory.
	// Outputs are written next to their inputs when empty.
	OutDir string
	// NoClobber fails files whose output already exists instead of
	// replacing it.
	NoClobber bool
	RunID     string
}

// Job is one planned conversion.
type Job struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Plan derives the output path for every discovered file.
func Plan(d Discovery, opts Options) []Job {
	suffix := opts.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	jobs := make([]Job, 0, len(d.Files))
	for _, in := range d.Files {
		out := OutputPath(in, suffix)
		if opts.OutDir != "" {
			rel, err := filepath.Rel(d.Root, in)
			if err != nil || strings.HasPrefix(rel, "..") {
				rel = filepath.Base(in)
			}
			out = filepath.Join(opts.OutDir, OutputPath(rel, suffix))
		}
		jobs = append(jobs, Job{Input: in, Output: out})
	}
	return jobs
}

// FileResult is the outcome for one file.
type FileResult struct {
	Job
	Result *convert.Result `json:"result,omitempty"`
	Kind   convert.Kind    `json:"kind,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// OK reports whether the file converted.
func (r FileResult) OK() bool {
	return r.Error == ""
}

// Summary aggregates a batch.
type Summary struct {
	RunID     string       `json:"runId"`
	Started   time.Time    `json:"started"`
	Finished  time.Time    `json:"finished"`
	Target    string       `json:"target,omitempty"`
	Found     int          `json:"found"`
	Skipped   int          `json:"skipped"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Canceled  int          `json:"canceled,omitempty"`
	Recovered int          `json:"recovered"`
	Results   []FileResult `json:"results"`
}

// Attempted returns the number of files a conversion was started for.
func (s Summary) Attempted() int {
	return s.Succeeded + s.Failed
}

// NewRunID returns a fresh identifier for a batch run.
func NewRunID() string {
	return uuid.NewString()
}

var errOutputExists = errors.New("output exists")

// Execute plans and runs a discovered batch.
func Execute(ctx context.Context, conv Converter, d Discovery, opts Options) Summary {
	sum := Run(ctx, conv, Plan(d, opts), opts)
	sum.Skipped = len(d.Skipped)
	sum.Found += sum.Skipped
	return sum
}

// Run converts every job. Per-file failures are recorded and do not stop the
// batch. Results keep the order of jobs.
func Run(ctx context.Context, conv Converter, jobs []Job, opts Options) Summary {
	sum := Summary{
		RunID:   opts.RunID,
		Started: time.Now().UTC(),
		Found:   len(jobs),
		Results: make([]FileResult, len(jobs)),
	}
	if sum.RunID == "" {
		sum.RunID = NewRunID()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				sum.Results[i] = runOne(ctx, conv, jobs[i], opts)
			}
		}()
	}
dispatch:
	for i := range jobs {
		select {
		case queue <- i:
		case <-ctx.Done():
			for j := i; j < len(jobs); j++ {
				sum.Results[j] = FileResult{Job: jobs[j], Kind: convert.KindCanceled, Error: ctx.Err().Error()}
			}
			break dispatch
		}
	}
	close(queue)
	wg.Wait()

	for _, r := range sum.Results {
		switch {
		case r.OK():
			sum.Succeeded++
			if r.Result.Recovered {
				sum.Recovered++
			}
		case r.Kind == convert.KindCanceled:
			sum.Canceled++
		default:
			sum.Failed++
		}
	}
	sum.Finished = time.Now().UTC()
	return sum
}

func runOne(ctx context.Context, conv Converter, job Job, opts Options) FileResult {
	fr := FileResult{Job: job}
	if opts.NoClobber {
		if _, err := os.Stat(job.Output); err == nil {
			fr.Kind = convert.KindOutputWrite
			fr.Error = errOutputExists.Error() + ": " + job.Output
			common.Logf("%s: %s", job.Input, fr.Error)
			return fr
		}
	}
	if dir := filepath.Dir(job.Output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fr.Kind = convert.KindOutputWrite
			fr.Error = err.Error()
			common.Logf("%s: %v", job.Input, err)
			return fr
		}
	}
	res, err := conv.Convert(ctx, job.Input, job.Output)
	if err != nil {
		fr.Kind = convert.KindOf(err)
		fr.Error = err.Error()
		common.Logf("FAILED %s: %v", job.Input, err)
		return fr
	}
	fr.Result = &res
	common.Logf("converted %s -> %s (%d messages, %d identity modified)", job.Input, job.Output, res.MessagesProcessed, res.IdentityModified)
	return fr
}

// ExitCode returns the process status for a finished batch: 2 when no FIT
// file was found, 1 when files were attempted or canceled and none
// succeeded, 0 otherwise. A directory holding only converted outputs is not
// an error.
func ExitCode(s Summary) int {
	switch {
	case s.Found == 0:
		return 2
	case s.Succeeded == 0 && s.Attempted()+s.Canceled > 0:
		return 1
	default:
		return 0
	}
}
