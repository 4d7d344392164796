package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fitfaker/internal/convert"
	"example.com/fitfaker/internal/fit/fittest"
	"example.com/fitfaker/internal/rewrite"
)

func touch(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestOutputPath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"ride.fit", "ride_modified.fit"},
		{"Ride.FIT", "Ride_modified.FIT"},
		{"ride.fit.gz", "ride_modified.fit.gz"},
		{"ride.FIT.GZ", "ride_modified.FIT.GZ"},
		{"ride", "ride_modified"},
		{filepath.Join("a.b", "ride"), filepath.Join("a.b", "ride_modified")},
		{filepath.Join("a.b", "ride.fit"), filepath.Join("a.b", "ride_modified.fit")},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, OutputPath(tc.in, DefaultSuffix), tc.in)
	}
	require.Equal(t, "ride-z.fit", OutputPath("ride.fit", "-z"))
}

func TestIsConverted(t *testing.T) {
	require.True(t, IsConverted("x/ride_modified.fit", DefaultSuffix))
	require.True(t, IsConverted("ride_modified.fit.gz", DefaultSuffix))
	require.False(t, IsConverted("ride.fit", DefaultSuffix))
	require.False(t, IsConverted("ride_modified.fit", ""))
	require.True(t, IsFIT("a.FIT"))
	require.True(t, IsFIT("a.fit.gz"))
	require.False(t, IsFIT("a.gz"))
	require.False(t, IsFIT("a.tcx"))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.fit"), nil)
	touch(t, filepath.Join(root, "a.FIT"), nil)
	touch(t, filepath.Join(root, "a_modified.FIT"), nil)
	touch(t, filepath.Join(root, "notes.txt"), nil)
	touch(t, filepath.Join(root, "sub", "c.fit.gz"), nil)
	touch(t, filepath.Join(root, ".cache", "d.fit"), nil)

	d, err := Discover(root, DefaultSuffix, false)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(root, "a.FIT"), filepath.Join(root, "b.fit")}, d.Files)
	require.Equal(t, []string{filepath.Join(root, "a_modified.FIT")}, d.Skipped)

	d, err = Discover(root, DefaultSuffix, true)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(root, "a.FIT"),
		filepath.Join(root, "b.fit"),
		filepath.Join(root, "sub", "c.fit.gz"),
	}, d.Files)

	d, err = Discover(filepath.Join(root, "b.fit"), DefaultSuffix, false)
	require.NoError(t, err)
	require.Equal(t, root, d.Root)
	require.Equal(t, []string{filepath.Join(root, "b.fit")}, d.Files)

	_, err = Discover(filepath.Join(root, "missing"), DefaultSuffix, false)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPlanWithOutDir(t *testing.T) {
	d := Discovery{
		Root:  "in",
		Files: []string{filepath.Join("in", "a.fit"), filepath.Join("in", "sub", "b.fit.gz")},
	}
	jobs := Plan(d, Options{OutDir: "out"})
	require.Equal(t, []Job{
		{Input: filepath.Join("in", "a.fit"), Output: filepath.Join("out", "a_modified.fit")},
		{Input: filepath.Join("in", "sub", "b.fit.gz"), Output: filepath.Join("out", "sub", "b_modified.fit.gz")},
	}, Plan(d, Options{OutDir: "out"}))
	require.Len(t, jobs, 2)

	jobs = Plan(d, Options{Suffix: "_edge"})
	require.Equal(t, filepath.Join("in", "a_edge.fit"), jobs[0].Output)
}

type fakeConverter struct {
	calls atomic.Int32
	fail  map[string]error
}

func (f *fakeConverter) Convert(ctx context.Context, in, out string) (convert.Result, error) {
	f.calls.Add(1)
	if err := f.fail[filepath.Base(in)]; err != nil {
		return convert.Result{}, err
	}
	return convert.Result{Input: in, Output: out, MessagesProcessed: 1, Recovered: filepath.Base(in) == "r.fit"}, nil
}

func TestRunKeepsOrderAndCountsFailures(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeConverter{fail: map[string]error{
		"bad.fit": &convert.Error{Kind: convert.KindIntegrity, Path: "bad.fit", Err: errors.New("crc")},
	}}
	var jobs []Job
	for _, name := range []string{"a.fit", "bad.fit", "r.fit", "c.fit"} {
		in := filepath.Join(dir, name)
		jobs = append(jobs, Job{Input: in, Output: OutputPath(in, DefaultSuffix)})
	}

	sum := Run(context.Background(), fake, jobs, Options{Workers: 3, RunID: "run-1"})
	require.Equal(t, "run-1", sum.RunID)
	require.EqualValues(t, 4, fake.calls.Load())
	require.Equal(t, 4, sum.Found)
	require.Equal(t, 3, sum.Succeeded)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 1, sum.Recovered)
	require.Equal(t, 4, sum.Attempted())
	for i, r := range sum.Results {
		require.Equal(t, jobs[i], r.Job)
	}
	require.False(t, sum.Results[1].OK())
	require.Equal(t, convert.KindIntegrity, sum.Results[1].Kind)
	require.Equal(t, 0, ExitCode(sum))
}

func TestRunNoClobber(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.fit")
	out := OutputPath(in, DefaultSuffix)
	touch(t, out, []byte("old"))
	fake := &fakeConverter{}

	sum := Run(context.Background(), fake, []Job{{Input: in, Output: out}}, Options{NoClobber: true})
	require.Zero(t, fake.calls.Load())
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, convert.KindOutputWrite, sum.Results[0].Kind)
	require.Equal(t, 1, ExitCode(sum))

	sum = Run(context.Background(), fake, []Job{{Input: in, Output: out}}, Options{})
	require.Equal(t, 1, sum.Succeeded)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	jobs := []Job{{Input: "a.fit", Output: "a_modified.fit"}, {Input: "b.fit", Output: "b_modified.fit"}}
	sum := Run(ctx, &fakeConverter{}, jobs, Options{Workers: 1})
	require.Len(t, sum.Results, 2)
	require.Equal(t, 2, sum.Succeeded+sum.Canceled)
	require.Zero(t, sum.Failed)
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		sum  Summary
		want int
	}{
		{"nothing found", Summary{}, 2},
		{"all skipped", Summary{Found: 2, Skipped: 2}, 0},
		{"all failed", Summary{Found: 2, Failed: 2}, 1},
		{"some failed", Summary{Found: 3, Failed: 2, Succeeded: 1}, 0},
		{"all canceled", Summary{Found: 1, Canceled: 1}, 1},
		{"all ok", Summary{Found: 1, Succeeded: 1}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ExitCode(tc.sum))
		})
	}
}

func TestExecuteConvertsDirectory(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "ride.fit"), fittest.ZwiftRide().Bytes())
	touch(t, filepath.Join(root, "rich.fit"), fittest.RichActivity().Bytes())
	touch(t, filepath.Join(root, "broken.fit"), []byte("not a fit file at all"))
	touch(t, filepath.Join(root, "old_modified.fit"), fittest.ZwiftRide().Bytes())

	conv, err := convert.New(convert.Options{Target: rewrite.DefaultTarget})
	require.NoError(t, err)
	d, err := Discover(root, DefaultSuffix, false)
	require.NoError(t, err)

	sum := Execute(context.Background(), conv, d, Options{Workers: 2})
	require.Equal(t, 4, sum.Found)
	require.Equal(t, 1, sum.Skipped)
	require.Equal(t, 2, sum.Succeeded)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 0, ExitCode(sum))

	require.FileExists(t, filepath.Join(root, "ride_modified.fit"))
	require.FileExists(t, filepath.Join(root, "rich_modified.fit"))
	require.NoFileExists(t, filepath.Join(root, "broken_modified.fit"))
	require.NoFileExists(t, filepath.Join(root, "old_modified_modified.fit"))

	// a second run only finds converted outputs
	d, err = Discover(root, DefaultSuffix, false)
	require.NoError(t, err)
	require.Len(t, d.Files, 3)
	require.Len(t, d.Skipped, 3)
}

func TestExecuteEmptyDirectory(t *testing.T) {
	conv, err := convert.New(convert.Options{Target: rewrite.DefaultTarget})
	require.NoError(t, err)
	d, err := Discover(t.TempDir(), DefaultSuffix, true)
	require.NoError(t, err)
	sum := Execute(context.Background(), conv, d, Options{})
	require.Equal(t, 2, ExitCode(sum))
}
