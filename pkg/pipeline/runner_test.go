package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zeferrors "github.com/matzehuels/zefline/pkg/errors"
	"github.com/matzehuels/zefline/pkg/store"
	"github.com/matzehuels/zefline/pkg/zef"
)

// fakeZef serves canned listings and dependency reports in place of the
// real tool.
type fakeZef struct {
	lists    map[string]string // repo -> listing output
	infos    map[string]string // identity -> report output
	failInfo map[string]bool   // identity -> subprocess failure
	failList map[string]bool   // repo -> subprocess failure

	listCalls int
	infoCalls int
}

func (f *fakeZef) Run(_ context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	switch args[0] {
	case "list":
		f.listCalls++
		repo := args[1]
		if f.failList[repo] {
			return nil, []byte("no such ecosystem"), 1, errors.New("exit status 1")
		}
		return []byte(f.lists[repo]), nil, 0, nil
	case "info":
		f.infoCalls++
		ident := args[1]
		if f.failInfo[ident] {
			return nil, []byte("could not find"), 1, errors.New("exit status 1")
		}
		return []byte(f.infos[ident]), nil, 0, nil
	}
	return nil, nil, 127, errors.New("unexpected invocation")
}

func testRunner(t *testing.T, fake *fakeZef) (*Runner, *store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	st := store.New(store.Options{
		Addr:       mr.Addr(),
		RetryDelay: 10 * time.Millisecond,
		Logger:     log.New(io.Discard),
	})
	t.Cleanup(func() { st.Close() })
	return NewRunner(st, zef.New("zef", fake, nil), log.New(io.Discard)), st
}

func basicFake() *fakeZef {
	return &fakeZef{
		lists: map[string]string{
			"fez": strings.Join([]string{
				"A:ver<1.0>",
				"B:ver<1.0>",
				"C:ver<1.0>",
				"===> noise line",
			}, "\n"),
			"cpan": "A:ver<1.0>\n", // equal version, lower priority: loses
		},
		infos: map[string]string{
			"A:ver<1.0>": "Depends: \n",
			"B:ver<1.0>": "Depends: A\n",
			"C:ver<1.0>": "Depends: A, Test\n",
		},
	}
}

func opts() Options {
	return Options{Repositories: []string{"fez", "cpan"}, Logger: log.New(io.Discard)}
}

func TestExecuteFullRun(t *testing.T) {
	fake := basicFake()
	runner, st := testRunner(t, fake)
	ctx := context.Background()

	result, err := runner.Execute(ctx, opts())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, result.Order)
	assert.Equal(t, []string{"A:ver<1.0>", "B:ver<1.0>", "C:ver<1.0>"}, result.Identities)
	assert.Equal(t, 3, result.Stats.New)
	assert.Equal(t, 4, result.Stats.Discovered, "both repositories contribute candidates")
	assert.Equal(t, 3, result.Stats.Winners)
	assert.Empty(t, result.Cyclic)
	assert.Empty(t, result.Unresolved)
	assert.Zero(t, result.Warnings())

	// The published list is exactly the computed identities, in order.
	published, err := st.OrderedList(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.Identities, published)

	// Equal-version tie: the earlier repository's candidate won.
	rec, err := st.Get(ctx, "A")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "fez", rec.SourceRepo)

	// Noise entries never become dependencies.
	rec, err = st.Get(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, rec.Dependencies)
}

func TestExecuteReusesCachedRecords(t *testing.T) {
	fake := basicFake()
	runner, _ := testRunner(t, fake)
	ctx := context.Background()

	_, err := runner.Execute(ctx, opts())
	require.NoError(t, err)
	firstInfoCalls := fake.infoCalls

	result, err := runner.Execute(ctx, opts())
	require.NoError(t, err)

	assert.Equal(t, firstInfoCalls, fake.infoCalls, "current modules are not re-resolved")
	assert.Equal(t, 3, result.Stats.Reused)
	assert.Zero(t, result.Stats.New)
	assert.Equal(t, []string{"A", "B", "C"}, result.Order)
}

func TestExecuteStaleReResolved(t *testing.T) {
	fake := basicFake()
	runner, st := testRunner(t, fake)
	ctx := context.Background()

	_, err := runner.Execute(ctx, opts())
	require.NoError(t, err)

	// B moves to 1.1 upstream.
	fake.lists["fez"] = "A:ver<1.0>\nB:ver<1.1>\nC:ver<1.0>\n"
	fake.infos["B:ver<1.1>"] = "Depends: A, C\n"

	result, err := runner.Execute(ctx, opts())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Stale)
	assert.Equal(t, 2, result.Stats.Reused)

	rec, err := st.Get(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "1.1", rec.Version)
	assert.Equal(t, []string{"A", "C"}, rec.Dependencies)
	assert.Equal(t, []string{"A", "C", "B"}, result.Order)
}

func TestExecuteRefreshBypassesCache(t *testing.T) {
	fake := basicFake()
	runner, _ := testRunner(t, fake)
	ctx := context.Background()

	_, err := runner.Execute(ctx, opts())
	require.NoError(t, err)
	firstInfoCalls := fake.infoCalls

	o := opts()
	o.Refresh = true
	result, err := runner.Execute(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, 2*firstInfoCalls, fake.infoCalls, "refresh re-queries everything")
	assert.Equal(t, 3, result.Stats.New)
}

func TestExecuteUnresolvedDegradesToEmpty(t *testing.T) {
	fake := basicFake()
	fake.failInfo = map[string]bool{"B:ver<1.0>": true}
	runner, st := testRunner(t, fake)
	ctx := context.Background()

	result, err := runner.Execute(ctx, opts())
	require.NoError(t, err, "one failed query must not fail the run")

	assert.Equal(t, []string{"B"}, result.Unresolved)
	assert.Equal(t, 1, result.Warnings())

	// B is recorded dependency-free, present in the order, and persisted
	// so the next run reuses it.
	rec, err := st.Get(ctx, "B")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Empty(t, rec.Dependencies)
	assert.Contains(t, result.Order, "B")
}

func TestExecutePersistFailureSkipsModule(t *testing.T) {
	// A name the listing grammar accepts but the store's key validation
	// rejects, so Put fails for this one module on every run.
	long := strings.Repeat("X", 300)
	fake := basicFake()
	fake.lists["fez"] += "\n" + long + ":ver<1.0>"
	fake.infos[long+":ver<1.0>"] = "Depends: A\n"
	runner, st := testRunner(t, fake)
	ctx := context.Background()

	result, err := runner.Execute(ctx, opts())
	require.NoError(t, err, "one failed persist must not fail the run")

	assert.Equal(t, []string{long}, result.FailedPersist)
	assert.Equal(t, 1, result.Warnings())
	assert.Equal(t, []string{"A", "B", "C"}, result.Order,
		"the unpersisted module is dropped from the run")

	// The published order matches what the store holds: no identity for a
	// record that was never written.
	published, err := st.OrderedList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A:ver<1.0>", "B:ver<1.0>", "C:ver<1.0>"}, published)
	rec, err := st.Get(ctx, long)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// The next run finds it still absent and re-queues it as new.
	result, err = runner.Execute(ctx, opts())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.New)
	assert.Equal(t, 3, result.Stats.Reused)
	assert.Equal(t, []string{long}, result.FailedPersist)
}

func TestExecuteOneRepoFailingIsWarning(t *testing.T) {
	fake := basicFake()
	fake.failList = map[string]bool{"cpan": true}
	runner, _ := testRunner(t, fake)

	result, err := runner.Execute(context.Background(), opts())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, result.Order)
}

func TestExecuteAllReposFailingIsFatal(t *testing.T) {
	fake := basicFake()
	fake.failList = map[string]bool{"fez": true, "cpan": true}
	runner, st := testRunner(t, fake)
	ctx := context.Background()

	// A previously published order must survive a failed discovery.
	require.NoError(t, st.ReplaceOrderedList(ctx, []string{"Old:ver<1.0>"}))

	_, err := runner.Execute(ctx, opts())
	require.Error(t, err)
	assert.True(t, zeferrors.Is(err, zeferrors.ErrCodeNoCandidates))

	published, err := st.OrderedList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Old:ver<1.0>"}, published, "failed run must not touch the published list")
}

func TestExecuteCycleFallback(t *testing.T) {
	fake := &fakeZef{
		lists: map[string]string{"fez": "A:ver<1.0>\nB:ver<1.0>\nC:ver<1.0>\n"},
		infos: map[string]string{
			"A:ver<1.0>": "Depends: B\n",
			"B:ver<1.0>": "Depends: A\n",
			"C:ver<1.0>": "Depends: \n",
		},
	}
	runner, _ := testRunner(t, fake)

	o := opts()
	o.Repositories = []string{"fez"}
	result, err := runner.Execute(context.Background(), o)
	require.NoError(t, err, "a cycle is a warning, not a failure")

	assert.Equal(t, []string{"C", "A", "B"}, result.Order)
	assert.Equal(t, []string{"A", "B"}, result.Cyclic)
	assert.Equal(t, 1, result.Warnings())
}

func TestExecuteDryRunDoesNotPublish(t *testing.T) {
	fake := basicFake()
	runner, st := testRunner(t, fake)
	ctx := context.Background()

	o := opts()
	o.DryRun = true
	result, err := runner.Execute(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, result.Order)

	published, err := st.OrderedList(ctx)
	require.NoError(t, err)
	assert.Empty(t, published, "dry run must not publish")

	// Records are still persisted: a dry run warms the cache.
	rec, err := st.Get(ctx, "A")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestExecuteNoRepositories(t *testing.T) {
	runner, _ := testRunner(t, basicFake())
	_, err := runner.Execute(context.Background(), Options{Logger: log.New(io.Discard)})
	require.Error(t, err)
	assert.True(t, zeferrors.Is(err, zeferrors.ErrCodeInvalidConfig))
}

func TestStageString(t *testing.T) {
	stages := []Stage{StageIdle, StageDiscovering, StageDiffing, StageResolving,
		StageGraphBuilding, StagePublishing, StageDone}
	want := []string{"idle", "discovering", "diffing", "resolving",
		"graph-building", "publishing", "done"}
	for i, s := range stages {
		if s.String() != want[i] {
			t.Errorf("Stage(%d).String() = %q, want %q", i, s.String(), want[i])
		}
	}
	if Stage(99).String() != "unknown" {
		t.Error("out-of-range stage should print unknown")
	}
}
