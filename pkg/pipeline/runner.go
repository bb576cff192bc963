package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/zefline/pkg/catalog"
	"github.com/matzehuels/zefline/pkg/errors"
	"github.com/matzehuels/zefline/pkg/identity"
	"github.com/matzehuels/zefline/pkg/order"
	"github.com/matzehuels/zefline/pkg/store"
	"github.com/matzehuels/zefline/pkg/zef"
)

// Runner executes catalog runs against a store and a zef tool.
//
// The Runner is stateless across runs: the working dataset lives on the
// stack of Execute and is owned by the current stage only. All external
// calls are blocking and strictly sequential, one module at a time;
// determinism of persisted state takes priority over throughput.
type Runner struct {
	Store  *store.Store
	Tool   *zef.Tool
	Logger *log.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewRunner creates a runner. Store and Tool are required; a nil logger
// defaults to log.Default().
func NewRunner(st *store.Store, tool *zef.Tool, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Store: st, Tool: tool, Logger: logger, now: time.Now}
}

// Execute runs the full pipeline once.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	if len(opts.Repositories) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "no repositories configured")
	}

	runID := uuid.NewString()
	logger := opts.Logger.With("run", runID[:8])
	result := &Result{}

	// Stage: discovering
	start := r.now()
	disc, err := r.discover(ctx, logger, opts.Repositories)
	if err != nil {
		return nil, err
	}
	result.Stats.Discovered = len(disc.candidates)
	result.Stats.Winners = len(disc.winners)
	result.Stats.DiscoverTime = time.Since(start)
	logger.Info("discovered candidates",
		"stage", StageDiscovering,
		"candidates", result.Stats.Discovered,
		"winners", result.Stats.Winners,
		"duration", result.Stats.DiscoverTime)

	// Stage: diffing
	start = r.now()
	plan := r.diff(ctx, logger, disc.winners, opts.Refresh)
	result.Stats.New = plan.New
	result.Stats.Stale = plan.Stale
	result.Stats.Reused = plan.Reused
	result.Stats.DiffTime = time.Since(start)
	logger.Info("planned work",
		"stage", StageDiffing,
		"new", plan.New,
		"stale", plan.Stale,
		"reused", plan.Reused,
		"duration", result.Stats.DiffTime)

	// Stage: resolving
	start = r.now()
	records := r.resolve(ctx, logger, plan, result)
	result.Stats.Resolved = len(plan.Resolve)
	result.Stats.ResolveTime = time.Since(start)
	logger.Info("resolved dependencies",
		"stage", StageResolving,
		"modules", len(records),
		"unresolved", len(result.Unresolved),
		"failed", len(result.FailedPersist),
		"duration", result.Stats.ResolveTime)

	// Stage: graph building
	start = r.now()
	sorted, err := r.buildOrder(records)
	if err != nil {
		return nil, err
	}
	result.Order = sorted.Order
	result.Cyclic = sorted.Cyclic
	result.Identities = order.Identities(sorted.Order, records)
	result.Stats.GraphTime = time.Since(start)
	if len(result.Cyclic) > 0 {
		logger.Warn("dependency cycle detected, appending members to tail",
			"stage", StageGraphBuilding, "modules", result.Cyclic)
	}
	logger.Info("built install order",
		"stage", StageGraphBuilding,
		"modules", len(result.Order),
		"duration", result.Stats.GraphTime)

	// Stage: publishing
	start = r.now()
	if opts.DryRun {
		logger.Info("dry run, skipping publish", "stage", StagePublishing)
	} else {
		if err := r.Store.ReplaceOrderedList(ctx, result.Identities); err != nil {
			return nil, err
		}
		result.Stats.PublishTime = time.Since(start)
		logger.Info("published install order",
			"stage", StagePublishing,
			"identities", len(result.Identities),
			"duration", result.Stats.PublishTime)
	}

	for _, name := range result.Unresolved {
		logger.Warn("module recorded with unknown dependencies, audit install position", "module", name)
	}
	return result, nil
}

// discover lists every repository in priority order and arbitrates
// winners. A single repository failing is a warning; all of them failing,
// or zero candidates overall, is fatal: a run with no candidates must not
// replace a good published order with an empty one.
func (r *Runner) discover(ctx context.Context, logger *log.Logger, repos []string) (discovery, error) {
	var all []identity.Candidate
	failed := 0
	for _, repo := range repos {
		candidates, err := r.Tool.ListRepository(ctx, repo)
		if err != nil {
			failed++
			logger.Warn("repository listing failed", "repo", repo, "err", err)
			continue
		}
		logger.Debug("listed repository", "repo", repo, "candidates", len(candidates))
		all = append(all, candidates...)
	}
	if failed == len(repos) {
		return discovery{}, errors.New(errors.ErrCodeNoCandidates,
			"all %d repository listings failed", len(repos))
	}
	if len(all) == 0 {
		return discovery{}, errors.New(errors.ErrCodeNoCandidates,
			"repositories listed no usable candidates")
	}
	return discovery{candidates: all, winners: catalog.Winners(all)}, nil
}

// diff loads the cached catalog and classifies the live winners. A failed
// bulk load degrades to an empty cache with a warning: every module is
// re-resolved, which is slow but safe, and the run is not aborted for a
// storage hiccup.
func (r *Runner) diff(ctx context.Context, logger *log.Logger, winners map[string]identity.Candidate, refresh bool) catalog.Plan {
	var cached map[string]*catalog.Record
	if !refresh {
		var err error
		cached, err = r.Store.BulkLoad(ctx)
		if err != nil {
			logger.Warn("cache load failed, re-resolving everything", "err", err)
			cached = nil
		}
	}
	return catalog.Diff(winners, cached)
}

// resolve queries dependencies for each planned candidate, strictly
// sequentially, persisting every record immediately after it is computed.
// Failure isolation is per item: a failed dependency query degrades to an
// empty list and is surfaced in result.Unresolved; exhausted persistence
// retries drop the module from this run and surface it in
// result.FailedPersist.
func (r *Runner) resolve(ctx context.Context, logger *log.Logger, plan catalog.Plan, result *Result) map[string]catalog.Record {
	records := make(map[string]catalog.Record, len(plan.Reuse)+len(plan.Resolve))
	for name, rec := range plan.Reuse {
		records[name] = rec
	}

	for _, cand := range plan.Resolve {
		deps, err := r.Tool.Dependencies(ctx, cand.Identity, cand.Name)
		if err != nil {
			logger.Warn("dependency query failed, assuming none",
				"module", cand.Name, "err", err)
			result.Unresolved = append(result.Unresolved, cand.Name)
			deps = nil
		}

		rec := catalog.FromCandidate(cand, deps, r.now().UTC())
		if err := r.Store.Put(ctx, rec); err != nil {
			logger.Error("record not persisted after retries, skipping module",
				"module", cand.Name, "err", err)
			result.FailedPersist = append(result.FailedPersist, cand.Name)
			continue
		}
		logger.Debug("resolved module",
			"module", cand.Name, "version", cand.Version, "deps", len(rec.Dependencies))
		records[cand.Name] = rec
	}
	return records
}

// buildOrder runs the topological sort after a structural sanity pass.
// An inconsistent dataset is fatal: there is no safe partial order to
// publish.
func (r *Runner) buildOrder(records map[string]catalog.Record) (order.Result, error) {
	if len(records) == 0 {
		return order.Result{}, errors.New(errors.ErrCodeGraph, "working dataset is empty")
	}
	for name, rec := range records {
		if !rec.Valid() || rec.Name != name {
			return order.Result{}, errors.New(errors.ErrCodeGraph,
				"record for %s is structurally invalid", name)
		}
	}

	sorted := order.Sort(records)
	if len(sorted.Order) != len(records) {
		return order.Result{}, errors.New(errors.ErrCodeGraph,
			"sort produced %d of %d modules", len(sorted.Order), len(records))
	}
	return sorted, nil
}
