// Package pipeline orchestrates one full catalog run: discover candidates
// from every configured repository, arbitrate winners, diff against the
// persisted catalog, resolve dependencies for new and stale modules,
// rebuild the dependency graph, and publish the install order.
//
// # Stages
//
// A run moves through a fixed sequence of stages, none re-entered:
//
//	Discovering → Diffing → Resolving → GraphBuilding → Publishing → Done
//
// Resolving is the only stage with per-item failure isolation: one
// module's failed dependency query or exhausted persistence retries is
// logged and skipped, never fatal. Discovery yielding no candidates at
// all, and any structural inconsistency during the sort, abort the run
// before the published list is touched.
//
// # Resumability
//
// Each resolved record is persisted immediately after it is computed, so
// an interrupted run leaves the store correct for everything processed so
// far. A re-run's diff sees those records as current and skips them.
package pipeline

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/zefline/pkg/identity"
)

// Stage identifies one step of a run's state machine.
type Stage int

// Run stages, in execution order.
const (
	StageIdle Stage = iota
	StageDiscovering
	StageDiffing
	StageResolving
	StageGraphBuilding
	StagePublishing
	StageDone
)

var stageNames = map[Stage]string{
	StageIdle:          "idle",
	StageDiscovering:   "discovering",
	StageDiffing:       "diffing",
	StageResolving:     "resolving",
	StageGraphBuilding: "graph-building",
	StagePublishing:    "publishing",
	StageDone:          "done",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "unknown"
}

// Options configures one run.
type Options struct {
	// Repositories to scan, in priority order. Earlier repositories win
	// version ties. Required.
	Repositories []string

	// Refresh skips the cache load so every live module is classified as
	// new and re-resolved. Persisted records are overwritten as the run
	// progresses.
	Refresh bool

	// DryRun computes the order but skips publishing it.
	DryRun bool

	// Logger for run progress. Defaults to log.Default().
	Logger *log.Logger
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// Stats carries per-stage timings and dataset counts for one run.
type Stats struct {
	Discovered int // raw candidates across all repositories
	Winners    int // distinct module names after arbitration
	New        int
	Stale      int
	Reused     int
	Resolved   int // dependency queries actually performed

	DiscoverTime time.Duration
	DiffTime     time.Duration
	ResolveTime  time.Duration
	GraphTime    time.Duration
	PublishTime  time.Duration
}

// Result is the outcome of one run.
type Result struct {
	// Order is the final install order as module names.
	Order []string

	// Identities is Order mapped to identity strings, exactly what was
	// (or, in a dry run, would have been) published.
	Identities []string

	// Cyclic lists modules placed by the cycle fallback, sorted. Empty
	// for an acyclic dataset.
	Cyclic []string

	// Unresolved lists modules whose dependency query failed and were
	// recorded with an empty dependency list. Callers should audit these:
	// their install position may be earlier than correct.
	Unresolved []string

	// FailedPersist lists modules dropped from this run because their
	// record could not be persisted after retries. A later run re-queues
	// them as new.
	FailedPersist []string

	Stats Stats
}

// Warnings reports how many non-fatal conditions the run accumulated.
func (r *Result) Warnings() int {
	n := len(r.Unresolved) + len(r.FailedPersist)
	if len(r.Cyclic) > 0 {
		n++
	}
	return n
}

// discovery is the arbitrated output of the discovering stage.
type discovery struct {
	candidates []identity.Candidate
	winners    map[string]identity.Candidate
}
