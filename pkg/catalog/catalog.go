// Package catalog holds the persisted data model of the ecosystem graph
// engine and the pure decision logic that operates on it: version
// arbitration across repositories and diff planning against the cached
// state.
//
// # Data Model
//
// A [Record] is the canonical, persisted description of one module: its
// winning version, provenance, and cleaned dependency list. At most one
// Record exists per module name; it is written whole or not at all.
//
// # Arbitration
//
// Candidates are scanned from a fixed, ordered list of repositories. The
// scan order is itself the priority policy: a later repository's candidate
// replaces the current winner only when its version is strictly greater.
// Equal versions keep the earlier repository's candidate.
package catalog

import (
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/zefline/pkg/identity"
	"github.com/matzehuels/zefline/pkg/version"
)

// Record is the persisted unit: one module's resolved version and
// dependencies. Dependencies contain bare module names only, deduplicated,
// with runtime noise entries excluded.
type Record struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Auth         string    `json:"auth,omitempty"`
	API          string    `json:"api,omitempty"`
	SourceRepo   string    `json:"source_repo"`
	Identity     string    `json:"identity"`
	Dependencies []string  `json:"dependencies"`
	LastScanned  time.Time `json:"last_scanned"`
}

// Valid reports whether the record has the minimal shape the engine relies
// on. Records failing this check are treated as cache misses.
func (r *Record) Valid() bool {
	return r != nil && r.Name != "" && r.Version != "" && r.Identity != ""
}

// FromCandidate creates a Record for a freshly resolved candidate.
func FromCandidate(c identity.Candidate, deps []string, scanned time.Time) Record {
	if deps == nil {
		deps = []string{}
	}
	return Record{
		Name:         c.Name,
		Version:      c.Version,
		Auth:         c.Auth,
		API:          c.API,
		SourceRepo:   c.SourceRepo,
		Identity:     c.Identity,
		Dependencies: deps,
		LastScanned:  scanned,
	}
}

// Winners folds candidates into one winner per module name. The slice must
// be ordered by repository priority (all of repository 1's candidates
// before repository 2's, and so on): a candidate replaces the current
// winner only when its version is strictly greater, so on equal versions
// the earlier repository wins.
func Winners(candidates []identity.Candidate) map[string]identity.Candidate {
	winners := make(map[string]identity.Candidate)
	for _, c := range candidates {
		cur, seen := winners[c.Name]
		if !seen || version.Less(cur.Version, c.Version) {
			winners[c.Name] = c
		}
	}
	return winners
}

// Plan is the output of diffing live winners against the cached state.
type Plan struct {
	// Resolve holds candidates needing a dependency query, sorted by name
	// for deterministic processing order. New and stale modules both land
	// here.
	Resolve []identity.Candidate

	// Reuse holds cached records copied into the working dataset
	// unchanged, keyed by name.
	Reuse map[string]Record

	// Counts for reporting.
	New, Stale, Reused int
}

// Diff classifies each live winner against the bulk-loaded cache:
//
//   - absent from cache (or cached payload malformed): new, queued.
//   - cached version older than live: stale, the live candidate is queued.
//   - cached version equal or newer: reuse, the cached record is kept.
//
// Cached modules absent from live are dropped from the working dataset;
// scrubbing their persisted records is an out-of-band concern.
func Diff(live map[string]identity.Candidate, cached map[string]*Record) Plan {
	plan := Plan{Reuse: make(map[string]Record)}

	for name, cand := range live {
		rec := cached[name]
		switch {
		case !rec.Valid():
			plan.New++
			plan.Resolve = append(plan.Resolve, cand)
		case version.Less(rec.Version, cand.Version):
			plan.Stale++
			plan.Resolve = append(plan.Resolve, cand)
		default:
			plan.Reused++
			plan.Reuse[name] = *rec
		}
	}

	slices.SortFunc(plan.Resolve, func(a, b identity.Candidate) int {
		return strings.Compare(a.Name, b.Name)
	})
	return plan
}
