// Package order builds the dependency graph from the working dataset and
// produces a deterministic, dependency-respecting linear order.
//
// The graph is derived, never persisted: node = module name, edge A→B
// means "B depends on A" (A installs first). Kahn's algorithm drives the
// sort; the ready tier is re-sorted lexicographically before every
// dequeue, so the output is reproducible across runs regardless of map
// iteration order.
//
// Cycles do not fail the sort. Every name left unvisited when the queue
// drains (cycle members and anything reachable only through them) is
// appended to the result lexicographically sorted, and reported so the
// caller can log a warning. The result is always a total order over the
// dataset.
package order

import (
	"sort"

	"github.com/matzehuels/zefline/pkg/catalog"
)

// Result is the outcome of one topological sort.
type Result struct {
	// Order lists every module name in the dataset exactly once,
	// dependencies before dependents wherever the graph allows.
	Order []string

	// Cyclic lists the names appended by the cycle fallback, sorted.
	// Empty for an acyclic dataset.
	Cyclic []string
}

// Sort produces the install order for the working dataset. Dependencies on
// names absent from the dataset contribute no edge and no in-degree; they
// are modules outside the ecosystem's reach and the installer cannot act
// on them anyway.
func Sort(records map[string]catalog.Record) Result {
	dependents := make(map[string][]string, len(records))
	inDegree := make(map[string]int, len(records))

	for name := range records {
		inDegree[name] = 0
	}
	for name, rec := range records {
		for _, dep := range rec.Dependencies {
			if _, present := records[dep]; !present {
				continue
			}
			if dep == name {
				continue
			}
			dependents[dep] = append(dependents[dep], name)
			inDegree[name]++
		}
	}

	ready := make([]string, 0, len(records))
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	ordered := make([]string, 0, len(records))
	for len(ready) > 0 {
		// Re-sort at every step, not just once at initialization: the
		// tier changes as nodes drain and determinism depends on always
		// dequeuing the lexicographically smallest ready name.
		sort.Strings(ready)
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, name)

		for _, dependent := range dependents[name] {
			if inDegree[dependent]--; inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	res := Result{Order: ordered}
	if len(ordered) < len(records) {
		visited := make(map[string]bool, len(ordered))
		for _, name := range ordered {
			visited[name] = true
		}
		for name := range records {
			if !visited[name] {
				res.Cyclic = append(res.Cyclic, name)
			}
		}
		sort.Strings(res.Cyclic)
		res.Order = append(res.Order, res.Cyclic...)
	}
	return res
}

// Identities maps an ordered name list to the corresponding identity
// strings, the form the published list carries.
func Identities(names []string, records map[string]catalog.Record) []string {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if rec, ok := records[name]; ok {
			ids = append(ids, rec.Identity)
		}
	}
	return ids
}
