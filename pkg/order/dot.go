package order

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/matzehuels/zefline/pkg/catalog"
)

// ToDOT renders the dependency graph as Graphviz DOT text for inspection.
// Nodes and edges are emitted in sorted order so the output is stable.
// Edges point dependency → dependent, matching install direction.
func ToDOT(records map[string]catalog.Record) string {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteString("digraph deps {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  node [shape=box, style=rounded, fontsize=12];\n")
	buf.WriteString("\n")

	for _, name := range names {
		rec := records[name]
		fmt.Fprintf(&buf, "  %q [label=\"%s\\n%s\"];\n", name, name, rec.Version)
	}

	buf.WriteString("\n")
	for _, name := range names {
		deps := append([]string(nil), records[name].Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, present := records[dep]; present {
				fmt.Fprintf(&buf, "  %q -> %q;\n", dep, name)
			}
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}
