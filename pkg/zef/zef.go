// Package zef adapts the external zef tool into the two narrow operations
// the engine needs: listing a repository's modules and querying one
// module's dependencies.
//
// zef's output is free text and a trust boundary, not an API. Both parsers
// (parse of listing lines, parse of dependency reports) are isolated here
// so the grammar can change without touching the engine, and both fall
// back to "nothing usable" on mismatch rather than failing a run.
package zef

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/matzehuels/zefline/pkg/errors"
	"github.com/matzehuels/zefline/pkg/identity"
)

// DefaultBin is the zef executable name used when the config names none.
const DefaultBin = "zef"

// defaultNoise lists core runtime components that appear in dependency
// reports but are not independently installable modules. They never become
// graph edges.
var defaultNoise = []string{
	"NativeCall",
	"Test",
	"nqp",
	"perl6",
	"rakudo",
	"zef",
}

// depPrefixes marks dependency-category report lines. The deep scan takes
// runtime, build, and test dependencies alike.
var depPrefixes = []string{"Depends:", "Build-Depends:", "Test-Depends:"}

// Tool invokes zef and parses its output.
type Tool struct {
	bin    string
	runner CommandRunner
	noise  map[string]bool
}

// New creates a Tool invoking bin via runner. Extra noise names are
// excluded from parsed dependency lists in addition to the built-in set.
// A nil runner defaults to [ExecRunner]; an empty bin to [DefaultBin].
func New(bin string, runner CommandRunner, extraNoise []string) *Tool {
	if bin == "" {
		bin = DefaultBin
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	noise := make(map[string]bool, len(defaultNoise)+len(extraNoise))
	for _, n := range defaultNoise {
		noise[n] = true
	}
	for _, n := range extraNoise {
		noise[n] = true
	}
	return &Tool{bin: bin, runner: runner, noise: noise}
}

// ListRepository lists the modules visible in one repository, attributing
// every candidate to repo. Lines not matching the identity grammar are
// skipped silently; an empty result with a nil error means the repository
// listed nothing usable.
func (t *Tool) ListRepository(ctx context.Context, repo string) ([]identity.Candidate, error) {
	stdout, stderr, code, err := t.runner.Run(ctx, t.bin, "list", repo)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeToolFailed, err,
			"%s list %s exited %d: %s", t.bin, repo, code, firstLine(stderr))
	}
	return ParseListing(stdout, repo), nil
}

// Dependencies queries one module's dependencies by identity and returns
// the cleaned, deduplicated list of bare module names. selfName is the
// querying module's own name; it is excluded from the result.
//
// A subprocess failure or garbled report returns an error; the caller is
// expected to degrade to an empty dependency list and record the module as
// unresolved rather than abort the run.
func (t *Tool) Dependencies(ctx context.Context, ident, selfName string) ([]string, error) {
	stdout, stderr, code, err := t.runner.Run(ctx, t.bin, "info", ident)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeToolFailed, err,
			"%s info %s exited %d: %s", t.bin, ident, code, firstLine(stderr))
	}
	return t.ParseReport(stdout, selfName), nil
}

// ParseListing parses repository-listing output into candidates, one per
// matching line, in listing order.
func ParseListing(out []byte, repo string) []identity.Candidate {
	var candidates []identity.Candidate
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if c, ok := identity.ParseListingLine(sc.Text(), repo); ok {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

// ParseReport parses a dependency report into a clean list of names:
// only dependency-category lines are read, tokens are split on commas and
// stripped to bare names, the empty string, selfName and noise entries are
// discarded, and duplicates keep first-seen order.
func (t *Tool) ParseReport(out []byte, selfName string) []string {
	deps := []string{}
	seen := make(map[string]bool)

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		rest, ok := depCategoryLine(sc.Text())
		if !ok {
			continue
		}
		for tok := range strings.SplitSeq(rest, ",") {
			name := identity.BareName(tok)
			if name == "" || name == selfName || t.noise[name] || seen[name] {
				continue
			}
			seen[name] = true
			deps = append(deps, name)
		}
	}
	return deps
}

// depCategoryLine reports whether line is a dependency-category line and
// returns the text after the category prefix.
func depCategoryLine(line string) (string, bool) {
	s := strings.TrimSpace(line)
	for _, p := range depPrefixes {
		if strings.HasPrefix(s, p) {
			return strings.TrimSpace(strings.TrimPrefix(s, p)), true
		}
	}
	return "", false
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
