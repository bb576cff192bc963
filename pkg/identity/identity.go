// Package identity parses and reconstructs Raku module identity strings.
//
// An identity has the fixed grammar
//
//	NAME:ver<VERSION>[:auth<AUTH>][:api<API>]
//
// for example "JSON::Fast:ver<0.17>:auth<cpan:TIMOTIMO>". The identity
// string is the lookup key handed to the dependency-query tool, so
// reconstruction must be stable: parsing a well-formed identity and
// re-serializing it produces the identical string.
package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// listingLine matches one identity line from a repository listing.
// NAME is one or more ::-separated parts; ver is required, auth and api
// optional, in that fixed order. An adverb, when present, must be
// non-empty: a degenerate "auth<>" cannot survive reconstruction, so the
// line is rejected instead. Lines not matching (banners, progress output,
// degenerate adverbs) are skipped by the caller.
var listingLine = regexp.MustCompile(
	`^([A-Za-z0-9_][A-Za-z0-9_'\-]*(?:::[A-Za-z0-9_][A-Za-z0-9_'\-]*)*)` +
		`:ver<([^<>]+)>` +
		`(?::auth<([^<>]+)>)?` +
		`(?::api<([^<>]+)>)?$`)

// Candidate is a parsed, not-yet-arbitrated module release discovered from
// one repository listing. Candidates are ephemeral: once folded into the
// winner map they are either discarded or promoted to a catalog record.
type Candidate struct {
	Name       string
	Version    string
	Auth       string
	API        string
	SourceRepo string
	Identity   string
}

// ParseListingLine parses one line of repository-listing text into a
// Candidate attributed to repo. The second return value is false when the
// line does not match the identity grammar; such lines are noise, not
// errors.
func ParseListingLine(line, repo string) (Candidate, bool) {
	m := listingLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Candidate{}, false
	}
	c := Candidate{
		Name:       m[1],
		Version:    m[2],
		Auth:       m[3],
		API:        m[4],
		SourceRepo: repo,
	}
	c.Identity = Format(c.Name, c.Version, c.Auth, c.API)
	return c, true
}

// Format builds the canonical identity string from its parts,
// concatenating only the fields that are present, in the fixed order
// name, ver, auth, api.
func Format(name, ver, auth, api string) string {
	var b strings.Builder
	b.WriteString(name)
	fmt.Fprintf(&b, ":ver<%s>", ver)
	if auth != "" {
		fmt.Fprintf(&b, ":auth<%s>", auth)
	}
	if api != "" {
		fmt.Fprintf(&b, ":api<%s>", api)
	}
	return b.String()
}

// BareName strips a dependency token down to its module name. Tokens in
// dependency reports carry the same suffix grammar as identities
// ("Foo::Bar:ver<1.0+>:auth<zef:x>") plus optional parenthetical
// annotations ("Baz (optional)"). Everything from the first colon-adverb
// or parenthesis onward is dropped.
func BareName(token string) string {
	s := strings.TrimSpace(token)
	if i := strings.Index(s, "("); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	// A ":" starts an adverb only when not part of the "::" package
	// separator.
	for i := 0; i < len(s); i++ {
		if s[i] != ':' {
			continue
		}
		if i+1 < len(s) && s[i+1] == ':' {
			i++ // skip the package separator
			continue
		}
		s = s[:i]
		break
	}
	return strings.TrimSpace(s)
}
