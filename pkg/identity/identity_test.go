package identity

import (
	"testing"
)

func TestParseListingLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		want Candidate
	}{
		{
			name: "NameAndVersion",
			line: "JSON::Fast:ver<0.17>",
			ok:   true,
			want: Candidate{Name: "JSON::Fast", Version: "0.17"},
		},
		{
			name: "FullIdentity",
			line: "Foo::Bar:ver<1.2>:auth<zef:alice>",
			ok:   true,
			want: Candidate{Name: "Foo::Bar", Version: "1.2", Auth: "zef:alice"},
		},
		{
			name: "WithAPI",
			line: "Cro::HTTP:ver<0.8.7>:auth<github:croservices>:api<1>",
			ok:   true,
			want: Candidate{Name: "Cro::HTTP", Version: "0.8.7", Auth: "github:croservices", API: "1"},
		},
		{
			name: "SurroundingWhitespace",
			line: "  Terminal::ANSIColor:ver<0.5>  ",
			ok:   true,
			want: Candidate{Name: "Terminal::ANSIColor", Version: "0.5"},
		},
		{
			name: "HyphenAndApostropheInName",
			line: "Foo-Bar'Baz:ver<1.0>",
			ok:   true,
			want: Candidate{Name: "Foo-Bar'Baz", Version: "1.0"},
		},
		{
			name: "BannerLine",
			line: "===> Searching for: JSON::Fast",
			ok:   false,
		},
		{
			name: "MissingVersion",
			line: "JSON::Fast",
			ok:   false,
		},
		{
			name: "Empty",
			line: "",
			ok:   false,
		},
		{
			name: "WrongAdverbOrder",
			line: "Foo:auth<zef:alice>:ver<1.0>",
			ok:   false,
		},
		{
			// An empty adverb cannot round-trip through Format, so the
			// line must be rejected rather than parsed lossily.
			name: "EmptyAuthAdverb",
			line: "Foo:ver<1.0>:auth<>",
			ok:   false,
		},
		{
			name: "EmptyAPIAdverb",
			line: "Foo:ver<1.0>:auth<zef:alice>:api<>",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseListingLine(tt.line, "fez")
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.Name != tt.want.Name || got.Version != tt.want.Version ||
				got.Auth != tt.want.Auth || got.API != tt.want.API {
				t.Errorf("candidate = %+v, want %+v", got, tt.want)
			}
			if got.SourceRepo != "fez" {
				t.Errorf("SourceRepo = %q, want fez", got.SourceRepo)
			}
		})
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	// Identity is a correctness key: re-serializing a parsed identity must
	// reproduce the input exactly.
	lines := []string{
		"JSON::Fast:ver<0.17>",
		"Foo::Bar:ver<1.2>:auth<zef:alice>",
		"Cro::HTTP:ver<0.8.7>:auth<github:croservices>:api<1>",
	}
	for _, line := range lines {
		c, ok := ParseListingLine(line, "fez")
		if !ok {
			t.Fatalf("ParseListingLine(%q) did not match", line)
		}
		if c.Identity != line {
			t.Errorf("Identity = %q, want %q", c.Identity, line)
		}
	}
}

func TestFormatOmitsAbsentFields(t *testing.T) {
	if got := Format("Foo", "1.0", "", ""); got != "Foo:ver<1.0>" {
		t.Errorf("Format without auth/api = %q, want Foo:ver<1.0>", got)
	}
	if got := Format("Foo", "1.0", "", "2"); got != "Foo:ver<1.0>:api<2>" {
		t.Errorf("Format with api only = %q, want Foo:ver<1.0>:api<2>", got)
	}
}

func TestBareName(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"Foo::Bar:ver<1.0>", "Foo::Bar"},
		{"Baz (optional)", "Baz"},
		{" Foo::Bar:ver<1.0>:auth<zef:x> ", "Foo::Bar"},
		{"Plain", "Plain"},
		{"Deep::Nested::Name", "Deep::Nested::Name"},
		{"", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := BareName(tt.token); got != tt.want {
			t.Errorf("BareName(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}
