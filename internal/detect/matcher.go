package detect

import (
	"fmt"
	"regexp"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// Signature is one detection rule. Literal patterns are matched as
// substrings; Regex patterns use RE2 syntax.
type Signature struct {
	ID          string `yaml:"id"`
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	Regex       bool   `yaml:"regex"`
}

const (
	OriginAho   = "aho"
	OriginRegex = "regex"
)

type Match struct {
	Signature
	Start  int // byte offsets into the scanned text, End inclusive
	End    int
	Origin string
}

// Label is what defenders see for a match.
func (m Match) Label() string {
	if m.Description != "" {
		return m.Description
	}
	return m.Pattern
}

type compiledRegex struct {
	sig Signature
	re  *regexp.Regexp
}

type Matcher struct {
	literals []Signature
	ac       ahocorasick.AhoCorasick
	regexes  []compiledRegex
}

func NewMatcher(sigs []Signature) (*Matcher, error) {
	m := &Matcher{}
	var patterns []string
	for _, s := range sigs {
		if s.Pattern == "" {
			return nil, fmt.Errorf("signature %q: empty pattern", s.ID)
		}
		if s.Regex {
			re, err := regexp.Compile(s.Pattern)
			if err != nil {
				return nil, fmt.Errorf("signature %q: %w", s.ID, err)
			}
			m.regexes = append(m.regexes, compiledRegex{sig: s, re: re})
			continue
		}
		m.literals = append(m.literals, s)
		patterns = append(patterns, s.Pattern)
	}
	if len(patterns) > 0 {
		builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{MatchKind: ahocorasick.StandardMatch})
		m.ac = builder.Build(patterns)
	}
	return m, nil
}

// Match returns every literal occurrence in order of end offset, followed by
// the first hit of each regex signature.
func (m *Matcher) Match(text string) []Match {
	var out []Match
	if len(m.literals) > 0 {
		it := m.ac.IterOverlapping(text)
		for h := it.Next(); h != nil; h = it.Next() {
			out = append(out, Match{
				Signature: m.literals[h.Pattern()],
				Start:     h.Start(),
				End:       h.End() - 1,
				Origin:    OriginAho,
			})
		}
	}
	for _, r := range m.regexes {
		if loc := r.re.FindStringIndex(text); loc != nil {
			out = append(out, Match{Signature: r.sig, Start: loc[0], End: loc[1] - 1, Origin: OriginRegex})
		}
	}
	return out
}

// Labels returns the defender-facing label of each match.
func Labels(ms []Match) []string {
	if len(ms) == 0 {
		return nil
	}
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Label()
	}
	return out
}
