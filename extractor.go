package vocab

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/vocab/internal/rules"
)

// Matches groups extracted terms by category.
type Matches map[Category][]string

// Count returns the total number of (category, term) pairs.
func (m Matches) Count() int {
	n := 0
	for _, terms := range m {
		n += len(terms)
	}
	return n
}

// Match is a single extracted term in yield order.
type Match struct {
	Category Category `json:"category"`
	Term     string   `json:"term"`
}

// Extractor applies categorized pattern rules to free text.
// It is safe for concurrent use.
type Extractor struct {
	version string
	passes  []pass
	skipped []string
}

// pass is one independent scan over the text for a single category.
type pass struct {
	category Category
	scan     func(text string) []hit
}

// hit is a raw match with its byte offset for first-occurrence ordering.
type hit struct {
	pos  int
	term string
}

// NewExtractor compiles a rule table. Patterns that fail to compile are
// skipped and reported by Skipped; a category outside the tag set is an error.
// The capitalized-phrase and all-caps heuristics run after the table's sets.
func NewExtractor(table rules.Table) (*Extractor, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	e := &Extractor{version: table.Version}
	for _, set := range table.Sets {
		category := Category(set.Category)
		if !category.IsValid() {
			return nil, fmt.Errorf("%w: %q in rule table", ErrInvalidCategory, set.Category)
		}

		compiled := make([]*regexp.Regexp, 0, len(set.Patterns))
		for _, p := range set.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				e.skipped = append(e.skipped, set.Category+": "+p)
				continue
			}
			compiled = append(compiled, re)
		}
		e.passes = append(e.passes, pass{category: category, scan: patternScan(compiled)})
	}

	e.passes = append(e.passes,
		pass{category: CategoryProperNoun, scan: scanProperNouns},
		pass{category: CategoryAbbreviation, scan: scanAbbreviations},
	)
	return e, nil
}

// DefaultExtractor returns an extractor over the built-in rule table.
func DefaultExtractor() *Extractor {
	e, err := NewExtractor(rules.Default())
	if err != nil {
		panic(fmt.Sprintf("vocab: built-in rule table invalid: %v", err))
	}
	return e
}

// Version returns the rule table version.
func (e *Extractor) Version() string { return e.version }

// Skipped lists patterns that did not compile.
func (e *Extractor) Skipped() []string { return append([]string(nil), e.skipped...) }

// Extract returns the terms found in text grouped by category.
// It never fails; an empty map is a valid result.
func (e *Extractor) Extract(text string) Matches {
	out := Matches{}
	for _, m := range e.ExtractOrdered(text) {
		out[m.Category] = append(out[m.Category], m.Term)
	}
	return out
}

// ExtractOrdered returns matches in pass order, and within a pass in order of
// first occurrence. A term found by several passes appears once per category.
func (e *Extractor) ExtractOrdered(text string) []Match {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []Match
	merged := make(map[Category]map[string]bool)
	for _, p := range e.passes {
		seen := merged[p.category]
		if seen == nil {
			seen = make(map[string]bool)
			merged[p.category] = seen
		}
		for _, term := range runPass(p, text) {
			if seen[term] {
				continue
			}
			seen[term] = true
			out = append(out, Match{Category: p.category, Term: term})
		}
	}
	return out
}

// runPass executes one scan in isolation; a panicking pass yields nothing.
func runPass(p pass, text string) (terms []string) {
	defer func() {
		if recover() != nil {
			terms = nil
		}
	}()

	hits := p.scan(text)
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		term := NormalizeTerm(h.term)
		if term == "" || len(term) > MaxTermLength || seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
	}
	return terms
}

func patternScan(patterns []*regexp.Regexp) func(string) []hit {
	return func(text string) []hit {
		var hits []hit
		for _, re := range patterns {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				hits = append(hits, hit{pos: loc[0], term: text[loc[0]:loc[1]]})
			}
		}
		return hits
	}
}

var (
	capitalizedPhrase = regexp.MustCompile(`\b[A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)+\b`)
	allCapsToken      = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,5}\b`)
)

// phraseStoplist holds capitalized words that open sentences or name dates
// rather than entities.
var phraseStoplist = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"A": true, "An": true, "Our": true, "We": true, "In": true,
	"On": true, "At": true, "For": true, "From": true, "With": true, "And": true,
	"But": true, "If": true, "When": true, "After": true, "Before": true,
	"During": true, "Please": true, "Dear": true, "Hi": true, "Hello": true,
	"Thanks": true, "Regards": true, "Best": true, "Next": true, "Last": true,
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
	"January": true, "February": true, "March": true, "April": true, "May": true,
	"June": true, "July": true, "August": true, "September": true,
	"October": true, "November": true, "December": true,
}

// commonAbbreviations are all-caps tokens too generic to be domain vocabulary.
var commonAbbreviations = map[string]bool{
	"AM": true, "PM": true, "OK": true, "US": true, "USA": true, "UK": true,
	"EU": true, "UN": true, "CEO": true, "CFO": true, "CTO": true, "HR": true,
	"IT": true, "PR": true, "QA": true, "UI": true, "UX": true, "ID": true,
	"PDF": true, "URL": true, "API": true, "FAQ": true, "FYI": true,
	"ASAP": true, "RSVP": true, "ETA": true, "TBD": true, "TBA": true,
	"CV": true, "PHD": true, "MD": true, "BSC": true, "MSC": true, "MBA": true,
	"TV": true, "PC": true, "AI": true, "NB": true, "PS": true, "RE": true,
	"CC": true, "BCC": true, "EOD": true, "EOW": true, "OOO": true,
}

func scanProperNouns(text string) []hit {
	var hits []hit
	for _, loc := range capitalizedPhrase.FindAllStringIndex(text, -1) {
		words := strings.Fields(text[loc[0]:loc[1]])
		start := 0
		for start < len(words) && phraseStoplist[words[start]] {
			start++
		}
		end := len(words)
		for end > start && phraseStoplist[words[end-1]] {
			end--
		}
		if end-start < 2 {
			continue
		}
		hits = append(hits, hit{pos: loc[0], term: strings.Join(words[start:end], " ")})
	}
	return hits
}

func scanAbbreviations(text string) []hit {
	var hits []hit
	for _, loc := range allCapsToken.FindAllStringIndex(text, -1) {
		token := text[loc[0]:loc[1]]
		if commonAbbreviations[token] {
			continue
		}
		hits = append(hits, hit{pos: loc[0], term: token})
	}
	return hits
}

// NormalizeTerm lower-cases a term, collapses internal whitespace and trims
// surrounding punctuation.
func NormalizeTerm(term string) string {
	term = strings.ToLower(strings.Join(strings.Fields(term), " "))
	return strings.Trim(term, ".,;:!?\"'()[]{}")
}

// contextRadius is the number of bytes kept on each side of a term in a snippet.
const contextRadius = 60

// Snippet returns the text surrounding the first occurrence of term, used as
// the context recorded with an observation. Term words match across any run
// of whitespace in text, case-insensitively. It falls back to the start of
// the text when the term cannot be located.
func Snippet(text, term string) string {
	idx, matchEnd := locateTerm(text, term)
	start := idx - contextRadius
	if start < 0 {
		start = 0
	}
	end := matchEnd + contextRadius
	if end > len(text) {
		end = len(text)
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	snippet := strings.Join(strings.Fields(text[start:end]), " ")
	if len(snippet) > MaxContextLength {
		cut := MaxContextLength
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut]
	}
	return snippet
}

// locateTerm returns the byte span of the first occurrence of term in text,
// or an empty span at 0 when absent.
func locateTerm(text, term string) (int, int) {
	words := strings.Fields(term)
	if len(words) == 0 {
		return 0, 0
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile(`(?i)` + strings.Join(words, `\s+`))
	if err != nil {
		return 0, 0
	}
	loc := re.FindStringIndex(text)
	if loc == nil {
		return 0, 0
	}
	return loc[0], loc[1]
}
