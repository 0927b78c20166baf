package vocab

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hyperengineering/vocab/internal/rules"
)

func containsTerm(terms []string, want string) bool {
	for _, t := range terms {
		if t == want {
			return true
		}
	}
	return false
}

func TestExtract_ClinicalSentence(t *testing.T) {
	e := DefaultExtractor()
	got := e.Extract("Patient underwent chemotherapy and PCR testing")

	if !containsTerm(got[CategoryMethod], "pcr") {
		t.Errorf("method = %v, want pcr", got[CategoryMethod])
	}
	if !containsTerm(got[CategoryMedical], "chemotherapy") {
		t.Errorf("medical = %v, want chemotherapy", got[CategoryMedical])
	}
}

func TestExtract_EmptyAndMalformedInput(t *testing.T) {
	e := DefaultExtractor()
	inputs := []string{"", "   \n\t", "\x00\xff\xfe", strings.Repeat("(", 5000), "🙂🙂🙂"}
	for _, in := range inputs {
		got := e.Extract(in)
		if got == nil {
			t.Errorf("Extract(%q) = nil, want empty map", in)
		}
	}
}

func TestExtract_Deterministic(t *testing.T) {
	e := DefaultExtractor()
	text := "The University of Oslo team ran ELISA and qPCR assays. Dr Maria Lopez filed the R01 grant proposal with Karolinska Institute. Inclusion criteria were revised after the IRB approval."

	first := e.ExtractOrdered(text)
	for i := 0; i < 20; i++ {
		if got := e.ExtractOrdered(text); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: ExtractOrdered differs:\n got %v\nwant %v", i, got, first)
		}
	}
}

func TestExtract_FirstOccurrenceOrderAndDedup(t *testing.T) {
	e := DefaultExtractor()
	got := e.Extract("ELISA first, then PCR, then ELISA again and pcr once more")

	want := []string{"elisa", "pcr"}
	if !reflect.DeepEqual(got[CategoryMethod], want) {
		t.Errorf("method = %v, want %v", got[CategoryMethod], want)
	}
}

func TestExtract_TermInSeveralCategories(t *testing.T) {
	e := DefaultExtractor()
	got := e.Extract("Samples were checked by PCR.")

	if !containsTerm(got[CategoryMethod], "pcr") {
		t.Errorf("method = %v, want pcr", got[CategoryMethod])
	}
	if !containsTerm(got[CategoryAbbreviation], "pcr") {
		t.Errorf("abbreviation = %v, want pcr", got[CategoryAbbreviation])
	}
}

func TestExtractOrdered_RuleSetsBeforeHeuristics(t *testing.T) {
	e := DefaultExtractor()
	ms := e.ExtractOrdered("Samples were checked by PCR.")

	var order []Category
	for _, m := range ms {
		if m.Term == "pcr" {
			order = append(order, m.Category)
		}
	}
	want := []Category{CategoryMethod, CategoryAbbreviation}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("pcr categories in yield order = %v, want %v", order, want)
	}
}

func TestExtract_ProperNounHeuristic(t *testing.T) {
	e := DefaultExtractor()
	got := e.Extract("The Steering Committee met on Monday. Next Tuesday we meet Grace Hopper.")

	if !containsTerm(got[CategoryProperNoun], "steering committee") {
		t.Errorf("proper-noun = %v, want steering committee", got[CategoryProperNoun])
	}
	if !containsTerm(got[CategoryProperNoun], "grace hopper") {
		t.Errorf("proper-noun = %v, want grace hopper", got[CategoryProperNoun])
	}
	for _, term := range got[CategoryProperNoun] {
		if strings.HasPrefix(term, "the ") || strings.Contains(term, "tuesday") {
			t.Errorf("proper-noun %q kept a stoplist word", term)
		}
	}
}

func TestExtract_AbbreviationAllowlist(t *testing.T) {
	e := DefaultExtractor()
	got := e.Extract("FYI the CEO wants the HbA1c and CRP numbers ASAP, plus the DSMB minutes.")

	for _, common := range []string{"fyi", "ceo", "asap"} {
		if containsTerm(got[CategoryAbbreviation], common) {
			t.Errorf("abbreviation %q should be filtered by the allowlist", common)
		}
	}
	for _, want := range []string{"crp", "dsmb"} {
		if !containsTerm(got[CategoryAbbreviation], want) {
			t.Errorf("abbreviation = %v, want %s", got[CategoryAbbreviation], want)
		}
	}
}

func TestNewExtractor_SkipsInvalidPattern(t *testing.T) {
	table := rules.Table{
		Version: "test",
		Sets: []rules.RuleSet{
			{Category: rules.Method, Patterns: []string{`(unclosed`, `(?i)\bpcr\b`}},
		},
	}
	e, err := NewExtractor(table)
	if err != nil {
		t.Fatalf("NewExtractor() error = %v", err)
	}
	if len(e.Skipped()) != 1 {
		t.Errorf("Skipped() = %v, want one pattern", e.Skipped())
	}
	if got := e.Extract("pcr run"); !containsTerm(got[CategoryMethod], "pcr") {
		t.Errorf("method = %v, want pcr from the valid pattern", got[CategoryMethod])
	}
}

func TestNewExtractor_RejectsUnknownCategory(t *testing.T) {
	table := rules.Table{Sets: []rules.RuleSet{{Category: "gossip", Patterns: []string{`x`}}}}
	if _, err := NewExtractor(table); err == nil {
		t.Fatal("NewExtractor() returned nil error for unknown category")
	}
}

func TestExtract_PanickingPassIsIsolated(t *testing.T) {
	e := DefaultExtractor()
	e.passes = append([]pass{{
		category: CategoryDomainTerm,
		scan:     func(string) []hit { panic("broken rule") },
	}}, e.passes...)

	got := e.Extract("Patient underwent chemotherapy and PCR testing")
	if !containsTerm(got[CategoryMedical], "chemotherapy") {
		t.Errorf("medical = %v, want chemotherapy despite a panicking pass", got[CategoryMedical])
	}
}

func TestMatches_Count(t *testing.T) {
	m := Matches{CategoryMethod: {"pcr", "elisa"}, CategoryMedical: {"biopsy"}}
	if m.Count() != 3 {
		t.Errorf("Count() = %d, want 3", m.Count())
	}
}

func TestNormalizeTerm(t *testing.T) {
	tests := []struct{ in, want string }{
		{"PCR", "pcr"},
		{"  Western   Blot ", "western blot"},
		{"(ELISA),", "elisa"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTerm(tt.in); got != tt.want {
			t.Errorf("NormalizeTerm(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSnippet(t *testing.T) {
	text := strings.Repeat("a ", 100) + "the PCR assay" + strings.Repeat(" b", 100)
	got := Snippet(text, "pcr")

	if !strings.Contains(got, "PCR") {
		t.Errorf("Snippet() = %q, want it to contain PCR", got)
	}
	if len(got) > 2*contextRadius+len("pcr") {
		t.Errorf("Snippet() length = %d, want <= %d", len(got), 2*contextRadius+len("pcr"))
	}
}

func TestSnippet_MatchesAcrossWhitespace(t *testing.T) {
	lead := strings.Repeat("x ", 100)
	tests := []struct {
		name string
		text string
		term string
	}{
		{"double space", lead + "Ran a western  blot on the lysate", "western blot"},
		{"line break", lead + "Ran a Western\n\tBlot on the lysate", "western blot"},
		{"trailing punctuation", lead + "Confirmed by ELISA.", "elisa"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Snippet(tt.text, tt.term)
			if !strings.Contains(strings.ToLower(got), tt.term) {
				t.Errorf("Snippet() = %q, want it to contain %q", got, tt.term)
			}
		})
	}
}

func TestSnippet_MissingTermFallsBackToStart(t *testing.T) {
	got := Snippet("short text here", "absent")
	if got != "short text here" {
		t.Errorf("Snippet() = %q, want the leading text", got)
	}
}
