// Package rules holds the versioned, data-driven pattern table used by the
// vocabulary extractor. Each rule set maps one category to an ordered list of
// regular expressions; the table can be replaced by a YAML file without
// touching extraction control flow.
package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultVersion identifies the built-in rule table.
const DefaultVersion = "2024.3"

// Category names used by the built-in table.
const (
	DomainTerm   = "domain-term"
	Medical      = "medical"
	Method       = "method"
	Abbreviation = "abbreviation"
	ProperNoun   = "proper-noun"
	FundingTerm  = "funding-term"
	Institution  = "institution"
)

// maxFileSize bounds rule files read from disk.
const maxFileSize = 1 << 20

// Table is an ordered set of category rule sets.
type Table struct {
	Version string    `yaml:"version"`
	Sets    []RuleSet `yaml:"sets"`
}

// RuleSet is the ordered pattern list for one category.
type RuleSet struct {
	Category string   `yaml:"category"`
	Patterns []string `yaml:"patterns"`
}

// Categories returns the categories of the table in declaration order.
func (t Table) Categories() []string {
	out := make([]string, 0, len(t.Sets))
	for _, s := range t.Sets {
		out = append(out, s.Category)
	}
	return out
}

// Set returns the rule set for a category.
func (t Table) Set(category string) (RuleSet, bool) {
	for _, s := range t.Sets {
		if s.Category == category {
			return s, true
		}
	}
	return RuleSet{}, false
}

// Validate checks structural problems. Individual patterns are not compiled
// here; the extractor skips patterns that fail to compile.
func (t Table) Validate() error {
	if len(t.Sets) == 0 {
		return errors.New("rules: table has no rule sets")
	}
	seen := make(map[string]bool, len(t.Sets))
	for i, s := range t.Sets {
		if s.Category == "" {
			return fmt.Errorf("rules: set %d has no category", i)
		}
		if seen[s.Category] {
			return fmt.Errorf("rules: duplicate category %q", s.Category)
		}
		seen[s.Category] = true
	}
	return nil
}

// Load reads a YAML rule table from path.
func Load(path string) (Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Table{}, fmt.Errorf("rules: stat %s: %w", path, err)
	}
	if info.Size() > maxFileSize {
		return Table{}, fmt.Errorf("rules: %s exceeds %d bytes", path, maxFileSize)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML rule table.
func Parse(raw []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Table{}, fmt.Errorf("rules: parse: %w", err)
	}
	if t.Version == "" {
		t.Version = "custom"
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Default returns the built-in rule table.
func Default() Table {
	return Table{
		Version: DefaultVersion,
		Sets: []RuleSet{
			{
				Category: Medical,
				Patterns: []string{
					`(?i)\b(chemotherapy|radiotherapy|immunotherapy|biopsy|metastasis|oncology|carcinoma|lymphoma|leukemia|diabetes|hypertension|sepsis|comorbidity|placebo|pathology|prognosis)\b`,
					`(?i)\b[a-z]{3,}(?:ectomy|itis|oscopy|ology|emia|oma)\b`,
				},
			},
			{
				Category: Method,
				Patterns: []string{
					`(?i)\b(pcr|qpcr|rt-pcr|elisa|crispr|rna-seq|western blot|flow cytometry|mass spectrometry|immunohistochemistry|microarray)\b`,
					`(?i)\b(regression analysis|meta-analysis|systematic review|randomized controlled trial|cohort study|case-control study|survival analysis|thematic analysis)\b`,
				},
			},
			{
				Category: FundingTerm,
				Patterns: []string{
					`(?i)\b(grant proposal|principal investigator|co-investigator|indirect costs|budget justification|subaward|no-cost extension|letter of intent|progress report|cost share)\b`,
					`\b(R01|R21|K99|U01|SBIR|STTR)\b`,
				},
			},
			{
				Category: Institution,
				Patterns: []string{
					`\bUniversity of [A-Z][a-z]+(?: [A-Z][a-z]+)?\b`,
					`\b[A-Z][a-z]+ (?:University|Institute|Hospital|Foundation)\b`,
				},
			},
			{
				Category: DomainTerm,
				Patterns: []string{
					`(?i)\b(irb approval|informed consent|inclusion criteria|exclusion criteria|primary endpoint|secondary endpoint|adverse event|data management plan|peer review)\b`,
				},
			},
		},
	}
}
