package vocab

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	// maxEnrichCategories bounds how many category fragments a block holds.
	maxEnrichCategories = 3

	// maxEnrichItems caps the terms listed per category.
	maxEnrichItems = 12
)

// contextPreferences lists the categories most useful to each kind of
// prompt, best first. Unknown context types fall back to the categories
// with the most entries.
var contextPreferences = map[string][]Category{
	"meeting":  {CategoryProperNoun, CategoryInstitution, CategoryDomainTerm},
	"research": {CategoryMethod, CategoryMedical, CategoryAbbreviation},
	"clinical": {CategoryMedical, CategoryMethod, CategoryAbbreviation},
	"grant":    {CategoryFundingTerm, CategoryInstitution, CategoryMethod},
	"summary":  {CategoryDomainTerm, CategoryMethod, CategoryAbbreviation},
}

// ContextTypes returns the context types with a category preference.
func ContextTypes() []string {
	types := make([]string, 0, len(contextPreferences))
	for t := range contextPreferences {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// EnrichedContext renders established vocabulary as a short text block for
// prompt augmentation. It never fails: an empty store or a storage error
// yields "".
func (s *Service) EnrichedContext(ctx context.Context, contextType string) string {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	minConfidence := EnrichMinConfidence
	entries, err := s.store.GetVocabulary(ctx, VocabularyQuery{MinConfidence: &minConfidence})
	if err != nil {
		s.metrics.observeEnrich("error")
		s.logger.Debug("enrichment read failed", zap.String("context_type", contextType), zap.Error(err))
		return ""
	}

	block := renderEnrichment(contextType, entries)
	if block == "" {
		s.metrics.observeEnrich("empty")
	} else {
		s.metrics.observeEnrich("hit")
	}
	return block
}

// Refine appends the enrichment block for contextType to prompt and passes
// the result to the configured refiner.
func (s *Service) Refine(ctx context.Context, contextType, prompt string) (string, error) {
	if s.refiner == nil {
		return "", ErrNoRefiner
	}

	if block := s.EnrichedContext(ctx, contextType); block != "" {
		prompt = strings.TrimRight(prompt, "\n") + "\n\n" + block
	}
	return s.refiner.Refine(ctx, prompt)
}

// renderEnrichment buckets entries by category and renders at most
// maxEnrichCategories fragments. Entries arrive ordered by frequency.
func renderEnrichment(contextType string, entries []TerminologyEntry) string {
	if len(entries) == 0 {
		return ""
	}

	buckets := make(map[Category][]string)
	for _, e := range entries {
		buckets[e.Category] = append(buckets[e.Category], e.Term)
	}

	var lines []string
	for _, cat := range pickCategories(contextType, buckets) {
		terms := buckets[cat]
		if len(terms) > maxEnrichItems {
			terms = terms[:maxEnrichItems]
		}
		lines = append(lines, cat.Label()+": "+strings.Join(terms, ", "))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Domain vocabulary:\n" + strings.Join(lines, "\n")
}

// pickCategories orders non-empty buckets: preferred ones for contextType
// first, then the largest remaining, ties broken by tag-set order.
func pickCategories(contextType string, buckets map[Category][]string) []Category {
	var picked []Category
	used := make(map[Category]bool)

	for _, cat := range contextPreferences[strings.ToLower(strings.TrimSpace(contextType))] {
		if len(buckets[cat]) > 0 && !used[cat] {
			picked = append(picked, cat)
			used[cat] = true
		}
	}

	rest := make([]Category, 0, len(buckets))
	for _, cat := range ValidCategories() {
		if len(buckets[cat]) > 0 && !used[cat] {
			rest = append(rest, cat)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return len(buckets[rest[i]]) > len(buckets[rest[j]]) })
	picked = append(picked, rest...)

	if len(picked) > maxEnrichCategories {
		picked = picked[:maxEnrichCategories]
	}
	return picked
}
