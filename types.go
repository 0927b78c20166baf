package vocab

import (
	"time"

	"github.com/hyperengineering/vocab/internal/rules"
)

// TerminologyEntry is one learned vocabulary term.
type TerminologyEntry struct {
	Term         string     `json:"term"`
	Category     Category   `json:"category"`
	Frequency    int        `json:"frequency"`
	Contexts     []string   `json:"contexts"`
	FirstSeen    time.Time  `json:"first_seen"`
	LastSeen     time.Time  `json:"last_seen"`
	Confidence   float64    `json:"confidence"`
	UserApproved bool       `json:"user_approved"`
	ApprovedBy   string     `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
}

// Category classifies a term.
type Category string

const (
	CategoryDomainTerm   Category = rules.DomainTerm
	CategoryMedical      Category = rules.Medical
	CategoryMethod       Category = rules.Method
	CategoryAbbreviation Category = rules.Abbreviation
	CategoryProperNoun   Category = rules.ProperNoun
	CategoryFundingTerm  Category = rules.FundingTerm
	CategoryInstitution  Category = rules.Institution
)

// ValidCategories returns all valid term categories.
func ValidCategories() []Category {
	return []Category{
		CategoryDomainTerm,
		CategoryMedical,
		CategoryMethod,
		CategoryAbbreviation,
		CategoryProperNoun,
		CategoryFundingTerm,
		CategoryInstitution,
	}
}

// IsValid checks if the category is part of the fixed tag set.
func (c Category) IsValid() bool {
	for _, valid := range ValidCategories() {
		if c == valid {
			return true
		}
	}
	return false
}

// Label returns a human-readable plural label used in enrichment text.
func (c Category) Label() string {
	switch c {
	case CategoryDomainTerm:
		return "Domain terms"
	case CategoryMedical:
		return "Medical terms"
	case CategoryMethod:
		return "Methods"
	case CategoryAbbreviation:
		return "Abbreviations"
	case CategoryProperNoun:
		return "Names"
	case CategoryFundingTerm:
		return "Funding terms"
	case CategoryInstitution:
		return "Institutions"
	default:
		return string(c)
	}
}

// UpsertResult describes the effect of a single observation.
type UpsertResult struct {
	Entry   TerminologyEntry `json:"entry"`
	Created bool             `json:"created"`
}

// VocabularyQuery filters GetVocabulary.
type VocabularyQuery struct {
	Category      Category `json:"category,omitempty"`
	MinConfidence *float64 `json:"min_confidence,omitempty"` // nil uses DefaultMinConfidence
	Limit         int      `json:"limit,omitempty"`          // 0 or >MaxVocabularyResults uses the cap
}

// Snapshot is the immutable audit record of one extraction run.
type Snapshot struct {
	ID               string        `json:"id"`
	Timestamp        time.Time     `json:"timestamp"`
	TotalSubmissions int           `json:"total_submissions"`
	NewTermsFound    int           `json:"new_terms_found"`
	UpdatedTerms     int           `json:"updated_terms"`
	TopTerms         []string      `json:"top_terms"`
	Duration         time.Duration `json:"duration"`
}

// FeedbackType classifies a feedback event.
type FeedbackType string

const (
	FeedbackGeneral    FeedbackType = "general"
	FeedbackSuggestion FeedbackType = "suggestion"
	FeedbackCorrection FeedbackType = "correction"
	FeedbackBug        FeedbackType = "bug"
	FeedbackPraise     FeedbackType = "praise"
)

// ValidFeedbackTypes returns all accepted feedback types.
func ValidFeedbackTypes() []FeedbackType {
	return []FeedbackType{FeedbackGeneral, FeedbackSuggestion, FeedbackCorrection, FeedbackBug, FeedbackPraise}
}

// IsValid checks if the feedback type is known.
func (f FeedbackType) IsValid() bool {
	for _, valid := range ValidFeedbackTypes() {
		if f == valid {
			return true
		}
	}
	return false
}

// Ratings holds 1-5 scores; 0 means the submitter left it blank.
type Ratings struct {
	Quality     int `json:"quality"`
	Helpfulness int `json:"helpfulness"`
	Ease        int `json:"ease"`
}

// FeedbackEvent is one append-only feedback record.
type FeedbackEvent struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	SubmitterID    string         `json:"submitter_id"`
	SubmitterRole  string         `json:"submitter_role"`
	FeedbackType   FeedbackType   `json:"feedback_type"`
	Text           string         `json:"text,omitempty"`
	Ratings        Ratings        `json:"ratings"`
	SubmissionID   string         `json:"submission_id,omitempty"`
	SubmissionType string         `json:"submission_type,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

// Linked reports whether the event references a submission.
func (e FeedbackEvent) Linked() bool {
	return e.SubmissionID != ""
}

// CurationAction is the audit record of an approve or reject call.
type CurationAction struct {
	ID        string    `json:"id"`
	Term      string    `json:"term"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Curation actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// MaintenanceReport summarizes one maintenance cycle.
type MaintenanceReport struct {
	Timestamp time.Time   `json:"timestamp"`
	Decayed   int         `json:"decayed"`
	Pruned    int         `json:"pruned"`
	Stats     *StoreStats `json:"stats"`
}

// StoreStats contains statistics about the vocabulary store.
type StoreStats struct {
	TermCount         int              `json:"term_count"`
	ApprovedCount     int              `json:"approved_count"`
	ByCategory        map[Category]int `json:"by_category"`
	AverageConfidence float64          `json:"average_confidence"`
	SnapshotCount     int              `json:"snapshot_count"`
	FeedbackCount     int              `json:"feedback_count"`
	PendingInbox      int              `json:"pending_inbox"`
	LastSnapshot      time.Time        `json:"last_snapshot"`
	Watermark         time.Time        `json:"watermark"`
	SchemaVersion     string           `json:"schema_version"`
}

// Confidence engine constants.
const (
	ConfidenceInitial    = 0.3
	ConfidenceStep       = 0.1
	ConfidenceApproved   = 1.0
	ConfidencePruneBelow = 0.2
	ConfidenceMin        = 0.0
	ConfidenceMax        = 1.0
)

// Query and storage limits.
const (
	MaxContexts          = 10
	MaxContextLength     = 240
	MaxVocabularyResults = 100
	DefaultMinConfidence = 0.5
	EnrichMinConfidence  = 0.6
	MaxTermLength        = 120
)
