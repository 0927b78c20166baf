package vocab

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// maxFeedbackText bounds the free-text body of a feedback event.
const maxFeedbackText = 8000

// RecordFeedback appends a feedback event. It reports whether the event was
// stored; validation and storage failures are logged, never returned.
func (s *Service) RecordFeedback(ctx context.Context, event FeedbackEvent) bool {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	if err := validateFeedback(&event); err != nil {
		s.metrics.observeFeedback(false)
		s.logger.Warn("feedback rejected",
			zap.String("submitter_id", event.SubmitterID),
			zap.String("feedback_type", string(event.FeedbackType)),
			zap.Error(err),
		)
		return false
	}

	if err := s.store.AppendFeedback(ctx, &event); err != nil {
		s.metrics.observeFeedback(false)
		s.logger.Error("feedback dropped",
			zap.String("submitter_id", event.SubmitterID),
			zap.String("submission_id", event.SubmissionID),
			zap.Error(err),
		)
		return false
	}

	s.metrics.observeFeedback(true)
	s.logger.Debug("feedback recorded",
		zap.String("feedback_id", event.ID),
		zap.String("submitter_role", event.SubmitterRole),
		zap.Bool("linked", event.Linked()),
	)
	return true
}

func validateFeedback(e *FeedbackEvent) error {
	e.SubmitterID = strings.TrimSpace(e.SubmitterID)
	e.SubmitterRole = strings.TrimSpace(e.SubmitterRole)
	if e.FeedbackType == "" {
		e.FeedbackType = FeedbackGeneral
	}

	if e.SubmitterID == "" {
		return fmt.Errorf("%w: submitter id required", ErrInvalidFeedback)
	}
	if !e.FeedbackType.IsValid() {
		return fmt.Errorf("%w: unknown feedback type %q", ErrInvalidFeedback, e.FeedbackType)
	}
	if len(e.Text) > maxFeedbackText {
		return fmt.Errorf("%w: text exceeds %d bytes", ErrInvalidFeedback, maxFeedbackText)
	}
	for name, r := range map[string]int{
		"quality":     e.Ratings.Quality,
		"helpfulness": e.Ratings.Helpfulness,
		"ease":        e.Ratings.Ease,
	} {
		if r < 0 || r > 5 {
			return fmt.Errorf("%w: %s rating %d outside 0-5", ErrInvalidFeedback, name, r)
		}
	}
	if e.SubmissionType != "" && e.SubmissionID == "" {
		return fmt.Errorf("%w: submission type without submission id", ErrInvalidFeedback)
	}
	return nil
}
