package vocab

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Approve pins a term at full confidence and exempts it from pruning.
// Returns ErrNotFound when the term is unknown. Safe to call while a
// snapshot run is in flight.
func (s *Service) Approve(ctx context.Context, term, actorID string) (*TerminologyEntry, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	entry, err := s.store.Approve(ctx, term, actorID)
	if err != nil {
		s.logCurationFailure(ActionApprove, term, actorID, err)
		return nil, err
	}

	s.metrics.observeCuration(ActionApprove)
	s.logger.Info("term approved",
		zap.String("term", entry.Term),
		zap.String("actor_id", actorID),
		zap.String("category", string(entry.Category)),
	)
	return entry, nil
}

// Reject deletes a term. Returns ErrNotFound when the term is unknown.
func (s *Service) Reject(ctx context.Context, term, actorID string) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	if err := s.store.Reject(ctx, term, actorID); err != nil {
		s.logCurationFailure(ActionReject, term, actorID, err)
		return err
	}

	s.metrics.observeCuration(ActionReject)
	s.logger.Info("term rejected",
		zap.String("term", NormalizeTerm(term)),
		zap.String("actor_id", actorID),
	)
	return nil
}

// CurationLog returns the curation history of term, or of every term when
// term is empty.
func (s *Service) CurationLog(ctx context.Context, term string) ([]CurationAction, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.store.CurationLog(ctx, term)
}

func (s *Service) logCurationFailure(action, term, actorID string, err error) {
	level := zap.WarnLevel
	if errors.Is(err, ErrNotFound) {
		level = zap.InfoLevel
	}
	s.logger.Log(level, "curation failed",
		zap.String("action", action),
		zap.String("term", term),
		zap.String("actor_id", actorID),
		zap.Error(err),
	)
}
