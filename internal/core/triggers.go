package core

import (
	"context"
	"fmt"

	"engagement/internal/docstore"
	"engagement/pkg/domain"
)

// OnProjectWritten reacts to a stored project changing. before is nil for a
// create and after is nil for a delete. Tokens dropped from the project's list
// are revoked; a delete also removes the project's updates and tokens.
func (s *Service) OnProjectWritten(ctx context.Context, projectID string, before, after *domain.Project) error {
	if after == nil {
		_, err := s.onProjectDeleted(ctx, projectID)
		return err
	}
	if before == nil {
		return nil
	}
	removed := FindRemovedTokens(before.Tokens(), after.Tokens())
	if len(removed) == 0 {
		return nil
	}
	n, err := s.RevokeTokens(ctx, removed)
	if err != nil {
		return fmt.Errorf("project %s: %w", projectID, err)
	}
	s.logger.Info("revoked removed tokens", "project", projectID, "count", n)
	return nil
}

func (s *Service) onProjectDeleted(ctx context.Context, projectID string) (int, error) {
	n, err := s.CleanUp(ctx, updatesCollection(projectID))
	if err != nil {
		return n, err
	}
	if _, err := s.RevokeProjectTokens(ctx, projectID); err != nil {
		return n, err
	}
	s.logger.Info("project deleted", "project", projectID, "updates", n)
	return n, nil
}

// CleanUp deletes every document in collection in batches and returns the count.
func (s *Service) CleanUp(ctx context.Context, collection string) (int, error) {
	var total int
	err := s.run(ctx, "CleanUp", func(ctx context.Context) error {
		n, err := docstore.CleanUp(ctx, s.store, collection, s.batchSize)
		total = n
		return err
	})
	return total, err
}
