package docket

import "context"

// Store persists cases and their timelines.
type Store interface {
	Create(ctx context.Context, c *Case) error
	Find(ctx context.Context, id string) (*Case, error)
	ListByParticipant(ctx context.Context, address string) ([]*Case, error)

	// AdvanceStage applies one transition and appends its timeline entry
	// atomically. The write only succeeds when the stored version still
	// equals version; otherwise ErrConcurrentModification.
	AdvanceStage(ctx context.Context, id string, from, to Stage, version uint64, entry TimelineEntry) (*Case, error)

	// Archive soft-deletes the case. Owned evidence records stay put.
	Archive(ctx context.Context, id string, version uint64) error

	Timeline(ctx context.Context, caseID string) ([]TimelineEntry, error)
}
