package storage

import "context"

// Storage is the key-value contract the coordinator persists its state
// through: the latest global model record, the round/version counters and
// the append-only aggregation history. List returns entries in ascending
// key order, which makes zero-padded history keys read back in insertion
// order.
type Storage interface {
	Create(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) (any, error)
	Update(ctx context.Context, key string, value any) error
	Upsert(ctx context.Context, key string, value any) error
	List(ctx context.Context, prefix string, offset, limit uint64) ([]any, uint64, error)
	Delete(ctx context.Context, key string) error
}
