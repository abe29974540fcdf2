package domain

import "context"

// EditLogStore is the append-only durable target for serialized edit batches.
type EditLogStore interface {
	// AppendBatch writes one serialized batch. Errors caused by an unreachable
	// backend wrap ErrStoreUnavailable.
	AppendBatch(ctx context.Context, batch string) error
}

// EditLogger accepts accepted edits for write-behind persistence.
type EditLogger interface {
	Enqueue(record EditRecord)
}
