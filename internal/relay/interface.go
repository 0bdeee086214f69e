// Package relay fans published messages out across broker instances. The
// local hub only reaches channels connected to this process; a relay backend
// carries the same envelope to every other instance hosting members of the
// group. Single-instance deployments use the no-op backend.
package relay

import "context"

// Handler is invoked for every envelope relayed from another instance.
type Handler func(groupID uint64, data []byte)

type Relay interface {
	// Publish sends an already-serialized wire event to peer instances.
	Publish(ctx context.Context, groupID uint64, data []byte) error

	// Subscribe starts delivering envelopes published by other instances to
	// the handler. Envelopes published by this instance are filtered out;
	// the local hub already delivered those.
	Subscribe(ctx context.Context, handler Handler) error

	Close() error
}
