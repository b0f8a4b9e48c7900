package resource

import (
	"context"
	"iter"
)

// Adapter enumerates live resources of one type.
//
// List returns a lazy sequence that re-issues the first page each time it is
// ranged over. Errors are yielded once and end the sequence. Adapters never
// retry; throttling surfaces to the caller.
type Adapter interface {
	Type() Type
	List(ctx context.Context, region string) iter.Seq2[Descriptor, error]
}
