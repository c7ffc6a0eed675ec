// Package idgen produces client-side identifiers for list items.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// ItemPrefix marks identifiers minted on the client for list items.
const ItemPrefix = "item_"

// Generator returns a fresh identifier on each call.
type Generator func() string

// NewItemID returns a collision-resistant identifier for a new list item.
// Callers generate it once per logical item and reuse it on retries so the
// backend can deduplicate the write.
func NewItemID() string {
	return ItemPrefix + uuid.NewString()
}

// Sequence returns a deterministic Generator yielding prefix-1, prefix-2, ...
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return prefix + "-" + strconv.FormatInt(n.Add(1), 10)
	}
}

