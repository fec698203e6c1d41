package orders

import (
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
)

// MaxItemQty bounds a single line after merging; it matches the INTEGER column.
const MaxItemQty = math.MaxInt32

// NormalizeItems validates a raw item list and merges repeated products by summing
// quantities. The first occurrence decides the position of a product.
func NormalizeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	out := make([]ItemInput, 0, len(items))
	pos := make(map[string]int, len(items))
	for _, it := range items {
		if it.Qty <= 0 || it.Qty > MaxItemQty {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, it.ProductID)
		}
		id, err := uuid.Parse(it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		key := id.String()
		if i, ok := pos[key]; ok {
			if out[i].Qty > MaxItemQty-it.Qty {
				return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, key)
			}
			out[i].Qty += it.Qty
			continue
		}
		pos[key] = len(out)
		out = append(out, ItemInput{ProductID: key, Qty: it.Qty})
	}
	return out, nil
}

// LockOrder returns product ids in the order rows must be locked so that two
// multi-item orders never wait on each other in opposite directions.
func LockOrder(items []ItemInput) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	slices.Sort(ids)
	return ids
}
