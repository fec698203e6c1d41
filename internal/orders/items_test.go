package orders

import (
	"errors"
	"slices"
	"testing"
)

const (
	pA = "0b9f4c1e-3a8e-4c51-9f0e-6f3c2a1d0001"
	pB = "0b9f4c1e-3a8e-4c51-9f0e-6f3c2a1d0002"
)

func TestNormalizeItems(t *testing.T) {
	tests := []struct {
		name    string
		in      []ItemInput
		want    []ItemInput
		wantErr error
	}{
		{name: "empty", in: nil, wantErr: ErrEmptyOrder},
		{name: "zero qty", in: []ItemInput{{ProductID: pA, Qty: 0}}, wantErr: ErrInvalidQuantity},
		{name: "negative qty", in: []ItemInput{{ProductID: pA, Qty: -2}}, wantErr: ErrInvalidQuantity},
		{name: "qty above column range", in: []ItemInput{{ProductID: pA, Qty: MaxItemQty + 1}}, wantErr: ErrInvalidQuantity},
		{name: "merged qty overflows", in: []ItemInput{{ProductID: pA, Qty: 1 << 62}, {ProductID: pA, Qty: 1 << 62}}, wantErr: ErrInvalidQuantity},
		{name: "merged qty past column range", in: []ItemInput{{ProductID: pA, Qty: MaxItemQty}, {ProductID: pA, Qty: 1}}, wantErr: ErrInvalidQuantity},
		{
			name: "merged qty at the bound",
			in:   []ItemInput{{ProductID: pA, Qty: MaxItemQty - 1}, {ProductID: pA, Qty: 1}},
			want: []ItemInput{{ProductID: pA, Qty: MaxItemQty}},
		},
		{name: "not a uuid", in: []ItemInput{{ProductID: "sku-1", Qty: 1}}, wantErr: ErrProductNotFound},
		{
			name: "duplicates merge at first position",
			in:   []ItemInput{{ProductID: pB, Qty: 1}, {ProductID: pA, Qty: 2}, {ProductID: pB, Qty: 3}},
			want: []ItemInput{{ProductID: pB, Qty: 4}, {ProductID: pA, Qty: 2}},
		},
		{
			name: "uppercase ids are canonicalised",
			in:   []ItemInput{{ProductID: "0B9F4C1E-3A8E-4C51-9F0E-6F3C2A1D0001", Qty: 1}, {ProductID: pA, Qty: 1}},
			want: []ItemInput{{ProductID: pA, Qty: 2}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeItems(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLockOrderIsSorted(t *testing.T) {
	got := LockOrder([]ItemInput{{ProductID: pB}, {ProductID: pA}})
	if !slices.Equal(got, []string{pA, pB}) {
		t.Errorf("LockOrder = %v", got)
	}
}
