package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeySignature_IgnoresColumnOrder(t *testing.T) {
	a := NewKeySignature("ORDER_ITEMS", []string{"ORDER_ID", "PRODUCT_ID"}, "LINES", []string{"ORDER_ID", "PRODUCT_ID"})
	b := NewKeySignature("ORDER_ITEMS", []string{"PRODUCT_ID", "ORDER_ID"}, "LINES", []string{"PRODUCT_ID", "ORDER_ID"})
	assert.Equal(t, a, b)

	seen := map[KeySignature]bool{a: true}
	assert.True(t, seen[b])

	other := NewKeySignature("ORDER_ITEMS", []string{"ORDER_ID"}, "ORDERS", []string{"ID"})
	assert.NotEqual(t, a, other)
	assert.Equal(t, "ORDER_ITEMS(ORDER_ID)->ORDERS(ID)", other.String())
}

func TestNewKeySignature_DoesNotMutateInput(t *testing.T) {
	cols := []string{"B", "A"}
	NewKeySignature("T", cols, "U", cols)
	assert.Equal(t, []string{"B", "A"}, cols)
}

func TestKeySignature_Less(t *testing.T) {
	a := NewKeySignature("A", []string{"X"}, "B", []string{"ID"})
	b := NewKeySignature("A", []string{"Y"}, "B", []string{"ID"})
	c := NewKeySignature("B", []string{"X"}, "A", []string{"ID"})

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
	assert.False(t, a.Less(a))
}

func TestForeignKeyConstraint_Pairs(t *testing.T) {
	fk := &ForeignKeyConstraint{
		SourceObject:  "ORDER_LINES",
		SourceColumns: []string{"ORDER_ID", "LINE_NO"},
		TargetObject:  "ORDER_ITEMS",
		TargetColumns: []string{"ORDER_ID", "PRODUCT_ID"},
	}

	assert.True(t, fk.IsComposite())
	assert.Equal(t, []ColumnPair{
		{Source: ColumnRef{Object: "ORDER_LINES", Column: "ORDER_ID"}, Target: ColumnRef{Object: "ORDER_ITEMS", Column: "ORDER_ID"}},
		{Source: ColumnRef{Object: "ORDER_LINES", Column: "LINE_NO"}, Target: ColumnRef{Object: "ORDER_ITEMS", Column: "PRODUCT_ID"}},
	}, fk.Pairs())
}

func TestPrimaryKeyConstraint(t *testing.T) {
	pk := &PrimaryKeyConstraint{Object: "ORDERS", Columns: []string{"ID"}}
	assert.False(t, pk.IsComposite())
	assert.True(t, pk.Contains("ID"))
	assert.False(t, pk.Contains("CUSTOMER_ID"))
}

func TestNormalizedConstraints_ForeignKeysBySource(t *testing.T) {
	mk := func(src, col, tgt string) *ForeignKeyConstraint {
		return &ForeignKeyConstraint{
			Signature:     NewKeySignature(src, []string{col}, tgt, []string{"ID"}),
			SourceObject:  src,
			SourceColumns: []string{col},
			TargetObject:  tgt,
			TargetColumns: []string{"ID"},
		}
	}
	n := &NormalizedConstraints{ForeignKeys: map[KeySignature]*ForeignKeyConstraint{}}
	for _, fk := range []*ForeignKeyConstraint{
		mk("ORDERS", "CUSTOMER_ID", "CUSTOMERS"),
		mk("SHIPMENTS", "ORDER_ID", "ORDERS"),
		mk("ORDERS", "ADDRESS_ID", "ADDRESSES"),
	} {
		n.ForeignKeys[fk.Signature] = fk
	}

	sorted := n.SortedForeignKeys()
	require.Len(t, sorted, 3)
	assert.Equal(t, "SHIPMENTS", sorted[2].SourceObject)

	orders := n.ForeignKeysBySource("ORDERS")
	require.Len(t, orders, 2)
	assert.Equal(t, "ADDRESS_ID", orders[0].SourceColumns[0])
	assert.Equal(t, "CUSTOMER_ID", orders[1].SourceColumns[0])

	assert.Empty(t, n.ForeignKeysBySource("PRODUCTS"))
}
