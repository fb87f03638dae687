package picking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortRouteOrdersByLocation(t *testing.T) {
	items := []Item{
		{ID: 1, SequenceNumber: 1, LocationID: 30, Zone: "B", Aisle: "01", Shelf: "1", Position: "1"},
		{ID: 2, SequenceNumber: 2},
		{ID: 3, SequenceNumber: 3, LocationID: 10, Zone: "A", Aisle: "02", Shelf: "1", Position: "1"},
		{ID: 4, SequenceNumber: 4, LocationID: 11, Zone: "A", Aisle: "01", Shelf: "3", Position: "2"},
		{ID: 5, SequenceNumber: 5, LocationID: 12, Zone: "A", Aisle: "01", Shelf: "3", Position: "1"},
	}

	sorted, summary := sortRoute(items)
	ids := make([]int64, 0, len(sorted))
	for i, item := range sorted {
		require.Equal(t, i+1, item.SequenceNumber)
		ids = append(ids, item.ID)
	}
	require.Equal(t, []int64{5, 4, 3, 1, 2}, ids)
	require.Equal(t, []string{"A", "B"}, summary.Zones)
	require.Equal(t, 5, summary.TotalLocations)
	require.Equal(t, 1, items[0].SequenceNumber)

	again, _ := sortRoute(sorted)
	require.Equal(t, sorted, again)
}

func TestSortRouteKeepsOrderOfEqualLocations(t *testing.T) {
	items := []Item{
		{ID: 7, SequenceNumber: 2, LocationID: 1, Zone: "A", Aisle: "01"},
		{ID: 8, SequenceNumber: 1, LocationID: 1, Zone: "A", Aisle: "01"},
	}
	sorted, _ := sortRoute(items)
	require.Equal(t, int64(8), sorted[0].ID)
	require.Equal(t, int64(7), sorted[1].ID)
}

func TestApplyPick(t *testing.T) {
	item := Item{QuantityRequested: 5, Status: ItemPending}

	applyPick(&item, 2)
	require.Equal(t, 2, item.QuantityPicked)
	require.Equal(t, ItemShortPick, item.Status)
	require.Equal(t, 3, item.Remaining())

	applyPick(&item, 4)
	require.Equal(t, 5, item.QuantityPicked)
	require.Equal(t, 1, item.QuantityExcess)
	require.Equal(t, ItemPicked, item.Status)
	require.Zero(t, item.Remaining())
}

func TestDescribeLocation(t *testing.T) {
	require.Equal(t, "A/01-2-3", describeLocation(Item{LocationID: 1, Zone: "A", Aisle: "01", Shelf: "2", Position: "3"}))
	require.Equal(t, unassignedLocation, describeLocation(Item{}))
}
