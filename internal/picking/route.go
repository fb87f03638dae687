package picking

import (
	"fmt"
	"sort"
)

const unassignedLocation = "unassigned"

// sortRoute orders items by (zone, aisle, shelf, position) and renumbers them
// 1..N. Items without a location go last. The sort is stable over the current
// sequence, so sorting an already sorted list changes nothing.
func sortRoute(items []Item) ([]Item, RouteSummary) {
	out := make([]Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SequenceNumber != out[j].SequenceNumber {
			return out[i].SequenceNumber < out[j].SequenceNumber
		}
		return out[i].ID < out[j].ID
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.HasLocation() != b.HasLocation() {
			return a.HasLocation()
		}
		if a.Zone != b.Zone {
			return a.Zone < b.Zone
		}
		if a.Aisle != b.Aisle {
			return a.Aisle < b.Aisle
		}
		if a.Shelf != b.Shelf {
			return a.Shelf < b.Shelf
		}
		return a.Position < b.Position
	})

	summary := RouteSummary{Zones: []string{}, TotalLocations: len(out)}
	seen := make(map[string]struct{})
	for i := range out {
		out[i].SequenceNumber = i + 1
		if !out[i].HasLocation() {
			continue
		}
		if _, ok := seen[out[i].Zone]; !ok {
			seen[out[i].Zone] = struct{}{}
			summary.Zones = append(summary.Zones, out[i].Zone)
		}
	}
	return out, summary
}

func describeLocation(item Item) string {
	if !item.HasLocation() {
		return unassignedLocation
	}
	return fmt.Sprintf("%s/%s-%s-%s", item.Zone, item.Aisle, item.Shelf, item.Position)
}
