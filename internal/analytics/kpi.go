package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// safeRatio divides, returning 0 for an empty denominator.
func safeRatio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func workflowCounts(total, completed int) WorkflowCounts {
	return WorkflowCounts{Total: total, Completed: completed, CompletionRate: safeRatio(completed, total)}
}

func buildAccuracy(ship ShipmentStats, pick PickListStats, scans ScanStats) Accuracy {
	return Accuracy{
		ExpectedUnits:     ship.ExpectedUnits,
		ReceivedUnits:     ship.ReceivedUnits,
		ReceivingAccuracy: safeRatio(ship.ReceivedUnits, ship.ExpectedUnits),
		RequestedUnits:    pick.RequestedUnits,
		PickedUnits:       pick.PickedUnits,
		PickingAccuracy:   safeRatio(pick.PickedUnits, pick.RequestedUnits),
		TotalScans:        scans.Total,
		SuccessfulScans:   scans.Successful,
		ScanSuccessRate:   safeRatio(scans.Successful, scans.Total),
	}
}

func buildUtilization(rows []LocationUsage) Utilization {
	out := Utilization{Locations: make([]LocationUsage, 0, len(rows))}
	var sum float64
	for _, row := range rows {
		row.Utilization = safeRatio(row.Current, row.Capacity)
		sum += row.Utilization
		out.Locations = append(out.Locations, row)
	}
	if len(out.Locations) > 0 {
		out.Average = sum / float64(len(out.Locations))
	}
	return out
}

// classifyVelocity ranks products by picked volume, ties broken by SKU, and
// assigns A to the top 20% of ranks, B to the next 30% and C to the rest.
func classifyVelocity(picks []ProductPicks) []VelocityEntry {
	sorted := make([]ProductPicks, 0, len(picks))
	for _, p := range picks {
		if p.Picked > 0 {
			sorted = append(sorted, p)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Picked != sorted[j].Picked {
			return sorted[i].Picked > sorted[j].Picked
		}
		return sorted[i].SKU < sorted[j].SKU
	})
	n := len(sorted)
	out := make([]VelocityEntry, 0, n)
	for i, p := range sorted {
		pct := float64(i) / float64(n)
		class := ClassC
		switch {
		case pct < 0.2:
			class = ClassA
		case pct < 0.5:
			class = ClassB
		}
		out = append(out, VelocityEntry{ProductPicks: p, Rank: i + 1, Class: class})
	}
	return out
}

// bucketFor maps days since the last movement to an aging bucket.
func bucketFor(days int) string {
	switch {
	case days < 30:
		return BucketFresh
	case days < 60:
		return BucketModerate
	case days <= 90:
		return BucketAging
	default:
		return BucketSlowMoving
	}
}

// bucketAges groups rows by age as of asOf. All four buckets are always
// present, in age order.
func bucketAges(rows []RowAge, asOf time.Time) []AgingBucket {
	buckets := []AgingBucket{
		{Bucket: BucketFresh, Value: decimal.Zero},
		{Bucket: BucketModerate, Value: decimal.Zero},
		{Bucket: BucketAging, Value: decimal.Zero},
		{Bucket: BucketSlowMoving, Value: decimal.Zero},
	}
	index := map[string]int{BucketFresh: 0, BucketModerate: 1, BucketAging: 2, BucketSlowMoving: 3}
	for _, row := range rows {
		days := int(asOf.Sub(row.LastUpdated).Hours() / 24)
		if days < 0 {
			days = 0
		}
		b := &buckets[index[bucketFor(days)]]
		b.Rows++
		b.Units += row.Quantity
		b.Value = b.Value.Add(row.UnitPrice.Mul(decimal.NewFromInt(int64(row.Quantity))))
	}
	return buckets
}
