package series

import (
	"fmt"
	"sort"
)

// RollingMean attaches a per-source moving average to every row. Each group
// is ordered by timestamp (ingestion order breaks ties) before windowing, and
// the value at position i is the mean of positions max(0, i-window+1)..i.
// The output has exactly one Point per input row; groups keep the order in
// which they first appear in rows.
func RollingMean(rows []Reading, window int) ([]Point, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window size must be a positive integer, got %d", ErrInvalidParameter, window)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var order []string
	groups := make(map[string][]Point)
	for _, r := range rows {
		if _, ok := groups[r.Source]; !ok {
			order = append(order, r.Source)
		}
		groups[r.Source] = append(groups[r.Source], Point{
			Source:    r.Source,
			Timestamp: r.Timestamp,
			Value:     r.Value,
			Batch:     r.Batch,
			seq:       r.seq,
		})
	}

	out := make([]Point, 0, len(rows))
	for _, src := range order {
		g := groups[src]
		sort.SliceStable(g, func(i, j int) bool {
			if g[i].Timestamp.Equal(g[j].Timestamp) {
				return g[i].seq < g[j].seq
			}
			return g[i].Timestamp.Before(g[j].Timestamp)
		})

		// Windows are summed afresh, never as a running sum.
		for i := range g {
			lo := i - window + 1
			if lo < 0 {
				lo = 0
			}
			var sum float64
			for _, p := range g[lo : i+1] {
				sum += p.Value
			}
			g[i].MovingAverage = sum / float64(i+1-lo)
		}
		out = append(out, g...)
	}
	return out, nil
}

// Series is the rows of one source, ready to be plotted as a trace.
type Series struct {
	Source string     `json:"source"`
	Kind   SourceKind `json:"kind"`
	Points []Point    `json:"points"`
}

// GroupPoints splits points into per-source series, preserving order.
func GroupPoints(points []Point) []Series {
	var out []Series
	for _, p := range points {
		if n := len(out); n == 0 || out[n-1].Source != p.Source {
			out = append(out, Series{Source: p.Source, Kind: ClassifySource(p.Source)})
		}
		last := &out[len(out)-1]
		last.Points = append(last.Points, p)
	}
	return out
}

// SortByBatch returns a copy of points ordered by source display order, then
// batch id, then timestamp. Rows without a batch sort last within a source.
func SortByBatch(points []Point, order SourceOrder) []Point {
	out := make([]Point, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Source != b.Source {
			return order.Less(a.Source, b.Source)
		}
		switch {
		case a.Batch == nil && b.Batch == nil:
		case a.Batch == nil:
			return false
		case b.Batch == nil:
			return true
		case *a.Batch != *b.Batch:
			return *a.Batch < *b.Batch
		}
		return a.Timestamp.Before(b.Timestamp)
	})
	return out
}
