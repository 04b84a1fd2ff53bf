package series

import (
	"sort"

	"github.com/i474232898/series-dashboard/internal/common"
)

// SourceKind is the material class encoded in a source id suffix.
type SourceKind string

const (
	KindLiquid SourceKind = "liquid"
	KindSolid  SourceKind = "solid"
	KindOther  SourceKind = "other"
)

// ClassifySource derives the kind of a source from its suffix.
func ClassifySource(src string) SourceKind {
	switch {
	case common.HasAnySuffix(src, "_L"):
		return KindLiquid
	case common.HasAnySuffix(src, "_S"):
		return KindSolid
	default:
		return KindOther
	}
}

// SourceOrder is the canonical display order of sources. Listed sources come
// first in list order; unlisted ones follow in natural sort order.
type SourceOrder struct {
	rank map[string]int
}

// NewSourceOrder builds an order from a preferred sequence.
func NewSourceOrder(preferred []string) SourceOrder {
	rank := make(map[string]int, len(preferred))
	for i, src := range preferred {
		if _, dup := rank[src]; !dup {
			rank[src] = i
		}
	}
	return SourceOrder{rank: rank}
}

// Less reports whether a is displayed before b.
func (o SourceOrder) Less(a, b string) bool {
	ra, okA := o.rank[a]
	rb, okB := o.rank[b]
	switch {
	case okA && okB:
		return ra < rb
	case okA:
		return true
	case okB:
		return false
	default:
		return a < b
	}
}

// Sort returns a sorted copy of sources.
func (o SourceOrder) Sort(sources []string) []string {
	out := make([]string, len(sources))
	copy(out, sources)
	sort.SliceStable(out, func(i, j int) bool { return o.Less(out[i], out[j]) })
	return out
}
