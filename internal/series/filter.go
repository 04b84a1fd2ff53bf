package series

import "fmt"

// ValidateSelection rejects selections that cannot be processed.
func ValidateSelection(sel Selection) error {
	if sel.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be a positive integer, got %d", ErrInvalidParameter, sel.WindowSize)
	}
	if sel.Period.Start.After(sel.Period.End) {
		return fmt.Errorf("%w: period start %s is after end %s", ErrInvalidParameter,
			sel.Period.Start.Format(DateLayout), sel.Period.End.Format(DateLayout))
	}
	if sel.Batches != nil && sel.Batches.Min > sel.Batches.Max {
		return fmt.Errorf("%w: batch range min %d is greater than max %d", ErrInvalidParameter, sel.Batches.Min, sel.Batches.Max)
	}
	if !sel.Mode.Valid() {
		return fmt.Errorf("%w: unknown display mode %q", ErrInvalidParameter, sel.Mode)
	}
	return nil
}

// Filter returns the readings of ds matching sel. Rows are grouped by source
// in display order and time ordered within each group. An empty result is
// not an error.
func Filter(ds *Dataset, sel Selection, order SourceOrder) []Reading {
	if ds.Len() == 0 || len(sel.Sources) == 0 {
		return nil
	}

	var out []Reading
	for _, src := range order.Sort(ds.sources) {
		if !sel.Sources.Has(src) {
			continue
		}
		for _, p := range ds.index[src] {
			r := ds.readings[p]
			if !sel.Period.Contains(r.Timestamp) {
				continue
			}
			if sel.Batches != nil && (r.Batch == nil || !sel.Batches.Contains(*r.Batch)) {
				continue
			}
			out = append(out, r)
		}
	}
	return out
}
