package series

import (
	"encoding/json"
	"sort"
	"time"
)

// Identity names one independently cached remote dataset.
type Identity string

const (
	// IdentityReadings is the plain readings snapshot.
	IdentityReadings Identity = "readings"
	// IdentityBatches is the snapshot whose rows carry a batch id.
	IdentityBatches Identity = "batches"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Reading is a single time-stamped value reported by a source.
// Timestamps are timezone-naive and kept as UTC wall clock.
type Reading struct {
	Source    string
	Timestamp time.Time
	Value     float64
	Batch     *int64 // only set in the batch dataset

	seq int // ingestion order, tie-break for equal timestamps
}

// Point is a Reading enriched with its moving average.
type Point struct {
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	Value         float64   `json:"value"`
	Batch         *int64    `json:"batch,omitempty"`
	MovingAverage float64   `json:"movingAverage"`

	seq int
}

// Dataset is an immutable, fully parsed snapshot of a remote resource.
type Dataset struct {
	Identity    Identity
	URL         string
	FetchedAt   time.Time
	Fingerprint string

	readings []Reading
	// index holds, per source, positions into readings sorted by (timestamp, ingestion order).
	index   map[string][]int
	sources []string
}

// NewDataset copies readings, stamps their ingestion order and builds the
// per-source time index.
func NewDataset(id Identity, url string, fetchedAt time.Time, fingerprint string, readings []Reading) *Dataset {
	rows := make([]Reading, len(readings))
	copy(rows, readings)

	index := make(map[string][]int)
	for i := range rows {
		rows[i].seq = i
		index[rows[i].Source] = append(index[rows[i].Source], i)
	}

	sources := make([]string, 0, len(index))
	for src, pos := range index {
		sort.SliceStable(pos, func(a, b int) bool {
			return rows[pos[a]].Timestamp.Before(rows[pos[b]].Timestamp)
		})
		sources = append(sources, src)
	}
	sort.Strings(sources)

	return &Dataset{
		Identity:    id,
		URL:         url,
		FetchedAt:   fetchedAt,
		Fingerprint: fingerprint,
		readings:    rows,
		index:       index,
		sources:     sources,
	}
}

// Len returns the number of readings.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.readings)
}

// Readings returns a copy of the readings in ingestion order.
func (d *Dataset) Readings() []Reading {
	out := make([]Reading, len(d.readings))
	copy(out, d.readings)
	return out
}

// Sources returns a copy of the distinct sources in natural sort order.
func (d *Dataset) Sources() []string {
	out := make([]string, len(d.sources))
	copy(out, d.sources)
	return out
}

// HasSource reports whether the dataset contains at least one reading for src.
func (d *Dataset) HasSource(src string) bool {
	_, ok := d.index[src]
	return ok
}

// SourceSpan returns the earliest and latest timestamps among the given
// sources. ok is false when none of them has readings.
func (d *Dataset) SourceSpan(sources []string) (first, last time.Time, ok bool) {
	for _, src := range sources {
		pos := d.index[src]
		if len(pos) == 0 {
			continue
		}
		lo := d.readings[pos[0]].Timestamp
		hi := d.readings[pos[len(pos)-1]].Timestamp
		if !ok || lo.Before(first) {
			first = lo
		}
		if !ok || hi.After(last) {
			last = hi
		}
		ok = true
	}
	return first, last, ok
}

// BatchSpan returns the smallest and largest batch ids among the given sources.
func (d *Dataset) BatchSpan(sources []string) (lo, hi int64, ok bool) {
	for _, src := range sources {
		for _, p := range d.index[src] {
			b := d.readings[p].Batch
			if b == nil {
				continue
			}
			if !ok || *b < lo {
				lo = *b
			}
			if !ok || *b > hi {
				hi = *b
			}
			ok = true
		}
	}
	return lo, hi, ok
}

// DayOf truncates t to its calendar date, ignoring time of day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DisplayMode selects how the renderer lays out series.
type DisplayMode string

const (
	DisplayCombined  DisplayMode = "combined"
	DisplayPerSource DisplayMode = "per-source"
)

// Valid reports whether m is a known display mode.
func (m DisplayMode) Valid() bool {
	return m == DisplayCombined || m == DisplayPerSource
}

// Period is an inclusive range of calendar dates.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the date of t falls within the period.
func (p Period) Contains(t time.Time) bool {
	day := DayOf(t)
	return !day.Before(p.Start) && !day.After(p.End)
}

func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}{p.Start.Format(DateLayout), p.End.Format(DateLayout)})
}

// BatchRange is an inclusive range of batch ids.
type BatchRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Contains reports whether batch lies within the range.
func (r BatchRange) Contains(batch int64) bool {
	return batch >= r.Min && batch <= r.Max
}

// SourceSet is the set of enabled source identifiers.
type SourceSet map[string]struct{}

// NewSourceSet builds a set from the given sources.
func NewSourceSet(sources ...string) SourceSet {
	s := make(SourceSet, len(sources))
	for _, src := range sources {
		s[src] = struct{}{}
	}
	return s
}

// Has reports whether src is in the set.
func (s SourceSet) Has(src string) bool {
	_, ok := s[src]
	return ok
}

// Selection is the effective filter a session applies to a dataset.
type Selection struct {
	Period     Period      `json:"period"`
	Sources    SourceSet   `json:"-"`
	WindowSize int         `json:"windowSize"`
	Batches    *BatchRange `json:"batchRange,omitempty"`
	Mode       DisplayMode `json:"displayMode"`
}
