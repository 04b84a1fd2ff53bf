package series

import (
	"errors"
	"math"
	"testing"
	"time"
)

var day0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// daily builds one reading per day for src starting at day0.
func daily(src string, values ...float64) []Reading {
	out := make([]Reading, len(values))
	for i, v := range values {
		out[i] = Reading{Source: src, Timestamp: day0.AddDate(0, 0, i), Value: v}
	}
	return out
}

func averages(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.MovingAverage
	}
	return out
}

func TestRollingMean_Example(t *testing.T) {
	rows := daily("A", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	got, err := RollingMean(rows, 3)
	if err != nil {
		t.Fatalf("RollingMean: %v", err)
	}

	want := []float64{1, 1.5, 2, 3, 4, 5, 6, 7, 8, 9}
	for i, w := range want {
		if got[i].MovingAverage != w {
			t.Fatalf("position %d: got %v, want %v (all: %v)", i, got[i].MovingAverage, w, averages(got))
		}
	}
}

func TestRollingMean_FirstPositionIsRawValue(t *testing.T) {
	rows := daily("A", 4.25, 9, 1)
	for w := 1; w <= 5; w++ {
		got, err := RollingMean(rows, w)
		if err != nil {
			t.Fatalf("window %d: %v", w, err)
		}
		if got[0].MovingAverage != 4.25 {
			t.Errorf("window %d: position 0 got %v, want 4.25", w, got[0].MovingAverage)
		}
	}
}

func TestRollingMean_FullWindows(t *testing.T) {
	values := []float64{3, 8, 1, 9, 4, 7, 2, 6}
	rows := daily("A", values...)
	const w = 4

	got, err := RollingMean(rows, w)
	if err != nil {
		t.Fatal(err)
	}
	for i := w - 1; i < len(values); i++ {
		var sum float64
		for _, v := range values[i-w+1 : i+1] {
			sum += v
		}
		if math.Abs(got[i].MovingAverage-sum/w) > 1e-12 {
			t.Errorf("position %d: got %v, want %v", i, got[i].MovingAverage, sum/w)
		}
	}
}

func TestRollingMean_SortsUnorderedGroups(t *testing.T) {
	rows := []Reading{
		{Source: "A", Timestamp: day0.AddDate(0, 0, 2), Value: 3},
		{Source: "A", Timestamp: day0, Value: 1},
		{Source: "A", Timestamp: day0.AddDate(0, 0, 1), Value: 2},
	}

	got, err := RollingMean(rows, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 1.5, 2.5}
	for i, w := range want {
		if got[i].MovingAverage != w {
			t.Fatalf("got %v, want %v", averages(got), want)
		}
	}
	if !got[0].Timestamp.Equal(day0) {
		t.Fatalf("expected output sorted by timestamp, first is %v", got[0].Timestamp)
	}
}

func TestRollingMean_TiesKeepIngestionOrder(t *testing.T) {
	ds := NewDataset(IdentityReadings, "u", day0, "fp", []Reading{
		{Source: "A", Timestamp: day0, Value: 10},
		{Source: "A", Timestamp: day0, Value: 20},
		{Source: "A", Timestamp: day0, Value: 30},
	})

	got, err := RollingMean(ds.Readings(), 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []float64{10, 20, 30} {
		if got[i].Value != want {
			t.Fatalf("position %d: got %v, want %v", i, got[i].Value, want)
		}
	}
}

func TestRollingMean_GroupsIndependently(t *testing.T) {
	rows := append(daily("A", 1, 3), daily("B", 100, 200)...)

	got, err := RollingMean(rows, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(rows) {
		t.Fatalf("size changed: got %d rows, want %d", len(got), len(rows))
	}
	want := []float64{1, 2, 100, 150}
	for i, w := range want {
		if got[i].MovingAverage != w {
			t.Fatalf("got %v, want %v", averages(got), want)
		}
	}
	if got[2].Source != "B" || got[2].Value != 100 {
		t.Fatalf("existing columns must be preserved, got %+v", got[2])
	}
}

func TestRollingMean_MixedMagnitudes(t *testing.T) {
	got, err := RollingMean(daily("A", 1e6, 0.1, 0.2, 0.3), 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []float64{1e6, 0.1, 0.2, 0.3} {
		if got[i].MovingAverage != want {
			t.Errorf("window 1, position %d: got %v, want the raw value %v", i, got[i].MovingAverage, want)
		}
	}

	got, err = RollingMean(daily("A", 1e17, 1, 1, 1), 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1e17, 5e16, 1, 1}
	for i := range want {
		if got[i].MovingAverage != want[i] {
			t.Fatalf("window 2: got %v, want %v", averages(got), want)
		}
	}
}

func TestRollingMean_RejectsNonPositiveWindow(t *testing.T) {
	for _, w := range []int{0, -1} {
		if _, err := RollingMean(daily("A", 1), w); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("window %d: got %v, want ErrInvalidParameter", w, err)
		}
	}
}

func TestRollingMean_Empty(t *testing.T) {
	got, err := RollingMean(nil, 3)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v/%v, want empty result and no error", got, err)
	}
}

func TestGroupPoints(t *testing.T) {
	points, _ := RollingMean(append(daily("TQ2_Au_L", 1, 2), daily("REJ_Au_S", 3)...), 1)

	series := GroupPoints(points)
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}
	if series[0].Source != "TQ2_Au_L" || series[0].Kind != KindLiquid || len(series[0].Points) != 2 {
		t.Errorf("unexpected first series: %+v", series[0])
	}
	if series[1].Kind != KindSolid {
		t.Errorf("expected solid kind, got %s", series[1].Kind)
	}
}

func TestSortByBatch(t *testing.T) {
	b := func(n int64) *int64 { return &n }
	points := []Point{
		{Source: "B", Batch: b(2), Timestamp: day0},
		{Source: "A", Batch: b(5), Timestamp: day0},
		{Source: "A", Batch: nil, Timestamp: day0},
		{Source: "A", Batch: b(1), Timestamp: day0.AddDate(0, 0, 3)},
	}

	got := SortByBatch(points, NewSourceOrder(nil))

	if got[0].Source != "A" || *got[0].Batch != 1 {
		t.Errorf("first: %+v", got[0])
	}
	if *got[1].Batch != 5 || got[2].Batch != nil || got[3].Source != "B" {
		t.Errorf("unexpected order: %+v", got)
	}
}
