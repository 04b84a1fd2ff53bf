package series

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/i474232898/series-dashboard/internal/session"
)

// View describes one dashboard page: which dataset it reads, which sources
// it is restricted to and how its session defaults are derived.
type View struct {
	Name    string   `json:"name"`
	Title   string   `json:"title"`
	Dataset Identity `json:"dataset"`
	// Sources restricts the view to a fixed list; nil means every source.
	Sources []string `json:"sources,omitempty"`
	// Batches enables the batch range filter and the per-batch table.
	Batches bool `json:"batches"`

	WindowSize   int       `json:"-"`
	LookbackDays int       `json:"-"` // 0 keeps the full span
	DateFloor    time.Time `json:"-"`
	// UntilToday ends the default period no later than the current date.
	UntilToday bool `json:"-"`
}

// DefaultViews returns the liquid, temporal and batch views.
func DefaultViews(liquid []string, window, lookbackDays int, batchFloor time.Time) []View {
	return []View{
		{
			Name:         "liquid",
			Title:        "Moving averages - liquids",
			Dataset:      IdentityReadings,
			Sources:      liquid,
			WindowSize:   window,
			LookbackDays: lookbackDays,
		},
		{
			Name:         "temporal",
			Title:        "Time series",
			Dataset:      IdentityReadings,
			WindowSize:   window,
			LookbackDays: lookbackDays,
		},
		{
			Name:       "batch",
			Title:      "Comparison by batch",
			Dataset:    IdentityBatches,
			Batches:    true,
			WindowSize: 1,
			DateFloor:  batchFloor,
			UntilToday: true,
		},
	}
}

// SourceInfo describes one selectable source.
type SourceInfo struct {
	Source  string     `json:"source"`
	Kind    SourceKind `json:"kind"`
	Enabled bool       `json:"enabled"`
}

// DatasetInfo is the provenance of the dataset a result was computed from.
type DatasetInfo struct {
	Identity    Identity  `json:"identity"`
	URL         string    `json:"url"`
	FetchedAt   time.Time `json:"fetchedAt"`
	Fingerprint string    `json:"fingerprint"`
	Rows        int       `json:"rows"`
}

// ViewResult is everything the renderer needs to draw a view.
type ViewResult struct {
	View      string       `json:"view"`
	Title     string       `json:"title"`
	Dataset   *DatasetInfo `json:"dataset,omitempty"`
	Selection *Selection   `json:"selection,omitempty"`
	Sources   []SourceInfo `json:"sources"`
	DataSpan  *Period      `json:"dataSpan,omitempty"`
	BatchSpan *BatchRange  `json:"batchSpan,omitempty"`
	Series    []Series     `json:"series"`
	// Table holds the rows ordered by source and batch; batch views only.
	Table   []Point  `json:"table,omitempty"`
	Empty   bool     `json:"empty"`
	Notices []Notice `json:"notices"`
}

func (r *ViewResult) warn(msg string) *ViewResult {
	r.Empty = true
	r.Notices = append(r.Notices, Notice{Level: NoticeWarning, Message: msg})
	return r
}

// SelectionUpdate carries the fields a user changed; nil fields stay as they are.
type SelectionUpdate struct {
	Period     *Period
	WindowSize *int
	Mode       *DisplayMode
	Batches    *BatchRange
	Sources    map[string]bool
}

// Validate rejects updates that would produce an invalid selection.
func (u SelectionUpdate) Validate() error {
	if u.WindowSize != nil && *u.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be a positive integer, got %d", ErrInvalidParameter, *u.WindowSize)
	}
	if u.Period != nil && u.Period.Start.After(u.Period.End) {
		return fmt.Errorf("%w: period start %s is after end %s", ErrInvalidParameter,
			u.Period.Start.Format(DateLayout), u.Period.End.Format(DateLayout))
	}
	if u.Batches != nil && u.Batches.Min > u.Batches.Max {
		return fmt.Errorf("%w: batch range min %d is greater than max %d", ErrInvalidParameter, u.Batches.Min, u.Batches.Max)
	}
	if u.Mode != nil && !u.Mode.Valid() {
		return fmt.Errorf("%w: unknown display mode %q", ErrInvalidParameter, *u.Mode)
	}
	return nil
}

// viewDefaults are the session defaults of a view for one dataset.
type viewDefaults struct {
	period  Period
	window  int
	mode    DisplayMode
	batches *BatchRange
	sources []string
}

func (v View) key(name string) string { return v.Name + "." + name }
func (v View) toggleKey(src string) string { return v.Name + ".toggle." + src }

func (d viewDefaults) values(v View) map[string]any {
	m := map[string]any{
		v.key("period"): d.period,
		v.key("window"): d.window,
		v.key("mode"):   d.mode,
	}
	if d.batches != nil {
		m[v.key("batches")] = *d.batches
	}
	for _, src := range d.sources {
		m[v.toggleKey(src)] = true
	}
	return m
}

// memo is the last result a session rendered for a view.
type memo struct {
	fingerprint string
	selection   string
	series      []Series
	table       []Point
}

func selectionKey(sel Selection) string {
	enabled := make([]string, 0, len(sel.Sources))
	for src := range sel.Sources {
		enabled = append(enabled, src)
	}
	sort.Strings(enabled)
	b := ""
	if sel.Batches != nil {
		b = fmt.Sprintf("%d-%d", sel.Batches.Min, sel.Batches.Max)
	}
	return fmt.Sprintf("%s|%s|%d|%s|%s", sel.Period.Start.Format(DateLayout), sel.Period.End.Format(DateLayout),
		sel.WindowSize, b, strings.Join(enabled, ","))
}

// Views returns the registered views in registration order.
func (s *Service) Views() []View {
	out := make([]View, 0, len(s.viewOrder))
	for _, name := range s.viewOrder {
		out = append(out, s.views[name])
	}
	return out
}

func (s *Service) view(name string) (View, error) {
	v, ok := s.views[name]
	if !ok {
		return View{}, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
	return v, nil
}

// Render runs the full pipeline for a view using the session's selection.
func (s *Service) Render(ctx context.Context, st *session.State, name string) (*ViewResult, error) {
	v, err := s.view(name)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, st, v, false, nil)
}

// UpdateSelection validates and stores the changed fields, then renders.
func (s *Service) UpdateSelection(ctx context.Context, st *session.State, name string, upd SelectionUpdate) (*ViewResult, error) {
	v, err := s.view(name)
	if err != nil {
		return nil, err
	}
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	if upd.Period != nil {
		st.Set(v.key("period"), Period{Start: DayOf(upd.Period.Start), End: DayOf(upd.Period.End)})
	}
	if upd.WindowSize != nil {
		st.Set(v.key("window"), *upd.WindowSize)
	}
	if upd.Mode != nil {
		st.Set(v.key("mode"), *upd.Mode)
	}
	if upd.Batches != nil && v.Batches {
		st.Set(v.key("batches"), *upd.Batches)
	}
	for src, enabled := range upd.Sources {
		st.Set(v.toggleKey(src), enabled)
	}
	return s.render(ctx, st, v, false, nil)
}

// ResetFilters restores the view defaults, recomputed from the current dataset.
func (s *Service) ResetFilters(ctx context.Context, st *session.State, name string) (*ViewResult, error) {
	v, err := s.view(name)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, st, v, true, nil)
}

// ForceReload drops the cached dataset of the view regardless of TTL and
// fingerprint, forgets the session's digest and renders from a fresh fetch.
func (s *Service) ForceReload(ctx context.Context, st *session.State, name string) (*ViewResult, error) {
	v, err := s.view(name)
	if err != nil {
		return nil, err
	}
	s.Invalidate(v.Dataset)
	st.Delete(fingerprintKey(v.Dataset))
	st.Delete(v.key("memo"))
	return s.render(ctx, st, v, false, []Notice{{Level: NoticeInfo, Message: msgReloaded}})
}

func (s *Service) render(ctx context.Context, st *session.State, v View, reset bool, notices []Notice) (*ViewResult, error) {
	res := &ViewResult{
		View:    v.Name,
		Title:   v.Title,
		Sources: []SourceInfo{},
		Series:  []Series{},
		Notices: append([]Notice{}, notices...),
	}
	invalidated := s.Refresh(ctx, v.Dataset)

	ds, err := s.Load(ctx, v.Dataset)
	if err != nil {
		s.log.Error().Err(err).Str("view", v.Name).Msg("view: dataset unavailable")
		return res.warn(msgNoDataset), nil
	}
	if changed := s.observe(st, v.Dataset, ds.Fingerprint); invalidated || changed {
		res.Notices = append(res.Notices, Notice{Level: NoticeInfo, Message: msgNewContent})
	}
	res.Dataset = &DatasetInfo{
		Identity:    ds.Identity,
		URL:         ds.URL,
		FetchedAt:   ds.FetchedAt,
		Fingerprint: ds.Fingerprint,
		Rows:        ds.Len(),
	}

	available := s.available(v, ds)
	if len(available) == 0 {
		return res.warn(msgNoSources), nil
	}
	first, last, _ := ds.SourceSpan(available)
	res.DataSpan = &Period{Start: DayOf(first), End: DayOf(last)}

	defaults := s.defaults(v, ds, available)
	if reset {
		st.DeletePrefix(v.Name + ".toggle.")
		st.Delete(v.key("memo"))
		st.Reset(defaults.values(v))
	}
	sel := s.selection(st, v, defaults)

	for _, src := range available {
		res.Sources = append(res.Sources, SourceInfo{Source: src, Kind: ClassifySource(src), Enabled: sel.Sources.Has(src)})
	}
	if v.Batches {
		enabled := make([]string, 0, len(sel.Sources))
		for _, src := range available {
			if sel.Sources.Has(src) {
				enabled = append(enabled, src)
			}
		}
		if bmin, bmax, ok := ds.BatchSpan(enabled); ok {
			res.BatchSpan = &BatchRange{Min: bmin, Max: bmax}
		}
	}

	if err := ValidateSelection(sel); err != nil {
		return nil, err
	}
	res.Selection = &sel

	key := selectionKey(sel)
	if m, ok := session.Lookup[memo](st, v.key("memo")); ok && m.fingerprint == ds.Fingerprint && m.selection == key {
		res.Series, res.Table = m.series, m.table
		return res, nil
	}

	rows := Filter(ds, sel, s.order)
	if len(rows) == 0 {
		st.Delete(v.key("memo"))
		return res.warn(msgNoneSelected), nil
	}
	points, err := RollingMean(rows, sel.WindowSize)
	if err != nil {
		return nil, err
	}
	res.Series = GroupPoints(points)
	if v.Batches {
		res.Table = SortByBatch(points, s.order)
	}
	st.Set(v.key("memo"), memo{fingerprint: ds.Fingerprint, selection: key, series: res.Series, table: res.Table})
	return res, nil
}

// available lists the view's sources present in ds, in display order.
func (s *Service) available(v View, ds *Dataset) []string {
	if v.Sources == nil {
		return s.order.Sort(ds.sources)
	}
	var out []string
	for _, src := range v.Sources {
		if ds.HasSource(src) {
			out = append(out, src)
		}
	}
	return s.order.Sort(out)
}

// defaults derives the view defaults from the observed span of ds.
func (s *Service) defaults(v View, ds *Dataset, available []string) viewDefaults {
	first, last, _ := ds.SourceSpan(available)
	start, end := DayOf(first), DayOf(last)
	if v.LookbackDays > 0 {
		if back := end.AddDate(0, 0, -v.LookbackDays); back.After(start) {
			start = back
		}
	}
	if !v.DateFloor.IsZero() && v.DateFloor.After(start) {
		start = DayOf(v.DateFloor)
	}
	if today := DayOf(s.now()); v.UntilToday && end.After(today) {
		end = today
	}
	if start.After(end) {
		end = start
	}

	window := v.WindowSize
	if window <= 0 {
		window = 1
	}
	d := viewDefaults{
		period:  Period{Start: start, End: end},
		window:  window,
		mode:    DisplayCombined,
		sources: available,
	}
	if v.Batches {
		if bmin, bmax, ok := ds.BatchSpan(available); ok {
			d.batches = &BatchRange{Min: bmin, Max: bmax}
		}
	}
	return d
}

// selection reads the session's selection, seeding missing keys with defaults.
func (s *Service) selection(st *session.State, v View, d viewDefaults) Selection {
	sel := Selection{
		Period:     session.Value(st, v.key("period"), d.period),
		WindowSize: session.Value(st, v.key("window"), d.window),
		Mode:       session.Value(st, v.key("mode"), d.mode),
		Sources:    NewSourceSet(),
	}
	if d.batches != nil {
		b := session.Value(st, v.key("batches"), *d.batches)
		sel.Batches = &b
	}
	for _, src := range d.sources {
		if session.Value(st, v.toggleKey(src), true) {
			sel.Sources[src] = struct{}{}
		}
	}
	return sel
}
