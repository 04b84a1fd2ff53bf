package remote

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/deprecated"

	"github.com/i474232898/series-dashboard/internal/series"
)

// Column names of the remote snapshots.
const (
	ColumnSource    = "Fonte"
	ColumnTimestamp = "DataHoraReal"
	ColumnValue     = "Valor"
	ColumnBatch     = "Batelada"
)

const julianUnixEpoch = 2440588

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

type columns struct {
	source, timestamp, value, batch int
	// unit of the timestamp column as declared by its logical type; 0 when undeclared.
	unit time.Duration
	// decimal is set when the value column is a DECIMAL with the given scale.
	decimal bool
	scale   int32
}

// DecodeReadings parses a Parquet snapshot into readings. Rows with a null
// source, timestamp or value, or a NaN value, are skipped. withBatch requires
// the batch column; a null batch leaves Reading.Batch nil.
func DecodeReadings(body []byte, withBatch bool) ([]series.Reading, error) {
	f, err := parquet.OpenFile(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	cols, err := resolveColumns(f.Schema(), withBatch)
	if err != nil {
		return nil, err
	}

	readings := make([]series.Reading, 0, f.NumRows())
	buf := make([]parquet.Row, 512)
	for _, rg := range f.RowGroups() {
		rows := rg.Rows()
		for {
			n, readErr := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				r, ok, convErr := cols.reading(row)
				if convErr != nil {
					rows.Close()
					return nil, convErr
				}
				if ok {
					readings = append(readings, r)
				}
			}
			if errors.Is(readErr, io.EOF) {
				break
			}
			if readErr != nil {
				rows.Close()
				return nil, fmt.Errorf("read rows: %w", readErr)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("close rows: %w", err)
		}
	}
	return readings, nil
}

func resolveColumns(schema *parquet.Schema, withBatch bool) (columns, error) {
	find := func(name string) (parquet.LeafColumn, error) {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return parquet.LeafColumn{}, fmt.Errorf("missing column %q", name)
		}
		return leaf, nil
	}

	cols := columns{batch: -1}
	src, err := find(ColumnSource)
	if err != nil {
		return cols, err
	}
	ts, err := find(ColumnTimestamp)
	if err != nil {
		return cols, err
	}
	val, err := find(ColumnValue)
	if err != nil {
		return cols, err
	}
	cols.source, cols.timestamp, cols.value = src.ColumnIndex, ts.ColumnIndex, val.ColumnIndex
	cols.unit = timestampUnit(ts.Node)
	if lt := val.Node.Type().LogicalType(); lt != nil && lt.Decimal != nil {
		cols.decimal, cols.scale = true, lt.Decimal.Scale
	}

	if withBatch {
		b, err := find(ColumnBatch)
		if err != nil {
			return cols, err
		}
		cols.batch = b.ColumnIndex
	}
	return cols, nil
}

func timestampUnit(node parquet.Node) time.Duration {
	lt := node.Type().LogicalType()
	if lt == nil || lt.Timestamp == nil {
		return 0
	}
	switch u := lt.Timestamp.Unit; {
	case u.Nanos != nil:
		return time.Nanosecond
	case u.Micros != nil:
		return time.Microsecond
	case u.Millis != nil:
		return time.Millisecond
	}
	return 0
}

func (c columns) reading(row parquet.Row) (series.Reading, bool, error) {
	var (
		r                   series.Reading
		hasSrc, hasTS, hasV bool
	)
	for _, v := range row {
		if v.IsNull() {
			continue
		}
		switch v.Column() {
		case c.source:
			r.Source = strings.TrimSpace(string(v.ByteArray()))
			hasSrc = r.Source != ""
		case c.timestamp:
			ts, err := toTime(v, c.unit)
			if err != nil {
				return r, false, err
			}
			r.Timestamp, hasTS = ts, true
		case c.value:
			f, ok := c.toValue(v)
			if ok && !math.IsNaN(f) {
				r.Value, hasV = f, true
			}
		case c.batch:
			if b, ok := toInt(v); ok {
				r.Batch = &b
			}
		}
	}
	return r, hasSrc && hasTS && hasV, nil
}

func toTime(v parquet.Value, unit time.Duration) (time.Time, error) {
	switch v.Kind() {
	case parquet.Int64:
		return fromEpoch(v.Int64(), unit), nil
	case parquet.Int96:
		return fromInt96(v.Int96()), nil
	case parquet.Int32:
		// DATE logical type: days since the Unix epoch.
		return time.Unix(int64(v.Int32())*86400, 0).UTC(), nil
	case parquet.ByteArray:
		return parseTimestamp(string(v.ByteArray()))
	default:
		return time.Time{}, fmt.Errorf("column %q: unsupported kind %s", ColumnTimestamp, v.Kind())
	}
}

// fromEpoch converts an epoch count. Without a declared unit the unit is
// inferred from the magnitude.
func fromEpoch(n int64, unit time.Duration) time.Time {
	if unit == 0 {
		abs := n
		if abs < 0 {
			abs = -abs
		}
		switch {
		case abs >= 1e17:
			unit = time.Nanosecond
		case abs >= 1e14:
			unit = time.Microsecond
		case abs >= 1e11:
			unit = time.Millisecond
		default:
			unit = time.Second
		}
	}
	switch unit {
	case time.Nanosecond:
		return time.Unix(0, n).UTC()
	case time.Microsecond:
		return time.UnixMicro(n).UTC()
	case time.Millisecond:
		return time.UnixMilli(n).UTC()
	default:
		return time.Unix(n, 0).UTC()
	}
}

// fromInt96 decodes the legacy Impala timestamp: nanoseconds of day followed
// by the Julian day number.
func fromInt96(v deprecated.Int96) time.Time {
	nanos := uint64(v[1])<<32 | uint64(v[0])
	days := int64(v[2]) - julianUnixEpoch
	return time.Unix(days*86400, int64(nanos)).UTC()
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("column %q: unrecognised timestamp %q", ColumnTimestamp, s)
}

func (c columns) toValue(v parquet.Value) (float64, bool) {
	if !c.decimal {
		return toFloat(v)
	}
	var unscaled *big.Int
	switch v.Kind() {
	case parquet.Int32:
		unscaled = big.NewInt(int64(v.Int32()))
	case parquet.Int64:
		unscaled = big.NewInt(v.Int64())
	case parquet.FixedLenByteArray, parquet.ByteArray:
		unscaled = fromTwosComplement(v.ByteArray())
	default:
		return 0, false
	}
	f, _ := new(big.Rat).SetFrac(unscaled, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(c.scale)), nil)).Float64()
	return f, true
}

// fromTwosComplement decodes a big-endian two's complement integer.
func fromTwosComplement(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return n
}

func toFloat(v parquet.Value) (float64, bool) {
	switch v.Kind() {
	case parquet.Double:
		return v.Double(), true
	case parquet.Float:
		return float64(v.Float()), true
	case parquet.Int32:
		return float64(v.Int32()), true
	case parquet.Int64:
		return float64(v.Int64()), true
	case parquet.ByteArray:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(string(v.ByteArray()), ",", ".")), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v parquet.Value) (int64, bool) {
	switch v.Kind() {
	case parquet.Int32:
		return int64(v.Int32()), true
	case parquet.Int64:
		return v.Int64(), true
	case parquet.Double:
		f := v.Double()
		if math.IsNaN(f) || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case parquet.Float:
		f := float64(v.Float())
		if math.IsNaN(f) || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case parquet.ByteArray:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v.ByteArray())), 10, 64)
		return n, err == nil
	}
	return 0, false
}
