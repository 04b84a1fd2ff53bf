package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/i474232898/series-dashboard/internal/series"
)

// ParquetSource loads one remote Parquet snapshot.
type ParquetSource struct {
	id        series.Identity
	url       string
	withBatch bool
	client    *Client
	now       func() time.Time
}

// NewParquetSource creates a source for the plain readings snapshot, or for
// the batch snapshot when withBatch is true.
func NewParquetSource(client *Client, id series.Identity, url string, withBatch bool) *ParquetSource {
	return &ParquetSource{
		id:        id,
		url:       url,
		withBatch: withBatch,
		client:    client,
		now:       time.Now,
	}
}

func (s *ParquetSource) Identity() series.Identity { return s.id }

func (s *ParquetSource) URL() string { return s.url }

// Fetch downloads, decodes and fingerprints the snapshot.
func (s *ParquetSource) Fetch(ctx context.Context) (*series.Dataset, error) {
	started := s.now()
	body, err := s.client.Get(ctx, s.url)
	if err != nil {
		return nil, err
	}

	readings, err := DecodeReadings(body, s.withBatch)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", series.ErrFetchFailure, s.url, err)
	}

	ds := series.NewDataset(s.id, s.url, s.now().UTC(), Fingerprint(body), readings)
	s.client.log.Info().
		Str("dataset", string(s.id)).
		Int("rows", ds.Len()).
		Int("bytes", len(body)).
		Dur("took", s.now().Sub(started)).
		Msg("remote: dataset loaded")
	return ds, nil
}
