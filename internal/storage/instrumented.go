package storage

import (
	"context"

	"github.com/lancelop89/shorts-tracker/internal/metrics"
)

type instrumentedStore struct {
	next    Store
	metrics *metrics.Metrics
	backend string
}

// Instrument records the outcome and latency of every store operation.
func Instrument(store Store, m *metrics.Metrics, backend string) Store {
	if m == nil {
		return store
	}
	return &instrumentedStore{next: store, metrics: m, backend: backend}
}

func (s *instrumentedStore) ReadAll(ctx context.Context) (*Snapshot, error) {
	timer := metrics.NewTimer()
	snapshot, err := s.next.ReadAll(ctx)
	s.metrics.RecordStoreOp(s.backend, "read_all", metrics.Status(err), timer.ObserveDuration())
	return snapshot, err
}

func (s *instrumentedStore) InitializeSchema(ctx context.Context, header []string) error {
	timer := metrics.NewTimer()
	err := s.next.InitializeSchema(ctx, header)
	s.metrics.RecordStoreOp(s.backend, "initialize_schema", metrics.Status(err), timer.ObserveDuration())
	return err
}

func (s *instrumentedStore) AppendRows(ctx context.Context, rows []Row) error {
	timer := metrics.NewTimer()
	err := s.next.AppendRows(ctx, rows)
	s.metrics.RecordStoreOp(s.backend, "append_rows", metrics.Status(err), timer.ObserveDuration())
	return err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
