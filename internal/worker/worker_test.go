package worker

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/paywatch/paywatch/internal/models"
)

// fakeSource serves a fixed batch and records acknowledgments.
type fakeSource struct {
	mu       sync.Mutex
	records  []models.RawIngestionRecord
	acked    [][]string
	fetchErr error
	ackErr   error
	fetches  int
}

func (f *fakeSource) GetUnprocessedBatch(ctx context.Context, limit int) ([]models.RawIngestionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeSource) MarkProcessed(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acked = append(f.acked, ids)
	return nil
}

// fakeIngestor fails for record ids listed in failFor.
type fakeIngestor struct {
	mu      sync.Mutex
	failFor map[string]bool
	calls   int
	block   chan struct{}
}

func (f *fakeIngestor) Ingest(ctx context.Context, raw map[string]interface{}, hint string) (*models.NormalizedPaymentEvent, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if id, _ := raw["transactional_id"].(string); f.failFor[id] {
		return nil, errors.New("normalization failed")
	}
	return models.NewEvent(), nil
}

func record(id string) models.RawIngestionRecord {
	return models.RawIngestionRecord{
		ID: id,
		Payload: models.RawPayload{
			Data:            map[string]interface{}{"id": "pi_" + id},
			Merchant:        models.Merchant{ID: "m1", Name: "acme", Country: "US"},
			TransactionalID: id,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestRunOnceAcksOnlySuccesses(t *testing.T) {
	source := &fakeSource{records: []models.RawIngestionRecord{record("id1"), record("id2"), record("id3")}}
	ingestor := &fakeIngestor{failFor: map[string]bool{"id2": true}}

	w := New(source, ingestor, time.Minute, 100)
	processed, failed, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if processed != 2 || failed != 1 {
		t.Errorf("processed/failed = %d/%d, want 2/1", processed, failed)
	}
	if len(source.acked) != 1 {
		t.Fatalf("ack calls = %d, want a single batch call", len(source.acked))
	}
	if want := []string{"id1", "id3"}; !reflect.DeepEqual(source.acked[0], want) {
		t.Errorf("acked = %v, want %v", source.acked[0], want)
	}
}

func TestRunOnceEmptyBatch(t *testing.T) {
	source := &fakeSource{}
	w := New(source, &fakeIngestor{}, time.Minute, 100)

	processed, failed, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if processed != 0 || failed != 0 {
		t.Errorf("processed/failed = %d/%d, want 0/0", processed, failed)
	}
	if len(source.acked) != 0 {
		t.Error("no acknowledgment expected for an empty batch")
	}
}

func TestRunOnceRespectsBatchLimit(t *testing.T) {
	source := &fakeSource{records: []models.RawIngestionRecord{record("id1"), record("id2"), record("id3")}}
	ingestor := &fakeIngestor{}

	w := New(source, ingestor, time.Minute, 2)
	processed, _, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if processed != 2 {
		t.Errorf("processed = %d, want 2 (batch limit)", processed)
	}
}

func TestRunOnceFetchFailurePropagates(t *testing.T) {
	source := &fakeSource{fetchErr: errors.New("data lake unavailable")}
	w := New(source, &fakeIngestor{}, time.Minute, 100)

	if _, _, err := w.RunOnce(context.Background()); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
}

func TestRunOnceAckFailureLeavesRecordsEligible(t *testing.T) {
	source := &fakeSource{
		records: []models.RawIngestionRecord{record("id1")},
		ackErr:  errors.New("connection reset"),
	}
	w := New(source, &fakeIngestor{}, time.Minute, 100)

	_, _, err := w.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected acknowledgment failure to surface")
	}
	if len(source.acked) != 0 {
		t.Error("no records may be marked processed when the ack call fails")
	}
}

func TestOverlappingCyclesAreSkipped(t *testing.T) {
	source := &fakeSource{records: []models.RawIngestionRecord{record("id1")}}
	ingestor := &fakeIngestor{block: make(chan struct{})}
	w := New(source, ingestor, time.Minute, 100)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.cycle(context.Background())
	}()

	// Wait for the first cycle to be inside Ingest, then fire a second
	// tick; it must be dropped, not queued.
	deadline := time.After(2 * time.Second)
	for {
		ingestor.mu.Lock()
		started := ingestor.calls > 0
		ingestor.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first cycle never started")
		case <-time.After(time.Millisecond):
		}
	}

	w.cycle(context.Background())

	source.mu.Lock()
	fetches := source.fetches
	source.mu.Unlock()
	if fetches != 1 {
		t.Errorf("fetches = %d, want 1 (second tick skipped)", fetches)
	}

	close(ingestor.block)
	wg.Wait()
}

func TestStartIsIdempotent(t *testing.T) {
	source := &fakeSource{}
	w := New(source, &fakeIngestor{}, time.Hour, 100)

	ctx := context.Background()
	w.Start(ctx)
	w.Start(ctx)
	w.Stop()

	source.mu.Lock()
	defer source.mu.Unlock()
	// One immediate drain from the single running loop.
	if source.fetches != 1 {
		t.Errorf("fetches = %d, want 1", source.fetches)
	}
}
