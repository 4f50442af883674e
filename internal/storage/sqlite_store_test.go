package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	store := NewSqliteStore(filepath.Join(t.TempDir(), "ledger.db"))
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return store
}

func testMeasurement(idx int, status string) *Measurement {
	started := time.Date(2026, 3, 1, 12, 0, idx, 0, time.UTC)
	m := &Measurement{
		Index:         idx,
		ScheduledAt:   &started,
		StartedAt:     started,
		FinishedAt:    started.Add(40 * time.Millisecond),
		Requested:     6912,
		Accepted:      6912,
		Fetches:       3,
		Overflows:     1,
		ClippedChunks: 0,
		MaxI:          0.5,
		MaxQ:          0.25,
		Bytes:         27648,
		Status:        status,
		Files:         []string{"capture_raw_m0000.sc16.dat"},
		ChunkSizes:    map[int]int{2304: 3},
	}
	if status != "complete" {
		msg := "measurement timed out"
		m.Error = &msg
		m.Accepted = 2304
	}
	return m
}

func TestSqliteStore_Sessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	config := map[string]any{"samples": 6912, "datapath": "raw"}
	id, err := store.CreateSession(ctx, "run-1", "sim", "sim0", config)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if _, err = store.CreateSession(ctx, "run-2", "uhd", "30F1234", nil); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if _, err = store.CreateSession(ctx, "run-1", "sim", "sim0", nil); err == nil {
		t.Errorf("Expected duplicate run ID to be rejected")
	}

	end := time.Now()
	if err = store.FinishSession(ctx, id, end, true); err != nil {
		t.Fatalf("Failed to finish session: %v", err)
	}
	if err = store.FinishSession(ctx, 999, end, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	sess, err := store.Session(ctx, id)
	if err != nil {
		t.Fatalf("Failed to read session: %v", err)
	}
	if sess.RunID != "run-1" || sess.DeviceType != "sim" || sess.DeviceID != "sim0" {
		t.Errorf("Unexpected session: %+v", sess)
	}
	if !sess.Cancelled {
		t.Errorf("Expected session to be cancelled")
	}
	if sess.EndTime == nil || !sess.EndTime.Equal(end.UTC()) {
		t.Errorf("Expected end time %v, got %v", end, sess.EndTime)
	}
	if sess.Config == nil || *sess.Config != `{"datapath":"raw","samples":6912}` {
		t.Errorf("Unexpected config: %v", sess.Config)
	}

	if _, err = store.Session(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[1].EndTime != nil || sessions[1].Config != nil {
		t.Errorf("Expected unfinished session without config, got %+v", sessions[1])
	}
}

func TestSqliteStore_Measurements(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateSession(ctx, "run-1", "sim", "sim0", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	for i, status := range []string{"complete", "timeout", "complete"} {
		if _, err = store.StoreMeasurement(ctx, id, testMeasurement(i, status)); err != nil {
			t.Fatalf("Failed to store measurement %d: %v", i, err)
		}
	}
	if _, err = store.StoreMeasurement(ctx, id, testMeasurement(1, "complete")); err == nil {
		t.Errorf("Expected duplicate measurement index to be rejected")
	}

	sess, err := store.Session(ctx, id)
	if err != nil {
		t.Fatalf("Failed to read session: %v", err)
	}
	if sess.Measurements != 3 {
		t.Errorf("Expected 3 measurements, got %d", sess.Measurements)
	}

	reader, err := store.ReadMeasurements(ctx, id)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer reader.Close()

	var got []*Measurement
	for reader.Next(ctx) {
		got = append(got, reader.Current())
	}
	if err = reader.Error(); err != nil {
		t.Fatalf("Failed to read measurements: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 measurements, got %d", len(got))
	}

	want := testMeasurement(1, "timeout")
	m := got[1]
	if m.Index != 1 || m.Status != "timeout" || m.Accepted != want.Accepted || m.Requested != want.Requested {
		t.Errorf("Unexpected measurement: %+v", m)
	}
	if m.Error == nil || *m.Error != *want.Error {
		t.Errorf("Expected error %q, got %v", *want.Error, m.Error)
	}
	if m.ScheduledAt == nil || !m.ScheduledAt.Equal(*want.ScheduledAt) {
		t.Errorf("Expected scheduled time %v, got %v", want.ScheduledAt, m.ScheduledAt)
	}
	if !m.FinishedAt.Equal(want.FinishedAt) {
		t.Errorf("Expected finish time %v, got %v", want.FinishedAt, m.FinishedAt)
	}
	if len(m.Files) != 1 || m.Files[0] != want.Files[0] {
		t.Errorf("Expected files %v, got %v", want.Files, m.Files)
	}
	if m.ChunkSizes[2304] != 3 {
		t.Errorf("Expected chunk sizes %v, got %v", want.ChunkSizes, m.ChunkSizes)
	}
	if got[0].Error != nil {
		t.Errorf("Expected no error for complete measurement, got %q", *got[0].Error)
	}
}

func TestSqliteStore_ReaderFilters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateSession(ctx, "run-1", "sim", "sim0", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	statuses := []string{"complete", "timeout", "complete", "fatal", "complete"}
	for i, status := range statuses {
		if _, err = store.StoreMeasurement(ctx, id, testMeasurement(i, status)); err != nil {
			t.Fatalf("Failed to store measurement %d: %v", i, err)
		}
	}

	tests := []struct {
		name string
		opts []ReaderOption
		want []int
	}{
		{name: "all", want: []int{0, 1, 2, 3, 4}},
		{name: "range", opts: []ReaderOption{WithIndexRange(1, 3)}, want: []int{1, 2, 3}},
		{name: "status", opts: []ReaderOption{WithStatus("timeout", "fatal")}, want: []int{1, 3}},
		{name: "range and status", opts: []ReaderOption{WithIndexRange(2, 4), WithStatus("complete")}, want: []int{2, 4}},
		{name: "empty", opts: []ReaderOption{WithStatus("stopped")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := store.ReadMeasurements(ctx, id, tt.opts...)
			if err != nil {
				t.Fatalf("Failed to create reader: %v", err)
			}
			defer reader.Close()

			var got []int
			for reader.Next(ctx) {
				got = append(got, reader.Current().Index)
			}
			if err := reader.Error(); err != nil {
				t.Fatalf("Failed to read measurements: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected indexes %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Expected indexes %v, got %v", tt.want, got)
					break
				}
			}
		})
	}

	if _, err = store.ReadMeasurements(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err = store.ReadMeasurements(ctx, id, WithIndexRange(3, 1)); err == nil {
		t.Errorf("Expected invalid range to be rejected")
	}
}
