package telemetry

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/device"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/infrastructure/database"
	"github.com/jowe81/ll-kasa-bridge-sub001/migrations"
)

func openEventLog(t *testing.T) *EventLog {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewEventLog(db.DB)
}

func TestEventLog_RecordAndList(t *testing.T) {
	log := openEventLog(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	events := []Entry{
		{Channel: 5, Alias: "Desk Lamp", Event: device.EventOnline, OccurredAt: base},
		{Channel: 5, Alias: "Desk Lamp", Event: device.EventPowerOn, OccurredAt: base.Add(time.Second)},
		{Channel: 4, Alias: "Fan", Event: device.EventPowerOff, OccurredAt: base.Add(2 * time.Second)},
		{Channel: 5, Alias: "Desk Lamp", Event: device.EventLightState, Payload: map[string]any{"brightness": float64(40)}, OccurredAt: base.Add(1500 * time.Millisecond)},
	}
	for i := range events {
		if err := log.Record(ctx, &events[i]); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if events[i].ID == 0 {
			t.Errorf("event %d: ID not set", i)
		}
	}

	got, err := log.ListByChannel(ctx, 5, 0)
	if err != nil {
		t.Fatalf("ListByChannel() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}

	wantOrder := []string{device.EventLightState, device.EventPowerOn, device.EventOnline}
	for i, w := range wantOrder {
		if got[i].Event != w {
			t.Errorf("entries[%d] = %s, want %s", i, got[i].Event, w)
		}
	}
	if got[0].Payload["brightness"] != float64(40) {
		t.Errorf("payload = %v", got[0].Payload)
	}
	if !got[2].OccurredAt.Equal(base) {
		t.Errorf("occurredAt = %v, want %v", got[2].OccurredAt, base)
	}

	limited, err := log.ListByChannel(ctx, 5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limited entries = %d, want 1", len(limited))
	}
}

func TestEventLog_RecordRejectsUnnamed(t *testing.T) {
	log := openEventLog(t)
	if err := log.Record(context.Background(), &Entry{Channel: 1}); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("Record() error = %v, want ErrInvalidEvent", err)
	}
}

func TestEventLog_Prune(t *testing.T) {
	log := openEventLog(t)
	ctx := context.Background()

	old := &Entry{Channel: 1, Event: device.EventPowerOn, OccurredAt: time.Now().Add(-48 * time.Hour)}
	recent := &Entry{Channel: 1, Event: device.EventPowerOff}
	for _, e := range []*Entry{old, recent} {
		if err := log.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	n, err := log.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}

	if _, err := log.Prune(ctx, 0); err == nil {
		t.Error("expected error for non-positive duration")
	}
}

func TestEventLogSink_Notify(t *testing.T) {
	log := openEventLog(t)
	sink := NewEventLogSink(log)
	ctx := context.Background()

	err := sink.Notify(ctx, device.TelemetryEvent{Name: device.EventPowerOn, Channel: 9, Alias: "Porch", Time: time.Now()})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	got, err := log.ListByChannel(ctx, 9, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Alias != "Porch" {
		t.Errorf("entries = %+v", got)
	}
}

func TestEventLog_DatabaseErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	log := NewEventLog(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO device_events")).
		WillReturnError(errors.New("disk I/O error"))
	if err := log.Record(ctx, &Entry{Channel: 1, Event: device.EventPowerOn}); err == nil {
		t.Error("Record() expected error")
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, channel, alias, event, payload, occurred_at")).
		WithArgs(3, defaultEventLimit).
		WillReturnError(errors.New("database is locked"))
	if _, err := log.ListByChannel(ctx, 3, 0); err == nil {
		t.Error("ListByChannel() expected error")
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, channel, alias, event, payload, occurred_at")).
		WithArgs(3, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "channel", "alias", "event", "payload", "occurred_at"}).
			AddRow(1, 3, "", "power-on", "{}", "not-a-time"))
	if _, err := log.ListByChannel(ctx, 3, 10); err == nil {
		t.Error("ListByChannel() expected timestamp parse error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
