package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/device"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500

	// timeLayout is fixed-width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// Entry is one stored device event.
type Entry struct {
	ID         int64          `json:"id"`
	Channel    int            `json:"channel"`
	Alias      string         `json:"alias,omitempty"`
	Event      string         `json:"event"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// EventLog stores device events in the device_events table.
type EventLog struct {
	db *sql.DB
}

// NewEventLog creates an event log over an open, migrated database.
func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db}
}

// Record inserts an event. OccurredAt defaults to now.
func (l *EventLog) Record(ctx context.Context, e *Entry) error {
	if e.Event == "" {
		return ErrInvalidEvent
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling event payload: %w", err)
	}

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO device_events (channel, alias, event, payload, occurred_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.Channel,
		e.Alias,
		e.Event,
		string(payloadJSON),
		e.OccurredAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting device event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// ListByChannel returns recent events for a channel, newest first.
// limit defaults to 50 and is capped at 500.
func (l *EventLog) ListByChannel(ctx context.Context, channel, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, channel, alias, event, payload, occurred_at
		 FROM device_events
		 WHERE channel = ?
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`,
		channel,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device events: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e           Entry
			payloadJSON string
			occurredAt  string
		)
		if err := rows.Scan(&e.ID, &e.Channel, &e.Alias, &e.Event, &payloadJSON, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning device event: %w", err)
		}
		if payloadJSON != "" && payloadJSON != "{}" {
			if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
				return nil, fmt.Errorf("unmarshalling event payload: %w", err)
			}
		}
		ts, err := time.Parse(timeLayout, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing occurred_at: %w", err)
		}
		e.OccurredAt = ts
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device events: %w", err)
	}
	return entries, nil
}

// Prune deletes events older than olderThan and returns how many went.
func (l *EventLog) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := l.db.ExecContext(ctx, "DELETE FROM device_events WHERE occurred_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting device events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// EventLogSink records pool telemetry in an EventLog.
type EventLogSink struct {
	log *EventLog
}

// NewEventLogSink creates a sink over log.
func NewEventLogSink(log *EventLog) *EventLogSink {
	return &EventLogSink{log: log}
}

// Notify implements device.TelemetrySink.
func (s *EventLogSink) Notify(ctx context.Context, ev device.TelemetryEvent) error {
	return s.log.Record(ctx, &Entry{
		Channel:    ev.Channel,
		Alias:      ev.Alias,
		Event:      ev.Name,
		OccurredAt: ev.Time,
	})
}
