package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/pkg/logger"
)

// EventRecord is one entry of the vehicle event log
type EventRecord struct {
	ID        int64           `json:"id"`
	SystemID  uint8           `json:"system_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// RecordEvent appends an event to the log
func (s *Storage) RecordEvent(ev events.Event, at time.Time) (int64, error) {
	payload, err := json.Marshal(events.Payload(ev))
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s payload: %w", ev.Kind(), err)
	}

	result, err := s.db.Exec(
		`INSERT INTO vehicle_events (system_id, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		events.SystemOf(ev),
		string(ev.Kind()),
		string(payload),
		at.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// RecentEvents returns up to limit events of a vehicle, newest first
func (s *Storage) RecentEvents(systemID uint8, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, system_id, kind, payload, created_at
		FROM vehicle_events
		WHERE system_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, systemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	records := make([]EventRecord, 0, limit)
	for rows.Next() {
		var (
			r       EventRecord
			payload string
			created int64
		)
		if err := rows.Scan(&r.ID, &r.SystemID, &r.Kind, &payload, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		r.CreatedAt = time.UnixMilli(created).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return records, nil
}

// PruneEvents deletes events older than the cutoff
func (s *Storage) PruneEvents(before time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM vehicle_events WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return result.RowsAffected()
}

// recordedKinds are the events worth keeping in the log. Telemetry
// updates are not recorded.
var recordedKinds = map[events.Kind]bool{
	events.KindStatusChanged:       true,
	events.KindModeChanged:         true,
	events.KindSystemTypeChanged:   true,
	events.KindHeartbeatTimeout:    true,
	events.KindLowBatteryAlarm:     true,
	events.KindVoltageAlert:        true,
	events.KindDiagnostic:          true,
	events.KindCommandAck:          true,
	events.KindVehicleAdded:        true,
	events.KindVehicleRemoved:      true,
	events.KindCalibrationFinished: true,
}

type pendingEvent struct {
	ev events.Event
	at time.Time
}

// EventRecorder persists bus events on its own goroutine so publishers
// never wait on the database
type EventRecorder struct {
	storage *Storage
	logger  *logger.Logger
	queue   chan pendingEvent
	now     func() time.Time

	unsubscribe func()
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewEventRecorder creates a recorder with room for queueSize events
func NewEventRecorder(storage *Storage, queueSize int, log *logger.Logger) *EventRecorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &EventRecorder{
		storage: storage,
		logger:  log.Named("event-log"),
		queue:   make(chan pendingEvent, queueSize),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start subscribes to the bus and begins writing
func (r *EventRecorder) Start(ctx context.Context, bus *events.Bus) error {
	r.unsubscribe = bus.Subscribe(r.enqueue)

	r.wg.Add(1)
	go r.writeLoop(ctx)
	return nil
}

func (r *EventRecorder) enqueue(ev events.Event) {
	if !recordedKinds[ev.Kind()] {
		return
	}
	select {
	case r.queue <- pendingEvent{ev: ev, at: r.now()}:
	default:
		r.logger.Warn("Event log queue full, dropping event", String("kind", string(ev.Kind())))
	}
}

func (r *EventRecorder) writeLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case p := <-r.queue:
			r.write(p)
		case <-r.stopCh:
			r.drain()
			return
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *EventRecorder) drain() {
	for {
		select {
		case p := <-r.queue:
			r.write(p)
		default:
			return
		}
	}
}

func (r *EventRecorder) write(p pendingEvent) {
	if _, err := r.storage.RecordEvent(p.ev, p.at); err != nil {
		r.logger.Error("Failed to record event", String("kind", string(p.ev.Kind())), Error(err))
	}
}

// Stop unsubscribes and flushes the queue
func (r *EventRecorder) Stop() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	close(r.stopCh)
	r.wg.Wait()
}
