package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flight-fare-monitor/internal/domain"
)

type recordingNotifier struct {
	name  string
	err   error
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(_ context.Context, note Notification) error {
	r.mu.Lock()
	r.notes = append(r.notes, note)
	r.mu.Unlock()
	return r.err
}

type recordingHistory struct {
	mu      sync.Mutex
	records []domain.NotificationRecord
}

func (r *recordingHistory) AppendNotification(_ context.Context, record domain.NotificationRecord) error {
	r.mu.Lock()
	r.records = append(r.records, record)
	r.mu.Unlock()
	return nil
}

func TestDispatchRecordsHistory(t *testing.T) {
	notifier := &recordingNotifier{name: "ok"}
	history := &recordingHistory{}
	dispatcher := NewDispatcher([]Notifier{notifier}, history, testLogger())

	dispatcher.Dispatch(testNotification())
	dispatcher.Wait()

	if len(notifier.notes) != 1 {
		t.Fatalf("expected one delivery, got %d", len(notifier.notes))
	}
	if len(history.records) != 1 {
		t.Fatalf("expected one history record, got %d", len(history.records))
	}
	record := history.records[0]
	if !record.Success || record.Channel != "ok" || record.ID == "" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestDispatchHoldsUntilDeliverAt(t *testing.T) {
	notifier := &recordingNotifier{name: "ok"}
	history := &recordingHistory{}
	dispatcher := NewDispatcher([]Notifier{notifier}, history, testLogger())

	note := testNotification()
	deliverAt := time.Now().Add(2 * time.Hour)
	note.DeliverAt = &deliverAt
	dispatcher.Dispatch(note)

	time.Sleep(100 * time.Millisecond)
	notifier.mu.Lock()
	early := len(notifier.notes)
	notifier.mu.Unlock()
	if early != 0 {
		t.Fatalf("deferred notification delivered early: %d deliveries", early)
	}

	dispatcher.Wait()
	if len(notifier.notes) != 1 {
		t.Fatalf("shutdown must flush the deferred notification, got %d deliveries", len(notifier.notes))
	}
	if len(history.records) != 1 {
		t.Fatalf("deferred delivery must still be recorded, got %d records", len(history.records))
	}
}

func TestDispatchPastDeliverAtSendsImmediately(t *testing.T) {
	notifier := &recordingNotifier{name: "ok"}
	dispatcher := NewDispatcher([]Notifier{notifier}, nil, testLogger())

	note := testNotification()
	deliverAt := time.Now().Add(-time.Minute)
	note.DeliverAt = &deliverAt
	dispatcher.Dispatch(note)
	dispatcher.Wait()

	if len(notifier.notes) != 1 {
		t.Fatalf("past DeliverAt must deliver immediately, got %d deliveries", len(notifier.notes))
	}
}

func TestDispatchFailureRecordedNotPropagated(t *testing.T) {
	notifier := &recordingNotifier{name: "broken", err: errors.New("unreachable")}
	history := &recordingHistory{}
	dispatcher := NewDispatcher([]Notifier{notifier}, history, testLogger())

	dispatcher.DispatchSync(context.Background(), testNotification())

	if len(history.records) != 1 {
		t.Fatalf("failed delivery must still be recorded, got %d records", len(history.records))
	}
	if history.records[0].Success {
		t.Fatal("record must mark the delivery as failed")
	}
}

func TestDispatchAllChannels(t *testing.T) {
	first := &recordingNotifier{name: "first", err: errors.New("down")}
	second := &recordingNotifier{name: "second"}
	dispatcher := NewDispatcher([]Notifier{first, second}, nil, testLogger())

	dispatcher.DispatchSync(context.Background(), testNotification())

	if len(first.notes) != 1 || len(second.notes) != 1 {
		t.Fatal("a failing channel must not stop later channels")
	}
}

func TestNotifyQualityChangeUsesFirstChannel(t *testing.T) {
	first := &recordingNotifier{name: "first"}
	second := &recordingNotifier{name: "second"}
	dispatcher := NewDispatcher([]Notifier{first, second}, nil, testLogger())

	alert := domain.Alert{ID: 9}
	if err := dispatcher.NotifyQualityChange(context.Background(), alert, 0.4, 0.7); err != nil {
		t.Fatalf("quality change notify failed: %v", err)
	}
	if len(first.notes) != 1 || len(second.notes) != 0 {
		t.Fatal("quality change should use only the first channel")
	}

	empty := NewDispatcher(nil, nil, testLogger())
	if err := empty.NotifyQualityChange(context.Background(), alert, 0.4, 0.7); err != nil {
		t.Fatalf("no channels should be a no-op, got %v", err)
	}
}
