package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flight-fare-monitor/internal/domain"
)

// HistoryWriter records delivery outcomes against an alert.
type HistoryWriter interface {
	AppendNotification(ctx context.Context, record domain.NotificationRecord) error
}

// sendTimeout bounds the channel send, never the DeliverAt deferral.
const sendTimeout = 30 * time.Second

// Dispatcher fans a notification out to the configured channels without
// blocking the monitoring loop. Delivery failures are recorded, never
// propagated; a trigger record is not rolled back on failed delivery.
type Dispatcher struct {
	notifiers []Notifier
	history   HistoryWriter
	logger    zerolog.Logger
	wg        sync.WaitGroup
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewDispatcher constructs a dispatcher over the configured channels.
func NewDispatcher(notifiers []Notifier, history HistoryWriter, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		history:   history,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		stop:      make(chan struct{}),
	}
}

// Dispatch hands the notification off asynchronously and returns immediately.
// A DeliverAt in the future holds the notification until that time; shutdown
// flushes held notifications instead of dropping them.
func (d *Dispatcher) Dispatch(note Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.awaitDeliverAt(note.DeliverAt)
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		d.deliver(ctx, note)
	}()
}

// DispatchSync delivers on the caller's goroutine; used by the simulate path.
func (d *Dispatcher) DispatchSync(ctx context.Context, note Notification) {
	d.deliver(ctx, note)
}

// Wait releases pending deferrals and blocks until every in-flight delivery
// finishes; called on shutdown.
func (d *Dispatcher) Wait() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
}

func (d *Dispatcher) awaitDeliverAt(at *time.Time) {
	if at == nil {
		return
	}
	delay := time.Until(*at)
	if delay <= 0 {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-d.stop:
	}
}

func (d *Dispatcher) deliver(ctx context.Context, note Notification) {
	for _, notifier := range d.notifiers {
		err := notifier.Notify(ctx, note)
		if err != nil {
			d.logger.Error().Err(err).
				Str("channel", notifier.Name()).
				Int64("alert_id", note.Alert.ID).
				Msg("notification delivery failed")
		}

		d.record(ctx, note, notifier.Name(), err == nil)
	}
}

func (d *Dispatcher) record(ctx context.Context, note Notification, channel string, success bool) {
	if d.history == nil {
		return
	}

	record := domain.NotificationRecord{
		ID:      uuid.NewString(),
		AlertID: note.Alert.ID,
		Channel: channel,
		Summary: fmt.Sprintf("[%s] %s", note.Urgency, note.Content.Title),
		Success: success,
		SentAt:  time.Now().UTC(),
	}
	if err := d.history.AppendNotification(ctx, record); err != nil {
		d.logger.Error().Err(err).Int64("alert_id", note.Alert.ID).Msg("failed to record notification history")
	}
}

// NotifyQualityChange satisfies the quality scorer's collaborator contract by
// reusing the first configured channel with a minimal payload.
func (d *Dispatcher) NotifyQualityChange(ctx context.Context, alert domain.Alert, previous, current float64) error {
	if len(d.notifiers) == 0 {
		return nil
	}
	note := Notification{Alert: alert}
	note.Content.Title = fmt.Sprintf("Alert quality improved: %.2f -> %.2f", previous, current)
	note.Content.Body = fmt.Sprintf("Alert %d now scores %.2f (was %.2f).\n", alert.ID, current, previous)
	return d.notifiers[0].Notify(ctx, note)
}
