package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"flight-fare-monitor/internal/domain"
)

const (
	alertColumns = `id,
        filter_id,
        version,
        current_price,
        target_price,
        drop_amount,
        drop_pct,
        quality_score,
        status,
        last_checked_at,
        created_at,
        updated_at`

	getAlertByFilterSQL = `SELECT ` + alertColumns + `
    FROM alerts
    WHERE filter_id = $1;`

	createAlertSQL = `INSERT INTO alerts (
        filter_id,
        current_price,
        target_price,
        drop_amount,
        drop_pct,
        quality_score,
        status
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING ` + alertColumns + `;`

	updateAlertStateSQL = `UPDATE alerts
    SET version         = version + 1,
        current_price   = $3,
        drop_amount     = $4,
        drop_pct        = $5,
        status          = $6,
        last_checked_at = $7,
        updated_at      = NOW()
    WHERE id = $1
      AND version = $2;`

	updateAlertQualitySQL = `UPDATE alerts
    SET version       = version + 1,
        quality_score = $3,
        updated_at    = NOW()
    WHERE id = $1
      AND version = $2;`

	listActiveAlertsSQL = `SELECT ` + alertColumns + `
    FROM alerts
    WHERE status IN ('active', 'triggered')
    ORDER BY id
    OFFSET $1 LIMIT $2;`

	appendTriggerSQL = `INSERT INTO alert_triggers (
        id,
        alert_id,
        price,
        provider,
        confidence,
        reasons,
        route,
        stats_at,
        fired_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    );`

	appendNotificationSQL = `INSERT INTO alert_notifications (
        id,
        alert_id,
        channel,
        summary,
        success,
        sent_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    );`

	listTriggersSQL = `SELECT id, alert_id, price, provider, confidence, reasons, route, stats_at, fired_at
    FROM alert_triggers
    WHERE alert_id = $1
    ORDER BY fired_at;`

	listNotificationsSQL = `SELECT id, alert_id, channel, summary, success, sent_at
    FROM alert_notifications
    WHERE alert_id = $1
    ORDER BY sent_at;`

	countFilterTriggersSQL = `SELECT COUNT(*)
    FROM alert_triggers t
    JOIN alerts a ON a.id = t.alert_id
    WHERE a.filter_id = $1
      AND t.fired_at >= $2;`

	countRouteTriggersSQL = `SELECT COUNT(*)
    FROM alert_triggers
    WHERE route = $1
      AND fired_at >= $2;`

	countFilterNotificationsSQL = `SELECT COUNT(*)
    FROM alert_notifications n
    JOIN alerts a ON a.id = n.alert_id
    WHERE a.filter_id = $1
      AND n.sent_at >= $2;`

	hasRouteSuccessSQL = `SELECT EXISTS (
        SELECT 1
        FROM alert_notifications n
        JOIN alert_triggers t ON t.alert_id = n.alert_id
        WHERE t.route = $1
          AND n.success = TRUE
          AND n.sent_at >= $2
    );`

	countLowQualityAlertsSQL = `SELECT COUNT(DISTINCT a.id)
    FROM alerts a
    JOIN alert_triggers t ON t.alert_id = a.id
    WHERE t.route = $1
      AND a.quality_score < 0.4
      AND t.fired_at >= $2;`
)

// GetAlertByFilter loads the filter's alert with its trigger and
// notification logs. Returns pgx.ErrNoRows when none exists yet.
func (s *Store) GetAlertByFilter(ctx context.Context, filterID int64) (domain.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Alert{}, err
	}

	rows, queryErr := pool.Query(ctx, getAlertByFilterSQL, filterID)
	if queryErr != nil {
		return domain.Alert{}, fmt.Errorf("get alert by filter: %w", queryErr)
	}

	if !rows.Next() {
		rows.Close()
		if rows.Err() != nil {
			return domain.Alert{}, rows.Err()
		}
		return domain.Alert{}, pgx.ErrNoRows
	}
	alert, scanErr := scanAlert(rows)
	rows.Close()
	if scanErr != nil {
		return domain.Alert{}, scanErr
	}

	if err := s.loadAlertLogs(ctx, &alert); err != nil {
		return domain.Alert{}, err
	}
	return alert, nil
}

// CreateAlert inserts the filter's first alert record.
func (s *Store) CreateAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Alert{}, err
	}

	rows, queryErr := pool.Query(ctx, createAlertSQL,
		alert.FilterID,
		alert.CurrentPrice.String(),
		alert.TargetPrice.String(),
		alert.DropAmount.String(),
		alert.DropPct,
		alert.QualityScore,
		string(alert.Status),
	)
	if queryErr != nil {
		return domain.Alert{}, fmt.Errorf("create alert: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return domain.Alert{}, rows.Err()
		}
		return domain.Alert{}, pgx.ErrNoRows
	}
	return scanAlert(rows)
}

// UpdateAlertState applies a status/price transition guarded by the alert's
// version; concurrent passes over the same filter cannot interleave writes.
func (s *Store) UpdateAlertState(ctx context.Context, alert domain.Alert) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, updateAlertStateSQL,
		alert.ID,
		alert.Version,
		alert.CurrentPrice.String(),
		alert.DropAmount.String(),
		alert.DropPct,
		string(alert.Status),
		alert.LastCheckedAt,
	)
	if execErr != nil {
		return fmt.Errorf("update alert state: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// UpdateAlertQuality writes a recomputed quality score under version guard.
func (s *Store) UpdateAlertQuality(ctx context.Context, alertID int64, version int64, score float64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, updateAlertQualitySQL, alertID, version, score)
	if execErr != nil {
		return fmt.Errorf("update alert quality: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ListActiveAlerts pages through alerts still being monitored, logs included.
func (s *Store) ListActiveAlerts(ctx context.Context, offset, limit int) ([]domain.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveAlertsSQL, offset, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list active alerts: %w", queryErr)
	}

	alerts := make([]domain.Alert, 0, limit)
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for i := range alerts {
		if err := s.loadAlertLogs(ctx, &alerts[i]); err != nil {
			return nil, err
		}
	}
	return alerts, nil
}

// AppendTrigger appends one entry to an alert's trigger log.
func (s *Store) AppendTrigger(ctx context.Context, trigger domain.Trigger) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, appendTriggerSQL,
		trigger.ID,
		trigger.AlertID,
		trigger.Price.String(),
		trigger.Provider,
		trigger.Confidence,
		trigger.Reasons,
		trigger.Route,
		trigger.StatsAt,
		trigger.FiredAt,
	)
	if execErr != nil {
		return fmt.Errorf("append trigger: %w", execErr)
	}
	return nil
}

// AppendNotification appends one entry to an alert's notification history.
func (s *Store) AppendNotification(ctx context.Context, record domain.NotificationRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, appendNotificationSQL,
		record.ID,
		record.AlertID,
		record.Channel,
		record.Summary,
		record.Success,
		record.SentAt,
	)
	if execErr != nil {
		return fmt.Errorf("append notification: %w", execErr)
	}
	return nil
}

// CountFilterTriggers counts trigger-log entries for a filter since a cutoff.
func (s *Store) CountFilterTriggers(ctx context.Context, filterID int64, since time.Time) (int, error) {
	return s.countOne(ctx, countFilterTriggersSQL, filterID, since)
}

// CountRouteTriggers counts trigger-log entries for a route since a cutoff.
func (s *Store) CountRouteTriggers(ctx context.Context, route string, since time.Time) (int, error) {
	return s.countOne(ctx, countRouteTriggersSQL, route, since)
}

// CountFilterNotifications counts dispatched notifications for a filter.
func (s *Store) CountFilterNotifications(ctx context.Context, filterID int64, since time.Time) (int, error) {
	return s.countOne(ctx, countFilterNotificationsSQL, filterID, since)
}

// HasRecentRouteSuccess reports whether a successful notification already
// referenced the route since the cutoff.
func (s *Store) HasRecentRouteSuccess(ctx context.Context, route string, since time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var exists bool
	if scanErr := pool.QueryRow(ctx, hasRouteSuccessSQL, route, since).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("route success check: %w", scanErr)
	}
	return exists, nil
}

// CountLowQualityAlerts counts recently-triggered low-quality alerts per route.
func (s *Store) CountLowQualityAlerts(ctx context.Context, route string, since time.Time) (int, error) {
	return s.countOne(ctx, countLowQualityAlertsSQL, route, since)
}

func (s *Store) countOne(ctx context.Context, sql string, args ...any) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int
	if scanErr := pool.QueryRow(ctx, sql, args...).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count query: %w", scanErr)
	}
	return count, nil
}

func (s *Store) loadAlertLogs(ctx context.Context, alert *domain.Alert) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	rows, queryErr := pool.Query(ctx, listTriggersSQL, alert.ID)
	if queryErr != nil {
		return fmt.Errorf("list triggers: %w", queryErr)
	}
	for rows.Next() {
		var (
			trigger  domain.Trigger
			priceStr string
		)
		if err := rows.Scan(&trigger.ID, &trigger.AlertID, &priceStr, &trigger.Provider,
			&trigger.Confidence, &trigger.Reasons, &trigger.Route, &trigger.StatsAt, &trigger.FiredAt); err != nil {
			rows.Close()
			return err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			rows.Close()
			return fmt.Errorf("parse trigger price: %w", convErr)
		}
		trigger.Price = price
		alert.Triggers = append(alert.Triggers, trigger)
	}
	rows.Close()
	if rows.Err() != nil {
		return rows.Err()
	}

	rows, queryErr = pool.Query(ctx, listNotificationsSQL, alert.ID)
	if queryErr != nil {
		return fmt.Errorf("list notifications: %w", queryErr)
	}
	defer rows.Close()
	for rows.Next() {
		var record domain.NotificationRecord
		if err := rows.Scan(&record.ID, &record.AlertID, &record.Channel,
			&record.Summary, &record.Success, &record.SentAt); err != nil {
			return err
		}
		alert.Notifications = append(alert.Notifications, record)
	}
	return rows.Err()
}

func scanAlert(rows pgx.Rows) (domain.Alert, error) {
	var (
		alert         domain.Alert
		currentStr    string
		targetStr     string
		dropStr       string
		status        string
		lastCheckedAt *time.Time
	)
	if err := rows.Scan(
		&alert.ID,
		&alert.FilterID,
		&alert.Version,
		&currentStr,
		&targetStr,
		&dropStr,
		&alert.DropPct,
		&alert.QualityScore,
		&status,
		&lastCheckedAt,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	); err != nil {
		return domain.Alert{}, err
	}

	var convErr error
	alert.CurrentPrice, convErr = decimal.NewFromString(currentStr)
	if convErr != nil {
		return domain.Alert{}, fmt.Errorf("parse current price: %w", convErr)
	}
	alert.TargetPrice, convErr = decimal.NewFromString(targetStr)
	if convErr != nil {
		return domain.Alert{}, fmt.Errorf("parse target price: %w", convErr)
	}
	alert.DropAmount, convErr = decimal.NewFromString(dropStr)
	if convErr != nil {
		return domain.Alert{}, fmt.Errorf("parse drop amount: %w", convErr)
	}

	alert.Status = domain.AlertStatus(status)
	alert.LastCheckedAt = lastCheckedAt
	return alert, nil
}
