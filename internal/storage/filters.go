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
	filterColumns = `id,
        user_id,
        origins,
        destinations,
        departure_dates,
        return_dates,
        adults,
        children,
        cabin,
        max_stops,
        airlines,
        min_price,
        max_price,
        target_price,
        frequency,
        urgent,
        active,
        min_drop_pct,
        min_confidence,
        last_checked_at,
        next_check_at,
        priority,
        created_at,
        updated_at`

	listDueFiltersSQL = `SELECT ` + filterColumns + `
    FROM search_filters
    WHERE active = TRUE
      AND next_check_at <= $1
    ORDER BY priority DESC, next_check_at
    LIMIT $2;`

	getFilterSQL = `SELECT ` + filterColumns + `
    FROM search_filters
    WHERE id = $1;`

	updateFilterScheduleSQL = `UPDATE search_filters
    SET last_checked_at = $2,
        next_check_at   = $3,
        priority        = $4,
        updated_at      = NOW()
    WHERE id = $1;`

	deactivateFilterSQL = `UPDATE search_filters
    SET active = FALSE, updated_at = NOW()
    WHERE id = $1;`
)

// ListDueFilters returns active filters whose next check has elapsed,
// highest priority first.
func (s *Store) ListDueFilters(ctx context.Context, now time.Time, limit int) ([]domain.SearchFilter, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDueFiltersSQL, now, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list due filters: %w", queryErr)
	}
	defer rows.Close()

	filters := make([]domain.SearchFilter, 0, limit)
	for rows.Next() {
		filter, scanErr := scanFilter(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		filters = append(filters, filter)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return filters, nil
}

// GetFilter fetches one filter by id.
func (s *Store) GetFilter(ctx context.Context, id int64) (domain.SearchFilter, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.SearchFilter{}, err
	}

	rows, queryErr := pool.Query(ctx, getFilterSQL, id)
	if queryErr != nil {
		return domain.SearchFilter{}, fmt.Errorf("get filter: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return domain.SearchFilter{}, rows.Err()
		}
		return domain.SearchFilter{}, pgx.ErrNoRows
	}
	return scanFilter(rows)
}

// UpdateFilterSchedule writes the scheduling fields after a monitoring pass.
// next_check_at must be strictly in the future at write time.
func (s *Store) UpdateFilterSchedule(ctx context.Context, id int64, lastChecked, nextCheck time.Time, priority float64) error {
	if !nextCheck.After(time.Now()) {
		return fmt.Errorf("filter %d: next_check_at must be in the future", id)
	}

	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, updateFilterScheduleSQL, id, lastChecked, nextCheck, priority)
	if execErr != nil {
		return fmt.Errorf("update filter schedule: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeactivateFilter soft-deactivates a filter; alerts keep referencing it.
func (s *Store) DeactivateFilter(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deactivateFilterSQL, id); execErr != nil {
		return fmt.Errorf("deactivate filter: %w", execErr)
	}
	return nil
}

func scanFilter(rows pgx.Rows) (domain.SearchFilter, error) {
	var (
		filter        domain.SearchFilter
		minPriceStr   string
		maxPriceStr   string
		targetStr     string
		frequency     string
		cabin         string
		lastCheckedAt *time.Time
	)
	if err := rows.Scan(
		&filter.ID,
		&filter.UserID,
		&filter.Origins,
		&filter.Destinations,
		&filter.DepartureDates,
		&filter.ReturnDates,
		&filter.Adults,
		&filter.Children,
		&cabin,
		&filter.MaxStops,
		&filter.Airlines,
		&minPriceStr,
		&maxPriceStr,
		&targetStr,
		&frequency,
		&filter.Urgent,
		&filter.Active,
		&filter.MinDropPct,
		&filter.MinConfidence,
		&lastCheckedAt,
		&filter.NextCheckAt,
		&filter.Priority,
		&filter.CreatedAt,
		&filter.UpdatedAt,
	); err != nil {
		return domain.SearchFilter{}, err
	}

	var convErr error
	filter.MinPrice, convErr = decimal.NewFromString(minPriceStr)
	if convErr != nil {
		return domain.SearchFilter{}, fmt.Errorf("parse min price: %w", convErr)
	}
	filter.MaxPrice, convErr = decimal.NewFromString(maxPriceStr)
	if convErr != nil {
		return domain.SearchFilter{}, fmt.Errorf("parse max price: %w", convErr)
	}
	filter.TargetPrice, convErr = decimal.NewFromString(targetStr)
	if convErr != nil {
		return domain.SearchFilter{}, fmt.Errorf("parse target price: %w", convErr)
	}

	filter.Cabin = domain.CabinClass(cabin)
	filter.Frequency = domain.MonitorFrequency(frequency)
	filter.LastCheckedAt = lastCheckedAt
	return filter, nil
}
