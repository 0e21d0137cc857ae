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
	insertObservationSQL = `INSERT INTO price_observations (
        route,
        provider,
        airline,
        flight_number,
        price,
        currency,
        validity,
        quality_score,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    RETURNING id, created_at;`

	listObservationsSQL = `SELECT
        id,
        route,
        provider,
        airline,
        flight_number,
        price,
        currency,
        validity,
        quality_score,
        observed_at,
        created_at
    FROM price_observations
    WHERE route = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	listRecentObservationsSQL = `SELECT
        id,
        route,
        provider,
        airline,
        flight_number,
        price,
        currency,
        validity,
        quality_score,
        observed_at,
        created_at
    FROM price_observations
    WHERE route = $1
    ORDER BY observed_at DESC
    LIMIT $2;`

	updateObservationValiditySQL = `UPDATE price_observations
    SET validity = $2
    WHERE id = $1;`

	deleteObservationsBeforeSQL = `DELETE FROM price_observations WHERE observed_at < $1;`

	providerCountsSQL = `SELECT
        COUNT(*) FILTER (WHERE validity = 'valid'),
        COUNT(*) FILTER (WHERE validity <> 'valid')
    FROM price_observations
    WHERE provider = $1;`
)

// InsertObservation appends one observation; rows are immutable afterwards
// except for validity-status transitions.
func (s *Store) InsertObservation(ctx context.Context, obs domain.PriceObservation) (domain.PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return obs, err
	}

	row := pool.QueryRow(ctx, insertObservationSQL,
		obs.Route,
		obs.Provider,
		obs.Airline,
		obs.FlightNumber,
		obs.Price.String(),
		obs.Currency,
		string(obs.Validity),
		obs.QualityScore,
		obs.ObservedAt,
	)
	if err := row.Scan(&obs.ID, &obs.CreatedAt); err != nil {
		return obs, fmt.Errorf("insert observation: %w", err)
	}
	return obs, nil
}

// ListObservations returns the route's observations within a time window,
// ordered by observation time.
func (s *Store) ListObservations(ctx context.Context, route string, from, to time.Time) ([]domain.PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsSQL, route, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations: %w", queryErr)
	}
	defer rows.Close()

	observations := make([]domain.PriceObservation, 0)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

// ListRecentObservations lists the route's newest observations first.
func (s *Store) ListRecentObservations(ctx context.Context, route string, limit int) ([]domain.PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentObservationsSQL, route, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent observations: %w", queryErr)
	}
	defer rows.Close()

	observations := make([]domain.PriceObservation, 0, limit)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

// UpdateObservationValidity transitions an observation's validity status.
func (s *Store) UpdateObservationValidity(ctx context.Context, id int64, validity domain.ObservationValidity) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, updateObservationValiditySQL, id, string(validity))
	if execErr != nil {
		return fmt.Errorf("update observation validity: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteObservationsBefore ages out observations past the retention window.
func (s *Store) DeleteObservationsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteObservationsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete observations before: %w", execErr)
	}
	return nil
}

// ProviderCounts returns a provider's valid and invalid observation totals.
func (s *Store) ProviderCounts(ctx context.Context, provider string) (int64, int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, 0, err
	}
	var valid, invalid int64
	if scanErr := pool.QueryRow(ctx, providerCountsSQL, provider).Scan(&valid, &invalid); scanErr != nil {
		return 0, 0, fmt.Errorf("provider counts: %w", scanErr)
	}
	return valid, invalid, nil
}

func scanObservation(rows pgx.Rows) (domain.PriceObservation, error) {
	var (
		obs      domain.PriceObservation
		priceStr string
		validity string
	)
	if err := rows.Scan(
		&obs.ID,
		&obs.Route,
		&obs.Provider,
		&obs.Airline,
		&obs.FlightNumber,
		&priceStr,
		&obs.Currency,
		&validity,
		&obs.QualityScore,
		&obs.ObservedAt,
		&obs.CreatedAt,
	); err != nil {
		return domain.PriceObservation{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return domain.PriceObservation{}, fmt.Errorf("parse observation price: %w", err)
	}
	obs.Price = price
	obs.Validity = domain.ObservationValidity(validity)
	return obs, nil
}
