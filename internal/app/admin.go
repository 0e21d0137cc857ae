package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"flight-fare-monitor/internal/domain"
)

// DisableFilter soft-deactivates a filter so the scheduler stops picking it
// up. Existing alerts and history stay intact.
func (a *App) DisableFilter(ctx context.Context, filterID int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot disable filter")
	}
	defer closeStore()

	filter, err := store.GetFilter(ctx, filterID)
	if err != nil {
		return fmt.Errorf("load filter %d: %w", filterID, err)
	}
	if !filter.Active {
		fmt.Fprintf(os.Stdout, "filter %d (%s) is already inactive\n", filter.ID, filter.Route())
		return nil
	}

	if err := store.DeactivateFilter(ctx, filterID); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "filter %d (%s) deactivated\n", filter.ID, filter.Route())
	return nil
}

// InvalidateObservation marks a stored observation invalid so the statistics
// engine excludes it from route history.
func (a *App) InvalidateObservation(ctx context.Context, observationID int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot invalidate observation")
	}
	defer closeStore()

	if err := store.UpdateObservationValidity(ctx, observationID, domain.ObservationInvalid); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "observation %d marked invalid\n", observationID)
	return nil
}
