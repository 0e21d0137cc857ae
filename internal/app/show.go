package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"flight-fare-monitor/internal/domain"
)

// Show prints a route's recent price observations.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Route == "" {
		return errors.New("--route is required")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show observations")
	}
	defer closeStore()

	route := domain.NormalizeRoute(opts.Route)
	observations, err := store.ListRecentObservations(ctx, route, opts.Limit)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		fmt.Fprintln(os.Stdout, "no observations found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tProvider\tAirline\tFlight\tPrice\tValidity\tQuality")

	for _, obs := range observations {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s %s\t%s\t%s\n",
			obs.ObservedAt.UTC().Format(time.RFC3339),
			obs.Provider,
			obs.Airline,
			obs.FlightNumber,
			obs.Price.StringFixed(2),
			obs.Currency,
			obs.Validity,
			formatFloat(obs.QualityScore),
		)
	}

	writer.Flush()
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
