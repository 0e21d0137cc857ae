package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"flight-fare-monitor/internal/monitor"
)

// CheckFilter runs one monitoring pass for a single filter and prints the
// decision trail.
func (a *App) CheckFilter(ctx context.Context, filterID int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot check filter")
	}
	defer closeStore()

	filter, err := store.GetFilter(ctx, filterID)
	if err != nil {
		return fmt.Errorf("load filter %d: %w", filterID, err)
	}

	p := a.buildPipeline(store)
	orch := monitor.New(
		store, store, store,
		p.statsEngine, p.detector, p.classifier, p.dispatcher,
		a.newQuoteSource(),
		nil,
		monitor.Options{Workers: 1, BatchSize: 1},
		a.Logger,
	)

	result := orch.ProcessFilter(ctx, filter)
	p.dispatcher.Wait()
	if result.Err != nil {
		return result.Err
	}

	fmt.Fprintf(os.Stdout, "filter %d (%s): %d quotes evaluated\n", filter.ID, filter.Route(), result.QuoteCount)
	for _, eval := range result.Detection.Evaluations {
		status := "rejected"
		if eval.IsBreak {
			status = "BREAK"
		}
		fmt.Fprintf(os.Stdout, "  [%s] %s %s @ %s conf=%.2f drop=%.1f%% %s\n",
			status,
			eval.Quote.Provider,
			eval.Quote.Route(),
			eval.Quote.Price.StringFixed(2),
			eval.Confidence,
			eval.DropPct,
			strings.Join(eval.Reasons, "; "),
		)
	}
	if result.BreakFound {
		if result.Dispatched {
			fmt.Fprintln(os.Stdout, "break detected and dispatched")
		} else {
			fmt.Fprintf(os.Stdout, "break detected but suppressed: %s\n", result.SuppressedBy)
		}
	}
	if !result.NextCheckAt.IsZero() {
		fmt.Fprintf(os.Stdout, "next check at %s\n", result.NextCheckAt.UTC().Format("2006-01-02 15:04:05"))
	}
	return nil
}
