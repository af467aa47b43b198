package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"hydration/internal/domain"
)

func newAuthorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize",
		Short: "Grant read and write access to water samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := newBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx := cmd.Context()
			if err := b.water.RequestAuthorization(ctx); err != nil {
				return err
			}
			if !b.water.IsEnabled(ctx) {
				fmt.Fprintln(cmd.OutOrStdout(), "Water logging is not allowed; change the grant in the repository.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Water logging enabled (unit: %s)\n", b.water.PreferredUnit())
			return nil
		},
	}
}

func newLogCmd() *cobra.Command {
	var glass string

	cmd := &cobra.Command{
		Use:   "log [amount unit]",
		Short: "Log water consumed now",
		Example: `  hydration log 250 mL
  hydration log 8 oz
  hydration log --glass medium`,
		Args: func(cmd *cobra.Command, args []string) error {
			if glass != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseAmount(glass, args)
			if err != nil {
				return err
			}

			b, err := newBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx := cmd.Context()
			if err := b.water.RequestAuthorization(ctx); err != nil {
				return err
			}
			if !b.water.IsEnabled(ctx) {
				return errors.New("water logging is not authorized")
			}
			if err := b.water.LogConsumption(ctx, q); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged %s. Today: %s\n", q, b.water.TodayTotal().Get())
			return nil
		},
	}

	cmd.Flags().StringVar(&glass, "glass", "", "log a preset glass: small, medium or large")
	return cmd
}

func parseAmount(glass string, args []string) (domain.Quantity, error) {
	if glass != "" {
		g, err := domain.ParseGlass(glass)
		if err != nil {
			return domain.Quantity{}, err
		}
		return g.Quantity(), nil
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return domain.Quantity{}, fmt.Errorf("invalid amount %q: %w", args[0], err)
	}
	u, err := domain.ParseUnit(args[1])
	if err != nil {
		return domain.Quantity{}, err
	}
	q := domain.NewQuantity(v, u)
	if err := domain.CheckEntry(q); err != nil {
		return domain.Quantity{}, err
	}
	return q, nil
}

func newTodayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show water consumed today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := newBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx := cmd.Context()
			if err := b.water.RequestAuthorization(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), b.water.RefreshTodayTotal(ctx))
			return nil
		},
	}
}

func newWeekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "week",
		Short: "Show daily totals for the last seven days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := newBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := b.water.RequestAuthorization(ctx); err != nil {
				return err
			}

			sub := b.water.SubscribeSeries(ctx)
			defer sub.Stop()

			select {
			case days := <-sub.Updates():
				renderWeek(cmd, days)
				return nil
			case <-ctx.Done():
				return fmt.Errorf("waiting for daily totals: %w", ctx.Err())
			}
		},
	}
}

func renderWeek(cmd *cobra.Command, days []domain.DailyBucket) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"", "DAY", "TOTAL"})
	for _, d := range days {
		t.AppendRow(table.Row{d.Label, d.Day, fmt.Sprintf("%g %s", d.Total, d.Unit.Symbol())})
	}
	t.Render()
}

func newUnitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unit <unit>",
		Short: "Store the preferred display unit",
		Example: `  hydration unit mL
  hydration unit "fl oz"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := domain.ParseUnit(args[0])
			if err != nil {
				return err
			}

			b, err := newBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.repo.SetPreferredUnit(cmd.Context(), domain.DietaryWater, u); err != nil {
				return fmt.Errorf("storing preferred unit: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Preferred unit: %s\n", u.Symbol())
			return nil
		},
	}
}

func newRecentCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent water samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			b, err := newBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			ctx := cmd.Context()
			samples, err := b.repo.ListRecent(ctx, domain.DietaryWater, limit)
			if err != nil {
				return fmt.Errorf("listing samples: %w", err)
			}
			if len(samples) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No samples found.")
				return nil
			}
			renderRecent(cmd, samples, storedUnit(ctx, b.repo, b.water.PreferredUnit()))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of samples to show")
	return cmd
}

// storedUnit returns the unit saved with `hydration unit`, or fallback when
// none is stored.
func storedUnit(ctx context.Context, repo domain.HealthRepository, fallback domain.Unit) domain.Unit {
	u, err := repo.PreferredUnit(ctx, domain.DietaryWater)
	if err != nil || !u.Valid() {
		return fallback
	}
	return u
}

func renderRecent(cmd *cobra.Command, samples []domain.Sample, unit domain.Unit) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"TIME", "AMOUNT", "ID"})
	for _, s := range samples {
		amount := s.Amount.In(unit)
		t.AppendRow(table.Row{
			s.Start.Format("2006-01-02 15:04"),
			amount.Value.Round(1).String() + " " + unit.Symbol(),
			s.ID.String(),
		})
	}
	t.Render()
}
