package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/commutepulse/commutepulse/internal/departure"
)

func (r *runner) departCmd() *cobra.Command {
	var (
		date string
		mark bool
	)

	cmd := &cobra.Command{
		Use:   "depart <settingId>",
		Short: "Recalculate (or close) a departure snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, svc *Services) error {
				day, err := dateArg(date, svc.Now)
				if err != nil {
					return err
				}

				var snap *departure.Snapshot
				if mark {
					snap, err = svc.Calculator.MarkDeparted(ctx, args[0], day)
				} else {
					snap, err = svc.Calculator.Calculate(ctx, args[0], day)
				}
				if err != nil {
					return err
				}
				if r.asJSON {
					return r.printJSON(cmd.OutOrStdout(), snap)
				}

				out := cmd.OutOrStdout()
				departAt := snap.OptimalDepartureAt.In(departure.Location).Format("15:04")
				fmt.Fprintf(out, "%s %s: leave at %s for %s arrival [%s]\n",
					snap.SettingID, snap.DateKey(), infoColor.Sprint(departAt), snap.ArrivalTime, snap.Status)

				history := "-"
				if snap.HistoryMinutes != nil {
					history = fmt.Sprintf("%d", *snap.HistoryMinutes)
				}
				fmt.Fprintf(out, "  travel %d min (baseline %d, history %s, live %+d), prep %d min\n",
					snap.EstimatedTravelMinutes, snap.BaselineMinutes, history,
					snap.RealtimeAdjustmentMinutes, snap.PrepTimeMinutes)
				if snap.Status == departure.StatusScheduled || snap.Status == departure.StatusNotified {
					fmt.Fprintf(out, "  %d min until departure\n", departure.MinutesUntilDeparture(snap, svc.Now()))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "civil date YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&mark, "mark", false, "mark the snapshot departed instead of recalculating")

	return cmd
}
