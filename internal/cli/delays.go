package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/commutepulse/commutepulse/internal/delay"
)

func (r *runner) delaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delays <routeId>",
		Short: "Check live delays along a route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, svc *Services) error {
				status, err := svc.Delays.CheckRoute(ctx, args[0])
				if err != nil {
					return err
				}
				if r.asJSON {
					return r.printJSON(cmd.OutOrStdout(), status)
				}
				printRouteStatus(cmd, status)
				return nil
			})
		},
	}
}

func printRouteStatus(cmd *cobra.Command, status *delay.RouteStatus) {
	out := cmd.OutOrStdout()

	name := status.RouteName
	if name == "" {
		name = status.RouteID
	}
	fmt.Fprintf(out, "%s: %s (+%d min, %d → %d min)\n",
		name,
		routeColor(status.Status).Sprint(string(status.Status)),
		status.TotalDelayMinutes,
		status.ExpectedDurationMinutes,
		status.EstimatedDurationMinutes,
	)

	for _, seg := range status.Segments {
		line := ""
		if seg.LineID != "" {
			line = " " + seg.LineID
		}
		fmt.Fprintf(out, "  %-12s %s%s  wait %d/%d min  %s\n",
			segmentColor(seg.Status).Sprint(string(seg.Status)),
			seg.CheckpointName,
			line,
			seg.EstimatedWaitMinutes,
			seg.ExpectedWaitMinutes,
			seg.Source,
		)
	}
}
