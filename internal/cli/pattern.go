package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/commutepulse/commutepulse/internal/commute"
	"github.com/commutepulse/commutepulse/internal/pattern"
)

func (r *runner) patternCmd() *cobra.Command {
	var weekend bool

	cmd := &cobra.Command{
		Use:   "pattern <userId> <morning|evening>",
		Short: "Estimate a user's habitual departure time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			commuteType := commute.CommuteType(args[1])
			if !commuteType.Valid() {
				return fmt.Errorf("commute type must be morning or evening, got %q", args[1])
			}

			return r.with(cmd, func(ctx context.Context, svc *Services) error {
				est, err := svc.Patterns.Estimate(ctx, args[0], commuteType, !weekend)
				if err != nil {
					return err
				}
				if r.asJSON {
					return r.printJSON(cmd.OutOrStdout(), est)
				}

				out := cmd.OutOrStdout()
				day := "weekday"
				if weekend {
					day = "weekend"
				}
				fmt.Fprintf(out, "%s %s departure: %s\n", commuteType, day, infoColor.Sprint(est.DepartureTime))
				fmt.Fprintf(out, "  spread:     ±%d min\n", est.StdDevMinutes)
				fmt.Fprintf(out, "  confidence: %s (%d samples)\n", confidenceLabel(est.Confidence), est.SampleCount)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&weekend, "weekend", false, "estimate the weekend pattern")

	return cmd
}

func confidenceLabel(c pattern.Confidence) string {
	switch c {
	case pattern.ConfidenceConfident:
		return okColor.Sprint(string(c))
	case pattern.ConfidenceLearning:
		return warnColor.Sprint(string(c))
	default:
		return badColor.Sprint(string(c))
	}
}
