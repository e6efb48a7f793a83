package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/commutepulse/commutepulse/internal/alternative"
)

func (r *runner) alternativesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alternatives <routeId>",
		Short: "Suggest faster alternatives for delayed segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, svc *Services) error {
				status, err := svc.Delays.CheckRoute(ctx, args[0])
				if err != nil {
					return err
				}
				suggestions, err := svc.Finder.FindForStatus(ctx, status)
				if err != nil {
					return err
				}
				if r.asJSON {
					return r.printJSON(cmd.OutOrStdout(), suggestions)
				}

				out := cmd.OutOrStdout()
				if len(suggestions) == 0 {
					fmt.Fprintf(out, "%s: no alternatives (%s)\n", args[0], routeColor(status.Status).Sprint(string(status.Status)))
					return nil
				}
				for i, s := range suggestions {
					fmt.Fprintf(out, "%d. %s  %s\n", i+1, s.Description, savings(s))
					fmt.Fprintf(out, "   %s\n", s.TriggerReason)
					for _, step := range s.Steps {
						fmt.Fprintf(out, "   - %s %s", step.Action, step.From)
						if step.To != "" {
							fmt.Fprintf(out, " → %s", step.To)
						}
						if step.Line != "" {
							fmt.Fprintf(out, " (%s)", step.Line)
						}
						fmt.Fprintf(out, " %d min\n", step.DurationMinutes)
					}
				}
				return nil
			})
		},
	}
}

func savings(s alternative.Suggestion) string {
	text := fmt.Sprintf("saves %d min, %s", s.SavingsMinutes, s.Confidence)
	if s.Confidence == alternative.ConfidenceHigh {
		return okColor.Sprint(text)
	}
	return warnColor.Sprint(text)
}
