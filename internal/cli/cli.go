// Package cli implements the commutectl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/commutepulse/commutepulse/internal/alternative"
	"github.com/commutepulse/commutepulse/internal/commute"
	"github.com/commutepulse/commutepulse/internal/delay"
	"github.com/commutepulse/commutepulse/internal/departure"
	"github.com/commutepulse/commutepulse/internal/pattern"
)

// PatternEstimator estimates habitual departure times.
type PatternEstimator interface {
	Estimate(ctx context.Context, userID string, commuteType commute.CommuteType, weekday bool) (*pattern.Estimate, error)
}

// DelayChecker checks a route for live delays.
type DelayChecker interface {
	CheckRoute(ctx context.Context, routeID string) (*delay.RouteStatus, error)
}

// AlternativeFinder finds alternatives for a checked route.
type AlternativeFinder interface {
	FindForStatus(ctx context.Context, status *delay.RouteStatus) ([]alternative.Suggestion, error)
}

// DepartureCalculator computes and closes departure snapshots.
type DepartureCalculator interface {
	Calculate(ctx context.Context, settingID string, date time.Time) (*departure.Snapshot, error)
	MarkDeparted(ctx context.Context, settingID string, date time.Time) (*departure.Snapshot, error)
}

// TokenIssuer mints access tokens.
type TokenIssuer interface {
	GenerateAccessToken(userID string, ttl time.Duration) (string, time.Time, error)
}

// Services are the engine components commands run against.
type Services struct {
	Patterns   PatternEstimator
	Delays     DelayChecker
	Finder     AlternativeFinder
	Calculator DepartureCalculator
	Tokens     TokenIssuer

	// Migrate applies database migrations. Nil without a database.
	Migrate func(ctx context.Context) ([]string, error)

	// Now overrides the clock used for default dates.
	Now func() time.Time
}

// Loader builds Services on first use. The returned func releases them.
type Loader func(ctx context.Context) (*Services, func() error, error)

type runner struct {
	load   Loader
	asJSON bool
}

// NewRootCmd returns the commutectl root command.
func NewRootCmd(version string, load Loader) *cobra.Command {
	r := &runner{load: load}

	root := &cobra.Command{
		Use:     "commutectl",
		Short:   "CommutePulse operator tool",
		Version: version,
		Long: `commutectl runs the commute engine against the configured stores and
live arrival provider: departure patterns, route delays, alternatives and
departure snapshots.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&r.asJSON, "json", false, "print results as JSON")

	root.AddCommand(r.patternCmd())
	root.AddCommand(r.delaysCmd())
	root.AddCommand(r.alternativesCmd())
	root.AddCommand(r.departCmd())
	root.AddCommand(r.migrateCmd())
	root.AddCommand(r.tokenCmd())

	return root
}

// with loads services, runs fn and releases them.
func (r *runner) with(cmd *cobra.Command, fn func(ctx context.Context, svc *Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, release, err := r.load(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	if svc.Now == nil {
		svc.Now = time.Now
	}
	return fn(ctx, svc)
}

func (r *runner) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	badColor  = color.New(color.FgRed)
	infoColor = color.New(color.FgCyan)
)

func routeColor(s delay.OverallStatus) *color.Color {
	switch s {
	case delay.RouteNormal:
		return okColor
	case delay.RouteMinorDelay, delay.RouteDelayed:
		return warnColor
	default:
		return badColor
	}
}

func segmentColor(s delay.SegmentStatus) *color.Color {
	switch s {
	case delay.SegmentNormal:
		return okColor
	case delay.SegmentDelayed:
		return warnColor
	default:
		return badColor
	}
}

func dateArg(value string, now func() time.Time) (time.Time, error) {
	if value == "" {
		return departure.CivilDate(now()), nil
	}
	day, err := departure.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q, want YYYY-MM-DD", value)
	}
	return day, nil
}
