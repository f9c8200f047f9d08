// Package resolve provides the resolve command.
package resolve

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentstation/taxamap"
	"github.com/agentstation/taxamap/internal/cmd/output"
	"github.com/agentstation/taxamap/internal/cmd/table"
	"github.com/agentstation/taxamap/pkg/constants"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/logging"
	"github.com/agentstation/taxamap/pkg/taxa"
)

// AppContext defines what the resolve command needs from the app.
type AppContext interface {
	Client() (taxamap.Client, error)
	Logger() *zerolog.Logger
	OutputFormat() string
}

type options struct {
	concurrency int
	timeout     time.Duration
	provenance  bool
	fields      []string
}

// NewCommand creates the resolve command.
func NewCommand(app AppContext) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:     "resolve <query>...",
		GroupID: "core",
		Short:   "Resolve species from the store, researching unknown ones",
		Long: `Resolve answers each query from the local record store. A query the
store cannot answer starts a research session against the configured
sources; the merged result is written back so the next resolve of the
same taxon is served from the store.

A query is a scientific or common name, a canonical id, or an external
id such as worms:145984. Quote names that contain spaces.`,
		Example: `  taxamap resolve "Ulva lactuca"
  taxamap resolve "Ulva lactuca" "Fucus vesiculosus" --concurrency 2
  taxamap resolve worms:145984 --format yaml
  taxamap resolve "Ulva lactuca" --provenance --fields 'ecology.*'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(string(output.DetectFormat(app.OutputFormat())))
			if err != nil {
				return err
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			ctx := logging.WithLogger(cmd.Context(), app.Logger())

			if len(args) == 1 {
				return resolveOne(ctx, cmd, client, format, args[0], opts)
			}
			return resolveMany(ctx, cmd, client, format, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", constants.DefaultConcurrency,
		"maximum number of queries resolved in parallel")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0,
		"per-query deadline, 0 for none")
	cmd.Flags().BoolVar(&opts.provenance, "provenance", false,
		"show which source supplied each field (single query only)")
	cmd.Flags().StringSliceVar(&opts.fields, "fields", nil,
		"field patterns for --provenance (e.g. 'ecology.*')")

	return cmd
}

func resolveOne(ctx context.Context, cmd *cobra.Command, client taxamap.Client, format output.Format, query string, opts *options) error {
	p, err := resolve(ctx, client, query, opts.timeout)
	if err != nil {
		return err
	}
	if opts.provenance {
		return output.Provenance(cmd.OutOrStdout(), format, p.Entity, opts.fields)
	}
	return output.Profile(cmd.OutOrStdout(), format, p)
}

// resolveMany resolves queries in parallel and reports one result per
// query in argument order. A failed query does not stop the others.
func resolveMany(ctx context.Context, cmd *cobra.Command, client taxamap.Client, format output.Format, queries []string, opts *options) error {
	if opts.provenance {
		return fmt.Errorf("--provenance takes a single query, got %d", len(queries))
	}
	if opts.concurrency < 1 {
		return errors.NewValidationError("concurrency", opts.concurrency, "must be at least 1")
	}

	results := make([]table.Resolution, len(queries))
	var g errgroup.Group
	g.SetLimit(opts.concurrency)
	for i, q := range queries {
		g.Go(func() error {
			p, err := resolve(ctx, client, q, opts.timeout)
			results[i] = table.Resolution{Query: q, Profile: p, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := output.Resolutions(cmd.OutOrStdout(), format, results); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(queries))
	}
	return nil
}

func resolve(ctx context.Context, client taxamap.Client, query string, timeout time.Duration) (_ *taxa.Profile, err error) {
	logger := logging.FromContext(ctx).With().Str("query", query).Logger()
	start := time.Now()
	defer func() {
		ev := logger.Debug()
		if err != nil {
			ev = logger.Warn().Err(err)
		}
		ev.Dur("duration", time.Since(start)).Msg("resolve finished")
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	p, err := client.Resolve(ctx, query)
	if err != nil && ctx.Err() == context.DeadlineExceeded && !errors.IsTimeout(err) {
		return nil, errors.NewTimeoutError("resolve "+query, timeout)
	}
	return p, err
}
