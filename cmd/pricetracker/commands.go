package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/pricetracker/internal/config"
	"github.com/JonMunkholm/pricetracker/internal/core"
	"github.com/JonMunkholm/pricetracker/internal/handler"
	"github.com/JonMunkholm/pricetracker/internal/logging"
	"github.com/JonMunkholm/pricetracker/internal/metrics"
	"github.com/JonMunkholm/pricetracker/internal/store"
	"github.com/JonMunkholm/pricetracker/internal/web"
)

// app holds the process-wide dependencies, opened on first use.
type app struct {
	in    io.Reader
	out   io.Writer
	actor string

	cfg     *config.Config
	pool    *pgxpool.Pool
	db      *store.Postgres
	reg     *prometheus.Registry
	metrics *metrics.Metrics
}

// loadConfig reads .env and the environment and configures logging.
func (a *app) loadConfig() error {
	// Overload lets .env take precedence over the inherited environment
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, nil)
	core.ContextCheckInterval = cfg.Ingest.ContextCheckInterval
	core.ProgressInterval = cfg.Ingest.ProgressInterval
	slog.Debug("configuration loaded", "config", cfg.String())

	a.cfg = cfg
	return nil
}

// open connects to the database and builds the gateway and metrics.
func (a *app) open(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	pool, err := store.Connect(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	a.pool = pool
	a.db = store.NewPostgres(pool, core.NewAuditor(a.cfg.Ingest.Actor), a.cfg.Database.LockTimeout)

	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.reg)
	return nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// commandContext tags ctx with a fresh run id and the acting user.
func (a *app) commandContext(cmd *cobra.Command) context.Context {
	ctx := logging.ContextWithRunID(cmd.Context(), uuid.NewString())
	if a.actor != "" {
		ctx = core.ContextWithActor(ctx, a.actor)
	}
	return ctx
}

// handler opens the database and returns the command handler.
func (a *app) handler(ctx context.Context) (*handler.Handler, error) {
	if err := a.open(ctx); err != nil {
		return nil, err
	}
	return handler.New(a.db, a.metrics, a.cfg, a.in, a.out), nil
}

// usage wraps an argument validator so its failures exit with exitUsage.
func usage(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return withCode(exitUsage, fn(cmd, args))
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "pricetracker",
		Short:         "Load reference data and normalize price observations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVar(&a.actor, "actor", "", "User stamped on created records (default: INGEST_ACTOR)")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return withCode(exitUsage, err)
	})

	root.AddCommand(
		newCreateUserCmd(a),
		newUploadFileCmd(a),
		newUploadPricesCmd(a),
		newAddUnitConvCmd(a),
		newAddRateCmd(a),
		newConvertCmd(a),
		newNormalizeCmd(a),
		newMigrateCmd(a),
		newServeCmd(a),
	)
	return root
}

func newCreateUserCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "createuser",
		Short: "Create an active user account (prompts for email, password, username)",
		Args:  usage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.commandContext(cmd)
			h, err := a.handler(ctx)
			if err != nil {
				return err
			}
			_, err = h.CreateUser(ctx)
			return err
		},
	}
}

func newUploadFileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uploadfile [kind] [path] [dialect]",
		Short: "Load a reference file of one kind",
		Long: "Load a headerless reference file of one kind. Missing arguments are prompted for.\n" +
			"Kinds: Country, Language, State, City, UnitType, Unit. An empty dialect detects the delimiter.",
		Args: usage(cobra.MaximumNArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.commandContext(cmd)
			h, err := a.handler(ctx)
			if err != nil {
				return err
			}
			_, err = h.UploadFile(ctx, args)
			return err
		},
	}
}

func newUploadPricesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uploadprices <path> [dialect]",
		Short: "Load a price observation file with a header row",
		Args:  usage(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.commandContext(cmd)
			h, err := a.handler(ctx)
			if err != nil {
				return err
			}
			dialect := ""
			if len(args) == 2 {
				dialect = args[1]
			}
			_, err = h.UploadPrices(ctx, args[0], dialect)
			return err
		},
	}
}

func newAddUnitConvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "addunitconv <unit> <to_unit> <factor>",
		Short: "Add a direct unit conversion",
		Args:  usage(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.commandContext(cmd)
			h, err := a.handler(ctx)
			if err != nil {
				return err
			}
			_, err = h.AddUnitConversion(ctx, args[0], args[1], args[2])
			return err
		},
	}
}

func newAddRateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "addrate <from> <to> <rate> <date_from> <date_to>",
		Short: "Add a currency rate valid over an inclusive date range",
		Args:  usage(cobra.ExactArgs(5)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.commandContext(cmd)
			h, err := a.handler(ctx)
			if err != nil {
				return err
			}
			_, err = h.AddRate(ctx, args[0], args[1], args[2], args[3], args[4])
			return err
		},
	}
}

func newConvertCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a quantity or a price with a direct conversion",
		Args:  usage(cobra.NoArgs),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "unit <quantity> <unit> <to_unit>",
			Short: "Convert a quantity between units",
			Args:  usage(cobra.ExactArgs(3)),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := a.commandContext(cmd)
				h, err := a.handler(ctx)
				if err != nil {
					return err
				}
				_, err = h.ConvertUnit(ctx, args[0], args[1], args[2])
				return err
			},
		},
		&cobra.Command{
			Use:   "currency <price> <currency> <to_currency> <date>",
			Short: "Convert a price between currencies at the rate for date",
			Args:  usage(cobra.ExactArgs(4)),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := a.commandContext(cmd)
				h, err := a.handler(ctx)
				if err != nil {
					return err
				}
				_, err = h.ConvertCurrency(ctx, args[0], args[1], args[2], args[3])
				return err
			},
		},
	)
	return cmd
}

func newNormalizeCmd(a *app) *cobra.Command {
	var target core.Target
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize every stored price observation into the canonical basis",
		Args:  usage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.commandContext(cmd)
			h, err := a.handler(ctx)
			if err != nil {
				return err
			}
			_, err = h.Normalize(ctx, target)
			return err
		},
	}
	cmd.Flags().StringVar(&target.Currency, "currency", "", "Canonical currency (default: NORMALIZE_CURRENCY)")
	cmd.Flags().StringSliceVar(&target.Units, "unit", nil, "Canonical unit, in priority order; repeatable (default: NORMALIZE_UNITS)")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		Args:  usage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.commandContext(cmd)
			if err := a.open(ctx); err != nil {
				return err
			}
			if err := a.db.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Schema is up to date")
			return nil
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and conversion lookups over HTTP",
		Args:  usage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			cfg := a.cfg

			srv := web.NewServer(cfg.Server, web.Deps{
				Normalizer: core.NewNormalizer(a.db, a.metrics, cfg.Normalize.Workers),
				Target:     core.Target{Currency: cfg.Normalize.Currency, Units: cfg.Normalize.Units},
				Health:     a.db,
				Gatherer:   a.reg,
			})

			slog.Info("server starting",
				"addr", cfg.Server.Addr(),
				"currency", cfg.Normalize.Currency,
				"units", cfg.Normalize.Units,
				"rate_limit", cfg.Server.RateLimit,
			)
			if err := srv.Start(ctx); err != nil {
				return fmt.Errorf("server: %w", err)
			}
			slog.Info("server stopped")
			return nil
		},
	}
}
