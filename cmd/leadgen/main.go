package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/leadgen/backend/internal/application/pipeline"
	"github.com/leadgen/backend/internal/application/prospect"
	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/leadgen/backend/internal/infrastructure/cache"
	"github.com/leadgen/backend/internal/infrastructure/collector"
	"github.com/leadgen/backend/internal/infrastructure/config"
	"github.com/leadgen/backend/internal/infrastructure/logger"
	"github.com/leadgen/backend/internal/infrastructure/migration"
	"github.com/leadgen/backend/internal/infrastructure/persistence"
	"github.com/leadgen/backend/internal/infrastructure/registry"
	"github.com/leadgen/backend/internal/infrastructure/scheduler"
	"github.com/leadgen/backend/internal/infrastructure/telemetry"
	"github.com/leadgen/backend/internal/infrastructure/validate"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Exit codes. Degraded means the run completed but produced synthetic
// fallback data or a partial flush somewhere; callers polling for fresh leads
// should treat the output with suspicion.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitDegraded = 3
)

const defaultMigrationsPath = "migrations"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return exitUsage
	}
	command := args[0]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitUsage
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return exitUsage
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	switch command {
	case "setup":
		return runSetup(cfg, log, args[1:])
	case "collect":
		return runCollect(cfg, log, args[1:])
	case "analyze":
		return runAnalyze(cfg, log, args[1:])
	case "export-prospects":
		return runExport(cfg, log, args[1:])
	case "daemon":
		return runDaemon(cfg, log, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: leadgen <command> [flags]

Commands:
  setup             Apply the warehouse schema (idempotent)
  collect           Run one collection pass over the configured sources
  analyze           Print aggregate lead statistics
  export-prospects  Write graded prospects as CSV
  daemon            Run cadence-driven collection until interrupted

Run 'leadgen <command> -h' for command flags.
`)
}

func runSetup(cfg *config.Config, log *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	migrationsPath := fs.String("path", "", "Path to migrations directory (default: ./migrations)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	path := *migrationsPath
	if path == "" {
		path = defaultMigrationsPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		log.Error("Failed to resolve migrations path", zap.Error(err))
		return exitFailure
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return exitFailure
	}
	defer func() {
		_ = db.Close()
	}()

	migrator, err := migration.New(db, absPath, log)
	if err != nil {
		log.Error("Failed to initialize migrator", zap.Error(err))
		return exitFailure
	}
	defer func() {
		_ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil {
		log.Error("Schema setup failed", zap.Error(err))
		return exitFailure
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		log.Error("Failed to read schema version", zap.Error(err))
		return exitFailure
	}
	log.Info("Warehouse schema ready",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return exitOK
}

// pipelineDeps bundles everything a collection run needs, with a Close that
// releases it in reverse order
type pipelineDeps struct {
	db       *persistence.Database
	caches   *cache.Components
	tracer   *telemetry.TracerProvider
	meter    *telemetry.MeterProvider
	service  *pipeline.Service
	registry *registry.SourceRegistry
	log      *zap.Logger
}

func (d *pipelineDeps) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.meter != nil {
		if err := d.meter.Shutdown(ctx); err != nil {
			d.log.Warn("Meter provider shutdown failed", zap.Error(err))
		}
	}
	if d.tracer != nil {
		if err := d.tracer.Shutdown(ctx); err != nil {
			d.log.Warn("Tracer provider shutdown failed", zap.Error(err))
		}
	}
	if d.caches != nil {
		if err := d.caches.Close(); err != nil {
			d.log.Warn("Cache shutdown failed", zap.Error(err))
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			d.log.Warn("Database close failed", zap.Error(err))
		}
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config, log *zap.Logger) (*pipelineDeps, error) {
	deps := &pipelineDeps{log: log}

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	deps.db = db

	caches, err := cache.NewComponents(cfg.Redis, log)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("initializing cache: %w", err)
	}
	deps.caches = caches

	metrics := telemetry.NopPipelineMetrics()
	if cfg.Telemetry.Enabled {
		tracer, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
			Enabled:           true,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			SamplingRatio:     cfg.Telemetry.SamplingRatio,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
		deps.tracer = tracer

		meter, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
			Enabled:           true,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("initializing metrics: %w", err)
		}
		deps.meter = meter

		metrics, err = telemetry.NewPipelineMetrics(telemetry.PipelineMetricsConfig{
			Meter:  meter.Meter("leadgen"),
			Logger: log,
		})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("initializing pipeline metrics: %w", err)
		}
	}

	sources, err := registry.NewSourceRegistry(cfg.Sources)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("loading source registry: %w", err)
	}
	deps.registry = sources

	collectors, err := buildCollectors(cfg, log)
	if err != nil {
		deps.Close()
		return nil, err
	}

	repos := pipeline.Repositories{
		Businesses: persistence.NewGormBusinessEntityRepository(db.DB, cfg.Collector.BatchSize),
		Loans:      persistence.NewGormLoanRepository(db.DB, cfg.Collector.BatchSize),
		Licenses:   persistence.NewGormLicenseRepository(db.DB, cfg.Collector.BatchSize),
		Summaries:  persistence.NewGormSummaryRepository(db.DB),
	}

	deps.service = pipeline.NewService(
		sources,
		collectors,
		validate.New(),
		repos,
		caches.RunLock,
		caches.FetchCache,
		metrics,
		log,
		pipeline.Options{
			MaxConcurrent: cfg.Collector.MaxConcurrent,
			BatchSize:     cfg.Collector.BatchSize,
			RunTimeout:    cfg.Collector.RunTimeout,
		},
	)
	return deps, nil
}

func buildCollectors(cfg *config.Config, log *zap.Logger) (*registry.CollectorRegistry, error) {
	opts := collector.Options{
		HTTPClient:      &http.Client{Timeout: cfg.Collector.HTTPTimeout},
		MaxRetries:      cfg.Collector.MaxRetries,
		RetryBaseDelay:  cfg.Collector.RetryBaseDelay,
		RetryMaxDelay:   cfg.Collector.RetryMaxDelay,
		FallbackEnabled: cfg.Collector.FallbackEnabled,
		Logger:          log,
	}

	collectors := registry.NewCollectorRegistry()
	for _, c := range []lead.Collector{
		collector.NewRegistrationsCollector(opts),
		collector.NewSBALoanCollector(opts),
		collector.NewLicenseCollector(opts),
	} {
		if err := collectors.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}

	// Bulk-file sources need object storage; leave the strategy unregistered
	// when no bucket is configured so such sources fail fast at run time
	if cfg.Storage.Bucket != "" {
		client, err := collector.NewS3Client(&cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("initializing object storage client: %w", err)
		}
		bulk := collector.NewBulkFileCollector(opts, client, cfg.Storage.Bucket)
		if err := collectors.Register(bulk); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return collectors, nil
}

func runCollect(cfg *config.Config, log *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	jurisdictions := fs.String("jurisdiction", "", "Comma-separated jurisdictions to collect (default: all configured)")
	daysBack := fs.Int("days-back", cfg.Collector.DefaultDaysBack, "Size of the trailing collection window in days")
	timeout := fs.Duration("timeout", 0, "Overall run timeout (default: from configuration)")
	daemon := fs.Bool("daemon", false, "Keep running, collecting each source on its update cadence")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *daysBack <= 0 {
		fmt.Fprintln(os.Stderr, "days-back must be positive")
		return exitUsage
	}
	if *timeout > 0 {
		cfg.Collector.RunTimeout = *timeout
	}
	if *daemon {
		return runDaemon(cfg, log, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to build pipeline", zap.Error(err))
		return exitFailure
	}
	defer deps.Close()

	window := lead.TrailingWindow(*daysBack, time.Now().UTC())
	result, err := deps.service.Run(ctx, splitList(*jurisdictions), window)
	if err != nil {
		log.Error("Collection run failed", zap.Error(err))
		return exitFailure
	}

	for jurisdiction, cfgErr := range result.ConfigErrors {
		log.Warn("Jurisdiction skipped",
			zap.String("jurisdiction", jurisdiction),
			zap.Error(cfgErr),
		)
	}

	switch {
	case result.Failed():
		log.Error("Collection produced no usable data")
		return exitFailure
	case result.Degraded():
		log.Warn("Collection completed degraded")
		return exitDegraded
	default:
		return exitOK
	}
}

func newProspectService(db *persistence.Database, cfg *config.Config, log *zap.Logger) *prospect.Service {
	return prospect.NewService(
		persistence.NewGormBusinessEntityRepository(db.DB, cfg.Collector.BatchSize),
		persistence.NewGormLoanRepository(db.DB, cfg.Collector.BatchSize),
		persistence.NewGormLicenseRepository(db.DB, cfg.Collector.BatchSize),
		persistence.NewGormSummaryRepository(db.DB),
		log,
	)
}

func runAnalyze(cfg *config.Config, log *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	daysBack := fs.Int("days-back", cfg.Collector.DefaultDaysBack, "Trailing window in days for run and grade statistics")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return exitFailure
	}
	defer func() {
		_ = db.Close()
	}()

	service := newProspectService(db, cfg, log)
	since := time.Now().UTC().AddDate(0, 0, -*daysBack)

	report, err := service.Analyze(ctx, since)
	if err != nil {
		log.Error("Analysis failed", zap.Error(err))
		return exitFailure
	}

	printReport(report, *daysBack)
	return exitOK
}

func printReport(report *prospect.Report, daysBack int) {
	fmt.Printf("Lead statistics, trailing %d days (since %s)\n\n", daysBack, report.Since.Format("2006-01-02"))
	fmt.Printf("Distinct businesses tracked: %d\n\n", report.DistinctBusinesses)

	fmt.Println("Leads by grade (businesses / loans / licenses):")
	for _, grade := range []lead.LeadGrade{lead.GradeHigh, lead.GradeMedium, lead.GradeQualified, lead.GradeStandard} {
		fmt.Printf("  %-10s %6d  (%d / %d / %d)\n", grade,
			report.TotalByGrade(grade),
			report.BusinessGrades[grade],
			report.LoanGrades[grade],
			report.LicenseGrades[grade],
		)
	}

	if len(report.BusinessStates) > 0 {
		fmt.Println("\nBusinesses by state:")
		for _, state := range sortedKeys(report.BusinessStates) {
			fmt.Printf("  %-4s %6d\n", state, report.BusinessStates[state])
		}
	}
	if len(report.BusinessTypes) > 0 {
		fmt.Println("\nBusinesses by type:")
		for _, bt := range sortedKeys(report.BusinessTypes) {
			fmt.Printf("  %-22s %6d\n", bt, report.BusinessTypes[bt])
		}
	}

	fmt.Printf("\nCollection runs: %d (%d degraded, %d failed)\n",
		report.Runs, report.DegradedRuns, report.FailedRuns)
	fmt.Printf("Records fetched/validated/rejected: %d / %d / %d\n",
		report.RecordsFetched, report.RecordsValidated, report.RecordsRejected)
}

func runExport(cfg *config.Config, log *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("export-prospects", flag.ContinueOnError)
	kind := fs.String("kind", "business", "Record kind to export: business, loan or license")
	output := fs.String("output", "", "Output file path (default: stdout)")
	minGrade := fs.String("min-grade", "", "Minimum lead grade: HIGH, MEDIUM, QUALIFIED or STANDARD")
	states := fs.String("state", "", "Comma-separated state codes to include")
	cities := fs.String("city", "", "Comma-separated cities to include")
	daysBack := fs.Int("days-back", cfg.Collector.DefaultDaysBack, "Only include records extracted in the trailing window")
	limit := fs.Int("limit", 0, "Maximum rows to export (0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	recordKind := lead.RecordKind(*kind)
	if !recordKind.IsValid() {
		fmt.Fprintf(os.Stderr, "Unknown record kind: %s\n", *kind)
		return exitUsage
	}

	filter := lead.ProspectFilter{
		Since:  time.Now().UTC().AddDate(0, 0, -*daysBack),
		States: splitList(*states),
		Cities: splitList(*cities),
		Limit:  *limit,
	}
	if *minGrade != "" {
		grade := lead.LeadGrade(strings.ToUpper(*minGrade))
		if !grade.IsValid() {
			fmt.Fprintf(os.Stderr, "Unknown grade: %s\n", *minGrade)
			return exitUsage
		}
		filter.MinGrade = grade
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return exitFailure
	}
	defer func() {
		_ = db.Close()
	}()

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Error("Failed to create output file", zap.Error(err))
			return exitFailure
		}
		defer func() {
			_ = f.Close()
		}()
		out = f
	}

	service := newProspectService(db, cfg, log)
	rows, err := service.Export(ctx, out, recordKind, filter)
	if err != nil {
		log.Error("Export failed", zap.Error(err))
		return exitFailure
	}

	log.Info("Export complete",
		zap.String("kind", *kind),
		zap.Int("rows", rows),
		zap.String("output", *output),
	)
	return exitOK
}

func runDaemon(cfg *config.Config, log *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to build pipeline", zap.Error(err))
		return exitFailure
	}
	defer deps.Close()

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Enabled = true
	if cfg.Scheduler.TickInterval > 0 {
		schedCfg.TickInterval = cfg.Scheduler.TickInterval
	}
	if cfg.Scheduler.JobTimeout > 0 {
		schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
	}
	if cfg.Scheduler.RetryAttempts > 0 {
		schedCfg.RetryAttempts = cfg.Scheduler.RetryAttempts
	}
	if cfg.Scheduler.RetryDelay > 0 {
		schedCfg.RetryDelay = cfg.Scheduler.RetryDelay
	}
	if cfg.Collector.DefaultDaysBack > 0 {
		schedCfg.DaysBack = cfg.Collector.DefaultDaysBack
	}

	sched := scheduler.NewScheduler(schedCfg, pipeline.NewExecutor(deps.service), log)
	if err := sched.Start(ctx); err != nil {
		log.Error("Failed to start scheduler", zap.Error(err))
		return exitFailure
	}

	var sources []lead.SourceConfig
	for _, jurisdiction := range deps.registry.Jurisdictions() {
		cfgs, err := deps.registry.ListSources(jurisdiction)
		if err != nil {
			log.Warn("Jurisdiction skipped",
				zap.String("jurisdiction", jurisdiction),
				zap.Error(err),
			)
			continue
		}
		sources = append(sources, cfgs...)
	}
	if len(sources) == 0 {
		log.Error("No usable sources configured")
		return exitUsage
	}

	log.Info("Daemon started",
		zap.Int("sources", len(sources)),
		zap.Duration("tick", schedCfg.TickInterval),
	)

	if err := sched.RunCadence(ctx, sources); err != nil && ctx.Err() == nil {
		log.Error("Cadence loop failed", zap.Error(err))
		return exitFailure
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn("Scheduler shutdown incomplete", zap.Error(err))
	}

	log.Info("Daemon stopped")
	return exitOK
}

func sortedKeys[K ~string](m map[K]int64) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
