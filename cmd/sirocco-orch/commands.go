package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirocco-rt/sirocco-orch/internal/batch"
	"github.com/sirocco-rt/sirocco-orch/internal/classify"
	"github.com/sirocco-rt/sirocco-orch/internal/config"
	"github.com/sirocco-rt/sirocco-orch/internal/diag"
	"github.com/sirocco-rt/sirocco-orch/internal/discover"
	"github.com/sirocco-rt/sirocco-orch/internal/domain"
	"github.com/sirocco-rt/sirocco-orch/internal/executor"
	"github.com/sirocco-rt/sirocco-orch/internal/notify"
	"github.com/sirocco-rt/sirocco-orch/internal/observer"
	"github.com/sirocco-rt/sirocco-orch/internal/orchestrator"
	"github.com/sirocco-rt/sirocco-orch/internal/runstore"
)

var (
	runDir             string
	runManifest        string
	runSplitCycles     bool
	runCores           int
	runFlags           []string
	runRestart         bool
	runRestartOverride bool
	runVerbosity       string
	runThreshold       float64
	runDryRun          bool
	checkDir           string
	checkThreshold     float64
	errorsDir          string
	historyRoot        string
	historyLimit       int
	watchDir           string
	watchStalled       time.Duration
	schedulePath       string
	scheduleList       bool
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run [MODEL.pf...]",
		Short: "Run a batch of models",
		RunE:  runRunCmd,
	}
	runCmd.Flags().StringVar(&runDir, "dir", ".", "directory to search for models")
	runCmd.Flags().StringVar(&runManifest, "manifest", "", "YAML manifest listing models to run")
	runCmd.Flags().BoolVar(&runSplitCycles, "split-cycles", false, "run ionization first, restart for spectrum cycles")
	runCmd.Flags().IntVar(&runCores, "cores", 0, "MPI cores per model (overrides config)")
	runCmd.Flags().StringSliceVar(&runFlags, "flags", nil, "extra flags passed to the simulation binary")
	runCmd.Flags().BoolVar(&runRestart, "restart", false, "pass the resume flag on every run")
	runCmd.Flags().BoolVar(&runRestartOverride, "restart-override", false, "never resume, even when a wind_save file exists")
	runCmd.Flags().StringVarP(&runVerbosity, "verbosity", "v", "progress", "output verbosity: silent, progress, extra, transport, all")
	runCmd.Flags().Float64Var(&runThreshold, "threshold", 0, "convergence threshold (overrides config)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print launch commands without running")
	rootCmd.AddCommand(runCmd)

	// check command
	checkCmd := &cobra.Command{
		Use:   "check [MODEL.pf...]",
		Short: "Report convergence of models without running them",
		RunE:  runCheckCmd,
	}
	checkCmd.Flags().StringVar(&checkDir, "dir", ".", "directory to search for models")
	checkCmd.Flags().Float64Var(&checkThreshold, "threshold", 0, "convergence threshold (overrides config)")
	rootCmd.AddCommand(checkCmd)

	// errors command
	errorsCmd := &cobra.Command{
		Use:   "errors [MODEL.pf...]",
		Short: "Tally error messages from model diagnostics",
		RunE:  runErrorsCmd,
	}
	errorsCmd.Flags().StringVar(&errorsDir, "dir", ".", "directory to search for models")
	rootCmd.AddCommand(errorsCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs",
		RunE:  runHistoryCmd,
	}
	historyCmd.Flags().StringVar(&historyRoot, "root", "", "filter by model root")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(historyCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch [MODEL.pf...]",
		Short: "Watch running models and report convergence as diagnostics update",
		RunE:  runWatchCmd,
	}
	watchCmd.Flags().StringVar(&watchDir, "dir", ".", "directory to search for models")
	watchCmd.Flags().DurationVar(&watchStalled, "stalled-after", 30*time.Minute, "warn when a model's diagnostics go quiet for this long")
	rootCmd.AddCommand(watchCmd)

	// schedule command
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run batches on a cron schedule",
		RunE:  runScheduleCmd,
	}
	scheduleCmd.Flags().StringVar(&schedulePath, "schedule", "", "schedule file path")
	scheduleCmd.Flags().BoolVar(&scheduleList, "list", false, "list configured batches and exit")
	rootCmd.AddCommand(scheduleCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// resolveModels turns the positional arguments, a manifest, or a search
// directory into the batch to run, in that order of preference.
func resolveModels(args []string, manifest, dir string) ([]domain.Model, []discover.ManifestModel, error) {
	if len(args) > 0 {
		models, err := discover.FromPaths(args)
		return models, nil, err
	}

	if manifest != "" {
		entries, err := discover.FromManifest(manifest)
		if err != nil {
			return nil, nil, err
		}
		models := make([]domain.Model, len(entries))
		for i, e := range entries {
			models[i] = e.Model
		}
		return models, entries, nil
	}

	models, err := discover.Models(dir)
	if err != nil {
		return nil, nil, err
	}
	if len(models) == 0 {
		return nil, nil, fmt.Errorf("no models found under %s", dir)
	}
	return models, nil, nil
}

func newRunner(cfg *config.Config, cores int, verbosity classify.Verbosity) *executor.Runner {
	if cores <= 0 {
		cores = cfg.Simulation.Cores
	}
	return &executor.Runner{
		Binary:         cfg.Simulation.Binary,
		SetupCommand:   cfg.Simulation.SetupCommand,
		MPIRun:         cfg.Simulation.MPIRun,
		Cores:          cores,
		Flags:          runFlags,
		ForceResume:    runRestart,
		ResumeOverride: runRestartOverride,
		Classifier:     classify.New(cores, verbosity),
		Debug:          cfg.General.Debug,
	}
}

// manifestRunner overlays per-model manifest overrides on a base runner
type manifestRunner struct {
	base      *executor.Runner
	overrides map[string]discover.ManifestModel
	verbosity classify.Verbosity
}

func newManifestRunner(base *executor.Runner, entries []discover.ManifestModel, verbosity classify.Verbosity) *manifestRunner {
	overrides := make(map[string]discover.ManifestModel, len(entries))
	for _, e := range entries {
		overrides[e.Model.String()] = e
	}
	return &manifestRunner{base: base, overrides: overrides, verbosity: verbosity}
}

func (mr *manifestRunner) Run(ctx context.Context, m domain.Model, resume bool) (domain.RunResult, error) {
	r := *mr.base
	if o, ok := mr.overrides[m.String()]; ok {
		if o.Cores > 0 {
			r.Cores = o.Cores
			r.Classifier = classify.New(o.Cores, mr.verbosity)
		}
		r.Flags = append(append([]string{}, r.Flags...), o.Flags...)
	}
	return r.Run(ctx, m, resume)
}

func openStore(cfg *config.Config) (*runstore.Store, error) {
	path := cfg.General.DatabasePath
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return runstore.New(path)
}

// storeAdapter persists orchestrator run records through the runstore
type storeAdapter struct {
	store *runstore.Store
}

func (a *storeAdapter) SaveRun(rec orchestrator.RunRecord) error {
	return a.store.SaveRun(runstore.Run{
		ID:       rec.ID,
		Root:     rec.Root,
		Workdir:  rec.Workdir,
		Kind:     rec.Kind,
		ExitCode: rec.ExitCode,
		Convergence: sql.NullFloat64{
			Float64: rec.Convergence,
			Valid:   rec.HasFraction,
		},
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	})
}

func newNotifier(cfg *config.Config) notify.Notifier {
	if !cfg.Notifications.Desktop && cfg.Notifications.SlackWebhook == "" {
		return nil
	}
	return notify.NewMultiNotifier(
		notify.NewDesktopNotifier(cfg.Notifications.Desktop),
		notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
	)
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	verbosity, err := classify.ParseVerbosity(runVerbosity)
	if err != nil {
		return err
	}

	models, manifestEntries, err := resolveModels(args, runManifest, runDir)
	if err != nil {
		return err
	}

	runner := newRunner(cfg, runCores, verbosity)

	if runDryRun {
		for _, m := range models {
			fmt.Println(runner.BuildCommand(m, false))
		}
		return nil
	}

	var orchRunner orchestrator.ProcessRunner = runner
	if manifestEntries != nil {
		orchRunner = newManifestRunner(runner, manifestEntries, verbosity)
	}

	threshold := runThreshold
	if threshold == 0 {
		threshold = cfg.Simulation.ConvergenceThreshold
	}

	orch := orchestrator.New(orchRunner, orchestrator.Options{
		SplitCycles:   runSplitCycles,
		Threshold:     threshold,
		RestoreOnSkip: cfg.Simulation.RestoreOnSkip,
		Debug:         cfg.General.Debug,
	})
	orch.Notifier = newNotifier(cfg)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		orch.Store = &storeAdapter{store: store}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now()
	result := orch.RunBatch(ctx, models)
	failed := result.Failed()

	if store != nil {
		if err := store.SaveBatch(startedAt, time.Now(), len(models), failed); err != nil {
			fmt.Fprintf(os.Stderr, "saving batch record: %v\n", err)
		}
	}

	exitStatus = failed
	return nil
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	threshold := checkThreshold
	if threshold == 0 {
		threshold = cfg.Simulation.ConvergenceThreshold
	}

	models, _, err := resolveModels(args, "", checkDir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tCONVERGED\tSTATE")
	for _, m := range models {
		report, err := diag.Convergence(m)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(w, "%s\t-\tno diagnostics\n", m)
				continue
			}
			return err
		}
		c, ok := report.Final()
		if !ok {
			fmt.Fprintf(w, "%s\t-\tno diagnostics\n", m)
			continue
		}
		state := domain.ClassifyConvergence(c, threshold)
		fmt.Fprintf(w, "%s\t%.2f\t%s\n", m, c, state)
	}
	return w.Flush()
}

func runErrorsCmd(cmd *cobra.Command, args []string) error {
	models, _, err := resolveModels(args, "", errorsDir)
	if err != nil {
		return err
	}

	for _, m := range models {
		tally, err := diag.Errors(m)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Printf("%s: no diagnostics\n", m)
				continue
			}
			return err
		}
		if len(tally) == 0 {
			fmt.Printf("%s: no errors\n", m)
			continue
		}

		msgs := make([]string, 0, len(tally))
		for msg := range tally {
			msgs = append(msgs, msg)
		}
		sort.Strings(msgs)

		fmt.Printf("%s:\n", m)
		for _, msg := range msgs {
			fmt.Printf("  %6d  %s\n", tally[msg], msg)
		}
	}
	return nil
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("no database configured")
	}
	defer store.Close()

	runs, err := store.ListRuns(runstore.ListOptions{Root: historyRoot, Limit: historyLimit})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROOT\tKIND\tEXIT\tCONVERGED\tSTARTED\tDURATION")
	for _, r := range runs {
		conv := "-"
		if r.Convergence.Valid {
			conv = fmt.Sprintf("%.2f", r.Convergence.Float64)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.Root, r.Kind, r.ExitCode, conv,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	}
	return w.Flush()
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	models, _, err := resolveModels(args, "", watchDir)
	if err != nil {
		return err
	}

	obs := observer.New(watchStalled)
	var mu sync.Mutex
	lastActivity := make(map[string]time.Time)

	dw, err := observer.NewDiagWatcher(func(m domain.Model, files []string) {
		mu.Lock()
		lastActivity[m.String()] = time.Now()
		mu.Unlock()
		report, err := diag.Convergence(m)
		if err != nil {
			return
		}
		c, ok := report.Final()
		if !ok {
			return
		}
		state := domain.ClassifyConvergence(c, cfg.Simulation.ConvergenceThreshold)
		fmt.Printf("%s  %s: %.2f (%s)\n", time.Now().Format("15:04:05"), m, c, state)
	})
	if err != nil {
		return err
	}
	defer dw.Stop()

	watching := 0
	for _, m := range models {
		if err := dw.AddModel(m); err != nil {
			return err
		}
		if _, err := os.Stat(m.DiagDir()); err == nil {
			lastActivity[m.String()] = time.Now()
			watching++
		}
	}
	if watching == 0 {
		return fmt.Errorf("no models with diagnostic directories to watch")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	dw.Start(ctx)

	fmt.Printf("Watching %d models (Ctrl-C to stop)\n", watching)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			mu.Lock()
			for key, last := range lastActivity {
				if obs.IsStalled(last) {
					fmt.Printf("%s  %s: no diagnostic activity for %s\n",
						time.Now().Format("15:04:05"), key, time.Since(last).Round(time.Minute))
				}
			}
			mu.Unlock()
		}
	}
}

func runScheduleCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := schedulePath
	if path == "" {
		path = filepath.Join(filepath.Dir(config.DefaultConfigPath()), "schedule.toml")
	}

	schedCfg, err := batch.LoadScheduleConfig(path)
	if err != nil {
		return err
	}
	if len(schedCfg.Batches) == 0 {
		return fmt.Errorf("no batches configured in %s", path)
	}

	sched, err := batch.NewScheduler(schedCfg.Batches)
	if err != nil {
		return err
	}

	if scheduleList {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCRON\tDIR\tNEXT RUN")
		for _, b := range schedCfg.Batches {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				b.Name, b.Cron, b.Dir, sched.NextRun(b.Name).Format("2006-01-02 15:04"))
		}
		return w.Flush()
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	notifier := newNotifier(cfg)
	obs := observer.New(time.Hour)

	runBatch := func(bc batch.BatchConfig) error {
		models, err := discover.Models(bc.Dir)
		if err != nil {
			return err
		}
		if len(models) == 0 {
			return fmt.Errorf("no models under %s", bc.Dir)
		}
		if bc.MaxModels > 0 && len(models) > bc.MaxModels {
			models = models[:bc.MaxModels]
		}

		runner := &executor.Runner{
			Binary:       cfg.Simulation.Binary,
			SetupCommand: cfg.Simulation.SetupCommand,
			MPIRun:       cfg.Simulation.MPIRun,
			Cores:        bc.Cores,
			Classifier:   classify.New(bc.Cores, classify.Progress),
			Debug:        cfg.General.Debug,
		}

		orch := orchestrator.New(runner, orchestrator.Options{
			SplitCycles:   bc.SplitCycles,
			Threshold:     cfg.Simulation.ConvergenceThreshold,
			RestoreOnSkip: cfg.Simulation.RestoreOnSkip,
			Debug:         cfg.General.Debug,
		})
		if store != nil {
			orch.Store = &storeAdapter{store: store}
		}
		if bc.NotifyOnComplete {
			orch.Notifier = notifier
		}

		ctx, cancel := context.WithTimeout(context.Background(), bc.MaxDuration)
		defer cancel()

		startedAt := time.Now()
		result := orch.RunBatch(ctx, models)
		obs.RecordCompletion(bc.Name, time.Since(startedAt), result.Failed() > 0)

		if store != nil {
			if err := store.SaveBatch(startedAt, time.Now(), len(models), result.Failed()); err != nil {
				return err
			}
		}
		return nil
	}

	fmt.Printf("Scheduling %d batches from %s (Ctrl-C to stop)\n", len(schedCfg.Batches), path)
	for _, name := range sched.ListBatches() {
		fmt.Printf("  %s: next run %s\n", name, sched.NextRun(name).Format("2006-01-02 15:04"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sched.Stop()
	}()

	sched.Start(runBatch)

	metrics := obs.GetMetrics()
	if metrics.TotalCompleted > 0 {
		fmt.Printf("Ran %d batches, %d failed, average duration %s\n",
			metrics.TotalCompleted, metrics.TotalFailed, metrics.AvgDuration.Round(time.Second))
	}
	return nil
}
