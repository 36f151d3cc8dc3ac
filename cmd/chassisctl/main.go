package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/edaniels/golog"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/chassisctl/internal/config"
	"github.com/san-kum/chassisctl/internal/control"
	"github.com/san-kum/chassisctl/internal/experiment"
	"github.com/san-kum/chassisctl/internal/export"
	"github.com/san-kum/chassisctl/internal/metrics"
	"github.com/san-kum/chassisctl/internal/optim"
	"github.com/san-kum/chassisctl/internal/storage"
)

var (
	dataDir    string
	configFile string
	preset     string
	seed       int64
	integrator string
	period     time.Duration
	timeout    time.Duration
	kp         float64
	turnKp     float64
	verbose    bool
	kpGrid     []float64
	turnKpGrid []float64
	workers    int
	svgSize    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "chassisctl",
		Short:        "chassis motion control on a simulated robot",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".chassisctl", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [layout]",
		Short: "run a motion script",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScript,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "fault injection seed")
	runCmd.Flags().StringVar(&integrator, "integrator", config.DefaultIntegrator, "plant integrator")
	runCmd.Flags().DurationVar(&period, "period", config.DefaultPeriod, "simulation step")
	runCmd.Flags().DurationVar(&timeout, "timeout", config.DefaultTimeout, "script deadline")
	runCmd.Flags().Float64Var(&kp, "kp", 0.002, "distance kp, selects pid control")
	runCmd.Flags().Float64Var(&turnKp, "turn-kp", 0.004, "turn kp, selects pid control")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run trace",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run trace to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and trace to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "draw the run path as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().IntVar(&svgSize, "size", 600, "image size in pixels")

	presetsCmd := &cobra.Command{
		Use:   "presets [layout]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layouts := config.ListLayouts()
			if len(args) > 0 {
				layouts = args
			}
			for _, layout := range layouts {
				presets := config.ListPresets(layout)
				if len(presets) == 0 {
					fmt.Printf("no presets for layout: %s\n", layout)
					continue
				}
				fmt.Printf("presets for %s:\n", layout)
				for _, p := range presets {
					fmt.Printf("  %-10s %d steps\n", p, len(config.GetPreset(layout, p).Script))
				}
			}
			return nil
		},
	}

	tuneCmd := &cobra.Command{
		Use:   "tune [layout]",
		Short: "grid search pid gains on a script",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tuneGains,
	}
	tuneCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	tuneCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	tuneCmd.Flags().Float64SliceVar(&kpGrid, "kp", []float64{0.001, 0.002, 0.003}, "distance kp values")
	tuneCmd.Flags().Float64SliceVar(&turnKpGrid, "turn-kp", []float64{0.002, 0.004, 0.006}, "turn kp values")
	tuneCmd.Flags().IntVar(&workers, "workers", 4, "concurrent runs")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportCmd, exportCSVCmd, exportJSONCmd, exportSVGCmd, presetsCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() golog.Logger {
	if verbose {
		return golog.NewDevelopmentLogger("chassisctl")
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar().Named("chassisctl")
}

// loadConfig resolves the base config: defaults for the layout, then the
// preset, then the config file.
func loadConfig(args []string) (*config.Config, error) {
	layout := config.DefaultLayout
	if len(args) > 0 {
		layout = args[0]
	}

	cfg := config.DefaultConfig()
	cfg.Layout = layout
	if preset != "" {
		cfg = config.GetPreset(layout, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(layout))
		}
	}

	// Load config file if specified (overrides preset)
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		if len(args) > 0 {
			cfg.Layout = layout
		}
	}

	if len(cfg.Script) == 0 {
		return nil, fmt.Errorf("%w: empty script, use --preset or --config", config.ErrInvalidConfig)
	}
	return cfg, nil
}

// applyRunFlags overrides cfg with the run flags the user set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Faults.Seed = seed
	}
	if flags.Changed("integrator") {
		cfg.Sim.Integrator = integrator
	}
	if flags.Changed("period") {
		cfg.Sim.Period = period
	}
	if flags.Changed("timeout") {
		cfg.Sim.Timeout = timeout
	}
	if flags.Changed("kp") || flags.Changed("turn-kp") {
		if cfg.Gains == nil {
			cfg.Gains = &config.GainsConfig{}
		}
		cfg.Gains.Distance = control.Gains{Kp: kp}
		cfg.Gains.Turn = control.Gains{Kp: turnKp}
	}
	return cfg.Validate()
}

func runScript(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	logger := newLogger()
	defer logger.Sync()

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp := experiment.New(cfg, experiment.NewRegistry(), logger)
	if err := exp.Setup(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	plan := exp.Plan()
	fmt.Printf("running %d steps on %s (%s)...\n", len(cfg.Script), plan.Layout, plan.Strategy)
	res, runErr := exp.Run(ctx)

	meta := &storage.RunMetadata{
		Preset:    preset,
		Layout:    plan.Layout.String(),
		Strategy:  plan.Strategy.String(),
		Estimator: plan.Estimator.String(),
		Seed:      cfg.Faults.Seed,
		Period:    cfg.Sim.Period.Seconds(),
		Duration:  res.Elapsed.Seconds(),
		Steps:     res.Steps,
		FinalPose: res.Final,
		Metrics:   res.Metrics,
	}
	runID, err := st.Save(meta, res.Trace)
	if err != nil {
		return errors.Join(runErr, err)
	}

	fmt.Println(renderSummary(runID, res))
	return runErr
}

func tuneGains(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger := newLogger()
	defer logger.Sync()

	build := func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := *base
		cfg.Gains = &config.GainsConfig{
			Distance: control.Gains{Kp: params["kp"]},
			Turn:     control.Gains{Kp: params["turn_kp"]},
		}
		return experiment.New(&cfg, nil, logger), nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	grid := optim.NewGridSearch([]string{"kp", "turn_kp"}, [][]float64{kpGrid, turnKpGrid}, workers)
	fmt.Printf("evaluating %d gain pairs on %d steps...\n", len(grid.Points()), len(base.Script))
	candidates, err := grid.Search(ctx, build, optim.SettleScore)
	if err != nil && candidates == nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KP\tTURN_KP\tSCORE\tERROR")
	for _, c := range candidates {
		errText := ""
		if c.Err != nil {
			errText = c.Err.Error()
		}
		fmt.Fprintf(w, "%.4f\t%.4f\t%.3f\t%s\n", c.Params["kp"], c.Params["turn_kp"], c.Score, errText)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLAYOUT\tSTRATEGY\tESTIMATOR\tTIME\tDURATION\tSTEPS\tSETTLED")

	for _, run := range runs {
		settled := 0
		for _, s := range run.Steps {
			if s.Outcome == experiment.OutcomeSettled {
				settled++
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2fs\t%d\t%d\n",
			run.ID,
			run.Layout,
			run.Strategy,
			run.Estimator,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			len(run.Steps),
			settled,
		)
	}

	return w.Flush()
}

type plotSeries struct {
	caption string
	value   func(metrics.Sample) float64
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	trace, err := st.LoadTrace(runID)
	if err != nil {
		return err
	}

	if len(trace) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("strategy: %s\n", meta.Strategy)
	fmt.Printf("samples: %d\n\n", len(trace))

	series := []plotSeries{
		{"x (m)", func(s metrics.Sample) float64 { return s.Truth.X }},
		{"y (m)", func(s metrics.Sample) float64 { return s.Truth.Y }},
		{"heading (deg)", func(s metrics.Sample) float64 { return s.Truth.Theta }},
	}
	if trace[0].HasEstimate {
		series = append(series, plotSeries{"odometry drift (m)", func(s metrics.Sample) float64 {
			return s.Truth.DistanceTo(s.Estimate.X, s.Estimate.Y)
		}})
	}

	for _, sr := range series {
		data := make([]float64, len(trace))
		for i, s := range trace {
			data[i] = sr.value(s)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(sr.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	trace, err := st.LoadTrace(args[0])
	if err != nil {
		return err
	}

	if len(trace) == 0 {
		return fmt.Errorf("no data to export")
	}
	return storage.WriteTraceCSV(os.Stdout, trace)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	trace, err := st.LoadTrace(runID)
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, meta, trace)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	trace, err := st.LoadTrace(args[0])
	if err != nil {
		return err
	}
	return export.PathSVG(os.Stdout, trace, svgSize)
}
