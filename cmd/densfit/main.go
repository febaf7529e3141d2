package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gocarina/gocsv"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/densfit/internal/automation"
	"github.com/san-kum/densfit/internal/config"
	"github.com/san-kum/densfit/internal/experiment"
	"github.com/san-kum/densfit/internal/export"
	"github.com/san-kum/densfit/internal/md"
	"github.com/san-kum/densfit/internal/optim"
	"github.com/san-kum/densfit/internal/particles"
	"github.com/san-kum/densfit/internal/storage"
	"github.com/san-kum/densfit/internal/viz"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	configFile string
	preset     string
	logJSON    bool
	verbose    bool

	steps      int64
	ranks      int
	seed       int64
	similarity string
	integrator string
	quiet      bool

	runs int

	sweepParams []string
	metric      string
)

var (
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(18)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "densfit",
		Short:        "density guided structure fitting",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(newLogger(os.Stderr))
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (overrides output.data_dir)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [name]",
		Short: "fit a perturbed structure into its reference density",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFit,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no progress bar")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "watch a fit in the terminal",
		RunE:  runLive,
	}
	addConfigFlags(liveCmd)

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "fit an ensemble of start structures",
		RunE:  benchFit,
	}
	addConfigFlags(benchCmd)
	benchCmd.Flags().IntVar(&runs, "runs", 4, "ensemble size")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the energy trace of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "write the energy trace of a run to stdout as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id] [path]",
		Short: "export run metadata and energies to JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  exportJSON,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, name := range config.ListPresets() {
				fmt.Fprintf(w, "%s\t%s\n", name, describe(config.GetPreset(name)))
			}
			return w.Flush()
		},
	}

	configCmd := &cobra.Command{
		Use:   "config [path]",
		Short: "write the selected configuration to a yaml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return config.Save(args[0], cfg)
		},
	}
	addConfigFlags(configCmd)

	sweepCmd := &cobra.Command{
		Use:     "sweep",
		Short:   "grid search fitting parameters",
		Example: "  densfit sweep --preset helix-small --param force_constant=100,500,1000 --param spread_width=1.5,2",
		RunE:    sweepFit,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&sweepParams, "param", nil, "name=v1,v2,... (one of "+strings.Join(optim.Parameters(), ", ")+")")
	sweepCmd.Flags().StringVar(&metric, "metric", "rmsd", "metric to minimize")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run and save every step of a yaml scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id] [dir]",
		Short: "render the fitted structure and energy trace of a run as SVG",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  exportSVG,
	}

	rootCmd.AddCommand(runCmd, liveCmd, benchCmd, sweepCmd, scenarioCmd, listCmd, plotCmd,
		exportCSVCmd, exportJSONCmd, exportSVGCmd, presetsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if logJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Int64Var(&steps, "steps", 0, "number of steps")
	cmd.Flags().IntVar(&ranks, "ranks", 0, "number of ranks")
	cmd.Flags().Int64Var(&seed, "seed", 0, "perturbation seed")
	cmd.Flags().StringVar(&similarity, "similarity", "", "inner-product, relative-entropy or cross-correlation")
	cmd.Flags().StringVar(&integrator, "integrator", "", "steepest-descent or verlet")
}

// loadConfig resolves the config file or preset and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = c
	case preset != "":
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (see 'densfit presets')", preset)
		}
	default:
		cfg = config.DefaultConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("steps") {
		cfg.Run.Steps = steps
	}
	if flags.Changed("ranks") {
		cfg.Run.Ranks = ranks
	}
	if flags.Changed("seed") {
		cfg.Run.Seed = seed
	}
	if flags.Changed("similarity") {
		cfg.Fitting.Similarity = similarity
	}
	if flags.Changed("integrator") {
		cfg.Run.Integrator = integrator
	}
	if dataDir != "" {
		cfg.Output.DataDir = dataDir
	}
	return cfg, cfg.Validate()
}

func store() *storage.Store {
	dir := dataDir
	if dir == "" {
		dir = config.DefaultConfig().Output.DataDir
	}
	return storage.New(dir)
}

func describe(cfg *config.Config) string {
	return fmt.Sprintf("%d atoms, %s, %s, %d ranks, %d steps",
		cfg.Structure.Atoms, cfg.Fitting.Similarity, cfg.Run.Integrator, cfg.Run.Ranks, cfg.Run.Steps)
}

func runFit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	name := preset
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" {
		name = "fit"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exp, err := experiment.New(cfg, slog.Default())
	if err != nil {
		return err
	}
	sim, err := exp.Simulator()
	if err != nil {
		return err
	}
	sess, err := sim.Start(exp.Start(cfg.Run.Seed), exp.MDConfig())
	if err != nil {
		return err
	}

	start := time.Now()
	every := max(sess.Total()/100, 1)
	var stepErr error
	for !sess.Done() {
		if stepErr = sess.Step(ctx); stepErr != nil {
			break
		}
		if !quiet && (sess.Steps()%every == 0 || sess.Done()) {
			fmt.Fprintf(os.Stderr, "\r%s", viz.ProgressBar(float64(sess.Steps())/float64(sess.Total()), 40))
		}
	}
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}
	elapsed := time.Since(start)
	result := sess.Finish()

	runID, err := save(name, cfg, exp.Target, result)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(runID))
	printRow("steps", fmt.Sprintf("%d", result.StepsTaken))
	printRow("elapsed", elapsed.Round(time.Millisecond).String())
	if n := len(result.Energies); n > 0 {
		printRow("fit energy", fmt.Sprintf("%.6g -> %.6g", result.Energies[0].DensityFitting, result.Energies[n-1].DensityFitting))
	}
	printMetrics(result.Metrics)

	return stepErr
}

func save(name string, cfg *config.Config, target *particles.Set, result *md.Result) (string, error) {
	st := storage.New(cfg.Output.DataDir)
	if err := st.Init(); err != nil {
		return "", err
	}
	meta := storage.RunMetadata{
		Name:          name,
		Seed:          cfg.Run.Seed,
		Atoms:         target.Len(),
		Ranks:         cfg.Run.Ranks,
		Integrator:    cfg.Run.Integrator,
		Similarity:    cfg.Fitting.Similarity,
		ForceConstant: cfg.Fitting.ForceConstant,
	}
	final := &particles.Set{X: result.Final, Atoms: target.Atoms}
	return st.Save(meta, result, final)
}

func printRow(key, value string) {
	fmt.Println(keyStyle.Render(key) + valueStyle.Render(value))
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		printRow(name, fmt.Sprintf("%.6g", m[name]))
	}
}

// liveModel builds the TUI model for cfg. Logging is discarded so it does
// not tear the alternate screen.
func liveModel(title string, cfg *config.Config) (viz.Model, error) {
	exp, err := experiment.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return viz.Model{}, err
	}
	start := func() (*md.Session, error) {
		sim, err := exp.Simulator()
		if err != nil {
			return nil, err
		}
		return sim.Start(exp.Start(cfg.Run.Seed), exp.MDConfig())
	}
	return viz.NewModel(title, exp.Target.X, start)
}

func runLive(cmd *cobra.Command, args []string) error {
	if configFile != "" || preset != "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		title := preset
		if configFile != "" {
			title = configFile
		}
		m, err := liveModel(title, cfg)
		if err != nil {
			return err
		}
		return viz.Run(m)
	}

	names := config.ListPresets()
	info := make(map[string]string, len(names))
	for _, name := range names {
		info[name] = describe(config.GetPreset(name))
	}
	return viz.Run(viz.NewPicker(names, info, func(name string) (viz.Model, error) {
		return liveModel(name, config.GetPreset(name))
	}))
}

func benchFit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if runs < 1 {
		return fmt.Errorf("runs must be positive, got %d", runs)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exp, err := experiment.New(cfg, slog.Default())
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := exp.Ensemble(ctx, runs)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("%s, %d runs\n\n", describe(cfg), runs)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEED\tSTEPS\tFIT ENERGY\tRMSD\tERRORS")
	var totalSteps int64
	for i, res := range results {
		totalSteps += res.StepsTaken
		fmt.Fprintf(w, "%d\t%d\t%.6g\t%.4f\t%d\n",
			cfg.Run.Seed+int64(i),
			res.StepsTaken,
			res.Metrics["fit_energy"],
			res.Metrics["rmsd"],
			len(res.Errors),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	printRow("elapsed", elapsed.Round(time.Millisecond).String())
	printRow("steps/sec", fmt.Sprintf("%.0f", float64(totalSteps)/elapsed.Seconds()))
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := store().List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tATOMS\tRANKS\tSTEPS\tSIMILARITY\tINTEG\tRMSD")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%.4f\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Atoms,
			run.Ranks,
			run.Steps,
			run.Similarity,
			run.Integrator,
			run.Metrics["rmsd"],
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := store()
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	energies, err := st.LoadEnergies(runID)
	if err != nil {
		return err
	}

	if len(energies) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("similarity: %s\n", meta.Similarity)
	fmt.Printf("samples: %d\n\n", len(energies))

	fit := make([]float64, len(energies))
	kinetic := make([]float64, len(energies))
	moving := false
	for i, e := range energies {
		fit[i] = e.DensityFitting
		kinetic[i] = e.Kinetic
		moving = moving || e.Kinetic != 0
	}

	fmt.Println(asciigraph.Plot(fit,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("density fitting energy"),
	))
	fmt.Println()

	if moving {
		fmt.Println(asciigraph.Plot(kinetic,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("kinetic energy"),
		))
		fmt.Println()
	}

	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	energies, err := store().LoadEnergies(args[0])
	if err != nil {
		return err
	}
	if len(energies) == 0 {
		return fmt.Errorf("no data to export")
	}
	return gocsv.Marshal(energies, os.Stdout)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]
	path := runID + ".json"
	if len(args) > 1 {
		path = args[1]
	}
	if err := store().ExportJSON(runID, path); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)
	return nil
}

// parseParam splits "name=v1,v2" into the name and its values.
func parseParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("bad --param %q, want name=v1,v2,...", s)
	}
	var values []float64
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("--param %s: %w", name, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}

func sweepFit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(sweepParams) == 0 {
		return fmt.Errorf("at least one --param is required")
	}

	var names []string
	var ranges [][]float64
	for _, p := range sweepParams {
		name, values, err := parseParam(p)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	g, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}
	g.SetLogger(slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	best, points, searchErr := g.Search(ctx, cfg, metric)
	if searchErr != nil && len(points) == 0 {
		return searchErr
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\t"+strings.ToUpper(metric))
	for _, p := range points {
		for _, name := range names {
			fmt.Fprintf(w, "%g\t", p.Params[name])
		}
		if p.Err != nil {
			fmt.Fprintf(w, "error: %v\n", p.Err)
		} else {
			fmt.Fprintf(w, "%.6g\n", p.Value)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if searchErr != nil {
		return searchErr
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("best"))
	for _, name := range names {
		printRow(name, fmt.Sprintf("%g", best.Params[name]))
	}
	printRow(metric, fmt.Sprintf("%.6g", best.Value))
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	if sc.Description != "" {
		fmt.Println(titleStyle.Render(sc.Description))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, runErr := automation.RunScenario(ctx, sc, slog.Default())
	for _, r := range results {
		if dataDir != "" {
			r.Config.Output.DataDir = dataDir
		}
		runID, err := save(r.Name, r.Config, r.Target, r.Result)
		if err != nil {
			return err
		}
		printRow(r.Name, fmt.Sprintf("%s  rmsd %.4f", runID, r.Result.Metrics["rmsd"]))
	}
	return runErr
}

func exportSVG(cmd *cobra.Command, args []string) error {
	runID := args[0]
	dir := "."
	if len(args) > 1 {
		dir = args[1]
	}

	st := store()
	energies, err := st.LoadEnergies(runID)
	if err != nil {
		return err
	}
	final, err := st.LoadCoordinates(runID)
	if err != nil {
		return err
	}

	fit := make([]float64, len(energies))
	for i, e := range energies {
		fit[i] = e.DensityFitting
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	files := map[string]string{
		runID + "_energy.svg":    export.SeriesToSVG(fit, 800, 300, "#ff79c6"),
		runID + "_structure.svg": export.StructureSVG(nil, final.X, 60, 30, 4),
	}
	for name, svg := range files {
		if svg == "" {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(svg), 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}
