package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/simhost/internal/config"
	"github.com/san-kum/simhost/internal/engine"
	"github.com/san-kum/simhost/internal/export"
	"github.com/san-kum/simhost/internal/session"
	"github.com/san-kum/simhost/internal/storage"
	"github.com/san-kum/simhost/internal/tui"
)

var (
	configFile string
	dataDir    string

	addr           string
	maxSessions    int
	idleTimeout    time.Duration
	tickRate       float64
	pushRate       float64
	manualPriority string
	vizBaseURL     string
	record         bool
	logLevel       string
	logFormat      string

	writeConfig string
	svgOut      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "simhost",
		Short:        "multi-session real-time physics simulation server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd, args)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".simhost", "recordings directory")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve simulations over socket.io",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&addr, "addr", config.DefaultAddr, "listen address")
	serveCmd.Flags().IntVar(&maxSessions, "max-sessions", config.DefaultMaxSessions, "concurrent session limit")
	serveCmd.Flags().DurationVar(&idleTimeout, "idle-timeout", config.DefaultIdleTimeout, "stop sessions without input after this long")
	serveCmd.Flags().Float64Var(&tickRate, "tick-rate", config.DefaultTickRate, "simulation steps per second")
	serveCmd.Flags().Float64Var(&pushRate, "push-rate", config.DefaultPushRate, "telemetry frames per second per client")
	serveCmd.Flags().StringVar(&manualPriority, "manual-priority", config.ManualAdditive, "additive or exclusive")
	serveCmd.Flags().StringVar(&vizBaseURL, "viz-url", "", "base url of the visualization frontend")
	serveCmd.Flags().BoolVar(&record, "record", false, "save session recordings to the data directory")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	serveCmd.Flags().StringVar(&logFormat, "log-format", "text", "text or json")

	localCmd := &cobra.Command{
		Use:   "local",
		Short: "run simulations in the terminal",
		RunE:  runLocal,
	}
	localCmd.Flags().Float64Var(&tickRate, "tick-rate", config.DefaultTickRate, "simulation steps per second")
	localCmd.Flags().StringVar(&manualPriority, "manual-priority", config.ManualAdditive, "additive or exclusive")
	localCmd.Flags().BoolVar(&record, "record", false, "save session recordings to the data directory")

	simsCmd := &cobra.Command{
		Use:   "sims",
		Short: "list simulation types and presets",
		RunE:  listSims,
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list recorded runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&svgOut, "svg", "", "also write the phase portrait of the run to this path")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration",
		RunE:  showConfig,
	}
	configCmd.Flags().StringVar(&writeConfig, "write", "", "write the configuration to this path instead")

	rootCmd.AddCommand(serveCmd, localCmd, simsCmd, runsCmd, plotCmd, exportCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config over the defaults and applies the flags the user
// set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = addr
	}
	if flags.Changed("max-sessions") {
		cfg.MaxSessions = maxSessions
	}
	if flags.Changed("idle-timeout") {
		cfg.IdleTimeout = idleTimeout
	}
	if flags.Changed("tick-rate") {
		cfg.TickRate = tickRate
	}
	if flags.Changed("push-rate") {
		cfg.PushRate = pushRate
	}
	if flags.Changed("manual-priority") {
		cfg.ManualPriority = manualPriority
	}
	if flags.Changed("viz-url") {
		cfg.VizBaseURL = vizBaseURL
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if record {
		cfg.RecordDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	if cfg.RecordDir == "" {
		return nil, nil
	}
	st := storage.New(cfg.RecordDir)
	if err := st.Init(); err != nil {
		return nil, fmt.Errorf("init recordings: %w", err)
	}
	return st, nil
}

func sessionConfig(cfg *config.Config, st *storage.Store) session.Config {
	return session.Config{
		Period:          cfg.Period(),
		MinSleep:        cfg.MinSleep,
		RealtimeRate:    cfg.RealtimeRate,
		ExclusiveManual: cfg.ExclusiveManual(),
		Store:           st,
		MaxSamples:      cfg.MaxSamples,
	}
}

func runLocal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	// The alternate screen owns the terminal, so logs are dropped.
	logger, err := config.LogConfig{Level: "error", Format: "text"}.NewLogger(io.Discard)
	if err != nil {
		return err
	}
	reg := engine.DefaultRegistry()
	mgr := session.NewManager(reg, session.Options{
		MaxSessions: 1,
		IdleTimeout: 24 * time.Hour,
		Session:     sessionConfig(cfg, st),
		Engine:      engine.Options{VizBaseURL: cfg.VizBaseURL},
		Logger:      logger,
	})
	defer mgr.Close()
	return tui.Run(mgr, reg)
}

func listSims(cmd *cobra.Command, args []string) error {
	reg := engine.DefaultRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIM\tPRESET\tDESCRIPTION")
	for _, name := range reg.Names() {
		fmt.Fprintf(w, "%s\t-\tdefaults\n", name)
		for _, p := range config.ListPresets(name) {
			fmt.Fprintf(w, "\t%s\t%s\n", p, config.Presets[name][p].Description)
		}
	}
	return w.Flush()
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
	fmt.Fprintln(w, "ID\tSIM\tTIME\tDURATION\tSAMPLES\tMODES\tREASON")

	for _, run := range runs {
		reason := run.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%d\t%v\t%s\n",
			run.ID,
			run.SimType,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Samples,
			run.Modes,
			reason,
		)
	}

	return w.Flush()
}

var stateCaptions = map[string][]string{
	"cartpole": {"cart position", "pole angle", "cart velocity", "pole angular velocity"},
	"pendulum": {"theta (angle)", "omega (angular velocity)"},
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	rows, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("sim: %s\n", meta.SimType)
	fmt.Printf("samples: %d\n\n", len(rows))

	// the last column of every row is the actuation
	dim := len(rows[0]) - 1
	controls := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) > dim {
			controls[i] = row[dim]
		}
	}

	captions := stateCaptions[meta.SimType]
	numVars := min(dim, 6)
	for varIdx := 0; varIdx < numVars; varIdx++ {
		data := make([]float64, len(rows))
		for i := range rows {
			if varIdx < len(rows[i]) {
				data[i] = rows[i][varIdx]
			}
		}

		caption := fmt.Sprintf("x%d vs time", varIdx)
		if varIdx < len(captions) {
			caption = captions[varIdx]
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(caption),
		))
		fmt.Println()
	}

	if len(controls) > 1 {
		fmt.Println(asciigraph.Plot(controls,
			asciigraph.Height(8),
			asciigraph.Width(80),
			asciigraph.Caption("actuation"),
		))
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	if svgOut != "" {
		if err := writePhasePortrait(st, meta, svgOut); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// angle and angular rate columns per sim type
var phaseColumns = map[string][2]int{
	"cartpole": {1, 3},
	"pendulum": {0, 1},
}

func writePhasePortrait(st *storage.Store, meta *storage.RunMetadata, path string) error {
	rows, _, err := st.LoadStates(meta.ID)
	if err != nil {
		return err
	}
	cols, ok := phaseColumns[meta.SimType]
	if !ok {
		cols = [2]int{0, 1}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	p := export.PhasePortrait{
		XCol:  cols[0],
		YCol:  cols[1],
		Title: fmt.Sprintf("%s %s", meta.SimType, meta.ID),
	}
	if err := p.WriteSVG(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func showConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if writeConfig != "" {
		return config.Save(writeConfig, cfg)
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}
