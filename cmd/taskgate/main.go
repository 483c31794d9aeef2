package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/zen-systems/taskgate/pkg/adapter"
	"github.com/zen-systems/taskgate/pkg/archive"
	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/coordinator"
	"github.com/zen-systems/taskgate/pkg/decision"
	"github.com/zen-systems/taskgate/pkg/depgraph"
	"github.com/zen-systems/taskgate/pkg/jobs"
	"github.com/zen-systems/taskgate/pkg/logging"
	"github.com/zen-systems/taskgate/pkg/perf"
	"github.com/zen-systems/taskgate/pkg/pricing"
	"github.com/zen-systems/taskgate/pkg/router"
)

var (
	configFile string
	jsonOutput bool
)

const callTimeout = 120 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskgate",
		Short: "LLM task routing with cost-aware local/paid decisions",
		Long: `Taskgate routes LLM work between local models and paid API providers.
	It scores each task on cost, complexity, token usage, and priority,
	decomposes code tasks into dependency-ordered subtasks, and balances
	load across the available models.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to routing config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of tables")

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func routeCmd() *cobra.Command {
	var contextLength int
	var outputLength int
	var complexity float64
	var priority string
	var attempts int

	cmd := &cobra.Command{
		Use:   "route [task]",
		Short: "Decide whether a task should run locally or on a paid provider",
		Long: `Scores the task and prints the routing decision without executing it.

	The decision weighs estimated cost, task complexity, token usage, and
	the requested priority. A task too large for every local context
	window is always routed to a paid provider.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}

			eng := decision.NewEngine(rt.catalog, rt.estimator, rt.store, rt.cfg.Routing)
			d, err := eng.RouteTask(ctx, decision.Params{
				Task:                 args[0],
				ContextLength:        contextLength,
				ExpectedOutputLength: outputLength,
				Complexity:           complexity,
				Priority:             decision.Priority(priority),
				PreviousAttempts:     attempts,
			})
			if err != nil {
				return err
			}

			if err := rt.history.Append(archive.Record{
				Kind:       archive.KindRoute,
				Task:       args[0],
				Provider:   d.Provider,
				Model:      d.Model,
				Confidence: d.Confidence,
			}); err != nil {
				l := logging.New("cli")
				l.Warn().Err(err).Msg("failed to archive decision")
			}

			if jsonOutput {
				return printJSON(d)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Provider:\t%s\n", d.Provider)
			fmt.Fprintf(w, "Model:\t%s\n", d.Model)
			fmt.Fprintf(w, "Confidence:\t%.2f\n", d.Confidence)
			fmt.Fprintf(w, "Scores:\tlocal %.3f / paid %.3f\n", d.Scores.Local, d.Scores.Paid)
			fmt.Fprintf(w, "Explanation:\t%s\n", d.Explanation)
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&contextLength, "context-length", 0, "input context length in tokens")
	cmd.Flags().IntVar(&outputLength, "output-length", 0, "expected output length in tokens")
	cmd.Flags().Float64Var(&complexity, "complexity", 0.5, "task complexity in [0,1]")
	cmd.Flags().StringVar(&priority, "priority", "cost", "priority: speed, cost, or quality")
	cmd.Flags().IntVar(&attempts, "attempts", 0, "prior failed attempts for this task")

	return cmd
}

func processCmd() *cobra.Command {
	var granularity string
	var priority string
	var execute bool
	var watch bool
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "process [task]",
		Short: "Decompose a code task, assign models, and optionally execute",
		Long: `Breaks a code task into typed subtasks, resolves dependencies into an
	execution order, assigns a model to each subtask, and estimates cost.

	With --execute, runs every subtask in dependency order and synthesizes
	a final result. With --watch, stays alive after execution, serves
	prometheus metrics, reports tracked jobs, and runs the scheduled job
	cleanup until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}

			tracker := jobs.NewTracker()
			rtr := router.NewRouter(rt.catalog, rt.store, rt.cfg.Routing)
			coord := coordinator.New(
				coordinator.NewHeuristicDecomposer(),
				depgraph.NewMapper(),
				rtr,
				rt.catalog,
				rt.estimator,
				rt.dispatch,
				tracker,
				rt.cfg.Routing,
			)

			if watch {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				srv := &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						l := logging.New("cli")
						l.Warn().Err(err).Str("addr", metricsAddr).
							Msg("metrics listener failed")
					}
				}()
				defer srv.Close()

				c := cron.New()
				maxAge := time.Duration(rt.cfg.Routing.JobMaxAgeHours) * time.Hour
				log := logging.New("cli")
				if _, err := c.AddFunc(rt.cfg.Routing.CleanupSchedule, func() {
					n := tracker.CleanupCompletedJobs(maxAge)
					log.Info().Int("evicted", n).Int("active", len(tracker.GetActiveJobs())).
						Msg("job cleanup")
				}); err != nil {
					return fmt.Errorf("invalid cleanup schedule %q: %w", rt.cfg.Routing.CleanupSchedule, err)
				}
				c.Start()
				defer c.Stop()
			}

			result, err := coord.ProcessCodeTask(ctx, args[0], coordinator.ProcessOptions{
				Granularity: granularity,
				Priority:    priority,
				Execute:     execute,
			})
			if err != nil {
				if adapter.IsTransient(err) {
					fmt.Fprintln(os.Stderr, "provider error looks transient; retrying may succeed")
				}
				return err
			}

			if err := rt.history.Append(archive.Record{
				Kind:          archive.KindProcess,
				Task:          args[0],
				JobID:         result.JobID,
				Subtasks:      len(result.DecomposedTask.Subtasks),
				EstimatedCost: result.EstimatedCost,
			}); err != nil {
				l := logging.New("cli")
				l.Warn().Err(err).Msg("failed to archive run")
			}

			if jsonOutput {
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				printProcessReport(os.Stdout, result, tracker)
			}

			if watch {
				fmt.Fprintf(os.Stderr, "watching; metrics on %s, job cleanup on schedule %s\n",
					metricsAddr, rt.cfg.Routing.CleanupSchedule)
				printJobsTable(os.Stderr, tracker.GetActiveJobs())
				sig := make(chan os.Signal, 1)
				signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
				<-sig
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&granularity, "granularity", "fine", "decomposition granularity: fine or coarse")
	cmd.Flags().StringVar(&priority, "priority", "cost", "priority: speed, cost, quality, or efficiency")
	cmd.Flags().BoolVar(&execute, "execute", false, "execute subtasks after assignment")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and clean up finished jobs on schedule")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "prometheus listen address used with --watch")

	return cmd
}

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available models and their tracked performance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}

			models, err := rt.catalog.AvailableModels(ctx)
			if err != nil {
				return err
			}
			sort.Slice(models, func(i, j int) bool {
				if models[i].Provider != models[j].Provider {
					return models[i].Provider < models[j].Provider
				}
				return models[i].ID < models[j].ID
			})

			if jsonOutput {
				return printJSON(models)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tCOST\tSUCCESS\tQUALITY\tSAMPLES")
			for _, m := range models {
				cost := "free"
				if !m.IsFree() {
					cost = "paid"
				}
				success, quality, samples := "-", "-", "-"
				if d, ok := rt.store.Get(m.ID); ok && d.BenchmarkCount > 0 {
					success = fmt.Sprintf("%.2f", d.SuccessRate)
					quality = fmt.Sprintf("%.2f", d.QualityScore)
					samples = fmt.Sprintf("%d", d.BenchmarkCount)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					m.Provider, m.ID, m.ContextWindow, cost, success, quality, samples)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(benchCmd())
	return cmd
}

func benchCmd() *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Probe local models and record a performance observation",
		Long: `Sends a short prompt to every local model and records the outcome in
	the performance store. Run this periodically so routing rankings track
	what the local runtime can actually serve.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}

			models, err := rt.catalog.AvailableModels(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tRESULT\tLATENCY")
			for _, m := range models {
				if !m.IsLocal() {
					continue
				}
				callCtx, cancel := context.WithTimeout(ctx, callTimeout)
				start := time.Now()
				_, callErr := rt.dispatch.CallModel(callCtx, m, prompt)
				cancel()
				elapsed := time.Since(start)

				obs := perf.Observation{
					Success:        callErr == nil,
					QualityScore:   0.5,
					ResponseTimeMS: float64(elapsed.Milliseconds()),
					Complexity:     0.2,
				}
				if err := rt.store.RecordObservation(m.ID, obs); err != nil {
					return err
				}

				result := "ok"
				if callErr != nil {
					result = "error: " + callErr.Error()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, result, elapsed.Round(time.Millisecond))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "Reply with the single word: ready", "probe prompt")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent routing decisions and runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := archive.NewStore(filepath.Join(cfg.ConfigDir, "history.jsonl"))
			if err != nil {
				return err
			}
			records, err := store.Recent(limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("No history yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tKIND\tTASK\tTARGET\tDETAIL")
			for _, rec := range records {
				target := rec.Model
				if rec.Kind == archive.KindProcess {
					target = rec.JobID
				}
				detail := fmt.Sprintf("confidence %.2f", rec.Confidence)
				if rec.Kind == archive.KindProcess {
					detail = fmt.Sprintf("%d subtasks, $%.4f", rec.Subtasks, rec.EstimatedCost)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					rec.Timestamp.Format("2006-01-02 15:04"), rec.Kind, truncate(rec.Task, 40), target, detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to show")
	return cmd
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [routing.yaml]",
		Short: "Validate a routing config file",
		Long:  "Parses routing YAML and reports the effective values without routing anything.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := config.LoadRoutingConfig(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(rc)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Complexity thresholds:\t%.2f / %.2f / %.2f\n",
				rc.Thresholds.ComplexitySimple, rc.Thresholds.ComplexityMedium, rc.Thresholds.ComplexityComplex)
			fmt.Fprintf(w, "Token thresholds:\t%d / %d / %d\n",
				rc.Thresholds.TokensSmall, rc.Thresholds.TokensMedium, rc.Thresholds.TokensLarge)
			fmt.Fprintf(w, "Load diff threshold:\t%d\n", rc.LoadBalancer.DiffThreshold)
			fmt.Fprintf(w, "Cleanup schedule:\t%s\n", rc.CleanupSchedule)
			fmt.Fprintf(w, "Synthesis fallback:\t%s/%s\n",
				rc.Synthesis.FallbackProvider, rc.Synthesis.FallbackModel)
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Println("Routing config is valid.")
			return nil
		},
	}
}

// runtime bundles the components every command needs.
type runtime struct {
	cfg       *config.Config
	catalog   *adapter.Catalog
	dispatch  *adapter.Dispatcher
	store     *perf.Store
	estimator pricing.Estimator
	history   *archive.Store
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logging.Setup(os.Stderr, cfg.LogLevel, true)

	adapters, err := createAdapters(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapters: %w", err)
	}

	catalog := adapter.NewCatalog(adapters)
	store, err := perf.Open(filepath.Join(cfg.ConfigDir, "performance.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to open performance store: %w", err)
	}
	if models, err := catalog.AvailableModels(ctx); err == nil {
		for _, m := range models {
			store.Seed(m)
		}
	}

	history, err := archive.NewStore(filepath.Join(cfg.ConfigDir, "history.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	return &runtime{
		cfg:       cfg,
		catalog:   catalog,
		dispatch:  adapter.NewDispatcher(adapters, callTimeout),
		store:     store,
		estimator: pricing.NewTable(cfg.Routing.Pricing),
		history:   history,
	}, nil
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadWithRoutingFile(configFile)
	}
	return config.Load()
}

func createAdapters(ctx context.Context, cfg *config.Config) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	if cfg.LocalEndpoint != "" {
		a, err := adapter.NewOllamaAdapter(cfg.LocalEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create local adapter: %w", err)
		}
		// An unreachable local runtime just means an empty local catalog.
		if err := a.Refresh(ctx); err != nil {
			l := logging.New("cli")
			l.Warn().Err(err).Str("endpoint", cfg.LocalEndpoint).
				Msg("local model runtime unreachable")
		}
		adapters[a.Name()] = a
	}

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters[a.Name()] = a
	}

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters[a.Name()] = a
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters[a.Name()] = a
	}

	if cfg.OpenRouterKey != "" {
		a, err := adapter.NewOpenRouterAdapter(cfg.OpenRouterKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openrouter adapter: %w", err)
		}
		adapters[a.Name()] = a
	}

	return adapters, nil
}

func printProcessReport(out io.Writer, result *coordinator.ProcessResult, tracker *jobs.Tracker) {
	fmt.Fprintf(out, "Job %s: %d subtasks, estimated cost $%.4f\n\n",
		result.JobID, len(result.DecomposedTask.Subtasks), result.EstimatedCost)

	fmt.Fprintln(out, result.DependencyVisualization)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tSUBTASK\tTYPE\tMODEL\tCRITICAL")
	critical := make(map[string]bool, len(result.CriticalPath))
	for _, st := range result.CriticalPath {
		critical[st.ID] = true
	}
	for i, st := range result.ExecutionOrder {
		model := "-"
		if m, ok := result.ModelAssignments[st.ID]; ok {
			model = m.ID
		}
		mark := ""
		if critical[st.ID] {
			mark = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, st.ID, st.CodeType, model, mark)
	}
	w.Flush()

	if result.FinalResult != "" {
		fmt.Fprintln(out, "\n--- result ---")
		fmt.Fprintln(out, result.FinalResult)
	}

	if job, ok := tracker.GetJob(result.JobID); ok {
		fmt.Fprintf(out, "\nJob status: %s (%s)\n", job.Status, job.Progress)
	}
}

func printJobsTable(out io.Writer, active []jobs.Job) {
	if len(active) == 0 {
		fmt.Fprintln(out, "No active jobs.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tMODEL\tSTARTED")
	for _, j := range active {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.Status, j.Progress, j.Model, j.StartTime.Format(time.RFC3339))
	}
	tw.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
