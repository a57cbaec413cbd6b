package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/roundtablesim/roundtable/simulation"
)

var (
	numActors      int
	seed           int64
	idleMin        time.Duration
	idleMax        time.Duration
	activeMin      time.Duration
	activeMax      time.Duration
	outputFileName string
	monitorPort    int
	noMonitor      bool
	openMonitor    bool
	verbose        bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use: "roundtable",
	Short: "Roundtable simulates actors contending over a ring of " +
		"pairwise-shared resources.",
	Long: `Roundtable runs N concurrent actors around a table. Each actor ` +
		`alternates between a randomized idle period and a randomized active ` +
		`period that needs both adjacent resources at once. The simulation ` +
		`runs until interrupted and records grants, holder counts, and phase ` +
		`spans into a SQLite database.`,
	RunE: runSimulation,
}

func init() {
	flags := rootCmd.Flags()

	flags.IntVarP(&numActors, "actors", "n", 5,
		"number of actors around the table")
	flags.Int64Var(&seed, "seed", 0,
		"seed deriving every actor's randomized durations")
	flags.DurationVar(&idleMin, "idle-min", time.Second,
		"lower bound of the idle period")
	flags.DurationVar(&idleMax, "idle-max", 3*time.Second,
		"upper bound of the idle period")
	flags.DurationVar(&activeMin, "active-min", time.Second,
		"lower bound of the active period")
	flags.DurationVar(&activeMax, "active-max", 3*time.Second,
		"upper bound of the active period")
	flags.StringVar(&outputFileName, "output", "",
		"name of the output database file, without the suffix")
	flags.IntVar(&monitorPort, "monitor-port", 0,
		"port for the monitoring server, 0 picks a random port")
	flags.BoolVar(&noMonitor, "no-monitor", false,
		"disable the monitoring server")
	flags.BoolVar(&openMonitor, "open-monitor", false,
		"open the monitoring URL in a browser")
	flags.BoolVarP(&verbose, "verbose", "v", false,
		"log phase transitions to stderr")
}

// applyEnvDefaults lets a .env file or the environment override the built-in
// defaults. Explicit flags still win.
func applyEnvDefaults(cmd *cobra.Command) error {
	_ = godotenv.Load()

	if v := os.Getenv("ROUNDTABLE_ACTORS"); v != "" &&
		!cmd.Flags().Changed("actors") {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing ROUNDTABLE_ACTORS: %w", err)
		}
		numActors = n
	}

	if v := os.Getenv("ROUNDTABLE_SEED"); v != "" &&
		!cmd.Flags().Changed("seed") {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing ROUNDTABLE_SEED: %w", err)
		}
		seed = n
	}

	if v := os.Getenv("ROUNDTABLE_MONITOR_PORT"); v != "" &&
		!cmd.Flags().Changed("monitor-port") {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing ROUNDTABLE_MONITOR_PORT: %w", err)
		}
		monitorPort = n
	}

	if v := os.Getenv("ROUNDTABLE_OUTPUT"); v != "" &&
		!cmd.Flags().Changed("output") {
		outputFileName = v
	}

	durations := []struct {
		key  string
		flag string
		dst  *time.Duration
	}{
		{"ROUNDTABLE_IDLE_MIN", "idle-min", &idleMin},
		{"ROUNDTABLE_IDLE_MAX", "idle-max", &idleMax},
		{"ROUNDTABLE_ACTIVE_MIN", "active-min", &activeMin},
		{"ROUNDTABLE_ACTIVE_MAX", "active-max", &activeMax},
	}
	for _, e := range durations {
		v := os.Getenv(e.key)
		if v == "" || cmd.Flags().Changed(e.flag) {
			continue
		}

		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", e.key, err)
		}
		*e.dst = d
	}

	return nil
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	if err := applyEnvDefaults(cmd); err != nil {
		return err
	}

	b := simulation.MakeBuilder().
		WithNumActors(numActors).
		WithSeed(seed).
		WithIdleRange(idleMin, idleMax).
		WithActiveRange(activeMin, activeMax)

	if noMonitor {
		b = b.WithoutMonitoring()
	} else if monitorPort > 0 {
		b = b.WithMonitorPort(monitorPort)
	}

	if outputFileName != "" {
		b = b.WithOutputFileName(outputFileName)
	}

	if verbose {
		b = b.WithLogger(log.New(os.Stderr, "", log.LstdFlags))
	}

	s, err := b.Build()
	if err != nil {
		return err
	}
	defer s.Terminate()

	if openMonitor && s.GetMonitor() != nil {
		url := fmt.Sprintf(
			"http://localhost:%d/api/phases", s.GetMonitor().Port())
		_ = browser.OpenURL(url)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr,
		"Simulation %s started with %d actors, interrupt to stop\n",
		s.ID(), numActors)

	return s.Run(ctx)
}
