package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flashsim/flashsim/simulator"
)

var (
	configFile string // Path to YAML configuration file
	outputFile string // Path for JSON results (stdout if empty)
	logLevel   string // Log verbosity level
	seed       int64  // Workload seed override (0 = keep config value)
	timeUnits  int    // Workload length override (0 = keep config value)
	verbose    bool   // Emit per-operation failure notices
)

var rootCmd = &cobra.Command{
	Use:   "flashsim",
	Short: "Flash wear-leveling lifetime simulator",
	Long: "Simulates a flash device under a synthetic workload twice, with and without\n" +
		"wear leveling, and reports the dead-page series of both runs for comparison.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the comparison simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logrus.SetLevel(level)

		cfg := simulator.DefaultConfig()
		if configFile != "" {
			cfg, err = simulator.LoadConfig(configFile)
			if err != nil {
				return fmt.Errorf("loading config %s: %w", configFile, err)
			}
		}
		if seed != 0 {
			cfg.Workload.RandomSeed = seed
		}
		if timeUnits != 0 {
			cfg.Workload.TimeUnits = timeUnits
		}

		sim, err := simulator.NewSimulator(cfg)
		if err != nil {
			return err
		}
		if verbose {
			sim.LogEvent = func(msg string) { logrus.Debug(msg) }
		}

		logrus.Infof("starting simulation: %d blocks x %d pages, P/E threshold %d, %d time units",
			cfg.Device.BlockCount, cfg.Device.PagesPerBlock, cfg.Device.PECycleThreshold,
			cfg.Workload.TimeUnits)
		start := time.Now()
		sim.Run()
		logrus.Infof("simulation finished in %v", time.Since(start))

		output, err := json.MarshalIndent(sim.Results(), "", "  ")
		if err != nil {
			return err
		}
		if outputFile != "" {
			if err := os.WriteFile(outputFile, output, 0644); err != nil {
				return err
			}
			logrus.Infof("results written to %s", outputFile)
			return nil
		}
		fmt.Println(string(output))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&configFile, "config", "", "path to YAML configuration file")
	runCmd.Flags().StringVar(&outputFile, "output", "", "path to JSON results file (stdout if empty)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "workload random seed override")
	runCmd.Flags().IntVar(&timeUnits, "time-units", 0, "workload length override")
	runCmd.Flags().BoolVar(&verbose, "verbose", false, "log per-operation failures")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
