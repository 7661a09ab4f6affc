package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/elektrokombinacija/mapf-fleet/internal/config"
)

var benchStrategies []string

// benchCmd runs the same scenario with several strategies and compares them.
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Compare path planning strategies on the same scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := loadPlanningConfig()
		if err != nil {
			return err
		}
		names := benchStrategies
		if len(names) == 0 {
			names = config.Strategies()
		}

		ctx, cancel := signalContext()
		defer cancel()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintf(cmd.OutOrStdout(), "Scenario: %d agents on %dx%dx%d nodes, %.0fs, seed %d\n\n", agentCount, width, height, tiers, duration, seed)
		printRow(w, "STRATEGY", "TASKS", "DISTANCE", "RIDES", "COLLISIONS", "PASSES", "PLANNING", "TIMEOUTS")

		for _, name := range names {
			cfg := *base
			start := time.Now()
			_, m, err := simulate(ctx, &cfg, name, logrus.WithField("strategy", name))
			if m == nil {
				return err
			}
			if err != nil {
				logrus.Warnf("%s stopped early: %v", name, err)
			}
			logrus.Debugf("%s finished in %v", name, time.Since(start))
			printRow(w, name,
				strconv.Itoa(m.TasksCompleted),
				strconv.FormatFloat(m.DistanceDriven, 'f', 1, 64),
				strconv.Itoa(m.ElevatorRides),
				strconv.Itoa(m.Collisions),
				strconv.Itoa(m.PlanningPasses),
				m.PlanningTime.Round(time.Microsecond).String(),
				strconv.Itoa(m.Timeouts))
			if ctx.Err() != nil {
				break
			}
		}
		return nil
	},
}

// strategiesCmd lists the available strategies.
var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the path planning strategies",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range config.Strategies() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	benchCmd.Flags().StringSliceVar(&benchStrategies, "strategies", nil, "Comma-separated strategies to compare (default all)")
}

func printRow(w *tabwriter.Writer, cols ...string) {
	_, _ = w.Write([]byte(strings.Join(cols, "\t") + "\n"))
}
