package main

import (
	"context"
	"math"
	"math/rand"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/elektrokombinacija/mapf-fleet/internal/config"
	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/sim"
)

var (
	// layout
	width, height, tiers int
	spacing, liftTime    float64

	// fleet and run
	agentCount    int
	strategy      string
	configPath    string
	logLevel      string
	duration      float64
	timeStep      float64
	planEvery     float64
	taskTarget    int
	seed          int64
	serviceJitter float64
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "fleetplan",
	Short: "Multi-agent path planning for warehouse fleets",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	flags.StringVar(&configPath, "config", "", "YAML file with path planning settings")

	flags.IntVar(&width, "width", 10, "Nodes per row")
	flags.IntVar(&height, "height", 10, "Rows per tier")
	flags.IntVar(&tiers, "tiers", 1, "Number of tiers joined by lifts")
	flags.Float64Var(&spacing, "spacing", 1, "Distance between neighbouring nodes (m)")
	flags.Float64Var(&liftTime, "lift-time", 10, "Elevator travel time per tier (s)")

	flags.IntVar(&agentCount, "agents", 5, "Number of agents")
	flags.Float64Var(&duration, "duration", 600, "Simulated time (s)")
	flags.Float64Var(&timeStep, "step", 0.1, "Simulation time step (s)")
	flags.Float64Var(&planEvery, "plan-every", 1, "Seconds between regular planning passes; 0 plans on demand only")
	flags.IntVar(&taskTarget, "tasks", 0, "Stop after this many completed tasks; 0 runs for the full duration")
	flags.Int64Var(&seed, "seed", 42, "Seed for agent placement, tasks and handling times")
	flags.Float64Var(&serviceJitter, "service-variation", 0.25, "Standard deviation of handling times relative to their mean")

	rootCmd.AddCommand(runCmd, benchCmd, strategiesCmd)
}

func loadPlanningConfig() (*config.Config, error) {
	if configPath == "" {
		cfg := config.Defaults()
		return &cfg, nil
	}
	return config.Load(configPath)
}

func simConfig() sim.Config {
	return sim.Config{
		Duration:         duration,
		TimeStep:         timeStep,
		PlanningInterval: planEvery,
		Tasks:            taskTarget,
		ServiceVariation: serviceJitter,
		Seed:             seed,
	}
}

// buildFleet creates the layout and places the agents on distinct random nodes.
func buildFleet() (*core.Fleet, error) {
	layout := sim.GridLayout{Width: width, Height: height, Spacing: spacing, Tiers: tiers, ElevatorTravelTime: liftTime}
	g, err := layout.Build()
	if err != nil {
		return nil, err
	}
	if agentCount < 0 || agentCount > g.NodeCount() {
		return nil, errors.Errorf("can not place %d agents on %d nodes", agentCount, g.NodeCount())
	}
	fleet := core.NewFleet(g)
	rng := rand.New(rand.NewSource(seed))
	for i, n := range rng.Perm(g.NodeCount())[:agentCount] {
		a := core.NewAgent(core.AgentID(i), core.NodeID(n))
		a.Orientation = float64(rng.Intn(4)) * math.Pi / 2
		fleet.Agents = append(fleet.Agents, a)
	}
	return fleet, nil
}

// simulate runs one simulation of a fresh fleet with strategy name.
func simulate(ctx context.Context, cfg *config.Config, name string, logger logrus.FieldLogger) (*sim.Simulator, *sim.Metrics, error) {
	fleet, err := buildFleet()
	if err != nil {
		return nil, nil, err
	}
	cfg.Strategy = name
	cfg.ApplyAutoParameters(len(fleet.Agents))

	manager := sim.NewPathManager(logger, cfg.FixedStrategy)
	finder, err := config.NewPathFinder(cfg, fleet.Graph, manager.Communicator(name))
	if err != nil {
		return nil, nil, err
	}
	if err := manager.Switch(finder); err != nil {
		return nil, nil, err
	}
	s, err := sim.NewSimulator(simConfig(), fleet, manager, logger)
	if err != nil {
		return nil, nil, err
	}
	metrics, err := s.Run(ctx)
	return s, metrics, err
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
