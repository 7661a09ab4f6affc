// Package config loads the path planning configuration and builds the configured
// strategy.
package config

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/elektrokombinacija/mapf-fleet/internal/algo"
	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

// ErrUnknownStrategy is returned for a strategy name no planner answers to.
var ErrUnknownStrategy = errors.New("unknown path planning strategy")

// minAutoLimit is the smallest per-agent budget auto-set parameters produce.
const minAutoLimit = time.Millisecond

// CBSConfig tunes Conflict-Based Search.
type CBSConfig struct {
	SearchMethod    string  `yaml:"search_method"`
	LengthOfAWindow float64 `yaml:"window"`
	MaxNodes        int     `yaml:"max_nodes"`
}

// WHCAConfig tunes Windowed Hierarchical Cooperative A*.
type WHCAConfig struct {
	LengthOfAWindow       float64 `yaml:"window"`
	UseBias               bool    `yaml:"use_bias"`
	DeadlockAfterFailures int     `yaml:"deadlock_after_failures"`
}

// PASConfig tunes priority/window-based search.
type PASConfig struct {
	LengthOfAWindow float64 `yaml:"window"`
	MaxPriorities   int     `yaml:"max_priorities"`
}

// FARConfig tunes flow-annotated replanning.
type FARConfig struct {
	MaximumNumberOfBreakingManeuverTries int     `yaml:"max_braking_tries"`
	UseDeadlockHandler                   bool    `yaml:"use_deadlock_handler"`
	PreventBackEvading                   bool    `yaml:"prevent_back_evading"`
	FlowPenalty                          float64 `yaml:"flow_penalty"`
}

// ODIDConfig tunes independence detection with operator decomposition.
type ODIDConfig struct {
	LengthOfAWindow      float64 `yaml:"window"`
	MaxNodeCountPerAgent int     `yaml:"max_nodes_per_agent"`
	UseFinalReservations bool    `yaml:"use_final_reservations"`
}

// Config is the complete path planning configuration.
type Config struct {
	Strategy      string `yaml:"strategy"`
	FixedStrategy bool   `yaml:"fixed_strategy"`

	Seed                 int64         `yaml:"seed"`
	LengthOfAWaitStep    float64       `yaml:"wait_step"`
	RuntimeLimitPerAgent time.Duration `yaml:"runtime_limit_per_agent"`
	RuntimeLimitOverall  time.Duration `yaml:"runtime_limit_overall"`
	PlanningHorizon      float64       `yaml:"planning_horizon"`
	MaxExpansions        int           `yaml:"max_expansions"`
	EdgeMode             string        `yaml:"edge_reservations"`

	// AutoSetParameters derives the runtime limits from Clocking and the number of
	// agents.
	AutoSetParameters bool          `yaml:"auto_set_parameters"`
	Clocking          time.Duration `yaml:"clocking"`

	CBS  CBSConfig  `yaml:"cbs"`
	WHCA WHCAConfig `yaml:"whca"`
	PAS  PASConfig  `yaml:"pas"`
	FAR  FARConfig  `yaml:"far"`
	ODID ODIDConfig `yaml:"odid"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	opts := algo.DefaultOptions()
	return Config{
		Strategy:             "WHCA",
		Seed:                 opts.Seed,
		LengthOfAWaitStep:    opts.LengthOfAWaitStep,
		RuntimeLimitPerAgent: opts.RuntimeLimitPerAgent,
		RuntimeLimitOverall:  opts.RuntimeLimitOverall,
		PlanningHorizon:      opts.PlanningHorizon,
		MaxExpansions:        opts.MaxExpansions,
		EdgeMode:             "off",
		Clocking:             time.Second,
		CBS:                  CBSConfig{SearchMethod: algo.BestFirst.String(), MaxNodes: 500},
		WHCA:                 WHCAConfig{LengthOfAWindow: 20, DeadlockAfterFailures: 3},
		PAS:                  PASConfig{LengthOfAWindow: 20, MaxPriorities: 3},
		FAR: FARConfig{
			MaximumNumberOfBreakingManeuverTries: 2,
			UseDeadlockHandler:                   true,
			PreventBackEvading:                   true,
			FlowPenalty:                          2,
		},
		ODID: ODIDConfig{MaxNodeCountPerAgent: 1000, UseFinalReservations: true},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no strategy can run with.
func (c *Config) Validate() error {
	if _, err := lookup(c.Strategy); err != nil {
		return err
	}
	if _, err := reservation.ParseEdgeMode(c.EdgeMode); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if _, err := algo.ParseSearchMethod(c.CBS.SearchMethod); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	switch {
	case c.LengthOfAWaitStep <= 0:
		return errors.Errorf("invalid config: wait_step must be positive, got %g", c.LengthOfAWaitStep)
	case c.RuntimeLimitPerAgent < 0 || c.RuntimeLimitOverall < 0:
		return errors.New("invalid config: runtime limits must not be negative")
	case c.PlanningHorizon <= 0:
		return errors.Errorf("invalid config: planning_horizon must be positive, got %g", c.PlanningHorizon)
	case c.MaxExpansions <= 0:
		return errors.Errorf("invalid config: max_expansions must be positive, got %d", c.MaxExpansions)
	case c.AutoSetParameters && c.Clocking <= 0:
		return errors.New("invalid config: auto_set_parameters needs a positive clocking")
	case c.CBS.LengthOfAWindow < 0 || c.WHCA.LengthOfAWindow < 0 || c.PAS.LengthOfAWindow < 0 || c.ODID.LengthOfAWindow < 0:
		return errors.New("invalid config: windows must not be negative")
	case c.CBS.MaxNodes <= 0:
		return errors.Errorf("invalid config: cbs.max_nodes must be positive, got %d", c.CBS.MaxNodes)
	case c.WHCA.DeadlockAfterFailures < 0:
		return errors.Errorf("invalid config: whca.deadlock_after_failures must not be negative, got %d", c.WHCA.DeadlockAfterFailures)
	case c.PAS.MaxPriorities < 1:
		return errors.Errorf("invalid config: pas.max_priorities must be at least 1, got %d", c.PAS.MaxPriorities)
	case c.FAR.MaximumNumberOfBreakingManeuverTries < 0:
		return errors.New("invalid config: far.max_braking_tries must not be negative")
	case c.FAR.FlowPenalty < 0:
		return errors.New("invalid config: far.flow_penalty must not be negative")
	case c.ODID.MaxNodeCountPerAgent <= 0:
		return errors.Errorf("invalid config: odid.max_nodes_per_agent must be positive, got %d", c.ODID.MaxNodeCountPerAgent)
	}
	return nil
}

// ApplyAutoParameters splits the clocking budget between agentCount agents when
// auto-set parameters are enabled.
func (c *Config) ApplyAutoParameters(agentCount int) {
	if !c.AutoSetParameters || agentCount <= 0 {
		return
	}
	c.RuntimeLimitOverall = c.Clocking
	perAgent := c.Clocking / time.Duration(agentCount)
	if perAgent < minAutoLimit {
		perAgent = minAutoLimit
	}
	c.RuntimeLimitPerAgent = perAgent
}

// Options returns the settings shared by all strategies.
func (c *Config) Options() (algo.Options, error) {
	mode, err := reservation.ParseEdgeMode(c.EdgeMode)
	if err != nil {
		return algo.Options{}, err
	}
	return algo.Options{
		Seed:                 c.Seed,
		LengthOfAWaitStep:    c.LengthOfAWaitStep,
		RuntimeLimitPerAgent: c.RuntimeLimitPerAgent,
		RuntimeLimitOverall:  c.RuntimeLimitOverall,
		PlanningHorizon:      c.PlanningHorizon,
		MaxExpansions:        c.MaxExpansions,
		EdgeMode:             mode,
	}, nil
}

type factory func(c *Config, g *core.Graph, opts algo.Options, comm *algo.Communicator) (algo.PathFinder, error)

var strategies = map[string]factory{
	"cbs": func(c *Config, g *core.Graph, opts algo.Options, comm *algo.Communicator) (algo.PathFinder, error) {
		method, err := algo.ParseSearchMethod(c.CBS.SearchMethod)
		if err != nil {
			return nil, err
		}
		cbs := algo.NewCBS(g, opts, comm)
		cbs.SearchMethod = method
		cbs.LengthOfAWindow = c.CBS.LengthOfAWindow
		cbs.MaxNodes = c.CBS.MaxNodes
		return cbs, nil
	},
	"whca": func(c *Config, g *core.Graph, opts algo.Options, comm *algo.Communicator) (algo.PathFinder, error) {
		w := algo.NewWHCA(g, opts, comm)
		w.LengthOfAWindow = c.WHCA.LengthOfAWindow
		w.UseBias = c.WHCA.UseBias
		w.DeadlockAfterFailures = c.WHCA.DeadlockAfterFailures
		return w, nil
	},
	"pas": func(c *Config, g *core.Graph, opts algo.Options, comm *algo.Communicator) (algo.PathFinder, error) {
		p := algo.NewPAS(g, opts, comm)
		p.LengthOfAWindow = c.PAS.LengthOfAWindow
		p.MaxPriorities = c.PAS.MaxPriorities
		return p, nil
	},
	"far": func(c *Config, g *core.Graph, opts algo.Options, comm *algo.Communicator) (algo.PathFinder, error) {
		f := algo.NewFAR(g, opts, comm)
		f.MaximumNumberOfBreakingManeuverTries = c.FAR.MaximumNumberOfBreakingManeuverTries
		f.UseDeadlockHandler = c.FAR.UseDeadlockHandler
		f.PreventBackEvading = c.FAR.PreventBackEvading
		f.FlowPenalty = c.FAR.FlowPenalty
		return f, nil
	},
	"odid": func(c *Config, g *core.Graph, opts algo.Options, comm *algo.Communicator) (algo.PathFinder, error) {
		o := algo.NewODID(g, opts, comm)
		o.LengthOfAWindow = c.ODID.LengthOfAWindow
		o.MaxNodeCountPerAgent = c.ODID.MaxNodeCountPerAgent
		o.UseFinalReservations = c.ODID.UseFinalReservations
		return o, nil
	},
	"dummy": func(*Config, *core.Graph, algo.Options, *algo.Communicator) (algo.PathFinder, error) {
		return algo.NewDummy(), nil
	},
}

// Strategies lists the strategy names in display form.
func Strategies() []string {
	return []string{"CBS", "WHCA", "PAS", "FAR", "ODID", "Dummy"}
}

func lookup(name string) (factory, error) {
	f, ok := strategies[strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "*"))]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownStrategy, "%q", name)
	}
	return f, nil
}

// NewPathFinder builds the configured strategy on g. comm may be nil.
func NewPathFinder(c *Config, g *core.Graph, comm *algo.Communicator) (algo.PathFinder, error) {
	f, err := lookup(c.Strategy)
	if err != nil {
		return nil, err
	}
	opts, err := c.Options()
	if err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return f(c, g, opts, comm)
}
