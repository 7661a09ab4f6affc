// Package sim is a small host for the planning engine: it moves agents along their
// planned paths with the kinematic model, hands out tasks, rides elevators and
// collects metrics.
package sim

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/elektrokombinacija/mapf-fleet/internal/algo"
	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/physics"
)

// tolerance absorbs rounding when time slices are consumed.
const tolerance = 1e-9

// Config configures a simulation run.
type Config struct {
	Duration         float64 `yaml:"duration"`          // simulated seconds
	TimeStep         float64 `yaml:"time_step"`         // seconds per tick
	PlanningInterval float64 `yaml:"planning_interval"` // seconds between regular planning passes
	Tasks            int     `yaml:"tasks"`             // stop after this many completed tasks; 0 runs for Duration
	ServiceVariation float64 `yaml:"service_variation"` // std/mean of task handling times
	Seed             int64   `yaml:"seed"`
}

// DefaultConfig returns the default simulation configuration.
func DefaultConfig() Config {
	return Config{
		Duration:         600,
		TimeStep:         0.1,
		PlanningInterval: 1,
		ServiceVariation: 0.25,
		Seed:             42,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Duration <= 0:
		return errors.Errorf("duration must be positive, got %g", c.Duration)
	case c.TimeStep <= 0:
		return errors.Errorf("time step must be positive, got %g", c.TimeStep)
	case c.PlanningInterval < 0:
		return errors.Errorf("planning interval must not be negative, got %g", c.PlanningInterval)
	case c.Tasks < 0:
		return errors.Errorf("task count must not be negative, got %d", c.Tasks)
	case c.ServiceVariation < 0:
		return errors.Errorf("service variation must not be negative, got %g", c.ServiceVariation)
	}
	return nil
}

// Metrics collects what happened during a run.
type Metrics struct {
	StartTime     time.Time `yaml:"start_time"`
	EndTime       time.Time `yaml:"end_time"`
	SimulatedTime float64   `yaml:"simulated_time"`

	PlanningPasses int           `yaml:"planning_passes"`
	PlanningTime   time.Duration `yaml:"planning_time"`
	Timeouts       int           `yaml:"timeouts"`

	TasksAssigned  int `yaml:"tasks_assigned"`
	TasksCompleted int `yaml:"tasks_completed"`

	Collisions     int     `yaml:"collisions"`
	DistanceDriven float64 `yaml:"distance_driven"`
	ElevatorRides  int     `yaml:"elevator_rides"`
}

// agentState is what the simulator tracks beyond the agent itself.
type agentState struct {
	driving  bool // on an edge until ArrivalTime
	riding   bool // in an elevator until ArrivalTime
	profile  *physics.MotionProfile
	length   float64 // of the current edge
	progress float64 // metres covered on the current edge
	task     *core.Task
	service  float64 // handling time left; the agent is pinned meanwhile
}

// Simulator runs a fleet with one path planning strategy.
type Simulator struct {
	mu sync.Mutex

	config    Config
	fleet     *core.Fleet
	manager   *PathManager
	sequencer *algo.ElevatorSequencer
	rng       *rand.Rand
	log       logrus.FieldLogger

	now      float64
	lastPlan float64
	states   map[core.AgentID]*agentState
	nextTask core.TaskID
	metrics  Metrics
}

// NewSimulator prepares a run of fleet planned by manager.
func NewSimulator(cfg Config, fleet *core.Fleet, manager *PathManager, logger logrus.FieldLogger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid simulation config")
	}
	if err := fleet.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid fleet")
	}
	if manager == nil {
		return nil, errors.New("simulator needs a path manager")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sequencer, err := algo.NewElevatorSequencer(fleet.Graph)
	if err != nil {
		return nil, errors.Wrap(err, "can not prepare elevator sequencing")
	}
	s := &Simulator{
		config:    cfg,
		fleet:     fleet,
		manager:   manager,
		sequencer: sequencer,
		rng:       rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed))),
		log:       logger,
		lastPlan:  math.Inf(-1),
		states:    make(map[core.AgentID]*agentState, len(fleet.Agents)),
	}
	for _, a := range fleet.Agents {
		s.states[a.ID] = &agentState{}
	}
	for _, t := range fleet.Tasks {
		if t.ID >= s.nextTask {
			s.nextTask = t.ID + 1
		}
	}
	return s, nil
}

// Now returns the simulated time.
func (s *Simulator) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Run executes ticks until the duration is over, the task target is met or ctx is
// done.
func (s *Simulator) Run(ctx context.Context) (*Metrics, error) {
	s.mu.Lock()
	s.metrics.StartTime = time.Now()
	s.mu.Unlock()

	var runErr error
	for !s.finished() {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := s.Step(); err != nil {
			runErr = err
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.EndTime = time.Now()
	s.metrics.SimulatedTime = s.now
	s.metrics.PlanningPasses = s.manager.Passes
	s.metrics.PlanningTime = s.manager.PlanningTime
	s.metrics.Timeouts = s.manager.Timeouts
	m := s.metrics
	return &m, runErr
}

func (s *Simulator) finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config.Tasks > 0 && s.metrics.TasksCompleted >= s.config.Tasks {
		return true
	}
	return s.now >= s.config.Duration-tolerance
}

// Step advances the simulation by one tick: tasks are handed out, the planner runs
// when due and every agent executes its path for the length of the tick.
func (s *Simulator) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assignTasks()
	agents := s.fleet.Agents
	if s.manager.NeedsPlanning(agents) || (s.config.PlanningInterval > 0 && s.now-s.lastPlan >= s.config.PlanningInterval-tolerance) {
		if err := s.manager.Plan(s.now, agents); err != nil {
			return errors.Wrap(err, "planning failed")
		}
		s.lastPlan = s.now
	}

	dt := s.config.TimeStep
	for _, a := range agents {
		s.advance(a, s.states[a.ID], s.now, dt)
	}
	s.now += dt
	s.checkCollisions()
	return nil
}

// advance executes dt seconds of a's plan starting at t. Time left over when a phase
// ends flows into the next one, so the motion follows the planned timeline exactly.
func (s *Simulator) advance(a *core.Agent, st *agentState, t, dt float64) {
	rem := dt
	for rem > tolerance {
		switch {
		case st.driving || st.riding:
			left := a.ArrivalTime - t
			if left > rem {
				if st.driving {
					d, _ := st.profile.Advance(rem)
					st.progress += d
					s.metrics.DistanceDriven += d
				}
				return
			}
			left = math.Max(left, 0)
			t += left
			rem -= left
			s.arrive(a, st)

		case st.service > 0:
			w := math.Min(rem, st.service)
			st.service -= w
			t += w
			rem -= w
			if st.service <= tolerance {
				s.completeTask(a, st)
			}

		default:
			used, progressed := s.follow(a, st, t, rem)
			if !progressed {
				return
			}
			t += used
			rem -= used
		}
	}
}

// follow executes the next phase of the path at the node the agent stands on: wait,
// then turn, then depart. It reports the time used and whether anything happened.
func (s *Simulator) follow(a *core.Agent, st *agentState, t, rem float64) (float64, bool) {
	g := s.fleet.Graph
	p := a.Path
	if p == nil || p.Len() == 0 || p.First().Node != a.NextNode {
		a.Path = core.StayPath(a.NextNode)
		return 0, false
	}
	first := p.First()
	if first.WaitTimeAfterStop > tolerance {
		w := math.Min(rem, first.WaitTimeAfterStop)
		first.WaitTimeAfterStop -= w
		p.Set(0, first)
		return w, true
	}
	if p.Len() < 2 {
		return 0, s.arrivedAtTaskOrLift(a, st, t)
	}
	next := p.At(1).Node
	if next == a.NextNode {
		p.RemoveFirst()
		return 0, true
	}
	edge, ok := g.Edge(a.NextNode, next)
	if !ok {
		s.log.Errorf("agent %d: no edge from node %d to node %d, dropping path", a.ID, a.NextNode, next)
		a.Path = core.StayPath(a.NextNode)
		a.RequestReoptimization = true
		return 0, false
	}

	phys := a.PhysicsOrDefault()
	heading := physics.DegreesToRadians(edge.Angle)
	if turn := phys.TimeNeededToTurn(a.Orientation, heading); turn > tolerance {
		if turn <= rem {
			a.Orientation = heading
			return turn, true
		}
		a.Orientation = phys.OrientationAfterTimeStep(a.Orientation, heading, rem)
		return rem, true
	}

	duration, profile := phys.TimeNeededToMove(0, edge.Distance)
	a.Orientation = heading
	a.PreviousNode = a.NextNode
	a.NextNode = next
	a.ArrivalTime = t + duration
	p.RemoveFirst()
	st.driving = true
	st.length = edge.Distance
	st.progress = 0
	st.profile = profile
	return 0, true
}

// arrive ends the current edge or elevator ride.
func (s *Simulator) arrive(a *core.Agent, st *agentState) {
	if st.driving {
		s.metrics.DistanceDriven += st.length - st.progress
	}
	st.driving = false
	st.riding = false
	st.profile = nil
	a.PreviousNode = core.NoNode
}

// arrivedAtTaskOrLift handles an agent that has finished its path: it starts the
// handling of its task or boards the next elevator towards another tier.
func (s *Simulator) arrivedAtTaskOrLift(a *core.Agent, st *agentState, t float64) bool {
	if a.AtDestination() {
		if st.task != nil && st.service <= 0 && !a.FixedPosition {
			st.service = NewServiceTime(st.task.Duration, st.task.Duration*s.config.ServiceVariation, s.rng).Rand()
			if st.service <= tolerance {
				s.completeTask(a, st)
				return false
			}
			a.FixedPosition = true
			return true
		}
		return false
	}
	g := s.fleet.Graph
	if g.SameTier(a.NextNode, a.DestinationNode) {
		return false
	}
	seq, ok := s.sequencer.Find(a.NextNode, a.DestinationNode, a.PhysicsOrDefault())
	if !ok || len(seq.Hops) == 0 || seq.Hops[0].Entry != a.NextNode {
		return false
	}
	hop := seq.Hops[0]
	if s.occupied(hop.Exit, a.ID) {
		return false
	}
	s.log.Debugf("agent %d: riding %s from node %d to node %d", a.ID, hop.Elevator, hop.Entry, hop.Exit)
	a.NextNode = hop.Exit
	a.PreviousNode = core.NoNode
	a.ArrivalTime = t + hop.TravelTime
	a.Path = core.StayPath(hop.Exit)
	a.RequestReoptimization = true
	st.riding = true
	s.metrics.ElevatorRides++
	return true
}

// occupied reports whether another agent stands on, drives through or plans to use
// node n.
func (s *Simulator) occupied(n core.NodeID, self core.AgentID) bool {
	for _, o := range s.fleet.Agents {
		if o.ID == self {
			continue
		}
		if o.NextNode == n || o.PreviousNode == n || (o.Path != nil && o.Path.Contains(n)) {
			return true
		}
	}
	return false
}

func (s *Simulator) completeTask(a *core.Agent, st *agentState) {
	st.service = 0
	a.FixedPosition = false
	a.RequestReoptimization = true
	if st.task != nil {
		s.log.Debugf("agent %d: completed %s task %d at node %d", a.ID, st.task.Kind, st.task.ID, st.task.Node)
		s.metrics.TasksCompleted++
		st.task = nil
	}
}

// assignTasks gives every idle agent a new task at a random free node.
func (s *Simulator) assignTasks() {
	for _, a := range s.fleet.Agents {
		st := s.states[a.ID]
		if st.task != nil || st.service > 0 || st.driving || st.riding || a.FixedPosition {
			continue
		}
		if s.config.Tasks > 0 && s.metrics.TasksAssigned >= s.config.Tasks {
			return
		}
		task := s.openTask(a)
		if task == nil {
			task = s.generateTask(a)
		}
		if task == nil {
			continue
		}
		task.Agent = a.ID
		st.task = task
		a.SetDestination(task.Node)
		s.metrics.TasksAssigned++
		s.log.Debugf("agent %d: %s task %d at node %d", a.ID, task.Kind, task.ID, task.Node)
	}
}

// openTask takes the first open task of the fleet whose node is not already the
// destination of another agent.
func (s *Simulator) openTask(a *core.Agent) *core.Task {
	for _, t := range s.fleet.Tasks {
		if t.Open() && !s.claimed(t.Node, a.ID) {
			return t
		}
	}
	return nil
}

// generateTask creates a task at a random node of a random tier. Elevator entries
// are never task nodes.
func (s *Simulator) generateTask(a *core.Agent) *core.Task {
	g := s.fleet.Graph
	tiers := g.Tiers()
	if len(tiers) == 0 {
		return nil
	}
	for tries := 0; tries < 32; tries++ {
		tier := tiers[s.rng.IntN(len(tiers))]
		nodes := g.NodesOnTier(tier)
		n := nodes[s.rng.IntN(len(nodes))]
		if n == a.NextNode || g.Infos[n].IsObstacle || g.Infos[n].IsLocked || s.claimed(n, a.ID) {
			continue
		}
		if slices.Contains(g.ElevatorEntries(tier), n) {
			continue
		}
		kind := core.TaskRetrieve
		if s.nextTask%2 == 1 {
			kind = core.TaskStore
		}
		t := core.NewTask(s.nextTask, kind, n)
		s.nextTask++
		s.fleet.Tasks = append(s.fleet.Tasks, t)
		return t
	}
	return nil
}

// claimed reports whether another agent stands on or heads to n.
func (s *Simulator) claimed(n core.NodeID, self core.AgentID) bool {
	for _, o := range s.fleet.Agents {
		if o.ID != self && (o.NextNode == n || o.DestinationNode == n) {
			return true
		}
	}
	return false
}

// checkCollisions counts, at the end of a tick, every agent that holds a node another
// agent holds too.
// A driving agent holds both ends of its edge.
func (s *Simulator) checkCollisions() {
	holders := make(map[core.NodeID]core.AgentID)
	hold := func(n core.NodeID, id core.AgentID) {
		if other, ok := holders[n]; ok && other != id {
			s.metrics.Collisions++
			s.log.Warnf("agents %d and %d collide at node %d at %.2fs", other, id, n, s.now)
			return
		}
		holders[n] = id
	}
	for _, a := range s.fleet.Agents {
		if s.states[a.ID].riding {
			continue
		}
		hold(a.NextNode, a.ID)
		if a.PreviousNode != core.NoNode {
			hold(a.PreviousNode, a.ID)
		}
	}
}

// Metrics returns the metrics collected so far.
func (s *Simulator) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.metrics
	m.SimulatedTime = s.now
	m.PlanningPasses = s.manager.Passes
	m.PlanningTime = s.manager.PlanningTime
	m.Timeouts = s.manager.Timeouts
	return m
}

// ExportMetrics writes the metrics to a YAML file.
func (s *Simulator) ExportMetrics(path string) error {
	data, err := yaml.Marshal(s.Metrics())
	if err != nil {
		return errors.Wrap(err, "can not encode metrics")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "can not write metrics to %s", path)
}
