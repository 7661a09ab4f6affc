package sim

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/elektrokombinacija/mapf-fleet/internal/algo"
	"github.com/elektrokombinacija/mapf-fleet/internal/core"
)

// ErrFixedStrategy is returned when the strategy of a manager configured as fixed is
// switched at runtime.
var ErrFixedStrategy = errors.New("path planning strategy is fixed")

// PathManager sits between the simulator and the active strategy. It decides when a
// planning pass is needed, runs it and keeps the statistics.
type PathManager struct {
	finder algo.PathFinder
	fixed  bool
	log    logrus.FieldLogger

	Passes       int
	Timeouts     int
	PlanningTime time.Duration
	LastPass     uuid.UUID
}

// NewPathManager creates a manager without a strategy. A fixed manager accepts its
// first strategy and rejects every later switch.
func NewPathManager(logger logrus.FieldLogger, fixed bool) *PathManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PathManager{fixed: fixed, log: logger}
}

// Communicator returns a communicator for a strategy run by m. Timeouts it signals
// are counted by m.
func (m *PathManager) Communicator(strategy string) *algo.Communicator {
	return algo.NewLogrusCommunicator(m.log, strategy, func() { m.Timeouts++ })
}

// Switch makes finder the active strategy.
func (m *PathManager) Switch(finder algo.PathFinder) error {
	if finder == nil {
		return errors.New("no strategy given")
	}
	if m.fixed && m.finder != nil {
		return errors.Wrapf(ErrFixedStrategy, "can not switch from %s to %s", m.finder.Name(), finder.Name())
	}
	if m.finder != nil {
		m.log.Infof("switching path planning from %s to %s", m.finder.Name(), finder.Name())
	}
	m.finder = finder
	return nil
}

// Strategy returns the name of the active strategy.
func (m *PathManager) Strategy() string {
	if m.finder == nil {
		return ""
	}
	return m.finder.Name()
}

// NeedsPlanning reports whether some agent asks for a new path or holds one that no
// longer starts where it stands.
func (m *PathManager) NeedsPlanning(agents []*core.Agent) bool {
	for _, a := range agents {
		if a.FixedPosition {
			continue
		}
		if a.RequestReoptimization || a.Path.Len() == 0 || a.Path.First().Node != a.NextNode {
			return true
		}
	}
	return false
}

// Plan runs one planning pass over all agents.
func (m *PathManager) Plan(now float64, agents []*core.Agent) error {
	if m.finder == nil {
		return errors.New("no path planning strategy set")
	}
	m.LastPass = uuid.New()
	entry := m.log.WithFields(logrus.Fields{"pass": m.LastPass.String(), "strategy": m.finder.Name()})
	entry.Debugf("planning %d agents at %.2fs", len(agents), now)

	start := time.Now()
	m.finder.FindPaths(now, agents)
	elapsed := time.Since(start)

	m.Passes++
	m.PlanningTime += elapsed
	entry.WithField("elapsed", elapsed).Debug("planning pass done")
	return nil
}
