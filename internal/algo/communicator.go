package algo

import "github.com/sirupsen/logrus"

// Communicator is the channel from the planner back to its host: four logging
// severities and a timeout signal. Nil callbacks are skipped.
type Communicator struct {
	LogSevere     func(format string, args ...any)
	LogDefault    func(format string, args ...any)
	LogInfo       func(format string, args ...any)
	LogVerbose    func(format string, args ...any)
	SignalTimeout func()
}

// NopCommunicator discards everything. It is shared by all planners that run
// without a host.
var NopCommunicator = &Communicator{}

// NewLogrusCommunicator routes the severities to logger as Error, Warn, Info and
// Debug entries tagged with the strategy name. onTimeout may be nil.
func NewLogrusCommunicator(logger logrus.FieldLogger, strategy string, onTimeout func()) *Communicator {
	entry := logger.WithField("strategy", strategy)
	return &Communicator{
		LogSevere:  entry.Errorf,
		LogDefault: entry.Warnf,
		LogInfo:    entry.Infof,
		LogVerbose: entry.Debugf,
		SignalTimeout: func() {
			entry.Warn("planning budget exceeded")
			if onTimeout != nil {
				onTimeout()
			}
		},
	}
}

func (c *Communicator) severe(format string, args ...any) {
	if c != nil && c.LogSevere != nil {
		c.LogSevere(format, args...)
	}
}

func (c *Communicator) warn(format string, args ...any) {
	if c != nil && c.LogDefault != nil {
		c.LogDefault(format, args...)
	}
}

func (c *Communicator) info(format string, args ...any) {
	if c != nil && c.LogInfo != nil {
		c.LogInfo(format, args...)
	}
}

func (c *Communicator) verbose(format string, args ...any) {
	if c != nil && c.LogVerbose != nil {
		c.LogVerbose(format, args...)
	}
}

func (c *Communicator) timeout() {
	if c != nil && c.SignalTimeout != nil {
		c.SignalTimeout()
	}
}
