package logrelay

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Hook copies logrus entries into a Relay.
type Hook struct {
	relay  *Relay
	levels []logrus.Level
}

// Hook returns a logrus hook that appends every entry at one of the given
// levels to the relay. With no levels it captures Info and above.
func (r *Relay) Hook(levels ...logrus.Level) *Hook {
	if len(levels) == 0 {
		levels = LevelsFrom(logrus.InfoLevel)
	}
	return &Hook{relay: r, levels: levels}
}

// Levels implements logrus.Hook.
func (h *Hook) Levels() []logrus.Level {
	return h.levels
}

// Fire implements logrus.Hook. An error attached with WithError is
// appended to the message.
func (h *Hook) Fire(entry *logrus.Entry) error {
	msg := entry.Message
	if err, ok := entry.Data[logrus.ErrorKey]; ok && err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	h.relay.Append(Line{
		Level:   FromLogrus(entry.Level),
		Message: msg,
		Time:    entry.Time,
	})
	return nil
}

// LevelsFrom returns every logrus level at least as severe as min.
func LevelsFrom(min logrus.Level) []logrus.Level {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= min {
			levels = append(levels, l)
		}
	}
	return levels
}

// FromLogrus maps a logrus level onto the relay's four severities.
func FromLogrus(l logrus.Level) Level {
	switch l {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return LevelError
	case logrus.WarnLevel:
		return LevelWarning
	case logrus.InfoLevel:
		return LevelInfo
	default:
		return LevelDebug
	}
}
