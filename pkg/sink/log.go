package sink

import (
	"github.com/andrej220/synctity/pkg/lg"
	"github.com/andrej220/synctity/pkg/runner"
)

// Log writes one structured record per event. Output chunks are logged at
// debug level.
type Log struct {
	logger lg.Logger
}

func NewLog(logger lg.Logger) *Log {
	if logger == nil {
		logger = lg.Discard
	}
	return &Log{logger: logger}
}

func (l *Log) Emit(ev runner.Event) {
	fields := []lg.Field{
		lg.String("run", ev.RunID.String()),
		lg.String("command", ev.Command),
	}
	switch ev.Kind {
	case runner.EventStarted:
		l.logger.Info("Command started", fields...)
	case runner.EventOutput:
		l.logger.Debug("Command output", append(fields, lg.String("channel", string(ev.Channel)), lg.String("text", ev.Text))...)
	case runner.EventFinished:
		fields = append(fields, lg.Int("exitCode", ev.ExitCode))
		if ev.Error != "" {
			fields = append(fields, lg.String("error", ev.Error))
		}
		if ev.Failed() {
			l.logger.Warn("Command failed", fields...)
			return
		}
		l.logger.Info("Command finished", fields...)
	}
}
