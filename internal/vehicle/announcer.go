package vehicle

import (
	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/pkg/logger"
)

// Announcer speaks operator alerts. Audio output lives outside this package.
type Announcer interface {
	Say(text string, severity events.Severity)
}

// LogAnnouncer writes announcements to the log
type LogAnnouncer struct {
	logger *logger.Logger
}

// NewLogAnnouncer creates an announcer backed by logger
func NewLogAnnouncer(log *logger.Logger) *LogAnnouncer {
	return &LogAnnouncer{logger: log.Named("announce")}
}

func (a *LogAnnouncer) Say(text string, severity events.Severity) {
	switch {
	case severity <= events.SeverityError:
		a.logger.Error(text, String("severity", severity.String()))
	case severity <= events.SeverityNotice:
		a.logger.Warn(text, String("severity", severity.String()))
	default:
		a.logger.Info(text)
	}
}
