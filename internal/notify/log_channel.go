package notify

import (
	"context"

	"github.com/lumra/lumra-backend/internal/config"
	"github.com/lumra/lumra-backend/internal/events"
	"github.com/lumra/lumra-backend/internal/logging"
	"go.uber.org/zap"
)

func init() {
	RegisterChannel(config.ChannelLog, func(_ config.NotifyConfig, logger *zap.Logger) (Channel, error) {
		return NewLogChannel(logger), nil
	})
}

// LogChannel writes notifications to the service log. It is the default
// for local development, where no push gateway is configured.
type LogChannel struct {
	log *zap.Logger
}

func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{log: logging.Component(logger, "notify.log")}
}

func (c *LogChannel) Name() string { return config.ChannelLog }

func (c *LogChannel) Send(_ context.Context, guardianID string, ev events.TransitionEvent) error {
	c.log.Info("guardian notified",
		zap.String("guardian_id", guardianID),
		zap.String("event_id", ev.ID),
		zap.String("event_key", ev.Key()),
		zap.String("elderly_id", ev.ElderlyID),
		zap.String("geofence_id", ev.GeofenceID),
		zap.String("kind", string(ev.Kind)),
		zap.Time("at", ev.At))
	return nil
}
