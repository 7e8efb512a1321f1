// Package notify delivers confirmed transition events to the guardians of
// an elderly user through a pluggable channel, retrying with exponential
// backoff and recording what could not be delivered.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumra/lumra-backend/internal/config"
	"github.com/lumra/lumra-backend/internal/events"
	"go.uber.org/zap"
)

var (
	ErrUnknownChannel = errors.New("unknown notification channel")
	ErrNoGuardians    = errors.New("no guardians linked to elderly user")
)

// Channel sends one event to one guardian. Receivers deduplicate on the
// event key, so a Channel may deliver the same event more than once.
type Channel interface {
	// Name returns the channel name for logging and metrics.
	Name() string
	Send(ctx context.Context, guardianID string, ev events.TransitionEvent) error
}

// channelRegistry holds channel constructors keyed by config name.
var channelRegistry = make(map[string]func(config.NotifyConfig, *zap.Logger) (Channel, error))

// RegisterChannel registers a constructor for a channel name. It is called
// from init() in each channel file.
func RegisterChannel(name string, constructor func(config.NotifyConfig, *zap.Logger) (Channel, error)) {
	channelRegistry[name] = constructor
}

// NewChannel builds the channel selected by cfg.Channel.
func NewChannel(cfg config.NotifyConfig, logger *zap.Logger) (Channel, error) {
	constructor, ok := channelRegistry[cfg.Channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, cfg.Channel)
	}
	return constructor(cfg, logger)
}

// permanentError marks a send failure that retrying cannot fix.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the notifier stops retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
