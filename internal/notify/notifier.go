package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumra/lumra-backend/internal/config"
	"github.com/lumra/lumra-backend/internal/diagnostics"
	"github.com/lumra/lumra-backend/internal/events"
	"github.com/lumra/lumra-backend/internal/logging"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// failureNamespace seeds delivery failure ids so one event/guardian pair
// always maps to the same row.
var failureNamespace = uuid.MustParse("0b9d4f2e-7c61-4f0a-a6c3-52e8d17b9f40")

// GuardianResolver lists the guardians to notify for an elderly user.
type GuardianResolver interface {
	GuardiansOf(ctx context.Context, elderlyID string) ([]string, error)
}

// Options configures a Notifier. Zero values fall back to config.Default().
type Options struct {
	Channel     Channel
	Guardians   GuardianResolver
	Failures    FailureStore
	Metrics     *diagnostics.Metrics
	Logger      *zap.Logger
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Workers     int
	QueueSize   int
}

// OptionsFromConfig copies the retry and pool settings out of cfg.
func OptionsFromConfig(cfg config.NotifyConfig) Options {
	return Options{
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		MaxAttempts: cfg.MaxAttempts,
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
	}
}

// Notifier hands events to a fixed pool of workers. Enqueue never blocks, so
// transition processing never waits on delivery.
type Notifier struct {
	channel     Channel
	guardians   GuardianResolver
	failures    FailureStore
	metrics     *diagnostics.Metrics
	log         *zap.Logger
	backoff     Backoff
	maxAttempts int

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	closed bool
	queue  chan events.TransitionEvent
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts the worker pool. Call Close to drain it.
func New(opts Options) *Notifier {
	def := config.Default().Notify
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = def.MaxDelay
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Workers < 1 {
		opts.Workers = def.Workers
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Failures == nil {
		opts.Failures = NewMemoryFailureStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		channel:     opts.Channel,
		guardians:   opts.Guardians,
		failures:    opts.Failures,
		metrics:     opts.Metrics,
		log:         logging.Component(opts.Logger, "notify"),
		backoff:     Backoff{Base: opts.BaseDelay, Max: opts.MaxDelay},
		maxAttempts: opts.MaxAttempts,
		sleep:       sleepContext,
		queue:       make(chan events.TransitionEvent, opts.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for ev := range n.queue {
		n.metrics.QueueDepth(len(n.queue))
		n.Notify(n.ctx, ev)
	}
}

// Enqueue schedules ev for delivery. When the queue is full or the notifier
// is closed the event is recorded as a delivery failure for reconciliation
// and Enqueue reports false.
func (n *Notifier) Enqueue(ev events.TransitionEvent) bool {
	n.mu.RLock()
	if !n.closed {
		select {
		case n.queue <- ev:
			n.metrics.QueueDepth(len(n.queue))
			n.mu.RUnlock()
			return true
		default:
		}
	}
	n.mu.RUnlock()

	n.metrics.NotificationDropped()
	n.log.Warn("notification queue unavailable, recording for reconciliation",
		zap.String("event_id", ev.ID))
	n.recordUndelivered(context.Background(), ev, errors.New("notification queue full or closed"))
	return false
}

// Hold records ev as undelivered without attempting delivery. The engine
// uses it for confirmed transitions that the event log rejected.
func (n *Notifier) Hold(ctx context.Context, ev events.TransitionEvent, cause error) {
	n.log.Warn("holding event for reconciliation",
		zap.String("event_id", ev.ID),
		zap.Error(cause))
	n.recordUndelivered(ctx, ev, cause)
}

// Close stops accepting events and waits for queued ones to finish. When ctx
// expires first, in-flight retries are cancelled and recorded as failures.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.cancel()
		return nil
	case <-ctx.Done():
		n.cancel()
		<-done
		return ctx.Err()
	}
}

// Notify delivers ev to every guardian of the elderly user and reports
// whether all of them received it. Each guardian is retried independently;
// exhausted deliveries are recorded as DeliveryFailure rows.
func (n *Notifier) Notify(ctx context.Context, ev events.TransitionEvent) bool {
	guardians, err := n.resolve(ctx, ev.ElderlyID)
	if err != nil {
		n.log.Warn("cannot resolve guardians",
			zap.String("event_id", ev.ID),
			zap.String("elderly_id", ev.ElderlyID),
			zap.Error(err))
		if !errors.Is(err, ErrNoGuardians) {
			n.recordUndelivered(ctx, ev, err)
		}
		return false
	}

	delivered := true
	for _, g := range guardians {
		attempts, err := n.deliver(ctx, g, ev)
		if err == nil {
			continue
		}
		delivered = false
		n.recordFailure(ctx, ev, g, attempts, err)
	}
	return delivered
}

// Retry re-sends a recorded failure with the full retry schedule and marks
// it resolved on success.
func (n *Notifier) Retry(ctx context.Context, failureID string) error {
	f, err := n.failures.Get(ctx, failureID)
	if err != nil {
		return err
	}
	if f.ResolvedAt != nil {
		return nil
	}

	var ev events.TransitionEvent
	if err := json.Unmarshal(f.Payload, &ev); err != nil {
		return fmt.Errorf("decode failure payload: %w", err)
	}

	guardians := []string{f.GuardianID}
	if f.GuardianID == "" {
		// Recorded before guardians could be resolved.
		if guardians, err = n.resolve(ctx, ev.ElderlyID); err != nil {
			if terr := n.failures.Touch(ctx, f.ID, 0, err.Error()); terr != nil {
				n.log.Error("failed to update delivery failure", zap.String("failure_id", f.ID), zap.Error(terr))
			}
			return err
		}
	}

	for _, g := range guardians {
		attempts, err := n.deliver(ctx, g, ev)
		if err != nil {
			if terr := n.failures.Touch(ctx, f.ID, attempts, err.Error()); terr != nil {
				n.log.Error("failed to update delivery failure", zap.String("failure_id", f.ID), zap.Error(terr))
			}
			return fmt.Errorf("redeliver %s: %w", f.ID, err)
		}
	}
	if err := n.failures.Resolve(ctx, f.ID, time.Now().UTC()); err != nil {
		return err
	}
	n.log.Info("delivery failure resolved", zap.String("failure_id", f.ID), zap.String("event_id", ev.ID))
	return nil
}

// Reconcile retries every open failure, up to limit rows.
func (n *Notifier) Reconcile(ctx context.Context, limit int) (resolved, remaining int, err error) {
	open, err := n.failures.ListOpen(ctx, limit)
	if err != nil {
		return 0, 0, err
	}
	for _, f := range open {
		if ctx.Err() != nil {
			return resolved, len(open) - resolved, ctx.Err()
		}
		if err := n.Retry(ctx, f.ID); err != nil {
			n.log.Warn("reconcile retry failed", zap.String("failure_id", f.ID), zap.Error(err))
			continue
		}
		resolved++
	}
	return resolved, len(open) - resolved, nil
}

// Failures exposes the failure store to the diagnostics endpoints.
func (n *Notifier) Failures() FailureStore { return n.failures }

func (n *Notifier) resolve(ctx context.Context, elderlyID string) ([]string, error) {
	if n.guardians == nil {
		return nil, ErrNoGuardians
	}
	ids, err := n.guardians.GuardiansOf(ctx, elderlyID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoGuardians
	}
	return ids, nil
}

// deliver sends to one guardian, sleeping Backoff.Delay(n) after failed
// attempt n. It returns the number of attempts made.
func (n *Notifier) deliver(ctx context.Context, guardianID string, ev events.TransitionEvent) (int, error) {
	if n.channel == nil {
		return 0, Permanent(errors.New("no notification channel configured"))
	}

	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		err := n.channel.Send(ctx, guardianID, ev)
		n.metrics.DeliveryAttempt(n.channel.Name(), err == nil)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		n.log.Debug("delivery attempt failed",
			zap.String("guardian_id", guardianID),
			zap.String("event_id", ev.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if isPermanent(err) || attempt == n.maxAttempts {
			return attempt, lastErr
		}
		if err := n.sleep(ctx, n.backoff.Delay(attempt)); err != nil {
			return attempt, fmt.Errorf("%w (retry aborted: %v)", lastErr, err)
		}
	}
	return n.maxAttempts, lastErr
}

func (n *Notifier) recordFailure(ctx context.Context, ev events.TransitionEvent, guardianID string, attempts int, cause error) {
	n.metrics.DeliveryFailed()
	n.log.Error("delivery failed",
		zap.String("guardian_id", guardianID),
		zap.String("event_id", ev.ID),
		zap.String("event_key", ev.Key()),
		zap.Int("attempts", attempts),
		zap.Error(cause))

	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.Error("cannot encode failed event", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}
	channel := ""
	if n.channel != nil {
		channel = n.channel.Name()
	}
	f := DeliveryFailure{
		ID:         uuid.NewSHA1(failureNamespace, []byte(ev.ID+":"+guardianID)).String(),
		EventID:    ev.ID,
		GuardianID: guardianID,
		Channel:    channel,
		Attempts:   attempts,
		LastError:  cause.Error(),
		Payload:    datatypes.JSON(payload),
	}
	// The caller's context may already be cancelled during shutdown.
	if err := n.failures.Record(context.WithoutCancel(ctx), f); err != nil {
		n.log.Error("cannot record delivery failure", zap.String("event_id", ev.ID), zap.Error(err))
	}
}

// recordUndelivered stores an event that never reached a channel. The empty
// guardian id makes Retry resolve recipients again.
func (n *Notifier) recordUndelivered(ctx context.Context, ev events.TransitionEvent, cause error) {
	n.recordFailure(ctx, ev, "", 0, cause)
}
