package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bizbank/bizbank/internal/metrics"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("notification delivery unavailable")

// BreakerConfig tunes the circuit breaker around a Notifier.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SendTimeout      time.Duration
}

// BreakerNotifier stops calling a failing downstream notifier until it recovers.
type BreakerNotifier struct {
	next        Notifier
	cb          *gobreaker.CircuitBreaker
	sendTimeout time.Duration
	logger      *slog.Logger
}

// NewBreakerNotifier wraps next with a gobreaker circuit breaker and reports
// state changes to rec.
func NewBreakerNotifier(next Notifier, cfg BreakerConfig, rec metrics.Recorder, logger *slog.Logger) *BreakerNotifier {
	if cfg.Name == "" {
		cfg.Name = "notifier"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if rec == nil {
		rec = metrics.NoOp{}
	}
	threshold := cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			var state float64
			switch to {
			case gobreaker.StateOpen:
				state = 1
			case gobreaker.StateHalfOpen:
				state = 2
			}
			rec.CircuitState(name, state)
		},
	}
	return &BreakerNotifier{
		next:        next,
		cb:          gobreaker.NewCircuitBreaker(settings),
		sendTimeout: cfg.SendTimeout,
		logger:      logger,
	}
}

// Send delivers message through the breaker.
func (n *BreakerNotifier) Send(ctx context.Context, message Message) error {
	if n.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.sendTimeout)
		defer cancel()
	}
	_, err := n.cb.Execute(func() (interface{}, error) {
		return nil, n.next.Send(ctx, message)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		n.logger.Warn("notification rejected by open circuit", slog.String("kind", message.Kind))
		return ErrUnavailable
	}
	return err
}
