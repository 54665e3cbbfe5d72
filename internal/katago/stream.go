package katago

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmmcquay/katago-retro/internal/config"
	"github.com/dmmcquay/katago-retro/internal/logging"
	"github.com/dmmcquay/katago-retro/internal/retro"
	"github.com/dmmcquay/katago-retro/internal/retry"
)

// PositionFunc returns the position reached at path.
type PositionFunc func(path retro.Path) (*Position, error)

// StreamEvaluator evaluates attempted moves by iterative deepening: depth d
// is a search of VisitsPerDepth*d visits, reported as soon as it finishes.
type StreamEvaluator struct {
	engine         EngineInterface
	position       PositionFunc
	maxDepth       int
	visitsPerDepth int
	retry          *retry.Manager
	logger         logging.ContextLogger
}

var _ retro.Evaluator = (*StreamEvaluator)(nil)

func NewStreamEvaluator(engine EngineInterface, position PositionFunc, cfg *config.RetroConfig, logger logging.ContextLogger) *StreamEvaluator {
	s := &StreamEvaluator{
		engine:         engine,
		position:       position,
		maxDepth:       cfg.MaxDepth,
		visitsPerDepth: cfg.VisitsPerDepth,
		logger:         logger,
	}
	// Rides out a supervisor restart without failing the attempt.
	s.retry = retry.NewManager(retry.Config{
		MaxAttempts:  4,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			s.logger.Warn("Retrying evaluation step", "attempt", attempt, "delay", delay.String(), "error", err)
		},
	})
	return s
}

type streamSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *streamSubscription) Unsubscribe() {
	s.cancel()
}

// Done is closed once the evaluation goroutine has exited.
func (s *streamSubscription) Done() <-chan struct{} {
	return s.done
}

// Subscribe starts evaluating node and calls fn after every completed depth
// until MaxDepth, Unsubscribe, or the end of ctx.
func (s *StreamEvaluator) Subscribe(ctx context.Context, node *retro.Ply, fn retro.EvalFunc) (retro.Subscription, error) {
	pos, err := s.position(node.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to build position for %s: %w", node.MoveNumber(), err)
	}
	if err := ValidatePosition(pos); err != nil {
		return nil, fmt.Errorf("invalid position for %s: %w", node.MoveNumber(), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &streamSubscription{cancel: cancel, done: make(chan struct{})}
	logger := s.logger.WithContext(ctx).WithField("move", node.MoveNumber())

	go func() {
		defer close(sub.done)
		defer cancel()

		for depth := 1; depth <= s.maxDepth; depth++ {
			ev, err := s.step(ctx, pos, depth)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Error("Evaluation stopped", "depth", depth, "error", err)
				return
			}
			fn(ev)
		}
		logger.Debug("Evaluation complete", "depth", s.maxDepth)
	}()

	return sub, nil
}

func (s *StreamEvaluator) step(ctx context.Context, pos *Position, depth int) (retro.Eval, error) {
	var ev retro.Eval
	err := s.retry.Run(ctx, func(ctx context.Context) error {
		result, err := s.engine.Analyze(ctx, &AnalysisRequest{
			Position:  pos,
			MaxVisits: s.visitsPerDepth * depth,
		})
		var queryErr *QueryError
		if errors.As(err, &queryErr) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		ev = result.Eval(depth)
		return nil
	})
	return ev, err
}
