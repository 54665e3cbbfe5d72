// Package coach runs review sessions: it analyses a game, builds the move
// tree and keeps one retro.Session per active review.
package coach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmmcquay/katago-retro/internal/config"
	"github.com/dmmcquay/katago-retro/internal/gametree"
	"github.com/dmmcquay/katago-retro/internal/katago"
	"github.com/dmmcquay/katago-retro/internal/logging"
	"github.com/dmmcquay/katago-retro/internal/retro"
	"github.com/dmmcquay/katago-retro/internal/store"
)

// ErrTooManyReviews is returned when MaxSessions reviews are already open.
var ErrTooManyReviews = errors.New("too many open reviews")

// Metrics receives review events. *metrics.PrometheusCollector implements it.
type Metrics interface {
	retro.Observer
	RecordSessionStarted(color retro.Player, faults []retro.Fault)
	RecordSessionClosed()
}

// Options configures a Coach. Metrics and Store may be nil.
type Options struct {
	Engine  katago.EngineInterface
	Config  *config.RetroConfig
	Logger  logging.ContextLogger
	Metrics Metrics
	Store   *store.Store
}

type review struct {
	id       string
	game     *katago.Game
	tree     *gametree.Tree
	analysis *katago.GameAnalysis

	// mu serializes moves on the tree with the session's reaction to them.
	mu      sync.Mutex
	session *retro.Session
}

// Coach owns the open reviews.
type Coach struct {
	engine   katago.EngineInterface
	analyzer *katago.Analyzer
	cfg      *config.RetroConfig
	gate     retro.Gate
	logger   logging.ContextLogger
	metrics  Metrics
	store    *store.Store

	// ctx outlives requests; evaluations run under it until Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	reviews map[string]*review
}

func New(opts Options) *Coach {
	ctx, cancel := context.WithCancel(context.Background())
	logger := opts.Logger.WithField("component", "coach")

	gate := retro.NewGate(opts.Config.MinDepth, opts.Config.MaxDepth, opts.Config.MistakeThreshold)
	if opts.Config.JudgeDepth > 0 {
		gate.JudgeDepth = opts.Config.JudgeDepth
	}

	return &Coach{
		engine:   opts.Engine,
		analyzer: katago.NewAnalyzer(opts.Engine, opts.Config, logger),
		cfg:      opts.Config,
		gate:     gate,
		logger:   logger,
		metrics:  opts.Metrics,
		store:    opts.Store,
		ctx:      ctx,
		cancel:   cancel,
		reviews:  make(map[string]*review),
	}
}

// Thresholds returns the mistake thresholds faults are scanned with.
func (c *Coach) Thresholds() retro.Thresholds {
	return retro.Thresholds{Mistake: c.cfg.MistakeThreshold, Blunder: c.cfg.BlunderThreshold}
}

// StartReview analyses the game in sgf and opens a review of color's
// mistakes. It blocks for the whole-game analysis.
func (c *Coach) StartReview(ctx context.Context, sgf string, color retro.Player) (*Status, error) {
	if c.cfg.MaxSessions > 0 && c.Len() >= c.cfg.MaxSessions {
		return nil, ErrTooManyReviews
	}

	r, err := c.prepare(ctx, sgf)
	if err != nil {
		return nil, err
	}
	logger := c.logger.WithContext(logging.ContextWithReviewID(ctx, r.id))

	session, err := c.newSession(r, color)
	if err != nil {
		logger.Warn("Refusing review", "color", color.String(), "error", err)
		return nil, err
	}
	r.session = session

	c.mu.Lock()
	if c.cfg.MaxSessions > 0 && len(c.reviews) >= c.cfg.MaxSessions {
		c.mu.Unlock()
		_ = session.Close()
		if c.metrics != nil {
			c.metrics.RecordSessionClosed()
		}
		return nil, ErrTooManyReviews
	}
	c.reviews[r.id] = r
	c.mu.Unlock()

	c.saveReview(ctx, r, session)
	logger.Info("Review started",
		"color", color.String(),
		"moves", len(r.game.Position.Moves),
		"faults", session.Completion().Total,
	)
	return c.status(r), nil
}

// Scan analyses the game in sgf and returns color's faults without opening
// a review.
func (c *Coach) Scan(ctx context.Context, sgf string, color retro.Player) ([]retro.Fault, error) {
	r, err := c.prepare(ctx, sgf)
	if err != nil {
		return nil, err
	}
	return retro.NewScanner(c.Thresholds(), r.tree).Scan(color, r.tree.Mainline())
}

// prepare parses and analyses a game and loads the analysis into a tree.
func (c *Coach) prepare(ctx context.Context, sgf string) (*review, error) {
	game, err := katago.ParseSGF(sgf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SGF: %w", err)
	}
	tree, err := gametree.FromPosition(game.Position)
	if err != nil {
		return nil, fmt.Errorf("failed to build game tree: %w", err)
	}

	analysis, err := c.analyzer.AnalyzeGame(ctx, game.Position)
	if err != nil {
		return nil, err
	}
	if err := loadAnalysis(tree, analysis); err != nil {
		return nil, err
	}

	return &review{
		id:       uuid.NewString(),
		game:     game,
		tree:     tree,
		analysis: analysis,
	}, nil
}

// loadAnalysis attaches every turn's evaluation to the mainline and adds the
// engine's preferred move as a variation where it differs from the game.
func loadAnalysis(tree *gametree.Tree, analysis *katago.GameAnalysis) error {
	mainline := tree.Mainline()
	for _, ta := range analysis.Turns {
		if ta.Turn >= len(mainline) {
			return fmt.Errorf("analysis turn %d beyond the game's %d moves", ta.Turn, len(mainline)-1)
		}
		if err := tree.SetEval(mainline[ta.Turn].Path, ta.Eval); err != nil {
			return err
		}
	}
	for _, ta := range analysis.Turns {
		if ta.Best == nil {
			continue
		}
		best := ta.Best.Eval
		if _, err := tree.AddChild(mainline[ta.Turn].Path, ta.Best.Move, &best); err != nil {
			return fmt.Errorf("failed to add best move after turn %d: %w", ta.Turn, err)
		}
	}
	return nil
}

func (c *Coach) newSession(r *review, color retro.Player) (*retro.Session, error) {
	faults, err := retro.NewScanner(c.Thresholds(), r.tree).Scan(color, r.tree.Mainline())
	if err != nil {
		return nil, err
	}

	logger := c.logger.WithField("review_id", r.id)
	observers := retro.Observers{}
	if c.metrics != nil {
		observers = append(observers, c.metrics)
	}
	if c.store != nil {
		observers = append(observers, c.store.Recorder(r.id))
	}

	session := retro.NewSession(color, faults, r.tree, retro.Options{
		ID:        r.id,
		Gate:      c.gate,
		Evaluator: katago.NewStreamEvaluator(c.engine, r.tree.PositionAt, c.cfg, logger),
		Logger:    c.logger,
		Observer:  observers,
	})
	if c.metrics != nil {
		c.metrics.RecordSessionStarted(color, faults)
	}
	return session, nil
}

// Session returns the live session of a review.
func (c *Coach) Session(id string) (*retro.Session, error) {
	r, err := c.get(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, nil
}

// Status returns the review's current state.
func (c *Coach) Status(id string) (*Status, error) {
	r, err := c.get(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return c.status(r), nil
}

// Attempt plays move on the displayed position. Played from the current
// fault's prev it is judged as an answer; elsewhere it is browsing.
func (c *Coach) Attempt(ctx context.Context, id, move string) (*Status, error) {
	r, err := c.get(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.Closed() {
		return nil, retro.ErrSessionClosed
	}
	if _, err := r.tree.Play(r.tree.DisplayedPath(), move); err != nil {
		return nil, err
	}
	if err := r.session.HandleJump(c.evalContext(r)); err != nil {
		return nil, err
	}
	return c.status(r), nil
}

// Navigate displays the node at path.
func (c *Coach) Navigate(ctx context.Context, id string, path retro.Path) (*Status, error) {
	r, err := c.get(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.Closed() {
		return nil, retro.ErrSessionClosed
	}
	if _, ok := r.tree.Node(path); !ok {
		return nil, fmt.Errorf("%w: %q", gametree.ErrNoNode, path)
	}
	r.tree.Jump(path)
	if err := r.session.HandleJump(c.evalContext(r)); err != nil {
		return nil, err
	}
	return c.status(r), nil
}

// NavigateMainline displays the game position after ply moves.
func (c *Coach) NavigateMainline(ctx context.Context, id string, ply int) (*Status, error) {
	r, err := c.get(id)
	if err != nil {
		return nil, err
	}
	mainline := r.tree.Mainline()
	if ply < 0 || ply >= len(mainline) {
		return nil, fmt.Errorf("move %d out of range 0..%d", ply, len(mainline)-1)
	}
	return c.Navigate(ctx, id, mainline[ply].Path)
}

func (c *Coach) Skip(id string) (*Status, error) {
	return c.command(id, (*retro.Session).Skip)
}

func (c *Coach) ViewSolution(id string) (*Status, error) {
	return c.command(id, (*retro.Session).ViewSolution)
}

func (c *Coach) JumpToNext(id string) (*Status, error) {
	return c.command(id, (*retro.Session).JumpToNext)
}

func (c *Coach) Reset(id string) (*Status, error) {
	return c.command(id, (*retro.Session).Reset)
}

func (c *Coach) command(id string, fn func(*retro.Session) error) (*Status, error) {
	r, err := c.get(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := fn(r.session); err != nil {
		return nil, err
	}
	return c.status(r), nil
}

// Flip replaces the review's session with one for the other color. The
// review keeps its ID. If the other color cannot be reviewed the current
// session is left in place.
func (c *Coach) Flip(ctx context.Context, id string) (*Status, error) {
	r, err := c.get(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.session
	if old.Closed() {
		return nil, retro.ErrSessionClosed
	}
	color := old.Color().Opposite()

	session, err := c.newSession(r, color)
	if err != nil {
		return nil, fmt.Errorf("cannot review %s: %w", color, err)
	}
	if err := old.Close(); err != nil && !errors.Is(err, retro.ErrSessionClosed) {
		c.logger.Warn("Failed to close flipped session", "review_id", id, "error", err)
	}
	if c.metrics != nil {
		c.metrics.RecordSessionClosed()
	}
	r.session = session

	c.saveReview(ctx, r, session)
	c.logger.WithContext(logging.ContextWithReviewID(ctx, id)).Info("Review flipped", "color", color.String())
	return c.status(r), nil
}

// Close ends a review and forgets it.
func (c *Coach) Close(id string) error {
	c.mu.Lock()
	r, ok := c.reviews[id]
	delete(c.reviews, id)
	c.mu.Unlock()
	if !ok {
		return retro.ErrNoSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c.closeSession(r)
	return nil
}

func (c *Coach) closeSession(r *review) {
	if err := r.session.Close(); err != nil {
		return
	}
	if c.metrics != nil {
		c.metrics.RecordSessionClosed()
	}
	if c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.store.CloseReview(ctx, r.id, time.Now()); err != nil {
			c.logger.Error("Failed to record review close", "review_id", r.id, "error", err)
		}
	}
}

// HasFullComputerAnalysis reports whether every position of the review's
// game carries a settled evaluation. It is false for unknown reviews.
func (c *Coach) HasFullComputerAnalysis(id string) bool {
	r, err := c.get(id)
	if err != nil {
		return false
	}
	if !r.analysis.Complete(len(r.game.Position.Moves)) {
		return false
	}
	for _, ply := range r.tree.Mainline() {
		if ply.Eval == nil {
			return false
		}
	}
	return true
}

// IDs returns the IDs of the open reviews.
func (c *Coach) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.reviews))
	for id := range c.reviews {
		ids = append(ids, id)
	}
	return ids
}

func (c *Coach) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.reviews)
}

// Shutdown stops every evaluation and closes every review.
func (c *Coach) Shutdown(ctx context.Context) error {
	c.cancel()

	c.mu.Lock()
	reviews := c.reviews
	c.reviews = make(map[string]*review)
	c.mu.Unlock()

	for _, r := range reviews {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.mu.Lock()
		c.closeSession(r)
		r.mu.Unlock()
	}
	c.logger.Info("Coach stopped", "closed", len(reviews))
	return nil
}

func (c *Coach) get(id string) (*review, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.reviews[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", retro.ErrNoSession, id)
	}
	return r, nil
}

func (c *Coach) evalContext(r *review) context.Context {
	return logging.ContextWithReviewID(c.ctx, r.id)
}

func (c *Coach) saveReview(ctx context.Context, r *review, session *retro.Session) {
	if c.store == nil {
		return
	}
	err := c.store.SaveReview(ctx, &store.Review{
		ID:          r.id,
		Color:       session.Color(),
		BlackPlayer: r.game.Info.BlackPlayer,
		WhitePlayer: r.game.Info.WhitePlayer,
		Result:      r.game.Info.Result,
		BoardSize:   r.game.Position.BoardXSize,
		Moves:       len(r.game.Position.Moves),
		Faults:      session.Completion().Total,
	})
	if err != nil {
		c.logger.Error("Failed to save review", "review_id", r.id, "error", err)
	}
}
