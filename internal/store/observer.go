package store

import (
	"context"
	"time"

	"github.com/dmmcquay/katago-retro/internal/logging"
	"github.com/dmmcquay/katago-retro/internal/retro"
)

const writeTimeout = 2 * time.Second

// Recorder writes the verdicts and resolutions of one review. It implements
// retro.Observer; write failures are logged, never returned to the session.
type Recorder struct {
	store    *Store
	reviewID string
	logger   logging.ContextLogger
}

var _ retro.Observer = (*Recorder)(nil)

// Recorder returns an observer that files events under reviewID.
func (s *Store) Recorder(reviewID string) *Recorder {
	return &Recorder{
		store:    s,
		reviewID: reviewID,
		logger:   s.logger.WithField("review_id", reviewID),
	}
}

func (r *Recorder) OnVerdict(color retro.Player, fault retro.Fault, verdict retro.Verdict) {
	r.add(KindVerdict, verdict.String(), color, fault)
}

func (r *Recorder) OnResolved(color retro.Player, fault retro.Fault, resolution retro.Resolution) {
	r.add(KindResolution, string(resolution), color, fault)
}

func (r *Recorder) OnCommand(string, error) {}

func (r *Recorder) add(kind, value string, color retro.Player, fault retro.Fault) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := r.store.AddOutcome(ctx, &Outcome{
		ReviewID: r.reviewID,
		Kind:     kind,
		Value:    value,
		Color:    color,
		Ply:      fault.Node.Ply,
		Move:     fault.Node.Move,
		Path:     fault.Node.Path,
		Category: fault.Category,
		Loss:     fault.Loss,
	})
	if err != nil {
		r.logger.Error("Failed to record review outcome", "kind", kind, "value", value, "error", err)
	}
}
