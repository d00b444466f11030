package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/emberhollow/emberhollow-core/internal/domain/ledger"
	"github.com/emberhollow/emberhollow-core/internal/domain/shared"
	"github.com/emberhollow/emberhollow-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// Caps is the per-window acceptance limit for one (kind, source) pair. A
// zero cap means unlimited for that window.
type Caps struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// forWindow returns the cap applying to the given horizon.
func (c Caps) forWindow(w timeutil.Window) int {
	switch w {
	case timeutil.WindowMinute:
		return c.PerMinute
	case timeutil.WindowHour:
		return c.PerHour
	case timeutil.WindowDay:
		return c.PerDay
	default:
		return 0
	}
}

// LimitKey addresses a cap override.
type LimitKey struct {
	Kind   ledger.Kind
	Source string
}

// LimitError reports a rejected gain with the bound that tripped. The
// tightest violated bound wins: a burst that violates both the minute and
// the hour cap is reported against the minute cap.
type LimitError struct {
	Kind     ledger.Kind
	Source   string
	Window   timeutil.Window
	Cap      int
	Observed int
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited: %s/%s exceeded %d per %s (observed %d)",
		e.Kind, e.Source, e.Cap, e.Window, e.Observed)
}

// Is matches the shared RateLimited sentinel.
func (e *LimitError) Is(target error) bool {
	return target == shared.ErrRateLimited
}

// Limiter enforces per-(kind, source) acceptance caps over sliding minute,
// hour and day windows. It is read-only over the ledger: counting accepted
// events in each window is the entire mechanism, so restarts lose nothing
// and no counter can drift from the log.
type Limiter struct {
	ledger    ledger.Repository
	defaults  map[ledger.Kind]Caps
	overrides map[LimitKey]Caps
}

// NewLimiter creates a limiter with per-kind default caps.
func NewLimiter(repo ledger.Repository, defaults map[ledger.Kind]Caps) *Limiter {
	if defaults == nil {
		defaults = make(map[ledger.Kind]Caps)
	}
	return &Limiter{
		ledger:    repo,
		defaults:  defaults,
		overrides: make(map[LimitKey]Caps),
	}
}

// Override sets caps for one exact (kind, source) pair, taking precedence
// over the kind-level default.
func (l *Limiter) Override(kind ledger.Kind, source string, caps Caps) {
	l.overrides[LimitKey{Kind: kind, Source: source}] = caps
}

// capsFor resolves the caps applying to a pair: exact override first, then
// the kind-level default, then unlimited.
func (l *Limiter) capsFor(kind ledger.Kind, source string) Caps {
	if caps, ok := l.overrides[LimitKey{Kind: kind, Source: source}]; ok {
		return caps
	}
	return l.defaults[kind]
}

// Allow checks whether accepting one more event of the given kind and
// source would exceed any configured window cap. Windows are checked
// tightest first; the first violated bound is reported. A nil return means
// the gain may be appended.
func (l *Limiter) Allow(ctx context.Context, playerID string, kind ledger.Kind, source string, now time.Time) error {
	caps := l.capsFor(kind, source)
	now = now.UTC()

	for _, w := range timeutil.Windows() {
		cap := caps.forWindow(w)
		if cap <= 0 {
			continue
		}

		count, err := l.ledger.CountInWindow(ctx, playerID, kind, source,
			timeutil.WindowStart(now, w), now)
		if err != nil {
			return err
		}
		if count >= cap {
			return &LimitError{
				Kind:     kind,
				Source:   source,
				Window:   w,
				Cap:      cap,
				Observed: count,
			}
		}
	}
	return nil
}
