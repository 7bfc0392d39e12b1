// Package advice delivers user-facing advisories raised when work cannot
// start.
package advice

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/eventbus"
	"github.com/bft-labs/mmsgate/internal/ports"
)

// DefaultQuietPeriod is the minimum gap between two identical advisories.
const DefaultQuietPeriod = 30 * time.Second

// Notice is the payload of an advisory event.
type Notice struct {
	Kind   domain.Kind     `json:"kind"`
	Advice domain.Advisory `json:"advice"`
	Text   string          `json:"text"`
}

// Advisor implements ports.Advisor. It logs and publishes each advisory,
// suppressing repeats of the same advisory inside the quiet period.
type Advisor struct {
	bus    eventbus.Bus
	logger ports.Logger
	clock  clock.Clock
	quiet  time.Duration

	mu         sync.Mutex
	limiters   map[domain.Advisory]*rate.Limiter
	suppressed int
}

// New creates an advisor. bus may be nil.
func New(bus eventbus.Bus, logger ports.Logger, clk clock.Clock, quiet time.Duration) *Advisor {
	if clk == nil {
		clk = clock.New()
	}
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Advisor{
		bus:      bus,
		logger:   logger,
		clock:    clk,
		quiet:    quiet,
		limiters: make(map[domain.Advisory]*rate.Limiter),
	}
}

func (a *Advisor) Advise(kind domain.Kind, advice domain.Advisory) {
	if advice == domain.AdviceNone {
		return
	}
	now := a.clock.Now()

	a.mu.Lock()
	lim, ok := a.limiters[advice]
	if !ok {
		lim = rate.NewLimiter(rate.Every(a.quiet), 1)
		a.limiters[advice] = lim
	}
	allowed := lim.AllowN(now, 1)
	if !allowed {
		a.suppressed++
	}
	a.mu.Unlock()

	if !allowed {
		a.logger.Debug("advisory suppressed", ports.String("kind", kind.String()))
		return
	}

	a.logger.Info(advice.String(), ports.String("kind", kind.String()))
	if a.bus != nil {
		a.bus.Publish(eventbus.Event{
			Type: eventbus.TypeAdvisory,
			Time: now,
			Data: Notice{Kind: kind, Advice: advice, Text: advice.String()},
		})
	}
}

// Suppressed returns how many advisories were dropped as repeats.
func (a *Advisor) Suppressed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.suppressed
}
