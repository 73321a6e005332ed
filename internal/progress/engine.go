package progress

import (
	"sync"
	"time"

	"minuto/pkg/logger"
)

// DefaultMonthlyLimit is the free-tier chat quota.
const DefaultMonthlyLimit = 5

const announceTimeout = 10 * time.Second

type Options struct {
	MonthlyLimit int
	// Notifier, when set, is told about every new longest streak.
	Notifier Notifier
}

// Engine owns the streak counters, the ritual lifecycle and the chat quota.
type Engine struct {
	store        Store
	subs         SubscriptionChecker
	clock        Clock
	monthlyLimit int
	notifier     Notifier
	pending      sync.WaitGroup
	logger       *logger.Logger
}

func NewEngine(store Store, subs SubscriptionChecker, clock Clock, opts Options, l *logger.Logger) *Engine {
	if opts.MonthlyLimit <= 0 {
		opts.MonthlyLimit = DefaultMonthlyLimit
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Engine{
		store:        store,
		subs:         subs,
		clock:        clock,
		monthlyLimit: opts.MonthlyLimit,
		notifier:     opts.Notifier,
		logger:       l.Named("progress"),
	}
}

// Today is the current calendar day according to the engine clock.
func (e *Engine) Today() time.Time {
	return CalendarDay(e.clock.Now())
}

// MonthlyLimit returns the configured free-tier quota.
func (e *Engine) MonthlyLimit() int {
	return e.monthlyLimit
}

// Wait blocks until every record announcement started so far has finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}
