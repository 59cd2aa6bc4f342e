package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Service answers "may this user consume one more feedback this month?" and
// records consumption against the backing document store.
//
// The default TryConsume/Persist pair reproduces the plain
// read-modify-overwrite cycle of the original deployment: concurrent requests
// for the same user can both observe used=k and both write used=k+1. Consume
// is the hardened variant that serializes the full cycle per user inside this
// process.
type Service struct {
	store Store
	limit int
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock used for month keys.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMonthlyLimit overrides the per-month limit for lazily created records.
func WithMonthlyLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// NewService creates a quota service backed by the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		limit: DefaultMonthlyLimit,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetUsage returns the current month's record for userID without mutating
// storage. A storage read failure is treated as "no recorded usage": the
// caller always gets a usable record, never an error.
func (s *Service) GetUsage(ctx context.Context, userID string) Record {
	user := NormalizeUser(userID)
	month := MonthKey(s.now())

	ledger := s.load(ctx)
	if months, ok := ledger[user]; ok {
		if rec, ok := months[month]; ok {
			if rec.Limit <= 0 {
				rec.Limit = s.limit
			}
			return rec
		}
	}
	return Record{Used: 0, Limit: s.limit}
}

// TryConsume loads the full ledger, resolves or creates the (user, month)
// record and, if under the limit, increments it in memory. The returned
// ledger is only durable once the caller hands it to Persist; callers decide
// when (and whether) that happens, so a failed downstream request never
// charges the user.
func (s *Service) TryConsume(ctx context.Context, userID string) (Ledger, Record, bool) {
	user := NormalizeUser(userID)
	month := MonthKey(s.now())

	ledger := s.load(ctx)
	rec := ledger.resolve(user, month, s.limit)
	if rec.Used >= rec.Limit {
		return ledger, rec, false
	}

	rec.Used++
	ledger[user][month] = rec
	return ledger, rec, true
}

// Persist overwrites the remote document with the given ledger
// unconditionally. Last writer wins.
func (s *Service) Persist(ctx context.Context, l Ledger) error {
	return s.store.Save(ctx, l)
}

// Consume performs the whole admit-increment-persist cycle under a per-user
// in-process lock, closing the lost-update window for requests handled by
// this process. The write error is returned so callers can log it; the
// admission decision stands regardless.
func (s *Service) Consume(ctx context.Context, userID string) (Record, bool, error) {
	user := NormalizeUser(userID)
	lock := s.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	ledger, rec, allowed := s.TryConsume(ctx, userID)
	if !allowed {
		return rec, false, nil
	}
	if err := s.store.Save(ctx, ledger); err != nil {
		return rec, true, err
	}
	return rec, true, nil
}

func (s *Service) load(ctx context.Context) Ledger {
	ledger, err := s.store.Load(ctx)
	if err != nil {
		slog.Warn("usage ledger unavailable, starting from empty", "error", err)
		return make(Ledger)
	}
	if ledger == nil {
		ledger = make(Ledger)
	}
	return ledger
}

func (s *Service) userLock(user string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[user]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[user] = lock
	}
	return lock
}
