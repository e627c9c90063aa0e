package memory

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

// ErrNotFound is returned by a DurableStore when no record exists.
var ErrNotFound = errors.New("session not found")

// DurableStore is the best-effort tier-2 contract. Tier 1 is always at least
// as fresh as tier 2.
type DurableStore interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, sessionID string) error
}

// Options tune the store; zero values fall back to the defaults below.
type Options struct {
	WindowTurns    int           // N; the message window holds 2*N entries
	IdleTTL        time.Duration // sessions idle past this are swept
	PersistWorkers int
	PersistQueue   int
}

const (
	defaultWindowTurns = 8
	defaultIdleTTL     = 6 * time.Hour
	shardCount         = 16
)

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Store is the dual-tier session memory: a sharded in-process map that is
// authoritative for the process lifetime, backed by an optional durable
// store written fire-and-forget.
type Store struct {
	shards  [shardCount]*shard
	durable DurableStore
	opts    Options
	logger  *log.Logger

	writes  chan *Session
	dropped func() // optional hook, observed by telemetry

	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// NewStore builds a session store. durable may be nil for a purely in-process
// store (tests, degraded mode).
func NewStore(durable DurableStore, opts Options, logger *log.Logger) *Store {
	if opts.WindowTurns <= 0 {
		opts.WindowTurns = defaultWindowTurns
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	if opts.PersistWorkers <= 0 {
		opts.PersistWorkers = 2
	}
	if opts.PersistQueue <= 0 {
		opts.PersistQueue = 256
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[MEMORY] ", log.LstdFlags)
	}
	st := &Store{
		durable: durable,
		opts:    opts,
		logger:  logger,
		writes:  make(chan *Session, opts.PersistQueue),
		closed:  make(chan struct{}),
	}
	for i := range st.shards {
		st.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	for i := 0; i < opts.PersistWorkers; i++ {
		st.wg.Add(1)
		go st.persistLoop()
	}
	return st
}

// MaxMessages returns the rolling window size in messages.
func (st *Store) MaxMessages() int { return 2 * st.opts.WindowTurns }

// SetDroppedHook registers a callback invoked when an async persist is
// dropped because the queue is full.
func (st *Store) SetDroppedHook(fn func()) { st.dropped = fn }

func (st *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return st.shards[h.Sum32()%shardCount]
}

// Get returns a point-in-time snapshot of the session for id, rehydrating
// once from the durable store after a cold start. Tier 2 never overwrites a
// live tier-1 entry. Callers never see the live pointer; a concurrent Update
// on the same id cannot tear a snapshot's slices.
func (st *Store) Get(ctx context.Context, id string) *Session {
	s := st.live(ctx, id)
	sh := st.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return s.clone()
}

// live returns the authoritative tier-1 entry, creating or rehydrating it as
// needed. The pointer must only be touched under its shard lock.
func (st *Store) live(ctx context.Context, id string) *Session {
	sh := st.shardFor(id)
	sh.mu.RLock()
	s, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if ok {
		return s
	}

	var restored *Session
	if st.durable != nil {
		if rec, err := st.durable.Get(ctx, id); err == nil {
			restored = rec
		} else if !errors.Is(err, ErrNotFound) {
			st.logger.Printf("session %s rehydrate failed: %v", id, err)
		}
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	// lost the race: someone populated tier 1 meanwhile, it wins
	if s, ok := sh.sessions[id]; ok {
		return s
	}
	if restored == nil {
		restored = &Session{ID: id, LastUpdatedAt: time.Now()}
	}
	sh.sessions[id] = restored
	return restored
}

// Update mutates the session under its shard lock and schedules an async
// persist. The user-visible response never waits on tier 2.
func (st *Store) Update(ctx context.Context, id string, fn func(*Session)) {
	s := st.live(ctx, id)
	sh := st.shardFor(id)
	sh.mu.Lock()
	fn(s)
	s.LastUpdatedAt = time.Now()
	snapshot := s.clone()
	sh.mu.Unlock()

	st.enqueuePersist(snapshot)
}

func (st *Store) enqueuePersist(s *Session) {
	if st.durable == nil {
		return
	}
	select {
	case st.writes <- s:
	default:
		st.logger.Printf("persist queue full, dropping write for session %s", s.ID)
		if st.dropped != nil {
			st.dropped()
		}
	}
}

func (st *Store) persistLoop() {
	defer st.wg.Done()
	for {
		select {
		case s := <-st.writes:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := st.durable.Put(ctx, s); err != nil {
				st.logger.Printf("session %s persist failed: %v", s.ID, err)
			}
			cancel()
		case <-st.closed:
			return
		}
	}
}

// Flush synchronously persists the current state of one session. Used at
// explicit consistency points such as session end.
func (st *Store) Flush(ctx context.Context, id string) error {
	if st.durable == nil {
		return nil
	}
	sh := st.shardFor(id)
	sh.mu.RLock()
	s, ok := sh.sessions[id]
	var snapshot *Session
	if ok {
		snapshot = s.clone()
	}
	sh.mu.RUnlock()
	if snapshot == nil {
		return nil
	}
	return st.durable.Put(ctx, snapshot)
}

// SweepIdle removes sessions idle past the TTL. The last-activity check and
// the delete happen under the same shard lock so a concurrent turn cannot
// lose a just-touched session.
func (st *Store) SweepIdle(ctx context.Context) int {
	cutoff := time.Now().Add(-st.opts.IdleTTL)
	removed := 0
	for _, sh := range st.shards {
		sh.mu.Lock()
		for id, s := range sh.sessions {
			if s.LastUpdatedAt.Before(cutoff) {
				delete(sh.sessions, id)
				removed++
				if st.durable != nil {
					if err := st.durable.Delete(ctx, id); err != nil {
						st.logger.Printf("session %s durable delete failed: %v", id, err)
					}
				}
			}
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		st.logger.Printf("swept %d idle sessions", removed)
	}
	return removed
}

// Len reports the number of live tier-1 sessions.
func (st *Store) Len() int {
	n := 0
	for _, sh := range st.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Close stops the persist workers. Pending queued writes are abandoned;
// callers needing durability should Flush first.
func (st *Store) Close() {
	st.once.Do(func() { close(st.closed) })
	st.wg.Wait()
}
