// Package runtime hosts virtual, location-transparent actors addressed by a
// string key. All operations against one (kind, key) pair are funneled
// through a single mailbox goroutine, so actor code needs no internal
// locking. Instances activate lazily on first dispatch and are swept after
// an idle period.
package runtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"quorum"
)

type Kind string

// Ref addresses one actor instance.
type Ref struct {
	Kind Kind
	Key  string
}

// Actor is the contract each coordination unit implements. Both hooks run
// as ordinary turns of the instance they belong to.
type Actor interface {
	Activate(ctx *Context) error
	Deactivate(ctx *Context)
}

// Factory builds the zero state of an actor for a given ref.
type Factory func(ref Ref) Actor

type Options struct {
	Logger        *zap.Logger
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	MailboxSize   int
}

const (
	defaultIdleTimeout   = 10 * time.Minute
	defaultSweepInterval = time.Minute
	defaultMailboxSize   = 64
)

type System struct {
	log  *zap.Logger
	opts Options

	mu        sync.RWMutex
	factories map[Kind]Factory
	instances map[Ref]*instance
	closed    bool

	wg        sync.WaitGroup
	sweepQuit chan struct{}
}

func NewSystem(opts Options) *System {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = defaultMailboxSize
	}
	s := &System{
		log:       opts.Logger,
		opts:      opts,
		factories: make(map[Kind]Factory),
		instances: make(map[Ref]*instance),
		sweepQuit: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop()
	return s
}

func (s *System) RegisterKind(kind Kind, f Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[kind] = f
}

// Invoke runs one turn against the addressed instance and waits for its
// result. Turns of one instance execute one at a time, in submission order.
func (s *System) Invoke(ctx context.Context, ref Ref, turn func(a Actor) error) error {
	for attempt := 0; attempt < 2; attempt++ {
		in, err := s.instanceFor(ref)
		if err != nil {
			return err
		}
		reply := make(chan error, 1)
		if !in.submit(call{fn: turn, reply: reply}) {
			// Lost a race with deactivation; reactivate once.
			s.evict(ref, in)
			continue
		}
		select {
		case <-ctx.Done():
			return quorum.Infrastructuref(ctx.Err(), "turn on %s/%s abandoned", ref.Kind, ref.Key)
		case err := <-reply:
			return err
		}
	}
	return quorum.Infrastructuref(nil, "actor %s/%s is deactivating", ref.Kind, ref.Key)
}

func (s *System) instanceFor(ref Ref) (*instance, error) {
	s.mu.RLock()
	in, ok := s.instances[ref]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, quorum.Infrastructuref(nil, "actor system is shut down")
	}
	if ok {
		return in, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, quorum.Infrastructuref(nil, "actor system is shut down")
	}
	if in, ok := s.instances[ref]; ok {
		return in, nil
	}
	factory, ok := s.factories[ref.Kind]
	if !ok {
		return nil, quorum.Validationf("unknown actor kind %q", ref.Kind)
	}
	in = newInstance(s, ref, factory(ref), s.opts.MailboxSize)
	s.instances[ref] = in
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		in.run()
	}()
	return in, nil
}

func (s *System) evict(ref Ref, in *instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.instances[ref]; ok && cur == in {
		delete(s.instances, ref)
	}
}

// Deactivate retires one instance. Pending timers are cancelled before the
// deactivation hook runs; queued turns fail with an infrastructure error.
func (s *System) Deactivate(ref Ref) {
	s.mu.Lock()
	in, ok := s.instances[ref]
	if ok {
		delete(s.instances, ref)
	}
	s.mu.Unlock()
	if ok {
		in.stop()
	}
}

func (s *System) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweepQuit:
			return
		case <-ticker.C:
			s.sweepIdle()
		}
	}
}

func (s *System) sweepIdle() {
	cutoff := time.Now().Add(-s.opts.IdleTimeout)
	var idle []*instance
	s.mu.Lock()
	for ref, in := range s.instances {
		if in.lastActive().Before(cutoff) {
			delete(s.instances, ref)
			idle = append(idle, in)
		}
	}
	s.mu.Unlock()
	for _, in := range idle {
		s.log.Info("deactivating idle actor",
			zap.String("kind", string(in.ref.Kind)),
			zap.String("key", in.ref.Key))
		in.stop()
	}
}

// InstanceStat is a point-in-time view of one live instance.
type InstanceStat struct {
	Ref        Ref
	Turns      uint64
	LastActive time.Time
}

func (s *System) Stats() []InstanceStat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make([]InstanceStat, 0, len(s.instances))
	for ref, in := range s.instances {
		stats = append(stats, InstanceStat{
			Ref:        ref,
			Turns:      in.turnCount(),
			LastActive: in.lastActive(),
		})
	}
	return stats
}

// Shutdown deactivates every instance and waits for their goroutines, or
// gives up when ctx expires.
func (s *System) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	instances := make([]*instance, 0, len(s.instances))
	for ref, in := range s.instances {
		delete(s.instances, ref)
		instances = append(instances, in)
	}
	s.mu.Unlock()

	close(s.sweepQuit)
	for _, in := range instances {
		in.stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return quorum.Infrastructuref(ctx.Err(), "actor system shutdown timed out")
	case <-done:
		return nil
	}
}
