package runtime

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"quorum"
)

// call is one queued turn. reply is nil for timer turns.
type call struct {
	fn    func(a Actor) error
	reply chan error
}

type instance struct {
	sys   *System
	ref   Ref
	actor Actor
	log   *zap.Logger

	mailbox chan call
	quit    chan struct{}

	mu      sync.Mutex
	closing bool
	timers  map[string]*timer

	active atomic.Int64 // unix nanos of the last executed turn
	turns  atomic.Uint64

	actErr error // activation failure, checked before every turn
}

func newInstance(sys *System, ref Ref, actor Actor, mailboxSize int) *instance {
	in := &instance{
		sys:     sys,
		ref:     ref,
		actor:   actor,
		mailbox: make(chan call, mailboxSize),
		quit:    make(chan struct{}),
		timers:  make(map[string]*timer),
	}
	in.log = sys.log.With(
		zap.String("kind", string(ref.Kind)),
		zap.String("key", ref.Key))
	in.active.Store(time.Now().UnixNano())
	return in
}

func (in *instance) lastActive() time.Time {
	return time.Unix(0, in.active.Load())
}

func (in *instance) turnCount() uint64 {
	return in.turns.Load()
}

// submit queues one turn. It reports false once deactivation has begun;
// the caller is expected to reactivate through the system.
func (in *instance) submit(c call) bool {
	in.mu.Lock()
	if in.closing {
		in.mu.Unlock()
		return false
	}
	in.mu.Unlock()

	select {
	case in.mailbox <- c:
		return true
	case <-in.quit:
		return false
	}
}

func (in *instance) stop() {
	in.mu.Lock()
	if in.closing {
		in.mu.Unlock()
		return
	}
	in.closing = true
	for _, t := range in.timers {
		t.cancel()
	}
	in.timers = nil
	in.mu.Unlock()
	close(in.quit)
}

func (in *instance) run() {
	ctx := &Context{sys: in.sys, ref: in.ref, log: in.log, inst: in}

	in.actErr = in.activate(ctx)
	if in.actErr != nil {
		in.log.Error("actor activation failed", zap.Error(in.actErr))
		in.sys.evict(in.ref, in)
		in.stop()
		in.drain()
		return
	}

	// Checking quit first keeps queued turns from executing once
	// deactivation has begun.
	for {
		select {
		case <-in.quit:
			in.shutdown(ctx)
			return
		default:
		}
		select {
		case <-in.quit:
			in.shutdown(ctx)
			return
		case c := <-in.mailbox:
			in.exec(c)
		}
	}
}

func (in *instance) shutdown(ctx *Context) {
	in.drain()
	in.actor.Deactivate(ctx)
}

// drain fails every turn still queued at deactivation instead of silently
// dropping it.
func (in *instance) drain() {
	for {
		select {
		case c := <-in.mailbox:
			if c.reply != nil {
				c.reply <- quorum.Infrastructuref(nil, "actor %s/%s deactivated", in.ref.Kind, in.ref.Key)
			}
		default:
			return
		}
	}
}

func (in *instance) activate(ctx *Context) (err error) {
	in.active.Store(time.Now().UnixNano())
	in.turns.Add(1)
	defer func() {
		if r := recover(); r != nil {
			err = quorum.Infrastructuref(nil, "activation panicked: %v", r)
		}
	}()
	return in.actor.Activate(ctx)
}

func (in *instance) exec(c call) {
	in.active.Store(time.Now().UnixNano())
	in.turns.Add(1)

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = quorum.Infrastructuref(nil, "turn panicked: %v", r)
				in.log.Error("recovered panic in actor turn", zap.Any("panic", r))
			}
		}()
		err = c.fn(in.actor)
	}()

	if c.reply != nil {
		c.reply <- err
	} else if err != nil {
		in.log.Warn("timer turn failed", zap.Error(err))
	}
}

type timer struct {
	quit chan struct{}
	once sync.Once
}

func (t *timer) cancel() {
	t.once.Do(func() { close(t.quit) })
}

// setTimer registers a periodic callback. Each tick is submitted as a turn
// through the instance mailbox, so it never runs concurrently with other
// turns, and it cannot fire once deactivation has begun.
func (in *instance) setTimer(name string, period time.Duration, fn func() error) {
	in.mu.Lock()
	if in.closing {
		in.mu.Unlock()
		return
	}
	if old, ok := in.timers[name]; ok {
		old.cancel()
	}
	t := &timer{quit: make(chan struct{})}
	in.timers[name] = t
	in.mu.Unlock()

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-t.quit:
				return
			case <-in.quit:
				return
			case <-ticker.C:
				if !in.submit(call{fn: func(Actor) error { return fn() }}) {
					return
				}
			}
		}
	}()
}

func (in *instance) cancelTimer(name string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.timers[name]; ok {
		t.cancel()
		delete(in.timers, name)
	}
}

// Context is handed to actor hooks and gives them their identity, logger
// and timer registration.
type Context struct {
	sys  *System
	ref  Ref
	log  *zap.Logger
	inst *instance
}

func (c *Context) Ref() Ref {
	return c.ref
}

func (c *Context) Logger() *zap.Logger {
	return c.log
}

func (c *Context) System() *System {
	return c.sys
}

func (c *Context) SetTimer(name string, period time.Duration, fn func() error) {
	c.inst.setTimer(name, period, fn)
}

func (c *Context) CancelTimer(name string) {
	c.inst.cancelTimer(name)
}
