package prompt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrShutdown is returned when the manager no longer accepts work.
var ErrShutdown = errors.New("prompt manager is shut down")

const (
	DefaultRetryInterval = 20 * time.Millisecond
	DefaultMaxAttempts   = 200
	DefaultHistoryLimit  = 100
)

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	// RetryInterval is the delay between attempts to open a session.
	RetryInterval time.Duration
	// MaxAttempts bounds how many times a session may fail to open before
	// it is abandoned.
	MaxAttempts  int
	HistoryLimit int
}

func (o Options) withDefaults() Options {
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	return o
}

// ticket pairs a request with the reply channel of its caller.
type ticket struct {
	req   *Request
	reply ReplyFunc
	once  sync.Once
}

// deliver fires the reply at most once and reports whether this call did.
func (t *ticket) deliver(r Result) bool {
	delivered := false
	t.once.Do(func() {
		delivered = true
		if t.reply != nil {
			t.reply(r)
		}
	})
	return delivered
}

// slot is the session currently holding the single active position.
type slot struct {
	ticket  *ticket
	session Session
	retry   *retryState // nil once the session opened or was abandoned
	open    bool
}

// Manager owns the FIFO queue of pending requests and the single active
// session. All queue and slot state is touched only by the goroutine
// running Run; every public method posts work to it and returns.
type Manager struct {
	factory SessionFactory
	opts    Options

	// Loop-owned.
	queue    deque.Deque[*ticket]
	current  *slot
	retryLog rate.Sometimes

	inboxMu      sync.Mutex
	inbox        []func()
	stopping     bool
	wake         chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once

	statusMu sync.RWMutex
	status   Status

	observersMu sync.RWMutex
	observers   map[Observer]struct{}

	historyMu sync.RWMutex
	history   []HistoryEntry
}

// NewManager creates a manager that builds sessions with factory.
// Run must be started for any request to make progress.
func NewManager(factory SessionFactory, opts Options) *Manager {
	return &Manager{
		factory:   factory,
		opts:      opts.withDefaults(),
		retryLog:  rate.Sometimes{Interval: time.Second},
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		status:    Status{Queued: []*Request{}},
		observers: make(map[Observer]struct{}),
	}
}

// Run processes manager events until Shutdown is called or ctx is done,
// in which case it shuts down, answers every outstanding request and
// returns.
func (m *Manager) Run(ctx context.Context) error {
	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			m.Shutdown()
		case <-m.wake:
		}

		batch, last := m.drain()
		for _, fn := range batch {
			fn()
		}
		m.publish()

		if last {
			close(m.done)
			slog.Debug("prompt manager stopped")
			return nil
		}
	}
}

// Done is closed after Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) post(fn func()) bool {
	m.inboxMu.Lock()
	if m.stopping {
		m.inboxMu.Unlock()
		return false
	}
	m.inbox = append(m.inbox, fn)
	m.inboxMu.Unlock()
	m.signal()
	return true
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) drain() (batch []func(), last bool) {
	m.inboxMu.Lock()
	defer m.inboxMu.Unlock()
	batch = m.inbox
	m.inbox = nil
	return batch, m.stopping
}

// Enqueue appends req to the queue and activates it if nothing else is
// active. reply is called exactly once with the decision or Abandoned.
// It returns the request ID, assigning one if req has none.
func (m *Manager) Enqueue(req *Request, reply ReplyFunc) string {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	t := &ticket{req: req, reply: reply}
	if !m.post(func() { m.enqueue(t) }) {
		slog.Warn("prompt requested after shutdown", "request_id", req.ID, "application", req.Application)
		t.deliver(Abandoned)
	}
	return req.ID
}

func (m *Manager) enqueue(t *ticket) {
	m.queue.PushBack(t)
	slog.Info("prompt queued",
		"request_id", t.req.ID,
		"application", t.req.Application,
		"address", t.req.Address,
		"port", t.req.Port,
		"queued", m.queue.Len())
	m.notify(Event{Type: EventQueued, Request: t.req})

	if m.current == nil {
		m.activateNext()
	}
}

// activateNext builds a session from the head of the queue. It does
// nothing while a session is active or when the queue is empty.
func (m *Manager) activateNext() {
	for m.current == nil && m.queue.Len() > 0 {
		t := m.queue.PopFront()
		s := &slot{ticket: t}
		session, err := m.factory.NewSession(t.req, func() {
			m.post(func() { m.onSessionClosed(s) })
		})
		if err != nil {
			slog.Error("failed to create prompt session", "request_id", t.req.ID, "error", err)
			m.resolve(t, Abandoned, ResolutionAbandoned)
			continue
		}
		s.session = session
		m.current = s

		slog.Debug("prompt session created", "request_id", t.req.ID, "remaining", m.queue.Len())
		m.notify(Event{Type: EventActivated, Request: t.req})
		m.startAcquire(s)
	}
}

// onSessionClosed handles the "closed" event of s.
func (m *Manager) onSessionClosed(s *slot) {
	if m.current != s {
		slog.Debug("ignoring close of inactive prompt session", "request_id", s.ticket.req.ID)
		return
	}
	m.finish(s, ResolutionAbandoned)
	if m.queue.Len() > 0 {
		slog.Info("opening next prompt", "remaining", m.queue.Len())
	}
	m.activateNext()
}

// finish tears down the active session and answers its caller. Requests
// without a decision are recorded with the given resolution.
func (m *Manager) finish(s *slot, undecided Resolution) {
	m.stopAcquire(s)
	m.current = nil

	result, decided := s.session.Outcome()
	teardown(s)

	if decided {
		m.resolve(s.ticket, result, ResolutionDecided)
	} else {
		m.resolve(s.ticket, Abandoned, undecided)
	}
}

func teardown(s *slot) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("prompt session panicked during teardown", "request_id", s.ticket.req.ID, "panic", r)
		}
	}()
	if err := s.session.Close(); err != nil {
		slog.Error("unable to close prompt session", "request_id", s.ticket.req.ID, "error", err)
	}
	if err := s.session.Destroy(); err != nil {
		slog.Error("unable to destroy prompt session", "request_id", s.ticket.req.ID, "error", err)
	}
}

func (m *Manager) resolve(t *ticket, result Result, how Resolution) {
	if !t.deliver(result) {
		return
	}

	typ := EventResolved
	if result.IsAbandoned() {
		typ = EventAbandoned
	}
	slog.Info("prompt answered",
		"request_id", t.req.ID,
		"resolution", how,
		"scope", result.Scope,
		"rule", result.Rule)

	m.notify(Event{Type: typ, Request: t.req, Result: result})
	m.addHistory(HistoryEntry{
		Request:    t.req,
		Resolution: how,
		Result:     result,
		ResolvedAt: time.Now(),
	})
}

// CloseAll force-closes the active session and abandons every queued
// request.
func (m *Manager) CloseAll() {
	m.post(m.closeAll)
}

func (m *Manager) closeAll() {
	slog.Info("closing all prompts", "active", m.current != nil, "queued", m.queue.Len())

	detached := make([]*ticket, 0, m.queue.Len())
	for m.queue.Len() > 0 {
		detached = append(detached, m.queue.PopFront())
	}
	if s := m.current; s != nil {
		m.finish(s, ResolutionAbandoned)
	}
	for _, t := range detached {
		m.resolve(t, Abandoned, ResolutionAbandoned)
	}
}

// Cancel abandons the request with the given ID, whether queued or active.
// Unknown IDs are ignored.
func (m *Manager) Cancel(id string) {
	m.post(func() { m.cancel(id) })
}

func (m *Manager) cancel(id string) {
	if s := m.current; s != nil && s.ticket.req.ID == id {
		m.finish(s, ResolutionCancelled)
		m.activateNext()
		return
	}

	i := m.queue.Index(func(t *ticket) bool { return t.req.ID == id })
	if i < 0 {
		return
	}
	t := m.queue.Remove(i)
	m.resolve(t, Abandoned, ResolutionCancelled)
}

// Do runs fn on the manager goroutine with the visible session, or nil
// when no session is visible. It reports false after shutdown.
func (m *Manager) Do(fn func(Session)) bool {
	return m.post(func() {
		var session Session
		if s := m.current; s != nil && s.open {
			session = s.session
		}
		fn(session)
	})
}

// Shutdown closes all prompts, cancels any pending retry and stops Run.
// It is safe to call more than once.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.inboxMu.Lock()
		m.inbox = append(m.inbox, m.closeAll)
		m.stopping = true
		m.inboxMu.Unlock()
		m.signal()
	})
}

func (m *Manager) publish() {
	st := Status{Queued: make([]*Request, 0, m.queue.Len())}
	if m.current != nil {
		st.Active = m.current.ticket.req
	}
	for i := 0; i < m.queue.Len(); i++ {
		st.Queued = append(st.Queued, m.queue.At(i).req)
	}

	m.statusMu.Lock()
	m.status = st
	m.statusMu.Unlock()
}

// Status returns the state published after the last processed batch.
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return Status{
		Active: m.status.Active,
		Queued: append([]*Request{}, m.status.Queued...),
	}
}

// Subscribe registers an observer to receive manager events.
func (m *Manager) Subscribe(o Observer) {
	m.observersMu.Lock()
	defer m.observersMu.Unlock()
	m.observers[o] = struct{}{}
}

// Unsubscribe removes an observer.
func (m *Manager) Unsubscribe(o Observer) {
	m.observersMu.Lock()
	defer m.observersMu.Unlock()
	delete(m.observers, o)
}

// notify sends an event to all observers asynchronously.
func (m *Manager) notify(event Event) {
	m.observersMu.RLock()
	defer m.observersMu.RUnlock()
	for o := range m.observers {
		go o.OnEvent(event)
	}
}

func (m *Manager) addHistory(entry HistoryEntry) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()

	// Newest first
	m.history = append([]HistoryEntry{entry}, m.history...)
	if len(m.history) > m.opts.HistoryLimit {
		m.history = m.history[:m.opts.HistoryLimit]
	}
}

// History returns a copy of the answered requests, newest first.
func (m *Manager) History() []HistoryEntry {
	m.historyMu.RLock()
	defer m.historyMu.RUnlock()
	return append([]HistoryEntry{}, m.history...)
}
