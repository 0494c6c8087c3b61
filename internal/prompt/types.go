// Package prompt serializes firewall prompt requests into a single active
// decision session at a time.
package prompt

import "time"

// Scope is the breadth of a firewall decision.
type Scope int32

const (
	ScopeNone      Scope = -1
	ScopeOnce      Scope = 0
	ScopeSession   Scope = 1
	ScopeProcess   Scope = 2
	ScopePermanent Scope = 3
	ScopeSystem    Scope = 4
)

func (s Scope) String() string {
	switch s {
	case ScopeNone:
		return "none"
	case ScopeOnce:
		return "once"
	case ScopeSession:
		return "session"
	case ScopeProcess:
		return "process"
	case ScopePermanent:
		return "permanent"
	case ScopeSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Default actions a caller may suggest.
const (
	ActionDeny  int32 = 0
	ActionAllow int32 = 1
)

// Result is the reply delivered to the caller of a prompt request.
type Result struct {
	Scope Scope  `json:"scope"`
	Rule  string `json:"rule"`
}

// Abandoned is delivered when a session closes without a decision.
var Abandoned = Result{Scope: ScopeNone}

// IsAbandoned reports whether r carries no decision.
func (r Result) IsAbandoned() bool {
	return r.Scope == ScopeNone && r.Rule == ""
}

// ReplyFunc delivers a result to the caller that issued a request.
type ReplyFunc func(Result)

// Request is one inbound call awaiting a decision.
type Request struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender,omitempty"` // D-Bus unique name of the caller
	CreatedAt time.Time `json:"created_at"`

	Application string `json:"application"`
	Icon        string `json:"icon"`
	Path        string `json:"path"`

	Address string `json:"address"`
	Port    int32  `json:"port"`
	IP      string `json:"ip"`
	Origin  string `json:"origin"`
	Proto   string `json:"proto"`

	UID     int32  `json:"uid"`
	GID     int32  `json:"gid"`
	User    string `json:"user"`
	Group   string `json:"group"`
	PID     int32  `json:"pid"`
	Sandbox string `json:"sandbox,omitempty"`

	TLSGuard  bool   `json:"tlsguard"`
	OptString string `json:"optstring,omitempty"`
	Expanded  bool   `json:"expanded"`
	Expert    bool   `json:"expert"`
	Action    int32  `json:"action"`
}

// ProcessKnown reports whether the request carries a usable process id.
func (r *Request) ProcessKnown() bool {
	return r.PID >= 0
}

// Sandboxed reports whether the requesting process runs inside a sandbox.
func (r *Request) Sandboxed() bool {
	return r.Sandbox != ""
}

// Session is one interactive decision unit built from a Request.
//
// Open attempts to seize the exclusive-ownership resource and become
// visible; it must not block and may fail transiently. Close and Destroy
// tear the session down. Outcome returns the user's decision, if any.
type Session interface {
	Open() bool
	Close() error
	Destroy() error
	Outcome() (Result, bool)
}

// SessionFactory builds sessions. The closed callback is the session's
// "closed" event: it may be called from any goroutine, any number of times.
type SessionFactory interface {
	NewSession(req *Request, closed func()) (Session, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func(req *Request, closed func()) (Session, error)

func (f SessionFactoryFunc) NewSession(req *Request, closed func()) (Session, error) {
	return f(req, closed)
}

// EventType represents the type of manager event.
type EventType int

const (
	EventQueued EventType = iota
	EventActivated
	EventResolved
	EventAbandoned
)

func (t EventType) String() string {
	switch t {
	case EventQueued:
		return "queued"
	case EventActivated:
		return "activated"
	case EventResolved:
		return "resolved"
	case EventAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Event represents a manager event for observers.
type Event struct {
	Type    EventType
	Request *Request
	Result  Result
}

// Observer receives notifications about manager events.
type Observer interface {
	OnEvent(Event)
}

// Resolution represents how a request was answered.
type Resolution string

const (
	ResolutionDecided   Resolution = "decided"
	ResolutionAbandoned Resolution = "abandoned"
	ResolutionCancelled Resolution = "cancelled"
)

// HistoryEntry represents an answered request.
type HistoryEntry struct {
	Request    *Request   `json:"request"`
	Resolution Resolution `json:"resolution"`
	Result     Result     `json:"result"`
	ResolvedAt time.Time  `json:"resolved_at"`
}

// Status is a point-in-time view of the manager.
type Status struct {
	Active *Request   `json:"active,omitempty"`
	Queued []*Request `json:"queued"`
}
