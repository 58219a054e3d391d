// Package notify tracks live client connections and fans status events out
// to them. Delivery is fire-and-forget: connections that are gone or slow
// are skipped, and nothing is queued for offline clients — they recover
// final state by polling the job store.
package notify

import (
	"log/slog"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/teris-io/shortid"
)

// Event is the real-time payload delivered to clients.
type Event struct {
	JobID   string `json:"job_id"`
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Connection is one live client stream. Events is buffered; the registry
// never blocks on it and never closes it.
type Connection struct {
	ID          string
	PrincipalID string
	ConnectedAt time.Time
	Events      chan Event
}

// Registry is the in-memory set of live connections. Concurrent
// register/unregister during fan-out iteration is safe.
type Registry struct {
	conns      *haxmap.Map[string, *Connection]
	bufferSize int
	logger     *slog.Logger
}

func NewRegistry(bufferSize int, logger *slog.Logger) *Registry {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Registry{
		conns:      haxmap.New[string, *Connection](),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Register creates a connection for the principal and adds it to the
// registry.
func (r *Registry) Register(principalID string) *Connection {
	conn := &Connection{
		ID:          shortid.MustGenerate(),
		PrincipalID: principalID,
		ConnectedAt: time.Now(),
		Events:      make(chan Event, r.bufferSize),
	}

	r.conns.Set(conn.ID, conn)

	r.logger.Debug("Connection registered",
		slog.String("connection_id", conn.ID),
		slog.String("principal_id", principalID),
	)

	return conn
}

// Unregister removes a connection. Removing an unknown id is a no-op.
func (r *Registry) Unregister(connectionID string) {
	r.conns.Del(connectionID)

	r.logger.Debug("Connection unregistered",
		slog.String("connection_id", connectionID),
	)
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return int(r.conns.Len())
}

// Notify delivers the event to every live connection of the principal.
// Returns the number of connections reached.
func (r *Registry) Notify(principalID string, event Event) int {
	delivered := 0

	r.conns.ForEach(func(_ string, conn *Connection) bool {
		if conn.PrincipalID != principalID {
			return true
		}
		if r.send(conn, event) {
			delivered++
		}
		return true
	})

	r.logger.Debug("Event notified",
		slog.String("principal_id", principalID),
		slog.String("job_id", event.JobID),
		slog.Int("delivered", delivered),
	)

	return delivered
}

// Broadcast delivers the event to every live connection regardless of
// principal. Job status events must go through Notify instead; broadcast
// exists for operational announcements only.
func (r *Registry) Broadcast(event Event) int {
	delivered := 0

	r.conns.ForEach(func(_ string, conn *Connection) bool {
		if r.send(conn, event) {
			delivered++
		}
		return true
	})

	return delivered
}

// send enqueues without blocking; a full buffer means the client is too
// slow and the event is dropped for that connection.
func (r *Registry) send(conn *Connection, event Event) bool {
	select {
	case conn.Events <- event:
		return true
	default:
		r.logger.Warn("Dropping event for slow connection",
			slog.String("connection_id", conn.ID),
			slog.String("job_id", event.JobID),
		)
		return false
	}
}
