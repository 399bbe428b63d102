package progress

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/relaychat/conductor/logger"
)

// WSRelay is an optional egress transport that pushes each rendered display
// string over a websocket connection as it is produced. It is NOT part of
// the core Progress Channel contract (spec.md §4.6 has no wire protocol of
// its own, per §6); it exists so an out-of-scope Ingress adapter has a
// ready-made way to stream the display string to a browser-based operator
// console without re-deriving one.
type WSRelay struct {
	conn *websocket.Conn
}

// NewWSRelay wraps an already-established websocket connection.
func NewWSRelay(conn *websocket.Conn) *WSRelay {
	return &WSRelay{conn: conn}
}

// Run forwards display snapshots from ch until the channel closes or ctx is
// canceled. Write failures are logged and stop the relay; they never
// propagate back into the engine.
func (r *WSRelay) Run(ctx context.Context, ch <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case display, ok := <-ch:
			if !ok {
				return
			}
			if err := r.conn.WriteMessage(websocket.TextMessage, []byte(display)); err != nil {
				logger.DefaultLogger.Warn("progress: websocket relay write failed, stopping", "error", err)
				return
			}
		}
	}
}
