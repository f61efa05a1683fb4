// Package broadcast implements the leader's broadcast server: it accepts
// follower connections, fans out every newly sealed StateChange, and
// serves SyncRequest/SlotVerified/FraudChallenge/Heartbeat traffic.
//
// Runs an accept loop over github.com/gorilla/websocket, with a
// per-connection forwarding task and internal/wire's tagged frame bodies
// carried as binary message payloads.
package broadcast

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nodeforge/l2chain/internal/accounts"
	"github.com/nodeforge/l2chain/internal/statechange"
	"github.com/nodeforge/l2chain/internal/wire"
)

// DefaultSessionBuffer bounds a follower session's outbound frame queue
// before it is considered Lagged.
const DefaultSessionBuffer = 256

// DefaultHeartbeatEvery is a heartbeat cadence in slot periods. The server
// does not track idleness: RunHeartbeatLoop emits a Heartbeat once per
// period whether or not StateChanges were published in it.
const DefaultHeartbeatEvery = 30

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type session struct {
	id   string
	conn *websocket.Conn
	out  chan []byte

	mu     sync.Mutex
	lagged uint64

	closeOnce sync.Once
	done      chan struct{}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Server is the leader-side broadcast fanout. It holds no reference back
// into the tick executor, avoiding an ownership cycle — the executor only
// calls Publish.
type Server struct {
	chainLog   *statechange.Log
	bufferSize int

	mu       sync.RWMutex
	sessions map[string]*session

	Logger log.Logger

	// OnLagged, if set, is called whenever a session's outbound buffer was
	// full and a frame had to be dropped. Intended for a metrics counter;
	// never called concurrently with itself being torn down.
	OnLagged func(sessionID string)
}

// New returns a Server that serves SyncRequest replay from chainLog.
func New(chainLog *statechange.Log, bufferSize int) *Server {
	if bufferSize <= 0 {
		bufferSize = DefaultSessionBuffer
	}
	return &Server{
		chainLog:   chainLog,
		bufferSize: bufferSize,
		sessions:   make(map[string]*session),
		Logger:     log.New("component", "broadcast"),
	}
}

// ServeHTTP upgrades the connection to a websocket and runs the session
// until the follower disconnects.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.Logger.Warn("broadcast: upgrade failed", "err", err)
		return
	}
	sess := &session{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan []byte, srv.bufferSize),
		done: make(chan struct{}),
	}

	srv.mu.Lock()
	srv.sessions[sess.id] = sess
	srv.mu.Unlock()
	srv.Logger.Info("broadcast: follower connected", "session", sess.id)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.writePump(sess)
	}()

	srv.readPump(sess)

	sess.close()
	wg.Wait()

	srv.mu.Lock()
	delete(srv.sessions, sess.id)
	srv.mu.Unlock()
	srv.Logger.Info("broadcast: follower disconnected", "session", sess.id)
}

func (srv *Server) writePump(sess *session) {
	for {
		select {
		case <-sess.done:
			return
		case frame, ok := <-sess.out:
			if !ok {
				return
			}
			if err := sess.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}
	}
}

func (srv *Server) readPump(sess *session) {
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		if len(data) == 0 {
			continue
		}
		tag := wire.Tag(data[0])
		body := data[1:]
		srv.handleInbound(sess, tag, body)
	}
}

func (srv *Server) handleInbound(sess *session, tag wire.Tag, body []byte) {
	switch tag {
	case wire.TagSlotVerified:
		v, err := wire.DecodeSlotVerified(body)
		if err != nil {
			return
		}
		srv.Logger.Debug("broadcast: slot verified", "session", sess.id, "slot", v.Slot)

	case wire.TagFraudChallenge:
		c, err := wire.DecodeFraudChallenge(body)
		if err != nil {
			return
		}
		// Reaction policy (halt, demote) is deployment-defined and out of
		// core scope; the leader only logs.
		srv.Logger.Error("broadcast: fraud challenge received", "session", sess.id, "slot", c.Slot, "reason", c.Reason)

	case wire.TagSyncRequest:
		req, err := wire.DecodeSyncRequest(body)
		if err != nil {
			return
		}
		srv.serveSyncRequest(sess, req.FromSlot)

	case wire.TagHeartbeat:
		// No response needed; presence of any traffic is enough to
		// distinguish the follower from dead.
	}
}

func (srv *Server) serveSyncRequest(sess *session, fromSlot accounts.Slot) {
	changes := srv.chainLog.Range(fromSlot, accounts.Slot(math.MaxUint64))
	frame := wire.EncodeFrame(wire.TagSyncResponse, wire.EncodeSyncResponse(wire.SyncResponse{Changes: changes}))
	srv.sendTo(sess, frame)
}

// sendTo enqueues frame on sess.out without blocking. A full buffer marks
// the session Lagged; the frame is dropped and the follower is expected to
// notice the slot discontinuity and issue a SyncRequest of its own —
// delivery to a slow follower is at-most-once, never blocking.
func (srv *Server) sendTo(sess *session, frame []byte) {
	select {
	case sess.out <- frame:
	default:
		sess.mu.Lock()
		sess.lagged++
		n := sess.lagged
		sess.mu.Unlock()
		srv.Logger.Warn("broadcast: session lagged, dropping frame", "session", sess.id, "dropped", n)
		if srv.OnLagged != nil {
			srv.OnLagged(sess.id)
		}
	}
}

// Publish fans out a sealed, non-empty StateChange to every connected
// follower — callers must never Publish an unsealed or empty-write
// StateChange.
func (srv *Server) Publish(sc *statechange.StateChange) {
	frame := wire.EncodeFrame(wire.TagStateChange, wire.EncodeStateChange(sc))
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	for _, sess := range srv.sessions {
		srv.sendTo(sess, frame)
	}
}

// Heartbeat fans out a Heartbeat frame to every connected follower.
// RunHeartbeatLoop calls it once per period, idle chain or not.
func (srv *Server) Heartbeat(slot accounts.Slot) {
	frame := wire.EncodeFrame(wire.TagHeartbeat, wire.EncodeHeartbeat(wire.Heartbeat{Slot: slot}))
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	for _, sess := range srv.sessions {
		srv.sendTo(sess, frame)
	}
}

// ConnectedFollowers returns the number of currently connected sessions.
func (srv *Server) ConnectedFollowers() int {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return len(srv.sessions)
}

// RunHeartbeatLoop emits a Heartbeat every period until done is closed,
// using currentSlot to stamp each one. Intended to be run on its own
// goroutine by the caller (cmd/l2node), separate from the tick executor:
// network I/O never mutates the account store directly.
func (srv *Server) RunHeartbeatLoop(done <-chan struct{}, period time.Duration, currentSlot func() accounts.Slot) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			srv.Heartbeat(currentSlot())
		}
	}
}
