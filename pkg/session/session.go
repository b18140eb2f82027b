// Package session implements the per-connection state machine (C8): first-
// message ticket authentication, then VAD-driven audio streaming that feeds
// the ring-buffer preroll, the utterance cache, the Archiver, and the ASR
// Dispatcher. Besides one short-lived goroutine per ASR submission, a Session
// runs the worker that runs Run, the outbound writer, a watcher that closes
// the connection when Run's context is cancelled, and (once authenticated)
// the Archiver's own internal ticker loop.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"asrgateway/pkg/archive"
	"asrgateway/pkg/asr"
	"asrgateway/pkg/objectstore"
	"asrgateway/pkg/ringbuffer"
	"asrgateway/pkg/ticket"
)

const (
	frameCadenceMs       = 128
	prerollCapacityBytes = 8192 // 256ms of 16kHz/16-bit mono PCM
	authDeadline         = 5 * time.Second
)

type phase int

const (
	phaseAwaitAuth phase = iota
	phaseStreaming
)

// Deps are the process-wide collaborators a Session is constructed with.
type Deps struct {
	Tickets       ticket.Store
	ObjectStore   objectstore.Client
	ASRConfig     asr.Config
	ArchiveConfig archive.Config
	Now           func() time.Time
}

// Session is the per-connection aggregate. All mutable fields below
// connection-level are touched only by the Run goroutine, except those
// explicitly guarded by stateMu or atomics (the auth handshake races against its
// own deadline timer).
type Session struct {
	id   string
	conn Conn
	deps Deps
	now  func() time.Time

	phase   phase
	subject string

	authResolved atomic.Bool
	authTimer    *time.Timer

	// stateMu guards the fields tests inspect concurrently via the
	// *Snapshot accessors below. The session worker is still their single
	// logical owner; the mutex only protects against the test goroutine's
	// reads racing the worker's writes.
	stateMu              sync.Mutex
	frameCount           int
	globalTimeMs         int
	caching              bool
	utteranceCache       [][]byte
	preroll              *ringbuffer.Buffer
	speechStartMs        int
	suppressNextPrefetch bool

	archiver   *archive.Archiver
	dispatcher *asr.Dispatcher

	outbound  chan any
	done      chan struct{}
	closeOnce sync.Once

	connectedAt time.Time
}

// New constructs a Session around conn. The session is not started until
// Run is called.
func New(conn Conn, deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Session{
		id:       uuid.NewString(),
		conn:     conn,
		deps:     deps,
		now:      deps.Now,
		phase:    phaseAwaitAuth,
		preroll:  ringbuffer.New(prerollCapacityBytes),
		outbound: make(chan any, 32),
		done:     make(chan struct{}),
	}
	s.dispatcher = asr.NewDispatcher(deps.ASRConfig, s)
	return s
}

// Emit satisfies asr.Sink: it hands a frame produced by the ASR dispatcher
// to this session's single writer.
func (s *Session) Emit(frame any) {
	select {
	case s.outbound <- frame:
	case <-s.done:
	}
}

// Run drives the session until the connection closes or ctx is cancelled.
// It blocks until the session ends.
func (s *Session) Run(ctx context.Context) {
	s.connectedAt = s.now()
	defer s.cleanup()

	go s.writeLoop()

	s.authTimer = time.AfterFunc(authDeadline, s.onAuthTimeout)

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			s.closeConn()
		case <-stopWatch:
		}
	}()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.BinaryMessage {
			s.handleBinaryFrame()
			continue
		}
		s.handleTextFrame(data)
	}
}

func (s *Session) handleTextFrame(data []byte) {
	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		s.Emit(parseErrorFrame{
			Error:        "Failed to parse message as JSON",
			ParseError:   err.Error(),
			ReceivedData: truncate(string(data), 100),
			Timestamp:    nowISO(),
		})
		return
	}

	switch s.phase {
	case phaseAwaitAuth:
		s.handleAwaitAuth(env, data)
	case phaseStreaming:
		s.handleStreaming(env, data)
	}
}

func (s *Session) handleBinaryFrame() {
	if s.phase == phaseAwaitAuth {
		if !s.authResolved.CompareAndSwap(false, true) {
			return
		}
		s.authTimer.Stop()
		s.Emit(authErrorFrame{Type: "auth_error", Error: "Must authenticate first with auth message", Timestamp: nowISO()})
		s.closeWithCode(websocket.ClosePolicyViolation, "Authentication required")
		return
	}
	s.Emit(protocolErrorFrame{Error: "Binary frames are not supported", Timestamp: nowISO()})
}

func (s *Session) onAuthTimeout() {
	if !s.authResolved.CompareAndSwap(false, true) {
		return
	}
	s.Emit(authErrorFrame{Type: "auth_error", Error: "Authentication timeout - connection closed", Timestamp: nowISO()})
	s.closeWithCode(websocket.ClosePolicyViolation, "Authentication timeout")
}

func (s *Session) writeLoop() {
	for {
		select {
		case frame := <-s.outbound:
			data, err := sonic.Marshal(frame)
			if err != nil {
				log.Printf("session[%s]: marshal outbound frame: %v", s.id[:8], err)
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// closeWithCode sends a best-effort close control frame and tears down the
// connection. Delivery of the preceding auth_error frame is not guaranteed
// over TCP; this matches the spec's accepted race.
func (s *Session) closeWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, s.now().Add(time.Second))
	s.closeConn()
}

func (s *Session) closeConn() {
	_ = s.conn.Close()
}

func (s *Session) cleanup() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	if s.authTimer != nil {
		s.authTimer.Stop()
	}
	if s.archiver != nil {
		s.archiver.Shutdown()
	}
	log.Printf("session[%s]: closed after %s, %d frames", s.id[:8], s.now().Sub(s.connectedAt), s.frameCount)
}

func (s *Session) globalTimeMsSnapshot() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.globalTimeMs
}

func (s *Session) frameCountSnapshot() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.frameCount
}

func (s *Session) cachingSnapshot() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.caching
}

func (s *Session) speechStartMsSnapshot() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.speechStartMs
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("session: decode audio payload: %w", err)
	}
	return b, nil
}
