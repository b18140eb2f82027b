package session

import (
	"context"
	"log"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"asrgateway/pkg/archive"
)

func (s *Session) handleAwaitAuth(env envelope, raw []byte) {
	if env.Type != "auth" {
		if !s.authResolved.CompareAndSwap(false, true) {
			return
		}
		s.authTimer.Stop()
		s.Emit(authErrorFrame{Type: "auth_error", Error: "Must authenticate first with auth message", Timestamp: nowISO()})
		s.closeWithCode(websocket.ClosePolicyViolation, "Authentication required")
		return
	}

	var msg authMessage
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		s.Emit(parseErrorFrame{
			Error:        "Failed to parse message as JSON",
			ParseError:   err.Error(),
			ReceivedData: truncate(string(raw), 100),
			Timestamp:    nowISO(),
		})
		return
	}

	if msg.Ticket == "" {
		if !s.authResolved.CompareAndSwap(false, true) {
			return
		}
		s.authTimer.Stop()
		s.Emit(authErrorFrame{Type: "auth_error", Error: "Missing ticket in authentication message", Timestamp: nowISO()})
		s.closeWithCode(websocket.ClosePolicyViolation, "Invalid authentication")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	subject, err := s.deps.Tickets.Consume(ctx, msg.Ticket)
	cancel()
	if err != nil {
		if !s.authResolved.CompareAndSwap(false, true) {
			return
		}
		s.authTimer.Stop()
		s.Emit(authErrorFrame{Type: "auth_error", Error: "Invalid or expired ticket", Timestamp: nowISO()})
		s.closeWithCode(websocket.ClosePolicyViolation, "Authentication failed")
		return
	}

	if !s.authResolved.CompareAndSwap(false, true) {
		return
	}
	s.authTimer.Stop()

	s.subject = subject
	s.phase = phaseStreaming

	if s.deps.ObjectStore != nil {
		archiver, archErr := archive.New(s.deps.ArchiveConfig, s.id, s.subject, s.deps.ObjectStore)
		if archErr != nil {
			log.Printf("session[%s]: archiver construction failed, continuing without archival: %v", s.id[:8], archErr)
		} else {
			s.archiver = archiver
		}
	}

	s.Emit(authSuccessFrame{Type: "auth_success", UserID: s.subject, Timestamp: nowISO()})
}
