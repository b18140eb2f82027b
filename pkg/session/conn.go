package session

import "time"

// Conn is the subset of *websocket.Conn the session worker and its writer
// goroutine need. Tests substitute a fake; production wiring passes a real
// *websocket.Conn, which satisfies this interface as-is.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}
