package relay_test

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// fakeTransport is an in-memory Transport. Inbound frames are fed
// through a channel; writes are recorded for assertions.
type fakeTransport struct {
	inbound chan []byte

	mu        sync.Mutex
	written   [][]byte
	writeErr  error
	closed    bool
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan []byte, 16)}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	raw, ok := <-f.inbound
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, raw, nil
}

func (f *fakeTransport) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if messageType == websocket.TextMessage {
		f.written = append(f.written, append([]byte(nil), data...))
	}
	return nil
}

func (f *fakeTransport) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakeTransport) SetWriteDeadline(t time.Time) error { return nil }
func (f *fakeTransport) SetPongHandler(h func(string) error) {}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.inbound)
	})
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) writtenPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	payloads := make([][]byte, len(f.written))
	copy(payloads, f.written)
	return payloads
}
