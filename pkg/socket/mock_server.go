package socket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// MockHandler scripts the server's answer to one method. Returning a
// non-nil ServerError produces an error envelope instead of a result.
type MockHandler func(id int64, params []json.RawMessage) (interface{}, *ServerError)

// MockServer is a scriptable WebSocket server speaking the request/response
// envelope protocol, for exercising sessions without a real exchange.
type MockServer struct {
	server *httptest.Server
	url    string

	mu       sync.Mutex
	conns    map[*websocket.Conn]bool
	handlers map[string]MockHandler
	requests [][]byte

	rejectConnection bool
	onConnect        func()
}

// NewMockServer creates a mock server that answers pings and rejects every
// other method until scripted with Handle.
func NewMockServer() *MockServer {
	m := &MockServer{
		conns:    make(map[*websocket.Conn]bool),
		handlers: make(map[string]MockHandler),
	}
	m.Handle("server.ping", func(int64, []json.RawMessage) (interface{}, *ServerError) {
		return "pong", nil
	})

	m.server = httptest.NewServer(http.HandlerFunc(m.handleConnection))
	m.url = "ws" + strings.TrimPrefix(m.server.URL, "http")
	return m
}

// URL returns the WebSocket address of the mock server
func (m *MockServer) URL() string {
	return m.url
}

// Close shuts the server down
func (m *MockServer) Close() {
	m.server.Close()
}

// Handle scripts the response for a method
func (m *MockServer) Handle(method string, handler MockHandler) {
	m.mu.Lock()
	m.handlers[method] = handler
	m.mu.Unlock()
}

// HandleResult scripts a fixed successful result for a method
func (m *MockServer) HandleResult(method string, result interface{}) {
	m.Handle(method, func(int64, []json.RawMessage) (interface{}, *ServerError) {
		return result, nil
	})
}

// SetRejectConnection configures whether new connections are refused
func (m *MockServer) SetRejectConnection(reject bool) {
	m.mu.Lock()
	m.rejectConnection = reject
	m.mu.Unlock()
}

// OnConnect sets a callback invoked for each accepted connection
func (m *MockServer) OnConnect(callback func()) {
	m.mu.Lock()
	m.onConnect = callback
	m.mu.Unlock()
}

// Push broadcasts a push frame for a subject with the given positional
// params
func (m *MockServer) Push(subject string, params ...interface{}) {
	if params == nil {
		params = []interface{}{}
	}
	data, err := json.Marshal(map[string]interface{}{
		"method": subject + ".update",
		"params": params,
	})
	if err != nil {
		return
	}
	m.Broadcast(data)
}

// Broadcast sends a raw message to every connected client
func (m *MockServer) Broadcast(message []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for conn := range m.conns {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			delete(m.conns, conn)
		}
	}
}

// DropConnections closes every active connection, simulating a transport
// failure
func (m *MockServer) DropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for conn := range m.conns {
		_ = conn.Close()
		delete(m.conns, conn)
	}
}

// ConnectionCount returns the number of active connections
func (m *MockServer) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Requests returns a copy of every raw request received so far
func (m *MockServer) Requests() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	requests := make([][]byte, len(m.requests))
	copy(requests, m.requests)
	return requests
}

// RequestsFor returns the decoded envelopes received for one method, in
// arrival order
func (m *MockServer) RequestsFor(method string) []MockRequest {
	var matched []MockRequest
	for _, raw := range m.Requests() {
		var req MockRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		if req.Method == method {
			matched = append(matched, req)
		}
	}
	return matched
}

// MockRequest is the decoded form of a received request envelope
type MockRequest struct {
	ID     int64             `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (m *MockServer) handleConnection(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	reject := m.rejectConnection
	onConnect := m.onConnect
	m.mu.Unlock()

	if reject {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.conns[conn] = true
	m.mu.Unlock()

	if onConnect != nil {
		onConnect()
	}

	defer func() {
		m.mu.Lock()
		delete(m.conns, conn)
		m.mu.Unlock()
		conn.Close()
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		m.mu.Lock()
		m.requests = append(m.requests, message)
		m.mu.Unlock()

		var req MockRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}

		m.mu.Lock()
		handler := m.handlers[req.Method]
		m.mu.Unlock()

		response := map[string]interface{}{"id": req.ID}
		if handler == nil {
			response["error"] = &ServerError{Code: 4, Message: "unknown method " + req.Method}
			response["result"] = nil
		} else {
			result, srvErr := handler(req.ID, req.Params)
			if srvErr != nil {
				response["error"] = srvErr
				response["result"] = nil
			} else {
				response["error"] = nil
				response["result"] = result
			}
		}

		data, err := json.Marshal(response)
		if err != nil {
			continue
		}

		m.mu.Lock()
		writeErr := conn.WriteMessage(websocket.TextMessage, data)
		m.mu.Unlock()
		if writeErr != nil {
			return
		}
	}
}

// setupMockServer creates a mock server scoped to one test
func setupMockServer(t *testing.T) *MockServer {
	t.Helper()
	mock := NewMockServer()
	t.Cleanup(mock.Close)
	return mock
}
