package automowerapi

import (
	"context"
	"sync"
)

// CuttingHeightCall records a SetCuttingHeight call
type CuttingHeightCall struct {
	MowerID string
	Height  int
}

// WorkAreaCall records a SetCuttingHeightWorkArea call
type WorkAreaCall struct {
	MowerID    string
	Height     int
	WorkAreaID int
}

// MockSession implements PushSession for testing
type MockSession struct {
	mu            sync.Mutex
	mowers        map[string]*MowerAttributes
	statusCalls   int
	heightCalls   []CuttingHeightCall
	workAreaCalls []WorkAreaCall
	handlers      []EventHandler
	statusErr     error
	commandErr    error
}

// NewMockSession creates a mock returning mowers from GetStatus
func NewMockSession(mowers map[string]*MowerAttributes) *MockSession {
	m := &MockSession{}
	m.SetMowers(mowers)
	return m
}

// SetMowers replaces the data returned by GetStatus
func (m *MockSession) SetMowers(mowers map[string]*MowerAttributes) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mowers = make(map[string]*MowerAttributes, len(mowers))
	for id, attrs := range mowers {
		m.mowers[id] = attrs.Clone()
	}
}

// SetStatusErr sets the error returned by GetStatus
func (m *MockSession) SetStatusErr(err error) {
	m.mu.Lock()
	m.statusErr = err
	m.mu.Unlock()
}

// SetCommandErr sets the error returned by command calls
func (m *MockSession) SetCommandErr(err error) {
	m.mu.Lock()
	m.commandErr = err
	m.mu.Unlock()
}

// GetStatus returns a copy of the configured mowers or the status error
func (m *MockSession) GetStatus(ctx context.Context) (map[string]*MowerAttributes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statusCalls++
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	out := make(map[string]*MowerAttributes, len(m.mowers))
	for id, attrs := range m.mowers {
		out[id] = attrs.Clone()
	}
	return out, nil
}

// SetCuttingHeight records the call and returns the command error
func (m *MockSession) SetCuttingHeight(ctx context.Context, mowerID string, height int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.heightCalls = append(m.heightCalls, CuttingHeightCall{MowerID: mowerID, Height: height})
	return m.commandErr
}

// SetCuttingHeightWorkArea records the call and returns the command error
func (m *MockSession) SetCuttingHeightWorkArea(ctx context.Context, mowerID string, height int, workAreaID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workAreaCalls = append(m.workAreaCalls, WorkAreaCall{MowerID: mowerID, Height: height, WorkAreaID: workAreaID})
	return m.commandErr
}

// Listen registers handler and blocks until ctx is cancelled
func (m *MockSession) Listen(ctx context.Context, handler EventHandler) error {
	m.mu.Lock()
	m.handlers = append(m.handlers, handler)
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	m.handlers = nil
	m.mu.Unlock()
	return nil
}

// Push delivers ev to every active listener
func (m *MockSession) Push(ev Event) {
	m.mu.Lock()
	handlers := append([]EventHandler(nil), m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// ListenerCount returns the number of active listeners
func (m *MockSession) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// StatusCalls returns how many times GetStatus was called
func (m *MockSession) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

// CuttingHeightCalls returns recorded SetCuttingHeight calls
func (m *MockSession) CuttingHeightCalls() []CuttingHeightCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CuttingHeightCall(nil), m.heightCalls...)
}

// WorkAreaCalls returns recorded SetCuttingHeightWorkArea calls
func (m *MockSession) WorkAreaCalls() []WorkAreaCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WorkAreaCall(nil), m.workAreaCalls...)
}
