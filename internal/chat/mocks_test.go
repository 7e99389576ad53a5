package chat

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/tradeguard/chatsync/internal/transport"
	"github.com/tradeguard/chatsync/internal/types"
)

type emittedEvent struct {
	event string
	data  any
}

// fakeTransport records emits and lets tests fail specific events.
type fakeTransport struct {
	mu         sync.Mutex
	state      transport.ConnState
	emits      []emittedEvent
	failEvents map[string]error
	nextSub    int
	reconnect  func()
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		state:      transport.Connected,
		failEvents: make(map[string]error),
	}
}

func (f *fakeTransport) Emit(event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failEvents[event]; err != nil {
		return err
	}

	f.emits = append(f.emits, emittedEvent{event: event, data: data})
	return nil
}

func (f *fakeTransport) On(event string, fn transport.Handler) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	return f.nextSub
}

func (f *fakeTransport) Off(event string, id int) {}

func (f *fakeTransport) OnReconnect(fn func()) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnect = fn
	f.nextSub++
	return f.nextSub
}

func (f *fakeTransport) OffReconnect(id int) {}

func (f *fakeTransport) State() transport.ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) setState(s transport.ConnState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeTransport) eventsOf(event string) []emittedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []emittedEvent
	for _, e := range f.emits {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) clearEmits() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = nil
}

type MockHistoryClient struct {
	mock.Mock
}

func (m *MockHistoryClient) Messages(ctx context.Context, roomId string) ([]types.Message, error) {
	args := m.Called(roomId)
	if msgs, ok := args.Get(0).([]types.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockHistoryClient) MarkRoomRead(ctx context.Context, roomId string) error {
	args := m.Called(roomId)
	return args.Error(0)
}

func (m *MockHistoryClient) ListRooms(ctx context.Context) ([]types.Room, error) {
	args := m.Called()
	if rooms, ok := args.Get(0).([]types.Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
