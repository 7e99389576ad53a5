package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tradeguard/chatsync/internal/testutil"
)

func newTestPresenceTracker(t *testing.T, expiry time.Duration) *presenceTracker {
	t.Helper()
	return &presenceTracker{log: testutil.TestLogger(t), local: "u-local", expiry: expiry}
}

func Test_SetOnline(t *testing.T) {
	pt := newTestPresenceTracker(t, time.Second)
	room := newRoomState("order-1")

	pt.SetOnline(room, "u-peer", true)
	assert.Contains(t, room.online, "u-peer")

	pt.SetOnline(room, "u-peer", false)
	assert.NotContains(t, room.online, "u-peer")

	// the local actor never appears in its own presence set
	pt.SetOnline(room, "u-local", true)
	assert.Empty(t, room.online)
}

func Test_typingExpiry(t *testing.T) {
	pt := newTestPresenceTracker(t, 40*time.Millisecond)
	room := newRoomState("order-1")

	pt.SetTyping(room, "u-peer", true)

	room.mu.Lock()
	assert.Contains(t, room.typing, "u-peer", "expected user typing immediately after the event")
	room.mu.Unlock()

	// still typing halfway through the window
	time.Sleep(15 * time.Millisecond)
	room.mu.Lock()
	assert.Contains(t, room.typing, "u-peer", "expected typing entry to survive until the expiry window")
	room.mu.Unlock()

	assert.Eventually(t, func() bool {
		room.mu.Lock()
		defer room.mu.Unlock()
		_, ok := room.typing["u-peer"]
		return !ok
	}, time.Second, 5*time.Millisecond, "expected typing entry to self-expire")
}

func Test_typingExplicitStop(t *testing.T) {
	pt := newTestPresenceTracker(t, time.Minute)
	room := newRoomState("order-1")

	pt.SetTyping(room, "u-peer", true)
	pt.SetTyping(room, "u-peer", false)

	room.mu.Lock()
	assert.NotContains(t, room.typing, "u-peer", "expected explicit stop to clear immediately")
	room.mu.Unlock()
}

func Test_typingIgnoresLocalActor(t *testing.T) {
	pt := newTestPresenceTracker(t, time.Minute)
	room := newRoomState("order-1")

	pt.SetTyping(room, "u-local", true)

	room.mu.Lock()
	assert.Empty(t, room.typing, "expected the local actor to be excluded from the typing set")
	room.mu.Unlock()
}

// An earlier timer fires even if the user announced typing again, so
// continuous typing flickers rather than sticking on. That mirrors the
// wire contract's per-keystroke announcements.
func Test_typingTimerNotDebounced(t *testing.T) {
	pt := newTestPresenceTracker(t, 30*time.Millisecond)
	room := newRoomState("order-1")

	pt.SetTyping(room, "u-peer", true)
	time.Sleep(20 * time.Millisecond)
	pt.SetTyping(room, "u-peer", true)

	assert.Eventually(t, func() bool {
		room.mu.Lock()
		defer room.mu.Unlock()
		_, ok := room.typing["u-peer"]
		return !ok
	}, 200*time.Millisecond, time.Millisecond, "expected the first timer to clear the entry despite the re-announce")
}
