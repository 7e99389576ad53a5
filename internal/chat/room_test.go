package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tradeguard/chatsync/internal/types"
)

func testMessage(id, content string, createdAt time.Time) types.Message {
	return types.Message{
		Id:        id,
		RoomId:    "order-1",
		SenderId:  "u1",
		Content:   content,
		Kind:      types.KindText,
		Status:    types.StatusSent,
		CreatedAt: createdAt,
	}
}

func Test_insert_ordering(t *testing.T) {
	room := newRoomState("order-1")
	base := time.Now().UTC()

	room.insert(testMessage("m1", "first", base))
	room.insert(testMessage("m2", "third", base.Add(2*time.Second)))
	room.insert(testMessage("m3", "second", base.Add(time.Second)))

	assert.Len(t, room.messages, 3, "expected 3 messages after inserts")
	assert.Equal(t, "m1", room.messages[0].Id, "expected earliest message first")
	assert.Equal(t, "m3", room.messages[1].Id, "expected out-of-order arrival placed by timestamp")
	assert.Equal(t, "m2", room.messages[2].Id, "expected latest message last")
}

func Test_insert_tieKeepsArrivalOrder(t *testing.T) {
	room := newRoomState("order-1")
	ts := time.Now().UTC()

	room.insert(testMessage("m1", "a", ts))
	room.insert(testMessage("m2", "b", ts))

	assert.Equal(t, "m1", room.messages[0].Id, "expected first arrival to stay first on timestamp tie")
	assert.Equal(t, "m2", room.messages[1].Id, "expected second arrival to stay second on timestamp tie")
}

func Test_remove(t *testing.T) {
	room := newRoomState("order-1")
	room.insert(testMessage("m1", "a", time.Now()))

	room.remove("m1")
	assert.Empty(t, room.messages, "expected no messages after removal")
	assert.False(t, room.has("m1"), "expected id index to forget removed message")

	room.remove("missing")
	assert.Empty(t, room.messages, "expected removing an unknown id to be a no-op")
}

func Test_replaceTemp(t *testing.T) {
	t.Run("replaces in place", func(t *testing.T) {
		room := newRoomState("order-1")
		base := time.Now().UTC()

		room.insert(testMessage("m1", "before", base))
		room.insert(testMessage(TempIdPrefix+"abc", "hello", base.Add(time.Second)))
		room.insert(testMessage("m2", "after", base.Add(2*time.Second)))

		confirmed := testMessage("m9", "hello", base.Add(time.Second))
		room.replaceTemp(TempIdPrefix+"abc", confirmed)

		assert.Len(t, room.messages, 3, "expected message count unchanged by replacement")
		assert.Equal(t, "m9", room.messages[1].Id, "expected confirmed message to keep the temp entry's position")
		assert.False(t, room.has(TempIdPrefix+"abc"), "expected temp id to be forgotten")
		assert.True(t, room.has("m9"), "expected confirmed id to be indexed")
	})

	t.Run("temp entry gone falls back to insert", func(t *testing.T) {
		room := newRoomState("order-1")
		confirmed := testMessage("m9", "hello", time.Now())

		room.replaceTemp(TempIdPrefix+"gone", confirmed)
		assert.Len(t, room.messages, 1, "expected confirmed message to be inserted")
		assert.True(t, room.has("m9"))
	})
}

func Test_replace(t *testing.T) {
	room := newRoomState("order-1")
	base := time.Now().UTC()

	room.insert(testMessage(TempIdPrefix+"abc", "stale", base))
	room.pending["stale"] = pendingSend{tempId: TempIdPrefix + "abc", content: "stale"}

	room.replace([]types.Message{
		testMessage("m1", "a", base),
		testMessage("m2", "b", base.Add(time.Second)),
		testMessage("m2", "b", base.Add(time.Second)),
	})

	assert.Len(t, room.messages, 2, "expected history duplicates to be dropped")
	assert.Empty(t, room.pending, "expected stale pending sends to be cleared")
	assert.False(t, room.has(TempIdPrefix+"abc"), "expected optimistic entry to be discarded")
}
