package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tradeguard/chatsync/internal/stats"
	"github.com/tradeguard/chatsync/internal/testutil"
	"github.com/tradeguard/chatsync/internal/transport"
	"github.com/tradeguard/chatsync/internal/types"
)

func newTestReceiptTracker(t *testing.T) (*receiptTracker, *fakeTransport, *stats.MockStatsUpdater) {
	t.Helper()

	tr := newFakeTransport()
	sp := &stats.MockStatsUpdater{}
	rt := &receiptTracker{tr: tr, log: testutil.TestLogger(t), stats: sp}
	return rt, tr, sp
}

func Test_receiptMonotonicity(t *testing.T) {
	rt, tr, sp := newTestReceiptTracker(t)
	room := newRoomState("order-1")
	room.insert(testMessage("m1", "hi", time.Now()))

	rt.MarkReceived(room, "m1")
	assert.Equal(t, types.StatusDelivered, room.messages[0].Status)
	assert.Len(t, tr.eventsOf(transport.EventMessageReceived), 1)

	rt.MarkRead(room, "m1")
	assert.Equal(t, types.StatusRead, room.messages[0].Status)
	assert.Len(t, tr.eventsOf(transport.EventMessageRead), 1)

	// applying an earlier state after READ is a no-op
	rt.MarkReceived(room, "m1")
	assert.Equal(t, types.StatusRead, room.messages[0].Status, "expected status to never move backward")
	assert.Len(t, tr.eventsOf(transport.EventMessageReceived), 1, "expected no duplicate receipt emit")

	// re-applying the same state is idempotent
	rt.MarkRead(room, "m1")
	assert.Len(t, tr.eventsOf(transport.EventMessageRead), 1)
	assert.Equal(t, 2, sp.Count(stats.MetricReceiptsEmitted))
}

func Test_orphanedReceipt(t *testing.T) {
	rt, tr, _ := newTestReceiptTracker(t)
	room := newRoomState("order-1")

	// receipt for a message id we no longer hold is silently dropped
	rt.MarkReceived(room, "ghost")
	rt.applyRemote(room, "ghost", types.StatusRead)

	assert.Empty(t, room.messages)
	assert.Empty(t, tr.eventsOf(transport.EventMessageReceived), "expected no emit for an orphaned receipt")
}

func Test_applyRemote(t *testing.T) {
	rt, tr, _ := newTestReceiptTracker(t)
	room := newRoomState("order-1")
	room.insert(testMessage("m1", "hi", time.Now()))

	rt.applyRemote(room, "m1", types.StatusRead)
	assert.Equal(t, types.StatusRead, room.messages[0].Status)
	assert.Empty(t, tr.emits, "expected remote receipts to advance state without echoing")

	// a late DELIVERED after READ must not regress
	rt.applyRemote(room, "m1", types.StatusDelivered)
	assert.Equal(t, types.StatusRead, room.messages[0].Status)
}
