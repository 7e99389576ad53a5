package chat

import (
	"log"

	"github.com/tradeguard/chatsync/internal/stats"
	"github.com/tradeguard/chatsync/internal/transport"
	"github.com/tradeguard/chatsync/internal/types"
)

// receiptTracker advances per-message delivery state. Transitions are
// forward-only: SENT -> DELIVERED -> READ, and re-applying an earlier
// state is a no-op.
type receiptTracker struct {
	tr    Transport
	log   *log.Logger
	stats stats.StatsProvider
}

// MarkReceived acknowledges a counterpart message locally and tells the
// server so the sender's copy advances too.
func (rt *receiptTracker) MarkReceived(room *roomState, messageId string) {
	if !rt.advance(room, messageId, types.StatusDelivered) {
		return
	}

	if err := rt.tr.Emit(transport.EventMessageReceived, receiptPayload{MessageId: messageId, RoomId: room.id}); err != nil {
		rt.log.Printf("emit received receipt for %s: %v", messageId, err)
		return
	}
	rt.stats.Incr(stats.MetricReceiptsEmitted)
}

func (rt *receiptTracker) MarkRead(room *roomState, messageId string) {
	if !rt.advance(room, messageId, types.StatusRead) {
		return
	}

	if err := rt.tr.Emit(transport.EventMessageRead, receiptPayload{MessageId: messageId, RoomId: room.id}); err != nil {
		rt.log.Printf("emit read receipt for %s: %v", messageId, err)
		return
	}
	rt.stats.Incr(stats.MetricReceiptsEmitted)
}

// applyRemote advances local state from a counterpart's receipt without
// echoing anything back.
func (rt *receiptTracker) applyRemote(room *roomState, messageId string, status types.MessageStatus) {
	rt.advance(room, messageId, status)
}

func (rt *receiptTracker) advance(room *roomState, messageId string, to types.MessageStatus) bool {
	room.mu.Lock()
	defer room.mu.Unlock()

	i, ok := room.index(messageId)
	if !ok {
		// receipt for a message we no longer hold, e.g. it arrived
		// after the room was left
		return false
	}

	if room.messages[i].Status.Rank() >= to.Rank() {
		return false
	}

	room.messages[i].Status = to
	room.messages[i].UpdatedAt = transport.Now()
	return true
}
