package chat

import (
	"sync"
	"time"

	"github.com/tradeguard/chatsync/internal/types"
)

// TempIdPrefix marks client-generated message ids. The server never
// issues ids with this prefix, so a temporary id cannot collide with a
// persisted one.
const TempIdPrefix = "tmp-"

type pendingSend struct {
	tempId      string
	content     string
	submittedAt time.Time
}

// roomState is the local mirror of one room's timeline plus the
// ephemeral state around it. It exists only while the room is joined; a
// re-join always re-seeds from REST history.
type roomState struct {
	id string

	mu       sync.Mutex
	messages []types.Message
	ids      map[string]struct{}
	// pending optimistic sends keyed by content; the server echo is
	// matched back by (content, sender)
	pending map[string]pendingSend
	typing  map[string]struct{}
	online  map[string]struct{}
	// loading is set while a history fetch is in flight; live arrivals
	// land in backlog and are merged once the fetch resolves
	loading bool
	backlog []types.Message
}

func newRoomState(id string) *roomState {
	return &roomState{
		id:      id,
		ids:     make(map[string]struct{}),
		pending: make(map[string]pendingSend),
		typing:  make(map[string]struct{}),
		online:  make(map[string]struct{}),
	}
}

func (r *roomState) has(id string) bool {
	_, ok := r.ids[id]
	return ok
}

func (r *roomState) index(id string) (int, bool) {
	for i := range r.messages {
		if r.messages[i].Id == id {
			return i, true
		}
	}
	return 0, false
}

// insert places msg by created-at order, later arrivals winning ties.
// The caller must have ruled out a duplicate id.
func (r *roomState) insert(msg types.Message) {
	r.ids[msg.Id] = struct{}{}

	i := len(r.messages)
	for i > 0 && r.messages[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}

	r.messages = append(r.messages, types.Message{})
	copy(r.messages[i+1:], r.messages[i:])
	r.messages[i] = msg
}

func (r *roomState) remove(id string) {
	if i, ok := r.index(id); ok {
		r.messages = append(r.messages[:i], r.messages[i+1:]...)
		delete(r.ids, id)
	}
}

// replaceTemp swaps the optimistic entry for the server-confirmed
// message in place, preserving its position in the timeline.
func (r *roomState) replaceTemp(tempId string, msg types.Message) {
	i, ok := r.index(tempId)
	if !ok {
		// the temp entry vanished, e.g. a history reload replaced the
		// timeline; fall back to a plain merge
		if !r.has(msg.Id) {
			r.insert(msg)
		}
		return
	}

	delete(r.ids, tempId)
	r.messages[i] = msg
	r.ids[msg.Id] = struct{}{}
}

// replace installs the authoritative history page wholesale and discards
// stale optimistic state.
func (r *roomState) replace(msgs []types.Message) {
	r.messages = make([]types.Message, 0, len(msgs))
	r.ids = make(map[string]struct{}, len(msgs))
	r.pending = make(map[string]pendingSend)

	for _, msg := range msgs {
		if r.has(msg.Id) {
			continue
		}
		r.insert(msg)
	}
}

func (r *roomState) snapshot() []types.Message {
	out := make([]types.Message, len(r.messages))
	copy(out, r.messages)
	return out
}
