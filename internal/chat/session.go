// Package chat keeps a locally-rendered message list consistent with the
// server-authoritative timeline of an escrow order's conversation. It
// reconciles REST-fetched history with live socket events, performs
// optimistic sends with temporary-message replacement, and tracks
// receipts and presence for every joined room.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tradeguard/chatsync/internal/config"
	"github.com/tradeguard/chatsync/internal/stats"
	"github.com/tradeguard/chatsync/internal/transport"
	"github.com/tradeguard/chatsync/internal/types"
)

// Transport is the slice of the shared socket handle the synchronizer
// needs. *transport.Handle satisfies it.
type Transport interface {
	Emit(event string, data any) error
	On(event string, fn transport.Handler) int
	Off(event string, id int)
	OnReconnect(fn func()) int
	OffReconnect(id int)
	State() transport.ConnState
}

// HistoryClient is the REST collaborator that seeds room timelines.
type HistoryClient interface {
	Messages(ctx context.Context, roomId string) ([]types.Message, error)
	MarkRoomRead(ctx context.Context, roomId string) error
	ListRooms(ctx context.Context) ([]types.Room, error)
}

// MessageListener is notified after an inbound message has been merged
// into a room's timeline, echo replacements included.
type MessageListener func(roomId string, msg types.Message)

// Session is one consumer's view of the chat service: the rooms it has
// joined, its optimistic sends, and the receipt/presence state around
// them. Multiple sessions may share one transport through the registry.
type Session struct {
	log   *log.Logger
	stats stats.StatsProvider
	tr    Transport
	hist  HistoryClient
	local types.User

	typingStopDelay time.Duration

	receipts *receiptTracker
	presence *presenceTracker
	notify   *Dispatcher

	mu        sync.Mutex
	rooms     map[string]*roomState
	focused   string
	admin     bool
	closed    bool
	onMessage MessageListener

	subs         map[string]int
	reconnectSub int
}

func NewSession(logger *log.Logger, sp stats.StatsProvider, tr Transport, hist HistoryClient, local types.User, cfg *config.Config) *Session {
	typingExpiry := config.DefaultTypingExpiry
	typingStop := config.DefaultTypingStopDelay
	if cfg != nil {
		typingExpiry = cfg.TypingExpiry
		typingStop = cfg.TypingStopDelay
	}

	s := &Session{
		log:             logger,
		stats:           sp,
		tr:              tr,
		hist:            hist,
		local:           local,
		typingStopDelay: typingStop,
		notify:          NewDispatcher(logger),
		rooms:           make(map[string]*roomState),
		subs:            make(map[string]int),
	}

	s.receipts = &receiptTracker{tr: tr, log: logger, stats: sp}
	s.presence = &presenceTracker{log: logger, local: local.Id, expiry: typingExpiry}

	s.subs[transport.EventNewMessage] = tr.On(transport.EventNewMessage, s.onNewMessage)
	s.subs[transport.EventNewMessageAdmin] = tr.On(transport.EventNewMessageAdmin, s.onNewMessage)
	s.subs[transport.EventUserTyping] = tr.On(transport.EventUserTyping, s.onUserTyping)
	s.subs[transport.EventUserOnline] = tr.On(transport.EventUserOnline, s.onUserOnline)
	s.subs[transport.EventMessageReceived] = tr.On(transport.EventMessageReceived, s.receiptHandler(types.StatusDelivered))
	s.subs[transport.EventMessageDelivered] = tr.On(transport.EventMessageDelivered, s.receiptHandler(types.StatusDelivered))
	s.subs[transport.EventMessageRead] = tr.On(transport.EventMessageRead, s.receiptHandler(types.StatusRead))
	s.reconnectSub = tr.OnReconnect(s.rejoinAll)

	return s
}

// SetMessageListener installs the UI re-render hook.
func (s *Session) SetMessageListener(fn MessageListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

func (s *Session) messageListener() MessageListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onMessage
}

// Notifier exposes the unread/cue dispatcher for this session.
func (s *Session) Notifier() *Dispatcher {
	return s.notify
}

func (s *Session) room(roomId string) *roomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[roomId]
}

// Join subscribes the session to one order's room. Joining an already
// joined room is a no-op and emits nothing, so callers may invoke it on
// every re-render.
func (s *Session) Join(roomId string) error {
	if roomId == "" {
		return fmt.Errorf("join: %w", ErrNotJoined)
	}

	s.mu.Lock()
	if _, ok := s.rooms[roomId]; ok {
		s.mu.Unlock()
		return nil
	}
	room := newRoomState(roomId)
	s.rooms[roomId] = room
	s.mu.Unlock()

	if err := s.tr.Emit(transport.EventJoinContract, joinPayload{RoomId: roomId}); err != nil {
		s.mu.Lock()
		delete(s.rooms, roomId)
		s.mu.Unlock()
		return fmt.Errorf("join %s: %w", roomId, err)
	}

	s.stats.Incr(stats.MetricRoomsJoined)
	return nil
}

// Leave unsubscribes from a room and discards its local state. In-flight
// optimistic sends are abandoned; a late echo is silently dropped.
func (s *Session) Leave(roomId string) {
	s.mu.Lock()
	_, ok := s.rooms[roomId]
	delete(s.rooms, roomId)
	if s.focused == roomId {
		s.focused = ""
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	if err := s.tr.Emit(transport.EventLeaveContract, joinPayload{RoomId: roomId}); err != nil {
		s.log.Printf("leave %s: %v", roomId, err)
	}
}

// JoinAdmin subscribes the administrative broadcast room, which carries
// every order conversation's traffic.
func (s *Session) JoinAdmin() error {
	s.mu.Lock()
	if s.admin {
		s.mu.Unlock()
		return nil
	}
	s.admin = true
	s.mu.Unlock()

	if err := s.tr.Emit(transport.EventJoinAdmin, nil); err != nil {
		s.mu.Lock()
		s.admin = false
		s.mu.Unlock()
		return fmt.Errorf("join admin: %w", err)
	}

	return nil
}

func (s *Session) LeaveAdmin() {
	s.mu.Lock()
	wasAdmin := s.admin
	s.admin = false
	s.mu.Unlock()

	if !wasAdmin {
		return
	}

	if err := s.tr.Emit(transport.EventLeaveAdmin, nil); err != nil {
		s.log.Printf("leave admin: %v", err)
	}
}

// rejoinAll re-subscribes every room after a reconnect; the server does
// not retain membership across a dropped connection.
func (s *Session) rejoinAll() {
	s.mu.Lock()
	roomIds := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		roomIds = append(roomIds, id)
	}
	sort.Strings(roomIds)
	admin := s.admin
	s.mu.Unlock()

	for _, id := range roomIds {
		if err := s.tr.Emit(transport.EventJoinContract, joinPayload{RoomId: id}); err != nil {
			s.log.Printf("rejoin %s: %v", id, err)
		}
	}
	if admin {
		if err := s.tr.Emit(transport.EventJoinAdmin, nil); err != nil {
			s.log.Printf("rejoin admin: %v", err)
		}
	}
}

// Send appends an optimistic message and submits the content. It returns
// the temporary entry; the server echo later replaces it in place. On a
// transport-level failure the optimistic entry is rolled back and the
// caller must resend explicitly.
func (s *Session) Send(roomId, content string) (types.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.Message{}, ErrEmptyContent
	}

	room := s.room(roomId)
	if room == nil {
		return types.Message{}, ErrNotJoined
	}

	if s.tr.State() != transport.Connected {
		return types.Message{}, ErrTransportUnavailable
	}

	now := transport.Now()
	tempId := TempIdPrefix + uuid.NewString()
	msg := types.Message{
		Id:            tempId,
		RoomId:        roomId,
		SenderId:      s.local.Id,
		SenderDisplay: s.local.DisplayName,
		SenderRole:    s.local.Role,
		Content:       content,
		Kind:          types.KindText,
		Status:        types.StatusSent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	room.mu.Lock()
	if _, inFlight := room.pending[content]; inFlight {
		room.mu.Unlock()
		return types.Message{}, ErrSendInFlight
	}
	room.insert(msg)
	room.pending[content] = pendingSend{tempId: tempId, content: content, submittedAt: now}
	room.mu.Unlock()

	if err := s.tr.Emit(transport.EventSendMessage, sendPayload{RoomId: roomId, Content: content, Kind: types.KindText}); err != nil {
		room.mu.Lock()
		room.remove(tempId)
		delete(room.pending, content)
		room.mu.Unlock()
		s.stats.Incr(stats.MetricMessagesRolledBack)
		return types.Message{}, fmt.Errorf("%w: %s", ErrSendRejected, err)
	}

	s.stats.Incr(stats.MetricMessagesSent)
	return msg, nil
}

// LoadHistory replaces the room's timeline with the server's
// authoritative page. Live messages arriving while the fetch is in
// flight are buffered and merged afterwards so nothing is lost.
func (s *Session) LoadHistory(ctx context.Context, roomId string) ([]types.Message, error) {
	room := s.room(roomId)
	if room == nil {
		return nil, ErrNotJoined
	}

	room.mu.Lock()
	room.loading = true
	room.mu.Unlock()

	msgs, err := s.hist.Messages(ctx, roomId)

	room.mu.Lock()
	if err == nil {
		room.replace(msgs)
	}
	backlog := room.backlog
	room.backlog = nil
	room.loading = false
	room.mu.Unlock()

	for _, m := range backlog {
		s.reconcile(room, m)
	}

	if err != nil {
		// the room stays live on socket events; the caller should offer
		// a retry affordance
		return nil, fmt.Errorf("load history %s: %w", roomId, err)
	}

	s.stats.Incr(stats.MetricHistoryLoads)
	return s.Messages(roomId), nil
}

// Focus marks a room as the one the user is actively viewing. Unread
// counterpart messages are acknowledged retroactively and the badge is
// cleared, server side included.
func (s *Session) Focus(ctx context.Context, roomId string) error {
	room := s.room(roomId)
	if room == nil {
		return ErrNotJoined
	}

	s.mu.Lock()
	s.focused = roomId
	s.mu.Unlock()

	room.mu.Lock()
	var unacked []string
	for _, m := range room.messages {
		if m.SenderId != s.local.Id && m.Status.Rank() < types.StatusRead.Rank() {
			unacked = append(unacked, m.Id)
		}
	}
	room.mu.Unlock()

	for _, id := range unacked {
		s.receipts.MarkReceived(room, id)
		s.receipts.MarkRead(room, id)
	}

	s.notify.ClearUnread(roomId)
	if err := s.hist.MarkRoomRead(ctx, roomId); err != nil {
		s.log.Printf("mark room read %s: %v", roomId, err)
	}

	return nil
}

func (s *Session) Blur() {
	s.mu.Lock()
	s.focused = ""
	s.mu.Unlock()
}

func (s *Session) Focused() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// AnnounceTyping signals that the local actor is composing. Every
// keystroke announces immediately and schedules its own unconditional
// stop signal; rapid typing produces overlapping stop emissions.
func (s *Session) AnnounceTyping(roomId string) {
	if s.room(roomId) == nil {
		return
	}

	if err := s.tr.Emit(transport.EventTyping, typingPayload{RoomId: roomId, IsTyping: true}); err != nil {
		s.log.Printf("announce typing %s: %v", roomId, err)
		return
	}

	time.AfterFunc(s.typingStopDelay, func() {
		if err := s.tr.Emit(transport.EventTyping, typingPayload{RoomId: roomId, IsTyping: false}); err != nil {
			s.log.Printf("announce typing stop %s: %v", roomId, err)
		}
	})
}

// Messages returns a copy of a room's current timeline.
func (s *Session) Messages(roomId string) []types.Message {
	room := s.room(roomId)
	if room == nil {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return room.snapshot()
}

func (s *Session) TypingUsers(roomId string) []string {
	room := s.room(roomId)
	if room == nil {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return sortedKeys(room.typing)
}

func (s *Session) OnlineUsers(roomId string) []string {
	room := s.room(roomId)
	if room == nil {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return sortedKeys(room.online)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Session) onNewMessage(data json.RawMessage) {
	var p newMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Println("error parsing new-message:", err)
		return
	}

	msg := p.Message
	if msg.RoomId == "" {
		msg.RoomId = p.RoomId
	}
	if msg.RoomId == "" {
		return
	}

	room := s.room(msg.RoomId)
	if room == nil {
		s.mu.Lock()
		if s.admin && !s.closed {
			// the admin inbox observes every conversation without an
			// explicit per-room join
			room = newRoomState(msg.RoomId)
			s.rooms[msg.RoomId] = room
		}
		s.mu.Unlock()
		if room == nil {
			// not subscribed (e.g. the room was just left); drop
			return
		}
	}

	room.mu.Lock()
	if room.loading {
		room.backlog = append(room.backlog, msg)
		room.mu.Unlock()
		return
	}
	room.mu.Unlock()

	s.reconcile(room, msg)
}

// reconcile merges one inbound message into a room's timeline: an echo
// of our own optimistic send replaces the temporary entry, a duplicate
// id is dropped, anything else is appended in timestamp order.
func (s *Session) reconcile(room *roomState, msg types.Message) {
	var merged, fromCounterpart bool

	room.mu.Lock()
	if p, ok := room.pending[msg.Content]; ok && msg.SenderId == s.local.Id {
		room.replaceTemp(p.tempId, msg)
		delete(room.pending, msg.Content)
		merged = true
	} else if room.has(msg.Id) {
		// idempotent re-delivery
	} else {
		room.insert(msg)
		merged = true
		fromCounterpart = msg.SenderId != s.local.Id
	}
	room.mu.Unlock()

	if !merged {
		return
	}
	s.stats.Incr(stats.MetricMessagesReceived)

	if fromCounterpart {
		if s.Focused() == room.id {
			s.receipts.MarkReceived(room, msg.Id)
			s.receipts.MarkRead(room, msg.Id)
		} else {
			s.notify.MessageArrived(msg, false)
		}
	}

	if fn := s.messageListener(); fn != nil {
		fn(room.id, msg)
	}
}

func (s *Session) receiptHandler(status types.MessageStatus) transport.Handler {
	return func(data json.RawMessage) {
		var p receiptPayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.log.Println("error parsing receipt:", err)
			return
		}

		room := s.room(p.RoomId)
		if room == nil {
			return
		}

		s.receipts.applyRemote(room, p.MessageId, status)
	}
}

func (s *Session) onUserTyping(data json.RawMessage) {
	var p userTypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Println("error parsing user-typing:", err)
		return
	}

	if room := s.room(p.RoomId); room != nil {
		s.presence.SetTyping(room, p.UserId, p.IsTyping)
	}
}

func (s *Session) onUserOnline(data json.RawMessage) {
	var p userOnlinePayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Println("error parsing user-online:", err)
		return
	}

	if p.RoomId != "" {
		if room := s.room(p.RoomId); room != nil {
			s.presence.SetOnline(room, p.UserId, p.IsOnline)
		}
		return
	}

	// presence without a room scope applies to every joined room the
	// counterpart may be in
	s.mu.Lock()
	rooms := make([]*roomState, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.Unlock()

	for _, room := range rooms {
		s.presence.SetOnline(room, p.UserId, p.IsOnline)
	}
}

// Close cancels the session's interest in every room and detaches its
// transport handlers. The shared connection itself is owned by the
// registry and survives until the last consumer releases it.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	roomIds := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		roomIds = append(roomIds, id)
	}
	sort.Strings(roomIds)
	s.rooms = make(map[string]*roomState)
	wasAdmin := s.admin
	s.admin = false
	s.focused = ""
	s.mu.Unlock()

	for _, id := range roomIds {
		if err := s.tr.Emit(transport.EventLeaveContract, joinPayload{RoomId: id}); err != nil {
			s.log.Printf("leave %s on close: %v", id, err)
		}
	}
	if wasAdmin {
		if err := s.tr.Emit(transport.EventLeaveAdmin, nil); err != nil {
			s.log.Printf("leave admin on close: %v", err)
		}
	}

	for event, id := range s.subs {
		s.tr.Off(event, id)
	}
	s.tr.OffReconnect(s.reconnectSub)
}
