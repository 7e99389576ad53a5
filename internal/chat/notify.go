package chat

import (
	"log"
	"sync"

	"github.com/tradeguard/chatsync/internal/types"
)

// Dispatcher turns "message arrived while not focused" into an unread
// badge and optional cue hooks. It has no bearing on message
// correctness; hooks run on their own goroutines so a slow cue can never
// stall the synchronization path.
type Dispatcher struct {
	log *log.Logger

	mu      sync.Mutex
	unread  map[string]int
	sound   func()
	desktop func(title, body string)
}

func NewDispatcher(logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		log:    logger,
		unread: make(map[string]int),
	}
}

func (d *Dispatcher) SetSoundHook(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sound = fn
}

func (d *Dispatcher) SetDesktopHook(fn func(title, body string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.desktop = fn
}

func (d *Dispatcher) MessageArrived(msg types.Message, focused bool) {
	if focused {
		return
	}

	d.mu.Lock()
	d.unread[msg.RoomId]++
	sound := d.sound
	desktop := d.desktop
	d.mu.Unlock()

	if sound != nil {
		go sound()
	}
	if desktop != nil {
		go desktop(msg.SenderDisplay, msg.Content)
	}
}

func (d *Dispatcher) Unread(roomId string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unread[roomId]
}

func (d *Dispatcher) TotalUnread() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	var total int
	for _, n := range d.unread {
		total += n
	}
	return total
}

func (d *Dispatcher) ClearUnread(roomId string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.unread, roomId)
}
