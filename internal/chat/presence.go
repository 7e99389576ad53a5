package chat

import (
	"log"
	"time"
)

// presenceTracker maintains the online and typing sets for each room.
// It never records the local actor's own identity.
type presenceTracker struct {
	log    *log.Logger
	local  string
	expiry time.Duration
}

func (pt *presenceTracker) SetOnline(room *roomState, userId string, isOnline bool) {
	if userId == "" || userId == pt.local {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if isOnline {
		room.online[userId] = struct{}{}
	} else {
		delete(room.online, userId)
	}
}

// SetTyping records a counterpart's typing state. Every typing=true arms
// an independent expiry timer that clears the user after the window even
// if they kept typing; the counterpart's client re-announces on the next
// keystroke, so continuous typing flickers rather than sticking on.
func (pt *presenceTracker) SetTyping(room *roomState, userId string, isTyping bool) {
	if userId == "" || userId == pt.local {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !isTyping {
		delete(room.typing, userId)
		return
	}

	room.typing[userId] = struct{}{}
	time.AfterFunc(pt.expiry, func() {
		room.mu.Lock()
		delete(room.typing, userId)
		room.mu.Unlock()
	})
}
