package services

import (
	"sync"

	"github.com/uniwave/calling/pkg/internal/models"
)

// Pusher delivers one packet to a connected client.
type Pusher interface {
	Push(packet models.UnifiedPacket)
}

var (
	clientsMutex sync.Mutex
	clients      = make(map[uint][]Pusher)
)

// RegisterClient adds a gateway connection to the account's delivery set.
// One account can hold several connections at once, one per device.
func RegisterClient(userId uint, pusher Pusher) {
	clientsMutex.Lock()
	defer clientsMutex.Unlock()
	clients[userId] = append(clients[userId], pusher)
}

func UnregisterClient(userId uint, pusher Pusher) {
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	remaining := clients[userId][:0]
	for _, p := range clients[userId] {
		if p != pusher {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) == 0 {
		delete(clients, userId)
	} else {
		clients[userId] = remaining
	}
}

// PushToClient fans a packet out to every connection of one account. An
// account with no connection drops the packet silently.
func PushToClient(userId uint, packet models.UnifiedPacket) {
	clientsMutex.Lock()
	targets := make([]Pusher, len(clients[userId]))
	copy(targets, clients[userId])
	clientsMutex.Unlock()

	for _, p := range targets {
		p.Push(packet)
	}
}
