package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Hub routes messages to connected viewers. Every viewer joins their
// personal room (user_<id>) on register; ride rooms (ride_<id>) are
// joined explicitly while watching a ride.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	rooms      map[string]map[*Client]bool
	mutex      sync.RWMutex
}

type Message struct {
	Type      string             `json:"type"`
	RoomID    string             `json:"room_id,omitempty"`
	UserID    primitive.ObjectID `json:"user_id,omitempty"`
	Timestamp int64              `json:"timestamp"`
	Data      json.RawMessage    `json:"data,omitempty"`
}

func NewMessage(msgType, roomID string, payload interface{}) Message {
	data, _ := json.Marshal(payload)
	return Message{
		Type:      msgType,
		RoomID:    roomID,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}
}

func RideRoom(rideID primitive.ObjectID) string { return "ride_" + rideID.Hex() }
func UserRoom(userID primitive.ObjectID) string { return "user_" + userID.Hex() }

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	h.joinRoomLocked(client, UserRoom(client.UserID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.send)

	for roomID, room := range h.rooms {
		if _, exists := room[client]; exists {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}

func (h *Hub) broadcastMessage(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	if msg.RoomID != "" {
		h.SendToRoom(msg.RoomID, msg)
		return
	}
	h.sendToAll(msg)
}

func (h *Hub) sendToAll(message Message) {
	data, _ := json.Marshal(message)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		h.deliverLocked(client, data)
	}
}

func (h *Hub) SendToRoom(roomID string, message Message) {
	data, _ := json.Marshal(message)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.rooms[roomID] {
		h.deliverLocked(client, data)
	}
}

func (h *Hub) SendToUser(userID primitive.ObjectID, message Message) {
	h.SendToRoom(UserRoom(userID), message)
}

func (h *Hub) SendToRide(rideID primitive.ObjectID, message Message) {
	h.SendToRoom(RideRoom(rideID), message)
}

// deliverLocked drops the client instead of blocking when its send
// buffer is full. Caller holds the write lock.
func (h *Hub) deliverLocked(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		close(client.send)
		delete(h.clients, client)
		for _, room := range h.rooms {
			delete(room, client)
		}
	}
}

func (h *Hub) JoinRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.joinRoomLocked(client, roomID)
}

func (h *Hub) LeaveRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if room, exists := h.rooms[roomID]; exists {
		delete(room, client)
		delete(client.rooms, roomID)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) joinRoomLocked(client *Client, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
