package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizrelay/pkg/types"
)

type room struct {
	roomID      string
	members     map[string]bool
	currentTest *types.Test
	answers     map[string]types.AnswerRecord
	chat        []types.ChatMessage
	deleteTimer *time.Timer
}

// RoomSnapshot is a point-in-time copy of one room, safe to hand to writers.
type RoomSnapshot struct {
	RoomID  string
	Members []string
	Test    *types.TestSnapshot
	Chat    []types.ChatMessage
}

// Rooms groups users around one shared test and a bounded chat log. Rooms
// are created lazily on first join and deleted a grace period after the last
// member leaves, unless someone rejoins first.
type Rooms struct {
	mu      sync.Mutex
	rooms   map[string]*room
	grace   time.Duration
	chatCap int

	log *zap.Logger
}

// NewRooms creates an empty room store.
func NewRooms(grace time.Duration, chatCap int, log *zap.Logger) *Rooms {
	return &Rooms{
		rooms:   make(map[string]*room),
		grace:   grace,
		chatCap: chatCap,
		log:     log,
	}
}

// Join adds userID to the room, creating it if needed, and cancels any
// pending deletion.
func (r *Rooms) Join(roomID, userID string) RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[roomID]
	if !exists {
		rm = &room{
			roomID:  roomID,
			members: make(map[string]bool),
			answers: make(map[string]types.AnswerRecord),
		}
		r.rooms[roomID] = rm
		r.log.Info("room created", zap.String("roomId", roomID))
	}

	if rm.deleteTimer != nil {
		rm.deleteTimer.Stop()
		rm.deleteTimer = nil
	}

	rm.members[userID] = true
	return r.snapshotLocked(rm)
}

// Leave removes userID from the room. When the last member leaves, deletion
// is scheduled after the grace period.
func (r *Rooms) Leave(roomID, userID string) (RoomSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[roomID]
	if !exists {
		return RoomSnapshot{}, false
	}

	delete(rm.members, userID)

	if len(rm.members) == 0 {
		rm.deleteTimer = time.AfterFunc(r.grace, func() {
			r.deleteIfEmpty(roomID)
		})
	}

	return r.snapshotLocked(rm), true
}

func (r *Rooms) deleteIfEmpty(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[roomID]
	if !exists || len(rm.members) > 0 {
		return
	}

	delete(r.rooms, roomID)
	r.log.Info("empty room deleted", zap.String("roomId", roomID))
}

// AppendChat appends one message, evicting the oldest past the cap.
func (r *Rooms) AppendChat(roomID, userID, text string) (types.ChatMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[roomID]
	if !exists {
		return types.ChatMessage{}, false
	}

	msg := types.ChatMessage{
		ID:     uuid.New().String(),
		RoomID: roomID,
		UserID: userID,
		Text:   text,
		SentAt: time.Now(),
	}

	rm.chat = append(rm.chat, msg)
	if len(rm.chat) > r.chatCap {
		rm.chat = rm.chat[len(rm.chat)-r.chatCap:]
	}

	return msg, true
}

// ShareTest attaches a test to the room, replacing any previous one and
// resetting the room's answers.
func (r *Rooms) ShareTest(roomID, userID, url, title string, questions []types.Question) (RoomSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[roomID]
	if !exists {
		return RoomSnapshot{}, false
	}

	rm.currentTest = &types.Test{
		TestID:    newTestID(),
		OwnerID:   userID,
		URL:       url,
		Title:     title,
		Questions: questions,
		CreatedAt: time.Now(),
	}
	rm.answers = make(map[string]types.AnswerRecord)

	return r.snapshotLocked(rm), true
}

// Members returns the current member ids of a room.
func (r *Rooms) Members(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[roomID]
	if !exists {
		return nil
	}
	return memberList(rm)
}

// Count returns the number of live rooms.
func (r *Rooms) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Rooms) snapshotLocked(rm *room) RoomSnapshot {
	snap := RoomSnapshot{
		RoomID:  rm.roomID,
		Members: memberList(rm),
		Chat:    append([]types.ChatMessage(nil), rm.chat...),
	}
	if rm.currentTest != nil {
		snap.Test = &types.TestSnapshot{
			Test:    *rm.currentTest,
			Answers: copyAnswers(rm.answers),
		}
	}
	return snap
}

func memberList(rm *room) []string {
	members := make([]string, 0, len(rm.members))
	for userID := range rm.members {
		members = append(members, userID)
	}
	sort.Strings(members)
	return members
}
