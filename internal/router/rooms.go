package router

import (
	"go.uber.org/zap"

	"quizrelay/internal/store"
	"quizrelay/pkg/interfaces"
	"quizrelay/pkg/types"
)

// Room variant handlers. A socket joins as (user, userId) and carries its
// room id; every state change broadcasts a fresh room snapshot to the
// members still connected.

func (r *Router) handleJoinRoom(conn interfaces.Conn, m types.JoinRoom) {
	if !conn.Identified() {
		if err := conn.SetIdentity(types.RoleUser, m.UserID); err != nil {
			r.drop(conn, "join_room", err)
			return
		}
		if err := r.registry.Register(conn); err != nil {
			r.drop(conn, "register", err)
			return
		}
	} else if conn.Role() != types.RoleUser {
		r.dropRole(conn, types.MessageTypeJoinRoom)
		return
	}

	// Switching rooms leaves the old one first.
	if previous := conn.RoomID(); previous != "" && previous != m.RoomID {
		if snap, ok := r.rooms.Leave(previous, conn.ClientID()); ok {
			r.broadcastRoomState(snap)
		}
	}

	conn.SetRoomID(m.RoomID)
	snap := r.rooms.Join(m.RoomID, conn.ClientID())

	r.log.Info("user joined room",
		zap.String("roomId", m.RoomID),
		zap.String("userId", conn.ClientID()))

	r.broadcastRoomState(snap)
}

func (r *Router) handleLeaveRoom(conn interfaces.Conn) {
	roomID := conn.RoomID()
	if conn.Role() != types.RoleUser || roomID == "" {
		r.dropRole(conn, types.MessageTypeLeaveRoom)
		return
	}

	conn.SetRoomID("")
	if snap, ok := r.rooms.Leave(roomID, conn.ClientID()); ok {
		r.broadcastRoomState(snap)
	}
}

func (r *Router) handleChat(conn interfaces.Conn, m types.ChatSend) {
	roomID := conn.RoomID()
	if conn.Role() != types.RoleUser || roomID == "" {
		r.dropRole(conn, types.MessageTypeChatMessage)
		return
	}

	msg, ok := r.rooms.AppendChat(roomID, conn.ClientID(), m.Text)
	if !ok {
		return
	}

	frame := types.NewChatBroadcast(msg)
	for _, member := range r.roomConns(roomID) {
		r.send(member, frame)
	}
}

func (r *Router) handleShareTest(conn interfaces.Conn, m types.ShareTest) {
	roomID := conn.RoomID()
	if conn.Role() != types.RoleUser || roomID == "" {
		r.dropRole(conn, types.MessageTypeShareTest)
		return
	}

	snap, ok := r.rooms.ShareTest(roomID, conn.ClientID(), m.URL, m.Title, m.Questions)
	if !ok {
		return
	}

	r.broadcastRoomState(snap)
}

func (r *Router) broadcastRoomState(snap store.RoomSnapshot) {
	frame := types.NewRoomState(snap.RoomID, snap.Members, snap.Test, snap.Chat)
	for _, member := range snap.Members {
		if conn, ok := r.registry.Lookup(types.RoleUser, member); ok {
			r.send(conn, frame)
		}
	}
}

func (r *Router) roomConns(roomID string) []interfaces.Conn {
	var conns []interfaces.Conn
	for _, member := range r.rooms.Members(roomID) {
		if conn, ok := r.registry.Lookup(types.RoleUser, member); ok {
			conns = append(conns, conn)
		}
	}
	return conns
}
