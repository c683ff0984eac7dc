package router

import (
	"context"
	"encoding/base64"
	"strings"

	"go.uber.org/zap"

	"quizrelay/internal/metrics"
	"quizrelay/internal/screenshot"
	"quizrelay/internal/store"
	"quizrelay/internal/websocket"
	"quizrelay/pkg/interfaces"
	"quizrelay/pkg/types"
)

// VisionResult carries the outcome of one external describer call back into
// the serialized message loop.
type VisionResult struct {
	ClientID   string
	QuestionID string
	Ref        types.ScreenshotRef
	Answer     string
	Err        error
}

// VisionSink re-enqueues describer outcomes for serialized handling.
// Implemented by the hub.
type VisionSink interface {
	SubmitVisionResult(result VisionResult)
}

// Router dispatches decoded frames to their handlers. It runs on the hub's
// single goroutine, so handlers execute one at a time and the store and
// registry are never mid-mutation when the next frame arrives. The only
// suspension point, the describer call, happens on a separate goroutine with
// all mutations strictly before it (save image, index) or strictly after
// (deliver answer or fall back).
type Router struct {
	registry *websocket.Registry
	store    *store.Store
	rooms    *store.Rooms
	shots    *screenshot.Store
	vision   interfaces.Describer // nil disables the machine path
	sink     VisionSink

	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewRouter creates a router over the given state. A nil describer sends
// every screenshot straight to the human path.
func NewRouter(
	registry *websocket.Registry,
	testStore *store.Store,
	rooms *store.Rooms,
	shots *screenshot.Store,
	vision interfaces.Describer,
	log *zap.Logger,
	m *metrics.Metrics,
) *Router {
	return &Router{
		registry: registry,
		store:    testStore,
		rooms:    rooms,
		shots:    shots,
		vision:   vision,
		log:      log,
		metrics:  m,
	}
}

// SetVisionSink wires the hub in after construction; hub and router
// reference each other.
func (r *Router) SetVisionSink(sink VisionSink) {
	r.sink = sink
}

// Route decodes one text frame and dispatches it. Malformed frames, unknown
// types and role-precondition failures are dropped without a reply.
func (r *Router) Route(conn interfaces.Conn, data []byte) {
	msg, err := types.Decode(data)
	if err != nil {
		r.drop(conn, "decode", err)
		return
	}

	switch m := msg.(type) {
	case types.HelperConnect:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeHelperConnect).Inc()
		r.handleConnect(conn, types.RoleHelper, m.HelperID, true)
	case types.StudentConnect:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeStudentConnect).Inc()
		r.handleConnect(conn, types.RoleStudent, m.StudentID, true)
	case types.FrontendConnect:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeFrontendConnect).Inc()
		r.handleConnect(conn, types.RoleClient, m.ClientID, false)
	case types.AdminConnect:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeAdminConnect).Inc()
		r.handleAdminConnect(conn, m)
	case types.SendTest:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeSendTest).Inc()
		r.handleSendTest(conn, m)
	case types.SubmitAnswer:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeSubmitAnswer).Inc()
		r.handleSubmitAnswer(conn, m)
	case types.RequestAnswers:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeRequestAnswers).Inc()
		r.handleRequestAnswers(conn)
	case types.RequestAllTests:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeRequestAllTests).Inc()
		r.handleRequestAllTests(conn)
	case types.Screenshot:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeScreenshot).Inc()
		r.handleScreenshot(conn, m)
	case types.JoinRoom:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeJoinRoom).Inc()
		r.handleJoinRoom(conn, m)
	case types.LeaveRoom:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeLeaveRoom).Inc()
		r.handleLeaveRoom(conn)
	case types.ChatSend:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeChatMessage).Inc()
		r.handleChat(conn, m)
	case types.ShareTest:
		r.metrics.MessagesRouted.WithLabelValues(types.MessageTypeShareTest).Inc()
		r.handleShareTest(conn, m)
	}
}

// Disconnect cleans up after a closed socket: registry removal and, for room
// users, membership. Membership is keyed by user id while close events are
// per socket, so a replaced socket's late close must not evict the
// replacement; only the currently registered socket leaves the room.
func (r *Router) Disconnect(conn interfaces.Conn) {
	if conn.Role() == types.RoleUser {
		if roomID := conn.RoomID(); roomID != "" && r.ownsIdentity(conn) {
			if snap, ok := r.rooms.Leave(roomID, conn.ClientID()); ok {
				r.broadcastRoomState(snap)
			}
		}
	}

	r.registry.Unregister(conn)
}

// ownsIdentity reports whether conn is still the registered socket for its
// (role, id), mirroring the registry's own stale-unregister guard.
func (r *Router) ownsIdentity(conn interfaces.Conn) bool {
	current, ok := r.registry.Lookup(conn.Role(), conn.ClientID())
	return !ok || current == conn
}

// handleConnect identifies a socket and, for helper-like roles, replays any
// previously stored answers so a reconnecting page can restore its overlay.
func (r *Router) handleConnect(conn interfaces.Conn, role, id string, replayAnswers bool) {
	if err := conn.SetIdentity(role, id); err != nil {
		r.drop(conn, "connect", err)
		return
	}
	if err := r.registry.Register(conn); err != nil {
		r.drop(conn, "register", err)
		return
	}

	r.log.Info("socket identified",
		zap.String("role", role),
		zap.String("id", id))

	if !replayAnswers {
		return
	}

	testID, answers, ok := r.store.AnswersByOwner(id)
	if !ok {
		return
	}
	r.send(conn, types.NewTestAnswers(testID, answers))
}

// handleAdminConnect identifies an admin and replies with the full snapshot
// of all known tests.
func (r *Router) handleAdminConnect(conn interfaces.Conn, m types.AdminConnect) {
	if err := conn.SetIdentity(types.RoleAdmin, m.AdminID); err != nil {
		r.drop(conn, "connect", err)
		return
	}
	if err := r.registry.Register(conn); err != nil {
		r.drop(conn, "register", err)
		return
	}

	r.log.Info("admin identified", zap.String("id", m.AdminID))
	r.send(conn, types.NewAllTests(r.store.Snapshots()))
}

// handleSendTest stores or replaces the sender's one test and announces it
// to every admin.
func (r *Router) handleSendTest(conn interfaces.Conn, m types.SendTest) {
	if conn.Role() != types.RoleHelper && conn.Role() != types.RoleStudent {
		r.dropRole(conn, types.MessageTypeSendTest)
		return
	}

	snapshot := r.store.SaveTest(conn.ClientID(), m.URL, m.Title, m.Questions)

	frame := types.NewNewTest(snapshot)
	for _, admin := range r.registry.Role(types.RoleAdmin) {
		r.send(admin, frame)
	}
}

// handleSubmitAnswer records an admin's answer, pushes it to the owning
// helper if connected, and mirrors it to the other admins.
func (r *Router) handleSubmitAnswer(conn interfaces.Conn, m types.SubmitAnswer) {
	if conn.Role() != types.RoleAdmin {
		r.dropRole(conn, types.MessageTypeSubmitAnswer)
		return
	}

	ownerID, ok := r.store.SubmitAnswer(m.TestID, m.QuestionID, m.Answer, conn.ClientID())
	if !ok {
		r.log.Debug("answer for unknown test", zap.String("testId", m.TestID))
		return
	}

	if owner, found := r.lookupOwner(ownerID); found {
		r.send(owner, types.NewAnswerUpdate(m.TestID, m.QuestionID, m.Answer, ""))
	} else {
		r.log.Debug("test owner not connected", zap.String("ownerId", ownerID))
	}

	update := types.NewAnswerUpdate(m.TestID, m.QuestionID, m.Answer, conn.ClientID())
	for _, admin := range r.registry.Role(types.RoleAdmin) {
		if admin == conn {
			continue
		}
		r.send(admin, update)
	}
}

// handleRequestAnswers replies with the sender's full current answer set.
func (r *Router) handleRequestAnswers(conn interfaces.Conn) {
	if conn.Role() != types.RoleHelper && conn.Role() != types.RoleStudent {
		r.dropRole(conn, types.MessageTypeRequestAnswers)
		return
	}

	testID, answers, ok := r.store.AnswersByOwner(conn.ClientID())
	if !ok {
		return
	}
	r.send(conn, types.NewTestAnswers(testID, answers))
}

// handleRequestAllTests replies with a snapshot of every stored test.
func (r *Router) handleRequestAllTests(conn interfaces.Conn) {
	if conn.Role() != types.RoleAdmin {
		r.dropRole(conn, types.MessageTypeRequestAllTests)
		return
	}

	r.send(conn, types.NewAllTests(r.store.Snapshots()))
}

// handleScreenshot saves the image, then tries the machine path on a
// separate goroutine. All state mutations happen before the call starts;
// delivery happens when the result re-enters the loop.
func (r *Router) handleScreenshot(conn interfaces.Conn, m types.Screenshot) {
	if conn.Role() != types.RoleClient {
		r.dropRole(conn, types.MessageTypeScreenshot)
		return
	}

	data, err := decodeImage(m.Image)
	if err != nil {
		// One of the few handlers that echoes an error frame: the client
		// produced the payload and can re-capture.
		r.send(conn, types.NewErrorMessage("invalid screenshot payload"))
		r.drop(conn, "screenshot decode", err)
		return
	}

	clientID := conn.ClientID()
	ref, err := r.shots.Save(clientID, m.QuestionID, data)
	if err != nil {
		r.log.Warn("screenshot save failed",
			zap.String("clientId", clientID),
			zap.Error(err))
		return
	}

	if r.vision == nil {
		r.fallbackToHelper(clientID, m.QuestionID, ref)
		return
	}

	go func() {
		answer, err := r.vision.Describe(context.Background(), data)
		r.sink.SubmitVisionResult(VisionResult{
			ClientID:   clientID,
			QuestionID: m.QuestionID,
			Ref:        ref,
			Answer:     answer,
			Err:        err,
		})
	}()
}

// HandleVisionResult delivers a machine answer to the originating client or
// falls back to forwarding the image reference to the matching helper.
func (r *Router) HandleVisionResult(result VisionResult) {
	if result.Err == nil {
		if client, ok := r.registry.Lookup(types.RoleClient, result.ClientID); ok {
			r.send(client, types.NewAnswer(result.QuestionID, result.Answer))
		} else {
			r.log.Debug("client gone before answer arrived",
				zap.String("clientId", result.ClientID))
		}
		return
	}

	r.metrics.VisionFailures.Inc()
	r.log.Info("describer failed, falling back to helper",
		zap.String("clientId", result.ClientID),
		zap.Error(result.Err))
	r.fallbackToHelper(result.ClientID, result.QuestionID, result.Ref)
}

// fallbackToHelper forwards the saved image to the helper sharing the
// client's id. A missing helper is a silent no-op.
func (r *Router) fallbackToHelper(clientID, questionID string, ref types.ScreenshotRef) {
	helper, ok := r.registry.Lookup(types.RoleHelper, clientID)
	if !ok {
		r.log.Debug("no helper for screenshot fallback", zap.String("clientId", clientID))
		return
	}
	r.send(helper, types.NewHelperScreenshot(clientID, questionID, ref.ImageURL))
}

// lookupOwner finds the socket owning a test; owners register as helpers or
// students.
func (r *Router) lookupOwner(ownerID string) (interfaces.Conn, bool) {
	if conn, ok := r.registry.Lookup(types.RoleHelper, ownerID); ok {
		return conn, true
	}
	return r.registry.Lookup(types.RoleStudent, ownerID)
}

func (r *Router) send(conn interfaces.Conn, frame interface{}) {
	if err := conn.WriteJSON(frame); err != nil {
		r.log.Debug("delivery failed",
			zap.String("role", conn.Role()),
			zap.String("id", conn.ClientID()),
			zap.Error(err))
	}
}

func (r *Router) drop(conn interfaces.Conn, stage string, err error) {
	r.metrics.MessagesDropped.Inc()
	r.log.Debug("frame dropped",
		zap.String("stage", stage),
		zap.String("role", conn.Role()),
		zap.String("id", conn.ClientID()),
		zap.Error(err))
}

func (r *Router) dropRole(conn interfaces.Conn, messageType string) {
	r.metrics.MessagesDropped.Inc()
	r.log.Debug("frame dropped: role precondition",
		zap.String("type", messageType),
		zap.String("role", conn.Role()))
}

// decodeImage accepts both a bare base64 string and a data URL.
func decodeImage(payload string) ([]byte, error) {
	if idx := strings.Index(payload, ","); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+1:]
	}
	return base64.StdEncoding.DecodeString(payload)
}
