package types

import (
	"time"
)

// Socket roles. A connection carries at most one (role, id) identity,
// claimed by its first *_connect frame.
const (
	RoleHelper  = "helper"
	RoleStudent = "student"
	RoleClient  = "client"
	RoleAdmin   = "admin"
	RoleUser    = "user" // room variant
)

// Inbound message types.
const (
	MessageTypeHelperConnect   = "helper_connect"
	MessageTypeStudentConnect  = "student_connect"
	MessageTypeFrontendConnect = "frontend_connect"
	MessageTypeAdminConnect    = "admin_connect"
	MessageTypeSendTest        = "send_test"
	MessageTypeSubmitAnswer    = "submit_answer"
	MessageTypeRequestAnswers  = "request_answers"
	MessageTypeRequestAllTests = "request_all_tests"
	MessageTypeScreenshot      = "screenshot"
	MessageTypeJoinRoom        = "join_room"
	MessageTypeLeaveRoom       = "leave_room"
	MessageTypeChatMessage     = "chat_message"
	MessageTypeShareTest       = "share_test"
)

// Outbound message types.
const (
	MessageTypeTestAnswers      = "test_answers"
	MessageTypeAllTests         = "all_tests"
	MessageTypeNewTest          = "new_test"
	MessageTypeAnswerUpdate     = "answer_update"
	MessageTypeAnswer           = "answer"
	MessageTypeHelperScreenshot = "new_screenshot_for_helper"
	MessageTypeRoomState        = "room_state"
	MessageTypeChatBroadcast    = "chat_broadcast"
	MessageTypeError            = "error"
)

// Option is one selectable answer of a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is one extracted quiz question with its ordered options.
type Question struct {
	ID          string   `json:"id"`
	DisplayText string   `json:"displayText"`
	Options     []Option `json:"options"`
}

// Test is one extracted quiz owned by a single helper or student id.
// TestID is generated at creation and immutable; Questions are replaced
// wholesale when the owner re-submits.
type Test struct {
	TestID    string     `json:"testId"`
	OwnerID   string     `json:"helperId"`
	URL       string     `json:"url"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
}

// AnswerRecord is the latest known answer for one question within one test.
// Last write wins, no versioning.
type AnswerRecord struct {
	Value       string    `json:"answer"`
	SubmittedBy string    `json:"adminId"`
	SubmittedAt time.Time `json:"timestamp"`
}

// TestSnapshot is a test together with its current answers, as sent to admins.
type TestSnapshot struct {
	Test
	Answers map[string]AnswerRecord `json:"answers"`
}

// ChatMessage is one entry of a room's bounded chat log.
type ChatMessage struct {
	ID     string    `json:"id"`
	RoomID string    `json:"roomId"`
	UserID string    `json:"userId"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

// ScreenshotRef points a helper at one saved screenshot image.
// QuestionID is best-effort: it is known only for screenshots saved during
// this process lifetime, never after a startup rescan.
type ScreenshotRef struct {
	QuestionID string `json:"questionId,omitempty"`
	ImageURL   string `json:"imageUrl"`
}
