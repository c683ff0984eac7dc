package types

import (
	"encoding/json"
	"fmt"
)

// Inbound is the closed set of messages the relay accepts over a socket.
// Decoding is strict about the type discriminator and best-effort about
// everything else; a missing required field fails the decode and the
// router drops the frame without replying.
type Inbound interface {
	inbound()
}

// HelperConnect identifies a socket as a helper.
type HelperConnect struct {
	HelperID string `json:"helperId"`
}

// StudentConnect identifies a socket as a student. Students behave exactly
// like helpers on the wire; the role differs only in the registry key.
type StudentConnect struct {
	StudentID string `json:"studentId"`
}

// FrontendConnect identifies a socket as a screenshot-sending client.
type FrontendConnect struct {
	ClientID string `json:"clientId"`
}

// AdminConnect identifies a socket as an admin.
type AdminConnect struct {
	AdminID string `json:"adminId"`
}

// SendTest carries a freshly scraped test from a helper or student.
type SendTest struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// SubmitAnswer carries one answer from an admin.
type SubmitAnswer struct {
	TestID     string `json:"testId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// RequestAnswers asks for the full answer set of the sender's own test.
type RequestAnswers struct{}

// RequestAllTests asks for a snapshot of every stored test plus answers.
type RequestAllTests struct{}

// Screenshot carries one base64-encoded PNG from a client socket.
type Screenshot struct {
	QuestionID string `json:"questionId"`
	Image      string `json:"image"`
}

// JoinRoom adds the sender to a room, creating it lazily.
type JoinRoom struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// LeaveRoom removes the sender from its room.
type LeaveRoom struct{}

// ChatSend appends to the sender's room chat log.
type ChatSend struct {
	Text string `json:"text"`
}

// ShareTest attaches a test to the sender's room.
type ShareTest struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

func (HelperConnect) inbound()   {}
func (StudentConnect) inbound()  {}
func (FrontendConnect) inbound() {}
func (AdminConnect) inbound()    {}
func (SendTest) inbound()        {}
func (SubmitAnswer) inbound()    {}
func (RequestAnswers) inbound()  {}
func (RequestAllTests) inbound() {}
func (Screenshot) inbound()      {}
func (JoinRoom) inbound()        {}
func (LeaveRoom) inbound()       {}
func (ChatSend) inbound()        {}
func (ShareTest) inbound()       {}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one JSON text frame into its Inbound variant.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case MessageTypeHelperConnect:
		var m HelperConnect
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if m.HelperID == "" {
			return nil, fmt.Errorf("%w: helperId", ErrMissingField)
		}
		return m, nil

	case MessageTypeStudentConnect:
		var m StudentConnect
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if m.StudentID == "" {
			return nil, fmt.Errorf("%w: studentId", ErrMissingField)
		}
		return m, nil

	case MessageTypeFrontendConnect:
		var m FrontendConnect
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if m.ClientID == "" {
			return nil, fmt.Errorf("%w: clientId", ErrMissingField)
		}
		return m, nil

	case MessageTypeAdminConnect:
		var m AdminConnect
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if m.AdminID == "" {
			return nil, fmt.Errorf("%w: adminId", ErrMissingField)
		}
		return m, nil

	case MessageTypeSendTest:
		var m SendTest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if len(m.Questions) == 0 {
			return nil, fmt.Errorf("%w: questions", ErrMissingField)
		}
		return m, nil

	case MessageTypeSubmitAnswer:
		var m SubmitAnswer
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if m.TestID == "" || m.QuestionID == "" {
			return nil, fmt.Errorf("%w: testId/questionId", ErrMissingField)
		}
		return m, nil

	case MessageTypeRequestAnswers:
		return RequestAnswers{}, nil

	case MessageTypeRequestAllTests:
		return RequestAllTests{}, nil

	case MessageTypeScreenshot:
		var m Screenshot
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if m.Image == "" {
			return nil, fmt.Errorf("%w: image", ErrMissingField)
		}
		return m, nil

	case MessageTypeJoinRoom:
		var m JoinRoom
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if m.RoomID == "" || m.UserID == "" {
			return nil, fmt.Errorf("%w: roomId/userId", ErrMissingField)
		}
		return m, nil

	case MessageTypeLeaveRoom:
		return LeaveRoom{}, nil

	case MessageTypeChatMessage:
		var m ChatSend
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if m.Text == "" {
			return nil, fmt.Errorf("%w: text", ErrMissingField)
		}
		return m, nil

	case MessageTypeShareTest:
		var m ShareTest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if len(m.Questions) == 0 {
			return nil, fmt.Errorf("%w: questions", ErrMissingField)
		}
		return m, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

// Outbound frames. Each carries its own type discriminator so handlers can
// hand them straight to Conn.WriteJSON.

// TestAnswers replies with the full answer set of one test.
type TestAnswers struct {
	Type    string                  `json:"type"`
	TestID  string                  `json:"testId"`
	Answers map[string]AnswerRecord `json:"answers"`
}

// NewTestAnswers builds a test_answers frame.
func NewTestAnswers(testID string, answers map[string]AnswerRecord) TestAnswers {
	return TestAnswers{Type: MessageTypeTestAnswers, TestID: testID, Answers: answers}
}

// AllTests replies with a snapshot of every stored test.
type AllTests struct {
	Type  string         `json:"type"`
	Tests []TestSnapshot `json:"tests"`
}

// NewAllTests builds an all_tests frame.
func NewAllTests(tests []TestSnapshot) AllTests {
	return AllTests{Type: MessageTypeAllTests, Tests: tests}
}

// NewTest announces a created or replaced test to admins.
type NewTest struct {
	Type string `json:"type"`
	TestSnapshot
}

// NewNewTest builds a new_test frame.
func NewNewTest(snapshot TestSnapshot) NewTest {
	return NewTest{Type: MessageTypeNewTest, TestSnapshot: snapshot}
}

// AnswerUpdate pushes one answer to the owning helper and the other admins.
type AnswerUpdate struct {
	Type       string `json:"type"`
	TestID     string `json:"testId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	AdminID    string `json:"adminId,omitempty"`
}

// NewAnswerUpdate builds an answer_update frame.
func NewAnswerUpdate(testID, questionID, answer, adminID string) AnswerUpdate {
	return AnswerUpdate{
		Type:       MessageTypeAnswerUpdate,
		TestID:     testID,
		QuestionID: questionID,
		Answer:     answer,
		AdminID:    adminID,
	}
}

// Answer carries a machine-produced answer back to the originating client.
type Answer struct {
	Type       string `json:"type"`
	QuestionID string `json:"questionId,omitempty"`
	Answer     string `json:"answer"`
}

// NewAnswer builds an answer frame.
func NewAnswer(questionID, answer string) Answer {
	return Answer{Type: MessageTypeAnswer, QuestionID: questionID, Answer: answer}
}

// HelperScreenshot forwards a saved screenshot to the matching helper when
// the machine path failed.
type HelperScreenshot struct {
	Type       string `json:"type"`
	HelperID   string `json:"helperId"`
	QuestionID string `json:"questionId,omitempty"`
	ImageURL   string `json:"imageUrl"`
}

// NewHelperScreenshot builds a new_screenshot_for_helper frame.
func NewHelperScreenshot(helperID, questionID, imageURL string) HelperScreenshot {
	return HelperScreenshot{
		Type:       MessageTypeHelperScreenshot,
		HelperID:   helperID,
		QuestionID: questionID,
		ImageURL:   imageURL,
	}
}

// RoomState is the full room snapshot broadcast to members on change.
type RoomState struct {
	Type    string        `json:"type"`
	RoomID  string        `json:"roomId"`
	Members []string      `json:"members"`
	Test    *TestSnapshot `json:"test,omitempty"`
	Chat    []ChatMessage `json:"chat"`
}

// NewRoomState builds a room_state frame.
func NewRoomState(roomID string, members []string, test *TestSnapshot, chat []ChatMessage) RoomState {
	return RoomState{
		Type:    MessageTypeRoomState,
		RoomID:  roomID,
		Members: members,
		Test:    test,
		Chat:    chat,
	}
}

// ChatBroadcast relays one chat message to room members.
type ChatBroadcast struct {
	Type string `json:"type"`
	ChatMessage
}

// NewChatBroadcast builds a chat_broadcast frame.
func NewChatBroadcast(msg ChatMessage) ChatBroadcast {
	return ChatBroadcast{Type: MessageTypeChatBroadcast, ChatMessage: msg}
}

// ErrorMessage is the generic error frame a few handlers emit.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorMessage builds an error frame.
func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: MessageTypeError, Message: message}
}
