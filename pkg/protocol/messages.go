package protocol

import (
	"encoding/json"
	"strings"

	"waenhancer/internal/errors"
	"waenhancer/internal/models"
)

// MessageType discriminates requests sent to the background process.
type MessageType string

const (
	TypeGetSettings          MessageType = "getSettings"
	TypeSaveSettings         MessageType = "saveSettings"
	TypeFetchAIResponse      MessageType = "fetchAiResponse"
	TypeLogDeletedMessage    MessageType = "logDeletedMessage"
	TypeGetDeletedMessages   MessageType = "getDeletedMessages"
	TypeClearDeletedMessages MessageType = "clearDeletedMessages"
	TypeScheduleMessage      MessageType = "scheduleMessage"
	TypeGetScheduledMessages MessageType = "getScheduledMessages"
	TypeNewMessage           MessageType = "newMessage"
	TypeStatusReaction       MessageType = "statusReaction"
	TypeGetReactions         MessageType = "getReactions"
	TypeRelayCommand         MessageType = "relayCommand"
)

// IsNotification reports whether t never gets a response.
func (t MessageType) IsNotification() bool {
	return t == TypeNewMessage
}

// Request is the flat request shape shared by the websocket and HTTP transports.
type Request struct {
	ID   string      `json:"id,omitempty"`
	Type MessageType `json:"type"`

	// saveSettings: partial settings object, present keys overwrite.
	Settings map[string]json.RawMessage `json:"settings,omitempty"`

	// fetchAiResponse
	APIKey string `json:"apiKey,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model,omitempty"`

	// logDeletedMessage, newMessage
	MessageID string `json:"messageId,omitempty"`
	Text      string `json:"text,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	ChatID    string `json:"chatId,omitempty"`

	// scheduleMessage
	Data *models.ScheduledMessage `json:"data,omitempty"`

	// statusReaction
	StatusID string `json:"statusId,omitempty"`
	Emoji    string `json:"emoji,omitempty"`

	// relayCommand
	Command *Command `json:"command,omitempty"`
}

// Validate checks that the fields required by the request type are present.
func (r *Request) Validate() error {
	switch r.Type {
	case TypeGetSettings, TypeGetDeletedMessages, TypeClearDeletedMessages,
		TypeGetScheduledMessages, TypeGetReactions, TypeFetchAIResponse:
		// fetchAiResponse with an empty key is answered with a configuration error.
		return nil
	case TypeSaveSettings:
		if r.Settings == nil {
			return errors.NewValidationError("settings", "", "settings object is required")
		}
	case TypeLogDeletedMessage:
		if r.MessageID == "" {
			return errors.NewValidationError("messageId", "", "messageId is required")
		}
		if strings.TrimSpace(r.Text) == "" {
			return errors.NewValidationError("text", "", "text is required")
		}
	case TypeScheduleMessage:
		if r.Data == nil {
			return errors.NewValidationError("data", "", "data is required")
		}
	case TypeNewMessage:
		return nil
	case TypeStatusReaction:
		if r.Emoji == "" {
			return errors.NewValidationError("emoji", "", "emoji is required")
		}
	case TypeRelayCommand:
		if r.Command == nil || r.Command.Type == "" {
			return errors.NewValidationError("command", "", "command is required")
		}
	case "":
		return errors.NewValidationError("type", "", "message type is required")
	default:
		return errors.NewValidationError("type", string(r.Type), "unknown message type")
	}
	return nil
}

// Response answers a Request. Only the fields relevant to the request type are set.
type Response struct {
	ID          string                            `json:"id,omitempty"`
	Success     bool                              `json:"success"`
	Settings    *models.Settings                  `json:"settings,omitempty"`
	Response    string                            `json:"response,omitempty"`
	Messages    map[string]models.CapturedMessage `json:"messages,omitempty"`
	Scheduled   []models.ScheduledMessage         `json:"scheduled,omitempty"`
	Reactions   map[string]string                 `json:"reactions,omitempty"`
	Removed     int64                             `json:"removed,omitempty"`
	Error       string                            `json:"error,omitempty"`
	ErrorCode   string                            `json:"errorCode,omitempty"`
	RawResponse string                            `json:"rawResponse,omitempty"`
}

// OK returns an empty successful response.
func OK() *Response {
	return &Response{Success: true}
}

// Failure builds an unsuccessful response from err.
func Failure(err error) *Response {
	resp := &Response{
		Success:   false,
		ErrorCode: string(errors.GetCode(err)),
	}
	if appErr, ok := errors.As(err); ok {
		resp.Error = appErr.Message
		if appErr.UserMessage != "" {
			resp.Error = appErr.UserMessage
		}
		if len(appErr.Raw) > 0 {
			resp.RawResponse = string(appErr.Raw)
		}
	} else {
		resp.Error = err.Error()
	}
	return resp
}

// Err turns an unsuccessful response back into an error.
func (r *Response) Err() error {
	if r == nil || r.Success {
		return nil
	}
	code := errors.ErrorCode(r.ErrorCode)
	if code == "" {
		code = errors.ErrCodeInternalError
	}
	appErr := errors.New(code, r.Error).WithUserMessage(r.Error)
	if r.RawResponse != "" {
		appErr.WithRaw([]byte(r.RawResponse))
	}
	return appErr
}

// CommandType discriminates commands sent from the background process to a monitor.
type CommandType string

const (
	CmdSendScheduledMessage CommandType = "sendScheduledMessage"
	CmdSendAutoReply        CommandType = "sendAutoReply"
	CmdToggleFeature        CommandType = "toggleFeature"
	CmdBackupChats          CommandType = "backupChats"
	CmdAICompose            CommandType = "aiCompose"
	CmdReactToStatus        CommandType = "reactToStatus"
	CmdDownloadStatus       CommandType = "downloadStatus"
)

// Command is a fire-and-forget instruction for the page monitor.
type Command struct {
	Type     CommandType              `json:"type"`
	Message  *models.ScheduledMessage `json:"message,omitempty"`
	Reply    string                   `json:"reply,omitempty"`
	Feature  string                   `json:"feature,omitempty"`
	Enabled  *bool                    `json:"enabled,omitempty"`
	StatusID string                   `json:"statusId,omitempty"`
	Emoji    string                   `json:"emoji,omitempty"`
}

// FrameKind tags what a websocket frame carries.
type FrameKind string

const (
	KindRequest  FrameKind = "request"
	KindResponse FrameKind = "response"
	KindCommand  FrameKind = "command"
)

// Frame is the websocket envelope.
type Frame struct {
	Kind     FrameKind `json:"kind"`
	Request  *Request  `json:"request,omitempty"`
	Response *Response `json:"response,omitempty"`
	Command  *Command  `json:"command,omitempty"`
}
