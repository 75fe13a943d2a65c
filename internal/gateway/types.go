package gateway

// Contact is a WhatsApp contact as reported by the gateway.
type Contact struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	PushName string `json:"pushname,omitempty"`
	Number   string `json:"number,omitempty"`
	IsMe     bool   `json:"isMe,omitempty"`
	IsGroup  bool   `json:"isGroup,omitempty"`
}

// Group is a WhatsApp group chat.
type Group struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
}

// Participant is a member of a group chat.
type Participant struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// Session describes the state of a gateway session.
type Session struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Session status values reported by the gateway.
const (
	SessionWorking  = "WORKING"
	SessionStarting = "STARTING"
	SessionStopped  = "STOPPED"
	SessionFailed   = "FAILED"
	SessionScanQR   = "SCAN_QR_CODE"
)

// Webhook event types delivered by the gateway.
const (
	EventMessage       = "message"
	EventMessageAny    = "message.any"
	EventSessionStatus = "session.status"
)

// WebhookEvent is the envelope the gateway posts to the webhook endpoint.
type WebhookEvent struct {
	ID      string         `json:"id"`
	Event   string         `json:"event"`
	Session string         `json:"session"`
	Payload MessagePayload `json:"payload"`
}

// MessagePayload is the payload of message and message.any events. For
// session.status events only Status is populated.
type MessagePayload struct {
	ID           string     `json:"id"`
	Timestamp    int64      `json:"timestamp"`
	From         string     `json:"from"`
	FromMe       bool       `json:"fromMe"`
	To           string     `json:"to"`
	Participant  string     `json:"participant,omitempty"`
	Body         string     `json:"body"`
	HasMedia     bool       `json:"hasMedia"`
	Media        *MediaInfo `json:"media,omitempty"`
	MentionedIDs []string   `json:"mentionedIds,omitempty"`
	Status       string     `json:"status,omitempty"`
}

// MediaInfo describes an attachment on a media message.
type MediaInfo struct {
	URL      string `json:"url"`
	Mimetype string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
}

// sendTextRequest is the body of POST /api/sendText.
type sendTextRequest struct {
	Session string `json:"session"`
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// chatRequest is the body of sendSeen and typing endpoints.
type chatRequest struct {
	Session string `json:"session"`
	ChatID  string `json:"chatId"`
}

// existsResponse is the body of GET /api/contacts/check-exists.
type existsResponse struct {
	NumberExists bool   `json:"numberExists"`
	ChatID       string `json:"chatId,omitempty"`
}
