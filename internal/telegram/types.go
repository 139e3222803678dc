package telegram

import "strings"

// Update is the subset of a Bot API update the relay consumes.
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message,omitempty"`
	EditedMessage *Message `json:"edited_message,omitempty"`
	ChannelPost   *Message `json:"channel_post,omitempty"`
}

// Incoming returns the message carried by the update, preferring new
// messages over channel posts. Edits are not treated as new replies.
func (u Update) Incoming() *Message {
	if u.Message != nil {
		return u.Message
	}
	return u.ChannelPost
}

type Message struct {
	MessageID int64 `json:"message_id"`
	Date      int64 `json:"date,omitempty"`
	Chat      *Chat `json:"chat,omitempty"`
	From      *User `json:"from,omitempty"`
	// SenderChat is set instead of From for channel posts.
	SenderChat *Chat       `json:"sender_chat,omitempty"`
	ReplyTo    *Message    `json:"reply_to_message,omitempty"`
	Text       string      `json:"text,omitempty"`
	Caption    string      `json:"caption,omitempty"`
	Document   *Document   `json:"document,omitempty"`
	Photo      []PhotoSize `json:"photo,omitempty"`
}

// Body returns the caption of a media message or the text of a plain one.
func (m *Message) Body() string {
	if m == nil {
		return ""
	}
	if m.Caption != "" {
		return m.Caption
	}
	return m.Text
}

// LargestPhoto returns the highest-resolution photo size, if any.
func (m *Message) LargestPhoto() (PhotoSize, bool) {
	if m == nil || len(m.Photo) == 0 {
		return PhotoSize{}, false
	}
	best := m.Photo[0]
	for _, p := range m.Photo[1:] {
		if p.Width*p.Height > best.Width*best.Height ||
			(p.Width*p.Height == best.Width*best.Height && p.FileSize > best.FileSize) {
			best = p
		}
	}
	return best, true
}

// ImageFileID returns the file id of the image attached to m: the largest
// photo size, or a document whose MIME type is an image.
func (m *Message) ImageFileID() (string, bool) {
	if p, ok := m.LargestPhoto(); ok && p.FileID != "" {
		return p.FileID, true
	}
	if m != nil && m.Document != nil && m.Document.FileID != "" &&
		strings.HasPrefix(strings.ToLower(m.Document.MimeType), "image/") {
		return m.Document.FileID, true
	}
	return "", false
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type File struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// WebhookInfo mirrors getWebhookInfo.
type WebhookInfo struct {
	URL                  string   `json:"url"`
	HasCustomCertificate bool     `json:"has_custom_certificate"`
	PendingUpdateCount   int      `json:"pending_update_count"`
	LastErrorDate        int64    `json:"last_error_date,omitempty"`
	LastErrorMessage     string   `json:"last_error_message,omitempty"`
	MaxConnections       int      `json:"max_connections,omitempty"`
	AllowedUpdates       []string `json:"allowed_updates,omitempty"`
}

// WebhookConfig is the payload for setWebhook.
type WebhookConfig struct {
	URL                string   `json:"url"`
	SecretToken        string   `json:"secret_token,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
	DropPendingUpdates bool     `json:"drop_pending_updates,omitempty"`
}
