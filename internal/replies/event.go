package replies

import (
	"tryonrelay/internal/telegram"
)

// Event is an inbound chat message reduced to what correlation needs.
type Event struct {
	UpdateID int64
	ChatID   int64
	// MessageID is the operator's reply message.
	MessageID int64
	// IsReply is set when the message quotes an earlier message.
	IsReply bool
	// RepliedToID is the quoted message.
	RepliedToID int64
	// RepliedToText is the caption (or text) of the quoted message.
	RepliedToText string
	// RepliedToBotID is the author id when the quoted message was sent by a
	// bot, zero otherwise.
	RepliedToBotID int64
	// RepliedToAnonymous is set when the quoted message has no author, as
	// with channel posts.
	RepliedToAnonymous bool
	// AttachmentFileID references the reply's photo; empty when none.
	AttachmentFileID string
}

// EventFromUpdate flattens a webhook update. It reports false when the
// update carries no new message (edits, callbacks, other update kinds).
func EventFromUpdate(u telegram.Update) (Event, bool) {
	msg := u.Incoming()
	if msg == nil {
		return Event{}, false
	}
	ev := Event{UpdateID: u.UpdateID, MessageID: msg.MessageID}
	if msg.Chat != nil {
		ev.ChatID = msg.Chat.ID
	}
	if fileID, ok := msg.ImageFileID(); ok {
		ev.AttachmentFileID = fileID
	}
	if quoted := msg.ReplyTo; quoted != nil {
		ev.IsReply = true
		ev.RepliedToID = quoted.MessageID
		ev.RepliedToText = quoted.Body()
		switch {
		case quoted.From == nil:
			ev.RepliedToAnonymous = true
		case quoted.From.IsBot:
			ev.RepliedToBotID = quoted.From.ID
		}
	}
	return ev, true
}
