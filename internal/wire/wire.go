// Package wire defines the message shapes and destination names shared by
// the Parley client core and the broker.
package wire

import (
	"fmt"
	"time"
)

// DestChat is the single client-to-broker destination for outbound sends.
// The broker assigns id and timestamp before delivery.
const DestChat = "app.chat"

// Inbox returns the per-identity destination where all messages addressed
// to that identity are delivered, including echoes of its own sends.
func Inbox(identityID uint) string {
	return fmt.Sprintf("user.%d.queue.messages", identityID)
}

// Message is one direct message between two identities. Outbound messages
// carry only sender, recipient and content; the broker fills in ID,
// SenderName and Timestamp before delivering to either inbox.
type Message struct {
	ID          uint      `json:"id,omitempty"`
	SenderID    uint      `json:"senderId"`
	RecipientID uint      `json:"recipientId"`
	SenderName  string    `json:"senderUsername,omitempty"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// DedupeKey identifies a message across the history and live paths. The
// stable id wins once assigned; unpersisted messages fall back to the
// (sender, recipient, timestamp, content) tuple.
func (m Message) DedupeKey() string {
	if m.ID != 0 {
		return fmt.Sprintf("id:%d", m.ID)
	}
	return fmt.Sprintf("t:%d:%d:%d:%s", m.SenderID, m.RecipientID, m.Timestamp.UnixNano(), m.Content)
}

// ConvKey is the unordered identity pair naming one two-party timeline.
type ConvKey struct {
	Low, High uint
}

// Conversation returns the key for the pair of identities, regardless of
// direction.
func Conversation(a, b uint) ConvKey {
	if a > b {
		a, b = b, a
	}
	return ConvKey{Low: a, High: b}
}

// ConversationKey returns the key of the timeline this message belongs to.
func (m Message) ConversationKey() ConvKey {
	return Conversation(m.SenderID, m.RecipientID)
}

// Between reports whether the message travels between the two identities,
// in either direction.
func (m Message) Between(a, b uint) bool {
	return m.ConversationKey() == Conversation(a, b)
}

// Frame types exchanged on the websocket channel.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSend        = "send"
	FrameMessage     = "message"
	FrameError       = "error"
)

// Frame is the JSON envelope for every websocket exchange. Which fields are
// set depends on Type: subscribe/unsubscribe carry Destination, send carries
// Destination and Message, message carries both fully populated, error
// carries Error.
type Frame struct {
	Type        string   `json:"type"`
	Destination string   `json:"destination,omitempty"`
	Message     *Message `json:"message,omitempty"`
	Error       string   `json:"error,omitempty"`
}
