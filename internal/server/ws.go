package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kvistad/parley/internal/models"
	"github.com/kvistad/parley/internal/wire"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// handleWS authenticates and upgrades a websocket attachment, then serves
// its frame loop until the peer disconnects. The credential arrives in the
// Authorization header or, for browser clients, the token query parameter;
// a bad credential is refused with 401 before the upgrade so the client can
// tell a rejected handshake from a transport loss.
func (s *server) handleWS(c *gin.Context) {
	tokenStr := bearerToken(c)
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
		return
	}
	user, err := s.parseToken(tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return // Accept already wrote the error response
	}

	cl := s.hub.Add(user.ID, conn)
	defer s.hub.Remove(cl)

	s.serveFrames(c.Request.Context(), cl, user, conn)
}

// serveFrames reads frames from one attachment until the connection drops.
func (s *server) serveFrames(ctx context.Context, cl *client, user *models.User, conn *websocket.Conn) {
	for {
		var f wire.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return
		}

		switch f.Type {
		case wire.FrameSubscribe:
			if f.Destination != "" {
				s.hub.Subscribe(cl, f.Destination)
			}
		case wire.FrameUnsubscribe:
			if f.Destination != "" {
				s.hub.Unsubscribe(cl, f.Destination)
			}
		case wire.FrameSend:
			s.handleSend(cl, user, f)
		default:
			s.hub.Reply(cl, wire.Frame{Type: wire.FrameError, Error: "unknown frame type"})
		}
	}
}

// handleSend validates and persists an outbound message, then delivers it
// to the recipient's inbox and echoes it to the sender's own inbox. The echo
// is what the sending client displays; nothing is shown optimistically.
func (s *server) handleSend(cl *client, user *models.User, f wire.Frame) {
	reject := func(reason string) {
		s.hub.Reply(cl, wire.Frame{Type: wire.FrameError, Error: reason})
	}

	if f.Destination != wire.DestChat {
		reject("unknown destination " + f.Destination)
		return
	}
	msg := f.Message
	if msg == nil {
		reject("send frame without message")
		return
	}
	if msg.SenderID != user.ID {
		reject("sender does not match authenticated user")
		return
	}
	if strings.TrimSpace(msg.Content) == "" {
		reject("empty message")
		return
	}
	if msg.RecipientID == 0 || msg.RecipientID == user.ID || !userExists(s.db, msg.RecipientID) {
		reject("unknown recipient")
		return
	}

	row := models.ChatMessage{
		SenderID:    user.ID,
		RecipientID: msg.RecipientID,
		Body:        msg.Content,
	}
	if err := s.db.Create(&row).Error; err != nil {
		log.Printf("server: persist message from %d to %d: %v", user.ID, msg.RecipientID, err)
		reject("message not accepted")
		return
	}

	out := wire.Message{
		ID:          row.ID,
		SenderID:    user.ID,
		RecipientID: msg.RecipientID,
		SenderName:  user.Username,
		Content:     row.Body,
		Timestamp:   row.CreatedAt,
	}

	for _, id := range []uint{msg.RecipientID, user.ID} {
		dest := wire.Inbox(id)
		s.hub.Publish(dest, wire.Frame{
			Type:        wire.FrameMessage,
			Destination: dest,
			Message:     &out,
		})
	}
}
