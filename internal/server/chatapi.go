package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kvistad/parley/internal/models"
	"github.com/kvistad/parley/internal/wire"
)

// toWire converts a persisted message to its wire shape. SenderName carries
// the sender's username so the client can label toasts and log entries
// without another lookup.
func toWire(m models.ChatMessage) wire.Message {
	return wire.Message{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		SenderName:  m.Sender.Username,
		Content:     m.Body,
		Timestamp:   m.CreatedAt,
	}
}

// handleHistory returns the full two-way timeline between the authenticated
// user and the counterpart, ascending by persistence time.
func (s *server) handleHistory(c *gin.Context) {
	counterpartID, err := strconv.ParseUint(c.Param("counterpartID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid counterpart id"})
		return
	}
	me := currentUser(c)

	var rows []models.ChatMessage
	err = s.db.
		Preload("Sender").
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			me.ID, counterpartID, counterpartID, me.ID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "history lookup failed"})
		return
	}

	msgs := make([]wire.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, toWire(row))
	}
	c.JSON(http.StatusOK, msgs)
}

// handleCustomers lists the selectable customer directory for the agent.
func (s *server) handleCustomers(c *gin.Context) {
	var customers []models.User
	err := s.db.
		Where("role = ?", models.RoleCustomer).
		Order("username ASC").
		Find(&customers).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "customer lookup failed"})
		return
	}

	out := make([]gin.H, 0, len(customers))
	for _, u := range customers {
		out = append(out, gin.H{
			"id":          u.ID,
			"username":    u.Username,
			"displayName": u.DisplayName,
		})
	}
	c.JSON(http.StatusOK, out)
}

// handleAgent returns the deployment's well-known support agent, the
// implicit counterpart of every customer conversation.
func (s *server) handleAgent(c *gin.Context) {
	var agent models.User
	if err := s.db.Where("role = ?", models.RoleAgent).First(&agent).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "no agent account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          agent.ID,
		"username":    agent.Username,
		"displayName": agent.DisplayName,
	})
}
