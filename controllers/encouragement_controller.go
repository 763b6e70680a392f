package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/danz-app/danz/services"
	"github.com/danz-app/danz/utils"
)

// EncouragementController sends and lists nudges between party members.
type EncouragementController struct {
	enc *services.EncouragementService
}

// NewEncouragementController creates a new EncouragementController instance.
func NewEncouragementController(enc *services.EncouragementService) *EncouragementController {
	return &EncouragementController{enc: enc}
}

// Send delivers an encouragement to another member of the party.
func (e *EncouragementController) Send(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	partyID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	var req services.SendInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	req.FromUserID = userID
	req.PartyID = partyID
	msg, err := e.enc.Send(ctx.Request.Context(), req)
	if err != nil {
		respondServiceError(ctx, err, 50060, "failed to send encouragement")
		return
	}
	utils.Created(ctx, msg)
}

// Inbox pages through the caller's messages; ?unread=true filters read ones out.
func (e *EncouragementController) Inbox(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	unread := ctx.Query("unread") == "true" || ctx.Query("unread") == "1"
	msgs, total, err := e.enc.Inbox(ctx.Request.Context(), userID, unread, page, pageSize)
	if err != nil {
		respondServiceError(ctx, err, 50061, "failed to load messages")
		return
	}
	utils.Success(ctx, gin.H{
		"items":      msgs,
		"pagination": pagination(page, pageSize, total),
	})
}

// MarkRead flags a message as read.
func (e *EncouragementController) MarkRead(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	msgID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	if err := e.enc.MarkRead(ctx.Request.Context(), userID, msgID); err != nil {
		respondServiceError(ctx, err, 50062, "failed to update message")
		return
	}
	utils.Success(ctx, gin.H{"message": "marked as read"})
}
