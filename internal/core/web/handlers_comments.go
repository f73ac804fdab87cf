package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type addCommentRequest struct {
	Content string `json:"content"`
}

func (ws *Server) handleListComments(c *gin.Context) {
	websiteID, ok := pathID(c, "id")
	if !ok {
		return
	}
	comments, err := ws.db.ListComments(websiteID)
	if err != nil {
		respondError(c, err, "failed to list comments")
		return
	}
	views := make([]commentView, 0, len(comments))
	for _, cm := range comments {
		views = append(views, newCommentView(cm))
	}
	c.JSON(http.StatusOK, gin.H{"comments": views})
}

func (ws *Server) handleAddComment(c *gin.Context) {
	websiteID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	cm, err := ws.db.AddComment(websiteID, userID, req.Content)
	if err != nil {
		respondError(c, err, "failed to add comment")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "comment added", "comment": newCommentView(cm)})
}

func (ws *Server) handleDeleteComment(c *gin.Context) {
	websiteID, ok := pathID(c, "id")
	if !ok {
		return
	}
	commentID, ok := pathID(c, "commentId")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := ws.db.DeleteComment(websiteID, commentID, userID); err != nil {
		respondError(c, err, "failed to delete comment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "comment deleted"})
}
