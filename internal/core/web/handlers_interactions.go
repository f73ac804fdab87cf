package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// interaction runs op for the current user and the :id website.
func (ws *Server) interaction(c *gin.Context, op func(userID, websiteID int64) error, failMsg string) (int64, int64, bool) {
	websiteID, ok := pathID(c, "id")
	if !ok {
		return 0, 0, false
	}
	userID, ok := currentUserID(c)
	if !ok {
		return 0, 0, false
	}
	if err := op(userID, websiteID); err != nil {
		respondError(c, err, failMsg)
		return 0, 0, false
	}
	return userID, websiteID, true
}

func (ws *Server) respondWebsite(c *gin.Context, websiteID int64, msg string) {
	w, err := ws.db.GetWebsite(websiteID)
	if err != nil {
		respondError(c, err, "failed to get website")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "website": newWebsiteView(w)})
}

func (ws *Server) respondUser(c *gin.Context, userID int64, msg string) {
	u, err := ws.db.GetUser(userID)
	if err != nil {
		respondError(c, err, "failed to get user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "user": newUserView(u)})
}

func (ws *Server) handleLike(c *gin.Context) {
	like := func(userID, websiteID int64) error { return ws.db.LikeWebsite(websiteID, userID) }
	if _, websiteID, ok := ws.interaction(c, like, "failed to like website"); ok {
		ws.respondWebsite(c, websiteID, "website liked")
	}
}

func (ws *Server) handleUnlike(c *gin.Context) {
	unlike := func(userID, websiteID int64) error { return ws.db.UnlikeWebsite(websiteID, userID) }
	if _, websiteID, ok := ws.interaction(c, unlike, "failed to unlike website"); ok {
		ws.respondWebsite(c, websiteID, "website unliked")
	}
}

func (ws *Server) handleCollect(c *gin.Context) {
	if userID, _, ok := ws.interaction(c, ws.db.CollectWebsite, "failed to collect website"); ok {
		ws.respondUser(c, userID, "website collected")
	}
}

func (ws *Server) handleUncollect(c *gin.Context) {
	if userID, _, ok := ws.interaction(c, ws.db.UncollectWebsite, "failed to uncollect website"); ok {
		ws.respondUser(c, userID, "website uncollected")
	}
}
