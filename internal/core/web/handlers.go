package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hamsternav/hamsternav/internal/auth"
	"github.com/hamsternav/hamsternav/internal/core"
	"github.com/hamsternav/hamsternav/internal/core/db"
	"github.com/rs/zerolog/log"
)

// respondError maps domain errors to status codes. Unexpected errors are
// logged and reported as 500 with msg.
func respondError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	case errors.Is(err, db.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "permission denied"})
	case errors.Is(err, db.ErrInvalidURL), errors.Is(err, core.ErrInvalidURL),
		errors.Is(err, db.ErrInvalidInput), errors.Is(err, db.ErrDuplicateURL),
		errors.Is(err, db.ErrAlreadyLiked), errors.Is(err, db.ErrNotLiked),
		errors.Is(err, db.ErrAlreadyCollected), errors.Is(err, db.ErrNotCollected):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		_ = c.Error(err)
		log.Error().Err(err).Str("path", c.FullPath()).Str("request_id", c.GetString("request_id")).Msg(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"message": msg})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": msg})
}

// pathID parses a positive integer path parameter. It writes a 400 and
// returns false when the value is malformed.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// activeUser runs after auth.RequireAuth and rejects tokens whose user no longer exists.
func (ws *Server) activeUser(c *gin.Context) {
	id, ok := auth.GetUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}
	if _, err := ws.db.GetUser(id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "user not found"})
			return
		}
		respondError(c, err, "failed to load user")
		c.Abort()
		return
	}
	c.Next()
}

// currentUserID returns the authenticated user. Routes calling it sit behind
// auth.RequireAuth, so a missing identity is a 401.
func currentUserID(c *gin.Context) (int64, bool) {
	id, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return 0, false
	}
	return id, true
}

// ownedWebsite loads the website in the :id parameter and checks that the
// current user created it.
func (ws *Server) ownedWebsite(c *gin.Context) (db.Website, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return db.Website{}, false
	}
	userID, ok := currentUserID(c)
	if !ok {
		return db.Website{}, false
	}
	w, err := ws.db.GetWebsite(id)
	if err != nil {
		respondError(c, err, "failed to get website")
		return db.Website{}, false
	}
	if w.Creator.ID != userID {
		respondError(c, db.ErrForbidden, "")
		return db.Website{}, false
	}
	return w, true
}
