package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hamsternav/hamsternav/internal/core"
	"github.com/hamsternav/hamsternav/internal/core/db"
)

type createWebsiteRequest struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	IsPublic    *bool    `json:"isPublic"`
}

type updateWebsiteRequest struct {
	Title       *string   `json:"title"`
	URL         *string   `json:"url"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Tags        *[]string `json:"tags"`
	IsPublic    *bool     `json:"isPublic"`
}

func (ws *Server) handleCreateWebsite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req createWebsiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	rawURL, err := normalizeWebsiteURL(req.URL)
	if err != nil {
		respondError(c, err, "failed to create website")
		return
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}
	w, err := ws.db.CreateWebsite(db.Website{
		Title:       req.Title,
		URL:         rawURL,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		Creator:     db.UserRef{ID: userID},
		IsPublic:    isPublic,
	})
	if err != nil {
		respondError(c, err, "failed to create website")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "website created", "website": newWebsiteView(w)})
}

// normalizeWebsiteURL adds a missing scheme, so "www.baidu.com" is stored and
// checked for duplicates as "http://www.baidu.com". Blank input is passed
// through for the store to reject or ignore.
func normalizeWebsiteURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return raw, nil
	}
	u, err := core.NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (ws *Server) handleListWebsites(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		badRequest(c, "invalid page")
		return
	}
	limit, err := queryInt(c, "limit", db.DefaultPageLimit)
	if err != nil {
		badRequest(c, "invalid limit")
		return
	}

	result, err := ws.db.ListWebsites(db.WebsiteQuery{
		Category: c.Query("category"),
		Tag:      c.Query("tag"),
		Search:   c.Query("search"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		respondError(c, err, "failed to list websites")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"websites": newWebsiteViews(result.Websites),
		"pagination": paginationView{
			Total: result.Total,
			Page:  result.Page,
			Limit: result.Limit,
			Pages: result.Pages,
		},
	})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (ws *Server) handleGetWebsite(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := ws.db.IncrementViews(id); err != nil {
		respondError(c, err, "failed to get website")
		return
	}
	w, err := ws.db.GetWebsite(id)
	if err != nil {
		respondError(c, err, "failed to get website")
		return
	}
	c.JSON(http.StatusOK, newWebsiteView(w))
}

func (ws *Server) handleUpdateWebsite(c *gin.Context) {
	current, ok := ws.ownedWebsite(c)
	if !ok {
		return
	}
	var req updateWebsiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.URL != nil {
		rawURL, err := normalizeWebsiteURL(*req.URL)
		if err != nil {
			respondError(c, err, "failed to update website")
			return
		}
		req.URL = &rawURL
	}

	w, err := ws.db.UpdateWebsite(current.ID, db.WebsiteUpdate{
		Title:       req.Title,
		URL:         req.URL,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		respondError(c, err, "failed to update website")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "website updated", "website": newWebsiteView(w)})
}

func (ws *Server) handleDeleteWebsite(c *gin.Context) {
	current, ok := ws.ownedWebsite(c)
	if !ok {
		return
	}
	if err := ws.db.DeleteWebsite(current.ID); err != nil {
		respondError(c, err, "failed to delete website")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "website deleted"})
}

// handleRefreshImages re-fetches the images of a website synchronously.
func (ws *Server) handleRefreshImages(c *gin.Context) {
	if ws.fetcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "image fetching is disabled"})
		return
	}
	current, ok := ws.ownedWebsite(c)
	if !ok {
		return
	}
	updated, err := core.FetchAndPersist(c.Request.Context(), ws.db, ws.fetcher, current)
	if err != nil {
		respondError(c, err, "failed to refresh images")
		return
	}
	w, err := ws.db.GetWebsite(current.ID)
	if err != nil {
		respondError(c, err, "failed to get website")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated, "website": newWebsiteView(w)})
}

func (ws *Server) handleListCollection(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	websites, err := ws.db.ListCollection(userID)
	if err != nil {
		respondError(c, err, "failed to list collection")
		return
	}
	c.JSON(http.StatusOK, gin.H{"websites": newWebsiteViews(websites)})
}
