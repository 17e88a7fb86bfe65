package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"attach_server/server/attachments/domain"
	"attach_server/server/attachments/permission"
	"attach_server/server/attachments/registry"
	"attach_server/server/attachments/repository"
	"attach_server/server/attachments/service"
	"attach_server/server/attachments/validate"
	commonauth "attach_server/server/common/auth"
	commonlog "attach_server/server/common/log"
	"attach_server/server/common/middleware"
	"attach_server/server/common/transport/httpresp"
)

type attachmentStore interface {
	OwnerExists(ctx context.Context, model *registry.Model, ownerID string) (bool, error)
	List(ctx context.Context, model *registry.Model, ownerID string) ([]domain.Attachment, error)
	Count(ctx context.Context, model *registry.Model, ownerID string) (int64, error)
	Get(ctx context.Context, model *registry.Model, ownerID, id string) (domain.Attachment, error)
	Upload(ctx context.Context, model *registry.Model, ownerID string, p domain.Principal, fh *multipart.FileHeader) (domain.Attachment, error)
	Replace(ctx context.Context, model *registry.Model, existing domain.Attachment, fh *multipart.FileHeader) (domain.Attachment, error)
	Delete(ctx context.Context, model *registry.Model, att domain.Attachment) error
	PresignDownload(ctx context.Context, att domain.Attachment) (string, error)
	Open(ctx context.Context, att domain.Attachment) (io.ReadCloser, error)
}

type principalAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (domain.Principal, error)
}

type Handler struct {
	store      attachmentStore
	principals principalAuthenticator
	auth       *commonauth.Service
	registry   *registry.Registry
	hub        *service.Hub
}

func NewHandler(store attachmentStore, principals principalAuthenticator, auth *commonauth.Service, reg *registry.Registry, hub *service.Hub) *Handler {
	return &Handler{store: store, principals: principals, auth: auth, registry: reg, hub: hub}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/api/v1/auth/login", h.login)

	api := r.Group("/api/v1/attachments")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.GET("/:owner_type/:owner_id", h.list)
		api.POST("/:owner_type/:owner_id", h.upload)
		api.GET("/:owner_type/:owner_id/count", h.count)
		api.GET("/:owner_type/:owner_id/files/:id/download", h.download)
		api.PUT("/:owner_type/:owner_id/files/:id", h.replace)
		api.DELETE("/:owner_type/:owner_id/files/:id", h.remove)
	}

	r.GET("/ws/attachments/:owner_type/:owner_id", h.events)
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	principal, err := h.principals.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidCredentials))
		return
	}
	token, err := h.auth.GenerateToken(principal.ID, principal.Username, principal.Perms)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, httpresp.NewTokenResponse(token, principal.ID, principal.Username, principal.Perms))
}

func (h *Handler) list(c *gin.Context) {
	model, owner, principal, ok := h.resolve(c)
	if !ok {
		return
	}
	if !model.Policy.CanView(principal, owner) {
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
		return
	}
	items, err := h.store.List(c.Request.Context(), model, owner.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) count(c *gin.Context) {
	model, owner, principal, ok := h.resolve(c)
	if !ok {
		return
	}
	if !model.Policy.CanView(principal, owner) {
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
		return
	}
	count, err := h.store.Count(c.Request.Context(), model, owner.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, httpresp.NewCountResponse(count))
}

func (h *Handler) upload(c *gin.Context) {
	model, owner, principal, ok := h.resolve(c)
	if !ok {
		return
	}
	if !model.Policy.CanAdd(principal, owner) {
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrFileRequired))
		return
	}
	att, err := h.store.Upload(c.Request.Context(), model, owner.ID, principal, fh)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, att)
}

func (h *Handler) replace(c *gin.Context) {
	model, owner, principal, ok := h.resolve(c)
	if !ok {
		return
	}
	att, ok := h.attachment(c, model, owner.ID)
	if !ok {
		return
	}
	if !permission.AllowsChange(model.Policy, principal, owner, att) {
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrFileRequired))
		return
	}
	updated, err := h.store.Replace(c.Request.Context(), model, att, fh)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) remove(c *gin.Context) {
	model, owner, principal, ok := h.resolve(c)
	if !ok {
		return
	}
	att, ok := h.attachment(c, model, owner.ID)
	if !ok {
		return
	}
	if !permission.AllowsDelete(model.Policy, principal, owner, att) {
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
		return
	}
	if err := h.store.Delete(c.Request.Context(), model, att); err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) download(c *gin.Context) {
	model, owner, principal, ok := h.resolve(c)
	if !ok {
		return
	}
	if !model.Policy.CanView(principal, owner) {
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
		return
	}
	att, ok := h.attachment(c, model, owner.ID)
	if !ok {
		return
	}

	if c.Query("presign") == "1" || c.Query("redirect") == "1" {
		u, err := h.store.PresignDownload(c.Request.Context(), att)
		if err != nil {
			c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
			return
		}
		if c.Query("redirect") == "1" {
			c.Redirect(http.StatusFound, u)
			return
		}
		c.JSON(http.StatusOK, httpresp.NewURLResponse(u))
		return
	}

	rc, err := h.store.Open(c.Request.Context(), att)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	defer rc.Close()
	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", att.Filename),
	}
	c.DataFromReader(http.StatusOK, att.SizeBytes, att.ContentType, rc, headers)
}

var errNoPrincipal = errors.New("no authenticated principal in request context")

var eventsUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// events streams created/updated/deleted notifications for one owner record.
// Browsers cannot set Authorization headers on websocket dials, so the token
// rides in the query string.
func (h *Handler) events(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	userID, username, perms, err := h.auth.ParseAuthContext(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidToken))
		return
	}
	principal := domain.Principal{ID: userID, Username: username, Perms: perms}

	model, ok := h.registry.Lookup(c.Param("owner_type"))
	if !ok {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrUnknownOwnerType))
		return
	}
	owner := domain.OwnerRef{Type: model.OwnerType, ID: c.Param("owner_id")}
	if !model.Policy.CanView(principal, owner) {
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
		return
	}
	exists, err := h.store.OwnerExists(c.Request.Context(), model, owner.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrOwnerNotFound))
		return
	}

	// The upgrader writes its own HTTP error response on failure; replying
	// again would double-write the header.
	conn, err := eventsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		commonlog.Warnf("websocket upgrade for %s/%s: %v", model.OwnerType, owner.ID, err)
		return
	}

	client := &service.WSClient{OwnerType: model.OwnerType, OwnerID: owner.ID, Conn: conn}
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	client.WriteJSON(map[string]any{
		"event":        "attachments.connected",
		"owner_type":   model.OwnerType,
		"owner_id":     owner.ID,
		"connected_at": time.Now().UTC(),
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// resolve looks up the attachment model, checks the owner record exists and
// builds the requesting principal. On failure the response is written and
// ok is false.
func (h *Handler) resolve(c *gin.Context) (*registry.Model, domain.OwnerRef, domain.Principal, bool) {
	model, ok := h.registry.Lookup(c.Param("owner_type"))
	if !ok {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrUnknownOwnerType))
		return nil, domain.OwnerRef{}, domain.Principal{}, false
	}
	principal, err := principalFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return nil, domain.OwnerRef{}, domain.Principal{}, false
	}
	owner := domain.OwnerRef{Type: model.OwnerType, ID: c.Param("owner_id")}
	exists, err := h.store.OwnerExists(c.Request.Context(), model, owner.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return nil, domain.OwnerRef{}, domain.Principal{}, false
	}
	if !exists {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrOwnerNotFound))
		return nil, domain.OwnerRef{}, domain.Principal{}, false
	}
	return model, owner, principal, true
}

func (h *Handler) attachment(c *gin.Context, model *registry.Model, ownerID string) (domain.Attachment, bool) {
	att, err := h.store.Get(c.Request.Context(), model, ownerID, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrAttachmentNotFound))
		} else {
			c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		}
		return domain.Attachment{}, false
	}
	return att, true
}

// writeStoreError maps validation failures to a 400 carrying every message;
// everything else is a 500.
func (h *Handler) writeStoreError(c *gin.Context, err error) {
	var verr *validate.Error
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, httpresp.NewValidationErrorResponse(verr.Messages))
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrAttachmentNotFound))
		return
	}
	c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
}

func principalFromContext(c *gin.Context) (domain.Principal, error) {
	rawUserID, ok := c.Get("auth_user_id")
	if !ok {
		return domain.Principal{}, errNoPrincipal
	}
	userID, ok := rawUserID.(string)
	if !ok || userID == "" {
		return domain.Principal{}, errNoPrincipal
	}
	username, _ := c.Get("auth_username")
	name, _ := username.(string)
	rawPerms, _ := c.Get("auth_perms")
	perms, _ := rawPerms.([]string)
	return domain.Principal{ID: userID, Username: name, Perms: perms}, nil
}
