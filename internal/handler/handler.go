// Package handler wires the attendance workflow onto gin routes.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
	"rollcall/internal/cloudinary"
	"rollcall/internal/faceclient"
	"rollcall/internal/guard"
	"rollcall/internal/identity"
	"rollcall/internal/queue"
	"rollcall/internal/session"
)

// Handler holds the dependencies behind the HTTP API.
type Handler struct {
	Sessions *session.Manager
	Identity *identity.Service
	Frames   queue.Queue
	Face     *faceclient.Client
	// CDN is nil when frame storage is not configured.
	CDN *cloudinary.Client
}

// staffRoles may open and drive attendance sessions.
var staffRoles = guard.NewRoleSet(guard.RoleTeacher, guard.RoleHOD, guard.RoleCC, guard.RoleInstitute)

// Register mounts all routes under /v1. Protected groups go through the
// access guard: 401 redirects to sign-in, 403 to the unauthorized notice.
func (h *Handler) Register(r *gin.Engine, rehydrator *guard.Rehydrator) {
	v1 := r.Group("/v1")

	v1.POST("/auth/signup", h.signUp)
	v1.POST("/auth/signin", h.signIn)

	authed := v1.Group("", auth.Require(rehydrator, nil))
	authed.GET("/me", h.me)

	sessions := v1.Group("/sessions", auth.Require(rehydrator, staffRoles))
	sessions.POST("", h.initiate)
	sessions.GET("/existing", h.existing)
	sessions.GET("/:ref", h.snapshot)
	sessions.POST("/:ref/method", h.chooseMethod)
	sessions.POST("/:ref/frames", h.uploadFrame)
	sessions.POST("/:ref/complete", h.complete)
	sessions.POST("/:ref/toggle", h.toggle)
	sessions.POST("/:ref/submit", h.submit)
	sessions.POST("/:ref/abandon", h.abandon)
	sessions.POST("/:ref/abort", h.abortCapture)
	sessions.POST("/:ref/override", h.override)

	students := v1.Group("/students", auth.Require(rehydrator, staffRoles))
	students.POST("/:id/face", h.enrollFace)

	checkins := v1.Group("/checkins", auth.Require(rehydrator, guard.NewRoleSet(guard.RoleStudent)))
	checkins.POST("", h.checkIn)
}

// fail maps workflow errors onto HTTP statuses.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrIncompleteContext),
		errors.Is(err, session.ErrUnknownMethod),
		errors.Is(err, session.ErrEmptyStudentID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrUnknownStudent):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrCodeExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrMethodChosen),
		errors.Is(err, session.ErrWrongState),
		errors.Is(err, session.ErrNotPopulating),
		errors.Is(err, session.ErrNotFinalized),
		errors.Is(err, session.ErrRosterReadOnly),
		errors.Is(err, session.ErrAlreadySubmitted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
