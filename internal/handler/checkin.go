package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
	"rollcall/internal/session"
)

// checkIn records a student's self check-in against a shareable code. The
// student id comes from the signed-in session, never the request body.
func (h *Handler) checkIn(c *gin.Context) {
	var req struct {
		Code        string `json:"code" binding:"required"`
		RollNumber  string `json:"roll_number"`
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, ok := auth.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in required"})
		return
	}

	ref, err := h.Sessions.CheckIn(c.Request.Context(), req.Code, session.Record{
		StudentID:   sess.UserID,
		RollNumber:  req.RollNumber,
		DisplayName: req.DisplayName,
		Presence:    session.Present,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"checked_in": true, "session_ref": ref})
}

// enrollFace registers a student's reference image with the face service so
// camera capture can recognize them.
func (h *Handler) enrollFace(c *gin.Context) {
	var req struct {
		ImageURL string `json:"image_url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Face.Enroll(c.Request.Context(), c.Param("id"), req.ImageURL)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"student_id": result.StudentID,
		"success":    result.Success,
		"message":    result.Message,
	})
}
