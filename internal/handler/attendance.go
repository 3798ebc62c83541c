package handler

import (
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
	"rollcall/internal/queue"
	"rollcall/internal/session"
)

func (h *Handler) initiate(c *gin.Context) {
	var req struct {
		SubjectID string `json:"subject_id" binding:"required"`
		ClassID   string `json:"class_id" binding:"required"`
		RoomID    string `json:"room_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, _ := auth.SessionFromContext(c)
	openedBy := ""
	if sess != nil {
		openedBy = sess.UserID
	}

	snap, err := h.Sessions.Initiate(c.Request.Context(), openedBy, req.SubjectID, req.ClassID, req.RoomID)
	if err != nil {
		fail(c, err)
		return
	}

	if snap.State == session.StateClassContextRejected.String() {
		// Attendance already exists for this class today. The actor decides:
		// inspect the existing record or override and start anew.
		c.JSON(http.StatusConflict, gin.H{
			"error":        "attendance already taken today for this class",
			"session":      snap,
			"existing_ref": snap.ExistingRef,
			"choices":      []string{"inspect", "override"},
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": snap})
}

func (h *Handler) existing(c *gin.Context) {
	classID := c.Query("class_id")
	date := c.Query("date")
	if classID == "" || date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_id and date required"})
		return
	}
	row, roster, err := h.Sessions.Existing(c.Request.Context(), classID, date)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": row, "roster": roster})
}

func (h *Handler) snapshot(c *gin.Context) {
	snap, err := h.Sessions.Snapshot(c.Param("ref"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}

func (h *Handler) chooseMethod(c *gin.Context) {
	var req struct {
		Method string `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, code, err := h.Sessions.ChooseMethod(c.Request.Context(), c.Param("ref"), session.Method(req.Method))
	if err != nil {
		fail(c, err)
		return
	}

	resp := gin.H{"session": snap}
	if code != "" {
		resp["checkin_code"] = code
	}
	c.JSON(http.StatusOK, resp)
}

// uploadFrame stores a camera frame and queues it for recognition. Accepts a
// multipart file or a JSON base64 data URL, or a pre-hosted image_url.
func (h *Handler) uploadFrame(c *gin.Context) {
	ref := c.Param("ref")
	snap, err := h.Sessions.Snapshot(ref)
	if err != nil {
		fail(c, err)
		return
	}
	if snap.Method != session.MethodCamera || snap.State != session.StateRosterPopulating.String() {
		c.JSON(http.StatusConflict, gin.H{"error": "session is not capturing camera frames"})
		return
	}

	imageURL, ok := h.resolveFrameURL(c)
	if !ok {
		return
	}

	msg, err := queue.NewMessage(queue.TypeFrame, queue.FramePayload{
		SessionRef: ref,
		ClassID:    snap.Class.ClassID,
		ImageURL:   imageURL,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "frame encode failed"})
		return
	}
	if err := h.Frames.Publish(c.Request.Context(), msg); err != nil {
		log.Printf("frame publish failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "frame queue unavailable"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"image_url": imageURL})
}

func (h *Handler) resolveFrameURL(c *gin.Context) (string, bool) {
	contentType := c.ContentType()

	if strings.Contains(contentType, "multipart/form-data") {
		if h.CDN == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "frame storage not configured"})
			return "", false
		}
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return "", false
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return "", false
		}
		result, err := h.CDN.UploadBytes(data, header.Filename)
		if err != nil {
			log.Printf("frame upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "frame upload failed"})
			return "", false
		}
		return result.SecureURL, true
	}

	var body struct {
		Data     string `json:"data"`
		ImageURL string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || (body.Data == "" && body.ImageURL == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"} or {\"image_url\": \"...\"}"})
		return "", false
	}
	if body.ImageURL != "" {
		return body.ImageURL, true
	}
	if h.CDN == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "frame storage not configured"})
		return "", false
	}
	result, err := h.CDN.UploadBase64(body.Data)
	if err != nil {
		log.Printf("frame upload failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "frame upload failed"})
		return "", false
	}
	return result.SecureURL, true
}

func (h *Handler) complete(c *gin.Context) {
	snap, err := h.Sessions.Complete(c.Request.Context(), c.Param("ref"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}

func (h *Handler) toggle(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := h.Sessions.Toggle(c.Param("ref"), req.StudentID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}

func (h *Handler) submit(c *gin.Context) {
	ref := c.Param("ref")
	if err := h.Sessions.Submit(c.Request.Context(), ref); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submitted": true, "ref": ref})
}

func (h *Handler) abandon(c *gin.Context) {
	if err := h.Sessions.Abandon(c.Request.Context(), c.Param("ref")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"abandoned": true})
}

func (h *Handler) abortCapture(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	snap, err := h.Sessions.AbortCapture(c.Request.Context(), c.Param("ref"))
	if err != nil {
		fail(c, err)
		return
	}
	if req.Reason != "" {
		log.Printf("session %s: capture aborted: %s", c.Param("ref"), req.Reason)
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}

func (h *Handler) override(c *gin.Context) {
	snap, err := h.Sessions.Override(c.Request.Context(), c.Param("ref"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}
