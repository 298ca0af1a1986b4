package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/course-tracker-backend/errs"
)

// UploadAttachment stores a multipart "file" and returns the attachment
// metadata to put on a submission.
func (h *Handler) UploadAttachment(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, errs.Validation("file", "missing multipart field \"file\""))
		return
	}
	att, err := h.svc.Attachments.Upload(c.Request.Context(), user, fileHeader)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"attachment": att})
}
