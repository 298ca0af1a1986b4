package controllers

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/services"
)

// ===================== Batch report =====================
func (h *Handler) GetBatchReport(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	batch := strings.TrimSpace(c.Param("batch"))
	if batch == "" {
		respondError(c, errs.Validation("batch", "batch is required"))
		return
	}
	report, err := h.svc.Analytics.BatchReport(c.Request.Context(), user, batch, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ===================== Course statistics =====================
func (h *Handler) GetCourseStats(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	stats, err := h.svc.Analytics.CourseStats(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ExportCourse streams ?format=json|csv|xlsx (json by default).
func (h *Handler) ExportCourse(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", services.ExportJSON))
	if !services.ValidExportFormat(format) {
		respondError(c, errs.Validation("format", "format must be json, csv or xlsx").With("format", format))
		return
	}

	course, rows, err := h.svc.Analytics.ExportCourse(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if format == services.ExportJSON {
		c.JSON(http.StatusOK, gin.H{"course_id": course.ID, "rows": rows, "total": len(rows)})
		return
	}

	var buf bytes.Buffer
	contentType := "text/csv; charset=utf-8"
	if format == services.ExportCSV {
		err = services.WriteCSV(&buf, rows)
	} else {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = services.WriteXLSX(&buf, slug.Make(course.Code), rows)
	}
	if err != nil {
		respondError(c, errs.Wrap(errs.KindInternal, err, "export failed"))
		return
	}

	filename := services.ExportFilename(course.Code, course.Title, requestNow(c), format)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}
