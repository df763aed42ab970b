package handler

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"docview/internal/model"
	"docview/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	classes := app.Group("/classes/:class")
	classes.Get("/documents", ListDocuments(docSvc))
	classes.Post("/reconcile", ReconcileClass(docSvc))
	classes.Get("/files/:filename", DownloadFile(docSvc))

	app.Get("/documents/:filename/pages", OpenDocument(docSvc))
	app.Get("/documents/:filename/pages/:index/url", PageURL(docSvc))

	app.Get("/notices/previews", PreviewNotices(docSvc))
	app.Get("/notices/:filename/excerpt", NoticeExcerpt(docSvc))
}

// HealthCheck checks DB connectivity only.
//
// @Summary  Readiness probe
// @Tags     health
// @Produce  json
// @Success  200 {object} map[string]string
// @Failure  503 {object} errorPayload
// @Router   /health [get]
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a simple liveness probe.
//
// @Summary  Liveness probe
// @Tags     health
// @Success  200
// @Router   /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// ListDocuments reconciles the class and lists its records.
//
// @Summary  List documents of a class
// @Tags     documents
// @Produce  json
// @Param    class path string true "Document class" Enums(archival, notices)
// @Success  200 {object} documentListResponse
// @Failure  400 {object} errorPayload
// @Failure  503 {object} errorPayload
// @Router   /classes/{class}/documents [get]
func ListDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		class, ok := classParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_CLASS", "unknown document class")
		}
		records, err := docSvc.List(c.UserContext(), class)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(documentListResponse{Class: class, Items: records, Total: len(records)})
	}
}

// ReconcileClass runs one reconciliation pass for the class.
//
// @Summary  Reconcile a class with its directory
// @Tags     documents
// @Produce  json
// @Param    class path string true "Document class" Enums(archival, notices)
// @Success  200 {object} reconcileResponse
// @Failure  400 {object} errorPayload
// @Failure  503 {object} errorPayload
// @Router   /classes/{class}/reconcile [post]
func ReconcileClass(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		class, ok := classParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_CLASS", "unknown document class")
		}
		res, err := docSvc.EnsureConverged(c.UserContext(), class)
		if err != nil {
			return writeServiceError(c, err)
		}
		resp := reconcileResponse{Class: class, Added: []string{}, Deleted: []string{}}
		for _, r := range res.Added {
			resp.Added = append(resp.Added, r.Filename)
		}
		resp.Deleted = append(resp.Deleted, res.Deleted...)
		return c.JSON(resp)
	}
}

// DownloadFile sends the raw source file.
//
// @Summary  Download a source document
// @Tags     documents
// @Produce  octet-stream
// @Param    class    path string true "Document class" Enums(archival, notices)
// @Param    filename path string true "File name"
// @Success  200 {file} file
// @Failure  400 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Router   /classes/{class}/files/{filename} [get]
func DownloadFile(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		class, ok := classParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_CLASS", "unknown document class")
		}
		path, err := docSvc.SourcePath(c.UserContext(), class, c.Params("filename"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.SendFile(path)
	}
}

// OpenDocument returns the ordered page images of a document, rendering them on first use.
//
// @Summary  Page images of a document
// @Tags     pages
// @Produce  json
// @Param    filename path string true "File name"
// @Success  200 {object} pagesResponse
// @Failure  400 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Failure  422 {object} errorPayload
// @Router   /documents/{filename}/pages [get]
func OpenDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filename := c.Params("filename")
		pages, err := docSvc.OpenDocument(c.UserContext(), filename)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(newPagesResponse(filename, pages))
	}
}

// PageURL returns a presigned download URL of one mirrored page.
//
// @Summary  Presigned URL of a page image
// @Tags     pages
// @Produce  json
// @Param    filename path string true "File name"
// @Param    index    path int    true "Page index"
// @Success  200 {object} pageURLResponse
// @Failure  400 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Failure  501 {object} errorPayload
// @Router   /documents/{filename}/pages/{index}/url [get]
func PageURL(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filename := c.Params("filename")
		index, err := strconv.Atoi(c.Params("index"))
		if err != nil || index < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INDEX", "invalid page index")
		}
		url, err := docSvc.PageURL(c.UserContext(), filename, index)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(pageURLResponse{Filename: filename, Index: index, URL: url})
	}
}

// PreviewNotices returns the first-page excerpt of every notice.
//
// @Summary  Excerpts of all periodic notices
// @Tags     notices
// @Produce  json
// @Success  200 {array}  excerptItem
// @Failure  503 {object} errorPayload
// @Router   /notices/previews [get]
func PreviewNotices(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		excerpts, err := docSvc.PreviewNotices(c.UserContext())
		if err != nil {
			return writeServiceError(c, err)
		}
		items := make([]excerptItem, 0, len(excerpts))
		for _, ex := range excerpts {
			items = append(items, newExcerptItem(ex))
		}
		return c.JSON(items)
	}
}

// NoticeExcerpt returns the first-page excerpt of one notice.
//
// @Summary  Excerpt of a periodic notice
// @Tags     notices
// @Produce  json
// @Param    filename path string true "File name"
// @Success  200 {object} excerptResponse
// @Failure  400 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Failure  422 {object} errorPayload
// @Router   /notices/{filename}/excerpt [get]
func NoticeExcerpt(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filename := c.Params("filename")
		lines, err := docSvc.PreviewExcerpt(c.UserContext(), filename)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(excerptResponse{Filename: filename, Lines: lines})
	}
}

func classParam(c *fiber.Ctx) (model.Class, bool) {
	class, err := model.ParseClass(c.Params("class"))
	return class, err == nil
}
