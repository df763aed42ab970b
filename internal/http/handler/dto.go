package handler

import (
	"net/url"
	"path/filepath"
	"time"

	"docview/internal/model"
)

type documentListResponse struct {
	Class model.Class            `json:"class"`
	Items []model.DocumentRecord `json:"data"`
	Total int                    `json:"total"`
}

type reconcileResponse struct {
	Class   model.Class `json:"class"`
	Added   []string    `json:"added"`
	Deleted []string    `json:"deleted"`
}

// RenderCachePrefix is the URL prefix under which the render cache directory is served.
const RenderCachePrefix = "/render-cache"

type pageItem struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
}

type pagesResponse struct {
	Filename string     `json:"filename"`
	Pages    []pageItem `json:"pages"`
}

func newPagesResponse(filename string, pages []model.Page) pagesResponse {
	resp := pagesResponse{Filename: filename, Pages: make([]pageItem, 0, len(pages))}
	for _, p := range pages {
		resp.Pages = append(resp.Pages, pageItem{
			Index: p.Index,
			URL:   RenderCachePrefix + "/" + url.PathEscape(filename) + "/" + url.PathEscape(filepath.Base(p.Location)),
		})
	}
	return resp
}

type pageURLResponse struct {
	Filename string `json:"filename"`
	Index    int    `json:"index"`
	URL      string `json:"url"`
}

type excerptResponse struct {
	Filename string   `json:"filename"`
	Lines    []string `json:"lines"`
}

// excerptItem is one entry of the batch preview. Error carries only the failure
// code so extraction details stay in the logs.
type excerptItem struct {
	Filename  string    `json:"filename"`
	DateAdded time.Time `json:"date_added"`
	Lines     []string  `json:"lines"`
	Error     string    `json:"error,omitempty"`
}

func newExcerptItem(ex model.Excerpt) excerptItem {
	item := excerptItem{Filename: ex.Filename, DateAdded: ex.DateAdded, Lines: ex.Lines}
	if item.Lines == nil {
		item.Lines = []string{}
	}
	if ex.Err != nil {
		item.Error = "EXTRACTION_ERROR"
	}
	return item
}
