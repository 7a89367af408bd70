package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"r2-share/internal/logging"
	"r2-share/internal/registry"
)

// listResp is the JSON body of GET /.
type listResp struct {
	Files     []registry.FileRecord `json:"files"`
	Count     int                   `json:"count"`
	TotalSize int64                 `json:"totalSize"`
}

// deleteResp is the JSON body of a successful DELETE.
type deleteResp struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
}

// listHandler handles GET / and returns every stored file in listing
// order.
func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.registry.ListFiles(r.Context())
	if err != nil {
		writeError(w, r, "list", "", err)
		return
	}
	s.metrics.RecordListing()

	resp := listResp{Files: records, Count: len(records)}
	for _, rec := range records {
		resp.TotalSize += rec.Size
	}
	writeJSON(w, http.StatusOK, resp)
}

// downloadHandler handles GET and HEAD /{path} and streams the stored
// bytes with their metadata.
func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := r.PathValue("path")

	obj, err := s.registry.DownloadFile(r.Context(), path)
	if err != nil {
		if !isClientError(err) {
			s.metrics.RecordDownloadError()
		}
		writeError(w, r, "get", path, err)
		return
	}
	defer func() { _ = obj.Close() }()

	h := w.Header()
	h.Set("Content-Type", obj.Info.ContentType)
	h.Set("Content-Length", strconv.FormatInt(obj.Info.Size, 10))
	if !obj.Info.LastModified.IsZero() {
		h.Set("Last-Modified", obj.Info.LastModified.UTC().Format(http.TimeFormat))
	}
	if obj.Info.ETag != "" {
		h.Set("ETag", strconv.Quote(obj.Info.ETag))
	}
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, obj)
	if err != nil {
		// Headers are gone; all we can do is record it.
		s.metrics.RecordDownloadError()
		logging.Warn("download_interrupted", logging.Fields{
			"rid":   RequestIDFromContext(r.Context()),
			"path":  path,
			"bytes": n,
			"err":   err.Error(),
		})
		return
	}
	s.metrics.RecordDownload(n, time.Since(start))
}

// deleteHandler handles DELETE /{path}.
func (s *Server) deleteHandler(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")

	if err := s.registry.DeleteFile(r.Context(), path); err != nil {
		writeError(w, r, "delete", path, err)
		return
	}
	s.metrics.RecordDelete()
	writeJSON(w, http.StatusOK, deleteResp{Path: path, Deleted: true})
}
