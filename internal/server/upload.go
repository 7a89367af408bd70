package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"r2-share/internal/registry"
)

const (
	// multipartOverhead is the body allowance on top of the file size for
	// boundaries, part headers and the name and type fields.
	multipartOverhead = 1 << 20

	// maxFieldBytes bounds the name and type form values.
	maxFieldBytes = 4 << 10
)

// uploadForm collects the multipart fields of POST /.
type uploadForm struct {
	name     string
	mimeType string
	haveName bool
	haveType bool

	partType string   // Content-Type of the file part
	spool    *os.File // file part spooled to disk, nil if absent or streamed
	size     int64

	streamed bool
	record   registry.FileRecord
}

// effectiveType picks the type field, then the file part's type. An empty
// result lets the registry apply its default.
func (f *uploadForm) effectiveType() string {
	if f.mimeType != "" {
		return f.mimeType
	}
	return f.partType
}

func (f *uploadForm) cleanup() {
	if f.spool == nil {
		return
	}
	name := f.spool.Name()
	_ = f.spool.Close()
	_ = os.Remove(name)
}

// uploadHandler handles POST / with a multipart body carrying file, name
// and type. When name and type precede the file the part is streamed
// straight to the store; browsers send the file first, so otherwise the
// part is spooled to a temp file and stored with a known size.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit := s.registry.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "bad multipart", http.StatusBadRequest)
		return
	}

	form := &uploadForm{}
	defer form.cleanup()

	for !form.streamed {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				s.metrics.RecordUploadError()
				http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}

		switch part.FormName() {
		case "name":
			form.name, err = readField(part)
			form.haveName = true
		case "type":
			form.mimeType, err = readField(part)
			form.mimeType = strings.TrimSpace(form.mimeType)
			form.haveType = true
		case "file":
			err = s.takeFilePart(r.Context(), form, part, limit)
		}
		_ = part.Close()

		if err != nil {
			s.failUpload(w, r, form.name, err)
			return
		}
	}

	if form.streamed {
		s.finishUpload(w, form.record, start)
		return
	}

	var body io.Reader
	if form.spool != nil {
		body = form.spool
	}
	rec, err := s.registry.UploadFile(r.Context(), form.name, form.effectiveType(), body, form.size)
	if err != nil {
		s.failUpload(w, r, form.name, err)
		return
	}
	s.finishUpload(w, rec, start)
}

// takeFilePart consumes the file part, either streaming it to the store
// or spooling it. A part without a filename counts as no file; later
// file parts are ignored.
func (s *Server) takeFilePart(ctx context.Context, form *uploadForm, part *multipart.Part, limit int64) error {
	if part.FileName() == "" || form.spool != nil {
		return nil
	}
	form.partType = part.Header.Get("Content-Type")

	if form.haveName && form.haveType {
		rec, err := s.registry.UploadFile(ctx, form.name, form.effectiveType(), part, -1)
		if err != nil {
			return err
		}
		form.streamed = true
		form.record = rec
		return nil
	}

	f, err := os.CreateTemp("", "r2-share-upload-*")
	if err != nil {
		return err
	}
	form.spool = f

	n, err := io.Copy(f, io.LimitReader(part, limit+1))
	if err != nil {
		return err
	}
	if n > limit {
		return registry.ErrTooLarge
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	form.size = n
	return nil
}

func readField(part io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxFieldBytes {
		return "", &registry.ValidationError{Message: "form field too long"}
	}
	return string(b), nil
}

func (s *Server) finishUpload(w http.ResponseWriter, rec registry.FileRecord, start time.Time) {
	s.metrics.RecordUpload(rec.Size, time.Since(start))
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) failUpload(w http.ResponseWriter, r *http.Request, name string, err error) {
	s.metrics.RecordUploadError()
	writeError(w, r, "put", name, err)
}
