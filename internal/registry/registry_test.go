package registry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"r2-share/internal/storage/storagetest"
)

func newTestService(max int64) (*Service, *storagetest.Memory) {
	mem := storagetest.NewMemory()
	return New(mem, Options{MaxUploadBytes: max}), mem
}

func TestUploadFile_RoundTrip(t *testing.T) {
	svc, _ := newTestService(0)
	ctx := context.Background()

	data := []byte("hello, world")
	rec, err := svc.UploadFile(ctx, "hello.txt", "text/plain", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if rec.Path != "hello.txt" || rec.Size != int64(len(data)) || rec.ContentType != "text/plain" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.SizeText != "12.00 B" {
		t.Errorf("SizeText = %q", rec.SizeText)
	}

	obj, err := svc.DownloadFile(ctx, "hello.txt")
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	defer obj.Close()
	got, _ := io.ReadAll(obj)
	if !bytes.Equal(got, data) {
		t.Errorf("downloaded %q, want %q", got, data)
	}
	if obj.Info.ContentType != "text/plain" {
		t.Errorf("ContentType = %q", obj.Info.ContentType)
	}
}

func TestUploadFile_OverwriteKeepsOneRecord(t *testing.T) {
	svc, mem := newTestService(0)
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mem.Now = func() time.Time { return now }
	if _, err := svc.UploadFile(ctx, "a.txt", "text/plain", strings.NewReader("one"), -1); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Minute)
	if _, err := svc.UploadFile(ctx, "a.txt", "text/plain", strings.NewReader("second"), -1); err != nil {
		t.Fatal(err)
	}

	records, err := svc.ListFiles(ctx)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Size != 6 || !records[0].LastModified.Equal(now) {
		t.Errorf("overwrite not reflected: %+v", records[0])
	}
}

func TestUploadFile_Validation(t *testing.T) {
	svc, mem := newTestService(0)
	ctx := context.Background()

	tests := []struct {
		name    string
		file    string
		body    io.Reader
		message string
	}{
		{"empty name", "", strings.NewReader("x"), "missing name"},
		{"blank name", "   ", strings.NewReader("x"), "missing name"},
		{"no body", "a.txt", nil, "missing file"},
		{"leading slash", "/etc/passwd", strings.NewReader("x"), "name must not start with /"},
		{"reserved", "-/health", strings.NewReader("x"), "name uses a reserved prefix"},
		{"control", "a\x00b", strings.NewReader("x"), "name must not contain control characters"},
		{"invalid utf8", "a\xffb", strings.NewReader("x"), "name must be valid UTF-8"},
		{"too long", strings.Repeat("a", 1025), strings.NewReader("x"), "name too long"},
		{"double slash", "a//b.txt", strings.NewReader("x"), "name must not contain empty, . or .. segments"},
		{"dot segment", "dir/./x.txt", strings.NewReader("x"), "name must not contain empty, . or .. segments"},
		{"dot dot segment", "dir/../y.txt", strings.NewReader("x"), "name must not contain empty, . or .. segments"},
		{"lone dot dot", "..", strings.NewReader("x"), "name must not contain empty, . or .. segments"},
		{"trailing dot", "dir/.", strings.NewReader("x"), "name must not contain empty, . or .. segments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UploadFile(ctx, tt.file, "", tt.body, -1)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Message != tt.message {
				t.Errorf("message = %q, want %q", verr.Message, tt.message)
			}
		})
	}
	if mem.Len() != 0 {
		t.Errorf("invalid uploads reached the store")
	}
}

func TestUploadFile_DefaultContentType(t *testing.T) {
	svc, _ := newTestService(0)

	rec, err := svc.UploadFile(context.Background(), "blob", "", strings.NewReader("x"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ContentType != DefaultContentType {
		t.Errorf("ContentType = %q", rec.ContentType)
	}
}

func TestUploadFile_TooLarge(t *testing.T) {
	svc, mem := newTestService(10)
	ctx := context.Background()

	if _, err := svc.UploadFile(ctx, "big", "", strings.NewReader("x"), 11); !errors.Is(err, ErrTooLarge) {
		t.Errorf("declared size: expected ErrTooLarge, got %v", err)
	}

	// Hide the Seeker so the limit is enforced while streaming.
	body := io.MultiReader(strings.NewReader(strings.Repeat("x", 11)))
	if _, err := svc.UploadFile(ctx, "big", "", body, -1); !errors.Is(err, ErrTooLarge) {
		t.Errorf("streamed size: expected ErrTooLarge, got %v", err)
	}
	if mem.Len() != 0 {
		t.Errorf("oversized upload was stored")
	}

	exact := io.MultiReader(strings.NewReader(strings.Repeat("x", 10)))
	if _, err := svc.UploadFile(ctx, "fits", "", exact, -1); err != nil {
		t.Errorf("upload at the limit failed: %v", err)
	}
}

func TestDownloadFile_Errors(t *testing.T) {
	svc, _ := newTestService(0)
	ctx := context.Background()

	var verr *ValidationError
	if _, err := svc.DownloadFile(ctx, ""); !errors.As(err, &verr) {
		t.Errorf("empty path: expected ValidationError, got %v", err)
	}
	if _, err := svc.DownloadFile(ctx, "nope.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteFile(t *testing.T) {
	svc, _ := newTestService(0)
	ctx := context.Background()

	if _, err := svc.UploadFile(ctx, "a.txt", "", strings.NewReader("x"), 1); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteFile(ctx, "a.txt"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	records, _ := svc.ListFiles(ctx)
	if len(records) != 0 {
		t.Errorf("file still listed after delete")
	}
	if _, err := svc.DownloadFile(ctx, "a.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.DeleteFile(ctx, "a.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestListFiles_StoreError(t *testing.T) {
	svc, mem := newTestService(0)
	mem.Fail = func(op, key string) error { return errors.New("unreachable") }

	if _, err := svc.ListFiles(context.Background()); err == nil {
		t.Fatal("expected store error")
	}
}

func TestListFiles_Sorted(t *testing.T) {
	svc, _ := newTestService(0)
	ctx := context.Background()

	for _, name := range []string{"b.txt", "A.txt", "a1.txt"} {
		if _, err := svc.UploadFile(ctx, name, "", strings.NewReader(name), -1); err != nil {
			t.Fatal(err)
		}
	}
	records, err := svc.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, r := range records {
		got = append(got, r.Path)
	}
	want := []string{"a1.txt", "A.txt", "b.txt"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestValidateName_AcceptsRoutableNames(t *testing.T) {
	for _, name := range []string{"a.txt", "c/", "docs/2024/report.pdf", ".env", "a..b", "dir/.hidden"} {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}
}
