package storage

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"r2-share/internal/config"
)

// fakeS3 is a path-style S3 endpoint holding one bucket in memory. It
// speaks just enough of the protocol for minio-go's bucket check,
// object CRUD, ListObjectsV2 and multipart uploads.
type fakeS3 struct {
	bucket string

	mu      sync.Mutex
	objects map[string]fakeObject
	uploads map[string]*fakeUpload
	nextID  int
	calls   map[string]int
	denied  bool
}

type fakeUpload struct {
	contentType string
	parts       map[int][]byte
}

type fakeObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// startFakeS3 serves a fake bucket and returns a store config for it.
func startFakeS3(t *testing.T) (*fakeS3, config.Store) {
	t.Helper()
	f := &fakeS3{
		bucket:  "files",
		objects: make(map[string]fakeObject),
		uploads: make(map[string]*fakeUpload),
		calls:   make(map[string]int),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	return f, config.Store{
		Endpoint:            srv.URL,
		AccessKeyID:         "key-id",
		SecretAccessKey:     "secret",
		Bucket:              f.bucket,
		Region:              "us-east-1",
		OpTimeout:           5 * time.Second,
		TransferTimeout:     10 * time.Second,
		Retries:             0,
		ListStatConcurrency: 4,
	}
}

func (f *fakeS3) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// deny makes every request fail with AccessDenied until reset.
func (f *fakeS3) deny(on bool) {
	f.mu.Lock()
	f.denied = on
	f.mu.Unlock()
}

func (f *fakeS3) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != f.bucket {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}
	f.mu.Lock()
	denied := f.denied
	if denied {
		f.calls["denied"]++
	}
	f.mu.Unlock()
	if denied {
		writeS3Error(w, http.StatusForbidden, "AccessDenied")
		return
	}
	q := r.URL.Query()

	switch {
	case key == "" && r.Method == http.MethodHead:
		f.record("bucket_exists")
	case key == "" && r.Method == http.MethodGet && q.Get("list-type") == "2":
		f.list(w)
	case key == "":
		writeS3Error(w, http.StatusNotImplemented, "NotImplemented")

	case r.Method == http.MethodPost && q.Has("uploads"):
		f.initiate(w, r, key)
	case r.Method == http.MethodPut && q.Has("uploadId"):
		f.uploadPart(w, r, q.Get("uploadId"), q.Get("partNumber"))
	case r.Method == http.MethodPost && q.Has("uploadId"):
		f.complete(w, r, key, q.Get("uploadId"))
	case r.Method == http.MethodDelete && q.Has("uploadId"):
		f.record("abort")
		f.mu.Lock()
		delete(f.uploads, q.Get("uploadId"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodPut:
		data, err := readPayload(r)
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		f.record("put")
		f.store(key, data, r.Header.Get("Content-Type"))
		w.Header().Set("ETag", `"`+etagOf(data)+`"`)
	case r.Method == http.MethodGet, r.Method == http.MethodHead:
		f.get(w, r, key)
	case r.Method == http.MethodDelete:
		f.record("delete")
		f.mu.Lock()
		delete(f.objects, key)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, http.StatusNotImplemented, "NotImplemented")
	}
}

func (f *fakeS3) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeS3) store(key string, data []byte, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{
		data:        data,
		contentType: contentType,
		modified:    time.Now().UTC().Truncate(time.Second),
	}
}

func (f *fakeS3) get(w http.ResponseWriter, r *http.Request, key string) {
	f.record(strings.ToLower(r.Method))
	f.mu.Lock()
	obj, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeS3Error(w, http.StatusNotFound, "NoSuchKey")
		return
	}

	h := w.Header()
	h.Set("Content-Type", obj.contentType)
	h.Set("Content-Length", strconv.Itoa(len(obj.data)))
	h.Set("ETag", `"`+etagOf(obj.data)+`"`)
	h.Set("Last-Modified", obj.modified.Format(http.TimeFormat))
	h.Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(obj.data)
	}
}

// list answers ListObjectsV2 without content types, like R2 does.
func (f *fakeS3) list(w http.ResponseWriter) {
	f.record("list")
	f.mu.Lock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintf(&b, `<ListBucketResult><Name>%s</Name><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>`, f.bucket, len(keys))
	for _, k := range keys {
		obj := f.objects[k]
		b.WriteString("<Contents><Key>")
		_ = xml.EscapeText(&b, []byte(k))
		fmt.Fprintf(&b, `</Key><LastModified>%s</LastModified><ETag>"%s"</ETag><Size>%d</Size><StorageClass>STANDARD</StorageClass></Contents>`,
			obj.modified.Format("2006-01-02T15:04:05.000Z"), etagOf(obj.data), len(obj.data))
	}
	b.WriteString("</ListBucketResult>")
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(b.Bytes())
}

func (f *fakeS3) initiate(w http.ResponseWriter, r *http.Request, key string) {
	f.record("initiate")
	f.mu.Lock()
	f.nextID++
	id := "upload-" + strconv.Itoa(f.nextID)
	f.uploads[id] = &fakeUpload{
		contentType: r.Header.Get("Content-Type"),
		parts:       make(map[int][]byte),
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><InitiateMultipartUploadResult><Bucket>%s</Bucket><Key>%s</Key><UploadId>%s</UploadId></InitiateMultipartUploadResult>`,
		f.bucket, key, id)
}

func (f *fakeS3) uploadPart(w http.ResponseWriter, r *http.Request, id, number string) {
	n, err := strconv.Atoi(number)
	if err != nil {
		writeS3Error(w, http.StatusBadRequest, "InvalidArgument")
		return
	}
	data, err := readPayload(r)
	if err != nil {
		writeS3Error(w, http.StatusBadRequest, "IncompleteBody")
		return
	}

	f.mu.Lock()
	up, ok := f.uploads[id]
	if ok {
		up.parts[n] = data
	}
	f.mu.Unlock()
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchUpload")
		return
	}
	f.record("upload_part")
	w.Header().Set("ETag", `"`+etagOf(data)+`"`)
}

func (f *fakeS3) complete(w http.ResponseWriter, r *http.Request, key, id string) {
	_, _ = io.Copy(io.Discard, r.Body)

	f.mu.Lock()
	up, ok := f.uploads[id]
	delete(f.uploads, id)
	f.mu.Unlock()
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchUpload")
		return
	}

	numbers := make([]int, 0, len(up.parts))
	for n := range up.parts {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	var data []byte
	for _, n := range numbers {
		data = append(data, up.parts[n]...)
	}
	f.record("complete")
	f.store(key, data, up.contentType)

	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><CompleteMultipartUploadResult><Location>/%s/%s</Location><Bucket>%s</Bucket><Key>%s</Key><ETag>"%s"</ETag></CompleteMultipartUploadResult>`,
		f.bucket, key, f.bucket, key, etagOf(data))
}

// readPayload returns the request body, decoding the aws-chunked
// framing minio-go uses for signed uploads over plain HTTP.
func readPayload(r *http.Request) ([]byte, error) {
	if !strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
		return io.ReadAll(r.Body)
	}

	br := bufio.NewReader(r.Body)
	var out []byte
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return out, nil
		}
		chunk := make([]byte, size+2)
		if _, err := io.ReadFull(br, chunk); err != nil {
			return nil, err
		}
		out = append(out, chunk[:size]...)
	}
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}
