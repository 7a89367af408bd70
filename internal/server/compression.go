// compression.go - gzip for JSON responses.
//
// Only the listing is compressed. Downloads are served as stored, since
// most uploads are already compressed and Content-Length must match the
// object size.
package server

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// compressJSON gzips next's response when the client accepts it.
func compressJSON(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
