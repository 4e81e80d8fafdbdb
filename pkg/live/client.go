package live

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"net/http"
	"strings"
)

// clientJS is the thin client served at {BasePath}/client.js. It opens
// the WebSocket and applies init and patch frames; data-on-click events
// travel the other way.
//
//go:embed client.js
var clientJS []byte

var clientETag = func() string {
	sum := sha256.Sum256(clientJS)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}()

func (s *Server) serveClient(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Content-Type", "application/javascript; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "public, max-age=0, must-revalidate")
	h.Set("ETag", clientETag)

	// Once a browser has the script cached, revalidation hits are the
	// common case.
	if clientCacheFresh(r.Header.Get("If-None-Match")) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clientJS)
}

// clientCacheFresh reports whether If-None-Match names the current
// script. The script is content-addressed, so a weak validator is as
// good as a strong one and W/ prefixes are ignored.
func clientCacheFresh(ifNoneMatch string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, tag := range strings.Split(ifNoneMatch, ",") {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
		if tag == clientETag {
			return true
		}
	}
	return false
}
