package middleware

import (
	"bytes"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// DefaultCompressMinLength skips bodies too small to be worth encoding.
const DefaultCompressMinLength = 1024

type bufferedWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	return w.buf.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.buf.WriteString(s)
}

// CompressJSON brotli-encodes JSON responses of at least minLength bytes for
// clients that send "Accept-Encoding: br". Result payloads carry long
// feedback text. WebSocket upgrades pass through untouched.
func CompressJSON(minLength int) gin.HandlerFunc {
	if minLength <= 0 {
		minLength = DefaultCompressMinLength
	}

	return func(c *gin.Context) {
		if isUpgrade(c) || !acceptsBrotli(c.GetHeader("Accept-Encoding")) {
			c.Next()
			return
		}
		c.Header("Vary", "Accept-Encoding")

		bw := &bufferedWriter{ResponseWriter: c.Writer}
		c.Writer = bw
		c.Next()
		c.Writer = bw.ResponseWriter

		if err := bw.finish(minLength); err != nil {
			_ = c.Error(err)
		}
	}
}

func (w *bufferedWriter) finish(minLength int) error {
	body := w.buf.Bytes()
	contentType := w.Header().Get("Content-Type")
	if len(body) < minLength || !strings.HasPrefix(contentType, "application/json") {
		_, err := w.ResponseWriter.Write(body)
		return err
	}

	w.Header().Set("Content-Encoding", "br")
	w.Header().Del("Content-Length")

	bw := brotli.NewWriterLevel(w.ResponseWriter, brotli.DefaultCompression)
	if _, err := bw.Write(body); err != nil {
		return err
	}
	return bw.Close()
}

func isUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func acceptsBrotli(acceptEncoding string) bool {
	for _, enc := range strings.Split(acceptEncoding, ",") {
		// Drop any q-value, "br;q=0" is still treated as a refusal.
		name, params, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if !strings.EqualFold(strings.TrimSpace(name), "br") {
			continue
		}
		return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
	}
	return false
}
