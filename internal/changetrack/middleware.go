package changetrack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ziadkadry99/perfreview/internal/audit"
)

// maxCapture bounds how much of a request or response body is kept for the
// audit record.
const maxCapture = 64 << 10

// Middleware audits every mutating request under /api/. Read-only requests
// pass straight through.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action, ok := audit.ActionForMethod(r.Method)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		resourceType, pathID := ParsePath(r.URL.Path)
		if resourceType == "" {
			next.ServeHTTP(w, r)
			return
		}

		var before map[string]any
		if action != audit.ActionCreate && pathID != "" {
			before = i.before(r.Context(), resourceType, pathID)
		}

		body := bufferBody(r)
		actor := r.Header.Get(i.actorHeader)

		ctx, rep := withReport(r.Context())
		if actor != "" {
			ctx = WithActor(ctx, actor)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		captured := &cappedBuffer{limit: maxCapture}
		ww.Tee(captured)

		defer func() {
			p := recover()
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if p != nil {
				status = http.StatusInternalServerError
			}

			rec := audit.Record{
				UserID:       actor,
				Action:       action,
				ResourceType: resourceType,
				ResourceID:   pathID,
				Before:       before,
				Metadata: audit.Metadata{
					IP:        clientIP(r.RemoteAddr),
					UserAgent: r.UserAgent(),
					Method:    r.Method,
					Path:      r.URL.Path,
				},
				Status: audit.StatusSuccess,
			}
			if action != audit.ActionDelete {
				rec.After = decodeObject(body)
			}

			if status < 200 || status >= 300 {
				rec.Status = audit.StatusFailed
				if p != nil {
					rec.ErrorMessage = fmt.Sprint(p)
				} else {
					rec.ErrorMessage = errorMessage(status, captured.Bytes())
				}
			}

			id, after, ok := rep.snapshot()
			if id != "" {
				rec.ResourceID = id
			}
			if ok {
				rec.After = after
			}
			if rec.ResourceID == "" && action == audit.ActionCreate && !rec.Failed() {
				if created := decodeObject(captured.Bytes()); created != nil {
					if s, ok := created["id"].(string); ok {
						rec.ResourceID = s
					}
				}
			}

			i.emit(rec)
			if p != nil {
				panic(p)
			}
		}()

		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}

// bufferBody reads the request body and replaces it so the handler can
// still consume it.
func bufferBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	b, err := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(b))
	if err != nil || len(b) > maxCapture {
		return nil
	}
	return b
}

// errorMessage pulls a readable message out of a failed response body.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" && !strings.HasPrefix(msg, "{") {
		return msg
	}
	return http.StatusText(status)
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// cappedBuffer keeps the first limit bytes written to it and discards the
// rest without reporting an error.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) Bytes() []byte { return c.buf.Bytes() }
