package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cakery/internal/domain"
	"github.com/dukerupert/cakery/internal/handler"
	"github.com/dukerupert/cakery/internal/middleware"
)

const (
	// HeaderKey is the request header clients set to make a POST retryable.
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed marks a response served from the store.
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
)

// Middleware replays stored responses for repeated Idempotency-Key values.
// Requests without the header pass through. Responses with status >= 500 are
// not stored, so the client may retry them; everything else, including a
// partial checkout, is replayed as first returned.
//
// It must run after the caller is resolved: keys are scoped per caller.
func Middleware(store Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				handler.BadRequestResponse(w, r, "Idempotency-Key is too long")
				return
			}

			caller := middleware.GetCaller(r)
			if !caller.Authenticated() {
				handler.UnauthorizedResponse(w, r)
				return
			}
			scoped := caller.ID.String() + ":" + key

			body, err := io.ReadAll(r.Body)
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					handler.ErrorResponse(w, r, domain.Errorf(domain.ETOOLARGE, "idempotency.read_body", "Request body too large"))
					return
				}
				handler.BadRequestResponse(w, r, "Could not read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := fingerprintOf(r, body)

			log := middleware.GetLogger(r.Context(), logger)

			rec, reserved, err := store.Reserve(r.Context(), scoped, fingerprint)
			if err != nil {
				handler.ErrorResponse(w, r, err)
				return
			}
			if !reserved {
				log.Info("replaying idempotent response", "status", rec.Status)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(HeaderReplayed, "true")
				w.WriteHeader(rec.Status)
				_, _ = w.Write(rec.Body)
				return
			}

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)

			// The request context may already be cancelled; settle the key regardless.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
			defer cancel()

			if capture.status >= http.StatusInternalServerError {
				if err := store.Release(ctx, scoped); err != nil {
					log.Warn("failed to release idempotency key", "error", err)
				}
				return
			}
			if err := store.Complete(ctx, scoped, Record{
				Fingerprint: fingerprint,
				Status:      capture.status,
				Body:        capture.body.Bytes(),
			}); err != nil {
				log.Error("failed to store idempotent response", "error", err)
			}
		})
	}
}

func fingerprintOf(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// captureWriter tees the response so it can be stored.
type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
