package http

import (
	"bytes"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/gateway"
	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/security"
)

// maxScoredBodyBytes caps how much of the request body is buffered for
// threat scoring and signature verification. Larger bodies are passed
// through untouched beyond this prefix.
const maxScoredBodyBytes = 1 << 20

const tracerName = "assistant-gateway/http"

// GatewayMiddleware runs the full security pipeline on every request.
// It builds a security context from the request, dispatches to the
// gateway, and either forwards to next or writes a rejection. Security
// headers are applied to every response class, rejections included.
func GatewayMiddleware(gw *gateway.Gateway, metrics *Metrics, devMode bool) func(http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), "gateway.process")
			defer span.End()

			requestID := RequestIDFromContext(ctx)
			clientIP := ClientIPFromContext(ctx)
			logger := LoggerFromContext(ctx)

			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
				attribute.String("client.ip", clientIP),
			)

			body, err := readBody(r)
			if err != nil {
				logger.Error("failed to read request body", "error", err)
				span.SetStatus(codes.Error, "body read failed")
				applySecurityHeaders(w)
				writeRejection(w, requestID, gateway.ErrInternal, err, devMode)
				return
			}

			sc := security.NewContext(requestID, r.Method, r.URL.Path, clientIP, r.UserAgent(), snapshotHeaders(r.Header))

			if err := gw.Process(ctx, sc, body); err != nil {
				classified := gateway.Classify(err)
				status := gateway.HTTPStatus(classified)
				logger.Warn("request rejected",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
					"error_code", gateway.ErrorCode(classified),
					"threat_score", sc.ThreatScore)
				span.SetStatus(codes.Error, gateway.ErrorCode(classified))
				if metrics != nil {
					metrics.RejectionsTotal.WithLabelValues(gateway.ErrorCode(classified)).Inc()
				}

				applySecurityHeaders(w)
				writeRejection(w, requestID, classified, err, devMode)
				gw.Finalize(ctx, sc, status)
				return
			}

			span.SetAttributes(
				attribute.String("auth.method", string(sc.AuthMethod)),
				attribute.Float64("threat.score", sc.ThreatScore),
			)

			applySecurityHeaders(w)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			gw.Finalize(ctx, sc, recorder.status)
		})
	}
}

// snapshotHeaders copies the first value of each request header under its
// canonical name. The security context must not alias the live header map.
func snapshotHeaders(h http.Header) map[string]string {
	snapshot := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			snapshot[name] = values[0]
		}
	}
	return snapshot
}

// readBody buffers up to maxScoredBodyBytes of the request body and
// restores r.Body so downstream handlers can read it in full.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	prefix, err := io.ReadAll(io.LimitReader(r.Body, maxScoredBodyBytes))
	if err != nil {
		return nil, err
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(prefix), r.Body), r.Body}
	return prefix, nil
}
