package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go-marketplace/internal/event"
	"go-marketplace/internal/metrics"
	"go-marketplace/internal/signing"
	"go-marketplace/pkg/apierror"
)

const tracerName = "go-marketplace/middleware"

var errBodyTooLarge = errors.New("request body too large")

type signatureVerifier interface {
	Verify(ctx context.Context, in signing.Input) (signing.Result, error)
}

// SignatureMiddleware checks the per-identity HMAC on requests that already
// passed RequireAuth.
type SignatureMiddleware struct {
	verifier signatureVerifier
	maxBody  int64
	metrics  *metrics.Metrics
	bus      event.Bus
	tracer   trace.Tracer
}

func NewSignatureMiddleware(verifier signatureVerifier, maxBody int64, m *metrics.Metrics, bus event.Bus) *SignatureMiddleware {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &SignatureMiddleware{
		verifier: verifier,
		maxBody:  maxBody,
		metrics:  m,
		bus:      bus,
		tracer:   otel.Tracer(tracerName),
	}
}

func (m *SignatureMiddleware) RequireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeAPIError(w, apierror.Unauthenticated(""))
			return
		}

		ctx, span := m.tracer.Start(r.Context(), "signature.verify", trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		))
		defer span.End()

		body, err := m.readBody(r)
		if errors.Is(err, errBodyTooLarge) {
			span.SetStatus(codes.Error, "body too large")
			writeAPIError(w, apierror.PayloadTooLarge(m.maxBody))
			return
		}
		if err != nil {
			span.RecordError(err)
			writeAPIError(w, apierror.Validation("could not read request body", "body"))
			return
		}

		result, err := m.verifier.Verify(ctx, signing.Input{
			Method:     r.Method,
			URL:        requestTarget(r),
			Body:       body,
			Timestamp:  r.Header.Get(signing.HeaderTimestamp),
			Signature:  r.Header.Get(signing.HeaderSignature),
			IdentityID: identity.ID,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "key lookup failed")
			slog.ErrorContext(ctx, "verify signature",
				"request_id", RequestIDFromContext(ctx), "error", err)
			writeAPIError(w, apierror.Internal())
			return
		}

		if !result.Valid {
			span.SetAttributes(attribute.String("signature.reason", result.Reason))
			span.SetStatus(codes.Error, "invalid signature")
			m.metrics.SignatureChecked(result.Reason)
			slog.WarnContext(ctx, "signature rejected",
				"request_id", RequestIDFromContext(ctx),
				"user_id", identity.ID,
				"reason", result.Reason,
				"path", r.URL.Path)

			e := event.New(event.TypeAuthDenied, ActorFromRequest(r), r.Method+" "+r.URL.Path)
			e.Status = event.StatusDenied
			e.Error = "signature: " + result.Reason
			publishEvent(m.bus, e)

			writeAPIError(w, apierror.SignatureInvalid())
			return
		}

		m.metrics.SignatureChecked("valid")
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *SignatureMiddleware) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, m.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > m.maxBody {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// requestTarget is the path and query exactly as the client sent them.
func requestTarget(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}
