package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/adscript-api/internal/api/shared"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
	"github.com/phrazzld/adscript-api/internal/platform/n8n"
)

// MaxWebhookBodyBytes caps the callback body read by WebhookGate.
const MaxWebhookBodyBytes = 1 << 20

// Callback rejection reasons. The message is returned to the caller.
var (
	ErrMissingSignature = errors.New("Missing HMAC signature")
	ErrInvalidSignature = errors.New("Invalid HMAC signature")
	ErrMissingAPIKey    = errors.New("Missing API key")
	ErrInvalidAPIKey    = errors.New("Invalid API key")
	ErrBodyTooLarge     = errors.New("Request body too large")
)

// WebhookValidator decides whether an inbound callback is authentic.
// body is the raw request body.
type WebhookValidator interface {
	Validate(header http.Header, body []byte) error
}

// HMACSignatureValidator checks the hex HMAC-SHA256 signature of the body.
// An empty secret disables the check.
type HMACSignatureValidator struct {
	secret []byte
	logger *slog.Logger
}

// NewHMACSignatureValidator creates a validator for the given shared secret.
func NewHMACSignatureValidator(secret string, log *slog.Logger) *HMACSignatureValidator {
	if log == nil {
		log = slog.Default()
	}
	return &HMACSignatureValidator{
		secret: []byte(secret),
		logger: log.With(slog.String("component", "webhook_hmac")),
	}
}

// Validate implements WebhookValidator.
func (v *HMACSignatureValidator) Validate(header http.Header, body []byte) error {
	if len(v.secret) == 0 {
		v.logger.Info("webhook secret not configured, skipping signature check")
		return nil
	}

	signature := strings.TrimSpace(header.Get(n8n.SignatureHeader))
	if signature == "" {
		return ErrMissingSignature
	}

	given, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(given, Sign(v.secret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns HMAC-SHA256(secret, body).
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHex returns the hex encoding of Sign, the form expected in the signature header.
func SignHex(secret string, body []byte) string {
	return hex.EncodeToString(Sign([]byte(secret), body))
}

// APIKeyValidator checks the shared API key header.
// An empty key disables the check.
type APIKeyValidator struct {
	key    []byte
	logger *slog.Logger
}

// NewAPIKeyValidator creates a validator for the given key.
func NewAPIKeyValidator(key string, log *slog.Logger) *APIKeyValidator {
	if log == nil {
		log = slog.Default()
	}
	return &APIKeyValidator{
		key:    []byte(key),
		logger: log.With(slog.String("component", "webhook_api_key")),
	}
}

// Validate implements WebhookValidator.
func (v *APIKeyValidator) Validate(header http.Header, _ []byte) error {
	if len(v.key) == 0 {
		v.logger.Warn("n8n API key not configured, accepting unauthenticated callback")
		return nil
	}

	given := header.Get(n8n.APIKeyHeader)
	if given == "" {
		return ErrMissingAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(given), v.key) != 1 {
		return ErrInvalidAPIKey
	}
	return nil
}

// WebhookGate reads the raw body once, runs the validators in order and
// rejects the request with 401 on the first failure. A body over
// MaxWebhookBodyBytes gets 413 and a failed read 400. The body is restored
// for the next handler.
func WebhookGate(base *slog.Logger, validators ...WebhookValidator) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	base = base.With(slog.String("component", "webhook_gate"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.FromContextOrDefault(r.Context(), base)

			body, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBodyBytes+1))
			_ = r.Body.Close()
			if err != nil {
				log.Warn("failed to read webhook body", "error", err)
				shared.RespondWithError(w, r, http.StatusBadRequest, "Failed to read request body")
				return
			}
			if len(body) > MaxWebhookBodyBytes {
				log.Warn("webhook body too large", "limit_bytes", MaxWebhookBodyBytes)
				shared.RespondWithError(w, r, http.StatusRequestEntityTooLarge, ErrBodyTooLarge.Error())
				return
			}

			for _, v := range validators {
				if err := v.Validate(r.Header, body); err != nil {
					log.Warn("webhook callback rejected",
						"reason", err.Error(),
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr)
					rejectWebhook(w, r, err)
					return
				}
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}

// WebhookRejection is the 401 body for a callback that fails validation.
type WebhookRejection struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func rejectWebhook(w http.ResponseWriter, r *http.Request, reason error) {
	shared.RespondWithJSON(w, r, http.StatusUnauthorized, WebhookRejection{
		Message: "Unauthorized",
		Error:   reason.Error(),
	})
}
