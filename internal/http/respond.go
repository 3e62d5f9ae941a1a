package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Clark-Hu/store-ratings/internal/domain"
)

const maxRequestBody = 1 << 20 // 1 MiB

const (
	codeValidation       = "VALIDATION_ERROR"
	codeDuplicateRating  = "DUPLICATE_RATING"
	codeDuplicateEmail   = "DUPLICATE_EMAIL"
	codeNotFound         = "NOT_FOUND"
	codeInvalidReference = "INVALID_REFERENCE"
	codeUnauthorized     = "UNAUTHORIZED"
	codeForbidden        = "FORBIDDEN"
	codeRateLimited      = "RATE_LIMITED"
	codeInternal         = "INTERNAL_ERROR"
)

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type listResponse[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		// The status line is already sent; a failed encode means the client went away.
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details interface{}) {
	respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

func respondNotFound(w http.ResponseWriter) {
	respondError(w, http.StatusNotFound, codeNotFound, "Resource not found")
}

// respondValidation reports a domain.ValidationError as 422 with per-field
// details. Any other error is reported as a plain 422.
func respondValidation(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		respondErrorDetails(w, http.StatusUnprocessableEntity, codeValidation, "Validation failed", verr.Fields)
		return
	}
	respondError(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
}

func respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError), errors.Is(err, io.ErrUnexpectedEOF):
		respondError(w, http.StatusUnprocessableEntity, codeValidation, "Malformed JSON payload")
	case errors.As(err, &typeError):
		respondErrorDetails(w, http.StatusUnprocessableEntity, codeValidation, fmt.Sprintf("Invalid value for field %s", typeError.Field),
			map[string]string{typeError.Field: "has the wrong type"})
	case errors.Is(err, io.EOF):
		respondError(w, http.StatusUnprocessableEntity, codeValidation, "Request body cannot be empty")
	case errors.As(err, &maxBytesError):
		respondError(w, http.StatusRequestEntityTooLarge, codeValidation, "Request body too large")
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		respondError(w, http.StatusUnprocessableEntity, codeValidation, strings.TrimPrefix(err.Error(), "json: "))
	default:
		respondError(w, http.StatusBadRequest, codeValidation, "Unable to parse request body")
	}
}

func (s *Server) respondUnauthorized(w http.ResponseWriter) {
	respondError(w, http.StatusUnauthorized, codeUnauthorized, "Missing or invalid authentication information")
}

// respondInternal logs err with the request context and hides it from the client.
func (s *Server) respondInternal(w http.ResponseWriter, r *http.Request, err error, message string) {
	s.requestLogger(r).WithError(err).Error(message)
	respondError(w, http.StatusInternalServerError, codeInternal, message)
}

// idParam reads a UUID path parameter. Malformed ids cannot match any row.
func idParam(r *http.Request, name string) (string, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func parseNonNegativeInt(verr *domain.ValidationError, field, raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		verr.Add(field, "must be a non-negative integer")
		return 0
	}
	return n
}

func parseOrder(verr *domain.ValidationError, raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "asc":
		return false
	case "desc":
		return true
	default:
		verr.Add("order", "must be asc or desc")
		return false
	}
}

func parseSortField(verr *domain.ValidationError, raw string, allowed ...string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	for _, a := range allowed {
		if raw == a {
			return raw
		}
	}
	verr.Add("sort", "must be one of "+strings.Join(allowed, ", "))
	return ""
}

func optionalString(raw string) *string {
	val := strings.TrimSpace(raw)
	if val == "" {
		return nil
	}
	return &val
}
