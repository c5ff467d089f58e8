// internal/app/system/httpjson/httpjson.go
// Package httpjson holds the JSON request and response helpers shared by the
// API features, including the mapping from domain errors to status codes.
package httpjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dalemusser/alerthub/internal/app/subscriptions"
	"github.com/dalemusser/alerthub/internal/app/system/limits"
	"github.com/dalemusser/alerthub/internal/app/tokens"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"gopkg.in/go-playground/validator.v9"
)

// ErrBadRequest marks a malformed request body.
var ErrBadRequest = errors.New("bad request")

var validate = validator.New()

// Write encodes v with status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Decode reads a bounded JSON body into dst and validates its struct tags.
// Unknown fields are rejected.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// IDParam parses the chi URL parameter name as an ObjectID. A malformed id
// names nothing, so it is reported as not found.
func IDParam(r *http.Request, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, name))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", subscriptions.ErrNotFound, name)
	}
	return id, nil
}

// Status maps a domain error to its HTTP status.
func Status(err error) int {
	switch {
	case errors.Is(err, subscriptions.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, subscriptions.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, subscriptions.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBadRequest), errors.Is(err, tokens.ErrInvalidToken):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Error writes err with its mapped status. Client errors carry their message;
// server errors are logged and answered with a fixed text.
func Error(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	status := Status(err)
	body := errorBody{Error: err.Error()}
	switch status {
	case http.StatusServiceUnavailable:
		log.Warn(op+" failed", zap.Error(err))
		body = errorBody{Error: "store unavailable, try again", Retryable: true}
		w.Header().Set("Retry-After", "1")
	case http.StatusInternalServerError:
		log.Error(op+" failed", zap.Error(err))
		body = errorBody{Error: "internal error"}
	case http.StatusUnauthorized:
		body = errorBody{Error: "please sign in"}
	}
	Write(w, status, body)
}
