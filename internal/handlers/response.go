// Package handlers implements the HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clusterdeck/clusterdeck/internal/apierror"
	"github.com/clusterdeck/clusterdeck/internal/idgen"
	"github.com/clusterdeck/clusterdeck/internal/models"
	"github.com/clusterdeck/clusterdeck/internal/services"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Collection wraps a list response.
type Collection struct {
	Type         string            `json:"type"`
	ResourceType string            `json:"resourceType"`
	Links        map[string]string `json:"links,omitempty"`
	Data         interface{}       `json:"data"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	e := mapErrorToResponse(err)
	writeJSON(w, e.Status, e)
}

// decodeJSON reads a JSON body into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		apierror.Write(w, http.StatusUnprocessableEntity, apierror.CodeInvalidBody, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// mapErrorToResponse maps domain errors to an error envelope.
func mapErrorToResponse(err error) apierror.Error {
	switch {
	case errors.Is(err, models.ErrEmptyClusterName):
		return apierror.New(http.StatusUnprocessableEntity, apierror.CodeMissingRequired, err.Error())
	case errors.Is(err, models.ErrInvalidClusterName),
		errors.Is(err, models.ErrInvalidProvider),
		errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrMalformedToken),
		errors.Is(err, services.ErrInvalidTTL):
		return apierror.New(http.StatusUnprocessableEntity, apierror.CodeInvalidFormat, err.Error())
	case errors.Is(err, models.ErrClusterNotFound),
		errors.Is(err, models.ErrTokenNotFound):
		return apierror.New(http.StatusNotFound, apierror.CodeNotFound, err.Error())
	case errors.Is(err, models.ErrClusterExists),
		errors.Is(err, models.ErrTokenExists):
		return apierror.New(http.StatusConflict, apierror.CodeConflict, err.Error())
	case errors.Is(err, idgen.ErrMaxRetriesExceeded):
		return apierror.New(http.StatusServiceUnavailable, apierror.CodeUnavailable, "service temporarily unavailable")
	default:
		return apierror.New(http.StatusInternalServerError, apierror.CodeServerError, "internal server error")
	}
}

// baseURL returns the scheme and host the caller used to reach us.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}
