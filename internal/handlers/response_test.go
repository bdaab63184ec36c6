package handlers

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clusterdeck/clusterdeck/internal/apierror"
	"github.com/clusterdeck/clusterdeck/internal/idgen"
	"github.com/clusterdeck/clusterdeck/internal/models"
	"github.com/clusterdeck/clusterdeck/internal/services"
)

func TestMapErrorToResponse(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrEmptyClusterName, http.StatusUnprocessableEntity, apierror.CodeMissingRequired},
		{models.ErrInvalidClusterName, http.StatusUnprocessableEntity, apierror.CodeInvalidFormat},
		{models.ErrInvalidProvider, http.StatusUnprocessableEntity, apierror.CodeInvalidFormat},
		{services.ErrInvalidTTL, http.StatusUnprocessableEntity, apierror.CodeInvalidFormat},
		{fmt.Errorf("lookup: %w", models.ErrClusterNotFound), http.StatusNotFound, apierror.CodeNotFound},
		{models.ErrTokenNotFound, http.StatusNotFound, apierror.CodeNotFound},
		{models.ErrClusterExists, http.StatusConflict, apierror.CodeConflict},
		{fmt.Errorf("token x: %w", models.ErrTokenExists), http.StatusConflict, apierror.CodeConflict},
		{idgen.ErrMaxRetriesExceeded, http.StatusServiceUnavailable, apierror.CodeUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, apierror.CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			e := mapErrorToResponse(tt.err)
			assert.Equal(t, "error", e.Type)
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, tt.code, e.Code)
		})
	}

	assert.Equal(t, "internal server error", mapErrorToResponse(errors.New("secret detail")).Message)
}

func TestBaseURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://rancher.local/v3", nil)
	assert.Equal(t, "http://rancher.local", baseURL(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://rancher.local", baseURL(req))

	req.Header.Set("X-Forwarded-Proto", "gopher")
	assert.Equal(t, "http://rancher.local", baseURL(req))

	req.TLS = &tls.ConnectionState{}
	assert.Equal(t, "https://rancher.local", baseURL(req))
}
