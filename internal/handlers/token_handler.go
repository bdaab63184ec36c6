package handlers

import (
	"math"
	"net/http"
	"time"

	"github.com/clusterdeck/clusterdeck/internal/apierror"
	"github.com/clusterdeck/clusterdeck/internal/auth"
	"github.com/clusterdeck/clusterdeck/internal/models"
	"github.com/clusterdeck/clusterdeck/internal/services"
)

// TokenResource is the wire form of a token. Token holds the "name:key"
// secret and is only set in the creation response.
type TokenResource struct {
	Type string `json:"type"`
	*models.Token
	Secret string            `json:"token,omitempty"`
	Links  map[string]string `json:"links"`
}

// CreateTokenRequest is the body of POST /v3/tokens. TTL is in
// milliseconds; omitted means the server default.
type CreateTokenRequest struct {
	Description string `json:"description,omitempty"`
	TTL         *int64 `json:"ttl,omitempty"`
}

// TokenHandler handles /v3/tokens. Every operation is scoped to the
// authenticated user.
type TokenHandler struct {
	service services.TokenService
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(svc services.TokenService) *TokenHandler {
	return &TokenHandler{service: svc}
}

func tokenResource(r *http.Request, t *models.Token) TokenResource {
	return TokenResource{
		Type:  "token",
		Token: t,
		Links: map[string]string{"self": baseURL(r) + "/v3/tokens/" + t.Name},
	}
}

func principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		apierror.Write(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "must authenticate")
	}
	return p, ok
}

// List handles GET /v3/tokens.
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	tokens, err := h.service.List(r.Context(), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	data := make([]TokenResource, 0, len(tokens))
	for _, t := range tokens {
		data = append(data, tokenResource(r, t))
	}
	writeJSON(w, http.StatusOK, Collection{
		Type:         "collection",
		ResourceType: "token",
		Links:        map[string]string{"self": baseURL(r) + "/v3/tokens"},
		Data:         data,
	})
}

// maxTTLMillis is the largest TTL that fits in a time.Duration.
const maxTTLMillis = math.MaxInt64 / int64(time.Millisecond)

// Create handles POST /v3/tokens.
func (h *TokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CreateTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	create := services.CreateTokenRequest{UserID: p.UserID, Description: req.Description}
	if req.TTL != nil {
		if *req.TTL < 0 || *req.TTL > maxTTLMillis {
			writeError(w, services.ErrInvalidTTL)
			return
		}
		ttl := time.Duration(*req.TTL) * time.Millisecond
		create.TTL = &ttl
	}

	created, err := h.service.Create(r.Context(), create)
	if err != nil {
		writeError(w, err)
		return
	}

	res := tokenResource(r, created.Token)
	res.Secret = created.Secret
	writeJSON(w, http.StatusCreated, res)
}

// Delete handles DELETE /v3/tokens/{name}.
func (h *TokenHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p.UserID, r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
