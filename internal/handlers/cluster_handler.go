package handlers

import (
	"net/http"

	"github.com/clusterdeck/clusterdeck/internal/apierror"
	"github.com/clusterdeck/clusterdeck/internal/auth"
	"github.com/clusterdeck/clusterdeck/internal/models"
	"github.com/clusterdeck/clusterdeck/internal/services"
)

// ClusterResource is the wire form of a cluster.
type ClusterResource struct {
	Type string `json:"type"`
	*models.Cluster
	Links map[string]string `json:"links"`
}

// CreateClusterRequest is the body of POST /v3/clusters.
type CreateClusterRequest struct {
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	Provider          string            `json:"provider,omitempty"`
	KubernetesVersion string            `json:"kubernetesVersion,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
}

// UpdateClusterRequest is the body of PUT /v3/clusters/{id}. Absent fields
// are left unchanged.
type UpdateClusterRequest struct {
	Description       *string           `json:"description,omitempty"`
	State             *string           `json:"state,omitempty"`
	KubernetesVersion *string           `json:"kubernetesVersion,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
}

// ClusterHandler handles /v3/clusters.
type ClusterHandler struct {
	service services.ClusterService
}

// NewClusterHandler creates a new ClusterHandler.
func NewClusterHandler(svc services.ClusterService) *ClusterHandler {
	return &ClusterHandler{service: svc}
}

func clusterResource(r *http.Request, c *models.Cluster) ClusterResource {
	return ClusterResource{
		Type:    "cluster",
		Cluster: c,
		Links:   map[string]string{"self": baseURL(r) + "/v3/clusters/" + c.ID},
	}
}

// List handles GET /v3/clusters with optional name, state and
// labelSelector query filters.
func (h *ClusterHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	labels, err := models.ParseLabelSelector(q.Get("labelSelector"))
	if err != nil {
		apierror.Write(w, http.StatusUnprocessableEntity, apierror.CodeInvalidFormat, err.Error())
		return
	}

	clusters, err := h.service.List(r.Context(), models.ClusterFilter{
		Name:   q.Get("name"),
		State:  models.ClusterState(q.Get("state")),
		Labels: labels,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	data := make([]ClusterResource, 0, len(clusters))
	for _, c := range clusters {
		data = append(data, clusterResource(r, c))
	}
	writeJSON(w, http.StatusOK, Collection{
		Type:         "collection",
		ResourceType: "cluster",
		Links:        map[string]string{"self": baseURL(r) + r.URL.RequestURI()},
		Data:         data,
	})
}

// Create handles POST /v3/clusters.
func (h *ClusterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateClusterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var creator string
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		creator = p.UserID
	}

	c, err := h.service.Create(r.Context(), services.CreateClusterRequest{
		Name:              req.Name,
		Description:       req.Description,
		Provider:          req.Provider,
		KubernetesVersion: req.KubernetesVersion,
		Labels:            req.Labels,
		Annotations:       req.Annotations,
		CreatorID:         creator,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clusterResource(r, c))
}

// Get handles GET /v3/clusters/{id}.
func (h *ClusterHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clusterResource(r, c))
}

// Update handles PUT /v3/clusters/{id}.
func (h *ClusterHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateClusterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	update := &models.ClusterUpdate{
		Description:       req.Description,
		KubernetesVersion: req.KubernetesVersion,
		Labels:            req.Labels,
		Annotations:       req.Annotations,
	}
	if req.State != nil {
		state := models.ClusterState(*req.State)
		update.State = &state
	}

	c, err := h.service.Update(r.Context(), r.PathValue("id"), update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clusterResource(r, c))
}

// Delete handles DELETE /v3/clusters/{id}.
func (h *ClusterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
