package handlers

import "net/http"

// APIRoot describes the /v3 entry point.
type APIRoot struct {
	Type  string            `json:"type"`
	ID    string            `json:"id"`
	Links map[string]string `json:"links"`
}

// Root handles GET /v3.
func Root(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r) + "/v3"
	ws := "ws" + base[len("http"):]
	writeJSON(w, http.StatusOK, APIRoot{
		Type: "apiRoot",
		ID:   "v3",
		Links: map[string]string{
			"self":      base,
			"clusters":  base + "/clusters",
			"tokens":    base + "/tokens",
			"subscribe": ws + "/subscribe",
		},
	})
}
