package gateway

import (
	"net/http"

	"github.com/mkessler/cachegate/internal/promptcache"
)

// modelsResponse lists the models the gateway knows about, including their
// prompt-caching capability, so clients can pick a caching-capable model
// without hardcoding the table themselves.
type modelsResponse struct {
	Data []promptcache.ModelInfo `json:"data"`
}

func modelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, modelsResponse{Data: promptcache.Models()}, http.StatusOK)
	}
}
