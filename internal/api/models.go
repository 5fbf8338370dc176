package api

import (
	"net/http"

	"github.com/bytefuck/model-hub/internal/controlplane"
)

// ModelInfo is one entry of GET /v1/models, OpenAI list shape.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelListResponse is the body of GET /v1/models.
type ModelListResponse struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ListModelsHandler aggregates the distinct model ids served by registered
// workers.
func ListModelsHandler(reg *controlplane.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := reg.Models()
		data := make([]ModelInfo, 0, len(ids))
		for _, id := range ids {
			data = append(data, ModelInfo{ID: id, Object: "model", OwnedBy: "model-hub"})
		}
		writeJSON(w, http.StatusOK, ModelListResponse{Object: "list", Data: data})
	}
}
