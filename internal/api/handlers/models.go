package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/promptlab/internal/llm"
)

type ModelsHandler struct {
	gw llm.Gateway
}

func NewModelsHandler(gw llm.Gateway) *ModelsHandler {
	return &ModelsHandler{gw: gw}
}

// List reports the models the executor can run against.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	models := h.gw.ListModels()
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models, "count": len(models)})
}
