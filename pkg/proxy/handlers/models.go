package handlers

import (
	"net/http"

	"zaigate/zaigate/pkg/proxy"
	"zaigate/zaigate/pkg/proxy/types"
	"zaigate/zaigate/pkg/upstream"
)

// ModelsHandler serves GET /v1/models from the fixed upstream model table.
type ModelsHandler struct{}

// NewModelsHandler creates the model listing handler.
func NewModelsHandler() *ModelsHandler {
	return &ModelsHandler{}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		_ = proxy.WriteErrorResponse(w, types.NewInvalidRequestError(
			"Method not allowed. Use GET instead.", "method", "method_not_allowed",
		))
		return
	}

	models := upstream.Models()
	list := types.ModelList{
		Object: "list",
		Data:   make([]types.ModelInfo, 0, len(models)),
	}
	for _, m := range models {
		list.Data = append(list.Data, types.ModelInfo{
			ID:      m.ID,
			Object:  "model",
			OwnedBy: "zai",
			Name:    m.DisplayName,
		})
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, list)
}
