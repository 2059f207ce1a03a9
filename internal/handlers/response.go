package handlers

import "context"

// ResponseHandler is a passthrough terminal node: it echoes resolved_data.body
// as the run's final output shape.
type ResponseHandler struct{}

// NewResponseHandler builds a ResponseHandler.
func NewResponseHandler() Handler { return &ResponseHandler{} }

func (h *ResponseHandler) Execute(ctx context.Context, data, runContext map[string]any, side SideChannel) (Output, error) {
	body := data["body"]
	if body == nil {
		body = map[string]any{}
	}
	return Output{Data: map[string]any{
		"type": "json",
		"data": body,
	}}, nil
}
