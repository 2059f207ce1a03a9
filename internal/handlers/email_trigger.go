package handlers

import "context"

// EmailTriggerHandler surfaces the trigger payload that started the run as
// a normalized email shape. It tolerates both a direct webhook/manual
// payload and one wrapped by the poller (trigger_type/body/integration_id).
type EmailTriggerHandler struct{}

// NewEmailTriggerHandler builds an EmailTriggerHandler.
func NewEmailTriggerHandler() Handler { return &EmailTriggerHandler{} }

func (h *EmailTriggerHandler) Execute(ctx context.Context, data, runContext map[string]any, side SideChannel) (Output, error) {
	trigger := getMap(runContext, "trigger")
	triggerBody := getMap(trigger, "body")

	// The poller wraps the payload as {trigger_type, body: {...},
	// integration_id}; the executor stores the whole thing as
	// context["trigger"]["body"], so unwrap one level when present.
	if inner := getMap(triggerBody, "body"); inner != nil {
		triggerBody = inner
	}

	subject := firstNonEmpty(getString(triggerBody, "subject"), getString(data, "test_subject"), "(No Subject)")
	body := firstNonEmpty(getString(triggerBody, "body"), getString(data, "test_body"), "(No Body)")
	sender := firstNonEmpty(getString(triggerBody, "sender"), getString(data, "test_sender"), "unknown@example.com")
	receivedAt := getString(triggerBody, "received_at")

	var attachments any = getSlice(triggerBody, "attachments")
	if attachments == nil {
		attachments = []any{}
	}

	var raw any = triggerBody
	if raw == nil {
		raw = map[string]any{}
	}

	return Output{Data: map[string]any{
		"subject":     subject,
		"body":        body,
		"sender":      sender,
		"attachments": attachments,
		"received_at": receivedAt,
		"raw":         raw,
	}}, nil
}
