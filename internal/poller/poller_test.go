package poller

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/agentkit/common/logger"
	"github.com/lyzr/agentkit/internal/models"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

type fakeIntegrations struct {
	integrations  []*models.Integration
	updatedCreds  map[uuid.UUID][]byte
	statusUpdates map[uuid.UUID]models.IntegrationStatus
}

func (f *fakeIntegrations) ListByKindAndStatus(ctx context.Context, kind string, status models.IntegrationStatus) ([]*models.Integration, error) {
	return f.integrations, nil
}

func (f *fakeIntegrations) UpdateCredentials(ctx context.Context, id uuid.UUID, sealed []byte) error {
	if f.updatedCreds == nil {
		f.updatedCreds = map[uuid.UUID][]byte{}
	}
	f.updatedCreds[id] = sealed
	return nil
}

func (f *fakeIntegrations) UpdateStatus(ctx context.Context, id uuid.UUID, status models.IntegrationStatus) error {
	if f.statusUpdates == nil {
		f.statusUpdates = map[uuid.UUID]models.IntegrationStatus{}
	}
	f.statusUpdates[id] = status
	return nil
}

type fakeWorkflows struct {
	workflows []*models.Workflow
}

func (f *fakeWorkflows) List(ctx context.Context, ownerID uuid.UUID, status *models.WorkflowStatus) ([]*models.Workflow, error) {
	return f.workflows, nil
}

func (f *fakeWorkflows) LoadWithGraph(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	for _, wf := range f.workflows {
		if wf.ID == id {
			return wf, nil
		}
	}
	return nil, fmt.Errorf("workflow %s not found", id)
}

type executedCall struct {
	workflowID  uuid.UUID
	payload     map[string]any
	triggerKind string
}

type fakeExecutor struct {
	calls []executedCall
}

func (f *fakeExecutor) Execute(ctx context.Context, wf *models.Workflow, inputPayload map[string]any, triggerKind string) (*models.WorkflowRun, error) {
	f.calls = append(f.calls, executedCall{workflowID: wf.ID, payload: inputPayload, triggerKind: triggerKind})
	return &models.WorkflowRun{ID: uuid.New(), WorkflowID: wf.ID, Status: models.RunCompleted}, nil
}

type fakeSealer struct{}

func (fakeSealer) Seal(creds map[string]any) ([]byte, error) { return json.Marshal(creds) }

func (fakeSealer) Unseal(sealed []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(sealed, &m); err != nil {
		return nil, err
	}
	return m, nil
}

type fakeMetrics struct {
	ticks       int
	lastMatches int
	lastErr     error
}

func (f *fakeMetrics) RecordPollerTick(ctx context.Context, kind string, matches int, err error) {
	f.ticks++
	f.lastMatches = matches
	f.lastErr = err
}

func newSingleMessageGmailServer(queries *[]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "/messages/") {
			json.NewEncoder(w).Encode(map[string]any{
				"id":       "msg-1",
				"threadId": "thread-1",
				"snippet":  "hi there",
				"payload": map[string]any{
					"headers": []map[string]any{
						{"name": "Subject", "value": "Hello"},
						{"name": "From", "value": "a@example.com"},
					},
					"body": map[string]any{"data": base64.URLEncoding.EncodeToString([]byte("body text"))},
				},
			})
			return
		}
		if queries != nil {
			*queries = append(*queries, r.URL.Query().Get("q"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{{"id": "msg-1", "threadId": "thread-1"}},
		})
	}))
}

func sealedIntegration(t *testing.T, sealer Sealer) *models.Integration {
	sealed, err := sealer.Seal(map[string]any{"access_token": "tok"})
	require.NoError(t, err)
	return &models.Integration{
		ID:                uuid.New(),
		OwnerID:           uuid.New(),
		Kind:              "gmail",
		Status:            models.IntegrationActive,
		SealedCredentials: sealed,
	}
}

func TestPoller_FirstTickFetchesUnreadThenSubsequentTicksUseWatermark(t *testing.T) {
	var queries []string
	server := newSingleMessageGmailServer(&queries)
	defer server.Close()

	integration := sealedIntegration(t, fakeSealer{})
	integrations := &fakeIntegrations{integrations: []*models.Integration{integration}}
	p := New(integrations, &fakeWorkflows{}, &fakeExecutor{}, fakeSealer{}, &fakeMetrics{}, testLogger(), time.Hour).
		WithBaseURL(server.URL)

	p.tick(context.Background())
	p.tick(context.Background())

	require.Len(t, queries, 2)
	assert.Equal(t, "is:unread", queries[0])
	assert.Contains(t, queries[1], "after:")
}

func TestPoller_DispatchesOnlyToMatchingWorkflow(t *testing.T) {
	server := newSingleMessageGmailServer(nil)
	defer server.Close()

	integration := sealedIntegration(t, fakeSealer{})

	matching := &models.Workflow{
		ID:      uuid.New(),
		OwnerID: integration.OwnerID,
		Status:  models.WorkflowPublished,
		Nodes: []models.Node{{
			Key:  "trigger",
			Type: "email_trigger",
			Data: map[string]any{
				"trigger_config": map[string]any{"integration_id": integration.ID.String()},
			},
		}},
	}
	unrelated := &models.Workflow{
		ID:      uuid.New(),
		OwnerID: integration.OwnerID,
		Status:  models.WorkflowPublished,
		Nodes: []models.Node{{
			Key:  "trigger",
			Type: "email_trigger",
			Data: map[string]any{
				"trigger_config": map[string]any{"integration_id": uuid.NewString()},
			},
		}},
	}

	integrations := &fakeIntegrations{integrations: []*models.Integration{integration}}
	workflows := &fakeWorkflows{workflows: []*models.Workflow{matching, unrelated}}
	executor := &fakeExecutor{}
	metrics := &fakeMetrics{}

	p := New(integrations, workflows, executor, fakeSealer{}, metrics, testLogger(), time.Hour).WithBaseURL(server.URL)

	p.tick(context.Background())

	require.Len(t, executor.calls, 1)
	assert.Equal(t, matching.ID, executor.calls[0].workflowID)
	assert.Equal(t, "gmail", executor.calls[0].triggerKind)
	body, ok := executor.calls[0].payload["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Hello", body["subject"])
	assert.Equal(t, "a@example.com", body["sender"])

	assert.Equal(t, 1, metrics.ticks)
	assert.Equal(t, 1, metrics.lastMatches)
	assert.NoError(t, metrics.lastErr)
}

func TestPoller_NoMatchingWorkflowFetchesButDoesNotDispatch(t *testing.T) {
	var queries []string
	server := newSingleMessageGmailServer(&queries)
	defer server.Close()

	integration := sealedIntegration(t, fakeSealer{})
	integrations := &fakeIntegrations{integrations: []*models.Integration{integration}}
	executor := &fakeExecutor{}

	p := New(integrations, &fakeWorkflows{}, executor, fakeSealer{}, &fakeMetrics{}, testLogger(), time.Hour).
		WithBaseURL(server.URL)

	p.tick(context.Background())

	assert.Len(t, queries, 1)
	assert.Empty(t, executor.calls)
}

func TestWorkflowMatchesIntegration(t *testing.T) {
	integrationID := uuid.NewString()
	wf := &models.Workflow{Nodes: []models.Node{
		{Type: "extract_content"},
		{Type: "email_trigger", Data: map[string]any{"trigger_config": map[string]any{"integration_id": integrationID}}},
	}}

	assert.True(t, workflowMatchesIntegration(wf, integrationID))
	assert.False(t, workflowMatchesIntegration(wf, uuid.NewString()))
}

func TestCredentialsRoundTripThroughEncodeDecode(t *testing.T) {
	original := GmailCredentials{
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenURI:     "https://oauth2.googleapis.com/token",
		ClientID:     "cid",
		ClientSecret: "secret",
		Scopes:       []string{"scope-a", "scope-b"},
	}

	decoded := decodeCredentials(encodeCredentials(original))

	assert.Equal(t, original, decoded)
}
