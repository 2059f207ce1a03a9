package poller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/agentkit/common/logger"
	"github.com/lyzr/agentkit/internal/models"
)

const defaultInterval = 60 * time.Second

// IntegrationSource is the persistence slice the poller reads active Gmail
// integrations from and writes refreshed credentials back to.
type IntegrationSource interface {
	ListByKindAndStatus(ctx context.Context, kind string, status models.IntegrationStatus) ([]*models.Integration, error)
	UpdateCredentials(ctx context.Context, id uuid.UUID, sealed []byte) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.IntegrationStatus) error
}

// WorkflowSource is the persistence slice the poller reads published
// workflows from, to find ones with a matching email_trigger node.
type WorkflowSource interface {
	List(ctx context.Context, ownerID uuid.UUID, status *models.WorkflowStatus) ([]*models.Workflow, error)
	LoadWithGraph(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
}

// RunExecutor is the subset of executor.Executor the poller needs to
// dispatch a matched workflow.
type RunExecutor interface {
	Execute(ctx context.Context, wf *models.Workflow, inputPayload map[string]any, triggerKind string) (*models.WorkflowRun, error)
}

// Sealer seals and unseals the credential maps stored on an Integration.
type Sealer interface {
	Seal(creds map[string]any) ([]byte, error)
	Unseal(sealed []byte) (map[string]any, error)
}

// Metrics is the telemetry surface the poller records to.
type Metrics interface {
	RecordPollerTick(ctx context.Context, integrationKind string, matches int, err error)
}

// Poller is the process-wide Gmail event source. Exactly one instance
// should run per process. last_check is guarded by mu because both the loop
// goroutine and PollOne (called from the poll-now HTTP route) update it.
type Poller struct {
	integrations IntegrationSource
	workflows    WorkflowSource
	executor     RunExecutor
	sealer       Sealer
	metrics      Metrics
	log          *logger.Logger
	interval     time.Duration
	baseURL      string // gmail API endpoint override, for tests

	mu        sync.RWMutex
	lastCheck map[string]time.Time

	stop chan struct{}
	done chan struct{}
}

// New builds a Poller. A zero interval falls back to the default 60s loop.
func New(integrations IntegrationSource, workflows WorkflowSource, executor RunExecutor, sealer Sealer, metrics Metrics, log *logger.Logger, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Poller{
		integrations: integrations,
		workflows:    workflows,
		executor:     executor,
		sealer:       sealer,
		metrics:      metrics,
		log:          log,
		interval:     interval,
		lastCheck:    make(map[string]time.Time),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// WithBaseURL overrides the Gmail API endpoint for every integration this
// poller polls. Test-only.
func (p *Poller) WithBaseURL(baseURL string) *Poller {
	p.baseURL = baseURL
	return p
}

// Run blocks, polling every interval until ctx is cancelled or Stop is
// called. It polls once immediately on entry.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.done)

	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// Stop signals the loop to exit and waits for it to do so.
func (p *Poller) Stop() {
	close(p.stop)
	<-p.done
}

// PollOne polls a single integration immediately, outside the regular tick
// loop. Used by the manual poll-now HTTP route.
func (p *Poller) PollOne(ctx context.Context, integration *models.Integration) {
	p.pollIntegration(ctx, integration)
}

// DecodeCredentials converts an unsealed credential map into the typed
// GmailCredentials shape. Exported so HTTP handlers can build a GmailClient
// directly, outside the regular poll loop.
func DecodeCredentials(raw map[string]any) GmailCredentials {
	return decodeCredentials(raw)
}

func (p *Poller) tick(ctx context.Context) {
	integrations, err := p.integrations.ListByKindAndStatus(ctx, "gmail", models.IntegrationActive)
	if err != nil {
		p.log.Error("poller: list gmail integrations failed", "error", err)
		return
	}

	for _, integration := range integrations {
		p.pollIntegration(ctx, integration)
	}
}

func (p *Poller) pollIntegration(ctx context.Context, integration *models.Integration) {
	rawCreds, err := p.sealer.Unseal(integration.SealedCredentials)
	if err != nil {
		p.log.Error("poller: unseal credentials failed", "integration", integration.ID, "error", err)
		p.recordTick(ctx, 0, err)
		return
	}
	creds := decodeCredentials(rawCreds)

	client, err := NewGmailClient(ctx, creds, p.baseURL)
	if err != nil {
		p.log.Error("poller: build gmail client failed", "integration", integration.ID, "error", err)
		p.recordTick(ctx, 0, err)
		_ = p.integrations.UpdateStatus(ctx, integration.ID, models.IntegrationError)
		return
	}

	key := integration.ID.String()
	p.mu.RLock()
	since, seen := p.lastCheck[key]
	p.mu.RUnlock()

	var messages []EmailMessage
	if seen {
		messages, err = client.MessagesSince(ctx, since, 50)
	} else {
		messages, err = client.UnreadMessages(ctx, 10)
	}

	p.mu.Lock()
	p.lastCheck[key] = time.Now()
	p.mu.Unlock()

	if err != nil {
		p.log.Error("poller: fetch messages failed", "integration", integration.ID, "error", err)
		p.recordTick(ctx, 0, err)
		return
	}

	p.recordTick(ctx, len(messages), nil)

	if len(messages) > 0 {
		p.log.Info("poller: found new gmail messages", "integration", integration.ID, "count", len(messages))
		p.dispatch(ctx, integration, messages)
	}

	p.refreshCredentials(ctx, integration, creds, client)
}

func (p *Poller) dispatch(ctx context.Context, integration *models.Integration, messages []EmailMessage) {
	published := models.WorkflowPublished
	workflows, err := p.workflows.List(ctx, integration.OwnerID, &published)
	if err != nil {
		p.log.Error("poller: list workflows failed", "integration", integration.ID, "error", err)
		return
	}

	var matched []*models.Workflow
	for _, wf := range workflows {
		hydrated, err := p.workflows.LoadWithGraph(ctx, wf.ID)
		if err != nil {
			p.log.Error("poller: load workflow graph failed", "workflow", wf.ID, "error", err)
			continue
		}
		if workflowMatchesIntegration(hydrated, integration.ID.String()) {
			matched = append(matched, hydrated)
		}
	}
	if len(matched) == 0 {
		p.log.Info("poller: no workflows configured for integration", "integration", integration.ID)
		return
	}

	for _, msg := range messages {
		payload := buildTriggerPayload(integration, msg)
		for _, wf := range matched {
			if _, err := p.executor.Execute(ctx, wf, payload, "gmail"); err != nil {
				p.log.Error("poller: execute workflow failed", "workflow", wf.ID, "error", err)
			}
		}
	}
}

func (p *Poller) refreshCredentials(ctx context.Context, integration *models.Integration, original GmailCredentials, client *GmailClient) {
	newToken := client.CurrentAccessToken()
	if newToken == "" || newToken == original.AccessToken {
		return
	}

	updated := original
	updated.AccessToken = newToken

	sealed, err := p.sealer.Seal(encodeCredentials(updated))
	if err != nil {
		p.log.Error("poller: reseal refreshed credentials failed", "integration", integration.ID, "error", err)
		return
	}

	if err := p.integrations.UpdateCredentials(ctx, integration.ID, sealed); err != nil {
		p.log.Error("poller: persist refreshed credentials failed", "integration", integration.ID, "error", err)
	}
}

func (p *Poller) recordTick(ctx context.Context, matches int, err error) {
	if p.metrics != nil {
		p.metrics.RecordPollerTick(ctx, "gmail", matches, err)
	}
}

// workflowMatchesIntegration scans a workflow's nodes for an email_trigger
// whose trigger_config.integration_id names this integration.
func workflowMatchesIntegration(wf *models.Workflow, integrationID string) bool {
	for _, n := range wf.Nodes {
		if n.Type != "email_trigger" {
			continue
		}
		triggerConfig, _ := n.Data["trigger_config"].(map[string]any)
		if triggerConfig == nil {
			continue
		}
		if id, _ := triggerConfig["integration_id"].(string); id == integrationID {
			return true
		}
	}
	return false
}

func buildTriggerPayload(integration *models.Integration, msg EmailMessage) map[string]any {
	return map[string]any{
		"trigger_type":   "gmail",
		"integration_id": integration.ID.String(),
		"body": map[string]any{
			"message_id":    msg.MessageID,
			"thread_id":     msg.ThreadID,
			"subject":       msg.Subject,
			"sender":        msg.Sender,
			"to":            msg.To,
			"body":          msg.Body,
			"email_content": msg.Body,
			"attachments":   attachmentsToAny(msg.Attachments),
			"received_at":   msg.ReceivedAt,
			"snippet":       msg.Snippet,
			"labels":        labelsToAny(msg.Labels),
		},
	}
}

func attachmentsToAny(attachments []Attachment) []any {
	out := make([]any, len(attachments))
	for i, a := range attachments {
		out[i] = map[string]any{
			"filename":      a.Filename,
			"mime_type":     a.MimeType,
			"size":          a.Size,
			"attachment_id": a.AttachmentID,
		}
	}
	return out
}

func labelsToAny(labels []string) []any {
	out := make([]any, len(labels))
	for i, l := range labels {
		out[i] = l
	}
	return out
}

func decodeCredentials(raw map[string]any) GmailCredentials {
	creds := GmailCredentials{
		AccessToken:  stringField(raw, "access_token"),
		RefreshToken: stringField(raw, "refresh_token"),
		TokenURI:     stringField(raw, "token_uri"),
		ClientID:     stringField(raw, "client_id"),
		ClientSecret: stringField(raw, "client_secret"),
	}
	if rawScopes, ok := raw["scopes"].([]any); ok {
		for _, s := range rawScopes {
			if str, ok := s.(string); ok {
				creds.Scopes = append(creds.Scopes, str)
			}
		}
	}
	return creds
}

func encodeCredentials(creds GmailCredentials) map[string]any {
	scopes := make([]any, len(creds.Scopes))
	for i, s := range creds.Scopes {
		scopes[i] = s
	}
	return map[string]any{
		"access_token":  creds.AccessToken,
		"refresh_token": creds.RefreshToken,
		"token_uri":     creds.TokenURI,
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
		"scopes":        scopes,
	}
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
