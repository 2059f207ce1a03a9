package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/lyzr/agentkit/internal/errs"
)

const sheetsScope = "https://www.googleapis.com/auth/spreadsheets"
const sheetsCallTimeout = 30 * time.Second

// GoogleSheetsHandler appends a row to a spreadsheet, authenticating with
// either a service-account JSON blob or a raw bearer token.
type GoogleSheetsHandler struct {
	// baseURL overrides the Sheets API endpoint in tests.
	baseURL string
}

// NewGoogleSheetsHandler builds a GoogleSheetsHandler.
func NewGoogleSheetsHandler() Handler { return &GoogleSheetsHandler{} }

func (h *GoogleSheetsHandler) Execute(ctx context.Context, data, runContext map[string]any, side SideChannel) (Output, error) {
	spreadsheetID := strings.TrimSpace(getString(data, "spreadsheet_id"))
	if spreadsheetID == "" {
		return Output{}, errs.New(errs.KindConfigError, "google_sheets: spreadsheet_id is required")
	}

	sheetName := strings.TrimSpace(getString(data, "sheet_name"))
	if sheetName == "" {
		sheetName = "Sheet1"
	}

	bearerToken := strings.TrimSpace(getString(data, "bearer_token"))
	serviceAccountJSON := strings.TrimSpace(getString(data, "service_account_json"))
	if serviceAccountJSON == "" && bearerToken == "" {
		return Output{}, errs.New(errs.KindConfigError, "google_sheets: provide either service_account_json or bearer_token")
	}

	values := buildRowValues(data)

	ctx, cancel := context.WithTimeout(ctx, sheetsCallTimeout)
	defer cancel()

	service, err := h.newService(ctx, serviceAccountJSON, bearerToken)
	if err != nil {
		return Output{}, errs.Wrap(errs.KindUpstreamError, "google_sheets: failed to build Sheets client", err)
	}

	valueRange := &sheets.ValueRange{Values: [][]any{toAnySlice(values)}}

	resp, err := service.Spreadsheets.Values.Append(spreadsheetID, sheetName+"!A1", valueRange).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return Output{}, errs.Wrap(errs.KindUpstreamError, "google_sheets: append failed", err)
	}

	updatedRange, updatedRows := "", int64(1)
	if resp.Updates != nil {
		updatedRange = resp.Updates.UpdatedRange
		if resp.Updates.UpdatedRows > 0 {
			updatedRows = resp.Updates.UpdatedRows
		}
	}

	return Output{Data: map[string]any{
		"status":         "appended",
		"spreadsheet_id": spreadsheetID,
		"sheet_name":     sheetName,
		"row_values":     toAnySlice(values),
		"updated_range":  updatedRange,
		"updated_rows":   updatedRows,
	}}, nil
}

func (h *GoogleSheetsHandler) newService(ctx context.Context, serviceAccountJSON, bearerToken string) (*sheets.Service, error) {
	if h.baseURL != "" {
		return sheets.NewService(ctx, option.WithoutAuthentication(), option.WithEndpoint(h.baseURL))
	}

	if serviceAccountJSON != "" {
		creds, err := google.CredentialsFromJSON(ctx, []byte(serviceAccountJSON), sheetsScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account json: %w", err)
		}
		return sheets.NewService(ctx, option.WithCredentials(creds))
	}

	token := &oauth2.Token{AccessToken: bearerToken}
	src := oauth2.StaticTokenSource(token)
	return sheets.NewService(ctx, option.WithTokenSource(src))
}

// buildRowValues mirrors the original handler's priority: an explicit
// row_values list or JSON-array string wins; otherwise fall back to the
// seven fixed col_* fields.
func buildRowValues(data map[string]any) []string {
	if raw, ok := data["row_values"]; ok {
		switch v := raw.(type) {
		case []any:
			if len(v) > 0 {
				return stringifyAll(v)
			}
		case string:
			v = strings.TrimSpace(v)
			if v != "" {
				var arr []any
				if err := json.Unmarshal([]byte(v), &arr); err == nil {
					return stringifyAll(arr)
				}
				return []string{v}
			}
		}
	}

	return []string{
		getString(data, "col_subject"),
		getString(data, "col_sender"),
		getString(data, "col_summary"),
		getString(data, "col_category"),
		getString(data, "col_sentiment"),
		getString(data, "col_action_items"),
		getString(data, "col_received_at"),
	}
}

func stringifyAll(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%v", v)
	}
	return out
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
