// Package turnrunner implements the orchestrator's per-turn state machine:
// bind conversation, enroll the user message, call the model, fan out any
// requested tool calls, call the model again with the results folded in,
// and persist the assistant reply.
package turnrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/opsmesh/internal/observability"
	"github.com/brightloop/opsmesh/internal/orchestrator/convstore"
	"github.com/brightloop/opsmesh/internal/orchestrator/modelclient"
	"github.com/brightloop/opsmesh/internal/orchestrator/toolcatalog"
	"github.com/brightloop/opsmesh/internal/orchestrator/toolclient"
	"github.com/brightloop/opsmesh/pkg/models"
)

// apologyContent is returned as the assistant reply whenever a model call
// in stage 3 or stage 6 comes back with no message at all.
const apologyContent = "I'm sorry, I wasn't able to generate a response to that."

// Config configures a Runner.
type Config struct {
	MaxCallsPerTurn    int
	DefaultTemperature float64
	DefaultMaxTokens   int
}

// Runner executes one chat turn against a conversation store, a model
// client, and a tool client.
type Runner struct {
	store   *convstore.Store
	model   *modelclient.Client
	tools   *toolclient.Client
	logger  *observability.Logger
	metrics *observability.Metrics

	maxCallsPerTurn    int
	defaultTemperature float64
	defaultMaxTokens   int
}

// New builds a Runner.
func New(store *convstore.Store, model *modelclient.Client, tools *toolclient.Client, logger *observability.Logger, metrics *observability.Metrics, cfg Config) *Runner {
	maxCalls := cfg.MaxCallsPerTurn
	if maxCalls <= 0 {
		maxCalls = 5
	}
	temperature := cfg.DefaultTemperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := cfg.DefaultMaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Runner{
		store:              store,
		model:              model,
		tools:              tools,
		logger:             logger,
		metrics:            metrics,
		maxCallsPerTurn:    maxCalls,
		defaultTemperature: temperature,
		defaultMaxTokens:   maxTokens,
	}
}

// Request is one inbound chat turn.
type Request struct {
	Message        string
	ConversationID string
	Model          string
	Temperature    *float64
	MaxTokens      *int
	ToolsEnabled   *bool
}

// ToolCallRecord summarizes one dispatched tool call for the turn response.
type ToolCallRecord struct {
	ID       string `json:"id"`
	ToolName string `json:"tool_name"`
	Success  bool   `json:"success"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Response is the outcome of one turn.
type Response struct {
	ConversationID string           `json:"conversation_id"`
	Message        models.Message   `json:"message"`
	Model          string           `json:"model"`
	ToolCallsMade  []ToolCallRecord `json:"tool_calls_made"`
	ElapsedMs      int64            `json:"elapsed_ms"`
}

const defaultTemperature = 0.7
const defaultMaxTokens = 4096
const defaultToolsEnabled = true

// Run executes one turn to completion.
func (r *Runner) Run(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	conversationID := req.ConversationID
	isNew := false
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	if !r.store.Exists(conversationID) {
		isNew = true
	}
	if isNew {
		r.store.Append(conversationID, systemContextMessage(conversationID))
	}

	userMessage := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        req.Message,
		CreatedAt:      time.Now().UTC(),
	}
	r.store.Append(conversationID, userMessage)

	model := req.Model
	temperature := r.defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := r.defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	toolsEnabled := defaultToolsEnabled
	if req.ToolsEnabled != nil {
		toolsEnabled = *req.ToolsEnabled
	}

	history := r.store.GetHistory(conversationID)

	firstReq := modelclient.ChatRequest{
		Model:       model,
		Messages:    history,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if toolsEnabled {
		firstReq.Tools = toolcatalog.Tools()
	}

	first, err := r.model.Chat(ctx, firstReq)
	if err != nil {
		r.recordTurn("error", start, 0)
		return nil, fmt.Errorf("turnrunner: first model call: %w", err)
	}

	var (
		assistantContent string
		assistantCalls   []models.ToolCall
		toolRecords      []ToolCallRecord
		toolResults      []models.ToolResult
		usedModel        = model
	)

	if first != nil && first.Model != "" {
		usedModel = first.Model
	}

	switch {
	case first == nil:
		assistantContent = apologyContent
	case len(first.ToolCalls) == 0:
		assistantContent = first.Content
	default:
		calls := ensureCallIDs(first.ToolCalls)
		if len(calls) > r.maxCallsPerTurn {
			r.logger.Warn(ctx, "truncating tool calls to max_calls_per_turn",
				"requested", len(calls), "max_calls_per_turn", r.maxCallsPerTurn)
			calls = calls[:r.maxCallsPerTurn]
		}

		toolRecords, toolResults = r.dispatchToolCalls(ctx, calls)
		for _, call := range calls {
			assistantCalls = append(assistantCalls, models.ToolCall{ID: call.ID, Name: call.Name, Input: call.Arguments})
		}

		summary := models.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Role:           models.RoleTool,
			Content:        renderToolSummary(toolRecords),
			CreatedAt:      time.Now().UTC(),
		}
		// history already ends with this turn's user message.
		secondHistory := append(append([]models.Message{}, history...), summary)

		second, err := r.model.Chat(ctx, modelclient.ChatRequest{
			Model:       model,
			Messages:    secondHistory,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			assistantContent = apologyContent
		} else if second == nil {
			assistantContent = apologyContent
		} else {
			assistantContent = second.Content
		}
	}

	assistantMessage := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        assistantContent,
		ToolCalls:      assistantCalls,
		ToolResults:    toolResults,
		CreatedAt:      time.Now().UTC(),
	}
	r.store.Append(conversationID, assistantMessage)

	r.recordTurn("success", start, len(toolRecords))

	return &Response{
		ConversationID: conversationID,
		Message:        assistantMessage,
		Model:          usedModel,
		ToolCallsMade:  toolRecords,
		ElapsedMs:      time.Since(start).Milliseconds(),
	}, nil
}

// ensureCallIDs mints an id for every call the model sent without one, so
// tool-call identifiers stay unique within the turn.
func ensureCallIDs(calls []modelclient.ToolCall) []modelclient.ToolCall {
	out := make([]modelclient.ToolCall, len(calls))
	copy(out, calls)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}

// dispatchToolCalls fans calls out to the tool client in parallel and
// returns their records and tool-results in the original request order.
func (r *Runner) dispatchToolCalls(ctx context.Context, calls []modelclient.ToolCall) ([]ToolCallRecord, []models.ToolResult) {
	records := make([]ToolCallRecord, len(calls))
	results := make([]models.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call modelclient.ToolCall) {
			defer wg.Done()

			var params map[string]any
			if len(call.Arguments) > 0 {
				_ = json.Unmarshal(call.Arguments, &params)
			}

			outcome := r.tools.Call(ctx, call.Name, params)
			record := ToolCallRecord{ID: call.ID, ToolName: call.Name, Success: outcome.Success}
			result := models.ToolResult{ToolCallID: call.ID}
			if outcome.Success {
				record.Result = outcome.Result
				result.Content = stringifyResult(outcome.Result)
			} else {
				record.Error = outcome.Error
				result.Content = outcome.Error
				result.IsError = true
			}
			records[i] = record
			results[i] = result
		}(i, call)
	}
	wg.Wait()

	return records, results
}

// renderToolSummary builds the synthetic tool-role message content: one
// line per call, in the order the calls were dispatched.
func renderToolSummary(records []ToolCallRecord) string {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Success {
			lines = append(lines, fmt.Sprintf("- %s: SUCCESS - %s", rec.ToolName, stringifyResult(rec.Result)))
		} else {
			lines = append(lines, fmt.Sprintf("- %s: ERROR - %s", rec.ToolName, rec.Error))
		}
	}
	out := ""
	for i, line := range lines {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out
}

func stringifyResult(result any) string {
	if result == nil {
		return ""
	}
	if s, ok := result.(string); ok {
		return s
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(b)
}

func (r *Runner) recordTurn(outcome string, start time.Time, toolCalls int) {
	if r.metrics != nil {
		r.metrics.RecordTurn(outcome, time.Since(start), toolCalls)
	}
}

// systemContextMessage builds the system message appended to every new
// conversation, capturing the caller's home directory so the model knows
// how to interpret absolute paths it is told to operate on.
func systemContextMessage(conversationID string) models.Message {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/root"
	}
	content := fmt.Sprintf(
		"You are a tool-using assistant with access to a remote operations service. "+
			"The caller's home directory is %s. Prefer absolute paths; a bare \"~\" or "+
			"\"/home\" resolves to the caller's home directory.", home,
	)
	return models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           models.RoleSystem,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}
