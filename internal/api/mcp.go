package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bitdruid/llmm/internal/ollama"
	"github.com/bitdruid/llmm/internal/storage"
)

// MCPUpstream is the inference server as used by the MCP tools. Pull and
// chat run to completion instead of streaming.
type MCPUpstream interface {
	ListModels(ctx context.Context) ([]ollama.Model, error)
	RunningModels(ctx context.Context) ([]ollama.Model, error)
	Show(ctx context.Context, name string) (json.RawMessage, error)
	Delete(ctx context.Context, name string) error
	Pull(ctx context.Context, name string, onProgress func(ollama.PullProgress)) error
	Chat(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options) (string, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Ollama  MCPUpstream
	History HistoryStore // optional; without it actions go unrecorded and the history resource is empty
}

// historyResourceLimit is how many entries llmm://history returns.
const historyResourceLimit = 20

// NewMCPServer creates an MCP server with all llmm tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		AppName,
		AppVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("llmm manages the models of a local Ollama server: list, inspect, pull, delete and chat."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_models",
			mcp.WithDescription("List the models installed on the local Ollama server."),
		),
		mcpListModels(deps),
	)

	s.AddTool(
		mcp.NewTool("running_models",
			mcp.WithDescription("List the models currently loaded in memory."),
		),
		mcpRunningModels(deps),
	)

	s.AddTool(
		mcp.NewTool("model_info",
			mcp.WithDescription("Show details, capabilities, parameters and template of one model."),
			mcp.WithString("name", mcp.Description("Model name, e.g. llama3:8b"), mcp.Required()),
		),
		mcpModelInfo(deps),
	)

	s.AddTool(
		mcp.NewTool("pull_model",
			mcp.WithDescription("Download a model, or update it if already installed. Blocks until done."),
			mcp.WithString("name", mcp.Description("Model name, e.g. llama3:8b"), mcp.Required()),
		),
		mcpPullModel(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_model",
			mcp.WithDescription("Delete an installed model."),
			mcp.WithString("name", mcp.Description("Model name"), mcp.Required()),
		),
		mcpDeleteModel(deps),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Send a prompt to a local model and return its complete reply."),
			mcp.WithString("model", mcp.Description("Model name"), mcp.Required()),
			mcp.WithString("prompt", mcp.Description("User message"), mcp.Required()),
			mcp.WithString("system", mcp.Description("Optional system prompt")),
			mcp.WithNumber("temperature", mcp.Description("Sampling temperature")),
		),
		mcpChat(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"llmm://history",
			"Action History",
			mcp.WithResourceDescription(fmt.Sprintf("Last %d pulls, updates, deletes and chats", historyResourceLimit)),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

// modelSummary is the compact listing returned to MCP clients.
type modelSummary struct {
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	ParameterSize string `json:"parameter_size,omitempty"`
	Quantization  string `json:"quantization_level,omitempty"`
	Family        string `json:"family,omitempty"`
	ModifiedAt    string `json:"modified_at,omitempty"`
}

func summarize(models []ollama.Model) []modelSummary {
	out := make([]modelSummary, len(models))
	for i, m := range models {
		out[i] = modelSummary{
			Name:          m.Name,
			Size:          m.Size,
			ParameterSize: m.Details.ParameterSize,
			Quantization:  m.Details.QuantizationLevel,
			Family:        m.Details.Family,
		}
		if m.ModifiedAt != nil {
			out[i].ModifiedAt = m.ModifiedAt.UTC().Format(time.RFC3339)
		}
	}
	return out
}

func mcpListModels(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		models, err := deps.Ollama.ListModels(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing models failed: %v", err)), nil
		}
		return mcpJSON(summarize(models))
	}
}

func mcpRunningModels(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		models, err := deps.Ollama.RunningModels(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing running models failed: %v", err)), nil
		}
		return mcpJSON(summarize(models))
	}
}

func mcpModelInfo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil || strings.TrimSpace(name) == "" {
			return mcpError("name is required"), nil
		}
		raw, err := deps.Ollama.Show(ctx, name)
		if err != nil {
			return mcpError(fmt.Sprintf("model info failed: %s", upstreamMessage(err))), nil
		}
		return mcpText(string(raw)), nil
	}
}

func mcpPullModel(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil || strings.TrimSpace(name) == "" {
			return mcpError("name is required"), nil
		}

		start := time.Now()
		var last string
		err = deps.Ollama.Pull(ctx, name, func(p ollama.PullProgress) {
			if p.Status != "" {
				last = p.Status
			}
		})
		entry := storage.Entry{Action: storage.ActionPull, Model: name, Status: storage.StatusOK, Detail: last}
		if err != nil {
			entry.Status, entry.Detail = storage.StatusError, err.Error()
			recordMCP(ctx, deps, entry, start)
			return mcpError(fmt.Sprintf("pull failed: %v", err)), nil
		}
		recordMCP(ctx, deps, entry, start)
		return mcpText(fmt.Sprintf("Model %q pulled successfully (%s)", name, last)), nil
	}
}

func mcpDeleteModel(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil || strings.TrimSpace(name) == "" {
			return mcpError("name is required"), nil
		}

		start := time.Now()
		entry := storage.Entry{Action: storage.ActionDelete, Model: name, Status: storage.StatusOK}
		if err := deps.Ollama.Delete(ctx, name); err != nil {
			entry.Status, entry.Detail = storage.StatusError, upstreamMessage(err)
			recordMCP(ctx, deps, entry, start)
			return mcpError(fmt.Sprintf("delete failed: %s", upstreamMessage(err))), nil
		}
		recordMCP(ctx, deps, entry, start)
		return mcpText(fmt.Sprintf("Model %s deleted", name)), nil
	}
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		model, err := req.RequireString("model")
		if err != nil || model == "" {
			return mcpError("model is required"), nil
		}
		prompt, err := req.RequireString("prompt")
		if err != nil || prompt == "" {
			return mcpError("prompt is required"), nil
		}

		var messages []ollama.Message
		if system := req.GetString("system", ""); system != "" {
			messages = append(messages, ollama.Message{Role: "system", Content: system})
		}
		messages = append(messages, ollama.Message{Role: "user", Content: prompt})

		var opts *ollama.Options
		if t := req.GetFloat("temperature", -1); t >= 0 {
			opts = &ollama.Options{Temperature: &t}
		}

		start := time.Now()
		reply, err := deps.Ollama.Chat(ctx, model, messages, opts)
		entry := storage.Entry{Action: storage.ActionChat, Model: model, Status: storage.StatusOK, Detail: "mcp"}
		if err != nil {
			entry.Status, entry.Detail = storage.StatusError, err.Error()
			recordMCP(ctx, deps, entry, start)
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}
		recordMCP(ctx, deps, entry, start)
		return mcpText(reply), nil
	}
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries := []storage.Entry{}
		if deps.History != nil {
			var err error
			entries, err = deps.History.ListHistory(ctx, storage.HistoryFilter{Limit: historyResourceLimit})
			if err != nil {
				return nil, fmt.Errorf("failed to list history: %w", err)
			}
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func recordMCP(ctx context.Context, deps MCPDeps, e storage.Entry, start time.Time) {
	if deps.History == nil {
		return
	}
	e.DurationMS = time.Since(start).Milliseconds()
	_, _ = deps.History.RecordHistory(context.WithoutCancel(ctx), e)
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
