// Package anthropic wraps the official SDK behind the small Client interface
// the pipeline uses: single messages with optional web-search and custom
// tools, plus token usage accounting.
package anthropic

import (
	"context"
	"encoding/json"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the Anthropic API operations used by the pipeline.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is our own request type for CreateMessage.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      string
	Messages    []Message
	Tools       []ToolDef
	WebSearch   *WebSearchConfig
	Temperature *float64
}

// WebSearchConfig enables the server-side web-search tool.
type WebSearchConfig struct {
	MaxUses int64
}

// ToolDef describes one client-side tool offered to the model.
type ToolDef struct {
	Name        string
	Description string
	// Properties is the JSON-schema properties object of the tool input.
	Properties map[string]any
	Required   []string
}

// Message represents a single conversational message. Content holds one or
// more blocks so tool_use and tool_result turns can round-trip.
type Message struct {
	Role    string // "user" or "assistant"
	Content []Block
}

// Block is one content block within a message.
type Block struct {
	Type      string // "text", "tool_use", "tool_result"
	Text      string
	ToolUseID string
	ToolName  string
	Input     json.RawMessage
	IsError   bool
}

// TextMessage builds a single-block text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []Block{{Type: "text", Text: text}}}
}

// ToolResultMessage builds the user turn answering one tool_use block.
func ToolResultMessage(toolUseID, content string, isError bool) Message {
	return Message{Role: "user", Content: []Block{{
		Type:      "tool_result",
		ToolUseID: toolUseID,
		Text:      content,
		IsError:   isError,
	}}}
}

// MessageResponse is our own response type from CreateMessage.
type MessageResponse struct {
	ID         string
	Model      string
	Content    []Block
	StopReason string
	Usage      TokenUsage
}

// AssistantMessage converts the response into the assistant turn needed to
// continue a tool-calling conversation.
func (r *MessageResponse) AssistantMessage() Message {
	return Message{Role: "assistant", Content: r.Content}
}

// Text concatenates all text blocks of the response.
func (r *MessageResponse) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, b := range r.Content {
		if b.Type == "text" && b.Text != "" {
			if out != "" {
				out += "\n"
			}
			out += b.Text
		}
	}
	return out
}

// ToolUses returns the tool_use blocks of the response.
func (r *MessageResponse) ToolUses() []Block {
	var uses []Block
	for _, b := range r.Content {
		if b.Type == "tool_use" {
			uses = append(uses, b)
		}
	}
	return uses
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// Add accumulates usage from another response.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// LogCost logs token usage with structured zap fields.
func (u TokenUsage) LogCost(model, phase string) {
	zap.L().Info("token usage",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
	)
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// ClientOption configures the SDK-backed client.
type ClientOption func(*[]option.RequestOption)

// WithTimeout bounds each API request.
func WithTimeout(d time.Duration) ClientOption {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithRequestTimeout(d))
	}
}

// NewClient creates a new Anthropic client backed by the SDK.
func NewClient(apiKey string, opts ...ClientOption) Client {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, opt := range opts {
		opt(&reqOpts)
	}
	return &sdkClient{client: sdk.NewClient(reqOpts...)}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}

	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	var tools []sdk.ToolUnionParam
	if req.WebSearch != nil {
		ws := sdk.WebSearchTool20250305Param{}
		if req.WebSearch.MaxUses > 0 {
			ws.MaxUses = sdk.Int(req.WebSearch.MaxUses)
		}
		tools = append(tools, sdk.ToolUnionParam{OfWebSearchTool20250305: &ws})
	}
	for _, t := range req.Tools {
		tool := sdk.ToolParam{
			Name: t.Name,
			InputSchema: sdk.ToolInputSchemaParam{
				Properties: t.Properties,
				Required:   t.Required,
			},
		}
		if t.Description != "" {
			tool.Description = sdk.String(t.Description)
		}
		tools = append(tools, sdk.ToolUnionParam{OfTool: &tool})
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	return fromSDKMessage(msg), nil
}

// --- SDK type conversion helpers ---

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case "tool_result":
				blocks = append(blocks, sdk.NewToolResultBlock(b.ToolUseID, b.Text, b.IsError))
			case "tool_use":
				var input any
				if len(b.Input) > 0 {
					_ = json.Unmarshal(b.Input, &input)
				}
				blocks = append(blocks, sdk.NewToolUseBlock(b.ToolUseID, input, b.ToolName))
			default:
				if b.Text == "" {
					continue
				}
				blocks = append(blocks, sdk.NewTextBlock(b.Text))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == "assistant" {
			out = append(out, sdk.NewAssistantMessage(blocks...))
		} else {
			out = append(out, sdk.NewUserMessage(blocks...))
		}
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	blocks := make([]Block, 0, len(msg.Content))
	for _, b := range msg.Content {
		block := Block{
			Type: string(b.Type),
			Text: b.Text,
		}
		if block.Type == "tool_use" {
			block.ToolUseID = b.ID
			block.ToolName = b.Name
			block.Input = json.RawMessage(b.Input)
		}
		blocks = append(blocks, block)
	}

	return &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Content:    blocks,
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
}
