package translate

import (
	"encoding/json"
	"fmt"
)

// Native (Anthropic-shaped) wire types.

// MessagesRequest is the native messages request accepted from clients.
type MessagesRequest struct {
	Model         string           `json:"model"`
	MaxTokens     int              `json:"max_tokens,omitempty"`
	System        SystemPrompt     `json:"system,omitempty"`
	Messages      []MessageParam   `json:"messages"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	Stream        bool             `json:"stream,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	TopP          *float64         `json:"top_p,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
}

// SystemPrompt holds the system text blocks of a request. The wire format
// is either a plain string or an array of text blocks; both decode into
// the ordered list of block texts.
type SystemPrompt []string

// UnmarshalJSON accepts both the string and block-array system forms.
func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = SystemPrompt{text}
		return nil
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("system must be a string or an array of text blocks: %w", err)
	}

	out := make(SystemPrompt, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.Text)
	}
	*s = out
	return nil
}

// MarshalJSON emits the block-array form.
func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	blocks := make([]map[string]string, 0, len(s))
	for _, text := range s {
		blocks = append(blocks, map[string]string{"type": "text", "text": text})
	}
	return json.Marshal(blocks)
}

// MessageParam is one conversation turn.
type MessageParam struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent is either a plain string or a list of content blocks on
// the wire.
type MessageContent struct {
	// Text is set when the wire form was a plain string.
	Text string

	// Blocks is set when the wire form was a block array.
	Blocks []ContentBlock
}

// UnmarshalJSON accepts both content forms.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		c.Blocks = nil
		return nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("content must be a string or an array of blocks: %w", err)
	}
	c.Text = ""
	c.Blocks = blocks
	return nil
}

// MarshalJSON emits whichever form the content holds.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Blocks != nil {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// ContentBlock is a single native content block.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use fields
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result fields
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ResultText flattens a tool_result block's content to plain text.
func (b *ContentBlock) ResultText() string {
	if len(b.Content) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(b.Content, &text); err == nil {
		return text
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b.Content, &blocks); err == nil {
		out := ""
		for _, blk := range blocks {
			out += blk.Text
		}
		return out
	}
	return string(b.Content)
}

// ToolDefinition declares a tool the model may call.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// MessagesResponse is the native response returned to clients.
type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// Usage is the native token accounting shape.
type Usage struct {
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens,omitempty"`
}

// Native stream event shapes.

// StreamEvent is one server-sent event of a native streaming response.
type StreamEvent struct {
	Type string `json:"type"`

	// message_start
	Message *MessagesResponse `json:"message,omitempty"`

	// content_block_start / content_block_delta / content_block_stop
	Index        *int          `json:"index,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`

	// content_block_delta and message_delta payloads
	Delta *StreamDelta `json:"delta,omitempty"`

	// message_delta usage
	Usage *Usage `json:"usage,omitempty"`
}

// StreamDelta carries the delta payload of a stream event.
type StreamDelta struct {
	Type        string  `json:"type,omitempty"`
	Text        string  `json:"text,omitempty"`
	PartialJSON string  `json:"partial_json,omitempty"`
	StopReason  string  `json:"stop_reason,omitempty"`
	StopSeq     *string `json:"stop_sequence,omitempty"`
}

// Stream event type names.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
)

// Native stop reasons.
const (
	StopReasonEndTurn   = "end_turn"
	StopReasonMaxTokens = "max_tokens"
	StopReasonToolUse   = "tool_use"
)

// Chat-completion (OpenAI-compatible) wire types.

// ChatRequest is an OpenAI-compatible chat-completion request.
type ChatRequest struct {
	Model         string             `json:"model"`
	Messages      []ChatMessage      `json:"messages"`
	MaxTokens     int                `json:"max_tokens,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	StreamOptions *ChatStreamOptions `json:"stream_options,omitempty"`
	Stop          []string           `json:"stop,omitempty"`
	Tools         []ChatTool         `json:"tools,omitempty"`
}

// ChatStreamOptions controls streaming extras.
type ChatStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ChatMessage is one chat-completion message.
type ChatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []ChatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// ChatTool is a chat-completion tool declaration.
type ChatTool struct {
	Type     string       `json:"type"`
	Function ChatFunction `json:"function"`
}

// ChatFunction is the function-call shape of a tool definition.
type ChatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ChatToolCall is a tool invocation, complete or streamed in fragments.
type ChatToolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ChatFunctionCall `json:"function"`
}

// ChatFunctionCall carries a function name and its JSON-encoded arguments.
type ChatFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ChatResponse is a chat-completion response or stream chunk.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object,omitempty"`
	Model   string       `json:"model,omitempty"`
	Created int64        `json:"created,omitempty"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
}

// ChatChoice is one completion choice. Non-streaming responses populate
// Message; stream chunks populate Delta.
type ChatChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

// ChatUsage is the chat-completion token accounting shape. Cached prompt
// tokens appear either as a flat field or nested in prompt_tokens_details
// depending on the provider family.
type ChatUsage struct {
	PromptTokens        int                 `json:"prompt_tokens"`
	CompletionTokens    int                 `json:"completion_tokens"`
	TotalTokens         int                 `json:"total_tokens,omitempty"`
	CachedTokens        int                 `json:"cached_tokens,omitempty"`
	PromptTokensDetails *PromptTokensDetail `json:"prompt_tokens_details,omitempty"`
}

// PromptTokensDetail is the nested cached-token accounting.
type PromptTokensDetail struct {
	CachedTokens int `json:"cached_tokens"`
}

// cachedPromptTokens returns the cached-token count from whichever field
// the provider populated.
func (u *ChatUsage) cachedPromptTokens() int {
	if u == nil {
		return 0
	}
	if u.PromptTokensDetails != nil && u.PromptTokensDetails.CachedTokens > 0 {
		return u.PromptTokensDetails.CachedTokens
	}
	return u.CachedTokens
}

// Chat finish reasons.
const (
	ChatFinishStop      = "stop"
	ChatFinishLength    = "length"
	ChatFinishToolCalls = "tool_calls"
)

// Message roles shared by both protocols.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)
