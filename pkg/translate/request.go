package translate

import (
	"encoding/json"
	"strings"
)

// ToChatRequest maps a native messages request into the chat-completion
// request shape.
//
// System text blocks are concatenated with blank-line separators into a
// single leading system message. Assistant tool_use blocks become
// tool_calls; user tool_result blocks become role "tool" messages keyed by
// tool_call_id. Tool definitions are re-shaped into function declarations.
func ToChatRequest(req *MessagesRequest) (*ChatRequest, error) {
	out := &ChatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Stop:        req.StopSequences,
	}

	if req.Stream {
		out.StreamOptions = &ChatStreamOptions{IncludeUsage: true}
	}

	if system := strings.Join(req.System, "\n\n"); system != "" {
		out.Messages = append(out.Messages, ChatMessage{Role: RoleSystem, Content: system})
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, convertMessage(msg)...)
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, ChatTool{
			Type: "function",
			Function: ChatFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	return out, nil
}

// convertMessage maps one native turn into one or more chat messages.
// A user turn carrying tool results expands into tool-role messages; an
// assistant turn carrying tool_use blocks folds them into tool_calls.
func convertMessage(msg MessageParam) []ChatMessage {
	if msg.Content.Blocks == nil {
		return []ChatMessage{{Role: msg.Role, Content: msg.Content.Text}}
	}

	var (
		text      strings.Builder
		toolCalls []ChatToolCall
		results   []ChatMessage
	)

	for _, block := range msg.Content.Blocks {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)

		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				args = []byte("{}")
			}
			toolCalls = append(toolCalls, ChatToolCall{
				ID:   block.ID,
				Type: "function",
				Function: ChatFunctionCall{
					Name:      block.Name,
					Arguments: string(args),
				},
			})

		case "tool_result":
			results = append(results, ChatMessage{
				Role:       RoleTool,
				ToolCallID: block.ToolUseID,
				Content:    block.ResultText(),
			})
		}
	}

	var out []ChatMessage

	// Tool results precede the accompanying user text so the completion
	// sees them in causal order.
	out = append(out, results...)

	if text.Len() > 0 || len(toolCalls) > 0 || len(results) == 0 {
		out = append(out, ChatMessage{
			Role:      msg.Role,
			Content:   text.String(),
			ToolCalls: toolCalls,
		})
	}

	return out
}
