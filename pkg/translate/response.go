package translate

import "encoding/json"

// FromChatResponse maps a non-streaming chat-completion response into the
// native response shape.
//
// Usage mapping: prompt_tokens minus cached tokens become input_tokens,
// cached tokens become cache_read_input_tokens, completion_tokens become
// output_tokens. finish_reason "tool_calls" maps to stop_reason
// "tool_use", "length" to "max_tokens", anything else to "end_turn".
func FromChatResponse(resp *ChatResponse) *MessagesResponse {
	out := &MessagesResponse{
		ID:    resp.ID,
		Type:  "message",
		Role:  RoleAssistant,
		Model: resp.Model,
	}

	if resp.Usage != nil {
		cached := resp.Usage.cachedPromptTokens()
		input := resp.Usage.PromptTokens - cached
		if input < 0 {
			input = 0
		}
		out.Usage = Usage{
			InputTokens:          input,
			OutputTokens:         resp.Usage.CompletionTokens,
			CacheReadInputTokens: cached,
		}
	}

	if len(resp.Choices) == 0 {
		out.StopReason = StopReasonEndTurn
		return out
	}

	choice := resp.Choices[0]
	out.StopReason = MapFinishReason(stringValue(choice.FinishReason))

	if choice.Message == nil {
		return out
	}

	if choice.Message.Content != "" {
		out.Content = append(out.Content, ContentBlock{Type: "text", Text: choice.Message.Content})
	}

	for _, call := range choice.Message.ToolCalls {
		out.Content = append(out.Content, ContentBlock{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: decodeToolArguments(call.Function.Arguments),
		})
	}

	return out
}

// MapFinishReason maps a chat finish_reason onto a native stop_reason.
func MapFinishReason(reason string) string {
	switch reason {
	case ChatFinishToolCalls:
		return StopReasonToolUse
	case ChatFinishLength:
		return StopReasonMaxTokens
	default:
		return StopReasonEndTurn
	}
}

// decodeToolArguments JSON-decodes a tool call's argument string. Malformed
// arguments degrade to an empty object rather than failing the response.
func decodeToolArguments(args string) map[string]any {
	if args == "" {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(args), &input); err != nil {
		return map[string]any{}
	}
	return input
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
