package translate

import (
	"encoding/json"
	"testing"
)

func TestToChatRequestSystemJoining(t *testing.T) {
	req := &MessagesRequest{
		Model:  "claude-sonnet-4-20251001",
		System: SystemPrompt{"You are helpful.", "Be brief."},
		Messages: []MessageParam{
			{Role: RoleUser, Content: MessageContent{Text: "hi"}},
		},
	}

	out, err := ToChatRequest(req)
	if err != nil {
		t.Fatalf("ToChatRequest failed: %v", err)
	}

	if len(out.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(out.Messages))
	}
	if out.Messages[0].Role != RoleSystem {
		t.Errorf("Expected leading system message, got role %q", out.Messages[0].Role)
	}
	if out.Messages[0].Content != "You are helpful.\n\nBe brief." {
		t.Errorf("Expected joined system text, got %q", out.Messages[0].Content)
	}
	if out.Messages[1].Role != RoleUser || out.Messages[1].Content != "hi" {
		t.Errorf("Unexpected user message: %+v", out.Messages[1])
	}
}

func TestToChatRequestStreamOptions(t *testing.T) {
	req := &MessagesRequest{
		Model:    "m",
		Stream:   true,
		Messages: []MessageParam{{Role: RoleUser, Content: MessageContent{Text: "x"}}},
	}

	out, err := ToChatRequest(req)
	if err != nil {
		t.Fatalf("ToChatRequest failed: %v", err)
	}
	if out.StreamOptions == nil || !out.StreamOptions.IncludeUsage {
		t.Error("Expected stream_options.include_usage to be set for streaming requests")
	}

	req.Stream = false
	out, _ = ToChatRequest(req)
	if out.StreamOptions != nil {
		t.Error("Expected no stream_options on non-streaming requests")
	}
}

func TestToChatRequestToolUseBlocks(t *testing.T) {
	req := &MessagesRequest{
		Model: "m",
		Messages: []MessageParam{
			{
				Role: RoleAssistant,
				Content: MessageContent{Blocks: []ContentBlock{
					{Type: "text", Text: "Running the tool."},
					{Type: "tool_use", ID: "call_1", Name: "read_file", Input: map[string]any{"path": "a.go"}},
				}},
			},
		},
	}

	out, err := ToChatRequest(req)
	if err != nil {
		t.Fatalf("ToChatRequest failed: %v", err)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(out.Messages))
	}

	msg := out.Messages[0]
	if msg.Content != "Running the tool." {
		t.Errorf("Expected text content preserved, got %q", msg.Content)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(msg.ToolCalls))
	}
	call := msg.ToolCalls[0]
	if call.ID != "call_1" || call.Function.Name != "read_file" {
		t.Errorf("Unexpected tool call: %+v", call)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		t.Fatalf("Tool arguments are not valid JSON: %v", err)
	}
	if args["path"] != "a.go" {
		t.Errorf("Expected path argument, got %v", args)
	}
}

func TestToChatRequestToolResultBlocks(t *testing.T) {
	req := &MessagesRequest{
		Model: "m",
		Messages: []MessageParam{
			{
				Role: RoleUser,
				Content: MessageContent{Blocks: []ContentBlock{
					{Type: "tool_result", ToolUseID: "call_1", Content: json.RawMessage(`"file contents"`)},
				}},
			},
		},
	}

	out, err := ToChatRequest(req)
	if err != nil {
		t.Fatalf("ToChatRequest failed: %v", err)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(out.Messages))
	}
	msg := out.Messages[0]
	if msg.Role != RoleTool {
		t.Errorf("Expected tool role, got %q", msg.Role)
	}
	if msg.ToolCallID != "call_1" {
		t.Errorf("Expected tool_call_id call_1, got %q", msg.ToolCallID)
	}
	if msg.Content != "file contents" {
		t.Errorf("Expected flattened result text, got %q", msg.Content)
	}
}

func TestToChatRequestToolDefinitions(t *testing.T) {
	req := &MessagesRequest{
		Model:    "m",
		Messages: []MessageParam{{Role: RoleUser, Content: MessageContent{Text: "x"}}},
		Tools: []ToolDefinition{
			{
				Name:        "list_files",
				Description: "List files in a directory",
				InputSchema: map[string]any{"type": "object"},
			},
		},
	}

	out, err := ToChatRequest(req)
	if err != nil {
		t.Fatalf("ToChatRequest failed: %v", err)
	}
	if len(out.Tools) != 1 {
		t.Fatalf("Expected 1 tool, got %d", len(out.Tools))
	}
	tool := out.Tools[0]
	if tool.Type != "function" {
		t.Errorf("Expected function tool type, got %q", tool.Type)
	}
	if tool.Function.Name != "list_files" || tool.Function.Description != "List files in a directory" {
		t.Errorf("Unexpected function declaration: %+v", tool.Function)
	}
	if tool.Function.Parameters["type"] != "object" {
		t.Errorf("Expected input schema carried as parameters, got %v", tool.Function.Parameters)
	}
}

func TestSystemPromptUnmarshalForms(t *testing.T) {
	var fromString SystemPrompt
	if err := json.Unmarshal([]byte(`"plain"`), &fromString); err != nil {
		t.Fatalf("String form failed: %v", err)
	}
	if len(fromString) != 1 || fromString[0] != "plain" {
		t.Errorf("Unexpected string form result: %v", fromString)
	}

	var fromBlocks SystemPrompt
	if err := json.Unmarshal([]byte(`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`), &fromBlocks); err != nil {
		t.Fatalf("Block form failed: %v", err)
	}
	if len(fromBlocks) != 2 || fromBlocks[0] != "a" || fromBlocks[1] != "b" {
		t.Errorf("Unexpected block form result: %v", fromBlocks)
	}

	var bad SystemPrompt
	if err := json.Unmarshal([]byte(`42`), &bad); err == nil {
		t.Error("Expected error for numeric system field")
	}
}
