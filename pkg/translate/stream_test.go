package translate

import "testing"

func eventTypes(events []StreamEvent) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func chunkWithText(text string) *ChatResponse {
	return &ChatResponse{
		ID:      "chatcmpl-s1",
		Model:   "gpt-test",
		Choices: []ChatChoice{{Delta: &ChatMessage{Content: text}}},
	}
}

func chunkWithFinish(reason string, usage *ChatUsage) *ChatResponse {
	return &ChatResponse{
		ID:      "chatcmpl-s1",
		Choices: []ChatChoice{{Delta: &ChatMessage{}, FinishReason: strptr(reason)}},
		Usage:   usage,
	}
}

func TestStreamEventOrdering(t *testing.T) {
	state := NewStreamState("gpt-test", 12)

	var events []StreamEvent
	events = append(events, state.Process(chunkWithText("Hel"))...)
	events = append(events, state.Process(chunkWithText("lo"))...)
	events = append(events, state.Process(chunkWithFinish(ChatFinishStop, &ChatUsage{PromptTokens: 12, CompletionTokens: 2}))...)

	want := []string{
		EventMessageStart,
		EventContentBlockStart,
		EventContentBlockDelta,
		EventContentBlockDelta,
		EventContentBlockStop,
		EventMessageDelta,
		EventMessageStop,
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("Expected %d events, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	start := events[0]
	if start.Message == nil {
		t.Fatal("message_start carries no message")
	}
	if start.Message.Role != RoleAssistant || start.Message.Usage.InputTokens != 12 {
		t.Errorf("Unexpected message_start envelope: %+v", start.Message)
	}

	if events[2].Delta.Text != "Hel" || events[3].Delta.Text != "lo" {
		t.Errorf("Deltas out of order: %q then %q", events[2].Delta.Text, events[3].Delta.Text)
	}

	var msgDelta StreamEvent
	for _, e := range events {
		if e.Type == EventMessageDelta {
			msgDelta = e
		}
	}
	if msgDelta.Delta.StopReason != StopReasonEndTurn {
		t.Errorf("Expected stop_reason end_turn, got %q", msgDelta.Delta.StopReason)
	}
	if msgDelta.Usage == nil || msgDelta.Usage.OutputTokens != 2 {
		t.Errorf("Expected exact output_tokens 2, got %+v", msgDelta.Usage)
	}
}

func TestStreamIgnoresChunksAfterStop(t *testing.T) {
	state := NewStreamState("m", 0)

	state.Process(chunkWithText("done"))
	state.Process(chunkWithFinish(ChatFinishStop, nil))

	if !state.Stopped() {
		t.Fatal("Expected state to be stopped after finish_reason")
	}
	if events := state.Process(chunkWithText("late")); len(events) != 0 {
		t.Errorf("Expected no events after stop, got %v", eventTypes(events))
	}
}

func TestStreamFinishBeforeContent(t *testing.T) {
	state := NewStreamState("m", 3)

	events := state.Process(chunkWithFinish(ChatFinishStop, nil))

	want := []string{
		EventMessageStart,
		EventContentBlockStart,
		EventContentBlockStop,
		EventMessageDelta,
		EventMessageStop,
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestStreamToolCallAccumulation(t *testing.T) {
	state := NewStreamState("m", 0)

	idx := 0
	first := &ChatResponse{
		Choices: []ChatChoice{{Delta: &ChatMessage{ToolCalls: []ChatToolCall{
			{Index: &idx, ID: "call_a", Type: "function", Function: ChatFunctionCall{Name: "search", Arguments: `{"q":`}},
		}}}},
	}
	second := &ChatResponse{
		Choices: []ChatChoice{{Delta: &ChatMessage{ToolCalls: []ChatToolCall{
			{Index: &idx, Function: ChatFunctionCall{Arguments: `"go"}`}},
		}}}},
	}

	var events []StreamEvent
	events = append(events, state.Process(first)...)
	events = append(events, state.Process(second)...)
	events = append(events, state.Process(chunkWithFinish(ChatFinishToolCalls, nil))...)

	var blockStart *StreamEvent
	var deltas []StreamEvent
	for i := range events {
		switch events[i].Type {
		case EventContentBlockStart:
			blockStart = &events[i]
		case EventContentBlockDelta:
			deltas = append(deltas, events[i])
		}
	}

	if blockStart == nil || blockStart.ContentBlock == nil {
		t.Fatal("Expected a content_block_start for the tool call")
	}
	if blockStart.ContentBlock.Type != "tool_use" || blockStart.ContentBlock.Name != "search" {
		t.Errorf("Unexpected tool block: %+v", blockStart.ContentBlock)
	}

	if len(deltas) != 2 {
		t.Fatalf("Expected 2 input_json_delta events, got %d", len(deltas))
	}
	for _, d := range deltas {
		if d.Delta.Type != "input_json_delta" {
			t.Errorf("Expected input_json_delta, got %q", d.Delta.Type)
		}
	}

	if got := state.ToolArguments("call_a"); got != `{"q":"go"}` {
		t.Errorf("Expected accumulated arguments, got %q", got)
	}

	last := events[len(events)-2]
	if last.Type != EventMessageDelta || last.Delta.StopReason != StopReasonToolUse {
		t.Errorf("Expected message_delta with stop_reason tool_use, got %+v", last)
	}
}

func TestStreamTextThenToolBlockIndices(t *testing.T) {
	state := NewStreamState("m", 0)

	var events []StreamEvent
	events = append(events, state.Process(chunkWithText("Let me check."))...)

	idx := 0
	toolChunk := &ChatResponse{
		Choices: []ChatChoice{{Delta: &ChatMessage{ToolCalls: []ChatToolCall{
			{Index: &idx, ID: "call_b", Function: ChatFunctionCall{Name: "lookup", Arguments: `{}`}},
		}}}},
	}
	events = append(events, state.Process(toolChunk)...)
	events = append(events, state.Process(chunkWithFinish(ChatFinishToolCalls, nil))...)

	var starts []int
	for _, e := range events {
		if e.Type == EventContentBlockStart {
			starts = append(starts, *e.Index)
		}
	}
	if len(starts) != 2 || starts[0] != 0 || starts[1] != 1 {
		t.Errorf("Expected block indices [0 1], got %v", starts)
	}

	stops := 0
	for _, e := range events {
		if e.Type == EventContentBlockStop {
			stops++
		}
	}
	if stops != 2 {
		t.Errorf("Expected both blocks closed, got %d content_block_stop events", stops)
	}
}

func TestStreamEstimatedOutputTokens(t *testing.T) {
	state := NewStreamState("m", 0)

	state.Process(chunkWithText("twelve chars"))
	events := state.Process(chunkWithFinish(ChatFinishStop, nil))

	var usage *Usage
	for _, e := range events {
		if e.Type == EventMessageDelta {
			usage = e.Usage
		}
	}
	if usage == nil {
		t.Fatal("message_delta carries no usage")
	}
	if usage.OutputTokens != 3 {
		t.Errorf("Expected estimated output_tokens 3, got %d", usage.OutputTokens)
	}
}
