package translate

import (
	"strings"
)

// StreamState drives one streaming translation from chat-completion chunks
// to native stream events. It is created when the first upstream chunk of
// a response arrives and must be discarded once the terminal chunk has
// been processed; reuse across streams corrupts block indices and token
// counts.
//
// States: not-started -> started -> content-streaming -> stopped. The
// first chunk carrying content emits message_start then
// content_block_start before its first delta. The chunk carrying a
// finish_reason emits content_block_stop, message_delta (with the mapped
// stop_reason and final output-token count), then message_stop; chunks
// after that are ignored.
type StreamState struct {
	messageID string
	model     string

	started   bool
	stopped   bool
	blockOpen bool

	// blockIndex is the index of the currently open content block.
	blockIndex int

	// toolBlocks maps tool-call ids to their content block index;
	// toolArgs accumulates each call's streamed argument fragments.
	toolBlocks    map[string]int
	toolArgs      map[string]*strings.Builder
	currentToolID string

	inputTokens  int
	outputTokens int
	usageExact   bool
}

// NewStreamState creates the state for one streaming response. The model
// is used until the upstream chunks carry their own; inputTokens is the
// best-known input count to report in message_start.
func NewStreamState(model string, inputTokens int) *StreamState {
	return &StreamState{
		model:       model,
		blockIndex:  -1,
		toolBlocks:  make(map[string]int),
		toolArgs:    make(map[string]*strings.Builder),
		inputTokens: inputTokens,
	}
}

// Stopped reports whether the terminal chunk has been processed.
func (s *StreamState) Stopped() bool {
	return s.stopped
}

// ToolArguments returns the accumulated argument JSON for a tool call id.
func (s *StreamState) ToolArguments(id string) string {
	if b, ok := s.toolArgs[id]; ok {
		return b.String()
	}
	return ""
}

// Process translates one upstream chunk into zero or more native stream
// events, in emission order.
func (s *StreamState) Process(chunk *ChatResponse) []StreamEvent {
	if s.stopped {
		return nil
	}

	if s.messageID == "" && chunk.ID != "" {
		s.messageID = chunk.ID
	}
	if chunk.Model != "" {
		s.model = chunk.Model
	}
	if chunk.Usage != nil {
		if chunk.Usage.PromptTokens > 0 {
			s.inputTokens = chunk.Usage.PromptTokens - chunk.Usage.cachedPromptTokens()
		}
		if chunk.Usage.CompletionTokens > 0 {
			s.outputTokens = chunk.Usage.CompletionTokens
			s.usageExact = true
		}
	}

	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]

	var events []StreamEvent

	if choice.Delta != nil {
		if choice.Delta.Content != "" {
			events = append(events, s.textDelta(choice.Delta.Content)...)
		}
		for _, call := range choice.Delta.ToolCalls {
			events = append(events, s.toolDelta(call)...)
		}
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		events = append(events, s.finish(*choice.FinishReason)...)
	}

	return events
}

// start emits message_start and opens the first content block.
func (s *StreamState) start(block ContentBlock) []StreamEvent {
	s.started = true
	s.blockIndex = 0
	s.blockOpen = true

	idx := s.blockIndex
	return []StreamEvent{
		{
			Type: EventMessageStart,
			Message: &MessagesResponse{
				ID:      s.messageID,
				Type:    "message",
				Role:    RoleAssistant,
				Model:   s.model,
				Content: []ContentBlock{},
				Usage:   Usage{InputTokens: s.inputTokens},
			},
		},
		{
			Type:         EventContentBlockStart,
			Index:        &idx,
			ContentBlock: &block,
		},
	}
}

// openBlock closes the current block and opens a new one for block.
func (s *StreamState) openBlock(block ContentBlock) []StreamEvent {
	var events []StreamEvent

	if !s.started {
		return s.start(block)
	}

	if s.blockOpen {
		idx := s.blockIndex
		events = append(events, StreamEvent{Type: EventContentBlockStop, Index: &idx})
	}

	s.blockIndex++
	s.blockOpen = true
	idx := s.blockIndex
	events = append(events, StreamEvent{
		Type:         EventContentBlockStart,
		Index:        &idx,
		ContentBlock: &block,
	})
	return events
}

func (s *StreamState) textDelta(text string) []StreamEvent {
	var events []StreamEvent

	// A text delta after tool blocks opens a fresh text block; the
	// common case continues block zero.
	if !s.started {
		events = append(events, s.start(ContentBlock{Type: "text", Text: ""})...)
	} else if s.currentToolID != "" {
		events = append(events, s.openBlock(ContentBlock{Type: "text", Text: ""})...)
		s.currentToolID = ""
	}

	if !s.usageExact {
		s.outputTokens += EstimateTextTokens(text)
	}

	idx := s.blockIndex
	events = append(events, StreamEvent{
		Type:  EventContentBlockDelta,
		Index: &idx,
		Delta: &StreamDelta{Type: "text_delta", Text: text},
	})
	return events
}

func (s *StreamState) toolDelta(call ChatToolCall) []StreamEvent {
	var events []StreamEvent

	// A fragment with an id starts (or re-addresses) a tool call;
	// fragments without one extend the current call's arguments.
	if call.ID != "" && call.ID != s.currentToolID {
		if _, seen := s.toolBlocks[call.ID]; !seen {
			events = append(events, s.openBlock(ContentBlock{
				Type:  "tool_use",
				ID:    call.ID,
				Name:  call.Function.Name,
				Input: map[string]any{},
			})...)
			s.toolBlocks[call.ID] = s.blockIndex
			s.toolArgs[call.ID] = &strings.Builder{}
		}
		s.currentToolID = call.ID
	}

	if s.currentToolID == "" {
		// Argument fragment with no preceding tool-call id; nothing to
		// attach it to.
		return events
	}

	if args := call.Function.Arguments; args != "" {
		s.toolArgs[s.currentToolID].WriteString(args)
		if !s.usageExact {
			s.outputTokens += EstimateTextTokens(args)
		}
		idx := s.toolBlocks[s.currentToolID]
		events = append(events, StreamEvent{
			Type:  EventContentBlockDelta,
			Index: &idx,
			Delta: &StreamDelta{Type: "input_json_delta", PartialJSON: args},
		})
	}

	return events
}

func (s *StreamState) finish(reason string) []StreamEvent {
	var events []StreamEvent

	// A stream that finishes without ever producing content still gets
	// a well-formed event sequence around an empty text block.
	if !s.started {
		events = append(events, s.start(ContentBlock{Type: "text", Text: ""})...)
	}

	if s.blockOpen {
		idx := s.blockIndex
		events = append(events, StreamEvent{Type: EventContentBlockStop, Index: &idx})
		s.blockOpen = false
	}

	events = append(events,
		StreamEvent{
			Type:  EventMessageDelta,
			Delta: &StreamDelta{StopReason: MapFinishReason(reason)},
			Usage: &Usage{OutputTokens: s.outputTokens},
		},
		StreamEvent{Type: EventMessageStop},
	)

	s.stopped = true
	return events
}
