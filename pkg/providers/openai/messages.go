package openai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"mercator-hq/ganymede/pkg/events"
	"mercator-hq/ganymede/pkg/providers"
	"mercator-hq/ganymede/pkg/proxy/stream"
	"mercator-hq/ganymede/pkg/translate"
)

func decodeMessagesRequest(body []byte) (*translate.MessagesRequest, error) {
	var req translate.MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// handleMessages serves the native messages endpoint by translating to
// the chat-completion shape, calling the upstream, and translating the
// response or stream back.
func (p *Plugin) handleMessages(ctx *providers.RequestContext) error {
	req, err := decodeMessagesRequest(ctx.Body)
	if err != nil {
		ctx.Emit(ID, events.KindError, "malformed request body", nil)
		return p.respondError(ctx, http.StatusBadRequest, translate.ErrorEnvelope{
			Type: "error",
			Error: translate.ErrorDetail{
				Type:    translate.ErrTypeInvalidRequest,
				Message: fmt.Sprintf("invalid request body: %v", err),
			},
		})
	}

	if model := ctx.Setting("openai.model", ""); model != "" {
		req.Model = model
	}

	chatReq, err := translate.ToChatRequest(req)
	if err != nil {
		ctx.Emit(ID, events.KindError, err.Error(), nil)
		return p.respondError(ctx, http.StatusBadRequest, translate.ErrorEnvelope{
			Type: "error",
			Error: translate.ErrorDetail{
				Type:    translate.ErrTypeInvalidRequest,
				Message: err.Error(),
			},
		})
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return fmt.Errorf("failed to marshal translated request: %w", err)
	}

	header := http.Header{"Content-Type": []string{"application/json"}}
	bearerHeader(ctx, header)
	resp, err := p.upstream.Do(ctx.Context(), http.MethodPost, "/chat/completions", body, header)
	if err != nil {
		return p.relayError(ctx, err)
	}
	defer resp.Body.Close()

	if req.Stream {
		return p.streamMessages(ctx, req, resp)
	}

	var chatResp translate.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		ctx.Emit(ID, events.KindError, err.Error(), nil)
		return p.respondError(ctx, http.StatusBadGateway, translate.ErrorFromTransport())
	}

	native := translate.FromChatResponse(&chatResp)
	ctx.Emit(ID, events.KindResponse, "", map[string]any{
		"stop_reason":   native.StopReason,
		"input_tokens":  native.Usage.InputTokens,
		"output_tokens": native.Usage.OutputTokens,
	})
	return ctx.RespondJSON(http.StatusOK, native)
}

// streamMessages drives one streaming translation: upstream SSE chunks in,
// native events out. The raw upstream bytes feed the fan-out once; the
// SSE sink decodes chunks for the state machine while the client receives
// translated events.
func (p *Plugin) streamMessages(ctx *providers.RequestContext, req *translate.MessagesRequest, resp *http.Response) error {
	w, err := ctx.StartEventStream(http.StatusOK)
	if err != nil {
		return err
	}

	state := translate.NewStreamState(req.Model, translate.CountRequestTokens(req))

	var writeErr error
	sink := &stream.SSESink{
		OnData: func(data []byte) {
			if writeErr != nil || state.Stopped() {
				return
			}
			var chunk translate.ChatResponse
			if err := json.Unmarshal(data, &chunk); err != nil {
				// Undecodable chunks are skipped; translation degrades,
				// it does not abort the stream.
				return
			}
			for _, ev := range state.Process(&chunk) {
				if writeErr = writeNativeEvent(w, ev); writeErr != nil {
					return
				}
			}
		},
	}

	counter := &byteCountSink{}
	if err := stream.FanOut(resp.Body, nil, sink, counter); err != nil {
		ctx.RecordStreamBytes(counter.n)
		ctx.Emit(ID, events.KindError, "stream truncated: "+err.Error(), nil)
		return nil
	}
	ctx.RecordStreamBytes(counter.n)
	if writeErr != nil {
		ctx.Emit(ID, events.KindError, "client write failed: "+writeErr.Error(), nil)
		return nil
	}

	ctx.Emit(ID, events.KindResponse, "", map[string]any{"streamed": true, "bytes": counter.n})
	return nil
}

// byteCountSink observes the fan-out to tally relayed upstream bytes.
type byteCountSink struct{ n int }

func (b *byteCountSink) OnChunk(p []byte) { b.n += len(p) }
func (b *byteCountSink) OnEnd(error)      {}

// writeNativeEvent frames one native stream event with its event name.
func writeNativeEvent(w io.Writer, ev translate.StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", ev.Type); err != nil {
		return err
	}
	return stream.WriteEvent(w, payload)
}
