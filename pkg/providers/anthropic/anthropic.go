package anthropic

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mercator-hq/ganymede/pkg/events"
	"mercator-hq/ganymede/pkg/providers"
	"mercator-hq/ganymede/pkg/proxy/stream"
)

// ID is the provider id this plugin registers under.
const ID = "anthropic"

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultVersion = "2023-06-01"
)

// handledPaths are the native API paths the plugin serves. Requests are
// forwarded unmodified; no protocol translation happens for this
// provider.
var handledPaths = map[string]bool{
	"/v1/messages":              true,
	"/v1/messages/count_tokens": true,
	"/v1/models":                true,
	"/v1/usage":                 true,
}

// jsonBodyPaths are the handled paths whose requests carry a JSON body.
var jsonBodyPaths = map[string]bool{
	"/v1/messages":              true,
	"/v1/messages/count_tokens": true,
}

// Plugin forwards native-protocol requests to the Anthropic API without
// translation, streaming responses back through the shared fan-out so
// event sinks observe the same bytes as the client.
type Plugin struct {
	upstream *providers.Upstream
}

// New creates the plugin around its upstream client.
func New(upstream *providers.Upstream) *Plugin {
	return &Plugin{upstream: upstream}
}

// Descriptor declares the plugin's settings.
func (p *Plugin) Descriptor() providers.Descriptor {
	return providers.Descriptor{
		ID:   ID,
		Name: "Anthropic",
		Settings: []providers.SettingDescriptor{
			{
				Key:     "anthropic.base_url",
				Label:   "API base URL",
				Kind:    providers.SettingText,
				Default: defaultBaseURL,
				EnvVars: []string{"ANTHROPIC_BASE_URL"},
			},
			{
				Key:     "anthropic.api_key",
				Label:   "API key",
				Kind:    providers.SettingText,
				Secret:  true,
				EnvVars: []string{"ANTHROPIC_API_KEY"},
			},
			{
				Key:     "anthropic.version",
				Label:   "API version header",
				Kind:    providers.SettingText,
				Default: defaultVersion,
			},
		},
	}
}

// HandlesPath reports whether the path belongs to the native API surface.
func (p *Plugin) HandlesPath(path string) bool {
	return handledPaths[path]
}

// ExpectsJSONBody reports whether the path carries a JSON request body.
func (p *Plugin) ExpectsJSONBody(path string) bool {
	return jsonBodyPaths[path]
}

// HandleRequest forwards the request and relays the response, streamed
// or buffered, back to the client.
func (p *Plugin) HandleRequest(ctx *providers.RequestContext) (bool, error) {
	if !p.HandlesPath(ctx.Path) {
		return false, nil
	}

	ctx.Emit(ID, events.KindRequest, "", nil)

	header := upstreamHeader(ctx)
	resp, err := p.upstream.Do(ctx.Context(), ctx.Method, ctx.Path, ctx.Body, header)
	if err != nil {
		return true, p.relayError(ctx, err)
	}
	defer resp.Body.Close()

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return true, p.relayStream(ctx, resp)
	}
	return true, p.relayBuffered(ctx, resp)
}

// upstreamHeader builds the forwarded header set. The client's own
// x-api-key wins; otherwise the configured key is injected.
func upstreamHeader(ctx *providers.RequestContext) http.Header {
	header := http.Header{}
	for _, key := range []string{"Content-Type", "Accept", "Anthropic-Beta"} {
		if v := ctx.Header.Get(key); v != "" {
			header.Set(key, v)
		}
	}

	apiKey := ctx.Header.Get("X-Api-Key")
	if apiKey == "" {
		apiKey = ctx.Setting("anthropic.api_key", "")
	}
	if apiKey != "" {
		header.Set("X-Api-Key", apiKey)
	}

	version := ctx.Header.Get("Anthropic-Version")
	if version == "" {
		version = ctx.Setting("anthropic.version", defaultVersion)
	}
	header.Set("Anthropic-Version", version)

	return header
}

func (p *Plugin) relayBuffered(ctx *providers.RequestContext, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		ctx.Emit(ID, events.KindError, err.Error(), nil)
		return fmt.Errorf("failed to read upstream response: %w", err)
	}

	header := http.Header{}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		header.Set("Content-Type", ct)
	}

	ctx.Emit(ID, events.KindResponse, resp.Status, map[string]any{"status": resp.StatusCode, "bytes": len(body)})

	return ctx.Respond(resp.StatusCode, header, body)
}

func (p *Plugin) relayStream(ctx *providers.RequestContext, resp *http.Response) error {
	w, err := ctx.StartEventStream(resp.StatusCode)
	if err != nil {
		return err
	}

	assembler := &stream.Assembler{}
	if err := stream.FanOut(resp.Body, w, assembler); err != nil {
		ctx.RecordStreamBytes(len(assembler.Bytes()))
		ctx.Emit(ID, events.KindError, "stream truncated: "+err.Error(),
			map[string]any{"bytes": len(assembler.Bytes())})
		return nil
	}

	ctx.RecordStreamBytes(len(assembler.Bytes()))
	ctx.Emit(ID, events.KindResponse, resp.Status,
		map[string]any{"status": resp.StatusCode, "bytes": len(assembler.Bytes()), "streamed": true})
	return nil
}

// relayError answers the client with the upstream's own error body when
// one exists, and a plain 502 otherwise.
func (p *Plugin) relayError(ctx *providers.RequestContext, err error) error {
	ctx.Emit(ID, events.KindError, err.Error(), nil)

	var upstreamErr *providers.UpstreamError
	if errors.As(err, &upstreamErr) {
		header := http.Header{"Content-Type": []string{"application/json"}}
		return ctx.Respond(upstreamErr.StatusCode, header, upstreamErr.Body)
	}

	var rateErr *providers.RateLimitError
	if errors.As(err, &rateErr) {
		header := http.Header{"Content-Type": []string{"application/json"}}
		if rateErr.RetryAfter > 0 {
			header.Set("Retry-After", fmt.Sprintf("%d", int(rateErr.RetryAfter.Seconds())))
		}
		return ctx.Respond(http.StatusTooManyRequests, header, rateErr.Body)
	}

	return ctx.RespondText(http.StatusBadGateway, "upstream request failed")
}
