package openai

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mercator-hq/ganymede/pkg/events"
	"mercator-hq/ganymede/pkg/providers"
	"mercator-hq/ganymede/pkg/proxy/stream"
	"mercator-hq/ganymede/pkg/security/credentials"
	"mercator-hq/ganymede/pkg/translate"
)

// ID is the provider id this plugin registers under.
const ID = "openai"

const defaultBaseURL = "https://api.openai.com/v1"

// passthroughPaths maps client paths to the upstream path they forward
// to. Bare aliases serve clients that omit the /v1 prefix.
var passthroughPaths = map[string]string{
	"/v1/chat/completions": "/chat/completions",
	"/chat/completions":    "/chat/completions",
	"/v1/models":           "/models",
	"/models":              "/models",
	"/v1/embeddings":       "/embeddings",
	"/embeddings":          "/embeddings",
	"/v1/usage":            "/usage",
	"/usage":               "/usage",
}

// jsonBodyPaths are the handled paths whose requests carry a JSON body.
var jsonBodyPaths = map[string]bool{
	"/v1/messages":              true,
	"/v1/messages/count_tokens": true,
	"/v1/chat/completions":      true,
	"/chat/completions":         true,
	"/v1/embeddings":            true,
	"/embeddings":               true,
}

// Plugin serves the native messages protocol against an OpenAI-compatible
// upstream by translating requests and responses, and forwards the
// upstream's own chat-completion surface untouched.
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
		Name: "OpenAI-compatible",
		Settings: []providers.SettingDescriptor{
			{
				Key:     "openai.base_url",
				Label:   "API base URL",
				Kind:    providers.SettingText,
				Default: defaultBaseURL,
				EnvVars: []string{"OPENAI_BASE_URL"},
			},
			{
				Key:     "openai.api_key",
				Label:   "API key",
				Kind:    providers.SettingText,
				Secret:  true,
				EnvVars: []string{"OPENAI_API_KEY"},
			},
			{
				Key:     "openai.model",
				Label:   "Model override for translated requests",
				Kind:    providers.SettingText,
				EnvVars: []string{"OPENAI_MODEL"},
			},
			{
				Key:     "openai.wait_on_rate_limit",
				Label:   "Wait when rate gated",
				Kind:    providers.SettingBool,
				Default: "true",
			},
		},
	}
}

// HandlesPath reports whether the path belongs to this plugin's surface.
func (p *Plugin) HandlesPath(path string) bool {
	if path == "/v1/messages" || path == "/v1/messages/count_tokens" {
		return true
	}
	if path == "/v1/token" || path == "/token" {
		return true
	}
	_, ok := passthroughPaths[path]
	return ok
}

// ExpectsJSONBody reports whether the path carries a JSON request body.
func (p *Plugin) ExpectsJSONBody(path string) bool {
	return jsonBodyPaths[path]
}

// HandleRequest dispatches to the translation path, the token-count
// estimator, the token endpoint, or plain passthrough.
func (p *Plugin) HandleRequest(ctx *providers.RequestContext) (bool, error) {
	switch ctx.Path {
	case "/v1/messages":
		ctx.Emit(ID, events.KindRequest, "", nil)
		return true, p.handleMessages(ctx)
	case "/v1/messages/count_tokens":
		ctx.Emit(ID, events.KindRequest, "", nil)
		return true, p.handleCountTokens(ctx)
	case "/v1/token", "/token":
		ctx.Emit(ID, events.KindRequest, "", nil)
		return true, p.handleToken(ctx)
	}

	upstreamPath, ok := passthroughPaths[ctx.Path]
	if !ok {
		return false, nil
	}
	ctx.Emit(ID, events.KindRequest, "", nil)
	return true, p.handlePassthrough(ctx, upstreamPath)
}

// handleCountTokens estimates input tokens locally. Estimation never
// fails; a malformed body still yields the minimum count.
func (p *Plugin) handleCountTokens(ctx *providers.RequestContext) error {
	req, err := decodeMessagesRequest(ctx.Body)
	if err != nil {
		req = &translate.MessagesRequest{}
	}
	return ctx.RespondJSON(http.StatusOK, map[string]int{
		"input_tokens": translate.CountRequestTokens(req),
	})
}

// handleToken resolves and returns the upstream bearer token, exercising
// the refresh path when only a long-lived credential is configured.
func (p *Plugin) handleToken(ctx *providers.RequestContext) error {
	token, err := p.upstream.ResolveToken(ctx.Context())
	if err != nil {
		ctx.Emit(ID, events.KindError, err.Error(), nil)

		var missing *credentials.MissingError
		if errors.As(err, &missing) {
			return p.respondError(ctx, http.StatusUnauthorized, translate.ErrorEnvelope{
				Type: "error",
				Error: translate.ErrorDetail{
					Type:    translate.ErrTypeAuthentication,
					Message: err.Error(),
				},
			})
		}
		return p.respondError(ctx, http.StatusBadGateway, translate.ErrorFromTransport())
	}
	return ctx.RespondJSON(http.StatusOK, map[string]string{"token": token})
}

// bearerHeader fills Authorization for an upstream call. The client's own
// header wins; otherwise the configured key is injected, mirroring how the
// anthropic plugin handles x-api-key.
func bearerHeader(ctx *providers.RequestContext, header http.Header) {
	if header.Get("Authorization") != "" {
		return
	}
	auth := ctx.Header.Get("Authorization")
	if auth == "" {
		if key := ctx.Setting("openai.api_key", ""); key != "" {
			auth = "Bearer " + key
		}
	}
	if auth != "" {
		header.Set("Authorization", auth)
	}
}

// handlePassthrough forwards a chat-completion-surface request unchanged.
func (p *Plugin) handlePassthrough(ctx *providers.RequestContext, upstreamPath string) error {
	header := http.Header{}
	for _, key := range []string{"Content-Type", "Accept"} {
		if v := ctx.Header.Get(key); v != "" {
			header.Set(key, v)
		}
	}
	bearerHeader(ctx, header)

	resp, err := p.upstream.Do(ctx.Context(), ctx.Method, upstreamPath, ctx.Body, header)
	if err != nil {
		return p.relayError(ctx, err)
	}
	defer resp.Body.Close()

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		w, err := ctx.StartEventStream(resp.StatusCode)
		if err != nil {
			return err
		}
		assembler := &stream.Assembler{}
		if err := stream.FanOut(resp.Body, w, assembler); err != nil {
			ctx.RecordStreamBytes(len(assembler.Bytes()))
			ctx.Emit(ID, events.KindError, "stream truncated: "+err.Error(), nil)
			return nil
		}
		ctx.RecordStreamBytes(len(assembler.Bytes()))
		ctx.Emit(ID, events.KindResponse, resp.Status,
			map[string]any{"status": resp.StatusCode, "bytes": len(assembler.Bytes()), "streamed": true})
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		ctx.Emit(ID, events.KindError, err.Error(), nil)
		return fmt.Errorf("failed to read upstream response: %w", err)
	}
	respHeader := http.Header{}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		respHeader.Set("Content-Type", ct)
	}
	ctx.Emit(ID, events.KindResponse, resp.Status, map[string]any{"status": resp.StatusCode, "bytes": len(body)})
	return ctx.Respond(resp.StatusCode, respHeader, body)
}

// relayError converts an upstream failure into the native error envelope
// the client understands.
func (p *Plugin) relayError(ctx *providers.RequestContext, err error) error {
	ctx.Emit(ID, events.KindError, err.Error(), nil)

	var upstreamErr *providers.UpstreamError
	if errors.As(err, &upstreamErr) {
		return p.respondError(ctx, upstreamErr.StatusCode,
			translate.ErrorFromUpstream(upstreamErr.StatusCode, upstreamErr.Body))
	}

	var rateErr *providers.RateLimitError
	if errors.As(err, &rateErr) {
		return p.respondError(ctx, http.StatusTooManyRequests,
			translate.ErrorFromUpstream(http.StatusTooManyRequests, rateErr.Body))
	}

	var authErr *providers.AuthError
	if errors.As(err, &authErr) {
		return p.respondError(ctx, http.StatusUnauthorized,
			translate.ErrorFromUpstream(http.StatusUnauthorized, []byte(authErr.Message)))
	}

	var gateErr *providers.GateRefusedError
	if errors.As(err, &gateErr) {
		return p.respondError(ctx, http.StatusTooManyRequests, translate.ErrorEnvelope{
			Type: "error",
			Error: translate.ErrorDetail{
				Type:    translate.ErrTypeRateLimit,
				Message: gateErr.Error(),
			},
		})
	}

	return p.respondError(ctx, http.StatusBadGateway, translate.ErrorFromTransport())
}

func (p *Plugin) respondError(ctx *providers.RequestContext, status int, env translate.ErrorEnvelope) error {
	return ctx.RespondJSON(status, env)
}
