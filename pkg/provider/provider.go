// Package provider implements the Provider Adapter: the single point
// through which a sanitized request is sent to an external model provider
// and its reply normalized back into the audit trail.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/boundary/pkg/audit"
	"github.com/Mindburn-Labs/boundary/pkg/redaction"
)

// ChatMessage is a single normalized message sent to/from a provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting, when the provider supplies it.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Reply is the normalized model reply: required content, optional
// finish reason/usage/request id.
type Reply struct {
	Content          string  `json:"content"`
	FinishReason     *string `json:"finish_reason,omitempty"`
	Usage            *Usage  `json:"usage,omitempty"`
	ProviderRequestID *string `json:"provider_request_id,omitempty"`
}

// Response bundles the raw provider payload with its normalized reply, so
// callers can archive both.
type Response struct {
	RawJSON    json.RawMessage `json:"raw_json"`
	Normalized Reply           `json:"normalized"`
}

// Outcome is returned by Dispatch: either a Response on success, or a
// Status/error describing why dispatch failed, using the taxonomy
// ok|error|timeout|rate_limited.
type Outcome struct {
	Status   audit.CallStatus
	Response *Response
	Err      error
	Latency  time.Duration
}

// Provider dispatches a sanitized request to an external model.
type Provider interface {
	Dispatch(ctx context.Context, req redaction.SanitizedModelRequest) Outcome
}

// OpenAICompatProvider speaks the OpenAI-compatible chat completions wire
// protocol over plain net/http, with no HTTP framework in between.
type OpenAICompatProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewOpenAICompatProvider builds a provider with a 30s request timeout.
func NewOpenAICompatProvider(baseURL, apiKey string) *OpenAICompatProvider {
	return &OpenAICompatProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type openAICompatRequest struct {
	Model       string                    `json:"model"`
	Messages    []ChatMessage             `json:"messages"`
	MaxTokens   *int                      `json:"max_tokens,omitempty"`
	Temperature *float64                  `json:"temperature,omitempty"`
	TopP        *float64                  `json:"top_p,omitempty"`
	Stop        []string                  `json:"stop,omitempty"`
}

type openAICompatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Dispatch POSTs req to {BaseURL}/v1/chat/completions and normalizes the
// reply. Network timeouts map to StatusTimeout, HTTP 429 maps to
// StatusRateLimited, any other failure maps to StatusError.
func (p *OpenAICompatProvider) Dispatch(ctx context.Context, req redaction.SanitizedModelRequest) Outcome {
	start := time.Now()

	messages := make([]ChatMessage, len(req.Prompt.Messages))
	for i, m := range req.Prompt.Messages {
		messages[i] = ChatMessage{Role: m.Role, Content: m.Content}
	}
	body := openAICompatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.Prompt.MaxOutputTokens,
		Temperature: req.Prompt.Temperature,
		TopP:        req.Prompt.TopP,
	}
	if len(req.Prompt.Stop) > 0 {
		body.Stop = req.Prompt.Stop
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Outcome{Status: audit.StatusError, Err: fmt.Errorf("provider: marshal request: %w", err), Latency: time.Since(start)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Outcome{Status: audit.StatusError, Err: fmt.Errorf("provider: build request: %w", err), Latency: time.Since(start)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		status := audit.StatusError
		if ctxErr := ctx.Err(); ctxErr != nil || isTimeout(err) {
			status = audit.StatusTimeout
		}
		return Outcome{Status: status, Err: fmt.Errorf("provider: do request: %w", err), Latency: time.Since(start)}
	}
	defer resp.Body.Close()

	raw := make([]byte, 0, 4096)
	buf := bytes.NewBuffer(raw)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return Outcome{Status: audit.StatusError, Err: fmt.Errorf("provider: read response: %w", err), Latency: time.Since(start)}
	}
	rawJSON := buf.Bytes()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Outcome{Status: audit.StatusRateLimited, Err: fmt.Errorf("provider: rate limited: status %d", resp.StatusCode), Latency: time.Since(start)}
	}
	if resp.StatusCode != http.StatusOK {
		return Outcome{Status: audit.StatusError, Err: fmt.Errorf("provider: unexpected status %d: %s", resp.StatusCode, rawJSON), Latency: time.Since(start)}
	}

	var parsed openAICompatResponse
	if err := json.Unmarshal(rawJSON, &parsed); err != nil {
		return Outcome{Status: audit.StatusError, Err: fmt.Errorf("provider: invalid response: %w", err), Latency: time.Since(start)}
	}
	if len(parsed.Choices) == 0 {
		return Outcome{Status: audit.StatusError, Err: fmt.Errorf("provider: invalid response: no choices"), Latency: time.Since(start)}
	}

	reply := Reply{Content: parsed.Choices[0].Message.Content}
	if parsed.Choices[0].FinishReason != "" {
		fr := parsed.Choices[0].FinishReason
		reply.FinishReason = &fr
	}
	if parsed.Usage.PromptTokens != 0 || parsed.Usage.CompletionTokens != 0 {
		reply.Usage = &Usage{InputTokens: parsed.Usage.PromptTokens, OutputTokens: parsed.Usage.CompletionTokens}
	}
	if parsed.ID != "" {
		id := parsed.ID
		reply.ProviderRequestID = &id
	}

	return Outcome{
		Status:  audit.StatusOK,
		Response: &Response{RawJSON: rawJSON, Normalized: reply},
		Latency: time.Since(start),
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok {
		return te.Timeout()
	}
	return false
}
