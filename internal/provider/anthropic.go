package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/lessonforge/scribe/internal/config"
	"github.com/lessonforge/scribe/internal/types"
)

const defaultAnthropicVersion = "2023-06-01"

// anthropicDefaultMaxTokens is used when the caller requests no output limit;
// the Messages API requires max_tokens.
const anthropicDefaultMaxTokens = 4096

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	name   string
	cfg    config.ProviderConfig
	apiKey string
	client *http.Client
}

func NewAnthropicClient(name string, cfg config.ProviderConfig, apiKey string, client *http.Client) *AnthropicClient {
	return &AnthropicClient{name: name, cfg: cfg, apiKey: apiKey, client: client}
}

func (c *AnthropicClient) Name() string { return c.name }

func (c *AnthropicClient) Generate(ctx context.Context, model, prompt string, params types.Parameters) (*Result, error) {
	maxTokens := anthropicDefaultMaxTokens
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}

	body := anthropicRequestBody{
		Model:       model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		Stop:        params.Stop,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Class: ClassInvalidRequest, Provider: c.name, Message: "marshal request: " + err.Error()}
	}

	url := c.cfg.BaseURL + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Class: ClassInvalidRequest, Provider: c.name, Message: "create http request: " + err.Error()}
	}

	version := c.cfg.APIVersion
	if version == "" {
		version = defaultAnthropicVersion
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", version)
	for k, v := range c.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, c.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, c.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(c.name, resp, respBody)
	}

	var antResp anthropicResponseBody
	if err := json.Unmarshal(respBody, &antResp); err != nil {
		return nil, &Error{Class: ClassUnavailable, Provider: c.name, Message: "unmarshal response: " + err.Error()}
	}

	var text string
	for _, block := range antResp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	return &Result{
		Text:         text,
		InputTokens:  antResp.Usage.InputTokens,
		OutputTokens: antResp.Usage.OutputTokens,
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stop        []string           `json:"stop_sequences,omitempty"`
}

type anthropicResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
