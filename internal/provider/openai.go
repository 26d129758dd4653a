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

// OpenAIClient talks to OpenAI-compatible chat-completions APIs. It is also
// the default adapter for unknown provider types, since most local model
// servers expose this format.
type OpenAIClient struct {
	name   string
	cfg    config.ProviderConfig
	apiKey string
	client *http.Client
}

func NewOpenAIClient(name string, cfg config.ProviderConfig, apiKey string, client *http.Client) *OpenAIClient {
	return &OpenAIClient{name: name, cfg: cfg, apiKey: apiKey, client: client}
}

func (c *OpenAIClient) Name() string { return c.name }

func (c *OpenAIClient) Generate(ctx context.Context, model, prompt string, params types.Parameters) (*Result, error) {
	body := openAIRequestBody{
		Model:       model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		TopP:        params.TopP,
		Stop:        params.Stop,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Class: ClassInvalidRequest, Provider: c.name, Message: "marshal request: " + err.Error()}
	}

	url := c.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Class: ClassInvalidRequest, Provider: c.name, Message: "create http request: " + err.Error()}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
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

	var oaiResp openAIResponseBody
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, &Error{Class: ClassUnavailable, Provider: c.name, Message: "unmarshal response: " + err.Error()}
	}
	if len(oaiResp.Choices) == 0 {
		return nil, &Error{Class: ClassUnavailable, Provider: c.name, Message: "response contained no choices"}
	}

	return &Result{
		Text:         oaiResp.Choices[0].Message.Content,
		InputTokens:  oaiResp.Usage.PromptTokens,
		OutputTokens: oaiResp.Usage.CompletionTokens,
	}, nil
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequestBody struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

type openAIResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
