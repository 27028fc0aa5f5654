// ABOUTME: Provider client construction from an API key and optional base URL
// ABOUTME: A custom base URL routes calls through an AI gateway proxy

package backend

import (
	openai "github.com/sashabaranov/go-openai"
)

// NewOpenAIClient builds the provider client. When baseURL is set, requests
// go through that endpoint instead of the provider's default, which is how
// a caching/metering AI gateway is put in front of the API.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	if baseURL == "" {
		return openai.NewClient(apiKey)
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return openai.NewClientWithConfig(cfg)
}
