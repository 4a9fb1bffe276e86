package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

const defaultTemperature = 0.7

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model       string
	BaseURL     string
	Temperature float64
	client      *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string) *OllamaProvider {
	return &OllamaProvider{
		Model:       model,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Temperature: defaultTemperature,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	log.Printf("Ollama model %q not found", o.Model)
	return false
}

// Generate sends a prompt to Ollama in JSON mode and returns the response.
func (o *OllamaProvider) Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	body := map[string]any{
		"model":    o.Model,
		"messages": chatMessages(system, prompt),
		"stream":   false,
		"format":   "json",
		"options": map[string]any{
			"num_predict": maxTokens,
			"temperature": o.Temperature,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return result.Message.Content, nil
}

const openAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIProvider is an OpenAI API provider.
type OpenAIProvider struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	client      *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(model, apiKeyEnv string) *OpenAIProvider {
	return &OpenAIProvider{
		Model:       model,
		APIKey:      os.Getenv(apiKeyEnv),
		BaseURL:     openAIURL,
		Temperature: defaultTemperature,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Generate sends a prompt to OpenAI in JSON mode and returns the response.
func (o *OpenAIProvider) Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	if o.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	body := map[string]any{
		"model":           o.Model,
		"messages":        chatMessages(system, prompt),
		"max_tokens":      maxTokens,
		"temperature":     o.Temperature,
		"response_format": map[string]string{"type": "json_object"},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("OpenAI API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}

	return result.Choices[0].Message.Content, nil
}

func chatMessages(system, prompt string) []map[string]string {
	var msgs []map[string]string
	if system != "" {
		msgs = append(msgs, map[string]string{"role": "system", "content": system})
	}
	return append(msgs, map[string]string{"role": "user", "content": prompt})
}

// Options selects and tunes a provider.
type Options struct {
	Provider    string
	Model       string
	OllamaURL   string
	OpenAIModel string
	APIKeyEnv   string
	Temperature float64
}

// CreateProvider creates an LLM provider based on configuration. It
// returns nil when nothing is reachable.
func CreateProvider(opts Options) Provider {
	temp := opts.Temperature
	if temp == 0 {
		temp = defaultTemperature
	}

	if strings.ToLower(opts.Provider) == "ollama" {
		p := NewOllamaProvider(opts.Model, opts.OllamaURL)
		p.Temperature = temp
		if p.IsConfigured() {
			log.Printf("Using Ollama with model: %s", opts.Model)
			return p
		}
		log.Println("Ollama not available, trying OpenAI fallback...")
	}

	p := NewOpenAIProvider(opts.OpenAIModel, opts.APIKeyEnv)
	p.Temperature = temp
	if p.IsConfigured() {
		log.Printf("Using OpenAI with model: %s", opts.OpenAIModel)
		return p
	}

	log.Printf("No LLM provider available. Check Ollama is running or set %s.", opts.APIKeyEnv)
	return nil
}
