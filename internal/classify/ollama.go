package classify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/abelbrown/gamepulse/internal/logging"
	"github.com/abelbrown/gamepulse/internal/store"
)

// OllamaProvider classifies posts with a local Ollama model.
type OllamaProvider struct {
	endpoint    string
	model       string
	temperature float64
	client      *http.Client
}

// OllamaOptions configures NewOllamaProvider. Zero fields take defaults.
type OllamaOptions struct {
	Endpoint    string        // default http://localhost:11434
	Model       string        // default mistral
	Temperature float64       // default 0.3
	Timeout     time.Duration // default 120s
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(opts OllamaOptions) *OllamaProvider {
	if opts.Endpoint == "" {
		opts.Endpoint = "http://localhost:11434"
	}
	if opts.Model == "" {
		opts.Model = "mistral"
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second // Longer timeout for local inference
	}
	return &OllamaProvider{
		endpoint:    strings.TrimRight(opts.Endpoint, "/"),
		model:       opts.Model,
		temperature: opts.Temperature,
		client:      &http.Client{Timeout: opts.Timeout},
	}
}

func (o *OllamaProvider) Name() string {
	return "ollama"
}

// Model returns the configured model name.
func (o *OllamaProvider) Model() string {
	return o.model
}

// Available reports whether Ollama answers and has the configured model.
func (o *OllamaProvider) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	models, err := o.ListModels(ctx)
	if err != nil {
		logging.Debug("Ollama not available", "endpoint", o.endpoint, "error", err)
		return false
	}
	for _, m := range models {
		if m.Name == o.model || strings.TrimSuffix(m.Name, ":latest") == o.model {
			return true
		}
	}
	logging.Debug("Ollama model not installed", "model", o.model)
	return false
}

// Classify sends the extraction prompt and parses the reply.
func (o *OllamaProvider) Classify(ctx context.Context, p store.Post) (Guess, Response, error) {
	resp, err := o.Generate(ctx, BuildPrompt(p))
	if err != nil {
		return None, resp, err
	}
	g, err := ParseGuess(resp.Content)
	return g, resp, err
}

// Generate runs a non-streaming /api/generate call.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string) (Response, error) {
	body := map[string]interface{}{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": o.temperature,
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logging.Error("Ollama API error", "status", resp.StatusCode, "body", string(respBody))
		return Response{RawResponse: string(respBody)}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Model    string `json:"model"`
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Response{RawResponse: string(respBody)}, fmt.Errorf("failed to parse response: %w", err)
	}

	logging.Debug("Ollama API response parsed",
		"model", result.Model,
		"content_length", len(result.Response),
		"done", result.Done)

	return Response{
		Content:     strings.TrimSpace(result.Response),
		Model:       result.Model,
		RawResponse: string(respBody),
	}, nil
}

// Ping asks the model for a trivial reply. Any 200 answer counts as success.
func (o *OllamaProvider) Ping(ctx context.Context) (Response, error) {
	return o.Generate(ctx, PingPrompt)
}

// ModelInfo is one installed model from /api/tags.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ListModels returns the installed models.
func (o *OllamaProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tags error (status %d)", resp.StatusCode)
	}

	var result struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse tags: %w", err)
	}
	return result.Models, nil
}

// PullProgress is one status line from /api/pull.
type PullProgress struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
	Error     string `json:"error,omitempty"`
}

// Pull downloads the configured model, reporting each progress line.
func (o *OllamaProvider) Pull(ctx context.Context, progress func(PullProgress)) error {
	jsonBody, err := json.Marshal(map[string]interface{}{"model": o.model, "stream": true})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/pull", bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// Downloads outlive the per-request timeout
	client := &http.Client{Transport: o.client.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("pull error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var p PullProgress
		if err := json.Unmarshal(line, &p); err != nil {
			continue
		}
		if p.Error != "" {
			return fmt.Errorf("pull %s: %s", o.model, p.Error)
		}
		if progress != nil {
			progress(p)
		}
	}
	return scanner.Err()
}
