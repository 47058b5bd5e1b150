package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/voicetask/internal/domain"
)

// LLMConfig holds configuration for an OpenAI-compatible chat completions API.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// LLMClient extracts deltas by asking a chat model for a JSON document.
type LLMClient struct {
	config     LLMConfig
	httpClient *http.Client
}

// NewLLMClient creates a client for the given configuration.
func NewLLMClient(config LLMConfig) *LLMClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &LLMClient{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

const systemPrompt = `You fill a chore task form from one spoken utterance.
Reply with a single JSON object and nothing else:
{"intent": "answer|revise|new_task|cancel|noop",
 "slot_updates": {"assignedChildId": string, "assignedChildName": string, "title": string, "dueText": string, "points": integer},
 "ambiguous": [slot names you could not resolve],
 "notes": string}
Only include slot_updates fields the utterance states. Copy the spoken due phrase into dueText verbatim.
Use assignedChildId only when the child is in the roster. Use "cancel" when the user abandons the task.`

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Extract sends the utterance and slot state to the model and decodes its reply.
func (c *LLMClient) Extract(ctx context.Context, req Request) (domain.SlotDelta, error) {
	if req.Roster == nil {
		req.Roster = []domain.Child{}
	}
	userContent, err := json.Marshal(req)
	if err != nil {
		return domain.SlotDelta{}, fmt.Errorf("marshaling extract request: %w", err)
	}

	body := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(userContent)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if c.config.Temperature != 0 {
		temp := c.config.Temperature
		body.Temperature = &temp
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return domain.SlotDelta{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return domain.SlotDelta{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.SlotDelta{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.SlotDelta{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.SlotDelta{}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return domain.SlotDelta{}, fmt.Errorf("parsing response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return domain.SlotDelta{}, errors.New("no choices in response")
	}
	return DecodeDelta([]byte(stripCodeFence(chat.Choices[0].Message.Content)))
}

// stripCodeFence removes a surrounding ```json fence some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

var _ Extractor = (*LLMClient)(nil)
