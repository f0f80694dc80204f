package anthropic

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
	"github.com/halcyon-robotics/runscope/providers/common/httpadapter"
)

const ProviderID = "diagnosis-anthropic"

type Config struct {
	APIKey           string
	Endpoint         string
	Model            string
	AnthropicVersion string
	MaxTokens        int
	Timeout          time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:           os.Getenv("RUNSCOPE_DIAGNOSIS_ANTHROPIC_API_KEY"),
		Endpoint:         defaultString(os.Getenv("RUNSCOPE_DIAGNOSIS_ANTHROPIC_ENDPOINT"), "https://api.anthropic.com/v1/messages"),
		Model:            defaultString(os.Getenv("RUNSCOPE_DIAGNOSIS_ANTHROPIC_MODEL"), "claude-3-5-haiku-latest"),
		AnthropicVersion: defaultString(os.Getenv("RUNSCOPE_DIAGNOSIS_ANTHROPIC_VERSION"), "2023-06-01"),
		MaxTokens:        2048,
		Timeout:          30 * time.Second,
	}
}

// NewAdapter builds the Anthropic diagnosis transport. The reply text is
// unwrapped from the messages envelope; schema enforcement stays with the
// engine's contract.
func NewAdapter(cfg Config) (*httpadapter.Adapter, error) {
	return httpadapter.New(httpadapter.Config{
		ProviderID:    ProviderID,
		Endpoint:      cfg.Endpoint,
		APIKey:        cfg.APIKey,
		APIKeyHeader:  "x-api-key",
		Timeout:       cfg.Timeout,
		StaticHeaders: map[string]string{"anthropic-version": cfg.AnthropicVersion},
		BuildBody: func(request diagnosis.Request, instructions string) (any, error) {
			payload, err := json.Marshal(request)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"model":      cfg.Model,
				"max_tokens": cfg.MaxTokens,
				"system":     instructions,
				"messages": []map[string]any{
					{"role": "user", "content": fmt.Sprintf(
						"Diagnose this run evaluation input:\n%s\n\nReply with one JSON object matching this schema:\n%s",
						payload, diagnosis.SchemaJSON,
					)},
				},
			}, nil
		},
		ExtractText: extractText,
	})
}

func NewAdapterFromEnv() (*httpadapter.Adapter, error) {
	return NewAdapter(ConfigFromEnv())
}

func extractText(body []byte) ([]byte, error) {
	var envelope struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	for _, block := range envelope.Content {
		if block.Type == "text" && block.Text != "" {
			return []byte(block.Text), nil
		}
	}
	return nil, fmt.Errorf("no text block in anthropic reply")
}

func defaultString(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
