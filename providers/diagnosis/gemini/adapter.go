package gemini

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
	"github.com/halcyon-robotics/runscope/providers/common/httpadapter"
)

const ProviderID = "diagnosis-gemini"

type Config struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:   os.Getenv("RUNSCOPE_DIAGNOSIS_GEMINI_API_KEY"),
		Endpoint: defaultString(os.Getenv("RUNSCOPE_DIAGNOSIS_GEMINI_ENDPOINT"), "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"),
		Timeout:  30 * time.Second,
	}
}

// NewAdapter builds the Gemini diagnosis transport. The model identifier
// rides in the endpoint path, so swapping models is endpoint config.
func NewAdapter(cfg Config) (*httpadapter.Adapter, error) {
	return httpadapter.New(httpadapter.Config{
		ProviderID:       ProviderID,
		Endpoint:         cfg.Endpoint,
		APIKey:           cfg.APIKey,
		QueryAPIKeyParam: "key",
		Timeout:          cfg.Timeout,
		BuildBody: func(request diagnosis.Request, instructions string) (any, error) {
			payload, err := json.Marshal(request)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"systemInstruction": map[string]any{
					"parts": []map[string]any{{"text": instructions}},
				},
				"contents": []map[string]any{
					{"parts": []map[string]any{{"text": fmt.Sprintf(
						"Diagnose this run evaluation input:\n%s\n\nReply with one JSON object matching this schema:\n%s",
						payload, diagnosis.SchemaJSON,
					)}}},
				},
				"generationConfig": map[string]any{
					"responseMimeType": "application/json",
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
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	for _, candidate := range envelope.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				return []byte(part.Text), nil
			}
		}
	}
	return nil, fmt.Errorf("no text part in gemini reply")
}

func defaultString(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
