// Package polly synthesizes spoken operator briefings from diagnosis
// summaries, for hands-busy review on the floor.
package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
)

const ProviderID = "speech-amazon-polly"

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type Config struct {
	Region  string
	VoiceID string
	Engine  string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Region:  defaultString(os.Getenv("RUNSCOPE_SPEECH_POLLY_REGION"), defaultString(os.Getenv("AWS_REGION"), "us-east-1")),
		VoiceID: defaultString(os.Getenv("RUNSCOPE_SPEECH_POLLY_VOICE"), "Joanna"),
		Engine:  defaultString(os.Getenv("RUNSCOPE_SPEECH_POLLY_ENGINE"), "neural"),
		Timeout: 15 * time.Second,
	}
}

// Synthesizer renders diagnosis briefings to MP3 through Amazon Polly.
// The AWS client is resolved lazily so construction stays credential-free.
type Synthesizer struct {
	mu     sync.Mutex
	client synthClient
	cfg    Config
}

func New(cfg Config) *Synthesizer {
	return NewWithClient(cfg, nil)
}

func NewWithClient(cfg Config, client synthClient) *Synthesizer {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = "Joanna"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Synthesizer{client: client, cfg: cfg}
}

func NewFromEnv() *Synthesizer {
	return New(ConfigFromEnv())
}

// SynthesizeBriefing renders the spoken briefing for one diagnosis and
// returns the MP3 bytes.
func (s *Synthesizer) SynthesizeBriefing(ctx context.Context, result diagnosis.Result) ([]byte, error) {
	text := BriefingText(result)
	client, err := s.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(s.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(s.cfg.VoiceID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("polly synthesis rejected (%s): %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return nil, fmt.Errorf("polly synthesis: %w", err)
	}
	if output == nil || output.AudioStream == nil {
		return nil, fmt.Errorf("polly returned empty audio stream")
	}
	defer output.AudioStream.Close()
	return io.ReadAll(output.AudioStream)
}

// BriefingText flattens a diagnosis into the spoken script: verdict and
// summary first, then the leading root cause and recommendation.
func BriefingText(result diagnosis.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Verdict: %s. %s", result.Verdict, result.OperatorSummary)
	if len(result.RootCauses) > 0 {
		fmt.Fprintf(&b, " Primary cause: %s", result.RootCauses[0])
	}
	if len(result.Recommendations) > 0 {
		fmt.Fprintf(&b, " First recommendation: %s", result.Recommendations[0])
	}
	if result.CompareInsights != "" {
		fmt.Fprintf(&b, " Comparison: %s", result.CompareInsights)
	}
	return b.String()
}

func (s *Synthesizer) resolveClient(ctx context.Context) (synthClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s.client = polly.NewFromConfig(awsCfg)
	return s.client, nil
}

func defaultString(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
