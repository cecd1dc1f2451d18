package highlight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kikiluvv/reelcut/internal/media"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const rankSystemPrompt = `You rank candidate highlight segments from one sports video.
Each candidate has an index, a time range in seconds and analysis scores:
motion (mean pixel change, 0-255), density (fraction of moving pixels, 0-1)
and spike (crowd or commentary audio peak).
Prefer live action over cuts and static shots. Return JSON of the form
{"ranking": [indices, best first]}. Only use indices from the list.`

// LLMConfig configures the chat model used for ranking
type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string // empty = OpenAI
}

// LLMSelector asks an OpenAI-compatible chat model to order candidates, then
// enforces non-overlap and topK locally. Any API or parse failure falls back
// to score ranking, so Select never fails.
type LLMSelector struct {
	logger   zerolog.Logger
	client   *openai.Client
	model    string
	fallback *ScoreSelector
}

// NewLLMSelector creates a selector backed by a chat completion API
func NewLLMSelector(logger zerolog.Logger, cfg LLMConfig, fallback *ScoreSelector) *LLMSelector {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &LLMSelector{
		logger:   logger.With().Str("component", "llm-selector").Logger(),
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		fallback: fallback,
	}
}

type rankCandidate struct {
	Index   int     `json:"index"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Motion  float64 `json:"motion"`
	Density float64 `json:"density"`
	Spike   bool    `json:"spike"`
}

type rankResponse struct {
	Ranking []int `json:"ranking"`
}

func (l *LLMSelector) Select(ctx context.Context, src *media.SourceVideo, segments []ScoredSegment, topK int) ([]SelectedSegment, error) {
	if len(segments) <= 1 {
		return l.fallback.Select(ctx, src, segments, topK)
	}

	order, err := l.rank(ctx, segments)
	if err != nil {
		l.logger.Warn().Err(err).Msg("llm ranking failed, using score ranking")
		return l.fallback.Select(ctx, src, segments, topK)
	}

	ranked := make([]ScoredSegment, 0, len(segments))
	seen := make(map[int]bool, len(order))
	for _, idx := range order {
		if idx < 0 || idx >= len(segments) || seen[idx] {
			continue
		}
		seen[idx] = true
		ranked = append(ranked, segments[idx])
	}
	// anything the model left out keeps its score order behind the ranked ones
	for _, idx := range rankIndices(segments) {
		if !seen[idx] {
			ranked = append(ranked, segments[idx])
		}
	}

	l.logger.Debug().Ints("ranking", order).Int("candidates", len(segments)).Msg("llm ranking applied")
	return l.fallback.finish(src, Greedy(ranked, topK)), nil
}

func (l *LLMSelector) rank(ctx context.Context, segments []ScoredSegment) ([]int, error) {
	candidates := make([]rankCandidate, len(segments))
	for i, seg := range segments {
		candidates[i] = rankCandidate{
			Index:   i,
			Start:   seg.Start,
			End:     seg.End,
			Motion:  seg.Motion,
			Density: seg.Density,
			Spike:   seg.Spike,
		}
	}
	payload, err := json.Marshal(map[string]any{"candidates": candidates})
	if err != nil {
		return nil, err
	}

	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rankSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from model")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var parsed rankResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse ranking: %w", err)
	}
	if len(parsed.Ranking) == 0 {
		return nil, fmt.Errorf("empty ranking")
	}
	return parsed.Ranking, nil
}
