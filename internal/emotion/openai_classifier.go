package emotion

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"

	"memoryd/internal/models"
	"memoryd/internal/structures"
)

const (
	defaultClassifierModel   = "gpt-4o-mini"
	defaultClassifierTimeout = 3 * time.Second
	maxClassifierInput       = 1000
)

const classifierSystemPrompt = `You classify the sentiment of a single chat message a fan sent to a content creator.
Reply with a JSON object only:
{"sentiment": "positive|negative|neutral", "score": -1.0..1.0, "confidence": 0.0..1.0, "emotions": ["joy", ...], "intensity": 0.0..1.0}
Use at most three lower-case emotion names.`

// OpenAIClassifier calls any OpenAI-compatible chat completion endpoint.
type OpenAIClassifier struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

type classifierReply struct {
	Sentiment  string   `json:"sentiment"`
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Emotions   []string `json:"emotions"`
	Intensity  float64  `json:"intensity"`
}

func NewOpenAIClassifier(conf structures.ClassifierConfig) (*OpenAIClassifier, error) {
	if conf.APIKey == "" {
		return nil, fmt.Errorf("openai classifier requires an api key")
	}
	config := openai.DefaultConfig(conf.APIKey)
	if conf.BaseURL != "" {
		config.BaseURL = conf.BaseURL
	}

	model := conf.Model
	if model == "" {
		model = defaultClassifierModel
	}
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultClassifierTimeout
	}

	return &OpenAIClassifier{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		timeout: timeout,
	}, nil
}

func (c *OpenAIClassifier) Name() string {
	return ProviderOpenAI
}

func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (*models.SentimentSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if runes := []rune(text); len(runes) > maxClassifierInput {
		text = string(runes[:maxClassifierInput])
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   120,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("classifier returned no choices")
	}

	return parseClassifierReply(resp.Choices[0].Message.Content)
}

func parseClassifierReply(content string) (*models.SentimentSignal, error) {
	var reply classifierReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &reply); err != nil {
		return nil, fmt.Errorf("classifier reply is not valid json: %w", err)
	}

	sentiment := models.Sentiment(strings.ToLower(reply.Sentiment))
	if !sentiment.Valid() {
		return nil, fmt.Errorf("classifier returned unknown sentiment %q", reply.Sentiment)
	}

	emotions := make([]string, 0, len(reply.Emotions))
	for _, e := range reply.Emotions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && len(emotions) < 3 {
			emotions = append(emotions, e)
		}
	}

	return &models.SentimentSignal{
		Sentiment:  sentiment,
		Score:      clamp(reply.Score, -1, 1),
		Confidence: clamp(reply.Confidence, 0, 1),
		Emotions:   emotions,
		Intensity:  clamp(reply.Intensity, 0, 1),
	}, nil
}
