package emotion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/models"
	"memoryd/internal/structures"
	"memoryd/internal/testutil"
)

func TestLexiconClassifier(t *testing.T) {
	l := NewLexiconClassifier()

	cases := []struct {
		text string
		want models.Sentiment
	}{
		{"I love this so much 😍", models.SentimentPositive},
		{"this is boring and expensive", models.SentimentNegative},
		{"not good", models.SentimentNegative},
		{"ok", models.SentimentNeutral},
		{"😡😡", models.SentimentNegative},
		{"I can't wait to see it", models.SentimentPositive},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			signal, err := l.Classify(context.Background(), tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.want, signal.Sentiment)
			assert.GreaterOrEqual(t, signal.Score, -1.0)
			assert.LessOrEqual(t, signal.Score, 1.0)
			assert.LessOrEqual(t, len(signal.Emotions), 3)
		})
	}
}

func TestLexiconIntensity(t *testing.T) {
	l := NewLexiconClassifier()
	calm, _ := l.Classify(context.Background(), "this is nice")
	loud, _ := l.Classify(context.Background(), "THIS IS SO AMAZING!!!")
	assert.Greater(t, loud.Intensity, calm.Intensity)
	assert.LessOrEqual(t, loud.Intensity, 1.0)
}

func TestParseClassifierReply(t *testing.T) {
	signal, err := parseClassifierReply(`{"sentiment":"Positive","score":1.7,"confidence":0.9,"emotions":["Joy","love","desire","extra"],"intensity":0.4}`)
	require.NoError(t, err)
	assert.Equal(t, models.SentimentPositive, signal.Sentiment)
	assert.Equal(t, 1.0, signal.Score)
	assert.Equal(t, []string{"joy", "love", "desire"}, signal.Emotions)

	_, err = parseClassifierReply(`{"sentiment":"ecstatic"}`)
	assert.Error(t, err)
	_, err = parseClassifierReply(`not json`)
	assert.Error(t, err)
}

func TestOpenAIClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","model":"test","choices":[{"index":0,"message":{"role":"assistant","content":"{\"sentiment\":\"negative\",\"score\":-0.6,\"confidence\":0.8,\"emotions\":[\"frustration\"],\"intensity\":0.7}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClassifier(structures.ClassifierConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "test"})
	require.NoError(t, err)

	signal, err := c.Classify(context.Background(), "this is a rip off")
	require.NoError(t, err)
	assert.Equal(t, models.SentimentNegative, signal.Sentiment)
	assert.InDelta(t, -0.6, signal.Score, 1e-9)
	assert.Equal(t, []string{"frustration"}, signal.Emotions)
}

func TestOpenAIClassifierErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewOpenAIClassifier(structures.ClassifierConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	a := NewAnalyzer(c, &testutil.MockLogger{})
	signal := a.AnalyzeMessage(context.Background(), "you are amazing")
	assert.Equal(t, models.SentimentPositive, signal.Sentiment)
}

func TestNewClassifierProvider(t *testing.T) {
	conf := &structures.Config{}
	c, err := NewClassifierProvider(conf, &testutil.MockLogger{})
	require.NoError(t, err)
	assert.Equal(t, ProviderLexicon, c.Name())

	conf.Classifier.Provider = ProviderOpenAI
	_, err = NewClassifierProvider(conf, &testutil.MockLogger{})
	assert.Error(t, err, "openai without a key")

	conf.Classifier.APIKey = "k"
	c, err = NewClassifierProvider(conf, &testutil.MockLogger{})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, c.Name())

	conf.Classifier.Provider = "bogus"
	_, err = NewClassifierProvider(conf, &testutil.MockLogger{})
	assert.Error(t, err)
}
