package emotion

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"memoryd/internal/models"
)

var positiveWords = map[string]float64{
	"love": 1, "loved": 1, "lovely": 0.8, "amazing": 1, "awesome": 0.9, "great": 0.7, "good": 0.5,
	"nice": 0.5, "beautiful": 0.9, "gorgeous": 1, "hot": 0.7, "sexy": 0.8, "cute": 0.6, "perfect": 0.9,
	"wow": 0.7, "happy": 0.8, "glad": 0.6, "fun": 0.6, "enjoy": 0.6, "enjoyed": 0.6, "excited": 0.8,
	"thanks": 0.5, "thank": 0.5, "haha": 0.5, "lol": 0.4, "yes": 0.3, "best": 0.8, "fantastic": 1,
	"incredible": 1, "stunning": 1, "adore": 1, "sweet": 0.6, "miss": 0.4, "want": 0.3, "can't wait": 0.8,
}

var negativeWords = map[string]float64{
	"hate": 1, "bad": 0.6, "boring": 0.8, "bored": 0.8, "annoying": 0.8, "annoyed": 0.8, "angry": 1,
	"sad": 0.8, "upset": 0.8, "tired": 0.4, "expensive": 0.6, "scam": 1, "waste": 0.8, "disappointed": 0.9,
	"disappointing": 0.9, "stop": 0.5, "whatever": 0.5, "meh": 0.5, "ugh": 0.6, "terrible": 1, "awful": 1,
	"no": 0.2, "worst": 1, "busy": 0.3, "lonely": 0.6, "sorry": 0.3, "unsubscribe": 1, "refund": 0.8,
}

var emotionWords = map[string]string{
	"love": "love", "adore": "love", "miss": "love", "sexy": "desire", "hot": "desire", "want": "desire",
	"happy": "joy", "glad": "joy", "haha": "joy", "lol": "joy", "fun": "joy",
	"excited": "excitement", "wow": "excitement", "can't wait": "excitement",
	"thanks": "gratitude", "thank": "gratitude",
	"sad": "sadness", "lonely": "sadness", "disappointed": "sadness",
	"angry": "anger", "hate": "anger", "scam": "anger",
	"annoyed": "frustration", "annoying": "frustration", "ugh": "frustration", "expensive": "frustration",
	"bored": "boredom", "boring": "boredom", "whatever": "boredom", "meh": "boredom",
	"curious": "curiosity", "wonder": "curiosity",
}

var negations = map[string]bool{"not": true, "no": true, "never": true, "don't": true, "dont": true, "isn't": true, "wasn't": true, "didn't": true, "can't": true}

var intensifiers = map[string]float64{"very": 1.5, "so": 1.4, "really": 1.4, "super": 1.6, "extremely": 1.8, "totally": 1.3}

var positiveEmoji = map[rune]string{
	'😍': "love", '🥰': "love", '😘': "love", '❤': "love", '💕': "love", '💖': "love", '😊': "joy",
	'😂': "joy", '🤣': "joy", '😁': "joy", '😄': "joy", '🔥': "desire", '😈': "desire", '🤤': "desire",
	'🥵': "desire", '👍': "joy", '🙏': "gratitude", '🎉': "excitement", '😉': "joy", '😋': "desire",
}

var negativeEmoji = map[rune]string{
	'😢': "sadness", '😭': "sadness", '💔': "sadness", '😞': "sadness", '😡': "anger", '😠': "anger",
	'🙄': "boredom", '😒': "boredom", '😑': "boredom", '😤': "frustration", '👎': "frustration",
}

// LexiconClassifier scores messages with word and emoji lists. It is the
// default provider and the fallback when a remote provider fails.
type LexiconClassifier struct{}

func NewLexiconClassifier() *LexiconClassifier {
	return &LexiconClassifier{}
}

func (l *LexiconClassifier) Name() string {
	return ProviderLexicon
}

func (l *LexiconClassifier) Classify(_ context.Context, text string) (*models.SentimentSignal, error) {
	return l.classify(text), nil
}

func (l *LexiconClassifier) classify(text string) *models.SentimentSignal {
	var (
		pos, neg float64
		hits     int
		emotions = map[string]float64{}
	)

	lower := strings.ToLower(text)
	for phrase, w := range positiveWords {
		if strings.Contains(phrase, " ") && strings.Contains(lower, phrase) {
			pos += w
			hits++
			if e, ok := emotionWords[phrase]; ok {
				emotions[e] += w
			}
		}
	}

	tokens := tokenize(lower)
	for i, tok := range tokens {
		weight := 1.0
		negated := false
		for back := 1; back <= 2 && i-back >= 0; back++ {
			prev := tokens[i-back]
			if m, ok := intensifiers[prev]; ok {
				weight *= m
			}
			if negations[prev] {
				negated = true
			}
		}

		if w, ok := positiveWords[tok]; ok {
			hits++
			if negated {
				neg += w * weight * 0.8
			} else {
				pos += w * weight
				if e, ok := emotionWords[tok]; ok {
					emotions[e] += w * weight
				}
			}
		}
		if w, ok := negativeWords[tok]; ok && !(tok == "no" && i+1 < len(tokens)) {
			hits++
			if negated {
				pos += w * weight * 0.3
			} else {
				neg += w * weight
				if e, ok := emotionWords[tok]; ok {
					emotions[e] += w * weight
				}
			}
		}
		if e, ok := emotionWords[tok]; ok {
			if _, scored := positiveWords[tok]; !scored {
				if _, scored := negativeWords[tok]; !scored {
					emotions[e] += 0.5
				}
			}
		}
	}

	for _, r := range text {
		if e, ok := positiveEmoji[r]; ok {
			pos += 0.6
			hits++
			emotions[e] += 0.6
		} else if e, ok := negativeEmoji[r]; ok {
			neg += 0.6
			hits++
			emotions[e] += 0.6
		}
	}

	score := 0.0
	if pos+neg > 0 {
		score = (pos - neg) / (pos + neg + 0.5)
	}
	score = clamp(score, -1, 1)

	exclaims := strings.Count(text, "!")
	intensity := clamp(math.Abs(score)*0.6+float64(exclaims)*0.1+capsRatio(text)*0.3, 0, 1)
	confidence := 0.3
	if hits > 0 {
		confidence = clamp(0.45+0.12*float64(hits), 0, 0.95)
	}

	return &models.SentimentSignal{
		Sentiment:  sentimentFromScore(score),
		Score:      score,
		Confidence: confidence,
		Emotions:   topEmotions(emotions, 3),
		Intensity:  intensity,
	}
}

func tokenize(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func capsRatio(text string) float64 {
	var letters, upper int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < 4 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func topEmotions(weights map[string]float64, n int) []string {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if weights[names[i]] != weights[names[j]] {
			return weights[names[i]] > weights[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}
