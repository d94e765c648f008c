package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinika/medanswer/internal/config"
	"github.com/clinika/medanswer/internal/llm"
	"github.com/clinika/medanswer/internal/metrics"
	"github.com/clinika/medanswer/internal/session"
)

// TopicStrategy is one way of inferring the subject under discussion.
// Strategies are tried in order; a miss falls through to the next one.
type TopicStrategy interface {
	Name() string
	Resolve(ctx context.Context, history []session.Turn) (string, bool)
}

// TopicResolver runs a ranked strategy chain over the conversation history.
type TopicResolver struct {
	strategies []TopicStrategy
	logger     *zap.Logger
}

// NewTopicResolver builds a resolver from strategies in priority order.
func NewTopicResolver(logger *zap.Logger, strategies ...TopicStrategy) *TopicResolver {
	return &TopicResolver{strategies: strategies, logger: logger}
}

// Resolve returns the most recent concrete subject, or "" when every
// strategy misses. Strategy failures never propagate.
func (r *TopicResolver) Resolve(ctx context.Context, history []session.Turn) string {
	for _, s := range r.strategies {
		topic, ok := s.Resolve(ctx, history)
		if ok && topic != "" {
			metrics.TopicResolutions.WithLabelValues(s.Name()).Inc()
			r.logger.Debug("Topic resolved",
				zap.String("strategy", s.Name()),
				zap.String("topic", topic),
			)
			return topic
		}
	}
	metrics.TopicResolutions.WithLabelValues("none").Inc()
	return ""
}

// LLMTopicStrategy asks a generative provider to extract the subject with a
// single-purpose instruction.
type LLMTopicStrategy struct {
	provider llm.Provider
	timeout  time.Duration
}

// NewLLMTopicStrategy bounds each extraction call by timeout.
func NewLLMTopicStrategy(provider llm.Provider, timeout time.Duration) *LLMTopicStrategy {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LLMTopicStrategy{provider: provider, timeout: timeout}
}

func (s *LLMTopicStrategy) Name() string { return "llm" }

const topicExtractionInstruction = "Reply with only the most recent medical subject mentioned in the conversation, as a short noun phrase. If no medical subject has been mentioned, reply with exactly the word none."

func (s *LLMTopicStrategy) Resolve(ctx context.Context, history []session.Turn) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var b strings.Builder
	for _, t := range history {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}

	text, err := s.provider.Complete(ctx, llm.Request{
		System:          topicExtractionInstruction,
		Messages:        []llm.Message{{Role: "user", Content: b.String()}},
		Temperature:     0,
		MaxOutputTokens: 32,
	})
	if err != nil {
		return "", false
	}

	topic := strings.ToLower(strings.Trim(strings.TrimSpace(text), ".\"'"))
	if topic == "" || topic == "none" || len(topic) > 80 || strings.Contains(topic, "\n") {
		return "", false
	}
	return topic, true
}

// GazetteerTopicStrategy tags user turns newest-first against the
// configured medical subject terms. The longest whole-word match within a
// turn wins.
type GazetteerTopicStrategy struct {
	lexicon func() *config.Lexicon
}

// NewGazetteerTopicStrategy builds the entity-tagging strategy.
func NewGazetteerTopicStrategy(lexicon func() *config.Lexicon) *GazetteerTopicStrategy {
	return &GazetteerTopicStrategy{lexicon: lexicon}
}

func (s *GazetteerTopicStrategy) Name() string { return "gazetteer" }

func (s *GazetteerTopicStrategy) Resolve(_ context.Context, history []session.Turn) (string, bool) {
	subjects := s.lexicon().MedicalSubjects

	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != "user" {
			continue
		}
		words := tokenize(history[i].Content)

		best := ""
		for _, subject := range subjects {
			if containsPhrase(words, tokenize(subject)) && len(subject) > len(best) {
				best = subject
			}
		}
		if best != "" {
			return strings.ToLower(best), true
		}
	}
	return "", false
}

// LastWordTopicStrategy is the heuristic of last resort: the final word of
// at least four letters in the most recent user turn.
type LastWordTopicStrategy struct{}

func (LastWordTopicStrategy) Name() string { return "last-word" }

func (LastWordTopicStrategy) Resolve(_ context.Context, history []session.Turn) (string, bool) {
	content := latestUserContent(history)
	words := tokenize(content)
	for i := len(words) - 1; i >= 0; i-- {
		if len(words[i]) >= 4 {
			return words[i], true
		}
	}
	return "", false
}
