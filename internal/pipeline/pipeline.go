package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clinika/medanswer/internal/metrics"
	"github.com/clinika/medanswer/internal/session"
)

// Pipeline coordinates one answer exchange:
//
//	SafetyCheck -> {Blocked | Proceed} -> ResolveTopic -> Rewrite ->
//	Retrieve(restricted) -> Synthesize -> Evaluate ->
//	{Complete | Escalate -> Retrieve(broad, expanded) -> Synthesize}
//
// Every path terminates with an answer and a source list. Upstream
// failures are absorbed stage by stage; a well-formed history always gets a
// well-formed response.
type Pipeline struct {
	safety   *SafetyFilter
	topics   *TopicResolver
	rewriter *Rewriter
	cascade  *Cascade
	synth    *Synthesizer
	eval     *Evaluator

	resultCount    int
	escalatedCount int
	filterCited    bool

	logger *zap.Logger
}

// PipelineOptions holds the per-request tuning knobs.
type PipelineOptions struct {
	ResultCount    int  // tier-1 result-count limit
	EscalatedCount int  // expanded limit for the escalation cycle
	FilterCited    bool // return only cited sources
}

// New assembles the pipeline from its stages.
func New(
	safety *SafetyFilter,
	topics *TopicResolver,
	rewriter *Rewriter,
	cascade *Cascade,
	synth *Synthesizer,
	eval *Evaluator,
	opts PipelineOptions,
	logger *zap.Logger,
) *Pipeline {
	if opts.ResultCount <= 0 {
		opts.ResultCount = 5
	}
	if opts.EscalatedCount <= 0 {
		opts.EscalatedCount = 15
	}
	return &Pipeline{
		safety:         safety,
		topics:         topics,
		rewriter:       rewriter,
		cascade:        cascade,
		synth:          synth,
		eval:           eval,
		resultCount:    opts.ResultCount,
		escalatedCount: opts.EscalatedCount,
		filterCited:    opts.FilterCited,
		logger:         logger,
	}
}

// Answer runs the pipeline over the supplied history. The history is read
// only; the caller owns appending the exchange back to its session.
func (p *Pipeline) Answer(ctx context.Context, history []session.Turn) Response {
	start := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	query := latestUserContent(history)

	verdict := p.safety.Classify(query)
	metrics.AnswersTotal.WithLabelValues(verdict.String()).Inc()
	if verdict != VerdictNormal {
		p.logger.Info("Blocked by safety filter", zap.String("verdict", verdict.String()))
		return Response{Answer: CannedResponse(verdict), Sources: nil}
	}

	topic := p.topics.Resolve(ctx, history)
	rewritten := p.rewriter.Rewrite(query, topic)
	if rewritten != query {
		p.logger.Debug("Query rewritten",
			zap.String("topic", topic),
			zap.String("rewritten", rewritten),
		)
	}

	results := p.cascade.Run(ctx, rewritten, p.resultCount)
	draft := p.synth.Synthesize(ctx, history, results)

	// The evaluator judges against the original, pre-rewrite query. At most
	// one escalation cycle runs; the second answer is final either way.
	if p.eval.Incomplete(draft.Text, query) {
		metrics.EscalationsTotal.Inc()
		p.logger.Info("Answer judged incomplete, escalating",
			zap.Int("expanded_count", p.escalatedCount),
		)
		results = p.cascade.RunBroad(ctx, rewritten, p.escalatedCount)
		draft = p.synth.Synthesize(ctx, history, results)
	}

	sources := draft.Sources
	if p.filterCited {
		sources = ExtractCited(draft.Text, draft.Sources)
	}
	return Response{Answer: draft.Text, Sources: sources}
}
