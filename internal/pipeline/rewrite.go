package pipeline

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/clinika/medanswer/internal/config"
)

// Rewriter substitutes vague references ("it", "that", "tell me about it")
// in the current query with the resolved topic. Matching is whole-word and
// case-insensitive; substrings inside unrelated words are untouched.
type Rewriter struct {
	lexicon func() *config.Lexicon

	mu       sync.Mutex
	cacheKey *config.Lexicon
	patterns []*regexp.Regexp
}

// NewRewriter builds a rewriter over the hot-reloadable vague-reference set.
func NewRewriter(lexicon func() *config.Lexicon) *Rewriter {
	return &Rewriter{lexicon: lexicon}
}

// Rewrite returns the query with vague references replaced by topic. When
// topic is empty the query is returned unchanged.
func (r *Rewriter) Rewrite(query, topic string) string {
	if topic == "" {
		return query
	}

	rewritten := query
	for _, re := range r.compiled() {
		// Literal replacement: a topic containing $ must not expand as a
		// capture-group reference.
		rewritten = re.ReplaceAllStringFunc(rewritten, func(string) string { return topic })
	}
	return rewritten
}

// compiled returns the patterns for the current lexicon, recompiling only
// after a lexicon reload. Multi-word phrases sort first so that "tell me
// about it" is consumed before the bare "it" inside it.
func (r *Rewriter) compiled() []*regexp.Regexp {
	lex := r.lexicon()

	r.mu.Lock()
	defer r.mu.Unlock()
	if lex == r.cacheKey {
		return r.patterns
	}

	refs := append([]string(nil), lex.VagueReferences...)
	sort.SliceStable(refs, func(i, j int) bool {
		wi, wj := len(strings.Fields(refs[i])), len(strings.Fields(refs[j]))
		if wi != wj {
			return wi > wj
		}
		return len(refs[i]) > len(refs[j])
	})

	patterns := make([]*regexp.Regexp, 0, len(refs))
	for _, ref := range refs {
		words := strings.Fields(regexp.QuoteMeta(strings.ToLower(ref)))
		if len(words) == 0 {
			continue
		}
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+strings.Join(words, `\s+`)+`\b`))
	}

	r.cacheKey = lex
	r.patterns = patterns
	return patterns
}
