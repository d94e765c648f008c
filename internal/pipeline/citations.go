package pipeline

import (
	"regexp"
	"strconv"

	"github.com/clinika/medanswer/internal/search"
)

// citationPattern matches inline citations like [1], [2]. Compiled once at
// package level.
var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// ExtractCited filters sources down to those actually cited in the answer
// text. Indices are 1-based positions in sources; out-of-range references
// are ignored, duplicates collapse, and the output preserves the original
// ranking order rather than order of first appearance.
func ExtractCited(answer string, sources []search.Result) []search.Result {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil
	}

	cited := make(map[int]bool, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(sources) {
			continue
		}
		cited[n] = true
	}

	filtered := make([]search.Result, 0, len(cited))
	for i, src := range sources {
		if cited[i+1] {
			filtered = append(filtered, src)
		}
	}
	return filtered
}
