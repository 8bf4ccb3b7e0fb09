package retrieval

import (
	"fmt"
	"strings"

	"github.com/aman-cerp/ragmcp/internal/document"
)

// questionWords triggers keyword selection for short factual questions.
var questionWords = []string{"what", "when", "where", "who"}

// technicalWords triggers keyword selection regardless of length, and
// mark a query as "technical" for query_analysis.
var technicalWords = []string{"function", "class", "method", "api", "error", "bug", "fix"}

// conceptualWords triggers ensemble selection for long or open-ended
// questions, and mark a query as "conceptual" for query_analysis.
var conceptualWords = []string{"explain", "how", "why", "compare"}

// Recommendation is the factory's non-instantiating strategy suggestion,
// returned by Recommend.
type Recommendation struct {
	Primary       document.StrategyName
	Alternatives  []document.StrategyName
	Reasoning     string
	QueryAnalysis QueryAnalysis
}

// QueryAnalysis summarizes the features used to classify a query.
type QueryAnalysis struct {
	Length int
	Type   string // factual | technical | conceptual | general
}

// Constructor builds a Strategy given the common injected config.
type Constructor func(cfg Config) (Strategy, error)

// Config is the common configuration the factory injects into every
// constructor it invokes.
type Config struct {
	K          int
	CacheOn    bool
	Collection string
}

// Factory maps strategy names to constructors and implements "auto"
// selection over the registered strategies.
type Factory struct {
	constructors map[document.StrategyName]Constructor
}

// NewFactory returns an empty factory; register constructors with
// Register before calling Build.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[document.StrategyName]Constructor)}
}

// Register associates name with a constructor.
func (f *Factory) Register(name document.StrategyName, ctor Constructor) {
	f.constructors[name] = ctor
}

// Build instantiates the named strategy, resolving "auto" against query
// using the selection heuristics.
func (f *Factory) Build(name document.StrategyName, query string, cfg Config) (Strategy, error) {
	resolved := name
	if name == document.StrategyAuto {
		resolved = selectStrategy(query)
	}
	ctor, ok := f.constructors[resolved]
	if !ok {
		return nil, fmt.Errorf("retrieval factory: no constructor registered for strategy %q", resolved)
	}
	return ctor(cfg)
}

// selectStrategy implements the auto-selection heuristics table, checked
// in order: short factual questions and technical-vocabulary queries
// prefer keyword; long or explicitly open-ended queries prefer ensemble;
// mid-length queries prefer vector; everything else falls back to
// ensemble.
func selectStrategy(query string) document.StrategyName {
	words := strings.Fields(query)
	lower := strings.ToLower(query)

	if len(words) <= 3 && containsAny(lower, questionWords) {
		return document.StrategyKeyword
	}
	if containsAny(lower, technicalWords) {
		return document.StrategyKeyword
	}
	if len(words) > 10 || containsAny(lower, conceptualWords) {
		return document.StrategyEnsemble
	}
	if len(words) >= 4 && len(words) <= 10 {
		return document.StrategyVector
	}
	return document.StrategyEnsemble
}

// classifyQueryType derives query_analysis.type from the same keyword
// buckets used for selection, independent of length.
func classifyQueryType(query string) string {
	lower := strings.ToLower(query)
	words := strings.Fields(query)

	switch {
	case containsAny(lower, technicalWords):
		return "technical"
	case containsAny(lower, conceptualWords):
		return "conceptual"
	case len(words) <= 3 && containsAny(lower, questionWords):
		return "factual"
	default:
		return "general"
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Recommend returns the strategy the factory would select for query,
// along with alternatives and reasoning, without instantiating anything.
func Recommend(query string) Recommendation {
	primary := selectStrategy(query)
	queryType := classifyQueryType(query)
	words := strings.Fields(query)

	alternatives := make([]document.StrategyName, 0, len(document.AllStrategies))
	for _, s := range document.AllStrategies {
		if s != primary {
			alternatives = append(alternatives, s)
		}
	}

	return Recommendation{
		Primary:      primary,
		Alternatives: alternatives,
		Reasoning:    reasonFor(primary, queryType, len(words)),
		QueryAnalysis: QueryAnalysis{
			Length: len(words),
			Type:   queryType,
		},
	}
}

func reasonFor(strategy document.StrategyName, queryType string, wordCount int) string {
	switch strategy {
	case document.StrategyKeyword:
		return fmt.Sprintf("short or technical query (%d words, type=%s) favors exact-term matching", wordCount, queryType)
	case document.StrategyVector:
		return fmt.Sprintf("mid-length query (%d words) favors semantic similarity over exact terms", wordCount)
	default:
		return fmt.Sprintf("long or open-ended query (%d words, type=%s) favors fusing multiple retrieval signals", wordCount, queryType)
	}
}
