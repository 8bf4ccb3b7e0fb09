package retrieval

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/aman-cerp/ragmcp/internal/adapters/llm"
	"github.com/aman-cerp/ragmcp/internal/document"
)

// DefaultExpansionCount is the number of alternative phrasings requested
// from the LLM, not counting the original query.
const DefaultExpansionCount = 3

// multiQueryFetchMultiplier is how many more results than k each variant
// requests, to survive cross-variant deduplication.
const multiQueryFetchMultiplier = 2

// dedupIdentityChars is how many leading characters of content are hashed
// for content-identity deduplication.
const dedupIdentityChars = 500

const expansionPromptTemplate = `Generate %d alternative phrasings of the following search query. Each phrasing should preserve the original meaning but use different words or structure. Reply with a numbered list and nothing else.

Query: %s`

var listItemRegex = regexp.MustCompile(`^\s*(?:\d+[\.\)]|[-*•])\s*`)

// MultiQueryStrategy expands a query into several phrasings via an LLM,
// retrieves with a base strategy for each phrasing, and unions the
// results by content identity.
type MultiQueryStrategy struct {
	llmClient      llm.Client
	base           Strategy
	expansionCount int
}

var _ Strategy = (*MultiQueryStrategy)(nil)

// NewMultiQueryStrategy builds a strategy that expands queries via client
// and retrieves with base (typically the vector strategy).
func NewMultiQueryStrategy(client llm.Client, base Strategy, expansionCount int) *MultiQueryStrategy {
	if expansionCount <= 0 {
		expansionCount = DefaultExpansionCount
	}
	return &MultiQueryStrategy{llmClient: client, base: base, expansionCount: expansionCount}
}

func (m *MultiQueryStrategy) Name() document.StrategyName { return document.StrategyMultiQuery }

// GeneratedQueries returns the parsed variant list (including the
// original query) without running retrieval, for debugging/telemetry.
func (m *MultiQueryStrategy) GeneratedQueries(ctx context.Context, query string) []string {
	return m.expand(ctx, query)
}

func (m *MultiQueryStrategy) expand(ctx context.Context, query string) []string {
	prompt := fmt.Sprintf(expansionPromptTemplate, m.expansionCount, query)
	reply, err := m.llmClient.Complete(ctx, prompt, 0.3)
	if err != nil {
		return []string{query}
	}

	variants := parseNumberedList(reply)
	variants = prependIfMissing(variants, query)

	if len(variants) > m.expansionCount+1 {
		variants = variants[:m.expansionCount+1]
	}
	return variants
}

func (m *MultiQueryStrategy) Retrieve(ctx context.Context, query string, k int, params map[string]any) ([]document.Document, error) {
	variants := m.expand(ctx, query)
	fetchK := k * multiQueryFetchMultiplier

	seen := make(map[string]struct{})
	out := make([]document.Document, 0, k)

	for _, variant := range variants {
		docs, err := m.base.Retrieve(ctx, variant, fetchK, params)
		if err != nil {
			continue
		}
		for _, d := range docs {
			identity := contentIdentity(d)
			if _, dup := seen[identity]; dup {
				continue
			}
			seen[identity] = struct{}{}
			out = append(out, d)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func contentIdentity(d document.Document) string {
	content := d.Content
	if len(content) > dedupIdentityChars {
		content = content[:dedupIdentityChars]
	}
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// parseNumberedList extracts list items from an LLM reply, discarding
// header/explanatory lines and stripping leading numbering/bullets.
func parseNumberedList(reply string) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(reply))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !listItemRegex.MatchString(line) {
			continue
		}
		cleaned := strings.TrimSpace(listItemRegex.ReplaceAllString(line, ""))
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// prependIfMissing ensures original is present in variants, prepending it
// if the LLM didn't echo it back (case-insensitive comparison).
func prependIfMissing(variants []string, original string) []string {
	lower := strings.ToLower(strings.TrimSpace(original))
	for _, v := range variants {
		if strings.ToLower(strings.TrimSpace(v)) == lower {
			return variants
		}
	}
	return append([]string{original}, variants...)
}
