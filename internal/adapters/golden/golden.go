// Package golden loads evaluation samples for the quality evaluator's batch
// mode from a JSONL golden dataset, one JSON object per line.
package golden

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aman-cerp/ragmcp/internal/document"
)

// record is the on-disk JSONL shape. Field names match what a human curating
// a golden dataset would write by hand.
type record struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Contexts    []string `json:"contexts"`
	GroundTruth string   `json:"ground_truth"`
}

// builtinSamples is the small fallback set used when RequireDataset is
// false and no path is configured or the path doesn't exist. It exists so
// evaluate_rag has something to run against in a fresh deployment with no
// curated dataset yet.
var builtinSamples = []document.EvalSample{
	{
		Question: "What does the ensemble strategy do when one sub-strategy fails?",
		Answer:   "It proceeds with the remaining sub-strategies and fuses whatever succeeded.",
		Contexts: []string{
			"Ensemble retrieval dispatches each configured sub-strategy in parallel. A sub-strategy that errors or times out contributes an empty result list to fusion rather than failing the whole call.",
		},
		GroundTruth: "The ensemble strategy tolerates a failing sub-strategy and fuses the surviving results.",
	},
	{
		Question: "How is reciprocal rank fusion scored?",
		Answer:   "Each document's score is the sum, over every list it appears in, of one divided by a constant plus its rank in that list.",
		Contexts: []string{
			"RRF fusion computes score = sum(weight_i / (k + rank_i)) across contributing strategies, with k defaulting to 60.",
		},
		GroundTruth: "RRF score is the weighted sum of 1/(k+rank) across all lists containing the document.",
	},
}

// Loader reads golden-dataset samples from a JSONL file.
type Loader struct {
	// RequireDataset, when true, makes Load return an error instead of
	// falling back to builtinSamples when path is empty or unreadable.
	RequireDataset bool
}

// New builds a Loader. requireDataset mirrors the Eval.RequireDataset
// config switch.
func New(requireDataset bool) *Loader {
	return &Loader{RequireDataset: requireDataset}
}

// Load reads up to limit samples from path. limit <= 0 means no limit. An
// empty path, or a path that can't be opened, falls back to the small
// built-in sample set unless RequireDataset is set, in which case it
// returns an error.
func (l *Loader) Load(ctx context.Context, path string, limit int) ([]document.EvalSample, error) {
	if path == "" {
		if l.RequireDataset {
			return nil, fmt.Errorf("golden: no dataset path configured and Eval.RequireDataset is set")
		}
		return capSamples(builtinSamples, limit), nil
	}

	f, err := os.Open(path)
	if err != nil {
		if l.RequireDataset {
			return nil, fmt.Errorf("golden: open dataset %s: %w", path, err)
		}
		return capSamples(builtinSamples, limit), nil
	}
	defer f.Close()

	var out []document.EvalSample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("golden: parse %s line %d: %w", path, lineNo, err)
		}

		out = append(out, document.EvalSample{
			Question:    rec.Question,
			Answer:      rec.Answer,
			Contexts:    rec.Contexts,
			GroundTruth: rec.GroundTruth,
		})

		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("golden: read %s: %w", path, err)
	}

	return out, nil
}

func capSamples(samples []document.EvalSample, limit int) []document.EvalSample {
	if limit <= 0 || limit >= len(samples) {
		out := make([]document.EvalSample, len(samples))
		copy(out, samples)
		return out
	}
	out := make([]document.EvalSample, limit)
	copy(out, samples[:limit])
	return out
}
