package segments

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator estimates the token count of a piece of content before any
// provider has seen it.
type Estimator interface {
	EstimateTokens(text string) int
}

// HeuristicEstimator is the default estimator: length divided by four.
// Deliberately model-agnostic: cache floors are coarse thresholds and a
// rough, stable estimate beats a precise one that varies per tokenizer.
type HeuristicEstimator struct{}

// EstimateTokens implements Estimator.
func (HeuristicEstimator) EstimateTokens(text string) int {
	return len(text) / 4
}

// TiktokenEstimator counts tokens with a real BPE encoding for callers who
// want model-accurate estimates. Encoding data loads lazily on first use;
// on any failure it falls back to the heuristic so estimation never errors.
type TiktokenEstimator struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
}

// NewTiktokenEstimator creates an estimator for the given encoding name
// (e.g. "cl100k_base", "o200k_base"). An empty name selects cl100k_base.
func NewTiktokenEstimator(encoding string) *TiktokenEstimator {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenEstimator{encoding: encoding}
}

// EstimateTokens implements Estimator.
func (t *TiktokenEstimator) EstimateTokens(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err == nil {
			t.enc = enc
		}
	})
	if t.enc == nil {
		return HeuristicEstimator{}.EstimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
