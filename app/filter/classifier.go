package filter

import (
	"context"
	"fmt"

	"github.com/lysyi3m/content-forge/app/rewrite"
)

const classifierInputChars = 4000

const classifierInstruction = `You review article drafts for a publishing pipeline.
Decide whether the text is primarily a sales or advertising pitch rather than editorial content.
Respond with a single JSON object and nothing else: {"promotional": true|false, "confidence": 0.0-1.0}`

type Classification struct {
	Promotional bool    `json:"promotional"`
	Confidence  float64 `json:"confidence"`
}

type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// ModelClassifier asks the generative service for a binary judgement.
type ModelClassifier struct {
	client rewrite.Completer
}

func NewModelClassifier(client rewrite.Completer) *ModelClassifier {
	return &ModelClassifier{client: client}
}

func (c *ModelClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	raw, err := c.client.Complete(ctx, classifierInstruction, rewrite.Truncate(text, classifierInputChars))
	if err != nil {
		return Classification{}, fmt.Errorf("failed to classify text: %w", err)
	}

	var result Classification
	if err := rewrite.DecodeJSON(raw, &result); err != nil {
		return Classification{}, err
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return Classification{}, fmt.Errorf("%w: confidence %v out of range", rewrite.ErrMalformedResponse, result.Confidence)
	}

	return result, nil
}
