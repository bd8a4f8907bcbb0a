package cfg

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPromoKeywords is the fixed promotional vocabulary. Matching is on
// whole words, so "deal" does not fire on "ideal".
var DefaultPromoKeywords = []string{
	"buy",
	"buy now",
	"shop",
	"shop now",
	"discount",
	"discounted",
	"coupon",
	"promo code",
	"limited time offer",
	"order now",
	"free shipping",
	"best price",
	"on sale",
	"deal",
	"clearance",
	"add to cart",
}

type Pipeline struct {
	Filter      FilterSettings      `yaml:"filter"`
	Fingerprint FingerprintSettings `yaml:"fingerprint"`
	Rewrite     RewriteSettings     `yaml:"rewrite"`
	Images      ImageSettings       `yaml:"images"`
	Extraction  ExtractionSettings  `yaml:"extraction"`
}

type FilterSettings struct {
	Keywords           []string `yaml:"keywords"`
	UppercaseRatio     float64  `yaml:"uppercase_ratio"`
	MaxLinks           int      `yaml:"max_links"`
	CurrencyConfidence float64  `yaml:"currency_confidence"`
	DefaultConfidence  float64  `yaml:"default_confidence"`
}

type FingerprintSettings struct {
	Threshold int `yaml:"threshold"`
}

type RewriteSettings struct {
	MaxInputChars  int           `yaml:"max_input_chars"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	BackoffFactor  int           `yaml:"backoff_factor"`
}

type ImageSettings struct {
	MaxBytes int64 `yaml:"max_bytes"`
	// MaxPixels caps width*height as declared in the image header, checked
	// before the pixels are decoded.
	MaxPixels int64         `yaml:"max_pixels"`
	MaxWidth  int           `yaml:"max_width"`
	Quality   int           `yaml:"quality"`
	Timeout   time.Duration `yaml:"timeout"`
}

type ExtractionSettings struct {
	Timeout     time.Duration `yaml:"timeout"`
	MinBodySize int           `yaml:"min_body_size"`
}

func DefaultPipeline() *Pipeline {
	return &Pipeline{
		Filter: FilterSettings{
			Keywords:           append([]string(nil), DefaultPromoKeywords...),
			UppercaseRatio:     0.30,
			MaxLinks:           10,
			CurrencyConfidence: 0.6,
			DefaultConfidence:  0.75,
		},
		Fingerprint: FingerprintSettings{Threshold: 3},
		Rewrite: RewriteSettings{
			MaxInputChars:  8000,
			MaxRetries:     3,
			InitialBackoff: 5 * time.Second,
			BackoffFactor:  3,
		},
		Images: ImageSettings{
			MaxBytes:  5 << 20,
			MaxPixels: 40_000_000,
			MaxWidth:  1200,
			Quality:   80,
			Timeout:   10 * time.Second,
		},
		Extraction: ExtractionSettings{
			Timeout:     10 * time.Second,
			MinBodySize: 200,
		},
	}
}

// LoadPipeline reads the tuning file. A missing file yields the defaults;
// fields left out of the file keep their default values.
func LoadPipeline(path string) (*Pipeline, error) {
	p := DefaultPipeline()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config %s: %w", path, err)
	}

	return p, nil
}

func (p *Pipeline) validate() error {
	nonNegativeFields := map[string]int{
		"max links":             p.Filter.MaxLinks,
		"fingerprint threshold": p.Fingerprint.Threshold,
		"max retries":           p.Rewrite.MaxRetries,
	}
	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	positiveFields := map[string]int{
		"max input chars": p.Rewrite.MaxInputChars,
		"backoff factor":  p.Rewrite.BackoffFactor,
		"image max width": p.Images.MaxWidth,
	}
	for fieldName, fieldValue := range positiveFields {
		if fieldValue <= 0 {
			return fmt.Errorf("%s must be positive", fieldName)
		}
	}

	if p.Images.Quality < 1 || p.Images.Quality > 100 {
		return fmt.Errorf("image quality must be between 1 and 100")
	}
	if p.Images.MaxBytes <= 0 || p.Images.MaxPixels <= 0 {
		return fmt.Errorf("image max bytes and max pixels must be positive")
	}
	if p.Images.Timeout <= 0 || p.Extraction.Timeout <= 0 {
		return fmt.Errorf("image and extraction timeouts must be positive")
	}

	for _, ratio := range []float64{p.Filter.UppercaseRatio, p.Filter.CurrencyConfidence, p.Filter.DefaultConfidence} {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("ratios and confidences must be within [0, 1]")
		}
	}

	if len(p.Filter.Keywords) == 0 {
		return fmt.Errorf("at least one promotional keyword is required")
	}

	return nil
}
