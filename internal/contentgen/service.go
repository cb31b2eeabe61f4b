// Package contentgen turns one unreliable text-generation call into
// structured data that satisfies a contract. Each attempt is parsed,
// repaired if needed and validated; any failure spends one unit of a small
// retry budget. The budget is stateless: nothing from a failed attempt is
// fed into the next prompt.
package contentgen

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/abhisek/lingua/internal/apperr"
	"github.com/abhisek/lingua/internal/llm"
)

const systemPrompt = "You produce content for a language-learning app. " +
	"Respond with exactly one JSON value that satisfies the provided schema. " +
	"Do not wrap it in markdown and do not add commentary."

// Config tunes structured generation.
type Config struct {
	// MaxRetries is the number of extra attempts after the first.
	MaxRetries int

	// AttemptTimeout bounds each attempt. Zero means the caller's context
	// is the only bound.
	AttemptTimeout time.Duration

	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns one retry (two attempts) and a 30s attempt timeout.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     1,
		AttemptTimeout: 30 * time.Second,
		MaxTokens:      1024,
		Temperature:    0.7,
	}
}

// Result is the outcome of GenerateStructuredData. Exactly one of Data and
// Err is set.
type Result struct {
	Data     json.RawMessage
	Attempts int
	Err      error
}

// OK reports whether the generation produced contract-valid data.
func (r Result) OK() bool {
	return r.Err == nil && len(r.Data) > 0
}

// Decode unmarshals the generated data into v.
func (r Result) Decode(v any) error {
	if !r.OK() {
		if r.Err != nil {
			return r.Err
		}
		return errors.New("no data generated")
	}
	return json.Unmarshal(r.Data, v)
}

// Option adjusts a single GenerateStructuredData call.
type Option func(*llm.Request)

// WithTemperature overrides the sampling temperature for one call.
func WithTemperature(t float64) Option {
	return func(r *llm.Request) { r.Temperature = t }
}

// Service generates contract-valid structured data.
type Service struct {
	provider llm.Provider
	cfg      Config
	log      *zap.Logger
}

// NewService creates a Service. A nil logger discards logs.
func NewService(p llm.Provider, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Service{provider: p, cfg: cfg, log: log}
}

// MaxAttempts returns the total number of attempts per call.
func (s *Service) MaxAttempts() int {
	return s.cfg.MaxRetries + 1
}

// GenerateStructuredData sends prompt to the provider and returns data
// satisfying contract, retrying the whole pipeline on any failure. It never
// panics on model output; failures come back in Result.Err as a
// *GenerationError, or a *apperr.ConfigurationError when the contract
// itself is unusable.
func (s *Service) GenerateStructuredData(ctx context.Context, prompt string, contract *llm.Schema, label string, opts ...Option) Result {
	if contract == nil {
		return Result{Err: apperr.Configf("contract "+label, "no contract supplied")}
	}
	compiled, err := compileContract(contract)
	if err != nil {
		return Result{Err: apperr.Configf("contract "+contract.Name, "%v", err)}
	}

	req := llm.UserPrompt(systemPrompt, prompt, contract)
	req.MaxTokens = s.cfg.MaxTokens
	req.Temperature = s.cfg.Temperature
	for _, opt := range opts {
		opt(&req)
	}

	ctx = llm.WithPurpose(ctx, label)
	maxAttempts := s.MaxAttempts()

	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		attempts++

		data, err := s.attempt(ctx, req, compiled)
		if err == nil {
			if attempts > 1 {
				s.log.Info("structured generation recovered",
					zap.String("label", label), zap.Int("attempt", attempts))
			}
			return Result{Data: data, Attempts: attempts}
		}

		lastErr = err
		s.log.Warn("structured generation attempt failed",
			zap.String("label", label),
			zap.String("contract", contract.Name),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", maxAttempts),
			zap.Bool("provider_transient", llm.IsTransient(err)),
			zap.Error(err),
		)
	}

	return Result{
		Attempts: attempts,
		Err:      &GenerationError{Label: label, Attempts: attempts, Err: lastErr},
	}
}

// attempt runs one generate-parse-repair-validate pass under its own timeout.
func (s *Service) attempt(ctx context.Context, req llm.Request, compiled *jsonschema.Schema) (json.RawMessage, error) {
	if s.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		defer cancel()
	}

	resp, err := s.provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	v, data, err := parseOutput(resp.Text)
	if err == nil {
		err = validateOutput(compiled, v)
	}
	if err != nil {
		var ve *ValidationError
		if resp.StopReason == llm.StopMaxTokens && errors.As(err, &ve) {
			ve.Truncated = true
		}
		return nil, err
	}
	return data, nil
}
