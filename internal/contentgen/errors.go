package contentgen

import "fmt"

// Validation stages.
const (
	StageParse    = "parse"
	StageContract = "contract"
)

// ValidationError reports model output that could not be parsed (even
// after repair) or did not satisfy its contract.
type ValidationError struct {
	Stage string
	Err   error

	// Truncated is set when the provider stopped at the token limit, which
	// usually explains a parse failure.
	Truncated bool
}

func (e *ValidationError) Error() string {
	if e.Truncated {
		return fmt.Sprintf("%s validation failed (output truncated at token limit): %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s validation failed: %v", e.Stage, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// GenerationError is the terminal failure of a structured generation after
// the retry budget is spent. Err is the cause of the last attempt.
type GenerationError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: failed after %d attempt(s): %v", e.Label, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
