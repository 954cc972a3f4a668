package diagnostics

import "context"

// Recorder persists a completed Result, e.g. storage.DB.SaveSpeedTestResult
// adapted to this package's Result type. Declared locally so this package
// never imports internal/storage.
type Recorder interface {
	Record(r Result) error
}

// RunAndRecord runs a speed test and persists the result via rec before
// returning it. A Record failure is not surfaced to the caller: the
// measurement itself already succeeded.
func RunAndRecord(ctx context.Context, onPhase PhaseCallback, rec Recorder) (Result, error) {
	result, err := RunSpeedTest(ctx, onPhase)
	if err != nil {
		return Result{}, err
	}
	if rec != nil {
		_ = rec.Record(result)
	}
	return result, nil
}
