// Package studio drives one modelling session: it records each user turn,
// calls the configured backend and writes the outcome back into the history.
package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/manash/modelchat/internal/backend"
	"github.com/manash/modelchat/internal/history"
	"github.com/manash/modelchat/internal/metrics"
	"github.com/manash/modelchat/pkg/models"
)

var (
	ErrEmptyPrompt      = models.ErrEmptyPrompt
	ErrEmptyInstruction = errors.New("adjustment cannot be empty")
	ErrMissingBackend   = errors.New("generator, refiner and submitter are required")
	ErrNoResult         = errors.New("submitter returned no result")
)

const (
	OperationGenerate = "generate"
	OperationRefine   = "refine"
)

type Config struct {
	Generator backend.Generator
	Refiner   backend.Refiner
	Submitter backend.Submitter
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	// Timeout bounds each backend call. Zero means no limit beyond ctx.
	Timeout        time.Duration
	SessionOptions []history.Option
}

// StepResult describes one describe or refine step. Err is the backend error
// when OK is false; Reply is the assistant message that was recorded.
type StepResult struct {
	Reply   history.Message
	Preview *models.Preview
	OK      bool
	Err     error
}

type Studio struct {
	mu      sync.Mutex
	session *history.Session

	generator backend.Generator
	refiner   backend.Refiner
	submitter backend.Submitter
	logger    *zap.Logger
	metrics   *metrics.Collector
	timeout   time.Duration
}

func New(cfg Config) (*Studio, error) {
	if cfg.Generator == nil || cfg.Refiner == nil || cfg.Submitter == nil {
		return nil, ErrMissingBackend
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Studio{
		session:   history.New(cfg.SessionOptions...),
		generator: cfg.Generator,
		refiner:   cfg.Refiner,
		submitter: cfg.Submitter,
		logger:    logger.With(zap.String("component", "studio")),
		metrics:   cfg.Metrics,
		timeout:   cfg.Timeout,
	}
	s.metrics.SessionOpened()
	s.logger.Debug("session started", zap.String("session_id", s.session.ID()))
	return s, nil
}

// Generate records prompt as a user turn and asks the generator for a
// preview. A backend failure leaves the preview untouched and is reported
// through the returned StepResult, not as an error.
func (s *Studio) Generate(ctx context.Context, prompt string) (*StepResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.RecordUserTurn(prompt)

	p, err := s.call(ctx, s.generator.Name(), OperationGenerate, func(ctx context.Context) (*models.Preview, error) {
		return s.generator.Generate(ctx, prompt)
	})
	if err != nil {
		return s.fail(fmt.Sprintf("Could not generate a preview for \"%s\": %v", prompt, err), err), nil
	}
	return s.succeed(p, "Generated preview based on: "+prompt), nil
}

// Refine records instruction both as a user turn and as an adjustment
// request, then asks the refiner to apply it to the current preview.
func (s *Studio) Refine(ctx context.Context, instruction string) (*StepResult, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, ErrEmptyInstruction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.RecordUserTurn(instruction)
	s.session.RecordAdjustment(instruction)

	previous := s.session.Preview()
	p, err := s.call(ctx, s.refiner.Name(), OperationRefine, func(ctx context.Context) (*models.Preview, error) {
		return s.refiner.Refine(ctx, previous, instruction)
	})
	if err != nil {
		return s.fail(fmt.Sprintf("Could not apply adjustment \"%s\": %v", instruction, err), err), nil
	}
	return s.succeed(p, "Applied adjustment: "+instruction), nil
}

// Submit hands a snapshot of the session to the submitter. The session is
// never modified. A submitter error becomes a result with status "error".
func (s *Studio) Submit(ctx context.Context) *models.SubmissionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.session.Snapshot()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.submitter.Submit(ctx, snap)
	if err == nil && result == nil {
		err = ErrNoResult
	}
	if err != nil {
		s.logger.Warn("submission failed",
			zap.String("session_id", snap.SessionID),
			zap.String("submitter", string(s.submitter.Name())),
			zap.Error(err),
		)
		result = &models.SubmissionResult{
			Status:          models.SubmissionError,
			Message:         err.Error(),
			PreviewIncluded: snap.PreviewIncluded,
		}
	}

	s.metrics.RecordSubmission(result.Status)
	return result
}

// Clear discards the session and starts an empty one, which it returns.
func (s *Studio) Clear() *history.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.session.ID()
	s.session = s.session.Reset()
	s.logger.Debug("session cleared",
		zap.String("previous_session_id", old),
		zap.String("session_id", s.session.ID()),
	)
	return s.session
}

// Session returns the live session. Use Snapshot or Preview for reads that
// may race with an in-flight step.
func (s *Studio) Session() *history.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Studio) Snapshot() history.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Snapshot()
}

func (s *Studio) Preview() *models.Preview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Preview()
}

// Close releases the session gauge. The Studio must not be used afterwards.
func (s *Studio) Close() {
	s.metrics.SessionClosed()
}

func (s *Studio) call(ctx context.Context, name models.BackendType, op string, fn func(context.Context) (*models.Preview, error)) (*models.Preview, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	p, err := fn(ctx)
	if err == nil && p == nil {
		err = fmt.Errorf("%w: backend returned no preview", backend.ErrMalformedArtifact)
	}
	elapsed := time.Since(start)

	s.metrics.RecordBackendCall(string(name), op, err, elapsed)
	if err != nil {
		s.logger.Warn("backend call failed",
			zap.String("backend", string(name)),
			zap.String("operation", op),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordCost(string(p.Source), p.Cost)
	s.logger.Info("preview ready",
		zap.String("backend", string(name)),
		zap.String("operation", op),
		zap.String("source", string(p.Source)),
		zap.String("preview_id", p.ID),
		zap.Duration("elapsed", elapsed),
	)
	return p, nil
}

func (s *Studio) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Studio) succeed(p *models.Preview, reply string) *StepResult {
	s.session.SetPreview(p)
	return &StepResult{
		Reply:   s.session.RecordAssistantTurn(reply),
		Preview: p,
		OK:      true,
	}
}

func (s *Studio) fail(reply string, err error) *StepResult {
	return &StepResult{
		Reply:   s.session.RecordAssistantTurn(reply),
		Preview: s.session.Preview(),
		OK:      false,
		Err:     err,
	}
}
