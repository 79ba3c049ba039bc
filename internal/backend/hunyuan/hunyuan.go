package hunyuan

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/manash/modelchat/internal/history"
	"github.com/manash/modelchat/pkg/models"
)

const (
	SubmittedMessage = "Model submitted to HunYuan for processing"
	trackingPrefix   = "HY"
	trackingLayout   = "20060102150405"
)

// Submitter acknowledges a snapshot and hands back a tracking id. The
// HunYuan pipeline itself is not called; the acknowledgment is local.
type Submitter struct {
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Submitter)

func WithClock(now func() time.Time) Option {
	return func(s *Submitter) {
		s.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Submitter) {
		s.logger = logger
	}
}

func New(opts ...Option) *Submitter {
	s := &Submitter{
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Submitter) Name() models.BackendType {
	return models.BackendHunyuan
}

func (s *Submitter) Submit(ctx context.Context, snap history.Snapshot) (*models.SubmissionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &models.SubmissionResult{
		Status:          models.SubmissionSuccess,
		Message:         SubmittedMessage,
		TrackingID:      TrackingID(s.now()),
		PreviewIncluded: snap.PreviewIncluded,
	}

	s.logger.Info("model submitted",
		zap.String("session_id", snap.SessionID),
		zap.String("tracking_id", result.TrackingID),
		zap.Int("messages", len(snap.Conversation)),
		zap.Strings("adjustments", snap.AdjustmentTexts()),
		zap.Bool("preview_included", snap.PreviewIncluded),
	)
	return result, nil
}

// TrackingID formats t as HY followed by a 14-digit timestamp.
func TrackingID(t time.Time) string {
	return trackingPrefix + t.Format(trackingLayout)
}
