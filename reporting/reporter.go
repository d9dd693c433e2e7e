// Package reporting forwards internal failures to error tracking.
package reporting

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/yashrajoria/graphql-gateway/awsutil"
	apperrors "github.com/yashrajoria/graphql-gateway/errors"
)

// Event is what gets published for one internal failure.
type Event struct {
	EventType        string                 `json:"event_type"`
	Service          string                 `json:"service"`
	Code             int                    `json:"code"`
	Kind             string                 `json:"kind"`
	Message          string                 `json:"message"`
	Cause            string                 `json:"cause,omitempty"`
	Details          map[string]interface{} `json:"details,omitempty"`
	Path             string                 `json:"path,omitempty"`
	CorrelationToken string                 `json:"correlation_token,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
}

// Reporter receives 500-class errors. Report must not block the caller.
type Reporter interface {
	Report(ctx context.Context, err *apperrors.Error, path, correlationToken string)
}

// Noop drops every report.
type Noop struct{}

func (Noop) Report(context.Context, *apperrors.Error, string, string) {}

// SNSReporter publishes events to an SNS topic.
type SNSReporter struct {
	publisher awsutil.SNSPublisher
	topicArn  string
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time
}

func NewSNSReporter(publisher awsutil.SNSPublisher, topicArn string, logger *zap.Logger) *SNSReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SNSReporter{
		publisher: publisher,
		topicArn:  topicArn,
		logger:    logger,
		timeout:   5 * time.Second,
		now:       time.Now,
	}
}

// Report publishes in the background. Failures are logged only.
func (r *SNSReporter) Report(ctx context.Context, err *apperrors.Error, path, correlationToken string) {
	if err == nil || !err.Internal() {
		return
	}
	event := r.event(err, path, correlationToken)

	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		r.publish(pubCtx, event)
	}()
}

func (r *SNSReporter) event(err *apperrors.Error, path, correlationToken string) Event {
	e := Event{
		EventType:        "gateway_error",
		Service:          "graphql-gateway",
		Code:             err.Code(),
		Kind:             err.Kind.String(),
		Message:          err.Message,
		Path:             path,
		CorrelationToken: correlationToken,
		Timestamp:        r.now().UTC(),
	}
	if err.Err != nil {
		e.Cause = err.Err.Error()
	}
	if details, ok := err.Extensions()["details"].(map[string]interface{}); ok {
		e.Details = details
	}
	return e
}

func (r *SNSReporter) publish(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("Failed to marshal error report", zap.Error(err))
		return
	}
	if err := r.publisher.Publish(ctx, r.topicArn, body); err != nil {
		r.logger.Error("Failed to publish error report", zap.Error(err))
		return
	}
	r.logger.Debug("Published error report",
		zap.Int("code", event.Code),
		zap.String("correlation_token", event.CorrelationToken),
	)
}
