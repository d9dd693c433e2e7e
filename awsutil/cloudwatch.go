package awsutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

type logsAPI interface {
	CreateLogGroup(ctx context.Context, in *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	PutRetentionPolicy(ctx context.Context, in *cloudwatchlogs.PutRetentionPolicyInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error)
	CreateLogStream(ctx context.Context, in *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, in *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

const (
	logQueueSize     = 4096
	logBatchSize     = 500
	logFlushInterval = 2 * time.Second
)

// CloudWatchLogsClient ships log lines to one CloudWatch Logs stream. It is
// a zapcore.WriteSyncer: Write only queues the line and a background loop
// ships batches, so logging never waits on CloudWatch.
type CloudWatchLogsClient struct {
	client        logsAPI
	logGroupName  string
	logStreamName string

	mu            sync.Mutex
	sequenceToken *string

	queue   chan types.InputLogEvent
	flushes chan chan struct{}
	dropped atomic.Int64
}

// NewCloudWatchLogsClient creates the log group and a fresh stream for this
// process.
func NewCloudWatchLogsClient(ctx context.Context, cfg aws.Config, serviceName string) (*CloudWatchLogsClient, error) {
	logGroupName := os.Getenv("CLOUDWATCH_LOG_GROUP")
	if logGroupName == "" {
		logGroupName = "/ecommerce/graphql-gateway"
	}
	return newCloudWatchLogsClient(ctx, cloudwatchlogs.NewFromConfig(cfg), logGroupName, fmt.Sprintf("%s-%d", serviceName, time.Now().Unix()))
}

func newCloudWatchLogsClient(ctx context.Context, client logsAPI, group, stream string) (*CloudWatchLogsClient, error) {
	c := &CloudWatchLogsClient{
		client:        client,
		logGroupName:  group,
		logStreamName: stream,
		queue:         make(chan types.InputLogEvent, logQueueSize),
		flushes:       make(chan chan struct{}),
	}
	if err := c.ensureLogGroup(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure log group: %w", err)
	}
	if _, err := client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
	}); err != nil {
		return nil, fmt.Errorf("failed to create log stream: %w", err)
	}
	go c.run(logFlushInterval)
	return c, nil
}

func (c *CloudWatchLogsClient) ensureLogGroup(ctx context.Context) error {
	_, err := c.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(c.logGroupName),
	})
	if err != nil {
		var existsErr *types.ResourceAlreadyExistsException
		if !errors.As(err, &existsErr) {
			return err
		}
	}

	_, err = c.client.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    aws.String(c.logGroupName),
		RetentionInDays: aws.Int32(30),
	})
	if err != nil {
		return fmt.Errorf("failed to set retention policy: %w", err)
	}
	return nil
}

// PutLogEvents sends log events to CloudWatch Logs
func (c *CloudWatchLogsClient) PutLogEvents(ctx context.Context, events []types.InputLogEvent) error {
	if len(events) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out, err := c.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(c.logGroupName),
		LogStreamName: aws.String(c.logStreamName),
		LogEvents:     events,
		SequenceToken: c.sequenceToken,
	})
	if err != nil {
		return fmt.Errorf("failed to put log events: %w", err)
	}
	c.sequenceToken = out.NextSequenceToken
	return nil
}

// Write implements io.Writer. The line is dropped when the queue is full.
func (c *CloudWatchLogsClient) Write(p []byte) (int, error) {
	event := types.InputLogEvent{
		Message:   aws.String(strings.TrimRight(string(p), "\n")),
		Timestamp: aws.Int64(time.Now().UnixMilli()),
	}
	select {
	case c.queue <- event:
	default:
		c.dropped.Add(1)
	}
	return len(p), nil
}

// Sync blocks until every queued line has been shipped.
func (c *CloudWatchLogsClient) Sync() error {
	done := make(chan struct{})
	c.flushes <- done
	<-done
	return nil
}

func (c *CloudWatchLogsClient) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]types.InputLogEvent, 0, logBatchSize)
	add := func(event types.InputLogEvent) {
		batch = append(batch, event)
		if len(batch) == logBatchSize {
			batch = c.ship(batch)
		}
	}

	for {
		select {
		case event := <-c.queue:
			add(event)
		case <-ticker.C:
			batch = c.ship(batch)
		case done := <-c.flushes:
			for drained := false; !drained; {
				select {
				case event := <-c.queue:
					add(event)
				default:
					drained = true
				}
			}
			batch = c.ship(batch)
			close(done)
		}
	}
}

// ship sends batch and returns it emptied. Failures go to stderr.
func (c *CloudWatchLogsClient) ship(batch []types.InputLogEvent) []types.InputLogEvent {
	if n := c.dropped.Swap(0); n > 0 {
		fmt.Fprintf(os.Stderr, "CloudWatch log queue full, dropped %d lines\n", n)
	}
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events := append([]types.InputLogEvent(nil), batch...)
	if err := c.PutLogEvents(ctx, events); err != nil {
		fmt.Fprintf(os.Stderr, "CloudWatch write error: %v\n", err)
	}
	return batch[:0]
}
