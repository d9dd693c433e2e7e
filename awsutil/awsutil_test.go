package awsutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (f *fakeMetrics) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetricsClientDisabledSendsNothing(t *testing.T) {
	fake := &fakeMetrics{}
	m := &MetricsClient{client: fake, namespace: "test", enabled: false}

	require.NoError(t, m.RecordCount(context.Background(), MetricHTTPRequests, nil))
	assert.Empty(t, fake.inputs)

	var nilClient *MetricsClient
	assert.False(t, nilClient.IsEnabled())
}

func TestMetricsClientRecordLatency(t *testing.T) {
	fake := &fakeMetrics{}
	m := &MetricsClient{client: fake, namespace: "test", enabled: true}

	err := m.RecordLatency(context.Background(), MetricBackendLatency, 250*time.Millisecond, map[string]string{"Service": "stores"})
	require.NoError(t, err)

	require.Len(t, fake.inputs, 1)
	datum := fake.inputs[0].MetricData[0]
	assert.Equal(t, MetricBackendLatency, *datum.MetricName)
	assert.Equal(t, float64(250), *datum.Value)
	require.Len(t, datum.Dimensions, 1)
	assert.Equal(t, "stores", *datum.Dimensions[0].Value)
}

type fakeLogs struct {
	groupErr error
	release  chan struct{}
	events   [][]types.InputLogEvent
	tokens   []*string
	n        int
}

func (f *fakeLogs) CreateLogGroup(context.Context, *cloudwatchlogs.CreateLogGroupInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	return &cloudwatchlogs.CreateLogGroupOutput{}, f.groupErr
}

func (f *fakeLogs) PutRetentionPolicy(context.Context, *cloudwatchlogs.PutRetentionPolicyInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error) {
	return &cloudwatchlogs.PutRetentionPolicyOutput{}, nil
}

func (f *fakeLogs) CreateLogStream(context.Context, *cloudwatchlogs.CreateLogStreamInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func (f *fakeLogs) PutLogEvents(_ context.Context, in *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	if f.release != nil {
		<-f.release
	}
	f.events = append(f.events, in.LogEvents)
	f.tokens = append(f.tokens, in.SequenceToken)
	f.n++
	next := string(rune('a' + f.n))
	return &cloudwatchlogs.PutLogEventsOutput{NextSequenceToken: &next}, nil
}

func TestCloudWatchLogsWriterShipsAndChainsTokens(t *testing.T) {
	fake := &fakeLogs{groupErr: &types.ResourceAlreadyExistsException{}}
	c, err := newCloudWatchLogsClient(context.Background(), fake, "/group", "stream")
	require.NoError(t, err)

	n, err := c.Write([]byte(`{"msg":"one"}` + "\n"))
	require.NoError(t, err)
	assert.Equal(t, 14, n)
	require.NoError(t, c.Sync())
	_, _ = c.Write([]byte(`{"msg":"two"}`))
	require.NoError(t, c.Sync())

	require.Len(t, fake.events, 2)
	assert.Equal(t, `{"msg":"one"}`, *fake.events[0][0].Message)
	assert.Nil(t, fake.tokens[0])
	require.NotNil(t, fake.tokens[1])
	assert.Equal(t, "b", *fake.tokens[1])
}

func TestCloudWatchLogsWriterBatchesLines(t *testing.T) {
	fake := &fakeLogs{}
	c, err := newCloudWatchLogsClient(context.Background(), fake, "/group", "stream")
	require.NoError(t, err)

	for _, line := range []string{"a", "b", "c"} {
		_, _ = c.Write([]byte(line))
	}
	require.NoError(t, c.Sync())

	require.Len(t, fake.events, 1)
	require.Len(t, fake.events[0], 3)
	assert.Equal(t, "c", *fake.events[0][2].Message)
}

func TestCloudWatchLogsWriteDoesNotWaitForShipping(t *testing.T) {
	fake := &fakeLogs{release: make(chan struct{})}
	c, err := newCloudWatchLogsClient(context.Background(), fake, "/group", "stream")
	require.NoError(t, err)

	_, _ = c.Write([]byte("first"))
	synced := make(chan struct{})
	go func() {
		_ = c.Sync()
		close(synced)
	}()

	start := time.Now()
	for i := 0; i < 100; i++ {
		_, err := c.Write([]byte("line"))
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), time.Second)

	close(fake.release)
	<-synced
	require.NoError(t, c.Sync())
}

func TestCloudWatchLogsWriteDropsWhenQueueIsFull(t *testing.T) {
	c := &CloudWatchLogsClient{queue: make(chan types.InputLogEvent, 1)}

	for i := 0; i < 3; i++ {
		n, err := c.Write([]byte("x"))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, int64(2), c.dropped.Load())
}

func TestCloudWatchLogsClientFailsOnGroupError(t *testing.T) {
	fake := &fakeLogs{groupErr: errors.New("access denied")}
	_, err := newCloudWatchLogsClient(context.Background(), fake, "/group", "stream")
	assert.ErrorContains(t, err, "access denied")
}

type fakeSNS struct {
	last *sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.last = in
	return &sns.PublishOutput{}, nil
}

func TestSNSClientPublish(t *testing.T) {
	fake := &fakeSNS{}
	s := &SNSClient{client: fake}

	assert.Error(t, s.Publish(context.Background(), "", []byte("x")))

	require.NoError(t, s.Publish(context.Background(), "arn:aws:sns:eu-west-1:1:errors", []byte(`{"code":400}`)))
	assert.Equal(t, "arn:aws:sns:eu-west-1:1:errors", *fake.last.TopicArn)
	assert.Equal(t, `{"code":400}`, *fake.last.Message)
}

type fakeSecrets struct {
	calls  int
	values map[string]string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[*in.SecretId]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: &v}, nil
}

func TestSecretsClientCachesValues(t *testing.T) {
	fake := &fakeSecrets{values: map[string]string{
		"gateway/jwt": `{"secret":"s3cr3t"}`,
	}}
	s := &SecretsClient{client: fake, cache: map[string]string{}}

	v, err := s.GetSecretField(context.Background(), "gateway/jwt", "secret")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", v)

	_, err = s.GetSecret(context.Background(), "gateway/jwt")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)

	_, err = s.GetSecretField(context.Background(), "gateway/jwt", "missing")
	assert.Error(t, err)

	_, err = s.GetSecret(context.Background(), "nope")
	assert.Error(t, err)
}
