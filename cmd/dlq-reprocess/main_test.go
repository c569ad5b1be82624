package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
	"github.com/vladislavdragonenkov/shopqueue/internal/messaging/kafka"
)

// dlqRecord собирает сообщение DLQ так же, как его публикует outbox-воркер.
func dlqRecord(t *testing.T, aggregateType, aggregateID, eventType string) []byte {
	t.Helper()

	inner, err := json.Marshal(map[string]any{
		"outbox_id":        "outbox-" + aggregateID,
		"aggregate_type":   aggregateType,
		"aggregate_id":     aggregateID,
		"event_type":       eventType,
		"payload":          map[string]any{"status": "IN_QUEUE"},
		"publish_error":    "broker down",
		"dlq_published_at": time.Now().UTC(),
	})
	require.NoError(t, err)

	raw, err := json.Marshal(kafka.NewEnvelope(domain.OutboxMessage{
		ID:            "outbox-" + aggregateID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     "OutboxDeadLettered",
		Payload:       inner,
	}, time.Now().UTC()))
	require.NoError(t, err)
	return raw
}

func orderRecord(t *testing.T, partition int32, offset int64, orderID string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Partition: partition,
		Offset:    offset,
		Value:     dlqRecord(t, domain.AggregateOrder, orderID, domain.EventOrderCreated),
	}
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
	assert.Empty(t, parseBrokers(" , "))
}

func TestExtractReplayMessage_OrderEvent(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: dlqRecord(t, domain.AggregateOrder, "order-1", domain.EventOrderCancelled)}

	got, ok, err := extractReplayMessage(msg, "")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, kafka.TopicOrderEvents, got.topic)
	assert.Equal(t, "order-1", got.key)
	assert.Equal(t, domain.EventOrderCancelled, got.headers[kafka.HeaderEventType])
	assert.Equal(t, "outbox-order-1", got.headers[kafka.HeaderOutboxID])

	var envelope kafka.Envelope
	require.NoError(t, json.Unmarshal(got.value, &envelope))
	assert.Equal(t, "outbox-order-1", envelope.ID)
	assert.Equal(t, domain.EventOrderCancelled, envelope.EventType)
	assert.JSONEq(t, `{"status":"IN_QUEUE"}`, string(envelope.Payload))
}

func TestExtractReplayMessage_QueueEventRoutedByAggregate(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: dlqRecord(t, domain.AggregateQueue, "queue-1", domain.EventQueueRepositioned)}

	got, ok, err := extractReplayMessage(msg, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kafka.TopicQueueEvents, got.topic)
	assert.Equal(t, "queue-1", got.key)
}

func TestExtractReplayMessage_TargetOverride(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: dlqRecord(t, domain.AggregateQueue, "queue-1", domain.EventQueueRepositioned)}

	got, ok, err := extractReplayMessage(msg, "custom.topic")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "custom.topic", got.topic)
}

func TestExtractReplayMessage_MissingNestedPayload(t *testing.T) {
	inner := []byte(`{"outbox_id":"outbox-1","aggregate_type":"order","aggregate_id":"order-1","event_type":"OrderCreated"}`)
	raw, err := json.Marshal(kafka.NewEnvelope(domain.OutboxMessage{ID: "outbox-1", Payload: inner}, time.Now()))
	require.NoError(t, err)

	_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: raw}, "")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestExtractReplayMessage_Skips(t *testing.T) {
	for name, value := range map[string]string{
		"unknown json": `{"foo":"bar"}`,
		"not json":     `plain text`,
		"null payload": `{"id":"x","payload":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(value)}, "")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "x", firstNonEmpty("", "  ", "x", "y"))
	assert.Empty(t, firstNonEmpty("", " "))
}

func TestReadConfig_FromFlags(t *testing.T) {
	cfg, err := readConfig([]string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-source-topic=shopqueue.dlq",
		"-target-topic=replay.events",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, nil)
	require.NoError(t, err)

	assert.Len(t, cfg.brokers, 2)
	assert.Equal(t, "replay.events", cfg.targetTopic)
	assert.Equal(t, 10, cfg.limit)
	assert.True(t, cfg.execute)
	assert.True(t, cfg.fromNewest)
	assert.Equal(t, 3*time.Second, cfg.idleTimeout)
}

func TestReadConfig_Defaults(t *testing.T) {
	env := map[string]string{"SHOPQUEUE_KAFKA_BROKERS": "env-broker:9092"}
	cfg, err := readConfig(nil, func(key string) string { return env[key] })
	require.NoError(t, err)

	assert.Equal(t, []string{"env-broker:9092"}, cfg.brokers)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	assert.Empty(t, cfg.targetTopic)
	assert.Equal(t, defaultReplayLimit, cfg.limit)
	assert.False(t, cfg.execute)
	assert.Equal(t, defaultIdleTimeout, cfg.idleTimeout)
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "brokers", args: []string{"-brokers="}, want: "kafka brokers are required"},
		{name: "source", args: []string{"-brokers=b:9092", "-source-topic="}, want: "source-topic is required"},
		{name: "loop", args: []string{"-brokers=b:9092", "-target-topic=" + kafka.TopicDeadLetterQueue}, want: "must differ"},
		{name: "limit", args: []string{"-brokers=b:9092", "-limit=0"}, want: "limit must be > 0"},
		{name: "idle", args: []string{"-brokers=b:9092", "-idle-timeout=0s"}, want: "idle-timeout must be > 0"},
		{name: "unknown flag", args: []string{"-nope"}, want: "flag provided but not defined"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := readConfig(tc.args, func(string) string { return "" })
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestPublishReplay(t *testing.T) {
	require.Error(t, publishReplay(nil, replayMessage{}))

	producer := &stubReplayProducer{}
	err := publishReplay(producer, replayMessage{
		topic:   "topic",
		key:     "key",
		value:   []byte(`{"x":1}`),
		headers: map[string]string{kafka.HeaderOutboxID: "outbox-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, producer.calls)
	require.NotNil(t, producer.lastMsg)
	assert.Equal(t, "topic", producer.lastMsg.Topic)
	require.Len(t, producer.lastMsg.Headers, 1)
	assert.Equal(t, kafka.HeaderOutboxID, string(producer.lastMsg.Headers[0].Key))

	producer.sendErr = errors.New("send failed")
	require.Error(t, publishReplay(producer, replayMessage{topic: "topic"}))
}

func TestProcessPartition_DryRun(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{orderRecord(t, 0, 0, "order-1")}),
		},
	}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, idleTimeout: 20 * time.Millisecond}

	stats, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, partitionStats{processed: 1, replayed: 1}, stats)
	require.Len(t, consumer.calls, 1)
	assert.Equal(t, int64(0), consumer.calls[0].offset)
}

func TestProcessPartition_FromNewest(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 10}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{orderRecord(t, 0, 7, "order-7")}),
		},
	}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, fromNewest: true, idleTimeout: 20 * time.Millisecond}

	_, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 3)
	require.NoError(t, err)
	require.Len(t, consumer.calls, 1)
	assert.Equal(t, int64(7), consumer.calls[0].offset)
}

func TestProcessPartition_Execute(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{orderRecord(t, 0, 0, "order-1")}),
		},
	}
	producer := &stubReplayProducer{}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, execute: true, idleTimeout: 20 * time.Millisecond}

	stats, err := processPartition(context.Background(), consumer, client, producer, cfg, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.replayed)
	assert.Equal(t, 1, producer.calls)
	assert.Equal(t, kafka.TopicOrderEvents, producer.lastMsg.Topic)
}

func TestProcessPartition_EmptyPartition(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 5, newest: 5}}}
	consumer := &stubPartitionConsumerSource{}

	stats, err := processPartition(context.Background(), consumer, client, nil, config{idleTimeout: time.Second}, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
	assert.Empty(t, consumer.calls)
}

func TestProcessPartition_ErrorBranches(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, execute: true, idleTimeout: 20 * time.Millisecond}

	clientOffsetErr := &stubOffsetClient{offsetErr: map[int32]error{0: errors.New("offset")}}
	_, err := processPartition(context.Background(), &stubPartitionConsumerSource{}, clientOffsetErr, &stubReplayProducer{}, cfg, 0, 1)
	require.Error(t, err)

	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumerErr := &stubPartitionConsumerSource{consumeErr: errors.New("consume")}
	_, err = processPartition(context.Background(), consumerErr, client, &stubReplayProducer{}, cfg, 0, 1)
	require.Error(t, err)

	pcWithErr := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	pcWithErr.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	close(pcWithErr.errors)
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcWithErr}}
	_, err = processPartition(context.Background(), consumer, client, &stubReplayProducer{}, cfg, 0, 1)
	require.Error(t, err)
	close(pcWithErr.messages)

	pcBadPayload := closedPartitionConsumer([]*sarama.ConsumerMessage{{
		Partition: 0,
		Offset:    0,
		Value:     []byte(`{"id":"x","payload":"not-an-object"}`),
	}})
	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcBadPayload}}
	stats, err := processPartition(context.Background(), consumer, client, &stubReplayProducer{}, cfg, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.skipped)

	pcOK := closedPartitionConsumer([]*sarama.ConsumerMessage{orderRecord(t, 0, 0, "order-1")})
	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcOK}}
	producer := &stubReplayProducer{sendErr: errors.New("send fail")}
	_, err = processPartition(context.Background(), consumer, client, producer, cfg, 0, 1)
	require.Error(t, err)
}

func TestProcessPartition_IdleTimeoutAndContext(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, idleTimeout: 10 * time.Millisecond}

	idleConsumer := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idleConsumer}}

	stats, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 1)
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
	close(idleConsumer.messages)
	close(idleConsumer.errors)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	canceledPC := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	canceledConsumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: canceledPC}}
	_, err = processPartition(ctx, canceledConsumer, client, nil, cfg, 0, 1)
	require.ErrorIs(t, err, context.Canceled)
	close(canceledPC.messages)
	close(canceledPC.errors)
}

func TestRunReplay(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 1, idleTimeout: 20 * time.Millisecond}

	require.Error(t, runReplay(context.Background(), cfg, nil, nil, nil))

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
			2: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{orderRecord(t, 0, 0, "order-1")}),
			2: closedPartitionConsumer([]*sarama.ConsumerMessage{orderRecord(t, 2, 0, "order-2")}),
		},
	}

	require.NoError(t, runReplay(context.Background(), cfg, client, consumer, nil))
	require.Len(t, consumer.calls, 1)
	assert.Equal(t, int32(0), consumer.calls[0].partition)

	executeCfg := cfg
	executeCfg.execute = true
	require.Error(t, runReplay(context.Background(), executeCfg, client, consumer, nil))

	partitionsErr := &stubOffsetClient{partitionsErr: errors.New("metadata")}
	require.Error(t, runReplay(context.Background(), cfg, partitionsErr, consumer, nil))

	emptyClient := &stubOffsetClient{}
	require.NoError(t, runReplay(context.Background(), cfg, emptyClient, consumer, nil))
}

func TestRun_UsesDependencies(t *testing.T) {
	oldDeps := newReplayDependencies
	t.Cleanup(func() { newReplayDependencies = oldDeps })

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 1, idleTimeout: 20 * time.Millisecond}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return nil, nil, nil, errors.New("deps failed")
	}
	err := run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deps failed")

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{orderRecord(t, 0, 0, "order-1")}),
		},
	}
	producer := &stubReplayProducer{}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, producer, nil
	}
	require.NoError(t, run(context.Background(), cfg))
	assert.True(t, client.closed)
	assert.True(t, consumer.closed)
	assert.True(t, producer.closed)
}

func TestMain_SuccessWithStubbedDeps(t *testing.T) {
	oldDeps := newReplayDependencies
	oldArgs := os.Args
	t.Cleanup(func() {
		newReplayDependencies = oldDeps
		os.Args = oldArgs
	})

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{orderRecord(t, 0, 0, "order-1")}),
		},
	}
	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, nil, nil
	}

	os.Args = []string{"dlq-reprocess", "-brokers=broker:9092", "-limit=1", "-idle-timeout=50ms"}
	main()

	assert.True(t, client.closed)
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	require.Error(t, err)

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}

	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	errCh := make(chan *sarama.ConsumerError)
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	close(errCh)
	return &stubPartitionConsumer{messages: msgCh, errors: errCh}
}

type stubReplayProducer struct {
	sendErr error
	calls   int
	closed  bool
	lastMsg *sarama.ProducerMessage
}

func (s *stubReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.lastMsg = msg
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	return 0, int64(s.calls), nil
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}
