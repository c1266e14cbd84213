package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/hoovercj/streamABLE/internal/logging"
	"github.com/hoovercj/streamABLE/internal/processor"
)

func newTestRedisConsumer(t *testing.T, fp *fakeProcessor) (*RedisConsumer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisConsumer(&RedisConsumerConfig{
		RedisURL:          "redis://" + mr.Addr(),
		Concurrency:       1,
		Processor:         fp,
		ProcessingTimeout: 2000,
		Logger:            logging.NewLoggerWithWriter("test", io.Discard),
	})
	if err != nil {
		t.Fatalf("NewRedisConsumer() error = %v", err)
	}
	return c, mr
}

func pushJob(mr *miniredis.Miniredis, id, data string) {
	mr.HSet(DefaultQueueName+":data", id, data)
	mr.Lpush(DefaultQueueName, id)
}

func isMember(t *testing.T, mr *miniredis.Miniredis, set, member string) bool {
	t.Helper()
	ok, err := mr.IsMember(DefaultQueueName+":"+set, member)
	if err != nil && !errors.Is(err, miniredis.ErrKeyNotFound) {
		t.Fatalf("IsMember(%s) error = %v", set, err)
	}
	return ok
}

func (f *fakeProcessor) statuses() []statusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statusUpdate(nil), f.updates...)
}

func completedResult(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	return &processor.ProcessResult{
		AnalysisID:       "a1",
		Catalog:          "LoLTournament",
		Results:          []processor.RegionResult{{Name: "Time", Text: "12:34"}},
		ProcessingTimeMs: 8,
	}, nil
}

func TestRedisConsumerCompletesJob(t *testing.T) {
	fp := &fakeProcessor{process: completedResult}
	c, mr := newTestRedisConsumer(t, fp)
	defer c.client.Close()

	ctx := context.Background()
	sub := c.client.Subscribe(ctx, c.key("events"))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	events := sub.Channel()

	pushJob(mr, "q1", `{"id":"q1","maxRetries":3,"payload":{"jobId":"j1","frameUrl":"http://x/f.png"}}`)

	if err := c.processNextJob(); err != nil {
		t.Fatalf("processNextJob() error = %v", err)
	}

	if !isMember(t, mr, "completed", "j1") || isMember(t, mr, "processing", "j1") {
		t.Error("j1 should move from processing to completed")
	}

	var stored processor.ProcessResult
	if err := json.Unmarshal([]byte(mr.HGet(c.key("results"), "j1")), &stored); err != nil {
		t.Fatalf("results entry: %v", err)
	}
	if stored.AnalysisID != "a1" || len(stored.Results) != 1 || stored.Results[0].Text != "12:34" {
		t.Errorf("stored result = %+v", stored)
	}

	updates := fp.statuses()
	if len(updates) != 2 || updates[1].status != "completed" || updates[1].metadata["analysisId"] != "a1" {
		t.Errorf("updates = %+v", updates)
	}

	wantEvents := []string{"job:processing", "job:completed"}
	for _, want := range wantEvents {
		select {
		case msg := <-events:
			var event map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				t.Fatalf("event: %v", err)
			}
			if event["event"] != want || event["jobId"] != "j1" {
				t.Errorf("event = %v, want %s", event, want)
			}
			if want == "job:completed" && event["results"] == nil {
				t.Error("completed event should carry results")
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	stats, err := c.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	want := map[string]int64{"waiting": 0, "processing": 0, "completed": 1, "failed": 0}
	for k, v := range want {
		if stats[k] != v {
			t.Errorf("stats[%s] = %d, want %d", k, stats[k], v)
		}
	}
}

func TestRedisConsumerRequeuesFailedJob(t *testing.T) {
	fp := &fakeProcessor{
		process: func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
			return nil, errors.New("ocr engine unavailable")
		},
	}
	c, mr := newTestRedisConsumer(t, fp)
	defer c.client.Close()

	pushJob(mr, "q1", `{"id":"q1","attempts":0,"maxRetries":3,"payload":{"jobId":"j1","frameBuffer":"AQID"}}`)

	if err := c.processNextJob(); err != nil {
		t.Fatalf("processNextJob() error = %v", err)
	}

	queued, err := mr.List(DefaultQueueName)
	if err != nil || len(queued) != 1 || queued[0] != "q1" {
		t.Fatalf("queue = %v, %v; want [q1]", queued, err)
	}
	if isMember(t, mr, "processing", "j1") || isMember(t, mr, "failed", "j1") {
		t.Error("re-queued job should be neither processing nor failed")
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(mr.HGet(c.key("data"), "q1")), &job); err != nil {
		t.Fatalf("data entry: %v", err)
	}
	if job.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", job.Attempts)
	}
	if string(job.Payload.FrameBuffer) != "\x01\x02\x03" {
		t.Errorf("frame buffer lost on re-queue: %v", job.Payload.FrameBuffer)
	}

	stats, err := c.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats["waiting"] != 1 {
		t.Errorf("waiting = %d, want 1", stats["waiting"])
	}
}

func TestRedisConsumerFailsAfterLastAttempt(t *testing.T) {
	fp := &fakeProcessor{
		process: func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
			return nil, errors.New("ocr engine unavailable")
		},
	}
	c, mr := newTestRedisConsumer(t, fp)
	defer c.client.Close()

	pushJob(mr, "q1", `{"id":"q1","attempts":2,"maxRetries":3,"payload":{"jobId":"j1","frameUrl":"http://x"}}`)

	if err := c.processNextJob(); err != nil {
		t.Fatalf("processNextJob() error = %v", err)
	}

	if !isMember(t, mr, "failed", "j1") {
		t.Fatal("j1 should be failed")
	}
	var md map[string]interface{}
	if err := json.Unmarshal([]byte(mr.HGet(c.key("errors"), "j1")), &md); err != nil {
		t.Fatalf("errors entry: %v", err)
	}
	if md["attempts"] != float64(3) || md["error"] != "ocr engine unavailable" {
		t.Errorf("error metadata = %v", md)
	}
	if queued, _ := mr.List(DefaultQueueName); len(queued) != 0 {
		t.Errorf("queue = %v, want empty", queued)
	}
}

func TestRedisConsumerRejectsInvalidPayload(t *testing.T) {
	fp := &fakeProcessor{process: completedResult}
	c, mr := newTestRedisConsumer(t, fp)
	defer c.client.Close()

	pushJob(mr, "q1", `{"id":"q1","payload":{"jobId":"j1"}}`)

	if err := c.processNextJob(); err == nil {
		t.Fatal("processNextJob() expected rejection error")
	}

	if !isMember(t, mr, "failed", "q1") {
		t.Error("rejected job should be in the failed set")
	}
	var md map[string]interface{}
	if err := json.Unmarshal([]byte(mr.HGet(c.key("errors"), "q1")), &md); err != nil {
		t.Fatalf("errors entry: %v", err)
	}
	if md["error_code"] != "INVALID_PAYLOAD" {
		t.Errorf("error_code = %v", md["error_code"])
	}

	updates := fp.statuses()
	if len(updates) != 1 || updates[0].status != "failed" || updates[0].metadata["error_code"] != "INVALID_PAYLOAD" {
		t.Errorf("store updates = %+v", updates)
	}
}

func TestRedisConsumerStopFinishesInFlightJob(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	fp := &fakeProcessor{
		process: func(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
			once.Do(func() { close(started) })
			select {
			case <-time.After(300 * time.Millisecond):
				return completedResult(ctx, req)
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	c, mr := newTestRedisConsumer(t, fp)

	pushJob(mr, "q1", `{"id":"q1","maxRetries":3,"payload":{"jobId":"j1","frameUrl":"http://x"}}`)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if !isMember(t, mr, "completed", "j1") {
		t.Error("in-flight job should complete during shutdown")
	}
	if isMember(t, mr, "processing", "j1") {
		t.Error("job left in processing after shutdown")
	}
	if last := fp.statuses(); last[len(last)-1].status != "completed" {
		t.Errorf("last store status = %q", last[len(last)-1].status)
	}
}
