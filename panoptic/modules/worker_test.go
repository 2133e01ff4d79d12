package modules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/Luismorlan/community/panoptic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	m        sync.Mutex
	executed []*panoptic.Task
	fail     map[panoptic.TaskType]bool
	shutdown bool
}

func (e *fakeExecutor) Execute(ctx context.Context, task *panoptic.Task) error {
	e.m.Lock()
	defer e.m.Unlock()
	e.executed = append(e.executed, task)
	if e.fail[task.Type] {
		return errors.New("boom")
	}
	return nil
}

func (e *fakeExecutor) Shutdown() {
	e.m.Lock()
	defer e.m.Unlock()
	e.shutdown = true
}

func (e *fakeExecutor) Executed() []*panoptic.Task {
	e.m.Lock()
	defer e.m.Unlock()
	return append([]*panoptic.Task{}, e.executed...)
}

type metric struct {
	name  string
	value float64
	tags  []string
}

// fakeStatsd records what the reporter sends.
type fakeStatsd struct {
	statsd.NoOpClient
	m          sync.Mutex
	counters   []metric
	histograms []metric
}

func (s *fakeStatsd) Incr(name string, tags []string, rate float64) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.counters = append(s.counters, metric{name: name, value: 1, tags: tags})
	return nil
}

func (s *fakeStatsd) Histogram(name string, value float64, tags []string, rate float64) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.histograms = append(s.histograms, metric{name: name, value: value, tags: tags})
	return nil
}

func (s *fakeStatsd) Counters() []metric {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]metric{}, s.counters...)
}

func TestWorker_ExecutesAndReports(t *testing.T) {
	bus := panoptic.NewEventBus(100)
	defer bus.Close()

	executor := &fakeExecutor{fail: map[panoptic.TaskType]bool{panoptic.TaskMergeUsers: true}}
	worker := NewWorker(WorkerConfig{Name: "worker", PoolSize: 2}, executor, bus)
	client := &fakeStatsd{}
	reporter := NewReporter(ReporterConfig{Name: "reporter"}, client, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.RunModule(ctx)
	go reporter.RunModule(ctx)

	// Subscriptions are registered asynchronously.
	time.Sleep(50 * time.Millisecond)

	dispatcher := NewDispatcher(bus)
	require.Nil(t, dispatcher.EnqueueJobs(ctx, 1, 2))
	require.Nil(t, dispatcher.Enqueue(ctx, panoptic.NewTask(panoptic.TaskMergeUsers)))

	require.Eventually(t, func() bool { return len(client.Counters()) == 3 }, 2*time.Second, 10*time.Millisecond)

	executed := executor.Executed()
	require.Len(t, executed, 3)
	jobIDs := []uint{}
	for _, task := range executed {
		if task.Type == panoptic.TaskProcessJob {
			jobIDs = append(jobIDs, task.Ids...)
		}
	}
	assert.ElementsMatch(t, []uint{1, 2}, jobIDs)

	tags := [][]string{}
	for _, c := range client.Counters() {
		assert.Equal(t, panoptic.DdogTaskStateCounter, c.name)
		tags = append(tags, c.tags)
	}
	assert.ElementsMatch(t, [][]string{
		{"type:process_job", "state:success"},
		{"type:process_job", "state:success"},
		{"type:merge_users", "state:failure"},
	}, tags)

	cancel()
	worker.Shutdown()
	assert.True(t, executor.shutdown)
}

func TestReportResultState(t *testing.T) {
	client := &fakeStatsd{}
	task := panoptic.NewTask(panoptic.TaskRunStage)
	task.Finish(nil, 1500*time.Millisecond)
	ReportResultState(task, client)

	require.Len(t, client.histograms, 1)
	assert.Equal(t, panoptic.DdogTaskLatencyMillis, client.histograms[0].name)
	assert.Equal(t, float64(1500), client.histograms[0].value)
	assert.Equal(t, []string{"type:run_stage", "state:success"}, client.histograms[0].tags)
}

func TestInlineEnqueuer(t *testing.T) {
	executor := &fakeExecutor{}
	enqueuer := NewInlineEnqueuer(executor)
	require.Nil(t, enqueuer.EnqueueJobs(context.Background(), 4, 5))

	executed := executor.Executed()
	require.Len(t, executed, 1)
	assert.Equal(t, panoptic.TaskProcessJob, executed[0].Type)
	assert.Equal(t, []uint{4, 5}, executed[0].Ids)
}
