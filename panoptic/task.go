package panoptic

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

/*
Task is the unit of work carried on the event bus

TaskId: unique per published task, redeliveries keep it
Type: what the worker runs
Ids: job ids for process_job and run_stage, project ids for
populate_project_users (empty means every project)
Platform: crawl_source target, empty means every platform
SourceIds: crawl_source restricted to these sources of Platform, empty means
every known source
Stage: run_stage stage name
Merge: populate_project_users also runs the user merge afterwards
Event, Payload: save_discord_event gateway event
ResultState, Error, ElapsedMillis: filled by the worker before the task goes to
TopicExecutedTask
*/
type Task struct {
	TaskId        string                 `json:"task_id"`
	Type          TaskType               `json:"type"`
	Ids           []uint                 `json:"ids,omitempty"`
	Platform      string                 `json:"platform,omitempty"`
	SourceIds     []int64                `json:"source_ids,omitempty"`
	Stage         string                 `json:"stage,omitempty"`
	Merge         bool                   `json:"merge,omitempty"`
	Event         string                 `json:"event,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	ResultState   ResultState            `json:"result_state,omitempty"`
	Error         string                 `json:"error,omitempty"`
	ElapsedMillis int64                  `json:"elapsed_ms,omitempty"`
}

// NewTask returns a pending task with a fresh id.
func NewTask(taskType TaskType) *Task {
	return &Task{TaskId: uuid.NewString(), Type: taskType, ResultState: ResultStatePending}
}

// Finish records the outcome of running the task.
func (t *Task) Finish(err error, elapsed time.Duration) {
	t.ElapsedMillis = elapsed.Milliseconds()
	if err != nil {
		t.ResultState = ResultStateFailure
		t.Error = err.Error()
		return
	}
	t.ResultState = ResultStateSuccess
	t.Error = ""
}

func (t *Task) Marshal() ([]byte, error) {
	data, err := json.Marshal(t)
	return data, errors.Wrapf(err, "fail to marshal task %s", t.TaskId)
}

func UnmarshalTask(data []byte) (*Task, error) {
	task := &Task{}
	if err := json.Unmarshal(data, task); err != nil {
		return nil, errors.Wrap(err, "fail to unmarshal task")
	}
	if task.Type == "" {
		return nil, errors.New("task has no type")
	}
	return task, nil
}
