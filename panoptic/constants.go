package panoptic

const (
	// Tasks waiting for a worker.
	TopicPendingTask = "topic.pending_task"
	// Tasks a worker finished, successfully or not.
	TopicExecutedTask = "topic.executed_task"

	DdogTaskStateCounter  = "community.task.state"
	DdogTaskLatencyMillis = "community.task.latency_ms"
)

type TaskType string

const (
	TaskProcessJob           TaskType = "process_job"
	TaskRunStage             TaskType = "run_stage"
	TaskCrawlSource          TaskType = "crawl_source"
	TaskPopulateProjectUsers TaskType = "populate_project_users"
	TaskMergeUsers           TaskType = "merge_users"
	TaskSaveDiscordEvent     TaskType = "save_discord_event"
)

type ResultState string

const (
	ResultStatePending ResultState = "pending"
	ResultStateSuccess ResultState = "success"
	ResultStateFailure ResultState = "failure"
)
