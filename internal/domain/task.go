package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

type ExecutionStatus string

const (
	TaskPending    ExecutionStatus = "pending"
	TaskProcessing ExecutionStatus = "processing"
	TaskCompleted  ExecutionStatus = "completed"
	TaskFailed     ExecutionStatus = "failed"
	TaskCancelled  ExecutionStatus = "cancelled"
)

// Terminal reports whether the status can never change again.
func (s ExecutionStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

type ComponentState string

const (
	ComponentPending    ComponentState = "pending"
	ComponentProcessing ComponentState = "processing"
	ComponentWaiting    ComponentState = "waiting"
	ComponentSuccess    ComponentState = "success"
	ComponentFailed     ComponentState = "failed"
)

type ResultType string

const (
	ResultCreated   ResultType = "created"
	ResultDuplicate ResultType = "duplicate"
)

// ComponentStatus tracks one of the three pipeline components of a task.
type ComponentStatus struct {
	Status     ComponentState `json:"status"`
	Stage      string         `json:"stage,omitempty"`
	Progress   int            `json:"progress"`
	Source     string         `json:"source,omitempty"`
	Attempts   int            `json:"attempts"`
	NextAction string         `json:"next_action,omitempty"`
	ErrorInfo  *ErrorInfo     `json:"error_info,omitempty"`
}

type Components struct {
	Metadata   ComponentStatus `json:"metadata"`
	Content    ComponentStatus `json:"content"`
	References ComponentStatus `json:"references"`
}

// Task is one ingestion job. It is mutated only by the coordinator and
// retained in the result store for a bounded window after completion.
type Task struct {
	TaskID          string          `json:"task_id"`
	SubmittedSource Submission      `json:"submitted_source"`
	ExecutionStatus ExecutionStatus `json:"execution_status"`
	OverallProgress int             `json:"overall_progress"`
	CurrentStage    string          `json:"current_stage,omitempty"`
	Components      Components      `json:"component_status"`
	ResultType      ResultType      `json:"result_type,omitempty"`
	LiteratureID    string          `json:"literature_id,omitempty"`
	ErrorInfo       *ErrorInfo      `json:"error_info,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func NewTask(id string, source Submission) *Task {
	now := time.Now().UTC()
	pending := ComponentStatus{Status: ComponentPending}
	return &Task{
		TaskID:          id,
		SubmittedSource: source,
		ExecutionStatus: TaskPending,
		Components:      Components{Metadata: pending, Content: pending, References: pending},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

type TaskEventKind string

const (
	EventStatus    TaskEventKind = "status"
	EventCompleted TaskEventKind = "completed"
	EventError     TaskEventKind = "error" // non-fatal per-component error
	EventFailed    TaskEventKind = "failed"
)

// TaskEvent is one entry of a task's live status stream.
type TaskEvent struct {
	Kind      TaskEventKind `json:"event"`
	TaskID    string        `json:"task_id"`
	Timestamp time.Time     `json:"timestamp"`
	Payload   *Task         `json:"payload"`
}

// Submission is the user-supplied handle set for one ingestion request.
type Submission struct {
	DOI     string   `json:"doi,omitempty"`
	ArxivID string   `json:"arxiv_id,omitempty"`
	PMID    string   `json:"pmid,omitempty"`
	URL     string   `json:"url,omitempty"`
	PDFURL  string   `json:"pdf_url,omitempty"`
	Title   string   `json:"title,omitempty"`
	Authors []string `json:"authors,omitempty"`
}

// Empty reports whether the submission carries no usable handle.
func (s Submission) Empty() bool {
	return s.DOI == "" && s.ArxivID == "" && s.PMID == "" && s.URL == "" && s.PDFURL == ""
}

// Key returns a canonical string for in-flight dedup: identical sources
// normalize to identical keys regardless of field arrival order.
func (s Submission) Key() string {
	parts := make([]string, 0, 5)
	if s.DOI != "" {
		parts = append(parts, "doi:"+strings.ToLower(strings.TrimSpace(s.DOI)))
	}
	if s.ArxivID != "" {
		parts = append(parts, "arxiv:"+strings.ToLower(strings.TrimSpace(s.ArxivID)))
	}
	if s.PMID != "" {
		parts = append(parts, "pmid:"+strings.TrimSpace(s.PMID))
	}
	if s.URL != "" {
		parts = append(parts, "url:"+strings.ToLower(strings.TrimSpace(s.URL)))
	}
	if s.PDFURL != "" {
		parts = append(parts, "pdf:"+strings.ToLower(strings.TrimSpace(s.PDFURL)))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func (s Submission) String() string {
	if key := s.Key(); key != "" {
		return key
	}
	return fmt.Sprintf("title:%s", s.Title)
}

// TaskRepository is the broker-side store: task snapshots with TTL, the work
// queue, cancel flags, and the per-task event channel.
type TaskRepository interface {
	Save(ctx context.Context, task *Task) error
	Get(ctx context.Context, taskID string) (*Task, error)

	Enqueue(ctx context.Context, taskID string) error
	// Dequeue blocks until a task id is available or ctx is done.
	Dequeue(ctx context.Context) (string, error)

	// ClaimSource binds a normalized submission key to a task id for the
	// staleness window. When another active task already holds the key its
	// id is returned and claimed is false.
	ClaimSource(ctx context.Context, sourceKey, taskID string) (holder string, claimed bool, err error)
	ReleaseSource(ctx context.Context, sourceKey, taskID string) error

	RequestCancel(ctx context.Context, taskID string) error
	CancelRequested(ctx context.Context, taskID string) (bool, error)

	PublishEvent(ctx context.Context, ev *TaskEvent) error
	// SubscribeEvents delivers events for one task until cancel is called
	// or ctx is done.
	SubscribeEvents(ctx context.Context, taskID string) (<-chan *TaskEvent, func(), error)

	Ping(ctx context.Context) error
}
