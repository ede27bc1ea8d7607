package state

import "time"

// Role identifies a participant in the swarm. Each role is bound to exactly
// one worker implementation per run.
type Role string

const (
	RoleNone                Role = ""
	RoleAnalyzer            Role = "analyzer"
	RoleTaskDecomposer      Role = "task_decomposer"
	RoleFrontendEngineer    Role = "frontend_engineer"
	RoleBackendEngineer     Role = "backend_engineer"
	RoleFullstackEngineer   Role = "fullstack_engineer"
	RoleDevOpsEngineer      Role = "devops_engineer"
	RoleQAEngineer          Role = "qa_engineer"
	RoleCodeReviewer        Role = "code_reviewer"
	RoleDocumentationWriter Role = "documentation_writer"
)

// AllRoles lists every role the routing table can address, in pipeline order.
var AllRoles = []Role{
	RoleAnalyzer,
	RoleTaskDecomposer,
	RoleFrontendEngineer,
	RoleBackendEngineer,
	RoleFullstackEngineer,
	RoleDevOpsEngineer,
	RoleQAEngineer,
	RoleCodeReviewer,
	RoleDocumentationWriter,
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is created by the task decomposer and updated by the engine as workers
// report progress. Tasks are never deleted; completed/failed are terminal.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	AssignedRole Role       `json:"assigned_role"`
	Status       TaskStatus `json:"status"`
	DependsOn    []string   `json:"depends_on,omitempty"`
	ArtifactIDs  []string   `json:"artifact_ids,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Artifact is one version of a generated file. The state record keeps only
// the latest version per key; older versions live in the store.
type Artifact struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"` // logical key, usually a file path
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	CreatedBy Role      `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is an inter-role notice.
type Message struct {
	From    Role      `json:"from"`
	To      Role      `json:"to"`
	Kind    string    `json:"kind"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

type ErrorKind string

const (
	ErrValidationFailure  ErrorKind = "validation_failure"
	ErrRetryExhausted     ErrorKind = "retry_exhausted"
	ErrRoleNotFound       ErrorKind = "role_not_found"
	ErrTerminalRunFailure ErrorKind = "terminal_run_failure"
)

type ErrorRecord struct {
	Role     Role      `json:"role"`
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Attempts int       `json:"attempts,omitempty"`
	Terminal bool      `json:"terminal"`
	At       time.Time `json:"at"`
}

// Handoff records a transfer of active status from one role to another.
// Immutable once created.
type Handoff struct {
	From   Role      `json:"from"`
	To     Role      `json:"to"`
	Reason string    `json:"reason"`
	TaskID string    `json:"task_id,omitempty"`
	At     time.Time `json:"at"`
}

// RoleMemory is opaque role-scoped scratch space (last task handled,
// counters, review outcomes). Replaced wholesale per role on merge.
type RoleMemory map[string]any

// State is the shared project-execution record. Workers receive read-only
// views and return partial updates; all mutation goes through Merge.
type State struct {
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	ActiveRole      Role `json:"active_role"`
	PendingOverride Role `json:"pending_override,omitempty"`

	Messages   []Message           `json:"messages"`
	Tasks      []Task              `json:"tasks"`
	Artifacts  map[string]Artifact `json:"artifacts"`
	RoleMemory map[Role]RoleMemory `json:"role_memory"`
	Errors     []ErrorRecord       `json:"errors"`
	Handoffs   []Handoff           `json:"handoffs"`

	Completed   bool   `json:"completed"`
	FinalOutput string `json:"final_output,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// New creates the initial state for a run. Identity fields are immutable
// after this point.
func New(projectID, name, description string, now time.Time) *State {
	return &State{
		ProjectID:    projectID,
		Name:         name,
		Description:  description,
		ActiveRole:   RoleAnalyzer,
		Artifacts:    make(map[string]Artifact),
		RoleMemory:   make(map[Role]RoleMemory),
		CreatedAt:    now,
		LastModified: now,
	}
}

// TaskCounts returns the number of completed tasks and the total.
func (s *State) TaskCounts() (completed, total int) {
	for _, t := range s.Tasks {
		if t.Status == TaskCompleted {
			completed++
		}
	}
	return completed, len(s.Tasks)
}

// Task returns the task with the given id, if present.
func (s *State) Task(id string) (Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Review outcome keys written by the code reviewer into its role memory.
const (
	MemReviewPassed = "review_passed"
	MemIssueType    = "issue_type"
)

// ReviewOutcome reads the last review result from the code reviewer's role
// memory. ok is false when no review has been recorded yet.
func (s *State) ReviewOutcome() (passed bool, issueType string, ok bool) {
	mem, exists := s.RoleMemory[RoleCodeReviewer]
	if !exists {
		return false, "", false
	}
	p, exists := mem[MemReviewPassed]
	if !exists {
		return false, "", false
	}
	passed, _ = p.(bool)
	if it, exists := mem[MemIssueType]; exists {
		issueType, _ = it.(string)
	}
	return passed, issueType, true
}
