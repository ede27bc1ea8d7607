package state

import "time"

// Update is the partial state a worker (or the engine) wants applied.
// Nil pointers and empty collections mean "no change".
type Update struct {
	ActiveRole      *Role   `json:"active_role,omitempty"`
	PendingOverride *Role   `json:"pending_override,omitempty"`
	ClearOverride   bool    `json:"clear_override,omitempty"`
	Completed       *bool   `json:"completed,omitempty"`
	FinalOutput     *string `json:"final_output,omitempty"`

	Messages []Message     `json:"messages,omitempty"`
	Tasks    []Task        `json:"tasks,omitempty"`
	Errors   []ErrorRecord `json:"errors,omitempty"`
	Handoffs []Handoff     `json:"handoffs,omitempty"`

	// Artifacts are inserted by key; a new entry supersedes the prior
	// version for that key and is assigned the next version number.
	Artifacts []Artifact `json:"artifacts,omitempty"`

	// RoleMemory replaces the memory of each role present (last-writer-wins
	// per role); other roles are untouched.
	RoleMemory map[Role]RoleMemory `json:"role_memory,omitempty"`

	// TaskStatus carries engine-reported progress keyed by task id.
	TaskStatus map[string]TaskStatus `json:"task_status,omitempty"`

	// TaskArtifacts links produced artifact ids to existing tasks.
	TaskArtifacts map[string][]string `json:"task_artifacts,omitempty"`
}

// Empty reports whether applying the update would change nothing besides the
// last-modified timestamp.
func (u *Update) Empty() bool {
	return u.ActiveRole == nil && u.PendingOverride == nil && !u.ClearOverride &&
		u.Completed == nil && u.FinalOutput == nil &&
		len(u.Messages) == 0 && len(u.Tasks) == 0 && len(u.Errors) == 0 &&
		len(u.Handoffs) == 0 && len(u.Artifacts) == 0 &&
		len(u.RoleMemory) == 0 && len(u.TaskStatus) == 0 && len(u.TaskArtifacts) == 0
}

// Merge folds a partial update into the state and returns a new record.
// The input state is never mutated. Append-only sequences are concatenated,
// key-addressed maps are last-writer-wins per key, scalars are replaced when
// present. The timestamp is supplied by the caller so the function stays pure.
func Merge(s *State, u *Update, now time.Time) *State {
	next := s.Clone()
	next.LastModified = now
	if u == nil {
		return next
	}

	if u.ActiveRole != nil {
		next.ActiveRole = *u.ActiveRole
	}
	if u.PendingOverride != nil {
		next.PendingOverride = *u.PendingOverride
	}
	if u.ClearOverride {
		next.PendingOverride = RoleNone
	}
	if u.Completed != nil {
		next.Completed = *u.Completed
	}
	if u.FinalOutput != nil {
		next.FinalOutput = *u.FinalOutput
	}

	next.Messages = append(next.Messages, u.Messages...)
	next.Tasks = append(next.Tasks, u.Tasks...)
	next.Errors = append(next.Errors, u.Errors...)
	next.Handoffs = append(next.Handoffs, u.Handoffs...)

	for _, a := range u.Artifacts {
		if prev, ok := next.Artifacts[a.Key]; ok {
			a.Version = prev.Version + 1
		} else if a.Version == 0 {
			a.Version = 1
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		next.Artifacts[a.Key] = a
	}

	for role, mem := range u.RoleMemory {
		next.RoleMemory[role] = cloneMemory(mem)
	}

	for id, status := range u.TaskStatus {
		for i := range next.Tasks {
			if next.Tasks[i].ID == id {
				next.Tasks[i].Status = status
				break
			}
		}
	}

	for id, artifactIDs := range u.TaskArtifacts {
		for i := range next.Tasks {
			if next.Tasks[i].ID == id {
				next.Tasks[i].ArtifactIDs = append(next.Tasks[i].ArtifactIDs, artifactIDs...)
				break
			}
		}
	}

	return next
}

// Clone deep-copies the record so callers can hand out read-only views
// without aliasing the live run state.
func (s *State) Clone() *State {
	next := *s

	next.Messages = append([]Message(nil), s.Messages...)
	next.Errors = append([]ErrorRecord(nil), s.Errors...)
	next.Handoffs = append([]Handoff(nil), s.Handoffs...)

	next.Tasks = make([]Task, len(s.Tasks))
	for i, t := range s.Tasks {
		t.DependsOn = append([]string(nil), t.DependsOn...)
		t.ArtifactIDs = append([]string(nil), t.ArtifactIDs...)
		next.Tasks[i] = t
	}

	next.Artifacts = make(map[string]Artifact, len(s.Artifacts))
	for k, a := range s.Artifacts {
		next.Artifacts[k] = a
	}

	next.RoleMemory = make(map[Role]RoleMemory, len(s.RoleMemory))
	for r, mem := range s.RoleMemory {
		next.RoleMemory[r] = cloneMemory(mem)
	}

	return &next
}

func cloneMemory(mem RoleMemory) RoleMemory {
	out := make(RoleMemory, len(mem))
	for k, v := range mem {
		out[k] = v
	}
	return out
}
