// Package depgraph resolves decomposed coding tasks into an executable
// order: topological sorting, cycle detection and repair, critical-path
// analysis, and parallelization estimates.
package depgraph

// CodeType classifies what kind of code a subtask produces.
type CodeType string

const (
	CodeTypeClass     CodeType = "class"
	CodeTypeFunction  CodeType = "function"
	CodeTypeMethod    CodeType = "method"
	CodeTypeInterface CodeType = "interface"
	CodeTypeType      CodeType = "type"
	CodeTypeModule    CodeType = "module"
	CodeTypeTest      CodeType = "test"
	CodeTypeOther     CodeType = "other"
)

// ModelSize is the recommended model class for a subtask.
type ModelSize string

const (
	ModelSizeSmall  ModelSize = "small"
	ModelSizeMedium ModelSize = "medium"
	ModelSizeLarge  ModelSize = "large"
	ModelSizeRemote ModelSize = "remote"
)

// CodeSubtask is one unit of a decomposed coding task.
type CodeSubtask struct {
	ID                   string    `json:"id"`
	Description          string    `json:"description"`
	Complexity           float64   `json:"complexity"` // [0,1]
	EstimatedTokens      int       `json:"estimated_tokens"`
	Dependencies         []string  `json:"dependencies"`
	CodeType             CodeType  `json:"code_type"`
	RecommendedModelSize ModelSize `json:"recommended_model_size"`
}

// DecomposedCodeTask is a task split into dependent subtasks. DependencyMap
// is the authoritative dependency graph; each subtask's Dependencies slice
// must stay consistent with it.
type DecomposedCodeTask struct {
	OriginalTask         string              `json:"original_task"`
	Subtasks             []CodeSubtask       `json:"subtasks"`
	TotalEstimatedTokens int                 `json:"total_estimated_tokens"`
	DependencyMap        map[string][]string `json:"dependency_map"`
}

// SubtaskByID returns a pointer to the subtask with the given id, or nil.
func (t *DecomposedCodeTask) SubtaskByID(id string) *CodeSubtask {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == id {
			return &t.Subtasks[i]
		}
	}
	return nil
}
