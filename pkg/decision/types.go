package decision

// Priority expresses what the caller wants optimized.
type Priority string

const (
	PrioritySpeed   Priority = "speed"
	PriorityCost    Priority = "cost"
	PriorityQuality Priority = "quality"
)

// Params describes one task to be routed.
type Params struct {
	Task                 string
	ContextLength        int
	ExpectedOutputLength int
	Complexity           float64 // [0,1]
	Priority             Priority
	PreviousAttempts     int
}

// Factor records whether one scoring input influenced a decision and with
// what weight, for explainability.
type Factor struct {
	WasFactor bool    `json:"was_factor"`
	Weight    float64 `json:"weight"`
}

// Factors collects every input considered by the engine.
type Factors struct {
	Cost                 Factor `json:"cost"`
	Complexity           Factor `json:"complexity"`
	TokenUsage           Factor `json:"token_usage"`
	Priority             Factor `json:"priority"`
	ContextWindow        Factor `json:"context_window"`
	BenchmarkPerformance Factor `json:"benchmark_performance"`
	PreviousAttempts     Factor `json:"previous_attempts"`
}

// Scores holds the independent provider scores, each in [0,1].
type Scores struct {
	Local float64 `json:"local"`
	Paid  float64 `json:"paid"`
}

// RoutingDecision is the outcome of routing one task. It is produced fresh
// per call and never mutated afterward.
type RoutingDecision struct {
	Provider    string  `json:"provider"` // "local" or "paid"
	Model       string  `json:"model"`
	Factors     Factors `json:"factors"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	Scores      Scores  `json:"scores"`
}
