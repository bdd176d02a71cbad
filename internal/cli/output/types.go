package output

// DAGOutput is the JSON form of the derivation graph.
type DAGOutput struct {
	Levels           []DAGLevel `json:"levels"`
	TotalModels      int        `json:"total_models"`
	TotalDerivations int        `json:"total_derivations"`
}

// DAGLevel groups the models at one derivation depth.
type DAGLevel struct {
	Level  int       `json:"level"`
	Models []DAGNode `json:"models"`
}

// DAGNode is one model of the graph.
type DAGNode struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	From    string   `json:"from,omitempty"`
	UsedBy  []string `json:"used_by,omitempty"`
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

// ModelInfo summarizes a live model.
type ModelInfo struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	From    string   `json:"from,omitempty"`
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

// SnapshotOutput is the JSON form of a table snapshot.
type SnapshotOutput struct {
	Model   string           `json:"model"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// ListOutput is the JSON form of the list command.
type ListOutput struct {
	Models  []ModelInfo `json:"models"`
	Summary ListSummary `json:"summary"`
}

// ListSummary counts models by source or view kind.
type ListSummary struct {
	TotalModels int            `json:"total_models"`
	ByKind      map[string]int `json:"by_kind"`
}
