package protocol

// STATE (server -> client): the read-only view a renderer draws from.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Active          bool   `json:"active"`
	Identity        string `json:"identity,omitempty"`

	GridSize int        `json:"grid_size,omitempty"`
	Tiles    []TileInfo `json:"tiles,omitempty"`
	Budget   int        `json:"budget"`
	Phase    int        `json:"phase"`
	Score    ScoreInfo  `json:"score"`

	Goal       *GoalInfo `json:"goal,omitempty"`
	GoalStatus string    `json:"goal_status,omitempty"`
	GoalError  string    `json:"goal_error,omitempty"`

	Tool  string    `json:"tool,omitempty"`
	Hover *[2]int   `json:"hover,omitempty"`
	Feed  []Snippet `json:"feed,omitempty"`

	SaveError     string `json:"save_error,omitempty"`
	LastSavedAtMs int64  `json:"last_saved_at_ms,omitempty"`
}

// TileInfo lists occupied tiles only.
type TileInfo struct {
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Occupant        string `json:"occupant"`
	Rotation        int    `json:"rotation"`
	Stacked         string `json:"stacked,omitempty"`
	StackedRotation int    `json:"stacked_rotation,omitempty"`
}

type ScoreInfo struct {
	TotalStyle   int            `json:"total_style"`
	TotalComfort int            `json:"total_comfort"`
	Counts       map[string]int `json:"counts"`
}

type GoalInfo struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title,omitempty"`
	Description     string `json:"description"`
	Metric          string `json:"metric"`
	TargetValue     int    `json:"target_value"`
	TargetFurniture string `json:"target_furniture,omitempty"`
	Reward          int    `json:"reward"`
	Completed       bool   `json:"completed"`
	Progress        int    `json:"progress"`
}

type Snippet struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category"`
}
