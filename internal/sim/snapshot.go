package sim

// Snapshot is the resolution-independent projection of a State that
// clients render. All coordinates are proportions of the playfield.
type Snapshot struct {
	Ball struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"ball"`
	Paddles struct {
		Left  float64 `json:"left"`
		Right float64 `json:"right"`
	} `json:"paddles"`
	Score struct {
		Left  int `json:"left"`
		Right int `json:"right"`
	} `json:"score"`
	GameOver bool `json:"gameOver"`
}

func (s *State) Snapshot() Snapshot {
	var snap Snapshot
	snap.Ball.X = s.Ball.X / FieldWidth
	snap.Ball.Y = s.Ball.Y / FieldHeight
	snap.Paddles.Left = s.Paddles.Left / FieldHeight
	snap.Paddles.Right = s.Paddles.Right / FieldHeight
	snap.Score.Left = s.Score.Left
	snap.Score.Right = s.Score.Right
	snap.GameOver = s.GameOver
	return snap
}
