package sim

import (
	"math"
	"math/rand"
)

// Playfield geometry and tuning. The authoritative simulation runs in
// fixed pixel units; clients only ever see the normalized projection.
const (
	FieldWidth   = 600.0
	FieldHeight  = 400.0
	PaddleHeight = 60.0
	PaddleStep   = 20.0
	BallRadius   = 10.0
	WinScore     = 11

	// Horizontal planes the ball bounces off. The paddle itself sits
	// flush against its end wall.
	leftPaddlePlane  = BallRadius
	rightPaddlePlane = FieldWidth - BallRadius

	// How far past the plane the ball may be and still count as a hit.
	bounceBand = PaddleStep / 2

	serveSpeed    = 5.0
	speedMultiple = 1.05
	maxBounceDeg  = 75.0
)

type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Opponent returns the other playing side.
func (s Side) Opponent() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

type Direction string

const (
	DirUp   Direction = "UP"
	DirDown Direction = "DOWN"
)

type Vec struct {
	X float64
	Y float64
}

type Paddles struct {
	Left  float64 // y of the paddle's top edge
	Right float64
}

type Score struct {
	Left  int
	Right int
}

// State is the authoritative simulation state for one match. It is owned
// exclusively by the session driving its tick loop and must never be
// shared across goroutines.
type State struct {
	Ball     Vec
	Velocity Vec
	Paddles  Paddles
	Score    Score
	GameOver bool
}

// randFloat is swapped out in tests for deterministic serves.
var randFloat = rand.Float64

func NewState() *State {
	s := &State{}
	s.Paddles.Left = (FieldHeight - PaddleHeight) / 2
	s.Paddles.Right = (FieldHeight - PaddleHeight) / 2
	s.serve()
	return s
}

// Reset wipes scores and re-centers everything. Used for a rematch on
// the same connection pair.
func (s *State) Reset() {
	s.Score = Score{}
	s.GameOver = false
	s.Paddles.Left = (FieldHeight - PaddleHeight) / 2
	s.Paddles.Right = (FieldHeight - PaddleHeight) / 2
	s.serve()
}

// serve re-centers the ball and re-randomizes its direction. The serve
// angle stays within ±45° so every serve is playable.
func (s *State) serve() {
	s.Ball = Vec{X: FieldWidth / 2, Y: FieldHeight / 2}

	angle := (randFloat()*2 - 1) * math.Pi / 4
	dir := 1.0
	if randFloat() < 0.5 {
		dir = -1
	}
	s.Velocity = Vec{
		X: dir * serveSpeed * math.Cos(angle),
		Y: serveSpeed * math.Sin(angle),
	}
}

// Advance moves the simulation one tick. It mutates s in place and
// reports whether a point was scored this tick. Once the state is
// GameOver it is frozen and Advance is a no-op.
func (s *State) Advance() bool {
	if s.GameOver {
		return false
	}

	s.Ball.X += s.Velocity.X
	s.Ball.Y += s.Velocity.Y

	// Top/bottom walls reflect vertically.
	if s.Ball.Y-BallRadius < 0 {
		s.Ball.Y = BallRadius
		s.Velocity.Y = -s.Velocity.Y
	}
	if s.Ball.Y+BallRadius > FieldHeight {
		s.Ball.Y = FieldHeight - BallRadius
		s.Velocity.Y = -s.Velocity.Y
	}

	// Paddle bounces. Only the side the ball is travelling toward can
	// ever bounce it, so a just-scored serve can't double-hit.
	if s.Velocity.X < 0 && s.Ball.X <= leftPaddlePlane && s.Ball.X >= leftPaddlePlane-bounceBand {
		if withinPaddle(s.Ball.Y, s.Paddles.Left) {
			s.bounce(SideLeft)
		}
	}
	if s.Velocity.X > 0 && s.Ball.X >= rightPaddlePlane && s.Ball.X <= rightPaddlePlane+bounceBand {
		if withinPaddle(s.Ball.Y, s.Paddles.Right) {
			s.bounce(SideRight)
		}
	}

	// End walls score for the opposing side.
	if s.Ball.X < 0 {
		s.scorePoint(SideRight)
		return true
	}
	if s.Ball.X > FieldWidth {
		s.scorePoint(SideLeft)
		return true
	}
	return false
}

func withinPaddle(ballY, paddleY float64) bool {
	return ballY >= paddleY-BallRadius && ballY <= paddleY+PaddleHeight+BallRadius
}

// bounce reflects the ball off a paddle. The exit angle is proportional
// to how far from the paddle's center the ball struck, capped at ±75°,
// and the rally accelerates by a fixed multiple on every hit.
func (s *State) bounce(side Side) {
	var paddleY float64
	if side == SideLeft {
		paddleY = s.Paddles.Left
		s.Ball.X = leftPaddlePlane
	} else {
		paddleY = s.Paddles.Right
		s.Ball.X = rightPaddlePlane
	}

	rel := (s.Ball.Y - (paddleY + PaddleHeight/2)) / (PaddleHeight / 2)
	rel = clamp(rel, -1, 1)
	angle := rel * maxBounceDeg * math.Pi / 180

	speed := math.Hypot(s.Velocity.X, s.Velocity.Y) * speedMultiple

	vx := speed * math.Cos(angle)
	if side == SideRight {
		vx = -vx
	}
	s.Velocity = Vec{X: vx, Y: speed * math.Sin(angle)}
}

func (s *State) scorePoint(side Side) {
	if side == SideLeft {
		s.Score.Left++
	} else {
		s.Score.Right++
	}
	if s.Score.Left >= WinScore || s.Score.Right >= WinScore {
		s.GameOver = true
		return
	}
	s.serve()
}

// Winner reports which side won a finished game.
func (s *State) Winner() (Side, bool) {
	if !s.GameOver {
		return "", false
	}
	if s.Score.Left > s.Score.Right {
		return SideLeft, true
	}
	return SideRight, true
}

// MovePaddle applies one input step to the given side's paddle, clamped
// to the playfield. Frozen once the game is over.
func (s *State) MovePaddle(side Side, dir Direction) {
	if s.GameOver {
		return
	}
	delta := PaddleStep
	if dir == DirUp {
		delta = -PaddleStep
	}
	switch side {
	case SideLeft:
		s.Paddles.Left = clamp(s.Paddles.Left+delta, 0, FieldHeight-PaddleHeight)
	case SideRight:
		s.Paddles.Right = clamp(s.Paddles.Right+delta, 0, FieldHeight-PaddleHeight)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
