package match

import (
	"math"

	"github.com/pongarena/backend/internal/sim"
)

// The AI drives the right paddle with two timers: a 1 Hz planner that
// projects the ball's trajectory and queues a signed step count, and a
// 10 Hz motor that applies one queued step per fire as a normal paddle
// move. The motor rate-limits the AI to human-plausible reactions
// instead of snapping to the predicted impact point.

const aiMaxSteps = 9

// aiPlanMove re-plans the queued steps from the current ball state.
func (s *Session) aiPlanMove() {
	if s.phase != PhaseRunning {
		return
	}

	center := s.state.Paddles.Right + sim.PaddleHeight/2

	var target float64
	if s.state.Velocity.X > 0 {
		target = projectImpactY(s.state.Ball, s.state.Velocity, sim.FieldWidth-sim.BallRadius)
	} else {
		// Ball moving away: drift back toward the middle.
		target = sim.FieldHeight / 2
	}

	steps := int(math.Round((target - center) / sim.PaddleStep))
	if steps > aiMaxSteps {
		steps = aiMaxSteps
	}
	if steps < -aiMaxSteps {
		steps = -aiMaxSteps
	}
	s.aiSteps = steps
}

// aiStep consumes one queued step, identical in magnitude to a human
// keypress.
func (s *Session) aiStep() {
	if s.phase != PhaseRunning || s.aiSteps == 0 {
		return
	}
	if s.aiSteps > 0 {
		s.state.MovePaddle(sim.SideRight, sim.DirDown)
		s.aiSteps--
	} else {
		s.state.MovePaddle(sim.SideRight, sim.DirUp)
		s.aiSteps++
	}
}

// projectImpactY estimates where the ball crosses the plane at targetX,
// reflecting off the top and bottom walls analytically.
func projectImpactY(ball, vel sim.Vec, targetX float64) float64 {
	if vel.X == 0 {
		return ball.Y
	}
	t := (targetX - ball.X) / vel.X
	if t < 0 {
		return ball.Y
	}
	raw := ball.Y + vel.Y*t

	// Fold the unbounded coordinate back into the field: the path is a
	// triangle wave with period 2H.
	period := 2 * sim.FieldHeight
	m := math.Mod(raw, period)
	if m < 0 {
		m += period
	}
	if m > sim.FieldHeight {
		m = period - m
	}
	return m
}
