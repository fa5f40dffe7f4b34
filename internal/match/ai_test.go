package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pongarena/backend/internal/sim"
)

func TestProjectImpactY_NoReflection(t *testing.T) {
	got := projectImpactY(sim.Vec{X: 500, Y: 200}, sim.Vec{X: 5, Y: 2}, 590)
	assert.InDelta(t, 236.0, got, 1e-9)
}

func TestProjectImpactY_ReflectsOffBottomWall(t *testing.T) {
	// Unfolded the ball would cross at y=420; the bottom wall folds it
	// back to 380.
	got := projectImpactY(sim.Vec{X: 560, Y: 390}, sim.Vec{X: 5, Y: 5}, 590)
	assert.InDelta(t, 380.0, got, 1e-9)
}

func TestProjectImpactY_ReflectsOffTopWall(t *testing.T) {
	// Unfolded crossing at y=-20 mirrors to 20.
	got := projectImpactY(sim.Vec{X: 560, Y: 10}, sim.Vec{X: 5, Y: -5}, 590)
	assert.InDelta(t, 20.0, got, 1e-9)
}

func TestProjectImpactY_BallMovingAwayOrStalled(t *testing.T) {
	got := projectImpactY(sim.Vec{X: 300, Y: 123}, sim.Vec{X: -5, Y: 2}, 590)
	assert.Equal(t, 123.0, got, "negative time of flight falls back to current y")

	got = projectImpactY(sim.Vec{X: 300, Y: 77}, sim.Vec{X: 0, Y: 2}, 590)
	assert.Equal(t, 77.0, got)
}

func aiTestSession() *Session {
	return &Session{state: sim.NewState(), phase: PhaseRunning}
}

func TestAIPlanMove_ClampsToMaxSteps(t *testing.T) {
	s := aiTestSession()
	s.state.Ball = sim.Vec{X: 589, Y: 30}
	s.state.Velocity = sim.Vec{X: 1, Y: 0}
	s.state.Paddles.Right = 340 // center 370, target 30: far beyond the clamp

	s.aiPlanMove()
	assert.Equal(t, -aiMaxSteps, s.aiSteps)
}

func TestAIPlanMove_DriftsToCenterWhenBallMovesAway(t *testing.T) {
	s := aiTestSession()
	s.state.Velocity = sim.Vec{X: -3, Y: 1}
	s.state.Paddles.Right = 0 // center 30, field middle 200

	s.aiPlanMove()
	assert.Equal(t, aiMaxSteps, s.aiSteps)
}

func TestAIPlanMove_OnlyWhileRunning(t *testing.T) {
	s := aiTestSession()
	s.phase = PhaseFinished
	s.aiSteps = 3

	s.aiPlanMove()
	assert.Equal(t, 3, s.aiSteps, "plan untouched outside the running phase")
}

func TestAIStep_ConsumesQueueOneMoveAtATime(t *testing.T) {
	s := aiTestSession()
	start := s.state.Paddles.Right

	s.aiSteps = 2
	s.aiStep()
	s.aiStep()
	assert.Equal(t, start+2*sim.PaddleStep, s.state.Paddles.Right)
	assert.Equal(t, 0, s.aiSteps)

	// An empty queue is a no-op.
	s.aiStep()
	assert.Equal(t, start+2*sim.PaddleStep, s.state.Paddles.Right)

	s.aiSteps = -1
	s.aiStep()
	assert.Equal(t, start+sim.PaddleStep, s.state.Paddles.Right)
	assert.Equal(t, 0, s.aiSteps)
}
