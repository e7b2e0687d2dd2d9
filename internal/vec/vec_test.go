package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloorNegative(t *testing.T) {
	assert.Equal(t, Vec2{X: -1, Y: -2}, Vec2Float{X: -0.5, Y: -1.01}.Floor())
	assert.Equal(t, Vec2{X: 3, Y: 0}, Vec2Float{X: 3.99, Y: 0}.Floor())
}

func TestVec2FloatOps(t *testing.T) {
	a := Vec2Float{X: 1, Y: 2}
	b := Vec2Float{X: 4, Y: 6}

	assert.Equal(t, Vec2Float{X: 5, Y: 8}, a.Add(b))
	assert.Equal(t, Vec2Float{X: 3, Y: 4}, b.Sub(a))
	assert.InDelta(t, 5.0, a.DistanceTo(b), 1e-9)
	assert.InDelta(t, -2.0, a.Cross(b), 1e-9)
	assert.Equal(t, Vec2Float{X: 2, Y: 4}, a.Mul(2))
}

func TestVec2ToFloat(t *testing.T) {
	assert.Equal(t, Vec2Float{X: 7, Y: -3}, Vec2{X: 7, Y: -3}.ToFloat())
	assert.Equal(t, Vec2{X: 8, Y: -2}, Vec2{X: 7, Y: -3}.Add(Vec2{X: 1, Y: 1}))
}
