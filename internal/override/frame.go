package override

import (
	"errors"
	"fmt"
	"math"
)

// ControlFrame is the operator's normalized intent. It persists until replaced.
type ControlFrame struct {
	Throttle float32 `json:"throttle"`
	Steering float32 `json:"steering"`
	Brake    float32 `json:"brake"`
}

// Neutral is the frame written on release.
var Neutral = ControlFrame{}

func clamp(v, lo, hi float32) float32 {
	if v != v { // NaN
		return 0
	}
	return max(lo, min(hi, v))
}

func clamp01(v float32) float32 {
	return clamp(v, 0, 1)
}

// Clamp confines throttle and steering to [-1, 1] and brake to [0, 1].
func (f ControlFrame) Clamp() ControlFrame {
	return ControlFrame{
		Throttle: clamp(f.Throttle, -1, 1),
		Steering: clamp(f.Steering, -1, 1),
		Brake:    clamp01(f.Brake),
	}
}

// ErrInvalidTuning is returned by Tuning.Validate.
var ErrInvalidTuning = errors.New("invalid override tuning")

// Tuning holds the constants matched against the foreign consumer's own
// clamps. They are empirical and must be validated against the target.
type Tuning struct {
	ThrottleMin   float32 `json:"throttleMin" mapstructure:"throttleMin"`
	ThrottleMax   float32 `json:"throttleMax" mapstructure:"throttleMax"`
	SteeringScale float32 `json:"steeringScale" mapstructure:"steeringScale"`
}

// DefaultTuning matches the ground vehicle job: throttle in [-0.7, 1], steering x10.
func DefaultTuning() Tuning {
	return Tuning{ThrottleMin: -0.7, ThrottleMax: 1, SteeringScale: 10}
}

// Validate rejects ranges that cannot describe a throttle clamp.
func (t Tuning) Validate() error {
	for name, v := range map[string]float32{
		"throttleMin":   t.ThrottleMin,
		"throttleMax":   t.ThrottleMax,
		"steeringScale": t.SteeringScale,
	} {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidTuning, name)
		}
	}
	if t.ThrottleMin >= t.ThrottleMax {
		return fmt.Errorf("%w: throttleMin %.2f must be below throttleMax %.2f", ErrInvalidTuning, t.ThrottleMin, t.ThrottleMax)
	}
	if t.ThrottleMax <= 0 || t.ThrottleMax > 1 {
		return fmt.Errorf("%w: throttleMax %.2f must be in (0, 1]", ErrInvalidTuning, t.ThrottleMax)
	}
	if t.ThrottleMin < -1 {
		return fmt.Errorf("%w: throttleMin %.2f must not be below -1", ErrInvalidTuning, t.ThrottleMin)
	}
	if t.SteeringScale <= 0 {
		return fmt.Errorf("%w: steeringScale %.2f must be positive", ErrInvalidTuning, t.SteeringScale)
	}
	return nil
}

// Native is a frame translated into the foreign consumer's domain.
type Native struct {
	Throttle float32 `json:"throttle"`
	Steering float32 `json:"steering"`
	Brake    float32 `json:"brake"`
}

// Translate clamps throttle to the consumer's range, derives brake from it
// the way the consumer does, and scales steering. The frame's own brake is
// not used for ground vehicles.
func (t Tuning) Translate(f ControlFrame) Native {
	throttle := clamp(f.Throttle, t.ThrottleMin, t.ThrottleMax)
	return Native{
		Throttle: throttle,
		Steering: f.Steering * t.SteeringScale,
		Brake:    clamp01(1 - float32(math.Abs(float64(throttle)))),
	}
}
