package avatar3d

import (
	"math/rand"
	"time"
)

// BlinkRate is how fast eyelid channels chase the blink curve.
const BlinkRate float32 = 0.6

type BlinkState int

const (
	BlinkStateOpen BlinkState = iota
	BlinkStateClosing
	BlinkStateClosed
	BlinkStateOpening
)

// EyeController adds periodic blinks on top of the face. It runs on frame
// time rather than wall time so a paused loop does not blink.
type EyeController struct {
	blinkState    BlinkState
	untilBlink    time.Duration
	blinkProgress float32
	blinkDuration float32
	minBlinkGap   time.Duration
	maxBlinkGap   time.Duration
	rng           *rand.Rand
}

func NewEyeController(seed int64) *EyeController {
	ec := &EyeController{
		blinkDuration: 0.15,
		minBlinkGap:   2 * time.Second,
		maxBlinkGap:   5 * time.Second,
		rng:           rand.New(rand.NewSource(seed)),
	}
	ec.untilBlink = ec.randomDuration(2*time.Second, 4*time.Second)
	return ec
}

func (ec *EyeController) TriggerBlink() {
	if ec.blinkState == BlinkStateOpen {
		ec.blinkState = BlinkStateClosing
		ec.blinkProgress = 0
	}
}

func (ec *EyeController) SetBlinkRate(minGap, maxGap time.Duration) {
	if maxGap < minGap {
		maxGap = minGap
	}
	ec.minBlinkGap = minGap
	ec.maxBlinkGap = maxGap
}

// Update advances the blink and writes eyelid targets into targets.
func (ec *EyeController) Update(dt time.Duration, targets map[string]MorphTarget) {
	ec.updateBlink(dt)
	amount := ec.BlinkAmount()
	if amount <= 0 {
		return
	}
	targets[string(EyeBlinkLeft)] = MorphTarget{Value: amount, Rate: BlinkRate}
	targets[string(EyeBlinkRight)] = MorphTarget{Value: amount, Rate: BlinkRate}
}

func (ec *EyeController) updateBlink(dt time.Duration) {
	sec := float32(dt.Seconds())
	switch ec.blinkState {
	case BlinkStateOpen:
		ec.untilBlink -= dt
		if ec.untilBlink <= 0 {
			ec.blinkState = BlinkStateClosing
			ec.blinkProgress = 0
		}

	case BlinkStateClosing:
		ec.blinkProgress += sec / (ec.blinkDuration * 0.4)
		if ec.blinkProgress >= 1.0 {
			ec.blinkProgress = 1.0
			ec.blinkState = BlinkStateClosed
		}

	case BlinkStateClosed:
		ec.blinkProgress += sec / (ec.blinkDuration * 0.1)
		if ec.blinkProgress >= 1.1 {
			ec.blinkState = BlinkStateOpening
			ec.blinkProgress = 1.0
		}

	case BlinkStateOpening:
		ec.blinkProgress -= sec / (ec.blinkDuration * 0.5)
		if ec.blinkProgress <= 0 {
			ec.blinkProgress = 0
			ec.blinkState = BlinkStateOpen
			ec.untilBlink = ec.randomDuration(ec.minBlinkGap, ec.maxBlinkGap)
		}
	}
}

// BlinkAmount is the eyelid closure in [0,1].
func (ec *EyeController) BlinkAmount() float32 {
	switch ec.blinkState {
	case BlinkStateClosing:
		return easeOutQuad(ec.blinkProgress)
	case BlinkStateClosed:
		return 1.0
	case BlinkStateOpening:
		return easeInQuad(ec.blinkProgress)
	default:
		return 0
	}
}

func (ec *EyeController) IsBlinking() bool {
	return ec.blinkState != BlinkStateOpen
}

func easeOutQuad(t float32) float32 {
	return t * (2 - t)
}

func easeInQuad(t float32) float32 {
	return t * t
}

func (ec *EyeController) randomDuration(min, max time.Duration) time.Duration {
	return min + time.Duration(ec.rng.Float64()*float64(max-min))
}
