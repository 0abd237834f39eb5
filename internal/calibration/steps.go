package calibration

import (
	"fmt"

	"github.com/yegors/co-gcs/internal/events"
)

// Instructional image keys, served by the UI
const (
	imageCenter       = "stickCenter.png"
	imageThrottleUp   = "stickThrottleUp.png"
	imageThrottleDown = "stickThrottleDown.png"
	imageYawRight     = "stickYawRight.png"
	imageRollRight    = "stickRollRight.png"
	imagePitchUp      = "stickPitchUp.png"
	imageAllLimits    = "stickAllLimits.png"
)

type functionPrompt struct {
	text  string
	image string
}

// Each prompt names the direction that should read as increasing
var prompts = map[Function]functionPrompt{
	Roll: {
		text:  "Move the roll stick all the way right and hold it there.",
		image: imageRollRight,
	},
	Pitch: {
		text:  "Move the pitch stick all the way back (nose up) and hold it there.",
		image: imagePitchUp,
	},
	Yaw: {
		text:  "Move the yaw stick all the way right and hold it there.",
		image: imageYawRight,
	},
	Throttle: {
		text:  "Move the throttle stick all the way up and hold it there.",
		image: imageThrottleUp,
	},
}

// stepInfo describes the current step for the operator
func (c *Controller) stepInfo() events.CalibrationStep {
	info := events.CalibrationStep{Session: c.session, Step: c.step.String(), Image: imageCenter}

	switch c.step {
	case StepAxisWait:
		info.Instructions = fmt.Sprintf("Connect an input device with at least %d axes.", c.thresholds.MinAxisCount)
	case StepBegin:
		info.Instructions = "Center all sticks and the throttle, then press Next."
		info.CanNext = true
	case StepIdentify:
		f := Functions[c.fnIndex]
		info.Function = f.String()
		info.Instructions = prompts[f].text
		info.Image = prompts[f].image
		info.CanSkip = true
	case StepMinMax:
		info.Instructions = "Move every stick through its full range, then press Next."
		info.Image = imageAllLimits
		info.CanNext = true
	case StepCenterThrottle:
		info.Function = Throttle.String()
		info.Instructions = "Return the throttle stick to center."
		info.Image = imageCenter
	case StepDetectInversion:
		f := Functions[c.fnIndex]
		info.Function = f.String()
		info.Instructions = prompts[f].text
		info.Image = prompts[f].image
		info.CanSkip = true
	case StepTrims:
		info.Instructions = "Center the sticks and lower the throttle. Press Next to capture trims or Skip to use defaults."
		info.Image = imageThrottleDown
		info.CanNext = true
		info.CanSkip = true
	case StepSave:
		info.Instructions = "Calibration complete. Press Next to save."
		info.CanNext = true
	}
	return info
}
