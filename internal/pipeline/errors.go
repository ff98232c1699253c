package pipeline

import (
	"errors"
	"fmt"
)

// Stage names one step of asset generation.
type Stage string

const (
	StageScript Stage = "script"
	StageImages Stage = "images"
	StageAudio  Stage = "audio"
)

// ErrEmptyScript is returned when the script stage yields no text.
var ErrEmptyScript = errors.New("script is empty")

// GenerationError reports the stage at which a run stopped.
type GenerationError struct {
	Stage Stage
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("asset generation failed at %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// FailedStage returns the stage carried by a GenerationError in err's chain.
func FailedStage(err error) (Stage, bool) {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Stage, true
	}
	return "", false
}
