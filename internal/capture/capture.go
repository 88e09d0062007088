// Package capture samples a camera feed, classifies each frame's emotional
// content and aggregates the results for one quiz attempt.
package capture

import (
	"context"
	"errors"
	"time"

	"moodquiz-service/internal/domain"
)

var (
	// ErrDeviceBusy is returned when another session holds the camera.
	ErrDeviceBusy = errors.New("capture device is held by another session")
	// ErrNoFrame is returned by devices that have nothing fresh to read.
	ErrNoFrame = errors.New("no frame available")
)

// Frame is one encoded image read from a device.
type Frame struct {
	Data       []byte
	MIMEType   string
	CapturedAt time.Time
}

// Device is a frame source. Open and Close bracket one exclusive use; between
// them the device yields only frames from publisher.
type Device interface {
	Open(ctx context.Context, publisher string) error
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

// Classifier scores the emotions of the face in a frame. found is false when no
// face was detected; the frame then yields no sample.
type Classifier interface {
	Classify(ctx context.Context, frame Frame) (scores domain.EmotionScores, found bool, err error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, frame Frame) (domain.EmotionScores, bool, error)

func (f ClassifierFunc) Classify(ctx context.Context, frame Frame) (domain.EmotionScores, bool, error) {
	return f(ctx, frame)
}
