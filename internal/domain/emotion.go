package domain

import "time"

// EmotionLabels is the fixed label set shared by classifiers, samples and summaries.
var EmotionLabels = []string{"angry", "disgust", "fear", "happy", "sad", "surprise", "neutral"}

// EmotionScores maps an emotion label to its intensity.
type EmotionScores map[string]float64

// Normalize returns scores restricted to EmotionLabels, with missing labels set to zero.
func (s EmotionScores) Normalize() EmotionScores {
	out := make(EmotionScores, len(EmotionLabels))
	for _, label := range EmotionLabels {
		out[label] = s[label]
	}
	return out
}

// EmotionSample is one classified frame.
type EmotionSample struct {
	Timestamp time.Time     `json:"timestamp"`
	Scores    EmotionScores `json:"emotions"`
}

// EmotionSummary is the finalized artifact of a capture session.
type EmotionSummary struct {
	Averages   EmotionScores   `json:"average_emotions"`
	History    []EmotionSample `json:"emotion_history"`
	FrameCount int             `json:"total_frames_analyzed"`
}
