// Package transcript reconciles streaming recognition results into a running
// transcript.
//
// A streaming recognizer revises its current segment many times (partial
// results) before it commits it (a final result). [Apply] folds one decoded
// [Event] into a [State]; [Reconciler] does the same behind a mutex for use by
// a live session.
package transcript

import "time"

// Event is one decoded recognition event.
type Event struct {
	Results []Result `json:"Results"`
}

// Result is one recognition result. Only the first alternative is used.
type Result struct {
	ResultID     string        `json:"ResultId,omitempty"`
	StartTime    float64       `json:"StartTime,omitempty"`
	EndTime      float64       `json:"EndTime,omitempty"`
	IsPartial    bool          `json:"IsPartial"`
	Alternatives []Alternative `json:"Alternatives"`
	ChannelID    string        `json:"ChannelId,omitempty"`

	// LanguageCode is set when automatic language identification is enabled.
	LanguageCode string `json:"LanguageCode,omitempty"`
}

// Alternative is one hypothesis for a result, best first.
type Alternative struct {
	Transcript string `json:"Transcript"`
}

// Segment is a finalized piece of transcript, as archived per session.
type Segment struct {
	SessionID string
	Index     int
	Text      string
	Language  string
	At        time.Time
}
