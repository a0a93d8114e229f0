package transcript

import (
	"strings"
	"sync"
)

// State is the transcript of one session.
type State struct {
	// Confirmed holds finalized segments in arrival order. Append-only.
	Confirmed []string

	// Pending is the latest unconfirmed segment.
	Pending string

	// DetectedLanguage is the last language code the recognizer reported.
	DetectedLanguage string
}

// ConfirmedText returns the finalized segments, each terminated by a newline.
func (s State) ConfirmedText() string {
	var b strings.Builder
	for _, seg := range s.Confirmed {
		b.WriteString(seg)
		b.WriteByte('\n')
	}
	return b.String()
}

// Display returns the confirmed text followed by the pending segment.
func (s State) Display() string {
	return s.ConfirmedText() + s.Pending
}

// clone returns a copy that does not share the Confirmed backing array.
func (s State) clone() State {
	s.Confirmed = append([]string(nil), s.Confirmed...)
	return s
}

// ChangeKind classifies what an event did to the state.
type ChangeKind int

const (
	// ChangeNone means the event carried no usable result.
	ChangeNone ChangeKind = iota

	// ChangePartial means Pending was replaced.
	ChangePartial

	// ChangeFinal means a segment was appended to Confirmed.
	ChangeFinal
)

// String returns the lower-case name of the kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangePartial:
		return "partial"
	case ChangeFinal:
		return "final"
	default:
		return "none"
	}
}

// Change describes the effect of one [Apply].
type Change struct {
	Kind ChangeKind

	// Text is the repaired text of the result that was applied.
	Text string

	// LanguageChanged is true when DetectedLanguage was updated.
	LanguageChanged bool
}

// Apply folds ev into st and returns the new state. st is not modified.
//
// Only the first alternative of the first result counts. A partial result
// replaces Pending; a final result appends its text to Confirmed and clears
// Pending. A final result with empty text only clears Pending.
func Apply(ev Event, st State) (State, Change) {
	next := st.clone()
	var ch Change

	if len(ev.Results) == 0 {
		return next, ch
	}
	res := ev.Results[0]

	if res.LanguageCode != "" && res.LanguageCode != next.DetectedLanguage {
		next.DetectedLanguage = res.LanguageCode
		ch.LanguageChanged = true
	}
	if len(res.Alternatives) == 0 {
		return next, ch
	}

	text := RepairUTF8(res.Alternatives[0].Transcript)
	ch.Text = text
	if res.IsPartial {
		next.Pending = text
		ch.Kind = ChangePartial
		return next, ch
	}

	next.Pending = ""
	ch.Kind = ChangeFinal
	if text != "" {
		next.Confirmed = append(next.Confirmed, text)
	}
	return next, ch
}

// Reconciler applies events to a session transcript. It is safe for
// concurrent use.
type Reconciler struct {
	mu    sync.Mutex
	state State
}

// NewReconciler returns a Reconciler with an empty transcript.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Apply folds ev into the transcript and returns a snapshot of the result.
func (r *Reconciler) Apply(ev Event) (State, Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, ch := Apply(ev, r.state)
	r.state = next
	return next.clone(), ch
}

// State returns a snapshot of the transcript.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Reset empties the transcript.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = State{}
}
