// Package transcript merges streamed partial and final text into display
// entries.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Speaker string

const (
	User  Speaker = "user"
	Model Speaker = "model"
)

// SpeakerOf maps the controller's isUser flag.
func SpeakerOf(isUser bool) Speaker {
	if isUser {
		return User
	}
	return Model
}

type Entry struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"source"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsPartial bool      `json:"is_partial"`
}

// Assembler holds the ordered entries. Each speaker has at most one open
// (partial) entry, and it is always that speaker's most recent entry.
type Assembler struct {
	mu       sync.Mutex
	entries  []Entry
	open     map[Speaker]int
	now      func() time.Time
	onChange func([]Entry)
}

type Option func(*Assembler)

// WithClock overrides time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// OnChange registers a callback invoked with a snapshot after each update.
func OnChange(fn func([]Entry)) Option {
	return func(a *Assembler) { a.onChange = fn }
}

func New(opts ...Option) *Assembler {
	a := &Assembler{open: map[Speaker]int{}, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Apply merges one update. text is the cumulative text of the current turn.
func (a *Assembler) Apply(text string, speaker Speaker, isFinal bool) []Entry {
	a.mu.Lock()
	changed := a.apply(text, speaker, isFinal)
	snap := a.snapshot()
	fn := a.onChange
	a.mu.Unlock()

	if changed && fn != nil {
		fn(snap)
	}
	return snap
}

func (a *Assembler) apply(text string, speaker Speaker, isFinal bool) bool {
	if i, ok := a.open[speaker]; ok {
		a.entries[i].Text = text
		a.entries[i].IsPartial = !isFinal
		if isFinal {
			delete(a.open, speaker)
		}
		return true
	}
	if strings.TrimSpace(text) == "" && !isFinal {
		return false
	}
	a.entries = append(a.entries, Entry{
		ID:        uuid.NewString(),
		Speaker:   speaker,
		Text:      text,
		Timestamp: a.now(),
		IsPartial: !isFinal,
	})
	if !isFinal {
		a.open[speaker] = len(a.entries) - 1
	}
	return true
}

// Entries returns a copy of the current sequence.
func (a *Assembler) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

func (a *Assembler) Clear() {
	a.mu.Lock()
	a.entries = nil
	a.open = map[Speaker]int{}
	fn := a.onChange
	a.mu.Unlock()
	if fn != nil {
		fn([]Entry{})
	}
}

func (a *Assembler) snapshot() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}
