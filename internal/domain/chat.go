package domain

import "errors"

var (
	ErrEmptyMessage     = errors.New("chat message has neither text nor audio")
	ErrAmbiguousMessage = errors.New("chat message has both text and audio")
)

// LogEntry is one line of the room's activity feed.
type LogEntry struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	AuthorID  string `json:"userId"`
}

// ChatMessage carries either text or a voice recording, never both.
type ChatMessage struct {
	ID        string `json:"id"`
	Sender    Role   `json:"sender"`
	Text      string `json:"text,omitempty"`
	AudioRef  string `json:"audioUrl,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (m ChatMessage) Validate() error {
	if m.Text == "" && m.AudioRef == "" {
		return ErrEmptyMessage
	}
	if m.Text != "" && m.AudioRef != "" {
		return ErrAmbiguousMessage
	}
	return nil
}

// Profile is the client intake form: an opaque blob the engine stores and
// rebroadcasts without interpreting beyond CardCount and PackageID.
type Profile struct {
	Name      string `json:"name"`
	Birth     string `json:"birth"`
	BirthTime string `json:"time"`
	PackageID string `json:"pkgId"`
	CardCount int    `json:"cards"`
	Focus     string `json:"focus,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

// Cursor is a participant's pointer position, in tabletop percent coordinates.
type Cursor struct {
	ParticipantID ParticipantID `json:"userId"`
	X             float64       `json:"x"`
	Y             float64       `json:"y"`
}
