package taskstore

import "time"

// StatusDone is set by the mark-done action handler. The store accepts any
// status string; it does not validate transitions.
const StatusDone = "done"

// Key identifies a stored record by its originating message.
type Key struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

func (k Key) String() string {
	return k.Channel + ":" + k.TS
}

// DateSpan is one calendar phrase found in message text, in order of
// appearance.
type DateSpan struct {
	Text  string    `json:"text"`
	Index int       `json:"index"`
	Time  time.Time `json:"time"`
}

// Entities is the structured bag produced by entity extraction.
type Entities struct {
	People        []string   `json:"people"`
	Organizations []string   `json:"organizations"`
	Dates         []DateSpan `json:"dates"`
}

// Source is the back-reference to the originating message, attached only
// when a record is persisted.
type Source struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// Metadata is the task record extracted from one message. It is created by
// the pipeline and owned by the store once written.
type Metadata struct {
	Summary           string     `json:"summary"`
	ProjectID         string     `json:"project_id"`
	Priority          int        `json:"priority"`
	Owner             string     `json:"owner"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	Language          string     `json:"language"`
	ContainsProfanity bool       `json:"contains_profanity"`
	Entities          Entities   `json:"entities"`
	IsTask            bool       `json:"is_task"`
	Source            *Source    `json:"source,omitempty"`
	Status            string     `json:"status,omitempty"`
}
