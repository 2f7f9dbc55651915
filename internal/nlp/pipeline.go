package nlp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/quailyquaily/slackpm/internal/ingest"
	"github.com/quailyquaily/slackpm/internal/taskstore"
)

const (
	summaryLimit    = 80
	defaultPriority = 1
)

// Kept deliberately tiny; substring matching is intentional, so "badge"
// counts as profane.
var profaneWords = []string{"bad", "crap", "damn"}

var (
	taskVerbPattern = regexp.MustCompile(`(?i)\b(review|ship|fix|do|complete|finish|update|check|test|deploy)\b`)
	ticketPattern   = regexp.MustCompile(`[A-Z]{2,}-\d+`)
)

// Options configures the analyzers behind the pipeline. Nil fields fall back
// to the library-backed defaults.
type Options struct {
	Language LanguageDetector
	Entities EntityExtractor
	Dates    DateParser
}

// Pipeline turns one raw message into task metadata. Given fixed analyzers
// the transformation is pure: identical input yields identical output.
type Pipeline struct {
	language LanguageDetector
	entities EntityExtractor
	dates    DateParser
}

func New(opts Options) *Pipeline {
	language := opts.Language
	if language == nil {
		language = WhatlangDetector{}
	}
	entities := opts.Entities
	if entities == nil {
		entities = ProseExtractor{}
	}
	dates := opts.Dates
	if dates == nil {
		dates = NewWhenParser()
	}
	return &Pipeline{
		language: language,
		entities: entities,
		dates:    dates,
	}
}

// Run executes every extraction stage over msg. Empty or missing text
// degrades to defaults at each stage; an error is returned only when an
// analyzer fails, and the caller accounts it as an extraction failure.
func (p *Pipeline) Run(msg ingest.Message) (taskstore.Metadata, error) {
	if p == nil {
		return taskstore.Metadata{}, fmt.Errorf("nlp pipeline is not initialized")
	}
	text := msg.Text

	language := p.language.Detect(text)

	people, organizations, err := p.entities.Extract(text)
	if err != nil {
		return taskstore.Metadata{}, fmt.Errorf("extract entities: %w", err)
	}

	spans, err := p.dates.Parse(text)
	if err != nil {
		return taskstore.Metadata{}, fmt.Errorf("parse dates: %w", err)
	}
	// Only the first calendar phrase counts as the due date.
	var dueDate *time.Time
	if len(spans) > 0 {
		first := spans[0].Time
		dueDate = &first
	}

	clusterKey := msg.ThreadTS
	if clusterKey == "" {
		clusterKey = msg.Channel
	}
	projectID := ticketPattern.FindString(text)
	if projectID == "" {
		projectID = strconv.FormatInt(clusterHash(clusterKey), 10)
	}

	return taskstore.Metadata{
		Summary:           truncateRunes(text, summaryLimit),
		ProjectID:         projectID,
		Priority:          defaultPriority,
		Owner:             msg.User,
		DueDate:           dueDate,
		Language:          language,
		ContainsProfanity: containsProfanity(text),
		Entities: taskstore.Entities{
			People:        people,
			Organizations: organizations,
			Dates:         spans,
		},
		IsTask: taskVerbPattern.MatchString(text),
	}, nil
}

func containsProfanity(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range profaneWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// clusterHash is the 32-bit string hash ((h<<5)-h+c over UTF-16 code units),
// folded to a non-negative value. It keys un-ticketed messages in the same
// thread (or channel) to one synthetic project id.
func clusterHash(key string) int64 {
	var h int32
	for _, unit := range utf16.Encode([]rune(key)) {
		h = h*31 + int32(unit)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
