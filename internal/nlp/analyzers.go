package nlp

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	prose "github.com/jdkato/prose/v2"

	"github.com/quailyquaily/slackpm/internal/taskstore"
)

// LanguageDetector classifies text into a short language code. Detection must
// always produce a value; undetectable input maps to "und".
type LanguageDetector interface {
	Detect(text string) string
}

// EntityExtractor pulls people and organization mentions out of free text, in
// order of appearance.
type EntityExtractor interface {
	Extract(text string) (people, organizations []string, err error)
}

// DateParser finds calendar phrases in text, in order of appearance.
type DateParser interface {
	Parse(text string) ([]taskstore.DateSpan, error)
}

// WhatlangDetector backs language detection with whatlanggo trigram models.
type WhatlangDetector struct{}

func (WhatlangDetector) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return "und"
	}
	info := whatlanggo.Detect(text)
	if info.Lang < 0 {
		return "und"
	}
	code := strings.TrimSpace(info.Lang.Iso6393())
	if code == "" {
		return "und"
	}
	return code
}

// ProseExtractor backs entity extraction with the prose NER chunker. Prose
// labels people as PERSON; every other entity label lands in organizations.
type ProseExtractor struct{}

func (ProseExtractor) Extract(text string) ([]string, []string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, nil
	}
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, nil, err
	}
	var people, organizations []string
	for _, ent := range doc.Entities() {
		if ent.Label == "PERSON" {
			people = append(people, ent.Text)
			continue
		}
		organizations = append(organizations, ent.Text)
	}
	return people, organizations, nil
}
