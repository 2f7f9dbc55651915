package nlp

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/quailyquaily/slackpm/internal/taskstore"
)

var isoDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

// Casual phrases without an explicit time component resolve relative to the
// parse base, so a single message can only yield a bounded number of spans.
const maxDateSpans = 8

// WhenParser finds calendar phrases with an explicit ISO-date matcher plus
// the olebedev/when casual rules ("tomorrow", "next friday", ...). Relative
// phrases resolve against Now, injectable for deterministic tests.
type WhenParser struct {
	w   *when.Parser
	Now func() time.Time
}

func NewWhenParser() *WhenParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &WhenParser{w: w, Now: time.Now}
}

func (p *WhenParser) Parse(text string) ([]taskstore.DateSpan, error) {
	if p == nil || p.w == nil {
		return nil, nil
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	nowFn := p.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	base := nowFn()

	spans := isoSpans(text)
	casual, err := p.casualSpans(text, base)
	if err != nil {
		return nil, err
	}
	for _, span := range casual {
		if overlapsAny(span, spans) {
			continue
		}
		spans = append(spans, span)
	}
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].Index < spans[j].Index
	})
	return spans, nil
}

func isoSpans(text string) []taskstore.DateSpan {
	var out []taskstore.DateSpan
	for _, loc := range isoDatePattern.FindAllStringIndex(text, maxDateSpans) {
		raw := text[loc[0]:loc[1]]
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			continue
		}
		out = append(out, taskstore.DateSpan{
			Text:  raw,
			Index: loc[0],
			Time:  parsed,
		})
	}
	return out
}

func (p *WhenParser) casualSpans(text string, base time.Time) ([]taskstore.DateSpan, error) {
	var out []taskstore.DateSpan
	rest := text
	offset := 0
	for i := 0; i < maxDateSpans; i++ {
		if strings.TrimSpace(rest) == "" {
			break
		}
		r, err := p.w.Parse(rest, base)
		if err != nil {
			return nil, err
		}
		if r == nil {
			break
		}
		out = append(out, taskstore.DateSpan{
			Text:  r.Text,
			Index: offset + r.Index,
			Time:  r.Time,
		})
		advance := r.Index + len(r.Text)
		if advance <= 0 || advance >= len(rest) {
			break
		}
		rest = rest[advance:]
		offset += advance
	}
	return out, nil
}

func overlapsAny(span taskstore.DateSpan, others []taskstore.DateSpan) bool {
	end := span.Index + len(span.Text)
	for _, other := range others {
		otherEnd := other.Index + len(other.Text)
		if span.Index < otherEnd && other.Index < end {
			return true
		}
	}
	return false
}
