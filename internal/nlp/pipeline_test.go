package nlp

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/quailyquaily/slackpm/internal/ingest"
	"github.com/quailyquaily/slackpm/internal/taskstore"
)

type fixedDetector struct {
	code string
}

func (d fixedDetector) Detect(string) string { return d.code }

type fakeExtractor struct {
	people        []string
	organizations []string
	err           error
}

func (e fakeExtractor) Extract(string) ([]string, []string, error) {
	return e.people, e.organizations, e.err
}

type fakeDateParser struct {
	spans []taskstore.DateSpan
	err   error
}

func (p fakeDateParser) Parse(string) ([]taskstore.DateSpan, error) {
	return p.spans, p.err
}

func newTestPipeline() *Pipeline {
	return New(Options{
		Language: fixedDetector{code: "eng"},
		Entities: fakeExtractor{},
		Dates:    fakeDateParser{},
	})
}

func TestRunTaskGate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want bool
	}{
		{name: "review_verb", text: "Please review the PR", want: true},
		{name: "case_insensitive", text: "DEPLOY the service", want: true},
		{name: "fix_with_ticket", text: "Fix PROJ-123 bug", want: true},
		{name: "no_verb", text: "lunch at noon?", want: false},
		{name: "verb_substring_only", text: "previewing the doc", want: false},
		{name: "empty", text: "", want: false},
	}
	p := newTestPipeline()
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			md, err := p.Run(ingest.Message{Text: tc.text, Channel: "C1", TS: "t1"})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if md.IsTask != tc.want {
				t.Fatalf("IsTask = %v, want %v", md.IsTask, tc.want)
			}
		})
	}
}

func TestRunProjectID(t *testing.T) {
	t.Parallel()

	p := newTestPipeline()

	cases := []struct {
		name string
		msg  ingest.Message
		want string
	}{
		{
			name: "ticket_reference",
			msg:  ingest.Message{Text: "Fix PROJ-123 bug", Channel: "C123", TS: "t1"},
			want: "PROJ-123",
		},
		{
			name: "first_ticket_wins",
			msg:  ingest.Message{Text: "ABC-1 blocks XYZ-2", Channel: "C123", TS: "t1"},
			want: "ABC-1",
		},
		{
			// hash("C123") with the 32-bit ((h<<5)-h+c) fold.
			name: "channel_cluster_fallback",
			msg:  ingest.Message{Text: "no ticket here", Channel: "C123", TS: "t1"},
			want: "2044687",
		},
		{
			name: "thread_wins_over_channel",
			msg:  ingest.Message{Text: "no ticket here", Channel: "C123", TS: "t2", ThreadTS: "C123"},
			want: "2044687",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			md, err := p.Run(tc.msg)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if md.ProjectID != tc.want {
				t.Fatalf("ProjectID = %q, want %q", md.ProjectID, tc.want)
			}
		})
	}
}

func TestRunClusterFallbackIsStable(t *testing.T) {
	t.Parallel()

	p := newTestPipeline()
	msg := ingest.Message{Text: "nothing actionable", Channel: "C9", TS: "t1", ThreadTS: "1700000000.000100"}
	first, err := p.Run(msg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := p.Run(msg)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if again.ProjectID != first.ProjectID {
			t.Fatalf("ProjectID = %q, want stable %q", again.ProjectID, first.ProjectID)
		}
	}
	if strings.TrimSpace(first.ProjectID) == "" {
		t.Fatalf("ProjectID is empty")
	}
}

func TestRunDeterminism(t *testing.T) {
	t.Parallel()

	due := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	p := New(Options{
		Language: fixedDetector{code: "eng"},
		Entities: fakeExtractor{people: []string{"Alice"}, organizations: []string{"Acme"}},
		Dates:    fakeDateParser{spans: []taskstore.DateSpan{{Text: "2023-12-31", Index: 8, Time: due}}},
	})
	msg := ingest.Message{Text: "Ship by 2023-12-31", User: "U1", Channel: "C1", TS: "t1"}

	first, err := p.Run(msg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	second, err := p.Run(msg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("Run() not deterministic (-first +second):\n%s", diff)
	}
	if first.DueDate == nil || !first.DueDate.Equal(due) {
		t.Fatalf("DueDate = %v, want %v", first.DueDate, due)
	}
}

func TestRunOnlyFirstDateSpanBecomesDueDate(t *testing.T) {
	t.Parallel()

	first := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	second := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	p := New(Options{
		Language: fixedDetector{code: "eng"},
		Entities: fakeExtractor{},
		Dates: fakeDateParser{spans: []taskstore.DateSpan{
			{Text: "2024-01-02", Index: 0, Time: first},
			{Text: "2024-03-04", Index: 20, Time: second},
		}},
	})
	md, err := p.Run(ingest.Message{Text: "2024-01-02 then maybe 2024-03-04", Channel: "C1", TS: "t1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if md.DueDate == nil || !md.DueDate.Equal(first) {
		t.Fatalf("DueDate = %v, want %v", md.DueDate, first)
	}
	if len(md.Entities.Dates) != 2 {
		t.Fatalf("len(Entities.Dates) = %d, want 2", len(md.Entities.Dates))
	}
}

func TestRunSummaryTruncation(t *testing.T) {
	t.Parallel()

	p := newTestPipeline()

	short := "Please review the PR"
	md, err := p.Run(ingest.Message{Text: short, Channel: "C1", TS: "t1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if md.Summary != short {
		t.Fatalf("Summary = %q, want %q", md.Summary, short)
	}

	long := strings.Repeat("review ", 30)
	md, err = p.Run(ingest.Message{Text: long, Channel: "C1", TS: "t2"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := len([]rune(md.Summary)); got != 80 {
		t.Fatalf("len(Summary) = %d runes, want 80", got)
	}
	if !strings.HasPrefix(long, md.Summary) {
		t.Fatalf("Summary is not a prefix of the text")
	}
}

func TestRunProfanitySubstringMatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want bool
	}{
		{name: "exact_word", text: "this is bad", want: true},
		{name: "substring_badge", text: "update my badge", want: true},
		{name: "mixed_case", text: "DAMN, fix it", want: true},
		{name: "clean", text: "review the doc", want: false},
		{name: "empty", text: "", want: false},
	}
	p := newTestPipeline()
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			md, err := p.Run(ingest.Message{Text: tc.text, Channel: "C1", TS: "t1"})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if md.ContainsProfanity != tc.want {
				t.Fatalf("ContainsProfanity = %v, want %v", md.ContainsProfanity, tc.want)
			}
		})
	}
}

func TestRunEmptyTextDegradesToDefaults(t *testing.T) {
	t.Parallel()

	p := New(Options{
		Language: WhatlangDetector{},
		Entities: fakeExtractor{},
		Dates:    fakeDateParser{},
	})
	md, err := p.Run(ingest.Message{User: "U1", Channel: "C1", TS: "t1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if md.Language != "und" {
		t.Fatalf("Language = %q, want %q", md.Language, "und")
	}
	if md.IsTask || md.ContainsProfanity || md.DueDate != nil {
		t.Fatalf("defaults not applied: %+v", md)
	}
	if md.Summary != "" {
		t.Fatalf("Summary = %q, want empty", md.Summary)
	}
	if md.Priority != 1 {
		t.Fatalf("Priority = %d, want 1", md.Priority)
	}
	if md.Owner != "U1" {
		t.Fatalf("Owner = %q, want %q", md.Owner, "U1")
	}
}

func TestRunAnalyzerFailureSurfacesAsError(t *testing.T) {
	t.Parallel()

	p := New(Options{
		Language: fixedDetector{code: "eng"},
		Entities: fakeExtractor{err: fmt.Errorf("model exploded")},
		Dates:    fakeDateParser{},
	})
	_, err := p.Run(ingest.Message{Text: "review this", Channel: "C1", TS: "t1"})
	if err == nil {
		t.Fatalf("Run() error = nil, want extraction failure")
	}
	if !strings.Contains(err.Error(), "extract entities") {
		t.Fatalf("error = %q, want entity-stage wrap", err.Error())
	}
}
