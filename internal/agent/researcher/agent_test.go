package researcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"ContentDigest/internal/agent"
	"ContentDigest/internal/domain"
)

type fakeChat struct {
	notes  string
	report string
	err    error
	calls  []string
}

func (f *fakeChat) Provider() string { return "openai/test" }

func (f *fakeChat) Complete(_ context.Context, system, user string) (string, error) {
	f.calls = append(f.calls, user)
	if f.err != nil {
		return "", f.err
	}
	if strings.Contains(system, "research assistant") {
		return f.notes, nil
	}
	return f.report, nil
}

func queryItem(payload string) *domain.ContentItem {
	item := domain.NewContentItem(domain.ChannelWhatsApp, payload)
	item.Type = domain.TypeQuery
	return item
}

func TestProcessRunsSearchThenSynthesis(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{
		notes:  "- fact one\n- fact two",
		report: "Overview line.\nDetails follow.",
	}
	r := New(chat, discardLogger())

	resp, err := r.Process(context.Background(), agent.Request{Item: queryItem("research: solid state batteries")})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(chat.calls) != 2 {
		t.Fatalf("expected search then synthesis call, got %d", len(chat.calls))
	}
	if chat.calls[0] != "solid state batteries" {
		t.Fatalf("search call must carry the bare topic, got %q", chat.calls[0])
	}
	if !strings.Contains(chat.calls[1], "fact one") {
		t.Fatalf("synthesis call must include the notes, got %q", chat.calls[1])
	}
	if resp.Processed != "Overview line.\nDetails follow." {
		t.Fatalf("unexpected report %q", resp.Processed)
	}
	if resp.Summary != "Overview line." {
		t.Fatalf("summary must be the report's first line, got %q", resp.Summary)
	}
	if len(resp.Entities) != 1 || resp.Entities[0].Name != "solid state batteries" {
		t.Fatalf("expected topic entity, got %v", resp.Entities)
	}
	if resp.Providers[0] != "openai/test" {
		t.Fatalf("expected provider bookkeeping, got %v", resp.Providers)
	}
}

func TestProcessWithoutProviderRecordsRequest(t *testing.T) {
	t.Parallel()

	r := New(nil, discardLogger())
	resp, err := r.Process(context.Background(), agent.Request{Item: queryItem("query fusion reactors")})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(resp.Processed, "fusion reactors") {
		t.Fatalf("placeholder must name the topic, got %q", resp.Processed)
	}
	if len(resp.Tags) != 1 || resp.Tags[0] != "research" {
		t.Fatalf("expected research tag, got %v", resp.Tags)
	}
}

func TestProcessCommandOnlySubmissionUsesCommandTopic(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{
		notes:  "- qubit counts are rising",
		report: "Quantum computing overview.",
	}
	r := New(chat, discardLogger())

	item := queryItem("")
	item.Command = "research quantum computing"
	resp, err := r.Process(context.Background(), agent.Request{Item: item})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if chat.calls[0] != "quantum computing" {
		t.Fatalf("topic must fall back to the command text, got %q", chat.calls[0])
	}
	if len(resp.Entities) != 1 || resp.Entities[0].Name != "quantum computing" {
		t.Fatalf("expected command-derived topic entity, got %v", resp.Entities)
	}
}

func TestProcessProviderErrorSurfaces(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{err: errors.New("rate limited")}
	r := New(chat, discardLogger())
	if _, err := r.Process(context.Background(), agent.Request{Item: queryItem("research: anything")}); err == nil {
		t.Fatal("expected provider error to surface")
	}
}

func TestProcessRejectsEmptyTopic(t *testing.T) {
	t.Parallel()

	r := New(nil, discardLogger())
	if _, err := r.Process(context.Background(), agent.Request{Item: queryItem("research:   ")}); err == nil {
		t.Fatal("expected error for missing topic")
	}
}

func TestExtractTopic(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"research: quantum radar": "quantum radar",
		"Investigate dark matter": "dark matter",
		"query web performance":   "web performance",
		"just a plain question":   "just a plain question",
		"research":                "",
	}
	for in, want := range cases {
		if got := extractTopic(in); got != want {
			t.Fatalf("extractTopic(%q) = %q, want %q", in, got, want)
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
