package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/todo-digest/internal/config"
	"github.com/benvon/todo-digest/internal/database"
	"github.com/benvon/todo-digest/internal/models"
	"github.com/benvon/todo-digest/internal/services/sources"
)

type mockTodoStore struct {
	mu         sync.Mutex
	titles     []string
	titlesErr  error
	created    []*models.Todo
	createFunc func(todo *models.Todo) error
}

func (m *mockTodoStore) ListRecentTitles(_ context.Context, _ uuid.UUID, _ int) ([]string, error) {
	return m.titles, m.titlesErr
}

func (m *mockTodoStore) Create(_ context.Context, todo *models.Todo) error {
	if m.createFunc != nil {
		if err := m.createFunc(todo); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, todo)
	return nil
}

type mockSettingsStore struct {
	settings *models.UserSettings
	err      error
}

func (m *mockSettingsStore) GetByUserID(_ context.Context, userID uuid.UUID) (*models.UserSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.settings, nil
}

type mockCredentialStore struct {
	connected map[models.Provider]bool
}

func (m *mockCredentialStore) Get(_ context.Context, userID uuid.UUID, provider models.Provider) (*models.Connection, error) {
	if !m.connected[provider] {
		return nil, fmt.Errorf("connection: %w", database.ErrNotFound)
	}
	return &models.Connection{UserID: userID, Provider: provider, AccessToken: "token-" + string(provider)}, nil
}

type mockGenerator struct {
	mu     sync.Mutex
	calls  int
	prompt string
	output string
	err    error
}

func (m *mockGenerator) GenerateTodos(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompt = prompt
	return m.output, m.err
}

type mockFetcher struct {
	provider  models.Provider
	fetchFunc func(ctx context.Context, creds sources.Credentials, scope sources.Scope) ([]models.SourceItem, error)
}

func (m *mockFetcher) Provider() models.Provider { return m.provider }

func (m *mockFetcher) Fetch(ctx context.Context, creds sources.Credentials, scope sources.Scope) ([]models.SourceItem, error) {
	return m.fetchFunc(ctx, creds, scope)
}

func staticFetcher(provider models.Provider, items ...models.SourceItem) *mockFetcher {
	return &mockFetcher{
		provider: provider,
		fetchFunc: func(context.Context, sources.Credentials, sources.Scope) ([]models.SourceItem, error) {
			return items, nil
		},
	}
}

func slackItem(id, title string) models.SourceItem {
	return models.SourceItem{
		Type:  models.SourceTypeSlack,
		ID:    id,
		Link:  "https://slack.com/app_redirect?channel=C1",
		Title: title,
	}
}

type fixture struct {
	todos     *mockTodoStore
	settings  *mockSettingsStore
	creds     *mockCredentialStore
	generator *mockGenerator
	fetchers  []sources.Fetcher
}

func newFixture() *fixture {
	return &fixture{
		todos:     &mockTodoStore{},
		settings:  &mockSettingsStore{settings: &models.UserSettings{}},
		creds:     &mockCredentialStore{connected: map[models.Provider]bool{}},
		generator: &mockGenerator{},
	}
}

func (f *fixture) service() *Service {
	return NewService(Deps{
		Todos:       f.todos,
		Settings:    f.settings,
		Credentials: f.creds,
		Generator:   f.generator,
		Fetchers:    f.fetchers,
		Limits:      config.DefaultLimits().Generation,
		Location:    time.UTC,
		Now: func() time.Time {
			return time.Date(2025, 11, 5, 9, 0, 0, 0, time.UTC)
		},
	})
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
			return out
		}
	}
}

func describe(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Type == EventStatus {
			out = append(out, "status:"+string(ev.Step))
			continue
		}
		out = append(out, string(ev.Type))
	}
	return out
}

func assertSequence(t *testing.T, events []Event, want ...string) {
	t.Helper()
	got := describe(events)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected events %v, got %v", want, got)
	}
}

func TestGenerate_EventOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.creds.connected[models.ProviderSlack] = true
	f.creds.connected[models.ProviderNotion] = true
	f.fetchers = []sources.Fetcher{
		staticFetcher(models.ProviderNotion, models.SourceItem{
			Type: models.SourceTypeNotion, ID: "page1", Link: "https://www.notion.so/page1", Title: "Roadmap",
		}),
		staticFetcher(models.ProviderSlack, slackItem("C1:1.0", "please review PR #42")),
	}
	f.generator.output = `[
		{"title":"Review PR #42","priority":"high","sources":[{"type":"slack","id":"C1:1.0","link":"https://slack.com/x"}]},
		{"title":"Update roadmap page","sources":[{"type":"notion","id":"page1","link":"https://www.notion.so/page1"}]}
	]`

	events := drain(t, f.service().Generate(context.Background(), uuid.New()))

	assertSequence(t, events,
		"status:slack", "status:notion", "status:collecting", "status:ai", "status:saving",
		"todo", "todo", "status:complete", "done")

	done := events[len(events)-1]
	if len(done.Todos) != 2 {
		t.Fatalf("Expected 2 todos in done event, got %d", len(done.Todos))
	}
	if done.Todos[0].Priority != models.PriorityHigh {
		t.Errorf("Expected first todo priority high, got %s", done.Todos[0].Priority)
	}
	if done.Todos[1].Priority != models.PriorityMedium {
		t.Errorf("Expected default priority medium, got %s", done.Todos[1].Priority)
	}
	if len(f.todos.created) != 2 {
		t.Errorf("Expected 2 persisted todos, got %d", len(f.todos.created))
	}
	if f.generator.calls != 1 {
		t.Errorf("Expected one model call, got %d", f.generator.calls)
	}
}

func TestGenerate_EmptyRunSkipsModel(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.creds.connected[models.ProviderGmail] = true
	f.fetchers = []sources.Fetcher{staticFetcher(models.ProviderGmail)}

	events := drain(t, f.service().Generate(context.Background(), uuid.New()))

	assertSequence(t, events, "status:gmail", "status:collecting", "done")
	done := events[len(events)-1]
	if done.Todos == nil || len(done.Todos) != 0 {
		t.Errorf("Expected empty todo list, got %v", done.Todos)
	}
	if done.Message == "" {
		t.Error("Expected explanatory message on empty run")
	}
	if f.generator.calls != 0 {
		t.Errorf("Expected no model call, got %d", f.generator.calls)
	}
}

func TestGenerate_NoConnectedProviders(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetchers = []sources.Fetcher{staticFetcher(models.ProviderSlack, slackItem("C1:1.0", "hello there team"))}

	events := drain(t, f.service().Generate(context.Background(), uuid.New()))

	assertSequence(t, events, "status:collecting", "done")
}

func TestGenerate_RoundTripSources(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.creds.connected[models.ProviderSlack] = true
	f.fetchers = []sources.Fetcher{staticFetcher(models.ProviderSlack, slackItem("t1", "can you review PR #42?"))}
	f.generator.output = "```json\n" +
		`[{"title":"Review PR #42","sources":[{"type":"email","id":"t1","link":"https://slack.com/archives/C1/p1"}]}]` +
		"\n```"

	events := drain(t, f.service().Generate(context.Background(), uuid.New()))

	var todos []*models.Todo
	for _, ev := range events {
		if ev.Type == EventTodo {
			todos = append(todos, ev.Todo)
		}
	}
	if len(todos) != 1 {
		t.Fatalf("Expected 1 todo event, got %d (%v)", len(todos), describe(events))
	}
	got := todos[0]
	if got.Title != "Review PR #42" {
		t.Errorf("Expected title 'Review PR #42', got %q", got.Title)
	}
	if len(got.Sources) != 1 || got.Sources[0].ID != "t1" {
		t.Fatalf("Expected source t1, got %+v", got.Sources)
	}
	if got.Sources[0].Type != models.SourceTypeSlack {
		t.Errorf("Expected source type taken from collected item, got %s", got.Sources[0].Type)
	}
	if !strings.Contains(f.generator.prompt, "t1") {
		t.Error("Expected prompt to reference the collected item id")
	}
}

func TestGenerate_SourceGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
	}{
		{"empty sources", `[{"title":"Do the thing","sources":[]}]`},
		{"missing sources", `[{"title":"Do the thing"}]`},
		{"source without link", `[{"title":"Do the thing","sources":[{"type":"slack","id":"C1:1.0"}]}]`},
		{"unknown source id", `[{"title":"Do the thing","sources":[{"type":"slack","id":"C9:9.9","link":"https://x"}]}]`},
		{"blank title", `[{"title":"   ","sources":[{"type":"slack","id":"C1:1.0","link":"https://x"}]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			f.creds.connected[models.ProviderSlack] = true
			f.fetchers = []sources.Fetcher{staticFetcher(models.ProviderSlack, slackItem("C1:1.0", "something to do"))}
			f.generator.output = tt.output

			events := drain(t, f.service().Generate(context.Background(), uuid.New()))

			assertSequence(t, events,
				"status:slack", "status:collecting", "status:ai", "status:saving", "status:complete", "done")
			if len(f.todos.created) != 0 {
				t.Errorf("Expected no persisted todos, got %d", len(f.todos.created))
			}
		})
	}
}

func TestGenerate_SettingsMissing(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.settings.err = fmt.Errorf("settings: %w", database.ErrNotFound)

	events := drain(t, f.service().Generate(context.Background(), uuid.New()))

	assertSequence(t, events, "error")
	if !errors.Is(events[0].Err, ErrSettingsNotFound) {
		t.Errorf("Expected ErrSettingsNotFound, got %v", events[0].Err)
	}
	if events[0].Message != "settings not found" {
		t.Errorf("Expected 'settings not found' message, got %q", events[0].Message)
	}
}

func TestGenerate_ModelFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		output  string
		err     error
		wantErr error
		wantMsg string
	}{
		{"provider error", "", errors.New("upstream 500"), ErrGeneration, "AI generation failed. Please try again."},
		{"unparseable output", "I could not find anything useful.", nil, ErrParse, "Could not read the AI response. Please try again."},
		{"model timeout", "", fmt.Errorf("chat completion: %w", context.DeadlineExceeded), ErrGeneration, "AI generation timed out. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			f.creds.connected[models.ProviderSlack] = true
			f.fetchers = []sources.Fetcher{staticFetcher(models.ProviderSlack, slackItem("C1:1.0", "something to do"))}
			f.generator.output = tt.output
			f.generator.err = tt.err

			events := drain(t, f.service().Generate(context.Background(), uuid.New()))

			assertSequence(t, events, "status:slack", "status:collecting", "status:ai", "error")
			last := events[len(events)-1]
			if !errors.Is(last.Err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, last.Err)
			}
			if last.Message != tt.wantMsg {
				t.Errorf("Expected message %q, got %q", tt.wantMsg, last.Message)
			}
		})
	}
}

func TestGenerate_ProviderFailureIsolated(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.creds.connected[models.ProviderSlack] = true
	f.creds.connected[models.ProviderGmail] = true
	f.fetchers = []sources.Fetcher{
		staticFetcher(models.ProviderSlack, slackItem("C1:1.0", "deploy checklist today")),
		&mockFetcher{
			provider: models.ProviderGmail,
			fetchFunc: func(context.Context, sources.Credentials, sources.Scope) ([]models.SourceItem, error) {
				panic("boom")
			},
		},
	}
	f.generator.output = `[{"title":"Run deploy checklist","sources":[{"id":"C1:1.0","link":"https://x"}]}]`

	events := drain(t, f.service().Generate(context.Background(), uuid.New()))

	assertSequence(t, events,
		"status:slack", "status:gmail", "status:collecting", "status:ai", "status:saving",
		"todo", "status:complete", "done")
}

func TestGenerate_PersistFailureSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.creds.connected[models.ProviderSlack] = true
	f.fetchers = []sources.Fetcher{staticFetcher(models.ProviderSlack, slackItem("C1:1.0", "two things to do"))}
	f.todos.createFunc = func(todo *models.Todo) error {
		if todo.Title == "Broken one" {
			return errors.New("insert failed")
		}
		return nil
	}
	f.generator.output = `[
		{"title":"Broken one","sources":[{"id":"C1:1.0","link":"https://x"}]},
		{"title":"Working one","sources":[{"id":"C1:1.0","link":"https://x"}]}
	]`

	events := drain(t, f.service().Generate(context.Background(), uuid.New()))

	assertSequence(t, events,
		"status:slack", "status:collecting", "status:ai", "status:saving", "todo", "status:complete", "done")
	if got := events[len(events)-1].Todos; len(got) != 1 || got[0].Title != "Working one" {
		t.Errorf("Expected only 'Working one' saved, got %+v", got)
	}
}

func TestGenerate_Deduplication(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.creds.connected[models.ProviderSlack] = true
	f.fetchers = []sources.Fetcher{staticFetcher(models.ProviderSlack, slackItem("C1:1.0", "budget and report"))}
	f.todos.titles = []string{"Submit quarterly report"}
	f.generator.output = `[
		{"title":"Submit quarterly reports","sources":[{"id":"C1:1.0","link":"https://x"}]},
		{"title":"Prepare budget review","sources":[{"id":"C1:1.0","link":"https://x"}]},
		{"title":"Prepare budget reviews","sources":[{"id":"C1:1.0","link":"https://x"}]}
	]`

	events := drain(t, f.service().Generate(context.Background(), uuid.New()))

	done := events[len(events)-1]
	if done.Type != EventDone {
		t.Fatalf("Expected done event, got %v", describe(events))
	}
	if len(done.Todos) != 1 || done.Todos[0].Title != "Prepare budget review" {
		t.Errorf("Expected only 'Prepare budget review', got %+v", done.Todos)
	}
}

func TestGenerate_AllowListsPassedToFetchers(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.settings.settings = &models.UserSettings{
		SlackChannelIDs: []string{"C1", "general"},
		NotionPageIDs:   []string{"abc"},
	}
	f.creds.connected[models.ProviderSlack] = true
	f.creds.connected[models.ProviderNotion] = true

	var mu sync.Mutex
	scopes := map[models.Provider][]string{}
	record := func(p models.Provider) *mockFetcher {
		return &mockFetcher{
			provider: p,
			fetchFunc: func(_ context.Context, creds sources.Credentials, scope sources.Scope) ([]models.SourceItem, error) {
				mu.Lock()
				defer mu.Unlock()
				scopes[p] = scope.AllowList
				if creds.AccessToken != "token-"+string(p) {
					t.Errorf("Expected %s credentials, got %q", p, creds.AccessToken)
				}
				return nil, nil
			},
		}
	}
	f.fetchers = []sources.Fetcher{record(models.ProviderSlack), record(models.ProviderNotion)}

	drain(t, f.service().Generate(context.Background(), uuid.New()))

	if strings.Join(scopes[models.ProviderSlack], ",") != "C1,general" {
		t.Errorf("Expected slack allow-list, got %v", scopes[models.ProviderSlack])
	}
	if strings.Join(scopes[models.ProviderNotion], ",") != "abc" {
		t.Errorf("Expected notion allow-list, got %v", scopes[models.ProviderNotion])
	}
}

func TestGenerate_CancelledConsumer(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.creds.connected[models.ProviderSlack] = true
	f.fetchers = []sources.Fetcher{&mockFetcher{
		provider: models.ProviderSlack,
		fetchFunc: func(ctx context.Context, _ sources.Credentials, _ sources.Scope) ([]models.SourceItem, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	events := f.service().Generate(ctx, uuid.New())
	<-events
	cancel()

	for ev := range events {
		if ev.Type == EventDone {
			t.Error("Expected no done event after cancellation")
		}
	}
	if f.generator.calls != 0 {
		t.Errorf("Expected no model call after cancellation, got %d", f.generator.calls)
	}
}

func TestEventMarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"status", statusEvent(StepAI, "Generating todos"), `{"type":"status","step":"ai","message":"Generating todos"}`},
		{"done without todos", Event{Type: EventDone}, `{"type":"done","todos":[]}`},
		{"done with message", Event{Type: EventDone, Message: "nothing new"}, `{"type":"done","todos":[],"message":"nothing new"}`},
		{"error hides cause", Event{Type: EventError, Message: "failed", Err: errors.New("secret")}, `{"type":"error","message":"failed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Marshal error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
