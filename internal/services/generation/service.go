// Package generation runs the collect, prompt, generate and save pipeline that turns a
// user's connected sources into todos, streaming progress as it goes.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/config"
	"github.com/benvon/todo-digest/internal/database"
	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/metrics"
	"github.com/benvon/todo-digest/internal/models"
	"github.com/benvon/todo-digest/internal/services/ai"
	"github.com/benvon/todo-digest/internal/services/dedup"
	"github.com/benvon/todo-digest/internal/services/prompt"
	"github.com/benvon/todo-digest/internal/services/sources"
	"github.com/benvon/todo-digest/internal/validation"
)

var (
	// ErrSettingsNotFound means the user has no settings record
	ErrSettingsNotFound = errors.New("settings not found")
	// ErrGeneration wraps failures of the model call
	ErrGeneration = errors.New("todo generation failed")
	// ErrParse means the model output held no usable JSON array
	ErrParse = errors.New("failed to parse generated todos")
)

const (
	defaultLLMTimeout   = 60 * time.Second
	defaultFetchTimeout = 30 * time.Second
	eventBuffer         = 16
)

// providerOrder fixes the order of per-provider status events
var providerOrder = []models.Provider{models.ProviderSlack, models.ProviderGmail, models.ProviderNotion}

// TodoStore is the persistence collaborator for todos
type TodoStore interface {
	ListRecentTitles(ctx context.Context, userID uuid.UUID, limit int) ([]string, error)
	Create(ctx context.Context, todo *models.Todo) error
}

// SettingsStore loads user settings. A missing record is an error wrapping database.ErrNotFound.
type SettingsStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error)
}

// CredentialStore loads provider credentials. A missing connection is an error wrapping database.ErrNotFound.
type CredentialStore interface {
	Get(ctx context.Context, userID uuid.UUID, provider models.Provider) (*models.Connection, error)
}

// Deps are the collaborators and limits of a Service
type Deps struct {
	Todos        TodoStore
	Settings     SettingsStore
	Credentials  CredentialStore
	Generator    ai.Generator
	Fetchers     []sources.Fetcher
	Limits       config.GenerationLimits
	LLMTimeout   time.Duration
	FetchTimeout time.Duration
	Location     *time.Location
	Logger       *zap.Logger
	Now          func() time.Time
	Tracer       trace.Tracer
}

// Service orchestrates generation runs. It holds no per-run state and is safe for concurrent use.
type Service struct {
	todos        TodoStore
	settings     SettingsStore
	credentials  CredentialStore
	generator    ai.Generator
	fetchers     map[models.Provider]sources.Fetcher
	limits       config.GenerationLimits
	llmTimeout   time.Duration
	fetchTimeout time.Duration
	location     *time.Location
	logger       *zap.Logger
	now          func() time.Time
	tracer       trace.Tracer
}

// NewService creates a generation service
func NewService(d Deps) *Service {
	s := &Service{
		todos:        d.Todos,
		settings:     d.Settings,
		credentials:  d.Credentials,
		generator:    d.Generator,
		fetchers:     make(map[models.Provider]sources.Fetcher, len(d.Fetchers)),
		limits:       d.Limits,
		llmTimeout:   d.LLMTimeout,
		fetchTimeout: d.FetchTimeout,
		location:     d.Location,
		logger:       logger.OrNop(d.Logger),
		now:          d.Now,
		tracer:       d.Tracer,
	}
	for _, f := range d.Fetchers {
		s.fetchers[f.Provider()] = f
	}
	if s.llmTimeout <= 0 {
		s.llmTimeout = defaultLLMTimeout
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = defaultFetchTimeout
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/benvon/todo-digest/internal/services/generation")
	}
	if s.limits == (config.GenerationLimits{}) {
		s.limits = config.DefaultLimits().Generation
	}
	return s
}

// Generate starts a run for userID and returns its event stream. The channel is closed
// after a done or error event, or early if ctx is cancelled.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID) <-chan Event {
	events := make(chan Event, eventBuffer)
	go func() {
		defer close(events)
		r := &run{Service: s, userID: userID, events: events, started: s.now()}
		r.execute(ctx)
	}()
	return events
}

// run is the state of one generation. It is owned by a single goroutine.
type run struct {
	*Service
	userID  uuid.UUID
	events  chan<- Event
	started time.Time
}

// collected holds fetched items per provider
type collected struct {
	byProvider map[models.Provider][]models.SourceItem
	total      int
}

func (r *run) execute(ctx context.Context) {
	ctx, span := r.tracer.Start(ctx, "generation.run", trace.WithAttributes(attribute.String("user_id", r.userID.String())))
	defer span.End()
	ctx = ai.WithUserID(ctx, r.userID.String())

	settings, err := r.settings.GetByUserID(ctx, r.userID)
	if err != nil || settings == nil {
		if err == nil || errors.Is(err, database.ErrNotFound) {
			err = ErrSettingsNotFound
		}
		r.fail(ctx, span, "settings not found", err)
		return
	}

	r.started = r.started.In(r.userLocation(settings))
	ctx = sources.WithLocation(ctx, r.started.Location())

	titles, err := r.todos.ListRecentTitles(ctx, r.userID, r.limits.DedupPoolSize)
	if err != nil {
		// Dedup falls back to within-run titles only
		r.logger.Warn("existing_titles_load_failed",
			zap.String("user_id", r.userID.String()),
			zap.String("error", logger.SanitizeError(err)))
		titles = nil
	}

	items, ok := r.collect(ctx, settings)
	if !ok {
		return
	}
	if !r.emit(ctx, statusEvent(StepCollecting, fmt.Sprintf("Collected %d items", items.total))) {
		return
	}
	if items.total == 0 {
		metrics.RecordRun("empty")
		r.emit(ctx, Event{Type: EventDone, Todos: []*models.Todo{}, Message: "No new items found in connected sources"})
		return
	}

	if !r.emit(ctx, statusEvent(StepAI, "Generating todos")) {
		return
	}
	elems, err := r.generate(ctx, titles, items)
	if err != nil {
		msg := "AI generation failed. Please try again."
		switch {
		case errors.Is(err, ErrParse):
			msg = "Could not read the AI response. Please try again."
		case ai.IsTimeout(err):
			msg = "AI generation timed out. Please try again."
		}
		r.fail(ctx, span, msg, err)
		return
	}

	if !r.emit(ctx, statusEvent(StepSaving, "Saving todos")) {
		return
	}
	saved, ok := r.save(ctx, elems, titles, items)
	if !ok {
		return
	}

	metrics.RecordRun("complete")
	span.SetAttributes(attribute.Int("todos_saved", len(saved)))
	if !r.emit(ctx, statusEvent(StepComplete, fmt.Sprintf("Created %d todos", len(saved)))) {
		return
	}
	r.emit(ctx, Event{Type: EventDone, Todos: saved})
}

// userLocation prefers the user's own time zone over the service default
func (r *run) userLocation(settings *models.UserSettings) *time.Location {
	if settings.Timezone != "" {
		if loc, err := time.LoadLocation(settings.Timezone); err == nil {
			return loc
		}
		r.logger.Debug("user_timezone_invalid", zap.String("timezone", settings.Timezone))
	}
	return r.location
}

// collect announces each connected provider, then fetches them concurrently.
// A provider failure only costs that provider's items.
func (r *run) collect(ctx context.Context, settings *models.UserSettings) (collected, bool) {
	type job struct {
		fetcher sources.Fetcher
		creds   sources.Credentials
		scope   sources.Scope
	}

	var jobs []job
	for _, provider := range providerOrder {
		fetcher, ok := r.fetchers[provider]
		if !ok {
			continue
		}
		conn, err := r.credentials.Get(ctx, r.userID, provider)
		if err != nil || conn == nil || conn.AccessToken == "" {
			if err != nil && !errors.Is(err, database.ErrNotFound) {
				r.logger.Warn("credentials_load_failed",
					zap.String("provider", string(provider)),
					zap.String("user_id", r.userID.String()),
					zap.String("error", logger.SanitizeError(err)))
			}
			continue
		}
		if !r.emit(ctx, statusEvent(Step(provider), fmt.Sprintf("Collecting from %s", provider))) {
			return collected{}, false
		}
		jobs = append(jobs, job{
			fetcher: fetcher,
			creds:   sources.Credentials{AccessToken: conn.AccessToken, TeamID: conn.TeamID},
			scope:   scopeFor(provider, settings),
		})
	}

	results := make([][]models.SourceItem, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.fetch(ctx, j.fetcher, j.creds, j.scope)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return collected{}, false
	}

	out := collected{byProvider: make(map[models.Provider][]models.SourceItem, len(jobs))}
	for i, j := range jobs {
		out.byProvider[j.fetcher.Provider()] = results[i]
		out.total += len(results[i])
	}
	return out, true
}

func (r *run) fetch(ctx context.Context, f sources.Fetcher, creds sources.Credentials, scope sources.Scope) (items []models.SourceItem) {
	provider := string(f.Provider())
	ctx, span := r.tracer.Start(ctx, "generation.fetch", trace.WithAttributes(attribute.String("provider", provider)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	start := time.Now()
	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("fetcher panic: %v", p)
			items = nil
		}
		metrics.RecordFetch(provider, len(items), time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			r.logger.Warn("source_fetch_failed",
				zap.String("provider", provider),
				zap.String("user_id", r.userID.String()),
				zap.String("error", logger.SanitizeError(err)))
		}
	}()

	items, err = f.Fetch(ctx, creds, scope)
	if err != nil {
		return nil
	}
	span.SetAttributes(attribute.Int("items", len(items)))
	return items
}

func scopeFor(provider models.Provider, settings *models.UserSettings) sources.Scope {
	switch provider {
	case models.ProviderSlack:
		return sources.Scope{AllowList: settings.SlackChannelIDs}
	case models.ProviderNotion:
		return sources.Scope{AllowList: settings.NotionPageIDs}
	default:
		return sources.Scope{}
	}
}

// generate builds the prompt, calls the model under a deadline and extracts the candidate array
func (r *run) generate(ctx context.Context, titles []string, items collected) ([]json.RawMessage, error) {
	ctx, span := r.tracer.Start(ctx, "generation.llm")
	defer span.End()

	text := prompt.Build(prompt.Input{
		Now:            r.started,
		ExistingTitles: titles,
		Slack:          items.byProvider[models.ProviderSlack],
		Gmail:          items.byProvider[models.ProviderGmail],
		Notion:         items.byProvider[models.ProviderNotion],
	}, prompt.Options{
		MaxTitles:         r.limits.PromptTitles,
		MaxItemsPerSource: r.limits.PromptItemsPerType,
		MinTodos:          r.limits.MinTodos,
		MaxTodos:          r.limits.MaxTodos,
	})
	span.SetAttributes(attribute.Int("prompt_length", len(text)))

	llmCtx, cancel := context.WithTimeout(ctx, r.llmTimeout)
	defer cancel()

	start := time.Now()
	raw, err := r.generator.GenerateTodos(llmCtx, text)
	metrics.RecordLLMCall(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	elems, err := ExtractJSONArray(raw)
	if err != nil {
		r.logger.Warn("generated_todos_parse_failed",
			zap.String("user_id", r.userID.String()),
			zap.String("response_preview", logger.Preview(raw, false)))
		span.RecordError(err)
		return nil, err
	}
	return elems, nil
}

// save accepts candidates in order against the rolling title pool and persists each one
func (r *run) save(ctx context.Context, elems []json.RawMessage, titles []string, items collected) ([]*models.Todo, bool) {
	ctx, span := r.tracer.Start(ctx, "generation.save", trace.WithAttributes(attribute.Int("candidates", len(elems))))
	defer span.End()

	known := make(map[string]models.SourceItem, items.total)
	for _, list := range items.byProvider {
		for _, item := range list {
			known[item.ID] = item
		}
	}

	pool := dedup.NewPool(titles, r.limits.DedupThreshold)
	saved := []*models.Todo{}
	for i, elem := range elems {
		if ctx.Err() != nil {
			return nil, false
		}

		candidate, reason := r.accept(elem, known, pool)
		if reason != "" {
			metrics.RecordRejection(reason)
			r.logger.Debug("candidate_rejected",
				zap.Int("index", i),
				zap.String("reason", reason),
				zap.String("title", logger.SanitizeString(candidate.Title, 200)))
			continue
		}

		todo := models.NewTodoFromCandidate(r.userID, candidate)
		if err := r.todos.Create(ctx, todo); err != nil {
			metrics.RecordRejection(metrics.RejectPersistFailed)
			r.logger.Warn("todo_persist_failed",
				zap.String("user_id", r.userID.String()),
				zap.String("error", logger.SanitizeError(err)))
			continue
		}

		pool.Add(todo.Title)
		metrics.TodosAccepted.Inc()
		saved = append(saved, todo)
		if !r.emit(ctx, Event{Type: EventTodo, Todo: todo}) {
			return nil, false
		}
	}
	return saved, true
}

// accept decodes and vets one candidate. A non-empty reason means rejection.
func (r *run) accept(elem json.RawMessage, known map[string]models.SourceItem, pool *dedup.Pool) (models.TodoCandidate, string) {
	var c models.TodoCandidate
	if err := json.Unmarshal(elem, &c); err != nil {
		return c, metrics.RejectInvalid
	}
	c.Title = validation.SanitizeText(c.Title)
	if err := validation.ValidateCandidate(c); err != nil {
		return c, metrics.RejectInvalid
	}

	c.Sources = resolveSources(c.Sources, known)
	if len(c.Sources) == 0 {
		return c, metrics.RejectNoSource
	}

	if _, dup := pool.Match(c.Title); dup {
		return c, metrics.RejectDuplicate
	}
	return c, ""
}

// resolveSources keeps references that carry an id and link and point at a collected item.
// The type is taken from the collected item.
func resolveSources(refs []models.TodoSource, known map[string]models.SourceItem) []models.TodoSource {
	out := make([]models.TodoSource, 0, len(refs))
	for _, ref := range refs {
		item, ok := known[ref.ID]
		if !ok {
			continue
		}
		ref.Type = item.Type
		if ref.Title == "" {
			ref.Title = item.Title
		}
		out = append(out, ref)
	}
	return validation.ValidSources(out)
}

// emit delivers an event unless the consumer has gone away
func (r *run) emit(ctx context.Context, ev Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// fail ends the run with an error event
func (r *run) fail(ctx context.Context, span trace.Span, message string, err error) {
	metrics.RecordRun("error")
	span.RecordError(err)
	span.SetStatus(codes.Error, message)
	r.logger.Warn("generation_failed",
		zap.String("user_id", r.userID.String()),
		zap.String("error", logger.SanitizeError(err)))
	r.emit(ctx, Event{Type: EventError, Message: message, Err: err})
}
