package embedded

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var (
	ErrUnknownTask     = errors.New("unknown task")
	ErrDuplicateTask   = errors.New("task already registered")
	ErrNoScriptEngine  = errors.New("no script engine for language")
	ErrUnknownSchedule = errors.New("unknown schedule")
)

// TaskContext is handed to a running task.
type TaskContext struct {
	Manager *CacheManager
	// Cache is nil unless the execution named one.
	Cache  *Cache
	Params map[string]string
}

type TaskFunc func(ctx context.Context, tc TaskContext) (any, error)

// TaskInfo describes a registered task or script.
type TaskInfo struct {
	Name        string
	Type        string
	Mode        string
	Parameters  []string
	AllowedRole string
}

// Execution is a running task.
type Execution struct {
	ID    string
	Name  string
	Start time.Time
	Where string
	What  string
}

// Script is a stored script task. Its header comment declares the language and the parameters,
// as in "// mode=local,language=javascript,parameters=[a,b]".
type Script struct {
	Name       string
	Body       string
	Language   string
	Mode       string
	Parameters []string
}

type task struct {
	info TaskInfo
	fn   TaskFunc
}

// TaskManager registers, executes and schedules server tasks.
type TaskManager struct {
	mgr    *CacheManager
	logger *slog.Logger
	cron   *cron.Cron

	mu        sync.Mutex
	tasks     map[string]task
	scripts   map[string]Script
	running   map[string]Execution
	schedules map[string]cron.EntryID
}

func newTaskManager(mgr *CacheManager, logger *slog.Logger) *TaskManager {
	return &TaskManager{
		mgr:       mgr,
		logger:    logger,
		cron:      cron.New(),
		tasks:     make(map[string]task),
		scripts:   make(map[string]Script),
		running:   make(map[string]Execution),
		schedules: make(map[string]cron.EntryID),
	}
}

func (m *TaskManager) start() { m.cron.Start() }

func (m *TaskManager) stop(ctx context.Context) {
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Register adds a task implemented in Go.
func (m *TaskManager) Register(info TaskInfo, fn TaskFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[info.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, info.Name)
	}
	if info.Type == "" {
		info.Type = "native"
	}
	if info.Mode == "" {
		info.Mode = "ONE_NODE"
	}
	m.tasks[info.Name] = task{info: info, fn: fn}
	return nil
}

// Tasks lists tasks and scripts by name.
func (m *TaskManager) Tasks() []TaskInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskInfo, 0, len(m.tasks)+len(m.scripts))
	for _, t := range m.tasks {
		out = append(out, t.info)
	}
	for _, s := range m.scripts {
		out = append(out, TaskInfo{Name: s.Name, Type: "script", Mode: strings.ToUpper(s.Mode), Parameters: s.Parameters})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs a task synchronously. cacheName is optional.
func (m *TaskManager) Execute(ctx context.Context, name, cacheName string, params map[string]string) (any, error) {
	m.mu.Lock()
	t, ok := m.tasks[name]
	script, isScript := m.scripts[name]
	m.mu.Unlock()
	if !ok {
		if isScript {
			return nil, fmt.Errorf("%w %s: %s", ErrNoScriptEngine, script.Language, name)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	tc := TaskContext{Manager: m.mgr, Params: params}
	if cacheName != "" {
		c, err := m.mgr.GetCache(ctx, cacheName)
		if err != nil {
			return nil, err
		}
		tc.Cache = c
	}

	exec := Execution{ID: uuid.NewString(), Name: name, Start: time.Now(), Where: m.mgr.Address(), What: cacheName}
	m.mu.Lock()
	m.running[exec.ID] = exec
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.running, exec.ID)
		m.mu.Unlock()
	}()

	res, err := t.fn(ctx, tc)
	if err != nil {
		m.logger.Warn("task failed", "task", name, "id", exec.ID, "err", err)
		m.mgr.events.Log(LevelError, CategoryTasks, name, fmt.Sprintf("task %s failed: %v", name, err))
		return nil, err
	}
	m.mgr.events.Log(LevelInfo, CategoryTasks, name, fmt.Sprintf("task %s executed", name))
	return res, nil
}

// Running lists executions in progress, oldest first.
func (m *TaskManager) Running() []Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Execution, 0, len(m.running))
	for _, e := range m.running {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Schedule runs a task on a cron spec and returns the schedule id.
func (m *TaskManager) Schedule(spec, name, cacheName string, params map[string]string) (string, error) {
	id := uuid.NewString()
	entry, err := m.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := m.Execute(ctx, name, cacheName, params); err != nil {
			m.logger.Error("scheduled task failed", "task", name, "schedule", id, "err", err)
		}
	})
	if err != nil {
		return "", fmt.Errorf("schedule %s with %q: %w", name, spec, err)
	}
	m.mu.Lock()
	m.schedules[id] = entry
	m.mu.Unlock()
	return id, nil
}

func (m *TaskManager) Unschedule(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.schedules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, id)
	}
	m.cron.Remove(entry)
	delete(m.schedules, id)
	return nil
}

var scriptHeader = regexp.MustCompile(`^\s*//\s*(.*)$`)

// AddScript stores or replaces a script.
func (m *TaskManager) AddScript(name, body string) error {
	s := Script{Name: name, Body: body, Language: "javascript", Mode: "local"}
	first, _, _ := strings.Cut(body, "\n")
	if h := scriptHeader.FindStringSubmatch(first); h != nil {
		if err := parseScriptHeader(h[1], &s); err != nil {
			return fmt.Errorf("script %s: %w", name, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, name)
	}
	m.scripts[name] = s
	return nil
}

func parseScriptHeader(h string, s *Script) error {
	for h = strings.TrimSpace(h); h != ""; h = strings.TrimSpace(h) {
		k, rest, ok := strings.Cut(h, "=")
		if !ok {
			return fmt.Errorf("malformed header near %q", h)
		}
		var v string
		if strings.HasPrefix(rest, "[") {
			end := strings.Index(rest, "]")
			if end < 0 {
				return fmt.Errorf("unterminated list for %s", k)
			}
			v, rest = rest[1:end], rest[end+1:]
		} else {
			v, rest, _ = strings.Cut(rest, ",")
			rest = "," + rest
		}
		h = strings.TrimPrefix(strings.TrimSpace(rest), ",")
		switch strings.TrimSpace(k) {
		case "language":
			s.Language = strings.TrimSpace(v)
		case "mode":
			s.Mode = strings.TrimSpace(v)
		case "parameters":
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					s.Parameters = append(s.Parameters, p)
				}
			}
		}
	}
	return nil
}

func (m *TaskManager) Script(name string) (Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scripts[name]
	if !ok {
		return Script{}, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s, nil
}

func (m *TaskManager) RemoveScript(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scripts[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	delete(m.scripts, name)
	return nil
}
