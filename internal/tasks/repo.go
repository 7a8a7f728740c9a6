package tasks

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// MaxTitleLen is the widest title the tasks table holds, in characters.
const MaxTitleLen = 100

var (
	ErrTitleRequired   = errors.New("title required")
	ErrTitleTooLong    = errors.New("title too long")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrNotFound        = errors.New("task not found")
)

type Repository interface {
	List(ctx context.Context) ([]Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	Create(ctx context.Context, in NewTask) (Task, error)
	MarkCompleted(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// normalize enforces the invariants shared by every Repository.
func normalize(in NewTask) (NewTask, error) {
	if strings.TrimSpace(in.Title) == "" {
		return NewTask{}, ErrTitleRequired
	}
	// SQLite does not enforce VARCHAR(100), so both stores check here.
	if utf8.RuneCountInString(in.Title) > MaxTitleLen {
		return NewTask{}, ErrTitleTooLong
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if !in.Priority.Valid() {
		return NewTask{}, ErrInvalidPriority
	}
	if in.DueDate != nil {
		d := in.DueDate.UTC().Truncate(24 * time.Hour)
		in.DueDate = &d
	}
	return in, nil
}

type InMemoryRepo struct {
	mu    sync.Mutex
	seq   int64
	store map[int64]Task
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		store: make(map[int64]Task),
	}
}

func (r *InMemoryRepo) Create(_ context.Context, in NewTask) (Task, error) {
	in, err := normalize(in)
	if err != nil {
		return Task{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	t := Task{
		ID:          r.seq,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
	}
	r.store[t.ID] = t
	return t, nil
}

func (r *InMemoryRepo) List(_ context.Context) ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Task, 0, len(r.store))
	for _, t := range r.store {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *InMemoryRepo) Get(_ context.Context, id int64) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.store[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (r *InMemoryRepo) MarkCompleted(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.store[id]
	if !ok {
		return ErrNotFound
	}
	t.Completed = true
	r.store[id] = t
	return nil
}

func (r *InMemoryRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store[id]; !ok {
		return ErrNotFound
	}
	delete(r.store, id)
	return nil
}

func (r *InMemoryRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.store), nil
}
