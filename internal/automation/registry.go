package automation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/store"
)

const bucketScenes = "scenes"

// Logger defines the logging interface used by the Registry and Engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry stores scene definitions in the document store.
//
// Scenes handed out are deep copies; callers can safely modify them.
//
// All public methods are thread-safe.
type Registry struct {
	coll   *store.Collection[Scene]
	mu     sync.Mutex // Serialises read-modify-write of a scene
	logger Logger
	now    func() time.Time
}

// NewRegistry loads the scenes collection from db.
func NewRegistry(db *store.DB) (*Registry, error) {
	coll, err := store.NewCollection[Scene](db, bucketScenes)
	if err != nil {
		return nil, fmt.Errorf("loading scenes: %w", err)
	}
	return &Registry{
		coll:   coll,
		logger: noopLogger{},
		now:    time.Now,
	}, nil
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// GetScene returns the scene with id.
func (r *Registry) GetScene(id string) (*Scene, bool) {
	s, ok := r.coll.Get(id)
	if !ok {
		return nil, false
	}
	return s.DeepCopy(), true
}

// ListScenes returns every scene in creation order.
func (r *Registry) ListScenes() []Scene {
	return sortedScenes(r.coll.Current())
}

func sortedScenes(all map[string]Scene) []Scene {
	scenes := make([]Scene, 0, len(all))
	for _, s := range all {
		scenes = append(scenes, *s.DeepCopy())
	}
	sort.Slice(scenes, func(i, j int) bool {
		if !scenes[i].CreatedAt.Equal(scenes[j].CreatedAt) {
			return scenes[i].CreatedAt.Before(scenes[j].CreatedAt)
		}
		return scenes[i].ID < scenes[j].ID
	})
	return scenes
}

// Subscribe calls fn with the full scene list now and after every change.
// Returns a function that stops the subscription.
func (r *Registry) Subscribe(fn func(scenes []Scene)) func() {
	return r.coll.Subscribe(func(all map[string]Scene, _ bool) {
		fn(sortedScenes(all))
	})
}

// CreateScene validates and stores a new scene. The id and timestamps are
// assigned here; any supplied values are ignored.
//
// Returns:
//   - *Scene: The stored scene
//   - error: A validation error wrapping ErrInvalidScene and friends, or a
//     store error
func (r *Registry) CreateScene(scene Scene) (*Scene, error) {
	if err := ValidateScene(&scene); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	scene.ID = GenerateSceneID(now)
	scene.CreatedAt = now
	scene.UpdatedAt = now
	stored := scene.DeepCopy()

	if err := r.coll.Put(stored.ID, *stored); err != nil {
		return nil, fmt.Errorf("creating scene: %w", err)
	}

	r.logger.Info("scene created", "id", stored.ID, "title", stored.Title)
	return stored.DeepCopy(), nil
}

// UpdateScene validates and replaces the scene with id, keeping its
// creation time.
//
// Returns:
//   - *Scene: The stored scene
//   - error: ErrSceneNotFound, a validation error, or a store error
func (r *Registry) UpdateScene(id string, scene Scene) (*Scene, error) {
	if err := ValidateScene(&scene); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.coll.Get(id)
	if !ok {
		return nil, ErrSceneNotFound
	}

	scene.ID = id
	scene.CreatedAt = existing.CreatedAt
	scene.UpdatedAt = r.now().UTC()
	stored := scene.DeepCopy()

	if err := r.coll.Put(id, *stored); err != nil {
		return nil, fmt.Errorf("updating scene: %w", err)
	}

	r.logger.Info("scene updated", "id", id, "title", stored.Title)
	return stored.DeepCopy(), nil
}

// DeleteScene removes the scene with id.
// Returns ErrSceneNotFound if it does not exist.
func (r *Registry) DeleteScene(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.coll.Get(id); !ok {
		return ErrSceneNotFound
	}
	if err := r.coll.Delete(id); err != nil {
		return fmt.Errorf("deleting scene: %w", err)
	}

	r.logger.Info("scene deleted", "id", id)
	return nil
}

// GetSceneCount returns the number of stored scenes.
func (r *Registry) GetSceneCount() int {
	return r.coll.Len()
}
