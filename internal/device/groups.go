package device

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/store"
)

const bucketGroups = "groups"

// Position is a group's placement on the dashboard floor plan.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Group is a user-defined set of devices that scenes can target as one.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	DeviceIDs []string  `json:"deviceIds"`
	Color     string    `json:"color,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	Position  *Position `json:"position,omitempty"`
}

// Groups manages device groups persisted in the document store.
type Groups struct {
	coll *store.Collection[Group]
	mu   sync.Mutex // Serialises name checks with writes
	now  func() time.Time
}

// NewGroups loads the groups collection from db.
func NewGroups(db *store.DB) (*Groups, error) {
	coll, err := store.NewCollection[Group](db, bucketGroups)
	if err != nil {
		return nil, fmt.Errorf("loading groups: %w", err)
	}
	return &Groups{coll: coll, now: time.Now}, nil
}

// List returns every group in creation order.
func (g *Groups) List() []Group {
	all := g.coll.Current()
	out := make([]Group, 0, len(all))
	for _, grp := range all {
		out = append(out, grp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the group with id.
func (g *Groups) Get(id string) (Group, bool) {
	return g.coll.Get(id)
}

// Create stores a new group and returns its id. Names must be unique. A
// group without a colour gets the pastel colour of its name.
//
// Returns:
//   - string: Generated group id
//   - error: ErrInvalidGroup for an empty name, ErrGroupNameTaken for a duplicate
func (g *Groups) Create(grp Group) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkName("", grp.Name); err != nil {
		return "", err
	}

	grp.ID = generateID("group", g.now())
	if grp.Color == "" {
		grp.Color = PastelColor(grp.Name)
	}
	if err := g.coll.Put(grp.ID, grp); err != nil {
		return "", fmt.Errorf("creating group: %w", err)
	}
	return grp.ID, nil
}

// Update replaces the group with id. The existing colour is kept unless grp
// supplies one.
//
// Returns:
//   - bool: false if the group does not exist
//   - error: ErrGroupNameTaken if another group has the name, or a write error
func (g *Groups) Update(id string, grp Group) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.coll.Get(id)
	if !ok {
		return false, nil
	}
	if err := g.checkName(id, grp.Name); err != nil {
		return false, err
	}

	grp.ID = id
	switch {
	case grp.Color != "":
	case existing.Color != "":
		grp.Color = existing.Color
	default:
		grp.Color = PastelColor(grp.Name)
	}
	if err := g.coll.Put(id, grp); err != nil {
		return false, fmt.Errorf("updating group: %w", err)
	}
	return true, nil
}

// Delete removes the group with id. Returns false if it does not exist.
func (g *Groups) Delete(id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.coll.Get(id); !ok {
		return false, nil
	}
	if err := g.coll.Delete(id); err != nil {
		return false, fmt.Errorf("deleting group: %w", err)
	}
	return true, nil
}

// UpdatePosition moves the group on the floor plan; nil clears the position.
// Returns false if the group does not exist.
func (g *Groups) UpdatePosition(id string, pos *Position) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	grp, ok := g.coll.Get(id)
	if !ok {
		return false, nil
	}
	if pos != nil {
		p := *pos
		pos = &p
	}
	grp.Position = pos
	if err := g.coll.Put(id, grp); err != nil {
		return false, fmt.Errorf("updating group position: %w", err)
	}
	return true, nil
}

func (g *Groups) checkName(selfID, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidGroup)
	}
	for id, other := range g.coll.Current() {
		if id != selfID && other.Name == name {
			return fmt.Errorf("%w: group with name %q already exists", ErrGroupNameTaken, name)
		}
	}
	return nil
}

// generateID returns "<prefix>_<unix ms>_<7 base36 chars>". Ids sort in
// creation order for ids created in different milliseconds.
func generateID(prefix string, now time.Time) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	var suffix [7]byte
	for i := range suffix {
		suffix[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return prefix + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + string(suffix[:])
}
