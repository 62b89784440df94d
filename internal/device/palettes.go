package device

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/store"
)

const (
	bucketPalettes = "palettes"

	// defaultPaletteDelay spaces out palette writes so strips on the same
	// controller are not flooded.
	defaultPaletteDelay = 50 * time.Millisecond
)

// Palette is a named list of hex colours spread over a light's segments.
type Palette struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Colors []string `json:"colors"`
}

// Palettes manages colour palettes persisted in the document store and
// applies them to devices.
type Palettes struct {
	coll   *store.Collection[Palette]
	mu     sync.Mutex
	logger Logger
	now    func() time.Time
	delay  time.Duration
}

// NewPalettes loads the palettes collection from db.
func NewPalettes(db *store.DB) (*Palettes, error) {
	coll, err := store.NewCollection[Palette](db, bucketPalettes)
	if err != nil {
		return nil, fmt.Errorf("loading palettes: %w", err)
	}
	return &Palettes{
		coll:   coll,
		logger: noopLogger{},
		now:    time.Now,
		delay:  defaultPaletteDelay,
	}, nil
}

// SetLogger sets the logger used when applying palettes.
func (p *Palettes) SetLogger(logger Logger) {
	p.logger = logger
}

// List returns every palette in creation order.
func (p *Palettes) List() []Palette {
	all := p.coll.Current()
	out := make([]Palette, 0, len(all))
	for _, pal := range all {
		out = append(out, pal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the palette with id.
func (p *Palettes) Get(id string) (Palette, bool) {
	return p.coll.Get(id)
}

// Create stores a new palette and returns its id.
//
// Returns:
//   - string: Generated palette id
//   - error: ErrInvalidPalette if it has no colours or an unparseable one
func (p *Palettes) Create(pal Palette) (string, error) {
	if err := validatePalette(pal); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pal.ID = generateID("palette", p.now())
	if err := p.coll.Put(pal.ID, pal); err != nil {
		return "", fmt.Errorf("creating palette: %w", err)
	}
	return pal.ID, nil
}

// Update replaces the palette with id. Returns false if it does not exist.
func (p *Palettes) Update(id string, pal Palette) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.coll.Get(id); !ok {
		return false, nil
	}
	if err := validatePalette(pal); err != nil {
		return false, err
	}
	pal.ID = id
	if err := p.coll.Put(id, pal); err != nil {
		return false, fmt.Errorf("updating palette: %w", err)
	}
	return true, nil
}

// Delete removes the palette with id. Returns false if it does not exist.
func (p *Palettes) Delete(id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.coll.Get(id); !ok {
		return false, nil
	}
	if err := p.coll.Delete(id); err != nil {
		return false, fmt.Errorf("deleting palette: %w", err)
	}
	return true, nil
}

func validatePalette(pal Palette) error {
	if len(pal.Colors) == 0 {
		return fmt.Errorf("%w: palette must have at least one color", ErrInvalidPalette)
	}
	for _, c := range pal.Colors {
		if _, err := cluster.ParseHex(c); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPalette, err)
		}
	}
	return nil
}

// Apply spreads the palette over each device's colour segments. Every pass
// over the palette is shuffled, so adjacent segments vary between runs.
// Devices are handled one at a time with a short pause between them.
//
// Returns true only if every device accepted its colours; a device without
// a full-colour ColorControl counts as a failure.
func (p *Palettes) Apply(ctx context.Context, devices []*Device, pal Palette) bool {
	colors := make([]cluster.Color, 0, len(pal.Colors))
	for _, hex := range pal.Colors {
		c, err := cluster.ParseHex(hex)
		if err != nil {
			p.logger.Error("invalid palette colour", "palette_id", pal.ID, "color", hex, "error", err)
			return false
		}
		colors = append(colors, c)
	}
	if len(colors) == 0 {
		return false
	}

	ok := true
	for i, d := range devices {
		if i > 0 && !sleepCtx(ctx, p.delay) {
			return false
		}
		if !p.applyToDevice(ctx, d, colors) {
			ok = false
		}
	}
	return ok
}

func (p *Palettes) applyToDevice(ctx context.Context, d *Device, colors []cluster.Color) bool {
	cc, found := ClusterOf[cluster.ColorControlXY](d, cluster.NameColorControl)
	if !found {
		p.logger.Warn("device has no colour control", "device_id", d.ID())
		return false
	}

	segments := max(cc.SegmentCount(), 1)
	assigned := make([]cluster.Color, 0, segments+len(colors))
	for len(assigned) < segments {
		pass := append([]cluster.Color(nil), colors...)
		rand.Shuffle(len(pass), func(i, j int) { pass[i], pass[j] = pass[j], pass[i] })
		assigned = append(assigned, pass...)
	}
	assigned = assigned[:segments]

	if err := cc.SetColor(ctx, assigned, 0); err != nil {
		p.logger.Error("applying palette", "device_id", d.ID(), "error", err)
		return false
	}
	p.logger.Info("palette applied", "device_id", d.ID(), "segments", segments)
	return true
}

// sleepCtx waits for d or until ctx is done. Returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
