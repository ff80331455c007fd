package softgpu

import (
	"fmt"
)

// HazardKind classifies a synchronization error observed during execution.
type HazardKind string

const (
	// HazardRace is a conflicting access by two passes with nothing ordering
	// them.
	HazardRace HazardKind = "race"
	// HazardOwnership is a read of an exclusive resource on a queue family
	// that never acquired it.
	HazardOwnership HazardKind = "ownership"
)

// Hazard is one detected synchronization error.
type Hazard struct {
	Kind     HazardKind
	Resource string
	First    string
	Second   string
	Family   int
}

func (h Hazard) String() string {
	return fmt.Sprintf("%s on %s: %s / %s (family %d)", h.Kind, h.Resource, h.First, h.Second, h.Family)
}

func (d *Device) hazard(h Hazard) {
	key := h.String()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hazardSeen[key] {
		return
	}
	d.hazardSeen[key] = true
	d.hazards = append(d.hazards, h)
}

// Hazards returns the distinct hazards seen so far.
func (d *Device) Hazards() []Hazard {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Hazard(nil), d.hazards...)
}

// HazardsOn returns the hazards seen on the named resource.
func (d *Device) HazardsOn(resource string) []Hazard {
	var out []Hazard
	for _, h := range d.Hazards() {
		if h.Resource == resource {
			out = append(out, h)
		}
	}
	return out
}

// checkSegment reports every pair of accesses to the same resource by two
// different passes, at least one of them a write, inside a span of work with
// no synchronization between them.
func (d *Device) checkSegment(family int, seg []*op) {
	for i := 0; i < len(seg); i++ {
		for j := i + 1; j < len(seg); j++ {
			a, b := seg[i], seg[j]
			if a.pass == b.pass {
				continue
			}
			for _, r := range conflicts(a, b) {
				d.hazard(Hazard{Kind: HazardRace, Resource: r.name, First: a.pass, Second: b.pass, Family: family})
			}
		}
	}
}

func conflicts(a, b *op) []*Resource {
	var out []*Resource
	for _, w := range a.writes {
		if b.touches(w) {
			out = append(out, w)
		}
	}
	for _, w := range b.writes {
		if a.reads.has(w) {
			out = append(out, w)
		}
	}
	return out
}
