package state

import (
	"fmt"

	"github.com/robofit/arcor2-sub002/internal/model"
)

// absolutizeAllLocked rewrites every action point's Position from
// parent-relative (the on-disk form) to absolute, in one pass: absolute
// positions are first computed for the whole set against the original
// relative values, then assigned, so conversion order cannot double-count
// an already-converted ancestor. Must be called with c.mu held.
func (c *Cached) absolutizeAllLocked() error {
	abs := make(map[string]model.Position, len(c.actionPoints))
	var resolve func(id string, seen map[string]bool) (model.Position, error)
	resolve = func(id string, seen map[string]bool) (model.Position, error) {
		if id == "" {
			return model.Position{}, nil
		}
		if p, ok := abs[id]; ok {
			return p, nil
		}
		if seen[id] {
			return model.Position{}, fmt.Errorf("cycle detected in action point parent chain at %q", id)
		}
		seen[id] = true

		if ap, ok := c.actionPoints[id]; ok {
			parentAbs, err := resolve(ap.ParentID, seen)
			if err != nil {
				return model.Position{}, err
			}
			p := addPositions(parentAbs, ap.Position)
			abs[id] = p
			return p, nil
		}
		if o, ok := c.objects[id]; ok && o.Pose != nil {
			return o.Pose.Position, nil
		}
		return model.Position{}, fmt.Errorf("unresolvable parent id %q", id)
	}

	for id := range c.actionPoints {
		if _, err := resolve(id, make(map[string]bool)); err != nil {
			return err
		}
	}
	for id, ap := range c.actionPoints {
		ap.Position = abs[id]
	}
	return nil
}

// parentAbsoluteLocked returns the absolute position of an action point's
// parent while the project is open, i.e. while every AP position is
// already absolute: an AP parent's own Position, a scene object's pose
// position, or the origin for a scene-rooted AP.
func (c *Cached) parentAbsoluteLocked(parentID string) (model.Position, error) {
	if parentID == "" {
		return model.Position{}, nil
	}
	if ap, ok := c.actionPoints[parentID]; ok {
		return ap.Position, nil
	}
	if o, ok := c.objects[parentID]; ok && o.Pose != nil {
		return o.Pose.Position, nil
	}
	return model.Position{}, fmt.Errorf("unresolvable parent id %q", parentID)
}

func addPositions(a, b model.Position) model.Position {
	return model.Position{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

func subPositions(a, b model.Position) model.Position {
	return model.Position{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

// RelativizeForSave returns a deep copy of project's action points with
// Position rewritten back to parent-relative form, the inverse of
// OpenProject's absolutization.
func (c *Cached) RelativizeForSave() ([]*model.ActionPoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*model.ActionPoint, len(c.project.ActionPoints))
	for i, ap := range c.project.ActionPoints {
		clone := *ap
		parentAbs, err := c.parentAbsoluteLocked(ap.ParentID)
		if err != nil {
			return nil, fmt.Errorf("relativize action point %s: %w", ap.ID, err)
		}
		clone.Position = subPositions(ap.Position, parentAbs)
		out[i] = &clone
	}
	return out, nil
}
