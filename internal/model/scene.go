package model

// Scene is an ordered container of SceneObjects.
type Scene struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Objects     []*SceneObject `json:"objects"`
	Timestamps
}

// SceneObject is a named, typed instance placed in a Scene.
type SceneObject struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"` // snake_case, unique within the scene
	Type       string       `json:"type"` // ObjectType name registered in internal/objecttype
	Pose       *Pose        `json:"pose,omitempty"`
	Parameters []*Parameter `json:"parameters"`
}

// Clone returns a deep-enough copy of the Scene for safe handoff across the
// internal mutex boundary (internal/state keeps the canonical copy; callers
// that need a snapshot to serialize a welcome burst call this).
func (s *Scene) Clone() *Scene {
	if s == nil {
		return nil
	}
	clone := &Scene{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Timestamps:  s.Timestamps,
		Objects:     make([]*SceneObject, len(s.Objects)),
	}
	for i, o := range s.Objects {
		objCopy := *o
		if o.Pose != nil {
			poseCopy := *o.Pose
			objCopy.Pose = &poseCopy
		}
		objCopy.Parameters = append([]*Parameter(nil), o.Parameters...)
		clone.Objects[i] = &objCopy
	}
	return clone
}
