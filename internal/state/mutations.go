package state

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/robofit/arcor2-sub002/internal/model"
)

// UpsertObject adds or replaces a scene object.
func (c *Cached) UpsertObject(o *model.SceneObject) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.objects[o.ID]; ok {
		*existing = *o
	} else {
		c.scene.Objects = append(c.scene.Objects, o)
		c.objects[o.ID] = o
	}
	c.touchSceneLocked()
}

// DeleteObject removes a scene object by id.
func (c *Cached) DeleteObject(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.objects[id]; !ok {
		return fmt.Errorf("scene object %q not found", id)
	}
	delete(c.objects, id)
	for i, o := range c.scene.Objects {
		if o.ID == id {
			c.scene.Objects = append(c.scene.Objects[:i], c.scene.Objects[i+1:]...)
			break
		}
	}
	delete(c.objectsWithUpdatedPose, id)
	c.touchSceneLocked()
	return nil
}

// UpsertActionPoint adds or replaces an action point.
func (c *Cached) UpsertActionPoint(ap *model.ActionPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.actionPoints[ap.ID]; ok {
		*existing = *ap
	} else {
		c.project.ActionPoints = append(c.project.ActionPoints, ap)
		c.actionPoints[ap.ID] = ap
	}
	c.apParent[ap.ID] = ap.ParentID
	c.touchProjectLocked()
}

// RemoveActionPoint deletes an action point and cascades to its actions,
// orientations, and joint snapshots.
func (c *Cached) RemoveActionPoint(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ap, ok := c.actionPoints[id]
	if !ok {
		return fmt.Errorf("action point %q not found", id)
	}

	for _, a := range ap.Actions {
		delete(c.actions, a.ID)
	}
	for _, o := range ap.Orientations {
		delete(c.orientations, o.ID)
	}
	for _, j := range ap.Joints {
		delete(c.joints, j.ID)
	}

	delete(c.actionPoints, id)
	delete(c.apParent, id)
	for i, p := range c.project.ActionPoints {
		if p.ID == id {
			c.project.ActionPoints = append(c.project.ActionPoints[:i], c.project.ActionPoints[i+1:]...)
			break
		}
	}
	c.touchProjectLocked()
	return nil
}

// UpsertOrientation adds or replaces a named orientation owned by apID.
func (c *Cached) UpsertOrientation(apID string, o *model.NamedOrientation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ap, ok := c.actionPoints[apID]
	if !ok {
		return fmt.Errorf("action point %q not found", apID)
	}
	if existing, ok := c.orientations[o.ID]; ok {
		*existing.data = *o
	} else {
		ap.Orientations = append(ap.Orientations, o)
		c.orientations[o.ID] = orientationEntry{apID: apID, data: o}
	}
	c.touchProjectLocked()
	return nil
}

// UpsertAction adds or replaces an action owned by apID.
func (c *Cached) UpsertAction(apID string, a *model.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ap, ok := c.actionPoints[apID]
	if !ok {
		return fmt.Errorf("action point %q not found", apID)
	}
	if existing, ok := c.actions[a.ID]; ok {
		*existing = *a
	} else {
		ap.Actions = append(ap.Actions, a)
		c.actions[a.ID] = a
	}
	c.touchProjectLocked()
	return nil
}

// UpsertJoints adds or replaces a robot-joint snapshot owned by apID.
func (c *Cached) UpsertJoints(apID string, j *model.JointsSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ap, ok := c.actionPoints[apID]
	if !ok {
		return fmt.Errorf("action point %q not found", apID)
	}
	if existing, ok := c.joints[j.ID]; ok {
		*existing.data = *j
	} else {
		ap.Joints = append(ap.Joints, j)
		c.joints[j.ID] = jointsEntry{apID: apID, data: j}
	}
	c.touchProjectLocked()
	return nil
}

// UpsertLogicItem adds or replaces a logic graph edge.
func (c *Cached) UpsertLogicItem(li *model.LogicItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.project.LogicItems {
		if existing.ID == li.ID {
			c.project.LogicItems[i] = li
			c.touchProjectLocked()
			return
		}
	}
	c.project.LogicItems = append(c.project.LogicItems, li)
	c.touchProjectLocked()
}

// RemoveAction deletes an action by id.
func (c *Cached) RemoveAction(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.actions[id]; !ok {
		return fmt.Errorf("action %q not found", id)
	}
	delete(c.actions, id)
	for _, ap := range c.actionPoints {
		for i, a := range ap.Actions {
			if a.ID == id {
				ap.Actions = append(ap.Actions[:i], ap.Actions[i+1:]...)
				c.touchProjectLocked()
				return nil
			}
		}
	}
	c.touchProjectLocked()
	return nil
}

// RemoveOrientation deletes a named orientation by id.
func (c *Cached) RemoveOrientation(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.orientations[id]
	if !ok {
		return fmt.Errorf("orientation %q not found", id)
	}
	delete(c.orientations, id)
	if ap, ok := c.actionPoints[entry.apID]; ok {
		for i, o := range ap.Orientations {
			if o.ID == id {
				ap.Orientations = append(ap.Orientations[:i], ap.Orientations[i+1:]...)
				break
			}
		}
	}
	c.touchProjectLocked()
	return nil
}

// OrientationOwner returns the id of the action point owning orientation id.
func (c *Cached) OrientationOwner(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.orientations[id]
	return entry.apID, ok
}

// RemoveLogicItem deletes a logic edge by id.
func (c *Cached) RemoveLogicItem(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, li := range c.project.LogicItems {
		if li.ID == id {
			c.project.LogicItems = append(c.project.LogicItems[:i], c.project.LogicItems[i+1:]...)
			c.touchProjectLocked()
			return nil
		}
	}
	return fmt.Errorf("logic item %q not found", id)
}

// RemoveConstant deletes a project constant by id.
func (c *Cached) RemoveConstant(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, constant := range c.project.Constants {
		if constant.ID == id {
			c.project.Constants = append(c.project.Constants[:i], c.project.Constants[i+1:]...)
			c.touchProjectLocked()
			return nil
		}
	}
	return fmt.Errorf("constant %q not found", id)
}

// UpsertConstant adds or replaces a project constant.
func (c *Cached) UpsertConstant(constant *model.Constant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.project.Constants {
		if existing.ID == constant.ID {
			c.project.Constants[i] = constant
			c.touchProjectLocked()
			return
		}
	}
	c.project.Constants = append(c.project.Constants, constant)
	c.touchProjectLocked()
}

// SetOverrides replaces the full override set for a scene object within
// the open project.
func (c *Cached) SetOverrides(sceneObjectID string, params []*model.Parameter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	filtered := c.project.Overrides[:0]
	for _, ov := range c.project.Overrides {
		if ov.SceneObjectID != sceneObjectID {
			filtered = append(filtered, ov)
		}
	}
	for _, p := range params {
		filtered = append(filtered, &model.Override{SceneObjectID: sceneObjectID, Parameter: p})
	}
	c.project.Overrides = filtered
	c.touchProjectLocked()
}

// MarkPoseUpdated records id in objectsWithUpdatedPose; invoked whenever a
// scene object's pose changes so any dependent joint snapshot can be
// invalidated before the next save.
func (c *Cached) MarkPoseUpdated(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objectsWithUpdatedPose[id] = struct{}{}
	c.touchSceneLocked()
}

// FlushUpdatedPoses invalidates the Joints snapshot of every action point
// whose ancestry passes through a marked object, then clears the set. It
// is called on save.
func (c *Cached) FlushUpdatedPoses() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.objectsWithUpdatedPose) == 0 {
		return
	}
	for _, ap := range c.actionPoints {
		if c.ancestryIntersectsLocked(ap.ID) {
			for _, j := range ap.Joints {
				j.Valid = false
			}
		}
	}
	for id := range c.objectsWithUpdatedPose {
		delete(c.cameraCalibration, id)
	}
	c.objectsWithUpdatedPose = make(map[string]struct{})
}

// SetCameraCalibration stores the last computed extrinsic calibration for a
// camera scene object.
func (c *Cached) SetCameraCalibration(cameraID string, calib *model.CameraCalibration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cameraCalibration[cameraID] = calib
}

// CameraCalibration returns the last computed calibration for a camera
// scene object, if one is cached.
func (c *Cached) CameraCalibration(cameraID string) (*model.CameraCalibration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	calib, ok := c.cameraCalibration[cameraID]
	return calib, ok
}

func (c *Cached) ancestryIntersectsLocked(apID string) bool {
	seen := make(map[string]bool)
	for cur := apID; cur != "" && !seen[cur]; {
		seen[cur] = true
		if _, marked := c.objectsWithUpdatedPose[cur]; marked {
			return true
		}
		parent, ok := c.apParent[cur]
		if !ok {
			break
		}
		cur = parent
	}
	return false
}

// Closure implements internal/lock.SubtreeIndex: the closure of ids is ids
// plus every action point whose parent chain visits one of them, plus
// every action/orientation/joint owned by an action point in the result.
func (c *Cached) Closure(ids []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}

	changed := true
	for changed {
		changed = false
		for apID := range c.apParent {
			if set[apID] {
				continue
			}
			if apChainIntersects(apID, c.apParent, set) {
				set[apID] = true
				changed = true
			}
		}
	}

	for apID := range set {
		ap, ok := c.actionPoints[apID]
		if !ok {
			continue
		}
		for _, a := range ap.Actions {
			set[a.ID] = true
		}
		for _, o := range ap.Orientations {
			set[o.ID] = true
		}
		for _, j := range ap.Joints {
			set[j.ID] = true
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func apChainIntersects(apID string, parents map[string]string, set map[string]bool) bool {
	seen := make(map[string]bool)
	for cur := apID; cur != "" && !seen[cur]; {
		seen[cur] = true
		if set[cur] {
			return true
		}
		cur = parents[cur]
	}
	return false
}

// NewID returns a fresh globally-unique id, used by every RPC handler that
// creates an entity.
func NewID() string {
	return uuid.NewString()
}
