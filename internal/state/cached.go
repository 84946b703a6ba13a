// Package state implements the in-memory indexed scene/project model:
// O(1) id lookups, high-level mutation ops that all touch int_modified, and
// pose absolutization/relativization across the open/save boundary.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/robofit/arcor2-sub002/internal/model"
)

// Cached holds the currently open scene and/or project plus every index
// needed for O(1) lookup. nil Scene/Project means nothing of that kind is
// open. A single mutex protects all fields; callers needing a longer-lived
// exclusive hold use internal/lock instead: short critical sections here,
// long cooperative locks there.
type Cached struct {
	mu sync.Mutex

	scene   *model.Scene
	project *model.Project

	objects      map[string]*model.SceneObject
	actionPoints map[string]*model.ActionPoint
	actions      map[string]*model.Action
	orientations map[string]orientationEntry
	joints       map[string]jointsEntry

	// apParent indexes an action point's id to its ParentID, used by
	// subtree walks and by pose absolutization/relativization.
	apParent map[string]string

	// objectsWithUpdatedPose accumulates ids since the last save, flushed
	// by FlushUpdatedPoses, which marks invalid the joints of every action
	// point whose ancestry passes through a listed object.
	objectsWithUpdatedPose map[string]struct{}

	// cameraCalibration holds the last computed extrinsic calibration per
	// camera scene object id, invalidated by the same pose-update tracking
	// as robot joints (FlushUpdatedPoses).
	cameraCalibration map[string]*model.CameraCalibration
}

type orientationEntry struct {
	apID string
	data *model.NamedOrientation
}

type jointsEntry struct {
	apID string
	data *model.JointsSnapshot
}

// New returns an empty cache with nothing open.
func New() *Cached {
	return &Cached{
		objects:                make(map[string]*model.SceneObject),
		actionPoints:           make(map[string]*model.ActionPoint),
		actions:                make(map[string]*model.Action),
		orientations:           make(map[string]orientationEntry),
		joints:                 make(map[string]jointsEntry),
		apParent:               make(map[string]string),
		objectsWithUpdatedPose: make(map[string]struct{}),
		cameraCalibration:      make(map[string]*model.CameraCalibration),
	}
}

// OpenScene installs scene as the open scene and rebuilds the object index.
// Any previously open scene/project is discarded; callers are responsible
// for having saved or discarded it first.
func (c *Cached) OpenScene(scene *model.Scene) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scene = scene
	c.objects = make(map[string]*model.SceneObject, len(scene.Objects))
	c.cameraCalibration = make(map[string]*model.CameraCalibration)
	for _, o := range scene.Objects {
		c.objects[o.ID] = o
	}
}

// OpenProject installs project as the open project, walks its parent
// chains to absolutize every action point's position, and rebuilds every
// index.
func (c *Cached) OpenProject(project *model.Project) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.project = project
	c.actionPoints = make(map[string]*model.ActionPoint, len(project.ActionPoints))
	c.apParent = make(map[string]string, len(project.ActionPoints))
	c.actions = make(map[string]*model.Action)
	c.orientations = make(map[string]orientationEntry)
	c.joints = make(map[string]jointsEntry)

	for _, ap := range project.ActionPoints {
		c.actionPoints[ap.ID] = ap
		c.apParent[ap.ID] = ap.ParentID
		for _, o := range ap.Orientations {
			c.orientations[o.ID] = orientationEntry{apID: ap.ID, data: o}
		}
		for _, j := range ap.Joints {
			c.joints[j.ID] = jointsEntry{apID: ap.ID, data: j}
		}
		for _, a := range ap.Actions {
			c.actions[a.ID] = a
		}
	}

	if err := c.absolutizeAllLocked(); err != nil {
		return fmt.Errorf("absolutize action points: %w", err)
	}
	return nil
}

// Scene returns the currently open scene, or nil.
func (c *Cached) Scene() *model.Scene {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scene
}

// Project returns the currently open project, or nil.
func (c *Cached) Project() *model.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.project
}

// ObjectExists reports whether a scene object with id is present.
func (c *Cached) ObjectExists(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.objects[id]
	return ok
}

// MarkSceneSaved records a successful persist: modified catches up so
// HasChanges reports false until the next mutation.
func (c *Cached) MarkSceneSaved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scene != nil {
		c.scene.Modified = now()
		if c.scene.Modified.Before(c.scene.IntModified) {
			c.scene.Modified = c.scene.IntModified
		}
	}
}

// MarkProjectSaved records a successful persist of the open project.
func (c *Cached) MarkProjectSaved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.project != nil {
		c.project.Modified = now()
		if c.project.Modified.Before(c.project.IntModified) {
			c.project.Modified = c.project.IntModified
		}
	}
}

// CloseScene discards the open scene (and its indices); callers must have
// saved first if they want to keep changes.
func (c *Cached) CloseScene() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scene = nil
	c.objects = make(map[string]*model.SceneObject)
	c.cameraCalibration = make(map[string]*model.CameraCalibration)
}

// CloseProject discards the open project (and its indices).
func (c *Cached) CloseProject() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.project = nil
	c.actionPoints = make(map[string]*model.ActionPoint)
	c.actions = make(map[string]*model.Action)
	c.orientations = make(map[string]orientationEntry)
	c.joints = make(map[string]jointsEntry)
	c.apParent = make(map[string]string)
}

func (c *Cached) touchSceneLocked() {
	if c.scene != nil {
		c.scene.IntModified = now()
	}
}

func (c *Cached) touchProjectLocked() {
	if c.project != nil {
		c.project.IntModified = now()
	}
}

// now is overridable in tests; wall-clock time is otherwise appropriate
// since int_modified/modified are plain UTC timestamps, not derived from
// any monotonic sequence.
var now = time.Now
