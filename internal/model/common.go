// Package model holds the wire-shaped editing data types: Scene,
// Project, their nested entities, and the small value types (Position,
// Orientation, Pose, Parameter) shared by both.
//
// Every entity id is an opaque, globally-unique-in-its-kind string,
// generated with github.com/google/uuid at creation time.
package model

import (
	"encoding/json"
	"time"
)

// Position is a Cartesian point in meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Orientation is a unit quaternion; the zero value is not a valid rotation,
// callers should use IdentityOrientation() instead of the zero value.
type Orientation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityOrientation returns the no-rotation quaternion.
func IdentityOrientation() Orientation { return Orientation{W: 1} }

// Pose combines a Position and an Orientation.
type Pose struct {
	Position    Position    `json:"position"`
	Orientation Orientation `json:"orientation"`
}

// Parameter is a named, typed, JSON-encoded value attached to a scene object
// or an action.
type Parameter struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ParameterKind distinguishes how an ActionParameter's value is resolved.
type ParameterKind string

const (
	ParameterKindValue    ParameterKind = "value"    // literal JSON
	ParameterKindConstant ParameterKind = "constant" // refs a ProjectConstant
	ParameterKindLink     ParameterKind = "link"      // refs another action's flow output
)

// Timestamps is embedded by Scene and Project for the modified/int_modified
// pair: has_changes is true iff IntModified is ahead of Modified.
type Timestamps struct {
	Modified    time.Time `json:"modified"`
	IntModified time.Time `json:"intModified"`
}

// HasChanges reports whether in-memory edits are ahead of the last save.
func (t Timestamps) HasChanges() bool { return t.IntModified.After(t.Modified) }

// CameraCalibration is the last computed extrinsic calibration for a camera
// scene object: the camera's pose relative to the scene origin plus the
// marker corners used to derive it.
type CameraCalibration struct {
	Pose           Pose      `json:"pose"`
	MarkersCorners []Position `json:"markersCorners"`
	ComputedAt     time.Time `json:"computedAt"`
}
