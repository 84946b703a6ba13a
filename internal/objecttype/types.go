// Package objecttype implements the object-type registry: cached, parsed
// ObjectType metadata, action signatures, settings schemas, and robot
// capability descriptors. Runtime class introspection is replaced with an
// ahead-of-time SourceParser and a discriminated BaseFamily constructor
// table.
package objecttype

// BaseFamily names the built-in ancestor every ObjectType's base chain
// eventually terminates at.
type BaseFamily string

const (
	FamilyGeneric          BaseFamily = "Generic"
	FamilyGenericWithPose  BaseFamily = "GenericWithPose"
	FamilyCollisionObject  BaseFamily = "CollisionObject"
	FamilyRobot            BaseFamily = "Robot"
)

// RobotCapabilities is a bitset of the optional robot capabilities; a bit
// is set only when the type overrides the corresponding abstract method
// with a concrete, same-signature implementation.
type RobotCapabilities uint8

const (
	CapMoveToPose RobotCapabilities = 1 << iota
	CapMoveToJoints
	CapStop
	CapIK
	CapFK
	CapHandTeaching
	CapURDFPackage
)

// Has reports whether cap is set.
func (c RobotCapabilities) Has(cap RobotCapabilities) bool { return c&cap != 0 }

// ActionParamSpec describes one parameter of an ActionSignature.
type ActionParamSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Default     *string  `json:"default,omitempty"`
	AllowedVals []string `json:"allowedValues,omitempty"`
}

// ActionSignature is one action an ObjectType exposes.
type ActionSignature struct {
	Name       string            `json:"name"`
	Parameters []ActionParamSpec `json:"parameters"`
	Returns    []string          `json:"returns"`
	Blocking   bool              `json:"blocking"`
	Composite  bool              `json:"composite"`
	Blackbox   bool              `json:"blackbox"`
}

// SettingsField describes one field of an ObjectType's settings dataclass.
type SettingsField struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Default *string `json:"default,omitempty"`
}

// CollisionModel is the optional collision geometry attached to an
// ObjectType, used by UpdateObjectPoseUsingRobot's pivot-delta computation.
type CollisionModel struct {
	Kind   string  `json:"kind"` // box, cylinder, sphere, mesh
	SizeX  float64 `json:"sizeX,omitempty"`
	SizeY  float64 `json:"sizeY,omitempty"`
	SizeZ  float64 `json:"sizeZ,omitempty"`
	Radius float64 `json:"radius,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// ObjectType is the class-level description of a physical/virtual object.
type ObjectType struct {
	Name         string            `json:"name"` // PascalCase
	Base         string            `json:"base"` // direct parent's Name
	Family       BaseFamily        `json:"family"`
	Description  string            `json:"description"`
	Actions      []ActionSignature `json:"actions"`
	Settings     []SettingsField   `json:"settings"`
	Collision    *CollisionModel   `json:"collisionModel,omitempty"`
	Capabilities RobotCapabilities `json:"capabilities,omitempty"`
	EEF          []string          `json:"endEffectors,omitempty"`
	Disabled     bool              `json:"disabled"`
	Problem      string            `json:"problem,omitempty"`
	// Builtin marks a virtual, scene-object-less ObjectType such as the
	// logic/time/random action libraries; AddAction may bind to these
	// without there being a matching SceneObject.
	Builtin bool `json:"builtin,omitempty"`
}

// RequiresPose reports whether instances of the type declare a pose: every
// family but bare Generic is placed in space.
func (t *ObjectType) RequiresPose() bool {
	return t.Family != FamilyGeneric
}

// ActionByName finds one of the type's actions, if any.
func (t *ObjectType) ActionByName(name string) (ActionSignature, bool) {
	for _, a := range t.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return ActionSignature{}, false
}
