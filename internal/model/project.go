package model

// Project is tied to exactly one Scene by id.
type Project struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	SceneID      string          `json:"sceneId"`
	Description  string          `json:"description"`
	ActionPoints []*ActionPoint  `json:"actionPoints"`
	LogicItems   []*LogicItem    `json:"logicItems"`
	Constants    []*Constant     `json:"constants"`
	Functions    []*Function     `json:"functions"`
	Overrides    []*Override     `json:"overrides"`
	Timestamps
}

// Function is a forward-compatible placeholder: project-level
// functions are not exercised by any RPC in this implementation, but the
// field must round-trip losslessly on load/save.
type Function struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Constant is a named, typed value usable by ActionParameters of kind
// "constant".
type Constant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value []byte `json:"value"`
}

// Override replaces one of a scene object's settings parameters for the
// scope of this project only.
type Override struct {
	SceneObjectID string     `json:"sceneObjectId"`
	Parameter     *Parameter `json:"parameter"`
}

// ActionPoint is a named spatial anchor.
//
// Position is stored relative to ParentID on disk; internal/state's open/save
// path walks the parent chain and keeps the in-memory copy absolute.
// ParentID is either another ActionPoint's id or a SceneObject's id, or
// empty for a scene-rooted AP.
type ActionPoint struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"` // unique within the project
	Position      Position       `json:"position"`
	ParentID      string         `json:"parentId,omitempty"`
	Orientations  []*NamedOrientation `json:"orientations"`
	Joints        []*JointsSnapshot `json:"joints"`
	Actions       []*Action      `json:"actions"`
}

// NamedOrientation is a named orientation owned by an ActionPoint (named to avoid
// colliding with the bare Orientation value type used by Pose).
type NamedOrientation struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Orientation Orientation `json:"orientation"`
}

// JointsSnapshot is a robot-joint snapshot owned by an ActionPoint. It
// becomes Valid=false whenever its owning AP's ancestry changes pose
// until explicitly recomputed.
type JointsSnapshot struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	RobotID string             `json:"robotId"`
	Joints  map[string]float64 `json:"joints"`
	Valid   bool               `json:"valid"`
}

// Action is a named instance of an ObjectType method call bound to a scene
// object.
type Action struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Type       string             `json:"type"` // "<sceneObjectId>/<typeActionName>"
	Parameters []*ActionParameter `json:"parameters"`
	Flows      []*Flow            `json:"flows"`
}

// ActionParameter supplies one value to an Action: either a literal JSON
// value, a reference to a project Constant, or a Link to another action's
// flow output.
type ActionParameter struct {
	Name  string        `json:"name"`
	Type  string        `json:"type"`
	Kind  ParameterKind `json:"kind"`
	Value []byte        `json:"value,omitempty"` // kind=value: literal JSON
	Const string        `json:"const,omitempty"` // kind=constant: Constant id
	Link  string        `json:"link,omitempty"`  // kind=link: "<actionId>/<flow>/<output>"
}

// Flow is a named channel carrying an action's typed outputs.
type Flow struct {
	Type    string   `json:"type"` // "default"
	Outputs []string `json:"outputs"`
}

// LogicItem is a directed edge in the action execution graph.
type LogicItem struct {
	ID        string     `json:"id"`
	From      string     `json:"from"` // "START" or "<actionId>/<flow>/<output>"
	To        string     `json:"to"`   // "END" or "<actionId>"
	Condition *Condition `json:"condition,omitempty"`
}

// Condition guards a LogicItem with an equality test on a linked value.
type Condition struct {
	Link  string `json:"link"`
	Value []byte `json:"value"`
}

const (
	LogicStart = "START"
	LogicEnd   = "END"
)
