package objecttype

// Builtins returns the object types that exist independently of any parsed
// source tree: the four family ancestors every concrete type ultimately
// derives from, and the virtual, scene-object-less action libraries
// (logic, flow control, time, random). The virtual types have Builtin=true:
// AddAction may bind an action to one of them even though no SceneObject of
// that type can ever exist.
func Builtins() []*ObjectType {
	return []*ObjectType{
		{Name: string(FamilyGeneric), Family: FamilyGeneric, Description: "root ancestor of every object type"},
		{Name: string(FamilyGenericWithPose), Base: string(FamilyGeneric), Family: FamilyGenericWithPose, Description: "object type with a placeable pose"},
		{Name: string(FamilyCollisionObject), Base: string(FamilyGenericWithPose), Family: FamilyCollisionObject, Description: "object type with collision geometry"},
		{Name: string(FamilyRobot), Base: string(FamilyGenericWithPose), Family: FamilyRobot, Description: "object type capable of motion"},
		logicActions(),
		flowActions(),
		timeActions(),
		randomActions(),
	}
}

func logicActions() *ObjectType {
	return &ObjectType{
		Name:        "Logic",
		Base:        string(FamilyGeneric),
		Family:      FamilyGeneric,
		Builtin:     true,
		Description: "boolean and comparison actions usable without a scene object",
		Actions: []ActionSignature{
			{Name: "equals", Parameters: []ActionParamSpec{{Name: "a", Type: "any"}, {Name: "b", Type: "any"}}, Returns: []string{"boolean"}},
			{Name: "not_equals", Parameters: []ActionParamSpec{{Name: "a", Type: "any"}, {Name: "b", Type: "any"}}, Returns: []string{"boolean"}},
			{Name: "less_than", Parameters: []ActionParamSpec{{Name: "a", Type: "double"}, {Name: "b", Type: "double"}}, Returns: []string{"boolean"}},
			{Name: "greater_than", Parameters: []ActionParamSpec{{Name: "a", Type: "double"}, {Name: "b", Type: "double"}}, Returns: []string{"boolean"}},
			{Name: "logical_and", Parameters: []ActionParamSpec{{Name: "a", Type: "boolean"}, {Name: "b", Type: "boolean"}}, Returns: []string{"boolean"}},
			{Name: "logical_or", Parameters: []ActionParamSpec{{Name: "a", Type: "boolean"}, {Name: "b", Type: "boolean"}}, Returns: []string{"boolean"}},
			{Name: "logical_not", Parameters: []ActionParamSpec{{Name: "a", Type: "boolean"}}, Returns: []string{"boolean"}},
		},
	}
}

func flowActions() *ObjectType {
	return &ObjectType{
		Name:        "Flow",
		Base:        string(FamilyGeneric),
		Family:      FamilyGeneric,
		Builtin:     true,
		Description: "control-flow actions: loops and counters",
		Actions: []ActionSignature{
			{Name: "for_each", Parameters: []ActionParamSpec{{Name: "items", Type: "list"}}, Returns: []string{"any"}, Composite: true},
			{Name: "while_loop", Parameters: []ActionParamSpec{{Name: "condition", Type: "boolean"}}, Returns: nil, Composite: true},
			{Name: "counter_increment", Parameters: []ActionParamSpec{{Name: "value", Type: "integer"}}, Returns: []string{"integer"}},
		},
	}
}

func timeActions() *ObjectType {
	return &ObjectType{
		Name:        "Time",
		Base:        string(FamilyGeneric),
		Family:      FamilyGeneric,
		Builtin:     true,
		Description: "wall-clock actions",
		Actions: []ActionSignature{
			{Name: "sleep", Parameters: []ActionParamSpec{{Name: "seconds", Type: "double"}}, Returns: nil, Blocking: true},
			{Name: "timestamp", Parameters: nil, Returns: []string{"double"}},
		},
	}
}

func randomActions() *ObjectType {
	return &ObjectType{
		Name:        "Random",
		Base:        string(FamilyGeneric),
		Family:      FamilyGeneric,
		Builtin:     true,
		Description: "pseudo-random value generation",
		Actions: []ActionSignature{
			{Name: "random_integer", Parameters: []ActionParamSpec{{Name: "range_min", Type: "integer"}, {Name: "range_max", Type: "integer"}}, Returns: []string{"integer"}},
			{Name: "random_double", Parameters: []ActionParamSpec{{Name: "range_min", Type: "double"}, {Name: "range_max", Type: "double"}}, Returns: []string{"double"}},
			{Name: "random_boolean", Parameters: nil, Returns: []string{"boolean"}},
		},
	}
}
