package dispatcher

import (
	"context"
	"strconv"
	"strings"

	"github.com/robofit/arcor2-sub002/internal/common/apperr"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/model"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/internal/objecttype"
	"github.com/robofit/arcor2-sub002/pkg/wire"
)

type newProjectArgs struct {
	SceneID     string `json:"sceneId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type closeProjectArgs struct {
	Force bool `json:"force,omitempty"`
	DryRunArgs
}

type addActionPointArgs struct {
	Name     string         `json:"name"`
	Position model.Position `json:"position"`
	ParentID string         `json:"parentId,omitempty"`
}

type addApUsingRobotArgs struct {
	Name     string `json:"name"`
	RobotID  string `json:"robotId"`
	EEF      string `json:"endEffectorId"`
	ParentID string `json:"parentId,omitempty"`
}

type updateActionPointJointsArgs struct {
	ActionPointID string `json:"actionPointId"`
	RobotID       string `json:"robotId"`
}

type updateActionPointPoseArgs struct {
	ActionPointID string `json:"actionPointId"`
	RobotID       string `json:"robotId"`
	EEF           string `json:"endEffectorId"`
}

type addActionArgs struct {
	ActionPointID string                   `json:"actionPointId"`
	Name          string                   `json:"name"`
	Type          string                   `json:"type"`
	Parameters    []*model.ActionParameter `json:"parameters"`
	Flows         []*model.Flow            `json:"flows"`
	DryRunArgs
}

type addLogicItemArgs struct {
	From      string           `json:"from"`
	To        string           `json:"to"`
	Condition *model.Condition `json:"condition,omitempty"`
	DryRunArgs
}

type updateLogicItemArgs struct {
	ID        string           `json:"id"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Condition *model.Condition `json:"condition,omitempty"`
}

type executeActionArgs struct {
	ActionID string `json:"actionId"`
}

func findActionPoint(project *model.Project, id string) *model.ActionPoint {
	for _, ap := range project.ActionPoints {
		if ap.ID == id {
			return ap
		}
	}
	return nil
}

func findAction(project *model.Project, id string) *model.Action {
	for _, ap := range project.ActionPoints {
		for _, a := range ap.Actions {
			if a.ID == id {
				return a
			}
		}
	}
	return nil
}

// actionSignature resolves an action reference "<sceneObjectId>/<method>"
// (or "<BuiltinType>/<method>" for the virtual action libraries) to its
// parsed signature.
func actionSignature(hc *hubctx.Context, ref string) (objecttype.ActionSignature, error) {
	i := strings.LastIndex(ref, "/")
	if i < 0 {
		return objecttype.ActionSignature{}, apperr.Validation("type", "malformed action reference "+ref)
	}
	target, method := ref[:i], ref[i+1:]

	typeName := ""
	if scene := hc.Cached.Scene(); scene != nil {
		for _, obj := range scene.Objects {
			if obj.ID == target {
				typeName = obj.Type
				break
			}
		}
	}
	if typeName == "" {
		// Builtin virtual types (logic/time/random libraries) are
		// addressed by type name rather than a scene object id.
		if ot, err := hc.Types.Get(target); err == nil && ot.Builtin {
			typeName = ot.Name
		}
	}
	if typeName == "" {
		return objecttype.ActionSignature{}, apperr.Preconditionf("scene object %s not found", target)
	}

	ot, err := hc.Types.Get(typeName)
	if err != nil {
		return objecttype.ActionSignature{}, err
	}
	if ot.Disabled {
		return objecttype.ActionSignature{}, apperr.Preconditionf("object type %s is disabled: %s", ot.Name, ot.Problem)
	}
	sig, ok := ot.ActionByName(method)
	if !ok {
		return objecttype.ActionSignature{}, apperr.Validation("type", "unknown action "+method+" on type "+ot.Name)
	}
	return sig, nil
}

// linkOutputType resolves "<actionId>/<flow>/<output>" to the type of the
// referenced output; output may be an output name or a numeric index.
func linkOutputType(hc *hubctx.Context, project *model.Project, link string) (string, error) {
	parts := strings.SplitN(link, "/", 3)
	if len(parts) != 3 {
		return "", apperr.Validation("link", "malformed link "+link)
	}
	actionID, flowType, output := parts[0], parts[1], parts[2]

	action := findAction(project, actionID)
	if action == nil {
		return "", apperr.Preconditionf("linked action %s not found", actionID)
	}

	idx := -1
	for _, flow := range action.Flows {
		if flow.Type != flowType {
			continue
		}
		if n, err := strconv.Atoi(output); err == nil && n >= 0 && n < len(flow.Outputs) {
			idx = n
		} else {
			for i, out := range flow.Outputs {
				if out == output {
					idx = i
					break
				}
			}
		}
	}
	if idx < 0 {
		return "", apperr.Preconditionf("linked flow output %s not found on action %s", output, actionID)
	}

	sig, err := actionSignature(hc, action.Type)
	if err != nil {
		return "", err
	}
	if idx >= len(sig.Returns) {
		return "", apperr.Preconditionf("action %s has no output %d", actionID, idx)
	}
	return sig.Returns[idx], nil
}

// validateActionParameters checks every supplied parameter against the
// action's signature and, for constant/link kinds, against the referenced
// source's type.
func validateActionParameters(hc *hubctx.Context, project *model.Project, sig objecttype.ActionSignature, params []*model.ActionParameter) error {
	declared := make(map[string]string, len(sig.Parameters))
	for _, p := range sig.Parameters {
		declared[p.Name] = p.Type
	}
	for _, p := range params {
		wantType, ok := declared[p.Name]
		if !ok {
			return apperr.Validation(p.Name, "not a parameter of this action")
		}
		if p.Type != wantType {
			return apperr.Validation(p.Name, "has type "+p.Type+", want "+wantType)
		}
		switch p.Kind {
		case model.ParameterKindLink:
			outType, err := linkOutputType(hc, project, p.Link)
			if err != nil {
				return err
			}
			if outType != p.Type {
				return &apperr.AppError{Kind: apperr.KindValidation, Message: "Param type does not match action output type."}
			}
		case model.ParameterKindConstant:
			var constant *model.Constant
			for _, c := range project.Constants {
				if c.ID == p.Const {
					constant = c
					break
				}
			}
			if constant == nil {
				return apperr.Preconditionf("constant %s not found", p.Const)
			}
			if constant.Type != p.Type {
				return &apperr.AppError{Kind: apperr.KindValidation, Message: "Param type does not match constant type."}
			}
		}
	}
	return nil
}

// validateFlows checks flow outputs are valid identifiers and unique across
// the whole project.
func validateFlows(project *model.Project, flows []*model.Flow) error {
	seen := make(map[string]bool)
	for _, ap := range project.ActionPoints {
		for _, a := range ap.Actions {
			for _, flow := range a.Flows {
				for _, out := range flow.Outputs {
					seen[out] = true
				}
			}
		}
	}
	for _, flow := range flows {
		for _, out := range flow.Outputs {
			if !model.IsIdentifier(out) {
				return apperr.Validation("flows", "output "+out+" is not a valid identifier")
			}
			if seen[out] {
				return apperr.Validation("flows", "output "+out+" is already used in this project")
			}
			seen[out] = true
		}
	}
	return nil
}

// validateLogicItem enforces at most one START edge and at most one edge
// leaving each flow output.
func validateLogicItem(project *model.Project, li *model.LogicItem) error {
	for _, existing := range project.LogicItems {
		if existing.ID == li.ID {
			continue
		}
		if li.From == model.LogicStart && existing.From == model.LogicStart {
			return apperr.Validation("from", "another logic item already starts from START")
		}
		if li.From != model.LogicStart && existing.From == li.From {
			return apperr.Validation("from", "flow output "+li.From+" is already the source of a logic item")
		}
	}
	if li.From != model.LogicStart && findAction(project, strings.SplitN(li.From, "/", 2)[0]) == nil {
		return apperr.Preconditionf("logic item source action %s not found", li.From)
	}
	if li.To != model.LogicEnd && findAction(project, li.To) == nil {
		return apperr.Preconditionf("logic item target action %s not found", li.To)
	}
	return nil
}

func validateAPName(project *model.Project, name, id string) error {
	if !model.IsSnakeCase(name) {
		return apperr.Validation("name", "must be snake_case")
	}
	for _, ap := range project.ActionPoints {
		if ap.Name == name && ap.ID != id {
			return apperr.Validation("name", "already used in this project")
		}
	}
	return nil
}

// RegisterProjectHandlers wires the Project RPC category.
func RegisterProjectHandlers(d *Dispatcher) {
	d.Register("NewProject", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args newProjectArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if hc.Cached.Project() != nil {
				return nil, apperr.Precondition("a project is already open")
			}
			scene := hc.Cached.Scene()
			if args.SceneID == "" {
				args.SceneID = scene.ID
			}
			if args.SceneID != scene.ID {
				return nil, apperr.Preconditionf("project scene %s is not the open scene", args.SceneID)
			}
			project := &model.Project{ID: newID("prj"), Name: args.Name, SceneID: args.SceneID, Description: args.Description}
			if err := hc.Cached.OpenProject(project); err != nil {
				return nil, err
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "OpenProject", Data: notify.OpenProject{Scene: scene, Project: project}})
			return project, nil
		},
		Preconditions: []Precondition{SceneNeeded},
	})

	d.Register("OpenProject", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args idArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if hc.Cached.Project() != nil {
				return nil, apperr.Precondition("a project is already open")
			}
			project, err := hc.Store.GetProject(ctx, args.ID)
			if err != nil {
				return nil, apperr.External("project service", err)
			}
			if scene := hc.Cached.Scene(); scene != nil && scene.ID != project.SceneID {
				return nil, apperr.Preconditionf("project belongs to scene %s, but %s is open", project.SceneID, scene.ID)
			}
			if hc.Cached.Scene() == nil {
				scene, err := hc.Store.GetScene(ctx, project.SceneID)
				if err != nil {
					return nil, apperr.External("project service", err)
				}
				hc.Cached.OpenScene(scene)
			}
			if err := hc.Cached.OpenProject(project); err != nil {
				return nil, err
			}
			scene := hc.Cached.Scene()
			hc.Bus.Broadcast(ctx, notify.Event{Name: "OpenProject", Data: notify.OpenProject{Scene: scene, Project: project}})
			hc.Bus.Broadcast(ctx, notify.Event{Name: "SceneState", Data: notify.SceneState{State: notify.SceneStopped}})
			return project, nil
		},
		Preconditions: []Precondition{SceneStopped},
	})

	d.Register("CloseProject", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args closeProjectArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if hc.Locks.AnyUserWriteLocked() {
				return nil, apperr.SomethingLocked()
			}
			project := hc.Cached.Project()
			if project.HasChanges() && !args.Force {
				return nil, apperr.Precondition("project has unsaved changes")
			}
			if args.IsDryRun() {
				return nil, nil
			}
			id := project.ID
			hc.Cached.CloseProject()
			hc.Cached.CloseScene()
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ProjectClosed", Data: notify.ProjectClosed{ID: id}})
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ShowMainScreen", Data: notify.ShowMainScreen{What: notify.ScreenProjectsList, Highlight: id}})
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("SaveProject", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			hc.Cached.FlushUpdatedPoses()
			aps, err := hc.Cached.RelativizeForSave()
			if err != nil {
				return nil, err
			}
			project := hc.Cached.Project()
			toSave := *project
			toSave.ActionPoints = aps
			if err := hc.Store.PutProject(ctx, &toSave); err != nil {
				return nil, apperr.External("project service", err)
			}
			hc.Cached.MarkProjectSaved()
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ProjectSaved", Data: notify.ProjectSaved{ID: project.ID}})
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded},
	})

	d.Register("ListProjects", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			projects, err := hc.Store.ListProjects(ctx)
			if err != nil {
				return nil, apperr.External("project service", err)
			}
			return projects, nil
		},
	})

	d.Register("DeleteProject", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args idArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if project := hc.Cached.Project(); project != nil && project.ID == args.ID {
				return nil, apperr.Precondition("project is currently open")
			}
			if err := hc.Store.DeleteProject(ctx, args.ID); err != nil {
				return nil, apperr.External("project service", err)
			}
			return nil, nil
		},
	})

	d.Register("AddActionPoint", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args addActionPointArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			project := hc.Cached.Project()
			if err := validateAPName(project, args.Name, ""); err != nil {
				return nil, err
			}
			ap := &model.ActionPoint{ID: newID("ap"), Name: args.Name, Position: args.Position, ParentID: args.ParentID}
			hc.Cached.UpsertActionPoint(ap)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ActionPointChanged", Data: notify.ActionPointChanged{ChangeType: notify.ChangeAdd, Data: ap}})
			return ap, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("AddApUsingRobot", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args addApUsingRobotArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			project := hc.Cached.Project()
			if err := validateAPName(project, args.Name, ""); err != nil {
				return nil, err
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			pose, err := robot.GetEndEffectorPose(args.EEF)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			ap := &model.ActionPoint{ID: newID("ap"), Name: args.Name, Position: pose.Position, ParentID: args.ParentID}
			hc.Cached.UpsertActionPoint(ap)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ActionPointChanged", Data: notify.ActionPointChanged{ChangeType: notify.ChangeAdd, Data: ap}})
			return ap, nil
		},
		Preconditions: []Precondition{ProjectNeeded, SceneStarted},
	})

	d.Register("UpdateActionPointJoints", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args updateActionPointJointsArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			joints, err := robot.RobotJoints()
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			snapshot := &model.JointsSnapshot{ID: newID("joints"), RobotID: args.RobotID, Joints: joints, Valid: true}
			if err := hc.Cached.UpsertJoints(args.ActionPointID, snapshot); err != nil {
				return nil, err
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "JointsChanged", Data: notify.JointsChanged{ChangeType: notify.ChangeAdd, ActionPointID: args.ActionPointID, Data: snapshot}})
			return snapshot, nil
		},
		Preconditions: []Precondition{ProjectNeeded, SceneStarted},
	})

	d.Register("UpdateActionPointPose", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args updateActionPointPoseArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			robot, err := hc.Runtime.Instance(args.RobotID)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			pose, err := robot.GetEndEffectorPose(args.EEF)
			if err != nil {
				return nil, apperr.External("scene runtime", err)
			}
			project := hc.Cached.Project()
			ap := findActionPoint(project, args.ActionPointID)
			if ap == nil {
				return nil, apperr.Preconditionf("action point %s not found", args.ActionPointID)
			}
			updated := *ap
			updated.Position = pose.Position
			hc.Cached.UpsertActionPoint(&updated)
			hc.Cached.MarkPoseUpdated(args.ActionPointID)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ActionPointChanged", Data: notify.ActionPointChanged{ChangeType: notify.ChangeUpdate, Data: ap}})
			return ap, nil
		},
		Preconditions: []Precondition{ProjectNeeded, SceneStarted},
	})

	d.Register("AddAction", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args addActionArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			project := hc.Cached.Project()
			for _, ap := range project.ActionPoints {
				for _, a := range ap.Actions {
					if a.Name == args.Name {
						return nil, apperr.Validation("name", "already used in this project")
					}
				}
			}
			sig, err := actionSignature(hc, args.Type)
			if err != nil {
				return nil, err
			}
			if err := validateActionParameters(hc, project, sig, args.Parameters); err != nil {
				return nil, err
			}
			if err := validateFlows(project, args.Flows); err != nil {
				return nil, err
			}
			if args.IsDryRun() {
				return nil, nil
			}
			action := &model.Action{ID: newID("act"), Name: args.Name, Type: args.Type, Parameters: args.Parameters, Flows: args.Flows}
			if err := hc.Cached.UpsertAction(args.ActionPointID, action); err != nil {
				return nil, err
			}
			hc.Bus.Broadcast(ctx, notify.Event{Name: "ActionChanged", Data: notify.ActionChanged{ChangeType: notify.ChangeAdd, Data: action}})
			return action, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("AddLogicItem", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args addLogicItemArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			project := hc.Cached.Project()
			li := &model.LogicItem{ID: newID("logic"), From: args.From, To: args.To, Condition: args.Condition}
			if err := validateLogicItem(project, li); err != nil {
				return nil, err
			}
			if args.IsDryRun() {
				return nil, nil
			}
			hc.Cached.UpsertLogicItem(li)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "LogicItemChanged", Data: notify.LogicItemChanged{ChangeType: notify.ChangeAdd, Data: li}})
			return li, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("UpdateLogicItem", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args updateLogicItemArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			project := hc.Cached.Project()
			li := &model.LogicItem{ID: args.ID, From: args.From, To: args.To, Condition: args.Condition}
			if err := validateLogicItem(project, li); err != nil {
				return nil, err
			}
			hc.Cached.UpsertLogicItem(li)
			hc.Bus.Broadcast(ctx, notify.Event{Name: "LogicItemChanged", Data: notify.LogicItemChanged{ChangeType: notify.ChangeUpdate, Data: li}})
			return li, nil
		},
		Preconditions: []Precondition{ProjectNeeded, EditingOffline},
	})

	d.Register("ExecuteAction", HandlerSpec{
		Handler: func(ctx context.Context, hc *hubctx.Context, session Session, req *wire.Request) (interface{}, error) {
			var args executeActionArgs
			if err := req.Decode(&args); err != nil {
				return nil, err
			}
			if findAction(hc.Cached.Project(), args.ActionID) == nil {
				return nil, apperr.Preconditionf("action %s not found", args.ActionID)
			}
			resp, err := hc.Bridge.Call(ctx, "ExecuteAction", args)
			if err != nil {
				return nil, apperr.External("execution bridge", err)
			}
			if !resp.Result {
				return nil, apperr.Preconditionf("execute action failed: %v", resp.Messages)
			}
			return nil, nil
		},
		Preconditions: []Precondition{ProjectNeeded, SceneStarted},
	})
}
