package state

import (
	"testing"

	"github.com/robofit/arcor2-sub002/internal/model"
)

func simpleGraphProject() *model.Project {
	ap := &model.ActionPoint{
		ID: "ap1", Name: "ap",
		Actions: []*model.Action{
			{ID: "act1", Name: "check", Type: "o1/check", Flows: []*model.Flow{{Type: "default", Outputs: []string{"result"}}}},
		},
	}
	return &model.Project{
		ID:           "p1",
		ActionPoints: []*model.ActionPoint{ap},
		LogicItems: []*model.LogicItem{
			{ID: "li1", From: model.LogicStart, To: "act1"},
			{ID: "li2", From: "act1", To: model.LogicEnd},
		},
	}
}

func TestValidateSimpleGraphExecutable(t *testing.T) {
	c, _ := newOpenScene()
	if err := c.OpenProject(simpleGraphProject()); err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}

	result := c.Validate(nil)
	if !result.Valid {
		t.Errorf("expected Valid, got problems: %v", result.Problems)
	}
	if !result.Executable {
		t.Error("expected Executable for a single unconditional START->act1->END chain")
	}
}

func TestValidateMissingEndNotExecutable(t *testing.T) {
	c, _ := newOpenScene()
	project := simpleGraphProject()
	project.LogicItems = project.LogicItems[:1] // drop the act1->END edge

	if err := c.OpenProject(project); err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}

	result := c.Validate(nil)
	if result.Executable {
		t.Error("expected not Executable when no edge reaches END")
	}
}

func TestValidateSingleGuardedBranchNotExecutable(t *testing.T) {
	c, _ := newOpenScene()
	project := simpleGraphProject()
	project.LogicItems[1].Condition = &model.Condition{Link: "act1/default/result", Value: []byte("true")}

	if err := c.OpenProject(project); err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}

	result := c.Validate(nil)
	if result.Executable {
		t.Error("expected not Executable when only one of two boolean branches is present")
	}
}

func TestValidateExhaustiveBooleanBranchesExecutable(t *testing.T) {
	c, _ := newOpenScene()
	project := simpleGraphProject()
	project.LogicItems[1].Condition = &model.Condition{Link: "act1/default/result", Value: []byte("true")}
	project.LogicItems = append(project.LogicItems, &model.LogicItem{
		ID: "li3", From: "act1", To: model.LogicEnd,
		Condition: &model.Condition{Link: "act1/default/result", Value: []byte("false")},
	})

	if err := c.OpenProject(project); err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}

	result := c.Validate(nil)
	if !result.Executable {
		t.Errorf("expected Executable with both boolean branches present, problems: %v", result.Problems)
	}
}

func TestValidateUnresolvableLinkInvalid(t *testing.T) {
	c, _ := newOpenScene()
	project := simpleGraphProject()
	project.ActionPoints[0].Actions[0].Parameters = []*model.ActionParameter{
		{Name: "speed", Kind: model.ParameterKindLink, Link: "nope/default/out"},
	}

	if err := c.OpenProject(project); err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}

	result := c.Validate(nil)
	if result.Valid {
		t.Error("expected not Valid with an unresolvable link")
	}
}
