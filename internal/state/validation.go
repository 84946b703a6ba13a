package state

import (
	"fmt"
	"strings"

	"github.com/robofit/arcor2-sub002/internal/model"
	"github.com/robofit/arcor2-sub002/internal/objecttype"
)

// ValidationResult reports whether the open project is Valid and,
// separately, Executable, along with the reasons for either being false.
type ValidationResult struct {
	Valid      bool
	Executable bool
	Problems   []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Validate checks the open project's referential and type validity.
// types resolves an action's bound object type so disabled-type and
// parameter-type checks can run; it is nil-safe (no types registry means
// every type-dependent check is skipped, useful for scenes with no
// registry wired yet).
func (c *Cached) Validate(types *objecttype.Registry) ValidationResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := ValidationResult{Valid: true}
	if c.project == nil {
		result.fail("no project is open")
		return result
	}

	c.validateActionsLocked(types, &result)
	c.validateFlowOutputsLocked(&result)
	c.validateLinksLocked(&result)

	result.Executable = result.Valid && c.validateLogicGraphLocked(&result)
	return result
}

func (c *Cached) validateActionsLocked(types *objecttype.Registry, result *ValidationResult) {
	for _, ap := range c.actionPoints {
		for _, a := range ap.Actions {
			sceneObjectID, typeAction, ok := splitActionType(a.Type)
			if !ok {
				result.fail("action %s has malformed type %q", a.ID, a.Type)
				continue
			}
			obj, ok := c.objects[sceneObjectID]
			if !ok {
				result.fail("action %s references missing scene object %q", a.ID, sceneObjectID)
				continue
			}
			if types == nil {
				continue
			}
			ot, err := types.Get(obj.Type)
			if err != nil {
				result.fail("action %s references unknown object type %q", a.ID, obj.Type)
				continue
			}
			if ot.Disabled {
				result.fail("action %s is bound to disabled object type %q", a.ID, ot.Name)
				continue
			}
			sig, ok := ot.ActionByName(typeAction)
			if !ok {
				result.fail("action %s references unknown method %q on type %q", a.ID, typeAction, ot.Name)
				continue
			}
			c.validateParametersLocked(a, sig, result)
		}
	}
}

func (c *Cached) validateParametersLocked(a *model.Action, sig objecttype.ActionSignature, result *ValidationResult) {
	declared := make(map[string]string, len(sig.Parameters))
	for _, p := range sig.Parameters {
		declared[p.Name] = p.Type
	}
	for _, p := range a.Parameters {
		wantType, ok := declared[p.Name]
		if !ok {
			result.fail("action %s supplies undeclared parameter %q", a.ID, p.Name)
			continue
		}
		if p.Kind == model.ParameterKindValue && wantType != "" && p.Type != "" && p.Type != wantType {
			result.fail("action %s parameter %q has type %q, want %q", a.ID, p.Name, p.Type, wantType)
		}
	}
}

func (c *Cached) validateFlowOutputsLocked(result *ValidationResult) {
	seen := make(map[string]bool)
	for _, ap := range c.actionPoints {
		for _, a := range ap.Actions {
			for _, flow := range a.Flows {
				for _, out := range flow.Outputs {
					if !model.IsIdentifier(out) {
						result.fail("flow output %q on action %s is not a valid identifier", out, a.ID)
					}
					if seen[out] {
						result.fail("duplicate flow output %q on action %s", out, a.ID)
					}
					seen[out] = true
				}
			}
		}
	}
}

func (c *Cached) validateLinksLocked(result *ValidationResult) {
	resolves := func(link string) bool {
		parts := strings.SplitN(link, "/", 3)
		if len(parts) != 3 {
			return false
		}
		actionID, flowType, output := parts[0], parts[1], parts[2]
		a, ok := c.actions[actionID]
		if !ok {
			return false
		}
		for _, flow := range a.Flows {
			if flow.Type != flowType {
				continue
			}
			for _, out := range flow.Outputs {
				if out == output {
					return true
				}
			}
		}
		return false
	}

	for _, ap := range c.actionPoints {
		for _, a := range ap.Actions {
			for _, p := range a.Parameters {
				if p.Kind == model.ParameterKindLink && !resolves(p.Link) {
					result.fail("action %s parameter %q has unresolvable link %q", a.ID, p.Name, p.Link)
				}
			}
		}
	}
	for _, li := range c.project.LogicItems {
		if li.Condition != nil && !resolves(li.Condition.Link) {
			result.fail("logic item %s has unresolvable condition link %q", li.ID, li.Condition.Link)
		}
	}
}

// validateLogicGraphLocked implements a conservative branch-exhaustiveness
// rule for the Executable tag: a
// boolean-guarded action is executable only when the graph contains logic
// items for exactly both outcomes out of that action, and an unguarded
// action is executable only when it has a single unconditional outgoing
// edge. Anything else — a single guarded edge, more
// than two outgoing guarded edges, a non-boolean guard — is conservatively
// marked not executable rather than guessed at.
func (c *Cached) validateLogicGraphLocked(result *ValidationResult) bool {
	var startEdges, endEdges int
	outgoing := make(map[string][]*model.LogicItem)
	for _, li := range c.project.LogicItems {
		if li.From == model.LogicStart {
			startEdges++
		}
		if li.To == model.LogicEnd {
			endEdges++
		}
		outgoing[li.From] = append(outgoing[li.From], li)
	}
	if startEdges != 1 {
		result.Problems = append(result.Problems, fmt.Sprintf("logic graph has %d START edges, want exactly 1", startEdges))
		return false
	}
	if endEdges == 0 {
		result.Problems = append(result.Problems, "logic graph has no edge reaching END")
		return false
	}

	visited := make(map[string]bool)
	var reachesEnd func(node string) bool
	reachesEnd = func(node string) bool {
		if node == model.LogicEnd {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		edges := outgoing[node]
		if len(edges) == 0 {
			return false
		}
		if !branchesExhaustive(edges) {
			return false
		}
		for _, e := range edges {
			if !reachesEnd(e.To) {
				return false
			}
		}
		return true
	}
	return reachesEnd(model.LogicStart)
}

// branchesExhaustive reports whether edges leaving one node are either all
// unconditional (a single edge, no guard) or exactly a true/false pair of
// boolean guards on the same link.
func branchesExhaustive(edges []*model.LogicItem) bool {
	if len(edges) == 1 && edges[0].Condition == nil {
		return true
	}
	if len(edges) != 2 {
		return false
	}
	a, b := edges[0].Condition, edges[1].Condition
	if a == nil || b == nil || a.Link != b.Link {
		return false
	}
	va, vb := string(a.Value), string(b.Value)
	return (va == "true" && vb == "false") || (va == "false" && vb == "true")
}

func splitActionType(t string) (sceneObjectID, method string, ok bool) {
	i := strings.LastIndex(t, "/")
	if i < 0 {
		return "", "", false
	}
	return t[:i], t[i+1:], true
}
