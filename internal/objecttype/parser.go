package objecttype

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SourceParser turns a directory of object-type source files into
// ObjectType metadata, ahead of time and without executing any of the
// source, instead of any runtime class introspection.
type SourceParser interface {
	ParseDir(dir string) ([]*ObjectType, error)
}

// LineMetadataParser is the built-in SourceParser: it scans each ".py" file
// in dir for a class declaration and a trailing run of "# actionMetadata:"
// comment lines that describe the action directly above them, e.g.:
//
//	def move(self, pose: Pose, speed: float = 1.0) -> None:
//	    # actionMetadata: blocking
//	    ...
//
// Metadata tokens recognized: blocking, composite, blackbox. A class
// declaration of the form "class Foo(Bar):" registers Foo with base Bar;
// "class Foo(GenericWithPose):" (etc.) additionally sets Family.
type LineMetadataParser struct{}

var (
	classRe  = regexp.MustCompile(`^class\s+(\w+)\s*\(\s*(\w+)\s*\)\s*:`)
	defRe    = regexp.MustCompile(`^\s*def\s+(\w+)\s*\(\s*self\s*(?:,\s*(.*))?\)\s*(?:->\s*([\w\[\], ]+))?\s*:`)
	metaRe   = regexp.MustCompile(`^\s*#\s*actionMetadata:\s*(.+)$`)
	docRe    = regexp.MustCompile(`^\s*"""(.*)"""\s*$`)
)

func (LineMetadataParser) ParseDir(dir string) ([]*ObjectType, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read object type source dir: %w", err)
	}

	var out []*ObjectType
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".py") {
			continue
		}
		t, err := parseFile(filepath.Join(dir, e.Name()))
		if err != nil {
			out = append(out, &ObjectType{
				Name:     strings.TrimSuffix(e.Name(), ".py"),
				Disabled: true,
				Problem:  err.Error(),
			})
			continue
		}
		if t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func parseFile(path string) (*ObjectType, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var t *ObjectType
	var pendingMeta []string
	var pendingAction *ActionSignature

	flushAction := func() {
		if t != nil && pendingAction != nil {
			pendingAction.Blocking = containsToken(pendingMeta, "blocking")
			pendingAction.Composite = containsToken(pendingMeta, "composite")
			pendingAction.Blackbox = containsToken(pendingMeta, "blackbox")
			t.Actions = append(t.Actions, *pendingAction)
		}
		pendingAction = nil
		pendingMeta = nil
	}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()

		if m := classRe.FindStringSubmatch(line); m != nil {
			flushAction()
			t = &ObjectType{Name: m[1], Base: m[2], Family: familyOf(m[2])}
			continue
		}
		if t == nil {
			continue
		}
		if m := defRe.FindStringSubmatch(line); m != nil {
			flushAction()
			name := m[1]
			if strings.HasPrefix(name, "_") {
				continue
			}
			pendingAction = &ActionSignature{
				Name:       name,
				Parameters: parseParams(m[2]),
				Returns:    parseReturns(m[3]),
			}
			continue
		}
		if m := metaRe.FindStringSubmatch(line); m != nil {
			pendingMeta = append(pendingMeta, strings.FieldsFunc(m[1], func(r rune) bool { return r == ',' || r == ' ' })...)
			continue
		}
		if m := docRe.FindStringSubmatch(line); m != nil && t.Description == "" {
			t.Description = strings.TrimSpace(m[1])
		}
	}
	flushAction()
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("no class declaration found")
	}
	return t, nil
}

func familyOf(base string) BaseFamily {
	switch base {
	case string(FamilyGeneric), string(FamilyGenericWithPose), string(FamilyCollisionObject), string(FamilyRobot):
		return BaseFamily(base)
	}
	return ""
}

func containsToken(tokens []string, want string) bool {
	for _, tok := range tokens {
		if strings.TrimSpace(tok) == want {
			return true
		}
	}
	return false
}

func parseParams(raw string) []ActionParamSpec {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []ActionParamSpec
	for _, part := range splitTopLevel(raw, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, rest := part, ""
		if i := strings.Index(part, ":"); i >= 0 {
			name, rest = part[:i], part[i+1:]
		}
		name = strings.TrimSpace(name)
		typ := strings.TrimSpace(rest)
		var def *string
		if i := strings.Index(typ, "="); i >= 0 {
			d := strings.TrimSpace(typ[i+1:])
			typ = strings.TrimSpace(typ[:i])
			def = &d
		}
		out = append(out, ActionParamSpec{Name: name, Type: typ, Default: def})
	}
	return out
}

func parseReturns(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "None" {
		return nil
	}
	raw = strings.TrimPrefix(raw, "Tuple[")
	raw = strings.TrimSuffix(raw, "]")
	var out []string
	for _, p := range splitTopLevel(raw, ',') {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitTopLevel splits on sep but ignores occurrences nested inside
// brackets, since parameter default values may themselves be lists/dicts.
func splitTopLevel(s string, sep rune) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}
