package objecttype

import (
	"os"
	"path/filepath"
	"testing"
)

const dobotSource = `class Dobot(Robot):
    """Dobot M1 collaborative arm."""

    def move_to_pose(self, pose: Pose, speed: float = 0.5) -> None:
        # actionMetadata: blocking
        pass

    def get_end_effectors(self) -> Tuple[str]:
        pass

    def _internal_helper(self) -> None:
        pass
`

func writeTempSource(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp source: %v", err)
	}
	return dir
}

func TestLineMetadataParserParseDir(t *testing.T) {
	dir := writeTempSource(t, "dobot.py", dobotSource)

	types, err := (LineMetadataParser{}).ParseDir(dir)
	if err != nil {
		t.Fatalf("ParseDir failed: %v", err)
	}
	if len(types) != 1 {
		t.Fatalf("expected 1 type, got %d", len(types))
	}

	dobot := types[0]
	if dobot.Name != "Dobot" || dobot.Base != "Robot" {
		t.Errorf("Name/Base = %q/%q, want Dobot/Robot", dobot.Name, dobot.Base)
	}
	if dobot.Description != "Dobot M1 collaborative arm." {
		t.Errorf("Description = %q", dobot.Description)
	}
	if len(dobot.Actions) != 2 {
		t.Fatalf("expected 2 public actions (helper excluded), got %d: %+v", len(dobot.Actions), dobot.Actions)
	}

	move, ok := dobot.ActionByName("move_to_pose")
	if !ok {
		t.Fatal("move_to_pose not found")
	}
	if !move.Blocking {
		t.Error("expected move_to_pose to be blocking")
	}
	if len(move.Parameters) != 2 || move.Parameters[0].Name != "pose" {
		t.Errorf("unexpected parameters: %+v", move.Parameters)
	}

	eef, ok := dobot.ActionByName("get_end_effectors")
	if !ok {
		t.Fatal("get_end_effectors not found")
	}
	if len(eef.Returns) != 1 || eef.Returns[0] != "str" {
		t.Errorf("Returns = %v, want [str]", eef.Returns)
	}
}

func TestLineMetadataParserInvalidFileDisabled(t *testing.T) {
	dir := writeTempSource(t, "broken.py", "not a class at all\n")

	types, err := (LineMetadataParser{}).ParseDir(dir)
	if err != nil {
		t.Fatalf("ParseDir failed: %v", err)
	}
	if len(types) != 1 || !types[0].Disabled {
		t.Fatalf("expected one disabled type, got %+v", types)
	}
}
