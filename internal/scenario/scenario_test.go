package scenario

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
name: desert
description: Armored clash in open terrain
teams: [blue, red]
turn_duration_seconds: 300
units:
  blue:
    - id: tank1
      name: 1st Armored
      type: armor
      sidc: SFGPUCA---
  red:
    - id: inf1
      name: 2nd Infantry
      type: infantry
`

func TestParseValid(t *testing.T) {
	s, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Name != "desert" {
		t.Errorf("name = %q, want desert", s.Name)
	}
	if len(s.Teams) != 2 {
		t.Errorf("teams = %v, want [blue red]", s.Teams)
	}
	if len(s.Units["blue"]) != 1 || s.Units["blue"][0].ID != "tank1" {
		t.Errorf("blue units = %+v, want tank1", s.Units["blue"])
	}
	if s.TurnDurationSeconds != 300 {
		t.Errorf("turn duration = %v, want 300", s.TurnDurationSeconds)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", "teams: [blue, red]"},
		{"one team", "name: x\nteams: [blue]"},
		{"duplicate team", "name: x\nteams: [blue, blue]"},
		{"unknown team units", "name: x\nteams: [blue, red]\nunits:\n  green:\n    - id: u1"},
		{"unit without id", "name: x\nteams: [blue, red]\nunits:\n  blue:\n    - name: nameless"},
		{"duplicate unit id", "name: x\nteams: [blue, red]\nunits:\n  blue:\n    - id: u1\n    - id: u1"},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("desert.yaml", validYAML)
	write("broken.yaml", "teams: [blue]")
	write("notes.txt", "not a scenario")

	catalog, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if catalog.Len() != 1 {
		t.Fatalf("catalog size = %d, want 1 (invalid and non-yaml files skipped)", catalog.Len())
	}
	if _, ok := catalog.Get("desert"); !ok {
		t.Error("expected desert scenario in catalog")
	}
	if names := catalog.Names(); len(names) != 1 || names[0] != "desert" {
		t.Errorf("names = %v, want [desert]", names)
	}
}

func TestLoadDirMissing(t *testing.T) {
	catalog, err := LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if catalog.Len() != 0 {
		t.Errorf("catalog size = %d, want 0", catalog.Len())
	}
}
