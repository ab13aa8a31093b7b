package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/contenttype"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service/workflow"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCmd_Structure(t *testing.T) {
	if rootCmd.Use != "scenebrief" {
		t.Errorf("expected 'scenebrief', got '%s'", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("expected non-empty short description")
	}

	want := map[string]bool{"generate": false, "plan": false, "validate": false, "init": false, "roles": false, "types": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %s", name)
		}
	}
}

func TestInputFlags_FileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inputs.yaml")
	doc := "product: Oat milk\ntone: calm\nextra:\n  season: winter\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("writing inputs: %v", err)
	}

	f := inputFlags{file: path, tone: "playful", extra: map[string]string{"hashtag": "#oat"}}
	in, err := f.inputs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Product != "Oat milk" {
		t.Errorf("Product = %q", in.Product)
	}
	if in.Tone != "playful" {
		t.Errorf("Tone = %q, flag should win", in.Tone)
	}
	if in.Extra["season"] != "winter" || in.Extra["hashtag"] != "#oat" {
		t.Errorf("Extra = %v", in.Extra)
	}
}

func TestInputFlags_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inputs.yaml")
	if err := os.WriteFile(path, []byte("product: [unclosed"), 0o600); err != nil {
		t.Fatalf("writing inputs: %v", err)
	}
	if _, err := (&inputFlags{file: path}).inputs(); err == nil {
		t.Error("expected error for malformed inputs")
	}
	if _, err := (&inputFlags{file: path + ".missing"}).inputs(); err == nil {
		t.Error("expected error for missing inputs file")
	}
}

func TestSuggest(t *testing.T) {
	got := suggest("teaser", contenttype.BuiltinIDs())
	if got != "launch-teaser" {
		t.Errorf("suggest = %q", got)
	}
	if got := suggest("zzz", contenttype.BuiltinIDs()); got != "" {
		t.Errorf("suggest = %q, want none", got)
	}
}

func TestLoadContentType_Required(t *testing.T) {
	if _, err := loadContentType(""); err == nil {
		t.Error("expected error without a content type")
	}
	ct, err := loadContentType("quick-ad")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := describe(ct); !strings.Contains(got, "single_prompt, 3-3 scenes") {
		t.Errorf("describe = %q", got)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if _, err := execute(t, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, name := range []string{".scenebrief.yaml", filepath.Join("content-types", "product-ad.yaml")} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}

	if _, err := execute(t, "init"); err == nil {
		t.Error("expected error when files exist")
	}
	if _, err := execute(t, "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	custom := `workflow:
  execution_order: custom
  agents:
    - {id: strategy, role: strategist, writes_to: [angle]}
    - {id: copy, role: copywriter, reads_from: [angle], writes_to: [headline]}
    - {id: assembler, role: scene assembler, reads_from: [headline]}
`
	if err := os.WriteFile(good, []byte(custom), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("strategy: batch\nworkflow: [copywriter]"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "validate", good)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "final assembler") || !strings.Contains(out, "level 2: copy") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = execute(t, "validate", good, bad)
	if err == nil {
		t.Fatal("expected error for invalid content type")
	}
	if !strings.Contains(out, "bad.yaml") {
		t.Errorf("output should name the failing file:\n%s", out)
	}
}

func TestRoles(t *testing.T) {
	out, err := execute(t, "roles")
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if !strings.Contains(out, "scene-assembler") {
		t.Errorf("roles output missing scene-assembler:\n%s", out)
	}

	out, err = execute(t, "roles", "show", "copywriter")
	if err != nil || out == "" {
		t.Fatalf("roles show: %v", err)
	}

	_, err = execute(t, "roles", "show", "plannr")
	if err == nil || !strings.Contains(err.Error(), "scene-planner") {
		t.Errorf("expected suggestion, got %v", err)
	}
}

func TestTypes(t *testing.T) {
	out, err := execute(t, "types")
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	for _, id := range contenttype.BuiltinIDs() {
		if !strings.Contains(out, id) {
			t.Errorf("types output missing %s", id)
		}
	}

	out, err = execute(t, "types", "show", "quick-ad")
	if err != nil || !strings.Contains(out, "single_prompt") {
		t.Errorf("types show: %v\n%s", err, out)
	}
}

func TestPlan_DryRun(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "plan", "-t", "quick-ad", "--product", "Oat milk", "--dry-run", "--json")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	var plan []map[string]any
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("decoding plan: %v\n%s", err, out)
	}
	if len(plan) != 3 {
		t.Errorf("plan has %d scenes, want 3", len(plan))
	}
}

func TestGenerate_DryRun(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := execute(t, "generate", "-t", "product-ad", "--product", "Oat milk", "--platform", "tiktok",
		"--dry-run", "-q", "-o", "brief.json")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "brief.json"))
	if err != nil {
		t.Fatalf("reading brief: %v", err)
	}
	var res workflow.GenerationResult
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decoding brief: %v", err)
	}
	if res.ContentType != "product-ad" || len(res.Scenes) < 3 {
		t.Errorf("unexpected brief: %s, %d scenes", res.ContentType, len(res.Scenes))
	}
	if res.RenderingSpec.AspectRatio != "9:16" {
		t.Errorf("aspect ratio = %q, want 9:16 for tiktok", res.RenderingSpec.AspectRatio)
	}
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3", "abc", "today")
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "scenebrief 1.2.3") {
		t.Errorf("version output = %q", out)
	}
}
