package lua

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInput = Input{
	Name: "triage",
	Path: "/repo/.github/workflows/triage.md",
	Frontmatter: map[string]any{
		"on":          map[string]any{"schedule": "0 9 * * 1"},
		"permissions": map[string]any{"issues": "write"},
		"safe-outputs": map[string]any{
			"add-comment": map[string]any{"max": 1},
		},
		"timeout_minutes": 10,
		"tools":           []any{"github", "web-fetch"},
	},
	Files: []string{"shared/reporting.md", "triage.md"},
}

func TestRun_ReportsFindings(t *testing.T) {
	script := Script{Name: "permissions", Source: `
function check(wf)
  if wf.frontmatter.permissions.issues == "write" then
    warn(wf.name .. " can write issues")
  end
  if #wf.files < 3 then
    fail("expected at least 3 files, got " .. #wf.files)
  end
end
`}

	findings, err := NewRuntime().Run(context.Background(), script, testInput)
	require.NoError(t, err)
	assert.Equal(t, []Finding{
		{Script: "permissions", Level: LevelWarn, Message: "triage can write issues"},
		{Script: "permissions", Level: LevelFail, Message: "expected at least 3 files, got 2"},
	}, findings)
}

func TestRun_ConvertsFrontmatterValues(t *testing.T) {
	script := Script{Name: "values", Source: `
function check(wf)
  if wf.frontmatter.timeout_minutes > 5 then warn("long timeout") end
  if wf.frontmatter.tools[2] ~= "web-fetch" then fail("tools not converted") end
  if wf.frontmatter["safe-outputs"]["add-comment"].max ~= 1 then fail("nested map not converted") end
  if wf.frontmatter.on.schedule ~= "0 9 * * 1" then fail("schedule not converted") end
end
`}

	findings, err := NewRuntime().Run(context.Background(), script, testInput)
	require.NoError(t, err)
	assert.Equal(t, []Finding{{Script: "values", Level: LevelWarn, Message: "long timeout"}}, findings)
}

func TestRun_Sandbox(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"io", `function check(wf) io.write("x") end`},
		{"os", `function check(wf) os.exit(1) end`},
		{"dofile", `function check(wf) dofile("/etc/passwd") end`},
		{"load", `function check(wf) load("return 1")() end`},
		{"print", `function check(wf) print("hi") end`},
		{"random", `function check(wf) math.random() end`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuntime().Run(context.Background(), Script{Name: tt.name, Source: tt.source}, testInput)
			assert.Error(t, err)
		})
	}
}

func TestRun_MissingCheckFunction(t *testing.T) {
	_, err := NewRuntime().Run(context.Background(), Script{Name: "empty", Source: `x = 1`}, testInput)
	assert.ErrorContains(t, err, "must define a 'check' function")
}

func TestRun_SyntaxError(t *testing.T) {
	_, err := NewRuntime().Run(context.Background(), Script{Name: "broken", Source: `function check(wf`}, testInput)
	assert.ErrorContains(t, err, "failed to load script")
}

func TestRun_Timeout(t *testing.T) {
	rt := NewRuntime(WithTimeout(50 * time.Millisecond))
	_, err := rt.Run(context.Background(), Script{Name: "loop", Source: `function check(wf) while true do end end`}, testInput)
	assert.Error(t, err)
}

func TestRunAll_ScriptErrorBecomesFinding(t *testing.T) {
	scripts := []Script{
		{Name: "ok", Source: `function check(wf) warn("fine") end`},
		{Name: "boom", Source: `function check(wf) error("kaboom") end`},
	}

	findings := NewRuntime().RunAll(context.Background(), scripts, testInput)
	require.Len(t, findings, 2)
	assert.Equal(t, Finding{Script: "ok", Level: LevelWarn, Message: "fine"}, findings[0])
	assert.Equal(t, "boom", findings[1].Script)
	assert.Equal(t, LevelFail, findings[1].Level)
	assert.Contains(t, findings[1].Message, "kaboom")
}

func TestLoadScripts(t *testing.T) {
	user := t.TempDir()
	project := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(user, "b.lua"), []byte("-- b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(user, "a.lua"), []byte("-- a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(user, "notes.md"), []byte("skip"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(project, "c.lua"), []byte("-- c"), 0644))

	scripts, err := LoadScripts(user, filepath.Join(t.TempDir(), "missing"), project)
	require.NoError(t, err)

	var names []string
	for _, s := range scripts {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, "-- a", scripts[0].Source)
	assert.Equal(t, filepath.Join(project, "c.lua"), scripts[2].Path)
}
