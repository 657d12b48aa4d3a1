package lua

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/mpataki/awinspect/internal/logging"
)

// DefaultTimeout bounds a single check script run.
const DefaultTimeout = 5 * time.Second

type Level string

const (
	LevelWarn Level = "warn"
	LevelFail Level = "fail"
)

// Finding is a problem reported by a check script.
type Finding struct {
	Script  string
	Level   Level
	Message string
}

// Script is a named Lua check.
type Script struct {
	Name   string
	Path   string
	Source string
}

// Input is the workflow as seen by check scripts.
type Input struct {
	Name        string
	Path        string
	Frontmatter map[string]any
	Files       []string
}

// Runtime executes Lua check scripts in a sandboxed environment
type Runtime struct {
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Runtime)

func WithTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.timeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		timeout: DefaultTimeout,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadScripts reads every .lua file from dirs, in directory order and then by
// name. Missing directories are skipped.
func LoadScripts(dirs ...string) ([]Script, error) {
	var scripts []Script
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read check directory: %w", err)
		}

		var names []string
		for _, entry := range entries {
			if !entry.IsDir() && IsLuaScript(entry.Name()) {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			source, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read script: %w", err)
			}
			scripts = append(scripts, Script{
				Name:   name[:len(name)-len(filepath.Ext(name))],
				Path:   path,
				Source: string(source),
			})
		}
	}
	return scripts, nil
}

// Run calls the script's check(wf) function and returns what it reported.
func (r *Runtime) Run(ctx context.Context, script Script, input Input) ([]Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load any libraries by default
	})
	defer L.Close()
	L.SetContext(ctx)

	r.openSafeLibs(L)

	var findings []Finding
	r.registerAPI(L, script.Name, &findings)

	if err := L.DoString(script.Source); err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}

	check := L.GetGlobal("check")
	if check.Type() != lua.LTFunction {
		return nil, fmt.Errorf("script must define a 'check' function")
	}

	L.Push(check)
	L.Push(r.inputToTable(L, input))
	if err := L.PCall(1, 0, nil); err != nil {
		return findings, fmt.Errorf("check failed: %w", err)
	}

	return findings, nil
}

// RunAll runs every script against input. A script that errors is reported
// as a fail finding of its own.
func (r *Runtime) RunAll(ctx context.Context, scripts []Script, input Input) []Finding {
	var all []Finding
	for _, script := range scripts {
		findings, err := r.Run(ctx, script, input)
		all = append(all, findings...)
		if err != nil {
			r.logger.Warn("check script failed", "script", script.Name, "error", err)
			all = append(all, Finding{Script: script.Name, Level: LevelFail, Message: err.Error()})
		}
	}
	return all
}

// openSafeLibs loads only the safe standard libraries
func (r *Runtime) openSafeLibs(L *lua.LState) {
	// Base library (pairs, ipairs, type, tostring, tonumber, error, etc.)
	lua.OpenBase(L)

	// Remove dangerous base functions
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // Use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Checks must give the same answer every time
	math := L.GetGlobal("math")
	if tbl, ok := math.(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func (r *Runtime) registerAPI(L *lua.LState, name string, findings *[]Finding) {
	report := func(level Level) lua.LGFunction {
		return func(L *lua.LState) int {
			*findings = append(*findings, Finding{
				Script:  name,
				Level:   level,
				Message: L.CheckString(1),
			})
			return 0
		}
	}

	L.SetGlobal("warn", L.NewFunction(report(LevelWarn)))
	L.SetGlobal("fail", L.NewFunction(report(LevelFail)))
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		r.logger.Debug("check script log", "script", name, "message", L.CheckString(1))
		return 0
	}))
}

func (r *Runtime) inputToTable(L *lua.LState, input Input) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "name", lua.LString(input.Name))
	L.SetField(tbl, "path", lua.LString(input.Path))

	fm := L.NewTable()
	for k, v := range input.Frontmatter {
		L.SetField(fm, k, r.goToLua(L, v))
	}
	L.SetField(tbl, "frontmatter", fm)

	files := L.NewTable()
	for i, f := range input.Files {
		L.SetTable(files, lua.LNumber(i+1), lua.LString(f))
	}
	L.SetField(tbl, "files", files)

	return tbl
}

// goToLua converts a decoded frontmatter value to a Lua value
func (r *Runtime) goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			L.SetTable(tbl, lua.LNumber(i+1), r.goToLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			L.SetField(tbl, k, r.goToLua(L, item))
		}
		return tbl
	case map[any]any:
		tbl := L.NewTable()
		for k, item := range val {
			L.SetField(tbl, fmt.Sprintf("%v", k), r.goToLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// IsLuaScript checks if a file is a Lua check script
func IsLuaScript(path string) bool {
	return filepath.Ext(path) == ".lua"
}
