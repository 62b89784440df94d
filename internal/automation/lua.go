package automation

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// defaultCodeTimeout bounds a custom-code condition.
const defaultCodeTimeout = 2 * time.Second

// blockedGlobals are removed from every condition state: no file, process
// or module access.
var blockedGlobals = []string{
	"os", "io", "loadfile", "dofile", "require",
	"load", "loadstring", "debug", "package",
}

// codeEnv is the read-only view a custom-code condition gets.
type codeEnv struct {
	now       time.Time
	variables map[string]bool
}

// evalCode runs a custom-code condition in a fresh sandboxed Lua state.
//
// The chunk's first return value decides the result: an error or a literal
// false fails, anything else (including no return value) passes.
//
// Globals available to the chunk:
//   - variables: table of every set variable
//   - now: table with year, month, day, hour, minute, second and weekday
//     (1 = Sunday)
func evalCode(ctx context.Context, code string, env codeEnv, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = defaultCodeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	defer L.Close()

	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetContext(ctx)

	vars := L.NewTable()
	for name, val := range env.variables {
		vars.RawSetString(name, lua.LBool(val))
	}
	L.SetGlobal("variables", vars)

	now := L.NewTable()
	now.RawSetString("year", lua.LNumber(env.now.Year()))
	now.RawSetString("month", lua.LNumber(env.now.Month()))
	now.RawSetString("day", lua.LNumber(env.now.Day()))
	now.RawSetString("hour", lua.LNumber(env.now.Hour()))
	now.RawSetString("minute", lua.LNumber(env.now.Minute()))
	now.RawSetString("second", lua.LNumber(env.now.Second()))
	now.RawSetString("weekday", lua.LNumber(env.now.Weekday()+1))
	L.SetGlobal("now", now)

	fn, err := L.LoadString(code)
	if err != nil {
		return false, fmt.Errorf("compiling condition: %w", err)
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return false, fmt.Errorf("running condition: %w", err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret != lua.LFalse, nil
}
