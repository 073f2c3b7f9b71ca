package hub

import (
	"fmt"

	lua "github.com/Shopify/go-lua"

	"github.com/adchub/adchub/adc"
)

// LoadScript compiles and runs a Lua script that registers SERV chat
// commands. The script calls the global function "register(name, fn)";
// fn receives the sender's SID as a string and the command's argument
// string, and returns a reply string. This mirrors the myip plugin's
// Init-time RegisterCommand call, but lets an operator add commands
// without recompiling the hub.
func (h *Hub) LoadScript(name, src string) error {
	l := lua.NewState()
	lua.OpenLibraries(l)

	l.Register("register", h.luaRegister(l, name))

	if err := lua.DoString(l, src); err != nil {
		return fmt.Errorf("hub: script %s: %w", name, err)
	}
	return nil
}

// luaRegister returns the Go function backing the Lua-visible "register"
// global for one loaded script. Each registered Lua function is wrapped as
// a CommandFunc that re-enters the same Lua state under the hub's single
// deferred worker, so two scripted commands never run the Lua state
// concurrently.
func (h *Hub) luaRegister(l *lua.State, scriptName string) lua.Function {
	return func(l *lua.State) int {
		name, _ := l.ToString(1)
		if !l.IsFunction(-1) {
			l.PushString("register: second argument must be a function")
			l.Error()
			return 0
		}
		ref := lua.Ref(l, lua.RegistryIndex)
		h.RegisterCommand(name, func(sender adc.SID, args string) (string, bool) {
			l.RawGetInt(lua.RegistryIndex, ref)
			l.PushString(string(sender))
			l.PushString(args)
			if err := l.ProtectedCall(2, 1, 0); err != nil {
				h.Logf("hub: script %s: command %s: %v", scriptName, name, err)
				return "", false
			}
			reply, _ := l.ToString(-1)
			l.Pop(1)
			return reply, reply != ""
		})
		return 0
	}
}
