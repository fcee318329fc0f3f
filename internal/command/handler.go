package command

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"pkt.systems/labterm/internal/vpath"
	"pkt.systems/labterm/schema"
)

// Env is the read-only context a command is evaluated against.
type Env struct {
	User    schema.UserID
	Host    string
	Lab     schema.LabID
	Path    vpath.Path
	Home    vpath.Path
	Now     time.Time
	History []string
	// Line is the command being run; Run fills it in.
	Line Command
}

// Result is the outcome of running a command. At most one of Lines and Clear
// is meaningful; ChangeDir marks Path as the new working directory.
type Result struct {
	Lines     []string
	Clear     bool
	ChangeDir bool
	Path      vpath.Path
	End       bool
}

// HandlerFunc computes the result of a command from its arguments.
// Handlers must be pure: the same env and args yield the same result.
type HandlerFunc func(env Env, args []string) Result

// Registry maps command names to handlers.
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry returns a registry with the built-in lab vocabulary.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]HandlerFunc)}
	for name, fn := range builtins() {
		r.Register(name, fn)
	}
	return r
}

// Register adds or replaces the handler for name. Names are case-insensitive.
func (r *Registry) Register(name string, fn HandlerFunc) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || fn == nil {
		return
	}
	r.handlers[name] = fn
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	fn, ok := r.handlers[strings.ToLower(name)]
	return fn, ok
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run evaluates cmd. Unknown names produce the not-found message.
func (r *Registry) Run(env Env, cmd Command) Result {
	fn, ok := r.Lookup(cmd.Name)
	if !ok {
		return Result{Lines: NotFound(cmd.Typed)}
	}
	args := cmd.Args
	if args == nil {
		args = []string{}
	}
	env.Line = cmd
	return fn(env, args)
}

// Exec parses and runs a shell line. Blank lines yield an empty result.
func (r *Registry) Exec(env Env, line string) (Command, Result) {
	cmd, ok := Parse(line)
	if !ok {
		return Command{}, Result{}
	}
	return cmd, r.Run(env, cmd)
}

// NotFound returns the two-line message for an unknown command.
func NotFound(typed string) []string {
	return []string{
		fmt.Sprintf("bash: %s: command not found", typed),
		"Type 'help' to see available commands.",
	}
}

// completionNames is the fixed Tab completion vocabulary.
var completionNames = []string{"help", "ls", "pwd", "cd", "clear", "cat", "docker", "kubectl", "python3", "node"}

// Complete returns the completion for input when exactly one name in the
// completion vocabulary starts with it.
func Complete(input string) (string, bool) {
	match := ""
	count := 0
	for _, name := range completionNames {
		if strings.HasPrefix(name, input) {
			match = name
			count++
		}
	}
	if count != 1 {
		return "", false
	}
	return match + " ", true
}
