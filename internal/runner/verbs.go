package runner

import (
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
)

var mutatingVerbs = map[string]struct{}{
	"apply": {}, "delete": {}, "edit": {}, "patch": {}, "replace": {},
	"create": {}, "run": {}, "drain": {}, "taint": {}, "set": {}, "expose": {},
	"rollout": {}, "scale": {}, "autoscale": {}, "label": {}, "annotate": {},
	"cordon": {}, "uncordon": {}, "cp": {}, "exec": {},
	"debug": {}, "attach": {}, "port-forward": {},
}

// kubectl config subcommands that rewrite the kubeconfig.
var mutatingConfigSubcommands = map[string]struct{}{
	"set-context": {}, "use-context": {}, "use": {}, "delete-context": {}, "rename-context": {},
	"set-cluster": {}, "delete-cluster": {}, "set-credentials": {}, "delete-user": {},
	"set": {}, "unset": {},
}

var readOnlyRolloutSubcommands = map[string]struct{}{
	"status": {}, "history": {},
}

// kubectl global flags that consume the following token.
var valueFlags = map[string]struct{}{
	"--context": {}, "-n": {}, "--namespace": {}, "--kubeconfig": {},
	"--cluster": {}, "--user": {}, "-s": {}, "--server": {}, "--token": {},
	"--as": {}, "--as-group": {}, "--request-timeout": {},
}

// IsMutating reports whether command may change cluster state. Commands that
// cannot be parsed, contain shell control operators, or do not invoke
// kubectl are treated as mutating.
func IsMutating(command string) bool {
	if strings.ContainsAny(command, "|;&<>`$\n") {
		return true
	}
	words, err := shellquote.Split(command)
	if err != nil || len(words) == 0 {
		return true
	}
	if strings.TrimSuffix(filepath.Base(words[0]), ".exe") != "kubectl" {
		return true
	}
	cmdWords := commandWords(words[1:])
	if len(cmdWords) == 0 {
		return false
	}
	verb := strings.ToLower(cmdWords[0])
	if verb == "config" {
		if len(cmdWords) < 2 {
			return false
		}
		_, ok := mutatingConfigSubcommands[strings.ToLower(cmdWords[1])]
		return ok
	}
	if _, ok := mutatingVerbs[verb]; !ok {
		return false
	}
	if verb == "rollout" && len(cmdWords) > 1 {
		if _, ok := readOnlyRolloutSubcommands[strings.ToLower(cmdWords[1])]; ok {
			return false
		}
	}
	return true
}

// commandWords drops global flags (and their values) and returns the
// positional words in order.
func commandWords(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := strings.TrimSpace(args[i])
		if a == "" {
			continue
		}
		if _, ok := valueFlags[a]; ok {
			i++
			continue
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		out = append(out, a)
	}
	return out
}
