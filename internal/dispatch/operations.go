package dispatch

import "github.com/kubilitics/aicli/internal/roles"

// Operation names.
const (
	OpListContexts   = "list-contexts"
	OpSetContext     = "set-context"
	OpListNamespaces = "list-namespaces"
	OpExecute        = "execute"
	OpCustom         = "custom"
	OpExplain        = "explain"
	OpMonitorPods    = "monitor-pods"
	OpMonitorNodes   = "monitor-nodes"
	OpListRoles      = "list-roles"
	OpWhoami         = "whoami"
)

const (
	deniedExecute = "You do not have permission to execute this command."
	deniedExplain = "You do not have permission to explain this command output."
	deniedRoles   = "You do not have permission to view roles."
)

// Operation is a statically defined, permission-gated action.
type Operation struct {
	Name string
	// Permission is the token the caller's role must hold. Empty means the
	// operation is open to everyone.
	Permission string
	// Advise requests a recovery suggestion when the result signals an error.
	Advise      bool
	Description string
	Denied      string
}

var operations = []Operation{
	{Name: OpListContexts, Permission: roles.PermExecute, Description: "List available Kubernetes contexts.", Denied: deniedExecute},
	{Name: OpSetContext, Permission: roles.PermExecute, Description: "Set the current Kubernetes context.", Denied: deniedExecute},
	{Name: OpListNamespaces, Permission: roles.PermExecute, Description: "List available namespaces in the current context.", Denied: deniedExecute},
	{Name: OpExecute, Permission: roles.PermExecute, Advise: true, Description: "Execute a Kubernetes command using natural language input.", Denied: deniedExecute},
	{Name: OpCustom, Permission: roles.PermExecute, Advise: true, Description: "Execute a custom Kubernetes command.", Denied: deniedExecute},
	{Name: OpExplain, Permission: roles.PermExplain, Description: "Explain the output of a Kubernetes command.", Denied: deniedExplain},
	{Name: OpMonitorPods, Permission: roles.PermExecute, Description: "Monitor CPU and memory usage of all pods in a namespace.", Denied: deniedExecute},
	{Name: OpMonitorNodes, Permission: roles.PermExecute, Description: "Monitor CPU and memory usage of all nodes.", Denied: deniedExecute},
	{Name: OpListRoles, Permission: roles.PermViewRoles, Description: "List roles for the current user.", Denied: deniedRoles},
	{Name: OpWhoami, Description: "Show the current user, role and permissions."},
}

// Operations returns a copy of the registry in display order.
func Operations() []Operation {
	out := make([]Operation, len(operations))
	copy(out, operations)
	return out
}

func Lookup(name string) (Operation, bool) {
	for _, op := range operations {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}

func mustLookup(name string) Operation {
	op, ok := Lookup(name)
	if !ok {
		panic("dispatch: unregistered operation " + name)
	}
	return op
}
