// Package kube interprets structured kubectl output and reads the local
// kubeconfig scope.
package kube

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/client-go/tools/clientcmd"
)

var ErrParse = errors.New("failed to parse JSON output")

// ParseNamespaces returns namespace names in the order kubectl listed them.
func ParseNamespaces(out string) ([]string, error) {
	var list corev1.NamespaceList
	if err := decode(out, &list); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	return names, nil
}

// Binding is a cluster role binding as shown by list-roles.
type Binding struct {
	Name    string
	RoleRef string
	// MatchedUsers holds the User subjects whose name equals the caller.
	MatchedUsers []string
}

// ParseClusterRoleBindings returns every binding in out, marking the User
// subjects named user.
func ParseClusterRoleBindings(out, user string) ([]Binding, error) {
	var list rbacv1.ClusterRoleBindingList
	if err := decode(out, &list); err != nil {
		return nil, err
	}
	bindings := make([]Binding, 0, len(list.Items))
	for _, crb := range list.Items {
		b := Binding{Name: crb.Name, RoleRef: crb.RoleRef.Name}
		for _, s := range crb.Subjects {
			if s.Kind == rbacv1.UserKind && s.Name == user {
				b.MatchedUsers = append(b.MatchedUsers, s.Name)
			}
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

func decode(out string, v any) error {
	out = strings.TrimSpace(out)
	if out == "" {
		return fmt.Errorf("%w: empty output", ErrParse)
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

// Scope is the active kubeconfig context and its namespace.
type Scope struct {
	Context   string
	Namespace string
}

func (s Scope) Empty() bool {
	return s.Context == "" && s.Namespace == ""
}

// CurrentScope reads the kubeconfig using the standard loading rules
// ($KUBECONFIG, then ~/.kube/config). kubeconfigPath overrides both when set.
func CurrentScope(kubeconfigPath string) (Scope, error) {
	loader := clientcmd.NewDefaultClientConfigLoadingRules()
	if p := strings.TrimSpace(kubeconfigPath); p != "" {
		loader.ExplicitPath = p
	}
	cfg := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loader, &clientcmd.ConfigOverrides{})
	raw, err := cfg.RawConfig()
	if err != nil {
		return Scope{}, fmt.Errorf("load kubeconfig: %w", err)
	}
	scope := Scope{Context: raw.CurrentContext}
	if scope.Context == "" {
		return scope, nil
	}
	ns, _, err := cfg.Namespace()
	if err != nil {
		return scope, fmt.Errorf("resolve namespace: %w", err)
	}
	scope.Namespace = ns
	return scope, nil
}
