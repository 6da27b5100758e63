package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kubilitics/aicli/internal/kube"
	"github.com/kubilitics/aicli/internal/runner"
	"github.com/kubilitics/aicli/internal/templates"
)

const (
	cmdListContexts   = "kubectl config get-contexts -o name"
	cmdListNamespaces = "kubectl get namespaces -o json"
	cmdMonitorNodes   = "kubectl top nodes"
	cmdListRoles      = "kubectl get clusterrolebindings -o json"
)

func (d *Dispatcher) ListContexts(ctx context.Context) *Outcome {
	return d.run(ctx, OpListContexts, fixed(cmdListContexts), nil)
}

func (d *Dispatcher) SetContext(ctx context.Context, name string) *Outcome {
	return d.run(ctx, OpSetContext, func(_ context.Context, o *Outcome) (string, error) {
		name = strings.TrimSpace(name)
		if name == "" {
			return "", buildError(o, "A context name is required.", fmt.Errorf("empty context name"))
		}
		return "kubectl config use-context " + templates.QuoteArg(name), nil
	}, nil)
}

func (d *Dispatcher) ListNamespaces(ctx context.Context) *Outcome {
	return d.run(ctx, OpListNamespaces, fixed(cmdListNamespaces), func(o *Outcome, res *runner.Result) {
		if res.Failed() {
			o.add(KindOutput, res.Output())
			return
		}
		names, err := kube.ParseNamespaces(res.Stdout)
		if err != nil {
			d.parseFailed(o, err)
			return
		}
		lines := make([]string, 0, len(names)+1)
		lines = append(lines, "Available namespaces:")
		for _, ns := range names {
			lines = append(lines, "- "+ns)
		}
		o.add(KindOutput, strings.Join(lines, "\n"))
	})
}

// Execute interprets text into a command, asks for confirmation when the
// command may mutate the cluster, runs it and advises on errors.
func (d *Dispatcher) Execute(ctx context.Context, text string) *Outcome {
	return d.run(ctx, OpExecute, func(ctx context.Context, o *Outcome) (string, error) {
		text = strings.TrimSpace(text)
		if text == "" {
			return "", buildError(o, "Nothing to execute: describe what you want to do.", fmt.Errorf("empty request"))
		}
		if d.interpreter == nil {
			return "", buildError(o, "Failed to interpret request: no interpreter configured", fmt.Errorf("no interpreter configured"))
		}
		cmd, err := d.interpreter.Interpret(ctx, text)
		if err != nil {
			d.log.Error("interpretation failed", zap.String("input", text), zap.Error(err))
			return "", buildError(o, "Failed to interpret request: "+err.Error(), err)
		}
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			return "", buildError(o, "Failed to interpret request: empty command", fmt.Errorf("interpreter returned an empty command"))
		}
		o.Command = cmd
		if d.confirmer != nil && runner.IsMutating(cmd) {
			ok, err := d.confirmer.Confirm(ctx, cmd)
			if err != nil {
				return "", buildError(o, "Aborted: "+err.Error(), fmt.Errorf("%w: %w", ErrAborted, err))
			}
			if !ok {
				return "", buildError(o, "Aborted.", ErrAborted)
			}
		}
		o.add(KindInfo, "Executing: "+cmd)
		return cmd, nil
	}, nil)
}

// Custom renders the named template. pod_name defaults to "" and namespace
// to "default"; params may fill any other placeholder.
func (d *Dispatcher) Custom(ctx context.Context, name string, params map[string]string) *Outcome {
	return d.run(ctx, OpCustom, func(_ context.Context, o *Outcome) (string, error) {
		values := map[string]string{
			templates.ParamPodName:   "",
			templates.ParamNamespace: templates.DefaultNamespace,
		}
		for k, v := range params {
			values[k] = v
		}
		if values[templates.ParamNamespace] == "" {
			values[templates.ParamNamespace] = templates.DefaultNamespace
		}
		cmd, err := d.templates.Build(name, values)
		switch {
		case errors.Is(err, templates.ErrTemplateNotFound):
			return "", buildError(o, "No custom command found with the name: "+name, err)
		case err != nil:
			return "", buildError(o, "Failed to build custom command: "+err.Error(), err)
		}
		d.log.Info("Executing custom command", zap.String("command", cmd))
		return cmd, nil
	}, nil)
}

func (d *Dispatcher) MonitorPods(ctx context.Context, namespace string) *Outcome {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = templates.DefaultNamespace
	}
	return d.run(ctx, OpMonitorPods, fixed("kubectl top pods -n "+templates.QuoteArg(namespace)), nil)
}

func (d *Dispatcher) MonitorNodes(ctx context.Context) *Outcome {
	return d.run(ctx, OpMonitorNodes, fixed(cmdMonitorNodes), nil)
}

// ListRoles lists every cluster role binding and marks the ones whose User
// subjects match the caller.
func (d *Dispatcher) ListRoles(ctx context.Context) *Outcome {
	return d.run(ctx, OpListRoles, fixed(cmdListRoles), func(o *Outcome, res *runner.Result) {
		if res.Failed() {
			o.add(KindOutput, res.Output())
			return
		}
		bindings, err := kube.ParseClusterRoleBindings(res.Stdout, o.User)
		if err != nil {
			d.parseFailed(o, err)
			return
		}
		var lines []string
		for _, b := range bindings {
			lines = append(lines, "Role: "+b.Name)
			for _, u := range b.MatchedUsers {
				lines = append(lines, "  User: "+u+" (matched)")
			}
		}
		o.add(KindOutput, strings.Join(lines, "\n"))
	})
}

// Explain asks the explainer about text. No subprocess is started; an
// explainer failure ends the invocation in StateBuildFailed.
func (d *Dispatcher) Explain(ctx context.Context, text string) *Outcome {
	inv, ok := d.authorize(OpExplain)
	if !ok {
		return inv.out
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return d.failBuild(inv, fmt.Errorf("empty output"), "Nothing to explain.")
	}
	if d.explainer == nil {
		return d.failBuild(inv, fmt.Errorf("no explainer configured"), "Explanation unavailable: no explainer configured")
	}
	explanation, err := d.explainer.Explain(ctx, text)
	if err != nil {
		d.log.Warn("explainer failed", zap.Error(err))
		return d.failBuild(inv, err, "Explanation unavailable: "+err.Error())
	}
	inv.out.State = StateClean
	inv.out.add(KindExplanation, strings.TrimSpace(explanation))
	d.finish(inv)
	return inv.out
}

// Whoami reports the caller's identity. It needs no permission and runs
// nothing.
func (d *Dispatcher) Whoami(context.Context) *Outcome {
	inv, _ := d.authorize(OpWhoami)
	o := inv.out
	perms := d.roles.Permissions(o.Role)
	permText := "(none)"
	if len(perms) > 0 {
		permText = strings.Join(perms, ", ")
	}
	o.State = StateClean
	o.add(KindOutput, fmt.Sprintf("User: %s\nRole: %s\nPermissions: %s", o.User, o.Role, permText))
	d.finish(inv)
	return o
}

func (d *Dispatcher) parseFailed(o *Outcome, err error) {
	d.log.Error("Failed to parse JSON output", zap.String("operation", o.Operation), zap.Error(err))
	o.add(KindError, "Failed to parse JSON output: "+strings.TrimPrefix(err.Error(), kube.ErrParse.Error()+": "))
}
