package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kubilitics/aicli/internal/dispatch"
	"github.com/kubilitics/aicli/internal/templates"
)

func newListContextsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     dispatch.OpListContexts,
		Short:   "List available cluster contexts",
		GroupID: "cluster",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, d *dispatch.Dispatcher) *dispatch.Outcome {
				return d.ListContexts(ctx)
			})
		},
	}
}

func newSetContextCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     dispatch.OpSetContext + " <name>",
		Short:   "Switch the active cluster context",
		GroupID: "cluster",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, d *dispatch.Dispatcher) *dispatch.Outcome {
				return d.SetContext(ctx, args[0])
			})
		},
	}
}

func newListNamespacesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     dispatch.OpListNamespaces,
		Short:   "List namespaces in the current cluster",
		GroupID: "cluster",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, d *dispatch.Dispatcher) *dispatch.Outcome {
				return d.ListNamespaces(ctx)
			})
		},
	}
}

func newMonitorPodsCmd(a *app) *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:     dispatch.OpMonitorPods,
		Short:   "Show pod resource usage",
		GroupID: "cluster",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, d *dispatch.Dispatcher) *dispatch.Outcome {
				return d.MonitorPods(ctx, namespace)
			})
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", templates.DefaultNamespace, "namespace to inspect")
	return cmd
}

func newMonitorNodesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     dispatch.OpMonitorNodes,
		Short:   "Show node resource usage",
		GroupID: "cluster",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, d *dispatch.Dispatcher) *dispatch.Outcome {
				return d.MonitorNodes(ctx)
			})
		},
	}
}

func newExecuteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     dispatch.OpExecute + " <request...>",
		Short:   "Translate a request into a kubectl command and run it",
		Example: "  aicli execute list all pods in the payments namespace",
		GroupID: "ai",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return a.run(cmd, func(ctx context.Context, d *dispatch.Dispatcher) *dispatch.Outcome {
				return d.Execute(ctx, text)
			})
		},
	}
}

func newCustomCmd(a *app) *cobra.Command {
	var (
		podName   string
		namespace string
		extra     map[string]string
		list      bool
	)
	cmd := &cobra.Command{
		Use:   dispatch.OpCustom + " <name>",
		Short: "Run a named custom command template",
		Example: "  aicli custom pod-logs --pod_name api-7d9 --namespace payments\n" +
			"  aicli custom top-by-label --param label=app=web",
		GroupID: "cluster",
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return a.listTemplates(cmd.OutOrStdout())
			}
			params := make(map[string]string, len(extra)+2)
			for k, v := range extra {
				params[k] = v
			}
			params[templates.ParamPodName] = podName
			params[templates.ParamNamespace] = namespace
			return a.run(cmd, func(ctx context.Context, d *dispatch.Dispatcher) *dispatch.Outcome {
				return d.Custom(ctx, args[0], params)
			})
		},
	}
	cmd.Flags().StringVar(&podName, templates.ParamPodName, "", "value for {pod_name}")
	cmd.Flags().StringVarP(&namespace, templates.ParamNamespace, "n", templates.DefaultNamespace, "value for {namespace}")
	cmd.Flags().StringToStringVar(&extra, "param", nil, "extra placeholder values as key=value")
	cmd.Flags().BoolVar(&list, "list", false, "list the configured templates")
	return cmd
}

func (a *app) listTemplates(w io.Writer) error {
	catalog, err := templates.Load(a.cfg.Templates.Path)
	if err != nil {
		return err
	}
	if catalog.Len() == 0 {
		fmt.Fprintf(w, "No custom commands defined in %s\n", a.cfg.Templates.Path)
		return nil
	}
	for _, name := range catalog.Names() {
		tpl, _ := catalog.Lookup(name)
		fmt.Fprintf(w, "%s\t%s\n", name, tpl)
	}
	return nil
}

func newExplainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     dispatch.OpExplain + " <text...|->",
		Short:   "Explain kubectl output in plain language",
		Long:    "Explain kubectl output in plain language. Pass - to read the output from stdin.",
		Example: "  kubectl get pods | aicli explain -",
		GroupID: "ai",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 1 && args[0] == "-" {
				b, err := io.ReadAll(a.stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(b)
			}
			return a.run(cmd, func(ctx context.Context, d *dispatch.Dispatcher) *dispatch.Outcome {
				return d.Explain(ctx, text)
			})
		},
	}
}

func newListRolesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     dispatch.OpListRoles,
		Short:   "List cluster role bindings for the current user",
		GroupID: "access",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, d *dispatch.Dispatcher) *dispatch.Outcome {
				return d.ListRoles(ctx)
			})
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     dispatch.OpWhoami,
		Short:   "Show the current user, role and permissions",
		GroupID: "access",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, d *dispatch.Dispatcher) *dispatch.Outcome {
				return d.Whoami(ctx)
			})
		},
	}
}
