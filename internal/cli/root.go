// Package cli is the aicli command tree. Commands parse flags, call the
// dispatcher and render the returned outcome.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubilitics/aicli/internal/ai"
	"github.com/kubilitics/aicli/internal/audit"
	"github.com/kubilitics/aicli/internal/config"
	"github.com/kubilitics/aicli/internal/dispatch"
	"github.com/kubilitics/aicli/internal/keychain"
	"github.com/kubilitics/aicli/internal/kube"
	"github.com/kubilitics/aicli/internal/logging"
	"github.com/kubilitics/aicli/internal/roles"
	"github.com/kubilitics/aicli/internal/runner"
	"github.com/kubilitics/aicli/internal/templates"
	"github.com/kubilitics/aicli/internal/version"
)

// annotationSkipSetup marks commands that run without the dispatcher and
// without a model credential.
const annotationSkipSetup = "aicli/skip-setup"

// Assistant is the language model surface the commands need.
type Assistant interface {
	Interpret(ctx context.Context, input string, cluster *ai.ClusterContext) (string, error)
	Suggest(ctx context.Context, command, errText string) (string, error)
	Explain(ctx context.Context, output string) (string, error)
}

// Options overrides collaborators, mainly for tests. Zero values are replaced
// with the real implementations built from configuration.
type Options struct {
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
	Executor  runner.Executor
	Assistant Assistant
	Keychain  keychain.Store
	// IsTerminal reports whether stdin is interactive.
	IsTerminal func() bool
}

type app struct {
	configPath string
	kubeconfig string
	verbose    bool
	yes        bool

	cfg        *config.Config
	log        *zap.Logger
	dispatcher *dispatch.Dispatcher
	recorder   audit.Recorder
	closers    []func()

	opts   Options
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(Options{})
}

func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newRootCommand(Options{Stdin: in, Stdout: out, Stderr: errOut})
}

func NewRootCommandWithOptions(opts Options) *cobra.Command {
	return newRootCommand(opts)
}

func newRootCommand(opts Options) *cobra.Command {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Keychain == nil {
		opts.Keychain = keychain.New()
	}
	if opts.IsTerminal == nil {
		opts.IsTerminal = func() bool { return isTerminal(opts.Stdin) }
	}
	a := &app{
		opts:   opts,
		stdin:  opts.Stdin,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
	}

	cmd := &cobra.Command{
		Use:           "aicli",
		Short:         "Permission-gated kubectl assistant",
		Long:          "aicli runs kubectl operations on behalf of a configured user, checks the user's role before every operation and asks a language model for help when a command fails.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.aicli/config.yaml)")
	cmd.PersistentFlags().StringVar(&a.kubeconfig, "kubeconfig", "", "kubeconfig used for interpreter scope and exported to kubectl")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&a.yes, "yes", "y", false, "run mutating commands without asking")

	cmd.AddGroup(
		&cobra.Group{ID: "cluster", Title: "Cluster:"},
		&cobra.Group{ID: "ai", Title: "AI:"},
		&cobra.Group{ID: "access", Title: "Access:"},
	)

	cmd.AddCommand(
		newListContextsCmd(a),
		newSetContextCmd(a),
		newListNamespacesCmd(a),
		newMonitorPodsCmd(a),
		newMonitorNodesCmd(a),
		newExecuteCmd(a),
		newCustomCmd(a),
		newExplainCmd(a),
		newListRolesCmd(a),
		newWhoamiCmd(a),
		newConfigCmd(a),
	)

	cmd.SetVersionTemplate(fmt.Sprintf("aicli {{.Version}} (commit %s, built %s)\n", version.Commit, version.BuildDate))
	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return a.setup(cmd)
	}
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		a.close()
	}

	cmd.SetErrPrefix("aicli: ")
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	return cmd
}

// setup loads configuration and wires the dispatcher. A missing model
// credential stops here, before any operation runs.
func (a *app) setup(cmd *cobra.Command) error {
	if builtinCommand(cmd) {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidationErr(); err != nil {
		return err
	}
	if a.kubeconfig != "" {
		cfg.Kube.Kubeconfig = a.kubeconfig
	}
	a.cfg = cfg

	lc := logging.DefaultConfig()
	lc.Level = cfg.Logging.Level
	lc.File = cfg.Logging.File
	lc.Verbose = a.verbose
	lc.Stderr = a.stderr
	log, cleanup, err := logging.New(lc)
	if err != nil {
		return err
	}
	a.log = log
	a.closers = append(a.closers, cleanup)

	if skipSetup(cmd) || listOnly(cmd) {
		return nil
	}

	assistant := a.opts.Assistant
	if assistant == nil {
		key, source, err := cfg.ResolveAPIKey(a.opts.Keychain)
		if err != nil {
			return err
		}
		a.log.Debug("resolved model credential", zap.String("provider", cfg.AI.Provider), zap.String("source", string(source)))
		aiCfg := cfg.AIClientConfig(key)
		client := ai.New(aiCfg, a.log.Named("ai"))
		if !client.Enabled() {
			return fmt.Errorf("invalid ai configuration: %w", client.Err())
		}
		assistant = client
	}

	exec := a.opts.Executor
	if exec == nil {
		var env []string
		if cfg.Kube.Kubeconfig != "" {
			env = append(env, "KUBECONFIG="+cfg.Kube.Kubeconfig)
		}
		exec = runner.NewShellExecutor(runner.Options{
			Shell:   cfg.Exec.Shell,
			Timeout: cfg.Exec.Timeout,
			Env:     env,
			Logger:  a.log,
		})
	}

	catalog, err := templates.Load(cfg.Templates.Path)
	if err != nil {
		return err
	}
	if !templates.Exists(cfg.Templates.Path) {
		a.log.Warn("custom command file not found", zap.String("path", cfg.Templates.Path))
	}

	rec, err := audit.New(audit.Config{Path: cfg.Audit.Path})
	if err != nil {
		return err
	}
	a.recorder = rec

	a.dispatcher = dispatch.New(dispatch.Deps{
		Roles:       roles.NewStore(cfg.RoleTable()),
		Identity:    dispatch.StaticIdentity(cfg.User),
		Executor:    exec,
		Templates:   catalog,
		Interpreter: &scopedInterpreter{assistant: assistant, kubeconfig: cfg.Kube.Kubeconfig, log: a.log},
		Advisor:     assistant,
		Explainer:   assistant,
		Confirmer:   &promptConfirmer{in: a.stdin, out: a.stderr, yes: a.yes, interactive: a.opts.IsTerminal},
		Audit:       rec,
		Logger:      a.log,
	})
	return nil
}

func (a *app) close() {
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil && a.log != nil {
			a.log.Warn("close audit log", zap.Error(err))
		}
		a.recorder = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// builtinCommand reports whether cmd is cobra's help or completion machinery,
// which must work before any configuration exists.
func builtinCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}

// listOnly reports whether a --list flag turned the command into a catalog
// listing that needs configuration but no dispatcher.
func listOnly(cmd *cobra.Command) bool {
	f := cmd.Flags().Lookup("list")
	return f != nil && f.Changed && f.Value.String() == "true"
}

func skipSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[annotationSkipSetup]; ok {
			return true
		}
	}
	return false
}

// run executes op against the dispatcher and renders the outcome.
func (a *app) run(cmd *cobra.Command, op func(context.Context, *dispatch.Dispatcher) *dispatch.Outcome) error {
	if a.dispatcher == nil {
		return errors.New("dispatcher not initialised")
	}
	o := op(cmd.Context(), a.dispatcher)
	newRenderer(cmd.OutOrStdout()).Render(o)
	return nil
}

// scopedInterpreter adds the current kubeconfig context and namespace to
// interpretation requests.
type scopedInterpreter struct {
	assistant  Assistant
	kubeconfig string
	log        *zap.Logger
}

func (s *scopedInterpreter) Interpret(ctx context.Context, input string) (string, error) {
	var cluster *ai.ClusterContext
	scope, err := kube.CurrentScope(s.kubeconfig)
	switch {
	case err != nil:
		s.log.Debug("kubeconfig scope unavailable", zap.Error(err))
	case !scope.Empty():
		cluster = &ai.ClusterContext{Context: scope.Context, Namespace: scope.Namespace}
	}
	return s.assistant.Interpret(ctx, strings.TrimSpace(input), cluster)
}
