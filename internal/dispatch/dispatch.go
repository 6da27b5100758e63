// Package dispatch binds named operations to permission checks, command
// construction, execution and error advisory. Every handler checks the
// caller's permission before doing anything else and reports what happened
// as an Outcome; nothing here writes to the terminal.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/aicli/internal/audit"
	"github.com/kubilitics/aicli/internal/roles"
	"github.com/kubilitics/aicli/internal/runner"
	"github.com/kubilitics/aicli/internal/templates"
)

// ErrAborted is returned by a Confirmer-driven abort.
var ErrAborted = errors.New("aborted")

// Interpreter turns free text into a command string.
type Interpreter interface {
	Interpret(ctx context.Context, input string) (string, error)
}

// Advisor suggests recovery steps for a failed command.
type Advisor interface {
	Suggest(ctx context.Context, command, errText string) (string, error)
}

type Explainer interface {
	Explain(ctx context.Context, text string) (string, error)
}

// Confirmer approves commands that may change cluster state.
type Confirmer interface {
	Confirm(ctx context.Context, command string) (bool, error)
}

// Identity names the caller.
type Identity interface {
	CurrentUser() string
}

// StaticIdentity is a fixed user name.
type StaticIdentity string

func (s StaticIdentity) CurrentUser() string { return string(s) }

type Deps struct {
	Roles       *roles.Store
	Identity    Identity
	Executor    runner.Executor
	Templates   *templates.Catalog
	Interpreter Interpreter
	Advisor     Advisor
	Explainer   Explainer
	// Confirmer is consulted for mutating commands produced by execute. Nil
	// approves everything.
	Confirmer Confirmer
	Audit     audit.Recorder
	Logger    *zap.Logger
}

type Dispatcher struct {
	roles       *roles.Store
	identity    Identity
	exec        runner.Executor
	templates   *templates.Catalog
	interpreter Interpreter
	advisor     Advisor
	explainer   Explainer
	confirmer   Confirmer
	audit       audit.Recorder
	log         *zap.Logger
}

func New(d Deps) *Dispatcher {
	if d.Roles == nil {
		d.Roles = roles.NewStore(nil)
	}
	if d.Identity == nil {
		d.Identity = StaticIdentity("user")
	}
	if d.Templates == nil {
		d.Templates = templates.NewCatalog(nil)
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Dispatcher{
		roles:       d.Roles,
		identity:    d.Identity,
		exec:        d.Executor,
		templates:   d.Templates,
		interpreter: d.Interpreter,
		advisor:     d.Advisor,
		explainer:   d.Explainer,
		confirmer:   d.Confirmer,
		audit:       d.Audit,
		log:         d.Logger,
	}
}

// buildFunc constructs the command for an invocation that passed its
// permission check. It may add messages to o.
type buildFunc func(ctx context.Context, o *Outcome) (string, error)

// renderFunc turns an executor result into output messages. The default
// shows Result.Output().
type renderFunc func(o *Outcome, res *runner.Result)

// invocation carries the per-call state shared by the pipeline stages.
type invocation struct {
	op    Operation
	out   *Outcome
	event *audit.Event
	start time.Time
}

// authorize resolves the caller and checks op's permission. The returned
// invocation's outcome is already terminal (Denied) when ok is false.
func (d *Dispatcher) authorize(name string) (inv *invocation, ok bool) {
	op := mustLookup(name)
	user := d.identity.CurrentUser()
	role := d.roles.Role(user)
	inv = &invocation{
		op:    op,
		out:   &Outcome{Operation: op.Name, User: user, Role: role},
		event: audit.NewEvent(op.Name).WithActor(user, role),
		start: time.Now(),
	}
	if op.Permission != "" && !d.roles.HasPermission(user, op.Permission) {
		d.log.Info("permission denied",
			zap.String("user", user),
			zap.String("role", role),
			zap.String("operation", op.Name),
			zap.String("permission", op.Permission))
		inv.out.State = StateDenied
		inv.out.add(KindDenied, op.Denied)
		inv.event.WithDecision(audit.DecisionDenied)
		d.finish(inv)
		return inv, false
	}
	inv.event.WithDecision(audit.DecisionGranted)
	return inv, true
}

// run is the fixed pipeline: permission check, build, execute, surface,
// advise.
func (d *Dispatcher) run(ctx context.Context, name string, build buildFunc, render renderFunc) *Outcome {
	inv, ok := d.authorize(name)
	if !ok {
		return inv.out
	}
	o := inv.out

	cmd, err := build(ctx, o)
	if err != nil {
		o.State = StateBuildFailed
		o.Err = err
		d.finish(inv)
		return o
	}
	o.Command = cmd

	if d.exec == nil {
		return d.failBuild(inv, errors.New("no command executor configured"), "An unexpected error occurred: no command executor configured")
	}
	res := d.exec.Run(ctx, cmd)
	if res == nil {
		res = &runner.Result{Command: cmd, Status: runner.StatusFailure, ExitCode: -1, NotStarted: true, Message: "executor returned no result"}
	}
	o.Result = res
	if render != nil {
		render(o, res)
	} else {
		o.add(KindOutput, res.Output())
	}

	o.State = StateClean
	if inv.op.Advise && ErrorDetected(res) {
		d.advise(ctx, o, cmd, res)
	}
	d.finish(inv)
	return o
}

func (d *Dispatcher) advise(ctx context.Context, o *Outcome, cmd string, res *runner.Result) {
	o.State = StateAdvised
	if d.advisor == nil {
		o.add(KindNotice, "Suggested solution unavailable: no advisor configured")
		return
	}
	suggestion, err := d.advisor.Suggest(ctx, cmd, res.Message)
	if err != nil {
		d.log.Warn("advisor failed", zap.String("command", cmd), zap.Error(err))
		o.add(KindNotice, "Suggested solution unavailable: "+err.Error())
		return
	}
	o.add(KindSuggestion, "Suggested solution: "+strings.TrimSpace(suggestion))
}

func (d *Dispatcher) failBuild(inv *invocation, err error, msg string) *Outcome {
	inv.out.State = StateBuildFailed
	inv.out.Err = err
	inv.out.add(KindError, msg)
	d.finish(inv)
	return inv.out
}

func (d *Dispatcher) finish(inv *invocation) {
	o := inv.out
	status, exitCode := "", 0
	if o.Result != nil {
		status, exitCode = o.Result.Status.String(), o.Result.ExitCode
	}
	inv.event.
		WithCommand(o.Command).
		WithResult(o.State.String(), status, exitCode, time.Since(inv.start)).
		WithError(o.Err)
	d.audit.Record(inv.event)
}

// buildError records err as the build failure with a user-facing message.
func buildError(o *Outcome, msg string, err error) error {
	o.add(KindError, msg)
	return err
}

func fixed(cmd string) buildFunc {
	return func(context.Context, *Outcome) (string, error) { return cmd, nil }
}
