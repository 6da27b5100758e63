package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kubilitics/aicli/internal/audit"
	"github.com/kubilitics/aicli/internal/roles"
	"github.com/kubilitics/aicli/internal/runner"
	"github.com/kubilitics/aicli/internal/templates"
)

type fakeExecutor struct {
	results  map[string]*runner.Result
	fallback *runner.Result
	calls    []string
}

func (f *fakeExecutor) Run(_ context.Context, command string) *runner.Result {
	f.calls = append(f.calls, command)
	if r, ok := f.results[command]; ok {
		return r
	}
	if f.fallback != nil {
		return f.fallback
	}
	return success(command, "")
}

func success(cmd, stdout string) *runner.Result {
	return &runner.Result{Command: cmd, Stdout: stdout, Message: stdout, Status: runner.StatusSuccess}
}

func failure(cmd, stderr string, code int) *runner.Result {
	return &runner.Result{Command: cmd, Stderr: stderr, Message: stderr, Status: runner.StatusFailure, ExitCode: code}
}

type fakeAdvisor struct {
	reply string
	err   error
	calls [][2]string
}

func (f *fakeAdvisor) Suggest(_ context.Context, command, errText string) (string, error) {
	f.calls = append(f.calls, [2]string{command, errText})
	return f.reply, f.err
}

type fakeInterpreter struct {
	cmd   string
	err   error
	calls []string
}

func (f *fakeInterpreter) Interpret(_ context.Context, input string) (string, error) {
	f.calls = append(f.calls, input)
	return f.cmd, f.err
}

type fakeExplainer struct {
	reply string
	err   error
	calls int
}

func (f *fakeExplainer) Explain(context.Context, string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fakeConfirmer struct {
	answer bool
	err    error
	asked  []string
}

func (f *fakeConfirmer) Confirm(_ context.Context, command string) (bool, error) {
	f.asked = append(f.asked, command)
	return f.answer, f.err
}

type memAudit struct{ events []*audit.Event }

func (m *memAudit) Record(e *audit.Event) { m.events = append(m.events, e) }
func (m *memAudit) Close() error          { return nil }

type harness struct {
	d           *Dispatcher
	exec        *fakeExecutor
	advisor     *fakeAdvisor
	interpreter *fakeInterpreter
	explainer   *fakeExplainer
	confirmer   *fakeConfirmer
	audit       *memAudit
	logs        *observer.ObservedLogs
}

func newHarness(t *testing.T, user string) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		exec:        &fakeExecutor{results: map[string]*runner.Result{}},
		advisor:     &fakeAdvisor{reply: "Check the namespace exists."},
		interpreter: &fakeInterpreter{cmd: "kubectl get pods"},
		explainer:   &fakeExplainer{reply: "All pods are healthy."},
		confirmer:   &fakeConfirmer{answer: true},
		audit:       &memAudit{},
		logs:        logs,
	}
	table := roles.NewTable(roles.RoleUser, map[string][]string{
		roles.RoleAdmin: {roles.PermExecute, roles.PermExplain, roles.PermViewRoles},
		roles.RoleUser:  {roles.PermExecute},
		"auditor":       {roles.PermViewRoles},
		"nobody":        {},
	}, map[string]string{"alice": roles.RoleAdmin, "ivan": "auditor", "nemo": "nobody", "ghost": "missing-role"})
	h.d = New(Deps{
		Roles:    roles.NewStore(table),
		Identity: StaticIdentity(user),
		Executor: h.exec,
		Templates: templates.NewCatalog(map[string]string{
			"pod":    "get pod {pod_name} -n {namespace}",
			"events": "kubectl get events -n {namespace}",
			"scale":  "kubectl scale deploy/{deployment} --replicas={replicas}",
		}),
		Interpreter: h.interpreter,
		Advisor:     h.advisor,
		Explainer:   h.explainer,
		Confirmer:   h.confirmer,
		Audit:       h.audit,
		Logger:      zap.New(core),
	})
	return h
}

// every operation, invoked with plausible arguments
func invokeAll(d *Dispatcher) map[string]func() *Outcome {
	ctx := context.Background()
	return map[string]func() *Outcome{
		OpListContexts:   func() *Outcome { return d.ListContexts(ctx) },
		OpSetContext:     func() *Outcome { return d.SetContext(ctx, "prod") },
		OpListNamespaces: func() *Outcome { return d.ListNamespaces(ctx) },
		OpExecute:        func() *Outcome { return d.Execute(ctx, "show pods") },
		OpCustom:         func() *Outcome { return d.Custom(ctx, "pod", nil) },
		OpExplain:        func() *Outcome { return d.Explain(ctx, "NAME READY") },
		OpMonitorPods:    func() *Outcome { return d.MonitorPods(ctx, "") },
		OpMonitorNodes:   func() *Outcome { return d.MonitorNodes(ctx) },
		OpListRoles:      func() *Outcome { return d.ListRoles(ctx) },
	}
}

func TestDeniedOperationsHaveNoSideEffects(t *testing.T) {
	tests := []struct {
		user   string
		denied []string
	}{
		{user: "nemo", denied: []string{OpListContexts, OpSetContext, OpListNamespaces, OpExecute, OpCustom, OpExplain, OpMonitorPods, OpMonitorNodes, OpListRoles}},
		{user: "ghost", denied: []string{OpListContexts, OpExecute, OpExplain, OpListRoles}},
		{user: "bob", denied: []string{OpExplain, OpListRoles}},
		{user: "ivan", denied: []string{OpExecute, OpCustom, OpMonitorNodes, OpExplain}},
	}
	for _, tt := range tests {
		for _, name := range tt.denied {
			t.Run(tt.user+"/"+name, func(t *testing.T) {
				h := newHarness(t, tt.user)
				out := invokeAll(h.d)[name]()

				assert.Equal(t, StateDenied, out.State)
				require.Len(t, out.Messages, 1)
				assert.Equal(t, KindDenied, out.Messages[0].Kind)
				op, _ := Lookup(name)
				assert.Equal(t, op.Denied, out.Messages[0].Text)
				assert.Empty(t, out.Command)
				assert.Nil(t, out.Result)

				assert.Empty(t, h.exec.calls, "executor must not run")
				assert.Empty(t, h.interpreter.calls, "interpreter must not run")
				assert.Empty(t, h.advisor.calls, "advisor must not run")
				assert.Zero(t, h.explainer.calls, "explainer must not run")
				assert.Empty(t, h.confirmer.asked)

				require.Len(t, h.audit.events, 1)
				assert.Equal(t, audit.DecisionDenied, h.audit.events[0].Decision)
				assert.Equal(t, 1, h.logs.FilterMessage("permission denied").Len())
			})
		}
	}
}

func TestDeniedMessages(t *testing.T) {
	h := newHarness(t, "bob")
	ctx := context.Background()
	assert.Equal(t, "You do not have permission to explain this command output.", h.d.Explain(ctx, "x").String())
	assert.Equal(t, "You do not have permission to view roles.", h.d.ListRoles(ctx).String())

	h = newHarness(t, "nemo")
	assert.Equal(t, "You do not have permission to execute this command.", h.d.MonitorNodes(ctx).String())
}

func TestFixedCommands(t *testing.T) {
	h := newHarness(t, "alice")
	ctx := context.Background()

	h.d.ListContexts(ctx)
	h.d.SetContext(ctx, "prod")
	h.d.SetContext(ctx, "my ctx")
	h.d.MonitorPods(ctx, "")
	h.d.MonitorPods(ctx, "kube-system")
	h.d.MonitorNodes(ctx)

	assert.Equal(t, []string{
		"kubectl config get-contexts -o name",
		"kubectl config use-context prod",
		"kubectl config use-context 'my ctx'",
		"kubectl top pods -n default",
		"kubectl top pods -n kube-system",
		"kubectl top nodes",
	}, h.exec.calls)
}

func TestFailureTriggersExactlyOneAdvice(t *testing.T) {
	h := newHarness(t, "bob")
	h.interpreter.cmd = "kubectl get pods -n nope"
	h.exec.results["kubectl get pods -n nope"] = failure("kubectl get pods -n nope", "namespace not found", 1)

	out := h.d.Execute(context.Background(), "show pods in nope")

	require.NotNil(t, out.Result)
	assert.True(t, out.Result.Failed())
	assert.Equal(t, "namespace not found", out.Result.Message)
	assert.Equal(t, StateAdvised, out.State)
	require.Len(t, h.advisor.calls, 1)
	assert.Equal(t, [2]string{"kubectl get pods -n nope", "namespace not found"}, h.advisor.calls[0])

	assert.Equal(t, []Message{
		{Kind: KindInfo, Text: "Executing: kubectl get pods -n nope"},
		{Kind: KindOutput, Text: "Command failed with error: namespace not found"},
		{Kind: KindSuggestion, Text: "Suggested solution: Check the namespace exists."},
	}, out.Messages)
}

func TestSuccessMentioningErrorStillAdvises(t *testing.T) {
	h := newHarness(t, "bob")
	h.exec.fallback = success("", "Error: timeout")

	out := h.d.Custom(context.Background(), "events", nil)

	assert.False(t, out.Result.Failed())
	assert.Equal(t, StateAdvised, out.State)
	require.Len(t, h.advisor.calls, 1)
	assert.Equal(t, "Error: timeout", h.advisor.calls[0][1])
}

func TestCleanOutcome(t *testing.T) {
	h := newHarness(t, "bob")
	h.exec.fallback = success("", "NAME READY\napi 1/1")

	out := h.d.Execute(context.Background(), "show pods")
	assert.Equal(t, StateClean, out.State)
	assert.Empty(t, h.advisor.calls)
	assert.Equal(t, []string{"NAME READY\napi 1/1"}, out.Texts(KindOutput))
	assert.Empty(t, h.confirmer.asked, "read-only commands are not confirmed")
}

func TestAdvisorFailureKeepsResult(t *testing.T) {
	h := newHarness(t, "bob")
	h.exec.fallback = failure("", "forbidden", 1)
	h.advisor.err = errors.New("ai request timed out after 30s")

	out := h.d.Custom(context.Background(), "events", map[string]string{"namespace": "prod"})

	assert.Equal(t, StateAdvised, out.State)
	assert.Equal(t, []string{"Command failed with error: forbidden"}, out.Texts(KindOutput))
	assert.Equal(t, []string{"Suggested solution unavailable: ai request timed out after 30s"}, out.Texts(KindNotice))
	assert.Empty(t, out.Texts(KindSuggestion))
	assert.Equal(t, 1, h.logs.FilterMessage("advisor failed").Len())
}

func TestNonAdvisingOperationsSkipAdvice(t *testing.T) {
	h := newHarness(t, "alice")
	h.exec.fallback = failure("", "metrics API not available", 1)

	out := h.d.MonitorNodes(context.Background())
	assert.Equal(t, StateClean, out.State)
	assert.Empty(t, h.advisor.calls)
	assert.Equal(t, "Command failed with error: metrics API not available", out.String())
}

func TestCustom(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		h := newHarness(t, "bob")
		out := h.d.Custom(context.Background(), "pod", map[string]string{"pod_name": "p1", "namespace": "ns1"})
		assert.Equal(t, "get pod p1 -n ns1", out.Command)
		assert.Equal(t, []string{"get pod p1 -n ns1"}, h.exec.calls)
		assert.Equal(t, 1, h.logs.FilterMessage("Executing custom command").Len())
	})
	t.Run("defaults", func(t *testing.T) {
		h := newHarness(t, "bob")
		h.d.Custom(context.Background(), "events", map[string]string{"namespace": ""})
		assert.Equal(t, []string{"kubectl get events -n default"}, h.exec.calls)
	})
	t.Run("unknown template", func(t *testing.T) {
		h := newHarness(t, "bob")
		out := h.d.Custom(context.Background(), "nope", nil)
		assert.Equal(t, StateBuildFailed, out.State)
		assert.ErrorIs(t, out.Err, templates.ErrTemplateNotFound)
		assert.Equal(t, "No custom command found with the name: nope", out.String())
		assert.Empty(t, h.exec.calls)
		assert.Empty(t, h.advisor.calls)
	})
	t.Run("missing placeholder value", func(t *testing.T) {
		h := newHarness(t, "bob")
		out := h.d.Custom(context.Background(), "scale", map[string]string{"deployment": "api"})
		assert.Equal(t, StateBuildFailed, out.State)
		assert.ErrorIs(t, out.Err, templates.ErrUnknownPlaceholder)
		assert.Empty(t, h.exec.calls)
	})
	t.Run("extra params", func(t *testing.T) {
		h := newHarness(t, "bob")
		h.d.Custom(context.Background(), "scale", map[string]string{"deployment": "api", "replicas": "3"})
		assert.Equal(t, []string{"kubectl scale deploy/api --replicas=3"}, h.exec.calls)
	})
}

func TestExecuteConfirmation(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		h := newHarness(t, "bob")
		h.interpreter.cmd = "kubectl delete pod api-0"
		h.confirmer.answer = false

		out := h.d.Execute(context.Background(), "delete api-0")
		assert.Equal(t, StateBuildFailed, out.State)
		assert.ErrorIs(t, out.Err, ErrAborted)
		assert.Equal(t, []string{"kubectl delete pod api-0"}, h.confirmer.asked)
		assert.Empty(t, h.exec.calls)
		assert.Equal(t, "kubectl delete pod api-0", out.Command)
		assert.Equal(t, "Aborted.", out.String())
	})
	t.Run("confirm error", func(t *testing.T) {
		h := newHarness(t, "bob")
		h.interpreter.cmd = "kubectl get pods | xargs kubectl delete pod"
		h.confirmer.err = errors.New("stdin is not a terminal")

		out := h.d.Execute(context.Background(), "delete everything")
		assert.ErrorIs(t, out.Err, ErrAborted)
		assert.Contains(t, out.String(), "stdin is not a terminal")
		assert.Empty(t, h.exec.calls)
	})
	t.Run("approved", func(t *testing.T) {
		h := newHarness(t, "bob")
		h.interpreter.cmd = "kubectl scale deploy/api --replicas=2"
		out := h.d.Execute(context.Background(), "scale api to 2")
		assert.Equal(t, StateClean, out.State)
		assert.Equal(t, []string{"kubectl scale deploy/api --replicas=2"}, h.exec.calls)
	})
}

func TestExecuteInterpreterFailure(t *testing.T) {
	h := newHarness(t, "bob")
	h.interpreter.err = errors.New("ai integration disabled")

	out := h.d.Execute(context.Background(), "show pods")
	assert.Equal(t, StateBuildFailed, out.State)
	assert.Equal(t, "Failed to interpret request: ai integration disabled", out.String())
	assert.Empty(t, h.exec.calls)

	out = h.d.Execute(context.Background(), "   ")
	assert.Equal(t, StateBuildFailed, out.State)
	assert.Len(t, h.interpreter.calls, 1)
}

func TestListNamespaces(t *testing.T) {
	h := newHarness(t, "bob")
	h.exec.results[cmdListNamespaces] = success(cmdListNamespaces, `{"items":[{"metadata":{"name":"default"}},{"metadata":{"name":"prod"}}]}`)

	out := h.d.ListNamespaces(context.Background())
	assert.Equal(t, StateClean, out.State)
	assert.Equal(t, "Available namespaces:\n- default\n- prod", out.String())
}

func TestListNamespacesMalformed(t *testing.T) {
	h := newHarness(t, "bob")
	h.exec.results[cmdListNamespaces] = success(cmdListNamespaces, "{not json")

	var out *Outcome
	require.NotPanics(t, func() { out = h.d.ListNamespaces(context.Background()) })
	assert.Equal(t, StateClean, out.State)
	require.Len(t, out.Texts(KindError), 1)
	assert.True(t, strings.HasPrefix(out.Texts(KindError)[0], "Failed to parse JSON output: "))
	assert.Equal(t, 1, h.logs.FilterMessage("Failed to parse JSON output").Len())
	assert.Empty(t, h.advisor.calls)
}

func TestListNamespacesCommandFailure(t *testing.T) {
	h := newHarness(t, "bob")
	h.exec.results[cmdListNamespaces] = failure(cmdListNamespaces, "Unable to connect to the server", 1)

	out := h.d.ListNamespaces(context.Background())
	assert.Equal(t, "Command failed with error: Unable to connect to the server", out.String())
	assert.Empty(t, out.Texts(KindError))
}

func TestListRoles(t *testing.T) {
	h := newHarness(t, "alice")
	h.exec.results[cmdListRoles] = success(cmdListRoles, `{"items":[
		{"metadata":{"name":"admins"},"roleRef":{"name":"cluster-admin"},"subjects":[{"kind":"User","name":"alice"}]},
		{"metadata":{"name":"viewers"},"roleRef":{"name":"view"},"subjects":[{"kind":"User","name":"bob"}]}
	]}`)

	out := h.d.ListRoles(context.Background())
	assert.Equal(t, "Role: admins\n  User: alice (matched)\nRole: viewers", out.String())
}

func TestExplain(t *testing.T) {
	h := newHarness(t, "alice")
	out := h.d.Explain(context.Background(), "NAME READY")
	assert.Equal(t, StateClean, out.State)
	assert.Equal(t, []string{"All pods are healthy."}, out.Texts(KindExplanation))
	assert.Empty(t, h.exec.calls)

	h.explainer.err = errors.New("boom")
	out = h.d.Explain(context.Background(), "NAME READY")
	assert.Equal(t, StateBuildFailed, out.State)
	assert.Equal(t, "Explanation unavailable: boom", out.String())
}

func TestWhoami(t *testing.T) {
	h := newHarness(t, "alice")
	out := h.d.Whoami(context.Background())
	assert.Equal(t, StateClean, out.State)
	assert.Equal(t, "User: alice\nRole: admin\nPermissions: execute, explain, view_roles", out.String())

	h = newHarness(t, "nemo")
	assert.Equal(t, "User: nemo\nRole: nobody\nPermissions: (none)", h.d.Whoami(context.Background()).String())
	assert.Empty(t, h.exec.calls)
}

func TestAuditTrail(t *testing.T) {
	h := newHarness(t, "bob")
	h.exec.fallback = failure("", "boom", 2)
	h.d.Custom(context.Background(), "events", nil)

	require.Len(t, h.audit.events, 1)
	e := h.audit.events[0]
	assert.Equal(t, "bob", e.User)
	assert.Equal(t, roles.RoleUser, e.Role)
	assert.Equal(t, OpCustom, e.Operation)
	assert.Equal(t, audit.DecisionGranted, e.Decision)
	assert.Equal(t, "kubectl get events -n default", e.Command)
	assert.Equal(t, "advised", e.State)
	assert.Equal(t, "failure", e.Status)
	assert.Equal(t, 2, e.ExitCode)
}

func TestRegistry(t *testing.T) {
	ops := Operations()
	require.Len(t, ops, 10)
	for _, op := range ops {
		got, ok := Lookup(op.Name)
		require.True(t, ok)
		assert.Equal(t, op, got)
		if op.Name != OpWhoami {
			assert.NotEmpty(t, op.Permission, op.Name)
			assert.NotEmpty(t, op.Denied, op.Name)
		}
	}
	advise := []string{}
	for _, op := range ops {
		if op.Advise {
			advise = append(advise, op.Name)
		}
	}
	assert.Equal(t, []string{OpExecute, OpCustom}, advise)
	_, ok := Lookup("drop-cluster")
	assert.False(t, ok)
}

func TestErrorDetected(t *testing.T) {
	assert.False(t, ErrorDetected(nil))
	assert.False(t, ErrorDetected(success("", "all good")))
	assert.True(t, ErrorDetected(success("", "ERROR in pod")))
	assert.True(t, ErrorDetected(failure("", "", 1)))
}

func TestNilExecutorIsBuildFailure(t *testing.T) {
	d := New(Deps{Roles: roles.NewStore(roles.DefaultTable())})
	out := d.MonitorNodes(context.Background())
	assert.Equal(t, StateBuildFailed, out.State)
}
