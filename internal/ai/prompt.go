package ai

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	interpretSystem = "You are an assistant that translates natural language to kubectl commands. Provide only the kubectl command as output."
	suggestSystem   = "You are a Kubernetes expert."
	explainSystem   = "You are an assistant that explains kubectl command outputs in a user-friendly manner."
)

// ClusterContext is the kubeconfig scope the interpreter should assume.
type ClusterContext struct {
	Context   string
	Namespace string
}

type Prompt struct {
	System string
	User   string
}

func InterpretPrompt(input string, cluster *ClusterContext) Prompt {
	user := "Translate this to a kubectl command: " + sanitizeSensitive(input)
	if scope := buildContext(cluster); scope != "" {
		user += "\n\nCurrent scope:\n" + scope
	}
	return Prompt{System: interpretSystem, User: user}
}

func SuggestPrompt(command, errText string) Prompt {
	user := fmt.Sprintf("The following kubectl command encountered an error:\n\nCommand: %s\nError: %s\n\nPlease provide a potential solution or steps to troubleshoot this issue.",
		sanitizeSensitive(command), sanitizeSensitive(errText))
	return Prompt{System: suggestSystem, User: user}
}

func ExplainPrompt(output string) Prompt {
	return Prompt{System: explainSystem, User: "Explain this kubectl command output: " + sanitizeSensitive(output)}
}

func buildContext(cluster *ClusterContext) string {
	if cluster == nil {
		return ""
	}
	parts := []string{}
	if v := strings.TrimSpace(cluster.Context); v != "" {
		parts = append(parts, "kubeContext="+v)
	}
	if v := strings.TrimSpace(cluster.Namespace); v != "" {
		parts = append(parts, "namespace="+v)
	}
	return strings.Join(parts, "\n")
}

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-z0-9._~+/-]+=*`),
	regexp.MustCompile(`(?i)(token|password|secret|api[_-]?key|authorization)\s*[:=]\s*[^\s,;]+`),
	regexp.MustCompile(`(?s)-----BEGIN [^-]+-----.*?-----END [^-]+-----`),
}

func sanitizeSensitive(v string) string {
	out := strings.TrimSpace(v)
	for _, re := range sensitivePatterns {
		out = re.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}

var fenceRE = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")

// CleanCommand extracts a runnable command from model output: the first
// fenced block if present, otherwise the first non-empty line, with any
// leading prompt marker removed.
func CleanCommand(reply string) string {
	reply = strings.TrimSpace(reply)
	if m := fenceRE.FindStringSubmatch(reply); m != nil {
		reply = strings.TrimSpace(m[1])
	}
	reply = strings.Trim(reply, "`")
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "$"))
		return line
	}
	return ""
}
