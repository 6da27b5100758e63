// Package templates loads named custom command templates and renders them
// with caller-supplied parameters.
package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"gopkg.in/yaml.v3"
)

var (
	ErrTemplateNotFound   = errors.New("template not found")
	ErrUnknownPlaceholder = errors.New("placeholder has no value")
)

// Well-known parameters of the custom operation.
const (
	ParamPodName   = "pod_name"
	ParamNamespace = "namespace"

	DefaultNamespace = "default"
)

type file struct {
	CustomCommands map[string]string `json:"custom_commands" yaml:"custom_commands"`
}

// Catalog is an immutable set of named templates.
type Catalog struct {
	templates map[string]string
}

// NewCatalog copies the given templates. Blank names are dropped.
func NewCatalog(templates map[string]string) *Catalog {
	c := &Catalog{templates: make(map[string]string, len(templates))}
	for name, tpl := range templates {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		c.templates[name] = tpl
	}
	return c
}

// Load reads a catalog from path. JSON is the default format; files ending
// in .yaml or .yml are read as YAML. A missing file yields an empty catalog
// and a nil error; callers check Exists when they want to warn about it.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewCatalog(nil), nil
		}
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return NewCatalog(nil), nil
	}
	var f file
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("failed to parse templates YAML %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("failed to parse templates JSON %s: %w", path, err)
		}
	}
	return NewCatalog(f.CustomCommands), nil
}

// Exists reports whether a template file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.templates)
}

// Names returns the template names in sorted order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.templates))
	for name := range c.templates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) Lookup(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	tpl, ok := c.templates[strings.TrimSpace(name)]
	return tpl, ok
}

// Build looks up name and renders it with params.
func (c *Catalog) Build(name string, params map[string]string) (string, error) {
	tpl, ok := c.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return Render(tpl, params)
}

// Render substitutes {name} placeholders with shell-quoted values from
// params. "{{" and "}}" produce literal braces. Braces whose content is not
// an identifier (for example a JSONPath like {.items[*]}) are copied as is.
// Empty values render as nothing.
func Render(tpl string, params map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tpl))
	for i := 0; i < len(tpl); i++ {
		ch := tpl[i]
		switch {
		case ch == '{' && i+1 < len(tpl) && tpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(tpl) && tpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				b.WriteByte(ch)
				continue
			}
			key := tpl[i+1 : i+1+end]
			if !isIdentifier(key) {
				b.WriteByte(ch)
				continue
			}
			val, ok := params[key]
			if !ok {
				return "", fmt.Errorf("%w: {%s}", ErrUnknownPlaceholder, key)
			}
			b.WriteString(QuoteArg(val))
			i += end + 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}

// QuoteArg shell-quotes s for substitution into a command line. Plain words
// are returned unchanged and the empty string stays empty.
func QuoteArg(s string) string {
	if s == "" {
		return ""
	}
	return shellescape.Quote(s)
}

// Placeholders lists the distinct placeholder names used by tpl in order of
// first appearance.
func Placeholders(tpl string) []string {
	var out []string
	seen := map[string]struct{}{}
	for i := 0; i < len(tpl); i++ {
		if tpl[i] != '{' {
			continue
		}
		if i+1 < len(tpl) && tpl[i+1] == '{' {
			i++
			continue
		}
		end := strings.IndexByte(tpl[i+1:], '}')
		if end < 0 {
			break
		}
		key := tpl[i+1 : i+1+end]
		if isIdentifier(key) {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				out = append(out, key)
			}
			i += end + 1
		}
	}
	return out
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
