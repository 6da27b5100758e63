// Package config loads aicli settings from defaults, an optional YAML file
// and AICLI_* environment variables, and resolves the model credential.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kubilitics/aicli/internal/ai"
	"github.com/kubilitics/aicli/internal/roles"
)

const (
	configDirName     = ".aicli"
	configFileName    = "config.yaml"
	templatesFileName = "custom_commands.json"

	EnvPrefix = "AICLI"
)

type Config struct {
	User      string          `yaml:"user"`
	Roles     RolesConfig     `yaml:"roles"`
	Templates TemplatesConfig `yaml:"templates"`
	AI        AIConfig        `yaml:"ai"`
	Exec      ExecConfig      `yaml:"exec"`
	Kube      KubeConfig      `yaml:"kube"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audit     AuditConfig     `yaml:"audit"`

	// File is the config file that was read, empty when none existed.
	File string `yaml:"-"`
	// providerKeys holds vendor env keys such as OPENAI_API_KEY by provider.
	providerKeys map[string]string
}

type RolesConfig struct {
	DefaultRole string              `yaml:"default_role"`
	Permissions map[string][]string `yaml:"permissions"`
	Assignments map[string]string   `yaml:"assignments,omitempty"`
}

type TemplatesConfig struct {
	Path string `yaml:"path"`
}

type AIConfig struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model,omitempty"`
	Endpoint        string        `yaml:"endpoint,omitempty"`
	APIKey          string        `yaml:"api_key,omitempty"`
	AzureDeployment string        `yaml:"azure_deployment,omitempty"`
	Timeout         time.Duration `yaml:"timeout"`
}

type ExecConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Shell   string        `yaml:"shell,omitempty"`
}

type KubeConfig struct {
	Kubeconfig string `yaml:"kubeconfig,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

type AuditConfig struct {
	Path string `yaml:"path,omitempty"`
}

func Default() *Config {
	return &Config{
		User: "user",
		Roles: RolesConfig{
			DefaultRole: roles.DefaultRole,
			Permissions: roles.DefaultPermissions(),
			Assignments: roles.DefaultAssignments(),
		},
		Templates: TemplatesConfig{Path: filepath.Join(homeDir(), configDirName, templatesFileName)},
		AI: AIConfig{
			Provider: ai.ProviderOpenAI,
			Timeout:  ai.DefaultTimeout,
		},
		Exec:    ExecConfig{Timeout: 2 * time.Minute},
		Logging: LoggingConfig{Level: "info"},
	}
}

// DefaultPath is ~/.aicli/config.yaml.
func DefaultPath() string {
	return filepath.Join(homeDir(), configDirName, configFileName)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return home
}

// Load reads path (DefaultPath when empty). A missing file is not an error.
// Environment variables use the AICLI_ prefix with dots replaced by
// underscores (ai.api_key -> AICLI_AI_API_KEY); the user name also honours
// AICLI_USERNAME.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	file := path
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		file = ""
	}

	cfg := unmarshal(v)
	cfg.File = file
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("user", d.User)
	v.SetDefault("roles.default_role", d.Roles.DefaultRole)
	v.SetDefault("templates.path", d.Templates.Path)
	v.SetDefault("ai.provider", d.AI.Provider)
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.endpoint", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.azure_deployment", "")
	v.SetDefault("ai.timeout", d.AI.Timeout)
	v.SetDefault("exec.timeout", d.Exec.Timeout)
	v.SetDefault("exec.shell", "")
	v.SetDefault("kube.kubeconfig", "")
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", "")
	v.SetDefault("audit.path", "")
}

var vendorKeyEnv = map[string]string{
	ai.ProviderOpenAI:      "OPENAI_API_KEY",
	ai.ProviderAnthropic:   "ANTHROPIC_API_KEY",
	ai.ProviderAzureOpenAI: "AZURE_OPENAI_API_KEY",
}

func bindEnv(v *viper.Viper) error {
	if err := v.BindEnv("user", "AICLI_USERNAME", "AICLI_USER"); err != nil {
		return err
	}
	for provider, env := range vendorKeyEnv {
		if err := v.BindEnv("vendor_keys."+provider, env); err != nil {
			return err
		}
	}
	return nil
}

func unmarshal(v *viper.Viper) *Config {
	cfg := &Config{
		User: strings.TrimSpace(v.GetString("user")),
		Roles: RolesConfig{
			DefaultRole: strings.TrimSpace(v.GetString("roles.default_role")),
		},
		Templates: TemplatesConfig{Path: expandHome(v.GetString("templates.path"))},
		AI: AIConfig{
			Provider:        strings.ToLower(strings.TrimSpace(v.GetString("ai.provider"))),
			Model:           strings.TrimSpace(v.GetString("ai.model")),
			Endpoint:        strings.TrimSpace(v.GetString("ai.endpoint")),
			APIKey:          strings.TrimSpace(v.GetString("ai.api_key")),
			AzureDeployment: strings.TrimSpace(v.GetString("ai.azure_deployment")),
			Timeout:         v.GetDuration("ai.timeout"),
		},
		Exec: ExecConfig{
			Timeout: v.GetDuration("exec.timeout"),
			Shell:   strings.TrimSpace(v.GetString("exec.shell")),
		},
		Kube:    KubeConfig{Kubeconfig: expandHome(v.GetString("kube.kubeconfig"))},
		Logging: LoggingConfig{Level: v.GetString("logging.level"), File: expandHome(v.GetString("logging.file"))},
		Audit:   AuditConfig{Path: expandHome(v.GetString("audit.path"))},

		providerKeys: map[string]string{},
	}
	if cfg.User == "" {
		cfg.User = "user"
	}
	// viper lower-cases map keys; the role table folds values to match.
	if v.IsSet("roles.permissions") {
		cfg.Roles.Permissions = v.GetStringMapStringSlice("roles.permissions")
	} else {
		cfg.Roles.Permissions = roles.DefaultPermissions()
	}
	if v.IsSet("roles.assignments") {
		cfg.Roles.Assignments = v.GetStringMapString("roles.assignments")
	} else {
		cfg.Roles.Assignments = roles.DefaultAssignments()
	}
	for provider := range vendorKeyEnv {
		if key := strings.TrimSpace(v.GetString("vendor_keys." + provider)); key != "" {
			cfg.providerKeys[provider] = key
		}
	}
	return cfg
}

func expandHome(p string) string {
	p = strings.TrimSpace(p)
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}

// RoleTable builds the immutable permission table for the role store.
func (c *Config) RoleTable() *roles.Table {
	return roles.NewTable(c.Roles.DefaultRole, c.Roles.Permissions, c.Roles.Assignments)
}

// AIClientConfig converts the ai section for the ai package. apiKey is the
// resolved credential.
func (c *Config) AIClientConfig(apiKey string) ai.Config {
	return ai.Config{
		Provider:        c.AI.Provider,
		Endpoint:        c.AI.Endpoint,
		APIKey:          apiKey,
		Model:           c.AI.Model,
		Timeout:         c.AI.Timeout,
		AzureDeployment: c.AI.AzureDeployment,
	}
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.AI.APIKey != "" {
		out.AI.APIKey = RedactKey(out.AI.APIKey)
	}
	out.providerKeys = nil
	return &out
}

// RedactKey keeps a short prefix so users can tell keys apart.
func RedactKey(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-2:]
}
