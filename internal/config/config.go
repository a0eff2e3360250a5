package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const FileName = "socialservice.yml"

// Config models socialservice.yml.
type Config struct {
	Institution struct {
		Name        string `yaml:"name"`
		EmailDomain string `yaml:"email_domain"`
		Timezone    string `yaml:"timezone"`
	} `yaml:"institution"`
	Evidence struct {
		DaysBefore int `yaml:"days_before"`
		DaysAfter  int `yaml:"days_after"`
	} `yaml:"evidence"`
	Storage struct {
		Root string `yaml:"root"`
	} `yaml:"storage"`
	Directory Directory `yaml:"directory"`
	RBAC      struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// Directory configures the external academic directory lookup.
type Directory struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheSize   int           `yaml:"cache_size"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	Concurrency int           `yaml:"concurrency"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace, falling back to defaults
// when the file is absent.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	domain := strings.TrimSpace(c.Institution.EmailDomain)
	if domain == "" {
		return fmt.Errorf("config.institution.email_domain is required")
	}
	if strings.Contains(domain, "@") {
		return fmt.Errorf("config.institution.email_domain must not contain '@'")
	}
	if _, err := time.LoadLocation(c.Institution.Timezone); err != nil {
		return fmt.Errorf("config.institution.timezone: %w", err)
	}
	if c.Evidence.DaysBefore < 0 || c.Evidence.DaysAfter < 0 {
		return fmt.Errorf("config.evidence window days must not be negative")
	}
	if strings.TrimSpace(c.Storage.Root) == "" {
		return fmt.Errorf("config.storage.root is required")
	}
	if c.Directory.URL == "" {
		return fmt.Errorf("config.directory.url is required")
	}
	if !strings.Contains(c.Directory.URL, "{code}") {
		return fmt.Errorf("config.directory.url must contain a {code} placeholder")
	}
	if c.Directory.Timeout <= 0 {
		return fmt.Errorf("config.directory.timeout must be positive")
	}
	if c.Directory.Concurrency <= 0 {
		return fmt.Errorf("config.directory.concurrency must be positive")
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Location returns the institution time zone used to compute calendar dates.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Institution.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Permissions returns the permissions granted to role.
func (c *Config) Permissions(role string) []string {
	r, ok := c.RBAC.Roles[role]
	if !ok {
		return nil
	}
	return r.Permissions
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `institution:
  name: Universidad de Huánuco
  email_domain: udh.edu.pe
  timezone: America/Lima

evidence:
  days_before: 5
  days_after: 10

storage:
  root: uploads

directory:
  url: http://www.udh.edu.pe/websauh/secretaria_general/gradosytitulos/datos_estudiante_json.aspx?_c_3456={code}
  timeout: 5s
  cache_size: 512
  cache_ttl: 10m
  concurrency: 4

rbac:
  roles:
    student:
      description: "Student running a social service assignment"
      permissions:
        - work.create
        - work.read
        - plan.upload
        - schedule.write
        - evidence.write
        - completion.request
        - report.submit
        - members.write
        - observation.read
    supervisor:
      description: "Supervising instructor"
      permissions:
        - work.read
        - work.list
        - selection.review
        - plan.resolve
        - plan.decline
        - completion.resolve
        - letter.store
        - schedule.review
        - members.read
        - members.status
        - observation.read
        - observation.write
        - member_documents.write
        - events.read
    manager:
      description: "Program manager overseeing the workflow"
      permissions:
        - work.read
        - work.list
        - selection.review
        - plan.decline
        - report.review
        - certificate.issue
        - letter.store
        - members.read
        - observation.read
        - observation.write
        - member_documents.write
        - identity.read
        - events.read
    program:
      description: "Academic program staff"
      permissions:
        - work.read
        - work.list
        - members.read
        - observation.read
        - identity.read
    admin:
      description: "Faculty administrator"
      permissions:
        - work.create
        - work.read
        - work.list
        - selection.review
        - plan.upload
        - plan.resolve
        - plan.decline
        - completion.request
        - completion.resolve
        - letter.store
        - report.submit
        - report.review
        - certificate.issue
        - schedule.write
        - schedule.review
        - evidence.write
        - members.read
        - members.write
        - members.status
        - member_documents.write
        - observation.read
        - observation.write
        - identity.read
        - events.read
`
