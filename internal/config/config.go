// Package config loads and validates the controller's environment-variable
// configuration surface (the CONTROLLER_* options of spec.md §6).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/briarlatch/foreman/internal/policy"
	"github.com/briarlatch/foreman/internal/timespec"
)

// Scope identifies the registry scope a controller instance manages:
// either a single repository or an organization.
type Scope struct {
	Org  string
	Repo string
}

// String renders the scope the way the registry adapter's URLs expect it.
func (s Scope) String() string {
	if s.Org != "" {
		return fmt.Sprintf("orgs/%s", s.Org)
	}
	return fmt.Sprintf("repos/%s", s.Repo)
}

// IsOrg reports whether this scope is organization-wide, which matters
// because the registry adapter cannot cheaply count queued jobs at that
// scope (spec.md §9, open question 2).
func (s Scope) IsOrg() bool {
	return s.Org != ""
}

// Config is the fully validated, typed configuration for one controller
// instance. It is the sum of every CONTROLLER_* environment variable in
// spec.md §6.
type Config struct {
	Token string
	Scope Scope

	MinRunners         int
	MaxRunners         int
	ScaleUpThreshold   int
	ScaleDownThreshold int
	IdleTimeout        time.Duration

	PollInterval      time.Duration
	RegistrationGrace time.Duration
	ScaleUpCooldown   time.Duration

	RunnerPrefix     string
	RunnerNamePrefix string
	ControllerID     string

	RunnerImage   string
	RunnerNetwork string
	RunnerLabels  []string
	DockerSocket  string

	LogLevel          string
	StructuredLogging bool

	Priority []policy.Priority
}

// defaults mirror spec.md §6 exactly.
const (
	defaultMinRunners         = 2
	defaultMaxRunners         = 10
	defaultScaleUpThreshold   = 3
	defaultScaleDownThreshold = 1
	defaultIdleTimeout        = 300 * time.Second

	defaultPollInterval      = 30 * time.Second
	defaultRegistrationGrace = 120 * time.Second
	defaultScaleUpCooldown   = 60 * time.Second

	defaultRunnerPrefix     = "orchestrated"
	defaultRunnerNamePrefix = "github-runner"

	defaultLogLevel = "info"

	minPollInterval = 15 * time.Second
)

// Load reads CONTROLLER_* environment variables into a Config and
// validates it. A validation failure here is always fatal at startup,
// matching spec.md §7's "Authn/authz ... fatal at startup" treatment for
// any configuration the controller cannot safely run with.
func Load(getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := &Config{
		Token:             getenv("CONTROLLER_TOKEN"),
		RunnerPrefix:      orDefault(getenv("CONTROLLER_RUNNER_PREFIX"), defaultRunnerPrefix),
		RunnerNamePrefix:  orDefault(getenv("CONTROLLER_RUNNER_NAME_PREFIX"), defaultRunnerNamePrefix),
		ControllerID:      getenv("CONTROLLER_CONTROLLER_ID"),
		RunnerImage:       getenv("CONTROLLER_RUNNER_IMAGE"),
		RunnerNetwork:     getenv("CONTROLLER_RUNNER_NETWORK"),
		DockerSocket:      getenv("CONTROLLER_DOCKER_SOCKET"),
		LogLevel:          orDefault(strings.ToLower(getenv("CONTROLLER_LOG_LEVEL")), defaultLogLevel),
		StructuredLogging: true,
	}

	if v := getenv("CONTROLLER_RUNNER_LABELS"); v != "" {
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				cfg.RunnerLabels = append(cfg.RunnerLabels, l)
			}
		}
	}

	if v := getenv("CONTROLLER_STRUCTURED_LOGGING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("CONTROLLER_STRUCTURED_LOGGING: %w", err)
		}
		cfg.StructuredLogging = b
	}

	org := getenv("CONTROLLER_ORG")
	repo := getenv("CONTROLLER_REPO")
	cfg.Scope = Scope{Org: org, Repo: repo}

	var err error
	if cfg.MinRunners, err = intOrDefault(getenv("CONTROLLER_MIN_RUNNERS"), defaultMinRunners); err != nil {
		return nil, fmt.Errorf("CONTROLLER_MIN_RUNNERS: %w", err)
	}
	if cfg.MaxRunners, err = intOrDefault(getenv("CONTROLLER_MAX_RUNNERS"), defaultMaxRunners); err != nil {
		return nil, fmt.Errorf("CONTROLLER_MAX_RUNNERS: %w", err)
	}
	if cfg.ScaleUpThreshold, err = intOrDefault(getenv("CONTROLLER_SCALE_UP_THRESHOLD"), defaultScaleUpThreshold); err != nil {
		return nil, fmt.Errorf("CONTROLLER_SCALE_UP_THRESHOLD: %w", err)
	}
	if cfg.ScaleDownThreshold, err = intOrDefault(getenv("CONTROLLER_SCALE_DOWN_THRESHOLD"), defaultScaleDownThreshold); err != nil {
		return nil, fmt.Errorf("CONTROLLER_SCALE_DOWN_THRESHOLD: %w", err)
	}

	if cfg.IdleTimeout, err = timespec.ParseDurationDefault(getenv("CONTROLLER_IDLE_TIMEOUT"), defaultIdleTimeout); err != nil {
		return nil, fmt.Errorf("CONTROLLER_IDLE_TIMEOUT: %w", err)
	}
	if cfg.PollInterval, err = timespec.ParseDurationDefault(getenv("CONTROLLER_POLL_INTERVAL"), defaultPollInterval); err != nil {
		return nil, fmt.Errorf("CONTROLLER_POLL_INTERVAL: %w", err)
	}
	if cfg.RegistrationGrace, err = timespec.ParseDurationDefault(getenv("CONTROLLER_REGISTRATION_GRACE"), defaultRegistrationGrace); err != nil {
		return nil, fmt.Errorf("CONTROLLER_REGISTRATION_GRACE: %w", err)
	}
	if cfg.ScaleUpCooldown, err = timespec.ParseDurationDefault(getenv("CONTROLLER_SCALE_UP_COOLDOWN"), defaultScaleUpCooldown); err != nil {
		return nil, fmt.Errorf("CONTROLLER_SCALE_UP_COOLDOWN: %w", err)
	}

	if cfg.Priority, err = parsePriority(getenv("CONTROLLER_PRIORITY")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate applies every structural invariant spec.md §9's "Dynamic
// typing / loose configs" note calls for: mutually exclusive ORG/REPO,
// numeric ranges for thresholds, MIN ≤ MAX.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("CONTROLLER_TOKEN is required")
	}

	orgSet := c.Scope.Org != ""
	repoSet := c.Scope.Repo != ""
	if orgSet == repoSet {
		return fmt.Errorf("exactly one of CONTROLLER_ORG or CONTROLLER_REPO must be set")
	}

	if c.MinRunners < 0 {
		return fmt.Errorf("CONTROLLER_MIN_RUNNERS must be >= 0, got %d", c.MinRunners)
	}
	if c.MaxRunners < 1 {
		return fmt.Errorf("CONTROLLER_MAX_RUNNERS must be >= 1, got %d", c.MaxRunners)
	}
	if c.MinRunners > c.MaxRunners {
		return fmt.Errorf("CONTROLLER_MIN_RUNNERS (%d) must be <= CONTROLLER_MAX_RUNNERS (%d)", c.MinRunners, c.MaxRunners)
	}

	if c.ScaleUpThreshold < 1 {
		return fmt.Errorf("CONTROLLER_SCALE_UP_THRESHOLD must be >= 1, got %d", c.ScaleUpThreshold)
	}
	if c.ScaleDownThreshold < 0 {
		return fmt.Errorf("CONTROLLER_SCALE_DOWN_THRESHOLD must be >= 0, got %d", c.ScaleDownThreshold)
	}
	if c.ScaleDownThreshold >= c.ScaleUpThreshold {
		return fmt.Errorf("CONTROLLER_SCALE_DOWN_THRESHOLD (%d) must be < CONTROLLER_SCALE_UP_THRESHOLD (%d)", c.ScaleDownThreshold, c.ScaleUpThreshold)
	}

	if c.PollInterval < minPollInterval {
		return fmt.Errorf("CONTROLLER_POLL_INTERVAL must be >= %s to stay within remote-service quotas, got %s", minPollInterval, c.PollInterval)
	}

	if c.RunnerPrefix == "" {
		return fmt.Errorf("CONTROLLER_RUNNER_PREFIX must not be empty")
	}
	if c.RunnerNamePrefix == "" {
		return fmt.Errorf("CONTROLLER_RUNNER_NAME_PREFIX must not be empty")
	}
	if c.ControllerID == "" {
		return fmt.Errorf("CONTROLLER_CONTROLLER_ID is required")
	}
	if c.RunnerImage == "" {
		return fmt.Errorf("CONTROLLER_RUNNER_IMAGE is required")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("CONTROLLER_LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}

	return nil
}

func parsePriority(spec string) ([]policy.Priority, error) {
	if spec == "" {
		return policy.DefaultPriority, nil
	}

	parts := strings.Split(spec, ",")
	seen := make(map[policy.Priority]bool, len(parts))
	out := make([]policy.Priority, 0, len(parts))
	for _, p := range parts {
		pr := policy.Priority(strings.TrimSpace(p))
		switch pr {
		case policy.PriorityMin, policy.PriorityQueue, policy.PriorityUtil:
		default:
			return nil, fmt.Errorf("CONTROLLER_PRIORITY: unknown decision source %q", pr)
		}
		if seen[pr] {
			return nil, fmt.Errorf("CONTROLLER_PRIORITY: duplicate decision source %q", pr)
		}
		seen[pr] = true
		out = append(out, pr)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("CONTROLLER_PRIORITY must name all three decision sources exactly once")
	}
	return out, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOrDefault(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", v, err)
	}
	return n, nil
}
