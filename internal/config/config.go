// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from switchboard.yaml.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Agents    []AgentConfig   `yaml:"agents"`
	Routing   RoutingConfig   `yaml:"routing"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	Detector  DetectorConfig  `yaml:"detector"`
	Predictor PredictorConfig `yaml:"predictor"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Impact    ImpactConfig    `yaml:"impact"`
	Notify    NotifyConfig    `yaml:"notify"`
	Status    StatusConfig    `yaml:"status"`
	Retention RetentionConfig `yaml:"retention"`
}

// StoreConfig holds connection settings for the message store.
// Driver is "sqlite" (Path) or "mysql" (Host/Port/Database).
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
}

// AgentConfig declares one agent's capability profile in the directory.
type AgentConfig struct {
	Name                  string   `yaml:"name"`
	Role                  string   `yaml:"role"`
	PrimaryCapabilities   []string `yaml:"primary_capabilities"`
	SecondaryCapabilities []string `yaml:"secondary_capabilities"`
	ForbiddenCapabilities []string `yaml:"forbidden_capabilities"`
	MaxConcurrentTasks    int      `yaml:"max_concurrent_tasks"`
	BusinessImpactTier    string   `yaml:"business_impact_tier"`
}

// RoutingConfig holds router tuning: direct category-to-agent rules take
// precedence over capability scoring.
type RoutingConfig struct {
	DirectRules     map[string]string `yaml:"direct_rules"`
	LoadWindowHours int               `yaml:"load_window_hours"`
}

// ConsumerConfig tunes the per-agent polling loop.
type ConsumerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	ReceiveLimit        int `yaml:"receive_limit"`
	ProcessedSetBound   int `yaml:"processed_set_bound"`
}

// DetectorConfig tunes the blocker pattern catalog.
type DetectorConfig struct {
	WindowMinutes          int     `yaml:"window_minutes"`
	AcceptanceTimeoutMins  int     `yaml:"acceptance_timeout_minutes"`
	OverloadRatio          float64 `yaml:"overload_ratio"`
	RepeatedFailureMin     int     `yaml:"repeated_failure_min"`
	EmergencySLAMinutes    int     `yaml:"emergency_sla_minutes"`
	EscalationLoopMinHops  int     `yaml:"escalation_loop_min_hops"`
}

// PredictorConfig tunes the linear risk predictor.
type PredictorConfig struct {
	AlertThreshold float64 `yaml:"alert_threshold"`
}

// KnowledgeConfig tunes the knowledge indexer.
type KnowledgeConfig struct {
	MinPayloadBytes int                 `yaml:"min_payload_bytes"`
	AccessControl   map[string][]string `yaml:"access_control"`
}

// ImpactConfig tunes the impact quantifier's reporting projections.
type ImpactConfig struct {
	AnnualRevenueTarget float64 `yaml:"annual_revenue_target"`
	CostRatio           float64 `yaml:"cost_ratio"`
}

// NotifyConfig holds chat-platform escalation fan-out settings.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack adapter credentials.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord adapter credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// StatusConfig holds the operational HTTP server settings.
type StatusConfig struct {
	Port int `yaml:"port"`
}

// RetentionConfig controls the age-based cleanup sweep.
type RetentionConfig struct {
	Days              int      `yaml:"days"`
	Schedule          string   `yaml:"schedule"` // 5-field cron expression
	ExcludeSeverities []string `yaml:"exclude_severities"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Coordinator returns the name of the agent holding the coordinator role,
// or empty string if none is configured.
func (c *Config) Coordinator() string {
	for _, a := range c.Agents {
		if a.Role == "coordinator" {
			return a.Name
		}
	}
	return ""
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		c.Store.Path = "switchboard.db"
	}
	if c.Store.Host == "" {
		c.Store.Host = "127.0.0.1"
	}
	if c.Store.Port == 0 {
		c.Store.Port = 3306
	}
	if c.Store.Database == "" {
		c.Store.Database = "switchboard"
	}
	if c.Store.User == "" {
		c.Store.User = "root"
	}
	if c.Routing.LoadWindowHours == 0 {
		c.Routing.LoadWindowHours = 24
	}
	if c.Consumer.PollIntervalSeconds == 0 {
		c.Consumer.PollIntervalSeconds = 15
	}
	if c.Consumer.ReceiveLimit == 0 {
		c.Consumer.ReceiveLimit = 50
	}
	if c.Consumer.ProcessedSetBound == 0 {
		c.Consumer.ProcessedSetBound = 1000
	}
	if c.Detector.WindowMinutes == 0 {
		c.Detector.WindowMinutes = 60
	}
	if c.Detector.AcceptanceTimeoutMins == 0 {
		c.Detector.AcceptanceTimeoutMins = 30
	}
	if c.Detector.OverloadRatio == 0 {
		c.Detector.OverloadRatio = 2.0
	}
	if c.Detector.RepeatedFailureMin == 0 {
		c.Detector.RepeatedFailureMin = 3
	}
	if c.Detector.EmergencySLAMinutes == 0 {
		c.Detector.EmergencySLAMinutes = 15
	}
	if c.Detector.EscalationLoopMinHops == 0 {
		c.Detector.EscalationLoopMinHops = 3
	}
	if c.Predictor.AlertThreshold == 0 {
		c.Predictor.AlertThreshold = 0.7
	}
	if c.Knowledge.MinPayloadBytes == 0 {
		c.Knowledge.MinPayloadBytes = 100
	}
	if c.Impact.CostRatio == 0 {
		c.Impact.CostRatio = 0.3
	}
	if c.Status.Port == 0 {
		c.Status.Port = 8090
	}
	if c.Retention.Days == 0 {
		c.Retention.Days = 90
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "0 3 * * *"
	}
	if c.Retention.ExcludeSeverities == nil {
		c.Retention.ExcludeSeverities = []string{"critical"}
	}
	for i := range c.Agents {
		if c.Agents[i].MaxConcurrentTasks == 0 {
			c.Agents[i].MaxConcurrentTasks = 3
		}
		if c.Agents[i].BusinessImpactTier == "" {
			c.Agents[i].BusinessImpactTier = "medium"
		}
		if c.Agents[i].Role == "" {
			c.Agents[i].Role = "specialist"
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Store.Driver != "sqlite" && c.Store.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or mysql, got %q", c.Store.Driver))
	}
	if len(c.Agents) == 0 {
		errs = append(errs, "at least one agent is required")
	}
	seen := make(map[string]bool)
	coordinators := 0
	for i, a := range c.Agents {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("agents[%d].name is required", i))
			continue
		}
		if seen[a.Name] {
			errs = append(errs, fmt.Sprintf("agents[%d]: duplicate name %q", i, a.Name))
		}
		seen[a.Name] = true
		if a.Role == "coordinator" {
			coordinators++
		}
	}
	if len(c.Agents) > 0 && coordinators == 0 {
		errs = append(errs, "one agent must have role coordinator")
	}
	if coordinators > 1 {
		errs = append(errs, "only one agent may have role coordinator")
	}
	for cat, agent := range c.Routing.DirectRules {
		if agent != "" && !seen[agent] {
			errs = append(errs, fmt.Sprintf("routing.direct_rules[%s]: unknown agent %q", cat, agent))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
