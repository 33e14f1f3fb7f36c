package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Model       ModelConfig       `json:"model"`
	Coordinator CoordinatorConfig `json:"coordinator"`
	Sync        SyncConfig        `json:"sync"`
	DataDir     string            `json:"data_dir"`
	LogDir      string            `json:"log_dir"`
}

type ModelConfig struct {
	Name      string `json:"name"`
	BaseURL   string `json:"base_url"`
	APIKeyEnv string `json:"api_key_env"`
}

type CoordinatorConfig struct {
	ResponseTimeoutSec int `json:"response_timeout_sec"`
	DefaultPlanDays    int `json:"default_plan_days"`
	MaxPlanDays        int `json:"max_plan_days"`
	DispatchBuffer     int `json:"dispatch_buffer"`
}

type SyncConfig struct {
	Enabled     bool `json:"enabled"`
	IntervalSec int  `json:"interval_sec"`
	TimeoutSec  int  `json:"timeout_sec"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		Model: ModelConfig{
			Name:      "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Coordinator: CoordinatorConfig{
			ResponseTimeoutSec: 5,
			DefaultPlanDays:    3,
			MaxPlanDays:        7,
			DispatchBuffer:     64,
		},
		Sync: SyncConfig{
			Enabled:     true,
			IntervalSec: 15 * 60,
			TimeoutSec:  30,
		},
		DataDir: filepath.Join("output", "db"),
		LogDir:  filepath.Join("output", "logs"),
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Model.Name) == "" {
		cfg.Model.Name = "gpt-4o-mini"
	}
	if strings.TrimSpace(cfg.Model.APIKeyEnv) == "" {
		cfg.Model.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Coordinator.ResponseTimeoutSec <= 0 {
		cfg.Coordinator.ResponseTimeoutSec = 5
	}
	if cfg.Coordinator.DefaultPlanDays <= 0 {
		cfg.Coordinator.DefaultPlanDays = 3
	}
	if cfg.Coordinator.MaxPlanDays <= 0 || cfg.Coordinator.MaxPlanDays > 7 {
		cfg.Coordinator.MaxPlanDays = 7
	}
	if cfg.Coordinator.DefaultPlanDays > cfg.Coordinator.MaxPlanDays {
		cfg.Coordinator.DefaultPlanDays = cfg.Coordinator.MaxPlanDays
	}
	if cfg.Coordinator.DispatchBuffer <= 0 {
		cfg.Coordinator.DispatchBuffer = 64
	}
	if cfg.Sync.IntervalSec <= 0 {
		cfg.Sync.IntervalSec = 15 * 60
	}
	if cfg.Sync.TimeoutSec <= 0 {
		cfg.Sync.TimeoutSec = 30
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = filepath.Join("output", "db")
	}
	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = filepath.Join("output", "logs")
	}
}
