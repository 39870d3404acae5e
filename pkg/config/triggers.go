// Package config provides configuration loading for trigger sources.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TriggerConfigFile is the structure of the triggers.yaml file: the Redis
// queue the worker consumes plus any cron-driven list entries.
type TriggerConfigFile struct {
	Queue     QueueTriggerConfig `yaml:"queue"`
	Schedules []ScheduleConfig   `yaml:"schedules"`
}

// QueueTriggerConfig configures the Redis-list trigger source.
type QueueTriggerConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Queue    string `yaml:"queue"`
}

// ScheduleConfig configures one cron trigger: every tick enters every member
// of the list into the automation.
type ScheduleConfig struct {
	Name         string `yaml:"name"`
	Cron         string `yaml:"cron"`
	AutomationID string `yaml:"automation_id"`
	ListID       string `yaml:"list_id"`
}

// LoadTriggerConfig loads trigger source configuration from a YAML file.
func LoadTriggerConfig(filepath string) (TriggerConfigFile, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return TriggerConfigFile{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile TriggerConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return TriggerConfigFile{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	for i, schedule := range configFile.Schedules {
		if schedule.Cron == "" {
			return TriggerConfigFile{}, fmt.Errorf("schedule %d (%s) is missing a cron expression", i, schedule.Name)
		}

		if schedule.AutomationID == "" || schedule.ListID == "" {
			return TriggerConfigFile{}, fmt.Errorf("schedule %d (%s) needs automation_id and list_id", i, schedule.Name)
		}
	}

	return configFile, nil
}
