package conf

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	z "github.com/Oudwins/zog"

	"github.com/Oudwins/wocs/internals/env"
)

const FileName = "wocs.json"

type Config struct {
	Version   string          `json:"-"`
	DataDir   string          `json:"-"`
	Scheduler SchedulerConfig `json:"scheduler" zog:"scheduler"`
	Queue     QueueConfig     `json:"queue" zog:"queue"`
	Tasks     TasksConfig     `json:"tasks" zog:"tasks"`
}

type SchedulerConfig struct {
	Interval  string `json:"interval" zog:"interval"`
	BatchSize int    `json:"batch_size" zog:"batch_size"`
}

type QueueConfig struct {
	Workers     int    `json:"workers" zog:"workers"`
	RetryMax    int    `json:"retry_max" zog:"retry_max"`
	BackoffBase string `json:"backoff_base" zog:"backoff_base"`
	BackoffMax  string `json:"backoff_max" zog:"backoff_max"`
	Subject     string `json:"subject" zog:"subject"`
}

type TasksConfig struct {
	DefaultPriority int `json:"default_priority" zog:"default_priority"`
}

var schedulerSchema = z.Struct(z.Shape{
	"Interval":  z.String().Default("30s").TestFunc(isDuration, z.Message("scheduler.interval must be a duration like 30s")),
	"BatchSize": z.Int().Default(100).GTE(1),
})

var queueSchema = z.Struct(z.Shape{
	"Workers":     z.Int().Default(2).GTE(1),
	"RetryMax":    z.Int().Default(3).GTE(0),
	"BackoffBase": z.String().Default("1s").TestFunc(isDuration, z.Message("queue.backoff_base must be a duration")),
	"BackoffMax":  z.String().Default("1m").TestFunc(isDuration, z.Message("queue.backoff_max must be a duration")),
	"Subject":     z.String().Default("wocs.tasks"),
})

var tasksSchema = z.Struct(z.Shape{
	"DefaultPriority": z.Int().Default(0),
})

var ConfigSchema = z.Struct(z.Shape{
	"Scheduler": schedulerSchema,
	"Queue":     queueSchema,
	"Tasks":     tasksSchema,
})

var config *Config

// GetConfig loads the config file from the environment's data dir once.
func GetConfig() *Config {
	if config == nil {
		loaded, err := Load(env.Get().DATA_DIR)
		if err != nil {
			log.Fatal("[WOCS] Failed to load config: ", err)
		}
		config = loaded
	}
	return config
}

// Load reads <dataDir>/wocs.json. A missing or empty file yields the defaults.
func Load(dataDir string) (*Config, error) {
	payload := map[string]any{}
	data, err := os.ReadFile(filepath.Join(filepath.Clean(dataDir), FileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	case strings.TrimSpace(string(data)) != "":
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	parsed := &Config{}
	if issues := ConfigSchema.Parse(payload, parsed); len(issues) > 0 {
		return nil, fmt.Errorf("invalid config: %s", z.Issues.FlattenAndCollect(issues))
	}
	parsed.Version = "0.1.0"
	parsed.DataDir = dataDir
	return parsed, nil
}

func (c SchedulerConfig) IntervalDuration() time.Duration {
	return mustDuration(c.Interval)
}

func (c QueueConfig) BackoffBaseDuration() time.Duration {
	return mustDuration(c.BackoffBase)
}

func (c QueueConfig) BackoffMaxDuration() time.Duration {
	return mustDuration(c.BackoffMax)
}

// mustDuration is only called on values the schema already validated.
func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func isDuration(valPtr *string, ctx z.Ctx) bool {
	d, err := time.ParseDuration(*valPtr)
	return err == nil && d >= 0
}
