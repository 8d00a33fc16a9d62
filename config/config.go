// Package config loads the searchsync YAML configuration.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/viant/searchsync/autocommit"
	"github.com/viant/searchsync/bulk"
	"github.com/viant/searchsync/engine"
	"github.com/viant/searchsync/index"
	"github.com/viant/searchsync/schema"
	"github.com/viant/searchsync/transform"
)

// Config is the top-level configuration.
type Config struct {
	Backend     Backend `yaml:"backend"`
	Sync        Sync    `yaml:"sync"`
	MetricsAddr string  `yaml:"metrics-addr,omitempty"`
}

// Backend configures the SQLite search backend.
type Backend struct {
	DSN           string        `yaml:"dsn"`
	BusyTimeout   time.Duration `yaml:"busy-timeout"`
	UniqueKey     string        `yaml:"unique-key"`
	Strict        bool          `yaml:"strict"`
	Fields        []Field       `yaml:"fields,omitempty"`
	DynamicFields []Field       `yaml:"dynamic-fields,omitempty"`
}

// Field declares one backend field or dynamic field pattern.
type Field struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type,omitempty"`
	MultiValued bool   `yaml:"multi-valued,omitempty"`
}

// Info returns the field's backend description.
func (f Field) Info() index.FieldInfo {
	return index.FieldInfo{Type: f.Type, MultiValued: f.MultiValued}
}

// Sync configures the document pipeline.
type Sync struct {
	Mapping            string        `yaml:"mapping"`
	UniqueKeyField     string        `yaml:"unique-key-field"`
	TimestampField     string        `yaml:"timestamp-field"`
	NamespaceField     string        `yaml:"namespace-field"`
	BulkFlushThreshold int           `yaml:"bulk-flush-threshold"`
	AutoCommit         bool          `yaml:"auto-commit"`
	AutoCommitInterval time.Duration `yaml:"auto-commit-interval"`
	RequireSchema      bool          `yaml:"require-schema"`
	Retry              Retry         `yaml:"retry"`
}

// Retry bounds retries of backend calls.
type Retry struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
	MaxDelay time.Duration `yaml:"max-delay"`
}

// Policy returns the retry policy for backend calls.
func (r Retry) Policy() index.RetryPolicy {
	return index.RetryPolicy{Attempts: r.Attempts, Delay: r.Delay, MaxDelay: r.MaxDelay}
}

// Default returns the configuration used for absent keys.
func Default() *Config {
	return &Config{
		Backend: Backend{
			DSN:         "searchsync.sqlite",
			BusyTimeout: engine.DefaultBusyTimeout,
			UniqueKey:   "_id",
		},
		Sync: Sync{
			Mapping:            "contact/v1",
			UniqueKeyField:     "_id",
			TimestampField:     "_ts",
			NamespaceField:     "ns",
			BulkFlushThreshold: bulk.DefaultThreshold,
			AutoCommitInterval: autocommit.DefaultInterval,
			Retry: Retry{
				Attempts: 1,
				Delay:    index.DefaultRetryDelay,
			},
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("config file %q", path)
		}
		return nil, errors.Annotatef(err, "reading config file %q", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Annotatef(err, "config file %q", path)
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Annotate(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

// Validate ensures that the config values are valid.
func (c *Config) Validate() error {
	if c.Backend.DSN == "" {
		return errors.NotValidf("empty backend dsn")
	}
	if c.Backend.BusyTimeout < 0 {
		return errors.NotValidf("negative busy timeout %v", c.Backend.BusyTimeout)
	}
	if c.Backend.UniqueKey == "" {
		return errors.NotValidf("empty backend unique key")
	}
	for _, f := range c.Backend.Fields {
		if f.Name == "" {
			return errors.NotValidf("field without name")
		}
	}
	for _, f := range c.Backend.DynamicFields {
		if err := schema.ValidatePattern(f.Name); err != nil {
			return errors.Trace(err)
		}
	}
	s := c.Sync
	if _, err := transform.Lookup(s.Mapping); err != nil {
		return errors.NotValidf("mapping %q", s.Mapping)
	}
	if s.UniqueKeyField == "" || s.TimestampField == "" || s.NamespaceField == "" {
		return errors.NotValidf("empty sync field name")
	}
	if _, err := s.Transformer(); err != nil {
		return errors.NotValidf("mapping %q with unique key field %q", s.Mapping, s.UniqueKeyField)
	}
	if s.BulkFlushThreshold <= 0 {
		return errors.NotValidf("bulk flush threshold %d", s.BulkFlushThreshold)
	}
	if s.AutoCommit && s.AutoCommitInterval <= 0 {
		return errors.NotValidf("auto commit interval %v", s.AutoCommitInterval)
	}
	return errors.Trace(s.Retry.Policy().Validate())
}

// Transformer returns the configured document mapping, reading document
// identifiers from UniqueKeyField.
func (s Sync) Transformer() (transform.Transformer, error) {
	t, err := transform.Lookup(s.Mapping)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return transform.WithIDPath(t, s.UniqueKeyField)
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	return data, errors.Trace(err)
}
