package main

import (
	"fmt"

	"github.com/andrej220/synctity/pkg/config"
	"github.com/andrej220/synctity/pkg/consumer"
	"github.com/andrej220/synctity/pkg/executor"
	"github.com/andrej220/synctity/pkg/sink"
	"github.com/go-playground/validator/v10"
)

const SERVICENAME = "synctityd"
const CONFIGFILENAME = "config.yaml"

type DaemonConfig struct {
	Server struct {
		Port string `yaml:"port" json:"port"`
	} `yaml:"server" json:"server"`

	Profiles struct {
		Store string             `yaml:"store" json:"store" validate:"omitempty,oneof=file mongo"`
		File  config.FileConfig  `yaml:"file" json:"file"`
		Mongo config.MongoConfig `yaml:"mongo" json:"mongo"`
	} `yaml:"profiles" json:"profiles"`

	Runner struct {
		Shell string `yaml:"shell" json:"shell"`
		Dir   string `yaml:"dir" json:"dir"`
	} `yaml:"runner" json:"runner"`

	// SSH, when set, runs every command on the remote host.
	SSH *executor.HostConfig `yaml:"ssh,omitempty" json:"ssh,omitempty"`

	Kafka struct {
		Requests *consumer.Config  `yaml:"requests,omitempty" json:"requests,omitempty"`
		Events   *sink.KafkaConfig `yaml:"events,omitempty" json:"events,omitempty"`
	} `yaml:"kafka" json:"kafka"`
}

func NewDaemonConfig() *DaemonConfig {
	cfg := &DaemonConfig{}
	cfg.Profiles.Store = "file"
	cfg.Profiles.File.Path = "profiles.yaml"
	return cfg
}

var validate = validator.New()

// loadConfig reads path over the defaults. A missing file leaves the
// defaults in place.
func loadConfig(path string) (*DaemonConfig, error) {
	cfg := NewDaemonConfig()
	store, err := config.NewStore(config.FileStore, &config.FileConfig{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Load(cfg); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// profileStore opens the backend named in the config.
func (c *DaemonConfig) profileStore() (config.Config, error) {
	st, err := config.ParseStoreType(c.Profiles.Store)
	if err != nil {
		return nil, err
	}
	switch st {
	case config.MongoStore:
		return config.NewStore(st, &c.Profiles.Mongo)
	default:
		return config.NewStore(st, &c.Profiles.File)
	}
}
