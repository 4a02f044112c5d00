package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/Astemirdum/library-system/library/internal/server"
	"github.com/Astemirdum/library-system/library/internal/service/circulation"
	"github.com/Astemirdum/library-system/library/internal/service/notifier"
	"github.com/Astemirdum/library-system/library/internal/service/request"
	"github.com/Astemirdum/library-system/pkg/kafka"
	"github.com/Astemirdum/library-system/pkg/logger"
	"github.com/Astemirdum/library-system/pkg/postgres"
)

type Config struct {
	Server      server.Config `yaml:"server"`
	Database    postgres.Config
	Kafka       kafka.Config
	Request     request.Config
	Circulation circulation.Config
	Notifier    notifier.Config
	Log         logger.Log `yaml:"log"`
}

var (
	once sync.Once
	cfg  Config
)

// NewConfig reads config from environment.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return &cfg
}

func printConfig(cfg Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}

type Option func(*Config)

func WithLogLevel(level zapcore.Level) Option {
	return func(c *Config) {
		c.Log.LogLevel = level
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Server.WriteTimeout = d
	}
}
