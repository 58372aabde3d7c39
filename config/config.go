// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package config aggregates configuration for the application.
package config

import (
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the configuration surface the engine consumes.
type Config struct {
	// ChunkSize bounds how many rows a chunk batch may hold.
	ChunkSize int `mapstructure:"chunk_size"`

	// Workers bounds the parallel chunk worker pool. 0 means NumCPU.
	Workers int `mapstructure:"workers"`

	// RulesFile locates the YAML rules file (required columns, per-metric
	// validation rules, report thresholds).
	RulesFile string `mapstructure:"rules_file"`

	JoinStore JoinStoreConfig `mapstructure:"join_store"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// JoinStoreConfig configures the on-disk join-dimension store.
type JoinStoreConfig struct {
	Path                string        `mapstructure:"path"`
	CommitEvery         int           `mapstructure:"commit_every"`
	CommitRetries       int           `mapstructure:"commit_retries"`
	CommitRetryInterval time.Duration `mapstructure:"commit_retry_interval"`
}

// PathsConfig locates the run inputs and outputs.
type PathsConfig struct {
	Input     string `mapstructure:"input"`
	Snapshot  string `mapstructure:"snapshot"`
	OutputDir string `mapstructure:"output_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ChunkSize: 200_000,
		Workers:   runtime.NumCPU(),
		RulesFile: "rules.yaml",
		JoinStore: JoinStoreConfig{
			Path:                "qaqc_join.ddb",
			CommitEvery:         8,
			CommitRetries:       5,
			CommitRetryInterval: 250 * time.Millisecond,
		},
		Paths: PathsConfig{
			OutputDir: "result",
		},
	}
}

// Load reads configuration from the optional config.yaml in the working
// directory and from environment variables. Environment variables use the
// prefix "QAQCRUNNER" with dots in keys replaced by underscores, so
// "join_store.path" becomes "QAQCRUNNER_JOIN_STORE_PATH".
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("QAQCRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper looks up the
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
