// Copyright (C) 2025-2026 CardinalHQ, Inc
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

package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/cardinalhq/lakewriter/internal/cloudstorage"
	"github.com/cardinalhq/lakewriter/internal/datafile"
	"github.com/cardinalhq/lakewriter/internal/tablewriter"
)

// Config aggregates configuration for the write path.
// Each field is owned by its respective package.
type Config struct {
	Writer  datafile.Config     `mapstructure:"writer"`
	Storage cloudstorage.Config `mapstructure:"storage"`
	Fanout  tablewriter.Config  `mapstructure:"fanout"`
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "LAKEWRITER" and the dot character
// in keys is replaced by an underscore. For example, "writer.bucket" becomes
// "LAKEWRITER_WRITER_BUCKET".
func Load() (*Config, error) {
	cfg := &Config{
		Writer:  datafile.DefaultConfig(),
		Storage: cloudstorage.Config{Provider: cloudstorage.ProviderAWS},
		Fanout:  tablewriter.DefaultConfig(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("LAKEWRITER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the sections that have invariants of their own.
func (c *Config) Validate() error {
	if err := c.Writer.Validate(); err != nil {
		return fmt.Errorf("writer: %w", err)
	}
	switch c.Storage.Provider {
	case cloudstorage.ProviderAWS, cloudstorage.ProviderFile, "":
	default:
		return fmt.Errorf("storage: unsupported provider %q", c.Storage.Provider)
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
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
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
