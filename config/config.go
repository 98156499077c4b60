// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/mdm/confidante/jid"
)

// TLS holds whether TLS is required before a given connection type may
// authenticate, and where the certificate chain and private key live on
// disk; conn.NewTLSConfig turns these paths into a *tls.Config.
type TLS struct {
	RequiredForClients bool   `mapstructure:"required_for_clients"`
	RequiredForServers bool   `mapstructure:"required_for_servers"`
	CertificateChain   string `mapstructure:"certificate_chain"`
	PrivateKey         string `mapstructure:"private_key"`
}

// Settings is the fully resolved configuration for a confidante process.
type Settings struct {
	ListenAddress string  `mapstructure:"listen_address"`
	DatabaseURL   string  `mapstructure:"database_url"`
	Domain        jid.JID `mapstructure:"-"`
	TLS           TLS     `mapstructure:"tls"`
}

// Load reads config/defaults.yaml, merges in an optional
// config/overrides.yaml, and layers CONFIDANTE_-prefixed environment
// variables (double underscore as the nesting separator, e.g.
// CONFIDANTE_TLS__REQUIRED_FOR_CLIENTS) on top, mirroring
// confidante-backend's config::Config::builder chain.
func Load() (Settings, error) {
	v := viper.New()
	v.SetConfigName("defaults")
	v.SetConfigType("yaml")
	v.AddConfigPath("config")
	if err := v.ReadInConfig(); err != nil {
		return Settings{}, fmt.Errorf("config: reading defaults: %w", err)
	}

	v.SetConfigName("overrides")
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Settings{}, fmt.Errorf("config: merging overrides: %w", err)
		}
	}

	v.SetEnvPrefix("CONFIDANTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("config: decoding settings: %w", err)
	}

	rawDomain := v.GetString("domain")
	domain, err := jid.Parse(rawDomain)
	if err != nil {
		return Settings{}, fmt.Errorf("config: parsing domain %q: %w", rawDomain, err)
	}
	settings.Domain = domain

	return settings, nil
}

