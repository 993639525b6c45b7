package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// hammerFile is the subset of a legacy hammer CLI config we understand.
// Keys in those files carry a leading colon (":foreman:").
type hammerFile struct {
	Foreman struct {
		Host     string `yaml:":host"`
		Username string `yaml:":username"`
		Password string `yaml:":password"`
	} `yaml:":foreman"`
}

// ImportHammerFile maps the server section of a hammer CLI config onto
// server.* keys in v. The values are merged over the config file layer;
// flags and environment still win.
func ImportHammerFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read hammer config: %w", err)
	}

	var hf hammerFile
	if err := yaml.Unmarshal(data, &hf); err != nil {
		return fmt.Errorf("parse hammer config %s: %w", path, err)
	}

	server := map[string]any{}
	if s := strings.TrimSpace(hf.Foreman.Host); s != "" {
		server["url"] = s
	}
	if hf.Foreman.Username != "" {
		server["username"] = hf.Foreman.Username
	}
	if hf.Foreman.Password != "" {
		server["password"] = hf.Foreman.Password
	}
	if len(server) == 0 {
		return fmt.Errorf("hammer config %s has no :foreman: settings", path)
	}

	return v.MergeConfigMap(map[string]any{"server": server})
}
