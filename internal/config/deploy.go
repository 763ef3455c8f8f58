package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DeployConfigName     = "klue-config.yaml"
	DefaultDeployConfig  = "/klue/klue-config.yaml"
	DefaultReportSlowMsc = 1000
)

var ErrMissingLiveHost = errors.New("klue-config.yaml lacks the 'live_host' key")

// DeployConfig is the content of klue-config.yaml.
type DeployConfig struct {
	LiveHost              string `yaml:"live_host"`
	AWSCertARN            string `yaml:"aws_cert_arn"`
	ReportCallExceedingMS int    `yaml:"report_call_exceeding_ms"`
}

// Proto is https when a certificate is configured.
func (d *DeployConfig) Proto() string {
	if d.AWSCertARN != "" {
		return "https"
	}
	return "http"
}

// LiveURL returns proto://live_host, failing when live_host is missing.
func (d *DeployConfig) LiveURL() (string, error) {
	if d.LiveHost == "" {
		return "", ErrMissingLiveHost
	}
	return fmt.Sprintf("%s://%s", d.Proto(), d.LiveHost), nil
}

// FindDeployConfig looks next to the running binary first, then in /klue.
func FindDeployConfig() string {
	local := filepath.Join(filepath.Dir(os.Args[0]), DeployConfigName)
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		return local
	}
	return DefaultDeployConfig
}

func LoadDeployConfig(path string) (*DeployConfig, error) {
	if path == "" {
		path = FindDeployConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deploy config %s: %w", path, err)
	}

	cfg := &DeployConfig{ReportCallExceedingMS: DefaultReportSlowMsc}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse deploy config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDeployConfigIfPresent returns an empty config when no file exists.
func LoadDeployConfigIfPresent(path string) (*DeployConfig, error) {
	if path == "" {
		path = FindDeployConfig()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &DeployConfig{ReportCallExceedingMS: DefaultReportSlowMsc}, nil
	}
	return LoadDeployConfig(path)
}
