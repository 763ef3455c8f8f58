package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type Config struct {
	Server  ServerConfig
	APIs    APIsConfig
	Docs    DocsConfig
	JWT     JWTConfig
	Logging LoggingConfig
	CORS    CORSConfig
	Crash   CrashConfig
	AWS     AWSConfig
	Process ProcessConfig
	Deploy  string
	Debug   bool
}

type ServerConfig struct {
	Host string
	Port int
}

type APIsConfig struct {
	Path    string
	Serve   []string
	Ignore  []string
	Clients []string
	Timeout time.Duration
}

type DocsConfig struct {
	Publish   bool
	Prefix    string
	ViewerURL string
	SwaggerUI bool
}

type JWTConfig struct {
	Secret        string
	Audience      string
	Issuer        string
	DefaultUserID string
}

type LoggingConfig struct {
	Level      string
	Format     string
	Filename   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

type CrashConfig struct {
	// Reporter is one of "log", "ses" or "s3".
	Reporter            string
	ReportCallExceeding time.Duration
	EmailTo             string
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	EndpointURL     string
	FromEmail       string
	Bucket          string
}

type ProcessConfig struct {
	Managers []string
}

// SetDefaults registers every default on v. Flags bound by the CLI override them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 80)
	v.SetDefault("debug", true)
	v.SetDefault("deploy_config", "")

	v.SetDefault("apis_path", "apis")
	v.SetDefault("serve", []string{})
	v.SetDefault("ignore", []string{})
	v.SetDefault("clients", []string{})
	v.SetDefault("timeout", 20*time.Second)

	v.SetDefault("doc_publish", false)
	v.SetDefault("doc_prefix", "doc")
	v.SetDefault("doc_viewer_url", "http://petstore.swagger.io/")
	v.SetDefault("doc_swagger_ui", false)

	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_audience", "")
	v.SetDefault("jwt_issuer", "")
	v.SetDefault("jwt_default_user_id", "")

	v.SetDefault("log_level", "debug")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "logs/microservice.log")
	v.SetDefault("log_max_size", 100)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age", 28)
	v.SetDefault("log_compress", true)

	v.SetDefault("cors_allowed_origins", []string{"*"})
	v.SetDefault("cors_allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"})
	v.SetDefault("cors_allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("cors_exposed_headers", []string{})
	v.SetDefault("cors_allow_credentials", false)
	v.SetDefault("cors_max_age", 300)

	v.SetDefault("crash_reporter", "log")
	v.SetDefault("report_call_exceeding", time.Second)
	v.SetDefault("crash_email_to", "")

	v.SetDefault("aws_region", "eu-west-1")
	v.SetDefault("aws_access_key_id", "")
	v.SetDefault("aws_secret_access_key", "")
	v.SetDefault("aws_endpoint_url", "")
	v.SetDefault("aws_from_email", "")
	v.SetDefault("aws_bucket", "")

	v.SetDefault("process_managers", []string{"gunicorn"})
}

// New returns a viper instance reading KLUE_* environment variables on top of the defaults.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("KLUE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from v, which merges flag values, env vars and defaults.
func Load(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Host: v.GetString("host"),
			Port: v.GetInt("port"),
		},
		APIs: APIsConfig{
			Path:    v.GetString("apis_path"),
			Serve:   getList(v, "serve"),
			Ignore:  getList(v, "ignore"),
			Clients: getList(v, "clients"),
			Timeout: v.GetDuration("timeout"),
		},
		Docs: DocsConfig{
			Publish:   v.GetBool("doc_publish"),
			Prefix:    v.GetString("doc_prefix"),
			ViewerURL: v.GetString("doc_viewer_url"),
			SwaggerUI: v.GetBool("doc_swagger_ui"),
		},
		JWT: JWTConfig{
			Secret:        v.GetString("jwt_secret"),
			Audience:      v.GetString("jwt_audience"),
			Issuer:        v.GetString("jwt_issuer"),
			DefaultUserID: v.GetString("jwt_default_user_id"),
		},
		Logging: LoggingConfig{
			Level:      v.GetString("log_level"),
			Format:     v.GetString("log_format"),
			Filename:   v.GetString("log_file"),
			MaxSize:    v.GetInt("log_max_size"),
			MaxBackups: v.GetInt("log_max_backups"),
			MaxAge:     v.GetInt("log_max_age"),
			Compress:   v.GetBool("log_compress"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getList(v, "cors_allowed_origins"),
			AllowedMethods:   getList(v, "cors_allowed_methods"),
			AllowedHeaders:   getList(v, "cors_allowed_headers"),
			ExposedHeaders:   getList(v, "cors_exposed_headers"),
			AllowCredentials: v.GetBool("cors_allow_credentials"),
			MaxAge:           v.GetInt("cors_max_age"),
		},
		Crash: CrashConfig{
			Reporter:            v.GetString("crash_reporter"),
			ReportCallExceeding: v.GetDuration("report_call_exceeding"),
			EmailTo:             v.GetString("crash_email_to"),
		},
		AWS: AWSConfig{
			Region:          v.GetString("aws_region"),
			AccessKeyID:     v.GetString("aws_access_key_id"),
			SecretAccessKey: v.GetString("aws_secret_access_key"),
			EndpointURL:     v.GetString("aws_endpoint_url"),
			FromEmail:       v.GetString("aws_from_email"),
			Bucket:          v.GetString("aws_bucket"),
		},
		Process: ProcessConfig{
			Managers: getList(v, "process_managers"),
		},
		Deploy: v.GetString("deploy_config"),
		Debug:  v.GetBool("debug"),
	}
}

// Default returns the configuration with no flags or environment applied.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	return Load(v)
}

// env vars arrive as a single comma separated string
func getList(v *viper.Viper, key string) []string {
	raw := v.GetStringSlice(key)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
