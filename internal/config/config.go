package config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultListenAddr = ":3000"
)

type MySQLConfig struct {
	Dsn             string   `mapstructure:"dsn"`
	ReplicaDsns     []string `mapstructure:"replicaDsns"`
	TablePrefix     string   `mapstructure:"tablePrefix"`
	MaxIdleConns    int      `mapstructure:"maxIdleConns"`
	MaxOpenConns    int      `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int      `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int      `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	TLS      bool   `mapstructure:"tls"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`
}

type MailConfig struct {
	Backend string     `mapstructure:"backend"`
	From    string     `mapstructure:"from"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type StripeConfig struct {
	APIKey        string `mapstructure:"apiKey"`
	WebhookSecret string `mapstructure:"webhookSecret"`
}

type Config struct {
	Debug        bool         `mapstructure:"debug"`
	SiteName     string       `mapstructure:"siteName"`
	BaseURL      string       `mapstructure:"baseURL"`
	FrontendURL  string       `mapstructure:"frontendURL"` // activation/reset links point here
	MasterKey    string       `mapstructure:"masterKey"`   // JWT signing key
	ListenAddr   string       `mapstructure:"listenAddr"`
	TemplateDir  string       `mapstructure:"templateDir"`
	AllowOrigins []string     `mapstructure:"allowOrigins"`
	MySQL        MySQLConfig  `mapstructure:"mysql"`
	Redis        RedisConfig  `mapstructure:"redis"`
	Mail         MailConfig   `mapstructure:"mail"`
	Stripe       StripeConfig `mapstructure:"stripe"`
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.FrontendURL == "" {
		c.FrontendURL = c.BaseURL
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
