// Package config 为命令行工具加载配置：先读 YAML 文件，再用 CONNECT_* 环境变量覆盖。
package config

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aegis-sign/connect/pkg/credentials"
	"github.com/aegis-sign/connect/pkg/topic/poller"
	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// Config 汇总三个命令共用的配置。
type Config struct {
	App         AppConfig         `yaml:"app"`
	Relay       RelayConfig       `yaml:"relay"`
	Poll        PollConfig        `yaml:"poll"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

// AppConfig 描述发起请求的应用。
type AppConfig struct {
	Name      string `yaml:"name"`
	ClientID  string `yaml:"client_id"`
	RPCURL    string `yaml:"rpc_url"`
	InfuraKey string `yaml:"infura_key"`
}

// RelayConfig 同时被 relay 服务端和轮询客户端使用。
type RelayConfig struct {
	// URL 是客户端访问 relay 的地址。
	URL           string        `yaml:"url"`
	HTTPAddr      string        `yaml:"http_addr"`
	GRPCAddr      string        `yaml:"grpc_addr"`
	TopicTTL      time.Duration `yaml:"topic_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// PollConfig 控制 topic 轮询。
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxFailures int           `yaml:"max_failures"`
}

// CredentialsConfig 指定签发与验签所用的密钥文件（PEM）。
type CredentialsConfig struct {
	Issuer    string `yaml:"issuer"`
	SignerKey string `yaml:"signer_key"`
	// TrustedKeys 是签发者到公钥文件路径的映射。
	TrustedKeys map[string]string `yaml:"trusted_keys"`
	Leeway      time.Duration     `yaml:"leeway"`
}

// Default 返回默认配置。
func Default() Config {
	return Config{
		App: AppConfig{Name: "uport-connect-app"},
		Relay: RelayConfig{
			URL:           "http://127.0.0.1:8080",
			HTTPAddr:      ":8080",
			GRPCAddr:      ":9090",
			TopicTTL:      10 * time.Minute,
			SweepInterval: time.Minute,
		},
		Poll: PollConfig{
			Interval:    2 * time.Second,
			Timeout:     5 * time.Minute,
			MaxFailures: 5,
		},
		Credentials: CredentialsConfig{Leeway: 30 * time.Second},
	}
}

// Load 读取 path 指向的 YAML（path 为空时跳过），随后应用环境变量覆盖。
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Name, "CONNECT_APP_NAME")
	setString(&cfg.App.ClientID, "CONNECT_CLIENT_ID")
	setString(&cfg.App.RPCURL, "CONNECT_RPC_URL")
	setString(&cfg.App.InfuraKey, "CONNECT_INFURA_KEY")
	setString(&cfg.Relay.URL, "CONNECT_RELAY_URL")
	setString(&cfg.Relay.HTTPAddr, "CONNECT_RELAY_HTTP_ADDR")
	setString(&cfg.Relay.GRPCAddr, "CONNECT_RELAY_GRPC_ADDR")
	if d := readDuration("CONNECT_TOPIC_TTL"); d > 0 {
		cfg.Relay.TopicTTL = d
	}
	if d := readDuration("CONNECT_SWEEP_INTERVAL"); d > 0 {
		cfg.Relay.SweepInterval = d
	}
	if d := readDuration("CONNECT_POLL_INTERVAL"); d > 0 {
		cfg.Poll.Interval = d
	}
	if d := readDuration("CONNECT_POLL_TIMEOUT"); d > 0 {
		cfg.Poll.Timeout = d
	}
	if v := readInt("CONNECT_POLL_MAX_FAILURES"); v > 0 {
		cfg.Poll.MaxFailures = v
	}
	setString(&cfg.Credentials.Issuer, "CONNECT_ISSUER")
	setString(&cfg.Credentials.SignerKey, "CONNECT_SIGNER_KEY")
	if d := readDuration("CONNECT_LEEWAY"); d > 0 {
		cfg.Credentials.Leeway = d
	}
	if raw := os.Getenv("CONNECT_TRUSTED_KEYS"); raw != "" {
		keys, err := parseTrustedKeys(raw)
		if err != nil {
			return fmt.Errorf("failed to parse CONNECT_TRUSTED_KEYS: %w", err)
		}
		cfg.Credentials.TrustedKeys = keys
	}
	return nil
}

// parseTrustedKeys 解析 issuer=path,issuer2=path2 形式的列表。
func parseTrustedKeys(raw string) (map[string]string, error) {
	keys := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		issuer, path, found := strings.Cut(part, "=")
		issuer, path = strings.TrimSpace(issuer), strings.TrimSpace(path)
		if !found || issuer == "" || path == "" {
			return nil, fmt.Errorf("invalid trusted key entry: %s", part)
		}
		keys[issuer] = path
	}
	if len(keys) == 0 {
		return nil, errors.New("no trusted keys provided")
	}
	return keys, nil
}

// PollerConfig 转换为 poller.Config，Logger 与 Metrics 由调用方填写。
func (c Config) PollerConfig() poller.Config {
	return poller.Config{
		BaseURL:      c.Relay.URL,
		PollInterval: c.Poll.Interval,
		Timeout:      c.Poll.Timeout,
		MaxFailures:  c.Poll.MaxFailures,
	}
}

// CredentialSettings 读取密钥文件并构造 credentials.Settings。
func (c Config) CredentialSettings() (credentials.Settings, error) {
	settings := credentials.Settings{Issuer: c.Credentials.Issuer, Leeway: c.Credentials.Leeway}
	if c.Credentials.SignerKey != "" {
		key, err := loadPrivateKey(c.Credentials.SignerKey)
		if err != nil {
			return credentials.Settings{}, err
		}
		settings.Signer = key
	}
	if len(c.Credentials.TrustedKeys) > 0 {
		resolver := make(credentials.StaticKeys, len(c.Credentials.TrustedKeys))
		for issuer, path := range c.Credentials.TrustedKeys {
			key, err := loadPublicKey(path)
			if err != nil {
				return credentials.Settings{}, fmt.Errorf("trusted key for %s: %w", issuer, err)
			}
			resolver[issuer] = key
		}
		settings.Resolver = resolver
	}
	return settings, nil
}

func loadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signer key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing signer key %s: %w", path, err)
	}
	return key, nil
}

func loadPublicKey(path string) (*ecdsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseECPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return key, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func readInt(key string) int {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return v
}

func readDuration(key string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}
