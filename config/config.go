// Package config turns a string-keyed configuration source into a validated ReaderConfig.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/houseofcat/rabbitreader/models"
	"github.com/houseofcat/rabbitreader/utils"
)

// EnvPrefix namespaces environment overrides, e.g. RABBITREADER_HOST or RABBITREADER_PAYLOAD_COMPRESSION.
const EnvPrefix = "RABBITREADER"

// Configuration keys.
const (
	KeyName              = "name"
	KeyHost              = "host"
	KeyPort              = "port"
	KeyVhost             = "vhost"
	KeyQueue             = "queue"
	KeyUser              = "user"
	KeyPass              = "pass"
	KeyConsumerTag       = "consumer_tag"
	KeyExchange          = "exchange"
	KeyExchangeType      = "exchange_type"
	KeyRoutingKey        = "routing_key"
	KeySecure            = "secure"
	KeyCAFile            = "cafile"
	KeyLocalCert         = "local_cert"
	KeyLocalKey          = "local_pk"
	KeyVerifyPeer        = "verify_peer"
	KeyVerifyPeerName    = "verify_peer_name"
	KeyLoginMethod       = "login_method"
	KeyTimeout           = "timeout"
	KeyConnectionTimeout = "connection_timeout"
	KeyHeartbeat         = "heartbeat"
	KeyPrefetchCount     = "prefetch_count"
	KeyAckMode           = "ack_mode"
	KeyPassive           = "passive"

	KeyPayloadWrapped          = "payload.wrapped"
	KeyPayloadCompression      = "payload.compression"
	KeyPayloadEncryption       = "payload.encryption"
	KeyPayloadPassphrase       = "payload.passphrase"
	KeyPayloadSalt             = "payload.salt"
	KeyPayloadTime             = "payload.time_consideration"
	KeyPayloadMemoryMultiplier = "payload.memory_multiplier"
	KeyPayloadThreads          = "payload.threads"

	KeyStatePath      = "state.path"
	KeyLogLevel       = "log.level"
	KeyLogEncoding    = "log.encoding"
	KeyMetricsAddress = "metrics.address"
)

// RequiredKeys must be present and non-empty before a Reader may connect.
var RequiredKeys = []string{KeyHost, KeyPort, KeyVhost, KeyQueue}

// aliases maps the spellings older configs used onto the canonical keys.
var aliases = map[string]string{
	"consumer-tag":  KeyConsumerTag,
	"consumertag":   KeyConsumerTag,
	"exchange-type": KeyExchangeType,
	"routing-key":   KeyRoutingKey,
	"login-method":  KeyLoginMethod,
	"verify-peer":   KeyVerifyPeer,
}

// ValueSource is the configuration the Reader is built from. *viper.Viper satisfies it.
type ValueSource interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	IsSet(key string) bool
}

// AppConfig is everything the rabbitreader command needs besides the Reader itself.
type AppConfig struct {
	Reader         *models.ReaderConfig
	StatePath      string
	LogLevel       string
	LogEncoding    string
	MetricsAddress string
}

// NewViper builds a viper instance with env overrides, aliases and defaults, reading path when given.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for alias, key := range aliases {
		v.RegisterAlias(alias, key)
	}

	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// SetDefaults registers defaults for optional keys. Required keys never get a default.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyName, models.DefaultReaderName)
	v.SetDefault(KeyLoginMethod, models.LoginMethodDefault)
	v.SetDefault(KeyAckMode, models.AckOnReceipt)
	v.SetDefault(KeyConnectionTimeout, int(models.DefaultConnectionTimeout/time.Second))
	v.SetDefault(KeyHeartbeat, int(models.DefaultHeartbeat/time.Second))
	v.SetDefault(KeyVerifyPeer, true)
	v.SetDefault(KeyVerifyPeerName, true)
	v.SetDefault(KeyStatePath, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogEncoding, "console")
}

// Load verifies the configuration and builds a ReaderConfig.
// Missing required keys come back as a ConfigurationError naming the key.
func Load(src ValueSource) (*models.ReaderConfig, error) {

	for _, key := range RequiredKeys {
		if !src.IsSet(key) || strings.TrimSpace(src.GetString(key)) == "" {
			return nil, models.NewConfigurationError(key, "is required")
		}
	}

	port := src.GetInt(KeyPort)
	if port <= 0 || port > 65535 {
		return nil, models.NewConfigurationError(KeyPort, fmt.Sprintf("%q is not a valid port", src.GetString(KeyPort)))
	}

	config := &models.ReaderConfig{
		Name:         src.GetString(KeyName),
		Host:         src.GetString(KeyHost),
		Port:         port,
		Vhost:        src.GetString(KeyVhost),
		Queue:        src.GetString(KeyQueue),
		User:         src.GetString(KeyUser),
		Pass:         src.GetString(KeyPass),
		ConsumerTag:  src.GetString(KeyConsumerTag),
		Exchange:     src.GetString(KeyExchange),
		ExchangeType: src.GetString(KeyExchangeType),
		RoutingKey:   src.GetString(KeyRoutingKey),
		LoginMethod:  strings.ToLower(src.GetString(KeyLoginMethod)),
		AckMode:      strings.ToLower(src.GetString(KeyAckMode)),
	}

	config.PassiveDeclare = boolOrDefault(src, KeyPassive, false)

	var err error
	if config.Timeout, err = seconds(src, KeyTimeout); err != nil {
		return nil, err
	}
	if config.ConnectionTimeout, err = seconds(src, KeyConnectionTimeout); err != nil {
		return nil, err
	}
	if config.Heartbeat, err = seconds(src, KeyHeartbeat); err != nil {
		return nil, err
	}

	config.PrefetchCount = src.GetInt(KeyPrefetchCount)
	if config.PrefetchCount < 0 {
		return nil, models.NewConfigurationError(KeyPrefetchCount, "can't be negative")
	}

	if boolOrDefault(src, KeySecure, false) {
		config.TLSConfig = &models.TLSConfig{
			EnableTLS:      true,
			CAFile:         src.GetString(KeyCAFile),
			LocalCert:      src.GetString(KeyLocalCert),
			LocalKey:       src.GetString(KeyLocalKey),
			VerifyPeer:     boolOrDefault(src, KeyVerifyPeer, true),
			VerifyPeerName: boolOrDefault(src, KeyVerifyPeerName, true),
		}
	}

	if config.LoginMethod == models.LoginMethodExternal && !config.Secure() {
		return nil, models.NewConfigurationError(KeyLoginMethod, "external requires secure")
	}

	if config.Payload, err = loadPayload(src); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.ApplyDefaults()
	return config, nil
}

// LoadApp loads the Reader config plus the command level settings.
func LoadApp(src ValueSource) (*AppConfig, error) {

	readerConfig, err := Load(src)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		Reader:         readerConfig,
		StatePath:      src.GetString(KeyStatePath),
		LogLevel:       src.GetString(KeyLogLevel),
		LogEncoding:    src.GetString(KeyLogEncoding),
		MetricsAddress: src.GetString(KeyMetricsAddress),
	}, nil
}

func loadPayload(src ValueSource) (*models.PayloadConfig, error) {

	payload := &models.PayloadConfig{
		Wrapped:     boolOrDefault(src, KeyPayloadWrapped, false),
		Compression: &models.CompressionConfig{},
		Encryption:  &models.EncryptionConfig{},
	}

	switch compression := strings.ToLower(src.GetString(KeyPayloadCompression)); compression {
	case "", "none":
	case utils.GzipCompressionType, utils.ZstdCompressionType:
		payload.Compression.Enabled = true
		payload.Compression.Type = compression
	default:
		return nil, models.NewConfigurationError(KeyPayloadCompression, fmt.Sprintf("unsupported value %q", compression))
	}

	switch encryption := strings.ToLower(src.GetString(KeyPayloadEncryption)); encryption {
	case "", "none":
	case utils.AesSymmetricType:
		payload.Encryption.Enabled = true
		payload.Encryption.Type = encryption
	default:
		return nil, models.NewConfigurationError(KeyPayloadEncryption, fmt.Sprintf("unsupported value %q", encryption))
	}

	passphrase := src.GetString(KeyPayloadPassphrase)
	salt := src.GetString(KeyPayloadSalt)

	// wrapped payloads may be encrypted per message, so derive the key whenever one is configured
	if passphrase != "" || salt != "" || payload.Encryption.Enabled {
		if passphrase == "" {
			return nil, models.NewConfigurationError(KeyPayloadPassphrase, "is required for encrypted payloads")
		}
		if salt == "" {
			return nil, models.NewConfigurationError(KeyPayloadSalt, "is required for encrypted payloads")
		}

		threads := src.GetInt(KeyPayloadThreads)
		if threads < 0 || threads > 255 {
			return nil, models.NewConfigurationError(KeyPayloadThreads, "must be between 0 and 255")
		}

		payload.Encryption.TimeConsideration = uint32(nonNegative(src.GetInt(KeyPayloadTime)))
		payload.Encryption.MemoryMultiplier = uint32(nonNegative(src.GetInt(KeyPayloadMemoryMultiplier)))
		payload.Encryption.Threads = uint8(threads)
		payload.Encryption.Hashkey = utils.GetHashWithArgon(
			passphrase,
			salt,
			payload.Encryption.TimeConsideration,
			payload.Encryption.MemoryMultiplier,
			payload.Encryption.Threads,
			utils.DefaultHashLength)
	}

	return payload, nil
}

func seconds(src ValueSource, key string) (time.Duration, error) {

	if !src.IsSet(key) {
		return 0, nil
	}

	value := src.GetInt(key)
	if value < 0 {
		return 0, models.NewConfigurationError(key, "can't be negative")
	}

	return time.Duration(value) * time.Second, nil
}

func boolOrDefault(src ValueSource, key string, fallback bool) bool {
	if !src.IsSet(key) {
		return fallback
	}
	return src.GetBool(key)
}

func nonNegative(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
