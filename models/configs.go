package models

import (
	"fmt"
	"time"
)

const (
	// LoginMethodDefault authenticates with the configured user and pass (SASL PLAIN).
	LoginMethodDefault = "default"

	// LoginMethodExternal authenticates with the client certificate (SASL EXTERNAL).
	LoginMethodExternal = "external"

	// AckOnReceipt acknowledges a delivery as soon as it is buffered.
	AckOnReceipt = "on_receipt"

	// AckOnProcessed acknowledges a delivery when the caller marks the record processed.
	AckOnProcessed = "on_processed"

	// DefaultReaderName is the state scope used when no name is configured.
	DefaultReaderName = "messagequeue"

	// DefaultExchangeType is used when an exchange is configured without a type.
	DefaultExchangeType = "direct"

	// DefaultConnectionTimeout bounds the TCP dial and AMQP handshake.
	DefaultConnectionTimeout = 10 * time.Second

	// DefaultHeartbeat is the negotiated AMQP heartbeat interval.
	DefaultHeartbeat = 10 * time.Second
)

// ReaderConfig represents the configuration values of a single Reader.
type ReaderConfig struct {
	Name  string `json:"Name" yaml:"Name"`
	Host  string `json:"Host" yaml:"Host"`
	Port  int    `json:"Port" yaml:"Port"`
	Vhost string `json:"Vhost" yaml:"Vhost"`
	Queue string `json:"Queue" yaml:"Queue"`

	User        string `json:"User" yaml:"User"`
	Pass        string `json:"-" yaml:"-"`
	ConsumerTag string `json:"ConsumerTag" yaml:"ConsumerTag"`
	LoginMethod string `json:"LoginMethod" yaml:"LoginMethod"`

	Exchange     string `json:"Exchange" yaml:"Exchange"`
	ExchangeType string `json:"ExchangeType" yaml:"ExchangeType"`
	RoutingKey   string `json:"RoutingKey" yaml:"RoutingKey"`

	// Timeout bounds a single GetNextRecord wait. Zero waits until the context ends.
	Timeout           time.Duration `json:"Timeout" yaml:"Timeout"`
	ConnectionTimeout time.Duration `json:"ConnectionTimeout" yaml:"ConnectionTimeout"`
	Heartbeat         time.Duration `json:"Heartbeat" yaml:"Heartbeat"`
	PrefetchCount     int           `json:"PrefetchCount" yaml:"PrefetchCount"`
	AckMode           string        `json:"AckMode" yaml:"AckMode"`
	PassiveDeclare    bool          `json:"PassiveDeclare" yaml:"PassiveDeclare"` // only check that the queue and exchange exist

	TLSConfig *TLSConfig     `json:"TLSConfig" yaml:"TLSConfig"`
	Payload   *PayloadConfig `json:"Payload" yaml:"Payload"`
}

// TLSConfig represents settings for configuring TLS.
type TLSConfig struct {
	EnableTLS      bool   `json:"EnableTLS" yaml:"EnableTLS"`
	CAFile         string `json:"CAFile" yaml:"CAFile"`
	LocalCert      string `json:"LocalCert" yaml:"LocalCert"`
	LocalKey       string `json:"LocalKey" yaml:"LocalKey"`
	VerifyPeer     bool   `json:"VerifyPeer" yaml:"VerifyPeer"`
	VerifyPeerName bool   `json:"VerifyPeerName" yaml:"VerifyPeerName"`
}

// PayloadConfig describes how message bodies were encoded by the producer.
type PayloadConfig struct {
	Wrapped     bool               `json:"Wrapped" yaml:"Wrapped"`
	Compression *CompressionConfig `json:"Compression" yaml:"Compression"`
	Encryption  *EncryptionConfig  `json:"Encryption" yaml:"Encryption"`
}

// CompressionConfig allows you to configure payload compression.
type CompressionConfig struct {
	Enabled bool   `json:"Enabled" yaml:"Enabled"`
	Type    string `json:"Type,omitempty" yaml:"Type,omitempty"`
}

// EncryptionConfig allows you to configure symmetric key encryption based on options.
type EncryptionConfig struct {
	Enabled           bool   `json:"Enabled" yaml:"Enabled"`
	Type              string `json:"Type,omitempty" yaml:"Type,omitempty"`
	Hashkey           []byte `json:"-" yaml:"-"`
	TimeConsideration uint32 `json:"TimeConsideration,omitempty" yaml:"TimeConsideration,omitempty"`
	MemoryMultiplier  uint32 `json:"MemoryMultiplier,omitempty" yaml:"MemoryMultiplier,omitempty"`
	Threads           uint8  `json:"Threads,omitempty" yaml:"Threads,omitempty"`
}

// Secure reports whether the connection should be made over TLS.
func (rc *ReaderConfig) Secure() bool {
	return rc.TLSConfig != nil && rc.TLSConfig.EnableTLS
}

// StrictAck reports whether acknowledgement is deferred until the record is marked.
func (rc *ReaderConfig) StrictAck() bool {
	return rc.AckMode == AckOnProcessed
}

// Address returns host:port, used in log lines.
func (rc *ReaderConfig) Address() string {
	return fmt.Sprintf("%s:%d", rc.Host, rc.Port)
}

// Validate checks the required fields of a config that was built in code rather than loaded.
func (rc *ReaderConfig) Validate() error {

	switch {
	case rc.Host == "":
		return NewConfigurationError("host", "is required")
	case rc.Port <= 0:
		return NewConfigurationError("port", "is required")
	case rc.Vhost == "":
		return NewConfigurationError("vhost", "is required")
	case rc.Queue == "":
		return NewConfigurationError("queue", "is required")
	}

	switch rc.LoginMethod {
	case "", LoginMethodDefault, LoginMethodExternal:
	default:
		return NewConfigurationError("login_method", fmt.Sprintf("unsupported value %q", rc.LoginMethod))
	}

	switch rc.AckMode {
	case "", AckOnReceipt, AckOnProcessed:
	default:
		return NewConfigurationError("ack_mode", fmt.Sprintf("unsupported value %q", rc.AckMode))
	}

	if rc.Timeout < 0 {
		return NewConfigurationError("timeout", "can't be negative")
	}

	return nil
}

// ApplyDefaults fills optional values that were left empty.
func (rc *ReaderConfig) ApplyDefaults() {

	if rc.Name == "" {
		rc.Name = DefaultReaderName
	}

	if rc.LoginMethod == "" {
		rc.LoginMethod = LoginMethodDefault
	}

	if rc.AckMode == "" {
		rc.AckMode = AckOnReceipt
	}

	if rc.Exchange != "" && rc.ExchangeType == "" {
		rc.ExchangeType = DefaultExchangeType
	}

	if rc.ConnectionTimeout <= 0 {
		rc.ConnectionTimeout = DefaultConnectionTimeout
	}

	if rc.Heartbeat <= 0 {
		rc.Heartbeat = DefaultHeartbeat
	}
}
