package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houseofcat/rabbitreader/models"
)

func minimal(t *testing.T) *viper.Viper {
	v, err := NewViper("")
	require.NoError(t, err)

	v.Set(KeyHost, "h")
	v.Set(KeyPort, 5672)
	v.Set(KeyVhost, "/")
	v.Set(KeyQueue, "q")
	return v
}

func TestLoadMinimal(t *testing.T) {

	config, err := Load(minimal(t))
	require.NoError(t, err)

	assert.Equal(t, "h", config.Host)
	assert.Equal(t, 5672, config.Port)
	assert.Equal(t, "/", config.Vhost)
	assert.Equal(t, "q", config.Queue)
	assert.Equal(t, models.DefaultReaderName, config.Name)
	assert.Equal(t, "", config.User)
	assert.Equal(t, "", config.Exchange)
	assert.Equal(t, "", config.ConsumerTag)
	assert.Equal(t, models.LoginMethodDefault, config.LoginMethod)
	assert.Equal(t, models.AckOnReceipt, config.AckMode)
	assert.Equal(t, time.Duration(0), config.Timeout)
	assert.Equal(t, 10*time.Second, config.ConnectionTimeout)
	assert.Nil(t, config.TLSConfig)
	assert.False(t, config.Payload.Compression.Enabled)
	assert.False(t, config.Payload.Encryption.Enabled)
}

func TestLoadMissingRequiredKey(t *testing.T) {

	for _, key := range RequiredKeys {
		v, err := NewViper("")
		require.NoError(t, err)

		for _, other := range RequiredKeys {
			if other != key {
				v.Set(other, "5672")
			}
		}

		_, err = Load(v)
		require.Error(t, err, key)
		assert.True(t, errors.Is(err, models.ErrConfiguration), key)

		var readerErr *models.ReaderError
		require.True(t, errors.As(err, &readerErr))
		assert.Equal(t, key, readerErr.Key)
	}
}

func TestLoadEmptyRequiredKey(t *testing.T) {

	v := minimal(t)
	v.Set(KeyQueue, "  ")

	_, err := Load(v)

	var readerErr *models.ReaderError
	require.True(t, errors.As(err, &readerErr))
	assert.Equal(t, KeyQueue, readerErr.Key)
}

func TestLoadInvalidValues(t *testing.T) {

	cases := map[string]interface{}{
		KeyPort:               "amqp",
		KeyTimeout:            -1,
		KeyLoginMethod:        "kerberos",
		KeyAckMode:            "sometimes",
		KeyPayloadCompression: "brotli",
		KeyPayloadEncryption:  "rot13",
		KeyPrefetchCount:      -5,
	}

	for key, value := range cases {
		v := minimal(t)
		v.Set(key, value)

		_, err := Load(v)
		assert.True(t, errors.Is(err, models.ErrConfiguration), key)
	}
}

func TestLoadOptionalKeys(t *testing.T) {

	v := minimal(t)
	v.Set("consumer-tag", "reader-1")
	v.Set(KeyExchange, "events")
	v.Set("routing-key", "orders.created")
	v.Set(KeyTimeout, 1)
	v.Set(KeyPrefetchCount, 10)
	v.Set(KeyAckMode, "ON_PROCESSED")

	config, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "reader-1", config.ConsumerTag)
	assert.Equal(t, "events", config.Exchange)
	assert.Equal(t, models.DefaultExchangeType, config.ExchangeType)
	assert.Equal(t, "orders.created", config.RoutingKey)
	assert.Equal(t, time.Second, config.Timeout)
	assert.Equal(t, 10, config.PrefetchCount)
	assert.True(t, config.StrictAck())
}

func TestLoadTLS(t *testing.T) {

	v := minimal(t)
	v.Set(KeySecure, true)
	v.Set(KeyCAFile, "/etc/rabbit/ca.pem")
	v.Set(KeyVerifyPeerName, false)
	v.Set(KeyLoginMethod, "external")

	config, err := Load(v)
	require.NoError(t, err)

	require.True(t, config.Secure())
	assert.Equal(t, "/etc/rabbit/ca.pem", config.TLSConfig.CAFile)
	assert.True(t, config.TLSConfig.VerifyPeer)
	assert.False(t, config.TLSConfig.VerifyPeerName)
	assert.Equal(t, models.LoginMethodExternal, config.LoginMethod)

	v.Set(KeySecure, false)
	_, err = Load(v)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestLoadEncryptedPayload(t *testing.T) {

	v := minimal(t)
	v.Set(KeyPayloadEncryption, "aes")
	v.Set(KeyPayloadCompression, "zstd")

	_, err := Load(v)
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	v.Set(KeyPayloadPassphrase, "SuperStreetFighter2Turbo")
	v.Set(KeyPayloadSalt, "MBisonDidNothingWrong")
	v.Set(KeyPayloadMemoryMultiplier, 8)

	config, err := Load(v)
	require.NoError(t, err)
	assert.True(t, config.Payload.Encryption.Enabled)
	assert.Len(t, config.Payload.Encryption.Hashkey, 32)
	assert.Equal(t, "zstd", config.Payload.Compression.Type)
}

func TestNewViperReadsFileAndEnv(t *testing.T) {

	path := filepath.Join(t.TempDir(), "reader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: rabbit\nport: 5672\nvhost: /\nqueue: orders\nlog:\n  level: debug\n"), 0600))

	t.Setenv("RABBITREADER_QUEUE", "payments")
	t.Setenv("RABBITREADER_STATE_PATH", "/tmp/state.db")

	v, err := NewViper(path)
	require.NoError(t, err)

	app, err := LoadApp(v)
	require.NoError(t, err)

	assert.Equal(t, "rabbit", app.Reader.Host)
	assert.Equal(t, "payments", app.Reader.Queue)
	assert.Equal(t, "debug", app.LogLevel)
	assert.Equal(t, "/tmp/state.db", app.StatePath)

	_, err = NewViper(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadPassive(t *testing.T) {

	v := minimal(t)
	config, err := Load(v)
	require.NoError(t, err)
	assert.False(t, config.PassiveDeclare)

	v.Set(KeyPassive, true)
	config, err = Load(v)
	require.NoError(t, err)
	assert.True(t, config.PassiveDeclare)
}
