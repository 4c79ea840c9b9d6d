package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/houseofcat/rabbitreader/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *models.ReaderConfig {
	return &models.ReaderConfig{Host: "h", Port: 5672, Vhost: "/", Queue: "q"}
}

func TestValidateRequiredKeys(t *testing.T) {

	cases := map[string]func(*models.ReaderConfig){
		"host":  func(rc *models.ReaderConfig) { rc.Host = "" },
		"port":  func(rc *models.ReaderConfig) { rc.Port = 0 },
		"vhost": func(rc *models.ReaderConfig) { rc.Vhost = "" },
		"queue": func(rc *models.ReaderConfig) { rc.Queue = "" },
	}

	for key, mutate := range cases {
		rc := validConfig()
		mutate(rc)

		err := rc.Validate()
		require.Error(t, err, key)
		assert.True(t, errors.Is(err, models.ErrConfiguration))

		var readerErr *models.ReaderError
		require.True(t, errors.As(err, &readerErr))
		assert.Equal(t, key, readerErr.Key)
	}
}

func TestValidateRejectsUnknownEnums(t *testing.T) {

	rc := validConfig()
	rc.LoginMethod = "kerberos"
	assert.Error(t, rc.Validate())

	rc = validConfig()
	rc.AckMode = "never"
	assert.Error(t, rc.Validate())
}

func TestApplyDefaults(t *testing.T) {

	rc := validConfig()
	require.NoError(t, rc.Validate())
	rc.ApplyDefaults()

	assert.Equal(t, models.DefaultReaderName, rc.Name)
	assert.Equal(t, models.LoginMethodDefault, rc.LoginMethod)
	assert.Equal(t, models.AckOnReceipt, rc.AckMode)
	assert.Equal(t, 10*time.Second, rc.ConnectionTimeout)
	assert.Equal(t, "", rc.ExchangeType)
	assert.False(t, rc.Secure())
	assert.False(t, rc.StrictAck())

	rc.Exchange = "events"
	rc.ApplyDefaults()
	assert.Equal(t, models.DefaultExchangeType, rc.ExchangeType)
}

func TestTopologyFromConfig(t *testing.T) {

	rc := validConfig()
	topology := models.TopologyFromConfig(rc)

	require.Len(t, topology.Queues, 1)
	assert.Equal(t, "q", topology.Queues[0].Name)
	assert.True(t, topology.Queues[0].Durable)
	assert.False(t, topology.Queues[0].Exclusive)
	assert.False(t, topology.Queues[0].AutoDelete)
	assert.Empty(t, topology.Exchanges)
	assert.Empty(t, topology.QueueBindings)

	rc.Exchange = "events"
	rc.RoutingKey = "orders.created"
	topology = models.TopologyFromConfig(rc)

	require.Len(t, topology.Exchanges, 1)
	assert.Equal(t, "direct", topology.Exchanges[0].Type)
	assert.True(t, topology.Exchanges[0].Durable)
	require.Len(t, topology.QueueBindings, 1)
	assert.Equal(t, "orders.created", topology.QueueBindings[0].RoutingKey)
	assert.False(t, topology.Exchanges[0].PassiveDeclare)

	rc.PassiveDeclare = true
	topology = models.TopologyFromConfig(rc)

	assert.True(t, topology.Queues[0].PassiveDeclare)
	assert.True(t, topology.Exchanges[0].PassiveDeclare)
}
