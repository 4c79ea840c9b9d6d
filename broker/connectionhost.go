package broker

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/houseofcat/rabbitreader/models"
)

// externalAuth is SASL EXTERNAL: the broker authenticates the client by its TLS certificate.
type externalAuth struct{}

func (externalAuth) Mechanism() string { return "EXTERNAL" }
func (externalAuth) Response() string  { return "" }

// AMQPDialer dials RabbitMQ with streadway/amqp. Logger receives flow control notices and may be nil.
type AMQPDialer struct {
	Logger *zap.Logger
}

// Dial opens a ConnectionHost for config.
func (d AMQPDialer) Dial(config *models.ReaderConfig, connectionName string) (Connection, error) {

	amqpConfig, err := BuildAMQPConfig(config, connectionName)
	if err != nil {
		return nil, err
	}

	connHost, err := NewConnectionHost(BuildURI(config), connectionName, amqpConfig, d.Logger)
	if err != nil {
		return nil, err
	}

	return connHost, nil
}

// BuildURI builds the amqp:// (or amqps:// when secure) URI. Empty credentials fall back to the amqp defaults.
func BuildURI(config *models.ReaderConfig) string {

	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     config.Host,
		Port:     config.Port,
		Username: "guest",
		Password: "guest",
		Vhost:    config.Vhost,
	}

	if config.Secure() {
		uri.Scheme = "amqps"
	}

	if config.User != "" {
		uri.Username = config.User
		uri.Password = config.Pass
	}

	return uri.String()
}

// BuildAMQPConfig translates config into amqp.Config: heartbeat, dial timeout, TLS and SASL mechanism.
func BuildAMQPConfig(config *models.ReaderConfig, connectionName string) (amqp.Config, error) {

	amqpConfig := amqp.Config{
		Heartbeat: config.Heartbeat,
		Dial:      amqp.DefaultDial(config.ConnectionTimeout),
		Properties: amqp.Table{
			"connection_name": connectionName,
		},
	}

	if config.Secure() {
		tlsConfig, err := CreateTLSConfig(config.TLSConfig, config.Host)
		if err != nil {
			return amqp.Config{}, err
		}

		amqpConfig.TLSClientConfig = tlsConfig
	}

	if config.LoginMethod == models.LoginMethodExternal {
		amqpConfig.SASL = []amqp.Authentication{externalAuth{}}
	}

	return amqpConfig, nil
}

// ConnectionHost is an internal representation of amqp.Connection.
type ConnectionHost struct {
	Connection     *amqp.Connection
	ConnectionName string
	Errors         chan *amqp.Error
	Blockers       chan amqp.Blocking
	channelCount   uint64
	blocked        int32
	logger         *zap.Logger
	connLock       *sync.Mutex
}

// NewConnectionHost dials uri once and registers close and flow control notifications.
func NewConnectionHost(
	uri string,
	connectionName string,
	config amqp.Config,
	logger *zap.Logger) (*ConnectionHost, error) {

	if logger == nil {
		logger = zap.NewNop()
	}

	amqpConn, err := amqp.DialConfig(uri, config)
	if err != nil {
		return nil, err
	}

	connHost := &ConnectionHost{
		Connection:     amqpConn,
		ConnectionName: connectionName,
		Errors:         make(chan *amqp.Error, 10),
		Blockers:       make(chan amqp.Blocking, 10),
		logger:         logger,
		connLock:       &sync.Mutex{},
	}

	connHost.Connection.NotifyClose(connHost.Errors)
	connHost.Connection.NotifyBlocked(connHost.Blockers)

	// amqp sends on Blockers from its reader goroutine; an undrained channel stalls the connection.
	go connHost.watchBlockers()

	return connHost, nil
}

// watchBlockers drains flow control notices until amqp closes Blockers on shutdown.
func (ch *ConnectionHost) watchBlockers() {

	for blocking := range ch.Blockers {
		if blocking.Active {
			atomic.StoreInt32(&ch.blocked, 1)
			ch.logger.Warn("connection blocked by broker",
				zap.String("connection", ch.ConnectionName),
				zap.String("reason", blocking.Reason))
			continue
		}

		atomic.StoreInt32(&ch.blocked, 0)
		ch.logger.Info("connection unblocked by broker", zap.String("connection", ch.ConnectionName))
	}
}

// Blocked reports whether the broker currently blocks publishing on this connection (resource alarm).
func (ch *ConnectionHost) Blocked() bool {
	return atomic.LoadInt32(&ch.blocked) == 1
}

// Channel opens a new ChannelHost on this connection.
func (ch *ConnectionHost) Channel() (Channel, error) {

	chanHost, err := NewChannelHost(ch, atomic.AddUint64(&ch.channelCount, 1))
	if err != nil {
		return nil, err
	}

	return chanHost, nil
}

// IsClosed reports whether the underlying connection is gone.
func (ch *ConnectionHost) IsClosed() bool {
	return ch.Connection == nil || ch.Connection.IsClosed()
}

// Close closes the connection. Closing twice returns ErrConnectionClosed.
func (ch *ConnectionHost) Close() error {
	ch.connLock.Lock()
	defer ch.connLock.Unlock()

	if ch.IsClosed() {
		return ErrConnectionClosed
	}

	err := ch.Connection.Close()
	if errors.Is(err, amqp.ErrClosed) {
		return ErrConnectionClosed
	}

	return err
}
