package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // ms
	defaultKeepAlive         = 60 * time.Second
	maxReconnectInterval     = time.Minute

	payloadOnline  = "online"
	payloadOffline = "offline"
)

var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrInvalidTopic     = errors.New("mqtt: topic cannot be empty")
)

// MessageHandler 订阅回调，在 paho 的回调协程上执行
type MessageHandler func(topic string, payload []byte) error

// Conn 桥接需要的最小 MQTT 能力
type Conn interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	IsConnected() bool
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client paho 客户端封装：LWT、自动重连、重连后恢复订阅
type Client struct {
	client pahomqtt.Client
	cfg    cfgpkg.MQTTConfig
	topics Topics
	logger *zap.Logger

	subMu         sync.RWMutex
	subscriptions map[string]subscription
}

// Connect 连接 broker；网关状态主题在连接时置 online，异常断开由 broker 置 offline
func Connect(cfg cfgpkg.MQTTConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:           cfg,
		topics:        NewTopics(cfg.TopicPrefix),
		logger:        logger,
		subscriptions: make(map[string]subscription),
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "dreamscreen-gateway"
	}
	// 多实例时避免 client id 冲突
	opts.SetClientID(clientID + "-" + uuid.NewString()[:8])
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetKeepAlive(defaultKeepAlive)
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(timeout)
	opts.SetWill(c.topics.Gateway(), payloadOffline, cfg.QoS, true)

	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.Warn("mqtt connection lost", zap.Error(err))
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	return c, nil
}

func (c *Client) handleConnect() {
	c.subMu.RLock()
	for topic, sub := range c.subscriptions {
		c.client.Subscribe(topic, sub.qos, c.wrap(sub.handler))
	}
	c.subMu.RUnlock()

	c.client.Publish(c.topics.Gateway(), c.cfg.QoS, true, payloadOnline)
}

// Publish 发布并等待确认
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe 订阅并记录，重连后自动恢复
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.subMu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrap(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// IsConnected 当前连接状态
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Close 发布 offline 后断开
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.client.Publish(c.topics.Gateway(), c.cfg.QoS, true, payloadOffline)
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

func (c *Client) wrap(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("mqtt handler panic recovered",
					zap.String("topic", msg.Topic()),
					zap.Any("panic", r))
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("mqtt handler returned error",
				zap.String("topic", msg.Topic()),
				zap.Error(err))
		}
	}
}
