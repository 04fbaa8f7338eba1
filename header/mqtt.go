package header

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-msgcam/logger"
)

// MQTTConfig describes the telemetry broker subscription.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://ops.mmto.arizona.edu:1883".
	Broker   string
	ClientID string
	Username string
	Password string
	// Prefix is the topic prefix; the telemetry key is the topic remainder,
	// so "mmto/telemetry/mount_mini_ra" carries "mount_mini_ra".
	Prefix string
	QoS    byte
	// MaxAge discards cached values older than this. Zero keeps values forever.
	MaxAge time.Duration
}

type sample struct {
	value string
	at    time.Time
}

// MQTTSource caches the latest telemetry value published per key.
type MQTTSource struct {
	client mqtt.Client
	cfg    MQTTConfig
	values *xsync.MapOf[string, sample]
	logger logger.Logger
	now    func() time.Time
}

var _ Source = (*MQTTSource)(nil)

// NewMQTTSource creates a source for cfg. Connect starts the subscription.
func NewMQTTSource(cfg MQTTConfig, l logger.Logger) (*MQTTSource, error) {
	if cfg.Broker == "" {
		return nil, errors.New("header: mqtt broker is empty")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("header: invalid mqtt qos %d", cfg.QoS)
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.ClientID == "" {
		cfg.ClientID = "msgcam-header"
	}
	if l == nil {
		l = logger.GetLogger()
	}

	s := &MQTTSource{
		cfg:    cfg,
		values: xsync.NewMapOf[string, sample](),
		logger: l,
		now:    time.Now,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		topic := s.topicFilter()
		if token := c.Subscribe(topic, cfg.QoS, s.handleMessage); token.Wait() && token.Error() != nil {
			s.logger.Error("header: mqtt subscribe failed", "topic", topic, "error", token.Error())
			return
		}
		s.logger.Info("header: mqtt subscribed", "topic", topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("header: mqtt connection lost", "error", err)
	})
	s.client = mqtt.NewClient(opts)

	return s, nil
}

// Connect connects to the broker and subscribes to the telemetry topics.
func (s *MQTTSource) Connect(ctx context.Context) error {
	token := s.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: connect %s: %w", ErrSourceUnavailable, s.cfg.Broker, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: connect %s: %w", ErrSourceUnavailable, s.cfg.Broker, err)
	}

	return nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() {
	s.client.Disconnect(250)
}

// Lookup implements Source.
func (s *MQTTSource) Lookup(_ context.Context, keys []string) (map[string]string, error) {
	if s.values.Size() == 0 && !s.client.IsConnectionOpen() {
		return nil, fmt.Errorf("%w: not connected to %s", ErrSourceUnavailable, s.cfg.Broker)
	}

	now := s.now()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok := s.values.Load(k)
		if !ok {
			continue
		}
		if s.cfg.MaxAge > 0 && now.Sub(v.at) > s.cfg.MaxAge {
			continue
		}
		out[k] = v.value
	}

	return out, nil
}

// Len returns the number of cached keys.
func (s *MQTTSource) Len() int { return s.values.Size() }

func (s *MQTTSource) topicFilter() string {
	if s.cfg.Prefix == "" {
		return "#"
	}

	return s.cfg.Prefix + "/#"
}

func (s *MQTTSource) handleMessage(_ mqtt.Client, m mqtt.Message) {
	key := m.Topic()
	if s.cfg.Prefix != "" {
		var ok bool
		key, ok = strings.CutPrefix(key, s.cfg.Prefix+"/")
		if !ok {
			return
		}
	}
	if key == "" || strings.Contains(key, "/") {
		s.logger.Debug("header: ignore telemetry topic", "topic", m.Topic())
		return
	}

	s.values.Store(key, sample{value: strings.TrimSpace(string(m.Payload())), at: s.now()})
}
