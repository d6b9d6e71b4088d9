package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"renogy-dcc/internal/telemetry"
)

// Publisher mirrors bus path changes to an MQTT broker using the Venus
// layout: <prefix>/<portal>/solarcharger/<instance><path> → {"value": v}.
type Publisher struct {
	client      mqtt.Client
	log         logrus.FieldLogger
	topicPrefix string
	portalID    string
	instance    int
	retain      bool
	enabled     bool
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	PortalID    string
	Instance    int
	Retain      bool
	Enabled     bool

	// ConnectTimeout bounds the initial connect. Zero means 10s.
	ConnectTimeout time.Duration
}

type valueMessage struct {
	Value any `json:"value"`
}

// DefaultClientID returns a client id unique to this process.
func DefaultClientID() string {
	return "renogy-dcc-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

func NewPublisher(cfg PublisherConfig, log logrus.FieldLogger) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false, log: log}, nil
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.WithField("broker", cfg.Broker).Info("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	// With connect retry the token only completes once the broker answers.
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s after %s", cfg.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return &Publisher{
		client:      client,
		log:         log,
		topicPrefix: cfg.TopicPrefix,
		portalID:    cfg.PortalID,
		instance:    cfg.Instance,
		retain:      cfg.Retain,
		enabled:     true,
	}, nil
}

// Topic builds the topic of one bus path.
func Topic(prefix, portalID string, instance int, path string) string {
	return fmt.Sprintf("%s/%s/solarcharger/%d%s", prefix, portalID, instance, path)
}

// Payload encodes a path value the way Venus clients expect it.
func Payload(value any) ([]byte, error) {
	return json.Marshal(valueMessage{Value: value})
}

// OnChange publishes one path change. Failures are logged and never reach
// the poll cycle.
func (p *Publisher) OnChange(service, path string, value any) {
	if !p.enabled {
		return
	}

	payload, err := Payload(value)
	if err != nil {
		p.log.WithError(err).WithField("path", path).Error("failed to encode value")
		return
	}

	topic := Topic(p.topicPrefix, p.portalID, p.instance, path)
	token := p.client.Publish(topic, 0, p.retain, payload)
	// Non-blocking: the poll cycle must not wait on the broker.
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			p.log.WithError(token.Error()).WithField("topic", topic).Warn("failed to publish")
		}
	}()
}

type haSensor struct {
	Name        string
	ID          string
	Unit        string
	DeviceClass string
	Path        string
}

var haSensors = []haSensor{
	{"Solar Voltage", "pv0_voltage", "V", "voltage", telemetry.PathPv0Voltage},
	{"Solar Power", "pv0_power", "W", "power", telemetry.PathPv0Power},
	{"Alternator Voltage", "pv1_voltage", "V", "voltage", telemetry.PathPv1Voltage},
	{"Alternator Power", "pv1_power", "W", "power", telemetry.PathPv1Power},
	{"Battery Voltage", "battery_voltage", "V", "voltage", telemetry.PathDcVoltage},
	{"Battery Current", "battery_current", "A", "current", telemetry.PathDcCurrent},
	{"Charge Power", "yield_power", "W", "power", telemetry.PathYieldPower},
	{"Daily Yield", "yield_user", "kWh", "energy", telemetry.PathYieldUser},
	{"Total Yield", "yield_system", "kWh", "energy", telemetry.PathYieldSystem},
	{"Charge State", "state", "", "", telemetry.PathState},
	{"Connected", "connected", "", "", telemetry.PathConnected},
}

// DiscoveryConfigs builds the Home Assistant discovery messages keyed by topic.
func (p *Publisher) DiscoveryConfigs(serial string) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(haSensors))
	deviceID := fmt.Sprintf("renogy_dcc_%d", p.instance)

	for _, sensor := range haSensors {
		discoveryTopic := fmt.Sprintf("homeassistant/sensor/%s/%s/config", deviceID, sensor.ID)

		config := map[string]interface{}{
			"name":           fmt.Sprintf("Renogy DCC %s", sensor.Name),
			"unique_id":      fmt.Sprintf("%s_%s", deviceID, sensor.ID),
			"state_topic":    Topic(p.topicPrefix, p.portalID, p.instance, sensor.Path),
			"value_template": "{{ value_json.value }}",
			"device": map[string]interface{}{
				"identifiers":   []string{deviceID},
				"name":          "Renogy DC-DC Charger",
				"manufacturer":  "Renogy",
				"serial_number": serial,
			},
		}

		if sensor.Unit != "" {
			config["unit_of_measurement"] = sensor.Unit
		}
		if sensor.DeviceClass != "" {
			config["device_class"] = sensor.DeviceClass
		}

		out[discoveryTopic] = config
	}
	return out
}

func (p *Publisher) PublishHomeAssistantDiscovery(serial string) error {
	if !p.enabled {
		return nil
	}

	for topic, config := range p.DiscoveryConfigs(serial) {
		payload, err := json.Marshal(config)
		if err != nil {
			return fmt.Errorf("failed to marshal discovery config: %w", err)
		}
		token := p.client.Publish(topic, 0, true, payload)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			return fmt.Errorf("failed to publish discovery to %s: %w", topic, token.Error())
		}
	}

	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
}
