// Package mqtt exposes the hub's number entities over MQTT with Home
// Assistant discovery.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"integrationhub/internal/config"
	"integrationhub/internal/entity"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Payloads of the availability topics
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// unknownValue is the state payload of a number without a value
const unknownValue = "None"

// Client is the part of the paho client the bridge uses
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Bridge publishes discovery config and state for every loaded number and
// forwards set commands to the number platform
type Bridge struct {
	client          Client
	numbers         *entity.NumberPlatform
	discoveryPrefix string
	topicPrefix     string
	logger          *zap.Logger

	mu          sync.Mutex
	discovered  map[string]struct{}
	unsubscribe func()
}

// NewBridge creates a bridge over an already configured client
func NewBridge(client Client, numbers *entity.NumberPlatform, cfg config.MQTTConfig, logger *zap.Logger) *Bridge {
	discovery := cfg.DiscoveryPrefix
	if discovery == "" {
		discovery = config.DefaultDiscoveryPrefix
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = config.DefaultTopicPrefix
	}
	return &Bridge{
		client:          client,
		numbers:         numbers,
		discoveryPrefix: discovery,
		topicPrefix:     prefix,
		logger:          logger.Named("mqtt"),
		discovered:      make(map[string]struct{}),
	}
}

// Dial connects to the broker in cfg and returns a started bridge. The
// broker holds an offline last will on the status topic; every (re)connect
// republishes discovery and state.
func Dial(cfg config.MQTTConfig, numbers *entity.NumberPlatform, logger *zap.Logger) (*Bridge, paho.Client, error) {
	b := NewBridge(nil, numbers, cfg, logger)

	opts := paho.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(30*time.Second).
		SetAutoReconnect(true).
		SetResumeSubs(true).
		SetOrderMatters(false).
		SetWill(b.statusTopic(), PayloadOffline, 0, true)

	opts.OnConnect = func(c paho.Client) {
		b.logger.Info("MQTT connected", zap.String("broker", cfg.URL))
		b.mu.Lock()
		b.client = c
		b.discovered = make(map[string]struct{})
		b.mu.Unlock()
		if err := b.Sync(); err != nil {
			b.logger.Error("Failed to sync MQTT state", zap.Error(err))
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		b.logger.Warn("MQTT connection lost", zap.Error(err))
	}

	c := paho.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.URL, token.Error())
	}
	b.Start()
	return b, c, nil
}

// Start follows the number platform's state updates
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsubscribe != nil {
		return
	}
	b.unsubscribe = b.numbers.Subscribe(b.handleState)
}

// Stop publishes offline and stops following state updates
func (b *Bridge) Stop() {
	b.mu.Lock()
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	client := b.client
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if client != nil {
		client.Publish(b.statusTopic(), 0, true, PayloadOffline).Wait()
	}
}

// Sync subscribes to set commands and publishes discovery and state for
// every loaded number, then marks the hub online
func (b *Bridge) Sync() error {
	client := b.currentClient()
	if client == nil {
		return fmt.Errorf("MQTT client not connected")
	}

	token := client.Subscribe(b.topicPrefix+"/+/set", 0, b.handleCommand)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to set topics: %w", token.Error())
	}

	states := b.numbers.States()
	for _, st := range states {
		b.handleState(st)
	}

	client.Publish(b.statusTopic(), 0, true, PayloadOnline).Wait()
	b.logger.Info("MQTT state synced", zap.Int("entities", len(states)))
	return nil
}

func (b *Bridge) currentClient() Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

func (b *Bridge) handleState(st entity.State) {
	client := b.currentClient()
	if client == nil {
		return
	}

	if st.Removed {
		b.mu.Lock()
		delete(b.discovered, st.EntityID)
		b.mu.Unlock()
		if st.Deleted {
			b.clearRetained(client, st.EntityID)
			return
		}
		client.Publish(b.availabilityTopic(st.EntityID), 0, true, PayloadOffline)
		return
	}

	b.mu.Lock()
	_, known := b.discovered[st.EntityID]
	b.discovered[st.EntityID] = struct{}{}
	b.mu.Unlock()

	if !known {
		payload, err := json.Marshal(b.autoconfigFor(st))
		if err != nil {
			b.logger.Error("Failed to encode discovery config", zap.String("entity_id", st.EntityID), zap.Error(err))
			return
		}
		client.Publish(b.discoveryTopic(st.EntityID), 0, true, payload)
	}

	availability := PayloadOffline
	if st.Available {
		availability = PayloadOnline
	}
	client.Publish(b.availabilityTopic(st.EntityID), 0, true, availability)
	client.Publish(b.stateTopic(st.EntityID), 0, true, formatValue(st.Value))
}

// clearRetained empties the retained discovery config so Home Assistant drops
// the entity, along with its retained state and availability.
func (b *Bridge) clearRetained(client Client, entityID string) {
	b.logger.Info("Removing deleted entity from MQTT discovery", zap.String("entity_id", entityID))
	client.Publish(b.discoveryTopic(entityID), 0, true, "")
	client.Publish(b.availabilityTopic(entityID), 0, true, "")
	client.Publish(b.stateTopic(entityID), 0, true, "")
}

func (b *Bridge) handleCommand(_ paho.Client, m paho.Message) {
	defer m.Ack()

	entityID, ok := b.entityIDFromCommandTopic(m.Topic())
	if !ok {
		return
	}
	payload := strings.TrimSpace(string(m.Payload()))
	value, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		b.logger.Warn("Invalid number payload",
			zap.String("entity_id", entityID),
			zap.String("payload", payload))
		return
	}

	b.logger.Debug("MQTT set command", zap.String("entity_id", entityID), zap.Float64("value", value))
	if err := b.numbers.SetValue(context.Background(), entityID, value); err != nil {
		b.logger.Error("Failed to set number from MQTT",
			zap.String("entity_id", entityID),
			zap.Float64("value", value),
			zap.Error(err))
	}
}

func (b *Bridge) nodeID() string {
	return entity.Slugify(b.topicPrefix)
}

func (b *Bridge) statusTopic() string {
	return b.topicPrefix + "/status"
}

func (b *Bridge) stateTopic(entityID string) string {
	return b.topicPrefix + "/" + entityID + "/state"
}

func (b *Bridge) availabilityTopic(entityID string) string {
	return b.topicPrefix + "/" + entityID + "/availability"
}

func (b *Bridge) commandTopic(entityID string) string {
	return b.topicPrefix + "/" + entityID + "/set"
}

// discoveryTopic is <discovery>/number/<node>/<object id>/config
func (b *Bridge) discoveryTopic(entityID string) string {
	objectID := strings.TrimPrefix(entityID, entity.NumberDomain+".")
	return b.discoveryPrefix + "/" + entity.NumberDomain + "/" + b.nodeID() + "/" + objectID + "/config"
}

func (b *Bridge) entityIDFromCommandTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.topicPrefix+"/")
	if !ok {
		return "", false
	}
	entityID, ok := strings.CutSuffix(rest, "/set")
	if !ok || entityID == "" || strings.Contains(entityID, "/") {
		return "", false
	}
	return entityID, true
}

func formatValue(v *float64) string {
	if v == nil {
		return unknownValue
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
