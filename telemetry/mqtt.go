// Package telemetry optionally republishes per-sweep summaries to an MQTT
// broker, grounded on the teacher's MQTTPublisher (mqtt_publisher.go):
// same connect-options shape (auto-reconnect, optional TLS, a generated
// client ID), trimmed down to the one topic this module's domain needs.
package telemetry

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/AkelaInc/avmu/internal/avmulog"
)

// TLSConfig mirrors the teacher's MQTTTLSConfig.
type TLSConfig struct {
	Enabled    bool
	CACert     string
	ClientCert string
	ClientKey  string
}

// Config is the publisher's connection and topic configuration.
type Config struct {
	Broker   string
	Username string
	Password string
	TLS      TLSConfig

	// Topic is formatted with the task ID: fmt.Sprintf(Topic, taskID).
	Topic string
}

// SweepSummary is what gets published per completed sweep: enough to
// monitor a deployment without shipping raw I/Q samples over MQTT.
type SweepSummary struct {
	TaskID      string    `json:"task_id"`
	Path        string    `json:"path"`
	SweepNumber uint32    `json:"sweep_number"`
	NumPoints   int       `json:"num_points"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher publishes SweepSummary messages to one MQTT broker.
type Publisher struct {
	client mqtt.Client
	config *Config
	log    *avmulog.Logger
}

func generateClientID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "avmu_" + hex.EncodeToString(b)
}

func loadTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	out := &tls.Config{}
	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("telemetry: failed to read ca certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("telemetry: failed to parse ca certificate")
		}
		out.RootCAs = pool
	}
	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("telemetry: failed to load client certificate: %w", err)
		}
		out.Certificates = []tls.Certificate{cert}
	}
	return out, nil
}

// New connects a Publisher to cfg.Broker.
func New(cfg *Config) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	log := avmulog.New("telemetry")

	if cfg.TLS.Enabled {
		tlsConfig, err := loadTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Println("connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("telemetry: failed to connect to %s: %w", cfg.Broker, token.Error())
	}

	return &Publisher{client: client, config: cfg, log: log}, nil
}

// Publish sends one SweepSummary as a retained-false JSON message at QoS 0.
func (p *Publisher) Publish(s SweepSummary) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("telemetry: marshal sweep summary: %w", err)
	}
	topic := fmt.Sprintf(p.config.Topic, s.TaskID)
	token := p.client.Publish(topic, 0, false, body)
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
