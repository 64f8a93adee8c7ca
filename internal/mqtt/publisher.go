// Package mqtt streams measurement records to a broker so a long-running
// acquisition can be watched live without touching the result file.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/stabnet/muxsweep/internal/sweep"
)

const connectTimeout = 5 * time.Second

// Config holds publisher configuration.
type Config struct {
	BrokerURL string
	ClientID  string
	Topic     string
}

// measurementMessage is the wire shape of one published record.
type measurementMessage struct {
	Timestamp string  `json:"timestamp"`
	Test      string  `json:"test"`
	Card      string  `json:"card"`
	Channel   int     `json:"channel"`
	Sample    int     `json:"sample"`
	Value     float64 `json:"value"`
	Function  string  `json:"function,omitempty"`
}

// Publisher forwards records to an MQTT topic. It implements sweep.Sink;
// publish failures are reported, not retried, so a flaky broker cannot
// stall an acquisition holding relays closed.
type Publisher struct {
	client mqtt.Client
	topic  string
}

// NewPublisher connects to the broker. Unlike a result file the stream is
// an observability aid, so the connection is made once and failures after
// that surface per publish.
func NewPublisher(config Config) (*Publisher, error) {
	parsedURL, err := url.Parse(config.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT broker URL: %w", err)
	}
	if parsedURL.Scheme != "mqtt" && parsedURL.Scheme != "tcp" {
		return nil, fmt.Errorf("MQTT broker URL must use mqtt:// or tcp:// scheme")
	}

	clientID := config.ClientID
	if clientID == "" {
		clientID = "muxsweep"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{client: client, topic: config.Topic}, nil
}

// Append publishes one record to <topic>/<card>/<channel>.
func (p *Publisher) Append(r sweep.Record) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	msg := measurementMessage{
		Timestamp: r.Timestamp.Format(time.RFC3339),
		Test:      r.Label,
		Card:      r.Card,
		Channel:   r.Channel,
		Sample:    r.Sample,
		Value:     r.Value,
		Function:  r.Function,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal measurement: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/%d", p.topic, r.Card, r.Channel)
	if token := p.client.Publish(topic, 0, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish measurement: %w", token.Error())
	}
	return nil
}

// Disconnect closes the broker connection.
func (p *Publisher) Disconnect(quiesce uint) {
	if p.client.IsConnected() {
		p.client.Disconnect(quiesce)
	}
}
