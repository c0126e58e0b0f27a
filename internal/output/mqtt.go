// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/semonitor/pkg/sedata"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTOptions configures the MQTT sink
type MQTTOptions struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
}

// MQTTSink publishes device records to retained per-device topics
// (<topic>/<class>/<id>) and every other record to <topic>/<kind>.
type MQTTSink struct {
	topic   string
	publish func(topic string, retained bool, payload []byte) error
	close   func()
}

// NewMQTTSink connects to the broker
func NewMQTTSink(opts MQTTOptions) (*MQTTSink, error) {
	if opts.ClientID == "" {
		opts.ClientID = "semonitor-" + uuid.NewString()[:8]
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(opts.Timeout)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	client := mqtt.NewClient(co)
	if token := client.Connect(); !token.WaitTimeout(opts.Timeout) {
		return nil, fmt.Errorf("connection to MQTT broker %s timed out", opts.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connection to MQTT broker %s failed: %w", opts.Broker, err)
	}

	publish := func(topic string, retained bool, payload []byte) error {
		token := client.Publish(topic, opts.QoS, retained, payload)
		if !token.WaitTimeout(opts.Timeout) {
			return fmt.Errorf("publish to %s timed out", topic)
		}
		return token.Error()
	}
	return newMQTTSink(opts.Topic, publish, func() { client.Disconnect(250) }), nil
}

func newMQTTSink(topic string, publish func(string, bool, []byte) error, closeFn func()) *MQTTSink {
	return &MQTTSink{
		topic:   strings.TrimSuffix(topic, "/"),
		publish: publish,
		close:   closeFn,
	}
}

func (s *MQTTSink) Write(_ context.Context, rec *Record) error {
	if dd, ok := rec.Data.(*sedata.DeviceData); ok {
		var errs []error
		for _, r := range dd.Records() {
			payload, err := json.Marshal(r)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			topic := fmt.Sprintf("%s/%s/%s", s.topic, r.Class, r.ID)
			if err := s.publish(topic, true, payload); err != nil {
				errs = append(errs, fmt.Errorf("mqtt sink: %w", err))
			}
		}
		return errors.Join(errs...)
	}

	kind := rec.Kind
	if kind == "" {
		kind = "message"
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("mqtt sink: %w", err)
	}
	if err := s.publish(s.topic+"/"+kind, false, payload); err != nil {
		return fmt.Errorf("mqtt sink: %w", err)
	}
	return nil
}

func (s *MQTTSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
