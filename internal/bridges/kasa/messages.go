package kasa

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/device"
)

// DiscoveryMessage announces a device found on the LAN.
// Topic: kasa/discovery/{id}
type DiscoveryMessage struct {
	DeviceID  string    `json:"device_id"`
	Alias     string    `json:"alias,omitempty"`
	Model     string    `json:"model,omitempty"`
	Host      string    `json:"host,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// State is the device's state at discovery time, if the agent has it.
	State map[string]any `json:"state,omitempty"`
}

// StateMessage is a device state report.
// Topic: kasa/state/{id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	// State uses command parameter names: on_off, brightness, color_temp,
	// hue, saturation.
	State map[string]any `json:"state"`
}

// Command names understood by the LAN agent.
const (
	CommandSetPowerState = "set_power_state"
	CommandSetLightState = "set_light_state"
)

// CommandMessage asks the agent to change a device.
// Topic: kasa/command/{id}
type CommandMessage struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	DeviceID   string         `json:"device_id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Source     string         `json:"source"`
}

// GetMessage asks the agent for a fresh state report.
// Topic: kasa/get/{id}
type GetMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
}

func decodeDiscovery(payload []byte) (DiscoveryMessage, error) {
	var msg DiscoveryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("%w: discovery: %w", ErrInvalidMessage, err)
	}
	return msg, nil
}

func decodeState(payload []byte) (StateMessage, error) {
	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("%w: state: %w", ErrInvalidMessage, err)
	}
	if msg.State == nil {
		return msg, fmt.Errorf("%w: state: missing state object", ErrInvalidMessage)
	}
	return msg, nil
}

// statusFromState converts a reported state object into a device.Status.
func statusFromState(state map[string]any) device.Status {
	cmd := command.FromAny(state)
	on, _ := cmd.PowerState()
	light, _ := cmd.Without(command.OnOff).Without(command.Channel).StripNaN()
	return device.Status{On: on, Light: light}
}
