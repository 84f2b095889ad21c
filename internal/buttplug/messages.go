// SPDX-License-Identifier: MIT
package buttplug

import (
	"encoding/json"
	"fmt"
)

// MessageVersion is the protocol spec version announced during the handshake.
const MessageVersion = 3

// Message type names used on the wire.
const (
	typeRequestServerInfo = "RequestServerInfo"
	typeServerInfo        = "ServerInfo"
	typeOk                = "Ok"
	typeError             = "Error"
	typePing              = "Ping"
	typeStartScanning     = "StartScanning"
	typeStopScanning      = "StopScanning"
	typeScanningFinished  = "ScanningFinished"
	typeRequestDeviceList = "RequestDeviceList"
	typeDeviceList        = "DeviceList"
	typeDeviceAdded       = "DeviceAdded"
	typeDeviceRemoved     = "DeviceRemoved"
	typeScalarCmd         = "ScalarCmd"
	typeVibrateCmd        = "VibrateCmd"
	typeStopDeviceCmd     = "StopDeviceCmd"
)

// Message is one decoded entry of a server frame. Frames are JSON arrays of
// single-key objects: [{"Ok":{"Id":1}}, ...].
type Message struct {
	Type    string
	ID      uint32
	Payload json.RawMessage
}

type identified interface {
	setID(id uint32)
}

type header struct {
	ID uint32 `json:"Id"`
}

func (h *header) setID(id uint32) { h.ID = id }

type requestServerInfo struct {
	header
	ClientName     string
	MessageVersion uint32
}

type serverInfo struct {
	header
	ServerName     string
	MessageVersion uint32
	MaxPingTime    uint32
}

type errorMessage struct {
	header
	ErrorMessage string
	ErrorCode    int
}

type bare struct {
	header
}

type deviceInfo struct {
	DeviceName     string
	DeviceIndex    uint32
	DeviceMessages map[string]json.RawMessage
}

type deviceList struct {
	header
	Devices []deviceInfo
}

type deviceAdded struct {
	header
	deviceInfo
}

type deviceRemoved struct {
	header
	DeviceIndex uint32
}

type scalarAttributes struct {
	FeatureDescriptor string
	StepCount         uint32
	ActuatorType      string
}

type vibrateAttributes struct {
	FeatureCount uint32
}

type scalarSubcommand struct {
	Index        uint32
	Scalar       float64
	ActuatorType string
}

type scalarCmd struct {
	header
	DeviceIndex uint32
	Scalars     []scalarSubcommand
}

type speedSubcommand struct {
	Index uint32
	Speed float64
}

type vibrateCmd struct {
	header
	DeviceIndex uint32
	Speeds      []speedSubcommand
}

type deviceCommand struct {
	header
	DeviceIndex uint32
}

func encodeMessage(msgType string, payload any) ([]byte, error) {
	return json.Marshal([]map[string]any{{msgType: payload}})
}

func decodeFrame(data []byte) ([]Message, error) {
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	msgs := make([]Message, 0, len(entries))
	for _, entry := range entries {
		for msgType, payload := range entry {
			var h header
			if err := json.Unmarshal(payload, &h); err != nil {
				return nil, fmt.Errorf("malformed %s message: %w", msgType, err)
			}
			msgs = append(msgs, Message{Type: msgType, ID: h.ID, Payload: payload})
		}
	}
	return msgs, nil
}

func (m Message) decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("malformed %s message: %w", m.Type, err)
	}
	return nil
}
