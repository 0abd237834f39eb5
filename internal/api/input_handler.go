package api

import (
	"fmt"

	"github.com/yegors/co-gcs/internal/websocket"
)

// WebSocket message types sent by a browser gamepad
const (
	MessageTypeInputAxisCount = "input_axis_count"
	MessageTypeInputAxisValue = "input_axis_value"
	MessageTypeInputButton    = "input_button"
)

// InputMessageHandler feeds gamepad messages into the active input calibration
type InputMessageHandler struct {
	inputs *InputCalibration
}

func NewInputMessageHandler(inputs *InputCalibration) *InputMessageHandler {
	return &InputMessageHandler{inputs: inputs}
}

// HandleMessage implements websocket.MessageHandler
func (h *InputMessageHandler) HandleMessage(_ *websocket.Client, messageType string, data map[string]any) error {
	session, _ := data["session"].(string)

	switch messageType {
	case MessageTypeInputAxisCount:
		count, err := intField(data, "count")
		if err != nil {
			return err
		}
		return h.inputs.AxisCount(session, count)

	case MessageTypeInputAxisValue:
		samples, err := samplesFrom(data)
		if err != nil {
			return err
		}
		return h.inputs.AxisValues(session, samples)

	case MessageTypeInputButton:
		button, _ := data["button"].(string)
		return h.inputs.Button(session, button)

	default:
		return fmt.Errorf("unsupported message type: %s", messageType)
	}
}

// samplesFrom accepts either {axis, value} or {values: [v0, v1, ...]}
func samplesFrom(data map[string]any) ([]AxisSample, error) {
	if raw, ok := data["values"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("values must be a list")
		}
		samples := make([]AxisSample, 0, len(list))
		for i, v := range list {
			n, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("values[%d] is not a number", i)
			}
			samples = append(samples, AxisSample{Axis: i, Value: int(n)})
		}
		return samples, nil
	}

	axis, err := intField(data, "axis")
	if err != nil {
		return nil, err
	}
	value, err := intField(data, "value")
	if err != nil {
		return nil, err
	}
	return []AxisSample{{Axis: axis, Value: value}}, nil
}

func intField(data map[string]any, key string) (int, error) {
	n, ok := data[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return int(n), nil
}
