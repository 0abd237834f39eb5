package vehicle

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/yegors/co-gcs/internal/events"
)

func (d *Dispatcher) handleStatusText(componentID uint8, m *common.MessageStatustext, now time.Time) {
	severity := events.Severity(m.Severity)
	text := strings.TrimRight(m.Text, "\x00")

	d.state.StatusTexts = append(d.state.StatusTexts, StatusText{
		Severity:    uint8(severity),
		ComponentID: componentID,
		Text:        text,
		Time:        now,
	})
	if n := len(d.state.StatusTexts); n > maxStatusTexts {
		d.state.StatusTexts = d.state.StatusTexts[n-maxStatusTexts:]
	}

	d.diagnostic(severity, text)

	// '#' marks a message the autopilot wants spoken
	if strings.HasPrefix(text, "#") || severity <= events.SeverityNotice {
		d.announcer.Say(strings.TrimPrefix(text, "#"), severity)
	}
}

func (d *Dispatcher) handleCommandAck(m *common.MessageCommandAck) {
	command := uint16(m.Command)
	result := common.MAV_RESULT(m.Result)

	var (
		severity events.Severity
		text     string
	)
	switch result {
	case common.MAV_RESULT_ACCEPTED:
		severity, text = events.SeverityInfo, fmt.Sprintf("SUCCESS: Executed CMD: %d", command)
	case common.MAV_RESULT_TEMPORARILY_REJECTED:
		severity, text = events.SeverityWarning, fmt.Sprintf("FAILURE: Temporarily rejected CMD: %d", command)
	case common.MAV_RESULT_DENIED:
		severity, text = events.SeverityError, fmt.Sprintf("FAILURE: Denied CMD: %d", command)
	case common.MAV_RESULT_UNSUPPORTED:
		severity, text = events.SeverityWarning, fmt.Sprintf("FAILURE: Unsupported CMD: %d", command)
	case common.MAV_RESULT_FAILED:
		severity, text = events.SeverityError, fmt.Sprintf("FAILURE: Failed CMD: %d", command)
	case common.MAV_RESULT_IN_PROGRESS:
		severity, text = events.SeverityInfo, fmt.Sprintf("IN PROGRESS: CMD: %d", command)
	default:
		severity, text = events.SeverityWarning, fmt.Sprintf("UNKNOWN RESULT %d for CMD: %d", uint8(result), command)
	}

	d.publisher.Publish(events.CommandAck{
		SystemID: d.systemID,
		Command:  command,
		Result:   uint8(result),
		Accepted: result == common.MAV_RESULT_ACCEPTED,
	})
	d.diagnostic(severity, text)
}

func (d *Dispatcher) handleNavController(m *common.MessageNavControllerOutput) {
	d.state.WaypointDistance = float64(m.WpDist)
	d.state.WaypointBearing = float64(m.NavBearing)
	d.publisher.Publish(events.NavigationChanged{
		SystemID:      d.systemID,
		NavRoll:       float64(m.NavRoll),
		NavPitch:      float64(m.NavPitch),
		NavBearing:    float64(m.NavBearing),
		TargetBearing: float64(m.TargetBearing),
		WaypointDist:  float64(m.WpDist),
		AltError:      float64(m.AltError),
		AirspeedError: float64(m.AspdError),
		XTrackError:   float64(m.XtrackError),
	})
}

func (d *Dispatcher) handleRCChannels(m *common.MessageRcChannels) {
	raw := [18]uint16{
		m.Chan1Raw, m.Chan2Raw, m.Chan3Raw, m.Chan4Raw, m.Chan5Raw, m.Chan6Raw,
		m.Chan7Raw, m.Chan8Raw, m.Chan9Raw, m.Chan10Raw, m.Chan11Raw, m.Chan12Raw,
		m.Chan13Raw, m.Chan14Raw, m.Chan15Raw, m.Chan16Raw, m.Chan17Raw, m.Chan18Raw,
	}
	count := min(int(m.Chancount), len(raw))

	values := make([]int, count)
	for i := 0; i < count; i++ {
		if raw[i] == math.MaxUint16 {
			values[i] = -1
			continue
		}
		values[i] = int(raw[i])
	}

	d.state.RCChannels = values
	d.state.RSSI = m.Rssi
	d.publisher.Publish(events.RCChannels{SystemID: d.systemID, Values: append([]int(nil), values...), RSSI: m.Rssi})
}
