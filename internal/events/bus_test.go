package events

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestBusFanOutInOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	unsubA := bus.Subscribe(func(ev Event) { got = append(got, "a:"+string(ev.Kind())) })
	bus.Subscribe(func(ev Event) { got = append(got, "b:"+string(ev.Kind())) })

	bus.Publish(Diagnostic{Text: "x"})
	unsubA()
	unsubA() // second call is a no-op
	bus.Publish(ImageReady{})

	want := []string{"a:diagnostic", "b:diagnostic", "b:image_ready"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("delivery mismatch (-want +got):\n%s", diff)
	}
	if bus.Len() != 1 {
		t.Fatalf("Len = %d, want 1", bus.Len())
	}
}

func TestDiscardAcceptsEverything(t *testing.T) {
	Discard.Publish(VoltageAlert{})
}

func TestPayloadIsJSONSafe(t *testing.T) {
	evs := []Event{
		SpeedChanged{SystemID: 1, GroundSpeed: 3, AirSpeed: math.NaN(), Time: time.UnixMilli(42)},
		BatteryChanged{SystemID: 1, Voltage: 12.1, Current: math.Inf(1), RemainingPercent: -1},
		HeartbeatTimeout{SystemID: 2, Lost: true, Elapsed: 1500 * time.Millisecond},
		CalibrationStep{Session: "s", Step: "identify", CanNext: false, CanSkip: true},
	}
	for _, ev := range evs {
		if _, err := json.Marshal(Payload(ev)); err != nil {
			t.Errorf("%s: %v", ev.Kind(), err)
		}
	}

	p := Payload(SpeedChanged{AirSpeed: math.NaN(), Time: time.UnixMilli(42)})
	if p["air_speed"] != nil || p["time"] != int64(42) {
		t.Fatalf("unexpected payload %v", p)
	}
	if got := Payload(HeartbeatTimeout{Elapsed: 1500 * time.Millisecond})["elapsed_ms"]; got != int64(1500) {
		t.Fatalf("elapsed_ms = %v", got)
	}
}

func TestSystemOf(t *testing.T) {
	if SystemOf(StatusChanged{SystemID: 7}) != 7 {
		t.Fatal("SystemOf status")
	}
	if SystemOf(AxisMapped{}) != 0 {
		t.Fatal("SystemOf calibration event")
	}
}
