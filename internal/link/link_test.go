package link

import (
	"errors"
	"io"
	"testing"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/yegors/co-gcs/internal/config"
	"github.com/yegors/co-gcs/pkg/logger"
)

type fakePort struct {
	device string
	baud   int
	closed bool
}

func (p *fakePort) Read([]byte) (int, error)    { return 0, io.EOF }
func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *fakePort) Close() error                { p.closed = true; return nil }

func TestEndpointConf(t *testing.T) {
	var port *fakePort
	open := func(device string, baud int) (io.ReadWriteCloser, error) {
		port = &fakePort{device: device, baud: baud}
		return port, nil
	}

	tests := []struct {
		ep   config.EndpointConfig
		want gomavlib.EndpointConf
	}{
		{config.EndpointConfig{Type: config.EndpointUDPServer, Address: ":14550"}, gomavlib.EndpointUDPServer{Address: ":14550"}},
		{config.EndpointConfig{Type: config.EndpointUDPClient, Address: "10.0.0.2:14550"}, gomavlib.EndpointUDPClient{Address: "10.0.0.2:14550"}},
		{config.EndpointConfig{Type: config.EndpointUDPBroadcast, Address: "192.168.1.255:14550"}, gomavlib.EndpointUDPBroadcast{BroadcastAddress: "192.168.1.255:14550"}},
		{config.EndpointConfig{Type: config.EndpointTCPServer, Address: ":5760"}, gomavlib.EndpointTCPServer{Address: ":5760"}},
		{config.EndpointConfig{Type: config.EndpointTCPClient, Address: "127.0.0.1:5760"}, gomavlib.EndpointTCPClient{Address: "127.0.0.1:5760"}},
	}
	for _, tt := range tests {
		got, closer, err := EndpointConf(tt.ep, open)
		if err != nil {
			t.Fatalf("%s: %v", tt.ep.Type, err)
		}
		if got != tt.want || closer != nil {
			t.Errorf("%s: got %#v", tt.ep.Type, got)
		}
	}

	got, closer, err := EndpointConf(config.EndpointConfig{Type: config.EndpointSerial, Address: "/dev/ttyUSB0", Baud: 921600}, open)
	if err != nil {
		t.Fatal(err)
	}
	custom, ok := got.(gomavlib.EndpointCustom)
	if !ok || custom.ReadWriteCloser != io.ReadWriteCloser(port) || closer == nil {
		t.Fatalf("serial endpoint = %#v", got)
	}
	if port.device != "/dev/ttyUSB0" || port.baud != 921600 {
		t.Fatalf("opened %s at %d", port.device, port.baud)
	}
}

func TestEndpointConfErrors(t *testing.T) {
	failing := func(string, int) (io.ReadWriteCloser, error) { return nil, errors.New("no such device") }
	if _, _, err := EndpointConf(config.EndpointConfig{Type: config.EndpointSerial, Address: "/dev/none"}, failing); err == nil {
		t.Error("serial open error swallowed")
	}
	if _, _, err := EndpointConf(config.EndpointConfig{Type: "smoke-signal"}, failing); err == nil {
		t.Error("unknown type accepted")
	}
}

type handlerFunc func(systemID, componentID uint8, msg message.Message)

func (f handlerFunc) HandleFrame(systemID, componentID uint8, msg message.Message) {
	f(systemID, componentID, msg)
}

func TestDispatchForwardsFrames(t *testing.T) {
	var gotSys, gotComp uint8
	var gotMsg message.Message
	l := &Link{
		logger: logger.NewNop(),
		handler: handlerFunc(func(sys, comp uint8, msg message.Message) {
			gotSys, gotComp, gotMsg = sys, comp, msg
		}),
	}

	hb := &common.MessageHeartbeat{Type: common.MAV_TYPE_QUADROTOR}
	l.dispatch(&gomavlib.EventFrame{Frame: &frame.V2Frame{SystemID: 7, ComponentID: 1, Message: hb}})
	l.dispatch(&gomavlib.EventParseError{Error: errors.New("bad checksum")})
	l.dispatch(&gomavlib.EventChannelOpen{})

	if gotSys != 7 || gotComp != 1 || gotMsg != message.Message(hb) {
		t.Fatalf("forwarded %d/%d %T", gotSys, gotComp, gotMsg)
	}
	stats := l.Stats()
	if stats.Frames != 1 || stats.ParseErrors != 1 || stats.Channels != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
