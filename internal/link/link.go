package link

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"go.bug.st/serial"

	"github.com/yegors/co-gcs/internal/config"
	"github.com/yegors/co-gcs/pkg/logger"
)

// FrameHandler receives every decoded inbound message
type FrameHandler interface {
	HandleFrame(systemID, componentID uint8, msg message.Message)
}

// SerialOpener opens a serial device. Tests replace it.
type SerialOpener func(device string, baud int) (io.ReadWriteCloser, error)

// OpenSerial opens a device with go.bug.st/serial
func OpenSerial(device string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}
	return port, nil
}

// Stats counts link traffic since start
type Stats struct {
	Frames      uint64 `json:"frames"`
	ParseErrors uint64 `json:"parse_errors"`
	Sent        uint64 `json:"sent"`
	SendErrors  uint64 `json:"send_errors"`
	Channels    int64  `json:"channels"`
}

// Link is the MAVLink transport shared by every vehicle
type Link struct {
	node    *gomavlib.Node
	handler FrameHandler
	logger  *logger.Logger

	frames      atomic.Uint64
	parseErrors atomic.Uint64
	sent        atomic.Uint64
	sendErrors  atomic.Uint64
	channels    atomic.Int64
}

// New builds a node over the configured endpoints
func New(cfg config.LinkConfig, handler FrameHandler, open SerialOpener, log *logger.Logger) (*Link, error) {
	if open == nil {
		open = OpenSerial
	}
	l := &Link{
		handler: handler,
		logger:  log.Named("link"),
	}

	var opened []io.Closer
	closeOpened := func() {
		for _, c := range opened {
			c.Close()
		}
	}

	endpoints := make([]gomavlib.EndpointConf, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		conf, closer, err := EndpointConf(ep, open)
		if err != nil {
			closeOpened()
			return nil, err
		}
		if closer != nil {
			opened = append(opened, closer)
		}
		endpoints = append(endpoints, conf)
		l.logger.Info("Link endpoint",
			logger.String("type", ep.Type),
			logger.String("address", ep.Address))
	}

	version := gomavlib.V2
	if cfg.OutVersion == "v1" {
		version = gomavlib.V1
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:      endpoints,
		Dialect:        common.Dialect,
		OutVersion:     version,
		OutSystemID:    byte(cfg.SystemID),
		OutComponentID: byte(cfg.ComponentID),
	})
	if err != nil {
		closeOpened()
		return nil, fmt.Errorf("failed to create MAVLink node: %w", err)
	}
	l.node = node
	return l, nil
}

// EndpointConf maps a configured endpoint to a gomavlib endpoint. The
// returned closer is set when a device was opened here.
func EndpointConf(ep config.EndpointConfig, open SerialOpener) (gomavlib.EndpointConf, io.Closer, error) {
	switch ep.Type {
	case config.EndpointUDPServer:
		return gomavlib.EndpointUDPServer{Address: ep.Address}, nil, nil
	case config.EndpointUDPClient:
		return gomavlib.EndpointUDPClient{Address: ep.Address}, nil, nil
	case config.EndpointUDPBroadcast:
		return gomavlib.EndpointUDPBroadcast{BroadcastAddress: ep.Address}, nil, nil
	case config.EndpointTCPServer:
		return gomavlib.EndpointTCPServer{Address: ep.Address}, nil, nil
	case config.EndpointTCPClient:
		return gomavlib.EndpointTCPClient{Address: ep.Address}, nil, nil
	case config.EndpointSerial:
		port, err := open(ep.Address, ep.Baud)
		if err != nil {
			return nil, nil, err
		}
		return gomavlib.EndpointCustom{ReadWriteCloser: port}, port, nil
	default:
		return nil, nil, fmt.Errorf("unsupported endpoint type: %q", ep.Type)
	}
}

// Run forwards inbound frames to the handler until ctx is done or the
// node is closed
func (l *Link) Run(ctx context.Context) error {
	l.logger.Info("Starting MAVLink link")
	events := l.node.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				l.logger.Info("MAVLink node closed")
				return nil
			}
			l.dispatch(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Link) dispatch(ev gomavlib.Event) {
	switch e := ev.(type) {
	case *gomavlib.EventFrame:
		l.frames.Add(1)
		if l.handler != nil {
			l.handler.HandleFrame(e.SystemID(), e.ComponentID(), e.Message())
		}
	case *gomavlib.EventParseError:
		// a corrupt frame is a protocol anomaly, never fatal
		n := l.parseErrors.Add(1)
		l.logger.Debug("Dropped unparseable frame",
			logger.Error(e.Error),
			logger.Int64("parse_errors", int64(n)))
	case *gomavlib.EventChannelOpen:
		l.channels.Add(1)
		l.logger.Info("Link channel opened")
	case *gomavlib.EventChannelClose:
		l.channels.Add(-1)
		l.logger.Info("Link channel closed")
	}
}

// Send writes a message to every channel
func (l *Link) Send(msg message.Message) error {
	if err := l.node.WriteMessageAll(msg); err != nil {
		l.sendErrors.Add(1)
		return fmt.Errorf("failed to write message: %w", err)
	}
	l.sent.Add(1)
	return nil
}

func (l *Link) Stats() Stats {
	return Stats{
		Frames:      l.frames.Load(),
		ParseErrors: l.parseErrors.Load(),
		Sent:        l.sent.Load(),
		SendErrors:  l.sendErrors.Load(),
		Channels:    l.channels.Load(),
	}
}

// Close shuts the node down, which also closes opened serial ports
func (l *Link) Close() {
	l.logger.Info("Closing MAVLink link")
	l.node.Close()
}
