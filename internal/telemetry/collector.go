package telemetry

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/placement-engine/internal/logging"
	"github.com/danielpatrickdp/placement-engine/internal/storage"
)

// #region service-desc
// TrackServer is the server side of the Track RPC.
type TrackServer interface {
	Track(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TrackServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Track", Handler: trackHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "placement/telemetry/v1/telemetry.proto",
}

func trackHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TrackServer).Track(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TrackMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TrackServer).Track(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv TrackServer) {
	s.RegisterService(&serviceDesc, srv)
}

// #endregion service-desc

// #region collector
// EventStore persists received events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev storage.Event) error
}

// Collector receives events and stores them.
type Collector struct {
	store    EventStore
	log      *logging.Logger
	received atomic.Int64
}

// NewCollector creates a collector backed by store.
func NewCollector(store EventStore, log *logging.Logger) *Collector {
	if log == nil {
		log = logging.Nop()
	}
	return &Collector{store: store, log: log.With("component", "collector")}
}

// Track implements TrackServer.
func (c *Collector) Track(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	ev, err := Decode(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rec := storage.Event{
		Kind:        ev.Kind,
		PayloadJSON: string(payload),
		SentAt:      ev.SentAt,
		ReceivedAt:  time.Now().UTC(),
	}
	if err := c.store.AppendEvent(ctx, rec); err != nil {
		c.log.Error("store event failed", "kind", ev.Kind, "error", err)
		return nil, status.Error(codes.Internal, "store event")
	}
	c.received.Add(1)
	c.log.Debug("event received", "kind", ev.Kind)
	return &emptypb.Empty{}, nil
}

// Received returns how many events were stored.
func (c *Collector) Received() int64 { return c.received.Load() }

// #endregion collector
