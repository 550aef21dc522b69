package observer

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"driftpursuit/netplay/internal/logging"
	"driftpursuit/netplay/internal/roster"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "netplay.observer.v1.SessionObserver"

	watchStatusMethod = "/" + ServiceName + "/WatchStatus"
	listPlayersMethod = "/" + ServiceName + "/ListPlayers"
)

// SessionObserverServer is the server API of the observer service.
type SessionObserverServer interface {
	WatchStatus(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
	ListPlayers(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes the observer service. Messages are protobuf well-known
// types so no generated code is required.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionObserverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListPlayers", Handler: listPlayersHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchStatus", Handler: watchStatusHandler, ServerStreams: true},
	},
	Metadata: "netplay/observer/v1/observer.proto",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv SessionObserverServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func listPlayersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionObserverServer).ListPlayers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listPlayersMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionObserverServer).ListPlayers(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchStatusHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SessionObserverServer).WatchStatus(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// Service serves a Feed.
type Service struct {
	feed *Feed
	log  *logging.Logger
}

// NewService wires the observer service to feed.
func NewService(feed *Feed, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.L()
	}
	return &Service{feed: feed, log: logger.With(logging.String("component", "observer"))}
}

// WatchStatus streams the current status followed by every transition.
func (s *Service) WatchStatus(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s == nil || s.feed == nil {
		return status.Error(codes.FailedPrecondition, "observer unavailable")
	}
	ctx := stream.Context()
	updates, cancel := s.feed.Subscribe(ctx)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, err := statusStruct(update)
			if err != nil {
				return status.Errorf(codes.Internal, "encode status: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// ListPlayers returns the latest published roster.
func (s *Service) ListPlayers(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.feed == nil {
		return nil, status.Error(codes.FailedPrecondition, "observer unavailable")
	}
	current, players := s.feed.Latest()
	msg, err := rosterStruct(current, players)
	if err != nil {
		s.log.Warn("encoding roster", logging.Error(err))
		return nil, status.Errorf(codes.Internal, "encode roster: %v", err)
	}
	return msg, nil
}

var _ SessionObserverServer = (*Service)(nil)

func statusStruct(u StatusUpdate) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"seq":               float64(u.Seq),
		"status":            u.Status,
		"local_id":          u.LocalID,
		"multiplayer_ready": u.MultiplayerReady,
		"host":              u.Host,
	})
}

func rosterStruct(current StatusUpdate, players []roster.View) (*structpb.Struct, error) {
	list := make([]any, len(players))
	for i, p := range players {
		list[i] = map[string]any{
			"id":           int32(p.ID),
			"name":         p.DisplayName,
			"color":        p.Color.Hex(),
			"x":            p.Position.X,
			"y":            p.Position.Y,
			"vx":           p.Velocity.X,
			"vy":           p.Velocity.Y,
			"local":        p.Local,
			"weapon":       p.Weapon,
			"rounds":       p.Rounds,
			"reloading":    p.Reloading,
			"aim":          p.Aim,
			"facing_right": p.FacingRight,
		}
	}
	return structpb.NewStruct(map[string]any{
		"status":   current.Status,
		"local_id": current.LocalID,
		"players":  list,
	})
}
