package observer

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// SharedSecretMetadataKey carries the observer shared secret on every call.
const SharedSecretMetadataKey = "x-netplay-observer-secret"

// Client calls a remote observer service.
type Client struct {
	cc     grpc.ClientConnInterface
	secret string
}

// NewClient wraps cc. A non-empty secret is attached to every call.
func NewClient(cc grpc.ClientConnInterface, secret string) *Client {
	return &Client{cc: cc, secret: secret}
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.secret == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, SharedSecretMetadataKey, c.secret)
}

// ListPlayers fetches the latest roster.
func (c *Client) ListPlayers(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(c.outgoing(ctx), listPlayersMethod, new(emptypb.Empty), out, grpc.UseCompressor(gzip.Name)); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchStatus opens the status stream.
func (c *Client) WatchStatus(ctx context.Context) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(c.outgoing(ctx), &ServiceDesc.Streams[0], watchStatusMethod, grpc.UseCompressor(gzip.Name))
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(new(emptypb.Empty)); err != nil {
		return nil, fmt.Errorf("open watch: %w", err)
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, fmt.Errorf("close watch send: %w", err)
	}
	return x, nil
}

// DecodeStatus converts a streamed message back into a StatusUpdate.
func DecodeStatus(msg *structpb.Struct) StatusUpdate {
	fields := msg.GetFields()
	return StatusUpdate{
		Seq:              uint64(fields["seq"].GetNumberValue()),
		Status:           fields["status"].GetStringValue(),
		LocalID:          int32(fields["local_id"].GetNumberValue()),
		MultiplayerReady: fields["multiplayer_ready"].GetBoolValue(),
		Host:             fields["host"].GetBoolValue(),
	}
}
