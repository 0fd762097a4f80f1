package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region methods

// Method names of the remote inference service. Requests and replies are
// google.protobuf.Struct documents:
//
//	request: {"messages": [{"role", "content"}...], "temperature": n, "max_tokens": n}
//	reply:   {"text": "..."}  (one per stream message for Stream)
const (
	completeMethod = "/companion.inference.v1.Inference/Complete"
	streamMethod   = "/companion.inference.v1.Inference/Stream"
)

var streamDesc = &grpc.StreamDesc{StreamName: "Stream", ServerStreams: true}

// #endregion methods

// #region client-struct

// GRPCClient calls a local or remote inference server over gRPC.
type GRPCClient struct {
	conn   grpc.ClientConnInterface
	closer io.Closer
}

// #endregion client-struct

// #region constructor

// NewGRPCClient connects to the inference server at addr.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, closer: conn}, nil
}

// NewGRPCClientWithConn wraps an existing connection. Used for testing without a server.
func NewGRPCClientWithConn(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

// Close shuts down the gRPC connection.
func (c *GRPCClient) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// #endregion constructor

// #region complete

func buildRequest(messages []Message, opts Options) (*structpb.Struct, error) {
	msgs := make([]interface{}, len(messages))
	for i, m := range messages {
		msgs[i] = map[string]interface{}{"role": m.Role, "content": m.Content}
	}
	fields := map[string]interface{}{
		"messages":    msgs,
		"temperature": float64(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		fields["max_tokens"] = float64(opts.MaxTokens)
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return req, nil
}

// Complete sends the conversation and returns the generated text.
func (c *GRPCClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	req, err := buildRequest(messages, opts)
	if err != nil {
		return "", err
	}
	reply := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, completeMethod, req, reply); err != nil {
		return "", fmt.Errorf("complete rpc: %w", err)
	}
	text := strings.TrimSpace(reply.GetFields()["text"].GetStringValue())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// #endregion complete

// #region stream

// Stream opens a server stream and forwards each reply's text.
func (c *GRPCClient) Stream(ctx context.Context, messages []Message, opts Options) (<-chan Chunk, error) {
	req, err := buildRequest(messages, opts)
	if err != nil {
		return nil, err
	}
	stream, err := c.conn.NewStream(ctx, streamDesc, streamMethod)
	if err != nil {
		return nil, fmt.Errorf("stream rpc: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("stream send: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("stream close send: %w", err)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		for {
			reply := &structpb.Struct{}
			err := stream.RecvMsg(reply)
			if errors.Is(err, io.EOF) {
				return
			}
			chunk := Chunk{Text: reply.GetFields()["text"].GetStringValue()}
			if err != nil {
				chunk = Chunk{Err: fmt.Errorf("stream recv: %w", err)}
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

// #endregion stream
