package llm

import (
	"context"
	"errors"
	"io"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region genai-mock

type fakeModels struct {
	text      string
	err       error
	chunks    []string
	gotModel  string
	gotConfig *genai.GenerateContentConfig
	gotTurns  []*genai.Content
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: s}}},
	}}}
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel, f.gotConfig, f.gotTurns = model, cfg, contents
	if f.err != nil {
		return nil, f.err
	}
	return textResponse(f.text), nil
}

func (f *fakeModels) GenerateContentStream(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, c := range f.chunks {
			if !yield(textResponse(c), nil) {
				return
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

// #endregion genai-mock

// #region genai-tests

func TestGenAIClient_Complete(t *testing.T) {
	fm := &fakeModels{text: "  hello there  "}
	c := newGenAIClient(fm, "")

	got, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be kind"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hey"},
		{Role: RoleUser, Content: "how are you"},
	}, Options{Temperature: 0.5, MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)

	assert.Equal(t, DefaultGeminiModel, fm.gotModel)
	require.Len(t, fm.gotTurns, 3)
	assert.Equal(t, genai.RoleModel, fm.gotTurns[1].Role)
	require.NotNil(t, fm.gotConfig.SystemInstruction)
	assert.Equal(t, "be kind", fm.gotConfig.SystemInstruction.Parts[0].Text)
	assert.Equal(t, int32(64), fm.gotConfig.MaxOutputTokens)
	assert.Equal(t, float32(0.5), *fm.gotConfig.Temperature)
}

func TestGenAIClient_Errors(t *testing.T) {
	c := newGenAIClient(&fakeModels{text: "   "}, "m")
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, Options{})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	c = newGenAIClient(&fakeModels{err: errors.New("quota")}, "m")
	_, err = c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, Options{})
	assert.ErrorContains(t, err, "quota")

	_, err = NewGenAIClient(context.Background(), "", "")
	assert.Error(t, err)
}

func TestGenAIClient_Stream(t *testing.T) {
	c := newGenAIClient(&fakeModels{chunks: []string{"hel", "lo"}}, "m")
	ch, err := c.Stream(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, Options{})
	require.NoError(t, err)
	got, err := Collect(ch)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	c = newGenAIClient(&fakeModels{chunks: []string{"par"}, err: errors.New("cut")}, "m")
	ch, _ = c.Stream(context.Background(), nil, Options{})
	got, err = Collect(ch)
	assert.Equal(t, "par", got)
	assert.ErrorContains(t, err, "cut")
}

// #endregion genai-tests

// #region grpc-mock

type fakeConn struct {
	method  string
	request *structpb.Struct
	reply   *structpb.Struct
	err     error
	stream  *fakeStream
}

func (f *fakeConn) Invoke(_ context.Context, method string, args, reply interface{}, _ ...grpc.CallOption) error {
	f.method = method
	f.request = args.(*structpb.Struct)
	if f.err != nil {
		return f.err
	}
	proto.Merge(reply.(*structpb.Struct), f.reply)
	return nil
}

func (f *fakeConn) NewStream(_ context.Context, _ *grpc.StreamDesc, method string, _ ...grpc.CallOption) (grpc.ClientStream, error) {
	f.method = method
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type fakeStream struct {
	replies []*structpb.Struct
	tailErr error
	sent    *structpb.Struct
}

func (s *fakeStream) Header() (metadata.MD, error) { return nil, nil }
func (s *fakeStream) Trailer() metadata.MD         { return nil }
func (s *fakeStream) CloseSend() error             { return nil }
func (s *fakeStream) Context() context.Context     { return context.Background() }
func (s *fakeStream) SendMsg(m interface{}) error {
	s.sent = m.(*structpb.Struct)
	return nil
}
func (s *fakeStream) RecvMsg(m interface{}) error {
	if len(s.replies) == 0 {
		if s.tailErr != nil {
			return s.tailErr
		}
		return io.EOF
	}
	proto.Merge(m.(*structpb.Struct), s.replies[0])
	s.replies = s.replies[1:]
	return nil
}

func textStruct(t *testing.T, s string) *structpb.Struct {
	t.Helper()
	st, err := structpb.NewStruct(map[string]interface{}{"text": s})
	require.NoError(t, err)
	return st
}

// #endregion grpc-mock

// #region grpc-tests

func TestGRPCClient_Complete(t *testing.T) {
	conn := &fakeConn{reply: textStruct(t, "from server")}
	c := NewGRPCClientWithConn(conn)

	got, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "ping"}}, Options{Temperature: 0.7, MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "from server", got)
	assert.Equal(t, completeMethod, conn.method)

	fields := conn.request.GetFields()
	assert.Equal(t, 10.0, fields["max_tokens"].GetNumberValue())
	msgs := fields["messages"].GetListValue().GetValues()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ping", msgs[0].GetStructValue().GetFields()["content"].GetStringValue())
	assert.NoError(t, c.Close())
}

func TestGRPCClient_CompleteErrors(t *testing.T) {
	c := NewGRPCClientWithConn(&fakeConn{err: errors.New("unavailable")})
	_, err := c.Complete(context.Background(), nil, Options{})
	assert.ErrorContains(t, err, "unavailable")

	c = NewGRPCClientWithConn(&fakeConn{reply: &structpb.Struct{}})
	_, err = c.Complete(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGRPCClient_Stream(t *testing.T) {
	stream := &fakeStream{replies: []*structpb.Struct{textStruct(t, "a"), textStruct(t, "b")}}
	conn := &fakeConn{stream: stream}
	c := NewGRPCClientWithConn(conn)

	ch, err := c.Stream(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, Options{})
	require.NoError(t, err)
	got, err := Collect(ch)
	require.NoError(t, err)
	assert.Equal(t, "ab", got)
	assert.Equal(t, streamMethod, conn.method)
	assert.NotNil(t, stream.sent)

	broken := &fakeStream{tailErr: errors.New("reset")}
	ch, err = NewGRPCClientWithConn(&fakeConn{stream: broken}).Stream(context.Background(), nil, Options{})
	require.NoError(t, err)
	_, err = Collect(ch)
	assert.ErrorContains(t, err, "reset")
}

func TestNewGRPCClient_LazyDial(t *testing.T) {
	c, err := NewGRPCClient("localhost:0")
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

// #endregion grpc-tests

// #region timeout

type deadlineClient struct{ deadline time.Time }

func (d *deadlineClient) Complete(ctx context.Context, _ []Message, _ Options) (string, error) {
	d.deadline, _ = ctx.Deadline()
	return "ok", nil
}

func (d *deadlineClient) Stream(ctx context.Context, _ []Message, _ Options) (<-chan Chunk, error) {
	ch := make(chan Chunk, 2)
	ch <- Chunk{Text: "a"}
	if ctx.Err() == nil {
		ch <- Chunk{Text: "b"}
	}
	close(ch)
	return ch, nil
}

func TestWithTimeout(t *testing.T) {
	inner := &deadlineClient{}
	assert.Same(t, inner, WithTimeout(inner, 0).(*deadlineClient))

	c := WithTimeout(inner, time.Minute)
	got, err := c.Complete(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.WithinDuration(t, time.Now().Add(time.Minute), inner.deadline, 5*time.Second)

	ch, err := c.Stream(context.Background(), nil, Options{})
	require.NoError(t, err)
	text, err := Collect(ch)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

// #endregion timeout
