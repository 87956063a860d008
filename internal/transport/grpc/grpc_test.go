package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nadzzz/kora/internal/config"
	"github.com/nadzzz/kora/internal/dispatch"
	"github.com/nadzzz/kora/internal/followup"
	"github.com/nadzzz/kora/internal/interview"
	"github.com/nadzzz/kora/internal/message"
	"github.com/nadzzz/kora/internal/speech/capture"
	"github.com/nadzzz/kora/internal/speech/playback"
	"github.com/nadzzz/kora/internal/style"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	flow, err := interview.NewFlow(interview.Options{
		Questions:        []string{"请做一下自我介绍。", "你最大的优点是什么？"},
		Style:            style.Friendly,
		FollowupsEnabled: false,
	}, interview.Deps{
		Recorder:  capture.New(nil, time.Minute),
		Narrator:  playback.New(nil, "zh-CN"),
		Generator: followup.New(config.FollowupConfig{}),
	})
	require.NoError(t, err)
	t.Cleanup(flow.Close)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	tr := New(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.serve(ctx, lis, dispatch.New(flow, nil, nil).Handle)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInterviewService(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.Handle(ctx, &message.Request{Action: message.ActionSnapshot})
	require.NoError(t, err)
	assert.Equal(t, interview.PhaseWelcome, res.Snapshot.Phase)

	res, err = c.Handle(ctx, &message.Request{Action: message.ActionSelectStyle, Style: "serious"})
	require.NoError(t, err)
	assert.Equal(t, style.Serious, res.Snapshot.Style)

	_, err = c.Handle(ctx, &message.Request{Action: message.ActionBegin})
	require.NoError(t, err)

	res, err = c.Handle(ctx, &message.Request{Action: message.ActionSubmitAnswer, Text: "我是后端工程师"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Snapshot.CurrentIndex)
	assert.Equal(t, "你最大的优点是什么？", res.Snapshot.CurrentQuestion)

	res, err = c.Handle(ctx, &message.Request{Action: message.ActionSubmitAnswer, Text: "执行力强", AnswerSource: "voice"})
	require.NoError(t, err)
	assert.Equal(t, interview.PhaseSummary, res.Snapshot.Phase)
	assert.Equal(t, interview.SourceVoice, res.Snapshot.Items[1].AnswerSource)

	res, err = c.Handle(ctx, &message.Request{Action: message.ActionSummary})
	require.NoError(t, err)
	assert.Equal(t, "我是后端工程师", res.Snapshot.Items[0].Answer)
	assert.Empty(t, res.Snapshot.Items[0].Followups)
}

func TestInterviewService_ErrorCodes(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Handle(ctx, &message.Request{Action: message.ActionSubmitAnswer, Text: "太早"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = c.Handle(ctx, &message.Request{Action: message.ActionSelectStyle, Style: "loud"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Handle(ctx, &message.Request{Action: message.ActionCaptureAudio, Audio: []byte("clip")})
	assert.Equal(t, codes.Unimplemented, status.Code(err))

	_, err = c.Handle(ctx, &message.Request{Action: "dance"})
	assert.ErrorIs(t, err, dispatch.ErrUnknownAction)
}

func TestHealthService(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := c.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, st)
}
