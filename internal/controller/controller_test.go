package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebas/softphone/internal/notify"
	"github.com/sebas/softphone/internal/numbers"
	"github.com/sebas/softphone/internal/session"
)

type stubCall struct {
	mu     sync.Mutex
	digits []string
}

func (c *stubCall) Disconnect()    {}
func (c *stubCall) Mute(bool)      {}
func (c *stubCall) StopRecording() {}
func (c *stubCall) SendDigits(d string) {
	c.mu.Lock()
	c.digits = append(c.digits, d)
	c.mu.Unlock()
}
func (c *stubCall) StartRecording(session.RecordingListener) error { return nil }

type answeringTransport struct {
	mu     sync.Mutex
	params []session.ConnectParams
	call   *stubCall
}

func (t *answeringTransport) Connect(_ context.Context, _ string, p session.ConnectParams, l session.Listener) (session.Call, error) {
	t.mu.Lock()
	t.params = append(t.params, p)
	t.mu.Unlock()
	go func() {
		l.Ringing()
		l.Connected()
	}()
	return t.call, nil
}

func (t *answeringTransport) Accept(context.Context, session.Invite, session.Listener) (session.Call, error) {
	return nil, errors.New("unsupported")
}

func (t *answeringTransport) lastParams() session.ConnectParams {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.params[len(t.params)-1]
}

type stubResolver struct {
	def    string
	labels map[string]string
}

func (r stubResolver) Default(context.Context) (numbers.Number, error) {
	if r.def == "" {
		return numbers.Number{}, numbers.ErrNotFound
	}
	return numbers.Number{Number: r.def, IsDefault: true}, nil
}

func (r stubResolver) Resolve(_ context.Context, number string) string {
	if l, ok := r.labels[number]; ok {
		return l
	}
	return number
}

func newController(t *testing.T, r Resolver) (*Controller, *answeringTransport) {
	t.Helper()
	tr := &answeringTransport{call: &stubCall{}}
	n := notify.New()
	s := session.New(tr, session.TokenFunc(func(context.Context, string) (string, error) {
		return "token", nil
	}), session.WithObserver(n))
	c := New(s, n, r)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, tr
}

func waitFor(t *testing.T, c *Controller, want session.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status(context.Background()).State == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartCallUsesDefaultOrigin(t *testing.T) {
	c, tr := newController(t, stubResolver{def: "+15559876543", labels: map[string]string{"+15559876543": "Office"}})

	require.NoError(t, c.StartCall(context.Background(), " +15551234567 ", ""))
	waitFor(t, c, session.StateConnected)

	assert.Equal(t, session.ConnectParams{To: "+15551234567", From: "+15559876543"}, tr.lastParams())

	st := c.Status(context.Background())
	assert.Equal(t, "+15551234567", st.Remote)
	assert.Equal(t, "Office", st.OriginLabel)
	assert.NotEmpty(t, st.CallID)
	assert.False(t, st.ConnectedAt.IsZero())
}

func TestStartCallWithoutOrigin(t *testing.T) {
	c, _ := newController(t, stubResolver{})
	assert.ErrorIs(t, c.StartCall(context.Background(), "+1555", ""), ErrNoOrigin)

	c2, _ := newController(t, nil)
	assert.ErrorIs(t, c2.StartCall(context.Background(), "+1555", ""), ErrNoOrigin)
}

func TestStartCallRequiresDestination(t *testing.T) {
	c, _ := newController(t, nil)
	assert.ErrorIs(t, c.StartCall(context.Background(), "  ", "+1"), ErrNoDestination)
}

func TestSendDigitsValidation(t *testing.T) {
	c, tr := newController(t, nil)

	sent, err := c.SendDigits("12")
	require.NoError(t, err)
	assert.False(t, sent, "no call")

	_, err = c.SendDigits("1z")
	assert.Error(t, err)
	_, err = c.SendDigits("")
	assert.Error(t, err)

	require.NoError(t, c.StartCall(context.Background(), "+1555", "+1666"))
	waitFor(t, c, session.StateConnected)

	sent, err = c.SendDigits("9#")
	require.NoError(t, err)
	assert.True(t, sent)
	tr.call.mu.Lock()
	assert.Equal(t, []string{"9#"}, tr.call.digits)
	tr.call.mu.Unlock()
}

func TestEndCallAndClose(t *testing.T) {
	c, _ := newController(t, nil)
	assert.False(t, c.EndCall())

	require.NoError(t, c.StartCall(context.Background(), "+1555", "+1666"))
	waitFor(t, c, session.StateConnected)
	assert.True(t, c.ToggleMute())
	assert.True(t, c.Status(context.Background()).Muted)

	assert.True(t, c.EndCall())
	st := c.Status(context.Background())
	assert.Equal(t, session.StateDisconnected, st.State)
	assert.Empty(t, st.LastError)
	assert.Zero(t, st.Duration)

	require.NoError(t, c.Close(context.Background()))
}
