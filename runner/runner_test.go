package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/concierge/agent"
	"github.com/hupe1980/concierge/channel"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/model"
	"github.com/hupe1980/concierge/session"
	"github.com/hupe1980/concierge/tool"
)

func testFactory(t *testing.T) Factory {
	t.Helper()
	return func(id string) (*session.Session, error) {
		reg, err := agent.NewRegistry(&agent.Definition{
			ID:          "main",
			Instruction: agent.NewInstructionFromText("Front desk."),
			Tools:       []tool.Tool{tool.NewEndSessionTool("end_call", "", "Goodbye!")},
		})
		if err != nil {
			return nil, err
		}
		m := model.NewMockModel("mock")
		m.AddResponse("hello", "Welcome!")
		m.Handler = func(req model.Request) (model.MockStep, bool) {
			if model.LastUserText(req.Messages) == "bye" && req.Messages[len(req.Messages)-1].Role == core.RoleUser {
				return model.MockStep{ToolCalls: []core.ToolCall{model.Call("end_call", "{}")}}, true
			}
			return model.MockStep{}, false
		}
		return session.New(func(o *session.Options) {
			o.ID = id
			o.Registry = reg
			o.Model = m
		})
	}
}

func waitResult(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func TestRunner_HostsSessionUntilTerminal(t *testing.T) {
	r := New(testFactory(t))
	pipe := channel.NewPipe(4)

	id, errCh, err := r.Start(context.Background(), "caller-1", pipe)
	require.NoError(t, err)
	assert.Equal(t, "caller-1", id)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe.Say("hello")
	u, err := pipe.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Welcome!", u.Text)

	sess, ok := r.Session("caller-1")
	require.True(t, ok)
	assert.Equal(t, "caller-1", sess.ID())

	pipe.Say("bye")
	require.NoError(t, waitResult(t, errCh))
	assert.True(t, sess.Terminated())
	assert.Eventually(t, func() bool { return len(r.Active()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestRunner_CapacityAndDuplicates(t *testing.T) {
	r := New(testFactory(t), func(o *Options) { o.MaxConcurrentSessions = 1 })

	id, errCh, err := r.Start(context.Background(), "", channel.NewPipe(1))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, []string{id}, r.Active())

	_, _, err = r.Start(context.Background(), "other", channel.NewPipe(1))
	assert.ErrorIs(t, err, ErrCapacity)

	require.NoError(t, r.Cancel(id))
	assert.NoError(t, waitResult(t, errCh))

	var nf *core.NotFoundError
	assert.ErrorAs(t, r.Cancel("missing"), &nf)
}

func TestRunner_FactoryFailureReleasesID(t *testing.T) {
	boom := errors.New("boom")
	r := New(func(string) (*session.Session, error) { return nil, boom })

	_, _, err := r.Start(context.Background(), "caller", channel.NewPipe(1))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, r.Active())
}

func TestRunner_Shutdown(t *testing.T) {
	r := New(testFactory(t))
	_, errCh1, err := r.Start(context.Background(), "a", channel.NewPipe(1))
	require.NoError(t, err)
	_, errCh2, err := r.Start(context.Background(), "b", channel.NewPipe(1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	assert.NoError(t, waitResult(t, errCh1))
	assert.NoError(t, waitResult(t, errCh2))
	assert.Empty(t, r.Active())

	_, _, err = r.Start(context.Background(), "c", channel.NewPipe(1))
	assert.ErrorIs(t, err, ErrStopped)
}
