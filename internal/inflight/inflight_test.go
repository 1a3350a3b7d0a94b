package inflight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus-os/nucleus/internal/event"
)

func TestResponseDeliveredExactlyOnce(t *testing.T) {
	fl, h := New()

	resp, err := h.TryTakeResponse()
	require.NoError(t, err)
	assert.Nil(t, resp, "nothing submitted yet")

	fl.Submit(event.SystemCallResponse{Error: event.OK, Ret: 42})

	resp, err = h.TryTakeResponse()
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, event.OK, resp.Error)
	assert.Equal(t, uint64(42), resp.Ret)

	_, err = h.TryTakeResponse()
	assert.ErrorIs(t, err, ErrAlreadyTaken)
}

func TestDoubleSubmitPanics(t *testing.T) {
	fl, _ := New()
	fl.Submit(event.SystemCallResponse{})
	assert.Panics(t, func() { fl.Submit(event.SystemCallResponse{}) })
}

func TestInterfaceCancel(t *testing.T) {
	fl, h := New()
	fl.Cancel()

	_, err := h.TryTakeResponse()
	assert.ErrorIs(t, err, ErrInterfaceCanceled)
	assert.Equal(t, InterfaceCanceled, h.State())
}

func TestCallerCancelBeforeSubmit(t *testing.T) {
	fl, h := New()

	// The caller drops out first; a later submit must not blow up, and the
	// response is simply never read.
	h.Cancel()
	assert.True(t, fl.Canceled())
	assert.NotPanics(t, func() {
		fl.Submit(event.SystemCallResponse{Error: event.OK, Ret: 7})
	})
}

func TestCancelAfterSubmitKeepsResponse(t *testing.T) {
	fl, h := New()
	fl.Submit(event.SystemCallResponse{Error: event.OK, Ret: 9})

	// The interface-side cancel races in after the response; it must not
	// clobber a resolved cell.
	fl.Cancel()

	resp, err := h.TryTakeResponse()
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, uint64(9), resp.Ret)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "finished", Finished.String())
}
