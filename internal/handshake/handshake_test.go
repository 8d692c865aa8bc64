package handshake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realkv/lab-bcp/internal/constants"
)

func TestBuildAndParseSyncReq(t *testing.T) {
	req := BuildSyncReq(3, 80)
	assert.Equal(t, constants.CtrlSyncReq, req.Ctrl)
	assert.EqualValues(t, 3, req.FSN)

	mfs, err := ParsePeerMFS(req)
	require.NoError(t, err)
	assert.EqualValues(t, 80, mfs)
}

func TestParsePeerMFSRejectsNonSyncReq(t *testing.T) {
	ack := BuildSyncAck(3)
	_, err := ParsePeerMFS(ack)
	assert.ErrorIs(t, err, ErrNotSyncReq)
}

func TestBuildSyncAckEchoesFSN(t *testing.T) {
	ack := BuildSyncAck(42)
	assert.Equal(t, constants.CtrlSyncAck, ack.Ctrl)
	assert.EqualValues(t, 42, ack.FSN)
	assert.Empty(t, ack.Payload)
}

func TestIsSyncAckFor(t *testing.T) {
	ack := BuildSyncAck(7)
	assert.True(t, IsSyncAckFor(ack, 7))
	assert.False(t, IsSyncAckFor(ack, 8))

	req := BuildSyncReq(7, 40)
	assert.False(t, IsSyncAckFor(req, 7))
}

func TestOpenStatusString(t *testing.T) {
	assert.Equal(t, "OK", OpenOK.String())
	assert.Equal(t, "RSP_TIMEOUT", OpenErrRspTimeout.String())
	assert.Equal(t, "SEND_FAIL", OpenErrSendFail.String())
	assert.Equal(t, "MEM_FAIL", OpenErrMemFail.String())
	assert.Equal(t, "UNKNOWN", OpenStatus(99).String())
}
