package decoder

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/chain/evm/rpc"
)

const testContract = "0x0000000000000000000000000000000000000abc"

func topicHash(name string) string {
	topic, _ := EventTopic(name)
	return topic.Hex()
}

func paddedUint(v int64) string {
	return common.BytesToHash(big.NewInt(v).Bytes()).Hex()
}

func paddedAddress(addr string) string {
	return common.BytesToHash(common.HexToAddress(addr).Bytes()).Hex()
}

func TestDecode_TaskCreated(t *testing.T) {
	d, err := New(8453, testContract)
	require.NoError(t, err)

	log := &rpc.Log{
		Address: testContract,
		Topics: []string{
			topicHash("TaskCreated"),
			paddedUint(7),
			paddedAddress("0x00000000000000000000000000000000000000aa"),
		},
		Data:            encodeTaskCreatedData(t),
		BlockNumber:     "0x10",
		TransactionHash: "0xtx1",
		LogIndex:        "0x0",
		BlockHash:       "0xblock1",
	}

	record, ok, err := d.Decode(log)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, record.TaskID)
	assert.Equal(t, "7", *record.TaskID)
	assert.Equal(t, "TaskCreated", string(record.EventName))
	assert.Equal(t, "100000000", record.Args["payoutAmount"])
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", record.Args["requester"])
}

func TestDecode_AddressMismatch(t *testing.T) {
	d, err := New(8453, testContract)
	require.NoError(t, err)

	log := &rpc.Log{
		Address: "0x0000000000000000000000000000000000dead",
		Topics:  []string{topicHash("TaskCreated")},
	}

	record, ok, err := d.Decode(log)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, record)
}

func TestDecode_UnknownTopic(t *testing.T) {
	d, err := New(8453, testContract)
	require.NoError(t, err)

	log := &rpc.Log{
		Address: testContract,
		Topics:  []string{"0x" + "ab" + "00" /* not a recognized topic0 */ + "112233445566778899001122334455667788990011223344556677889900"},
	}

	record, ok, err := d.Decode(log)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, record)
}

func TestDecode_Claimed(t *testing.T) {
	d, err := New(8453, testContract)
	require.NoError(t, err)

	log := &rpc.Log{
		Address: testContract,
		Topics: []string{
			topicHash("Claimed"),
			paddedUint(7),
			paddedUint(1),
			paddedAddress("0x00000000000000000000000000000000000000bb"),
		},
		Data:            "0x",
		BlockNumber:     "0x11",
		TransactionHash: "0xtx2",
		LogIndex:        "0x1",
		BlockHash:       "0xblock2",
	}

	record, ok, err := d.Decode(log)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", record.Args["agent"])
	assert.Equal(t, "1", record.Args["submissionId"])
}

func TestKnownEventNames_CoversClosedSet(t *testing.T) {
	names := KnownEventNames()
	assert.Len(t, names, 12)
	assert.Contains(t, names, "TaskCreated")
	assert.Contains(t, names, "DisputeResolved")
}

// encodeTaskCreatedData ABI-encodes TaskCreated's non-indexed fields
// (payoutAmount uint128, maxWinners uint16, deadline uint40, specHash bytes32)
// using the decoder's own parsed ABI, proving the round trip end to end.
func encodeTaskCreatedData(t *testing.T) string {
	t.Helper()
	a, err := loadABI()
	require.NoError(t, err)

	event := a.Events["TaskCreated"]
	packed, err := event.Inputs.NonIndexed().Pack(
		big.NewInt(100000000),
		uint16(1),
		big.NewInt(1999000000),
		[32]byte{0x11},
	)
	require.NoError(t, err)
	return "0x" + common.Bytes2Hex(packed)
}
