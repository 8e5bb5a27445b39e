package decoder

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/chain/evm/rpc"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/domain/model"
)

var (
	initOnce    sync.Once
	initErr     error
	contractABI abi.ABI
)

func indexedArguments(arguments abi.Arguments) abi.Arguments {
	var ret abi.Arguments
	for _, arg := range arguments {
		if arg.Indexed {
			ret = append(ret, arg)
		}
	}
	return ret
}

func loadABI() (abi.ABI, error) {
	initOnce.Do(func() {
		contractABI, initErr = abi.JSON(strings.NewReader(eventABIJSON))
	})
	return contractABI, initErr
}

// Decoder turns raw JSON-RPC logs from a single watched contract into
// typed EventRecords. Unknown topics or unpack failures are reported
// as ok=false rather than returned as errors, so a single bad
// log never aborts a batch.
type Decoder struct {
	chainID         int64
	contractAddress common.Address
	abi             abi.ABI
	topicToEvent    map[common.Hash]abi.Event
}

func New(chainID int64, contractAddress string) (*Decoder, error) {
	a, err := loadABI()
	if err != nil {
		return nil, fmt.Errorf("load escrow event ABI: %w", err)
	}

	topicToEvent := make(map[common.Hash]abi.Event, len(a.Events))
	for _, ev := range a.Events {
		topicToEvent[ev.ID] = ev
	}

	return &Decoder{
		chainID:         chainID,
		contractAddress: common.HexToAddress(contractAddress),
		abi:             a,
		topicToEvent:    topicToEvent,
	}, nil
}

// Decode reports an undecodable log (ok=false, err=nil) when a log's address
// doesn't match the watched contract, its topic0 is not in the known
// event set, or its fields fail to unpack. Callers should increment a
// counter and continue; this is never a fatal error.
func (d *Decoder) Decode(log *rpc.Log) (*model.EventRecord, bool, error) {
	if !strings.EqualFold(log.Address, d.contractAddress.Hex()) {
		return nil, false, nil
	}
	if len(log.Topics) == 0 {
		return nil, false, nil
	}

	topic0 := common.HexToHash(log.Topics[0])
	event, ok := d.topicToEvent[topic0]
	if !ok {
		return nil, false, nil
	}

	args, err := d.unpackArgs(event, log)
	if err != nil {
		return nil, false, nil
	}

	blockNumber, err := rpc.ParseHexInt64(log.BlockNumber)
	if err != nil {
		return nil, false, nil
	}
	logIndex, err := rpc.ParseHexInt64(log.LogIndex)
	if err != nil {
		return nil, false, nil
	}

	record := &model.EventRecord{
		ChainID:         d.chainID,
		ContractAddress: strings.ToLower(d.contractAddress.Hex()),
		TxHash:          strings.ToLower(log.TransactionHash),
		LogIndex:        logIndex,
		BlockNumber:     blockNumber,
		BlockHash:       strings.ToLower(log.BlockHash),
		EventName:       model.EventName(event.Name),
		Args:            args,
	}

	if taskID, ok := firstIndexedAsTaskID(event, log); ok {
		record.TaskID = &taskID
	}

	return record, true, nil
}

// unpackArgs decodes both indexed (from topics) and non-indexed (from
// data) event fields into a flat map, preserving big integers as decimal
// strings so callers never coerce amounts through float64.
func (d *Decoder) unpackArgs(event abi.Event, log *rpc.Log) (map[string]interface{}, error) {
	args := make(map[string]interface{})

	indexedInputs := indexedArguments(event.Inputs)
	topics := log.Topics[1:]
	if len(topics) < len(indexedInputs) {
		return nil, fmt.Errorf("%s: expected %d indexed topics, got %d", event.Name, len(indexedInputs), len(topics))
	}
	for i, input := range indexedInputs {
		value, err := decodeTopic(input.Type, topics[i])
		if err != nil {
			return nil, fmt.Errorf("%s: decode indexed arg %s: %w", event.Name, input.Name, err)
		}
		args[input.Name] = value
	}

	data, err := hexutil.Decode(log.Data)
	if err != nil {
		if log.Data == "" || log.Data == "0x" {
			data = []byte{}
		} else {
			return nil, fmt.Errorf("%s: parse data: %w", event.Name, err)
		}
	}
	nonIndexedInputs := event.Inputs.NonIndexed()
	if len(nonIndexedInputs) > 0 {
		values, err := nonIndexedInputs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("%s: unpack data: %w", event.Name, err)
		}
		for i, input := range nonIndexedInputs {
			args[input.Name] = normalizeValue(values[i])
		}
	}

	return args, nil
}

func decodeTopic(t abi.Type, topic string) (interface{}, error) {
	h := common.HexToHash(topic)
	switch t.T {
	case abi.AddressTy:
		return strings.ToLower(common.BytesToAddress(h.Bytes()).Hex()), nil
	case abi.UintTy, abi.IntTy:
		return new(big.Int).SetBytes(h.Bytes()).String(), nil
	case abi.FixedBytesTy, abi.BytesTy:
		return strings.ToLower(h.Hex()), nil
	case abi.BoolTy:
		return h.Big().Sign() != 0, nil
	default:
		return strings.ToLower(h.Hex()), nil
	}
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *big.Int:
		return val.String()
	case common.Address:
		return strings.ToLower(val.Hex())
	case [32]byte:
		return strings.ToLower(common.BytesToHash(val[:]).Hex())
	default:
		return val
	}
}

// firstIndexedAsTaskID extracts task_id from the first indexed topic, per
// the contract convention that every event's first indexed argument is
// the task id.
func firstIndexedAsTaskID(event abi.Event, log *rpc.Log) (string, bool) {
	indexed := indexedArguments(event.Inputs)
	if len(indexed) == 0 || len(log.Topics) < 2 {
		return "", false
	}
	if indexed[0].Type.T != abi.UintTy {
		return "", false
	}
	h := common.HexToHash(log.Topics[1])
	return new(big.Int).SetBytes(h.Bytes()).String(), true
}

// EventTopic returns the topic0 hash for a known event name, used by the
// indexer to build the eth_getLogs topic filter.
func EventTopic(name string) (common.Hash, bool) {
	a, err := loadABI()
	if err != nil {
		return common.Hash{}, false
	}
	ev, ok := a.Events[name]
	if !ok {
		return common.Hash{}, false
	}
	return ev.ID, true
}

// KnownEventNames returns the closed set of event names the decoder
// recognizes. The names come from iterating a map, so their order is not
// defined.
func KnownEventNames() []string {
	names := make([]string, 0, 12)
	a, err := loadABI()
	if err != nil {
		return names
	}
	for name := range a.Events {
		names = append(names, name)
	}
	return names
}
