package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ToolRegistryABI describes the events emitted by the ToolRegistry contract.
const ToolRegistryABI = `[
  {"type":"event","name":"ToolRegistered","anonymous":false,"inputs":[
    {"name":"toolId","type":"uint256","indexed":true},
    {"name":"creator","type":"address","indexed":true},
    {"name":"name","type":"string","indexed":false},
    {"name":"endpoint","type":"string","indexed":false},
    {"name":"pricePerCall","type":"uint256","indexed":false}]},
  {"type":"event","name":"ToolCalled","anonymous":false,"inputs":[
    {"name":"toolId","type":"uint256","indexed":true},
    {"name":"caller","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"ToolTipped","anonymous":false,"inputs":[
    {"name":"toolId","type":"uint256","indexed":true},
    {"name":"tipper","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"Withdrawn","anonymous":false,"inputs":[
    {"name":"creator","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"ToolDeactivated","anonymous":false,"inputs":[
    {"name":"toolId","type":"uint256","indexed":true}]},
  {"type":"event","name":"ToolReactivated","anonymous":false,"inputs":[
    {"name":"toolId","type":"uint256","indexed":true}]},
  {"type":"event","name":"PriceUpdated","anonymous":false,"inputs":[
    {"name":"toolId","type":"uint256","indexed":true},
    {"name":"oldPrice","type":"uint256","indexed":false},
    {"name":"newPrice","type":"uint256","indexed":false}]}
]`

// Event names in ToolRegistryABI.
const (
	EventToolRegistered  = "ToolRegistered"
	EventToolCalled      = "ToolCalled"
	EventToolTipped      = "ToolTipped"
	EventWithdrawn       = "Withdrawn"
	EventToolDeactivated = "ToolDeactivated"
	EventToolReactivated = "ToolReactivated"
	EventPriceUpdated    = "PriceUpdated"
)

var registryABI = mustParseABI(ToolRegistryABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse ToolRegistry ABI: %v", err))
	}
	return parsed
}

// RegistryABI returns the parsed ToolRegistry ABI.
func RegistryABI() abi.ABI {
	return registryABI
}

// ToolCalled is a decoded ToolCalled log.
type ToolCalled struct {
	ToolID    *big.Int
	Caller    common.Address
	Amount    *big.Int
	Timestamp *big.Int
}

// DecodeToolCalled decodes lg as a ToolCalled event. Logs of any other shape
// return an error.
func DecodeToolCalled(lg *types.Log) (*ToolCalled, error) {
	event := registryABI.Events[EventToolCalled]
	if lg == nil || len(lg.Topics) != 3 || lg.Topics[0] != event.ID {
		return nil, fmt.Errorf("log is not %s", EventToolCalled)
	}
	values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", EventToolCalled, err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unpack %s: expected 2 values, got %d", EventToolCalled, len(values))
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: amount has type %T", EventToolCalled, values[0])
	}
	timestamp, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: timestamp has type %T", EventToolCalled, values[1])
	}
	return &ToolCalled{
		ToolID:    new(big.Int).SetBytes(lg.Topics[1].Bytes()),
		Caller:    common.BytesToAddress(lg.Topics[2].Bytes()),
		Amount:    amount,
		Timestamp: timestamp,
	}, nil
}

// EncodeEvent renders a ledger event as the log the contract at emitter
// would produce for it.
func EncodeEvent(emitter common.Address, ev ledger.Event) (*types.Log, error) {
	toolTopic := common.BigToHash(new(big.Int).SetUint64(ev.ToolID))
	actorTopic := common.BytesToHash(ev.Actor.Bytes())

	var (
		name   string
		topics []common.Hash
		data   []any
	)
	switch ev.Kind {
	case ledger.EventRegistered:
		name, topics = EventToolRegistered, []common.Hash{toolTopic, actorTopic}
		data = []any{ev.Name, ev.Endpoint, orZero(ev.NewPrice)}
	case ledger.EventCalled:
		name, topics = EventToolCalled, []common.Hash{toolTopic, actorTopic}
		data = []any{orZero(ev.Amount), big.NewInt(ev.Timestamp.Unix())}
	case ledger.EventTipped:
		name, topics = EventToolTipped, []common.Hash{toolTopic, actorTopic}
		data = []any{orZero(ev.Amount)}
	case ledger.EventWithdrawn:
		name, topics = EventWithdrawn, []common.Hash{actorTopic}
		data = []any{orZero(ev.Amount)}
	case ledger.EventDeactivated:
		name, topics = EventToolDeactivated, []common.Hash{toolTopic}
	case ledger.EventReactivated:
		name, topics = EventToolReactivated, []common.Hash{toolTopic}
	case ledger.EventPriceUpdated:
		name, topics = EventPriceUpdated, []common.Hash{toolTopic}
		data = []any{orZero(ev.OldPrice), orZero(ev.NewPrice)}
	default:
		return nil, fmt.Errorf("encode event: unknown kind %q", ev.Kind)
	}

	event := registryABI.Events[name]
	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", name, err)
	}
	return &types.Log{
		Address: emitter,
		Topics:  append([]common.Hash{event.ID}, topics...),
		Data:    packed,
	}, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
