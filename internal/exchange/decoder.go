package exchange

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"tradeTape/internal/model"
)

var (
	// ErrUnknownSignature means topics[0] matches no catalog variant.
	ErrUnknownSignature = errors.New("unknown event signature")
	// ErrMalformedData means the hash matched but topics or data do not fit the variant.
	ErrMalformedData = errors.New("malformed event data")
)

const slotSize = 32

// DecodedEvent is a fill event with its inputs in declaration order.
// Args hold common.Hash (bytes32), common.Address or *big.Int (uint256).
type DecodedEvent struct {
	EventName  string
	VariantKey string
	Args       []interface{}
	ArgCount   int
}

// Decoder matches raw logs against the fill-event catalog.
type Decoder struct {
	variants []Variant
	byTopic  map[common.Hash][]int
}

// NewDecoder builds a decoder over the static catalog.
func NewDecoder() (*Decoder, error) {
	variants, err := Catalog()
	if err != nil {
		return nil, err
	}

	byTopic := make(map[common.Hash][]int, len(variants))
	for i, v := range variants {
		byTopic[v.ID()] = append(byTopic[v.ID()], i)
	}

	return &Decoder{variants: variants, byTopic: byTopic}, nil
}

// Variants returns the catalog in match order.
func (d *Decoder) Variants() []Variant {
	out := make([]Variant, len(d.variants))
	copy(out, d.variants)
	return out
}

// CanDecode reports whether topic0 belongs to any catalog variant.
func (d *Decoder) CanDecode(topic0 common.Hash) bool {
	_, ok := d.byTopic[topic0]
	return ok
}

// Lookup returns the variants sharing a topic hash.
func (d *Decoder) Lookup(topic0 common.Hash) []Variant {
	idx := d.byTopic[topic0]
	out := make([]Variant, 0, len(idx))
	for _, i := range idx {
		out = append(out, d.variants[i])
	}
	return out
}

// Decode converts a raw log into a DecodedEvent.
func (d *Decoder) Decode(log model.RawLog) (DecodedEvent, error) {
	if len(log.Topics) == 0 {
		return DecodedEvent{}, fmt.Errorf("%w: missing topic0", ErrUnknownSignature)
	}

	idx, ok := d.byTopic[log.Topics[0]]
	if !ok {
		return DecodedEvent{}, fmt.Errorf("%w: %s", ErrUnknownSignature, log.Topics[0].Hex())
	}

	indexedTopics := len(log.Topics) - 1
	for _, i := range idx {
		v := d.variants[i]
		if v.IndexedCount() != indexedTopics {
			continue
		}
		return decodeVariant(v, log)
	}

	return DecodedEvent{}, fmt.Errorf("%w: %d indexed topics fit no variant of %s", ErrMalformedData, indexedTopics, log.Topics[0].Hex())
}

func decodeVariant(v Variant, log model.RawLog) (DecodedEvent, error) {
	event := v.Event()
	nonIndexed := event.Inputs.NonIndexed()
	if len(log.Data) != slotSize*len(nonIndexed) {
		return DecodedEvent{}, fmt.Errorf("%w: %s expects %d data bytes, got %d", ErrMalformedData, v.Key, slotSize*len(nonIndexed), len(log.Data))
	}

	indexed := make(map[string]interface{}, v.IndexedCount())
	if err := abi.ParseTopicsIntoMap(indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return DecodedEvent{}, fmt.Errorf("%w: parse topics: %v", ErrMalformedData, err)
	}

	values, err := nonIndexed.Unpack(log.Data)
	if err != nil {
		return DecodedEvent{}, fmt.Errorf("%w: unpack %s: %v", ErrMalformedData, v.Key, err)
	}
	if len(values) != len(nonIndexed) {
		return DecodedEvent{}, fmt.Errorf("%w: unexpected %s values: %d", ErrMalformedData, v.Key, len(values))
	}

	args := make([]interface{}, 0, len(event.Inputs))
	next := 0
	for _, input := range event.Inputs {
		var raw interface{}
		if input.Indexed {
			raw = indexed[input.Name]
		} else {
			raw = values[next]
			next++
		}
		value, err := canonicalValue(raw)
		if err != nil {
			return DecodedEvent{}, fmt.Errorf("%w: %s.%s: %v", ErrMalformedData, v.Key, input.Name, err)
		}
		args = append(args, value)
	}

	return DecodedEvent{
		EventName:  v.Name,
		VariantKey: v.Key,
		Args:       args,
		ArgCount:   len(args),
	}, nil
}

func canonicalValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case [32]byte:
		return common.Hash(v), nil
	case common.Hash:
		return v, nil
	case common.Address:
		return v, nil
	case *big.Int:
		return new(big.Int).Set(v), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil int")
		}
		return v, nil
	case common.Hash:
		return new(big.Int).SetBytes(v.Bytes()), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
