package exchange

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	EventOrderFilled   = "OrderFilled"
	EventOrdersMatched = "OrdersMatched"
)

// Param is one input of a fill event.
type Param struct {
	Name    string
	Type    string
	Indexed bool
}

// Variant is one fill-event shape observed on the exchange contracts.
// Several variants may share a topic hash; they differ in how many inputs are indexed.
type Variant struct {
	Key    string
	Name   string
	Params []Param

	event abi.Event
}

// Signature returns the canonical "Name(type,...)" string.
func (v Variant) Signature() string {
	return v.event.Sig
}

// ID returns the keccak256 topic hash of the signature.
func (v Variant) ID() common.Hash {
	return v.event.ID
}

// ArgCount is the number of event inputs.
func (v Variant) ArgCount() int {
	return len(v.Params)
}

// IndexedCount is the number of inputs carried in topics[1:].
func (v Variant) IndexedCount() int {
	n := 0
	for _, p := range v.Params {
		if p.Indexed {
			n++
		}
	}
	return n
}

// Event returns the go-ethereum event definition.
func (v Variant) Event() abi.Event {
	return v.event
}

func fillParams(leading ...Param) []Param {
	params := append([]Param{}, leading...)
	return append(params,
		Param{Name: "makerAssetId", Type: "uint256"},
		Param{Name: "takerAssetId", Type: "uint256"},
		Param{Name: "makerAmountFilled", Type: "uint256"},
		Param{Name: "takerAmountFilled", Type: "uint256"},
	)
}

var (
	orderHashIndexed = Param{Name: "orderHash", Type: "bytes32", Indexed: true}
	makerIndexed     = Param{Name: "maker", Type: "address", Indexed: true}
	takerIndexed     = Param{Name: "taker", Type: "address", Indexed: true}
	takerPlain       = Param{Name: "taker", Type: "address"}
	feeParam         = Param{Name: "fee", Type: "uint256"}
)

// catalogEntries is ordered: the first variant whose hash and topic count match wins.
var catalogEntries = []struct {
	key    string
	name   string
	params []Param
}{
	{
		key:    "order_filled",
		name:   EventOrderFilled,
		params: append(fillParams(orderHashIndexed, makerIndexed, takerIndexed), feeParam),
	},
	{
		key:    "order_filled_taker_unindexed",
		name:   EventOrderFilled,
		params: append(fillParams(orderHashIndexed, makerIndexed, takerPlain), feeParam),
	},
	{
		key:    "order_filled_no_fee",
		name:   EventOrderFilled,
		params: fillParams(orderHashIndexed, makerIndexed, takerIndexed),
	},
	{
		key:  "order_filled_context",
		name: EventOrderFilled,
		params: append(fillParams(
			Param{Name: "context", Type: "bytes32", Indexed: true},
			orderHashIndexed,
			makerIndexed,
			takerPlain,
		), feeParam),
	},
	{
		key:    "orders_matched_9",
		name:   EventOrdersMatched,
		params: append(fillParams(orderHashIndexed, makerIndexed, takerIndexed), feeParam, Param{Name: "extra0", Type: "uint256"}),
	},
	{
		key:  "orders_matched_10",
		name: EventOrdersMatched,
		params: append(fillParams(orderHashIndexed, makerIndexed, takerIndexed), feeParam,
			Param{Name: "extra0", Type: "uint256"},
			Param{Name: "extra1", Type: "uint256"},
		),
	},
}

var (
	catalog     []Variant
	catalogOnce sync.Once
	catalogErr  error
)

// Catalog returns the parsed fill-event variants in match order.
func Catalog() ([]Variant, error) {
	catalogOnce.Do(func() {
		catalog, catalogErr = buildCatalog()
	})
	return catalog, catalogErr
}

func buildCatalog() ([]Variant, error) {
	variants := make([]Variant, 0, len(catalogEntries))
	seen := make(map[string]string, len(catalogEntries))
	for _, entry := range catalogEntries {
		v, err := newVariant(entry.key, entry.name, entry.params)
		if err != nil {
			return nil, err
		}
		if _, ok := layoutFor(v.Name, v.ArgCount()); !ok {
			return nil, fmt.Errorf("variant %s: no field layout for %d args", v.Key, v.ArgCount())
		}
		shape := fmt.Sprintf("%s/%d", v.ID().Hex(), v.IndexedCount())
		if other, ok := seen[shape]; ok {
			return nil, fmt.Errorf("variant %s is indistinguishable from %s", v.Key, other)
		}
		seen[shape] = v.Key
		variants = append(variants, v)
	}
	return variants, nil
}

func newVariant(key, name string, params []Param) (Variant, error) {
	args := make(abi.Arguments, 0, len(params))
	names := make(map[string]struct{}, len(params))
	for _, p := range params {
		if _, dup := names[p.Name]; dup {
			return Variant{}, fmt.Errorf("variant %s: duplicate input %s", key, p.Name)
		}
		names[p.Name] = struct{}{}

		typ, err := abi.NewType(p.Type, "", nil)
		if err != nil {
			return Variant{}, fmt.Errorf("variant %s: input %s: %w", key, p.Name, err)
		}
		args = append(args, abi.Argument{Name: p.Name, Type: typ, Indexed: p.Indexed})
	}

	return Variant{
		Key:    key,
		Name:   name,
		Params: params,
		event:  abi.NewEvent(name, name, false, args),
	}, nil
}

// CanonicalSignature builds "Name(type,...)" from a parameter list.
func CanonicalSignature(name string, params []Param) string {
	types := make([]string, 0, len(params))
	for _, p := range params {
		types = append(types, p.Type)
	}
	return name + "(" + strings.Join(types, ",") + ")"
}
