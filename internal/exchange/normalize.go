package exchange

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"tradeTape/internal/model"
)

// ErrNotTrade marks a decoded fill that does not describe a collateral/outcome trade.
var ErrNotTrade = errors.New("not a trade")

// SideConvention selects whose perspective BUY/SELL is reported from.
type SideConvention string

const (
	// MakerPerspective: maker paid collateral (makerAssetId == 0) is a BUY.
	MakerPerspective SideConvention = "maker"
	// TakerPerspective: taker paid collateral (takerAssetId == 0) is a BUY.
	TakerPerspective SideConvention = "taker"
)

// ParseSideConvention accepts "maker" or "taker".
func ParseSideConvention(s string) (SideConvention, error) {
	switch SideConvention(strings.ToLower(strings.TrimSpace(s))) {
	case MakerPerspective, "":
		return MakerPerspective, nil
	case TakerPerspective:
		return TakerPerspective, nil
	default:
		return "", fmt.Errorf("invalid side convention: %q", s)
	}
}

// Layout locates the fill fields inside DecodedEvent.Args.
type Layout struct {
	MakerAssetID int
	TakerAssetID int
	MakerAmount  int
	TakerAmount  int
}

// layoutFor picks field offsets by event name and argument count.
func layoutFor(name string, argCount int) (Layout, bool) {
	switch {
	case name == EventOrderFilled && (argCount == 7 || argCount == 8):
		return Layout{MakerAssetID: 3, TakerAssetID: 4, MakerAmount: 5, TakerAmount: 6}, true
	case name == EventOrderFilled && argCount == 9:
		// leading context field shifts everything by one
		return Layout{MakerAssetID: 4, TakerAssetID: 5, MakerAmount: 6, TakerAmount: 7}, true
	case name == EventOrdersMatched && (argCount == 9 || argCount == 10):
		return Layout{MakerAssetID: 3, TakerAssetID: 4, MakerAmount: 5, TakerAmount: 6}, true
	default:
		return Layout{}, false
	}
}

// Fill holds the raw asset ids and amounts of a decoded fill.
type Fill struct {
	MakerAssetID *big.Int
	TakerAssetID *big.Int
	MakerAmount  *big.Int
	TakerAmount  *big.Int
}

// ExtractFill reads the fill fields using the layout of the decoded variant.
func ExtractFill(ev DecodedEvent) (Fill, error) {
	if ev.ArgCount != len(ev.Args) {
		return Fill{}, fmt.Errorf("arg count %d does not match %d args", ev.ArgCount, len(ev.Args))
	}
	layout, ok := layoutFor(ev.EventName, ev.ArgCount)
	if !ok {
		return Fill{}, fmt.Errorf("no layout for %s with %d args", ev.EventName, ev.ArgCount)
	}

	var fill Fill
	fields := []struct {
		idx  int
		dst  **big.Int
		name string
	}{
		{layout.MakerAssetID, &fill.MakerAssetID, "makerAssetId"},
		{layout.TakerAssetID, &fill.TakerAssetID, "takerAssetId"},
		{layout.MakerAmount, &fill.MakerAmount, "makerAmountFilled"},
		{layout.TakerAmount, &fill.TakerAmount, "takerAmountFilled"},
	}
	for _, f := range fields {
		v, err := asBigInt(ev.Args[f.idx])
		if err != nil {
			return Fill{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return fill, nil
}

// NormalizerConfig controls classification and sanity bounds.
type NormalizerConfig struct {
	CollateralDecimals uint8
	TokenDecimals      uint8
	MinPrice           float64
	MaxPrice           float64
	Convention         SideConvention
}

// DefaultNormalizerConfig matches the 6-decimal USDC / outcome-token deployment.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		CollateralDecimals: 6,
		TokenDecimals:      6,
		MinPrice:           0.001,
		MaxPrice:           1.5,
		Convention:         MakerPerspective,
	}
}

// Normalizer turns decoded fills into trades.
type Normalizer struct {
	cfg             NormalizerConfig
	collateralScale *big.Int
	tokenScale      *big.Int
}

// NewNormalizer validates cfg and builds a Normalizer.
func NewNormalizer(cfg NormalizerConfig) (*Normalizer, error) {
	if cfg.MinPrice < 0 || cfg.MaxPrice <= cfg.MinPrice {
		return nil, fmt.Errorf("invalid price bounds (%v, %v)", cfg.MinPrice, cfg.MaxPrice)
	}
	if cfg.Convention == "" {
		cfg.Convention = MakerPerspective
	}
	if cfg.Convention != MakerPerspective && cfg.Convention != TakerPerspective {
		return nil, fmt.Errorf("invalid side convention: %q", cfg.Convention)
	}
	return &Normalizer{
		cfg:             cfg,
		collateralScale: pow10(cfg.CollateralDecimals),
		tokenScale:      pow10(cfg.TokenDecimals),
	}, nil
}

// Quote is a classified fill that is not yet bound to a market.
type Quote struct {
	AssetID string
	Side    model.Side
	Price   float64
	Size    float64
}

// Quote classifies a decoded fill. Fills that are not collateral-for-outcome
// trades return ErrNotTrade.
func (n *Normalizer) Quote(ev DecodedEvent) (Quote, error) {
	fill, err := ExtractFill(ev)
	if err != nil {
		return Quote{}, err
	}

	makerZero := fill.MakerAssetID.Sign() == 0
	takerZero := fill.TakerAssetID.Sign() == 0

	var assetID, collateral, tokens *big.Int
	var side model.Side
	switch {
	case makerZero && takerZero:
		return Quote{}, fmt.Errorf("%w: both asset ids are collateral", ErrNotTrade)
	case !makerZero && !takerZero:
		return Quote{}, fmt.Errorf("%w: no collateral leg", ErrNotTrade)
	case makerZero:
		assetID, collateral, tokens = fill.TakerAssetID, fill.MakerAmount, fill.TakerAmount
		side = n.sideWhenMakerPaysCollateral()
	default:
		assetID, collateral, tokens = fill.MakerAssetID, fill.TakerAmount, fill.MakerAmount
		side = opposite(n.sideWhenMakerPaysCollateral())
	}

	if tokens.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: zero token amount", ErrNotTrade)
	}

	price, size := n.priceAndSize(collateral, tokens)
	if price <= n.cfg.MinPrice || price >= n.cfg.MaxPrice {
		return Quote{}, fmt.Errorf("%w: price %v outside (%v, %v)", ErrNotTrade, price, n.cfg.MinPrice, n.cfg.MaxPrice)
	}

	return Quote{AssetID: NormalizeAssetID(assetID), Side: side, Price: price, Size: size}, nil
}

// Normalize classifies a decoded fill for market and stamps it with blockTimestamp.
func (n *Normalizer) Normalize(ev DecodedEvent, log model.RawLog, blockTimestamp uint64, market model.Market) (model.Trade, error) {
	q, err := n.Quote(ev)
	if err != nil {
		return model.Trade{}, err
	}

	outcome := model.OutcomeNo
	if yes, err := NormalizeTokenID(market.YesTokenID); err == nil && yes == q.AssetID {
		outcome = model.OutcomeYes
	}

	return model.Trade{
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		LogIndex:    uint64(log.LogIndex),
		MarketID:    market.ID,
		Outcome:     outcome,
		Side:        q.Side,
		Price:       q.Price,
		Size:        q.Size,
		Timestamp:   blockTimestamp,
		AssetID:     q.AssetID,
		BlockNumber: log.BlockNumber,
	}, nil
}

func (n *Normalizer) sideWhenMakerPaysCollateral() model.Side {
	if n.cfg.Convention == TakerPerspective {
		return model.SideSell
	}
	return model.SideBuy
}

func (n *Normalizer) priceAndSize(collateral, tokens *big.Int) (float64, float64) {
	collateralUnits := new(big.Rat).SetFrac(collateral, n.collateralScale)
	tokenUnits := new(big.Rat).SetFrac(tokens, n.tokenScale)

	price, _ := new(big.Rat).Quo(collateralUnits, tokenUnits).Float64()
	size, _ := tokenUnits.Float64()
	return price, size
}

func opposite(side model.Side) model.Side {
	if side == model.SideBuy {
		return model.SideSell
	}
	return model.SideBuy
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// NormalizeAssetID renders an asset id as lower-case, 0x-prefixed, 32-byte hex.
func NormalizeAssetID(id *big.Int) string {
	return strings.ToLower(common.BigToHash(id).Hex())
}

// NormalizeTokenID accepts a token id as decimal or 0x hex and returns the
// NormalizeAssetID form.
func NormalizeTokenID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty token id")
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return "", fmt.Errorf("invalid token id %q", s)
	}
	if v.Sign() < 0 || v.BitLen() > 256 {
		return "", fmt.Errorf("token id %q out of uint256 range", s)
	}
	return NormalizeAssetID(v), nil
}
