// Package domain defines the core types and interfaces of the guild activity
// market: accounts, holdings, activity indices, instruments, orders, trades,
// and auctions, plus the store and cache contracts their implementations
// satisfy.
package domain

import "strings"

// Category identifies one of the three activity signals an index is built on.
type Category string

const (
	CategoryChat  Category = "chat"
	CategoryVoice Category = "voice"
	CategoryReact Category = "react"
)

// Categories lists all index categories in canonical order.
var Categories = []Category{CategoryChat, CategoryVoice, CategoryReact}

// Symbol identifies a tradable instrument.
type Symbol string

const (
	SymbolChatIndex  Symbol = "IDX_CHAT"
	SymbolVoiceIndex Symbol = "IDX_VOICE"
	SymbolReactIndex Symbol = "IDX_REACT"
	SymbolComposite  Symbol = "ETF_ALL"
)

// InstrumentKind distinguishes single-category indices from the composite ETF.
type InstrumentKind string

const (
	KindIndex InstrumentKind = "INDEX"
	KindETF   InstrumentKind = "ETF"
)

// Instrument describes one entry of the fixed tradable catalog.
type Instrument struct {
	Symbol   Symbol
	Name     string
	Kind     InstrumentKind
	Category Category // empty for the composite
}

// Instruments is the fixed instrument catalog. It is seeded into the database
// at startup and never mutated at runtime.
var Instruments = []Instrument{
	{Symbol: SymbolChatIndex, Name: "Chat Index", Kind: KindIndex, Category: CategoryChat},
	{Symbol: SymbolVoiceIndex, Name: "Voice Index", Kind: KindIndex, Category: CategoryVoice},
	{Symbol: SymbolReactIndex, Name: "Reaction Index", Kind: KindIndex, Category: CategoryReact},
	{Symbol: SymbolComposite, Name: "Composite ETF", Kind: KindETF},
}

// instrumentItems maps each symbol to the inventory item that represents a
// position in it.
var instrumentItems = map[Symbol]ItemKey{
	SymbolChatIndex:  {Emoji: "📈", Name: string(SymbolChatIndex)},
	SymbolVoiceIndex: {Emoji: "🗣️", Name: string(SymbolVoiceIndex)},
	SymbolReactIndex: {Emoji: "✨", Name: string(SymbolReactIndex)},
	SymbolComposite:  {Emoji: "📊", Name: string(SymbolComposite)},
}

// NormalizeSymbol resolves user-facing spellings (case-insensitive, legacy
// ETF_CHAT style aliases) to a catalog symbol. It returns ErrUnknownSymbol
// for anything outside the catalog.
func NormalizeSymbol(raw string) (Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "ETF_CHAT", "ETF_VOICE", "ETF_REACT":
		s = strings.Replace(s, "ETF_", "IDX_", 1)
	case "IDX_ALL":
		s = string(SymbolComposite)
	}
	sym := Symbol(s)
	if _, ok := instrumentItems[sym]; !ok {
		return "", ErrUnknownSymbol
	}
	return sym, nil
}

// Item returns the inventory item key that represents a position in the
// symbol's instrument.
func (s Symbol) Item() (ItemKey, error) {
	item, ok := instrumentItems[s]
	if !ok {
		return ItemKey{}, ErrUnknownSymbol
	}
	return item, nil
}

// IsInstrumentItem reports whether the item name belongs to the instrument
// catalog (such holdings are market positions rather than collectibles).
func IsInstrumentItem(name string) bool {
	_, ok := instrumentItems[Symbol(name)]
	return ok
}
