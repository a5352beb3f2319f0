package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hyeon-dev/guildmarket/internal/domain"
	"github.com/hyeon-dev/guildmarket/internal/market"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func utcCalendar() *market.Calendar {
	cal, err := market.NewCalendar("UTC", "09:00", "21:00")
	if err != nil {
		panic(err)
	}
	return cal
}

func openClock() time.Time {
	return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
}

func closedClock() time.Time {
	return time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
}

// ---------------------------------------------------------------------------
// memBank backs the ledger, holding, settlement, and auction fakes with one
// shared in-memory balance/inventory state, so tests can assert conservation
// across components.
// ---------------------------------------------------------------------------

type memBank struct {
	start    int64
	balances map[string]int64
	holdings map[string]int64
}

func newBank(start int64) *memBank {
	return &memBank{start: start, balances: make(map[string]int64), holdings: make(map[string]int64)}
}

func balKey(guildID, userID int64) string { return fmt.Sprintf("%d|%d", guildID, userID) }

func holdKey(guildID, userID int64, item domain.ItemKey) string {
	return fmt.Sprintf("%d|%d|%s|%s", guildID, userID, item.Emoji, item.Name)
}

func (b *memBank) balance(guildID, userID int64) int64 {
	key := balKey(guildID, userID)
	if _, ok := b.balances[key]; !ok {
		b.balances[key] = b.start
	}
	return b.balances[key]
}

func (b *memBank) credit(guildID, userID, amount int64) int64 {
	key := balKey(guildID, userID)
	b.balances[key] = b.balance(guildID, userID) + amount
	return b.balances[key]
}

func (b *memBank) debit(guildID, userID, amount int64) (int64, error) {
	if b.balance(guildID, userID) < amount {
		return 0, domain.ErrInsufficientFunds
	}
	key := balKey(guildID, userID)
	b.balances[key] -= amount
	return b.balances[key], nil
}

func (b *memBank) holding(guildID, userID int64, item domain.ItemKey) int64 {
	return b.holdings[holdKey(guildID, userID, item)]
}

func (b *memBank) grant(guildID, userID int64, item domain.ItemKey, qty int64) int64 {
	key := holdKey(guildID, userID, item)
	b.holdings[key] += qty
	return b.holdings[key]
}

func (b *memBank) discard(guildID, userID int64, item domain.ItemKey, qty int64) (int64, error) {
	key := holdKey(guildID, userID, item)
	if b.holdings[key] < qty {
		return 0, domain.ErrInsufficientHolding
	}
	b.holdings[key] -= qty
	if b.holdings[key] == 0 {
		delete(b.holdings, key)
	}
	return b.holdings[key], nil
}

// ---------------------------------------------------------------------------
// Store fakes.
// ---------------------------------------------------------------------------

type fakeLedgerStore struct{ bank *memBank }

func (s *fakeLedgerStore) Balance(_ context.Context, guildID, userID int64) (int64, error) {
	return s.bank.balance(guildID, userID), nil
}

func (s *fakeLedgerStore) Transfer(_ context.Context, guildID, from, to, amount int64) (int64, int64, error) {
	if amount <= 0 {
		return 0, 0, domain.ErrInvalidAmount
	}
	if from == to {
		return 0, 0, domain.ErrSelfTransfer
	}
	fromBal, err := s.bank.debit(guildID, from, amount)
	if err != nil {
		return 0, 0, err
	}
	toBal := s.bank.credit(guildID, to, amount)
	return fromBal, toBal, nil
}

func (s *fakeLedgerStore) TopBalances(_ context.Context, guildID int64, limit int) ([]domain.BalanceEntry, error) {
	var entries []domain.BalanceEntry
	prefix := fmt.Sprintf("%d|", guildID)
	for key, bal := range s.bank.balances {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		var g, u int64
		fmt.Sscanf(key, "%d|%d", &g, &u)
		entries = append(entries, domain.BalanceEntry{UserID: u, Balance: bal})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Balance > entries[j].Balance })
	for i := range entries {
		entries[i].Rank = i + 1
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *fakeLedgerStore) Rank(ctx context.Context, guildID, userID int64) (int, error) {
	entries, _ := s.TopBalances(ctx, guildID, 1<<30)
	for _, e := range entries {
		if e.UserID == userID {
			return e.Rank, nil
		}
	}
	return 0, domain.ErrNotFound
}

type fakeHoldingStore struct{ bank *memBank }

func (s *fakeHoldingStore) Get(_ context.Context, guildID, userID int64, item domain.ItemKey) (int64, error) {
	return s.bank.holding(guildID, userID, item), nil
}

func (s *fakeHoldingStore) Grant(_ context.Context, guildID, userID int64, item domain.ItemKey, qty int64) (int64, error) {
	return s.bank.grant(guildID, userID, item, qty), nil
}

func (s *fakeHoldingStore) Discard(_ context.Context, guildID, userID int64, item domain.ItemKey, qty int64) (int64, error) {
	return s.bank.discard(guildID, userID, item, qty)
}

func (s *fakeHoldingStore) List(_ context.Context, guildID, userID int64) ([]domain.Holding, error) {
	var out []domain.Holding
	prefix := fmt.Sprintf("%d|%d|", guildID, userID)
	for key, qty := range s.bank.holdings {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		parts := strings.SplitN(key, "|", 4)
		out = append(out, domain.Holding{
			GuildID: guildID, UserID: userID,
			Item: domain.ItemKey{Emoji: parts[2], Name: parts[3]}, Quantity: qty,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item.Name < out[j].Item.Name })
	return out, nil
}

func (s *fakeHoldingStore) Search(ctx context.Context, guildID, userID int64, query string) ([]domain.Holding, error) {
	all, _ := s.List(ctx, guildID, userID)
	var out []domain.Holding
	for _, h := range all {
		if strings.Contains(h.Item.Name, query) || strings.Contains(h.Item.Emoji, query) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *fakeHoldingStore) TransferItem(_ context.Context, guildID, from, to int64, item domain.ItemKey, qty int64) error {
	if _, err := s.bank.discard(guildID, from, item, qty); err != nil {
		return err
	}
	s.bank.grant(guildID, to, item, qty)
	return nil
}

type fakeSettlementStore struct {
	bank   *memBank
	trades []domain.Trade
	nextID int64
}

func (s *fakeSettlementStore) Settle(_ context.Context, trade domain.Trade) (domain.Trade, error) {
	item, err := trade.Symbol.Item()
	if err != nil {
		return domain.Trade{}, err
	}
	switch trade.Side {
	case domain.OrderSideBuy:
		if _, err := s.bank.debit(trade.GuildID, trade.UserID, trade.Notional); err != nil {
			return domain.Trade{}, err
		}
		s.bank.grant(trade.GuildID, trade.UserID, item, trade.Quantity)
	case domain.OrderSideSell:
		if _, err := s.bank.discard(trade.GuildID, trade.UserID, item, trade.Quantity); err != nil {
			return domain.Trade{}, err
		}
		s.bank.credit(trade.GuildID, trade.UserID, trade.Notional)
	}
	s.nextID++
	trade.ID = s.nextID
	s.trades = append(s.trades, trade)
	return trade, nil
}

type fakeTradeStore struct{ settle *fakeSettlementStore }

func (s *fakeTradeStore) ListByUser(_ context.Context, guildID, userID int64, limit int) ([]domain.Trade, error) {
	var out []domain.Trade
	for i := len(s.settle.trades) - 1; i >= 0 && len(out) < limit; i-- {
		t := s.settle.trades[i]
		if t.GuildID == guildID && t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeOrderStore struct {
	orders map[int64]domain.Order
	nextID int64
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[int64]domain.Order)}
}

func (s *fakeOrderStore) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	s.nextID++
	order.ID = s.nextID
	s.orders[order.ID] = order
	return order, nil
}

func (s *fakeOrderStore) GetByID(_ context.Context, guildID, id int64) (domain.Order, error) {
	o, ok := s.orders[id]
	if !ok || o.GuildID != guildID {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *fakeOrderStore) ListOpen(_ context.Context, guildID int64) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range s.orders {
		if o.GuildID == guildID && o.IsOpen() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeOrderStore) ListOpenByUser(ctx context.Context, guildID, userID int64) ([]domain.Order, error) {
	all, _ := s.ListOpen(ctx, guildID)
	var out []domain.Order
	for _, o := range all {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeOrderStore) MarkFilled(_ context.Context, guildID, id int64, price float64, at time.Time) error {
	o, ok := s.orders[id]
	if !ok || o.GuildID != guildID {
		return domain.ErrNotFound
	}
	if !o.IsOpen() {
		return domain.ErrOrderNotOpen
	}
	o.State = domain.OrderFilled{Price: price, FilledAt: at}
	s.orders[id] = o
	return nil
}

func (s *fakeOrderStore) Cancel(_ context.Context, guildID, id, userID int64, at time.Time) error {
	o, ok := s.orders[id]
	if !ok || o.GuildID != guildID || o.UserID != userID {
		return domain.ErrNotFound
	}
	if !o.IsOpen() {
		return domain.ErrOrderNotOpen
	}
	o.State = domain.OrderCancelled{CancelledAt: at}
	s.orders[id] = o
	return nil
}

type fakeAuctionStore struct {
	bank     *memBank
	auctions map[int64]domain.Auction
	bids     map[int64][]domain.Bid
	nextID   int64
}

func newFakeAuctionStore(bank *memBank) *fakeAuctionStore {
	return &fakeAuctionStore{
		bank:     bank,
		auctions: make(map[int64]domain.Auction),
		bids:     make(map[int64][]domain.Bid),
	}
}

func (s *fakeAuctionStore) Create(_ context.Context, a domain.Auction) (domain.Auction, error) {
	if _, err := s.bank.discard(a.GuildID, a.SellerID, a.Item, a.Quantity); err != nil {
		return domain.Auction{}, err
	}
	s.nextID++
	a.ID = s.nextID
	s.auctions[a.ID] = a
	return a, nil
}

func (s *fakeAuctionStore) GetByID(_ context.Context, guildID, id int64) (domain.Auction, error) {
	a, ok := s.auctions[id]
	if !ok || a.GuildID != guildID {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *fakeAuctionStore) ListOpen(_ context.Context, guildID int64, query string, limit int) ([]domain.Auction, error) {
	var out []domain.Auction
	for _, a := range s.auctions {
		if a.GuildID == guildID && a.IsOpen() && strings.Contains(a.Item.Name, query) && len(out) < limit {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeAuctionStore) CountOpen(_ context.Context, guildID int64) (int64, error) {
	var n int64
	for _, a := range s.auctions {
		if a.GuildID == guildID && a.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (s *fakeAuctionStore) Bids(_ context.Context, auctionID int64) ([]domain.Bid, error) {
	return s.bids[auctionID], nil
}

func (s *fakeAuctionStore) PlaceBid(_ context.Context, guildID, auctionID, bidderID, amount int64) (domain.Auction, error) {
	a, ok := s.auctions[auctionID]
	if !ok || a.GuildID != guildID {
		return domain.Auction{}, domain.ErrNotFound
	}
	if !a.IsOpen() {
		return domain.Auction{}, domain.ErrAuctionClosed
	}
	if a.SellerID == bidderID {
		return domain.Auction{}, domain.ErrSelfBid
	}
	if amount <= a.MinNextBid() {
		return domain.Auction{}, domain.ErrBidTooLow
	}
	if _, err := s.bank.debit(guildID, bidderID, amount); err != nil {
		return domain.Auction{}, err
	}
	if a.BidderID != nil {
		s.bank.credit(guildID, *a.BidderID, *a.BidPrice)
	}
	a.BidPrice = &amount
	a.BidderID = &bidderID
	s.auctions[auctionID] = a
	s.bids[auctionID] = append(s.bids[auctionID], domain.Bid{
		ID: int64(len(s.bids[auctionID]) + 1), AuctionID: auctionID, BidderID: bidderID, Amount: amount,
	})
	return a, nil
}

func (s *fakeAuctionStore) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Auction, error) {
	var out []domain.Auction
	for _, a := range s.auctions {
		if a.IsOpen() && !a.ExpiresAt.After(now) && len(out) < limit {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeAuctionStore) Finalize(_ context.Context, auctionID int64, _ time.Time) (domain.Auction, error) {
	a, ok := s.auctions[auctionID]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	if !a.IsOpen() {
		return a, domain.ErrAuctionClosed
	}
	if a.BidderID == nil {
		s.bank.grant(a.GuildID, a.SellerID, a.Item, a.Quantity)
		a.State = domain.AuctionClosedUnsold{}
	} else {
		s.bank.grant(a.GuildID, *a.BidderID, a.Item, a.Quantity)
		s.bank.credit(a.GuildID, a.SellerID, *a.BidPrice)
		a.State = domain.AuctionClosedSold{WinnerID: *a.BidderID, Price: *a.BidPrice}
	}
	s.auctions[auctionID] = a
	return a, nil
}

func (s *fakeAuctionStore) Discard(_ context.Context, auctionID int64) error {
	a, ok := s.auctions[auctionID]
	if !ok {
		return domain.ErrNotFound
	}
	if !a.IsOpen() {
		return domain.ErrAuctionClosed
	}
	a.State = domain.AuctionClosedUnsold{}
	s.auctions[auctionID] = a
	return nil
}

type fakeRoster struct{ members map[string]bool }

func (r *fakeRoster) IsMember(_ context.Context, guildID, userID int64) (bool, error) {
	return r.members[fmt.Sprintf("%d|%d", guildID, userID)], nil
}

// fakePrices returns fixed per-symbol prices, overridable between calls.
type fakePrices struct {
	prices map[domain.Symbol]float64
	err    error
}

func (p *fakePrices) Price(_ context.Context, _ int64, sym domain.Symbol, _ time.Time) (float64, error) {
	if p.err != nil {
		return 0, p.err
	}
	price, ok := p.prices[sym]
	if !ok {
		return 0, domain.ErrUnknownSymbol
	}
	return price, nil
}
