package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/ledgerdex/pkg/dex/ledger"
	"github.com/uhyunpark/ledgerdex/pkg/dex/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/events"
)

// CreateLimitOrder validates escrow and rests a new order on the book. Limit orders never
// cross on submission; they are only filled by incoming market orders.
func (ex *Exchange) CreateLimitOrder(trader common.Address, ticker string, amount, price *uint256.Int, side orderbook.Side) (uint64, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	book, err := ex.validateOrder(ticker, amount, side)
	if err != nil {
		return 0, ex.reject("limit_order", err)
	}
	if price == nil || price.IsZero() {
		return 0, ex.reject("limit_order", ErrInvalidPrice)
	}

	switch side {
	case orderbook.Sell:
		if !ex.ledger.Covers(trader, ticker, amount) {
			return 0, ex.reject("limit_order", fmt.Errorf("%w: %s", ErrInsufficientTokenBalance, ticker))
		}
	case orderbook.Buy:
		cost, overflow := new(uint256.Int).MulOverflow(amount, price)
		if overflow {
			return 0, ex.reject("limit_order", ErrNotionalOverflow)
		}
		quote := ex.registry.Quote().Ticker
		if !ex.ledger.Covers(trader, quote, cost) {
			return 0, ex.reject("limit_order", fmt.Errorf("%w: need %s %s", ErrInsufficientQuoteBalance, cost.Dec(), quote))
		}
	}

	o := &orderbook.Order{
		ID:        ex.nextOrderID,
		Ticker:    ticker,
		Side:      side,
		Trader:    trader,
		Price:     *price,
		Amount:    *amount,
		CreatedAt: ex.clock.Now().UnixMilli(),
	}
	if err := book.Insert(o); err != nil {
		// ids are allocated here only, so this is a bookkeeping bug
		return 0, fmt.Errorf("insert order %d: %w", o.ID, err)
	}
	ex.nextOrderID++

	ex.metrics.OrderAccepted("limit", side.String())
	ex.metrics.SetResting(ticker, side.String(), book.Len(side))
	ex.log.Info("limit_order_placed",
		zap.Uint64("id", o.ID),
		zap.String("ticker", ticker),
		zap.Stringer("side", side),
		zap.String("trader", trader.Hex()),
		zap.String("price", price.Dec()),
		zap.String("amount", amount.Dec()),
	)
	return o.ID, ex.commit(&ChangeSet{Orders: []orderbook.Order{*o}},
		ex.event(events.TypeOrderCreated, ticker, OrderView(o)))
}

// CreateMarketOrder sweeps the opposite side of the book best-first until amount is
// filled or the side is exhausted. The unfilled remainder is dropped.
//
// Every fill is checked before it is settled. When the taker cannot pay for the next fill
// the sweep stops: with no fill applied yet the insufficiency error is returned and nothing
// changes, otherwise the fills already applied stand and the result has Halted set. A
// resting order whose owner no longer holds what the fill needs is skipped and stays on
// the book.
func (ex *Exchange) CreateMarketOrder(trader common.Address, ticker string, amount *uint256.Int, side orderbook.Side) (*MarketResult, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	book, err := ex.validateOrder(ticker, amount, side)
	if err != nil {
		return nil, ex.reject("market_order", err)
	}
	if side == orderbook.Sell && !ex.ledger.Covers(trader, ticker, amount) {
		return nil, ex.reject("market_order", fmt.Errorf("%w: %s", ErrInsufficientTokenBalance, ticker))
	}

	quote := ex.registry.Quote().Ticker
	opp := side.Opposite()
	res := &MarketResult{Ticker: ticker, Side: side, Requested: *amount}
	remaining := amount.Clone()
	now := ex.clock.Now().UnixMilli()

	cs := &ChangeSet{}
	touched := make(map[ledger.Key]struct{})
	var (
		evs     []events.Event
		haltErr error
		prev    *orderbook.Order
	)

	for !remaining.IsZero() {
		top, ok := book.Next(opp, prev)
		if !ok {
			break
		}
		prev = top

		fillQty := top.Remaining()
		if remaining.Lt(fillQty) {
			fillQty = remaining.Clone()
		}
		cost, overflow := new(uint256.Int).MulOverflow(fillQty, &top.Price)
		if overflow {
			haltErr = ErrNotionalOverflow
			break
		}

		buyer, seller := trader, top.Trader
		if side == orderbook.Sell {
			buyer, seller = top.Trader, trader
		}

		// maker side
		makerFunded := ex.ledger.Covers(seller, ticker, fillQty)
		if side == orderbook.Sell {
			makerFunded = ex.ledger.Covers(buyer, quote, cost)
		}
		if !makerFunded {
			res.Skipped = append(res.Skipped, top.ID)
			ex.metrics.MakerSkipped(ticker)
			ex.log.Warn("unfunded_maker_skipped",
				zap.Uint64("order_id", top.ID),
				zap.String("ticker", ticker),
				zap.String("maker", top.Trader.Hex()),
			)
			continue
		}

		// taker side, only for an order that would otherwise fill
		if side == orderbook.Buy && !ex.ledger.Covers(trader, quote, cost) {
			haltErr = fmt.Errorf("%w: need %s %s", ErrInsufficientQuoteBalance, cost.Dec(), quote)
			break
		}
		if side == orderbook.Sell && !ex.ledger.Covers(trader, ticker, fillQty) {
			haltErr = fmt.Errorf("%w: %s", ErrInsufficientTokenBalance, ticker)
			break
		}

		if buyer != seller {
			if err := ex.ledger.CheckDeposit(seller, quote, cost); err != nil {
				haltErr = err
				break
			}
			if err := ex.ledger.CheckDeposit(buyer, ticker, fillQty); err != nil {
				haltErr = err
				break
			}
		}

		ex.ledger.Debit(buyer, quote, cost)
		ex.ledger.Credit(seller, quote, cost)
		ex.ledger.Debit(seller, ticker, fillQty)
		ex.ledger.Credit(buyer, ticker, fillQty)
		touched[ledger.Key{Account: buyer, Ticker: quote}] = struct{}{}
		touched[ledger.Key{Account: seller, Ticker: quote}] = struct{}{}
		touched[ledger.Key{Account: seller, Ticker: ticker}] = struct{}{}
		touched[ledger.Key{Account: buyer, Ticker: ticker}] = struct{}{}

		top.Filled.Add(&top.Filled, fillQty)
		remaining.Sub(remaining, fillQty)
		res.Filled.Add(&res.Filled, fillQty)

		t := Trade{
			ID:        ex.nextTradeID,
			OrderID:   top.ID,
			Ticker:    ticker,
			Side:      side,
			Taker:     trader,
			Maker:     top.Trader,
			Amount:    *fillQty,
			Price:     top.Price,
			Timestamp: now,
		}
		ex.nextTradeID++
		ex.recordTrade(t)
		res.Fills = append(res.Fills, t)
		cs.Trades = append(cs.Trades, t)

		if book.RemoveIfFilled(top) {
			cs.RemovedOrders = append(cs.RemovedOrders, *top)
		} else {
			cs.Orders = append(cs.Orders, *top)
		}
		evs = append(evs,
			ex.event(events.TypeTrade, ticker, TradeView(&t)),
			ex.event(events.TypeOrderFilled, ticker, OrderView(top)),
		)
	}

	if haltErr != nil && len(res.Fills) == 0 {
		return nil, ex.reject("market_order", haltErr)
	}
	res.Halted = haltErr != nil

	ex.metrics.OrderAccepted("market", side.String())
	ex.log.Info("market_order_executed",
		zap.String("ticker", ticker),
		zap.Stringer("side", side),
		zap.String("trader", trader.Hex()),
		zap.String("requested", amount.Dec()),
		zap.String("filled", res.Filled.Dec()),
		zap.Int("fills", len(res.Fills)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Bool("halted", res.Halted),
	)
	if res.Halted {
		ex.log.Info("market_order_halted", zap.String("ticker", ticker), zap.Error(haltErr))
	}
	if len(res.Fills) == 0 {
		return res, nil
	}

	ex.metrics.Filled(ticker, len(res.Fills))
	ex.metrics.SetResting(ticker, opp.String(), book.Len(opp))
	for k := range touched {
		cs.Balances = append(cs.Balances, ledger.Entry{Account: k.Account, Ticker: k.Ticker, Amount: ex.ledger.Balance(k.Account, k.Ticker)})
	}
	return res, ex.commit(cs, evs...)
}

// validateOrder checks the parts shared by both order kinds and returns the ticker's book.
func (ex *Exchange) validateOrder(ticker string, amount *uint256.Int, side orderbook.Side) (*orderbook.OrderBook, error) {
	book, err := ex.book(ticker)
	if err != nil {
		return nil, err
	}
	if !side.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, side)
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	return book, nil
}
