package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/ledgerdex/pkg/dex/engine"
)

// PebbleStore journals engine change sets and loads them back on startup.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// Commit writes one change set atomically.
func (s *PebbleStore) Commit(cs *engine.ChangeSet) error {
	bw := s.NewBatch()
	defer bw.Close()

	for _, a := range cs.Assets {
		val, err := encodeAsset(a)
		if err != nil {
			return fmt.Errorf("encode asset %s: %w", a.Ticker, err)
		}
		if err := bw.batch.Set(assetKey(a.Ticker), val, nil); err != nil {
			return err
		}
	}
	for _, e := range cs.Balances {
		val, err := encodeBalance(e)
		if err != nil {
			return fmt.Errorf("encode balance: %w", err)
		}
		if err := bw.batch.Set(balanceKey(e.Account, e.Ticker), val, nil); err != nil {
			return err
		}
	}
	for i := range cs.Orders {
		o := &cs.Orders[i]
		val, err := encodeOrder(o)
		if err != nil {
			return fmt.Errorf("encode order %d: %w", o.ID, err)
		}
		if err := bw.batch.Set(orderKey(o.Ticker, o.Side, o.ID), val, nil); err != nil {
			return err
		}
	}
	for _, o := range cs.RemovedOrders {
		if err := bw.batch.Delete(orderKey(o.Ticker, o.Side, o.ID), nil); err != nil {
			return err
		}
	}
	for i := range cs.Trades {
		t := &cs.Trades[i]
		val, err := encodeTrade(t)
		if err != nil {
			return fmt.Errorf("encode trade %d: %w", t.ID, err)
		}
		if err := bw.batch.Set(tradeKey(t.Ticker, t.ID), val, nil); err != nil {
			return err
		}
	}
	if err := bw.batch.Set([]byte(keyNextOrderID), encodeUint64(cs.NextOrderID), nil); err != nil {
		return err
	}
	if err := bw.batch.Set([]byte(keyNextTradeID), encodeUint64(cs.NextTradeID), nil); err != nil {
		return err
	}
	return bw.Commit()
}

// Load reads the full engine image. Only the most recent tradeHistory trades per ticker
// are loaded.
func (s *PebbleStore) Load(tradeHistory int) (*engine.State, error) {
	st := &engine.State{}

	err := s.scan([]byte(prefixAsset), func(val []byte) error {
		a, err := decodeAsset(val)
		if err != nil {
			return err
		}
		st.Assets = append(st.Assets, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}

	err = s.scan([]byte(prefixBalance), func(val []byte) error {
		e, err := decodeBalance(val)
		if err != nil {
			return err
		}
		st.Balances = append(st.Balances, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}

	err = s.scan([]byte(prefixOrder), func(val []byte) error {
		o, err := decodeOrder(val)
		if err != nil {
			return err
		}
		st.Orders = append(st.Orders, o)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	for _, a := range st.Assets {
		trades, err := s.LoadRecentTrades(a.Ticker, tradeHistory)
		if err != nil {
			return nil, err
		}
		// oldest first
		for i := len(trades) - 1; i >= 0; i-- {
			st.Trades = append(st.Trades, trades[i])
		}
	}

	if st.NextOrderID, err = s.counter(keyNextOrderID); err != nil {
		return nil, err
	}
	if st.NextTradeID, err = s.counter(keyNextTradeID); err != nil {
		return nil, err
	}
	return st, nil
}

// LoadRecentTrades loads the most recent N trades for a ticker, newest first
func (s *PebbleStore) LoadRecentTrades(ticker string, limit int) ([]engine.Trade, error) {
	prefix := tradePrefix(ticker)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open trade iterator: %w", err)
	}
	defer iter.Close()

	var trades []engine.Trade
	for iter.Last(); iter.Valid() && (limit <= 0 || len(trades) < limit); iter.Prev() {
		t, err := decodeTrade(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("failed to decode trade %s: %w", iter.Key(), err)
		}
		trades = append(trades, t)
	}
	return trades, iter.Error()
}

func (s *PebbleStore) scan(prefix []byte, fn func(val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return fmt.Errorf("key %s: %w", iter.Key(), err)
		}
	}
	return iter.Error()
}

func (s *PebbleStore) counter(key string) (uint64, error) {
	val, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()
	return decodeUint64(val)
}

// BatchWrite groups writes so they are applied atomically.
type BatchWrite struct {
	batch *pebble.Batch
}

func (s *PebbleStore) NewBatch() *BatchWrite {
	return &BatchWrite{batch: s.db.NewBatch()}
}

// Commit writes the batch to Pebble atomically
func (bw *BatchWrite) Commit() error {
	return bw.batch.Commit(pebble.Sync)
}

// Close releases the batch; closing after Commit is allowed.
func (bw *BatchWrite) Close() error {
	return bw.batch.Close()
}

var _ engine.Journal = (*PebbleStore)(nil)
