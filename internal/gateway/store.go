// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package gateway

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/shopwire/shopwire/internal/config"
	"github.com/shopwire/shopwire/internal/logging"
	"github.com/shopwire/shopwire/internal/metrics"
	"github.com/shopwire/shopwire/internal/protocol"
)

// Log is the per-channel append-only message log. Append is idempotent
// against stale sequence numbers: a message at or below the channel
// watermark is reported as not appended, never duplicated.
type Log interface {
	// Append stores m under its channel and seq. Returns false when the
	// seq does not advance the channel watermark.
	Append(m *protocol.Message) (bool, error)

	// Replay returns messages with seq > since for the channel, in seq
	// order, capped by retention.
	Replay(channelID string, since int64) ([]*protocol.Message, error)

	// Watermark returns the highest stored seq for the channel, 0 when
	// the channel has no messages.
	Watermark(channelID string) (int64, error)

	Close() error
}

// NewLog selects the log backend: BadgerDB when a path is configured,
// in-memory otherwise (tests, ephemeral deployments).
func NewLog(cfg config.StoreConfig) (Log, error) {
	if cfg.Path == "" {
		logging.Info().Msg("no store path configured, using in-memory channel log")
		return newMemoryLog(cfg.RetentionPerChannel), nil
	}
	return openBadgerLog(cfg)
}

// Key layout: msg/<channelID>/<seq big-endian>. Big-endian sequence
// numbers keep Badger's lexicographic iteration in seq order.
func messageKey(channelID string, seq int64) []byte {
	key := make([]byte, 0, 4+len(channelID)+1+8)
	key = append(key, "msg/"...)
	key = append(key, channelID...)
	key = append(key, '/')
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seq))
	return append(key, buf[:]...)
}

func channelPrefix(channelID string) []byte {
	return []byte("msg/" + channelID + "/")
}

// badgerLog persists the channel log in BadgerDB. Watermarks and entry
// counts are cached in memory after first touch; Badger remains the
// source of truth across restarts.
type badgerLog struct {
	db        *badger.DB
	retention int

	mu     sync.Mutex
	counts map[string]int
	marks  map[string]int64
}

func openBadgerLog(cfg config.StoreConfig) (*badgerLog, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil // badger's own logger is too chatty; failures surface as errors

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening channel log at %s: %w", cfg.Path, err)
	}
	logging.Info().Str("path", cfg.Path).Int("retention", cfg.RetentionPerChannel).Msg("channel log opened")
	return &badgerLog{
		db:        db,
		retention: cfg.RetentionPerChannel,
		counts:    make(map[string]int),
		marks:     make(map[string]int64),
	}, nil
}

func (l *badgerLog) Append(m *protocol.Message) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mark, err := l.watermarkLocked(m.ChannelID)
	if err != nil {
		return false, err
	}
	if m.Seq <= mark {
		return false, nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("encoding message for log: %w", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(m.ChannelID, m.Seq), data)
	})
	if err != nil {
		return false, fmt.Errorf("appending to channel log: %w", err)
	}

	l.marks[m.ChannelID] = m.Seq
	l.counts[m.ChannelID]++
	metrics.GatewayStoreAppends.Inc()

	if over := l.counts[m.ChannelID] - l.retention; over > 0 {
		if err := l.sweepLocked(m.ChannelID, over); err != nil {
			logging.Warn().Err(err).Str("channel", m.ChannelID).Msg("retention sweep failed")
		}
	}
	return true, nil
}

func (l *badgerLog) Replay(channelID string, since int64) ([]*protocol.Message, error) {
	var out []*protocol.Message
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: channelPrefix(channelID)})
		defer it.Close()

		for it.Seek(messageKey(channelID, since+1)); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var m protocol.Message
				if err := json.Unmarshal(val, &m); err != nil {
					return fmt.Errorf("decoding logged message: %w", err)
				}
				out = append(out, &m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.GatewayStoreReplays.Inc()
	return out, nil
}

func (l *badgerLog) Watermark(channelID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.watermarkLocked(channelID)
}

// watermarkLocked loads the channel watermark and entry count from Badger
// on first touch and serves the cache afterwards.
func (l *badgerLog) watermarkLocked(channelID string) (int64, error) {
	if mark, ok := l.marks[channelID]; ok {
		return mark, nil
	}

	var mark int64
	var count int
	prefix := channelPrefix(channelID)
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) >= 8 {
				mark = int64(binary.BigEndian.Uint64(key[len(key)-8:])) //nolint:gosec // seqs never exceed int64
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning channel log: %w", err)
	}
	l.marks[channelID] = mark
	l.counts[channelID] = count
	return mark, nil
}

// sweepLocked deletes the n oldest entries for the channel.
func (l *badgerLog) sweepLocked(channelID string, n int) error {
	var victims [][]byte
	prefix := channelPrefix(channelID)
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid() && len(victims) < n; it.Next() {
			victims = append(victims, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		for _, key := range victims {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.counts[channelID] -= len(victims)
	return nil
}

func (l *badgerLog) Close() error {
	return l.db.Close()
}

// memoryLog is the path-less backend: same semantics, no durability.
type memoryLog struct {
	mu        sync.Mutex
	retention int
	channels  map[string][]*protocol.Message
}

func newMemoryLog(retention int) *memoryLog {
	return &memoryLog{retention: retention, channels: make(map[string][]*protocol.Message)}
}

func (l *memoryLog) Append(m *protocol.Message) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msgs := l.channels[m.ChannelID]
	if n := len(msgs); n > 0 && m.Seq <= msgs[n-1].Seq {
		return false, nil
	}
	msgs = append(msgs, m)
	if len(msgs) > l.retention {
		msgs = msgs[len(msgs)-l.retention:]
	}
	l.channels[m.ChannelID] = msgs
	metrics.GatewayStoreAppends.Inc()
	return true, nil
}

func (l *memoryLog) Replay(channelID string, since int64) ([]*protocol.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msgs := l.channels[channelID]
	idx := sort.Search(len(msgs), func(i int) bool { return msgs[i].Seq > since })
	out := make([]*protocol.Message, len(msgs)-idx)
	copy(out, msgs[idx:])
	metrics.GatewayStoreReplays.Inc()
	return out, nil
}

func (l *memoryLog) Watermark(channelID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := l.channels[channelID]
	if len(msgs) == 0 {
		return 0, nil
	}
	return msgs[len(msgs)-1].Seq, nil
}

func (l *memoryLog) Close() error { return nil }
