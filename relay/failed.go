// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"encoding/binary"
	"errors"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
)

var (
	ErrNoFailedMessage = errors.New("no failed message stored")
	ErrPayloadMismatch = errors.New("payload does not match stored hash")
)

// MessageFailedEvent announces an inbound message whose handling failed and
// was buffered for retry.
type MessageFailedEvent struct {
	SrcDomain  uint32
	SrcAddress common.Address
	Nonce      uint64
	Hash       common.Hash
	Reason     string
}

func (MessageFailedEvent) Name() string { return "MessageFailed" }

// RetrySucceededEvent announces a buffered message cleared by a successful
// manual retry.
type RetrySucceededEvent struct {
	SrcDomain  uint32
	SrcAddress common.Address
	Nonce      uint64
	Hash       common.Hash
}

func (RetrySucceededEvent) Name() string { return "RetrySuccess" }

// FailedStore buffers the hash of inbound messages whose application-level
// handling failed after the transport acknowledged receipt. The message is
// not lost: anyone can later call the owning component's retry entry point
// with the identical payload. Each stored hash is consumed exactly once:
// it is cleared before re-execution, so a second concurrent retry finds
// nothing to match.
//
// Hashes are durable: a restart must not forget a failure.
type FailedStore struct {
	db     database.Database
	prefix []byte
}

func NewFailedStore(db database.Database, prefix []byte) *FailedStore {
	return &FailedStore{db: db, prefix: prefix}
}

// Record stores the payload hash for (srcDomain, srcAddress, nonce).
func (s *FailedStore) Record(src uint32, srcAddr common.Address, nonce uint64, payload []byte) error {
	hash := PayloadHash(payload)
	return s.db.Put(s.key(src, srcAddr, nonce), hash[:])
}

// Hash returns the stored hash, or ErrNoFailedMessage.
func (s *FailedStore) Hash(src uint32, srcAddr common.Address, nonce uint64) (common.Hash, error) {
	raw, err := s.db.Get(s.key(src, srcAddr, nonce))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return common.Hash{}, ErrNoFailedMessage
		}
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}

// Consume verifies payload against the stored hash and clears the entry.
// Clearing happens before the caller re-executes, which is what makes retry
// single-shot.
func (s *FailedStore) Consume(src uint32, srcAddr common.Address, nonce uint64, payload []byte) error {
	stored, err := s.Hash(src, srcAddr, nonce)
	if err != nil {
		return err
	}
	if stored != PayloadHash(payload) {
		return ErrPayloadMismatch
	}
	return s.db.Delete(s.key(src, srcAddr, nonce))
}

func (s *FailedStore) key(src uint32, srcAddr common.Address, nonce uint64) []byte {
	key := make([]byte, 0, len(s.prefix)+4+20+8)
	key = append(key, s.prefix...)
	key = binary.BigEndian.AppendUint32(key, src)
	key = append(key, srcAddr.Bytes()...)
	key = binary.BigEndian.AppendUint64(key, nonce)
	return key
}
