// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger stores cross-domain requests keyed by
// (domain, account, nonce). It is the single arbiter of request lifecycle:
// a request is Pending until exactly one of Complete or Cancel wins the
// compare-and-swap transition, and terminal states never change again.
//
// All state lives in a database.Database so request tables and nonce
// counters survive restarts; this is ledger data, not cache.
package ledger

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
)

// Status is the request lifecycle state.
type Status uint8

const (
	Pending Status = iota
	Completed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

var (
	ErrNotFound      = errors.New("request not found")
	ErrInvalidStatus = errors.New("invalid request status")
	ErrDuplicate     = errors.New("request already exists")
)

// Record is one stored request: its lifecycle status plus the
// component-specific encoded body.
type Record struct {
	Status  Status
	Payload []byte
}

// Ledger is a nonce-indexed request table. Two independent request kinds
// (deposit, redeem) are two Ledgers with distinct prefixes over one database.
type Ledger struct {
	mu     sync.Mutex
	db     database.Database
	prefix []byte
}

func New(db database.Database, prefix []byte) *Ledger {
	return &Ledger{db: db, prefix: prefix}
}

// Append assigns the next nonce for (domain, account), stores the request as
// Pending, and returns the nonce. Nonces are monotonic and never reused.
func (l *Ledger) Append(domain uint32, account common.Address, payload []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	nonce, err := l.counter(domain, account)
	if err != nil {
		return 0, err
	}
	if err := l.put(domain, account, nonce, Record{Status: Pending, Payload: payload}); err != nil {
		return 0, err
	}
	if err := l.setCounter(domain, account, nonce+1); err != nil {
		return 0, err
	}
	return nonce, nil
}

// Insert stores a request under an externally-assigned nonce (the hub side,
// where the nonce arrived in the message). Fails with ErrDuplicate if any
// request already exists at that key.
func (l *Ledger) Insert(domain uint32, account common.Address, nonce uint64, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.db.Has(l.requestKey(domain, account, nonce))
	if err != nil {
		return err
	}
	if ok {
		return ErrDuplicate
	}
	return l.put(domain, account, nonce, Record{Status: Pending, Payload: payload})
}

// Get returns the request at (domain, account, nonce), or ErrNotFound if the
// nonce was never issued.
func (l *Ledger) Get(domain uint32, account common.Address, nonce uint64) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(domain, account, nonce)
}

// Nonce returns the next nonce Append would assign for (domain, account).
func (l *Ledger) Nonce(domain uint32, account common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counter(domain, account)
}

// Transition moves the request from one status to another with
// compare-and-swap semantics: it fails with ErrInvalidStatus unless the
// current status equals from exactly, and terminal states are final in both
// directions. This is what turns a double-delivered message into a rejected
// no-op instead of a re-execution. The record as it stood before the
// transition is returned.
func (l *Ledger) Transition(domain uint32, account common.Address, nonce uint64, from, to Status) (Record, error) {
	return l.transition(domain, account, nonce, from, to, nil)
}

// TransitionPayload is Transition plus a payload replacement applied in the
// same atomic step; the prior body comes back to the caller.
func (l *Ledger) TransitionPayload(domain uint32, account common.Address, nonce uint64, from, to Status, payload []byte) (Record, error) {
	return l.transition(domain, account, nonce, from, to, payload)
}

func (l *Ledger) transition(domain uint32, account common.Address, nonce uint64, from, to Status, payload []byte) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.get(domain, account, nonce)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != from {
		return Record{}, ErrInvalidStatus
	}
	// Completed and Cancelled are final; only Pending moves.
	if rec.Status != Pending {
		return Record{}, ErrInvalidStatus
	}
	prior := rec
	next := Record{Status: to, Payload: rec.Payload}
	if payload != nil {
		next.Payload = payload
	}
	if err := l.put(domain, account, nonce, next); err != nil {
		return Record{}, err
	}
	return prior, nil
}

func (l *Ledger) get(domain uint32, account common.Address, nonce uint64) (Record, error) {
	raw, err := l.db.Get(l.requestKey(domain, account, nonce))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if len(raw) < 1 {
		return Record{}, ErrNotFound
	}
	payload := make([]byte, len(raw)-1)
	copy(payload, raw[1:])
	return Record{Status: Status(raw[0]), Payload: payload}, nil
}

func (l *Ledger) put(domain uint32, account common.Address, nonce uint64, rec Record) error {
	raw := make([]byte, 1+len(rec.Payload))
	raw[0] = byte(rec.Status)
	copy(raw[1:], rec.Payload)
	return l.db.Put(l.requestKey(domain, account, nonce), raw)
}

func (l *Ledger) counter(domain uint32, account common.Address) (uint64, error) {
	raw, err := l.db.Get(l.counterKey(domain, account))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (l *Ledger) setCounter(domain uint32, account common.Address, next uint64) error {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, next)
	return l.db.Put(l.counterKey(domain, account), raw)
}

func (l *Ledger) requestKey(domain uint32, account common.Address, nonce uint64) []byte {
	key := make([]byte, 0, len(l.prefix)+1+4+20+8)
	key = append(key, l.prefix...)
	key = append(key, 'r')
	key = binary.BigEndian.AppendUint32(key, domain)
	key = append(key, account.Bytes()...)
	key = binary.BigEndian.AppendUint64(key, nonce)
	return key
}

func (l *Ledger) counterKey(domain uint32, account common.Address) []byte {
	key := make([]byte, 0, len(l.prefix)+1+4+20)
	key = append(key, l.prefix...)
	key = append(key, 'n')
	key = binary.BigEndian.AppendUint32(key, domain)
	key = append(key, account.Bytes()...)
	return key
}
