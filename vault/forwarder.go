// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"

	"github.com/lz-asia/oChai/event"
	"github.com/lz-asia/oChai/relay"
	"github.com/lz-asia/oChai/token"
)

// Forwarder moves vault shares to other domains. Shares are locked at the
// forwarder's own address on the hub and a shares packet is relayed; the
// satellite-side ShareMinter mints the representation on arrival.
//
// With custom adapter params off, the caller-supplied gas limit is ignored
// and the configured default applies, like the transport's own default.
type Forwarder struct {
	mu         sync.Mutex
	vault      *Vault
	endpoint   relay.Endpoint
	gas        *relay.GasPolicy
	self       common.Address
	peers      map[uint32]common.Address
	custom     bool
	defaultGas uint64
}

func NewForwarder(v *Vault, endpoint relay.Endpoint, gas *relay.GasPolicy, self common.Address, defaultGas uint64) *Forwarder {
	return &Forwarder{
		vault:      v,
		endpoint:   endpoint,
		gas:        gas,
		self:       self,
		peers:      make(map[uint32]common.Address),
		defaultGas: defaultGas,
	}
}

// Address is where in-transit shares are locked; owners approve it before
// forwarding.
func (f *Forwarder) Address() common.Address { return f.self }

func (f *Forwarder) SetTrustedRemote(domain uint32, addr common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers[domain] = addr
}

func (f *Forwarder) SetUseCustomAdapterParams(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.custom = on
}

func (f *Forwarder) UseCustomAdapterParams() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.custom
}

// effectiveGas resolves the gas limit for a forward leg.
func (f *Forwarder) effectiveGas(domain uint32, supplied uint64) (uint64, error) {
	if !f.UseCustomAdapterParams() {
		return f.defaultGas, nil
	}
	if err := f.gas.Require(domain, relay.PacketShares, supplied); err != nil {
		return 0, err
	}
	return supplied, nil
}

// Quote prices forwarding into a domain at the given gas limit. A domain
// with no trusted remote is rejected here so callers composing a larger
// operation find out before they move any funds.
func (f *Forwarder) Quote(dst uint32, gasLimit uint64) (*big.Int, error) {
	f.mu.Lock()
	_, ok := f.peers[dst]
	f.mu.Unlock()
	if !ok {
		return nil, relay.ErrUnknownDomain
	}
	limit, err := f.effectiveGas(dst, gasLimit)
	if err != nil {
		return nil, err
	}
	return f.endpoint.Quote(relay.Dispatch{DstDomain: dst, GasLimit: limit}), nil
}

// Forward locks shares from owner and relays them to the destination
// account. The owner must have approved the forwarder for the shares.
func (f *Forwarder) Forward(owner common.Address, dst uint32, to common.Address, shares *big.Int, gasLimit uint64, fee *big.Int, refund common.Address) error {
	f.mu.Lock()
	peer, ok := f.peers[dst]
	f.mu.Unlock()
	if !ok {
		return relay.ErrUnknownDomain
	}
	limit, err := f.effectiveGas(dst, gasLimit)
	if err != nil {
		return err
	}
	payload, err := relay.SharesMessage{To: to, Amount: shares}.Encode()
	if err != nil {
		return err
	}
	if err := f.vault.TransferFrom(f.self, owner, f.self, shares); err != nil {
		return err
	}
	if err := f.endpoint.Send(relay.Dispatch{
		DstDomain:  dst,
		DstAddress: peer,
		Payload:    payload,
		GasLimit:   limit,
		Refund:     refund,
	}, fee); err != nil {
		// Nothing left the domain; the lock is released.
		f.vault.Transfer(f.self, owner, shares)
		return err
	}
	return nil
}

// SharesArrivedEvent records shares minted on a satellite by the hub's
// forwarder.
type SharesArrivedEvent struct {
	SrcDomain uint32
	To        common.Address
	Amount    *big.Int
}

func (SharesArrivedEvent) Name() string { return "SharesArrived" }

// ShareMinter is the satellite-side receiver of forwarded shares: it mints
// the local share representation on arrival. The transport redelivers, so
// every consumed (srcDomain, srcAddress, nonce) key is recorded durably and
// a replayed packet is dropped without minting again.
type ShareMinter struct {
	mu     sync.Mutex
	shares token.Token
	db     database.Database
	peers  map[uint32]common.Address
	emit   event.Emitter
}

func NewShareMinter(shares token.Token, db database.Database, emit event.Emitter) *ShareMinter {
	if emit == nil {
		emit = event.Discard
	}
	return &ShareMinter{
		shares: shares,
		db:     db,
		peers:  make(map[uint32]common.Address),
		emit:   emit,
	}
}

func (m *ShareMinter) SetTrustedRemote(domain uint32, addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[domain] = addr
}

func (m *ShareMinter) OnMessage(src uint32, srcAddr common.Address, nonce uint64, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	peer, ok := m.peers[src]
	if !ok || peer != srcAddr {
		return relay.ErrUnknownApp
	}
	msg, err := relay.DecodeShares(payload)
	if err != nil {
		return err
	}
	key := m.deliveredKey(src, srcAddr, nonce)
	seen, err := m.db.Has(key)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}
	// Mark consumed before minting so a crash between the two loses a mint
	// rather than duplicating one.
	if err := m.db.Put(key, nil); err != nil {
		return err
	}
	m.shares.Mint(msg.To, msg.Amount)
	m.emit(SharesArrivedEvent{SrcDomain: src, To: msg.To, Amount: msg.Amount})
	return nil
}

func (m *ShareMinter) deliveredKey(src uint32, srcAddr common.Address, nonce uint64) []byte {
	key := make([]byte, 0, 2+4+20+8)
	key = append(key, "sm"...)
	key = binary.BigEndian.AppendUint32(key, src)
	key = append(key, srcAddr.Bytes()...)
	key = binary.BigEndian.AppendUint64(key, nonce)
	return key
}
