// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"

	"github.com/lz-asia/oChai/token"
)

var (
	ErrInsufficientRelayFee = errors.New("insufficient relay fee")
	ErrUnknownDomain        = errors.New("unknown domain")
	ErrUnknownApp           = errors.New("no receiver at destination address")
)

// Receiver is the inbound side of an application: the transport invokes it
// once per delivered packet. Returning an error rejects the delivery at the
// channel level; applications that want per-message isolation must catch
// their own failures (see FailedStore).
type Receiver interface {
	OnMessage(srcDomain uint32, srcAddr common.Address, nonce uint64, payload []byte) error
}

// Dispatch describes one outbound message.
type Dispatch struct {
	DstDomain  uint32
	DstAddress common.Address
	Payload    []byte
	GasLimit   uint64
	// Airdrop is native currency minted to AirdropTo on the destination
	// domain at delivery, on top of executing the message.
	Airdrop   *big.Int
	AirdropTo common.Address
	// Refund receives any overpaid fee on the source domain.
	Refund common.Address
}

// Endpoint is the outbound side of an application. Quote prices a dispatch;
// Send performs it, consuming at most the quoted amount of the supplied fee
// and refunding the rest.
type Endpoint interface {
	Quote(d Dispatch) *big.Int
	Send(d Dispatch, fee *big.Int) error
}

// FeeSchedule prices delivery into one domain.
type FeeSchedule struct {
	BaseFee  *big.Int
	GasPrice *big.Int // per unit of destination gas limit
}

func (f FeeSchedule) price(gasLimit uint64, airdrop *big.Int) *big.Int {
	fee := new(big.Int).Mul(f.GasPrice, new(big.Int).SetUint64(gasLimit))
	fee.Add(fee, f.BaseFee)
	if airdrop != nil {
		fee.Add(fee, airdrop)
	}
	return fee
}

// Mesh is an in-process transport connecting several domains. Packets queue
// until explicitly delivered, which lets tests hold messages in flight and
// deliver them in any order. Per (domain, sender) the mesh assigns strictly
// increasing nonces, mirroring the channel the real transport provides.
type Mesh struct {
	mu      sync.Mutex
	domains map[uint32]*meshDomain
	queue   []*packet
}

type meshDomain struct {
	bank *token.Bank
	fees FeeSchedule
	apps map[common.Address]Receiver
}

type packet struct {
	src      uint32
	srcAddr  common.Address
	dst      uint32
	dstAddr  common.Address
	nonce    uint64
	payload  []byte
	airdrop  *big.Int
	airdrpTo common.Address
}

func NewMesh() *Mesh {
	return &Mesh{domains: make(map[uint32]*meshDomain)}
}

// AddDomain wires a domain id to its native bank and inbound fee schedule.
func (m *Mesh) AddDomain(id uint32, bank *token.Bank, fees FeeSchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[id] = &meshDomain{
		bank: bank,
		fees: fees,
		apps: make(map[common.Address]Receiver),
	}
}

// Register binds an application address on a domain and returns its endpoint.
func (m *Mesh) Register(domain uint32, addr common.Address, r Receiver) *Port {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.domains[domain]
	d.apps[addr] = r
	return &Port{mesh: m, domain: domain, addr: addr, nonces: make(map[uint32]uint64)}
}

// Pending returns how many packets are queued.
func (m *Mesh) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// DeliverNext delivers the oldest queued packet.
func (m *Mesh) DeliverNext() error {
	return m.DeliverAt(0)
}

// DeliverAt delivers the i-th queued packet, allowing out-of-order delivery
// across senders.
func (m *Mesh) DeliverAt(i int) error {
	m.mu.Lock()
	if i < 0 || i >= len(m.queue) {
		m.mu.Unlock()
		return errors.New("no such pending packet")
	}
	p := m.queue[i]
	m.queue = append(m.queue[:i], m.queue[i+1:]...)
	d := m.domains[p.dst]
	m.mu.Unlock()

	if d == nil {
		return ErrUnknownDomain
	}
	if p.airdrop != nil && p.airdrop.Sign() > 0 {
		d.bank.Credit(p.airdrpTo, p.airdrop)
	}
	app := d.apps[p.dstAddr]
	if app == nil {
		return ErrUnknownApp
	}
	return app.OnMessage(p.src, p.srcAddr, p.nonce, p.payload)
}

// DeliverAll drains the queue in order, stopping at the first channel-level
// error.
func (m *Mesh) DeliverAll() error {
	for m.Pending() > 0 {
		if err := m.DeliverNext(); err != nil {
			return err
		}
	}
	return nil
}

// Port is one application's endpoint into the mesh.
type Port struct {
	mesh   *Mesh
	domain uint32
	addr   common.Address
	nonces map[uint32]uint64 // per destination domain
}

func (p *Port) Quote(d Dispatch) *big.Int {
	p.mesh.mu.Lock()
	defer p.mesh.mu.Unlock()
	dst := p.mesh.domains[d.DstDomain]
	if dst == nil {
		return big.NewInt(0)
	}
	return dst.fees.price(d.GasLimit, d.Airdrop)
}

// Send queues the dispatch. The supplied fee must cover the quote; the
// excess is refunded to d.Refund on the source domain before the call
// returns.
func (p *Port) Send(d Dispatch, fee *big.Int) error {
	quote := p.Quote(d)

	p.mesh.mu.Lock()
	defer p.mesh.mu.Unlock()

	src := p.mesh.domains[p.domain]
	if src == nil || p.mesh.domains[d.DstDomain] == nil {
		return ErrUnknownDomain
	}
	if fee == nil || fee.Cmp(quote) < 0 {
		return ErrInsufficientRelayFee
	}
	if excess := new(big.Int).Sub(fee, quote); excess.Sign() > 0 {
		src.bank.Credit(d.Refund, excess)
	}

	nonce := p.nonces[d.DstDomain]
	p.nonces[d.DstDomain] = nonce + 1

	m := p.mesh
	m.queue = append(m.queue, &packet{
		src:      p.domain,
		srcAddr:  p.addr,
		dst:      d.DstDomain,
		dstAddr:  d.DstAddress,
		nonce:    nonce,
		payload:  append([]byte(nil), d.Payload...),
		airdrop:  d.Airdrop,
		airdrpTo: d.AirdropTo,
	})
	return nil
}
