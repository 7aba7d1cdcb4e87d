// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hub executes relayed deposit requests against the real vault.
// An executor supplies the base asset here, the vault mints shares that are
// forwarded back to the requester's domain, and the executor is named taker
// of the escrow on the satellite. Cancellations are arbitrated here too:
// whichever of execute and cancel reaches a request first wins, the other
// fails on the status check.
package hub

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/lz-asia/oChai/event"
	"github.com/lz-asia/oChai/ledger"
	"github.com/lz-asia/oChai/relay"
	"github.com/lz-asia/oChai/token"
	"github.com/lz-asia/oChai/vault"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientMsgValue = errors.New("insufficient native value for relay fees")
	ErrUnknownPeer          = errors.New("no trusted remote for domain")
)

// ShareForwarder moves minted vault shares toward a satellite domain.
type ShareForwarder interface {
	Address() common.Address
	UseCustomAdapterParams() bool
	Quote(dst uint32, gasLimit uint64) (*big.Int, error)
	Forward(owner common.Address, dst uint32, to common.Address, shares *big.Int, gasLimit uint64, fee *big.Int, refund common.Address) error
}

type Config struct {
	Domain uint32
}

// Hub serves the domain holding real custody.
type Hub struct {
	mu  sync.Mutex
	cfg Config

	self      common.Address
	asset     token.Token
	bank      *token.Bank
	vault     *vault.Vault
	forwarder ShareForwarder
	endpoint  relay.Endpoint
	gas       *relay.GasPolicy

	deposits *ledger.Ledger
	failed   *relay.FailedStore
	peers    map[uint32]common.Address

	log  log.Logger
	emit event.Emitter
}

func New(
	cfg Config,
	self common.Address,
	asset token.Token,
	bank *token.Bank,
	v *vault.Vault,
	forwarder ShareForwarder,
	endpoint relay.Endpoint,
	gas *relay.GasPolicy,
	db database.Database,
	logger log.Logger,
	emit event.Emitter,
) *Hub {
	if emit == nil {
		emit = event.Discard
	}
	return &Hub{
		cfg:       cfg,
		self:      self,
		asset:     asset,
		bank:      bank,
		vault:     v,
		forwarder: forwarder,
		endpoint:  endpoint,
		gas:       gas,
		deposits:  ledger.New(db, []byte("hd")),
		failed:    relay.NewFailedStore(db, []byte("hf")),
		peers:     make(map[uint32]common.Address),
		log:       logger,
		emit:      emit,
	}
}

// SetTrustedRemote registers the gateway address on a satellite domain.
func (h *Hub) SetTrustedRemote(domain uint32, addr common.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[domain] = addr
}

// TrustedRemote returns the registered peer for a domain.
func (h *Hub) TrustedRemote(domain uint32) (common.Address, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	addr, ok := h.peers[domain]
	return addr, ok
}

// DepositRequest returns the recorded request for (srcDomain, requester, nonce).
func (h *Hub) DepositRequest(srcDomain uint32, requester common.Address, nonce uint64) (ledger.Status, *big.Int, *big.Int, error) {
	rec, err := h.deposits.Get(srcDomain, requester, nonce)
	if err != nil {
		return 0, nil, nil, err
	}
	m, err := relay.DecodeDeposit(rec.Payload)
	if err != nil {
		return 0, nil, nil, err
	}
	return rec.Status, m.Amount, m.Fee, nil
}

// OnMessage handles inbound packets from satellite gateways. Application
// failures are buffered per message so one bad request never blocks the
// channel.
func (h *Hub) OnMessage(src uint32, srcAddr common.Address, nonce uint64, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	peer, ok := h.peers[src]
	if !ok || peer != srcAddr {
		return ErrUnknownPeer
	}
	if err := h.handle(src, payload); err != nil {
		if rerr := h.failed.Record(src, srcAddr, nonce, payload); rerr != nil {
			return rerr
		}
		h.log.Warn("inbound message failed, buffered for retry",
			"srcDomain", src, "nonce", nonce, "err", err)
		h.emit(relay.MessageFailedEvent{
			SrcDomain:  src,
			SrcAddress: srcAddr,
			Nonce:      nonce,
			Hash:       relay.PayloadHash(payload),
			Reason:     err.Error(),
		})
	}
	return nil
}

// RetryMessage re-executes a buffered failed message. The stored hash is
// consumed up front, so a second retry of the same failure finds no match;
// a retry that fails again is re-buffered.
func (h *Hub) RetryMessage(src uint32, srcAddr common.Address, nonce uint64, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.failed.Consume(src, srcAddr, nonce, payload); err != nil {
		return err
	}
	if err := h.handle(src, payload); err != nil {
		if rerr := h.failed.Record(src, srcAddr, nonce, payload); rerr != nil {
			return rerr
		}
		return err
	}
	h.emit(relay.RetrySucceededEvent{
		SrcDomain:  src,
		SrcAddress: srcAddr,
		Nonce:      nonce,
		Hash:       relay.PayloadHash(payload),
	})
	return nil
}

func (h *Hub) handle(src uint32, payload []byte) error {
	kind, err := relay.Kind(payload)
	if err != nil {
		return err
	}
	switch kind {
	case relay.PacketDeposit:
		return h.recordDeposit(src, payload)
	case relay.PacketCancel:
		m, err := relay.DecodeCancel(payload)
		if err != nil {
			return err
		}
		return h.cancelDeposit(src, m)
	default:
		return relay.ErrBadPayload
	}
}

// recordDeposit stores the relayed request verbatim; the payload is decoded
// again at execution time.
func (h *Hub) recordDeposit(src uint32, payload []byte) error {
	m, err := relay.DecodeDeposit(payload)
	if err != nil {
		return err
	}
	if m.Amount.Sign() == 0 {
		return ErrInvalidAmount
	}
	if m.Fee.Cmp(m.Amount) > 0 {
		return ErrInvalidAmount
	}
	if err := h.deposits.Insert(src, m.Requester, m.Nonce, payload); err != nil {
		return err
	}
	h.emit(RecordDepositRequestEvent{
		SrcDomain: src,
		Requester: m.Requester,
		Amount:    m.Amount,
		Fee:       m.Fee,
		Nonce:     m.Nonce,
	})
	return nil
}

// EstimateExecuteDepositRequest quotes the two outbound legs of an
// execution: the share-forward leg and the completion notice.
func (h *Hub) EstimateExecuteDepositRequest(srcDomain uint32, gasLimits [2]uint64) ([2]*big.Int, error) {
	fwd, err := h.forwarder.Quote(srcDomain, gasLimits[0])
	if err != nil {
		return [2]*big.Int{}, err
	}
	if err := h.gas.Require(srcDomain, relay.PacketDeposit, gasLimits[1]); err != nil {
		return [2]*big.Int{}, err
	}
	notice := h.endpoint.Quote(relay.Dispatch{DstDomain: srcDomain, GasLimit: gasLimits[1]})
	return [2]*big.Int{fwd, notice}, nil
}

// EstimateForwardCancel quotes the confirmation leg a cancellation will
// need, after clamping the requested return gas to the policy floor.
func (h *Hub) EstimateForwardCancel(srcDomain uint32, returnGasLimit uint64) *big.Int {
	limit := h.gas.Effective(srcDomain, relay.PacketCancel, returnGasLimit)
	return h.endpoint.Quote(relay.Dispatch{DstDomain: srcDomain, GasLimit: limit})
}

// ExecuteDepositRequest fills a pending request. The caller supplies
// netAssets of the base asset (pre-approved to the hub) plus native payment
// for both outbound legs; each leg's fee must cover its own quote. A zero
// takerOverride names the caller as taker.
func (h *Hub) ExecuteDepositRequest(
	caller common.Address,
	srcDomain uint32,
	requester common.Address,
	nonce uint64,
	takerOverride common.Address,
	gasLimits [2]uint64,
	relayFees [2]*big.Int,
	msgValue *big.Int,
) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.executeDeposit(caller, srcDomain, requester, nonce, takerOverride, gasLimits, relayFees, msgValue, false)
}

// ExecuteDepositRequestNative is ExecuteDepositRequest with the base asset
// paid natively: msgValue covers netAssets plus both relay fees, and the
// asset is wrapped before the identical execution path.
func (h *Hub) ExecuteDepositRequestNative(
	caller common.Address,
	srcDomain uint32,
	requester common.Address,
	nonce uint64,
	takerOverride common.Address,
	gasLimits [2]uint64,
	relayFees [2]*big.Int,
	msgValue *big.Int,
) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.executeDeposit(caller, srcDomain, requester, nonce, takerOverride, gasLimits, relayFees, msgValue, true)
}

func (h *Hub) executeDeposit(
	caller common.Address,
	srcDomain uint32,
	requester common.Address,
	nonce uint64,
	takerOverride common.Address,
	gasLimits [2]uint64,
	relayFees [2]*big.Int,
	msgValue *big.Int,
	native bool,
) error {
	rec, err := h.deposits.Get(srcDomain, requester, nonce)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.ErrInvalidStatus
		}
		return err
	}
	if rec.Status != ledger.Pending {
		return ledger.ErrInvalidStatus
	}
	m, err := relay.DecodeDeposit(rec.Payload)
	if err != nil {
		return err
	}
	peer, ok := h.peers[srcDomain]
	if !ok {
		return ErrUnknownPeer
	}
	taker := takerOverride
	if taker == (common.Address{}) {
		taker = caller
	}
	netAssets := new(big.Int).Sub(m.Amount, m.Fee)

	fwdFee, err := h.forwarder.Quote(srcDomain, gasLimits[0])
	if err != nil {
		return err
	}
	if err := h.gas.Require(srcDomain, relay.PacketDeposit, gasLimits[1]); err != nil {
		return err
	}
	notice := relay.Dispatch{
		DstDomain:  srcDomain,
		DstAddress: peer,
		GasLimit:   gasLimits[1],
		Refund:     caller,
	}
	noticeFee := h.endpoint.Quote(notice)
	if relayFees[0] == nil || relayFees[1] == nil ||
		relayFees[0].Cmp(fwdFee) < 0 || relayFees[1].Cmp(noticeFee) < 0 {
		return ErrInsufficientMsgValue
	}
	required := new(big.Int).Add(relayFees[0], relayFees[1])
	if native {
		required.Add(required, netAssets)
	}
	if msgValue == nil || msgValue.Cmp(required) < 0 {
		return ErrInsufficientMsgValue
	}

	if err := h.bank.Debit(caller, required); err != nil {
		return err
	}
	if native {
		h.asset.Mint(h.self, netAssets)
	} else if err := h.asset.TransferFrom(h.self, caller, h.self, netAssets); err != nil {
		h.bank.Credit(caller, required)
		return err
	}

	h.asset.Approve(h.self, h.vault.Address(), netAssets)
	shares, err := h.vault.Deposit(h.self, netAssets, h.self)
	if err != nil {
		if !native {
			h.asset.Transfer(h.self, caller, netAssets)
		}
		h.bank.Credit(caller, required)
		return err
	}

	h.vault.Approve(h.self, h.forwarder.Address(), shares)
	if err := h.forwarder.Forward(h.self, srcDomain, requester, shares, gasLimits[0], relayFees[0], caller); err != nil {
		// Nothing left the domain yet; the fill fully reverses and the
		// request stays Pending for another executor.
		h.unwindExecution(caller, shares, required, native)
		return err
	}
	// The shares leg is out and cannot be recalled: Completed is now the
	// truth. The mutex kept the status Pending since the check at entry, so
	// the transition cannot fail.
	if _, err := h.deposits.Transition(srcDomain, requester, nonce,
		ledger.Pending, ledger.Completed); err != nil {
		return err
	}
	notice.Payload = relay.DepositCompleteMessage{
		Requester: requester,
		Nonce:     nonce,
		Taker:     taker,
	}.Encode()
	// The notice fee and destination were validated before any funds moved.
	if err := h.endpoint.Send(notice, relayFees[1]); err != nil {
		return err
	}

	h.emit(ExecuteDepositRequestEvent{
		SrcDomain: srcDomain,
		Requester: requester,
		Nonce:     nonce,
		Taker:     taker,
		NetAssets: netAssets,
		Shares:    shares,
	})
	return nil
}

// unwindExecution reverses a fill whose outbound leg never left: the shares
// come back out of the vault, the caller is repaid, and the request stays
// Pending. On the native path the wrapped asset stays with the hub,
// offsetting the native repayment.
func (h *Hub) unwindExecution(caller common.Address, shares, paid *big.Int, native bool) {
	if assets, err := h.vault.Redeem(h.self, shares, h.self, h.self); err == nil && !native {
		h.asset.Transfer(h.self, caller, assets)
	}
	h.bank.Credit(caller, paid)
}

// cancelDeposit confirms a cancellation. The return leg is paid from the
// hub's own native balance, pre-funded by the requester's airdrop; whatever
// remains after the leg is swept to the requester's hub-side account. An
// underfunded balance leaves the request Pending and the inbound message
// buffered for retry.
func (h *Hub) cancelDeposit(src uint32, m relay.CancelMessage) error {
	rec, err := h.deposits.Get(src, m.Requester, m.Nonce)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.ErrInvalidStatus
		}
		return err
	}
	if rec.Status != ledger.Pending {
		return ledger.ErrInvalidStatus
	}
	peer := h.peers[src]

	limit := h.gas.Effective(src, relay.PacketCancel, m.ReturnGasLimit)
	confirm := relay.Dispatch{
		DstDomain:  src,
		DstAddress: peer,
		Payload:    relay.CancelConfirmMessage{Requester: m.Requester, Nonce: m.Nonce}.Encode(),
		GasLimit:   limit,
		Refund:     h.self,
	}
	quote := h.endpoint.Quote(confirm)
	if err := h.bank.Debit(h.self, quote); err != nil {
		return err
	}
	if _, err := h.deposits.Transition(src, m.Requester, m.Nonce,
		ledger.Pending, ledger.Cancelled); err != nil {
		h.bank.Credit(h.self, quote)
		return err
	}
	if err := h.endpoint.Send(confirm, quote); err != nil {
		return err
	}
	if rem := h.bank.BalanceOf(h.self); rem.Sign() > 0 {
		if err := h.bank.Transfer(h.self, m.Requester, rem); err != nil {
			return err
		}
	}
	h.emit(ForwardCancelDepositEvent{SrcDomain: src, Requester: m.Requester, Nonce: m.Nonce})
	return nil
}
