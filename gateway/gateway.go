// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gateway is the satellite-domain entry point. Users deposit the
// base asset here; the gateway escrows it, relays the request to the hub,
// and releases the escrow when the hub's completion or cancellation message
// arrives. Redeems never leave the satellite: a taker swaps base asset for
// the escrowed shares directly.
package gateway

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/lz-asia/oChai/event"
	"github.com/lz-asia/oChai/ledger"
	"github.com/lz-asia/oChai/relay"
	"github.com/lz-asia/oChai/token"
)

// FeeDenominator is the basis-point denominator for MinFeeRate.
const FeeDenominator = 10000

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidNativeForDst  = errors.New("destination airdrop must be nonzero")
	ErrInvalidDeadline      = errors.New("deadline already passed")
	ErrExpiredRequest       = errors.New("request deadline expired")
	ErrInsufficientMsgValue = errors.New("insufficient native value for relay fee")
	ErrUnknownPeer          = errors.New("no trusted remote for domain")
)

// TooLowFeeError reports a deposit fee below the configured floor.
type TooLowFeeError struct {
	Min      *big.Int
	Supplied *big.Int
}

func (e *TooLowFeeError) Error() string {
	return fmt.Sprintf("fee too low: minimum %v, supplied %v", e.Min, e.Supplied)
}

type Config struct {
	Domain    uint32
	HubDomain uint32
	// MinFeeRate is the minimum deposit fee in basis points of the amount.
	MinFeeRate uint64
}

// Gateway serves one satellite domain.
type Gateway struct {
	mu  sync.Mutex
	cfg Config

	self     common.Address
	asset    token.Token
	shares   token.Token
	bank     *token.Bank
	endpoint relay.Endpoint
	gas      *relay.GasPolicy

	deposits *ledger.Ledger
	redeems  *ledger.Ledger
	failed   *relay.FailedStore
	peers    map[uint32]common.Address

	now  func() int64
	log  log.Logger
	emit event.Emitter
}

func New(
	cfg Config,
	self common.Address,
	asset, shares token.Token,
	bank *token.Bank,
	endpoint relay.Endpoint,
	gas *relay.GasPolicy,
	db database.Database,
	logger log.Logger,
	emit event.Emitter,
) *Gateway {
	if emit == nil {
		emit = event.Discard
	}
	return &Gateway{
		cfg:      cfg,
		self:     self,
		asset:    asset,
		shares:   shares,
		bank:     bank,
		endpoint: endpoint,
		gas:      gas,
		deposits: ledger.New(db, []byte("gd")),
		redeems:  ledger.New(db, []byte("gr")),
		failed:   relay.NewFailedStore(db, []byte("gf")),
		peers:    make(map[uint32]common.Address),
		now:      func() int64 { return time.Now().Unix() },
		log:      logger,
		emit:     emit,
	}
}

// SetTrustedRemote registers the peer application address on a domain.
// Messages from or to an unregistered pair are rejected.
func (g *Gateway) SetTrustedRemote(domain uint32, addr common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.peers[domain] = addr
}

// TrustedRemote returns the registered peer for a domain.
func (g *Gateway) TrustedRemote(domain uint32) (common.Address, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	addr, ok := g.peers[domain]
	return addr, ok
}

// MinFee returns the smallest acceptable deposit fee for amount.
func (g *Gateway) MinFee(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(g.cfg.MinFeeRate))
	return fee.Div(fee, big.NewInt(FeeDenominator))
}

// DepositRequest returns the stored request for (requester, nonce).
func (g *Gateway) DepositRequest(requester common.Address, nonce uint64) (ledger.Status, *big.Int, *big.Int, error) {
	rec, err := g.deposits.Get(g.cfg.Domain, requester, nonce)
	if err != nil {
		return 0, nil, nil, err
	}
	amount, fee, err := decodeDepositRecord(rec.Payload)
	return rec.Status, amount, fee, err
}

// DepositTaker returns the taker a completed request settled to. A request
// that has not completed has no taker and yields the zero address.
func (g *Gateway) DepositTaker(requester common.Address, nonce uint64) (common.Address, error) {
	rec, err := g.deposits.Get(g.cfg.Domain, requester, nonce)
	if err != nil {
		return common.Address{}, err
	}
	if rec.Status != ledger.Completed || len(rec.Payload) != takerRecordLen {
		return common.Address{}, nil
	}
	return common.BytesToAddress(rec.Payload[depositRecordLen:]), nil
}

// EstimateRequestDeposit quotes the native relay fee for a deposit send.
func (g *Gateway) EstimateRequestDeposit(gasLimit uint64) *big.Int {
	return g.endpoint.Quote(relay.Dispatch{DstDomain: g.cfg.HubDomain, GasLimit: gasLimit})
}

// EstimateRequestCancelDeposit quotes the native relay fee for a cancel
// send, airdrop included.
func (g *Gateway) EstimateRequestCancelDeposit(gasLimit uint64, airdrop *big.Int) *big.Int {
	return g.endpoint.Quote(relay.Dispatch{DstDomain: g.cfg.HubDomain, GasLimit: gasLimit, Airdrop: airdrop})
}

// RequestDeposit escrows amount of the base asset from caller, records the
// request under the next nonce, and relays it to the hub. msgValue is the
// caller's native payment for the relay; the excess over the quote is
// refunded to refund.
func (g *Gateway) RequestDeposit(
	caller common.Address,
	amount, fee *big.Int,
	refund common.Address,
	gasLimit uint64,
	msgValue *big.Int,
) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if amount == nil || amount.Sign() == 0 || amount.BitLen() > 256 {
		return 0, ErrInvalidAmount
	}
	if fee == nil {
		fee = new(big.Int)
	}
	if min := g.MinFee(amount); fee.Cmp(min) < 0 {
		return 0, &TooLowFeeError{Min: min, Supplied: new(big.Int).Set(fee)}
	}
	if fee.Cmp(amount) > 0 {
		return 0, ErrInvalidAmount
	}
	hub, ok := g.peers[g.cfg.HubDomain]
	if !ok {
		return 0, ErrUnknownPeer
	}
	if err := g.gas.Require(g.cfg.HubDomain, relay.PacketDeposit, gasLimit); err != nil {
		return 0, err
	}

	dispatch := relay.Dispatch{
		DstDomain:  g.cfg.HubDomain,
		DstAddress: hub,
		GasLimit:   gasLimit,
		Refund:     refund,
	}
	if msgValue == nil {
		msgValue = new(big.Int)
	}
	if msgValue.Cmp(g.endpoint.Quote(dispatch)) < 0 {
		return 0, ErrInsufficientMsgValue
	}
	if err := g.bank.Debit(caller, msgValue); err != nil {
		return 0, err
	}
	if err := g.asset.TransferFrom(g.self, caller, g.self, amount); err != nil {
		g.bank.Credit(caller, msgValue)
		return 0, err
	}

	nonce, err := g.deposits.Append(g.cfg.Domain, caller, encodeDepositRecord(amount, fee))
	if err != nil {
		g.asset.Transfer(g.self, caller, amount)
		g.bank.Credit(caller, msgValue)
		return 0, err
	}
	payload, err := relay.DepositMessage{
		Requester: caller,
		Amount:    amount,
		Fee:       fee,
		Nonce:     nonce,
	}.Encode()
	if err != nil {
		g.abortDeposit(caller, nonce, amount, msgValue)
		return 0, err
	}
	dispatch.Payload = payload
	if err := g.endpoint.Send(dispatch, msgValue); err != nil {
		g.abortDeposit(caller, nonce, amount, msgValue)
		return 0, err
	}
	g.emit(RequestDepositEvent{
		Requester: caller,
		Amount:    new(big.Int).Set(amount),
		Fee:       new(big.Int).Set(fee),
		Nonce:     nonce,
	})
	return nonce, nil
}

// abortDeposit unwinds a recorded request whose relay leg never left. The
// nonce is already spent, so the record closes Cancelled and the caller gets
// the escrow and the native payment back.
func (g *Gateway) abortDeposit(caller common.Address, nonce uint64, amount, msgValue *big.Int) {
	g.deposits.Transition(g.cfg.Domain, caller, nonce, ledger.Pending, ledger.Cancelled)
	g.asset.Transfer(g.self, caller, amount)
	g.bank.Credit(caller, msgValue)
}

// RequestCancelDeposit relays a cancellation to the hub. Local state does
// not change; only the hub knows whether the deposit already executed, so
// the authoritative decision is made there. airdrop funds the hub's return
// leg and must be nonzero.
func (g *Gateway) RequestCancelDeposit(
	caller common.Address,
	nonce uint64,
	refund common.Address,
	gasLimit uint64,
	airdrop *big.Int,
	returnGasLimit uint64,
	msgValue *big.Int,
) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := g.deposits.Get(g.cfg.Domain, caller, nonce)
	if err != nil {
		return err
	}
	if rec.Status != ledger.Pending {
		return ledger.ErrInvalidStatus
	}
	if airdrop == nil || airdrop.Sign() == 0 {
		return ErrInvalidNativeForDst
	}
	hub, ok := g.peers[g.cfg.HubDomain]
	if !ok {
		return ErrUnknownPeer
	}
	if err := g.gas.Require(g.cfg.HubDomain, relay.PacketCancel, gasLimit); err != nil {
		return err
	}

	dispatch := relay.Dispatch{
		DstDomain:  g.cfg.HubDomain,
		DstAddress: hub,
		GasLimit:   gasLimit,
		Airdrop:    airdrop,
		AirdropTo:  hub,
		Refund:     refund,
	}
	if msgValue == nil {
		msgValue = new(big.Int)
	}
	if msgValue.Cmp(g.endpoint.Quote(dispatch)) < 0 {
		return ErrInsufficientMsgValue
	}
	if err := g.bank.Debit(caller, msgValue); err != nil {
		return err
	}
	dispatch.Payload = relay.CancelMessage{
		Requester:      caller,
		Nonce:          nonce,
		ReturnGasLimit: returnGasLimit,
	}.Encode()
	if err := g.endpoint.Send(dispatch, msgValue); err != nil {
		g.bank.Credit(caller, msgValue)
		return err
	}
	g.emit(RequestCancelDepositEvent{Requester: caller, Nonce: nonce})
	return nil
}

// OnMessage handles inbound packets from the hub. Handling failures are
// isolated per message: the payload hash is buffered and a MessageFailed
// event emitted, leaving the channel free for subsequent messages.
func (g *Gateway) OnMessage(src uint32, srcAddr common.Address, nonce uint64, payload []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	peer, ok := g.peers[src]
	if !ok || peer != srcAddr {
		return ErrUnknownPeer
	}
	if err := g.handle(payload); err != nil {
		if rerr := g.failed.Record(src, srcAddr, nonce, payload); rerr != nil {
			return rerr
		}
		g.log.Warn("inbound message failed, buffered for retry",
			"srcDomain", src, "nonce", nonce, "err", err)
		g.emit(relay.MessageFailedEvent{
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
// consumed before re-execution, so only one retry per failure can win; a
// retry that fails again is re-buffered.
func (g *Gateway) RetryMessage(src uint32, srcAddr common.Address, nonce uint64, payload []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failed.Consume(src, srcAddr, nonce, payload); err != nil {
		return err
	}
	if err := g.handle(payload); err != nil {
		if rerr := g.failed.Record(src, srcAddr, nonce, payload); rerr != nil {
			return rerr
		}
		return err
	}
	g.emit(relay.RetrySucceededEvent{
		SrcDomain:  src,
		SrcAddress: srcAddr,
		Nonce:      nonce,
		Hash:       relay.PayloadHash(payload),
	})
	return nil
}

func (g *Gateway) handle(payload []byte) error {
	kind, err := relay.Kind(payload)
	if err != nil {
		return err
	}
	switch kind {
	case relay.PacketDeposit:
		m, err := relay.DecodeDepositComplete(payload)
		if err != nil {
			return err
		}
		return g.completeDeposit(m)
	case relay.PacketCancel:
		m, err := relay.DecodeCancelConfirm(payload)
		if err != nil {
			return err
		}
		return g.cancelDeposit(m)
	default:
		return relay.ErrBadPayload
	}
}

// completeDeposit releases the escrowed asset to the taker the hub resolved.
// The resolved taker is persisted with the completed record so it stays
// queryable after settlement.
func (g *Gateway) completeDeposit(m relay.DepositCompleteMessage) error {
	rec, err := g.deposits.Get(g.cfg.Domain, m.Requester, m.Nonce)
	if err != nil {
		return err
	}
	amount, fee, err := decodeDepositRecord(rec.Payload)
	if err != nil {
		return err
	}
	if _, err := g.deposits.TransitionPayload(g.cfg.Domain, m.Requester, m.Nonce,
		ledger.Pending, ledger.Completed, encodeTakerRecord(amount, fee, m.Taker)); err != nil {
		return err
	}
	if err := g.asset.Transfer(g.self, m.Taker, amount); err != nil {
		return err
	}
	g.emit(UpdateEligibleTakerEvent{Requester: m.Requester, Nonce: m.Nonce, Taker: m.Taker})
	g.emit(ExecuteDepositEvent{Requester: m.Requester, Nonce: m.Nonce, Taker: m.Taker, Amount: amount})
	return nil
}

// cancelDeposit returns the escrowed asset to the requester.
func (g *Gateway) cancelDeposit(m relay.CancelConfirmMessage) error {
	rec, err := g.deposits.Transition(g.cfg.Domain, m.Requester, m.Nonce,
		ledger.Pending, ledger.Cancelled)
	if err != nil {
		return err
	}
	amount, _, err := decodeDepositRecord(rec.Payload)
	if err != nil {
		return err
	}
	if err := g.asset.Transfer(g.self, m.Requester, amount); err != nil {
		return err
	}
	g.emit(CancelDepositEvent{Requester: m.Requester, Nonce: m.Nonce, Amount: amount})
	return nil
}

// Deposit records persist (amount, fee) as two 32-byte words.
const depositRecordLen = 32 + 32

func encodeDepositRecord(amount, fee *big.Int) []byte {
	out := make([]byte, depositRecordLen)
	amount.FillBytes(out[:32])
	fee.FillBytes(out[32:])
	return out
}

func decodeDepositRecord(payload []byte) (amount, fee *big.Int, err error) {
	if len(payload) != depositRecordLen && len(payload) != takerRecordLen {
		return nil, nil, relay.ErrBadPayload
	}
	return new(big.Int).SetBytes(payload[:32]), new(big.Int).SetBytes(payload[32:64]), nil
}

// Completed deposit records append the resolved taker.
const takerRecordLen = depositRecordLen + 20

func encodeTakerRecord(amount, fee *big.Int, taker common.Address) []byte {
	out := make([]byte, takerRecordLen)
	amount.FillBytes(out[:32])
	fee.FillBytes(out[32:64])
	copy(out[64:], taker.Bytes())
	return out
}

// Redeem records persist (shares, desiredAsset, deadline).
const redeemRecordLen = 32 + 32 + 8

func encodeRedeemRecord(shares, desired *big.Int, deadline int64) []byte {
	out := make([]byte, redeemRecordLen)
	shares.FillBytes(out[:32])
	desired.FillBytes(out[32:64])
	binary.BigEndian.PutUint64(out[64:], uint64(deadline))
	return out
}

func decodeRedeemRecord(payload []byte) (shares, desired *big.Int, deadline int64, err error) {
	if len(payload) != redeemRecordLen {
		return nil, nil, 0, relay.ErrBadPayload
	}
	return new(big.Int).SetBytes(payload[:32]),
		new(big.Int).SetBytes(payload[32:64]),
		int64(binary.BigEndian.Uint64(payload[64:])),
		nil
}
