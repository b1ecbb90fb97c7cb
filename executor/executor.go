// Package executor is the single path by which the SDK reads from and writes
// to contracts. Fee data and nonces are read from the node on every call.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/fractional-company/vault-sdk-go/eth"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CallSpec describes one contract method invocation.
type CallSpec struct {
	// Op names the SDK operation for errors and logs, e.g. "buyout.start".
	Op     string
	To     common.Address
	ABI    *abi.ABI
	Method string
	Args   []any
	// Value is the native amount attached, in wei.
	Value *big.Int
	// Timeout bounds the wait for a receipt. Zero uses Options.Deadline.
	Timeout time.Duration
}

func (s CallSpec) op() string {
	if s.Op != "" {
		return s.Op
	}
	return "executor." + s.Method
}

// Calldata packs the method and arguments.
func (s CallSpec) Calldata() ([]byte, error) {
	if s.ABI == nil {
		return nil, sdkerr.Configuration(s.op(), "no interface for %s", s.To.Hex())
	}
	data, err := s.ABI.Pack(s.Method, s.Args...)
	if err != nil {
		return nil, sdkerr.Validation(s.op(), "cannot encode %s: %v", s.Method, err)
	}
	return data, nil
}

// Options configure an Executor.
type Options struct {
	// Deadline bounds every receipt wait. Zero waits until ctx is done.
	Deadline time.Duration
	Logger   *logrus.Logger
	Tracer   trace.Tracer
}

// Executor estimates, signs, submits and awaits transactions over one
// connection. It holds no chain state between calls.
type Executor struct {
	conn   *eth.Connection
	opts   Options
	log    *logrus.Logger
	tracer trace.Tracer
}

// New returns an executor. A nil logger or tracer is replaced by a default.
func New(conn *eth.Connection, opts Options) *Executor {
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/fractional-company/vault-sdk-go/executor")
	}
	return &Executor{conn: conn, opts: opts, log: log, tracer: tracer}
}

func (e *Executor) Connection() *eth.Connection { return e.conn }

func (e *Executor) Logger() *logrus.Logger { return e.log }

// Call performs a read-only call and returns the decoded outputs.
func (e *Executor) Call(ctx context.Context, to common.Address, contractABI *abi.ABI, method string, args ...any) ([]any, error) {
	raw, err := e.call(ctx, to, contractABI, method, args)
	if err != nil {
		return nil, err
	}
	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, sdkerr.ChainRead("call."+method, err)
	}
	return out, nil
}

// CallInto performs a read-only call and copies the outputs into out.
func (e *Executor) CallInto(ctx context.Context, out any, to common.Address, contractABI *abi.ABI, method string, args ...any) error {
	raw, err := e.call(ctx, to, contractABI, method, args)
	if err != nil {
		return err
	}
	if err := contractABI.UnpackIntoInterface(out, method, raw); err != nil {
		return sdkerr.ChainRead("call."+method, err)
	}
	return nil
}

func (e *Executor) call(ctx context.Context, to common.Address, contractABI *abi.ABI, method string, args []any) ([]byte, error) {
	op := "call." + method
	data, err := CallSpec{Op: op, To: to, ABI: contractABI, Method: method, Args: args}.Calldata()
	if err != nil {
		return nil, err
	}
	e.log.Debugf("Calling %s on %s", method, to.Hex())
	raw, err := e.conn.Backend().CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		if reason := RevertReason(err); reason != "" {
			return nil, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: op, Msg: "chain read failed", Reason: reason, Err: err}
		}
		return nil, sdkerr.ChainRead(op, err)
	}
	return raw, nil
}

type feeData struct {
	gasPrice    *big.Int
	maxFee      *big.Int
	maxPriority *big.Int
}

func (e *Executor) fees(ctx context.Context, op string) (feeData, error) {
	backend := e.conn.Backend()
	var f feeData
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return f, sdkerr.ChainRead(op, err)
	}
	f.gasPrice = gasPrice

	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return f, sdkerr.ChainRead(op, err)
	}
	if head.BaseFee == nil {
		return f, nil
	}
	tip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return f, sdkerr.ChainRead(op, err)
	}
	f.maxPriority = tip
	f.maxFee = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	return f, nil
}

func (e *Executor) estimateGas(ctx context.Context, spec CallSpec, data []byte) (uint64, error) {
	msg := ethereum.CallMsg{To: &spec.To, Data: data, Value: spec.Value}
	if from, err := e.conn.Address(); err == nil {
		msg.From = from
	}
	gas, err := e.conn.Backend().EstimateGas(ctx, msg)
	if err != nil {
		return 0, sdkerr.Transaction(spec.op(), err, RevertReason(err))
	}
	return gas, nil
}

// Estimate returns the gas limit of spec and the fee data current at call time.
func (e *Executor) Estimate(ctx context.Context, spec CallSpec) (types.GasEstimate, error) {
	data, err := spec.Calldata()
	if err != nil {
		return types.GasEstimate{}, err
	}
	gas, err := e.estimateGas(ctx, spec, data)
	if err != nil {
		return types.GasEstimate{}, err
	}
	f, err := e.fees(ctx, spec.op())
	if err != nil {
		return types.GasEstimate{}, err
	}
	est := types.GasEstimate{
		GasLimit:             gas,
		GasPrice:             f.gasPrice,
		MaxFeePerGas:         f.maxFee,
		MaxPriorityFeePerGas: f.maxPriority,
	}
	if f.maxFee != nil {
		est.TotalGasFee = new(big.Int).Mul(new(big.Int).SetUint64(gas), f.maxFee)
	}
	return est, nil
}

// Send signs and submits spec, then waits for its receipt. A reverted or
// missing receipt is a transaction error. A wait that outlives the deadline is
// a timeout, and a wait cancelled by the caller is a transaction error; in both
// cases the transaction may still be mined.
func (e *Executor) Send(ctx context.Context, spec CallSpec) (*types.Receipt, error) {
	op := spec.op()
	signer, err := e.conn.AsSigner()
	if err != nil {
		return nil, err
	}
	data, err := spec.Calldata()
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("contract", spec.To.Hex()),
		attribute.String("method", spec.Method),
	))
	defer span.End()

	receipt, err := e.send(ctx, signer, spec, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, sdkerr.Reason(err))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tx", receipt.TxHash.Hex()),
		attribute.Int64("block", int64(receipt.BlockNumber)),
	)
	return receipt, nil
}

func (e *Executor) send(ctx context.Context, signer *eth.Signer, spec CallSpec, data []byte) (*types.Receipt, error) {
	op := spec.op()
	backend := e.conn.Backend()

	nonce, err := backend.PendingNonceAt(ctx, signer.Address())
	if err != nil {
		return nil, sdkerr.ChainRead(op, err)
	}
	gas, err := e.estimateGas(ctx, spec, data)
	if err != nil {
		return nil, err
	}
	f, err := e.fees(ctx, op)
	if err != nil {
		return nil, err
	}

	value := spec.Value
	if value == nil {
		value = new(big.Int)
	}
	to := spec.To
	var tx *gethtypes.Transaction
	if f.maxFee != nil {
		tx = gethtypes.NewTx(&gethtypes.DynamicFeeTx{
			ChainID:   signer.ChainID(),
			Nonce:     nonce,
			GasTipCap: f.maxPriority,
			GasFeeCap: f.maxFee,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      data,
		})
	} else {
		tx = gethtypes.NewTx(&gethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: f.gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     data,
		})
	}
	signed, err := signer.SignTx(tx)
	if err != nil {
		return nil, sdkerr.Transaction(op, err, "")
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return nil, sdkerr.Transaction(op, err, RevertReason(err))
	}
	e.log.Infof("Submitted %s tx=%s nonce=%d gas=%d", spec.Method, signed.Hash().Hex(), nonce, gas)

	waitCtx := ctx
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = e.opts.Deadline
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	rcpt, err := bind.WaitMined(waitCtx, backend, signed)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			e.log.Warnf("No receipt for %s tx=%s before deadline", spec.Method, signed.Hash().Hex())
			return nil, sdkerr.Timeout(op, fmt.Errorf("tx %s: %w", signed.Hash().Hex(), err))
		case errors.Is(err, context.Canceled):
			e.log.Warnf("Stopped waiting for %s tx=%s, it may still be mined", spec.Method, signed.Hash().Hex())
			return nil, &sdkerr.Error{
				Kind: sdkerr.KindTransaction,
				Op:   op,
				Msg:  "wait cancelled, transaction may still be mined",
				Err:  fmt.Errorf("tx %s: %w", signed.Hash().Hex(), err),
			}
		}
		return nil, sdkerr.Transaction(op, err, "")
	}
	if rcpt == nil {
		return nil, sdkerr.Transaction(op, errors.New("null receipt"), "")
	}
	if rcpt.Status != gethtypes.ReceiptStatusSuccessful {
		return nil, sdkerr.Transaction(op, fmt.Errorf("tx %s reverted", signed.Hash().Hex()), "execution reverted")
	}
	e.log.Infof("Mined %s tx=%s block=%d gasUsed=%d", spec.Method, rcpt.TxHash.Hex(), rcpt.BlockNumber.Uint64(), rcpt.GasUsed)
	return toReceipt(rcpt), nil
}

func toReceipt(r *gethtypes.Receipt) *types.Receipt {
	out := &types.Receipt{
		TxHash:       r.TxHash,
		GasUsed:      r.GasUsed,
		Status:       r.Status,
		LogAddresses: make([]common.Address, 0, len(r.Logs)),
		Logs:         r.Logs,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	for _, l := range r.Logs {
		out.LogAddresses = append(out.LogAddresses, l.Address)
	}
	return out
}

// RevertReason decodes an Error(string) payload carried by an RPC error, or
// returns "".
func RevertReason(err error) string {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return ""
	}
	hexData, ok := de.ErrorData().(string)
	if !ok {
		return ""
	}
	raw, err := hexutil.Decode(hexData)
	if err != nil {
		return ""
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return ""
	}
	return reason
}
