// Package decoder turns frozen transaction bytes into a structured view a
// signer can review, verifies contract calldata against a supplied interface,
// and checks coordinator-provided display metadata against what was actually
// decoded. It holds no session state; the same bytes always produce the same
// result.
package decoder

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/hbar"
)

// Transaction type tags. The set is closed; identification is structural.
const (
	TagTransfer        = "TransferTransaction"
	TagTokenAssociate  = "TokenAssociateTransaction"
	TagTokenDissociate = "TokenDissociateTransaction"
	TagTokenCreate     = "TokenCreateTransaction"
	TagTokenMint       = "TokenMintTransaction"
	TagTokenBurn       = "TokenBurnTransaction"
	TagTokenUpdate     = "TokenUpdateTransaction"
	TagTokenDelete     = "TokenDeleteTransaction"
	TagAccountCreate   = "AccountCreateTransaction"
	TagAccountUpdate   = "AccountUpdateTransaction"
	TagAccountDelete   = "AccountDeleteTransaction"
	TagContractCreate  = "ContractCreateTransaction"
	TagContractExecute = "ContractExecuteTransaction"
	TagContractDelete  = "ContractDeleteTransaction"
	TagTopicCreate     = "TopicCreateTransaction"
	TagTopicUpdate     = "TopicUpdateTransaction"
	TagTopicDelete     = "TopicDeleteTransaction"
	TagTopicMessage    = "TopicMessageSubmitTransaction"
	TagFileCreate      = "FileCreateTransaction"
	TagFileUpdate      = "FileUpdateTransaction"
	TagFileAppend      = "FileAppendTransaction"
	TagFileDelete      = "FileDeleteTransaction"
	TagScheduleCreate  = "ScheduleCreateTransaction"
	TagScheduleSign    = "ScheduleSignTransaction"
	TagScheduleDelete  = "ScheduleDeleteTransaction"
	TagUnknown         = "UnknownTransaction"
)

// Stable decode error codes, surfaced verbatim on the wire.
const (
	CodeDecodeFail       = "DECODE_FAIL"
	CodeSelectorMismatch = "SELECTOR_MISMATCH"
	CodeUnknownType      = "UNKNOWN_TYPE"
)

// Error is a decode failure with a stable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func failf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Decoded is the result of decoding frozen transaction bytes.
type Decoded struct {
	TypeTag       string
	FullChecksum  string // lowercase hex SHA-256 of the exact raw bytes
	ShortChecksum string // first 16 hex chars, for voice confirmation
	Raw           []byte
	Details       *Details
}

// Details is the JSON-facing structured view participants review.
type Details struct {
	Type                 string `json:"type"`
	TransactionID        string `json:"transactionId,omitempty"`
	PayerAccountID       string `json:"payerAccountId,omitempty"`
	NodeAccountID        string `json:"nodeAccountId,omitempty"`
	Memo                 string `json:"memo,omitempty"`
	MaxFee               string `json:"maxFee,omitempty"`
	ValidStartMs         int64  `json:"validStartMs,omitempty"`
	ValidDurationSeconds int64  `json:"validDurationSeconds,omitempty"`
	ExpiresAtMs          int64  `json:"expiresAtMs,omitempty"`
	Checksum             string `json:"checksum"`
	ShortChecksum        string `json:"shortChecksum"`

	Transfers      []TransferLeg      `json:"transfers,omitempty"`
	TokenTransfers []TokenTransferLeg `json:"tokenTransfers,omitempty"`

	AccountID         string   `json:"accountId,omitempty"`
	TokenID           string   `json:"tokenId,omitempty"`
	TokenIDs          []string `json:"tokenIds,omitempty"`
	ContractID        string   `json:"contractId,omitempty"`
	TopicID           string   `json:"topicId,omitempty"`
	FileID            string   `json:"fileId,omitempty"`
	ScheduleID        string   `json:"scheduleId,omitempty"`
	TreasuryAccountID string   `json:"treasuryAccountId,omitempty"`
	TransferAccountID string   `json:"transferAccountId,omitempty"`

	TokenName      string `json:"tokenName,omitempty"`
	TokenSymbol    string `json:"tokenSymbol,omitempty"`
	TokenDecimals  int    `json:"tokenDecimals,omitempty"`
	InitialSupply  string `json:"initialSupply,omitempty"`
	Amount         string `json:"amount,omitempty"`         // mint/burn, smallest unit
	InitialBalance string `json:"initialBalance,omitempty"` // decimal HBAR

	Gas           int64  `json:"gas,omitempty"`
	PayableAmount string `json:"payableAmount,omitempty"` // decimal HBAR

	FunctionName      string  `json:"functionName,omitempty"`
	FunctionSignature string  `json:"functionSignature,omitempty"`
	Selector          string  `json:"selector,omitempty"` // 0x-prefixed hex
	SelectorVerified  bool    `json:"selectorVerified"`
	Parameters        []Param `json:"parameters,omitempty"`

	MessageBytes  int    `json:"messageBytes,omitempty"`
	ContentsBytes int    `json:"contentsBytes,omitempty"`
	ScheduledType string `json:"scheduledType,omitempty"`
}

// TransferLeg is one signed HBAR movement.
type TransferLeg struct {
	AccountID string `json:"accountId"`
	Amount    string `json:"amount"` // decimal HBAR, signed
}

// TokenTransferLeg is one signed token movement in the token's smallest unit.
type TokenTransferLeg struct {
	TokenID   string `json:"tokenId"`
	AccountID string `json:"accountId"`
	Amount    string `json:"amount"`
}

// Param is one decoded contract call argument.
type Param struct {
	Name  string `json:"name,omitempty"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

var (
	entityIDRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	txIDRe     = regexp.MustCompile(`^(\d+\.\d+\.\d+)@\d+(\.\d+)?$`)
)

// Decoder decodes frozen transaction bytes via a pluggable codec.
type Decoder struct {
	codec  Codec
	logger *slog.Logger
}

// New creates a decoder over the JSON envelope codec.
func New(logger *slog.Logger) *Decoder {
	return NewWithCodec(JSONCodec{}, logger)
}

// NewWithCodec creates a decoder over a custom codec.
func NewWithCodec(codec Codec, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{codec: codec, logger: logger}
}

// Decode parses frozen bytes, identifies the transaction family, and when
// contractABI is non-empty verifies contract calldata against it.
//
// On UNKNOWN_TYPE the returned *Decoded is still populated (checksums plus a
// common-field view) so the caller may carry the payload as opaque; every
// other error returns a nil result.
func (d *Decoder) Decode(raw []byte, contractABI string) (*Decoded, error) {
	if len(raw) == 0 {
		return nil, failf(CodeDecodeFail, "empty transaction bytes")
	}

	sum := sha256.Sum256(raw)
	full := hex.EncodeToString(sum[:])
	out := &Decoded{
		FullChecksum:  full,
		ShortChecksum: full[:16],
		Raw:           raw,
	}

	env, err := d.codec.Parse(raw)
	if err != nil {
		return nil, failf(CodeDecodeFail, "%v", err)
	}

	tag, n := identify(env)
	if n > 1 {
		return nil, failf(CodeDecodeFail, "ambiguous envelope: %d family bodies present", n)
	}
	if n == 0 {
		d.logger.Warn("transaction matched no known family, treating as opaque",
			"checksum", out.ShortChecksum)
	}

	details, derr := buildDetails(tag, env)
	if derr != nil {
		return nil, derr
	}
	details.Checksum = out.FullChecksum
	details.ShortChecksum = out.ShortChecksum

	out.TypeTag = tag
	out.Details = details

	if n == 0 {
		return out, failf(CodeUnknownType, "no known transaction family present")
	}

	if contractABI != "" {
		switch tag {
		case TagContractExecute:
			calldata, err := base64.StdEncoding.DecodeString(env.ContractExecute.FunctionParameters)
			if err != nil {
				return nil, failf(CodeDecodeFail, "function parameters are not valid base64: %v", err)
			}
			if aerr := verifyCall(details, calldata, contractABI); aerr != nil {
				return nil, aerr
			}
		case TagContractCreate:
			if env.ContractCreate.ConstructorParameters != "" {
				args, err := base64.StdEncoding.DecodeString(env.ContractCreate.ConstructorParameters)
				if err != nil {
					return nil, failf(CodeDecodeFail, "constructor parameters are not valid base64: %v", err)
				}
				if aerr := verifyConstructor(details, args, contractABI); aerr != nil {
					return nil, aerr
				}
			}
		}
	}

	return out, nil
}

// buildDetails projects the envelope into the wire-facing view. Family
// bodies are validated as they are projected; a leg that cannot be read
// exactly is a decode failure, never a best-effort display.
func buildDetails(tag string, env *Envelope) (*Details, *Error) {
	det := &Details{
		Type:                 tag,
		TransactionID:        env.TransactionID,
		NodeAccountID:        env.NodeAccountID,
		Memo:                 env.Memo,
		MaxFee:               env.MaxFee,
		ValidStartMs:         env.ValidStartMs,
		ValidDurationSeconds: env.ValidDurationSeconds,
	}
	if env.ValidStartMs > 0 && env.ValidDurationSeconds > 0 {
		det.ExpiresAtMs = env.ValidStartMs + env.ValidDurationSeconds*1000
	}
	if m := txIDRe.FindStringSubmatch(env.TransactionID); m != nil {
		det.PayerAccountID = m[1]
	}
	if env.MaxFee != "" {
		if _, ok := hbar.Parse(env.MaxFee); !ok {
			return nil, failf(CodeDecodeFail, "max fee %q is not a valid HBAR amount", env.MaxFee)
		}
	}

	switch tag {
	case TagTransfer:
		var sum int64
		for _, leg := range env.Transfer.HbarTransfers {
			v, ok := hbar.Parse(leg.Amount)
			if !ok {
				return nil, failf(CodeDecodeFail, "transfer amount %q is not a valid HBAR amount", leg.Amount)
			}
			if !entityIDRe.MatchString(leg.AccountID) {
				return nil, failf(CodeDecodeFail, "transfer account %q is not a valid account ID", leg.AccountID)
			}
			sum += v
			det.Transfers = append(det.Transfers, TransferLeg{
				AccountID: leg.AccountID,
				Amount:    hbar.Format(v),
			})
		}
		if sum != 0 {
			return nil, failf(CodeDecodeFail, "HBAR transfer legs do not sum to zero (%s)", hbar.Format(sum))
		}
		for _, tt := range env.Transfer.TokenTransfers {
			if !entityIDRe.MatchString(tt.TokenID) {
				return nil, failf(CodeDecodeFail, "token transfer token %q is not a valid token ID", tt.TokenID)
			}
			for _, leg := range tt.Transfers {
				if _, err := strconv.ParseInt(leg.Amount, 10, 64); err != nil {
					return nil, failf(CodeDecodeFail, "token transfer amount %q is not a valid integer", leg.Amount)
				}
				if !entityIDRe.MatchString(leg.AccountID) {
					return nil, failf(CodeDecodeFail, "token transfer account %q is not a valid account ID", leg.AccountID)
				}
				det.TokenTransfers = append(det.TokenTransfers, TokenTransferLeg{
					TokenID:   tt.TokenID,
					AccountID: leg.AccountID,
					Amount:    leg.Amount,
				})
			}
		}

	case TagTokenAssociate:
		det.AccountID = env.TokenAssociate.AccountID
		det.TokenIDs = env.TokenAssociate.TokenIDs
	case TagTokenDissociate:
		det.AccountID = env.TokenDissociate.AccountID
		det.TokenIDs = env.TokenDissociate.TokenIDs
	case TagTokenCreate:
		det.TokenName = env.TokenCreate.Name
		det.TokenSymbol = env.TokenCreate.Symbol
		det.TokenDecimals = env.TokenCreate.Decimals
		det.InitialSupply = env.TokenCreate.InitialSupply
		det.TreasuryAccountID = env.TokenCreate.TreasuryAccountID
	case TagTokenMint:
		if _, err := strconv.ParseInt(env.TokenMint.Amount, 10, 64); err != nil {
			return nil, failf(CodeDecodeFail, "mint amount %q is not a valid integer", env.TokenMint.Amount)
		}
		det.TokenID = env.TokenMint.TokenID
		det.Amount = env.TokenMint.Amount
	case TagTokenBurn:
		if _, err := strconv.ParseInt(env.TokenBurn.Amount, 10, 64); err != nil {
			return nil, failf(CodeDecodeFail, "burn amount %q is not a valid integer", env.TokenBurn.Amount)
		}
		det.TokenID = env.TokenBurn.TokenID
		det.Amount = env.TokenBurn.Amount
	case TagTokenUpdate:
		det.TokenID = env.TokenUpdate.TokenID
		det.TokenName = env.TokenUpdate.Name
		det.TokenSymbol = env.TokenUpdate.Symbol
		det.TreasuryAccountID = env.TokenUpdate.TreasuryAccountID
	case TagTokenDelete:
		det.TokenID = env.TokenDelete.TokenID

	case TagAccountCreate:
		if env.AccountCreate.InitialBalance != "" {
			if _, ok := hbar.Parse(env.AccountCreate.InitialBalance); !ok {
				return nil, failf(CodeDecodeFail, "initial balance %q is not a valid HBAR amount", env.AccountCreate.InitialBalance)
			}
		}
		det.InitialBalance = env.AccountCreate.InitialBalance
	case TagAccountUpdate:
		det.AccountID = env.AccountUpdate.AccountID
	case TagAccountDelete:
		det.AccountID = env.AccountDelete.AccountID
		det.TransferAccountID = env.AccountDelete.TransferAccountID

	case TagContractCreate:
		if env.ContractCreate.InitialBalance != "" {
			if _, ok := hbar.Parse(env.ContractCreate.InitialBalance); !ok {
				return nil, failf(CodeDecodeFail, "initial balance %q is not a valid HBAR amount", env.ContractCreate.InitialBalance)
			}
		}
		det.FileID = env.ContractCreate.BytecodeFileID
		det.Gas = env.ContractCreate.Gas
		det.InitialBalance = env.ContractCreate.InitialBalance
	case TagContractExecute:
		if env.ContractExecute.PayableAmount != "" {
			if _, ok := hbar.Parse(env.ContractExecute.PayableAmount); !ok {
				return nil, failf(CodeDecodeFail, "payable amount %q is not a valid HBAR amount", env.ContractExecute.PayableAmount)
			}
		}
		det.ContractID = env.ContractExecute.ContractID
		det.Gas = env.ContractExecute.Gas
		det.PayableAmount = env.ContractExecute.PayableAmount
		calldata, err := base64.StdEncoding.DecodeString(env.ContractExecute.FunctionParameters)
		if err != nil {
			return nil, failf(CodeDecodeFail, "function parameters are not valid base64: %v", err)
		}
		if len(calldata) >= 4 {
			det.Selector = "0x" + hex.EncodeToString(calldata[:4])
		}
	case TagContractDelete:
		det.ContractID = env.ContractDelete.ContractID
		det.TransferAccountID = env.ContractDelete.TransferAccountID

	case TagTopicCreate:
	case TagTopicUpdate:
		det.TopicID = env.TopicUpdate.TopicID
	case TagTopicDelete:
		det.TopicID = env.TopicDelete.TopicID
	case TagTopicMessage:
		det.TopicID = env.TopicMessage.TopicID
		msg, err := base64.StdEncoding.DecodeString(env.TopicMessage.Message)
		if err != nil {
			return nil, failf(CodeDecodeFail, "topic message is not valid base64: %v", err)
		}
		det.MessageBytes = len(msg)

	case TagFileCreate:
		contents, err := base64.StdEncoding.DecodeString(env.FileCreate.Contents)
		if err != nil {
			return nil, failf(CodeDecodeFail, "file contents are not valid base64: %v", err)
		}
		det.ContentsBytes = len(contents)
	case TagFileUpdate, TagFileAppend:
		body := env.FileUpdate
		if tag == TagFileAppend {
			body = env.FileAppend
		}
		det.FileID = body.FileID
		contents, err := base64.StdEncoding.DecodeString(body.Contents)
		if err != nil {
			return nil, failf(CodeDecodeFail, "file contents are not valid base64: %v", err)
		}
		det.ContentsBytes = len(contents)
	case TagFileDelete:
		det.FileID = env.FileDelete.FileID

	case TagScheduleCreate:
		det.PayerAccountID = firstNonEmpty(env.ScheduleCreate.PayerAccountID, det.PayerAccountID)
		if inner := env.ScheduleCreate.ScheduledTransaction; inner != nil {
			innerTag, innerN := identify(inner)
			if innerN != 1 {
				return nil, failf(CodeDecodeFail, "scheduled transaction must contain exactly one family body")
			}
			det.ScheduledType = innerTag
		}
	case TagScheduleSign:
		det.ScheduleID = env.ScheduleSign.ScheduleID
	case TagScheduleDelete:
		det.ScheduleID = env.ScheduleDelete.ScheduleID
	}

	return det, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
