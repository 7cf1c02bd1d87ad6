package decoder

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Codec parses frozen transaction bytes into the neutral envelope form.
// The coordinator ships a JSON codec; deployments wrap an SDK codec when
// the frozen bytes are protobuf.
type Codec interface {
	Parse(raw []byte) (*Envelope, error)
}

// Envelope is the codec-neutral form of a frozen transaction. Exactly one
// family body must be present; which one it is decides the transaction type.
type Envelope struct {
	TransactionID        string `json:"transactionId"`
	NodeAccountID        string `json:"nodeAccountId"`
	ValidStartMs         int64  `json:"validStartMs"`
	ValidDurationSeconds int64  `json:"validDurationSeconds"`
	Memo                 string `json:"memo"`
	MaxFee               string `json:"maxFee"`

	Transfer        *TransferBody        `json:"transfer,omitempty"`
	TokenAssociate  *TokenAssociateBody  `json:"tokenAssociate,omitempty"`
	TokenDissociate *TokenAssociateBody  `json:"tokenDissociate,omitempty"`
	TokenCreate     *TokenCreateBody     `json:"tokenCreate,omitempty"`
	TokenMint       *TokenSupplyBody     `json:"tokenMint,omitempty"`
	TokenBurn       *TokenSupplyBody     `json:"tokenBurn,omitempty"`
	TokenUpdate     *TokenUpdateBody     `json:"tokenUpdate,omitempty"`
	TokenDelete     *TokenDeleteBody     `json:"tokenDelete,omitempty"`
	AccountCreate   *AccountCreateBody   `json:"accountCreate,omitempty"`
	AccountUpdate   *AccountUpdateBody   `json:"accountUpdate,omitempty"`
	AccountDelete   *AccountDeleteBody   `json:"accountDelete,omitempty"`
	ContractCreate  *ContractCreateBody  `json:"contractCreate,omitempty"`
	ContractExecute *ContractExecuteBody `json:"contractExecute,omitempty"`
	ContractDelete  *ContractDeleteBody  `json:"contractDelete,omitempty"`
	TopicCreate     *TopicCreateBody     `json:"topicCreate,omitempty"`
	TopicUpdate     *TopicUpdateBody     `json:"topicUpdate,omitempty"`
	TopicDelete     *TopicDeleteBody     `json:"topicDelete,omitempty"`
	TopicMessage    *TopicMessageBody    `json:"topicMessage,omitempty"`
	FileCreate      *FileCreateBody      `json:"fileCreate,omitempty"`
	FileUpdate      *FileContentsBody    `json:"fileUpdate,omitempty"`
	FileAppend      *FileContentsBody    `json:"fileAppend,omitempty"`
	FileDelete      *FileDeleteBody      `json:"fileDelete,omitempty"`
	ScheduleCreate  *ScheduleCreateBody  `json:"scheduleCreate,omitempty"`
	ScheduleSign    *ScheduleRefBody     `json:"scheduleSign,omitempty"`
	ScheduleDelete  *ScheduleRefBody     `json:"scheduleDelete,omitempty"`
}

// TransferBody carries signed HBAR legs (debits negative, credits positive)
// and per-token transfer lists.
type TransferBody struct {
	HbarTransfers  []TransferLegJSON   `json:"hbarTransfers,omitempty"`
	TokenTransfers []TokenTransferJSON `json:"tokenTransfers,omitempty"`
}

type TransferLegJSON struct {
	AccountID string `json:"accountId"`
	Amount    string `json:"amount"` // decimal HBAR, 8 fractional digits max
}

type TokenTransferJSON struct {
	TokenID   string            `json:"tokenId"`
	Transfers []TransferLegJSON `json:"transfers"` // amounts in the token's smallest unit
}

type TokenAssociateBody struct {
	AccountID string   `json:"accountId"`
	TokenIDs  []string `json:"tokenIds"`
}

type TokenCreateBody struct {
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	Decimals          int    `json:"decimals"`
	InitialSupply     string `json:"initialSupply"`
	TreasuryAccountID string `json:"treasuryAccountId"`
}

type TokenSupplyBody struct {
	TokenID string `json:"tokenId"`
	Amount  string `json:"amount"` // smallest unit
}

type TokenUpdateBody struct {
	TokenID           string `json:"tokenId"`
	Name              string `json:"name,omitempty"`
	Symbol            string `json:"symbol,omitempty"`
	TreasuryAccountID string `json:"treasuryAccountId,omitempty"`
}

type TokenDeleteBody struct {
	TokenID string `json:"tokenId"`
}

type AccountCreateBody struct {
	InitialBalance string `json:"initialBalance"` // decimal HBAR
	Key            string `json:"key,omitempty"`
	Memo           string `json:"memo,omitempty"`
}

type AccountUpdateBody struct {
	AccountID string `json:"accountId"`
	Key       string `json:"key,omitempty"`
	Memo      string `json:"memo,omitempty"`
}

type AccountDeleteBody struct {
	AccountID         string `json:"accountId"`
	TransferAccountID string `json:"transferAccountId"`
}

type ContractCreateBody struct {
	BytecodeFileID        string `json:"bytecodeFileId,omitempty"`
	Initcode              string `json:"initcode,omitempty"` // base64
	Gas                   int64  `json:"gas"`
	InitialBalance        string `json:"initialBalance,omitempty"` // decimal HBAR
	ConstructorParameters string `json:"constructorParameters,omitempty"` // base64
}

type ContractExecuteBody struct {
	ContractID         string `json:"contractId"`
	Gas                int64  `json:"gas"`
	PayableAmount      string `json:"payableAmount,omitempty"` // decimal HBAR
	FunctionParameters string `json:"functionParameters"` // base64 calldata
}

type ContractDeleteBody struct {
	ContractID         string `json:"contractId"`
	TransferAccountID  string `json:"transferAccountId,omitempty"`
	TransferContractID string `json:"transferContractId,omitempty"`
}

type TopicCreateBody struct {
	Memo      string `json:"memo,omitempty"`
	AdminKey  string `json:"adminKey,omitempty"`
	SubmitKey string `json:"submitKey,omitempty"`
}

type TopicUpdateBody struct {
	TopicID string `json:"topicId"`
	Memo    string `json:"memo,omitempty"`
}

type TopicDeleteBody struct {
	TopicID string `json:"topicId"`
}

type TopicMessageBody struct {
	TopicID string `json:"topicId"`
	Message string `json:"message"` // base64
}

type FileCreateBody struct {
	Contents string   `json:"contents"` // base64
	Keys     []string `json:"keys,omitempty"`
}

type FileContentsBody struct {
	FileID   string `json:"fileId"`
	Contents string `json:"contents"` // base64
}

type FileDeleteBody struct {
	FileID string `json:"fileId"`
}

type ScheduleCreateBody struct {
	ScheduledTransaction *Envelope `json:"scheduledTransaction"`
	PayerAccountID       string    `json:"payerAccountId,omitempty"`
	Memo                 string    `json:"memo,omitempty"`
}

type ScheduleRefBody struct {
	ScheduleID string `json:"scheduleId"`
}

// familyPredicate ties a type tag to the structural test for its body.
// Identification is purely structural; nothing inspects type names.
type familyPredicate struct {
	tag     string
	present func(*Envelope) bool
}

var familyPredicates = []familyPredicate{
	{TagTransfer, func(e *Envelope) bool { return e.Transfer != nil }},
	{TagTokenAssociate, func(e *Envelope) bool { return e.TokenAssociate != nil }},
	{TagTokenDissociate, func(e *Envelope) bool { return e.TokenDissociate != nil }},
	{TagTokenCreate, func(e *Envelope) bool { return e.TokenCreate != nil }},
	{TagTokenMint, func(e *Envelope) bool { return e.TokenMint != nil }},
	{TagTokenBurn, func(e *Envelope) bool { return e.TokenBurn != nil }},
	{TagTokenUpdate, func(e *Envelope) bool { return e.TokenUpdate != nil }},
	{TagTokenDelete, func(e *Envelope) bool { return e.TokenDelete != nil }},
	{TagAccountCreate, func(e *Envelope) bool { return e.AccountCreate != nil }},
	{TagAccountUpdate, func(e *Envelope) bool { return e.AccountUpdate != nil }},
	{TagAccountDelete, func(e *Envelope) bool { return e.AccountDelete != nil }},
	{TagContractCreate, func(e *Envelope) bool { return e.ContractCreate != nil }},
	{TagContractExecute, func(e *Envelope) bool { return e.ContractExecute != nil }},
	{TagContractDelete, func(e *Envelope) bool { return e.ContractDelete != nil }},
	{TagTopicCreate, func(e *Envelope) bool { return e.TopicCreate != nil }},
	{TagTopicUpdate, func(e *Envelope) bool { return e.TopicUpdate != nil }},
	{TagTopicDelete, func(e *Envelope) bool { return e.TopicDelete != nil }},
	{TagTopicMessage, func(e *Envelope) bool { return e.TopicMessage != nil }},
	{TagFileCreate, func(e *Envelope) bool { return e.FileCreate != nil }},
	{TagFileUpdate, func(e *Envelope) bool { return e.FileUpdate != nil }},
	{TagFileAppend, func(e *Envelope) bool { return e.FileAppend != nil }},
	{TagFileDelete, func(e *Envelope) bool { return e.FileDelete != nil }},
	{TagScheduleCreate, func(e *Envelope) bool { return e.ScheduleCreate != nil }},
	{TagScheduleSign, func(e *Envelope) bool { return e.ScheduleSign != nil }},
	{TagScheduleDelete, func(e *Envelope) bool { return e.ScheduleDelete != nil }},
}

// identify returns the type tag for the single family body present.
// Zero bodies yields TagUnknown; more than one is an ambiguity error.
func identify(e *Envelope) (string, int) {
	tag := TagUnknown
	n := 0
	for _, p := range familyPredicates {
		if p.present(e) {
			tag = p.tag
			n++
		}
	}
	return tag, n
}

// JSONCodec parses the JSON envelope format produced by the client tooling
// when it freezes a transaction.
type JSONCodec struct{}

// Parse implements Codec. Unknown fields are rejected: an envelope a signer
// cannot fully account for must not reach review.
func (JSONCodec) Parse(raw []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	return &env, nil
}
