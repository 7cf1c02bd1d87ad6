package decoder

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// AmountTolerance is the maximum absolute difference under which a claimed
// amount is considered to match an extracted one.
const AmountTolerance = 1e-4

// UnverifiedMetadataNotice is always attached when any metadata is present.
// Metadata is coordinator-supplied display text; only the decoded details
// are authoritative.
const UnverifiedMetadataNotice = "metadata is unverified; confirm every value against the decoded transaction details"

// urgencyWords flags language used to rush a signer past review.
var urgencyWords = regexp.MustCompile(`(?i)\b(urgent|immediately|asap|hurry|quickly|now|emergency)\b`)

// claimedNumber pulls the numeric component out of a display amount like
// "10.5 HBAR" or "1,000".
var claimedNumber = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// typeAliases maps each type tag to the display names accepted for it.
// Comparison is case-insensitive with collapsed whitespace.
var typeAliases = map[string][]string{
	TagTransfer:        {"hbar transfer", "transfer", "crypto transfer", "token transfer"},
	TagTokenAssociate:  {"token associate", "associate token", "token association"},
	TagTokenDissociate: {"token dissociate", "dissociate token"},
	TagTokenCreate:     {"token create", "create token", "token creation"},
	TagTokenMint:       {"token mint", "mint"},
	TagTokenBurn:       {"token burn", "burn"},
	TagTokenUpdate:     {"token update", "update token"},
	TagTokenDelete:     {"token delete", "delete token"},
	TagAccountCreate:   {"account create", "create account"},
	TagAccountUpdate:   {"account update", "update account"},
	TagAccountDelete:   {"account delete", "delete account"},
	TagContractCreate:  {"contract create", "contract deploy", "deploy contract"},
	TagContractExecute: {"contract execute", "contract call", "call contract"},
	TagContractDelete:  {"contract delete", "delete contract"},
	TagTopicCreate:     {"topic create", "create topic"},
	TagTopicUpdate:     {"topic update", "update topic"},
	TagTopicDelete:     {"topic delete", "delete topic"},
	TagTopicMessage:    {"topic message", "submit message", "message submit"},
	TagFileCreate:      {"file create", "create file"},
	TagFileUpdate:      {"file update", "update file"},
	TagFileAppend:      {"file append", "append file"},
	TagFileDelete:      {"file delete", "delete file"},
	TagScheduleCreate:  {"schedule create", "create schedule"},
	TagScheduleSign:    {"schedule sign", "sign schedule"},
	TagScheduleDelete:  {"schedule delete", "delete schedule"},
}

// MetadataReport is the outcome of checking coordinator metadata against the
// decoded details. Warnings never affect validity; mismatches do.
type MetadataReport struct {
	Valid      bool                `json:"valid"`
	Warnings   []string            `json:"warnings"`
	Mismatches map[string]Mismatch `json:"mismatches"`
}

// Mismatch records a claimed value that contradicts the decoded transaction.
type Mismatch struct {
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ValidateMetadata checks untrusted display metadata against the decoded
// details. Pure. Empty metadata has nothing to check and is valid.
func ValidateMetadata(details *Details, metadata map[string]string) *MetadataReport {
	rep := &MetadataReport{
		Valid:      true,
		Warnings:   []string{},
		Mismatches: map[string]Mismatch{},
	}
	if len(metadata) == 0 {
		return rep
	}

	// Deterministic warning order regardless of map iteration.
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, word := range urgencyWords.FindAllString(metadata[k], -1) {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf(
				"metadata field %q contains urgency language %q; verify out of band before signing",
				k, strings.ToLower(word)))
		}
	}

	if claimed, ok := metadata["amount"]; ok {
		if num, parsed := parseClaimedAmount(claimed); parsed {
			if !amountMatches(details, num) {
				rep.Mismatches["amount"] = Mismatch{
					Expected: describeAmounts(details),
					Actual:   claimed,
				}
			}
		} else {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf(
				"metadata amount %q is not numeric; unable to check it", claimed))
		}
	}

	if claimed, ok := metadata["type"]; ok {
		if !typeMatches(details.Type, claimed) {
			rep.Mismatches["type"] = Mismatch{Expected: details.Type, Actual: claimed}
		}
	}

	if claimed, ok := metadata["functionName"]; ok {
		if details.SelectorVerified {
			if !strings.EqualFold(strings.TrimSpace(claimed), details.FunctionName) {
				rep.Mismatches["functionName"] = Mismatch{
					Expected: details.FunctionName,
					Actual:   claimed,
				}
			}
		} else {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf(
				"metadata claims function %q but the call was not verified against a contract interface", claimed))
		}
	}

	rep.Warnings = append(rep.Warnings, UnverifiedMetadataNotice)
	rep.Valid = len(rep.Mismatches) == 0
	return rep
}

// parseClaimedAmount extracts the numeric component of a display amount.
func parseClaimedAmount(s string) (float64, bool) {
	m := claimedNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return math.Abs(v), true
}

func amountMatches(details *Details, claimed float64) bool {
	for _, a := range ExtractAmounts(details) {
		if math.Abs(a.Numeric-claimed) <= AmountTolerance {
			return true
		}
	}
	return false
}

func describeAmounts(details *Details) string {
	amounts := ExtractAmounts(details)
	if len(amounts) == 0 {
		return "none"
	}
	const maxShown = 5
	parts := make([]string, 0, maxShown+1)
	for i, a := range amounts {
		if i == maxShown {
			parts = append(parts, fmt.Sprintf("and %d more", len(amounts)-maxShown))
			break
		}
		parts = append(parts, a.Value+" "+a.Unit)
	}
	return strings.Join(parts, ", ")
}

func typeMatches(tag, claimed string) bool {
	norm := normalizeClaim(claimed)
	if norm == "" {
		return false
	}
	if norm == strings.ToLower(tag) {
		return true
	}
	for _, alias := range typeAliases[tag] {
		if norm == alias {
			return true
		}
	}
	return false
}

func normalizeClaim(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
