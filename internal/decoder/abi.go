package decoder

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// verifyCall checks the first four calldata bytes against the supplied
// contract interface and decodes the arguments. A selector that does not
// match the interface is a hard failure: the interface shown to signers
// must describe the call that will actually run.
func verifyCall(det *Details, calldata []byte, abiJSON string) *Error {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return failf(CodeDecodeFail, "contract interface does not parse: %v", err)
	}
	if len(calldata) < 4 {
		return failf(CodeDecodeFail, "calldata is %d bytes, need at least 4 for a selector", len(calldata))
	}
	actual := calldata[:4]

	method := matchMethod(&parsed, actual)
	if method == nil {
		return failf(CodeSelectorMismatch,
			"calldata selector 0x%s matches no function in the supplied interface (declared: %s)",
			hex.EncodeToString(actual), declaredSelectors(&parsed))
	}
	if !bytes.Equal(method.ID, actual) {
		return failf(CodeSelectorMismatch,
			"calldata selector 0x%s does not match %s (expected 0x%s)",
			hex.EncodeToString(actual), method.Sig, hex.EncodeToString(method.ID))
	}

	args, err := method.Inputs.UnpackValues(calldata[4:])
	if err != nil {
		return failf(CodeDecodeFail, "arguments for %s do not decode: %v", method.Sig, err)
	}

	det.FunctionName = method.Name
	det.FunctionSignature = method.Sig
	det.Selector = "0x" + hex.EncodeToString(actual)
	det.SelectorVerified = true
	det.Parameters = makeParams(method.Inputs, args)
	return nil
}

// verifyConstructor decodes constructor arguments against the interface.
// Constructors have no selector, so only the argument layout is checked.
func verifyConstructor(det *Details, argsData []byte, abiJSON string) *Error {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return failf(CodeDecodeFail, "contract interface does not parse: %v", err)
	}

	args, err := parsed.Constructor.Inputs.UnpackValues(argsData)
	if err != nil {
		return failf(CodeDecodeFail, "constructor arguments do not decode: %v", err)
	}

	det.FunctionName = "constructor"
	det.Parameters = makeParams(parsed.Constructor.Inputs, args)
	return nil
}

// matchMethod picks the candidate function for a selector. An interface
// with a single function pins the expectation to that function; otherwise
// the selector picks among the declared ones.
func matchMethod(parsed *abi.ABI, selector []byte) *abi.Method {
	if len(parsed.Methods) == 1 {
		for _, m := range parsed.Methods {
			mm := m
			return &mm
		}
	}
	if m, err := parsed.MethodById(selector); err == nil {
		return m
	}
	return nil
}

func declaredSelectors(parsed *abi.ABI) string {
	if len(parsed.Methods) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(parsed.Methods))
	for _, m := range parsed.Methods {
		parts = append(parts, fmt.Sprintf("%s=0x%s", m.Name, hex.EncodeToString(m.ID)))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func makeParams(inputs abi.Arguments, args []interface{}) []Param {
	params := make([]Param, 0, len(args))
	for i, arg := range args {
		p := Param{Value: formatABIValue(arg)}
		if i < len(inputs) {
			p.Name = inputs[i].Name
			p.Type = inputs[i].Type.String()
		}
		params = append(params, p)
	}
	return params
}

func formatABIValue(v interface{}) string {
	switch x := v.(type) {
	case *big.Int:
		return x.String()
	case common.Address:
		return x.Hex()
	case []byte:
		return "0x" + hex.EncodeToString(x)
	case [32]byte:
		return "0x" + hex.EncodeToString(x[:])
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case []common.Address:
		parts := make([]string, len(x))
		for i, a := range x {
			parts[i] = a.Hex()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []*big.Int:
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = n.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", x)
	}
}
