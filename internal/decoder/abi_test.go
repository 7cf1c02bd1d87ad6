package decoder

import (
	"strings"
	"testing"
)

const (
	transferABI = `[{"type":"function","name":"transfer","stateMutability":"nonpayable",
	  "inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
	  "outputs":[{"type":"bool"}]}]`

	approveABI = `[{"type":"function","name":"approve","stateMutability":"nonpayable",
	  "inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],
	  "outputs":[{"type":"bool"}]}]`

	erc20ABI = `[
	  {"type":"function","name":"transfer","stateMutability":"nonpayable",
	   "inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
	   "outputs":[{"type":"bool"}]},
	  {"type":"function","name":"approve","stateMutability":"nonpayable",
	   "inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],
	   "outputs":[{"type":"bool"}]}]`

	ctorABI = `[{"type":"constructor","stateMutability":"nonpayable",
	  "inputs":[{"name":"owner","type":"address"}]}]`

	// transfer(0x1111...1111, 1000000)
	transferCalldataB64 = "qQWcuwAAAAAAAAAAAAAAABERERERERERERERERERERERERERAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAPQkA="
	// approve(0x2222...2222, 5000)
	approveCalldataB64 = "CV6nswAAAAAAAAAAAAAAACIiIiIiIiIiIiIiIiIiIiIiIiIiAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAE4g="
	// selector 0xcafebabe followed by 64 zero bytes
	unknownCalldataB64 = "yv66vgAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
)

func contractExecuteEnvelope(calldataB64 string) []byte {
	return []byte(`{"contractExecute":{"contractId":"0.0.4242","gas":200000,"functionParameters":"` + calldataB64 + `"}}`)
}

func TestVerifyCallDecodesArguments(t *testing.T) {
	d := testDecoder()

	dec, err := d.Decode(contractExecuteEnvelope(transferCalldataB64), transferABI)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	det := dec.Details

	if !det.SelectorVerified {
		t.Error("SelectorVerified = false, want true")
	}
	if det.FunctionName != "transfer" {
		t.Errorf("FunctionName = %q", det.FunctionName)
	}
	if det.FunctionSignature != "transfer(address,uint256)" {
		t.Errorf("FunctionSignature = %q", det.FunctionSignature)
	}
	if det.Selector != "0xa9059cbb" {
		t.Errorf("Selector = %q", det.Selector)
	}
	if len(det.Parameters) != 2 {
		t.Fatalf("Parameters len = %d, want 2", len(det.Parameters))
	}
	if det.Parameters[0].Name != "to" || det.Parameters[0].Type != "address" {
		t.Errorf("param 0 = %+v", det.Parameters[0])
	}
	if got := det.Parameters[0].Value; got != "0x1111111111111111111111111111111111111111" {
		t.Errorf("param 0 value = %q", got)
	}
	if det.Parameters[1].Value != "1000000" {
		t.Errorf("param 1 value = %q", det.Parameters[1].Value)
	}
}

func TestVerifyCallSelectorMismatch(t *testing.T) {
	d := testDecoder()

	// The interface declares only approve; the calldata selects something
	// else entirely. Injection must fail hard, not fall back to opaque.
	_, err := d.Decode(contractExecuteEnvelope(unknownCalldataB64), approveABI)
	if err == nil {
		t.Fatal("expected SELECTOR_MISMATCH")
	}
	de, ok := err.(*Error)
	if !ok || de.Code != CodeSelectorMismatch {
		t.Fatalf("err = %v, want SELECTOR_MISMATCH", err)
	}
	if !strings.Contains(de.Message, "0xcafebabe") {
		t.Errorf("message %q does not name the calldata selector", de.Message)
	}
	if !strings.Contains(de.Message, "095ea7b3") {
		t.Errorf("message %q does not name the expected selector", de.Message)
	}
}

func TestVerifyCallMultiFunctionInterface(t *testing.T) {
	d := testDecoder()

	// With several declared functions the selector picks among them.
	dec, err := d.Decode(contractExecuteEnvelope(approveCalldataB64), erc20ABI)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.Details.FunctionName != "approve" {
		t.Errorf("FunctionName = %q, want approve", dec.Details.FunctionName)
	}
	if !dec.Details.SelectorVerified {
		t.Error("SelectorVerified = false")
	}

	// A selector none of them declare is still a mismatch.
	_, err = d.Decode(contractExecuteEnvelope(unknownCalldataB64), erc20ABI)
	de, ok := err.(*Error)
	if !ok || de.Code != CodeSelectorMismatch {
		t.Fatalf("err = %v, want SELECTOR_MISMATCH", err)
	}
}

func TestVerifyCallEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		calldata []byte
		abiJSON  string
		wantCode string
	}{
		{
			name:     "calldata shorter than a selector",
			calldata: []byte{0xa9, 0x05},
			abiJSON:  transferABI,
			wantCode: CodeDecodeFail,
		},
		{
			name:     "interface does not parse",
			calldata: []byte{0xa9, 0x05, 0x9c, 0xbb},
			abiJSON:  `{"not":"an abi"`,
			wantCode: CodeDecodeFail,
		},
		{
			name:     "arguments truncated",
			calldata: []byte{0xa9, 0x05, 0x9c, 0xbb, 0x00, 0x01},
			abiJSON:  transferABI,
			wantCode: CodeDecodeFail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyCall(&Details{}, tt.calldata, tt.abiJSON)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Code != tt.wantCode {
				t.Errorf("code = %q, want %q (%s)", err.Code, tt.wantCode, err.Message)
			}
		})
	}
}

func TestVerifyConstructor(t *testing.T) {
	d := testDecoder()

	raw := []byte(`{"contractCreate":{"bytecodeFileId":"0.0.808","gas":500000,
	  "constructorParameters":"AAAAAAAAAAAAAAAAMzMzMzMzMzMzMzMzMzMzMzMzMzM="}}`)

	dec, err := d.Decode(raw, ctorABI)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	det := dec.Details
	if det.FunctionName != "constructor" {
		t.Errorf("FunctionName = %q", det.FunctionName)
	}
	if len(det.Parameters) != 1 {
		t.Fatalf("Parameters len = %d, want 1", len(det.Parameters))
	}
	if det.Parameters[0].Value != "0x3333333333333333333333333333333333333333" {
		t.Errorf("owner = %q", det.Parameters[0].Value)
	}
	// Constructors carry no selector, so nothing is selector-verified.
	if det.SelectorVerified {
		t.Error("SelectorVerified = true for a constructor")
	}
}
