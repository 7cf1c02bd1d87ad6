package decoder

import (
	"strings"
	"testing"
)

func transferDetails() *Details {
	return &Details{
		Type: TagTransfer,
		Transfers: []TransferLeg{
			{AccountID: "0.0.1001", Amount: "-10.00000000"},
			{AccountID: "0.0.2002", Amount: "10.00000000"},
		},
	}
}

func TestValidateMetadataEmpty(t *testing.T) {
	for _, md := range []map[string]string{nil, {}} {
		rep := ValidateMetadata(transferDetails(), md)
		if !rep.Valid {
			t.Error("empty metadata must be valid")
		}
		if len(rep.Warnings) != 0 {
			t.Errorf("warnings = %v, want none", rep.Warnings)
		}
		if len(rep.Mismatches) != 0 {
			t.Errorf("mismatches = %v, want none", rep.Mismatches)
		}
	}
}

func TestValidateMetadataAlwaysFlagsUnverified(t *testing.T) {
	rep := ValidateMetadata(transferDetails(), map[string]string{"purpose": "payroll"})
	if !rep.Valid {
		t.Error("benign metadata must be valid")
	}
	if len(rep.Warnings) == 0 || rep.Warnings[len(rep.Warnings)-1] != UnverifiedMetadataNotice {
		t.Errorf("warnings = %v, want trailing unverified notice", rep.Warnings)
	}
}

func TestValidateMetadataUrgency(t *testing.T) {
	rep := ValidateMetadata(transferDetails(), map[string]string{
		"note": "URGENT: sign immediately please",
	})
	if !rep.Valid {
		t.Error("urgency is a warning, not a mismatch")
	}
	var urgent, immediately bool
	for _, w := range rep.Warnings {
		if strings.Contains(w, `"urgent"`) {
			urgent = true
		}
		if strings.Contains(w, `"immediately"`) {
			immediately = true
		}
	}
	if !urgent || !immediately {
		t.Errorf("warnings = %v, want both urgency words flagged", rep.Warnings)
	}
}

func TestValidateMetadataUrgencyWordBoundary(t *testing.T) {
	// "acknowledged" and "snowfall" contain "now" but are not the word.
	rep := ValidateMetadata(transferDetails(), map[string]string{
		"note": "acknowledged the snowfall forecast",
	})
	if len(rep.Warnings) != 1 || rep.Warnings[0] != UnverifiedMetadataNotice {
		t.Errorf("warnings = %v, want only the unverified notice", rep.Warnings)
	}
}

func TestValidateMetadataAmount(t *testing.T) {
	tests := []struct {
		name      string
		claimed   string
		wantValid bool
	}{
		{"exact", "10 HBAR", true},
		{"formatted", "10.00000000", true},
		{"within tolerance", "10.00005", true},
		{"sign ignored", "-10", true},
		{"thousands separator", "1,000", false},
		{"understated", "1 HBAR", false},
		{"overstated", "9.5 HBAR", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := ValidateMetadata(transferDetails(), map[string]string{"amount": tt.claimed})
			if rep.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (mismatches: %v)", rep.Valid, tt.wantValid, rep.Mismatches)
			}
			if !tt.wantValid {
				mm, ok := rep.Mismatches["amount"]
				if !ok {
					t.Fatal("missing amount mismatch")
				}
				if mm.Actual != tt.claimed {
					t.Errorf("Actual = %q, want %q", mm.Actual, tt.claimed)
				}
				if !strings.Contains(mm.Expected, "10.00000000 hbar") {
					t.Errorf("Expected = %q, want the decoded amount named", mm.Expected)
				}
			}
		})
	}
}

func TestValidateMetadataAmountNotNumeric(t *testing.T) {
	rep := ValidateMetadata(transferDetails(), map[string]string{"amount": "ten hbar"})
	if !rep.Valid {
		t.Error("unparseable amount is a warning, not a mismatch")
	}
	var warned bool
	for _, w := range rep.Warnings {
		if strings.Contains(w, "not numeric") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("warnings = %v, want not-numeric warning", rep.Warnings)
	}
}

func TestValidateMetadataType(t *testing.T) {
	tests := []struct {
		name      string
		details   *Details
		claimed   string
		wantValid bool
	}{
		{"exact tag", transferDetails(), "TransferTransaction", true},
		{"tag case-insensitive", transferDetails(), "transfertransaction", true},
		{"alias", transferDetails(), "HBAR Transfer", true},
		{"alias extra whitespace", &Details{Type: TagTokenMint}, "  Token   Mint ", true},
		{"wrong family", &Details{Type: TagTokenMint}, "token burn", false},
		{"gibberish", transferDetails(), "standing order", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := ValidateMetadata(tt.details, map[string]string{"type": tt.claimed})
			if rep.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v", rep.Valid, tt.wantValid)
			}
			if !tt.wantValid {
				mm := rep.Mismatches["type"]
				if mm.Expected != tt.details.Type || mm.Actual != tt.claimed {
					t.Errorf("mismatch = %+v", mm)
				}
			}
		})
	}
}

func TestValidateMetadataFunctionName(t *testing.T) {
	verified := &Details{
		Type:             TagContractExecute,
		FunctionName:     "transfer",
		SelectorVerified: true,
	}

	rep := ValidateMetadata(verified, map[string]string{"functionName": "Transfer"})
	if !rep.Valid {
		t.Errorf("case-insensitive match rejected: %v", rep.Mismatches)
	}

	rep = ValidateMetadata(verified, map[string]string{"functionName": "withdraw"})
	if rep.Valid {
		t.Error("wrong function name accepted")
	}
	if mm := rep.Mismatches["functionName"]; mm.Expected != "transfer" {
		t.Errorf("mismatch = %+v", mm)
	}

	// Unverified calls cannot confirm the claim either way.
	unverified := &Details{Type: TagContractExecute, FunctionName: ""}
	rep = ValidateMetadata(unverified, map[string]string{"functionName": "withdraw"})
	if !rep.Valid {
		t.Error("unverified claim must warn, not mismatch")
	}
	var warned bool
	for _, w := range rep.Warnings {
		if strings.Contains(w, "not verified against a contract interface") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("warnings = %v, want unverified-function warning", rep.Warnings)
	}
}

func TestValidateMetadataDescribesManyAmounts(t *testing.T) {
	det := &Details{Type: TagTransfer}
	for i := 0; i < 7; i++ {
		det.Transfers = append(det.Transfers, TransferLeg{
			AccountID: "0.0.100",
			Amount:    "1.00000000",
		})
	}

	rep := ValidateMetadata(det, map[string]string{"amount": "999"})
	mm, ok := rep.Mismatches["amount"]
	if !ok {
		t.Fatal("expected amount mismatch")
	}
	if !strings.Contains(mm.Expected, "and 2 more") {
		t.Errorf("Expected = %q, want elided tail", mm.Expected)
	}
}
