package decoder

import (
	"reflect"
	"testing"
)

func TestExtractAmountsFromTransfer(t *testing.T) {
	d := testDecoder()
	dec, err := d.Decode([]byte(transferEnvelope), "")
	if err != nil {
		t.Fatal(err)
	}

	amounts := ExtractAmounts(dec.Details)
	if len(amounts) != 4 {
		t.Fatalf("amounts = %v, want 4 entries", amounts)
	}

	// Debits surface as absolute magnitudes.
	if amounts[0].Numeric != 10 || amounts[0].Unit != "hbar" {
		t.Errorf("hbar debit = %+v", amounts[0])
	}
	if amounts[0].Account != "0.0.1001" {
		t.Errorf("hbar debit account = %q", amounts[0].Account)
	}
	if amounts[2].Numeric != 500 || amounts[2].Unit != "0.0.7777" {
		t.Errorf("token debit = %+v", amounts[2])
	}
}

func TestExtractAmountsByFamily(t *testing.T) {
	tests := []struct {
		name    string
		details *Details
		want    []Amount
	}{
		{
			name:    "nil details",
			details: nil,
			want:    nil,
		},
		{
			name:    "max fee is not an amount",
			details: &Details{Type: TagTokenDelete, MaxFee: "1"},
			want:    nil,
		},
		{
			name: "payable contract call",
			details: &Details{
				Type:          TagContractExecute,
				ContractID:    "0.0.123",
				PayableAmount: "2.5",
			},
			want: []Amount{{Account: "0.0.123", Value: "2.50000000", Numeric: 2.5, Unit: "hbar"}},
		},
		{
			name: "account create initial balance",
			details: &Details{
				Type:           TagAccountCreate,
				InitialBalance: "0.5",
			},
			want: []Amount{{Value: "0.50000000", Numeric: 0.5, Unit: "hbar"}},
		},
		{
			name: "token mint smallest unit",
			details: &Details{
				Type:    TagTokenMint,
				TokenID: "0.0.7",
				Amount:  "1000",
			},
			want: []Amount{{Value: "1000", Numeric: 1000, Unit: "0.0.7"}},
		},
		{
			name: "token create initial supply",
			details: &Details{
				Type:          TagTokenCreate,
				InitialSupply: "500000",
			},
			want: []Amount{{Value: "500000", Numeric: 500000, Unit: "token"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractAmounts(tt.details)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractAmounts = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractAccounts(t *testing.T) {
	d := testDecoder()
	dec, err := d.Decode([]byte(transferEnvelope), "")
	if err != nil {
		t.Fatal(err)
	}

	got := ExtractAccounts(dec.Details)
	want := []string{"0.0.1001", "0.0.2002", "0.0.3", "0.0.7777"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractAccounts = %v, want %v", got, want)
	}
}

func TestExtractAccountsSkipsNonEntities(t *testing.T) {
	det := &Details{
		Type:           TagAccountDelete,
		AccountID:      "not-an-id",
		PayerAccountID: "0.0.5",
	}
	got := ExtractAccounts(det)
	if !reflect.DeepEqual(got, []string{"0.0.5"}) {
		t.Errorf("ExtractAccounts = %v", got)
	}
}

func TestExtractIsPure(t *testing.T) {
	det := transferDetails()
	first := ExtractAmounts(det)
	second := ExtractAmounts(det)
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated extraction differs")
	}
	if det.Transfers[0].Amount != "-10.00000000" {
		t.Error("extraction mutated the details")
	}
}
