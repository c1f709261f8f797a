package bet

import (
	"testing"

	apperrors "github.com/stakehaus/fairplane/internal/platform/errors"
)

func TestValidateAcceptsKnownVariants(t *testing.T) {
	tests := []Params{
		{StakeCents: 1000, Variant: VariantDice, Pick: 4},
		{StakeCents: 100, Variant: VariantCoin, Pick: 0},
		{StakeCents: 500, Variant: VariantRoulette, Pick: 36},
	}
	for _, p := range tests {
		if err := p.Validate(Limits{}); err != nil {
			t.Fatalf("validate %+v: %v", p, err)
		}
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		code   apperrors.Code
	}{
		{"unknown variant", Params{StakeCents: 1000, Variant: "slots", Pick: 1}, apperrors.CodeBetVariantUnknown},
		{"stake too small", Params{StakeCents: 50, Variant: VariantDice, Pick: 3}, apperrors.CodeBetStakeInvalid},
		{"stake too large", Params{StakeCents: 20000000, Variant: VariantDice, Pick: 3}, apperrors.CodeBetStakeInvalid},
		{"dice pick zero", Params{StakeCents: 1000, Variant: VariantDice, Pick: 0}, apperrors.CodeBetPickOutOfRange},
		{"dice pick seven", Params{StakeCents: 1000, Variant: VariantDice, Pick: 7}, apperrors.CodeBetPickOutOfRange},
		{"roulette pick high", Params{StakeCents: 1000, Variant: VariantRoulette, Pick: 37}, apperrors.CodeBetPickOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate(Limits{})
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := apperrors.GetCode(err); got != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, got)
			}
		})
	}
}

func TestHashIsStableAndSensitive(t *testing.T) {
	p := Params{StakeCents: 1000, Variant: VariantDice, Pick: 4}
	first, err := p.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := p.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first != second {
		t.Fatal("expected stable hash for identical params")
	}

	p.Pick = 5
	changed, err := p.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if changed == first {
		t.Fatal("expected hash to change when pick changes")
	}
}

func TestPayout(t *testing.T) {
	p := Params{StakeCents: 1000, Variant: VariantDice, Pick: 4}
	if got := p.Payout(3); got != 0 {
		t.Fatalf("expected zero payout on loss, got %d", got)
	}
	// 1000 * 6 less 3% edge
	if got := p.Payout(4); got != 5820 {
		t.Fatalf("expected 5820, got %d", got)
	}
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant(" Dice ")
	if err != nil {
		t.Fatalf("parse variant: %v", err)
	}
	if v != VariantDice {
		t.Fatalf("expected dice, got %s", v)
	}
	if _, err := ParseVariant("keno"); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}
