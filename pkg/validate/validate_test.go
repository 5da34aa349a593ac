package validate

import (
	"context"
	"errors"
	"testing"

	"OptionsFlow/pkg/apperr"
)

type configArgs struct {
	Expiration  int       `json:"expiration" validate:"required,expiration"`
	StrikeRange []float64 `json:"strike_range" validate:"required,min=1,dive,gt=0"`
	BothTypes   *bool     `json:"include_both_types" default:"true"`
}

func TestTicker(t *testing.T) {
	for _, ok := range []string{"SPY", "BRK.B", "A", "BF-B", "ABCDEFGHIJ"} {
		if err := Ticker(ok); err != nil {
			t.Fatalf("%q should be valid: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "1SPY", "SP Y", "TOOLONGTICKER", "spy", "<x>"} {
		err := Ticker(bad)
		if apperr.KindOf(err) != apperr.Validation {
			t.Fatalf("%q should be rejected, got %v", bad, err)
		}
	}
	if NormalizeTicker("  spy ") != "SPY" {
		t.Fatalf("ticker not normalized")
	}
}

func TestStructDefaults(t *testing.T) {
	args := configArgs{Expiration: 20240419, StrikeRange: []float64{400}}
	if err := Struct(context.Background(), &args, "configurations[0]"); err != nil {
		t.Fatalf("valid args rejected: %v", err)
	}
	if args.BothTypes == nil || !*args.BothTypes {
		t.Fatalf("include_both_types should default to true")
	}

	no := false
	args = configArgs{Expiration: 20240419, StrikeRange: []float64{400}, BothTypes: &no}
	if err := Struct(context.Background(), &args, ""); err != nil || *args.BothTypes {
		t.Fatalf("explicit false must be kept, err=%v", err)
	}
}

func TestStructViolations(t *testing.T) {
	cases := []struct {
		args  configArgs
		field string
	}{
		{configArgs{Expiration: 20241345, StrikeRange: []float64{400}}, "configurations[2].expiration"},
		{configArgs{Expiration: 2024041, StrikeRange: []float64{400}}, "configurations[2].expiration"},
		{configArgs{Expiration: 20240419}, "configurations[2].strike_range"},
		{configArgs{Expiration: 20240419, StrikeRange: []float64{}}, "configurations[2].strike_range"},
		{configArgs{Expiration: 20240419, StrikeRange: []float64{400, -5}}, "configurations[2].strike_range[1]"},
	}
	for _, c := range cases {
		args := c.args
		err := Struct(context.Background(), &args, "configurations[2]")
		var ae *apperr.Error
		if !errors.As(err, &ae) || ae.Kind != apperr.Validation {
			t.Fatalf("%+v: expected VALIDATION, got %v", c.args, err)
		}
		if ae.Field != c.field {
			t.Fatalf("%+v: field %q, want %q", c.args, ae.Field, c.field)
		}
	}
}
