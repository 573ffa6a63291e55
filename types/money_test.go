package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"EUR", EUR(19900), 19900, "eur", "€199.00"},
		{"New normalises", New(250000, " NGN "), 250000, "ngn", "₦2500.00"},
		{"Zero-decimal", New(1500, "JPY"), 1500, "jpy", "¥1500"},
		{"Unknown currency", New(1234, "xof"), 1234, "xof", "XOF 12.34"},
		{"Zero KES", Zero("KES"), 0, "kes", "KSh 0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return USD(100).Add(USD(200)) }, USD(300)},
		{"Subtract", func() Money { return USD(500).Subtract(USD(200)) }, USD(300)},
		{"Multiply", func() Money { return USD(100).Multiply(3) }, USD(300)},
		{"FloorZero negative", func() Money { return USD(100).Subtract(USD(250)).FloorZero() }, USD(0)},
		{"FloorZero positive", func() Money { return USD(250).FloorZero() }, USD(250)},
		{"Sum", func() Money { return Sum("usd", USD(100), USD(200), USD(300)) }, USD(600)},
		{"Sum empty", func() Money { return Sum("eur") }, EUR(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = USD(100).Add(EUR(100))
}

func TestMoneyComparison(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Money
		less  bool
		gte   bool
		equal bool
	}{
		{"Equal", USD(100), USD(100), false, true, true},
		{"Less", USD(50), USD(100), true, false, false},
		{"Greater", USD(200), USD(100), false, true, false},
		{"Zero equal", USD(0), Zero("usd"), false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.LessThan(tt.b); got != tt.less {
				t.Errorf("LessThan: got %v, want %v", got, tt.less)
			}
			if got := tt.a.GreaterOrEqual(tt.b); got != tt.gte {
				t.Errorf("GreaterOrEqual: got %v, want %v", got, tt.gte)
			}
			if got := tt.a.Equal(tt.b); got != tt.equal {
				t.Errorf("Equal: got %v, want %v", got, tt.equal)
			}
		})
	}

	if USD(1).SameCurrency(EUR(1)) {
		t.Error("SameCurrency: usd and eur reported equal")
	}
}

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		money    Money
		expected string
	}{
		{USD(4900), "49.00"},
		{USD(1), "0.01"},
		{USD(0), "0.00"},
		{USD(-4900), "-49.00"},
		{USD(-1), "-0.01"},
		{New(12345, "jpy"), "12345"},
		{New(700, "ugx"), "700"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.expected {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(4900))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if decoded["display"] != "$49.00" {
		t.Errorf("display: got %v", decoded["display"])
	}

	var m Money
	if err := json.Unmarshal([]byte(`{"amount":1250,"currency":"EUR","display":"ignored"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !m.Equal(EUR(1250)) {
		t.Errorf("got %v, want %v", m, EUR(1250))
	}
}

func TestEntityTouch(t *testing.T) {
	created := time.Date(2025, 1, 1, 8, 0, 0, 0, time.FixedZone("WAT", 3600))
	e := NewEntityAt(created)
	if e.CreatedAt.Location() != time.UTC || !e.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt: got %v", e.CreatedAt)
	}

	later := created.Add(time.Hour)
	e.Touch(later)
	if !e.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt: got %v, want %v", e.UpdatedAt, later)
	}
	if !e.CreatedAt.Equal(created) {
		t.Error("Touch must not change CreatedAt")
	}
}
