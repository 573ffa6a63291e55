package invoice

import (
	"strings"
	"testing"
	"time"

	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/types"
)

func TestComputeTotal(t *testing.T) {
	tests := []struct {
		name                    string
		subtotal, tax, discount int64
		want                    int64
	}{
		{"plain", 1000, 0, 0, 1000},
		{"with tax", 1000, 150, 0, 1150},
		{"with discount", 1000, 150, 200, 950},
		{"discount exceeds", 1000, 0, 1500, 0},
		{"all zero", 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotal(types.USD(tt.subtotal), types.USD(tt.tax), types.USD(tt.discount))
			if got.Amount != tt.want {
				t.Errorf("got %d, want %d", got.Amount, tt.want)
			}
			if got.Amount < 0 {
				t.Error("total must never be negative")
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusIssued, true},
		{StatusDraft, StatusVoid, true},
		{StatusDraft, StatusPaid, false},
		{StatusDraft, StatusOverdue, false},
		{StatusIssued, StatusIssued, false},
		{StatusIssued, StatusPaid, true},
		{StatusIssued, StatusOverdue, true},
		{StatusIssued, StatusVoid, true},
		{StatusOverdue, StatusPaid, true},
		{StatusOverdue, StatusVoid, true},
		{StatusOverdue, StatusIssued, false},
		{StatusPaid, StatusVoid, false},
		{StatusPaid, StatusIssued, false},
		{StatusVoid, StatusDraft, false},
		{StatusVoid, StatusVoid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.ok {
				t.Errorf("got %v, want %v", got, tt.ok)
			}
		})
	}

	if !StatusPaid.IsTerminal() || !StatusVoid.IsTerminal() || StatusIssued.IsTerminal() {
		t.Error("IsTerminal: paid and void must be terminal, issued must not")
	}
}

func TestAttachVoidReason(t *testing.T) {
	inv := &Invoice{LineItems: []LineItem{{Description: "Premium"}, {Description: "SMS", Metadata: map[string]string{"k": "v"}}}}
	inv.AttachVoidReason("  duplicate billing ")

	if len(inv.LineItems) != 2 {
		t.Fatalf("line items: got %d, want 2", len(inv.LineItems))
	}
	for i, li := range inv.LineItems {
		if li.Metadata[MetadataVoidReason] != "duplicate billing" {
			t.Errorf("line %d: reason %q", i, li.Metadata[MetadataVoidReason])
		}
	}
	if inv.LineItems[1].Metadata["k"] != "v" {
		t.Error("existing metadata must be kept")
	}
	if inv.VoidReason() != "duplicate billing" {
		t.Errorf("VoidReason: got %q", inv.VoidReason())
	}

	empty := &Invoice{}
	empty.AttachVoidReason("tenant closed")
	if empty.VoidReason() != "tenant closed" {
		t.Errorf("VoidReason without lines: got %q", empty.VoidReason())
	}

	blank := &Invoice{LineItems: []LineItem{{}}}
	blank.AttachVoidReason("   ")
	if blank.LineItems[0].Metadata != nil {
		t.Error("blank reason must not touch metadata")
	}
}

func TestNewNumber(t *testing.T) {
	invID := id.NewInvoiceID()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	n := NewNumber(invID, start)
	if !strings.HasPrefix(n, "INV-202503-") {
		t.Errorf("prefix: got %s", n)
	}
	if len(n) != len("INV-202503-")+8 {
		t.Errorf("length: got %d (%s)", len(n), n)
	}
	if NewNumber(id.NewInvoiceID(), start) == n {
		t.Error("numbers for distinct invoices must differ")
	}
}

func TestSumLines(t *testing.T) {
	items := []LineItem{{Amount: types.USD(500)}, {Amount: types.USD(700)}}
	if got := SumLines("usd", items); !got.Equal(types.USD(1200)) {
		t.Errorf("got %v", got)
	}
}
