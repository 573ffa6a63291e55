package payment

import "testing"

func TestMapStatus(t *testing.T) {
	tests := []struct {
		hint, eventType string
		want            Status
	}{
		{"succeeded", "", StatusSucceeded},
		{"", "checkout.session.completed", StatusSucceeded},
		{"COMPLETE", "", StatusSucceeded},
		{"payment_failed", "", StatusFailed},
		{"", "checkout.session.async_payment_failed", StatusFailed},
		{"canceled", "", StatusCanceled},
		{"cancelled", "", StatusCanceled},
		{"refunded", "", StatusRefunded},
		{"processing", "", StatusPending},
		{"", "", StatusPending},
		// precedence: fail beats everything after it
		{"failed_after_complete", "", StatusFailed},
		{"refund_canceled", "", StatusCanceled},
		{"refund_succeeded", "", StatusRefunded},
		// rule order applies across hint and event type
		{"failed", "charge.succeeded", StatusFailed},
		{"succeeded", "payment_intent.payment_failed", StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.hint+"|"+tt.eventType, func(t *testing.T) {
			if got := MapStatus(tt.hint, tt.eventType); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMergeMetadata(t *testing.T) {
	existing := map[string]string{"tenant_id": "t1", "source": "checkout"}
	incoming := map[string]string{"source": "webhook", "invoice_id": "inv_1"}

	got := MergeMetadata(existing, incoming)

	want := map[string]string{"tenant_id": "t1", "source": "webhook", "invoice_id": "inv_1"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: got %q, want %q", k, got[k], v)
		}
	}
	if existing["source"] != "checkout" {
		t.Error("merge must not mutate its inputs")
	}

	if m := MergeMetadata(nil, nil); m == nil || len(m) != 0 {
		t.Errorf("nil inputs: got %v", m)
	}
}
