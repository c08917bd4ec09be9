package model

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to OrderStatus }{
		{OrderStatusDraft, OrderStatusNew},
		{OrderStatusNew, OrderStatusReturned},
		{OrderStatusNew, OrderStatusInProgress},
		{OrderStatusReturned, OrderStatusReturned},
		{OrderStatusReturned, OrderStatusInProgress},
		{OrderStatusInProgress, OrderStatusApproved},
	}

	all := []OrderStatus{
		OrderStatusDraft,
		OrderStatusNew,
		OrderStatusReturned,
		OrderStatusInProgress,
		OrderStatusApproved,
	}

	isAllowed := func(from, to OrderStatus) bool {
		for _, a := range allowed {
			if a.from == from && a.to == to {
				return true
			}
		}
		return false
	}

	// Перечисленные пары разрешены, все остальные комбинации запрещены.
	for _, from := range all {
		for _, to := range all {
			want := isAllowed(from, to)
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_ApprovedIsTerminal(t *testing.T) {
	for _, to := range []OrderStatus{OrderStatusDraft, OrderStatusNew, OrderStatusReturned, OrderStatusInProgress, OrderStatusApproved} {
		if CanTransition(OrderStatusApproved, to) {
			t.Errorf("approved order must not transition to %s", to)
		}
	}
}
