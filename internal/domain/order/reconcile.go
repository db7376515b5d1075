package order

// Reconcile derives the parent order status from its children's
// statuses. It is a pure function of (current, children) and is
// idempotent: re-observing the same child statuses never produces a
// second transition, and an order that reached SHIPPED or DELIVERED is
// never regressed by further passes.
//
// Only PROCESSING and SHIPPED orders are reconciled. An ERROR order
// stays in ERROR until an operator retries it, even when a placed
// sibling keeps advancing; NEW and terminal orders are untouched.
//
// Rules, checked in order over the non-empty child set:
//   - all delivered            -> DELIVERED
//   - all shipped-or-delivered -> SHIPPED
//   - otherwise                -> PROCESSING (no regression)
func Reconcile(current Status, children []SupplierStatus) (Status, bool) {
	if current != StatusProcessing && current != StatusShipped {
		return current, false
	}
	if len(children) == 0 {
		return current, false
	}

	allDelivered := true
	allShipped := true
	for _, st := range children {
		if st != SupplierDelivered {
			allDelivered = false
		}
		if !st.Shipped() {
			allShipped = false
		}
	}

	switch {
	case allDelivered:
		return StatusDelivered, current != StatusDelivered
	case allShipped:
		if current == StatusShipped {
			return current, false
		}
		return StatusShipped, true
	default:
		// A partially shipped order keeps its highest observed status.
		if current == StatusShipped {
			return current, false
		}
		if current == StatusProcessing {
			return current, false
		}
		return StatusProcessing, true
	}
}
