package order

import "fmt"

// VerifyPartition checks that the union of line items across the
// children equals the parent's own line items exactly: every item key
// appears in exactly one child with the same total quantity, and no
// child carries an item the parent does not have.
func VerifyPartition(parent *Order, subs []*SupplierOrder) error {
	want := make(map[string]int, len(parent.Items))
	for _, li := range parent.Items {
		want[li.Key()] += li.Quantity
	}

	got := make(map[string]int)
	owner := make(map[string]string)
	for _, so := range subs {
		for _, li := range so.Items {
			key := li.Key()
			if _, ok := want[key]; !ok {
				return fmt.Errorf("supplier order %s carries unknown item %s", so.ID, key)
			}
			if prev, ok := owner[key]; ok && prev != so.ID {
				return fmt.Errorf("item %s routed to more than one supplier order", key)
			}
			owner[key] = so.ID
			got[key] += li.Quantity
		}
	}

	for key, qty := range want {
		g, ok := got[key]
		if !ok {
			return fmt.Errorf("item %s missing from every supplier order", key)
		}
		if g != qty {
			return fmt.Errorf("item %s quantity mismatch: order has %d, children have %d", key, qty, g)
		}
	}
	return nil
}
