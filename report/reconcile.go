package report

import "log/slog"

// ReconcileMooringServices folds services add-ons bought on a separate order
// into the mooring row of the same contact. It must run after the whole
// batch is normalized. Only the first mooring with a matching email is
// flagged. Returns the number of add-ons that found a mooring.
func ReconcileMooringServices(records []*Record) int {
	matched := 0
	for _, addOn := range records {
		if !addOn.HasServicesAddOn() {
			continue
		}
		target := firstMooringFor(records, addOn)
		if target == nil {
			slog.Warn("Mooring services purchased without a mooring",
				"order", addOn.ID)
			continue
		}
		target.Mooring.Services = true
		matched++
	}
	return matched
}

func firstMooringFor(records []*Record, addOn *Record) *Record {
	for _, r := range records {
		if r == addOn || r.MooringLocation() == "" {
			continue
		}
		if r.SameContact(addOn) {
			return r
		}
	}
	return nil
}
