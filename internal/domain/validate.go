package domain

import "fmt"

// ValidateDiscrepancy checks that a record can be corrected on its own:
// known kind, the remote identifiers its class needs, and the matching payload.
func ValidateDiscrepancy(r DiscrepancyRecord) error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	class, err := r.Kind.Class()
	if err != nil {
		return err
	}
	switch class {
	case ClassPrice:
		if r.ProductID == "" {
			return fmt.Errorf("product_id is required")
		}
		if r.VariantID == "" {
			return fmt.Errorf("variant_id is required")
		}
		if r.Price == nil {
			return fmt.Errorf("%s: price payload is required", r.Kind)
		}
	case ClassAttribute:
		if r.ProductID == "" {
			return fmt.Errorf("product_id is required")
		}
		if err := validateAttributePayload(r); err != nil {
			return err
		}
	}
	return nil
}

func validateAttributePayload(r DiscrepancyRecord) error {
	switch r.Kind {
	case KindMissingOversizeTag, KindMissingClearanceTag:
		if r.Tag == nil || len(r.Tag.Add) == 0 {
			return fmt.Errorf("%s: tag payload with tags to add is required", r.Kind)
		}
	case KindClearancePriceMismatch:
		if r.Tag == nil || len(r.Tag.Remove) == 0 {
			return fmt.Errorf("%s: tag payload with tags to remove is required", r.Kind)
		}
	case KindIncorrectTemplate:
		if r.Template == nil {
			return fmt.Errorf("%s: template payload is required", r.Kind)
		}
	case KindH1InDescription:
		if r.Description == nil {
			return fmt.Errorf("%s: description payload is required", r.Kind)
		}
	}
	return nil
}

// ValidateSession checks identifiers and record uniqueness.
func ValidateSession(s AuditSession) error {
	if s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if !s.Mode.Valid() {
		return fmt.Errorf("invalid mode: %q", s.Mode)
	}
	seen := make(map[string]struct{}, len(s.Discrepancies))
	for _, r := range s.Discrepancies {
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate discrepancy id: %q", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
