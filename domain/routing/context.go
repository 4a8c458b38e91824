package routing

// Context is the flattened view of a payment a Rule's conditions evaluate
// against. MetadataJSON carries caller-supplied free-form fields (e.g.
// merchant_category, customer_risk_tier overrides) as a raw JSON document;
// fields under it are addressed as "metadata.<path>" using gjson path
// syntax, so a condition can reach a nested field without this package
// needing a schema for every tenant's metadata shape.
type Context struct {
	TenantID         string
	BusinessUnitID   string
	PaymentType      string
	Channel          string
	AmountMinor      int64
	Currency         string
	CustomerRiskTier string
	MetadataJSON     string
}

// baseFields returns the set of identifiers a condition may reference
// directly (without the "metadata." prefix).
func (c Context) baseFields() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":          c.TenantID,
		"business_unit_id":   c.BusinessUnitID,
		"payment_type":       c.PaymentType,
		"channel":            c.Channel,
		"amount_minor":       c.AmountMinor,
		"currency":           c.Currency,
		"customer_risk_tier": c.CustomerRiskTier,
	}
}
