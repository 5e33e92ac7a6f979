package query

// TenantField is the document field holding the tenant id.
const TenantField = "tenant_id"

// RestrictToTenant returns q additionally constrained to documents whose
// field equals tenantID. The restriction is a non-scoring filter clause:
//
//   - a nil q (or nil clause pointer) becomes the bare term clause;
//   - a bool q is copied and the term appended to its filter clauses;
//   - any other q is wrapped as the must clause of a new bool.
//
// Existing clauses are never removed or reordered and q itself is not
// modified.
func RestrictToTenant(q Query, field, tenantID string) Query {
	t := &Term{Field: field, Value: tenantID}
	if IsNil(q) {
		return t
	}
	switch v := q.(type) {
	case *Bool:
		b := v.Clone()
		b.Filter = append(b.Filter, t)
		return b
	default:
		return &Bool{Must: []Query{q}, Filter: []Query{t}}
	}
}

// WithTenant returns a copy of src whose query is restricted to tenantID.
// A nil src is treated as match all.
func WithTenant(src *SearchSource, tenantID string) *SearchSource {
	c := src.Clone()
	c.Query = RestrictToTenant(c.Query, TenantField, tenantID)
	return c
}
