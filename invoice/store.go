package invoice

// ListOpts filters and pages a merchant's invoices. Results are newest first.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}

// Page applies Offset and Limit to a newest-first slice. A negative Offset
// counts as zero and a non-positive Limit means no limit.
func (o ListOpts) Page(all []*Invoice) []*Invoice {
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Offset >= len(all) {
		return []*Invoice{}
	}
	all = all[o.Offset:]
	if o.Limit > 0 && o.Limit < len(all) {
		all = all[:o.Limit]
	}
	return all
}
