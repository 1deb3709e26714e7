package balance

// ListOpts pages a merchant's withdrawals. Results are newest first.
type ListOpts struct {
	Limit  int
	Offset int
}

// Page applies Offset and Limit to a newest-first slice. A negative Offset
// counts as zero and a non-positive Limit means no limit.
func (o ListOpts) Page(all []*Withdrawal) []*Withdrawal {
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Offset >= len(all) {
		return []*Withdrawal{}
	}
	all = all[o.Offset:]
	if o.Limit > 0 && o.Limit < len(all) {
		all = all[:o.Limit]
	}
	return all
}
