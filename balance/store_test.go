package balance

import "testing"

func TestListOptsPage(t *testing.T) {
	all := make([]*Withdrawal, 4)
	for i := range all {
		all[i] = &Withdrawal{CreatedAt: int64(i)}
	}

	tests := []struct {
		name    string
		opts    ListOpts
		wantLen int
	}{
		{"everything", ListOpts{}, 4},
		{"offset and limit", ListOpts{Offset: 1, Limit: 2}, 2},
		{"offset past end", ListOpts{Offset: 4}, 0},
		{"negative offset", ListOpts{Offset: -2, Limit: 1}, 1},
		{"negative limit", ListOpts{Limit: -1}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Page(all); len(got) != tt.wantLen {
				t.Errorf("got %d withdrawals, want %d", len(got), tt.wantLen)
			}
		})
	}
}
