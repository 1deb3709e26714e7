package invoice

import "testing"

func TestListOptsPage(t *testing.T) {
	all := make([]*Invoice, 5)
	for i := range all {
		all[i] = &Invoice{CreatedAt: int64(i)}
	}

	tests := []struct {
		name      string
		opts      ListOpts
		wantLen   int
		wantFirst int64
	}{
		{"everything", ListOpts{}, 5, 0},
		{"offset", ListOpts{Offset: 2}, 3, 2},
		{"limit", ListOpts{Limit: 2}, 2, 0},
		{"offset and limit", ListOpts{Offset: 1, Limit: 3}, 3, 1},
		{"offset past end", ListOpts{Offset: 9}, 0, 0},
		{"negative offset", ListOpts{Offset: -1}, 5, 0},
		{"negative limit", ListOpts{Limit: -3}, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.opts.Page(all)
			if len(got) != tt.wantLen {
				t.Fatalf("got %d invoices, want %d", len(got), tt.wantLen)
			}
			if tt.wantLen > 0 && got[0].CreatedAt != tt.wantFirst {
				t.Errorf("got first %d, want %d", got[0].CreatedAt, tt.wantFirst)
			}
		})
	}
}
