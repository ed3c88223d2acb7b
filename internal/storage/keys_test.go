package storage

import "testing"

func TestTicketKey(t *testing.T) {
	got := TicketKey(7, 3, "01HZXW5Y8K9Q2M4N6P8R0T2V4X", 12)
	want := "tickets/7/3/01HZXW5Y8K9Q2M4N6P8R0T2V4X-page-12.pdf"
	if got != want {
		t.Fatalf("TicketKey = %q, want %q", got, want)
	}
}

func TestParseTicketKey(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		eventID string
		ok      bool
	}{
		{"artifact key", "tickets/7/3/abc-page-1.pdf", "7", true},
		{"staging key", "staging/01HZXW5Y8K9Q2M4N6P8R0T2V4X.pdf", "", false},
		{"wrong extension", "tickets/7/3/abc-page-1.png", "", false},
		{"wrong depth", "tickets/7/abc.pdf", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eventID, ok := ParseTicketKey(tc.key)
			if ok != tc.ok || eventID != tc.eventID {
				t.Fatalf("ParseTicketKey(%q) = (%q, %v), want (%q, %v)", tc.key, eventID, ok, tc.eventID, tc.ok)
			}
		})
	}
}
