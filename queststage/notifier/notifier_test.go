package notifier

import "testing"

func TestDeepLink(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		key     string
		want    string
	}{
		{"plain base", "https://hunt.example.com", "backstage", "https://hunt.example.com/dialogues/backstage"},
		{"trailing slash stripped", "https://hunt.example.com/", "backstage", "https://hunt.example.com/dialogues/backstage"},
		{"empty base stays relative", "", "backstage", "/dialogues/backstage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeepLink(tt.baseURL, tt.key); got != tt.want {
				t.Errorf("DeepLink() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUninitializedDispatcherDropsPush(t *testing.T) {
	d := NewDiscordDispatcher(nil)
	if d.Send("100", "title", "body", "") {
		t.Error("Send() on uninitialized dispatcher = true, want false")
	}
}
