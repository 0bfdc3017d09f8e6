package slackbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"feedbackbot/internal/domain"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

type postedMessage struct {
	channel string
	text    string
	blocks  []map[string]any
}

func newMockSlack(t *testing.T, ok bool) (string, *[]postedMessage) {
	t.Helper()
	var posted []postedMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/")
		if path != "chat.postMessage" {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
			return
		}
		_ = r.ParseForm()
		msg := postedMessage{channel: r.Form.Get("channel"), text: r.Form.Get("text")}
		_ = json.Unmarshal([]byte(r.Form.Get("blocks")), &msg.blocks)
		posted = append(posted, msg)
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C1", "ts": "1.23"})
	}))
	t.Cleanup(server.Close)
	return server.URL + "/api/", &posted
}

func TestChannelUnconfiguredWithoutToken(t *testing.T) {
	c := New("", "", zap.NewNop())
	if c.IsConfigured() {
		t.Fatal("channel without token must be unconfigured")
	}
	if c.Name() != "slack" || c.channel != DefaultChannel {
		t.Fatalf("unexpected defaults: name=%s channel=%s", c.Name(), c.channel)
	}
	if err := c.PostMessage(context.Background(), "x"); err == nil {
		t.Fatal("expected error posting without configuration")
	}
}

func TestDeliverPostsHeaderAndTruncatedSection(t *testing.T) {
	url, posted := newMockSlack(t, true)
	c := New("xoxb-test", "#product", zap.NewNop(), slack.OptionAPIURL(url))

	content := strings.Repeat("ä", 3500)
	if err := c.Deliver(context.Background(), domain.Report{ID: 1, Content: content}); err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}
	if len(*posted) != 1 {
		t.Fatalf("expected one message, got %d", len(*posted))
	}
	msg := (*posted)[0]
	if msg.channel != "#product" {
		t.Fatalf("unexpected channel: %s", msg.channel)
	}
	if len(msg.blocks) != 2 || msg.blocks[0]["type"] != "header" || msg.blocks[1]["type"] != "section" {
		t.Fatalf("unexpected blocks: %+v", msg.blocks)
	}
	section, _ := msg.blocks[1]["text"].(map[string]any)
	text, _ := section["text"].(string)
	if section["type"] != "mrkdwn" || len([]rune(text)) != 3000 {
		t.Fatalf("section should be 3000 mrkdwn characters, got type=%v len=%d", section["type"], len([]rune(text)))
	}
}

func TestDeliverSurfacesSlackErrors(t *testing.T) {
	url, _ := newMockSlack(t, false)
	c := New("xoxb-test", "#missing", zap.NewNop(), slack.OptionAPIURL(url))

	err := c.Deliver(context.Background(), domain.Report{Content: "# r"})
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected channel_not_found error, got %v", err)
	}
}
