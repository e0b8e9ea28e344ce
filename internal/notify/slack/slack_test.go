package slack

import (
	"context"
	"errors"
	"testing"

	"github.com/davisfield/switchboard/internal/notify"
	slackapi "github.com/slack-go/slack"
)

type fakeClient struct {
	channels []string
	err      error
}

func (f *fakeClient) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	f.channels = append(f.channels, channelID)
	return channelID, "1", nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(AdapterOpts{ChannelID: "C1"}); err == nil {
		t.Error("expected error without bot token or client")
	}
	if _, err := New(AdapterOpts{Client: &fakeClient{}}); err == nil {
		t.Error("expected error without channel id")
	}
}

func TestPost(t *testing.T) {
	fc := &fakeClient{}
	a, err := New(AdapterOpts{ChannelID: "C1", Client: fc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = a.Post(context.Background(), notify.Notice{
		Title:    "escalation",
		Body:     "recovery exhausted",
		Severity: "critical",
		Fields:   []notify.Field{{Name: "agent", Value: "worker"}},
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(fc.channels) != 1 || fc.channels[0] != "C1" {
		t.Errorf("channels = %v, want [C1]", fc.channels)
	}
}

func TestPost_Error(t *testing.T) {
	fc := &fakeClient{err: errors.New("rate limited")}
	a, _ := New(AdapterOpts{ChannelID: "C1", Client: fc})
	if err := a.Post(context.Background(), notify.Notice{Title: "x"}); err == nil {
		t.Error("expected wrapped post error")
	}
}

func TestToAttachment(t *testing.T) {
	att := toAttachment(notify.Notice{
		Title:    "alert",
		Body:     "body",
		Severity: "high",
		Fields:   []notify.Field{{Name: "k", Value: "v"}},
	})
	if att.Color != "#e85d04" {
		t.Errorf("Color = %q, want high severity orange", att.Color)
	}
	if len(att.Fields) != 1 || att.Fields[0].Title != "k" {
		t.Errorf("Fields = %+v", att.Fields)
	}
}
