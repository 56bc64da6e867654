package telegram

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		wantCmd  string
		wantArgs string
		wantOK   bool
	}{
		{"/start", "start", "", true},
		{"/addgroup -1001", "addgroup", "-1001", true},
		{"/Help@AlertsBot", "help", "", true},
		{"/broadcast  hello world ", "broadcast", "hello world", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		plain := &Message{Text: tt.text}
		cmd, args, ok := ParseCommand(plain)
		if cmd != tt.wantCmd || args != tt.wantArgs || ok != tt.wantOK {
			t.Errorf("ParseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.text, cmd, args, ok, tt.wantCmd, tt.wantArgs, tt.wantOK)
		}

		if !tt.wantOK {
			continue
		}
		head, _, _ := strings.Cut(tt.text, " ")
		tagged := &Message{Text: tt.text, Entities: []MessageEntity{{Type: "bot_command", Offset: 0, Length: len(head)}}}
		cmd, args, ok = ParseCommand(tagged)
		if cmd != tt.wantCmd || args != tt.wantArgs || ok != tt.wantOK {
			t.Errorf("ParseCommand(%q) with entity = (%q, %q, %v), want (%q, %q, %v)",
				tt.text, cmd, args, ok, tt.wantCmd, tt.wantArgs, tt.wantOK)
		}
	}
}

func TestParseCommand_NonCommandEntity(t *testing.T) {
	m := &Message{Text: "/tmp is full", Entities: []MessageEntity{{Type: "bold", Offset: 0, Length: 4}}}
	if _, _, ok := ParseCommand(m); ok {
		t.Error("text with a leading non-command entity is not a command")
	}
}

func TestBotJoined(t *testing.T) {
	tests := []struct {
		old, new string
		want     bool
	}{
		{"left", "member", true},
		{"kicked", "administrator", true},
		{"member", "administrator", false},
		{"member", "left", false},
	}
	for _, tt := range tests {
		u := &ChatMemberUpdated{
			OldChatMember: ChatMember{Status: tt.old},
			NewChatMember: ChatMember{Status: tt.new},
		}
		if got := BotJoined(u); got != tt.want {
			t.Errorf("%s -> %s: BotJoined() = %v, want %v", tt.old, tt.new, got, tt.want)
		}
	}
}

func TestUpdate_Decode(t *testing.T) {
	raw := `{"update_id":10,"my_chat_member":{"chat":{"id":-1001,"type":"supergroup","title":"g"},
		"from":{"id":1,"is_bot":false,"first_name":"a"},"date":1,
		"old_chat_member":{"status":"left","user":{"id":99,"is_bot":true,"first_name":"bot"}},
		"new_chat_member":{"status":"member","user":{"id":99,"is_bot":true,"first_name":"bot"}}}}`

	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.UpdateID != 10 || u.Message != nil || u.MyChatMember == nil {
		t.Fatalf("unexpected update: %+v", u)
	}
	if !IsGroupChat(u.MyChatMember.Chat) || !BotJoined(u.MyChatMember) {
		t.Errorf("expected group join, got %+v", u.MyChatMember)
	}
}

func TestUpdate_DecodeCommandMessage(t *testing.T) {
	raw := `{"update_id":11,"message":{"message_id":3,"date":1,
		"from":{"id":555,"is_bot":false,"first_name":"Ana"},
		"chat":{"id":555,"type":"private","first_name":"Ana"},
		"text":"/update rust, go","entities":[{"type":"bot_command","offset":0,"length":7}]}}`

	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Message == nil || u.Message.Chat == nil || !u.Message.Chat.IsPrivate() || u.Message.From.ID != 555 {
		t.Fatalf("unexpected message: %+v", u.Message)
	}
	cmd, args, ok := ParseCommand(u.Message)
	if !ok || cmd != "update" || args != "rust, go" {
		t.Errorf("ParseCommand = (%q, %q, %v)", cmd, args, ok)
	}
}
