package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestUpdateKind_ReportsPopulatedVariant(t *testing.T) {
	raw := `[
		{"update_id": 1, "message": {"message_id": 10, "date": 1, "chat": {"id": 5, "type": "private"}, "text": "hi"}},
		{"update_id": 2, "callback_query": {"id": "cb", "from": {"id": 7, "is_bot": false, "first_name": "A"}, "chat_instance": "x", "data": "yes"}},
		{"update_id": 3, "my_chat_member": {"chat": {"id": 9, "type": "group"}, "from": {"id": 7, "is_bot": false, "first_name": "A"}, "date": 3}},
		{"update_id": 4, "business_connection": {"id": "future"}}
	]`
	var updates []*Update
	if err := json.Unmarshal([]byte(raw), &updates); err != nil {
		t.Fatalf("decode: %v", err)
	}
	expected := []UpdateType{UpdateTypeMessage, UpdateTypeCallbackQuery, UpdateTypeMyChatMember, UpdateTypeUnknown}
	for i, update := range updates {
		if got := update.Kind(); got != expected[i] {
			t.Fatalf("expected kind %q for update %d, got %q", expected[i], update.UpdateID, got)
		}
		if err := update.Validate(); err != nil {
			t.Fatalf("expected update %d to validate, got %v", update.UpdateID, err)
		}
	}
	if chat := updates[0].Chat(); chat == nil || chat.ID != 5 {
		t.Fatalf("expected message chat 5, got %+v", chat)
	}
	if chat := updates[2].Chat(); chat == nil || chat.ID != 9 {
		t.Fatalf("expected member chat 9, got %+v", chat)
	}
}

func TestUpdateValidate_RejectsAmbiguousPayload(t *testing.T) {
	update := &Update{UpdateID: 1, Message: &Message{}, Poll: &Poll{}}
	if err := update.Validate(); !errors.Is(err, ErrAmbiguousUpdate) {
		t.Fatalf("expected ambiguous update error, got %v", err)
	}
	var missing *Update
	if err := missing.Validate(); !errors.Is(err, ErrUpdateRequired) {
		t.Fatalf("expected update required error, got %v", err)
	}
	if missing.Kind() != UpdateTypeUnknown {
		t.Fatalf("expected unknown kind for nil update")
	}
}

func TestMessageCommand_ParsesBotCommand(t *testing.T) {
	msg := &Message{
		Text:     "/start@my_bot  payload",
		Entities: []MessageEntity{{Type: "bot_command", Offset: 0, Length: 13}},
	}
	command, args, ok := msg.Command()
	if !ok {
		t.Fatalf("expected command")
	}
	if command != "start" {
		t.Fatalf("expected start, got %q", command)
	}
	if args != "payload" {
		t.Fatalf("expected payload args, got %q", args)
	}

	plain := &Message{Text: "hello"}
	if _, _, ok := plain.Command(); ok {
		t.Fatalf("expected no command for plain text")
	}
}

func TestUpdateTypeValid(t *testing.T) {
	if !UpdateTypeChatJoinRequest.Valid() {
		t.Fatalf("expected chat_join_request to be valid")
	}
	if UpdateType("nope").Valid() || UpdateTypeUnknown.Valid() {
		t.Fatalf("expected unknown types to be invalid")
	}
}
