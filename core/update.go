package core

import "encoding/json"

type UpdateType string

const (
	UpdateTypeUnknown            UpdateType = ""
	UpdateTypeMessage            UpdateType = "message"
	UpdateTypeEditedMessage      UpdateType = "edited_message"
	UpdateTypeChannelPost        UpdateType = "channel_post"
	UpdateTypeEditedChannelPost  UpdateType = "edited_channel_post"
	UpdateTypeInlineQuery        UpdateType = "inline_query"
	UpdateTypeChosenInlineResult UpdateType = "chosen_inline_result"
	UpdateTypeCallbackQuery      UpdateType = "callback_query"
	UpdateTypeShippingQuery      UpdateType = "shipping_query"
	UpdateTypePreCheckoutQuery   UpdateType = "pre_checkout_query"
	UpdateTypePoll               UpdateType = "poll"
	UpdateTypePollAnswer         UpdateType = "poll_answer"
	UpdateTypeMyChatMember       UpdateType = "my_chat_member"
	UpdateTypeChatMember         UpdateType = "chat_member"
	UpdateTypeChatJoinRequest    UpdateType = "chat_join_request"
)

// AllUpdateTypes lists every variant an Update can carry, in wire order.
func AllUpdateTypes() []UpdateType {
	return []UpdateType{
		UpdateTypeMessage,
		UpdateTypeEditedMessage,
		UpdateTypeChannelPost,
		UpdateTypeEditedChannelPost,
		UpdateTypeInlineQuery,
		UpdateTypeChosenInlineResult,
		UpdateTypeCallbackQuery,
		UpdateTypeShippingQuery,
		UpdateTypePreCheckoutQuery,
		UpdateTypePoll,
		UpdateTypePollAnswer,
		UpdateTypeMyChatMember,
		UpdateTypeChatMember,
		UpdateTypeChatJoinRequest,
	}
}

func (t UpdateType) Valid() bool {
	for _, known := range AllUpdateTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Update is one event delivered by the platform. Exactly one payload field is
// populated; Kind reports which.
type Update struct {
	UpdateID           int64               `json:"update_id"`
	Message            *Message            `json:"message,omitempty"`
	EditedMessage      *Message            `json:"edited_message,omitempty"`
	ChannelPost        *Message            `json:"channel_post,omitempty"`
	EditedChannelPost  *Message            `json:"edited_channel_post,omitempty"`
	InlineQuery        *InlineQuery        `json:"inline_query,omitempty"`
	ChosenInlineResult *ChosenInlineResult `json:"chosen_inline_result,omitempty"`
	CallbackQuery      *CallbackQuery      `json:"callback_query,omitempty"`
	ShippingQuery      *ShippingQuery      `json:"shipping_query,omitempty"`
	PreCheckoutQuery   *PreCheckoutQuery   `json:"pre_checkout_query,omitempty"`
	Poll               *Poll               `json:"poll,omitempty"`
	PollAnswer         *PollAnswer         `json:"poll_answer,omitempty"`
	MyChatMember       *ChatMemberUpdated  `json:"my_chat_member,omitempty"`
	ChatMember         *ChatMemberUpdated  `json:"chat_member,omitempty"`
	ChatJoinRequest    *ChatJoinRequest    `json:"chat_join_request,omitempty"`
}

func (u *Update) Kind() UpdateType {
	if u == nil {
		return UpdateTypeUnknown
	}
	switch {
	case u.Message != nil:
		return UpdateTypeMessage
	case u.EditedMessage != nil:
		return UpdateTypeEditedMessage
	case u.ChannelPost != nil:
		return UpdateTypeChannelPost
	case u.EditedChannelPost != nil:
		return UpdateTypeEditedChannelPost
	case u.InlineQuery != nil:
		return UpdateTypeInlineQuery
	case u.ChosenInlineResult != nil:
		return UpdateTypeChosenInlineResult
	case u.CallbackQuery != nil:
		return UpdateTypeCallbackQuery
	case u.ShippingQuery != nil:
		return UpdateTypeShippingQuery
	case u.PreCheckoutQuery != nil:
		return UpdateTypePreCheckoutQuery
	case u.Poll != nil:
		return UpdateTypePoll
	case u.PollAnswer != nil:
		return UpdateTypePollAnswer
	case u.MyChatMember != nil:
		return UpdateTypeMyChatMember
	case u.ChatMember != nil:
		return UpdateTypeChatMember
	case u.ChatJoinRequest != nil:
		return UpdateTypeChatJoinRequest
	default:
		return UpdateTypeUnknown
	}
}

// variantCount is used to reject payloads that populate more than one variant.
func (u *Update) variantCount() int {
	if u == nil {
		return 0
	}
	count := 0
	for _, populated := range []bool{
		u.Message != nil,
		u.EditedMessage != nil,
		u.ChannelPost != nil,
		u.EditedChannelPost != nil,
		u.InlineQuery != nil,
		u.ChosenInlineResult != nil,
		u.CallbackQuery != nil,
		u.ShippingQuery != nil,
		u.PreCheckoutQuery != nil,
		u.Poll != nil,
		u.PollAnswer != nil,
		u.MyChatMember != nil,
		u.ChatMember != nil,
		u.ChatJoinRequest != nil,
	} {
		if populated {
			count++
		}
	}
	return count
}

// Validate checks the union invariant. An update with no known variant is
// accepted: the platform adds variants faster than clients learn them.
func (u *Update) Validate() error {
	if u == nil {
		return ErrUpdateRequired
	}
	if u.UpdateID < 0 {
		return ErrInvalidUpdateID
	}
	if u.variantCount() > 1 {
		return ErrAmbiguousUpdate
	}
	return nil
}

// Chat returns the chat the update happened in, when the variant has one.
func (u *Update) Chat() *Chat {
	if u == nil {
		return nil
	}
	if msg := u.AnyMessage(); msg != nil {
		return msg.Chat
	}
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return u.CallbackQuery.Message.Chat
	case u.MyChatMember != nil:
		return u.MyChatMember.Chat
	case u.ChatMember != nil:
		return u.ChatMember.Chat
	case u.ChatJoinRequest != nil:
		return u.ChatJoinRequest.Chat
	}
	return nil
}

// AnyMessage returns the message payload for message-shaped variants.
func (u *Update) AnyMessage() *Message {
	if u == nil {
		return nil
	}
	switch {
	case u.Message != nil:
		return u.Message
	case u.EditedMessage != nil:
		return u.EditedMessage
	case u.ChannelPost != nil:
		return u.ChannelPost
	case u.EditedChannelPost != nil:
		return u.EditedChannelPost
	}
	return nil
}

type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
}

type Message struct {
	MessageID      int64           `json:"message_id"`
	From           *User           `json:"from,omitempty"`
	SenderChat     *Chat           `json:"sender_chat,omitempty"`
	Date           int64           `json:"date"`
	EditDate       int64           `json:"edit_date,omitempty"`
	Chat           *Chat           `json:"chat"`
	Text           string          `json:"text,omitempty"`
	Caption        string          `json:"caption,omitempty"`
	Entities       []MessageEntity `json:"entities,omitempty"`
	ReplyToMessage *Message        `json:"reply_to_message,omitempty"`
	Poll           *Poll           `json:"poll,omitempty"`
}

// Command returns the bot command (without the leading slash and bot mention)
// and its argument text when the message starts with a bot_command entity.
func (m *Message) Command() (string, string, bool) {
	if m == nil || len(m.Entities) == 0 {
		return "", "", false
	}
	entity := m.Entities[0]
	if entity.Type != "bot_command" || entity.Offset != 0 {
		return "", "", false
	}
	runes := []rune(m.Text)
	if entity.Length <= 1 || entity.Length > len(runes) {
		return "", "", false
	}
	command := string(runes[1:entity.Length])
	for i, r := range command {
		if r == '@' {
			command = command[:i]
			break
		}
	}
	args := ""
	if entity.Length < len(runes) {
		args = string(runes[entity.Length:])
	}
	return command, trimLeadingSpace(args), command != ""
}

func trimLeadingSpace(value string) string {
	for len(value) > 0 && (value[0] == ' ' || value[0] == '\n' || value[0] == '\t') {
		value = value[1:]
	}
	return value
}

type InlineQuery struct {
	ID     string `json:"id"`
	From   *User  `json:"from"`
	Query  string `json:"query"`
	Offset string `json:"offset"`
}

type ChosenInlineResult struct {
	ResultID        string `json:"result_id"`
	From            *User  `json:"from"`
	InlineMessageID string `json:"inline_message_id,omitempty"`
	Query           string `json:"query"`
}

type CallbackQuery struct {
	ID              string   `json:"id"`
	From            *User    `json:"from"`
	Message         *Message `json:"message,omitempty"`
	InlineMessageID string   `json:"inline_message_id,omitempty"`
	ChatInstance    string   `json:"chat_instance"`
	Data            string   `json:"data,omitempty"`
}

type ShippingQuery struct {
	ID              string          `json:"id"`
	From            *User           `json:"from"`
	InvoicePayload  string          `json:"invoice_payload"`
	ShippingAddress json.RawMessage `json:"shipping_address,omitempty"`
}

type PreCheckoutQuery struct {
	ID             string `json:"id"`
	From           *User  `json:"from"`
	Currency       string `json:"currency"`
	TotalAmount    int64  `json:"total_amount"`
	InvoicePayload string `json:"invoice_payload"`
}

type PollOption struct {
	Text       string `json:"text"`
	VoterCount int    `json:"voter_count"`
}

type Poll struct {
	ID              string       `json:"id"`
	Question        string       `json:"question"`
	Options         []PollOption `json:"options"`
	TotalVoterCount int          `json:"total_voter_count"`
	IsClosed        bool         `json:"is_closed"`
	IsAnonymous     bool         `json:"is_anonymous"`
	Type            string       `json:"type"`
}

type PollAnswer struct {
	PollID    string `json:"poll_id"`
	User      *User  `json:"user,omitempty"`
	OptionIDs []int  `json:"option_ids"`
}

type ChatMember struct {
	Status string `json:"status"`
	User   *User  `json:"user"`
}

type ChatMemberUpdated struct {
	Chat          *Chat       `json:"chat"`
	From          *User       `json:"from"`
	Date          int64       `json:"date"`
	OldChatMember *ChatMember `json:"old_chat_member"`
	NewChatMember *ChatMember `json:"new_chat_member"`
}

type ChatJoinRequest struct {
	Chat       *Chat  `json:"chat"`
	From       *User  `json:"from"`
	UserChatID int64  `json:"user_chat_id"`
	Date       int64  `json:"date"`
	Bio        string `json:"bio,omitempty"`
}
