package collect

import (
	"encoding/json"

	"github.com/jiyun-dev/chzzk-vodset/chzzkapi"
	"github.com/jiyun-dev/chzzk-vodset/model"
)

// Feed message classification constants. Type codes observed on the feed:
// 1 plain chat, 10 donation, 11 subscription, 30 system.
const (
	messageTypeChat     = 1
	messageStatusNormal = "NORMAL"
	donationTypeChat    = "CHAT"
	defaultOSType       = "not_pc"
)

// messageExtras is the subset of the opaque extras blob the filter cares
// about. All fields are optional; plain chats usually carry none of them.
type messageExtras struct {
	DonationType string `json:"donationType"`
	PayAmount    int64  `json:"payAmount"`
	OSType       string `json:"osType"`
}

// FilterMessage classifies one raw message. It returns the canonical record
// and true when the message is kept: status must be NORMAL and the message
// must be either a plain chat or a plain CHAT-type donation. Everything else
// (system messages, blinded chat, mission donations, subscriptions) is
// rejected, as is malformed input. Total function; never errors.
func FilterMessage(m chzzkapi.RawMessage, videoID int64) (model.ChatRecord, bool) {
	if m.UserIDHash == "" {
		return model.ChatRecord{}, false
	}

	extras := messageExtras{PayAmount: 0, OSType: defaultOSType}
	if m.Extras != "" && m.Extras != "null" {
		if err := json.Unmarshal([]byte(m.Extras), &extras); err != nil {
			return model.ChatRecord{}, false
		}
		if extras.OSType == "" {
			extras.OSType = defaultOSType
		}
	}

	keep := m.MessageStatusType == messageStatusNormal &&
		(m.MessageTypeCode == messageTypeChat || extras.DonationType == donationTypeChat)
	if !keep {
		return model.ChatRecord{}, false
	}

	return model.ChatRecord{
		VideoID:     videoID,
		Content:     m.Content,
		TimestampMS: m.PlayerMessageTime,
		UserIDHash:  m.UserIDHash,
		PayAmount:   extras.PayAmount,
		OSType:      extras.OSType,
	}, true
}

// FilterMessages filters a page of raw messages into canonical records,
// preserving feed order. The result may be empty.
func FilterMessages(msgs []chzzkapi.RawMessage, videoID int64) []model.ChatRecord {
	out := make([]model.ChatRecord, 0, len(msgs))
	for _, m := range msgs {
		if rec, ok := FilterMessage(m, videoID); ok {
			out = append(out, rec)
		}
	}
	return out
}
