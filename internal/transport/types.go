package transport

import (
	"encoding/json"

	"github.com/foxzi/campaignctl/internal/campaign"
)

// envelope is the common response wrapper of the remote API.
// message is a string for control responses and failures, an object for details.
type envelope struct {
	Status  bool            `json:"status"`
	Message json.RawMessage `json:"message,omitempty"`
}

// ErrorResponse is returned by the remote API on non-2xx responses
type ErrorResponse struct {
	Error string `json:"error"`
}

// controlBody is the payload of a control command
type controlBody struct {
	Delay *campaign.DelayRange `json:"delay,omitempty"`
}

// detailMessage is the message object of a campaign detail response
type detailMessage struct {
	Status     string               `json:"status"`
	Recipients []campaign.Recipient `json:"recipients"`
	Counters   campaign.Counters    `json:"counters"`
	Delay      campaign.DelayRange  `json:"delay"`
}

// Detail is a server snapshot of one campaign
type Detail struct {
	State      campaign.State
	Recipients []campaign.Recipient
	Counters   campaign.Counters
	Delay      campaign.DelayRange
}

// messageText extracts a human readable string from a raw message field
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
