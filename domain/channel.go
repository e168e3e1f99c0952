package domain

import "fmt"

// ChannelID keys a logical broadcast group. Channels have no persistent
// identity beyond their key; membership is derived at subscribe time.
type ChannelID string

// ConversationChannel keys the broadcast group of one conversation.
// Membership is limited to the two accepted participants.
func ConversationChannel(id ConversationID) ChannelID {
	return ChannelID(fmt.Sprintf("conversation:%d", id))
}

// PrivateChannel keys a user's direct notification channel. Every live
// connection of the user is subscribed to it automatically on registration.
func PrivateChannel(u UserID) ChannelID {
	return ChannelID("user:" + u)
}
