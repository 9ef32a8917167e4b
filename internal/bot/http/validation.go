package http

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/aussiebroadwan/signinbot/pkg/connector"
)

// validateActivity checks the fields the bot needs before anything else
// touches the activity.
func validateActivity(a *connector.Activity) error {
	if a == nil {
		return errors.New("activity is required")
	}

	return validation.Errors{
		"type":       validation.Validate(a.Type, validation.Required),
		"channelId":  validation.Validate(a.ChannelID, validation.Required),
		"serviceUrl": validation.Validate(a.ServiceURL, validation.Required, is.URL),
		"from": validation.Validate(a.From,
			validation.NotNil,
			validation.By(accountHasID),
		),
		"conversation": validation.Validate(a.Conversation,
			validation.NotNil,
			validation.By(conversationHasID),
		),
	}.Filter()
}

func accountHasID(value any) error {
	acc, _ := value.(*connector.ChannelAccount)
	if acc == nil {
		return nil
	}
	return validation.ValidateStruct(acc,
		validation.Field(&acc.ID, validation.Required),
	)
}

func conversationHasID(value any) error {
	conv, _ := value.(*connector.ConversationAccount)
	if conv == nil {
		return nil
	}
	return validation.ValidateStruct(conv,
		validation.Field(&conv.ID, validation.Required),
	)
}
