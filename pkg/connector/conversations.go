package connector

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ConversationsClient talks to a channel's conversations API
// (/v3/conversations). One client is built per service URL.
type ConversationsClient struct {
	c *client
}

// NewConversationsClient returns a conversations surface for serviceURL.
func NewConversationsClient(serviceURL string, opts Options) *ConversationsClient {
	return &ConversationsClient{c: newClient("ConversationsClient", serviceURL, opts)}
}

// CreateConversation starts a new conversation with the given members.
func (cc *ConversationsClient) CreateConversation(ctx context.Context, params *ConversationParameters) (_ *ConversationResourceResponse, err error) {
	ctx, end := cc.c.start(ctx, "CreateConversation")
	defer func() { end(err) }()

	if err := cc.c.require("CreateConversation", ptr("params", params)); err != nil {
		return nil, err
	}

	var out ConversationResourceResponse
	if err := cc.c.do(ctx, request{method: http.MethodPost, path: "/v3/conversations", body: params}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConversations lists the conversations the bot has participated in.
// An empty continuationToken requests the first page.
func (cc *ConversationsClient) GetConversations(ctx context.Context, continuationToken string) (_ *ConversationsResult, err error) {
	ctx, end := cc.c.start(ctx, "GetConversations")
	defer func() { end(err) }()

	var out ConversationsResult
	err = cc.c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v3/conversations",
		query:  url.Values{"continuationToken": {continuationToken}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendToConversation appends an activity to the end of a conversation.
func (cc *ConversationsClient) SendToConversation(ctx context.Context, conversationID string, activity *Activity) (_ *ResourceResponse, err error) {
	ctx, end := cc.c.start(ctx, "SendToConversation")
	defer func() { end(err) }()

	if err := cc.c.require("SendToConversation",
		str("conversationID", conversationID),
		ptr("activity", activity),
	); err != nil {
		return nil, err
	}

	var out ResourceResponse
	err = cc.c.do(ctx, request{
		method: http.MethodPost,
		path:   pathf("/v3/conversations/%s/activities", conversationID),
		body:   activity,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendConversationHistory uploads past activities to a conversation.
func (cc *ConversationsClient) SendConversationHistory(ctx context.Context, conversationID string, transcript *Transcript) (_ *ResourceResponse, err error) {
	ctx, end := cc.c.start(ctx, "SendConversationHistory")
	defer func() { end(err) }()

	if err := cc.c.require("SendConversationHistory",
		str("conversationID", conversationID),
		ptr("transcript", transcript),
	); err != nil {
		return nil, err
	}

	var out ResourceResponse
	err = cc.c.do(ctx, request{
		method: http.MethodPost,
		path:   pathf("/v3/conversations/%s/activities/history", conversationID),
		body:   transcript,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReplyToActivity threads activity under activity.ReplyToID. Channels that do
// not support threading degrade to appending.
func (cc *ConversationsClient) ReplyToActivity(ctx context.Context, conversationID string, activity *Activity) (_ *ResourceResponse, err error) {
	ctx, end := cc.c.start(ctx, "ReplyToActivity")
	defer func() { end(err) }()

	if err := cc.c.require("ReplyToActivity",
		str("conversationID", conversationID),
		ptr("activity", activity),
	); err != nil {
		return nil, err
	}
	if activity.ReplyToID == "" {
		return nil, &ArgumentError{
			Operation: cc.c.name + ".ReplyToActivity",
			Param:     "activity.ReplyToID",
			Err:       ErrReplyTargetRequired,
		}
	}

	var out ResourceResponse
	err = cc.c.do(ctx, request{
		method: http.MethodPost,
		path:   pathf("/v3/conversations/%s/activities/%s", conversationID, activity.ReplyToID),
		body:   activity,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateActivity replaces an existing activity.
func (cc *ConversationsClient) UpdateActivity(ctx context.Context, conversationID, activityID string, activity *Activity) (_ *ResourceResponse, err error) {
	ctx, end := cc.c.start(ctx, "UpdateActivity")
	defer func() { end(err) }()

	if err := cc.c.require("UpdateActivity",
		str("conversationID", conversationID),
		str("activityID", activityID),
		ptr("activity", activity),
	); err != nil {
		return nil, err
	}

	var out ResourceResponse
	err = cc.c.do(ctx, request{
		method: http.MethodPut,
		path:   pathf("/v3/conversations/%s/activities/%s", conversationID, activityID),
		body:   activity,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteActivity removes an existing activity.
func (cc *ConversationsClient) DeleteActivity(ctx context.Context, conversationID, activityID string) (err error) {
	ctx, end := cc.c.start(ctx, "DeleteActivity")
	defer func() { end(err) }()

	if err := cc.c.require("DeleteActivity",
		str("conversationID", conversationID),
		str("activityID", activityID),
	); err != nil {
		return err
	}

	return cc.c.do(ctx, request{
		method: http.MethodDelete,
		path:   pathf("/v3/conversations/%s/activities/%s", conversationID, activityID),
	}, nil)
}

// GetConversationMembers lists every member of a conversation.
func (cc *ConversationsClient) GetConversationMembers(ctx context.Context, conversationID string) (_ []ChannelAccount, err error) {
	ctx, end := cc.c.start(ctx, "GetConversationMembers")
	defer func() { end(err) }()

	if err := cc.c.require("GetConversationMembers", str("conversationID", conversationID)); err != nil {
		return nil, err
	}

	var out []ChannelAccount
	err = cc.c.do(ctx, request{
		method: http.MethodGet,
		path:   pathf("/v3/conversations/%s/members", conversationID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversationMember fetches a single member of a conversation.
func (cc *ConversationsClient) GetConversationMember(ctx context.Context, conversationID, memberID string) (_ *ChannelAccount, err error) {
	ctx, end := cc.c.start(ctx, "GetConversationMember")
	defer func() { end(err) }()

	if err := cc.c.require("GetConversationMember",
		str("conversationID", conversationID),
		str("memberID", memberID),
	); err != nil {
		return nil, err
	}

	var out ChannelAccount
	err = cc.c.do(ctx, request{
		method: http.MethodGet,
		path:   pathf("/v3/conversations/%s/members/%s", conversationID, memberID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConversationPagedMembers lists members one page at a time. A pageSize of
// zero lets the channel pick.
func (cc *ConversationsClient) GetConversationPagedMembers(ctx context.Context, conversationID string, pageSize int, continuationToken string) (_ *PagedMembersResult, err error) {
	ctx, end := cc.c.start(ctx, "GetConversationPagedMembers")
	defer func() { end(err) }()

	if err := cc.c.require("GetConversationPagedMembers", str("conversationID", conversationID)); err != nil {
		return nil, err
	}

	q := url.Values{"continuationToken": {continuationToken}}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}

	var out PagedMembersResult
	err = cc.c.do(ctx, request{
		method: http.MethodGet,
		path:   pathf("/v3/conversations/%s/pagedmembers", conversationID),
		query:  q,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetActivityMembers lists the members addressed by one activity.
func (cc *ConversationsClient) GetActivityMembers(ctx context.Context, conversationID, activityID string) (_ []ChannelAccount, err error) {
	ctx, end := cc.c.start(ctx, "GetActivityMembers")
	defer func() { end(err) }()

	if err := cc.c.require("GetActivityMembers",
		str("conversationID", conversationID),
		str("activityID", activityID),
	); err != nil {
		return nil, err
	}

	var out []ChannelAccount
	err = cc.c.do(ctx, request{
		method: http.MethodGet,
		path:   pathf("/v3/conversations/%s/activities/%s/members", conversationID, activityID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteConversationMember removes a member from a conversation.
func (cc *ConversationsClient) DeleteConversationMember(ctx context.Context, conversationID, memberID string) (err error) {
	ctx, end := cc.c.start(ctx, "DeleteConversationMember")
	defer func() { end(err) }()

	if err := cc.c.require("DeleteConversationMember",
		str("conversationID", conversationID),
		str("memberID", memberID),
	); err != nil {
		return err
	}

	return cc.c.do(ctx, request{
		method: http.MethodDelete,
		path:   pathf("/v3/conversations/%s/members/%s", conversationID, memberID),
	}, nil)
}

// UploadAttachment stores an attachment in the channel's blob storage.
func (cc *ConversationsClient) UploadAttachment(ctx context.Context, conversationID string, data *AttachmentData) (_ *ResourceResponse, err error) {
	ctx, end := cc.c.start(ctx, "UploadAttachment")
	defer func() { end(err) }()

	if err := cc.c.require("UploadAttachment",
		str("conversationID", conversationID),
		ptr("data", data),
	); err != nil {
		return nil, err
	}

	var out ResourceResponse
	err = cc.c.do(ctx, request{
		method: http.MethodPost,
		path:   pathf("/v3/conversations/%s/attachments", conversationID),
		body:   data,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
