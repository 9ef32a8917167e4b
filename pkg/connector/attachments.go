package connector

import (
	"context"
	"io"
	"net/http"
)

// AttachmentsClient reads attachments stored by a channel.
type AttachmentsClient struct {
	c *client
}

// NewAttachmentsClient returns an attachments surface for serviceURL.
func NewAttachmentsClient(serviceURL string, opts Options) *AttachmentsClient {
	return &AttachmentsClient{c: newClient("AttachmentsClient", serviceURL, opts)}
}

// GetAttachmentInfo describes a stored attachment and its views.
func (ac *AttachmentsClient) GetAttachmentInfo(ctx context.Context, attachmentID string) (_ *AttachmentInfo, err error) {
	ctx, end := ac.c.start(ctx, "GetAttachmentInfo")
	defer func() { end(err) }()

	if err := ac.c.require("GetAttachmentInfo", str("attachmentID", attachmentID)); err != nil {
		return nil, err
	}

	var out AttachmentInfo
	err = ac.c.do(ctx, request{
		method: http.MethodGet,
		path:   pathf("/v3/attachments/%s", attachmentID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAttachment streams one view of an attachment. The caller must close the
// returned body.
func (ac *AttachmentsClient) GetAttachment(ctx context.Context, attachmentID, viewID string) (_ io.ReadCloser, err error) {
	ctx, end := ac.c.start(ctx, "GetAttachment")
	defer func() { end(err) }()

	if err := ac.c.require("GetAttachment",
		str("attachmentID", attachmentID),
		str("viewID", viewID),
	); err != nil {
		return nil, err
	}

	resp, err := ac.c.open(ctx, request{
		method: http.MethodGet,
		path:   pathf("/v3/attachments/%s/views/%s", attachmentID, viewID),
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, newRequestFailedError(resp.StatusCode, body)
	}
	return resp.Body, nil
}
