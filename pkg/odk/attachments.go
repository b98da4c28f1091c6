package odk

import (
	"context"
	"fmt"

	"github.com/civicbridge/platform/pkg/common/models"
)

// ListExpectedAttachments enumerates the attachments ODK Central expects for
// one submission instance. Failures are not wrapped: attachment errors abort
// the submission being processed (fail-fast, per pipeline contract).
func (c *Client) ListExpectedAttachments(ctx context.Context, instanceID string) ([]models.AttachmentInfo, error) {
	url := fmt.Sprintf("%s/submissions/%s/attachments", c.formURL(), instanceID)

	var attachments []models.AttachmentInfo
	if err := c.getJSON(ctx, url, nil, &attachments); err != nil {
		return nil, err
	}
	return attachments, nil
}

// DownloadAttachment fetches the raw bytes of one named attachment.
func (c *Client) DownloadAttachment(ctx context.Context, instanceID, name string) ([]byte, error) {
	url := fmt.Sprintf("%s/submissions/%s/attachments/%s", c.formURL(), instanceID, name)
	return c.getRaw(ctx, url, nil)
}
