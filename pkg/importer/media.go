package importer

import (
	"context"
	"encoding/base64"
	"mime"
	"path/filepath"
	"strings"

	"github.com/civicbridge/platform/pkg/common/models"
	"github.com/civicbridge/platform/pkg/registry"
)

// primaryImageField is the record key the first image attachment lands in,
// when the mapping expression declared it.
const primaryImageField = "profile_image"

// AttachmentSource is the slice of the ODK client the media importer needs.
type AttachmentSource interface {
	ListExpectedAttachments(ctx context.Context, instanceID string) ([]models.AttachmentInfo, error)
	DownloadAttachment(ctx context.Context, instanceID, name string) ([]byte, error)
}

// MediaImporter downloads a submission's attachments and splices them into
// the mapped record: the first image becomes the profile image if the
// record declared that field, everything else becomes a supporting
// document. Listing and download failures propagate untouched — the
// submission fails fast.
type MediaImporter struct {
	source    AttachmentSource
	backendID int64
}

func NewMediaImporter(source AttachmentSource, backendID int64) *MediaImporter {
	return &MediaImporter{source: source, backendID: backendID}
}

func (m *MediaImporter) Import(ctx context.Context, sub models.Submission, record map[string]interface{}) error {
	instanceID := sub.InstanceID()
	if instanceID == "" {
		return nil
	}

	attachments, err := m.source.ListExpectedAttachments(ctx, instanceID)
	if err != nil {
		return err
	}
	if len(attachments) == 0 {
		return nil
	}

	firstImageStored := false
	for _, attachment := range attachments {
		content, err := m.source.DownloadAttachment(ctx, instanceID, attachment.Name)
		if err != nil {
			return err
		}
		encoded := base64.StdEncoding.EncodeToString(content)

		_, hasPrimaryField := record[primaryImageField]
		if !firstImageStored && isImage(attachment.Name) && hasPrimaryField {
			record[primaryImageField] = encoded
			firstImageStored = true
			continue
		}

		docs, _ := record["supporting_documents_ids"].([]registry.RelationCommand)
		record["supporting_documents_ids"] = append(docs, registry.Create(map[string]interface{}{
			"backend_id": m.backendID,
			"name":       attachment.Name,
			"data":       encoded,
		}))
	}

	return nil
}

func isImage(filename string) bool {
	mimetype := mime.TypeByExtension(filepath.Ext(filename))
	return strings.HasPrefix(mimetype, "image")
}
