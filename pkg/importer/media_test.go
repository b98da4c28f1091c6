package importer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/civicbridge/platform/pkg/common/models"
	"github.com/civicbridge/platform/pkg/registry"
)

type fakeAttachments struct {
	listed    map[string][]models.AttachmentInfo
	content   map[string][]byte
	listErr   error
	fetchErr  error
	downloads []string
}

func (f *fakeAttachments) ListExpectedAttachments(ctx context.Context, instanceID string) ([]models.AttachmentInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listed[instanceID], nil
}

func (f *fakeAttachments) DownloadAttachment(ctx context.Context, instanceID, name string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.downloads = append(f.downloads, name)
	return f.content[name], nil
}

func withMeta(instanceID string) models.Submission {
	return models.Submission{"meta": map[string]interface{}{"instanceID": instanceID}}
}

func TestImportMediaClassifiesAttachments(t *testing.T) {
	photo := []byte{0xFF, 0xD8, 0xFF, 0x01}
	doc := []byte("%PDF-1.7 ...")
	extra := []byte{0x89, 0x50, 0x4E, 0x47}

	source := &fakeAttachments{
		listed: map[string][]models.AttachmentInfo{
			"uuid:abc": {{Name: "portrait.jpg"}, {Name: "consent.pdf"}, {Name: "house.png"}},
		},
		content: map[string][]byte{"portrait.jpg": photo, "consent.pdf": doc, "house.png": extra},
	}
	m := NewMediaImporter(source, 7)

	record := map[string]interface{}{"profile_image": nil}
	if err := m.Import(context.Background(), withMeta("uuid:abc"), record); err != nil {
		t.Fatalf("import media: %v", err)
	}

	// first image fills the primary field
	decoded, err := base64.StdEncoding.DecodeString(record["profile_image"].(string))
	if err != nil {
		t.Fatalf("decoding profile image: %v", err)
	}
	if !bytes.Equal(decoded, photo) {
		t.Fatal("profile image must round-trip through base64 exactly")
	}

	// the PDF and the second image both become supporting documents
	docs := record["supporting_documents_ids"].([]registry.RelationCommand)
	if len(docs) != 2 {
		t.Fatalf("expected 2 supporting documents, got %d", len(docs))
	}
	if docs[0].Values["name"] != "consent.pdf" || docs[1].Values["name"] != "house.png" {
		t.Fatalf("unexpected supporting documents: %v", docs)
	}
	for _, d := range docs {
		if d.Values["backend_id"] != int64(7) {
			t.Fatalf("documents must carry the backend id: %v", d.Values)
		}
	}
	pdfBytes, err := base64.StdEncoding.DecodeString(docs[0].Values["data"].(string))
	if err != nil {
		t.Fatalf("decoding document payload: %v", err)
	}
	if !bytes.Equal(pdfBytes, doc) {
		t.Fatal("document payload must round-trip through base64 exactly")
	}
}

func TestImportMediaWithoutPrimaryFieldStoresAllAsDocuments(t *testing.T) {
	source := &fakeAttachments{
		listed:  map[string][]models.AttachmentInfo{"uuid:abc": {{Name: "portrait.jpg"}}},
		content: map[string][]byte{"portrait.jpg": {0x01}},
	}
	m := NewMediaImporter(source, 0)

	record := map[string]interface{}{}
	if err := m.Import(context.Background(), withMeta("uuid:abc"), record); err != nil {
		t.Fatalf("import media: %v", err)
	}
	if _, present := record["profile_image"]; present {
		t.Fatal("primary image field must not be invented by the importer")
	}
	docs := record["supporting_documents_ids"].([]registry.RelationCommand)
	if len(docs) != 1 {
		t.Fatalf("expected the image as a supporting document, got %v", record)
	}
}

func TestImportMediaSkipsSubmissionsWithoutInstanceID(t *testing.T) {
	source := &fakeAttachments{listErr: fmt.Errorf("must not be called")}
	m := NewMediaImporter(source, 0)

	record := map[string]interface{}{"profile_image": nil}
	if err := m.Import(context.Background(), models.Submission{"name": "no meta"}, record); err != nil {
		t.Fatalf("expected no-op for missing instance id, got %v", err)
	}
	if record["profile_image"] != nil {
		t.Fatal("record must be untouched")
	}
}

func TestImportMediaPropagatesDownloadFailure(t *testing.T) {
	source := &fakeAttachments{
		listed:   map[string][]models.AttachmentInfo{"uuid:abc": {{Name: "portrait.jpg"}}},
		fetchErr: fmt.Errorf("connection reset"),
	}
	m := NewMediaImporter(source, 0)

	err := m.Import(context.Background(), withMeta("uuid:abc"), map[string]interface{}{})
	if err == nil || err.Error() != "connection reset" {
		t.Fatalf("download failures must propagate untouched, got %v", err)
	}
}
