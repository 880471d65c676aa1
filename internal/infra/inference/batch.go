package inference

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/blake2b"
)

// BatchImage is one image handed to SendBuildBatch.
type BatchImage struct {
	Name        string // original name, used for the extension
	Data        []byte
	Category    string
	Title       string
	Description string
}

// BuildBatch is everything the service needs to build one campaign.
type BuildBatch struct {
	CampaignID   string
	CampaignName string
	Images       []BatchImage
	Metadata     map[string]string
}

type filePayload struct {
	Filename      string `json:"filename"`
	Base64Content string `json:"base64content"`
	ContentType   string `json:"contentType"`
	Prompt        string `json:"prompt"`
	Category      string `json:"category,omitempty"`
	Title         string `json:"title,omitempty"`
}

type buildPayload struct {
	CampaignID   string            `json:"campaignId"`
	CampaignName string            `json:"campaignName"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Files        []filePayload     `json:"files"`
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".heic": "image/heic",
}

// ContentType infers the MIME type from the extension, sniffing the bytes
// when the extension is unknown.
func ContentType(name string, data []byte) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return mimetype.Detect(data).String()
}

// ContentAddressedName names data by its blake2b-256 digest, keeping the
// original extension.
func ContentAddressedName(name string, data []byte) string {
	sum := blake2b.Sum256(data)
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = mimetype.Detect(data).Extension()
	}
	return hex.EncodeToString(sum[:]) + ext
}

func encodeBatch(b BuildBatch) buildPayload {
	files := make([]filePayload, 0, len(b.Images))
	for _, img := range b.Images {
		files = append(files, filePayload{
			Filename:      ContentAddressedName(img.Name, img.Data),
			Base64Content: base64.StdEncoding.EncodeToString(img.Data),
			ContentType:   ContentType(img.Name, img.Data),
			Prompt:        img.Description,
			Category:      img.Category,
			Title:         img.Title,
		})
	}
	return buildPayload{
		CampaignID:   b.CampaignID,
		CampaignName: b.CampaignName,
		Metadata:     b.Metadata,
		Files:        files,
	}
}

// SendBuildBatch uploads every image of a campaign in a single request.
// The body is streamed, so its size is bounded only by the upload timeout.
func (g *Gateway) SendBuildBatch(ctx context.Context, batch BuildBatch) Result {
	return g.postJSON(ctx, g.uploadClient, buildsPath, encodeBatch(batch))
}

// NotifyBuildCampaign tells the service a campaign's batch is complete and
// the build may start.
func (g *Gateway) NotifyBuildCampaign(ctx context.Context, campaignID string) Result {
	return g.postJSON(ctx, g.probeClient, notifyPath, map[string]string{"campaignId": campaignID})
}

// RequestMerge asks the service to fuse a model campaign with a product
// campaign. The outcome arrives later through the merge callback.
func (g *Gateway) RequestMerge(ctx context.Context, modelCampaignID, productCampaignID string) Result {
	return g.postJSON(ctx, g.probeClient, mergesPath, map[string]string{
		"modelCampaignId":   modelCampaignID,
		"productCampaignId": productCampaignID,
	})
}

func (g *Gateway) postJSON(ctx context.Context, client *http.Client, path string, payload any) Result {
	return g.post(ctx, client, path, func() io.ReadCloser {
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(json.NewEncoder(pw).Encode(payload))
		}()
		return pr
	})
}
