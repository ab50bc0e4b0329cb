package media

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"messengerService/pkg/api"
)

const defaultEndpoint = "https://api.cloudinary.com/v1_1"

// Cloudinary uploads images unsigned through a fixed upload preset.
type Cloudinary struct {
	cloudName    string
	uploadPreset string
	endpoint     string
	client       *http.Client
	logger       *zap.SugaredLogger
}

func NewCloudinary(cloudName string, uploadPreset string, logger *zap.SugaredLogger) *Cloudinary {
	return &Cloudinary{
		cloudName:    cloudName,
		uploadPreset: uploadPreset,
		endpoint:     defaultEndpoint,
		client:       &http.Client{Timeout: 60 * time.Second},
		logger:       logger,
	}
}

// WithEndpoint points the uploader at another API base, e.g. a test server.
func (c *Cloudinary) WithEndpoint(endpoint string) *Cloudinary {
	c.endpoint = strings.TrimSuffix(endpoint, "/")
	return c
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ContentType derives the image type from the file extension.
func ContentType(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if ext == "" {
		return "image/jpeg"
	}
	return "image/" + ext
}

func (c *Cloudinary) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", api.Invalid("image is empty")
	}
	if c.cloudName == "" || c.uploadPreset == "" {
		return "", api.Unavailable(errors.New("cloudinary is not configured"), "upload image")
	}
	if filename == "" {
		filename = "image.jpg"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+strings.ReplaceAll(filename, `"`, "")+`"`)
	header.Set("Content-Type", ContentType(filename))
	part, err := form.CreatePart(header)
	if err != nil {
		return "", errors.Wrap(err, "creating file part")
	}
	if _, err := part.Write(data); err != nil {
		return "", errors.Wrap(err, "writing file part")
	}
	if err := form.WriteField("upload_preset", c.uploadPreset); err != nil {
		return "", errors.Wrap(err, "writing upload preset")
	}
	if err := form.Close(); err != nil {
		return "", errors.Wrap(err, "closing form")
	}

	url := c.endpoint + "/" + c.cloudName + "/image/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", errors.Wrap(err, "building upload request")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", api.Unavailable(err, "upload image")
	}
	defer resp.Body.Close()

	var result uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", api.Unavailable(err, "decode upload response")
	}

	if resp.StatusCode >= http.StatusBadRequest || result.SecureURL == "" {
		message := http.StatusText(resp.StatusCode)
		if result.Error != nil && result.Error.Message != "" {
			message = result.Error.Message
		}
		c.logger.Errorf("Cloudinary upload of %s failed: %s", filename, message)
		return "", api.Unavailable(errors.New(message), "upload image")
	}

	c.logger.Infof("Uploaded image %s to %s", filename, result.SecureURL)
	return result.SecureURL, nil
}
