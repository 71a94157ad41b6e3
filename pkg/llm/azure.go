package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
)

// AzureTranslator calls the Azure Cognitive Services text translation API v3.
type AzureTranslator struct {
	key      string
	endpoint string
	region   string
	client   *http.Client
	logger   *logrus.Logger
}

// NewAzureTranslator 创建 Azure 翻译客户端，endpoint 自动补全 /translate
func NewAzureTranslator(key, endpoint, region string, logger *logrus.Logger) *AzureTranslator {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint != "" && !strings.HasSuffix(endpoint, "/translate") {
		endpoint += "/translate"
	}
	if region == "" {
		region = "global"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AzureTranslator{
		key:      key,
		endpoint: endpoint,
		region:   region,
		client:   &http.Client{},
		logger:   logger,
	}
}

type azureTranslation struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// Translate sends one text item. The caller's context bounds the request.
func (t *AzureTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if t.key == "" || t.endpoint == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal([]map[string]string{{"text": text}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	q := url.Values{}
	q.Set("api-version", "3.0")
	q.Set("from", source)
	q.Set("to", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", t.key)
	req.Header.Set("Ocp-Apim-Subscription-Region", t.region)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ClientTraceId", uuid.NewString())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.KindTransient, "translator request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		t.logger.Warnf("azure translator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return "", apperrors.Errorf(apperrors.KindTransient, "translator returned status %d", resp.StatusCode)
	}

	var out []azureTranslation
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.Wrap(err, apperrors.KindTransient, "failed to decode translator response")
	}
	if len(out) == 0 || len(out[0].Translations) == 0 {
		return "", ErrEmptyResponse
	}
	return out[0].Translations[0].Text, nil
}
