package drm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	log "github.com/sirupsen/logrus"
)

// LicenseClient exchanges key requests for content keys with a license server
type LicenseClient struct {
	client     *http.Client
	licenseURL string
	timeout    time.Duration
}

// NewLicenseClient creates a new LicenseClient. An empty licenseURL uses the default license server.
func NewLicenseClient(client *http.Client, licenseURL string) *LicenseClient {
	if client == nil {
		client = http.DefaultClient
	}

	if len(licenseURL) == 0 {
		licenseURL = commons.LicenseServerURLDefault
	}

	return &LicenseClient{
		client:     client,
		licenseURL: licenseURL,
		timeout:    commons.DrmLicenseTimeout,
	}
}

// GetLicenseURL returns the license server url
func (client *LicenseClient) GetLicenseURL() string {
	return client.licenseURL
}

// SetTimeout changes the license exchange timeout
func (client *LicenseClient) SetTimeout(timeout time.Duration) {
	client.timeout = timeout
}

// MakeRequestURL returns the license url for the asset
func (client *LicenseClient) MakeRequestURL(assetID string) string {
	return fmt.Sprintf("%s%s?customdata=%s", client.licenseURL, url.PathEscape(assetID), url.QueryEscape(assetID))
}

// FetchLicense posts the key request blob and returns the content key.
// It blocks for up to the timeout.
func (client *LicenseClient) FetchLicense(ctx context.Context, keyRequest []byte, assetID string) ([]byte, error) {
	logger := log.WithFields(log.Fields{
		"package":  "drm",
		"struct":   "LicenseClient",
		"function": "FetchLicense",
	})

	requestURL := client.MakeRequestURL(assetID)

	timeoutCtx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, requestURL, bytes.NewReader(keyRequest))
	if err != nil {
		return nil, commons.NewDrmServerError(requestURL, err.Error())
	}
	request.Header.Set("Content-Type", "application/octet-stream")

	logger.Debugf("requesting license for asset %q", assetID)

	response, err := client.client.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, commons.NewDrmServerError(requestURL, fmt.Sprintf("no response within %s", client.timeout))
		}
		return nil, commons.NewDrmServerError(requestURL, err.Error())
	}
	defer response.Body.Close()

	key, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, commons.NewDrmServerError(requestURL, err.Error())
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, commons.NewDrmServerError(requestURL, fmt.Sprintf("unexpected status %q", response.Status))
	}

	if len(key) == 0 {
		return nil, commons.NewDrmServerError(requestURL, "empty license response")
	}

	return key, nil
}
