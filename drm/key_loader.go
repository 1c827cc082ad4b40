package drm

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/metrics"
	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// KeyRequest is a content key request raised by the decoding engine
type KeyRequest interface {
	GetURL() string
	// BuildRequestData builds the opaque key request blob for the license server
	BuildRequestData(certificate []byte, contentID []byte) ([]byte, error)
	// Finish hands the content key, or the failure, back to the engine
	Finish(key []byte, err error)
}

// KeyLoader handles content key requests of protected assets
type KeyLoader struct {
	certificateURL string
	httpClient     *http.Client
	licenseClient  *LicenseClient

	certificate []byte
	ctx         context.Context
	cancel      context.CancelFunc
	waitGroup   sync.WaitGroup
	mutex       sync.Mutex
}

// NewKeyLoader creates a new KeyLoader
func NewKeyLoader(httpClient *http.Client, certificateURL string, licenseURL string) *KeyLoader {
	ctx, cancel := context.WithCancel(context.Background())

	return &KeyLoader{
		certificateURL: certificateURL,
		httpClient:     httpClient,
		licenseClient:  NewLicenseClient(httpClient, licenseURL),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// GetLicenseClient returns the license client
func (loader *KeyLoader) GetLicenseClient() *LicenseClient {
	return loader.licenseClient
}

// IsKeyRequestURL checks if the url uses the DRM key scheme
func IsKeyRequestURL(url string) bool {
	idx := strings.Index(url, ":")
	if idx < 0 {
		return false
	}
	return strings.EqualFold(url[:idx], commons.DrmKeyScheme)
}

// DeriveAssetID returns the asset id embedded in a key request url, its trailing 36 characters.
// This is a contract with the license server and does not parse the url.
func DeriveAssetID(url string) string {
	if len(url) >= commons.DrmAssetIDLength {
		return url[len(url)-commons.DrmAssetIDLength:]
	}
	return strings.TrimPrefix(url, commons.DrmKeyScheme+"://")
}

// HandleKeyRequest starts the license exchange of the request and returns true.
// Requests of other schemes are not handled and false is returned.
// Renewal requests take the same path.
func (loader *KeyLoader) HandleKeyRequest(request KeyRequest) bool {
	logger := log.WithFields(log.Fields{
		"package":  "drm",
		"struct":   "KeyLoader",
		"function": "HandleKeyRequest",
	})

	if !IsKeyRequestURL(request.GetURL()) {
		logger.Debugf("not handling key request %q", request.GetURL())
		return false
	}

	metrics.CounterForDrmKeyRequests.Inc()

	loader.waitGroup.Add(1)
	go func() {
		defer loader.waitGroup.Done()

		key, err := loader.exchange(request)
		if err != nil {
			logger.Errorf("%+v", err)
			metrics.CounterForDrmKeyFailures.Inc()
			request.Finish(nil, err)
			return
		}

		request.Finish(key, nil)
	}()

	return true
}

func (loader *KeyLoader) exchange(request KeyRequest) ([]byte, error) {
	logger := log.WithFields(log.Fields{
		"package":  "drm",
		"struct":   "KeyLoader",
		"function": "exchange",
	})

	defer utils.StackTraceFromPanic(logger)

	certificate, err := loader.getCertificate()
	if err != nil {
		return nil, err
	}

	assetID := DeriveAssetID(request.GetURL())
	if _, parseErr := uuid.Parse(assetID); parseErr != nil {
		logger.Warnf("asset id %q of key request %q is not a uuid", assetID, request.GetURL())
	}

	keyRequest, err := request.BuildRequestData(certificate, []byte(assetID))
	if err != nil {
		return nil, xerrors.Errorf("failed to build key request data for asset %q: %w", assetID, err)
	}

	return loader.licenseClient.FetchLicense(loader.ctx, keyRequest, assetID)
}

func (loader *KeyLoader) getCertificate() ([]byte, error) {
	loader.mutex.Lock()
	defer loader.mutex.Unlock()

	if loader.certificate != nil {
		return loader.certificate, nil
	}

	certificate, err := LoadCertificate(loader.ctx, loader.httpClient, loader.certificateURL)
	if err != nil {
		return nil, err
	}

	loader.certificate = certificate
	return certificate, nil
}

// Cancel aborts pending exchanges
func (loader *KeyLoader) Cancel() {
	loader.cancel()
}

// Wait waits for pending exchanges
func (loader *KeyLoader) Wait() {
	loader.waitGroup.Wait()
}
