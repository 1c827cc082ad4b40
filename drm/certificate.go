package drm

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"golang.org/x/xerrors"
)

// LoadCertificate reads the application certificate from a http(s) url, a file url or a local path
func LoadCertificate(ctx context.Context, client *http.Client, certificateURL string) ([]byte, error) {
	if len(certificateURL) == 0 {
		return nil, commons.NewDrmCertificateError(certificateURL, xerrors.Errorf("certificate url is not set"))
	}

	lower := strings.ToLower(certificateURL)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return loadRemoteCertificate(ctx, client, certificateURL)
	}

	path := strings.TrimPrefix(certificateURL, "file://")
	certificate, err := os.ReadFile(path)
	if err != nil {
		return nil, commons.NewDrmCertificateError(certificateURL, err)
	}

	if len(certificate) == 0 {
		return nil, commons.NewDrmCertificateError(certificateURL, xerrors.Errorf("certificate is empty"))
	}

	return certificate, nil
}

func loadRemoteCertificate(ctx context.Context, client *http.Client, certificateURL string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, certificateURL, nil)
	if err != nil {
		return nil, commons.NewDrmCertificateError(certificateURL, err)
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, commons.NewDrmCertificateError(certificateURL, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, commons.NewDrmCertificateError(certificateURL, xerrors.Errorf("unexpected status %q", response.Status))
	}

	certificate, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, commons.NewDrmCertificateError(certificateURL, err)
	}

	if len(certificate) == 0 {
		return nil, commons.NewDrmCertificateError(certificateURL, xerrors.Errorf("certificate is empty"))
	}

	return certificate, nil
}
