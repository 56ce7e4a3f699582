package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"waenhancer/internal/constants"
	"waenhancer/internal/errors"
	"waenhancer/internal/page"
	"waenhancer/internal/security"

	"github.com/sirupsen/logrus"
)

const (
	downloadedToast     = "Status downloaded successfully!"
	downloadFailedToast = "Failed to download status"
	noMediaToast        = "No media found in status"
	noMediaURLToast     = "Media URL not found"
)

// downloadStatus saves the image or video of the status item with statusID, or
// the first visible one, as whatsapp-status-<unix ms>.jpg|.mp4 under DownloadDir.
func (m *Monitor) downloadStatus(ctx context.Context, statusID string) error {
	item, statusID, err := m.statusItem(ctx, statusID)
	if err != nil {
		m.toast(ctx, downloadFailedToast)
		return err
	}

	media, ext, err := statusMedia(ctx, item)
	if err != nil {
		m.toast(ctx, downloadFailedToast)
		return err
	}
	if media == nil {
		m.toast(ctx, noMediaToast)
		return errors.NewElementNotFoundError("img, video", 1, 0)
	}

	src, ok, err := media.Attr(ctx, "src")
	if err != nil {
		m.toast(ctx, downloadFailedToast)
		return err
	}
	if !ok || strings.TrimSpace(src) == "" {
		m.toast(ctx, noMediaURLToast)
		return errors.NewValidationError("src", "", "status media has no URL")
	}

	path, err := m.saveMedia(ctx, src, ext)
	if err != nil {
		m.toast(ctx, downloadFailedToast)
		return err
	}
	m.logger.WithFields(logrus.Fields{
		"status_id": statusID,
		"path":      path,
	}).Info("Status media saved")
	m.toast(ctx, downloadedToast)
	return nil
}

// statusMedia returns the item's first image, else its first video, with the
// file extension it is saved under. A nil element means the item has no media.
func statusMedia(ctx context.Context, item page.Element) (page.Element, string, error) {
	for _, kind := range []struct{ selector, ext string }{
		{"img", ".jpg"},
		{"video", ".mp4"},
	} {
		found, err := item.QueryAll(ctx, kind.selector)
		if err != nil {
			return nil, "", err
		}
		if len(found) > 0 {
			return found[0], kind.ext, nil
		}
	}
	return nil, "", nil
}

func (m *Monitor) saveMedia(ctx context.Context, src, ext string) (string, error) {
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", errors.NewValidationError("src", src, "unsupported media URL")
	}
	dir := m.cfg.DownloadDir
	if err := security.ValidateFilePath(dir); err != nil {
		return "", errors.NewValidationError("downloadDir", dir, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", errors.NewNetworkError("status media", "download", 0, err)
	}
	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", errors.NewNetworkError("status media", "download", 0, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", errors.NewNetworkError("status media", "download", resp.StatusCode,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", errors.NewStorageError("create download dir", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("whatsapp-status-%d%s", m.cfg.Now().UnixMilli(), ext))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) // #nosec G304 - dir validated by security.ValidateFilePath above
	if err != nil {
		return "", errors.NewStorageError("create status file", err)
	}

	n, err := io.Copy(f, io.LimitReader(resp.Body, constants.MaxStatusDownloadBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > constants.MaxStatusDownloadBytes {
		err = fmt.Errorf("status media exceeds %d bytes", constants.MaxStatusDownloadBytes)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", errors.NewStorageError("write status file", err)
	}
	return path, nil
}
