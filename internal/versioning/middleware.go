package versioning

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"waenhancer/internal/httputil"
)

type contextKey string

const VersionContextKey contextKey = "protocol_version"

const (
	// Request headers
	AcceptVersionHeader = "Accept-Version"
	APIVersionHeader    = "X-Protocol-Version"

	// Response headers
	CurrentVersionHeader    = "X-Current-Version"
	SupportedVersionsHeader = "X-Supported-Versions"
)

const errCodeIncompatible = "VERSION_INCOMPATIBLE"

// VersionMiddleware rejects peers whose protocol version this build cannot serve.
// Peers that send no version are assumed current.
type VersionMiddleware struct {
	logger *logrus.Logger
}

func NewVersionMiddleware(logger *logrus.Logger) *VersionMiddleware {
	return &VersionMiddleware{logger: logger}
}

func (vm *VersionMiddleware) VersionHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested := vm.extractVersionFromRequest(r)
		compat := CheckCompatibility(requested)

		w.Header().Set(CurrentVersionHeader, CurrentVersion.String())
		w.Header().Set(SupportedVersionsHeader, GetVersionRange())

		if !compat.Compatible {
			vm.handleIncompatibleVersion(w, r, compat)
			return
		}
		if len(compat.Warnings) > 0 {
			vm.logger.WithFields(logrus.Fields{
				"requested_version": requested.String(),
				"path":              r.URL.Path,
			}).Debug(compat.Warnings[0])
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), VersionContextKey, requested)))
	})
}

func (vm *VersionMiddleware) extractVersionFromRequest(r *http.Request) APIVersion {
	for _, header := range []string{AcceptVersionHeader, APIVersionHeader} {
		versionStr := r.Header.Get(header)
		if versionStr == "" {
			continue
		}
		if version, err := ParseVersion(versionStr); err == nil {
			return version
		}
		vm.logger.WithFields(logrus.Fields{
			"header":         header,
			"version_string": versionStr,
		}).Warn("Invalid protocol version header")
	}
	return CurrentVersion
}

func (vm *VersionMiddleware) handleIncompatibleVersion(w http.ResponseWriter, r *http.Request, compat Compatibility) {
	statusCode := http.StatusNotImplemented
	if compat.TooOld {
		statusCode = http.StatusUpgradeRequired
	}

	body := map[string]interface{}{
		"success":   false,
		"errorCode": errCodeIncompatible,
		"error":     "protocol version incompatible",
		"details":   compat,
	}
	if err := httputil.WriteJSON(w, statusCode, body); err != nil {
		vm.logger.WithError(err).Error("Failed to encode version error response")
	}

	vm.logger.WithFields(logrus.Fields{
		"requested_version": compat.Requested.String(),
		"current_version":   compat.Current.String(),
		"errors":            compat.Errors,
		"path":              r.URL.Path,
	}).Warn("Incompatible protocol version requested")
}

// GetVersionFromContext returns the version the peer asked for.
func GetVersionFromContext(ctx context.Context) (APIVersion, bool) {
	version, ok := ctx.Value(VersionContextKey).(APIVersion)
	return version, ok
}
