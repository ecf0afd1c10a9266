package geo

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// EnsureMMDB keeps the local fallback database fresh: if the file at path is
// missing or older than maxAge it is downloaded from url. An empty url
// disables the download entirely.
func EnsureMMDB(path, url string, maxAge time.Duration) error {
	if url == "" {
		return nil
	}

	info, err := os.Stat(path)

	if err == nil {
		if time.Since(info.ModTime()) < maxAge {
			log.Debug().Str("path", path).Msg("Geo fallback database is up to date")
			return nil
		}
		log.Info().Str("path", path).Msg("Geo fallback database is outdated, updating...")
	} else if os.IsNotExist(err) {
		log.Info().Str("path", path).Msg("Geo fallback database missing, downloading...")
	} else {
		return err
	}

	return downloadFile(path, url)
}

// downloadFile fetches a URL into path via a temporary file, so a partial
// download never replaces a working database.
func downloadFile(filepath string, url string) error {
	tmpPath := filepath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	resp, err := http.Get(url) //nolint:gosec
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Msg("Failed to download geo fallback database")
		return os.ErrInvalid
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}

	if err := out.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, filepath)
}
