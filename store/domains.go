// Package store loads and saves the known-domain reference list.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Hussein-Mazeh/Vigil/analyzer"
)

//go:embed known_domains.json
var defaultKnownDomains []byte

const (
	maxDomainListBytes = 1 << 20
	fetchTimeout       = 5 * time.Second
)

// DomainSource locates the known-domain list: a file path, an http(s) URL, or empty for the
// bundled default.
type DomainSource struct {
	Location string
	Client   *http.Client
	Logger   logrus.FieldLogger
}

// LoadKnownDomains returns the reference set. It never fails: any read, fetch or decode error
// is logged and an empty set is returned so scoring can continue.
func (s DomainSource) LoadKnownDomains(ctx context.Context) analyzer.KnownDomainSet {
	set, err := s.load(ctx)
	if err != nil {
		s.logger().WithField("location", s.Location).WithError(err).Error("failed to load known domains")
		return analyzer.KnownDomainSet{}
	}
	return set
}

func (s DomainSource) load(ctx context.Context) (analyzer.KnownDomainSet, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case strings.TrimSpace(s.Location) == "":
		data = defaultKnownDomains
	case isHTTPLocation(s.Location):
		data, err = s.fetch(ctx)
	default:
		data, err = os.ReadFile(s.Location)
		if err != nil {
			err = fmt.Errorf("read known domains: %w", err)
		}
	}
	if err != nil {
		return analyzer.KnownDomainSet{}, err
	}

	var set analyzer.KnownDomainSet
	if err := json.Unmarshal(data, &set); err != nil {
		return analyzer.KnownDomainSet{}, fmt.Errorf("decode known domains: %w", err)
	}
	return set, nil
}

func (s DomainSource) fetch(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch known domains: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch known domains: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDomainListBytes))
	if err != nil {
		return nil, fmt.Errorf("read known domains: %w", err)
	}
	return data, nil
}

func (s DomainSource) logger() logrus.FieldLogger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}

func isHTTPLocation(loc string) bool {
	u, err := url.Parse(loc)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// DefaultKnownDomains decodes the bundled list.
func DefaultKnownDomains() (analyzer.KnownDomainSet, error) {
	var set analyzer.KnownDomainSet
	if err := json.Unmarshal(defaultKnownDomains, &set); err != nil {
		return analyzer.KnownDomainSet{}, fmt.Errorf("decode known domains: %w", err)
	}
	return set, nil
}

// SaveKnownDomains persists the set atomically with restrictive permissions.
func SaveKnownDomains(path string, set analyzer.KnownDomainSet) error {
	if path == "" {
		return errors.New("known domains path not specified")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("encode known domains: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "known-domains-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace known domains: %w", err)
	}

	return nil
}
