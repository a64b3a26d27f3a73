// Package config receives and processes the root-level configuration and allocates configuration sections to other
// packages.
package config

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alowde/dtracker/crypto"
	"github.com/alowde/dtracker/logger"
)

// DefaultFiles are searched, in order, when no configuration file is named explicitly.
var DefaultFiles = []string{"config.json", "config.yaml", "config.yml"}

// DefaultTransport is used for the listeners and publishers blocks when the configuration has none.
var DefaultTransport = json.RawMessage(`{"nats":{}}`)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Skeleton contains raw configuration data for use by various modules throughout the application. It explicitly
// contains opaque configuration data with the exception of the configDetails, which is for use by this package.
type Skeleton struct {
	Listen   json.RawMessage `json:"listeners,omitempty"`
	Publish  json.RawMessage `json:"publishers,omitempty"`
	Alert    json.RawMessage `json:"alerters,omitempty"`
	Contacts json.RawMessage `json:"contacts,omitempty"`
	Tracker  json.RawMessage `json:"tracker,omitempty"`
	Metrics  json.RawMessage `json:"metrics,omitempty"`
	Node     json.RawMessage `json:"node,omitempty"`
	Config   *configDetails  `json:"config,omitempty"`
	logger   *logrus.Entry
}

type configDetails struct {
	URL       string `json:"url,omitempty"`
	Key       string `json:"key,omitempty"`
	Salt      string `json:"salt,omitempty"`
	Encrypted string `json:"encrypted,omitempty"`
}

func (s *Skeleton) logClose(c io.Closer) {
	if err := c.Close(); err != nil {
		s.logger.WithError(err).
			Warn("Somehow failed to close a Closer")
	}
}

func (s *Skeleton) details() configDetails {
	if s.Config == nil {
		return configDetails{}
	}
	return *s.Config
}

func (d configDetails) key() (*crypto.Key, error) {
	var salt []byte
	if d.Salt != "" {
		salt = []byte(d.Salt)
	}
	k, err := crypto.DeriveKey(d.Key, salt)
	return k, errors.Wrap(err, "could not determine key from passphrase")
}

// Encrypt collapses the entire configuration barring metadata into an encrypted string stored as metadata. The
// passphrase is removed from the result, so once marshalled it's suitable for storage on untrusted media and can be
// rehydrated by a configuration that supplies the same key (and salt, if any).
func (s *Skeleton) Encrypt() error {
	if s.details().Key == "" {
		return errors.New("no encryption key configured")
	}
	t := *s                           // operate on a copy of the skeleton so we can back out if there's an error
	meta := *t.Config                 // copy the existing metadata including key
	t.Config = nil                    // remove metadata from skeleton copy
	plaintext, err := json.Marshal(t) // get a JSON blob derived from the skeleton copy
	if err != nil {
		return errors.Wrap(err, "could not marshal config to JSON")
	}
	k, err := meta.key()
	if err != nil {
		return err
	}
	if meta.Encrypted, err = k.Seal(plaintext); err != nil {
		return errors.Wrap(err, "could not encrypt config")
	}
	meta.Key = ""
	// As there's no further failures that can be caught, nil out skeleton and insert only the metadata again
	*s = Skeleton{logger: s.logger, Config: &meta}
	return nil
}

func (s *Skeleton) load(r io.Reader) (err error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return errors.Wrap(err, "failed to read config data from provided io.Reader")
	}
	if err := yaml.Unmarshal(buf.Bytes(), s); err != nil {
		s.logger.WithField("config data", buf.String()).
			Debug("Failed to parse provided config data")
		return errors.Wrap(err, "failed to parse provided config data")
	}
	return nil
}

func (s *Skeleton) loadFile(name string) error {
	file, err := os.Open(name)
	if err != nil {
		return errors.Wrapf(err, "couldn't read config file %v", name)
	}
	defer s.logClose(file)
	return errors.Wrapf(s.load(file), "couldn't parse config file %v", name)
}

// loadFiles loads the first of filenames that can be read and parsed.
func (s *Skeleton) loadFiles(filenames []string) error {
	s.logger.Debug("Loading file configuration")
	for _, name := range filenames {
		if err := s.loadFile(name); err != nil {
			s.logger.WithError(err).
				WithField("file", name).
				Debug("skipping config file")
			continue
		}
		s.logger.WithField("file", name).Info("Loaded config file")
		return nil
	}
	return errors.New("Unable to parse any config files")
}

func (s *Skeleton) loadHTTP() (err error) {
	url := s.details().URL
	s.logger.WithField("url", url).Debug("Loading http configuration")
	if url == "" {
		return errors.New("Invalid config URL")
	}
	res, err := httpClient.Get(url)
	if err != nil {
		return errors.Wrap(err, "couldn't read config from URL")
	}
	defer s.logClose(res.Body)
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("config URL returned %v", res.Status)
	}
	return s.load(res.Body)
}

func (s *Skeleton) loadEncrypted() (err error) {
	d := s.details()
	switch {
	case d.Key != "" && d.Encrypted == "":
		// a key alone is what -encrypt needs, so it isn't an error here
		return nil
	case d.Key == "" && d.Encrypted != "":
		return errors.New("found encrypted config but no encryption key")
	case d.Key == "" && d.Encrypted == "":
		// Lack of encrypted config is not an error
		return nil
	}

	key, err := d.key()
	if err != nil {
		return err
	}
	plaintext, err := key.Open(d.Encrypted)
	if err != nil {
		return errors.Wrap(err, "couldn't decrypt encrypted configuration data")
	}
	if err := s.load(bytes.NewReader(plaintext)); err != nil {
		return errors.Wrap(err, "couldn't parse decrypted configuration data")
	}
	return nil
}

func (s *Skeleton) defaults() {
	if len(s.Listen) == 0 {
		s.logger.Info("No listeners configured, using local NATS")
		s.Listen = DefaultTransport
	}
	if len(s.Publish) == 0 {
		s.logger.Info("No publishers configured, using local NATS")
		s.Publish = DefaultTransport
	}
}

// NewSkeleton returns a configuration skeleton with data loaded from file, HTTP and the encrypted blob, in that
// order, with later sources overriding earlier ones. A named file that can't be loaded is an error; when file is
// empty the DefaultFiles are tried and running without any of them is allowed.
func NewSkeleton(file string, ll logrus.Level) (s *Skeleton, err error) {

	s = new(Skeleton)

	s.logger = logger.New("config", ll)

	if file != "" {
		if err := s.loadFile(file); err != nil {
			return nil, err
		}
	} else if err := s.loadFiles(DefaultFiles); err != nil {
		s.logger.WithError(err).
			WithField("filenames", DefaultFiles).
			Warn("couldn't load config from files, using defaults")
	}

	if s.details().URL != "" {
		if err := s.loadHTTP(); err != nil {
			return nil, errors.Wrapf(err, "while loading config from %v", s.details().URL)
		}
	}

	if err := s.loadEncrypted(); err != nil {
		return nil, errors.Wrap(err, "error while processing encrypted config")
	}

	s.defaults()
	return s, nil
}
