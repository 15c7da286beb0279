// Package keystore saves received keys as YAML files.
package keystore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dchest/uniuri"
	"github.com/hatstand/subghz/protocol"
	"github.com/hatstand/subghz/pulse"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

const (
	Extension = ".sub"
	Version   = 1
)

var (
	ErrBadName  = errors.New("invalid key name")
	ErrNotFound = errors.New("key not found")
)

type keyFile struct {
	Version   int     `yaml:"version"`
	Protocol  string  `yaml:"protocol"`
	Bits      int     `yaml:"bits,omitempty"`
	Key       string  `yaml:"key,omitempty"`
	Frequency uint32  `yaml:"frequency"`
	Preset    string  `yaml:"preset"`
	RSSI      float32 `yaml:"rssi"`
	Received  string  `yaml:"received"`
	RawData   []int32 `yaml:"raw_data,omitempty"`
}

type Store struct {
	dir    string
	logger *zap.Logger
}

func New(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %v", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

var (
	adjectives = []string{"quiet", "rapid", "silver", "lucky", "brave", "hidden", "misty", "sunny"}
	nouns      = []string{"fox", "gate", "otter", "lamp", "heron", "door", "comet", "maple"}
)

// GenerateName makes up a readable unique-enough name such as "misty_heron_k3Fz".
func GenerateName() string {
	return fmt.Sprintf("%s_%s_%s",
		adjectives[rand.Intn(len(adjectives))],
		nouns[rand.Intn(len(nouns))],
		uniuri.NewLen(4))
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+Extension)
}

// Save writes item under name, or under a generated name if name is empty, and returns the name used.
func (s *Store) Save(item *protocol.Item, name string) (string, error) {
	if name == "" {
		name = GenerateName()
	}
	if !validName(name) {
		return "", ErrBadName
	}
	k := keyFile{
		Version:   Version,
		Protocol:  item.Protocol,
		Bits:      item.Bits,
		Frequency: item.Frequency,
		Preset:    item.Preset,
		RSSI:      item.RSSI,
		Received:  item.Time.UTC().Format(time.RFC3339),
	}
	if len(item.Timings) > 0 {
		for _, t := range item.Timings {
			k.RawData = append(k.RawData, t.Signed())
		}
	} else {
		k.Key = strings.ToUpper(hex.EncodeToString(item.Payload))
	}

	data, err := yaml.Marshal(&k)
	if err != nil {
		return "", fmt.Errorf("failed to serialise key: %v", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create key file: %v", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write key file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write key file: %v", err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return "", fmt.Errorf("failed to save key: %v", err)
	}
	s.logger.Info("Saved key", zap.String("name", name), zap.String("protocol", item.Protocol))
	return name, nil
}

func (s *Store) Load(name string) (*protocol.Item, error) {
	if !validName(name) {
		return nil, ErrBadName
	}
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to read key file: %v", err)
	}
	var k keyFile
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("failed to parse key file %s: %v", name, err)
	}
	if k.Version != Version {
		return nil, fmt.Errorf("key file %s has unsupported version %d", name, k.Version)
	}
	item := &protocol.Item{
		Protocol:  k.Protocol,
		Bits:      k.Bits,
		Frequency: k.Frequency,
		Preset:    k.Preset,
		RSSI:      k.RSSI,
		Text:      fmt.Sprintf("%s\nSaved as %s", k.Protocol, name),
	}
	if t, err := time.Parse(time.RFC3339, k.Received); err == nil {
		item.Time = t
	}
	if len(k.RawData) > 0 {
		for _, v := range k.RawData {
			item.Timings = append(item.Timings, pulse.FromSigned(v))
		}
	} else {
		item.Payload, err = hex.DecodeString(k.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key in %s: %v", name, err)
		}
	}
	return item, nil
}

// List returns saved key names in alphabetical order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Extension) {
			names = append(names, strings.TrimSuffix(e.Name(), Extension))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Delete(name string) error {
	if !validName(name) {
		return ErrBadName
	}
	err := os.Remove(s.path(name))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}
