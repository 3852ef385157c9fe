package providers

import (
	"context"
	"os"

	"github.com/coursebridge/launchgate/scopes"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// registryFile is the on-disk registration format. Provider trust domains,
// key sources and course bindings are externally supplied configuration, not
// code.
type registryFile struct {
	Providers []*Provider `yaml:"providers"`
	Courses   []struct {
		CourseID   string `yaml:"course_id"`
		ProviderID string `yaml:"provider_id"`
	} `yaml:"courses"`
}

// FileDirectory is a Directory loaded once from a YAML registry file. The
// directory is immutable after load, so lookups are safe for concurrent use.
type FileDirectory struct {
	providers map[string]*Provider
	courses   map[string]string
}

var _ Directory = (*FileDirectory)(nil)

// LoadFile reads and validates a YAML provider registry.
func LoadFile(path string) (*FileDirectory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "[providers.LoadFile] read")
	}
	return Parse(raw)
}

// Parse builds a FileDirectory from raw YAML registry bytes.
func Parse(raw []byte) (*FileDirectory, error) {
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, "[providers.Parse] yaml")
	}

	d := &FileDirectory{
		providers: make(map[string]*Provider, len(file.Providers)),
		courses:   make(map[string]string, len(file.Courses)),
	}
	for _, p := range file.Providers {
		if p.ID == "" {
			return nil, errors.New("[providers.Parse] provider missing id")
		}
		if p.TrustDomain == "" {
			return nil, errors.Errorf("[providers.Parse] provider %q missing trust_domain", p.ID)
		}
		if (p.SharedSecret == "") == (p.JWKSURL == "") {
			return nil, errors.Errorf("[providers.Parse] provider %q needs exactly one of shared_secret or jwks_url", p.ID)
		}
		p.Scopes = scopes.FromStrings(p.RawScopes)
		d.providers[p.ID] = p
	}
	for _, c := range file.Courses {
		if _, ok := d.providers[c.ProviderID]; !ok {
			return nil, errors.Errorf("[providers.Parse] course %q references unknown provider %q", c.CourseID, c.ProviderID)
		}
		d.courses[c.CourseID] = c.ProviderID
	}
	return d, nil
}

func (d *FileDirectory) ForCourse(_ context.Context, courseID string) (*Provider, error) {
	id, ok := d.courses[courseID]
	if !ok {
		return nil, ErrNotFound
	}
	return d.providers[id], nil
}

func (d *FileDirectory) Get(_ context.Context, providerID string) (*Provider, error) {
	p, ok := d.providers[providerID]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}
