package config

import (
	"context"
	"fmt"

	"gopkg.in/ini.v1"
)

// Credentials is one GP51 account read from the profile file.
type Credentials struct {
	Username string
	Password string
	APIURL   string
}

// Registry reads GP51 account profiles from an ini file (~/.gp51cfg), one
// section per account.
type Registry interface {
	GetProfiles(ctx context.Context) ([]string, error)
	GetCredentials(ctx context.Context, profile string) (*Credentials, error)
}

type cfgRegistry struct {
	cfg *ini.File
}

func NewRegistry(path string) (Registry, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	return &cfgRegistry{cfg: cfg}, nil
}

func (cr *cfgRegistry) GetProfiles(_ context.Context) ([]string, error) {
	var profiles []string
	for _, section := range cr.cfg.Sections() {
		if len(section.Keys()) > 0 {
			profiles = append(profiles, section.Name())
		}
	}
	return profiles, nil
}

func (cr *cfgRegistry) GetCredentials(_ context.Context, profile string) (*Credentials, error) {
	section := cr.cfg.Section(profile)
	if section == nil || len(section.Keys()) == 0 {
		return nil, fmt.Errorf("profile %s not found", profile)
	}

	creds := &Credentials{
		Username: section.Key("username").String(),
		Password: section.Key("password").String(),
		APIURL:   section.Key("api_url").String(),
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("profile %s is missing credentials", profile)
	}
	return creds, nil
}
