package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lists holds the domain and local-part sets consulted by the static
// verification checks. All lookups are lowercase.
type Lists struct {
	DisposableDomains map[string]bool
	RoleLocalParts    map[string]bool
	FreeProviders     map[string]bool
}

// listsFile is the YAML shape of an external lists override file.
type listsFile struct {
	DisposableDomains []string `yaml:"disposable_domains"`
	RoleLocalParts    []string `yaml:"role_local_parts"`
	FreeProviders     []string `yaml:"free_providers"`
}

// DefaultLists returns the built-in lists shipped with the product.
func DefaultLists() Lists {
	return Lists{
		DisposableDomains: toSet([]string{
			"mailinator.com",
			"10minutemail.com",
			"guerrillamail.com",
			"tempmail.org",
			"throwawaymail.com",
		}),
		RoleLocalParts: toSet([]string{
			"info",
			"support",
			"admin",
			"sales",
			"contact",
			"noreply",
			"no-reply",
			"postmaster",
			"webmaster",
		}),
		FreeProviders: toSet([]string{
			"gmail.com",
			"yahoo.com",
			"outlook.com",
			"hotmail.com",
			"aol.com",
			"icloud.com",
			"live.com",
			"msn.com",
		}),
	}
}

// LoadLists returns the built-in lists, with any non-empty section of the
// YAML file at path replacing the corresponding default. An empty path
// returns the defaults unchanged.
func LoadLists(path string) (Lists, error) {
	lists := DefaultLists()
	if path == "" {
		return lists, nil
	}

	raw, err := os.ReadFile(path) // #nosec G304 - path comes from operator config
	if err != nil {
		return lists, fmt.Errorf("read lists file %s: %w", path, err)
	}

	var file listsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return lists, fmt.Errorf("parse lists file %s: %w", path, err)
	}

	if len(file.DisposableDomains) > 0 {
		lists.DisposableDomains = toSet(file.DisposableDomains)
	}
	if len(file.RoleLocalParts) > 0 {
		lists.RoleLocalParts = toSet(file.RoleLocalParts)
	}
	if len(file.FreeProviders) > 0 {
		lists.FreeProviders = toSet(file.FreeProviders)
	}

	return lists, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		set[v] = true
	}
	return set
}
