package gitlocal

import "github.com/Strob0t/CodeForge/internal/port/gitprovider"

func init() {
	factory := func(_ map[string]string) (gitprovider.Provider, error) {
		return &Provider{}, nil
	}

	gitprovider.Register(providerName, factory)
}
