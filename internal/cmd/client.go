package cmd

import (
	"github.com/wmsyw/aiWriter-sub000/pkg/apiclient"
)

// newBackendClient builds an API client from the loaded config.
func newBackendClient() (*apiclient.Client, error) {
	return apiclient.New(apiclient.Config{
		BaseURL:   loadedConfig.Backend.URL,
		Timeout:   loadedConfig.Backend.Timeout,
		RateLimit: loadedConfig.Backend.RateLimit,
	})
}
