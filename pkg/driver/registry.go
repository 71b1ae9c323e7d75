package driver

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// serviceAliases maps alternate config spellings to canonical service
// keys.
var serviceAliases = map[string]string{
	"google_ai_studio": "aistudio",
	"google-ai-studio": "aistudio",
	"gpt":              "chatgpt",
}

var profiles = map[string]func() Profile{
	"chatgpt":  chatgptProfile,
	"claude":   claudeProfile,
	"gemini":   geminiProfile,
	"genspark": gensparkProfile,
	"aistudio": aistudioProfile,
}

// CanonicalService resolves aliases to the canonical service key.
func CanonicalService(service string) string {
	if canon, ok := serviceAliases[service]; ok {
		return canon
	}
	return service
}

// Services lists the supported service keys in sorted order.
func Services() []string {
	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Supported reports whether a service (or alias) has a driver profile.
func Supported(service string) bool {
	_, ok := profiles[CanonicalService(service)]
	return ok
}

// New builds the driver for a service on the given page.
func New(service string, page Page, timeouts Timeouts, log zerolog.Logger) (Driver, error) {
	factory, ok := profiles[CanonicalService(service)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", service, ErrUnknownService)
	}
	profile := factory()
	if err := profile.validate(); err != nil {
		return nil, err
	}
	return newUIDriver(profile, page, timeouts, log), nil
}
