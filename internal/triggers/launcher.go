package triggers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"dixi/internal/ports"
)

// DefaultMapsURL is a maps search URL with one %s for the escaped address.
const DefaultMapsURL = "https://www.google.com/maps/search/?api=1&query=%s"

// OpenURLFunc hands a URL to the desktop shell.
type OpenURLFunc func(ctx context.Context, target string) error

// URLLauncher performs actions by opening tel: and maps URLs.
type URLLauncher struct {
	mapsURL string
	open    OpenURLFunc
}

func NewURLLauncher(mapsURL string, open OpenURLFunc) *URLLauncher {
	if !strings.Contains(mapsURL, "%s") {
		mapsURL = DefaultMapsURL
	}
	return &URLLauncher{mapsURL: mapsURL, open: open}
}

// Launch opens the URL for action.
func (l *URLLauncher) Launch(ctx context.Context, action ports.Action) error {
	if l.open == nil {
		return errors.New("no URL opener configured")
	}
	target, err := l.URL(action)
	if err != nil {
		return err
	}
	return l.open(ctx, target)
}

// URL renders the URL that performs action.
func (l *URLLauncher) URL(action ports.Action) (string, error) {
	argument := strings.TrimSpace(action.Argument)
	if argument == "" {
		return "", fmt.Errorf("%s action has no argument", action.Kind)
	}

	switch action.Kind {
	case ports.ActionEmergencyCall:
		return "tel:" + dialable(argument), nil
	case ports.ActionOpenMaps:
		return fmt.Sprintf(l.mapsURL, url.QueryEscape(argument)), nil
	default:
		return "", fmt.Errorf("unsupported action %q", action.Kind)
	}
}

func dialable(number string) string {
	var builder strings.Builder
	for _, char := range number {
		if (char >= '0' && char <= '9') || char == '+' || char == '*' || char == '#' {
			builder.WriteRune(char)
		}
	}
	return builder.String()
}
