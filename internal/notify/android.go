package notify

import (
	"context"
	"time"

	"qtsettings/internal/shell"

	"github.com/sirupsen/logrus"
)

// Android posts notices to the device notification shade with
// "cmd notification post". One tag per tile so a newer notice replaces the
// previous one.
type Android struct {
	Runner shell.Runner
	Title  string
}

func (a *Android) Notify(ctx context.Context, n Notice) {
	title := a.Title
	if title == "" {
		title = "Quick Settings"
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := a.Runner.Run(ctx, "cmd", "notification", "post",
		"-S", "bigtext", "-t", title, "qtsettings_"+string(n.Tile), n.Message)
	if err != nil {
		logrus.WithError(err).WithField("tile", n.Tile).Debug("Failed to post device notification")
	}
}
