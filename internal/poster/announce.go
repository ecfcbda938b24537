package poster

import (
	"context"

	"charitybot/internal/donation"
)

// Composer renders a processed donation. *compose.Live satisfies it.
type Composer interface {
	Compose(ev donation.Event, shareMinor int64, beneficiaries []string) (body, greeting string)
}

// Announcer composes announcements and queues them on a Scheduler.
type Announcer struct {
	Composer  Composer
	Scheduler *Scheduler
}

func (a *Announcer) Announce(ctx context.Context, ev donation.Event, shareMinor int64, beneficiaries []string) error {
	body, greeting := a.Composer.Compose(ev, shareMinor, beneficiaries)
	return a.Scheduler.Push(ctx, PostItem{
		Body:        body,
		Greeting:    greeting,
		User:        ev.User,
		UserNetwork: ev.UserNetwork,
		TipNetwork:  ev.Network,
		Amount:      ev.Amount.String(),
	})
}
