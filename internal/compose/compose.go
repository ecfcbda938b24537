// Package compose formats donation announcements.
package compose

import (
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"

	"charitybot/internal/donation"
)

// Rand is the randomness the composer draws from. *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Composer builds announcement text. It holds no state besides its texts.
type Composer struct {
	Account        string // the bot's own handle, without '@'
	HomeNetwork    string // donors from here are mentioned by handle
	Currency       string
	Scale          int64
	IDOnlyNetworks []string // donors from these networks are named by user id
	Greetings      []string
	Hashtags       []string
}

// Compose returns the announcement body and its greeting suffix.
// The body is the context line followed by one line per beneficiary in shuffled order.
func (c Composer) Compose(ev donation.Event, shareMinor int64, beneficiaries []string, rng Rand) (body, greeting string) {
	var b strings.Builder
	b.WriteString(c.contextLine(ev))

	order := append([]string(nil), beneficiaries...)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	share := donation.FromMinor(shareMinor, c.scale()).String()
	for _, name := range order {
		b.WriteString("@" + name + " +" + share + " " + c.currency() + "\n")
	}
	return b.String(), c.Greeting(rng)
}

func (c Composer) contextLine(ev donation.Event) string {
	amount := ev.Amount.String() + " " + c.currency()
	if ev.Kind == donation.KindDeposit {
		return ".@" + c.Account + " just received a direct deposit of " + amount + ".\n\n"
	}
	if ev.User != "" && (strings.EqualFold(ev.Network, c.HomeNetwork) || strings.EqualFold(ev.UserNetwork, c.HomeNetwork)) {
		return ".@" + ev.User + " donated " + amount + " to @" + c.Account + ".\n\n"
	}
	who := ev.User
	if c.idOnly(ev.UserNetwork) || who == "" {
		who = ev.UserID
	}
	return who + " from " + ev.UserNetwork + " donated " + amount + " to @" + c.Account + ".\n\n"
}

func (c Composer) idOnly(network string) bool {
	for _, n := range c.IDOnlyNetworks {
		if strings.EqualFold(n, network) {
			return true
		}
	}
	return false
}

// Greeting picks a random greeting and hashtag line: "\n<greeting>\n<hashtags>".
func (c Composer) Greeting(rng Rand) string {
	var g, h string
	if len(c.Greetings) > 0 {
		g = c.Greetings[rng.Intn(len(c.Greetings))]
	}
	if len(c.Hashtags) > 0 {
		h = c.Hashtags[rng.Intn(len(c.Hashtags))]
	}
	return "\n" + g + "\n" + h
}

func (c Composer) scale() int64 {
	if c.Scale <= 0 {
		return donation.DefaultScale
	}
	return c.Scale
}

func (c Composer) currency() string {
	if c.Currency == "" {
		return "XRP"
	}
	return c.Currency
}

// Live is a Composer that can be swapped on config reload, with its own
// seeded randomness. Safe for concurrent use.
type Live struct {
	cur atomic.Pointer[Composer]

	mu  sync.Mutex
	rng *rand.Rand
}

func NewLive(c Composer, seed int64) *Live {
	l := &Live{rng: rand.New(rand.NewSource(seed))}
	l.Update(c)
	return l
}

func (l *Live) Update(c Composer) { l.cur.Store(&c) }

func (l *Live) Current() Composer { return *l.cur.Load() }

func (l *Live) Compose(ev donation.Event, shareMinor int64, beneficiaries []string) (string, string) {
	c := l.Current()
	l.mu.Lock()
	defer l.mu.Unlock()
	return c.Compose(ev, shareMinor, beneficiaries, l.rng)
}

func (l *Live) Greeting() string {
	c := l.Current()
	l.mu.Lock()
	defer l.mu.Unlock()
	return c.Greeting(l.rng)
}
