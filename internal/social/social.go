// Package social publishes announcements and lists beneficiaries.
package social

import (
	"context"
	"errors"
	"strings"
)

// Rejections the post scheduler reacts to. Drivers wrap them so callers can
// use errors.Is; anything else counts as a permanent failure.
var (
	ErrTooLong   = errors.New("post too long")
	ErrDuplicate = errors.New("duplicate post")
)

// Poster publishes one post.
type Poster interface {
	Send(ctx context.Context, text string) error
}

// FollowerLister returns the beneficiary handles the bot pays out to.
type FollowerLister interface {
	ListFollowers(ctx context.Context) ([]string, error)
}

type Class int

const (
	ClassOther Class = iota
	ClassTooLong
	ClassDuplicate
)

func (c Class) String() string {
	switch c {
	case ClassTooLong:
		return "too_long"
	case ClassDuplicate:
		return "duplicate"
	default:
		return "other"
	}
}

// Classify maps a send error to the retry class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassOther
	case errors.Is(err, ErrTooLong):
		return ClassTooLong
	case errors.Is(err, ErrDuplicate):
		return ClassDuplicate
	default:
		return ClassOther
	}
}

// classified wraps a driver error with one of the sentinel classes.
type classified struct {
	class error
	err   error
}

func (c *classified) Error() string { return c.class.Error() + ": " + c.err.Error() }

func (c *classified) Unwrap() []error { return []error{c.class, c.err} }

// classifyByText recognizes API rejections by their message, since the
// client libraries don't export stable error values for them.
func classifyByText(err error, tooLong, duplicate []string) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, s := range tooLong {
		if strings.Contains(msg, s) {
			return &classified{class: ErrTooLong, err: err}
		}
	}
	for _, s := range duplicate {
		if strings.Contains(msg, s) {
			return &classified{class: ErrDuplicate, err: err}
		}
	}
	return err
}

// Static is a fixed beneficiary list from config.
type Static []string

func (s Static) ListFollowers(context.Context) ([]string, error) {
	out := make([]string, 0, len(s))
	seen := map[string]bool{}
	for _, v := range s {
		v = strings.TrimPrefix(strings.TrimSpace(v), "@")
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}
