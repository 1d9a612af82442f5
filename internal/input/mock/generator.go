package mock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/input"
)

var (
	names = []string{"ada", "grace", "linus", "ken", "barbara"}
	lines = []string{
		"hello there",
		"anyone around?",
		"deploy is green",
		"coffee break",
		"ping me when the build is done",
	}
)

// Generator posts synthetic chat messages on an interval. Each simulated user
// keeps one device id.
type Generator struct {
	Poster   input.Poster
	Interval time.Duration
}

func (g *Generator) Run(ctx context.Context) error {
	every := g.Interval
	if every <= 0 {
		every = 2 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()

	devices := make([]string, len(names))
	for i := range devices {
		devices[i] = uuid.NewString()
	}

	n := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			i := rand.IntN(len(names))
			n++
			body := fmt.Sprintf("%s #%d", lines[rand.IntN(len(lines))], n)
			if _, err := g.Poster.Post(devices[i], names[i], body); err != nil {
				return err
			}
		}
	}
}
