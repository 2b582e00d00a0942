package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"gitlab.com/dirk.krummacker/qrinfo-service/internal/registry"
)

// benchForm is the record every benchmark round creates and edits.
var benchForm = registry.Form{
	Name:         "Marcus",
	LastName:     "Antonius",
	PersonalCode: "MA-0027",
	PhoneNumber:  "+39 999 777 555",
	Status:       "stable",
}

// bench measures the average time in microseconds of each registry operation against the
// configured backend. Every round creates the given number of records and removes them again.
func (c *cli) bench(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.SetOutput(c.out)
	sizesPtr := fs.String("sizes", "100,500,1000", "comma-separated numbers of records per round")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sizes, err := parseSizes(*sizesPtr)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "   Records       ADD      EDIT       GET    DELETE ")
	fmt.Fprintln(c.out, "---------------------------------------------------")
	edited := benchForm
	edited.Status = "critical"
	for _, loops := range sizes {
		fmt.Fprintf(c.out, "%10d", loops)
		ids := make([]string, 0, loops)
		{
			// ADD operations
			var duration time.Duration
			for i := 0; i < loops; i++ {
				before := time.Now()
				p, err := c.registry.Add(ctx, benchForm)
				if err != nil {
					return err
				}
				duration += time.Since(before)
				ids = append(ids, p.ID)
			}
			c.printAverage(duration, loops)
		}
		operations := []func(id string) error{
			func(id string) error {
				_, err := c.registry.Edit(ctx, id, edited)
				return err
			},
			func(id string) error {
				_, err := c.registry.View(ctx, id)
				return err
			},
			func(id string) error {
				return c.registry.Remove(ctx, id)
			},
		}
		for _, f := range operations {
			if err := c.callInLoop(ids, f); err != nil {
				return err
			}
		}
		fmt.Fprintln(c.out)
	}
	return nil
}

// callInLoop calls f for all ids in random order and prints the average duration.
func (c *cli) callInLoop(ids []string, f func(id string) error) error {
	shuffled := make([]string, len(ids))
	copy(shuffled, ids)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	var duration time.Duration
	for _, id := range shuffled {
		before := time.Now()
		if err := f(id); err != nil {
			return err
		}
		duration += time.Since(before)
	}
	c.printAverage(duration, len(ids))
	return nil
}

func (c *cli) printAverage(duration time.Duration, loops int) {
	fmt.Fprintf(c.out, "%10d", duration.Microseconds()/int64(loops))
}

func parseSizes(s string) ([]int, error) {
	var sizes []int
	for _, field := range strings.Split(s, ",") {
		size, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || size < 1 {
			return nil, fmt.Errorf("invalid size %q", field)
		}
		sizes = append(sizes, size)
	}
	return sizes, nil
}
