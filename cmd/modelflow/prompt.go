package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dukex/modelflow/pkg/hitl"
	"github.com/dukex/modelflow/pkg/models"
)

// promptHandler answers checkpoints interactively on the terminal. The
// reviewer picks an option by number or by id.
func promptHandler(in io.Reader, out io.Writer) hitl.Handler {
	reader := bufio.NewReader(in)

	return hitl.HandlerFunc(func(ctx context.Context, request hitl.Request) (models.HitlDecision, error) {
		fmt.Fprintf(out, "\n%s\n%s\n\n%s\n\n", request.Title, strings.Repeat("-", len(request.Title)), request.Summary)

		for i, option := range request.Options {
			fmt.Fprintf(out, "  %d) %s [%s]\n", i+1, option.Label, option.ID)
		}

		for {
			if err := ctx.Err(); err != nil {
				return models.HitlDecision{}, err
			}

			fmt.Fprint(out, "\nChoice: ")

			line, err := reader.ReadString('\n')
			if err != nil {
				return models.HitlDecision{}, fmt.Errorf("failed to read decision: %w", err)
			}

			choice := strings.TrimSpace(line)

			for i, option := range request.Options {
				if choice == option.ID || choice == strconv.Itoa(i+1) {
					return models.HitlDecision{OptionID: option.ID}, nil
				}
			}

			fmt.Fprintf(out, "Unknown option %q, try again.\n", choice)
		}
	})
}
