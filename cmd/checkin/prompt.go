package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Elizabethomito/geocheckin/internal/geo"
	"github.com/Elizabethomito/geocheckin/internal/locate"
)

// prompter asks questions on the terminal. Questions go to w so that
// stdout stays clean for results.
type prompter struct {
	r *bufio.Reader
	w io.Writer
}

func newPrompter(r io.Reader, w io.Writer) *prompter {
	return &prompter{r: bufio.NewReader(r), w: w}
}

// ask prints question and returns the trimmed answer. End of input is an
// empty answer.
func (p *prompter) ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.w, question)
	line, err := p.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question. Only "y" or "yes" count as yes.
func (p *prompter) confirm(ctx context.Context, question string) (bool, error) {
	answer, err := p.ask(ctx, question+" [y/N] ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// justify asks why the check-in is being sent without a location.
func (p *prompter) justify(ctx context.Context, cause error) (string, error) {
	fmt.Fprintf(p.w, "Could not determine your location: %v\n", cause)
	return p.ask(ctx, "Reason for checking in without a location (blank to cancel): ")
}

// confirmLowTrust asks before sending an estimate that may be far off.
func (p *prompter) confirmLowTrust(ctx context.Context, est geo.Estimate) (bool, error) {
	fmt.Fprintf(p.w, "Your location is only approximate: %s\n", est)
	return p.confirm(ctx, "Send it anyway?")
}

// manualFallback offers to type coordinates after every source failed.
func (p *prompter) manualFallback(ctx context.Context, failures []locate.SourceFailure) (geo.Estimate, error) {
	for _, f := range failures {
		fmt.Fprintf(p.w, "  %s: %v\n", f.Source, f.Err)
	}
	for {
		answer, err := p.ask(ctx, "Enter coordinates as \"lat,lon\" (blank to skip): ")
		if err != nil {
			return geo.Estimate{}, err
		}
		if answer == "" {
			return geo.Estimate{}, locate.ErrManualDeclined
		}
		lat, lon, ok := strings.Cut(answer, ",")
		if !ok {
			fmt.Fprintln(p.w, "Use the form -1.2921,36.8219")
			continue
		}
		est, err := locate.Manual(strings.TrimSpace(lat), strings.TrimSpace(lon))
		if err != nil {
			fmt.Fprintln(p.w, err)
			continue
		}
		return est, nil
	}
}
