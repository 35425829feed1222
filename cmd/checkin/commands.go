package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/Elizabethomito/geocheckin/internal/checkin"
	"github.com/Elizabethomito/geocheckin/internal/geo"
	"github.com/Elizabethomito/geocheckin/internal/locate"
)

// locationFlags are shared by every command that resolves a location.
type locationFlags struct {
	sources string
	address string
	lat     string
	lon     string
}

func (l *locationFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&l.sources, "sources", "", "comma-separated resolve order, e.g. device,network,address")
	fs.StringVar(&l.address, "address", "", "street address to geocode")
	fs.StringVar(&l.lat, "lat", "", "latitude entered by hand (needs -lon)")
	fs.StringVar(&l.lon, "lon", "", "longitude entered by hand (needs -lat)")
}

// resolver builds the resolver and the order to walk for one command.
// Coordinates given with -lat/-lon are used as the only source. An
// -address joins the order after the configured sources unless -sources
// already places it.
func (a *app) resolver(l locationFlags) (*locate.Resolver, []geo.Source, error) {
	device := &locate.DeviceAdapter{
		Positioner: a.cfg.Positioner(),
		Timeout:    a.cfg.Device.Timeout,
	}
	network := &locate.NetworkAdapter{
		Client:    a.http,
		Primary:   locate.IPAPICo(a.cfg.Network.PrimaryURL),
		Alternate: locate.IPAPICom(a.cfg.Network.AlternateURL),
	}
	r := locate.NewResolver(a.logger, device, network)

	if l.lat != "" || l.lon != "" {
		if l.lat == "" || l.lon == "" {
			return nil, nil, usagef("-lat and -lon must be given together")
		}
		manual := locate.ManualAdapter{Latitude: l.lat, Longitude: l.lon}
		return r.With(manual), []geo.Source{geo.SourceManual}, nil
	}

	order, err := a.cfg.ResolveOrder()
	if err != nil {
		return nil, nil, err
	}
	if l.sources != "" {
		order = nil
		for _, s := range strings.Split(l.sources, ",") {
			src, err := geo.ParseSource(s)
			if err != nil {
				return nil, nil, usagef("-sources: %v", err)
			}
			order = append(order, src)
		}
	}

	if l.address != "" {
		geocoder := &locate.Geocoder{
			Client:    a.http,
			URL:       a.cfg.Geocoder.URL,
			UserAgent: a.cfg.Geocoder.UserAgent,
		}
		r = r.With(geocoder.ForAddress(l.address))
		if !slices.Contains(order, geo.SourceAddress) {
			order = append(slices.Clone(order), geo.SourceAddress)
		}
	}
	return r, order, nil
}

// ---- scan ----

func (a *app) scan(ctx context.Context, args []string) error {
	fs := a.newFlagSet("scan", "<payload> [flags]")
	var loc locationFlags
	loc.register(fs)
	reason := fs.String("reason", "", "reason to send if no location can be found")
	yes := fs.Bool("yes", false, "never prompt; approximate locations are sent as they are")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usagef("expected one QR payload, got %d arguments", len(pos))
	}

	resolver, order, err := a.resolver(loc)
	if err != nil {
		return err
	}
	attempt := &checkin.Attempt{
		Resolver:          resolver,
		Submitter:         &checkin.Submitter{Service: a.client(), Logger: a.logger},
		ResolveOptions:    locate.ResolveOptions{Order: order},
		LowTrustThreshold: a.cfg.LowTrustMeters,
		Logger:            a.logger,
	}
	switch {
	case *reason != "":
		attempt.Justify = func(context.Context, error) (string, error) { return *reason, nil }
	case !*yes:
		attempt.Justify = a.in.justify
	}
	if !*yes {
		attempt.ConfirmLowTrust = a.in.confirmLowTrust
		if loc.lat == "" {
			attempt.ResolveOptions.OnManualFallback = a.in.manualFallback
		}
	}

	res, err := attempt.Run(ctx, pos[0])
	if err != nil {
		return err
	}
	printResult(a.out, res)
	return nil
}

func printResult(w io.Writer, res *checkin.Result) {
	fmt.Fprintln(w, "Checked in.")
	if ci := res.ClassInfo; ci.ClassName != "" {
		fmt.Fprintf(w, "  class:     %s", ci.ClassName)
		if ci.TeacherName != "" {
			fmt.Fprintf(w, " (%s)", ci.TeacherName)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "  status:    %s\n", res.AttendanceStatus)
	fmt.Fprintf(w, "  validity:  %s\n", res.Validity)
	if !res.CheckinTime.IsZero() {
		fmt.Fprintf(w, "  time:      %s\n", res.CheckinTime.Local().Format(time.DateTime))
	}
	if res.DistanceFromOriginMeters != nil {
		fmt.Fprintf(w, "  distance:  %.1f m\n", *res.DistanceFromOriginMeters)
	}
	if res.NoGPSReason != "" {
		fmt.Fprintf(w, "  reason:    %s\n", res.NoGPSReason)
	}
	if res.Validity == checkin.ValidityPending {
		fmt.Fprintln(w, "Your teacher will review this check-in.")
	}
}

// ---- locate ----

func (a *app) locate(ctx context.Context, args []string) error {
	fs := a.newFlagSet("locate", "[flags]")
	var loc locationFlags
	loc.register(fs)
	asJSON := fs.Bool("json", false, "print the estimate as JSON")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 0 {
		return usagef("unexpected argument %q", pos[0])
	}

	resolver, order, err := a.resolver(loc)
	if err != nil {
		return err
	}
	est, err := resolver.Resolve(ctx, locate.ResolveOptions{Order: order})
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(est)
	}
	fmt.Fprintln(a.out, est)
	if est.LowTrust(a.cfg.LowTrustMeters) {
		fmt.Fprintln(a.out, "warning: low accuracy, confirm before using this location")
	}
	return nil
}

// ---- start / close ----

func (a *app) start(ctx context.Context, args []string) error {
	fs := a.newFlagSet("start", "<session-id> -radius M [flags]")
	var loc locationFlags
	loc.register(fs)
	radius := fs.Float64("radius", 0, "check-in radius in meters around your location")
	late := fs.Int("late", 15, "minutes after opening before check-ins count as late")
	method := fs.String("method", "qr", "attendance method")
	qrOut := fs.String("qr", "", "also write the check-in QR code to this PNG file")
	yes := fs.Bool("yes", false, "never prompt")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usagef("expected one session id, got %d arguments", len(pos))
	}
	if *radius <= 0 {
		return usagef("-radius must be a positive number of meters")
	}
	if *late < 0 {
		return usagef("-late cannot be negative")
	}

	resolver, order, err := a.resolver(loc)
	if err != nil {
		return err
	}
	opts := locate.ResolveOptions{Order: order}
	if !*yes && loc.lat == "" {
		opts.OnManualFallback = a.in.manualFallback
	}
	origin, err := resolver.Resolve(ctx, opts)
	if err != nil {
		return fmt.Errorf("resolve class location: %w", err)
	}
	if origin.LowTrust(a.cfg.LowTrustMeters) && !*yes {
		ok, err := a.in.confirm(ctx, fmt.Sprintf("Class location is only approximate: %s. Use it?", origin))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: class location declined", checkin.ErrAborted)
		}
	}

	res, err := a.client().StartAttendance(ctx, pos[0], checkin.StartRequest{
		Method:           *method,
		LateAfterMinutes: *late,
		Origin:           origin,
		RadiusMeters:     *radius,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Attendance open for %s.\n", pos[0])
	fmt.Fprintf(a.out, "  origin:   %.6f, %.6f (radius %.0f m)\n", res.Origin.Lat, res.Origin.Lon, *radius)
	fmt.Fprintf(a.out, "  expires:  %s\n", res.ExpiresAt.Local().Format(time.DateTime))
	payload := res.CheckinURL
	if payload == "" {
		payload = res.QRToken
	}
	fmt.Fprintf(a.out, "  link:     %s\n", payload)

	if *qrOut != "" {
		if err := qrcode.WriteFile(payload, qrcode.Medium, 256, *qrOut); err != nil {
			return fmt.Errorf("write QR code: %w", err)
		}
		fmt.Fprintf(a.out, "QR code written to %s\n", *qrOut)
	}
	return nil
}

func (a *app) close(ctx context.Context, args []string) error {
	fs := a.newFlagSet("close", "<session-id>")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usagef("expected one session id, got %d arguments", len(pos))
	}
	if err := a.client().CloseAttendance(ctx, pos[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Attendance closed for %s.\n", pos[0])
	return nil
}

// ---- review ----

func (a *app) review(ctx context.Context, args []string) error {
	fs := a.newFlagSet("review", "<session-id> [-approve id] [-reject id]")
	approve := fs.String("approve", "", "attendance id to mark valid")
	reject := fs.String("reject", "", "attendance id to mark invalid")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usagef("expected one session id, got %d arguments", len(pos))
	}
	if *approve != "" && *approve == *reject {
		return usagef("cannot both approve and reject %s", *approve)
	}
	client := a.client()

	if *approve != "" || *reject != "" {
		verdicts := []struct {
			id    string
			valid bool
		}{{*approve, true}, {*reject, false}}
		for _, v := range verdicts {
			if v.id == "" {
				continue
			}
			if err := a.setValidity(ctx, client, v.id, v.valid); err != nil {
				return err
			}
		}
		return nil
	}

	pending, err := client.ListAttendance(ctx, pos[0], true)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(a.out, "No check-ins awaiting review.")
		return nil
	}
	for _, rec := range pending {
		fmt.Fprintf(a.out, "%s  %s  %s  %q\n", rec.ID, rec.StudentName, rec.AttendanceStatus, rec.NoGPSReason)
		answer, err := a.in.ask(ctx, "[a]pprove, [r]eject or [s]kip? ")
		if err != nil {
			return err
		}
		switch strings.ToLower(answer) {
		case "a", "approve":
			err = a.setValidity(ctx, client, rec.ID, true)
		case "r", "reject":
			err = a.setValidity(ctx, client, rec.ID, false)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) setValidity(ctx context.Context, client *checkin.Client, id string, valid bool) error {
	if err := client.SetValidity(ctx, id, valid); err != nil {
		return fmt.Errorf("review %s: %w", id, err)
	}
	verdict := "approved"
	if !valid {
		verdict = "rejected"
	}
	fmt.Fprintf(a.out, "%s %s\n", id, verdict)
	return nil
}

// ---- qr ----

func (a *app) qr(_ context.Context, args []string) error {
	fs := a.newFlagSet("qr", "<payload> [-o file.png] [-size px]")
	out := fs.String("o", "qr.png", "output PNG file")
	size := fs.Int("size", 256, "image width and height in pixels")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usagef("expected one payload, got %d arguments", len(pos))
	}
	if *size < 64 || *size > 2048 {
		return usagef("-size must be between 64 and 2048")
	}
	if _, err := checkin.ExtractToken(pos[0]); err != nil {
		a.logger.Warn("payload does not look like a check-in code", "err", err)
	}
	if err := qrcode.WriteFile(pos[0], qrcode.Medium, *size, *out); err != nil {
		return fmt.Errorf("write QR code: %w", err)
	}
	fmt.Fprintf(a.out, "QR code written to %s\n", *out)
	return nil
}
