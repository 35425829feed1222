package locate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"time"
)

// DefaultGPSDAddr is where gpsd listens unless configured otherwise.
const DefaultGPSDAddr = "localhost:2947"

// GPSDPositioner reads a fix from a gpsd daemon.
//
// gpsd speaks newline-delimited JSON over TCP. After a client sends
//
//	?WATCH={"enable":true,"json":true};
//
// the daemon streams VERSION, DEVICES and WATCH objects followed by one TPV
// ("time-position-velocity") report per receiver cycle. Only reports that
// arrive after the watch starts are used, so a returned fix is never cached.
type GPSDPositioner struct {
	Addr string
}

type gpsdReport struct {
	Class   string            `json:"class"`
	Mode    int               `json:"mode"`
	Time    string            `json:"time"`
	Lat     *float64          `json:"lat"`
	Lon     *float64          `json:"lon"`
	Epx     *float64          `json:"epx"`
	Epy     *float64          `json:"epy"`
	Eph     *float64          `json:"eph"`
	Devices []json.RawMessage `json:"devices"`
}

// gpsd TPV modes: 0 unknown, 1 no fix, 2 2D, 3 3D.
const gpsdMode2D = 2

func (p *GPSDPositioner) CurrentPosition(ctx context.Context, _ FixRequest) (Fix, error) {
	addr := p.Addr
	if addr == "" {
		addr = DefaultGPSDAddr
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return Fix{}, ctx.Err()
		}
		return Fix{}, dialErr(addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := io.WriteString(conn, `?WATCH={"enable":true,"json":true};`+"\n"); err != nil {
		return Fix{}, p.readErr(ctx, err)
	}

	dec := json.NewDecoder(bufio.NewReader(conn))
	for {
		var rep gpsdReport
		if err := dec.Decode(&rep); err != nil {
			return Fix{}, p.readErr(ctx, err)
		}
		switch rep.Class {
		case "DEVICES":
			if rep.Devices != nil && len(rep.Devices) == 0 {
				return Fix{}, fmt.Errorf("%w: gpsd reports no receivers", ErrPositioningUnavailable)
			}
		case "TPV":
			if rep.Mode < gpsdMode2D || rep.Lat == nil || rep.Lon == nil {
				continue
			}
			return rep.fix(), nil
		}
	}
}

// dialErr maps a failed connection to the daemon onto the positioning
// errors. A refused permission is reported as such; anything else means
// there is no positioning to be had.
func dialErr(addr string, err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: dial gpsd %s: %v", ErrPermissionDenied, addr, err)
	}
	return fmt.Errorf("%w: dial gpsd %s: %v", ErrPositioningUnavailable, addr, err)
}

func (p *GPSDPositioner) readErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return fmt.Errorf("read gpsd: %w", err)
}

func (r gpsdReport) fix() Fix {
	f := Fix{Latitude: *r.Lat, Longitude: *r.Lon}
	switch {
	case r.Epx != nil && r.Epy != nil:
		acc := math.Max(*r.Epx, *r.Epy)
		f.Accuracy = &acc
	case r.Eph != nil:
		acc := *r.Eph
		f.Accuracy = &acc
	}
	if t, err := time.Parse(time.RFC3339Nano, r.Time); err == nil {
		f.Time = t
	}
	return f
}
