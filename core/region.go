package core

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sync"
	"time"
)

// regionProbeTimeout bounds the IP-geolocation GET at 10s, in the
// context.WithTimeout style of the teacher's core/storage.go gateway calls.
const regionProbeTimeout = 10 * time.Second

// regionEndpoint answers {"country_code":"<ISO code>", ...} for the caller's
// public IP with no query parameters or API key required.
const regionEndpoint = "https://ipapi.co/json/"

var (
	regionOnce  sync.Once
	regionValue string
)

// ResolveRegion returns this node's region: the REGION environment variable
// if set, otherwise the country code of a one-shot IP-geolocation probe,
// otherwise "unknown". The result is cached for the life of the process in a
// single sync.Once-guarded value, generalizing the teacher's process-wide
// geoMap singleton (core/geolocation_network.go) from a per-node lookup
// table down to this one local value.
func ResolveRegion(ctx context.Context) string {
	regionOnce.Do(func() {
		if env := os.Getenv("REGION"); env != "" {
			regionValue = env
			return
		}
		region, err := probeRegion(ctx)
		if err != nil || region == "" {
			regionValue = "unknown"
			return
		}
		regionValue = region
	})
	return regionValue
}

func probeRegion(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, regionProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, regionEndpoint, nil)
	if err != nil {
		return "", WrapErr(err, "build region probe request")
	}
	client := &http.Client{Timeout: regionProbeTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", WrapErr(err, "region probe request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", WrapErr(err, "read region probe response")
	}

	var payload struct {
		CountryCode string `json:"country_code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", WrapErr(err, "decode region probe response")
	}
	return payload.CountryCode, nil
}
