package transfer

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
)

// applyHeaders merges a JSON object of extra headers onto req, mirroring
// the teacher's newRequest (internal/engine/http.go).
func applyHeaders(req *http.Request, headersJSON string) {
	var headers map[string]string
	if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
		return
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

// probeResult carries the metadata a manifest/segment fetch needs before
// committing to a download: total size and whether the server honors
// byte ranges.
type probeResult struct {
	Size         int64
	Filename     string
	Status       int
	AcceptRanges bool
}

// probeURL issues a ranged GET for bytes=0-0 to learn size/filename/range
// support without pulling the full body, exactly as the teacher's
// ProbeURL does.
func probeURL(ctx context.Context, client *http.Client, urlStr, userAgent, headersJSON, cookies string) (*probeResult, error) {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := newRequest(pctx, http.MethodGet, urlStr, userAgent, headersJSON, cookies)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusPartialContent {
		return &probeResult{Status: resp.StatusCode}, friendlyHTTPError(resp.StatusCode)
	}

	filename := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			filename = params["filename"]
		}
	}
	if filename == "" {
		filename = filepath.Base(resp.Request.URL.Path)
	}

	acceptRanges := resp.Header.Get("Accept-Ranges") == "bytes"
	size := resp.ContentLength
	if resp.StatusCode == http.StatusPartialContent {
		acceptRanges = true
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if parts := strings.Split(cr, "/"); len(parts) == 2 {
				if total, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
					size = total
				}
			}
		}
	}

	return &probeResult{Size: size, Filename: filename, Status: resp.StatusCode, AcceptRanges: acceptRanges}, nil
}
