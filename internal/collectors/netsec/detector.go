// -----------------------------------------------------------------------
// Beaconing and tunnel detection over recorded network telemetry
// -----------------------------------------------------------------------

package netsec

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/darkwatch/internal/models"
)

const (
	// minBeaconSamples is the smallest series worth timing analysis
	minBeaconSamples = 4

	// maxBeaconJitter is the coefficient-of-variation ceiling below which
	// request intervals count as machine-regular
	maxBeaconJitter = 0.25

	// tunnelLabelLength and tunnelLabelEntropy flag encoded-data hostname
	// labels (DNS-tunnel style exfiltration)
	tunnelLabelLength  = 20
	tunnelLabelEntropy = 3.5

	// tunnelVolumeBytes flags heavy transfer to a single host
	tunnelVolumeBytes = 5 << 20

	// tunnelUniformCount and tunnelUniformJitter flag long runs of
	// near-identical payload sizes
	tunnelUniformCount  = 50
	tunnelUniformJitter = 0.1
)

// DetectBeaconing groups telemetry by connection and flags connections
// whose request intervals are regular enough to look like periodic
// callbacks. Requests inside the same instant (one page load) collapse
// into a single sample.
func DetectBeaconing(logs []models.NetworkLog) []models.BeaconingPattern {
	var patterns []models.BeaconingPattern

	for _, key := range connectionKeys(logs) {
		series := byConnection(logs, key)
		times := distinctTimes(series)
		if len(times) < minBeaconSamples {
			continue
		}

		intervals := make([]float64, 0, len(times)-1)
		for i := 1; i < len(times); i++ {
			intervals = append(intervals, times[i].Sub(times[i-1]).Seconds())
		}
		mean, stddev := meanStddev(intervals)
		if mean <= 0 {
			continue
		}
		jitter := stddev / mean
		if jitter > maxBeaconJitter {
			continue
		}

		confidence := 1 - jitter/maxBeaconJitter
		risk := 40 + confidence*40
		if len(times) >= 2*minBeaconSamples {
			risk += 10
		}
		patterns = append(patterns, models.BeaconingPattern{
			ConnectionKey:   key,
			IntervalSeconds: mean,
			Jitter:          jitter,
			SampleCount:     len(times),
			Indicators: []string{
				fmt.Sprintf("%d callbacks at ~%.0fs intervals", len(times), mean),
				fmt.Sprintf("interval jitter %.0f%%", jitter*100),
			},
			RiskScore:  math.Min(risk, 100),
			Confidence: confidence,
			FirstSeen:  times[0],
			LastSeen:   times[len(times)-1],
		})
	}
	return patterns
}

// DetectTunnels flags connections whose traffic shape suggests a covert
// channel: encoded-data hostname labels, heavy one-host transfer volume,
// or long runs of uniform payload sizes. A high-entropy label alone is
// enough; the volume and uniformity signals need each other.
func DetectTunnels(logs []models.NetworkLog) []models.TunnelDetection {
	var detections []models.TunnelDetection

	for _, key := range connectionKeys(logs) {
		series := byConnection(logs, key)

		var indicators []string
		entropyHit := false

		label := firstLabel(series[0].Host)
		if len(label) >= tunnelLabelLength && shannonEntropy(label) >= tunnelLabelEntropy {
			entropyHit = true
			indicators = append(indicators, fmt.Sprintf("high-entropy hostname label %q", label))
		}

		var total int64
		sizes := make([]float64, 0, len(series))
		for _, l := range series {
			total += l.Bytes
			if l.Bytes > 0 {
				sizes = append(sizes, float64(l.Bytes))
			}
		}
		if total >= tunnelVolumeBytes {
			indicators = append(indicators, fmt.Sprintf("%d bytes transferred on one connection", total))
		}
		if len(sizes) >= tunnelUniformCount {
			mean, stddev := meanStddev(sizes)
			if mean > 0 && stddev/mean <= tunnelUniformJitter {
				indicators = append(indicators, fmt.Sprintf("%d requests with near-identical payload sizes", len(sizes)))
			}
		}

		if !entropyHit && len(indicators) < 2 {
			continue
		}

		confidence := float64(len(indicators)) / 3
		if confidence > 1 {
			confidence = 1
		}
		detections = append(detections, models.TunnelDetection{
			ConnectionKey: key,
			Protocol:      series[0].Protocol,
			Indicators:    indicators,
			RiskScore:     math.Min(50+float64(len(indicators))*15, 100),
			Confidence:    confidence,
			DetectedAt:    time.Now(),
		})
	}
	return detections
}

// connectionKeys returns the distinct connection keys in stable order
func connectionKeys(logs []models.NetworkLog) []string {
	seen := make(map[string]bool, len(logs))
	var keys []string
	for _, l := range logs {
		if !seen[l.ConnectionKey] {
			seen[l.ConnectionKey] = true
			keys = append(keys, l.ConnectionKey)
		}
	}
	sort.Strings(keys)
	return keys
}

func byConnection(logs []models.NetworkLog, key string) []models.NetworkLog {
	var series []models.NetworkLog
	for _, l := range logs {
		if l.ConnectionKey == key {
			series = append(series, l)
		}
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].ObservedAt.Before(series[j].ObservedAt)
	})
	return series
}

// distinctTimes collapses observations sharing a timestamp into one sample
func distinctTimes(series []models.NetworkLog) []time.Time {
	var times []time.Time
	for _, l := range series {
		if len(times) == 0 || !l.ObservedAt.Equal(times[len(times)-1]) {
			times = append(times, l.ObservedAt)
		}
	}
	return times
}

func meanStddev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func firstLabel(host string) string {
	if idx := strings.Index(host, "."); idx >= 0 {
		return host[:idx]
	}
	return host
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	var entropy float64
	n := float64(len(s))
	for _, count := range counts {
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
